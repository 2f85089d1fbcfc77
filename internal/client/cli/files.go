package cli

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/dmitrijs2005/taxdesk/internal/client/staging"
	"github.com/dmitrijs2005/taxdesk/internal/common"
	"github.com/dmitrijs2005/taxdesk/internal/filing"
	"github.com/dmitrijs2005/taxdesk/internal/upload"
)

// sniffLen is how many bytes http.DetectContentType looks at.
const sniffLen = 512

// Stage adds local files to the staging area. With -r the attachments of
// that request count as already selected.
func (a *App) Stage(ctx context.Context, args []string) error {
	if len(args) >= 2 && args[0] == "-r" {
		d, err := a.api.Get(ctx, args[1])
		if err != nil {
			return err
		}
		a.area().SetCommitted(d.Request.AttachedFiles)
		args = args[2:]
	}
	if len(args) == 0 {
		return errors.New("usage: stage [-r <requestId>] <path>...")
	}

	files := make([]staging.File, 0, len(args))
	for _, p := range args {
		f, err := describeFile(p)
		if err != nil {
			fmt.Fprintf(a.out, "  ! %s: %v\n", p, err)
			continue
		}
		files = append(files, f)
	}

	res, err := a.area().Stage(files)
	if err != nil {
		return err
	}
	a.printWarnings(res)
	a.printStaged(res.Staged)
	return nil
}

// describeFile stats path and guesses its media type from the extension,
// falling back to the content.
func describeFile(path string) (staging.File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return staging.File{}, err
	}
	if info.IsDir() {
		return staging.File{}, errors.New("is a directory")
	}

	typ := mime.TypeByExtension(filepath.Ext(path))
	if typ == "" {
		typ, err = sniffType(path)
		if err != nil {
			return staging.File{}, err
		}
	}

	return staging.File{
		Path:         path,
		Name:         info.Name(),
		Size:         info.Size(),
		Type:         typ,
		LastModified: info.ModTime(),
	}, nil
}

func sniffType(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	buf := make([]byte, sniffLen)
	n, _ := f.Read(buf)
	return http.DetectContentType(buf[:n]), nil
}

func (a *App) Unstage(_ context.Context, args []string) error {
	files := a.area().Files()
	n, err := pickIndex(args, len(files))
	if err != nil {
		return err
	}
	a.area().Unstage(files[n].ID())
	a.printStaged(a.area().Files())
	return nil
}

func (a *App) Staged(_ context.Context, _ []string) error {
	a.printStaged(a.area().Files())
	return nil
}

func (a *App) Clear(_ context.Context, _ []string) error {
	a.area().Clear()
	fmt.Fprintln(a.out, "Staging cleared")
	return nil
}

// Attach uploads the staged files into request id and commits them.
func (a *App) Attach(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: attach <requestId>")
	}
	id := args[0]

	d, err := a.api.Get(ctx, id)
	if err != nil {
		return err
	}
	if !filing.CanAdd(d.Role, d.Request.Status) {
		return fmt.Errorf("cannot add files to a %s request: %w", d.Request.Status, common.ErrorForbidden)
	}

	actor := a.session.Current().Actor()
	attached, err := a.uploadStaged(ctx, actor.UploaderID(d.Role), id)
	if err != nil {
		return err
	}
	if len(attached) == 0 {
		return errors.New("nothing staged")
	}

	r, err := a.api.CommitFiles(ctx, id, attached)
	if err != nil {
		return err
	}
	a.area().Clear()
	a.printRequest(r)
	return nil
}

// uploadStaged transfers every staged file. Staging is left untouched so
// a failed batch can be retried.
func (a *App) uploadStaged(ctx context.Context, uploaderID, requestID string) ([]filing.AttachedFile, error) {
	staged := a.area().Files()
	if len(staged) == 0 {
		return nil, nil
	}

	files := make([]upload.File, 0, len(staged))
	for _, s := range staged {
		f, err := os.Open(s.Path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		files = append(files, upload.File{Name: s.Name, Type: s.Type, Size: s.Size, Content: f})
	}

	fmt.Fprintf(a.out, "Uploading %d file(s)\n", len(files))
	return a.uploader().UploadBatch(ctx, uploaderID, requestID, files, a.progress)
}

func (a *App) Remove(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: rm <requestId> <path>")
	}
	r, err := a.api.RemoveFile(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	a.printRequest(r)
	return nil
}

// URL prints a time-limited download link for an attachment.
func (a *App) URL(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: url <path>")
	}
	u, expires, err := a.api.SignedURL(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, u)
	fmt.Fprintf(a.out, "Expires %s\n", formatExpiry(expires))
	return nil
}

// pickIndex parses a 1-based position from args.
func pickIndex(args []string, n int) (int, error) {
	if len(args) != 1 {
		return 0, errors.New("expected a single number")
	}
	i, err := strconv.Atoi(args[0])
	if err != nil || i < 1 || i > n {
		return 0, fmt.Errorf("pick a number between 1 and %d", n)
	}
	return i - 1, nil
}
