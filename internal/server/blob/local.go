package blob

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/taxdesk/internal/common"
	"github.com/dmitrijs2005/taxdesk/internal/cryptox"
	"github.com/dmitrijs2005/taxdesk/internal/filex"
	"github.com/dmitrijs2005/taxdesk/internal/upload"
	"github.com/google/uuid"
)

const tmpDir = ".incoming"

var linkFile = os.Link

// LocalStore keeps objects as files below a root directory. Writes land in
// a temp file first and are published with a hard link, which fails when
// the target exists and so gives non-overwriting semantics.
type LocalStore struct {
	root    string
	baseURL string
	signer  *cryptox.Signer
}

// NewLocalStore serves signed links as {baseURL}/v1/local-blobs/{key}.
func NewLocalStore(root, baseURL string, signer *cryptox.Signer) (*LocalStore, error) {
	dir, err := filex.EnsureDir(root)
	if err != nil {
		return nil, err
	}
	if _, err := filex.EnsureDir(filepath.Join(dir, tmpDir)); err != nil {
		return nil, err
	}
	return &LocalStore{root: dir, baseURL: strings.TrimRight(baseURL, "/"), signer: signer}, nil
}

func (s *LocalStore) path(key string) (string, error) {
	if strings.HasPrefix(key, tmpDir+"/") {
		return "", filex.ErrEscapesRoot
	}
	return filex.SafeJoin(s.root, key)
}

func (s *LocalStore) tempFile() (*os.File, error) {
	return os.OpenFile(filepath.Join(s.root, tmpDir, uuid.NewString()), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
}

func (s *LocalStore) publish(tmp, dst string, overwrite bool) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o770); err != nil {
		return err
	}
	if overwrite {
		return os.Rename(tmp, dst)
	}
	// tmp survives a failed link so a chunked session can retry Complete
	if err := linkFile(tmp, dst); err != nil {
		if errors.Is(err, fs.ErrExist) {
			os.Remove(tmp)
			return common.ErrAlreadyExists
		}
		return err
	}
	os.Remove(tmp)
	return nil
}

func (s *LocalStore) Put(_ context.Context, key string, data []byte, overwrite bool) error {
	dst, err := s.path(key)
	if err != nil {
		return err
	}

	f, err := s.tempFile()
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return err
	}

	if err := s.publish(f.Name(), dst, overwrite); err != nil {
		os.Remove(f.Name())
		return err
	}
	return nil
}

func (s *LocalStore) BeginChunked(_ context.Context, key string, _ int64) (upload.ChunkWriter, error) {
	dst, err := s.path(key)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(dst); err == nil {
		return nil, common.ErrAlreadyExists
	}

	f, err := s.tempFile()
	if err != nil {
		return nil, err
	}
	return &localSession{store: s, dst: dst, f: f}, nil
}

func (s *LocalStore) Remove(_ context.Context, keys ...string) error {
	failed := make(map[string]error)
	for _, k := range keys {
		p, err := s.path(k)
		if err != nil {
			failed[k] = err
			continue
		}
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			failed[k] = err
		}
	}
	if len(failed) > 0 {
		return &RemoveError{Failed: failed}
	}
	return nil
}

func (s *LocalStore) Exists(_ context.Context, key string) (bool, error) {
	p, err := s.path(key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(p)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

func (s *LocalStore) SignedURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	if _, err := s.path(key); err != nil {
		return "", err
	}
	expires, sig, err := s.signer.Sign(key, ttl)
	if err != nil {
		return "", err
	}

	segments := strings.Split(key, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	q := url.Values{}
	q.Set("expires", fmt.Sprint(expires))
	q.Set("sig", sig)
	return s.baseURL + "/v1/local-blobs/" + strings.Join(segments, "/") + "?" + q.Encode(), nil
}

// Open verifies a signed link and opens the object for reading.
func (s *LocalStore) Open(key string, expires int64, sig string) (*os.File, error) {
	if err := s.signer.Verify(key, expires, sig); err != nil {
		return nil, err
	}
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, common.ErrorNotFound
	}
	return f, err
}

type localSession struct {
	mu     sync.Mutex
	store  *LocalStore
	dst    string
	f      *os.File
	size   int64
	cursor chunkCursor
	done   bool
}

func (l *localSession) WriteChunk(_ context.Context, index int, data []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	write, err := l.cursor.accept(index)
	if err != nil || !write {
		return err
	}
	if _, err := l.f.WriteAt(data, l.size); err != nil {
		// drop whatever part of the chunk landed
		_ = l.f.Truncate(l.size)
		return err
	}
	l.size += int64(len(data))
	l.cursor.next++
	return nil
}

func (l *localSession) Complete(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.done {
		return nil
	}
	if l.cursor.closed {
		return ErrSessionClosed
	}
	if err := l.f.Sync(); err != nil {
		return err
	}
	if err := l.store.publish(l.f.Name(), l.dst, false); err != nil {
		if errors.Is(err, common.ErrAlreadyExists) {
			l.cursor.closed = true
			l.f.Close()
		}
		return err
	}
	l.done = true
	l.cursor.closed = true
	return l.f.Close()
}

func (l *localSession) Abort(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.done || l.cursor.closed {
		return nil
	}
	l.cursor.closed = true
	l.f.Close()
	return os.Remove(l.f.Name())
}
