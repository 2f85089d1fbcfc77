// Package staging holds files picked for upload before they are sent. It
// validates count, size, type and duplicates locally and publishes the
// current list to an observer after every change.
package staging

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/taxdesk/internal/common"
	"github.com/dmitrijs2005/taxdesk/internal/filing"
)

const (
	DefaultMaxFiles      = 5
	DefaultMaxFileSizeMB = 10
	// DefaultLargeFileBytes triggers an advisory warning only.
	DefaultLargeFileBytes = 2 * common.MiB
)

// DefaultAcceptedTypes mirrors the upload form's accept list.
var DefaultAcceptedTypes = filing.DefaultAcceptedTypes

// LargeFile is the advisory reason attached to big but valid files.
const LargeFile common.ValidationReason = "large_file"

// Limits configure an Area.
type Limits struct {
	MaxFiles       int
	MaxFileSizeMB  int
	LargeFileBytes int64
	AcceptedTypes  []string
}

func DefaultLimits() Limits {
	return Limits{
		MaxFiles:       DefaultMaxFiles,
		MaxFileSizeMB:  DefaultMaxFileSizeMB,
		LargeFileBytes: DefaultLargeFileBytes,
		AcceptedTypes:  DefaultAcceptedTypes,
	}
}

// File is a local file selected by the user.
type File struct {
	Path         string
	Name         string
	Size         int64
	Type         string
	LastModified time.Time
}

// ID identifies a staged file for removal.
type ID struct {
	Name         string
	Size         int64
	LastModified time.Time
}

func (f File) ID() ID { return ID{Name: f.Name, Size: f.Size, LastModified: f.LastModified} }

// Warning describes a file that was skipped, or one that was staged with
// an advisory (Reason == LargeFile).
type Warning struct {
	File   string
	Reason common.ValidationReason
	Detail string
}

// Result of a Stage call.
type Result struct {
	Staged   []File
	Warnings []Warning
	// Excluded counts files dropped to respect MaxFiles.
	Excluded int
}

// Area is safe for concurrent use.
type Area struct {
	mu        sync.Mutex
	// notifyMu is taken before mu is released, so observers see snapshots
	// in the order the mutations happened.
	notifyMu  sync.Mutex
	limits    Limits
	staged    []File
	committed []filing.AttachedFile
	observer  func([]File)
}

func New(limits Limits) *Area {
	if limits.MaxFiles <= 0 {
		limits.MaxFiles = DefaultMaxFiles
	}
	if limits.MaxFileSizeMB <= 0 {
		limits.MaxFileSizeMB = DefaultMaxFileSizeMB
	}
	return &Area{limits: limits}
}

// Observe registers fn; it is called with a copy of the staged list after
// every mutation, in mutation order. fn may read the area but must not
// mutate it.
func (a *Area) Observe(fn func([]File)) {
	a.mu.Lock()
	a.observer = fn
	a.mu.Unlock()
}

// SetCommitted records attachments already on the request so re-picking
// one of them is reported as a duplicate.
func (a *Area) SetCommitted(files []filing.AttachedFile) {
	a.mu.Lock()
	a.committed = append([]filing.AttachedFile(nil), files...)
	a.mu.Unlock()
}

// Stage validates and adds files. Exceeding MaxFiles in total rejects the
// whole call with a *common.ValidationError and changes nothing; other
// problems skip the offending file with a warning.
func (a *Area) Stage(files []File) (Result, error) {
	a.mu.Lock()

	if len(a.staged)+len(files) > a.limits.MaxFiles {
		current := len(a.staged)
		a.mu.Unlock()
		return Result{}, &common.ValidationError{
			Reason: common.TooManyFiles,
			Detail: fmt.Sprintf("at most %d files may be attached (%d already selected)", a.limits.MaxFiles, current),
		}
	}

	var res Result
	maxBytes := int64(a.limits.MaxFileSizeMB) * common.MiB
	accepted := make([]File, 0, len(files))

	for _, f := range files {
		switch {
		case f.Size > maxBytes:
			res.Warnings = append(res.Warnings, Warning{File: f.Name, Reason: common.FileTooLarge,
				Detail: fmt.Sprintf("larger than %d MB", a.limits.MaxFileSizeMB)})
			continue
		case !filing.AcceptsType(a.limits.AcceptedTypes, f.Name, f.Type):
			res.Warnings = append(res.Warnings, Warning{File: f.Name, Reason: common.UnacceptedType,
				Detail: "file type is not accepted"})
			continue
		case a.isDuplicate(f, accepted):
			res.Warnings = append(res.Warnings, Warning{File: f.Name, Reason: common.DuplicateFile,
				Detail: "already selected"})
			continue
		}
		if a.limits.LargeFileBytes > 0 && f.Size > a.limits.LargeFileBytes {
			res.Warnings = append(res.Warnings, Warning{File: f.Name, Reason: LargeFile,
				Detail: "large file, upload may take a while"})
		}
		accepted = append(accepted, f)
	}

	next := append(append([]File(nil), a.staged...), accepted...)
	if len(next) > a.limits.MaxFiles {
		res.Excluded = len(next) - a.limits.MaxFiles
		next = next[:a.limits.MaxFiles]
	}
	a.staged = next
	res.Staged = a.snapshot()

	a.publish(res.Staged)
	return res, nil
}

func (a *Area) isDuplicate(f File, batch []File) bool {
	for _, s := range a.staged {
		if s.Name == f.Name && s.Size == f.Size {
			return true
		}
	}
	for _, s := range batch {
		if s.Name == f.Name && s.Size == f.Size {
			return true
		}
	}
	for _, c := range a.committed {
		if c.Name == f.Name && c.Size == f.Size {
			return true
		}
	}
	return false
}

// Unstage removes the file with the given identity. Unknown ids are ignored.
func (a *Area) Unstage(id ID) {
	a.mu.Lock()
	kept := a.staged[:0:0]
	for _, f := range a.staged {
		if f.Name == id.Name && f.Size == id.Size && f.LastModified.Equal(id.LastModified) {
			continue
		}
		kept = append(kept, f)
	}
	a.staged = kept
	a.publish(a.snapshot())
}

// Clear empties the area.
func (a *Area) Clear() {
	a.mu.Lock()
	a.staged = nil
	a.publish([]File{})
}

// ClearOn clears the area whenever signal fires, until ctx is done.
func (a *Area) ClearOn(ctx context.Context, signal <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-signal:
			if !ok {
				return
			}
			a.Clear()
		}
	}
}

// Files returns a copy of the staged list.
func (a *Area) Files() []File {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshot()
}

func (a *Area) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.staged)
}

func (a *Area) snapshot() []File {
	return append([]File{}, a.staged...)
}

// publish is called with a.mu held and releases it.
func (a *Area) publish(files []File) {
	fn := a.observer
	a.notifyMu.Lock()
	a.mu.Unlock()
	defer a.notifyMu.Unlock()

	if fn != nil {
		fn(files)
	}
}
