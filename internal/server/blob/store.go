// Package blob is the object store behind attachments. Two backends exist:
// S3 (or any S3-compatible service such as MinIO) and a local directory for
// development. Both support non-overwriting writes, ordered chunk sessions,
// batch removal and time-limited signed retrieval links.
package blob

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dmitrijs2005/taxdesk/internal/upload"
)

// ErrOutOfOrder is returned by sessions for a chunk index other than the
// next expected one or a repeat of the last acknowledged one.
var ErrOutOfOrder = errors.New("chunk out of order")

// ErrSessionClosed is returned for writes to a completed or aborted session.
var ErrSessionClosed = errors.New("upload session closed")

// Store is the blob store collaborator. It satisfies upload.Target.
type Store interface {
	Put(ctx context.Context, key string, data []byte, overwrite bool) error
	BeginChunked(ctx context.Context, key string, size int64) (upload.ChunkWriter, error)
	// Remove deletes keys. Missing keys are not an error. A partial failure
	// is reported as *RemoveError.
	Remove(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, key string) (bool, error)
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// RemoveError lists the keys that could not be removed.
type RemoveError struct {
	Failed map[string]error
}

func (e *RemoveError) Error() string {
	keys := make([]string, 0, len(e.Failed))
	for k := range e.Failed {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %v", k, e.Failed[k]))
	}
	return "remove failed for " + strings.Join(parts, "; ")
}

// FailedKey reports whether key is among the failures.
func (e *RemoveError) FailedKey(key string) bool {
	_, ok := e.Failed[key]
	return ok
}

// chunkCursor implements the index discipline shared by both backends.
type chunkCursor struct {
	next   int
	closed bool
}

// accept reports whether index must be written (true), is a harmless
// repeat (false, nil) or is invalid.
func (c *chunkCursor) accept(index int) (bool, error) {
	switch {
	case c.closed:
		return false, ErrSessionClosed
	case index == c.next:
		return true, nil
	case index == c.next-1:
		return false, nil
	default:
		return false, fmt.Errorf("%w: got %d, want %d", ErrOutOfOrder, index, c.next)
	}
}
