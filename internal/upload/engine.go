// Package upload transfers attachment files to a blob store. Small files go
// up in one request; larger ones are split into fixed-size chunks appended
// through a session. Every request is retried under a shared Policy and
// progress is reported after each acknowledged chunk.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dmitrijs2005/taxdesk/internal/common"
	"github.com/dmitrijs2005/taxdesk/internal/cryptox"
	"github.com/dmitrijs2005/taxdesk/internal/filing"
	"github.com/dmitrijs2005/taxdesk/internal/logging"
)

const (
	DefaultChunkSize  = 2 * common.MiB
	DefaultMaxRetries = 3
	DefaultBackoff    = time.Second

	// FailedPercent marks a task that ended in failure.
	FailedPercent = -1
)

// File is one file queued for transfer.
type File struct {
	Name    string
	Type    string
	Size    int64
	Content io.ReaderAt
}

// Task reports the progress of the file currently being transferred.
type Task struct {
	File            string
	Key             string
	TotalChunks     int
	ChunksCompleted int
	// Retries counts failed attempts of the chunk in flight.
	Retries int
	Percent int
}

// ProgressFunc receives a snapshot after every state change of a task.
type ProgressFunc func(Task)

// Engine uploads files sequentially to a Target.
type Engine struct {
	target    Target
	chunkSize int64
	policy    Policy
	logger    logging.Logger

	now   func() time.Time
	sleep SleepFunc
}

// Option configures an Engine.
type Option func(*Engine)

func WithChunkSize(n int64) Option {
	return func(e *Engine) {
		if n > 0 {
			e.chunkSize = n
		}
	}
}

// WithRetry sets the attempt limit and the base of the linear backoff.
func WithRetry(maxAttempts int, backoffBase time.Duration) Option {
	return func(e *Engine) {
		if maxAttempts > 0 {
			e.policy.MaxAttempts = maxAttempts
		}
		if backoffBase >= 0 {
			e.policy.Backoff = LinearBackoff(backoffBase)
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithSleep(sleep SleepFunc) Option {
	return func(e *Engine) { e.sleep = sleep }
}

func NewEngine(target Target, l logging.Logger, opts ...Option) *Engine {
	e := &Engine{
		target:    target,
		chunkSize: DefaultChunkSize,
		policy:    Policy{MaxAttempts: DefaultMaxRetries, Backoff: LinearBackoff(DefaultBackoff)},
		logger:    l.With("module", "upload"),
		now:       time.Now,
		sleep:     sleepCtx,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// ChunkSize returns the chunk threshold in bytes.
func (e *Engine) ChunkSize() int64 { return e.chunkSize }

// TotalChunks is ceil(size/chunkSize), with at least one request per file.
func (e *Engine) TotalChunks(size int64) int {
	if size <= e.chunkSize {
		return 1
	}
	return int((size + e.chunkSize - 1) / e.chunkSize)
}

// UploadBatch transfers files one after another under uploaderID (and
// requestID when non-empty). It stops at the first failure and returns
// a *common.TransferError; descriptors are only returned when every file
// succeeded, so callers commit all of them or none.
func (e *Engine) UploadBatch(ctx context.Context, uploaderID, requestID string, files []File, progress ProgressFunc) ([]filing.AttachedFile, error) {
	if progress == nil {
		progress = func(Task) {}
	}

	out := make([]filing.AttachedFile, 0, len(files))
	used := make(map[string]struct{}, len(files))

	for i, f := range files {
		key := e.uniqueKey(uploaderID, requestID, f.Name, used)

		af, err := e.UploadFile(ctx, key, f, progress)
		if err != nil {
			e.logger.Error(ctx, "batch aborted", "file", f.Name, "index", i, "remaining", len(files)-i-1, "error", err)
			return nil, err
		}
		out = append(out, af)
	}

	return out, nil
}

// uniqueKey bumps the timestamp until the key is unused within the batch,
// so two same-named files never share a key.
func (e *Engine) uniqueKey(uploaderID, requestID, name string, used map[string]struct{}) string {
	at := e.now()
	for {
		key := filing.StorageKey(uploaderID, requestID, at, name)
		if _, dup := used[key]; !dup {
			used[key] = struct{}{}
			return key
		}
		at = at.Add(time.Millisecond)
	}
}

// UploadFile transfers one file under key.
func (e *Engine) UploadFile(ctx context.Context, key string, f File, progress ProgressFunc) (filing.AttachedFile, error) {
	if progress == nil {
		progress = func(Task) {}
	}

	task := Task{File: f.Name, Key: key, TotalChunks: e.TotalChunks(f.Size)}
	progress(task)

	var (
		checksum string
		err      error
	)
	if task.TotalChunks == 1 && f.Size <= e.chunkSize {
		checksum, err = e.singleShot(ctx, key, f, &task, progress)
	} else {
		checksum, err = e.chunked(ctx, key, f, &task, progress)
	}
	if err != nil {
		task.Percent = FailedPercent
		progress(task)
		return filing.AttachedFile{}, err
	}

	return filing.AttachedFile{
		Name:       f.Name,
		Path:       key,
		Size:       f.Size,
		Type:       f.Type,
		UploadedAt: e.now().UTC(),
		Checksum:   checksum,
	}, nil
}

func (e *Engine) singleShot(ctx context.Context, key string, f File, task *Task, progress ProgressFunc) (string, error) {
	data := make([]byte, f.Size)
	if err := readFull(f.Content, data, 0); err != nil {
		return "", &common.TransferError{File: f.Name, SingleShot: true, Err: err}
	}

	attempts, err := Retry(ctx, e.policy, e.sleep, func(ctx context.Context, attempt int) error {
		// a previous attempt may have landed without an acknowledgement
		err := e.target.Put(ctx, key, data, attempt > 1)
		if err != nil {
			task.Retries = attempt
			progress(*task)
			e.logger.Warn(ctx, "upload attempt failed", "file", f.Name, "key", key, "attempt", attempt, "error", err)
		}
		return err
	})
	if err != nil {
		return "", &common.TransferError{File: f.Name, SingleShot: true, Attempts: attempts, Err: err}
	}

	task.ChunksCompleted, task.Retries, task.Percent = 1, 0, 100
	progress(*task)
	e.logger.Debug(ctx, "uploaded", "file", f.Name, "key", key, "size", f.Size)

	return cryptox.ChecksumBytes(data), nil
}

func (e *Engine) chunked(ctx context.Context, key string, f File, task *Task, progress ProgressFunc) (string, error) {
	var session ChunkWriter
	abort := func() {
		if session == nil {
			return
		}
		// best effort; the failure being reported matters more
		if err := session.Abort(context.WithoutCancel(ctx)); err != nil {
			e.logger.Warn(ctx, "abort upload session", "key", key, "error", err)
		}
	}

	sum := cryptox.NewChecksum()
	buf := make([]byte, e.chunkSize)

	for index := 0; index < task.TotalChunks; index++ {
		off := int64(index) * e.chunkSize
		n := min(e.chunkSize, f.Size-off)
		chunk := buf[:n]
		if err := readFull(f.Content, chunk, off); err != nil {
			abort()
			return "", &common.TransferError{File: f.Name, Chunk: index, Err: err}
		}

		last := index == task.TotalChunks-1
		task.Retries = 0

		attempts, err := Retry(ctx, e.policy, e.sleep, func(ctx context.Context, attempt int) error {
			err := e.sendChunk(ctx, &session, key, f.Size, index, chunk, last)
			if err != nil {
				task.Retries = attempt
				progress(*task)
				e.logger.Warn(ctx, "chunk attempt failed", "file", f.Name, "chunk", index, "attempt", attempt, "error", err)
			}
			return err
		})
		if err != nil {
			abort()
			return "", &common.TransferError{File: f.Name, Chunk: index, Attempts: attempts, Err: err}
		}

		_, _ = sum.Write(chunk)
		task.ChunksCompleted = index + 1
		task.Percent = percent(task.ChunksCompleted, task.TotalChunks)
		progress(*task)
		e.logger.Debug(ctx, "chunk acknowledged", "file", f.Name, "chunk", index, "of", task.TotalChunks)
	}

	return sum.Hex(), nil
}

// sendChunk opens the session on first use, appends the chunk, and seals
// the object after the last one. Each step is safe to repeat.
func (e *Engine) sendChunk(ctx context.Context, session *ChunkWriter, key string, size int64, index int, data []byte, last bool) error {
	if *session == nil {
		s, err := e.target.BeginChunked(ctx, key, size)
		if err != nil {
			return fmt.Errorf("begin session: %w", err)
		}
		*session = s
	}
	if err := (*session).WriteChunk(ctx, index, data); err != nil {
		return err
	}
	if last {
		if err := (*session).Complete(ctx); err != nil {
			return fmt.Errorf("complete: %w", err)
		}
	}
	return nil
}

func percent(done, total int) int {
	if total == 0 {
		return 100
	}
	return int(float64(done)/float64(total)*100 + 0.5)
}

func readFull(r io.ReaderAt, p []byte, off int64) error {
	if len(p) == 0 {
		return nil
	}
	n, err := r.ReadAt(p, off)
	if n == len(p) {
		return nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}
