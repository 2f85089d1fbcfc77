package upload

import "context"

// Target is the blob store seen by the engine.
type Target interface {
	// Put stores data under key. With overwrite false the call must fail
	// if the key already exists.
	Put(ctx context.Context, key string, data []byte, overwrite bool) error
	// BeginChunked opens an append session for a new object under key.
	// Opening a session never replaces an existing object.
	BeginChunked(ctx context.Context, key string, size int64) (ChunkWriter, error)
}

// ChunkWriter appends chunks in index order. Re-sending the most recently
// acknowledged index is a no-op so a retry after a lost acknowledgement is
// safe.
type ChunkWriter interface {
	WriteChunk(ctx context.Context, index int, data []byte) error
	// Complete makes the object visible under its key.
	Complete(ctx context.Context) error
	// Abort discards the session and any data written so far.
	Abort(ctx context.Context) error
}
