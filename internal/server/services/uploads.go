package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/taxdesk/internal/common"
	"github.com/dmitrijs2005/taxdesk/internal/filing"
	"github.com/dmitrijs2005/taxdesk/internal/logging"
	"github.com/dmitrijs2005/taxdesk/internal/server/blob"
	"github.com/dmitrijs2005/taxdesk/internal/upload"
	"github.com/google/uuid"
)

// DefaultSessionIdle is how long an untouched chunk session survives.
const DefaultSessionIdle = 30 * time.Minute

var newSessionID = func() string { return uuid.NewString() }

type chunkSession struct {
	owner    string
	key      string
	writer   upload.ChunkWriter
	done     bool
	lastUsed time.Time
}

// UploadGateway is the storage side of remote uploads. Keys must sit
// under one of the caller's uploader ids. Chunk sessions live in memory;
// completed ones are kept until idle so a retried complete succeeds.
type UploadGateway struct {
	store  blob.Store
	idle   time.Duration
	logger logging.Logger
	now    func() time.Time

	mu       sync.Mutex
	sessions map[string]*chunkSession
}

func NewUploadGateway(store blob.Store, idle time.Duration, l logging.Logger) *UploadGateway {
	if idle <= 0 {
		idle = DefaultSessionIdle
	}
	return &UploadGateway{
		store:    store,
		idle:     idle,
		logger:   l.With("module", "uploads"),
		now:      time.Now,
		sessions: map[string]*chunkSession{},
	}
}

// Put stores a whole object.
func (g *UploadGateway) Put(ctx context.Context, actor filing.Actor, key string, data []byte, overwrite bool) error {
	if err := checkKey(actor, key); err != nil {
		return err
	}
	if err := g.store.Put(ctx, key, data, overwrite); err != nil {
		return &common.StorageError{Op: "put", Key: key, Err: err}
	}
	return nil
}

// Begin opens a chunk session for key and returns its id.
func (g *UploadGateway) Begin(ctx context.Context, actor filing.Actor, key string, size int64) (string, error) {
	if err := checkKey(actor, key); err != nil {
		return "", err
	}
	g.Sweep(ctx)

	w, err := g.store.BeginChunked(ctx, key, size)
	if err != nil {
		return "", &common.StorageError{Op: "begin", Key: key, Err: err}
	}

	id := newSessionID()
	g.mu.Lock()
	g.sessions[id] = &chunkSession{owner: actor.UserID, key: key, writer: w, lastUsed: g.now()}
	g.mu.Unlock()

	g.logger.Debug(ctx, "chunk session opened", "session", id, "key", key, "size", size)
	return id, nil
}

// WriteChunk appends chunk index to the session.
func (g *UploadGateway) WriteChunk(ctx context.Context, actor filing.Actor, id string, index int, data []byte) error {
	s, err := g.session(actor, id)
	if err != nil {
		return err
	}
	if err := s.writer.WriteChunk(ctx, index, data); err != nil {
		return &common.StorageError{Op: fmt.Sprintf("chunk %d", index), Key: s.key, Err: err}
	}
	return nil
}

// Complete seals the object. Repeating it after success is a no-op.
func (g *UploadGateway) Complete(ctx context.Context, actor filing.Actor, id string) (string, error) {
	s, err := g.session(actor, id)
	if err != nil {
		return "", err
	}
	if err := s.writer.Complete(ctx); err != nil {
		return "", &common.StorageError{Op: "complete", Key: s.key, Err: err}
	}

	g.mu.Lock()
	s.done = true
	g.mu.Unlock()

	g.logger.Debug(ctx, "chunk session completed", "session", id, "key", s.key)
	return s.key, nil
}

// Abort discards the session and its partial object.
func (g *UploadGateway) Abort(ctx context.Context, actor filing.Actor, id string) error {
	s, err := g.session(actor, id)
	if err != nil {
		return err
	}

	g.mu.Lock()
	delete(g.sessions, id)
	g.mu.Unlock()

	if err := s.writer.Abort(ctx); err != nil {
		return &common.StorageError{Op: "abort", Key: s.key, Err: err}
	}
	return nil
}

// Sweep drops sessions idle for longer than the idle limit, aborting the
// unfinished ones.
func (g *UploadGateway) Sweep(ctx context.Context) int {
	cutoff := g.now().Add(-g.idle)

	g.mu.Lock()
	var stale []*chunkSession
	for id, s := range g.sessions {
		if s.lastUsed.Before(cutoff) {
			delete(g.sessions, id)
			if !s.done {
				stale = append(stale, s)
			}
		}
	}
	g.mu.Unlock()

	for _, s := range stale {
		if err := s.writer.Abort(ctx); err != nil {
			g.logger.Warn(ctx, "abort idle session", "key", s.key, "error", err)
		}
	}
	return len(stale)
}

// Len returns the number of live sessions.
func (g *UploadGateway) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.sessions)
}

func (g *UploadGateway) session(actor filing.Actor, id string) (*chunkSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	s, ok := g.sessions[id]
	if !ok || s.owner != actor.UserID {
		return nil, fmt.Errorf("upload session %s: %w", id, common.ErrorNotFound)
	}
	s.lastUsed = g.now()
	return s, nil
}

// checkKey accepts keys under the actor's user id or, for a verified
// professional, under the professional profile id.
func checkKey(actor filing.Actor, key string) error {
	if actor.UserID == "" {
		return common.ErrorUnauthorized
	}
	if filing.OwnsPath(actor.UserID, key) {
		return nil
	}
	if actor.VerifiedProfessional && filing.OwnsPath(actor.ProfessionalID, key) {
		return nil
	}
	return &common.AuthorizationError{Actor: actor.UserID, Op: "upload", Reason: fmt.Sprintf("%q is outside the uploader prefix", key)}
}
