// Package session keeps the caller's identity as an explicit value. One
// watcher goroutine owns the refresh and pushes changes into a Holder;
// operations read a snapshot and pass it down instead of consulting
// globals.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/taxdesk/internal/filing"
	"github.com/dmitrijs2005/taxdesk/internal/logging"
)

// Context is the identity snapshot handed to every operation.
type Context struct {
	UserID                string `json:"userId"`
	Authenticated         bool   `json:"isAuthenticated"`
	VerifiedProfessional  bool   `json:"isVerifiedProfessional"`
	ProfessionalProfileID string `json:"professionalProfileId,omitempty"`
	Operator              bool   `json:"isOperator,omitempty"`
}

// Actor converts the snapshot to the domain identity.
func (c Context) Actor() filing.Actor {
	return filing.Actor{
		UserID:               c.UserID,
		ProfessionalID:       c.ProfessionalProfileID,
		VerifiedProfessional: c.VerifiedProfessional,
		Operator:             c.Operator,
	}
}

// Resolver fetches the current identity, e.g. from GET /v1/me.
type Resolver interface {
	Me(ctx context.Context) (Context, error)
}

// Holder stores the latest snapshot.
type Holder struct {
	mu       sync.RWMutex
	current  Context
	resolver Resolver
	logger   logging.Logger
	onChange func(old, cur Context)
}

func NewHolder(r Resolver, l logging.Logger) *Holder {
	return &Holder{resolver: r, logger: l.With("module", "session")}
}

// OnChange registers fn, called from the refreshing goroutine whenever the
// snapshot differs from the previous one.
func (h *Holder) OnChange(fn func(old, cur Context)) {
	h.mu.Lock()
	h.onChange = fn
	h.mu.Unlock()
}

// Current returns the latest snapshot.
func (h *Holder) Current() Context {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// Refresh resolves the identity once. A failed lookup leaves the session
// unauthenticated rather than keeping stale credentials.
func (h *Holder) Refresh(ctx context.Context) error {
	next, err := h.resolver.Me(ctx)
	if err != nil {
		next = Context{}
	}

	h.mu.Lock()
	old := h.current
	h.current = next
	fn := h.onChange
	h.mu.Unlock()

	if old != next && fn != nil {
		fn(old, next)
	}
	return err
}

// Watch refreshes on every tick until ctx is done. It is the only writer
// besides explicit Refresh calls.
func (h *Holder) Watch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rctx, cancel := context.WithTimeout(ctx, 3*time.Second)
			if err := h.Refresh(rctx); err != nil {
				h.logger.Warn(ctx, "identity refresh failed", "error", err)
			}
			cancel()

		case <-ctx.Done():
			return
		}
	}
}
