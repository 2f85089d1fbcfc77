package services

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/taxdesk/internal/common"
	"github.com/dmitrijs2005/taxdesk/internal/logging"
	"github.com/dmitrijs2005/taxdesk/internal/server/blob"
)

// DefaultSignedURLTTL is the lifetime of retrieval links.
const DefaultSignedURLTTL = time.Hour

// Gateway issues time-limited retrieval links. It does not look at request
// status: whoever was shown a ledger entry may fetch it.
type Gateway struct {
	store  blob.Store
	ttl    time.Duration
	logger logging.Logger
	now    func() time.Time
}

func NewGateway(store blob.Store, ttl time.Duration, l logging.Logger) *Gateway {
	if ttl <= 0 {
		ttl = DefaultSignedURLTTL
	}
	return &Gateway{store: store, ttl: ttl, logger: l.With("module", "gateway"), now: time.Now}
}

// SignedURL returns a link to path and the moment it stops working.
func (g *Gateway) SignedURL(ctx context.Context, path string) (string, time.Time, error) {
	if path == "" {
		return "", time.Time{}, &common.ValidationError{Reason: common.InvalidField, Field: "path", Detail: "required"}
	}

	ok, err := g.store.Exists(ctx, path)
	if err != nil {
		return "", time.Time{}, &common.StorageError{Op: "exists", Key: path, Err: err}
	}
	if !ok {
		return "", time.Time{}, fmt.Errorf("object %q: %w", path, common.ErrorNotFound)
	}

	expires := g.now().Add(g.ttl)
	u, err := g.store.SignedURL(ctx, path, g.ttl)
	if err != nil {
		g.logger.Error(ctx, "sign url", "path", path, "error", err)
		return "", time.Time{}, &common.StorageError{Op: "sign", Key: path, Err: err}
	}
	return u, expires, nil
}
