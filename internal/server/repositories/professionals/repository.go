package professionals

import (
	"context"

	"github.com/dmitrijs2005/taxdesk/internal/server/models"
)

type Repository interface {
	GetByUserID(ctx context.Context, userID string) (*models.Professional, error)
	GetProfile(ctx context.Context, userID string) (*models.UserProfile, error)
	// ListVerified returns verified profiles, newest first.
	ListVerified(ctx context.Context) ([]*models.Professional, error)
	// GetVerifiedByID returns common.ErrorNotFound for unknown and
	// unverified profiles alike.
	GetVerifiedByID(ctx context.Context, id string) (*models.Professional, error)
}
