package services

import (
	"context"
	"database/sql"
	"errors"

	"github.com/dmitrijs2005/taxdesk/internal/common"
	"github.com/dmitrijs2005/taxdesk/internal/filing"
	"github.com/dmitrijs2005/taxdesk/internal/logging"
	"github.com/dmitrijs2005/taxdesk/internal/server/models"
	"github.com/dmitrijs2005/taxdesk/internal/server/repositories/repomanager"
)

// DirectoryService lists verified professionals to signed-in users.
// Matching a user to one of them happens elsewhere.
type DirectoryService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	logger      logging.Logger
}

func NewDirectoryService(db *sql.DB, m repomanager.RepositoryManager, l logging.Logger) *DirectoryService {
	return &DirectoryService{db: db, repomanager: m, logger: l.With("module", "directory")}
}

// List returns verified professionals, newest first.
func (s *DirectoryService) List(ctx context.Context, actor filing.Actor) ([]*models.Professional, error) {
	if actor.UserID == "" {
		return nil, common.ErrorUnauthorized
	}
	pros, err := s.repomanager.Professionals(s.db).ListVerified(ctx)
	if err != nil {
		s.logger.Error(ctx, "list professionals", "error", err)
		return nil, &common.PersistError{Op: "list professionals", Err: err}
	}
	return pros, nil
}

// Get returns one verified professional. Unverified profiles are reported
// as not found.
func (s *DirectoryService) Get(ctx context.Context, actor filing.Actor, id string) (*models.Professional, error) {
	if actor.UserID == "" {
		return nil, common.ErrorUnauthorized
	}
	p, err := s.repomanager.Professionals(s.db).GetVerifiedByID(ctx, id)
	if errors.Is(err, common.ErrorNotFound) {
		return nil, err
	}
	if err != nil {
		s.logger.Error(ctx, "get professional", "id", id, "error", err)
		return nil, &common.PersistError{Op: "get professional", ID: id, Err: err}
	}
	return p, nil
}
