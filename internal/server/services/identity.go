package services

import (
	"context"
	"database/sql"
	"errors"

	"github.com/dmitrijs2005/taxdesk/internal/common"
	"github.com/dmitrijs2005/taxdesk/internal/filing"
	"github.com/dmitrijs2005/taxdesk/internal/server/repositories/repomanager"
)

// IdentityService turns an authenticated user id into the Actor passed to
// every other service.
type IdentityService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
}

func NewIdentityService(db *sql.DB, m repomanager.RepositoryManager) *IdentityService {
	return &IdentityService{db: db, repomanager: m}
}

// Resolve looks up the professional profile of userID, if any.
func (s *IdentityService) Resolve(ctx context.Context, userID string, operator bool) (filing.Actor, error) {
	if userID == "" {
		return filing.Actor{}, common.ErrorUnauthorized
	}
	a := filing.Actor{UserID: userID, Operator: operator}

	p, err := s.repomanager.Professionals(s.db).GetByUserID(ctx, userID)
	if errors.Is(err, common.ErrorNotFound) {
		return a, nil
	}
	if err != nil {
		return filing.Actor{}, &common.PersistError{Op: "resolve identity", ID: userID, Err: err}
	}

	a.ProfessionalID = p.ID
	a.VerifiedProfessional = p.Verified
	return a, nil
}
