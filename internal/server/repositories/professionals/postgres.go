package professionals

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/taxdesk/internal/common"
	"github.com/dmitrijs2005/taxdesk/internal/dbx"
	"github.com/dmitrijs2005/taxdesk/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) GetByUserID(ctx context.Context, userID string) (*models.Professional, error) {
	query :=
		`SELECT id, user_id, display_name, verified, created_at FROM professionals
		 WHERE user_id = $1
		 `

	p := &models.Professional{}
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&p.ID, &p.UserID, &p.DisplayName, &p.Verified, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return p, nil
}

func (r *PostgresRepository) GetProfile(ctx context.Context, userID string) (*models.UserProfile, error) {
	query :=
		`SELECT user_id, email FROM user_profiles
		 WHERE user_id = $1
		 `

	p := &models.UserProfile{}
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&p.UserID, &p.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return p, nil
}

const directoryColumns = `id, user_id, display_name, verified, created_at, email, profile_image_url,
		 specialties, location, introduction, rating, review_count`

type scanner interface {
	Scan(dest ...any) error
}

func scanDirectoryEntry(s scanner) (*models.Professional, error) {
	var (
		p           models.Professional
		specialties []byte
	)
	err := s.Scan(&p.ID, &p.UserID, &p.DisplayName, &p.Verified, &p.CreatedAt, &p.Email, &p.ProfileImageURL,
		&specialties, &p.Location, &p.Introduction, &p.Rating, &p.ReviewCount)
	if err != nil {
		return nil, err
	}
	p.Specialties = []string{}
	if len(specialties) > 0 && string(specialties) != "null" {
		if err := json.Unmarshal(specialties, &p.Specialties); err != nil {
			return nil, fmt.Errorf("decode specialties of %s: %w", p.ID, err)
		}
	}
	return &p, nil
}

func (r *PostgresRepository) ListVerified(ctx context.Context) ([]*models.Professional, error) {
	query :=
		`SELECT ` + directoryColumns + ` FROM professionals
		 WHERE verified
		 ORDER BY created_at DESC
		 `

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	result := make([]*models.Professional, 0)
	for rows.Next() {
		p, err := scanDirectoryEntry(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

func (r *PostgresRepository) GetVerifiedByID(ctx context.Context, id string) (*models.Professional, error) {
	query :=
		`SELECT ` + directoryColumns + ` FROM professionals
		 WHERE id = $1 AND verified
		 `

	p, err := scanDirectoryEntry(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return p, nil
}
