package requests

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/taxdesk/internal/common"
	"github.com/dmitrijs2005/taxdesk/internal/dbx"
	"github.com/dmitrijs2005/taxdesk/internal/filing"
	"github.com/google/uuid"
)

const columns = `id, user_id, assigned_professional_id, tax_year, income_type, estimated_income,
	details, status, attached_files, fee, payment_status, created_at`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// newID is swapped in tests.
var newID = func() string { return uuid.NewString() }

func (r *PostgresRepository) Insert(ctx context.Context, req *filing.Request) error {
	if req.ID == "" {
		req.ID = newID()
	}
	files, err := encodeFiles(req.AttachedFiles)
	if err != nil {
		return err
	}

	query := `INSERT INTO filing_requests (id, user_id, tax_year, income_type, estimated_income,
			details, status, attached_files, fee, payment_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at`

	err = r.db.QueryRowContext(ctx, query, req.ID, req.OwnerID, req.TaxYear, string(req.IncomeType),
		req.EstimatedIncome, req.Details, string(req.Status), files, req.Fee, string(req.PaymentStatus),
	).Scan(&req.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert filing request: %w", err)
	}
	return nil
}

func (r *PostgresRepository) FindByID(ctx context.Context, id string) (*filing.Request, error) {
	query := `SELECT ` + columns + ` FROM filing_requests WHERE id = $1`
	return r.one(ctx, query, id)
}

func (r *PostgresRepository) LockByID(ctx context.Context, id string) (*filing.Request, error) {
	query := `SELECT ` + columns + ` FROM filing_requests WHERE id = $1 FOR UPDATE`
	return r.one(ctx, query, id)
}

func (r *PostgresRepository) ListByOwner(ctx context.Context, ownerID string) ([]*filing.Request, error) {
	query := `SELECT ` + columns + ` FROM filing_requests WHERE user_id = $1 ORDER BY created_at DESC`
	return r.many(ctx, query, ownerID)
}

func (r *PostgresRepository) ListByProfessional(ctx context.Context, professionalID string, limit int) ([]*filing.Request, error) {
	return r.listAssigned(ctx, professionalID, "ASC", limit)
}

func (r *PostgresRepository) ListRecentByProfessional(ctx context.Context, professionalID string, limit int) ([]*filing.Request, error) {
	return r.listAssigned(ctx, professionalID, "DESC", limit)
}

func (r *PostgresRepository) listAssigned(ctx context.Context, professionalID, order string, limit int) ([]*filing.Request, error) {
	var b strings.Builder
	b.WriteString(`SELECT ` + columns + ` FROM filing_requests WHERE assigned_professional_id = $1 ORDER BY created_at `)
	b.WriteString(order)
	args := []any{professionalID}
	if limit > 0 {
		b.WriteString(` LIMIT $2`)
		args = append(args, limit)
	}
	return r.many(ctx, b.String(), args...)
}

func (r *PostgresRepository) CountByStatus(ctx context.Context, professionalID string) (map[filing.Status]int, error) {
	query := `SELECT status, COUNT(*) FROM filing_requests
		WHERE assigned_professional_id = $1 GROUP BY status`
	rows, err := r.db.QueryContext(ctx, query, professionalID)
	if err != nil {
		return nil, fmt.Errorf("count filing requests: %w", err)
	}
	defer rows.Close()

	out := make(map[filing.Status]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[filing.Status(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *PostgresRepository) UpdateStatusIfCurrent(ctx context.Context, id string, from, to filing.Status) (bool, error) {
	query := `UPDATE filing_requests SET status = $3 WHERE id = $1 AND status = $2`
	return r.exec(ctx, query, id, string(from), string(to))
}

func (r *PostgresRepository) AssignIfSubmitted(ctx context.Context, id, professionalID string) (bool, error) {
	query := `UPDATE filing_requests SET status = $3, assigned_professional_id = $4
		WHERE id = $1 AND status = $2`
	return r.exec(ctx, query, id, string(filing.StatusSubmitted), string(filing.StatusAssigned), professionalID)
}

func (r *PostgresRepository) AppendAttachments(ctx context.Context, req *filing.Request, files []filing.AttachedFile) (bool, error) {
	return r.writeFiles(ctx, req.ID, req.Status, filing.MergeFiles(req.AttachedFiles, files))
}

func (r *PostgresRepository) RemoveAttachment(ctx context.Context, req *filing.Request, path string) (bool, error) {
	return r.writeFiles(ctx, req.ID, req.Status, filing.WithoutFile(req.AttachedFiles, path))
}

func (r *PostgresRepository) writeFiles(ctx context.Context, id string, status filing.Status, files []filing.AttachedFile) (bool, error) {
	encoded, err := encodeFiles(files)
	if err != nil {
		return false, err
	}
	query := `UPDATE filing_requests SET attached_files = $3 WHERE id = $1 AND status = $2`
	return r.exec(ctx, query, id, string(status), encoded)
}

func (r *PostgresRepository) UpdateDraftIfStatus(ctx context.Context, id string, status filing.Status, d filing.Draft, files []filing.AttachedFile) (bool, error) {
	encoded, err := encodeFiles(files)
	if err != nil {
		return false, err
	}
	query := `UPDATE filing_requests
		SET tax_year = $3, income_type = $4, estimated_income = $5, details = $6, attached_files = $7
		WHERE id = $1 AND status = $2`
	return r.exec(ctx, query, id, string(status), d.TaxYear, string(d.IncomeType), d.EstimatedIncome, d.Details, encoded)
}

func (r *PostgresRepository) exec(ctx context.Context, query string, args ...any) (bool, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	ok, err := dbx.Affected(res)
	if err != nil {
		return false, fmt.Errorf("rows affected error: %w", err)
	}
	return ok, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRequest(s scanner) (*filing.Request, error) {
	var (
		req       filing.Request
		assigned  sql.NullString
		estimated sql.NullFloat64
		details   sql.NullString
		fee       sql.NullFloat64
		files     []byte
		income    string
		status    string
		payment   sql.NullString
	)
	err := s.Scan(&req.ID, &req.OwnerID, &assigned, &req.TaxYear, &income, &estimated,
		&details, &status, &files, &fee, &payment, &req.CreatedAt)
	if err != nil {
		return nil, err
	}

	req.IncomeType = filing.IncomeType(income)
	req.Status = filing.Status(status)
	req.PaymentStatus = filing.PaymentStatus(payment.String)
	if assigned.Valid {
		req.AssignedProfessionalID = &assigned.String
	}
	if estimated.Valid {
		req.EstimatedIncome = &estimated.Float64
	}
	if details.Valid {
		req.Details = &details.String
	}
	if fee.Valid {
		req.Fee = &fee.Float64
	}
	if req.AttachedFiles, err = decodeFiles(files); err != nil {
		return nil, fmt.Errorf("decode attached_files of %s: %w", req.ID, err)
	}
	return &req, nil
}

func (r *PostgresRepository) one(ctx context.Context, query string, args ...any) (*filing.Request, error) {
	req, err := scanRequest(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select filing request: %w", err)
	}
	return req, nil
}

func (r *PostgresRepository) many(ctx context.Context, query string, args ...any) ([]*filing.Request, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select filing requests: %w", err)
	}
	defer rows.Close()

	result := make([]*filing.Request, 0)
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, req)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// encodeFiles stores an empty list as NULL.
func encodeFiles(files []filing.AttachedFile) (any, error) {
	if len(files) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(files)
	if err != nil {
		return nil, fmt.Errorf("encode attached_files: %w", err)
	}
	return string(b), nil
}

func decodeFiles(b []byte) ([]filing.AttachedFile, error) {
	if len(b) == 0 || string(b) == "null" {
		return nil, nil
	}
	var files []filing.AttachedFile
	if err := json.Unmarshal(b, &files); err != nil {
		return nil, err
	}
	return files, nil
}
