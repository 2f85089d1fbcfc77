// Package requests persists filing requests. Every write that depends on
// the record's status is expressed as a predicate-guarded UPDATE and
// reports whether a row matched, so callers can surface stale state.
package requests

import (
	"context"

	"github.com/dmitrijs2005/taxdesk/internal/filing"
)

type Repository interface {
	// Insert stores r, filling in ID when empty and CreatedAt.
	Insert(ctx context.Context, r *filing.Request) error
	FindByID(ctx context.Context, id string) (*filing.Request, error)
	// LockByID reads the row with SELECT ... FOR UPDATE; use inside a tx.
	LockByID(ctx context.Context, id string) (*filing.Request, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*filing.Request, error)
	// ListByProfessional returns assigned requests oldest first; limit <= 0
	// means no limit.
	ListByProfessional(ctx context.Context, professionalID string, limit int) ([]*filing.Request, error)
	// ListRecentByProfessional returns assigned requests newest first.
	ListRecentByProfessional(ctx context.Context, professionalID string, limit int) ([]*filing.Request, error)
	CountByStatus(ctx context.Context, professionalID string) (map[filing.Status]int, error)

	UpdateStatusIfCurrent(ctx context.Context, id string, from, to filing.Status) (bool, error)
	AssignIfSubmitted(ctx context.Context, id, professionalID string) (bool, error)
	// AppendAttachments merges files into r's list by path and writes the
	// result if the row is still in r.Status.
	AppendAttachments(ctx context.Context, r *filing.Request, files []filing.AttachedFile) (bool, error)
	// RemoveAttachment drops path from r's list if the row is still in
	// r.Status.
	RemoveAttachment(ctx context.Context, r *filing.Request, path string) (bool, error)
	// UpdateDraftIfStatus writes the editable fields and the full
	// attachment list if the row is still in status.
	UpdateDraftIfStatus(ctx context.Context, id string, status filing.Status, d filing.Draft, files []filing.AttachedFile) (bool, error)
}
