package services

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/dmitrijs2005/taxdesk/internal/common"
	"github.com/dmitrijs2005/taxdesk/internal/dbx"
	"github.com/dmitrijs2005/taxdesk/internal/filing"
	"github.com/dmitrijs2005/taxdesk/internal/logging"
	"github.com/dmitrijs2005/taxdesk/internal/server/blob"
	"github.com/dmitrijs2005/taxdesk/internal/server/repositories/repomanager"
)

const (
	// DashboardRecent is how many recent requests the dashboard lists.
	DashboardRecent = 5
	// EmailUnavailable replaces a client email that could not be looked up.
	EmailUnavailable = "unavailable"
)

// Detail is a request as shown to one of its parties.
type Detail struct {
	Request *filing.Request `json:"request"`
	Role    filing.Role     `json:"role"`
	// ClientEmail is only filled for the assigned professional.
	ClientEmail string `json:"clientEmail,omitempty"`
}

// RetainedFile is an attachment the caller asked to drop whose object
// could not be deleted; it stays listed.
type RetainedFile struct {
	Path string `json:"path"`
	Err  string `json:"error"`
}

// EditReport tells the caller which removals took effect.
type EditReport struct {
	Removed  []string       `json:"removed"`
	Retained []RetainedFile `json:"retained"`
}

// RequestService implements the request lifecycle: creation, edits,
// listings and status transitions.
type RequestService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	store       blob.Store
	logger      logging.Logger
	now         func() time.Time
}

func NewRequestService(db *sql.DB, m repomanager.RepositoryManager, store blob.Store, l logging.Logger) *RequestService {
	return &RequestService{
		db:          db,
		repomanager: m,
		store:       store,
		logger:      l.With("module", "requests"),
		now:         time.Now,
	}
}

// Create validates the draft and inserts a submitted request owned by the
// actor together with files uploaded beforehand.
func (s *RequestService) Create(ctx context.Context, actor filing.Actor, d filing.Draft, files []filing.AttachedFile) (*filing.Request, error) {
	if actor.UserID == "" {
		return nil, common.ErrorUnauthorized
	}

	d.Normalize()
	if err := d.Validate(s.now()); err != nil {
		return nil, err
	}
	if err := verifyUploaded(ctx, s.store, actor.UserID, files); err != nil {
		return nil, err
	}

	r := &filing.Request{
		OwnerID:         actor.UserID,
		TaxYear:         d.TaxYear,
		IncomeType:      d.IncomeType,
		EstimatedIncome: d.EstimatedIncome,
		Details:         d.Details,
		Status:          filing.StatusSubmitted,
		AttachedFiles:   filing.MergeFiles(nil, files),
		PaymentStatus:   filing.PaymentPending,
	}
	if err := s.repomanager.Requests(s.db).Insert(ctx, r); err != nil {
		s.logger.Error(ctx, "insert request", "owner", actor.UserID, "error", err)
		return nil, &common.PersistError{Op: "insert", ID: r.ID, Err: err}
	}

	s.logger.Info(ctx, "request created", "id", r.ID, "owner", r.OwnerID, "files", len(r.AttachedFiles))
	return r, nil
}

// Get returns the request to its owner, its assigned professional or an
// operator. A failed client email lookup degrades to EmailUnavailable.
func (s *RequestService) Get(ctx context.Context, actor filing.Actor, id string) (*Detail, error) {
	r, err := s.repomanager.Requests(s.db).FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	role, ok := actor.RoleFor(r)
	if !ok {
		return nil, &common.AuthorizationError{Actor: actor.UserID, Op: "view", Reason: "no relationship with request " + id}
	}

	d := &Detail{Request: r, Role: role}
	if role == filing.RoleProfessional {
		d.ClientEmail = EmailUnavailable
		p, err := s.repomanager.Professionals(s.db).GetProfile(ctx, r.OwnerID)
		switch {
		case err != nil:
			s.logger.Warn(ctx, "client profile lookup failed", "owner", r.OwnerID, "error", err)
		case p.Email != "":
			d.ClientEmail = p.Email
		}
	}
	return d, nil
}

// ListOwned returns the actor's own requests, newest first.
func (s *RequestService) ListOwned(ctx context.Context, actor filing.Actor) ([]*filing.Request, error) {
	if actor.UserID == "" {
		return nil, common.ErrorUnauthorized
	}
	return s.repomanager.Requests(s.db).ListByOwner(ctx, actor.UserID)
}

// ListAssigned returns the requests assigned to a verified professional,
// oldest first.
func (s *RequestService) ListAssigned(ctx context.Context, actor filing.Actor) ([]*filing.Request, error) {
	if err := requireProfessional(actor, "list assigned"); err != nil {
		return nil, err
	}
	return s.repomanager.Requests(s.db).ListByProfessional(ctx, actor.ProfessionalID, 0)
}

// Dashboard counts a professional's requests by status and lists the most
// recent ones.
func (s *RequestService) Dashboard(ctx context.Context, actor filing.Actor) (*filing.Dashboard, error) {
	if err := requireProfessional(actor, "dashboard"); err != nil {
		return nil, err
	}
	repo := s.repomanager.Requests(s.db)

	counts, err := repo.CountByStatus(ctx, actor.ProfessionalID)
	if err != nil {
		return nil, err
	}
	recent, err := repo.ListRecentByProfessional(ctx, actor.ProfessionalID, DashboardRecent)
	if err != nil {
		return nil, err
	}

	d := &filing.Dashboard{
		Assigned:   counts[filing.StatusAssigned],
		Processing: counts[filing.StatusProcessing],
		Completed:  counts[filing.StatusCompleted],
		Recent:     make([]filing.Request, 0, len(recent)),
	}
	for _, r := range recent {
		d.Recent = append(d.Recent, *r)
	}
	return d, nil
}

// Cancel moves the owner's submitted request to cancelled.
func (s *RequestService) Cancel(ctx context.Context, actor filing.Actor, id string) (*filing.Request, error) {
	return s.transition(ctx, actor, id, filing.StatusCancelled)
}

// Start moves an assigned request to processing.
func (s *RequestService) Start(ctx context.Context, actor filing.Actor, id string) (*filing.Request, error) {
	return s.transition(ctx, actor, id, filing.StatusProcessing)
}

// Complete moves a processing request to completed.
func (s *RequestService) Complete(ctx context.Context, actor filing.Actor, id string) (*filing.Request, error) {
	return s.transition(ctx, actor, id, filing.StatusCompleted)
}

// transition validates the move against the persisted status and writes
// it conditionally on that status still holding.
func (s *RequestService) transition(ctx context.Context, actor filing.Actor, id string, to filing.Status) (*filing.Request, error) {
	repo := s.repomanager.Requests(s.db)

	r, err := repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	role, ok := actor.RoleFor(r)
	if !ok {
		return nil, &common.AuthorizationError{Actor: actor.UserID, Op: "change status", Reason: "no relationship with request " + id}
	}
	if err := filing.CheckTransition(role, r.Status, to); err != nil {
		return nil, err
	}

	ok, err = repo.UpdateStatusIfCurrent(ctx, id, r.Status, to)
	if err != nil {
		return nil, &common.PersistError{Op: "update status", ID: id, Err: err}
	}
	if !ok {
		return nil, &common.StaleStateError{ID: id, Expected: string(r.Status)}
	}

	s.logger.Info(ctx, "status changed", "id", id, "role", role, "from", r.Status, "to", to)
	r.Status = to
	return r, nil
}

// Assign hands a submitted request to a professional. Only operators may
// do this.
func (s *RequestService) Assign(ctx context.Context, actor filing.Actor, id, professionalID string) (*filing.Request, error) {
	if !actor.Operator {
		return nil, &common.AuthorizationError{Actor: actor.UserID, Op: "assign", Reason: "operator role required"}
	}
	if professionalID == "" {
		return nil, &common.ValidationError{Reason: common.InvalidField, Field: "professionalId", Detail: "required"}
	}
	repo := s.repomanager.Requests(s.db)

	r, err := repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := filing.CheckTransition(filing.RoleOperator, r.Status, filing.StatusAssigned); err != nil {
		return nil, err
	}

	ok, err := repo.AssignIfSubmitted(ctx, id, professionalID)
	if err != nil {
		return nil, &common.PersistError{Op: "assign", ID: id, Err: err}
	}
	if !ok {
		return nil, &common.StaleStateError{ID: id, Expected: string(filing.StatusSubmitted)}
	}

	s.logger.Info(ctx, "request assigned", "id", id, "professional", professionalID)
	r.Status = filing.StatusAssigned
	r.AssignedProfessionalID = &professionalID
	return r, nil
}

// Edit updates the draft fields of a submitted request and reconciles its
// attachments: persisted files missing from keep are deleted from storage,
// then keep plus added is saved. Files whose deletion failed stay listed
// and are reported in EditReport.Retained.
func (s *RequestService) Edit(ctx context.Context, actor filing.Actor, id string, d filing.Draft, keep []string, added []filing.AttachedFile) (*filing.Request, *EditReport, error) {
	d.Normalize()
	if err := d.Validate(s.now()); err != nil {
		return nil, nil, err
	}

	var (
		out    *filing.Request
		report = &EditReport{Removed: []string{}, Retained: []RetainedFile{}}
	)
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Requests(tx)

		r, err := repo.LockByID(ctx, id)
		if err != nil {
			return err
		}
		if _, err := gate(actor, r, "edit", filing.CanEdit); err != nil {
			return err
		}

		kept := make(map[string]struct{}, len(keep))
		for _, p := range keep {
			if _, ok := r.FindFile(p); !ok {
				return &common.ValidationError{Reason: common.InvalidField, Field: "keep", Detail: p + " is not attached"}
			}
			kept[p] = struct{}{}
		}
		if err := verifyUploaded(ctx, s.store, actor.UserID, added); err != nil {
			return err
		}

		var drop []string
		for _, f := range r.AttachedFiles {
			if _, ok := kept[f.Path]; !ok {
				drop = append(drop, f.Path)
			}
		}

		failed := s.removeObjects(ctx, drop)
		remaining := make([]filing.AttachedFile, 0, len(r.AttachedFiles))
		for _, f := range r.AttachedFiles {
			_, isKept := kept[f.Path]
			_, isFailed := failed[f.Path]
			if isKept || isFailed {
				remaining = append(remaining, f)
			}
		}
		for _, p := range drop {
			if err, ok := failed[p]; ok {
				report.Retained = append(report.Retained, RetainedFile{Path: p, Err: err.Error()})
			} else {
				report.Removed = append(report.Removed, p)
			}
		}

		files := filing.MergeFiles(remaining, added)
		ok, err := repo.UpdateDraftIfStatus(ctx, id, r.Status, d, files)
		if err != nil {
			return &common.PersistError{Op: "edit", ID: id, Err: err}
		}
		if !ok {
			return &common.StaleStateError{ID: id, Expected: string(r.Status)}
		}

		r.TaxYear, r.IncomeType, r.EstimatedIncome, r.Details = d.TaxYear, d.IncomeType, d.EstimatedIncome, d.Details
		r.AttachedFiles = files
		out = r
		return nil
	})
	if err != nil {
		s.logger.Warn(ctx, "edit rejected", "id", id, "error", err)
		return nil, nil, err
	}

	if len(report.Retained) > 0 {
		s.logger.Warn(ctx, "edit saved with retained files", "id", id, "retained", len(report.Retained))
	}
	return out, report, nil
}

// removeObjects deletes keys and returns the failures by key.
func (s *RequestService) removeObjects(ctx context.Context, keys []string) map[string]error {
	failed := map[string]error{}
	if len(keys) == 0 {
		return failed
	}

	err := s.store.Remove(ctx, keys...)
	if err == nil {
		return failed
	}

	var re *blob.RemoveError
	if errors.As(err, &re) {
		return re.Failed
	}
	for _, k := range keys {
		failed[k] = err
	}
	return failed
}

func requireProfessional(actor filing.Actor, op string) error {
	if actor.UserID == "" {
		return common.ErrorUnauthorized
	}
	if !actor.VerifiedProfessional || actor.ProfessionalID == "" {
		return &common.AuthorizationError{Actor: actor.UserID, Op: op, Reason: "verified professional required"}
	}
	return nil
}
