// Package services contains server-side business logic. Ledger keeps the
// attachment list of a filing request consistent with the blob store: an
// object is always uploaded before it is listed and removed before it is
// unlisted, so the ledger never references a missing object.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/taxdesk/internal/common"
	"github.com/dmitrijs2005/taxdesk/internal/dbx"
	"github.com/dmitrijs2005/taxdesk/internal/filing"
	"github.com/dmitrijs2005/taxdesk/internal/logging"
	"github.com/dmitrijs2005/taxdesk/internal/server/blob"
	"github.com/dmitrijs2005/taxdesk/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/taxdesk/internal/upload"
)

type Ledger struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	store       blob.Store
	engine      *upload.Engine
	logger      logging.Logger
}

// NewLedger wires the ledger. engine may be nil when the server does not
// accept multipart uploads.
func NewLedger(db *sql.DB, m repomanager.RepositoryManager, store blob.Store, engine *upload.Engine, l logging.Logger) *Ledger {
	return &Ledger{
		db:          db,
		repomanager: m,
		store:       store,
		engine:      engine,
		logger:      l.With("module", "ledger"),
	}
}

// CommitNewFiles appends files to the request's list. The objects must
// already exist under the actor's uploader prefix. The row is locked and
// the gating table is checked against its persisted status.
func (l *Ledger) CommitNewFiles(ctx context.Context, actor filing.Actor, requestID string, files []filing.AttachedFile) (*filing.Request, error) {
	if len(files) == 0 {
		return nil, &common.ValidationError{Reason: common.InvalidField, Field: "files", Detail: "no files to commit"}
	}

	var out *filing.Request
	err := dbx.WithTx(ctx, l.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := l.repomanager.Requests(tx)

		r, err := repo.LockByID(ctx, requestID)
		if err != nil {
			return err
		}

		role, err := gate(actor, r, "add", filing.CanAdd)
		if err != nil {
			return err
		}
		if err := verifyUploaded(ctx, l.store, actor.UploaderID(role), files); err != nil {
			return err
		}

		ok, err := repo.AppendAttachments(ctx, r, files)
		if err != nil {
			return &common.PersistError{Op: "append attachments", ID: r.ID, Err: err}
		}
		if !ok {
			return &common.StaleStateError{ID: r.ID, Expected: string(r.Status)}
		}

		r.AttachedFiles = filing.MergeFiles(r.AttachedFiles, files)
		out = r
		return nil
	})
	if err != nil {
		l.logger.Warn(ctx, "commit rejected", "request", requestID, "files", len(files), "error", err)
		return nil, err
	}

	l.logger.Info(ctx, "attachments committed", "request", requestID, "files", len(files))
	return out, nil
}

// RemoveFile deletes one attachment the actor uploaded. The object goes
// first; if that fails the list is left as it was.
func (l *Ledger) RemoveFile(ctx context.Context, actor filing.Actor, requestID, path string) (*filing.Request, error) {
	var out *filing.Request
	err := dbx.WithTx(ctx, l.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := l.repomanager.Requests(tx)

		r, err := repo.LockByID(ctx, requestID)
		if err != nil {
			return err
		}

		role, err := gate(actor, r, "remove", filing.CanDelete)
		if err != nil {
			return err
		}
		if _, ok := r.FindFile(path); !ok {
			return fmt.Errorf("attachment %q: %w", path, common.ErrorNotFound)
		}
		if uploader := actor.UploaderID(role); !filing.OwnsPath(uploader, path) {
			return &common.AuthorizationError{Actor: uploader, Op: "remove", Reason: "file was uploaded by someone else"}
		}

		if err := l.store.Remove(ctx, path); err != nil {
			return &common.StorageError{Op: "remove", Key: path, Err: err}
		}

		ok, err := repo.RemoveAttachment(ctx, r, path)
		if err != nil {
			return &common.PersistError{Op: "remove attachment", ID: r.ID, Err: err}
		}
		if !ok {
			return &common.StaleStateError{ID: r.ID, Expected: string(r.Status)}
		}

		r.AttachedFiles = filing.WithoutFile(r.AttachedFiles, path)
		out = r
		return nil
	})
	if err != nil {
		l.logger.Warn(ctx, "remove rejected", "request", requestID, "path", path, "error", err)
		return nil, err
	}

	l.logger.Info(ctx, "attachment removed", "request", requestID, "path", path)
	return out, nil
}

// UploadAndCommit runs the upload engine on behalf of the actor and commits
// the batch. Nothing is committed unless every file uploaded; objects that
// uploaded but could not be committed are removed again.
func (l *Ledger) UploadAndCommit(ctx context.Context, actor filing.Actor, requestID string, files []upload.File) (*filing.Request, error) {
	if l.engine == nil {
		return nil, errors.New("server-side upload is disabled")
	}

	r, err := l.repomanager.Requests(l.db).FindByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	// checked again under lock by CommitNewFiles
	role, err := gate(actor, r, "add", filing.CanAdd)
	if err != nil {
		return nil, err
	}

	attached, err := l.engine.UploadBatch(ctx, actor.UploaderID(role), r.ID, files, nil)
	if err != nil {
		return nil, err
	}

	out, err := l.CommitNewFiles(ctx, actor, r.ID, attached)
	if err != nil {
		keys := make([]string, 0, len(attached))
		for _, f := range attached {
			keys = append(keys, f.Path)
		}
		if rmErr := l.store.Remove(context.WithoutCancel(ctx), keys...); rmErr != nil {
			l.logger.Error(ctx, "orphaned objects after failed commit", "request", r.ID, "keys", keys, "error", rmErr)
		}
		return nil, err
	}
	return out, nil
}

// gate resolves the actor's role on r and checks it against allowed at the
// persisted status.
func gate(actor filing.Actor, r *filing.Request, op string, allowed func(filing.Role, filing.Status) bool) (filing.Role, error) {
	role, ok := actor.RoleFor(r)
	if !ok {
		return "", &common.AuthorizationError{Actor: actor.UserID, Op: op, Reason: "no relationship with request " + r.ID}
	}
	if !allowed(role, r.Status) {
		return "", &common.AuthorizationError{Actor: actor.UploaderID(role), Op: op, Reason: fmt.Sprintf("%s may not %s while %s", role, op, r.Status)}
	}
	return role, nil
}

// verifyUploaded checks that every file sits under uploaderID and that its
// object exists, so the ledger never lists a missing object.
func verifyUploaded(ctx context.Context, store blob.Store, uploaderID string, files []filing.AttachedFile) error {
	for _, f := range files {
		if !filing.OwnsPath(uploaderID, f.Path) {
			return &common.AuthorizationError{Actor: uploaderID, Op: "attach", Reason: fmt.Sprintf("%q is outside the uploader prefix", f.Path)}
		}
		ok, err := store.Exists(ctx, f.Path)
		if err != nil {
			return &common.StorageError{Op: "exists", Key: f.Path, Err: err}
		}
		if !ok {
			return &common.ValidationError{Reason: common.InvalidField, Field: f.Path, Detail: "object not found in storage"}
		}
	}
	return nil
}
