package services

import (
	"context"
	"database/sql"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/taxdesk/internal/common"
	"github.com/dmitrijs2005/taxdesk/internal/dbx"
	"github.com/dmitrijs2005/taxdesk/internal/filing"
	"github.com/dmitrijs2005/taxdesk/internal/logging"
	"github.com/dmitrijs2005/taxdesk/internal/server/blob"
	"github.com/dmitrijs2005/taxdesk/internal/server/models"
	"github.com/dmitrijs2005/taxdesk/internal/server/repositories/professionals"
	"github.com/dmitrijs2005/taxdesk/internal/server/repositories/requests"
	"github.com/dmitrijs2005/taxdesk/internal/upload"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func nopLogger() logging.Logger { return logging.New(io.Discard, "error") }

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	return db, mock
}

// --- requests repository ---

type fakeRequests struct {
	mu   sync.Mutex
	rows map[string]*filing.Request

	// staleWrites makes every conditional write match no row.
	staleWrites bool
	writeErr    error
	inserted    int
}

func newFakeRequests(rows ...*filing.Request) *fakeRequests {
	f := &fakeRequests{rows: map[string]*filing.Request{}}
	for _, r := range rows {
		f.rows[r.ID] = r
	}
	return f
}

func clone(r *filing.Request) *filing.Request {
	c := *r
	c.AttachedFiles = append([]filing.AttachedFile(nil), r.AttachedFiles...)
	return &c
}

func (f *fakeRequests) get(id string) *filing.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return clone(f.rows[id])
}

func (f *fakeRequests) Insert(_ context.Context, r *filing.Request) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	f.inserted++
	if r.ID == "" {
		r.ID = "req-new"
	}
	r.CreatedAt = testNow
	f.rows[r.ID] = clone(r)
	return nil
}

func (f *fakeRequests) FindByID(_ context.Context, id string) (*filing.Request, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rows[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return clone(r), nil
}

func (f *fakeRequests) LockByID(ctx context.Context, id string) (*filing.Request, error) {
	return f.FindByID(ctx, id)
}

func (f *fakeRequests) list(keep func(*filing.Request) bool, less func(a, b *filing.Request) bool, limit int) []*filing.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*filing.Request
	for _, r := range f.rows {
		if keep(r) {
			out = append(out, clone(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (f *fakeRequests) ListByOwner(_ context.Context, ownerID string) ([]*filing.Request, error) {
	return f.list(func(r *filing.Request) bool { return r.OwnerID == ownerID },
		func(a, b *filing.Request) bool { return a.CreatedAt.After(b.CreatedAt) }, 0), nil
}

func (f *fakeRequests) ListByProfessional(_ context.Context, proID string, limit int) ([]*filing.Request, error) {
	return f.list(func(r *filing.Request) bool { return r.AssignedTo(proID) },
		func(a, b *filing.Request) bool { return a.CreatedAt.Before(b.CreatedAt) }, limit), nil
}

func (f *fakeRequests) ListRecentByProfessional(_ context.Context, proID string, limit int) ([]*filing.Request, error) {
	return f.list(func(r *filing.Request) bool { return r.AssignedTo(proID) },
		func(a, b *filing.Request) bool { return a.CreatedAt.After(b.CreatedAt) }, limit), nil
}

func (f *fakeRequests) CountByStatus(_ context.Context, proID string) (map[filing.Status]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[filing.Status]int{}
	for _, r := range f.rows {
		if r.AssignedTo(proID) {
			out[r.Status]++
		}
	}
	return out, nil
}

// cond applies fn to the row when its status is still from.
func (f *fakeRequests) cond(id string, from filing.Status, fn func(r *filing.Request)) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return false, f.writeErr
	}
	r, ok := f.rows[id]
	if !ok || r.Status != from || f.staleWrites {
		return false, nil
	}
	fn(r)
	return true, nil
}

func (f *fakeRequests) UpdateStatusIfCurrent(_ context.Context, id string, from, to filing.Status) (bool, error) {
	return f.cond(id, from, func(r *filing.Request) { r.Status = to })
}

func (f *fakeRequests) AssignIfSubmitted(_ context.Context, id, proID string) (bool, error) {
	return f.cond(id, filing.StatusSubmitted, func(r *filing.Request) {
		r.Status = filing.StatusAssigned
		r.AssignedProfessionalID = &proID
	})
}

func (f *fakeRequests) AppendAttachments(_ context.Context, req *filing.Request, files []filing.AttachedFile) (bool, error) {
	return f.cond(req.ID, req.Status, func(r *filing.Request) {
		r.AttachedFiles = filing.MergeFiles(req.AttachedFiles, files)
	})
}

func (f *fakeRequests) RemoveAttachment(_ context.Context, req *filing.Request, path string) (bool, error) {
	return f.cond(req.ID, req.Status, func(r *filing.Request) {
		r.AttachedFiles = filing.WithoutFile(req.AttachedFiles, path)
	})
}

func (f *fakeRequests) UpdateDraftIfStatus(_ context.Context, id string, status filing.Status, d filing.Draft, files []filing.AttachedFile) (bool, error) {
	return f.cond(id, status, func(r *filing.Request) {
		r.TaxYear, r.IncomeType, r.EstimatedIncome, r.Details = d.TaxYear, d.IncomeType, d.EstimatedIncome, d.Details
		r.AttachedFiles = files
	})
}

// --- professionals repository ---

type fakeProfessionals struct {
	pros       map[string]*models.Professional
	emails     map[string]string
	profileErr error
	proErr     error
	// directory rows in created_at order, oldest first
	directory []*models.Professional
	listErr   error
}

func (f *fakeProfessionals) GetByUserID(_ context.Context, userID string) (*models.Professional, error) {
	if f.proErr != nil {
		return nil, f.proErr
	}
	p, ok := f.pros[userID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return p, nil
}

func (f *fakeProfessionals) GetProfile(_ context.Context, userID string) (*models.UserProfile, error) {
	if f.profileErr != nil {
		return nil, f.profileErr
	}
	e, ok := f.emails[userID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &models.UserProfile{UserID: userID, Email: e}, nil
}

func (f *fakeProfessionals) ListVerified(context.Context) ([]*models.Professional, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]*models.Professional, 0)
	for i := len(f.directory) - 1; i >= 0; i-- {
		if f.directory[i].Verified {
			out = append(out, f.directory[i])
		}
	}
	return out, nil
}

func (f *fakeProfessionals) GetVerifiedByID(_ context.Context, id string) (*models.Professional, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	for _, p := range f.directory {
		if p.ID == id && p.Verified {
			return p, nil
		}
	}
	return nil, common.ErrorNotFound
}

// --- repository manager ---

type fakeManager struct {
	reqs *fakeRequests
	pros *fakeProfessionals
}

func (m *fakeManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeManager) Requests(dbx.DBTX) requests.Repository       { return m.reqs }
func (m *fakeManager) Professionals(dbx.DBTX) professionals.Repository {
	if m.pros == nil {
		return &fakeProfessionals{}
	}
	return m.pros
}

// --- blob store ---

type fakeStore struct {
	mu      sync.Mutex
	objects map[string][]byte

	removeFail map[string]error
	removeErr  error
	existsErr  error
	signErr    error
	removed    []string
}

func newFakeStore(keys ...string) *fakeStore {
	s := &fakeStore{objects: map[string][]byte{}, removeFail: map[string]error{}}
	for _, k := range keys {
		s.objects[k] = []byte(k)
	}
	return s
}

func (s *fakeStore) has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[key]
	return ok
}

func (s *fakeStore) Put(_ context.Context, key string, data []byte, overwrite bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[key]; ok && !overwrite {
		return common.ErrAlreadyExists
	}
	s.objects[key] = append([]byte(nil), data...)
	return nil
}

func (s *fakeStore) BeginChunked(_ context.Context, key string, _ int64) (upload.ChunkWriter, error) {
	if s.has(key) {
		return nil, common.ErrAlreadyExists
	}
	return &fakeWriter{store: s, key: key}, nil
}

func (s *fakeStore) Remove(_ context.Context, keys ...string) error {
	if s.removeErr != nil {
		return s.removeErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	failed := map[string]error{}
	for _, k := range keys {
		if err, ok := s.removeFail[k]; ok {
			failed[k] = err
			continue
		}
		delete(s.objects, k)
		s.removed = append(s.removed, k)
	}
	if len(failed) > 0 {
		return &blob.RemoveError{Failed: failed}
	}
	return nil
}

func (s *fakeStore) Exists(_ context.Context, key string) (bool, error) {
	if s.existsErr != nil {
		return false, s.existsErr
	}
	return s.has(key), nil
}

func (s *fakeStore) SignedURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	if s.signErr != nil {
		return "", s.signErr
	}
	return "https://blobs.test/" + key + "?ttl=" + ttl.String(), nil
}

type fakeWriter struct {
	store   *fakeStore
	key     string
	data    []byte
	next    int
	done    bool
	aborted bool
}

func (w *fakeWriter) WriteChunk(_ context.Context, index int, data []byte) error {
	if w.done || w.aborted {
		return blob.ErrSessionClosed
	}
	switch index {
	case w.next:
		w.data = append(w.data, data...)
		w.next++
	case w.next - 1:
	default:
		return blob.ErrOutOfOrder
	}
	return nil
}

func (w *fakeWriter) Complete(context.Context) error {
	if w.done {
		return nil
	}
	w.done = true
	w.store.mu.Lock()
	w.store.objects[w.key] = w.data
	w.store.mu.Unlock()
	return nil
}

func (w *fakeWriter) Abort(context.Context) error {
	w.aborted = true
	return nil
}

// --- fixtures ---

func strp(s string) *string { return &s }

var (
	owner = filing.Actor{UserID: "user-1"}
	pro   = filing.Actor{UserID: "user-9", ProfessionalID: "pro-1", VerifiedProfessional: true}
	op    = filing.Actor{UserID: "ops-1", Operator: true}
)

func file(path string) filing.AttachedFile {
	return filing.AttachedFile{Name: path, Path: path, Size: 10, Type: "application/pdf", UploadedAt: testNow}
}

func request(id string, status filing.Status, files ...filing.AttachedFile) *filing.Request {
	r := &filing.Request{
		ID:            id,
		OwnerID:       owner.UserID,
		TaxYear:       2024,
		IncomeType:    filing.IncomeLabour,
		Status:        status,
		AttachedFiles: files,
		PaymentStatus: filing.PaymentPending,
		CreatedAt:     testNow,
	}
	if status != filing.StatusSubmitted && status != filing.StatusCancelled {
		r.AssignedProfessionalID = strp(pro.ProfessionalID)
	}
	return r
}
