package cli

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/taxdesk/internal/client/apiclient"
	"github.com/dmitrijs2005/taxdesk/internal/client/config"
	"github.com/dmitrijs2005/taxdesk/internal/client/session"
	"github.com/dmitrijs2005/taxdesk/internal/common"
	"github.com/dmitrijs2005/taxdesk/internal/filing"
	"github.com/dmitrijs2005/taxdesk/internal/logging"
	"github.com/dmitrijs2005/taxdesk/internal/upload"
)

var testNow = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

// fakeAPI keeps uploaded blobs in memory. Unset funcs fail the call with
// common.ErrorNotFound.
type fakeAPI struct {
	mu      sync.Mutex
	token   string
	me      session.Context
	blobs   map[string][]byte
	limits  *filing.UploadLimits
	created []filing.AttachedFile
	draft   filing.Draft

	committed []filing.AttachedFile
	keep      []string
	added     []filing.AttachedFile

	get       func(id string) (*apiclient.Detail, error)
	transit   func(id string) (*filing.Request, error)
	owned     []*filing.Request
	assigned  []*filing.Request
	dashboard *filing.Dashboard
	experts   []apiclient.Professional
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{blobs: map[string][]byte{}}
}

func (f *fakeAPI) Put(_ context.Context, key string, data []byte, overwrite bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.blobs[key]; ok && !overwrite {
		return upload.Permanent(common.ErrAlreadyExists)
	}
	f.blobs[key] = append([]byte(nil), data...)
	return nil
}

func (f *fakeAPI) BeginChunked(_ context.Context, key string, _ int64) (upload.ChunkWriter, error) {
	return &fakeChunks{api: f, key: key}, nil
}

type fakeChunks struct {
	api *fakeAPI
	key string
	buf bytes.Buffer
}

func (c *fakeChunks) WriteChunk(_ context.Context, _ int, data []byte) error {
	c.buf.Write(data)
	return nil
}

func (c *fakeChunks) Complete(ctx context.Context) error {
	return c.api.Put(ctx, c.key, c.buf.Bytes(), false)
}

func (c *fakeChunks) Abort(context.Context) error { return nil }

func (f *fakeAPI) Me(context.Context) (session.Context, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.token == "" {
		return session.Context{}, common.ErrorUnauthorized
	}
	return f.me, nil
}

func (f *fakeAPI) SetToken(token string) {
	f.mu.Lock()
	f.token = token
	f.mu.Unlock()
}

func (f *fakeAPI) DevToken(_ context.Context, userID, role string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.me = session.Context{UserID: userID, Authenticated: true, Operator: role != ""}
	return "token-" + userID, nil
}

func (f *fakeAPI) Limits(context.Context) (filing.UploadLimits, error) {
	if f.limits == nil {
		return filing.UploadLimits{}, common.ErrorNotFound
	}
	return *f.limits, nil
}

func (f *fakeAPI) CreateRequest(_ context.Context, d filing.Draft, files []filing.AttachedFile) (*filing.Request, error) {
	f.draft, f.created = d, files
	return &filing.Request{ID: "r1", TaxYear: d.TaxYear, IncomeType: d.IncomeType, Status: filing.StatusSubmitted, AttachedFiles: files, CreatedAt: testNow}, nil
}

func (f *fakeAPI) ListOwned(context.Context) ([]*filing.Request, error)    { return f.owned, nil }
func (f *fakeAPI) ListAssigned(context.Context) ([]*filing.Request, error) { return f.assigned, nil }

func (f *fakeAPI) Dashboard(context.Context) (*filing.Dashboard, error) {
	if f.dashboard == nil {
		return nil, common.ErrorNotFound
	}
	return f.dashboard, nil
}

func (f *fakeAPI) Get(_ context.Context, id string) (*apiclient.Detail, error) {
	if f.get == nil {
		return nil, common.ErrorNotFound
	}
	return f.get(id)
}

func (f *fakeAPI) Edit(_ context.Context, id string, d filing.Draft, keep []string, added []filing.AttachedFile) (*filing.Request, *apiclient.EditReport, error) {
	f.draft, f.keep, f.added = d, keep, added
	return &filing.Request{ID: id, TaxYear: d.TaxYear, IncomeType: d.IncomeType, Status: filing.StatusSubmitted},
		&apiclient.EditReport{Removed: []string{"user-1/r1/1_old.pdf"}}, nil
}

func (f *fakeAPI) Cancel(_ context.Context, id string) (*filing.Request, error)   { return f.transition(id) }
func (f *fakeAPI) Start(_ context.Context, id string) (*filing.Request, error)    { return f.transition(id) }
func (f *fakeAPI) Complete(_ context.Context, id string) (*filing.Request, error) { return f.transition(id) }

func (f *fakeAPI) transition(id string) (*filing.Request, error) {
	if f.transit == nil {
		return nil, common.ErrorNotFound
	}
	return f.transit(id)
}

func (f *fakeAPI) Assign(_ context.Context, id, professionalID string) (*filing.Request, error) {
	return &filing.Request{ID: id, AssignedProfessionalID: &professionalID, Status: filing.StatusAssigned}, nil
}

func (f *fakeAPI) CommitFiles(_ context.Context, id string, files []filing.AttachedFile) (*filing.Request, error) {
	f.committed = files
	return &filing.Request{ID: id, Status: filing.StatusAssigned, AttachedFiles: files}, nil
}

func (f *fakeAPI) RemoveFile(_ context.Context, id, _ string) (*filing.Request, error) {
	return &filing.Request{ID: id, Status: filing.StatusSubmitted}, nil
}

func (f *fakeAPI) SignedURL(_ context.Context, path string) (string, time.Time, error) {
	return "https://blobs.test/" + path + "?sig=x", testNow.Add(time.Hour), nil
}

func (f *fakeAPI) Professionals(context.Context) ([]apiclient.Professional, error) {
	return f.experts, nil
}

func (f *fakeAPI) Professional(_ context.Context, id string) (*apiclient.Professional, error) {
	for i := range f.experts {
		if f.experts[i].ID == id {
			return &f.experts[i], nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeAPI) keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.blobs))
	for k := range f.blobs {
		out = append(out, k)
	}
	return out
}

func nopLogger() logging.Logger {
	return logging.New(io.Discard, "error")
}

// newTestApp builds an App reading input and writing to the returned
// buffer. It is signed in as user-1 unless the fake says otherwise.
func newTestApp(t *testing.T, api *fakeAPI, input string) (*App, *bytes.Buffer) {
	t.Helper()
	var c config.Config
	c.LoadDefaults()
	c.RetryBackoff = 0

	out := &bytes.Buffer{}
	a := newApp(&c, api, strings.NewReader(input), out, nopLogger())
	a.now = func() time.Time { return testNow }
	return a, out
}

// signIn makes userID the current session.
func signIn(t *testing.T, a *App, api *fakeAPI, me session.Context) {
	t.Helper()
	api.SetToken("t")
	api.mu.Lock()
	api.me = me
	api.mu.Unlock()
	if err := a.session.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
}
