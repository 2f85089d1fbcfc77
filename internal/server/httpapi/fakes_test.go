package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/dmitrijs2005/taxdesk/internal/common"
	"github.com/dmitrijs2005/taxdesk/internal/filing"
	"github.com/dmitrijs2005/taxdesk/internal/logging"
	"github.com/dmitrijs2005/taxdesk/internal/server/auth"
	"github.com/dmitrijs2005/taxdesk/internal/server/models"
	"github.com/dmitrijs2005/taxdesk/internal/server/services"
	"github.com/dmitrijs2005/taxdesk/internal/upload"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

var errNotStubbed = errors.New("not stubbed")

var testSecret = []byte("test-secret")

func init() { gin.SetMode(gin.TestMode) }

func nopLogger() logging.Logger { return logging.New(io.Discard, "error") }

type fakeRequests struct {
	create   func(filing.Actor, filing.Draft, []filing.AttachedFile) (*filing.Request, error)
	get      func(filing.Actor, string) (*services.Detail, error)
	owned    func(filing.Actor) ([]*filing.Request, error)
	assigned func(filing.Actor) ([]*filing.Request, error)
	dash     func(filing.Actor) (*filing.Dashboard, error)
	move     func(filing.Actor, string, filing.Status) (*filing.Request, error)
	assign   func(filing.Actor, string, string) (*filing.Request, error)
	edit     func(filing.Actor, string, filing.Draft, []string, []filing.AttachedFile) (*filing.Request, *services.EditReport, error)
}

func (f *fakeRequests) Create(_ context.Context, a filing.Actor, d filing.Draft, files []filing.AttachedFile) (*filing.Request, error) {
	if f.create == nil {
		return nil, errNotStubbed
	}
	return f.create(a, d, files)
}

func (f *fakeRequests) Get(_ context.Context, a filing.Actor, id string) (*services.Detail, error) {
	if f.get == nil {
		return nil, errNotStubbed
	}
	return f.get(a, id)
}

func (f *fakeRequests) ListOwned(_ context.Context, a filing.Actor) ([]*filing.Request, error) {
	if f.owned == nil {
		return nil, errNotStubbed
	}
	return f.owned(a)
}

func (f *fakeRequests) ListAssigned(_ context.Context, a filing.Actor) ([]*filing.Request, error) {
	if f.assigned == nil {
		return nil, errNotStubbed
	}
	return f.assigned(a)
}

func (f *fakeRequests) Dashboard(_ context.Context, a filing.Actor) (*filing.Dashboard, error) {
	if f.dash == nil {
		return nil, errNotStubbed
	}
	return f.dash(a)
}

func (f *fakeRequests) moveTo(a filing.Actor, id string, to filing.Status) (*filing.Request, error) {
	if f.move == nil {
		return nil, errNotStubbed
	}
	return f.move(a, id, to)
}

func (f *fakeRequests) Cancel(_ context.Context, a filing.Actor, id string) (*filing.Request, error) {
	return f.moveTo(a, id, filing.StatusCancelled)
}

func (f *fakeRequests) Start(_ context.Context, a filing.Actor, id string) (*filing.Request, error) {
	return f.moveTo(a, id, filing.StatusProcessing)
}

func (f *fakeRequests) Complete(_ context.Context, a filing.Actor, id string) (*filing.Request, error) {
	return f.moveTo(a, id, filing.StatusCompleted)
}

func (f *fakeRequests) Assign(_ context.Context, a filing.Actor, id, professionalID string) (*filing.Request, error) {
	if f.assign == nil {
		return nil, errNotStubbed
	}
	return f.assign(a, id, professionalID)
}

func (f *fakeRequests) Edit(_ context.Context, a filing.Actor, id string, d filing.Draft, keep []string, added []filing.AttachedFile) (*filing.Request, *services.EditReport, error) {
	if f.edit == nil {
		return nil, nil, errNotStubbed
	}
	return f.edit(a, id, d, keep, added)
}

type uploadedFile struct {
	name, typ string
	data      []byte
}

type fakeAttachments struct {
	commit   func(filing.Actor, string, []filing.AttachedFile) (*filing.Request, error)
	remove   func(filing.Actor, string, string) (*filing.Request, error)
	uploaded []uploadedFile
}

func (f *fakeAttachments) CommitNewFiles(_ context.Context, a filing.Actor, id string, files []filing.AttachedFile) (*filing.Request, error) {
	if f.commit == nil {
		return nil, errNotStubbed
	}
	return f.commit(a, id, files)
}

func (f *fakeAttachments) RemoveFile(_ context.Context, a filing.Actor, id, path string) (*filing.Request, error) {
	if f.remove == nil {
		return nil, errNotStubbed
	}
	return f.remove(a, id, path)
}

func (f *fakeAttachments) UploadAndCommit(_ context.Context, _ filing.Actor, id string, files []upload.File) (*filing.Request, error) {
	for _, file := range files {
		buf := make([]byte, file.Size)
		if _, err := file.Content.ReadAt(buf, 0); err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
		f.uploaded = append(f.uploaded, uploadedFile{name: file.Name, typ: file.Type, data: buf})
	}
	return &filing.Request{ID: id}, nil
}

type fakeLinks struct {
	url string
	err error
}

func (f *fakeLinks) SignedURL(_ context.Context, path string) (string, time.Time, error) {
	if f.err != nil {
		return "", time.Time{}, f.err
	}
	return f.url + path, time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC), nil
}

type fakeUploads struct {
	puts   map[string][]byte
	chunks [][]byte
	err    error
}

func (f *fakeUploads) Put(_ context.Context, _ filing.Actor, key string, data []byte, _ bool) error {
	if f.err != nil {
		return f.err
	}
	if f.puts == nil {
		f.puts = map[string][]byte{}
	}
	f.puts[key] = data
	return nil
}

func (f *fakeUploads) Begin(_ context.Context, _ filing.Actor, key string, _ int64) (string, error) {
	return "sess-1", f.err
}

func (f *fakeUploads) WriteChunk(_ context.Context, _ filing.Actor, _ string, _ int, data []byte) error {
	if f.err != nil {
		return f.err
	}
	f.chunks = append(f.chunks, data)
	return nil
}

func (f *fakeUploads) Complete(_ context.Context, _ filing.Actor, id string) (string, error) {
	return "user-1/r1/1_big.zip", f.err
}

func (f *fakeUploads) Abort(_ context.Context, _ filing.Actor, _ string) error { return f.err }

// fakeIdentity resolves user ids through a fixed table; unknown ids are
// plain taxpayers.
type fakeIdentity struct {
	actors map[string]filing.Actor
	err    error
}

func (f *fakeIdentity) Resolve(_ context.Context, userID string, operator bool) (filing.Actor, error) {
	if f.err != nil {
		return filing.Actor{}, f.err
	}
	a, ok := f.actors[userID]
	if !ok {
		a = filing.Actor{UserID: userID}
	}
	a.Operator = operator
	return a, nil
}

type fakeDirectory struct {
	pros []*models.Professional
	err  error
}

func (f *fakeDirectory) List(context.Context, filing.Actor) ([]*models.Professional, error) {
	return f.pros, f.err
}

func (f *fakeDirectory) Get(_ context.Context, _ filing.Actor, id string) (*models.Professional, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, p := range f.pros {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, common.ErrorNotFound
}

type fakeLocal struct {
	path string
	err  error
}

func (f *fakeLocal) Open(string, int64, string) (*os.File, error) {
	if f.err != nil {
		return nil, f.err
	}
	return os.Open(f.path)
}

type testAPI struct {
	handler     http.Handler
	requests    *fakeRequests
	attachments *fakeAttachments
	links       *fakeLinks
	uploads     *fakeUploads
	identity    *fakeIdentity
	directory   *fakeDirectory
}

func newTestAPI(t *testing.T, opts ...func(*Deps)) *testAPI {
	t.Helper()
	api := &testAPI{
		requests:    &fakeRequests{},
		attachments: &fakeAttachments{},
		links:       &fakeLinks{url: "https://blobs.test/"},
		uploads:     &fakeUploads{},
		identity: &fakeIdentity{actors: map[string]filing.Actor{
			"user-9": {UserID: "user-9", ProfessionalID: "pro-1", VerifiedProfessional: true},
		}},
		directory: &fakeDirectory{},
	}
	d := Deps{
		Requests:    api.requests,
		Attachments: api.attachments,
		Links:       api.links,
		Uploads:     api.uploads,
		Identity:    api.identity,
		Directory:   api.directory,
		Limits:      filing.DefaultUploadLimits(),
		SecretKey:   testSecret,
		TokenTTL:    time.Hour,
		Logger:      nopLogger(),
	}
	for _, o := range opts {
		o(&d)
	}
	h, err := NewRouter(d)
	require.NoError(t, err)
	api.handler = h
	return api
}

func token(t *testing.T, userID, role string) string {
	t.Helper()
	tok, err := auth.GenerateToken(userID, role, testSecret, time.Hour)
	require.NoError(t, err)
	return tok
}

// do sends a request as userID; an empty userID sends no token.
func (api *testAPI) do(t *testing.T, method, target, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = bytes.NewBufferString(b)
	case []byte:
		r = bytes.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		role := ""
		if userID == "ops-1" {
			role = auth.RoleOperator
		}
		req.Header.Set("Authorization", "Bearer "+token(t, userID, role))
	}
	w := httptest.NewRecorder()
	api.handler.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}
