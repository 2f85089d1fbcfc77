package apiclient

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/dmitrijs2005/taxdesk/internal/client/session"
	"github.com/dmitrijs2005/taxdesk/internal/filing"
)

// Detail is a request as shown to one of its parties.
type Detail struct {
	Request     *filing.Request `json:"request"`
	Role        filing.Role     `json:"role"`
	ClientEmail string          `json:"clientEmail,omitempty"`
}

type RetainedFile struct {
	Path string `json:"path"`
	Err  string `json:"error"`
}

// EditReport lists the removals that took effect and those that did not.
type EditReport struct {
	Removed  []string       `json:"removed"`
	Retained []RetainedFile `json:"retained"`
}

// Professional is a directory entry for a verified professional.
type Professional struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Email        string   `json:"email,omitempty"`
	Specialties  []string `json:"specialties"`
	Location     string   `json:"location,omitempty"`
	Introduction string   `json:"introduction,omitempty"`
	Rating       float64  `json:"rating"`
	ReviewCount  int      `json:"reviewCount"`
}

type me struct {
	UserID               string `json:"userId"`
	ProfessionalID       string `json:"professionalId"`
	VerifiedProfessional bool   `json:"verifiedProfessional"`
	Operator             bool   `json:"operator"`
}

// Me resolves the identity behind the current token.
func (c *Client) Me(ctx context.Context) (session.Context, error) {
	var m me
	if err := c.do(ctx, http.MethodGet, "/v1/me", nil, nil, &m); err != nil {
		return session.Context{}, err
	}
	return session.Context{
		UserID:                m.UserID,
		Authenticated:         true,
		VerifiedProfessional:  m.VerifiedProfessional,
		ProfessionalProfileID: m.ProfessionalID,
		Operator:              m.Operator,
	}, nil
}

// DevToken asks a server running with development auth for a token.
func (c *Client) DevToken(ctx context.Context, userID, role string) (string, error) {
	in := struct {
		UserID string `json:"userId"`
		Role   string `json:"role,omitempty"`
	}{userID, role}
	var out struct {
		AccessToken string `json:"accessToken"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/auth/dev-token", nil, in, &out); err != nil {
		return "", err
	}
	return out.AccessToken, nil
}

func (c *Client) Limits(ctx context.Context) (filing.UploadLimits, error) {
	var l filing.UploadLimits
	err := c.do(ctx, http.MethodGet, "/v1/limits", nil, nil, &l)
	return l, err
}

func (c *Client) CreateRequest(ctx context.Context, d filing.Draft, files []filing.AttachedFile) (*filing.Request, error) {
	in := struct {
		filing.Draft
		AttachedFiles []filing.AttachedFile `json:"attachedFiles"`
	}{d, nonNilFiles(files)}
	var r filing.Request
	if err := c.do(ctx, http.MethodPost, "/v1/requests", nil, in, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (c *Client) ListOwned(ctx context.Context) ([]*filing.Request, error) {
	var out []*filing.Request
	err := c.do(ctx, http.MethodGet, "/v1/requests", nil, nil, &out)
	return out, err
}

func (c *Client) ListAssigned(ctx context.Context) ([]*filing.Request, error) {
	var out []*filing.Request
	err := c.do(ctx, http.MethodGet, "/v1/assigned", nil, nil, &out)
	return out, err
}

func (c *Client) Dashboard(ctx context.Context) (*filing.Dashboard, error) {
	var d filing.Dashboard
	if err := c.do(ctx, http.MethodGet, "/v1/dashboard", nil, nil, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (c *Client) Get(ctx context.Context, id string) (*Detail, error) {
	var d Detail
	if err := c.do(ctx, http.MethodGet, requestPath(id), nil, nil, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (c *Client) Edit(ctx context.Context, id string, d filing.Draft, keep []string, added []filing.AttachedFile) (*filing.Request, *EditReport, error) {
	if keep == nil {
		keep = []string{}
	}
	in := struct {
		filing.Draft
		KeepFiles []string              `json:"keepFiles"`
		NewFiles  []filing.AttachedFile `json:"newFiles"`
	}{d, keep, nonNilFiles(added)}
	var out struct {
		Request *filing.Request `json:"request"`
		Report  *EditReport     `json:"report"`
	}
	if err := c.do(ctx, http.MethodPatch, requestPath(id), nil, in, &out); err != nil {
		return nil, nil, err
	}
	return out.Request, out.Report, nil
}

func (c *Client) transition(ctx context.Context, id, action string, in any) (*filing.Request, error) {
	var r filing.Request
	if err := c.do(ctx, http.MethodPost, requestPath(id)+"/"+action, nil, in, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (c *Client) Cancel(ctx context.Context, id string) (*filing.Request, error) {
	return c.transition(ctx, id, "cancel", nil)
}

func (c *Client) Start(ctx context.Context, id string) (*filing.Request, error) {
	return c.transition(ctx, id, "start", nil)
}

func (c *Client) Complete(ctx context.Context, id string) (*filing.Request, error) {
	return c.transition(ctx, id, "complete", nil)
}

func (c *Client) Assign(ctx context.Context, id, professionalID string) (*filing.Request, error) {
	return c.transition(ctx, id, "assign", map[string]string{"professionalId": professionalID})
}

// CommitFiles appends already uploaded files to the request.
func (c *Client) CommitFiles(ctx context.Context, id string, files []filing.AttachedFile) (*filing.Request, error) {
	var r filing.Request
	in := struct {
		Files []filing.AttachedFile `json:"files"`
	}{files}
	if err := c.do(ctx, http.MethodPost, requestPath(id)+"/attachments", nil, in, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (c *Client) RemoveFile(ctx context.Context, id, path string) (*filing.Request, error) {
	var r filing.Request
	q := url.Values{"path": {path}}
	if err := c.do(ctx, http.MethodDelete, requestPath(id)+"/attachments", q, nil, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// SignedURL returns a time-limited link to the object at path.
func (c *Client) SignedURL(ctx context.Context, path string) (string, time.Time, error) {
	var out struct {
		URL       string    `json:"url"`
		ExpiresAt time.Time `json:"expiresAt"`
	}
	q := url.Values{"path": {path}}
	if err := c.do(ctx, http.MethodGet, "/v1/files/url", q, nil, &out); err != nil {
		return "", time.Time{}, err
	}
	return out.URL, out.ExpiresAt, nil
}

// Professionals lists verified professionals, newest first.
func (c *Client) Professionals(ctx context.Context) ([]Professional, error) {
	var out []Professional
	err := c.do(ctx, http.MethodGet, "/v1/professionals", nil, nil, &out)
	return out, err
}

func (c *Client) Professional(ctx context.Context, id string) (*Professional, error) {
	var p Professional
	if err := c.do(ctx, http.MethodGet, "/v1/professionals/"+url.PathEscape(id), nil, nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func requestPath(id string) string { return "/v1/requests/" + url.PathEscape(id) }

func nonNilFiles(files []filing.AttachedFile) []filing.AttachedFile {
	if files == nil {
		return []filing.AttachedFile{}
	}
	return files
}
