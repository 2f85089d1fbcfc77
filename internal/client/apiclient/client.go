// Package apiclient talks to the taxdesk HTTP API. Client satisfies
// upload.Target, so the upload engine can send attachments through the
// server's blob gateway, and session.Resolver for identity refreshes.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/taxdesk/internal/common"
	"github.com/dmitrijs2005/taxdesk/internal/netx"
)

const defaultTimeout = 30 * time.Second

// APIError is a non-2xx answer decoded from the server's error body.
type APIError struct {
	StatusCode int
	Kind       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Kind, e.StatusCode, e.Message)
}

// Is maps the status onto the shared sentinels.
func (e *APIError) Is(target error) bool {
	switch target {
	case common.ErrorUnauthorized:
		return e.StatusCode == http.StatusUnauthorized
	case common.ErrorForbidden:
		return e.StatusCode == http.StatusForbidden
	case common.ErrorNotFound:
		return e.StatusCode == http.StatusNotFound
	case common.ErrAlreadyExists:
		return e.Kind == "already_exists"
	case common.ErrStaleState:
		return e.Kind == "stale_state"
	}
	return false
}

// Retryable reports whether repeating the call may succeed.
func (e *APIError) Retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusRequestTimeout || e.StatusCode == http.StatusTooManyRequests
}

type Client struct {
	base *url.URL
	http *http.Client

	mu    sync.RWMutex
	token string
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid server url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid server url %q: scheme must be http or https", baseURL)
	}

	c := &Client{base: u, http: &http.Client{Timeout: defaultTimeout}}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// SetToken replaces the bearer token used for later calls.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) bearer() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// endpoint joins the already-escaped path and query onto the base URL.
func (c *Client) endpoint(path string, q url.Values) string {
	u := *c.base
	u.RawPath = c.base.EscapedPath() + path
	u.Path, _ = url.PathUnescape(u.RawPath)
	if len(q) > 0 {
		u.RawQuery = q.Encode()
	}
	return u.String()
}

func (c *Client) newRequest(ctx context.Context, method, path string, q url.Values, body io.Reader, contentType string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, q), body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if tok := c.bearer(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	return req, nil
}

// do sends in as JSON (unless nil) and decodes the response into out
// (unless nil).
func (c *Client) do(ctx context.Context, method, path string, q url.Values, in, out any) error {
	var body io.Reader
	contentType := ""
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body, contentType = bytes.NewReader(data), "application/json"
	}

	req, err := c.newRequest(ctx, method, path, q, body, contentType)
	if err != nil {
		return err
	}
	return c.send(req, out)
}

func (c *Client) send(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := decodeError(resp); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", req.Method, req.URL.Path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	return asAPIError(netx.CheckResponse(resp))
}

// asAPIError turns a *netx.StatusError into an *APIError carrying the
// server's error kind. Other errors pass through.
func asAPIError(err error) error {
	var se *netx.StatusError
	if !errors.As(err, &se) {
		return err
	}
	apiErr := &APIError{StatusCode: se.StatusCode, Kind: "http", Message: strings.TrimSpace(string(se.Body))}
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(se.Body, &body) == nil && body.Error != "" {
		apiErr.Kind, apiErr.Message = body.Error, body.Message
	}
	return apiErr
}

// putBytes sends raw bytes with PUT, as the blob and chunk routes expect.
func (c *Client) putBytes(ctx context.Context, path string, q url.Values, data []byte) error {
	h := http.Header{}
	h.Set("Accept", "application/json")
	if tok := c.bearer(); tok != "" {
		h.Set("Authorization", "Bearer "+tok)
	}
	return asAPIError(netx.PutBytes(ctx, c.http, c.endpoint(path, q), data, h))
}

// escapeKey escapes each segment of a storage key for use in a path.
func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
