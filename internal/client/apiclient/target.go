package apiclient

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/dmitrijs2005/taxdesk/internal/upload"
)

// retryable marks client errors as permanent so the upload engine stops
// retrying them at once.
func retryable(err error) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) && !apiErr.Retryable() {
		return upload.Permanent(err)
	}
	return err
}

// Put stores data under key through the blob gateway.
func (c *Client) Put(ctx context.Context, key string, data []byte, overwrite bool) error {
	q := url.Values{}
	if overwrite {
		q.Set("overwrite", "true")
	}
	return retryable(c.putBytes(ctx, "/v1/blobs/"+escapeKey(key), q, data))
}

// BeginChunked opens a server-side chunk session.
func (c *Client) BeginChunked(ctx context.Context, key string, size int64) (upload.ChunkWriter, error) {
	var out struct {
		ID string `json:"id"`
	}
	in := struct {
		Key  string `json:"key"`
		Size int64  `json:"size"`
	}{Key: key, Size: size}

	if err := c.do(ctx, http.MethodPost, "/v1/uploads", nil, in, &out); err != nil {
		return nil, retryable(err)
	}
	return &remoteSession{c: c, id: out.ID}, nil
}

type remoteSession struct {
	c  *Client
	id string
}

func (s *remoteSession) path() string { return "/v1/uploads/" + url.PathEscape(s.id) }

func (s *remoteSession) WriteChunk(ctx context.Context, index int, data []byte) error {
	return retryable(s.c.putBytes(ctx, s.path()+"/chunks/"+strconv.Itoa(index), nil, data))
}

func (s *remoteSession) Complete(ctx context.Context) error {
	return retryable(s.c.do(ctx, http.MethodPost, s.path()+"/complete", nil, nil, nil))
}

func (s *remoteSession) Abort(ctx context.Context) error {
	return s.c.do(ctx, http.MethodDelete, s.path(), nil, nil, nil)
}
