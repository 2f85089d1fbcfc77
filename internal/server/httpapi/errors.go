package httpapi

import (
	"errors"
	"net/http"

	"github.com/dmitrijs2005/taxdesk/internal/common"
	"github.com/dmitrijs2005/taxdesk/internal/cryptox"
	"github.com/dmitrijs2005/taxdesk/internal/server/blob"
	"github.com/gin-gonic/gin"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// classify maps an error to an HTTP status and a stable kind.
func classify(err error) (int, string) {
	var (
		ve *common.ValidationError
		it *common.IllegalTransitionError
		te *common.TransferError
		se *common.StorageError
		pe *common.PersistError
	)
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest, "validation"
	case errors.Is(err, common.ErrorUnauthorized),
		errors.Is(err, common.ErrInvalidToken),
		errors.Is(err, common.ErrTokenExpired):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, common.ErrorForbidden),
		errors.Is(err, cryptox.ErrBadSignature),
		errors.Is(err, cryptox.ErrLinkExpired):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, common.ErrorNotFound):
		return http.StatusNotFound, "not_found"
	case errors.As(err, &it):
		return http.StatusConflict, "illegal_transition"
	case errors.Is(err, common.ErrStaleState):
		return http.StatusConflict, "stale_state"
	case errors.Is(err, common.ErrAlreadyExists):
		return http.StatusConflict, "already_exists"
	case errors.Is(err, blob.ErrOutOfOrder), errors.Is(err, blob.ErrSessionClosed):
		return http.StatusConflict, "chunk_order"
	case errors.As(err, &te):
		return http.StatusBadGateway, "transfer_failed"
	case errors.As(err, &se):
		return http.StatusBadGateway, "storage"
	case errors.As(err, &pe):
		return http.StatusInternalServerError, "persist"
	}
	return http.StatusInternalServerError, "internal"
}

// writeError aborts the request with the mapped status. Server-side
// failures are logged at error level, which also reports them to Sentry.
func (h *handler) writeError(c *gin.Context, err error) {
	status, kind := classify(err)
	msg := err.Error()

	if status >= http.StatusInternalServerError {
		h.logger.Error(c.Request.Context(), "request failed", "method", c.Request.Method, "path", c.FullPath(), "status", status, "error", err)
		if status == http.StatusInternalServerError {
			msg = "internal error"
		}
	}

	_ = c.Error(err)
	c.AbortWithStatusJSON(status, ErrorBody{Error: kind, Message: msg})
}

func badRequest(field, detail string) error {
	return &common.ValidationError{Reason: common.InvalidField, Field: field, Detail: detail}
}
