package httpapi

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/dmitrijs2005/taxdesk/internal/common"
	"github.com/dmitrijs2005/taxdesk/internal/filing"
	"github.com/dmitrijs2005/taxdesk/internal/server/auth"
	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
)

const actorKey = "actor"

// withSentry gives every request its own hub so errors logged while
// serving it carry the request on their scope. Panics are turned into a
// 500 and logged.
func (h *handler) withSentry(c *gin.Context) {
	hub := sentry.CurrentHub().Clone()
	hub.Scope().SetRequest(c.Request)
	ctx := sentry.SetHubOnContext(c.Request.Context(), hub)
	c.Request = c.Request.WithContext(ctx)

	defer func() {
		if r := recover(); r != nil {
			h.logger.Error(ctx, "panic while serving request", "path", c.Request.URL.Path, "error", fmt.Errorf("panic: %v", r), "stack", string(debug.Stack()))
			c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorBody{Error: "internal", Message: "internal error"})
		}
	}()

	c.Next()
}

func (h *handler) logRequests(c *gin.Context) {
	start := time.Now()
	c.Next()
	h.logger.Info(c.Request.Context(), "request",
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"status", c.Writer.Status(),
		"duration", time.Since(start),
	)
}

// requireAuth resolves the bearer token into an actor.
func (h *handler) requireAuth(c *gin.Context) {
	header := c.GetHeader("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		h.writeError(c, fmt.Errorf("missing token: %w", common.ErrorUnauthorized))
		return
	}

	claims, err := auth.ParseToken(token, h.secretKey)
	if err != nil {
		h.writeError(c, err)
		return
	}

	actor, err := h.identity.Resolve(c.Request.Context(), claims.UserID, claims.Operator())
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.Set(actorKey, actor)
	c.Next()
}

func actorFrom(c *gin.Context) filing.Actor {
	if v, ok := c.Get(actorKey); ok {
		if a, ok := v.(filing.Actor); ok {
			return a
		}
	}
	return filing.Actor{}
}
