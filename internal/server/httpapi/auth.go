package httpapi

import (
	"net/http"

	"github.com/dmitrijs2005/taxdesk/internal/server/auth"
	"github.com/gin-gonic/gin"
)

type devTokenBody struct {
	UserID string `json:"userId" binding:"required"`
	Role   string `json:"role"`
}

type tokenResponse struct {
	AccessToken string `json:"accessToken"`
}

// devToken mints an access token for any user id. It is only routed when
// development auth is enabled.
func (h *handler) devToken(c *gin.Context) {
	var body devTokenBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.writeError(c, badRequest("body", err.Error()))
		return
	}
	if body.Role != "" && body.Role != auth.RoleOperator {
		h.writeError(c, badRequest("role", "unknown role"))
		return
	}

	token, err := auth.GenerateToken(body.UserID, body.Role, h.secretKey, h.tokenTTL)
	if err != nil {
		h.writeError(c, err)
		return
	}

	h.logger.Warn(c.Request.Context(), "issued development token", "user", body.UserID, "role", body.Role)
	c.JSON(http.StatusOK, tokenResponse{AccessToken: token})
}
