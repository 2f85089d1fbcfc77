package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (h *handler) listProfessionals(c *gin.Context) {
	pros, err := h.directory.List(c.Request.Context(), actorFrom(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, pros)
}

func (h *handler) getProfessional(c *gin.Context) {
	p, err := h.directory.Get(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}
