package httpapi

import (
	"context"
	"net/http"

	"github.com/dmitrijs2005/taxdesk/internal/filing"
	"github.com/dmitrijs2005/taxdesk/internal/server/services"
	"github.com/gin-gonic/gin"
)

type createRequestBody struct {
	filing.Draft
	AttachedFiles []filing.AttachedFile `json:"attachedFiles"`
}

type editRequestBody struct {
	filing.Draft
	KeepFiles []string              `json:"keepFiles"`
	NewFiles  []filing.AttachedFile `json:"newFiles"`
}

type editResponse struct {
	Request *filing.Request      `json:"request"`
	Report  *services.EditReport `json:"report"`
}

type assignBody struct {
	ProfessionalID string `json:"professionalId"`
}

type meResponse struct {
	UserID               string `json:"userId"`
	ProfessionalID       string `json:"professionalId,omitempty"`
	VerifiedProfessional bool   `json:"verifiedProfessional"`
	Operator             bool   `json:"operator"`
}

func (h *handler) me(c *gin.Context) {
	a := actorFrom(c)
	c.JSON(http.StatusOK, meResponse{
		UserID:               a.UserID,
		ProfessionalID:       a.ProfessionalID,
		VerifiedProfessional: a.VerifiedProfessional,
		Operator:             a.Operator,
	})
}

func (h *handler) getLimits(c *gin.Context) {
	c.JSON(http.StatusOK, h.limits)
}

func (h *handler) createRequest(c *gin.Context) {
	var body createRequestBody
	if err := bindValidated(c, h.schemas.createRequest, &body); err != nil {
		h.writeError(c, err)
		return
	}

	r, err := h.requests.Create(c.Request.Context(), actorFrom(c), body.Draft, body.AttachedFiles)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, r)
}

func (h *handler) listOwned(c *gin.Context) {
	list, err := h.requests.ListOwned(c.Request.Context(), actorFrom(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, nonNil(list))
}

func (h *handler) listAssigned(c *gin.Context) {
	list, err := h.requests.ListAssigned(c.Request.Context(), actorFrom(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, nonNil(list))
}

func (h *handler) dashboard(c *gin.Context) {
	d, err := h.requests.Dashboard(c.Request.Context(), actorFrom(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h *handler) getRequest(c *gin.Context) {
	d, err := h.requests.Get(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h *handler) editRequest(c *gin.Context) {
	var body editRequestBody
	if err := bindValidated(c, h.schemas.editRequest, &body); err != nil {
		h.writeError(c, err)
		return
	}

	r, report, err := h.requests.Edit(c.Request.Context(), actorFrom(c), c.Param("id"), body.Draft, body.KeepFiles, body.NewFiles)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, editResponse{Request: r, Report: report})
}

type transitionFunc func(ctx context.Context, actor filing.Actor, id string) (*filing.Request, error)

func (h *handler) transition(c *gin.Context, fn transitionFunc) {
	r, err := fn(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (h *handler) cancelRequest(c *gin.Context)   { h.transition(c, h.requests.Cancel) }
func (h *handler) startRequest(c *gin.Context)    { h.transition(c, h.requests.Start) }
func (h *handler) completeRequest(c *gin.Context) { h.transition(c, h.requests.Complete) }

func (h *handler) assignRequest(c *gin.Context) {
	var body assignBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.writeError(c, badRequest("body", err.Error()))
		return
	}

	r, err := h.requests.Assign(c.Request.Context(), actorFrom(c), c.Param("id"), body.ProfessionalID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

// nonNil keeps empty listings encoded as [] rather than null.
func nonNil(list []*filing.Request) []*filing.Request {
	if list == nil {
		return []*filing.Request{}
	}
	return list
}
