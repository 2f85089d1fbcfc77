package httpapi

import (
	"fmt"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/dmitrijs2005/taxdesk/internal/common"
	"github.com/dmitrijs2005/taxdesk/internal/filing"
	"github.com/dmitrijs2005/taxdesk/internal/upload"
	"github.com/gin-gonic/gin"
)

type commitBody struct {
	Files []filing.AttachedFile `json:"files"`
}

type signedURLResponse struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (h *handler) commitAttachments(c *gin.Context) {
	var body commitBody
	if err := bindValidated(c, h.schemas.commitFiles, &body); err != nil {
		h.writeError(c, err)
		return
	}

	r, err := h.attachments.CommitNewFiles(c.Request.Context(), actorFrom(c), c.Param("id"), body.Files)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (h *handler) removeAttachment(c *gin.Context) {
	path := c.Query("path")
	if path == "" {
		h.writeError(c, badRequest("path", "required"))
		return
	}

	r, err := h.attachments.RemoveFile(c.Request.Context(), actorFrom(c), c.Param("id"), path)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

// uploadAttachments accepts a multipart form with one or more "files"
// parts and runs them through the server-side upload engine. The batch is
// held to the published upload limits before anything is stored.
func (h *handler) uploadAttachments(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxFormBytes())
	form, err := c.MultipartForm()
	if err != nil {
		h.writeError(c, badRequest("files", err.Error()))
		return
	}
	headers := form.File["files"]
	if len(headers) == 0 {
		h.writeError(c, badRequest("files", "no files in form"))
		return
	}

	infos := make([]filing.FileInfo, 0, len(headers))
	for _, fh := range headers {
		infos = append(infos, filing.FileInfo{Name: fh.Filename, Type: fh.Header.Get("Content-Type"), Size: fh.Size})
	}
	if err := h.limits.CheckBatch(infos); err != nil {
		h.writeError(c, err)
		return
	}

	files := make([]upload.File, 0, len(headers))
	opened := make([]multipart.File, 0, len(headers))
	defer func() {
		for _, f := range opened {
			_ = f.Close()
		}
	}()

	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			h.writeError(c, badRequest(fh.Filename, fmt.Sprintf("unreadable part: %v", err)))
			return
		}
		opened = append(opened, f)
		files = append(files, upload.File{
			Name:    fh.Filename,
			Type:    fh.Header.Get("Content-Type"),
			Size:    fh.Size,
			Content: f,
		})
	}

	r, err := h.attachments.UploadAndCommit(c.Request.Context(), actorFrom(c), c.Param("id"), files)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

// maxFormBytes bounds a multipart upload: MaxFiles full-size files plus
// room for part headers.
func (h *handler) maxFormBytes() int64 {
	return int64(h.limits.MaxFiles)*h.limits.MaxFileBytes() + common.MiB
}

func (h *handler) signedURL(c *gin.Context) {
	u, expires, err := h.links.SignedURL(c.Request.Context(), c.Query("path"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, signedURLResponse{URL: u, ExpiresAt: expires})
}
