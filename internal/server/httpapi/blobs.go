package httpapi

import (
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

type beginUploadBody struct {
	Key  string `json:"key" binding:"required"`
	Size int64  `json:"size" binding:"min=0"`
}

type beginUploadResponse struct {
	ID string `json:"id"`
}

type completeUploadResponse struct {
	Key string `json:"key"`
}

func keyParam(c *gin.Context) string {
	return strings.TrimPrefix(c.Param("key"), "/")
}

// readBody reads at most limit bytes of the request body.
func readBody(c *gin.Context, limit int64) ([]byte, error) {
	data, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, limit))
	if err != nil {
		return nil, badRequest("body", err.Error())
	}
	return data, nil
}

func (h *handler) maxObjectBytes() int64 {
	return h.limits.MaxFileBytes()
}

func (h *handler) putBlob(c *gin.Context) {
	data, err := readBody(c, h.maxObjectBytes())
	if err != nil {
		h.writeError(c, err)
		return
	}

	overwrite, _ := strconv.ParseBool(c.Query("overwrite"))
	if err := h.uploads.Put(c.Request.Context(), actorFrom(c), keyParam(c), data, overwrite); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handler) beginUpload(c *gin.Context) {
	var body beginUploadBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.writeError(c, badRequest("body", err.Error()))
		return
	}
	if body.Size > h.maxObjectBytes() {
		h.writeError(c, badRequest("size", "exceeds the maximum file size"))
		return
	}

	id, err := h.uploads.Begin(c.Request.Context(), actorFrom(c), body.Key, body.Size)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, beginUploadResponse{ID: id})
}

func (h *handler) writeChunk(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil || index < 0 {
		h.writeError(c, badRequest("index", "must be a non-negative integer"))
		return
	}

	data, err := readBody(c, h.limits.ChunkSizeBytes)
	if err != nil {
		h.writeError(c, err)
		return
	}

	if err := h.uploads.WriteChunk(c.Request.Context(), actorFrom(c), c.Param("id"), index, data); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handler) completeUpload(c *gin.Context) {
	key, err := h.uploads.Complete(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, completeUploadResponse{Key: key})
}

func (h *handler) abortUpload(c *gin.Context) {
	if err := h.uploads.Abort(c.Request.Context(), actorFrom(c), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// serveLocalBlob streams an object of the filesystem store. The signature
// in the query string is the only credential.
func (h *handler) serveLocalBlob(c *gin.Context) {
	expires, err := strconv.ParseInt(c.Query("expires"), 10, 64)
	if err != nil {
		h.writeError(c, badRequest("expires", "must be a unix timestamp"))
		return
	}

	key := keyParam(c)
	f, err := h.local.Open(key, expires, c.Query("sig"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		h.writeError(c, err)
		return
	}
	http.ServeContent(c.Writer, c.Request, path.Base(key), info.ModTime(), f)
}
