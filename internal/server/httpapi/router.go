package httpapi

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/dmitrijs2005/taxdesk/internal/filing"
	"github.com/dmitrijs2005/taxdesk/internal/logging"
	"github.com/dmitrijs2005/taxdesk/internal/server/models"
	"github.com/dmitrijs2005/taxdesk/internal/server/services"
	"github.com/dmitrijs2005/taxdesk/internal/upload"
	"github.com/gin-gonic/gin"
)

type Requests interface {
	Create(ctx context.Context, actor filing.Actor, d filing.Draft, files []filing.AttachedFile) (*filing.Request, error)
	Get(ctx context.Context, actor filing.Actor, id string) (*services.Detail, error)
	ListOwned(ctx context.Context, actor filing.Actor) ([]*filing.Request, error)
	ListAssigned(ctx context.Context, actor filing.Actor) ([]*filing.Request, error)
	Dashboard(ctx context.Context, actor filing.Actor) (*filing.Dashboard, error)
	Cancel(ctx context.Context, actor filing.Actor, id string) (*filing.Request, error)
	Start(ctx context.Context, actor filing.Actor, id string) (*filing.Request, error)
	Complete(ctx context.Context, actor filing.Actor, id string) (*filing.Request, error)
	Assign(ctx context.Context, actor filing.Actor, id, professionalID string) (*filing.Request, error)
	Edit(ctx context.Context, actor filing.Actor, id string, d filing.Draft, keep []string, added []filing.AttachedFile) (*filing.Request, *services.EditReport, error)
}

type Attachments interface {
	CommitNewFiles(ctx context.Context, actor filing.Actor, requestID string, files []filing.AttachedFile) (*filing.Request, error)
	RemoveFile(ctx context.Context, actor filing.Actor, requestID, path string) (*filing.Request, error)
	UploadAndCommit(ctx context.Context, actor filing.Actor, requestID string, files []upload.File) (*filing.Request, error)
}

type Links interface {
	SignedURL(ctx context.Context, path string) (string, time.Time, error)
}

type Uploads interface {
	Put(ctx context.Context, actor filing.Actor, key string, data []byte, overwrite bool) error
	Begin(ctx context.Context, actor filing.Actor, key string, size int64) (string, error)
	WriteChunk(ctx context.Context, actor filing.Actor, id string, index int, data []byte) error
	Complete(ctx context.Context, actor filing.Actor, id string) (string, error)
	Abort(ctx context.Context, actor filing.Actor, id string) error
}

type Identity interface {
	Resolve(ctx context.Context, userID string, operator bool) (filing.Actor, error)
}

// Directory lists verified professionals.
type Directory interface {
	List(ctx context.Context, actor filing.Actor) ([]*models.Professional, error)
	Get(ctx context.Context, actor filing.Actor, id string) (*models.Professional, error)
}

// LocalBlobs serves objects of the filesystem store behind signed links.
type LocalBlobs interface {
	Open(key string, expires int64, sig string) (*os.File, error)
}

// Deps wires the router. Local may be nil when objects live in S3.
type Deps struct {
	Requests    Requests
	Attachments Attachments
	Links       Links
	Uploads     Uploads
	Identity    Identity
	Directory   Directory
	Local       LocalBlobs

	Limits    filing.UploadLimits
	SecretKey []byte
	TokenTTL  time.Duration
	// DevAuth enables POST /v1/auth/dev-token.
	DevAuth bool
	Logger  logging.Logger
}

type handler struct {
	requests    Requests
	attachments Attachments
	links       Links
	uploads     Uploads
	identity    Identity
	directory   Directory
	local       LocalBlobs

	limits    filing.UploadLimits
	secretKey []byte
	tokenTTL  time.Duration
	schemas   *schemas
	logger    logging.Logger
}

// NewRouter builds the gin engine serving the API.
func NewRouter(d Deps) (http.Handler, error) {
	s, err := loadSchemas()
	if err != nil {
		return nil, err
	}

	h := &handler{
		requests:    d.Requests,
		attachments: d.Attachments,
		links:       d.Links,
		uploads:     d.Uploads,
		identity:    d.Identity,
		directory:   d.Directory,
		local:       d.Local,
		limits:      d.Limits,
		secretKey:   d.SecretKey,
		tokenTTL:    d.TokenTTL,
		schemas:     s,
		logger:      d.Logger.With("module", "http_api"),
	}

	r := gin.New()
	r.Use(h.withSentry, h.logRequests)
	r.MaxMultipartMemory = 8 << 20

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	v1 := r.Group("/v1")
	v1.GET("/limits", h.getLimits)
	if d.DevAuth {
		v1.POST("/auth/dev-token", h.devToken)
	}
	if d.Local != nil {
		v1.GET("/local-blobs/*key", h.serveLocalBlob)
	}

	api := v1.Group("", h.requireAuth)
	api.GET("/me", h.me)
	api.GET("/professionals", h.listProfessionals)
	api.GET("/professionals/:id", h.getProfessional)

	api.POST("/requests", h.createRequest)
	api.GET("/requests", h.listOwned)
	api.GET("/requests/:id", h.getRequest)
	api.PATCH("/requests/:id", h.editRequest)
	api.POST("/requests/:id/cancel", h.cancelRequest)
	api.POST("/requests/:id/start", h.startRequest)
	api.POST("/requests/:id/complete", h.completeRequest)
	api.POST("/requests/:id/assign", h.assignRequest)
	api.GET("/assigned", h.listAssigned)
	api.GET("/dashboard", h.dashboard)

	api.POST("/requests/:id/attachments", h.commitAttachments)
	api.POST("/requests/:id/attachments/upload", h.uploadAttachments)
	api.DELETE("/requests/:id/attachments", h.removeAttachment)
	api.GET("/files/url", h.signedURL)

	api.PUT("/blobs/*key", h.putBlob)
	api.POST("/uploads", h.beginUpload)
	api.PUT("/uploads/:id/chunks/:index", h.writeChunk)
	api.POST("/uploads/:id/complete", h.completeUpload)
	api.DELETE("/uploads/:id", h.abortUpload)

	return r, nil
}
