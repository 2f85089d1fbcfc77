// Package server initializes and runs the taxdesk API server. It opens the
// database and runs migrations, selects the blob store backend, wires the
// services into the HTTP router and handles graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/taxdesk/internal/cryptox"
	"github.com/dmitrijs2005/taxdesk/internal/logging"
	"github.com/dmitrijs2005/taxdesk/internal/server/blob"
	"github.com/dmitrijs2005/taxdesk/internal/server/config"
	"github.com/dmitrijs2005/taxdesk/internal/server/httpapi"
	"github.com/dmitrijs2005/taxdesk/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/taxdesk/internal/server/services"
	"github.com/dmitrijs2005/taxdesk/internal/upload"
	"github.com/getsentry/sentry-go"
)

const sentryFlushTimeout = 2 * time.Second

// seams for tests
var (
	openDB               = sql.Open
	newRepositoryManager = repomanager.NewPostgresRepositoryManager
	initSentry           = sentry.Init
	newS3Store           = blob.NewS3Store
)

type App struct {
	config  *config.Config
	logger  logging.Logger
	db      *sql.DB
	uploads *services.UploadGateway
	handler http.Handler
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	logger := newLogger(c)

	db, err := openDB("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	m := newRepositoryManager()
	if err := m.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations failed: %w", err)
	}

	store, local, err := newBlobStore(ctx, c)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	engine := upload.NewEngine(store, logger,
		upload.WithChunkSize(c.Upload.ChunkSizeBytes),
		upload.WithRetry(c.Upload.MaxRetries, c.RetryBackoff),
	)

	uploads := services.NewUploadGateway(store, c.UploadSessionIdle, logger)

	deps := httpapi.Deps{
		Requests:    services.NewRequestService(db, m, store, logger),
		Attachments: services.NewLedger(db, m, store, engine, logger),
		Links:       services.NewGateway(store, c.SignedURLTTL(), logger),
		Uploads:     uploads,
		Identity:    services.NewIdentityService(db, m),
		Directory:   services.NewDirectoryService(db, m, logger),
		Limits:      c.Upload,
		SecretKey:   []byte(c.SecretKey),
		TokenTTL:    c.AccessTokenValidityDuration,
		DevAuth:     c.DevAuth,
		Logger:      logger,
	}
	// a typed nil would make the router serve local links
	if local != nil {
		deps.Local = local
	}

	h, err := httpapi.NewRouter(deps)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &App{config: c, logger: logger, db: db, uploads: uploads, handler: h}, nil
}

// newLogger builds the JSON logger; with a Sentry DSN configured, errors
// are reported there as well.
func newLogger(c *config.Config) logging.Logger {
	var logger logging.Logger = logging.New(os.Stdout, c.LogLevel)
	if c.SentryDSN == "" {
		return logger
	}

	err := initSentry(sentry.ClientOptions{
		Dsn:         c.SentryDSN,
		Environment: c.SentryEnvironment,
	})
	if err != nil {
		logger.Warn(context.Background(), "sentry init failed, errors are only logged", "error", err)
		return logger
	}
	return logging.NewSentryLogger(logger)
}

func newBlobStore(ctx context.Context, c *config.Config) (blob.Store, *blob.LocalStore, error) {
	switch c.StorageBackend {
	case config.StorageLocal:
		signer, err := cryptox.NewSigner([]byte(c.SecretKey))
		if err != nil {
			return nil, nil, fmt.Errorf("link signer: %w", err)
		}
		local, err := blob.NewLocalStore(c.LocalStorageDir, c.PublicBaseURL, signer)
		if err != nil {
			return nil, nil, fmt.Errorf("local blob store: %w", err)
		}
		return local, local, nil
	case config.StorageS3:
		s, err := newS3Store(ctx, blob.S3Config{
			Region:       c.S3Region,
			Endpoint:     c.S3BaseEndpoint,
			AccessKey:    c.S3AccessKey,
			SecretKey:    c.S3SecretKey,
			Bucket:       c.S3Bucket,
			UsePathStyle: c.S3UsePathStyle,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("s3 blob store: %w", err)
		}
		return s, nil, nil
	}
	return nil, nil, fmt.Errorf("unknown storage backend %q", c.StorageBackend)
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := httpapi.NewServer(app.config.HTTPAddr, app.handler, app.logger, app.config.ShutdownTimeout)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, "http server failed", "error", err)
		cancelFunc()
	}
}

// sweepUploads aborts chunk sessions that went idle.
func (app *App) sweepUploads(ctx context.Context) {
	interval := app.config.UploadSessionIdle / 2
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := app.uploads.Sweep(ctx); n > 0 {
				app.logger.Info(ctx, "aborted idle upload sessions", "count", n)
			}
		}
	}
}

// Run blocks until a termination signal arrives or the server fails.
func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.sweepUploads(ctx)
	}()

	wg.Wait()
}

// Close releases the database and flushes pending Sentry events.
func (app *App) Close() error {
	sentry.Flush(sentryFlushTimeout)
	return app.db.Close()
}
