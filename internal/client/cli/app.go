package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/dmitrijs2005/taxdesk/internal/client/apiclient"
	"github.com/dmitrijs2005/taxdesk/internal/client/config"
	"github.com/dmitrijs2005/taxdesk/internal/client/session"
	"github.com/dmitrijs2005/taxdesk/internal/client/staging"
	"github.com/dmitrijs2005/taxdesk/internal/filing"
	"github.com/dmitrijs2005/taxdesk/internal/logging"
	"github.com/dmitrijs2005/taxdesk/internal/upload"
)

// API is the server surface the CLI uses; *apiclient.Client implements it.
type API interface {
	upload.Target
	session.Resolver

	SetToken(token string)
	DevToken(ctx context.Context, userID, role string) (string, error)
	Limits(ctx context.Context) (filing.UploadLimits, error)

	CreateRequest(ctx context.Context, d filing.Draft, files []filing.AttachedFile) (*filing.Request, error)
	ListOwned(ctx context.Context) ([]*filing.Request, error)
	ListAssigned(ctx context.Context) ([]*filing.Request, error)
	Dashboard(ctx context.Context) (*filing.Dashboard, error)
	Get(ctx context.Context, id string) (*apiclient.Detail, error)
	Edit(ctx context.Context, id string, d filing.Draft, keep []string, added []filing.AttachedFile) (*filing.Request, *apiclient.EditReport, error)
	Cancel(ctx context.Context, id string) (*filing.Request, error)
	Start(ctx context.Context, id string) (*filing.Request, error)
	Complete(ctx context.Context, id string) (*filing.Request, error)
	Assign(ctx context.Context, id, professionalID string) (*filing.Request, error)
	CommitFiles(ctx context.Context, id string, files []filing.AttachedFile) (*filing.Request, error)
	RemoveFile(ctx context.Context, id, path string) (*filing.Request, error)
	SignedURL(ctx context.Context, path string) (string, time.Time, error)
	Professionals(ctx context.Context) ([]apiclient.Professional, error)
	Professional(ctx context.Context, id string) (*apiclient.Professional, error)
}

type App struct {
	config  *config.Config
	api     API
	session *session.Holder
	logger  logging.Logger
	reader  *bufio.Reader
	out     io.Writer
	now     func() time.Time

	mu      sync.Mutex
	limits  filing.UploadLimits
	staging *staging.Area
	engine  *upload.Engine

	// signedOut fires when the identity changes so staged files of the
	// previous user are dropped.
	signedOut chan struct{}
}

func NewApp(c *config.Config) (*App, error) {
	logger := logging.New(os.Stderr, c.LogLevel)

	api, err := apiclient.New(c.ServerURL,
		apiclient.WithToken(c.AccessToken),
		apiclient.WithHTTPClient(&http.Client{Timeout: c.RequestTimeout}),
	)
	if err != nil {
		return nil, err
	}

	return newApp(c, api, os.Stdin, os.Stdout, logger), nil
}

func newApp(c *config.Config, api API, in io.Reader, out io.Writer, l logging.Logger) *App {
	a := &App{
		config:    c,
		api:       api,
		session:   session.NewHolder(api, l),
		logger:    l.With("module", "cli"),
		reader:    bufio.NewReader(in),
		out:       out,
		now:       time.Now,
		signedOut: make(chan struct{}, 1),
	}
	a.applyLimits(c.Upload)
	a.session.OnChange(func(old, cur session.Context) {
		if old.UserID != "" && old.UserID != cur.UserID {
			select {
			case a.signedOut <- struct{}{}:
			default:
			}
		}
	})
	return a
}

// applyLimits rebuilds the staging area and the engine for limits. Staged
// files are kept when they still fit.
func (a *App) applyLimits(l filing.UploadLimits) {
	area := staging.New(staging.Limits{
		MaxFiles:       l.MaxFiles,
		MaxFileSizeMB:  l.MaxFileSizeMB,
		LargeFileBytes: staging.DefaultLargeFileBytes,
		AcceptedTypes:  l.AcceptedTypes,
	})
	area.Observe(func(files []staging.File) {
		a.logger.Debug(context.Background(), "staging changed", "files", len(files))
	})
	engine := upload.NewEngine(a.api, a.logger,
		upload.WithChunkSize(l.ChunkSizeBytes),
		upload.WithRetry(l.MaxRetries, a.config.RetryBackoff),
		upload.WithClock(func() time.Time { return a.now() }),
	)

	a.mu.Lock()
	old := a.staging
	a.limits, a.staging, a.engine = l, area, engine
	a.mu.Unlock()

	if old != nil {
		if res, err := area.Stage(old.Files()); err == nil {
			a.printWarnings(res)
		}
	}
}

func (a *App) area() *staging.Area {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.staging
}

func (a *App) uploader() *upload.Engine {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.engine
}

// syncLimits adopts the server's published limits when they can be read.
func (a *App) syncLimits(ctx context.Context) {
	l, err := a.api.Limits(ctx)
	if err != nil {
		a.logger.Warn(ctx, "using local upload limits", "error", err)
		return
	}
	a.applyLimits(l)
}

func (a *App) getStatus() string {
	s := a.session.Current()
	switch {
	case !s.Authenticated:
		return "(signed out)"
	case s.VerifiedProfessional:
		return fmt.Sprintf("(%s pro, %d staged)", s.UserID, a.area().Len())
	}
	return fmt.Sprintf("(%s, %d staged)", s.UserID, a.area().Len())
}

// Run blocks until the user exits or ctx is cancelled.
func (a *App) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	fmt.Fprintln(a.out, "Welcome to taxdesk (type 'help' for commands)")

	a.syncLimits(ctx)
	if err := a.signIn(ctx); err != nil {
		fmt.Fprintln(a.out, "Not signed in:", err)
	}

	go a.session.Watch(ctx, a.config.IdentityRefreshInterval)
	// limits are settled by now, so the area no longer changes
	go a.area().ClearOn(ctx, a.signedOut)

	runREPL(ctx, a.commands(), a.getStatus, a.reader, a.out)
}

func (a *App) commands() map[string]command {
	return map[string]command{
		"login":     {"login [dev <userId> [operator]]", a.Login},
		"logout":    {"logout", a.Logout},
		"whoami":    {"whoami", a.WhoAmI},
		"stage":     {"stage [-r <requestId>] <path>...", a.Stage},
		"unstage":   {"unstage <n>", a.Unstage},
		"staged":    {"staged", a.Staged},
		"clear":     {"clear", a.Clear},
		"new":       {"new", a.New},
		"attach":    {"attach <requestId>", a.Attach},
		"ls":        {"ls", a.List},
		"assigned":  {"assigned", a.Assigned},
		"dashboard": {"dashboard", a.Dashboard},
		"show":      {"show <requestId>", a.Show},
		"edit":      {"edit <requestId>", a.Edit},
		"cancel":    {"cancel <requestId>", a.Cancel},
		"start":     {"start <requestId>", a.Start},
		"complete":  {"complete <requestId>", a.Complete},
		"assign":    {"assign <requestId> <professionalId>", a.Assign},
		"rm":        {"rm <requestId> <path>", a.Remove},
		"url":       {"url <path>", a.URL},
		"experts":   {"experts", a.Experts},
		"expert":    {"expert <professionalId>", a.Expert},
	}
}
