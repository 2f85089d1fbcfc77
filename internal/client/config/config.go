package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/dmitrijs2005/taxdesk/internal/configx"
	"github.com/dmitrijs2005/taxdesk/internal/filing"
	"github.com/dmitrijs2005/taxdesk/internal/flagx"
)

// EnvPrefix prefixes every environment variable the CLI reads.
const EnvPrefix = "TAXDESK_CLIENT_"

// Config holds runtime settings for the taxdesk CLI.
//
// Fields:
//   - ServerURL: base URL of the HTTP API.
//   - AccessToken: bearer token; when empty the CLI asks for one.
//   - DevUser: user id to request a development token for.
//   - IdentityRefreshInterval: how often the session watcher re-resolves
//     the caller's identity.
//   - Upload: local staging and engine limits. The CLI replaces them with
//     the server's published limits when GET /v1/limits succeeds.
type Config struct {
	ServerURL               string
	AccessToken             string
	DevUser                 string
	IdentityRefreshInterval time.Duration
	RequestTimeout          time.Duration
	RetryBackoff            time.Duration
	LogLevel                string

	Upload filing.UploadLimits
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerURL = "http://127.0.0.1:8080"
	c.IdentityRefreshInterval = 30 * time.Second
	c.RequestTimeout = 30 * time.Second
	c.RetryBackoff = time.Second
	c.LogLevel = "warn"
	c.Upload = filing.DefaultUploadLimits()
}

func (c *Config) Validate() error {
	var errs []error
	u, err := url.Parse(c.ServerURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("server url %q must be an absolute http(s) url", c.ServerURL))
	}
	if c.IdentityRefreshInterval <= 0 || c.RequestTimeout <= 0 {
		errs = append(errs, errors.New("intervals must be positive"))
	}
	if c.Upload.ChunkSizeBytes <= 0 || c.Upload.MaxRetries <= 0 {
		errs = append(errs, errors.New("chunk size and retries must be positive"))
	}
	if c.RetryBackoff < 0 {
		errs = append(errs, errors.New("retry backoff must not be negative"))
	}
	return errors.Join(errs...)
}

// LoadConfig builds a Config from os.Args.
func LoadConfig() (*Config, error) {
	return Load(os.Args[1:])
}

// Load applies defaults, the config file, the environment and then flags
// from args. Later sources take precedence over earlier ones.
func Load(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	if path := flagx.ConfigFileFlags(args); path != "" {
		if err := parseFile(cfg, path); err != nil {
			return nil, err
		}
	}

	env, err := configx.LoadEnv(args, EnvPrefix)
	if err != nil {
		return nil, err
	}
	if err := parseEnv(cfg, env); err != nil {
		return nil, err
	}

	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
