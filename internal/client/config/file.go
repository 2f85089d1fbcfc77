package config

import (
	"github.com/dmitrijs2005/taxdesk/internal/configx"
	"github.com/dmitrijs2005/taxdesk/internal/filing"
	"github.com/dmitrijs2005/taxdesk/internal/timex"
)

// FileConfig is the DTO read from YAML or JSON config files, seeded from
// the current Config so missing keys keep their value.
type FileConfig struct {
	ServerURL               string         `json:"server_url" yaml:"server_url"`
	AccessToken             string         `json:"access_token" yaml:"access_token"`
	DevUser                 string         `json:"dev_user" yaml:"dev_user"`
	IdentityRefreshInterval timex.Duration `json:"identity_refresh_interval" yaml:"identity_refresh_interval"`
	RequestTimeout          timex.Duration `json:"request_timeout" yaml:"request_timeout"`
	RetryBackoff            timex.Duration `json:"retry_backoff" yaml:"retry_backoff"`
	LogLevel                string         `json:"log_level" yaml:"log_level"`

	Upload filing.UploadLimits `json:"upload" yaml:"upload"`
}

func parseFile(cfg *Config, path string) error {
	fc := FileConfig{
		ServerURL:               cfg.ServerURL,
		AccessToken:             cfg.AccessToken,
		DevUser:                 cfg.DevUser,
		IdentityRefreshInterval: timex.Duration{Duration: cfg.IdentityRefreshInterval},
		RequestTimeout:          timex.Duration{Duration: cfg.RequestTimeout},
		RetryBackoff:            timex.Duration{Duration: cfg.RetryBackoff},
		LogLevel:                cfg.LogLevel,
		Upload:                  cfg.Upload,
	}
	if err := configx.DecodeFile(path, &fc); err != nil {
		return err
	}

	cfg.ServerURL = fc.ServerURL
	cfg.AccessToken = fc.AccessToken
	cfg.DevUser = fc.DevUser
	cfg.IdentityRefreshInterval = fc.IdentityRefreshInterval.Duration
	cfg.RequestTimeout = fc.RequestTimeout.Duration
	cfg.RetryBackoff = fc.RetryBackoff.Duration
	cfg.LogLevel = fc.LogLevel
	cfg.Upload = fc.Upload
	return nil
}
