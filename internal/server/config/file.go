package config

import (
	"time"

	"github.com/dmitrijs2005/taxdesk/internal/configx"
	"github.com/dmitrijs2005/taxdesk/internal/filing"
	"github.com/dmitrijs2005/taxdesk/internal/timex"
)

// FileConfig is the DTO read from YAML or JSON config files. It is seeded
// from the current Config, so keys missing from the file keep their value.
// Durations use timex.Duration and accept "15m" as well as nanoseconds.
type FileConfig struct {
	HTTPAddr                    string         `json:"http_addr" yaml:"http_addr"`
	DatabaseDSN                 string         `json:"database_dsn" yaml:"database_dsn"`
	SecretKey                   string         `json:"secret_key" yaml:"secret_key"`
	AccessTokenValidityDuration timex.Duration `json:"access_token_validity_duration" yaml:"access_token_validity_duration"`
	DevAuth                     bool           `json:"dev_auth" yaml:"dev_auth"`
	LogLevel                    string         `json:"log_level" yaml:"log_level"`
	SentryDSN                   string         `json:"sentry_dsn" yaml:"sentry_dsn"`
	SentryEnvironment           string         `json:"sentry_environment" yaml:"sentry_environment"`

	StorageBackend  string `json:"storage_backend" yaml:"storage_backend"`
	LocalStorageDir string `json:"local_storage_dir" yaml:"local_storage_dir"`
	PublicBaseURL   string `json:"public_base_url" yaml:"public_base_url"`
	S3AccessKey     string `json:"s3_access_key" yaml:"s3_access_key"`
	S3SecretKey     string `json:"s3_secret_key" yaml:"s3_secret_key"`
	S3Bucket        string `json:"s3_bucket" yaml:"s3_bucket"`
	S3Region        string `json:"s3_region" yaml:"s3_region"`
	S3BaseEndpoint  string `json:"s3_base_endpoint" yaml:"s3_base_endpoint"`
	S3UsePathStyle  bool   `json:"s3_use_path_style" yaml:"s3_use_path_style"`

	Upload            filing.UploadLimits `json:"upload" yaml:"upload"`
	RetryBackoff      timex.Duration      `json:"retry_backoff" yaml:"retry_backoff"`
	UploadSessionIdle timex.Duration      `json:"upload_session_idle" yaml:"upload_session_idle"`
	ShutdownTimeout   timex.Duration      `json:"shutdown_timeout" yaml:"shutdown_timeout"`
}

func parseFile(cfg *Config, path string) error {
	fc := FileConfig{
		HTTPAddr:                    cfg.HTTPAddr,
		DatabaseDSN:                 cfg.DatabaseDSN,
		SecretKey:                   cfg.SecretKey,
		AccessTokenValidityDuration: timex.Duration{Duration: cfg.AccessTokenValidityDuration},
		DevAuth:                     cfg.DevAuth,
		LogLevel:                    cfg.LogLevel,
		SentryDSN:                   cfg.SentryDSN,
		SentryEnvironment:           cfg.SentryEnvironment,
		StorageBackend:              cfg.StorageBackend,
		LocalStorageDir:             cfg.LocalStorageDir,
		PublicBaseURL:               cfg.PublicBaseURL,
		S3AccessKey:                 cfg.S3AccessKey,
		S3SecretKey:                 cfg.S3SecretKey,
		S3Bucket:                    cfg.S3Bucket,
		S3Region:                    cfg.S3Region,
		S3BaseEndpoint:              cfg.S3BaseEndpoint,
		S3UsePathStyle:              cfg.S3UsePathStyle,
		Upload:                      cfg.Upload,
		RetryBackoff:                timex.Duration{Duration: cfg.RetryBackoff},
		UploadSessionIdle:           timex.Duration{Duration: cfg.UploadSessionIdle},
		ShutdownTimeout:             timex.Duration{Duration: cfg.ShutdownTimeout},
	}

	if err := configx.DecodeFile(path, &fc); err != nil {
		return err
	}

	cfg.HTTPAddr = fc.HTTPAddr
	cfg.DatabaseDSN = fc.DatabaseDSN
	cfg.SecretKey = fc.SecretKey
	cfg.AccessTokenValidityDuration = time.Duration(fc.AccessTokenValidityDuration.Duration)
	cfg.DevAuth = fc.DevAuth
	cfg.LogLevel = fc.LogLevel
	cfg.SentryDSN = fc.SentryDSN
	cfg.SentryEnvironment = fc.SentryEnvironment
	cfg.StorageBackend = fc.StorageBackend
	cfg.LocalStorageDir = fc.LocalStorageDir
	cfg.PublicBaseURL = fc.PublicBaseURL
	cfg.S3AccessKey = fc.S3AccessKey
	cfg.S3SecretKey = fc.S3SecretKey
	cfg.S3Bucket = fc.S3Bucket
	cfg.S3Region = fc.S3Region
	cfg.S3BaseEndpoint = fc.S3BaseEndpoint
	cfg.S3UsePathStyle = fc.S3UsePathStyle
	cfg.Upload = fc.Upload
	cfg.RetryBackoff = time.Duration(fc.RetryBackoff.Duration)
	cfg.UploadSessionIdle = time.Duration(fc.UploadSessionIdle.Duration)
	cfg.ShutdownTimeout = time.Duration(fc.ShutdownTimeout.Duration)
	return nil
}
