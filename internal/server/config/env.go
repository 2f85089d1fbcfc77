package config

import "github.com/dmitrijs2005/taxdesk/internal/configx"

// parseEnv overlays TAXDESK_* variables, e.g. TAXDESK_DATABASE_DSN or
// TAXDESK_ACCEPTED_TYPES="image/*,.pdf".
func parseEnv(cfg *Config, env *configx.Env) error {
	env.String("HTTP_ADDR", &cfg.HTTPAddr)
	env.String("DATABASE_DSN", &cfg.DatabaseDSN)
	env.String("SECRET_KEY", &cfg.SecretKey)
	env.Duration("ACCESS_TOKEN_TTL", &cfg.AccessTokenValidityDuration)
	env.Bool("DEV_AUTH", &cfg.DevAuth)
	env.String("LOG_LEVEL", &cfg.LogLevel)
	env.String("SENTRY_DSN", &cfg.SentryDSN)
	env.String("SENTRY_ENVIRONMENT", &cfg.SentryEnvironment)

	env.String("STORAGE_BACKEND", &cfg.StorageBackend)
	env.String("LOCAL_STORAGE_DIR", &cfg.LocalStorageDir)
	env.String("PUBLIC_BASE_URL", &cfg.PublicBaseURL)
	env.String("S3_ACCESS_KEY", &cfg.S3AccessKey)
	env.String("S3_SECRET_KEY", &cfg.S3SecretKey)
	env.String("S3_BUCKET", &cfg.S3Bucket)
	env.String("S3_REGION", &cfg.S3Region)
	env.String("S3_ENDPOINT", &cfg.S3BaseEndpoint)
	env.Bool("S3_USE_PATH_STYLE", &cfg.S3UsePathStyle)

	env.Int("MAX_FILES", &cfg.Upload.MaxFiles)
	env.Int("MAX_FILE_SIZE_MB", &cfg.Upload.MaxFileSizeMB)
	env.List("ACCEPTED_TYPES", &cfg.Upload.AcceptedTypes)
	env.Int64("CHUNK_SIZE_BYTES", &cfg.Upload.ChunkSizeBytes)
	env.Int("MAX_RETRIES", &cfg.Upload.MaxRetries)
	env.Int("SIGNED_URL_TTL_SECONDS", &cfg.Upload.SignedURLTTLSeconds)
	env.Duration("RETRY_BACKOFF", &cfg.RetryBackoff)
	env.Duration("UPLOAD_SESSION_IDLE", &cfg.UploadSessionIdle)
	env.Duration("SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout)

	return env.Err()
}
