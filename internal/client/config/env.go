package config

import "github.com/dmitrijs2005/taxdesk/internal/configx"

// parseEnv overlays TAXDESK_CLIENT_* variables, e.g.
// TAXDESK_CLIENT_SERVER_URL or TAXDESK_CLIENT_ACCESS_TOKEN.
func parseEnv(cfg *Config, env *configx.Env) error {
	env.String("SERVER_URL", &cfg.ServerURL)
	env.String("ACCESS_TOKEN", &cfg.AccessToken)
	env.String("DEV_USER", &cfg.DevUser)
	env.Duration("IDENTITY_REFRESH_INTERVAL", &cfg.IdentityRefreshInterval)
	env.Duration("REQUEST_TIMEOUT", &cfg.RequestTimeout)
	env.Duration("RETRY_BACKOFF", &cfg.RetryBackoff)
	env.String("LOG_LEVEL", &cfg.LogLevel)

	env.Int("MAX_FILES", &cfg.Upload.MaxFiles)
	env.Int("MAX_FILE_SIZE_MB", &cfg.Upload.MaxFileSizeMB)
	env.List("ACCEPTED_TYPES", &cfg.Upload.AcceptedTypes)
	env.Int64("CHUNK_SIZE_BYTES", &cfg.Upload.ChunkSizeBytes)
	env.Int("MAX_RETRIES", &cfg.Upload.MaxRetries)
	return env.Err()
}
