package config

import (
	"flag"
	"io"

	"github.com/dmitrijs2005/taxdesk/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags:
//
//	-a string         HTTP bind address (e.g., ":8080")
//	-d string         PostgreSQL DSN
//	-s string         JWT HMAC secret key
//	-t duration       access token validity (e.g., "12h")
//	-storage string   blob backend, "s3" or "local"
//	-blob-dir string  directory of the local blob backend
//	-public-url       externally visible base URL of this server
//	-b string         S3 bucket name
//	-g string         S3 region
//	-e string         S3 base endpoint (e.g., "http://127.0.0.1:9000")
//	-u / -p string    S3 access key / secret key
//	-log-level        debug, info, warn or error
//	-dev-auth         enable the development token endpoint
//
// Args are filtered with flagx.FilterArgs first so -c and -env-file, which
// belong to the earlier layers, do not trip the parser.
func parseFlags(cfg *Config, args []string) error {
	args = flagx.FilterArgs(args, []string{
		"-a", "-d", "-s", "-t", "-storage", "-blob-dir", "-public-url",
		"-b", "-g", "-e", "-u", "-p", "-log-level", "-dev-auth",
	})

	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.HTTPAddr, "a", cfg.HTTPAddr, "address and port to run server")
	fs.StringVar(&cfg.DatabaseDSN, "d", cfg.DatabaseDSN, "database DSN")
	fs.StringVar(&cfg.SecretKey, "s", cfg.SecretKey, "secret key")
	fs.DurationVar(&cfg.AccessTokenValidityDuration, "t", cfg.AccessTokenValidityDuration, "access token validity")
	fs.StringVar(&cfg.StorageBackend, "storage", cfg.StorageBackend, "blob backend (s3|local)")
	fs.StringVar(&cfg.LocalStorageDir, "blob-dir", cfg.LocalStorageDir, "local blob directory")
	fs.StringVar(&cfg.PublicBaseURL, "public-url", cfg.PublicBaseURL, "public base URL")
	fs.StringVar(&cfg.S3Bucket, "b", cfg.S3Bucket, "S3 bucket")
	fs.StringVar(&cfg.S3Region, "g", cfg.S3Region, "S3 region")
	fs.StringVar(&cfg.S3BaseEndpoint, "e", cfg.S3BaseEndpoint, "S3 base endpoint")
	fs.StringVar(&cfg.S3AccessKey, "u", cfg.S3AccessKey, "S3 access key")
	fs.StringVar(&cfg.S3SecretKey, "p", cfg.S3SecretKey, "S3 secret key")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level")
	fs.BoolVar(&cfg.DevAuth, "dev-auth", cfg.DevAuth, "enable development tokens")

	return fs.Parse(args)
}
