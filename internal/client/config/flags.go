package config

import (
	"flag"
	"io"

	"github.com/dmitrijs2005/taxdesk/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
// Args are filtered with flagx.FilterArgs so the -c and -env-file flags of
// the earlier layers do not trip the parser.
func parseFlags(cfg *Config, args []string) error {
	args = flagx.FilterArgs(args, []string{"-a", "-i", "-token", "-dev-user", "-backoff", "-log-level"})

	fs := flag.NewFlagSet("client", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.ServerURL, "a", cfg.ServerURL, "base URL of the taxdesk API")
	fs.DurationVar(&cfg.IdentityRefreshInterval, "i", cfg.IdentityRefreshInterval, "identity refresh interval")
	fs.StringVar(&cfg.AccessToken, "token", cfg.AccessToken, "access token")
	fs.StringVar(&cfg.DevUser, "dev-user", cfg.DevUser, "request a development token for this user id")
	fs.DurationVar(&cfg.RetryBackoff, "backoff", cfg.RetryBackoff, "upload retry backoff base")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level")

	return fs.Parse(args)
}
