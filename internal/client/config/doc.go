// Package config loads runtime configuration for the taxdesk CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional YAML or JSON file selected via -c or -config.
//  3. A dotenv file (-env-file, default ./.env) and TAXDESK_CLIENT_*
//     variables; the process environment wins over the file.
//  4. Command-line flags, which override earlier values.
//
// Supported flags
//
//	-a string        base URL of the taxdesk API
//	-i duration      identity refresh interval
//	-token string    access token
//	-dev-user string obtain a development token for this user id at start
//	-backoff         base of the linear upload retry backoff
//	-log-level       debug, info, warn or error
//
// # File schema
//
// Durations accept strings like "30s" or integer nanoseconds:
//
//	server_url: http://127.0.0.1:8080
//	identity_refresh_interval: 30s
//	access_token: eyJ...
package config
