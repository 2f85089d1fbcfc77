// Package common contains shared constants and sentinel errors used across
// taxdesk components.
package common

// AuthorizationHeaderName carries the bearer token on HTTP requests.
const AuthorizationHeaderName = "Authorization"

// BearerPrefix precedes the access token in the Authorization header.
const BearerPrefix = "Bearer "

// MiB is one mebibyte, the unit used by the upload size limits.
const MiB = 1024 * 1024
