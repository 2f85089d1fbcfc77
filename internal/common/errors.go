// Package common defines shared constants and sentinel errors used across
// client and server layers of taxdesk. Callers should use errors.Is to
// match sentinel values and errors.As to inspect the typed errors.
package common

import (
	"errors"
	"fmt"
)

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrorForbidden    = errors.New("forbidden")

	// ErrStaleState is matched by StaleStateError: the persisted record no
	// longer satisfies the predicate a conditional write was guarded by.
	ErrStaleState = errors.New("stale state")

	// ErrAlreadyExists is returned by blob stores for non-overwriting writes
	// to a key that is already taken.
	ErrAlreadyExists = errors.New("already exists")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// ValidationReason enumerates client-local validation failures.
type ValidationReason string

const (
	TooManyFiles   ValidationReason = "too_many_files"
	FileTooLarge   ValidationReason = "file_too_large"
	DuplicateFile  ValidationReason = "duplicate_file"
	UnacceptedType ValidationReason = "unaccepted_type"
	InvalidField   ValidationReason = "invalid_field"
)

// ValidationError reports input rejected before any network call was made.
type ValidationError struct {
	Reason ValidationReason
	// Field or file name the failure refers to, if any.
	Field  string
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed (%s): %s", e.Reason, e.Detail)
	}
	return fmt.Sprintf("validation failed (%s) for %q: %s", e.Reason, e.Field, e.Detail)
}

// TransferError is returned when an upload exhausted its retries. SingleShot
// distinguishes SingleShotUploadExhausted from ChunkUploadExhausted; Chunk is
// the failing chunk index in the latter case.
type TransferError struct {
	File       string
	Chunk      int
	SingleShot bool
	Attempts   int
	Err        error
}

func (e *TransferError) Error() string {
	if e.SingleShot {
		return fmt.Sprintf("upload of %q exhausted after %d attempts: %v", e.File, e.Attempts, e.Err)
	}
	return fmt.Sprintf("chunk %d of %q exhausted after %d attempts: %v", e.Chunk, e.File, e.Attempts, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }

// AuthorizationError rejects an actor for a gated operation.
type AuthorizationError struct {
	Actor  string
	Op     string
	Reason string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("%s not allowed for %s: %s", e.Op, e.Actor, e.Reason)
}

func (e *AuthorizationError) Is(target error) bool { return target == ErrorForbidden }

// IllegalTransitionError reports a status change outside the transition graph.
// No write is performed when it is returned.
type IllegalTransitionError struct {
	From string
	To   string
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal transition %s -> %s", e.From, e.To)
}

// StaleStateError reports that a conditional write matched no row because the
// persisted status moved away from Expected.
type StaleStateError struct {
	ID       string
	Expected string
}

func (e *StaleStateError) Error() string {
	return fmt.Sprintf("request %s is no longer %s", e.ID, e.Expected)
}

func (e *StaleStateError) Is(target error) bool { return target == ErrStaleState }

// StorageError wraps a blob store failure with the operation and key.
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// PersistError wraps a data store failure with the operation and record id.
type PersistError struct {
	Op  string
	ID  string
	Err error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("persist %s %s: %v", e.Op, e.ID, e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }
