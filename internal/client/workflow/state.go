// Package workflow models page-level loading as an explicit tagged state
// instead of a handful of loosely related booleans.
package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/taxdesk/internal/client/session"
	"github.com/dmitrijs2005/taxdesk/internal/common"
)

// Kind tags a State.
type Kind int

const (
	Loading Kind = iota
	Unauthorized
	Ready
	Failed
)

func (k Kind) String() string {
	switch k {
	case Loading:
		return "loading"
	case Unauthorized:
		return "unauthorized"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// State holds Data only when Ready and Err only when Failed.
type State[T any] struct {
	Kind Kind
	Data T
	Err  error
}

func NewLoading[T any]() State[T]      { return State[T]{Kind: Loading} }
func NewUnauthorized[T any]() State[T] { return State[T]{Kind: Unauthorized} }
func NewReady[T any](v T) State[T]     { return State[T]{Kind: Ready, Data: v} }
func NewFailed[T any](err error) State[T] {
	return State[T]{Kind: Failed, Err: err}
}

// Cases lists one handler per kind; Match calls exactly one of them.
type Cases[T, R any] struct {
	Loading      func() R
	Unauthorized func() R
	Ready        func(T) R
	Failed       func(error) R
}

// Match dispatches on s.Kind. Every case must be provided.
func Match[T, R any](s State[T], c Cases[T, R]) R {
	switch s.Kind {
	case Loading:
		return c.Loading()
	case Unauthorized:
		return c.Unauthorized()
	case Ready:
		return c.Ready(s.Data)
	default:
		return c.Failed(s.Err)
	}
}

// Load gates fetch on the session and folds its outcome into a State.
// requireProfessional additionally demands a verified professional.
func Load[T any](ctx context.Context, sess session.Context, requireProfessional bool, fetch func(context.Context, session.Context) (T, error)) State[T] {
	if !sess.Authenticated || (requireProfessional && !sess.VerifiedProfessional) {
		return NewUnauthorized[T]()
	}
	v, err := fetch(ctx, sess)
	switch {
	case err == nil:
		return NewReady(v)
	case errors.Is(err, common.ErrorUnauthorized):
		return NewUnauthorized[T]()
	default:
		return NewFailed[T](err)
	}
}
