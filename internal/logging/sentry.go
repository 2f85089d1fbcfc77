package logging

import (
	"context"
	"errors"
	"fmt"

	"github.com/getsentry/sentry-go"
)

// captureException is swapped in tests.
var captureException = func(ctx context.Context, err error) {
	if hub := sentry.GetHubFromContext(ctx); hub != nil {
		hub.CaptureException(err)
		return
	}
	sentry.CaptureException(err)
}

// SentryLogger forwards Error calls to Sentry in addition to the wrapped
// logger. The first error value among args is reported; when none is present
// the message itself is.
type SentryLogger struct {
	Logger
}

func NewSentryLogger(inner Logger) *SentryLogger {
	return &SentryLogger{Logger: inner}
}

func (s *SentryLogger) Error(ctx context.Context, msg string, args ...any) {
	s.Logger.Error(ctx, msg, args...)

	var report error
	for _, a := range args {
		if e, ok := a.(error); ok {
			report = fmt.Errorf("%s: %w", msg, e)
			break
		}
	}
	if report == nil {
		report = errors.New(msg)
	}
	captureException(ctx, report)
}

func (s *SentryLogger) With(args ...any) Logger {
	return &SentryLogger{Logger: s.Logger.With(args...)}
}
