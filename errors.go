package inlay

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// Errors returned by the config layer.
var (
	ErrConfigNotFound = errors.New("no .inlay.yaml found")
	ErrInvalidConfig  = errors.New("invalid config")
)

// ErrorSink receives errors that must not fail the operation that hit them,
// typically failures of an external provider.
type ErrorSink interface {
	ReportError(err error)
}

// ErrorSinkFunc adapts a function to ErrorSink.
type ErrorSinkFunc func(err error)

// ReportError calls f.
func (f ErrorSinkFunc) ReportError(err error) { f(err) }

// DiscardErrors drops every error.
var DiscardErrors ErrorSink = ErrorSinkFunc(func(error) {})

// LogErrors reports errors to logger at warn level.
func LogErrors(logger *zap.Logger) ErrorSink {
	return ErrorSinkFunc(func(err error) {
		logger.Warn("Unexpected provider error", zap.Error(err))
	})
}

// IsCancellation reports whether err only says that the caller stopped
// waiting. Such errors are not reported to an ErrorSink.
func IsCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// ErrorRecorder is an ErrorSink that keeps what it receives.
type ErrorRecorder struct {
	mu   sync.Mutex
	errs []error
}

// ReportError records err.
func (r *ErrorRecorder) ReportError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.errs = append(r.errs, err)
}

// Errors returns a copy of the recorded errors.
func (r *ErrorRecorder) Errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]error(nil), r.errs...)
}
