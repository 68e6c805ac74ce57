package service

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrEmptyAPIName  = errors.New("api name must not be empty")
	ErrNotAFunc      = errors.New("api handler must be a func")
	ErrBadCtxHandler = errors.New("with_ctx handler must take *service.Context first")
	ErrBadResults    = errors.New("api handler must return (), (T), (error) or (T, error)")

	// ErrCloseConnection makes the serve loop close the current connection
	// without logging. Handlers and hooks may return it, wrapped or not.
	ErrCloseConnection = errors.New("close connection")
)

// TimeoutError is the timeout-signal kind: a handler (or code acting for
// it) returns it once the hard timeout is known to be exceeded.
type TimeoutError struct {
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout after %s", e.Timeout)
}

// IsTimeout reports whether err is a timeout signal. An expired call
// deadline counts as one.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te) || errors.Is(err, context.DeadlineExceeded)
}

// ArgumentError is produced when call arguments cannot be bound to the
// handler's parameters. It is reported like any handler error.
type ArgumentError struct {
	API    string
	Reason string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("%s() %s", e.API, e.Reason)
}

// PanicError carries a recovered handler panic.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}
