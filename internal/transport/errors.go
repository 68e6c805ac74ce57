package transport

import (
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/gorilla/websocket"
)

// ErrorKind follows the Thrift TTransportException type ids.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindNotOpen
	KindAlreadyOpen
	KindTimedOut
	KindEndOfFile
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotOpen:
		return "not open"
	case KindAlreadyOpen:
		return "already open"
	case KindTimedOut:
		return "timed out"
	case KindEndOfFile:
		return "end of file"
	default:
		return "unknown"
	}
}

// Error is a failure of the underlying connection, as opposed to a frame
// that arrived but could not be decoded.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return "transport: " + e.Kind.String()
	}
	return fmt.Sprintf("transport: %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsEOF reports whether err is a benign peer disconnect.
func IsEOF(err error) bool {
	var te *Error
	return errors.As(err, &te) && te.Kind == KindEndOfFile
}

// wrapError classifies a raw read/write error. A connection closed on our
// side reads like EOF.
func wrapError(err error) error {
	if err == nil {
		return nil
	}
	var te *Error
	if errors.As(err, &te) {
		return err
	}
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, net.ErrClosed):
		return &Error{Kind: KindEndOfFile, Err: err}
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived, websocket.CloseAbnormalClosure):
		return &Error{Kind: KindEndOfFile, Err: err}
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &Error{Kind: KindTimedOut, Err: err}
	}
	return &Error{Kind: KindUnknown, Err: err}
}
