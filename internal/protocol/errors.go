// internal/protocol/errors.go
package protocol

import (
	"errors"
	"fmt"
)

// FaultCode classifies an application-level fault sent back to the caller.
// The low numbers follow the Thrift TApplicationException type ids.
type FaultCode int32

const (
	FaultUnknown               FaultCode = 0
	FaultUnknownMethod         FaultCode = 1
	FaultInvalidMessageType    FaultCode = 2
	FaultWrongMethodName       FaultCode = 3
	FaultBadSequenceID         FaultCode = 4
	FaultMissingResult         FaultCode = 5
	FaultInternalError         FaultCode = 6
	FaultProtocolError         FaultCode = 7
	FaultInvalidTransform      FaultCode = 8
	FaultInvalidProtocol       FaultCode = 9
	FaultUnsupportedClientType FaultCode = 10

	// ---- dispatcher ----
	FaultTimeout     FaultCode = 100
	FaultRateLimited FaultCode = 101
)

var faultNames = map[FaultCode]string{
	FaultUnknown:               "unknown",
	FaultUnknownMethod:         "unknown_method",
	FaultInvalidMessageType:    "invalid_message_type",
	FaultWrongMethodName:       "wrong_method_name",
	FaultBadSequenceID:         "bad_sequence_id",
	FaultMissingResult:         "missing_result",
	FaultInternalError:         "internal_error",
	FaultProtocolError:         "protocol_error",
	FaultInvalidTransform:      "invalid_transform",
	FaultInvalidProtocol:       "invalid_protocol",
	FaultUnsupportedClientType: "unsupported_client_type",
	FaultTimeout:               "timeout",
	FaultRateLimited:           "rate_limited",
}

func (c FaultCode) String() string {
	if name, ok := faultNames[c]; ok {
		return name
	}
	return fmt.Sprintf("fault(%d)", int32(c))
}

// Fault is an application-level error that crosses the wire to the remote
// caller. Its Message is sent verbatim.
type Fault struct {
	Code    FaultCode
	Message string
	Err     error
}

func NewFault(code FaultCode, msg string) *Fault {
	return &Fault{Code: code, Message: msg}
}

func Faultf(code FaultCode, format string, args ...any) *Fault {
	return &Fault{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WrapFault returns err as a fault. An error that already is (or wraps) a
// Fault is returned unchanged.
func WrapFault(code FaultCode, err error) *Fault {
	if err == nil {
		return nil
	}
	var f *Fault
	if errors.As(err, &f) {
		return f
	}
	return &Fault{Code: code, Message: err.Error(), Err: err}
}

func (f *Fault) Error() string {
	return f.Message
}

func (f *Fault) Unwrap() error {
	return f.Err
}

// ErrorKind classifies a protocol (framing/decoding) failure. Values follow
// the Thrift TProtocolException type ids.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindInvalidData
	KindNegativeSize
	KindSizeLimit
	KindBadVersion
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidData:
		return "invalid data"
	case KindNegativeSize:
		return "negative size"
	case KindSizeLimit:
		return "size limit"
	case KindBadVersion:
		return "bad version"
	default:
		return "unknown"
	}
}

// Error reports a corrupted or undecodable frame. The connection that
// produced it cannot be trusted any more.
type Error struct {
	Kind ErrorKind
	Err  error
}

func NewError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

var (
	ErrNilMessage       = errors.New("nil message")
	ErrMissingMethod    = errors.New("missing method name")
	ErrUnsupportedValue = errors.New("unsupported value")
)
