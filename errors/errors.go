package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorType is the kind of failure that ended a request. Every kind is
// terminal; nothing is retried.
type ErrorType int

const (
	ErrorNone ErrorType = iota
	ErrorMethodParse
	ErrorUriParse
	ErrorConnect
	ErrorHandshake
	ErrorRequestBuild
	ErrorTransport
	ErrorEncoding
)

func (t ErrorType) String() string {
	switch t {
	case ErrorNone:
		return "none"
	case ErrorMethodParse:
		return "method parse"
	case ErrorUriParse:
		return "uri parse"
	case ErrorConnect:
		return "connect"
	case ErrorHandshake:
		return "handshake"
	case ErrorRequestBuild:
		return "request build"
	case ErrorTransport:
		return "transport"
	case ErrorEncoding:
		return "encoding"
	default:
		return fmt.Sprintf("unknown(%d)", int(t))
	}
}

// TransportError narrows down socket-level failures.
type TransportError int

const (
	TransportErrorNone TransportError = iota
	TransportErrorSocketCreateFailure
	TransportErrorSocketConnectFailure
	TransportErrorSocketReadFailure
	TransportErrorSocketWriteFailure
	TransportErrorConnectionClosed
	TransportErrorDnsFailure
	TransportErrorSocketCloseFailure
	TransportErrorIoUringInit
	TransportErrorIoUringSubmit
)

func (e TransportError) String() string {
	switch e {
	case TransportErrorNone:
		return "none"
	case TransportErrorSocketCreateFailure:
		return "socket creation failed"
	case TransportErrorSocketConnectFailure:
		return "socket connection failed"
	case TransportErrorSocketReadFailure:
		return "socket read failed"
	case TransportErrorSocketWriteFailure:
		return "socket write failed"
	case TransportErrorConnectionClosed:
		return "connection closed"
	case TransportErrorDnsFailure:
		return "DNS lookup failed"
	case TransportErrorSocketCloseFailure:
		return "socket close failed"
	case TransportErrorIoUringInit:
		return "io_uring init failed"
	case TransportErrorIoUringSubmit:
		return "io_uring submit failed"
	default:
		return fmt.Sprintf("unknown transport error: %d", int(e))
	}
}

// ProtocolError narrows down HTTP/1.1 framing failures.
type ProtocolError int

const (
	ProtocolErrorNone ProtocolError = iota
	ProtocolErrorInvalidStatusLine
	ProtocolErrorInvalidHeader
	ProtocolErrorInvalidChunkedEncoding
	ProtocolErrorInvalidContentLength
	ProtocolErrorIncompleteResponse
	ProtocolErrorRequestInFlight
)

func (e ProtocolError) String() string {
	switch e {
	case ProtocolErrorNone:
		return "none"
	case ProtocolErrorInvalidStatusLine:
		return "invalid status line"
	case ProtocolErrorInvalidHeader:
		return "invalid header"
	case ProtocolErrorInvalidChunkedEncoding:
		return "invalid chunked encoding"
	case ProtocolErrorInvalidContentLength:
		return "invalid content length"
	case ProtocolErrorIncompleteResponse:
		return "incomplete response"
	case ProtocolErrorRequestInFlight:
		return "request already in flight"
	default:
		return fmt.Sprintf("unknown protocol error: %d", int(e))
	}
}

// HttpError is the error type returned by every package in this module.
type HttpError struct {
	Type          ErrorType
	TransportErr  TransportError
	ProtocolErr   ProtocolError
	Message       string
	UnderlyingErr error
}

// Error implements the error interface
func (e *HttpError) Error() string {
	if e == nil {
		return "no error"
	}

	typeStr := e.Type.String() + " error"
	switch {
	case e.TransportErr != TransportErrorNone:
		typeStr = fmt.Sprintf("%s (%s)", typeStr, e.TransportErr)
	case e.ProtocolErr != ProtocolErrorNone:
		typeStr = fmt.Sprintf("%s (%s)", typeStr, e.ProtocolErr)
	}

	if e.Message != "" {
		typeStr = fmt.Sprintf("%s: %s", typeStr, e.Message)
	}

	if e.UnderlyingErr != nil {
		return fmt.Sprintf("%s (caused by: %v)", typeStr, e.UnderlyingErr)
	}

	return typeStr
}

// Unwrap returns the underlying error for error chain support
func (e *HttpError) Unwrap() error {
	return e.UnderlyingErr
}

// New creates an error of the given kind.
func New(t ErrorType, message string, underlying error) *HttpError {
	return &HttpError{
		Type:          t,
		Message:       message,
		UnderlyingErr: underlying,
	}
}

// NewTransportError creates a transport error. The kind defaults to
// ErrorTransport; callers reclassify it with Retype when the failure
// happened while connecting.
func NewTransportError(err TransportError, message string, underlying error) *HttpError {
	return &HttpError{
		Type:          ErrorTransport,
		TransportErr:  err,
		Message:       message,
		UnderlyingErr: underlying,
	}
}

// NewProtocolError creates a protocol error
func NewProtocolError(err ProtocolError, message string) *HttpError {
	return &HttpError{
		Type:        ErrorTransport,
		ProtocolErr: err,
		Message:     message,
	}
}

// Retype returns err tagged with kind t. An *HttpError in the chain keeps its
// sub-kinds and message; anything else is wrapped.
func Retype(t ErrorType, message string, err error) *HttpError {
	var he *HttpError
	if stderrors.As(err, &he) {
		out := *he
		out.Type = t
		if out.Message == "" {
			out.Message = message
		}
		return &out
	}
	return New(t, message, err)
}

// KindOf reports the kind of err, or ErrorNone when err is nil or not an
// *HttpError.
func KindOf(err error) ErrorType {
	var he *HttpError
	if stderrors.As(err, &he) {
		return he.Type
	}
	return ErrorNone
}

// IsKind reports whether err carries kind t.
func IsKind(err error, t ErrorType) bool {
	return err != nil && KindOf(err) == t
}

// TransportKindOf reports the transport sub-kind of err.
func TransportKindOf(err error) TransportError {
	var he *HttpError
	if stderrors.As(err, &he) {
		return he.TransportErr
	}
	return TransportErrorNone
}
