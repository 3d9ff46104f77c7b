package parsera

import "fmt"

// ErrorKind classifies failures surfaced by the client.
type ErrorKind string

const (
	KindInvalidConfiguration ErrorKind = "invalid_configuration"
	KindInvalidInput         ErrorKind = "invalid_input"
	KindUnauthorized         ErrorKind = "unauthorized"
	KindRateLimitExceeded    ErrorKind = "rate_limit_exceeded"
	KindBadRequest           ErrorKind = "bad_request"
	KindServerError          ErrorKind = "server_error"
	KindNoData               ErrorKind = "no_data"
	KindTimeout              ErrorKind = "timeout"
	KindCancelled            ErrorKind = "cancelled"
	KindNetworkError         ErrorKind = "network_error"
	KindHandlerError         ErrorKind = "handler_error"
)

// Sentinel values for errors.Is checks. Matching is by kind, so a wrapped
// client error still matches its sentinel through the chain.
var (
	ErrInvalidConfiguration = &Error{Kind: KindInvalidConfiguration}
	ErrInvalidInput         = &Error{Kind: KindInvalidInput}
	ErrUnauthorized         = &Error{Kind: KindUnauthorized}
	ErrRateLimitExceeded    = &Error{Kind: KindRateLimitExceeded}
	ErrBadRequest           = &Error{Kind: KindBadRequest}
	ErrServerError          = &Error{Kind: KindServerError}
	ErrNoData               = &Error{Kind: KindNoData}
	ErrTimeout              = &Error{Kind: KindTimeout}
	ErrCancelled            = &Error{Kind: KindCancelled}
	ErrNetworkError         = &Error{Kind: KindNetworkError}
	ErrHandlerError         = &Error{Kind: KindHandlerError}
)

// Error is the typed error returned by client operations.
type Error struct {
	Kind       ErrorKind
	Message    string
	StatusCode int    // HTTP status when the failure came from a response
	Code       string // server-supplied error code, if any
	err        error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.err != nil:
		return fmt.Sprintf("%s: %v", e.Message, e.err)
	case e.Message != "":
		return e.Message
	case e.err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.err)
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.err }

// Is matches any *Error of the same kind, so errors.Is(err, ErrTimeout)
// reports whether err's chain contains a timeout failure.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

func newError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func wrapError(kind ErrorKind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), err: err}
}
