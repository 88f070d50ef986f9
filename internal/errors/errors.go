// Package errors defines the gateway's typed error hierarchy (spec.md
// §7) and renders it to the wire formats clients expect.
package errors

import "net/http"

// Kind classifies a gateway error into one of the categories spec.md §7
// maps to an HTTP status.
type Kind string

const (
	KindParse              Kind = "parse"
	KindForbidden          Kind = "forbidden"
	KindLimitExceeded      Kind = "limit_exceeded"
	KindBackendUnavailable Kind = "backend_unavailable"
	KindBackendCommand     Kind = "backend_command"
	KindInternalEncode     Kind = "internal_encode"
)

var statusByKind = map[Kind]int{
	KindParse:              http.StatusBadRequest,
	KindForbidden:          http.StatusForbidden,
	KindLimitExceeded:      http.StatusRequestEntityTooLarge,
	KindBackendUnavailable: http.StatusServiceUnavailable,
	KindBackendCommand:     http.StatusInternalServerError,
	KindInternalEncode:     http.StatusInternalServerError,
}

// GatewayError is the error type every dispatch-path failure is
// represented as. It carries enough information to render spec.md's
// literal `{"error": "<message>"}` response body and pick the right
// status code, without coupling callers to net/http.
type GatewayError struct {
	Kind    Kind
	Message string
}

func (e *GatewayError) Error() string { return e.Message }

// Status returns the HTTP status code for this error's Kind.
func (e *GatewayError) Status() int {
	if s, ok := statusByKind[e.Kind]; ok {
		return s
	}
	return http.StatusInternalServerError
}

func new(kind Kind, msg string) *GatewayError {
	return &GatewayError{Kind: kind, Message: msg}
}

// Parse reports a request the parser could not make sense of (spec.md
// §4.1), e.g. an empty command name.
func Parse(msg string) *GatewayError { return new(KindParse, msg) }

// Forbidden reports an ACL denial (spec.md §4.3). Its message is fixed
// by spec.md §8's literal scenario.
func Forbidden() *GatewayError { return new(KindForbidden, "Forbidden") }

// LimitExceeded reports a request body over http_max_request_size.
func LimitExceeded(msg string) *GatewayError { return new(KindLimitExceeded, msg) }

// BackendUnavailable reports a lease or connect failure against the
// backend (spec.md §4.4).
func BackendUnavailable(msg string) *GatewayError { return new(KindBackendUnavailable, msg) }

// BackendCommand reports an explicit error reply from the backend
// (spec.md §4.5 step 6); msg is the backend's own error text.
func BackendCommand(msg string) *GatewayError { return new(KindBackendCommand, msg) }

// InternalEncode reports a failure converting or serializing a reply
// that isn't the backend's fault.
func InternalEncode(msg string) *GatewayError { return new(KindInternalEncode, msg) }

// EmptyCommand is the fixed-message parse error from spec.md §4.1.
func EmptyCommand() *GatewayError { return Parse("Empty command") }
