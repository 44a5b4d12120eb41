package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNoUserMessage means the inbound request carried no message with
	// role "user"; translation refuses it before any backend call.
	ErrNoUserMessage = errors.New("no user message in request")

	ErrInvalidRequest  = errors.New("invalid request")
	ErrSessionNotFound = errors.New("session not found")
	ErrHistoryDisabled = errors.New("history store not available")
)

// BackendErrorKind classifies a failed backend round trip.
type BackendErrorKind int

const (
	// BackendTimeout maps to a gateway-timeout outcome.
	BackendTimeout BackendErrorKind = iota
	// BackendUnreachable covers connection refusal and DNS failure,
	// mapped to a bad-gateway outcome.
	BackendUnreachable
	// BackendRejected is a non-2xx response from the backend.
	BackendRejected
)

func (k BackendErrorKind) String() string {
	switch k {
	case BackendTimeout:
		return "timeout"
	case BackendUnreachable:
		return "unreachable"
	case BackendRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// BackendError is the only error the backend client returns. Status and
// Detail are set for BackendRejected when the error body was parseable.
type BackendError struct {
	Kind   BackendErrorKind
	Status int
	Detail string
	Err    error
}

func (e *BackendError) Error() string {
	if e.Kind == BackendRejected {
		return fmt.Sprintf("backend rejected request: status=%d detail=%s", e.Status, e.Detail)
	}
	if e.Err != nil {
		return fmt.Sprintf("backend %s: %v", e.Kind, e.Err)
	}
	return "backend " + e.Kind.String()
}

func (e *BackendError) Unwrap() error { return e.Err }

// StorageError wraps failures from the history store so callers can keep
// them isolated from the chat path.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("history store %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// ErrorCode maps any error from the taxonomy to its stable
// machine-readable code. Both transports report the same codes.
func ErrorCode(err error) string {
	var berr *BackendError
	if errors.As(err, &berr) {
		switch berr.Kind {
		case BackendTimeout:
			return "gateway_timeout"
		case BackendUnreachable:
			return "bad_gateway"
		default:
			return "upstream_error"
		}
	}

	var serr *StorageError
	switch {
	case errors.Is(err, ErrNoUserMessage):
		return "no_user_message"
	case errors.Is(err, ErrInvalidRequest):
		return "protocol_error"
	case errors.Is(err, ErrSessionNotFound):
		return "session_not_found"
	case errors.Is(err, ErrHistoryDisabled), errors.As(err, &serr):
		return "storage_error"
	default:
		return "internal_error"
	}
}

// ErrorSummary is the human-readable one-liner for a code. Callers get
// this and the code, never stack traces or transport internals.
func ErrorSummary(code string) string {
	switch code {
	case "gateway_timeout":
		return "backend did not answer in time"
	case "bad_gateway":
		return "backend is unreachable"
	case "upstream_error":
		return "backend rejected the request"
	case "no_user_message":
		return "request contains no user message"
	case "protocol_error":
		return "invalid request"
	case "session_not_found":
		return "no history for session"
	case "storage_error":
		return "history store unavailable"
	default:
		return "internal error"
	}
}

// ConfigError is fatal at startup only.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }
