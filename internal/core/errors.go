package core

import (
	"context"
	"errors"
	"fmt"
)

// Error codes for the failure taxonomy.
const (
	ErrCodeTransientNetwork = "transient_network"
	ErrCodeProtocolDecode   = "protocol_decode"
	ErrCodeStaleReference   = "stale_reference"
	ErrCodeUnauthenticated  = "unauthenticated"
	ErrCodeRejected         = "rejected"
	ErrCodeTooLarge         = "too_large"
)

var (
	// ErrTransientNetwork marks failures worth retrying: timeouts, resets, 5xx, 429.
	ErrTransientNetwork = errors.New("transient network error")
	// ErrProtocolDecode marks a frame or body that could not be decoded.
	ErrProtocolDecode = errors.New("protocol decode error")
	// ErrStaleReference marks an update that names a message no longer held.
	ErrStaleReference = errors.New("stale reference")
	// ErrUnauthenticated is returned when no valid session token is present.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrRejected is returned when the server answered with success=false.
	ErrRejected = errors.New("rejected by server")
	// ErrTooLarge is returned for attachments above the upload limit.
	ErrTooLarge = errors.New("attachment too large")
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
	Err     error
}

func (e *CoreError) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *CoreError) Unwrap() error {
	return e.Err
}

func coreError(code, msg string, err error) *CoreError {
	return &CoreError{Code: code, Message: msg, Err: err}
}

// NewError builds a CoreError whose code is derived from err.
func NewError(msg string, err error) *CoreError {
	return coreError(Classify(err), msg, err)
}

// Classify maps an error to a taxonomy code. Unknown errors are treated as
// transient so the user is offered a resend rather than a dead end.
func Classify(err error) string {
	var ce *CoreError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &ce) && ce.Code != "":
		return ce.Code
	case errors.Is(err, ErrUnauthenticated):
		return ErrCodeUnauthenticated
	case errors.Is(err, ErrProtocolDecode):
		return ErrCodeProtocolDecode
	case errors.Is(err, ErrStaleReference):
		return ErrCodeStaleReference
	case errors.Is(err, ErrRejected):
		return ErrCodeRejected
	case errors.Is(err, ErrTooLarge):
		return ErrCodeTooLarge
	default:
		return ErrCodeTransientNetwork
	}
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return errors.Is(err, ErrTransientNetwork) || errors.Is(err, context.DeadlineExceeded)
}
