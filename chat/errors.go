package chat

import (
	"context"
	"errors"
	"net"
	"strings"
)

var (
	// ErrConfiguration means credentials or identifiers are missing or still
	// placeholders. The adapter refuses to connect and issues no network call.
	ErrConfiguration = errors.New("configuration error")

	// ErrTransientRequest covers timeouts, non-2xx responses, malformed payloads
	// and dropped sockets during an established session. The adapter stops.
	ErrTransientRequest = errors.New("request failed")

	// ErrNoActiveSession means the account is not live right now. This is a
	// normal outcome; the adapter goes idle without logging an error.
	ErrNoActiveSession = errors.New("no active session")

	// ErrResourceRelease is returned from Disconnect when closing the
	// underlying connection failed. Callers log it and carry on.
	ErrResourceRelease = errors.New("resource release failed")
)

// ErrorClass groups adapter errors for logging, status reasons and metrics.
type ErrorClass int

const (
	ErrorClassUnknown ErrorClass = iota
	ErrorClassConfiguration
	ErrorClassTransient
	ErrorClassNoSession
	ErrorClassRelease
)

// String returns the label used in logs and metrics.
func (ec ErrorClass) String() string {
	switch ec {
	case ErrorClassConfiguration:
		return "configuration"
	case ErrorClassTransient:
		return "transient"
	case ErrorClassNoSession:
		return "no_session"
	case ErrorClassRelease:
		return "release"
	default:
		return "unknown"
	}
}

// Classify maps an error onto the adapter error taxonomy. Sentinels win; after
// that, timeouts and network errors are transient. Anything else is unknown,
// which adapters treat exactly like transient (the session stops).
func Classify(err error) ErrorClass {
	if err == nil {
		return ErrorClassUnknown
	}
	switch {
	case errors.Is(err, ErrConfiguration):
		return ErrorClassConfiguration
	case errors.Is(err, ErrNoActiveSession):
		return ErrorClassNoSession
	case errors.Is(err, ErrResourceRelease):
		return ErrorClassRelease
	case errors.Is(err, ErrTransientRequest):
		return ErrorClassTransient
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorClassTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ErrorClassTransient
	}
	lower := strings.ToLower(err.Error())
	for _, pattern := range []string{"timeout", "connection reset", "connection refused", "eof", "broken pipe"} {
		if strings.Contains(lower, pattern) {
			return ErrorClassTransient
		}
	}
	return ErrorClassUnknown
}
