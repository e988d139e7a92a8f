package voltage

import "fmt"

// ErrorKind separates transport-level failures from remote API rejections,
// so callers can decide whether a retry is worth anything.
type ErrorKind string

const (
	// ErrorKindNetwork covers timeouts, DNS failures, connection resets and
	// any other failure where no HTTP response arrived.
	ErrorKindNetwork ErrorKind = "network"
	// ErrorKindHTTP covers non-2xx responses from the Voltage API.
	ErrorKindHTTP ErrorKind = "http"
)

// Error is a classified Voltage API failure.
type Error struct {
	Kind    ErrorKind
	Status  int // HTTP status code, only set for ErrorKindHTTP
	Message string
	RawBody string
}

func (e *Error) Error() string {
	if e.Kind == ErrorKindHTTP {
		return fmt.Sprintf("voltage API error (HTTP %d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("voltage network error: %s", e.Message)
}

// Retryable reports whether retrying the call could plausibly succeed:
// network failures and 5xx responses qualify, 4xx client errors do not.
func (e *Error) Retryable() bool {
	return e.Kind == ErrorKindNetwork || e.Status >= 500
}
