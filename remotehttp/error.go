package remotehttp

import (
	"errors"
	"fmt"
	"net/http"
)

// StatusError reports a non-2xx response. The body is kept for diagnostics,
// truncated in Error output.
type StatusError struct {
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	body := e.Body
	if len(body) > 256 {
		body = body[:256]
	}
	if len(body) == 0 {
		return fmt.Sprintf("remotehttp: status %d", e.StatusCode)
	}
	return fmt.Sprintf("remotehttp: status %d: %s", e.StatusCode, body)
}

// Retryable reports whether the status indicates a transient condition
// worth retrying: 429, 5xx except 501.
func (e *StatusError) Retryable() bool {
	if e.StatusCode == http.StatusTooManyRequests {
		return true
	}
	return e.StatusCode >= 500 && e.StatusCode != http.StatusNotImplemented
}

// IsNotFound reports whether err is a 404 response.
func IsNotFound(err error) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound
}
