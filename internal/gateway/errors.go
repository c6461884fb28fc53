package gateway

import (
	"errors"
	"fmt"
)

var (
	ErrNoRedirectURL = errors.New("payment session response has no redirect url")
	ErrCircuitOpen   = errors.New("backend circuit breaker is open")
)

// StatusError is a non-2xx answer from the backend.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// Temporary reports whether the request may succeed when repeated.
func (e *StatusError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429
}
