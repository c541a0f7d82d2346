package spaapi

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoCredential is returned before any network call when the context
// carries no bearer token. Callers should treat it as "not signed in"
// rather than a backend failure.
var ErrNoCredential = errors.New("spaapi: no credential in context")

// ErrNotFound is returned for 404 responses.
var ErrNotFound = errors.New("spaapi: not found")

// APIError is a non-2xx backend response other than a booking conflict.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("spaapi: backend returned %d", e.StatusCode)
	}
	return fmt.Sprintf("spaapi: backend returned %d: %s", e.StatusCode, e.Message)
}

// ConflictError is a 409 booking rejection. The backend lists every
// appointment that overlaps the requested slot.
type ConflictError struct {
	Message   string
	Conflicts []Conflict
}

func (e *ConflictError) Error() string {
	if len(e.Conflicts) == 0 {
		return e.Message
	}
	lines := make([]string, len(e.Conflicts))
	for i, c := range e.Conflicts {
		lines[i] = " - " + c.String()
	}
	return e.Message + "\n" + strings.Join(lines, "\n")
}

// AsConflict unwraps err into a ConflictError if it is one.
func AsConflict(err error) (*ConflictError, bool) {
	var ce *ConflictError
	ok := errors.As(err, &ce)
	return ce, ok
}

// IsStatus reports whether err is an APIError with the given status code.
func IsStatus(err error, code int) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.StatusCode == code
}
