package client

import "errors"

var (
	ErrUnavailable  = errors.New("server unavailable")
	ErrUnauthorized = errors.New("unauthorized")
	ErrRejected     = errors.New("request rejected")
	ErrLocked       = errors.New("account locked")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("already exists")
	ErrRateLimited  = errors.New("too many requests")
	ErrServer       = errors.New("server error")
)

// APIError carries the server's own message next to a classification that
// callers can match with errors.Is.
type APIError struct {
	Kind    error
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return e.Kind.Error()
	}
	return e.Message
}

func (e *APIError) Unwrap() error { return e.Kind }
