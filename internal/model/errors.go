package model

import (
	"errors"
	"fmt"
)

// Failures an event source may report. Anything else is treated as an
// unclassified failure by callers.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrDecode       = errors.New("failed to decode response")
)

// ServerError is a non-success HTTP status other than 401.
type ServerError struct {
	StatusCode int
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error: %d", e.StatusCode)
}

// NetworkError wraps a transport level failure (DNS, refused, reset, timeout).
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	if e.Err == nil {
		return "network error"
	}
	return "network error: " + e.Err.Error()
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}
