package search

import (
	"errors"
	"fmt"

	"runon/internal/model"
)

const (
	msgUnauthorized = "Unauthorized access"
	msgDecode       = "Failed to decode response"

	fallbackLoad       = "Failed to load events"
	fallbackSearch     = "Failed to search events"
	fallbackRegister   = "Failed to register for event"
	fallbackUnregister = "Failed to unregister from event"
)

// Message turns a source failure into the text shown to the user.
// Errors outside the source taxonomy get fallback.
func Message(err error, fallback string) string {
	var (
		se *model.ServerError
		ne *model.NetworkError
	)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, model.ErrUnauthorized):
		return msgUnauthorized
	case errors.As(err, &se):
		return fmt.Sprintf("Server error: %d", se.StatusCode)
	case errors.As(err, &ne):
		if ne.Err == nil {
			return "Network error"
		}
		return "Network error: " + ne.Err.Error()
	case errors.Is(err, model.ErrDecode):
		return msgDecode
	default:
		return fallback
	}
}
