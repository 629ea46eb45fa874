package detection

import (
	"errors"
	"fmt"
)

// Sentinel errors for common conditions.
var (
	// ErrUnknownModel is returned by New for a model name no backend serves.
	ErrUnknownModel = errors.New("detection: unknown model")

	// ErrNoAPIKey is returned when a hosted backend has no API key.
	ErrNoAPIKey = errors.New("detection: API key required")

	// ErrModelNotFound is returned when a local model file is missing.
	ErrModelNotFound = errors.New("detection: model file not found")

	// ErrBadImage is returned when the input is not a decodable image.
	ErrBadImage = errors.New("detection: bad image")

	// ErrBackendUnavailable is returned by New when the backend for a valid
	// model name was not compiled in.
	ErrBackendUnavailable = errors.New("detection: backend not available")
)

// APIError represents an error response from a remote detection backend.
type APIError struct {
	// Provider identifies which backend returned the error.
	Provider string

	// StatusCode is the HTTP status code.
	StatusCode int

	// Message is the error message from the backend.
	Message string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("detection [%s]: API error %d: %s", e.Provider, e.StatusCode, e.Message)
}
