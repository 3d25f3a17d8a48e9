package store

import "errors"

// Domain-specific errors for settings persistence.
var (
	// ErrNotFound is returned when a settings key does not exist.
	ErrNotFound = errors.New("store: setting not found")

	// ErrInvalidKey is returned when an empty key is provided.
	ErrInvalidKey = errors.New("store: key cannot be empty")
)
