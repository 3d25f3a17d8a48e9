package hub

import "errors"

// Domain-specific errors for hub directory operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrRequestFailed is returned when the hub cannot be reached or
	// responds with an unexpected status.
	ErrRequestFailed = errors.New("hub: request failed")

	// ErrUnauthorized is returned when the hub rejects the API token.
	ErrUnauthorized = errors.New("hub: unauthorized")

	// ErrNotFound is returned when the requested resource does not exist.
	ErrNotFound = errors.New("hub: not found")

	// ErrDecodeFailed is returned when the hub response cannot be parsed.
	ErrDecodeFailed = errors.New("hub: decoding response failed")
)
