package registry

import (
	"errors"
	"fmt"
)

// Domain-specific errors for registry operations.
var (
	// ErrDeviceNotFound is returned when a device ID is not in the cache.
	ErrDeviceNotFound = errors.New("registry: device not found")

	// ErrNeverLoaded is returned when a refresh fails before any snapshot
	// has been loaded. The registry is unusable in this state.
	ErrNeverLoaded = errors.New("registry: no snapshot loaded")
)

// RefreshError reports a failed refresh. When Stale is true the registry
// kept its previous snapshot and lookups continue to work against it.
type RefreshError struct {
	Stale bool
	Err   error
}

func (e *RefreshError) Error() string {
	if e.Stale {
		return fmt.Sprintf("registry: refresh failed, serving stale snapshot: %v", e.Err)
	}
	return fmt.Sprintf("registry: refresh failed: %v", e.Err)
}

func (e *RefreshError) Unwrap() error {
	return e.Err
}
