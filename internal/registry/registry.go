package registry

import (
	"context"
	"sync"

	"github.com/occulog/occulog-core/internal/hub"
)

// Logger defines the logging interface used by the Registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Directory is the subset of the hub client the registry needs.
type Directory interface {
	GetDevices(ctx context.Context) ([]hub.Device, error)
	GetZones(ctx context.Context) ([]hub.Zone, error)
	GetZone(ctx context.Context, id string) (*hub.Zone, error)
	GetUserMe(ctx context.Context) (*hub.User, error)
}

// Registry caches the hub's device and zone inventory for fast lookups.
//
// The cache is populated via Refresh() and survives refresh failures:
// a failed refresh keeps the previous snapshot (stale-but-available).
//
// All public methods are thread-safe.
type Registry struct {
	directory Directory
	logger    Logger

	mu      sync.RWMutex
	devices map[string]*hub.Device
	zones   map[string]hub.Zone
	user    *hub.User
	loaded  bool

	// zonePaths caches resolved zone contexts; cleared on every refresh
	// since parent chains may have changed.
	zonePaths map[string]ZoneContext
}

// New creates a registry backed by the given hub directory.
func New(directory Directory) *Registry {
	return &Registry{
		directory: directory,
		logger:    noopLogger{},
		devices:   make(map[string]*hub.Device),
		zones:     make(map[string]hub.Zone),
		zonePaths: make(map[string]ZoneContext),
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// Refresh reloads devices and zones from the hub directory.
//
// On failure the previous snapshot is kept and a *RefreshError is
// returned; lookups continue to serve the stale data. The user lookup is
// fetched once and reused — its failure does not fail the refresh.
func (r *Registry) Refresh(ctx context.Context) error {
	devices, err := r.directory.GetDevices(ctx)
	if err != nil {
		return r.refreshFailed(err)
	}

	zones, err := r.directory.GetZones(ctx)
	if err != nil {
		return r.refreshFailed(err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.devices = make(map[string]*hub.Device, len(devices))
	for i := range devices {
		d := devices[i]
		r.devices[d.ID] = d.DeepCopy()
	}

	r.zones = make(map[string]hub.Zone, len(zones))
	for _, z := range zones {
		r.zones[z.ID] = z
	}

	r.zonePaths = make(map[string]ZoneContext)
	r.loaded = true

	r.logger.Info("registry refreshed", "devices", len(devices), "zones", len(zones))

	if r.user == nil {
		if user, err := r.directory.GetUserMe(ctx); err == nil {
			r.user = user
		} else {
			r.logger.Warn("user lookup failed, events will carry empty user fields", "error", err)
		}
	}

	return nil
}

// refreshFailed wraps a fetch error, flagging whether stale data remains.
func (r *Registry) refreshFailed(err error) error {
	r.mu.RLock()
	loaded := r.loaded
	r.mu.RUnlock()

	if loaded {
		r.logger.Warn("registry refresh failed, serving stale snapshot", "error", err)
		return &RefreshError{Stale: true, Err: err}
	}
	r.logger.Error("registry refresh failed with no snapshot loaded", "error", err)
	return &RefreshError{Stale: false, Err: err}
}

// Loaded reports whether at least one refresh has succeeded.
func (r *Registry) Loaded() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loaded
}

// Device retrieves a device by ID.
// Returns ErrDeviceNotFound if the device is not in the snapshot.
// The returned device is a deep copy; callers can safely modify it.
func (r *Registry) Device(id string) (*hub.Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cached, ok := r.devices[id]
	if !ok {
		return nil, ErrDeviceNotFound
	}
	return cached.DeepCopy(), nil
}

// Devices returns all cached devices.
// The returned devices are deep copies; callers can safely modify them.
func (r *Registry) Devices() []hub.Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	devices := make([]hub.Device, 0, len(r.devices))
	for _, d := range r.devices {
		devices = append(devices, *d.DeepCopy())
	}
	return devices
}

// DevicesWithCapability returns all cached devices exposing a capability.
func (r *Registry) DevicesWithCapability(capability string) []hub.Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var devices []hub.Device
	for _, d := range r.devices {
		if d.HasCapability(capability) {
			devices = append(devices, *d.DeepCopy())
		}
	}
	return devices
}

// DeviceCount returns the number of cached devices.
func (r *Registry) DeviceCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}

// Zones returns all cached zones.
func (r *Registry) Zones() []hub.Zone {
	r.mu.RLock()
	defer r.mu.RUnlock()

	zones := make([]hub.Zone, 0, len(r.zones))
	for _, z := range r.zones {
		zones = append(zones, z)
	}
	return zones
}

// Zone retrieves a cached zone by ID.
func (r *Registry) Zone(id string) (hub.Zone, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	z, ok := r.zones[id]
	return z, ok
}

// User returns the hub account the API token belongs to, or nil when the
// lookup has not succeeded yet.
func (r *Registry) User() *hub.User {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.user == nil {
		return nil
	}
	u := *r.user
	return &u
}
