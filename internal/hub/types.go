package hub

// Device is a device entry from the hub directory.
//
// Zone is a pointer because the hub omits it for devices that are not
// assigned to any zone.
type Device struct {
	ID               string         `json:"id"`
	Name             string         `json:"name"`
	Class            string         `json:"class"`
	DriverID         string         `json:"driver_id"`
	Zone             *string        `json:"zone,omitempty"`
	Capabilities     []string       `json:"capabilities"`
	CapabilityValues map[string]any `json:"capability_values"`
	Available        bool           `json:"available"`
}

// HasCapability reports whether the device exposes the named capability.
func (d *Device) HasCapability(name string) bool {
	for _, c := range d.Capabilities {
		if c == name {
			return true
		}
	}
	return false
}

// DeepCopy returns a copy sharing no mutable state with the original.
// Registry caches hand out copies so callers can safely modify them.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}

	clone := *d

	if d.Zone != nil {
		zone := *d.Zone
		clone.Zone = &zone
	}
	if d.Capabilities != nil {
		clone.Capabilities = make([]string, len(d.Capabilities))
		copy(clone.Capabilities, d.Capabilities)
	}
	if d.CapabilityValues != nil {
		clone.CapabilityValues = make(map[string]any, len(d.CapabilityValues))
		for k, v := range d.CapabilityValues {
			clone.CapabilityValues[k] = v
		}
	}

	return &clone
}

// Zone is a zone entry from the hub directory. Parent is nil for root zones.
type Zone struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Parent *string `json:"parent,omitempty"`
}

// User is the hub account the API token belongs to.
type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SystemInfo describes the hub installation.
type SystemInfo struct {
	Name     string `json:"name"`
	Version  string `json:"version"`
	Platform string `json:"platform"`
}
