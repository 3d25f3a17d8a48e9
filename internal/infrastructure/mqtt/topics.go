package mqtt

import (
	"fmt"
	"strings"
)

// Topic prefixes for the hub event bus.
//
// The hub publishes capability value changes and device lifecycle events
// under the hub/ prefix. Occulog publishes only its own status under the
// occulog/ prefix.
const (
	// TopicPrefixHub is the base for all hub-published topics.
	TopicPrefixHub = "hub"

	// TopicPrefixSystem is the base for Occulog system topics.
	TopicPrefixSystem = "occulog/system"
)

// Topics provides builders for hub event bus topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	t := topics.DeviceCapability("abc-123", "onoff")
//	// Returns: "hub/device/abc-123/capability/onoff"
type Topics struct{}

// DeviceCapability returns the topic for capability value updates of a device.
//
// Example: hub/device/abc-123/capability/onoff
func (Topics) DeviceCapability(deviceID, capability string) string {
	return fmt.Sprintf("%s/device/%s/capability/%s", TopicPrefixHub, deviceID, capability)
}

// DeviceEvent returns the topic for a device lifecycle event.
//
// Example: hub/event/device/created
func (Topics) DeviceEvent(event string) string {
	return fmt.Sprintf("%s/event/device/%s", TopicPrefixHub, event)
}

// DeviceCreated returns the topic for device creation events.
//
// Example: hub/event/device/created
func (Topics) DeviceCreated() string {
	return Topics{}.DeviceEvent("created")
}

// DeviceDeleted returns the topic for device deletion events.
//
// Example: hub/event/device/deleted
func (Topics) DeviceDeleted() string {
	return Topics{}.DeviceEvent("deleted")
}

// DeviceCapabilitySet returns the command topic for setting a device
// capability value.
//
// Example: hub/device/abc-123/capability/onoff/set
func (Topics) DeviceCapabilitySet(deviceID, capability string) string {
	return fmt.Sprintf("%s/device/%s/capability/%s/set", TopicPrefixHub, deviceID, capability)
}

// SystemStatus returns the Occulog system status topic.
//
// Example: occulog/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// =============================================================================
// Wildcard Patterns for Subscriptions
// =============================================================================

// AllDeviceCapability returns a pattern matching every device's updates for
// one capability.
//
// Pattern: hub/device/+/capability/onoff
func (Topics) AllDeviceCapability(capability string) string {
	return fmt.Sprintf("%s/device/+/capability/%s", TopicPrefixHub, capability)
}

// AllDeviceEvents returns a pattern matching all device lifecycle events.
//
// Pattern: hub/event/device/+
func (Topics) AllDeviceEvents() string {
	return fmt.Sprintf("%s/event/device/+", TopicPrefixHub)
}

// AllHubTopics returns a pattern matching all hub topics.
// Use with caution - this receives ALL hub traffic.
//
// Pattern: hub/#
func (Topics) AllHubTopics() string {
	return TopicPrefixHub + "/#"
}

// ParseDeviceCapability extracts the device ID and capability from a
// capability update topic. Returns ok=false for topics that do not match
// the hub/device/{id}/capability/{name} shape.
func ParseDeviceCapability(topic string) (deviceID, capability string, ok bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 5 || parts[0] != TopicPrefixHub || parts[1] != "device" || parts[3] != "capability" {
		return "", "", false
	}
	if parts[2] == "" || parts[4] == "" {
		return "", "", false
	}
	return parts[2], parts[4], true
}
