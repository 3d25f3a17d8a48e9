package store

// Settings key layout.
const (
	// lightStatePrefix prefixes per-device light state keys: light_<deviceID>.
	lightStatePrefix = "light_"

	// keyRecorderEnabled stores the global recording gate.
	keyRecorderEnabled = "recorder_enabled"
)

// LightState tracks the last observed onoff value for one light device.
//
// Timestamps are Unix epoch milliseconds. LastOnTimestamp is zero when no
// on-transition has been seen yet, in which case no duration can be derived
// for the next off-transition.
type LightState struct {
	LastOnOffState  bool  `json:"lastOnOffState"`
	LastUpdate      int64 `json:"lastUpdate"`
	LastOnTimestamp int64 `json:"lastOnTimestamp"`
}

// LightStateKey returns the settings key for a device's light state.
func LightStateKey(deviceID string) string {
	return lightStatePrefix + deviceID
}
