package telemetry

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteOccupancy mirrors one recorded occupancy event.
//
// Each point carries the device and zone as tags so dashboards can group
// by room, and the on-duration as the field value. value_bool matches the
// collector's column for cross-checking the two sinks.
//
// The write is non-blocking; data is batched and sent asynchronously.
func (c *Client) WriteOccupancy(deviceID, deviceName, zonePath string, valueBool bool, durationSeconds int64) {
	if !c.IsConnected() {
		return
	}

	value := 0
	if valueBool {
		value = 1
	}

	point := write.NewPoint(
		"occupancy",
		map[string]string{
			"device_id": deviceID,
			"device":    deviceName,
			"zone_path": zonePath,
		},
		map[string]interface{}{
			"value_bool":    value,
			"duration_secs": durationSeconds,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteListenerCount mirrors the number of active capability listeners.
// Written after every reconcile so gaps in coverage are visible.
func (c *Client) WriteListenerCount(count int) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"listeners",
		map[string]string{},
		map[string]interface{}{
			"active": count,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}
