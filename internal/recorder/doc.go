// Package recorder turns light onoff transitions into occupancy events.
//
// For each tracked light the recorder keeps a persisted LightState
// (last value plus timestamps). An on-transition stamps the start of an
// occupied period; the following off-transition computes how long the
// light was on and emits an OccupancyEvent enriched with the device name,
// zone path, and hub user. Events ship to the remote collector and,
// optionally, to the InfluxDB mirror and the WebSocket feed.
//
// Duplicate notifications (same value as the stored state) are ignored,
// so broker redeliveries never produce double events. A global enabled
// flag in the settings store gates all recording.
package recorder
