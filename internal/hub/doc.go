// Package hub provides a client for the hub's directory HTTP API.
//
// The hub is the smart-home controller that owns the device, zone, and user
// inventory. Occulog reads that inventory over HTTP (this package) and
// receives live capability updates over MQTT (internal/infrastructure/mqtt).
//
// The client is read-only: Occulog never mutates hub state.
package hub
