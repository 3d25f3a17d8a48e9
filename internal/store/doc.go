// Package store persists Occulog settings in SQLite.
//
// It is a small key/value layer over the settings table. Values are JSON
// documents. The two kinds of entries are:
//
//   - light_<deviceID>: per-light state (last onoff value, timestamps) that
//     lets the recorder compute time-in-state across restarts
//   - recorder_enabled: global gate for event recording
//
// The package exposes typed helpers over the raw Get/Set operations so
// callers never deal with JSON directly.
package store
