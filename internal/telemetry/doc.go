// Package telemetry mirrors recorded occupancy events into InfluxDB.
//
// The mirror is optional: when disabled in configuration (the default)
// the recorder simply skips it. The remote collector remains the primary
// destination; InfluxDB exists for local dashboards and retention the
// collector does not offer.
//
// Writes are non-blocking and batched by the InfluxDB client. Async write
// failures surface through the SetOnError callback and are logged, never
// propagated to the recorder.
package telemetry
