// Package simulator fakes an occupied house by toggling random lights
// between sunset and sunrise.
//
// Sunset and sunrise come from a sunrise-sunset.org compatible HTTP
// service. The simulator is armed by configuration or at runtime via
// the control switch's onoff_simulator capability, and publishes
// toggle commands over the hub's capability set topics so the results
// flow through the normal recording pipeline.
package simulator
