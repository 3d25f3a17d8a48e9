// Package listener keeps MQTT subscriptions aligned with the hub inventory.
//
// The manager reconciles on startup and whenever the hub announces a
// device change: every onoff-capable device gets exactly one capability
// subscription, removed devices are unsubscribed, and the control switch
// (a virtual device that gates recording) is tracked separately.
//
// MQTT handlers do no work themselves; they enqueue notifications on the
// dispatcher and the single consumer loop routes them back through
// Handle, which preserves event ordering.
package listener
