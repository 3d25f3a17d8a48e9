// Package mqtt wraps the paho client with the small surface occulog
// needs: tracked subscriptions that survive reconnects, acknowledged
// publishes, a retained online/offline status with Last Will crash
// detection, and topic builders for the hub's namespace.
package mqtt
