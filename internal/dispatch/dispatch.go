// Package dispatch funnels hub notifications through a single consumer.
//
// MQTT handlers run on the paho client's goroutines and may fire
// concurrently. Recording occupancy needs strict per-device ordering
// (an off must see the state left by the preceding on), so handlers only
// enqueue here and one consumer goroutine applies notifications in
// arrival order.
package dispatch

import (
	"context"
	"sync"
	"time"
)

// Logger defines the logging interface used by the Dispatcher.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Notification is a hub event queued for the consumer loop.
type Notification interface {
	notification()
}

// CapabilityChanged reports an onoff value change for a light device.
// ReceivedAt is captured when the MQTT message arrives, not when the
// consumer gets around to it, so queued bursts keep honest timestamps.
type CapabilityChanged struct {
	DeviceID   string
	Value      bool
	ReceivedAt time.Time
}

// DeviceCreated reports a device added to the hub inventory.
type DeviceCreated struct {
	DeviceID string
}

// DeviceDeleted reports a device removed from the hub inventory.
type DeviceDeleted struct {
	DeviceID string
}

func (CapabilityChanged) notification() {}
func (DeviceCreated) notification()     {}
func (DeviceDeleted) notification()     {}

// Handler consumes notifications one at a time, in arrival order.
type Handler interface {
	Handle(ctx context.Context, n Notification)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, n Notification)

// Handle calls f(ctx, n).
func (f HandlerFunc) Handle(ctx context.Context, n Notification) { f(ctx, n) }

// defaultQueueSize bounds the notification buffer. A burst larger than
// this drops the overflow rather than blocking MQTT handlers.
const defaultQueueSize = 256

// Dispatcher owns the notification queue and the single consumer goroutine.
type Dispatcher struct {
	handler Handler
	logger  Logger
	queue   chan Notification

	startOnce sync.Once
	stopOnce  sync.Once
	done      chan struct{}

	droppedMu sync.Mutex
	dropped   int64
}

// New creates a dispatcher delivering to handler.
// queueSize <= 0 selects the default buffer size.
func New(handler Handler, queueSize int) *Dispatcher {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Dispatcher{
		handler: handler,
		logger:  noopLogger{},
		queue:   make(chan Notification, queueSize),
		done:    make(chan struct{}),
	}
}

// SetLogger sets the logger for the dispatcher.
func (d *Dispatcher) SetLogger(logger Logger) {
	d.logger = logger
}

// Start launches the consumer goroutine. It returns immediately; the loop
// runs until ctx is cancelled. Subsequent calls are no-ops.
func (d *Dispatcher) Start(ctx context.Context) {
	d.startOnce.Do(func() {
		go d.run(ctx)
	})
}

// run is the single consumer loop.
func (d *Dispatcher) run(ctx context.Context) {
	defer close(d.done)

	for {
		select {
		case <-ctx.Done():
			return
		case n := <-d.queue:
			d.deliver(ctx, n)
		}
	}
}

// deliver invokes the handler with panic recovery so one bad notification
// cannot kill the loop.
func (d *Dispatcher) deliver(ctx context.Context, n Notification) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("dispatch handler panic recovered", "panic", r, "notification", n)
		}
	}()
	d.handler.Handle(ctx, n)
}

// Enqueue queues a notification for the consumer.
// Returns false when the queue is full; the notification is dropped and
// counted rather than blocking the caller.
func (d *Dispatcher) Enqueue(n Notification) bool {
	select {
	case d.queue <- n:
		return true
	default:
		d.droppedMu.Lock()
		d.dropped++
		dropped := d.dropped
		d.droppedMu.Unlock()
		d.logger.Warn("notification queue full, dropping", "dropped_total", dropped)
		return false
	}
}

// Dropped returns the number of notifications dropped due to a full queue.
func (d *Dispatcher) Dropped() int64 {
	d.droppedMu.Lock()
	defer d.droppedMu.Unlock()
	return d.dropped
}

// QueueDepth returns the number of queued, undelivered notifications.
func (d *Dispatcher) QueueDepth() int {
	return len(d.queue)
}

// Wait blocks until the consumer loop has exited after context cancellation.
func (d *Dispatcher) Wait() {
	<-d.done
}
