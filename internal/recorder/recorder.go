package recorder

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/occulog/occulog-core/internal/registry"
	"github.com/occulog/occulog-core/internal/store"
)

// Logger defines the logging interface used by the Recorder.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Sender ships an event to the remote collector.
type Sender interface {
	Send(ctx context.Context, payload any) error
}

// Mirror receives a copy of every recorded event (InfluxDB).
type Mirror interface {
	WriteOccupancy(deviceID, deviceName, zonePath string, valueBool bool, durationSeconds int64)
}

// Broadcaster pushes recorded events to live subscribers (WebSocket feed).
type Broadcaster interface {
	BroadcastOccupancy(event OccupancyEvent)
}

// eventLogInterval controls the periodic diagnostic log line: every Nth
// recorded event logs the running total.
const eventLogInterval = 10

// Recorder applies light transitions and emits occupancy events.
//
// HandleTransition must be called from a single goroutine (the dispatch
// consumer); the per-device read-modify-write of LightState is not
// otherwise serialized.
type Recorder struct {
	settings store.Repository
	registry *registry.Registry
	sender   Sender
	logger   Logger

	// optional sinks
	mirror      Mirror
	broadcaster Broadcaster

	timezone *time.Location

	// now is replaceable for tests.
	now func() time.Time

	countMu      sync.Mutex
	eventCount   int64
	enabledSince time.Time
}

// New creates a recorder. sender may be nil when the collector is disabled.
func New(settings store.Repository, reg *registry.Registry, sender Sender, timezone *time.Location) *Recorder {
	if timezone == nil {
		timezone = time.UTC
	}
	return &Recorder{
		settings: settings,
		registry: reg,
		sender:   sender,
		logger:   noopLogger{},
		timezone: timezone,
		now:      time.Now,
	}
}

// SetLogger sets the logger for the recorder.
func (r *Recorder) SetLogger(logger Logger) {
	r.logger = logger
}

// SetMirror attaches the optional telemetry mirror.
func (r *Recorder) SetMirror(mirror Mirror) {
	r.mirror = mirror
}

// SetBroadcaster attaches the optional live event feed.
func (r *Recorder) SetBroadcaster(broadcaster Broadcaster) {
	r.broadcaster = broadcaster
}

// EventCount returns the number of events acknowledged by the collector
// since startup. With no collector configured every emitted event counts.
func (r *Recorder) EventCount() int64 {
	r.countMu.Lock()
	defer r.countMu.Unlock()
	return r.eventCount
}

// NoteRecordingEnabled records gate flips so the periodic diagnostic can
// report how long recording has been active. Called by the listener
// manager when the control switch changes state.
func (r *Recorder) NoteRecordingEnabled(enabled bool) {
	r.countMu.Lock()
	defer r.countMu.Unlock()
	if enabled {
		r.enabledSince = r.now()
	} else {
		r.enabledSince = time.Time{}
	}
}

// HandleTransition processes one onoff change for a light device.
//
// receivedAt is when the notification arrived, so queueing delay never
// stretches recorded durations. The pipeline:
//
//  1. Skip everything when recording is disabled.
//  2. Skip duplicates (stored state already holds this value).
//  3. On-transitions stamp the start of the occupied period and persist;
//     they never emit. Off-transitions closing a recorded on-period
//     compute the time in state from the stored on-timestamp.
//  4. Persist the new LightState before any delivery, so a crash between
//     persist and send loses at most one event, never state.
//  5. For closed on-periods only, emit the enriched event to the
//     collector and optional sinks.
func (r *Recorder) HandleTransition(ctx context.Context, deviceID string, value bool, receivedAt time.Time) {
	enabled, err := r.settings.RecorderEnabled(ctx)
	if err != nil {
		r.logger.Error("reading recorder gate failed, skipping event", "device_id", deviceID, "error", err)
		return
	}
	if !enabled {
		r.logger.Debug("recording disabled, ignoring transition", "device_id", deviceID, "value", value)
		return
	}

	if receivedAt.IsZero() {
		receivedAt = r.now()
	}
	nowMs := receivedAt.UnixMilli()

	prev, err := r.settings.GetLightState(ctx, deviceID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		r.logger.Error("loading light state failed, skipping event", "device_id", deviceID, "error", err)
		return
	}

	if prev != nil && prev.LastOnOffState == value {
		r.logger.Debug("duplicate transition ignored", "device_id", deviceID, "value", value)
		return
	}

	var duration int64
	closedOnPeriod := false
	next := &store.LightState{
		LastOnOffState: value,
		LastUpdate:     nowMs,
	}

	if value {
		next.LastOnTimestamp = nowMs
	} else if prev != nil && prev.LastOnOffState {
		closedOnPeriod = true
		if prev.LastOnTimestamp > 0 {
			duration = durationSeconds(nowMs - prev.LastOnTimestamp)
		} else {
			// On was recorded without its timestamp (inconsistent stored
			// state); the period length is unknowable, report zero.
			r.logger.Warn("on-period missing start timestamp, recording zero duration", "device_id", deviceID)
		}
		// LastOnTimestamp resets to zero for the next cycle.
	} else {
		// First observation is an off, or state predates tracking: record
		// the state but there is no occupied period to report.
		r.logger.Debug("off-transition without prior on, nothing to emit", "device_id", deviceID)
	}

	if err := r.settings.SetLightState(ctx, deviceID, next); err != nil {
		r.logger.Error("persisting light state failed, skipping event", "device_id", deviceID, "error", err)
		return
	}

	if !closedOnPeriod {
		return
	}

	event := r.buildEvent(ctx, deviceID, value, duration, receivedAt)
	r.emit(ctx, event)
}

// buildEvent enriches a transition with directory context.
func (r *Recorder) buildEvent(ctx context.Context, deviceID string, value bool, duration int64, ts time.Time) OccupancyEvent {
	event := OccupancyEvent{
		DeviceID:               deviceID,
		Name:                   deviceID,
		ValueBool:              value,
		DurationInStateSeconds: duration,
	}
	fillEventTime(&event, ts, r.timezone)

	device, err := r.registry.Device(deviceID)
	var zone registry.ZoneContext
	if err != nil {
		// Device vanished between notification and lookup; keep the ID as
		// the name and fall through to the no-zone sentinel.
		r.logger.Warn("device not in registry, recording with fallback fields", "device_id", deviceID)
		zone = r.registry.ResolveZone(ctx, nil)
	} else {
		if device.Name != "" {
			event.Name = device.Name
		}
		zone = r.registry.ResolveZone(ctx, device.Zone)
	}

	event.Zone = zone.Name
	event.ZoneID = zone.ID
	event.ZonePath = zone.Path

	if user := r.registry.User(); user != nil {
		event.UserID = user.ID
		event.UserName = user.Name
	}

	return event
}

// emit delivers the event to the collector and optional sinks. Only
// acknowledged deliveries advance the diagnostic counter.
func (r *Recorder) emit(ctx context.Context, event OccupancyEvent) {
	r.logger.Debug("occupancy event",
		"device_id", event.DeviceID,
		"duration_s", event.DurationInStateSeconds,
		"zone_path", event.ZonePath,
	)

	acknowledged := true
	if r.sender != nil {
		if err := r.sender.Send(ctx, event); err != nil {
			// Best-effort delivery: log and drop.
			acknowledged = false
			r.logger.Warn("collector send failed, event dropped",
				"device_id", event.DeviceID, "error", err)
		}
	}

	if acknowledged {
		r.countMu.Lock()
		r.eventCount++
		count := r.eventCount
		enabledSince := r.enabledSince
		r.countMu.Unlock()

		if count%eventLogInterval == 0 {
			args := []any{"total", count}
			if !enabledSince.IsZero() {
				args = append(args, "recording_active_for", r.now().Sub(enabledSince).String())
			}
			r.logger.Info("occupancy events recorded", args...)
		}
	}

	if r.mirror != nil {
		r.mirror.WriteOccupancy(event.DeviceID, event.Name, event.ZonePath,
			event.ValueBool, event.DurationInStateSeconds)
	}

	if r.broadcaster != nil {
		r.broadcaster.BroadcastOccupancy(event)
	}
}
