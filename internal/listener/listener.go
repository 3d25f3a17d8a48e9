package listener

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/occulog/occulog-core/internal/dispatch"
	"github.com/occulog/occulog-core/internal/hub"
	"github.com/occulog/occulog-core/internal/infrastructure/config"
	"github.com/occulog/occulog-core/internal/infrastructure/mqtt"
	"github.com/occulog/occulog-core/internal/registry"
)

// Logger defines the logging interface used by the Manager.
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

// Subscriber is the subset of the MQTT client the manager needs.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// Transitions receives ordered onoff changes (the recorder).
type Transitions interface {
	HandleTransition(ctx context.Context, deviceID string, value bool, receivedAt time.Time)
	NoteRecordingEnabled(enabled bool)
}

// Gate flips the global recording switch (the settings store).
type Gate interface {
	SetRecorderEnabled(ctx context.Context, enabled bool) error
}

// Gauge mirrors the active listener count (telemetry).
type Gauge interface {
	WriteListenerCount(count int)
}

// capabilityPayload is the hub's capability update message.
type capabilityPayload struct {
	Value json.RawMessage `json:"value"`
}

// deviceEventPayload is the hub's device created/deleted message.
type deviceEventPayload struct {
	ID string `json:"id"`
}

// Manager owns the set of active capability subscriptions.
//
// Reconcile and Handle run on the dispatch consumer goroutine (plus the
// initial startup call); the tracked map still takes a mutex because
// SubscriptionCount and Close may be called from elsewhere.
type Manager struct {
	subscriber Subscriber
	registry   *registry.Registry
	dispatcher *dispatch.Dispatcher
	recorder   Transitions
	gate       Gate
	cfg        config.RecorderConfig
	qos        byte
	logger     Logger
	gauge      Gauge

	mu      sync.Mutex
	tracked map[string]string // device ID -> subscribed topic

	controlSwitchID    string
	controlSwitchTopic string
	warnedNoSwitch     bool

	eventsSubscribed bool
}

// NewManager creates a listener manager.
func NewManager(
	subscriber Subscriber,
	reg *registry.Registry,
	dispatcher *dispatch.Dispatcher,
	rec Transitions,
	gate Gate,
	cfg config.RecorderConfig,
	qos byte,
) *Manager {
	return &Manager{
		subscriber: subscriber,
		registry:   reg,
		dispatcher: dispatcher,
		recorder:   rec,
		gate:       gate,
		cfg:        cfg,
		qos:        qos,
		logger:     noopLogger{},
		tracked:    make(map[string]string),
	}
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	m.logger = logger
}

// SetGauge attaches the optional listener-count mirror.
func (m *Manager) SetGauge(gauge Gauge) {
	m.gauge = gauge
}

// Start performs the initial reconcile and subscribes to the hub's device
// lifecycle events so future changes trigger re-reconciliation.
func (m *Manager) Start(ctx context.Context) error {
	if err := m.subscribeDeviceEvents(); err != nil {
		return fmt.Errorf("subscribing device events: %w", err)
	}
	return m.Reconcile(ctx)
}

// subscribeDeviceEvents attaches handlers for device created/deleted topics.
func (m *Manager) subscribeDeviceEvents() error {
	if m.eventsSubscribed {
		return nil
	}

	topics := mqtt.Topics{}

	err := m.subscriber.Subscribe(topics.DeviceCreated(), m.qos, func(_ string, payload []byte) error {
		var ev deviceEventPayload
		if err := json.Unmarshal(payload, &ev); err != nil {
			return fmt.Errorf("decoding device created event: %w", err)
		}
		m.dispatcher.Enqueue(dispatch.DeviceCreated{DeviceID: ev.ID})
		return nil
	})
	if err != nil {
		return err
	}

	err = m.subscriber.Subscribe(topics.DeviceDeleted(), m.qos, func(_ string, payload []byte) error {
		var ev deviceEventPayload
		if err := json.Unmarshal(payload, &ev); err != nil {
			return fmt.Errorf("decoding device deleted event: %w", err)
		}
		m.dispatcher.Enqueue(dispatch.DeviceDeleted{DeviceID: ev.ID})
		return nil
	})
	if err != nil {
		return err
	}

	m.eventsSubscribed = true
	return nil
}

// Reconcile aligns subscriptions with the current hub inventory.
//
// A failed registry refresh with a stale snapshot still reconciles
// against that snapshot. Individual subscribe failures are logged and
// skipped; the next reconcile retries them.
func (m *Manager) Reconcile(ctx context.Context) error {
	if err := m.registry.Refresh(ctx); err != nil {
		var refreshErr *registry.RefreshError
		if errors.As(err, &refreshErr) && refreshErr.Stale {
			m.logger.Warn("reconciling against stale registry snapshot", "error", err)
		} else {
			return fmt.Errorf("refreshing registry: %w", err)
		}
	}

	m.resolveControlSwitch()

	desired := make(map[string]hub.Device)
	for _, d := range m.registry.DevicesWithCapability(m.cfg.Capability) {
		if d.ID == m.controlSwitchID {
			continue
		}
		desired[d.ID] = d
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Unsubscribe devices that vanished from the inventory.
	for deviceID, topic := range m.tracked {
		if _, keep := desired[deviceID]; keep {
			continue
		}
		if err := m.subscriber.Unsubscribe(topic); err != nil {
			m.logger.Warn("unsubscribe failed", "device_id", deviceID, "topic", topic, "error", err)
		}
		delete(m.tracked, deviceID)
		m.logger.Info("listener removed", "device_id", deviceID)
	}

	// Subscribe new devices.
	var failures int
	for deviceID, device := range desired {
		if _, ok := m.tracked[deviceID]; ok {
			continue
		}
		topic := mqtt.Topics{}.DeviceCapability(deviceID, m.cfg.Capability)
		if err := m.subscriber.Subscribe(topic, m.qos, m.capabilityHandler(deviceID)); err != nil {
			failures++
			m.logger.Warn("subscribe failed, will retry on next reconcile",
				"device_id", deviceID, "topic", topic, "error", err)
			continue
		}
		m.tracked[deviceID] = topic
		m.logger.Info("listener attached", "device_id", deviceID, "name", device.Name)
	}

	m.logger.Info("listener reconcile complete",
		"active", len(m.tracked), "failed", failures)
	if m.gauge != nil {
		m.gauge.WriteListenerCount(len(m.tracked))
	}
	return nil
}

// capabilityHandler builds the MQTT handler for one light device.
// The device ID is bound here so topic parsing is never load-bearing.
func (m *Manager) capabilityHandler(deviceID string) mqtt.MessageHandler {
	return func(_ string, payload []byte) error {
		value, err := decodeBoolValue(payload)
		if err != nil {
			return fmt.Errorf("device %s: %w", deviceID, err)
		}
		m.dispatcher.Enqueue(dispatch.CapabilityChanged{
			DeviceID:   deviceID,
			Value:      value,
			ReceivedAt: time.Now(),
		})
		return nil
	}
}

// resolveControlSwitch locates the control switch device and attaches its
// gate subscription. Missing switch is fail-open: recording stays enabled
// and the absence is warned once.
func (m *Manager) resolveControlSwitch() {
	var found *hub.Device
	var byName *hub.Device

	for _, d := range m.registry.Devices() {
		d := d
		if d.DriverID == m.cfg.ControlSwitchDriverID {
			found = &d
			break
		}
		if d.Name == m.cfg.ControlSwitchName {
			byName = &d
		}
	}
	if found == nil {
		found = byName
	}

	if found == nil {
		if m.controlSwitchID != "" {
			// The attached switch was deleted: drop its gate topic so a
			// stale device cannot keep flipping the gate.
			m.dropGateSubscription()
			m.controlSwitchID = ""
		}
		if !m.warnedNoSwitch {
			m.logger.Warn("control switch not found, recording defaults to enabled",
				"driver_id", m.cfg.ControlSwitchDriverID, "name", m.cfg.ControlSwitchName)
			m.warnedNoSwitch = true
			// The gate is persisted, so a switch turned off and then
			// removed would leave recording stuck disabled without this.
			m.failOpen()
		}
		return
	}

	if found.ID == m.controlSwitchID {
		return
	}

	// Switch appeared or changed identity: drop the old gate topic and any
	// light subscription the new device may have had, then attach the gate
	// handler.
	m.dropGateSubscription()

	m.mu.Lock()
	if topic, ok := m.tracked[found.ID]; ok {
		if err := m.subscriber.Unsubscribe(topic); err != nil {
			m.logger.Warn("unsubscribing control switch light topic failed", "error", err)
		}
		delete(m.tracked, found.ID)
	}
	m.mu.Unlock()

	topic := mqtt.Topics{}.DeviceCapability(found.ID, m.cfg.Capability)
	switchID := found.ID
	err := m.subscriber.Subscribe(topic, m.qos, func(_ string, payload []byte) error {
		value, err := decodeBoolValue(payload)
		if err != nil {
			return fmt.Errorf("control switch: %w", err)
		}
		if err := m.gate.SetRecorderEnabled(context.Background(), value); err != nil {
			return fmt.Errorf("flipping recording gate: %w", err)
		}
		m.recorder.NoteRecordingEnabled(value)
		m.logger.Info("recording gate flipped", "enabled", value, "switch_id", switchID)
		return nil
	})
	if err != nil {
		m.logger.Warn("control switch subscribe failed", "error", err)
		return
	}

	m.controlSwitchID = found.ID
	m.controlSwitchTopic = topic
	m.warnedNoSwitch = false

	// The switch's current value seeds the gate; an absent or non-boolean
	// value fails open.
	initial := true
	if v, ok := found.CapabilityValues[m.cfg.Capability].(bool); ok {
		initial = v
	}
	if err := m.gate.SetRecorderEnabled(context.Background(), initial); err != nil {
		m.logger.Warn("seeding recording gate failed", "error", err)
	} else {
		m.recorder.NoteRecordingEnabled(initial)
	}

	m.logger.Info("control switch attached",
		"device_id", found.ID, "name", found.Name, "enabled", initial)
}

// dropGateSubscription unsubscribes the current control switch topic.
func (m *Manager) dropGateSubscription() {
	if m.controlSwitchTopic == "" {
		return
	}
	if err := m.subscriber.Unsubscribe(m.controlSwitchTopic); err != nil {
		m.logger.Warn("unsubscribing control switch gate topic failed",
			"topic", m.controlSwitchTopic, "error", err)
	}
	m.controlSwitchTopic = ""
}

// failOpen forces the persisted gate back to enabled.
func (m *Manager) failOpen() {
	if err := m.gate.SetRecorderEnabled(context.Background(), true); err != nil {
		m.logger.Warn("forcing recording gate enabled failed", "error", err)
		return
	}
	m.recorder.NoteRecordingEnabled(true)
}

// Handle routes dispatched notifications. It implements dispatch.Handler.
func (m *Manager) Handle(ctx context.Context, n dispatch.Notification) {
	switch ev := n.(type) {
	case dispatch.CapabilityChanged:
		m.recorder.HandleTransition(ctx, ev.DeviceID, ev.Value, ev.ReceivedAt)

	case dispatch.DeviceCreated:
		m.logger.Info("device created, reconciling", "device_id", ev.DeviceID)
		if err := m.Reconcile(ctx); err != nil {
			m.logger.Error("reconcile after device create failed", "error", err)
		}

	case dispatch.DeviceDeleted:
		// Unsubscribe immediately rather than waiting for the refresh, so
		// late messages from the dead device cannot record events.
		m.dropDevice(ev.DeviceID)
		if err := m.Reconcile(ctx); err != nil {
			m.logger.Error("reconcile after device delete failed", "error", err)
		}

	default:
		m.logger.Warn("unknown notification type", "notification", n)
	}
}

// dropDevice removes one tracked subscription.
func (m *Manager) dropDevice(deviceID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	topic, ok := m.tracked[deviceID]
	if !ok {
		return
	}
	if err := m.subscriber.Unsubscribe(topic); err != nil {
		m.logger.Warn("unsubscribe failed", "device_id", deviceID, "error", err)
	}
	delete(m.tracked, deviceID)
	m.logger.Info("listener destroyed for deleted device", "device_id", deviceID)
}

// SubscriptionCount returns the number of tracked light subscriptions.
func (m *Manager) SubscriptionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tracked)
}

// Tracks reports whether a device has an active light subscription.
func (m *Manager) Tracks(deviceID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.tracked[deviceID]
	return ok
}

// Close unsubscribes everything the manager tracks.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for deviceID, topic := range m.tracked {
		if err := m.subscriber.Unsubscribe(topic); err != nil {
			m.logger.Warn("unsubscribe on close failed", "device_id", deviceID, "error", err)
		}
		delete(m.tracked, deviceID)
	}
	return nil
}

// decodeBoolValue extracts a strict boolean from a capability payload.
// The hub wraps values as {"value": <any>}; non-boolean values are a
// protocol violation for the onoff capability.
func decodeBoolValue(payload []byte) (bool, error) {
	var msg capabilityPayload
	if err := json.Unmarshal(payload, &msg); err != nil {
		return false, fmt.Errorf("decoding capability payload: %w", err)
	}

	var value bool
	if err := json.Unmarshal(msg.Value, &value); err != nil {
		return false, fmt.Errorf("capability value is not a boolean: %s", msg.Value)
	}
	return value, nil
}
