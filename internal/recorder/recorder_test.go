package recorder

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/occulog/occulog-core/internal/hub"
	"github.com/occulog/occulog-core/internal/registry"
	"github.com/occulog/occulog-core/internal/store"
)

// memorySettings is an in-memory store.Repository for tests.
type memorySettings struct {
	mu       sync.Mutex
	values   map[string]string
	states   map[string]store.LightState
	enabled  bool
	getFails bool
}

func newMemorySettings() *memorySettings {
	return &memorySettings{
		values:  make(map[string]string),
		states:  make(map[string]store.LightState),
		enabled: true,
	}
}

func (m *memorySettings) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	if !ok {
		return "", store.ErrNotFound
	}
	return v, nil
}

func (m *memorySettings) Set(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *memorySettings) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

func (m *memorySettings) List(ctx context.Context) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.values))
	for k, v := range m.values {
		out[k] = v
	}
	return out, nil
}

func (m *memorySettings) GetLightState(ctx context.Context, deviceID string) (*store.LightState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getFails {
		return nil, errors.New("store broken")
	}
	s, ok := m.states[deviceID]
	if !ok {
		return nil, store.ErrNotFound
	}
	clone := s
	return &clone, nil
}

func (m *memorySettings) SetLightState(ctx context.Context, deviceID string, state *store.LightState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[deviceID] = *state
	return nil
}

func (m *memorySettings) ListLightStates(ctx context.Context) (map[string]store.LightState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]store.LightState, len(m.states))
	for k, v := range m.states {
		out[k] = v
	}
	return out, nil
}

func (m *memorySettings) RecorderEnabled(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled, nil
}

func (m *memorySettings) SetRecorderEnabled(ctx context.Context, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = enabled
	return nil
}

// captureSender records sent events and can simulate failure.
type captureSender struct {
	mu     sync.Mutex
	events []OccupancyEvent
	fail   bool
}

func (s *captureSender) Send(ctx context.Context, payload any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("collector down")
	}
	s.events = append(s.events, payload.(OccupancyEvent))
	return nil
}

func (s *captureSender) all() []OccupancyEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]OccupancyEvent, len(s.events))
	copy(out, s.events)
	return out
}

// fakeDirectory backs the registry for recorder tests.
type fakeDirectory struct {
	devices []hub.Device
	zones   []hub.Zone
	user    *hub.User
}

func (f *fakeDirectory) GetDevices(ctx context.Context) ([]hub.Device, error) {
	return f.devices, nil
}
func (f *fakeDirectory) GetZones(ctx context.Context) ([]hub.Zone, error) { return f.zones, nil }
func (f *fakeDirectory) GetZone(ctx context.Context, id string) (*hub.Zone, error) {
	for _, z := range f.zones {
		if z.ID == id {
			zone := z
			return &zone, nil
		}
	}
	return nil, hub.ErrNotFound
}
func (f *fakeDirectory) GetUserMe(ctx context.Context) (*hub.User, error) {
	if f.user == nil {
		return nil, errors.New("no user")
	}
	return f.user, nil
}

func strPtr(s string) *string { return &s }

func newTestRecorder(t *testing.T) (*Recorder, *memorySettings, *captureSender) {
	t.Helper()

	dir := &fakeDirectory{
		devices: []hub.Device{
			{ID: "d1", Name: "Lampara Cama", Class: "light", Capabilities: []string{"onoff"}, Zone: strPtr("z3")},
			{ID: "d2", Name: "Velador", Class: "light", Capabilities: []string{"onoff"}},
		},
		zones: []hub.Zone{
			{ID: "z1", Name: "Planta Alta"},
			{ID: "z2", Name: "Dormitorio", Parent: strPtr("z1")},
			{ID: "z3", Name: "Cama", Parent: strPtr("z2")},
		},
		user: &hub.User{ID: "u1", Name: "Marcos"},
	}
	reg := registry.New(dir)
	if err := reg.Refresh(context.Background()); err != nil {
		t.Fatalf("registry refresh: %v", err)
	}

	settings := newMemorySettings()
	sender := &captureSender{}
	rec := New(settings, reg, sender, time.UTC)
	return rec, settings, sender
}

func TestOnThenOffRecordsDuration(t *testing.T) {
	rec, settings, sender := newTestRecorder(t)
	ctx := context.Background()

	base := time.Date(2026, time.August, 28, 22, 15, 0, 0, time.UTC)
	rec.HandleTransition(ctx, "d1", true, base)
	rec.HandleTransition(ctx, "d1", false, base.Add(125*time.Second))

	events := sender.all()
	if len(events) != 1 {
		t.Fatalf("got %d events, expected 1 (only the off-transition emits)", len(events))
	}

	off := events[0]
	if off.ValueBool {
		t.Error("value_bool = true, off events must report false")
	}
	if off.DurationInStateSeconds != 125 {
		t.Errorf("duration = %d, expected 125", off.DurationInStateSeconds)
	}
	if off.Name != "Lampara Cama" || off.DeviceID != "d1" {
		t.Errorf("identity fields = %+v", off)
	}
	if off.Zone != "Cama" || off.ZoneID != "z3" {
		t.Errorf("zone fields = %+v", off)
	}
	if off.ZonePath != "Planta Alta / Dormitorio / Cama" {
		t.Errorf("zone_path = %q", off.ZonePath)
	}
	if off.UserID != "u1" || off.UserName != "Marcos" {
		t.Errorf("user fields = %+v", off)
	}

	// State persisted with the cycle closed
	state, err := settings.GetLightState(ctx, "d1")
	if err != nil {
		t.Fatalf("GetLightState: %v", err)
	}
	if state.LastOnOffState {
		t.Error("stored state still on after off-transition")
	}
	if state.LastOnTimestamp != 0 {
		t.Errorf("LastOnTimestamp = %d, expected 0 after cycle close", state.LastOnTimestamp)
	}
}

func TestSpanishCalendarFields(t *testing.T) {
	rec, _, sender := newTestRecorder(t)
	ctx := context.Background()

	// 2026-08-28 is a Friday; the fields come from the off timestamp.
	ts := time.Date(2026, time.August, 28, 9, 5, 7, 0, time.UTC)
	rec.HandleTransition(ctx, "d1", true, ts.Add(-10*time.Minute))
	rec.HandleTransition(ctx, "d1", false, ts)

	e := sender.all()[0]
	if e.EventDate != "28/08/2026" {
		t.Errorf("event_date = %q", e.EventDate)
	}
	if e.EventTime != "09:05" {
		t.Errorf("event_time = %q", e.EventTime)
	}
	if e.DayOfWeek != "viernes" {
		t.Errorf("day_of_week = %q", e.DayOfWeek)
	}
	if e.MonthName != "agosto" {
		t.Errorf("month_name = %q", e.MonthName)
	}
}

func TestOnTransitionDoesNotEmit(t *testing.T) {
	rec, settings, sender := newTestRecorder(t)
	ctx := context.Background()

	rec.HandleTransition(ctx, "d1", true, time.Now())

	if len(sender.all()) != 0 {
		t.Fatal("on-transition emitted an event")
	}

	// State is still stamped so the following off can measure.
	state, err := settings.GetLightState(ctx, "d1")
	if err != nil {
		t.Fatalf("GetLightState: %v", err)
	}
	if !state.LastOnOffState || state.LastOnTimestamp == 0 {
		t.Errorf("stored state = %+v, expected on-recorded with timestamp", state)
	}
}

func TestDuplicateTransitionIgnored(t *testing.T) {
	rec, _, sender := newTestRecorder(t)
	ctx := context.Background()

	base := time.Date(2026, time.August, 28, 12, 0, 0, 0, time.UTC)
	rec.HandleTransition(ctx, "d1", true, base)
	rec.HandleTransition(ctx, "d1", true, base.Add(time.Second)) // redelivery
	rec.HandleTransition(ctx, "d1", false, base.Add(60*time.Second))

	events := sender.all()
	if len(events) != 1 {
		t.Fatalf("got %d events, expected 1 (duplicate dropped)", len(events))
	}
	if events[0].DurationInStateSeconds != 60 {
		t.Errorf("duration = %d, expected 60 (measured from first on)", events[0].DurationInStateSeconds)
	}
}

func TestOffWithoutPriorOn(t *testing.T) {
	rec, settings, sender := newTestRecorder(t)
	ctx := context.Background()

	rec.HandleTransition(ctx, "d1", false, time.Now())

	if len(sender.all()) != 0 {
		t.Fatal("off without a recorded on emitted an event")
	}

	// The state is still recorded so a later on starts a clean cycle.
	state, err := settings.GetLightState(ctx, "d1")
	if err != nil {
		t.Fatalf("GetLightState: %v", err)
	}
	if state.LastOnOffState {
		t.Error("stored state on after an off observation")
	}
}

func TestDurationClamping(t *testing.T) {
	tests := []struct {
		name     string
		diffMs   int64
		expected int64
	}{
		{"negative clock skew", -5000, 0},
		{"zero", 0, 0},
		{"sub-second rounds up to one", 500, 1},
		{"exactly one second", 1000, 1},
		{"floors fractional seconds", 125999, 125},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := durationSeconds(tt.diffMs); got != tt.expected {
				t.Errorf("durationSeconds(%d) = %d, expected %d", tt.diffMs, got, tt.expected)
			}
		})
	}
}

func TestClampAppliedToTransitions(t *testing.T) {
	rec, _, sender := newTestRecorder(t)
	ctx := context.Background()

	base := time.Date(2026, time.August, 28, 12, 0, 0, 0, time.UTC)

	// Off arrives with a timestamp before the on (skewed source clock).
	rec.HandleTransition(ctx, "d1", true, base)
	rec.HandleTransition(ctx, "d1", false, base.Add(-10*time.Second))

	events := sender.all()
	if len(events) != 1 || events[0].DurationInStateSeconds != 0 {
		t.Errorf("skewed events = %+v, expected one event with duration 0", events)
	}

	// A brief real blip still records one second.
	rec.HandleTransition(ctx, "d1", true, base.Add(time.Minute))
	rec.HandleTransition(ctx, "d1", false, base.Add(time.Minute).Add(300*time.Millisecond))

	events = sender.all()
	if len(events) != 2 || events[1].DurationInStateSeconds != 1 {
		t.Errorf("blip events = %+v, expected second event with duration 1", events)
	}
}

func TestDisabledGateSkipsEverything(t *testing.T) {
	rec, settings, sender := newTestRecorder(t)
	ctx := context.Background()

	settings.SetRecorderEnabled(ctx, false)
	rec.HandleTransition(ctx, "d1", true, time.Now())

	if len(sender.all()) != 0 {
		t.Error("event recorded while disabled")
	}
	if _, err := settings.GetLightState(ctx, "d1"); !errors.Is(err, store.ErrNotFound) {
		t.Error("light state written while disabled")
	}
	if rec.EventCount() != 0 {
		t.Errorf("EventCount = %d, expected 0", rec.EventCount())
	}
}

func TestCollectorFailureIsDropped(t *testing.T) {
	rec, settings, sender := newTestRecorder(t)
	ctx := context.Background()

	base := time.Date(2026, time.August, 28, 12, 0, 0, 0, time.UTC)
	sender.fail = true
	rec.HandleTransition(ctx, "d1", true, base)
	rec.HandleTransition(ctx, "d1", false, base.Add(30*time.Second))

	// State must persist even when delivery fails.
	state, err := settings.GetLightState(ctx, "d1")
	if err != nil {
		t.Fatalf("GetLightState: %v", err)
	}
	if state.LastOnOffState {
		t.Error("state not persisted on delivery failure")
	}

	// The counter tracks acknowledged deliveries only.
	if rec.EventCount() != 0 {
		t.Errorf("EventCount = %d, expected 0 for unacknowledged send", rec.EventCount())
	}
}

func TestUnknownDeviceFallsBack(t *testing.T) {
	rec, _, sender := newTestRecorder(t)
	ctx := context.Background()

	base := time.Date(2026, time.August, 28, 12, 0, 0, 0, time.UTC)
	rec.HandleTransition(ctx, "ghost", true, base)
	rec.HandleTransition(ctx, "ghost", false, base.Add(5*time.Second))

	e := sender.all()[0]
	if e.Name != "ghost" {
		t.Errorf("name = %q, expected device ID fallback", e.Name)
	}
	if e.Zone != "Sin zona" || e.ZonePath != "Sin zona" || e.ZoneID != "" {
		t.Errorf("zone fields = %+v, expected Sin zona sentinel", e)
	}
}

func TestDeviceWithoutZone(t *testing.T) {
	rec, _, sender := newTestRecorder(t)
	ctx := context.Background()

	base := time.Date(2026, time.August, 28, 12, 0, 0, 0, time.UTC)
	rec.HandleTransition(ctx, "d2", true, base)
	rec.HandleTransition(ctx, "d2", false, base.Add(5*time.Second))

	e := sender.all()[0]
	if e.Name != "Velador" {
		t.Errorf("name = %q", e.Name)
	}
	if e.Zone != "Sin zona" || e.ZonePath != "Sin zona" {
		t.Errorf("zone fields = %+v, expected Sin zona", e)
	}
}

func TestStoreFailureSkipsEvent(t *testing.T) {
	rec, settings, sender := newTestRecorder(t)

	settings.getFails = true
	rec.HandleTransition(context.Background(), "d1", false, time.Now())

	if len(sender.all()) != 0 {
		t.Error("event recorded despite store failure")
	}
}

func TestMirrorAndBroadcasterReceiveEvents(t *testing.T) {
	rec, _, _ := newTestRecorder(t)

	var mirrored []int64
	rec.SetMirror(mirrorFunc(func(deviceID, name, zonePath string, on bool, secs int64) {
		mirrored = append(mirrored, secs)
	}))

	var broadcast []OccupancyEvent
	rec.SetBroadcaster(broadcastFunc(func(e OccupancyEvent) {
		broadcast = append(broadcast, e)
	}))

	base := time.Date(2026, time.August, 28, 12, 0, 0, 0, time.UTC)
	rec.HandleTransition(context.Background(), "d1", true, base)
	rec.HandleTransition(context.Background(), "d1", false, base.Add(42*time.Second))

	if len(mirrored) != 1 || mirrored[0] != 42 {
		t.Errorf("mirrored = %v", mirrored)
	}
	if len(broadcast) != 1 || broadcast[0].DurationInStateSeconds != 42 {
		t.Errorf("broadcast = %v", broadcast)
	}
}

type mirrorFunc func(deviceID, deviceName, zonePath string, valueBool bool, durationSeconds int64)

func (f mirrorFunc) WriteOccupancy(deviceID, deviceName, zonePath string, valueBool bool, durationSeconds int64) {
	f(deviceID, deviceName, zonePath, valueBool, durationSeconds)
}

type broadcastFunc func(event OccupancyEvent)

func (f broadcastFunc) BroadcastOccupancy(event OccupancyEvent) { f(event) }
