package simulator

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/occulog/occulog-core/internal/hub"
	"github.com/occulog/occulog-core/internal/infrastructure/config"
	"github.com/occulog/occulog-core/internal/infrastructure/mqtt"
)

// Logger defines the logging interface used by the Simulator.
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

// Bus is the subset of the MQTT client the simulator needs.
type Bus interface {
	PublishString(topic string, payload string, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// Lights provides the devices the simulator may toggle.
type Lights interface {
	DevicesWithCapability(capability string) []hub.Device
}

// controlCapability is the capability on the control switch that arms
// and disarms the simulator at runtime.
const controlCapability = "onoff_simulator"

// fetchRetryDelay is how long to wait before retrying a failed
// sunrise/sunset lookup.
const fetchRetryDelay = time.Hour

// Simulator toggles random lights between sunset and sunrise to fake an
// occupied house.
//
// It is armed either by configuration or at runtime through the control
// switch's onoff_simulator capability. Toggle commands are published to
// the hub's capability set topics; the hub applies them and echoes the
// resulting state change back, so simulated toggles flow through the
// same recording pipeline as real ones.
type Simulator struct {
	bus    Bus
	lights Lights
	cfg    config.SimulatorConfig
	loc    config.LocationConfig
	qos    byte
	logger Logger

	httpClient *http.Client
	rng        *rand.Rand

	mu        sync.Mutex
	active    bool
	runCancel context.CancelFunc
	wg        sync.WaitGroup

	parentCtx  context.Context
	subscribed bool
}

// New creates a simulator.
func New(bus Bus, lights Lights, cfg config.SimulatorConfig, loc config.LocationConfig, qos byte) *Simulator {
	return &Simulator{
		bus:    bus,
		lights: lights,
		cfg:    cfg,
		loc:    loc,
		qos:    qos,
		logger: noopLogger{},
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		//nolint:gosec // Toggle timing only needs to look irregular
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SetLogger sets the logger for the simulator.
func (s *Simulator) SetLogger(logger Logger) {
	s.logger = logger
}

// Start subscribes to the control capability and, if enabled by
// configuration, arms the simulator immediately.
func (s *Simulator) Start(ctx context.Context) error {
	s.mu.Lock()
	s.parentCtx = ctx
	s.mu.Unlock()

	topic := mqtt.Topics{}.AllDeviceCapability(controlCapability)
	err := s.bus.Subscribe(topic, s.qos, func(_ string, payload []byte) error {
		var msg struct {
			Value bool `json:"value"`
		}
		if err := json.Unmarshal(payload, &msg); err != nil {
			return fmt.Errorf("decoding simulator control payload: %w", err)
		}
		if msg.Value {
			s.arm()
		} else {
			s.disarm()
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("subscribing simulator control: %w", err)
	}
	s.subscribed = true

	if s.cfg.Enabled {
		s.arm()
	}
	return nil
}

// arm starts the toggle loop if it is not already running.
func (s *Simulator) arm() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active {
		return
	}
	if s.parentCtx == nil {
		s.logger.Warn("simulator armed before Start, ignoring")
		return
	}

	var runCtx context.Context
	runCtx, s.runCancel = context.WithCancel(s.parentCtx)
	s.active = true

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(runCtx)
	}()

	s.logger.Info("presence simulator armed")
}

// disarm stops the toggle loop.
func (s *Simulator) disarm() {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	s.active = false
	cancel := s.runCancel
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
	s.logger.Info("presence simulator disarmed")
}

// Active reports whether the toggle loop is running.
func (s *Simulator) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Close disarms the simulator and drops the control subscription.
func (s *Simulator) Close() error {
	s.disarm()

	if s.subscribed {
		topic := mqtt.Topics{}.AllDeviceCapability(controlCapability)
		if err := s.bus.Unsubscribe(topic); err != nil {
			return fmt.Errorf("unsubscribing simulator control: %w", err)
		}
		s.subscribed = false
	}
	return nil
}

// run is the simulator's main loop: wait for the dark window, fire
// toggles at random intervals inside it, sleep through daylight.
func (s *Simulator) run(ctx context.Context) {
	for {
		window, err := s.fetchSunTimes(ctx)
		if err != nil {
			s.logger.Warn("sunrise/sunset lookup failed, retrying later", "error", err)
			if !sleepCtx(ctx, fetchRetryDelay) {
				return
			}
			continue
		}

		now := time.Now()
		if wait := window.untilDark(now); wait > 0 {
			s.logger.Debug("waiting for sunset", "wait", wait.Round(time.Minute).String())
			if !sleepCtx(ctx, wait) {
				return
			}
		}

		// Dark window: toggle until sunrise.
		for {
			now = time.Now()
			if !window.dark(now) {
				break
			}
			delay := s.nextDelay()
			if remaining := window.untilLight(now); delay > remaining {
				delay = remaining
			}
			if !sleepCtx(ctx, delay) {
				return
			}
			s.toggleRandomLight()
		}
	}
}

// nextDelay returns a random gap between toggles within the configured bounds.
func (s *Simulator) nextDelay() time.Duration {
	minI, maxI := s.cfg.MinInterval, s.cfg.MaxInterval
	if minI < 1 {
		minI = 1
	}
	if maxI < minI {
		maxI = minI
	}
	minutes := minI
	if maxI > minI {
		minutes += s.rng.Intn(maxI - minI + 1)
	}
	return time.Duration(minutes) * time.Minute
}

// toggleRandomLight picks one onoff light and publishes the inverse of
// its last known state. Best-effort: failures are logged and the loop
// moves on.
func (s *Simulator) toggleRandomLight() {
	candidates := s.lights.DevicesWithCapability("onoff")
	if len(candidates) == 0 {
		s.logger.Debug("no onoff devices to simulate")
		return
	}

	device := candidates[s.rng.Intn(len(candidates))]
	next := true
	if current, ok := device.CapabilityValues["onoff"].(bool); ok {
		next = !current
	}

	topic := mqtt.Topics{}.DeviceCapabilitySet(device.ID, "onoff")
	payload := fmt.Sprintf(`{"value":%t}`, next)
	if err := s.bus.PublishString(topic, payload, s.qos, false); err != nil {
		s.logger.Warn("simulated toggle publish failed",
			"device_id", device.ID, "error", err)
		return
	}
	s.logger.Info("simulated toggle", "device_id", device.ID, "name", device.Name, "value", next)
}

// sleepCtx sleeps for d or until the context is cancelled. It returns
// false when cancelled.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
