package mqtt

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/occulog/occulog-core/internal/infrastructure/config"
)

const (
	// connectTimeout bounds the initial broker handshake.
	connectTimeout = 10 * time.Second

	// ackTimeout bounds publish/subscribe/unsubscribe acknowledgments.
	ackTimeout = 5 * time.Second

	// disconnectQuiesceMs is how long Disconnect waits for in-flight work.
	disconnectQuiesceMs = 1000

	// keepAlive is the MQTT keepalive interval.
	keepAlive = 60 * time.Second

	// maxQoS is the highest QoS level the protocol defines.
	maxQoS = 2
)

// Logger is the minimal logging surface the client needs.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// MessageHandler receives one message. Paho invokes handlers on its own
// goroutines; a returned error is logged, not redelivered.
type MessageHandler func(topic string, payload []byte) error

// subscription remembers what to restore after a reconnect.
type subscription struct {
	qos     byte
	handler MessageHandler
}

// statusPayload is published retained on the system status topic. The
// offline variant doubles as the Last Will, so watchers can tell a
// graceful shutdown from a crash by the reason field.
type statusPayload struct {
	Status    string `json:"status"`
	ClientID  string `json:"client_id"`
	Reason    string `json:"reason,omitempty"`
	Timestamp string `json:"timestamp"`
}

// Client is the hub event bus connection.
//
// Occulog is almost entirely a consumer on this bus: it subscribes to
// capability topics and device lifecycle events, and publishes only its
// own online/offline status plus the simulator's toggle commands.
// Subscriptions survive reconnects. All methods are safe for concurrent
// use.
type Client struct {
	conn     pahomqtt.Client
	cfg      config.MQTTConfig
	clientID string

	subMu sync.RWMutex
	subs  map[string]subscription

	stateMu   sync.RWMutex
	connected bool

	hookMu       sync.RWMutex
	onConnect    func()
	onDisconnect func(err error)
	logger       Logger
}

// Connect dials the hub's broker and returns a ready client.
//
// The connection carries a retained Last Will on the system status
// topic; after a successful handshake the matching online status is
// published. Reconnection is automatic with exponential backoff, and
// every reconnect restores the tracked subscriptions.
func Connect(cfg config.MQTTConfig) (*Client, error) {
	c := &Client{
		cfg:      cfg,
		clientID: buildClientID(cfg.Broker.ClientID),
		subs:     make(map[string]subscription),
	}

	opts := pahomqtt.NewClientOptions()

	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port))
	opts.SetClientID(c.clientID)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}

	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(time.Duration(cfg.Reconnect.InitialDelay) * time.Second)
	opts.SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second)
	opts.SetConnectTimeout(connectTimeout)
	opts.SetKeepAlive(keepAlive)

	// Crash detection: the broker publishes this if we vanish.
	opts.SetWill(Topics{}.SystemStatus(), c.statusJSON("offline", "unexpected_disconnect"), 1, true)

	opts.SetOnConnectHandler(func(_ pahomqtt.Client) { c.handleConnect() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.handleConnectionLost(err) })

	c.conn = pahomqtt.NewClient(opts)
	if err := waitToken(c.conn.Connect(), connectTimeout, ErrConnectionFailed); err != nil {
		return nil, err
	}

	// The OnConnect callback runs asynchronously; mark connected here so
	// IsConnected is true as soon as Connect returns.
	c.stateMu.Lock()
	c.connected = true
	c.stateMu.Unlock()

	return c, nil
}

// buildClientID appends a random suffix so restarts and parallel test
// runs never collide on the broker.
func buildClientID(base string) string {
	if base == "" {
		base = "occulog"
	}
	return base + "-" + uuid.NewString()[:8]
}

// statusJSON renders a status payload for the system topic.
func (c *Client) statusJSON(status, reason string) string {
	data, err := json.Marshal(statusPayload{
		Status:    status,
		ClientID:  c.clientID,
		Reason:    reason,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return `{"status":"` + status + `"}`
	}
	return string(data)
}

// handleConnect runs on every successful (re)connect.
func (c *Client) handleConnect() {
	c.stateMu.Lock()
	c.connected = true
	c.stateMu.Unlock()

	c.restoreSubscriptions()
	c.conn.Publish(Topics{}.SystemStatus(), byte(c.cfg.QoS), true, c.statusJSON("online", ""))

	c.hookMu.RLock()
	hook := c.onConnect
	c.hookMu.RUnlock()
	if hook != nil {
		hook()
	}
}

// handleConnectionLost runs when the broker link drops.
func (c *Client) handleConnectionLost(err error) {
	c.stateMu.Lock()
	c.connected = false
	c.stateMu.Unlock()

	c.hookMu.RLock()
	hook := c.onDisconnect
	c.hookMu.RUnlock()
	if hook != nil {
		hook(err)
	}
}

// restoreSubscriptions replays the tracked subscriptions after a
// reconnect. Failures are logged; the listener manager's next reconcile
// re-attempts anything that stayed broken.
func (c *Client) restoreSubscriptions() {
	c.subMu.RLock()
	defer c.subMu.RUnlock()

	for topic, sub := range c.subs {
		token := c.conn.Subscribe(topic, sub.qos, c.wrapHandler(sub.handler))
		if !token.WaitTimeout(ackTimeout) || token.Error() != nil {
			if logger := c.getLogger(); logger != nil {
				logger.Warn("resubscribe after reconnect failed", "topic", topic)
			}
		}
	}
}

// Close publishes a graceful offline status and disconnects. Closing an
// already-disconnected client is not an error.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}

	if c.IsConnected() {
		token := c.conn.Publish(Topics{}.SystemStatus(), byte(c.cfg.QoS), true,
			c.statusJSON("offline", "graceful_shutdown"))
		token.WaitTimeout(ackTimeout)
	}

	c.conn.Disconnect(disconnectQuiesceMs)

	c.stateMu.Lock()
	c.connected = false
	c.stateMu.Unlock()
	return nil
}

// HealthCheck reports whether the broker link is up.
func (c *Client) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected returns the current connection state.
func (c *Client) IsConnected() bool {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.connected && c.conn.IsConnected()
}

// SetOnConnect registers a hook invoked on initial connect and every
// reconnect.
func (c *Client) SetOnConnect(hook func()) {
	c.hookMu.Lock()
	c.onConnect = hook
	c.hookMu.Unlock()
}

// SetOnDisconnect registers a hook invoked when the broker link drops.
func (c *Client) SetOnDisconnect(hook func(err error)) {
	c.hookMu.Lock()
	c.onDisconnect = hook
	c.hookMu.Unlock()
}

// SetLogger attaches a logger for handler errors and reconnect noise.
// Without one those are silently dropped.
func (c *Client) SetLogger(logger Logger) {
	c.hookMu.Lock()
	c.logger = logger
	c.hookMu.Unlock()
}

func (c *Client) getLogger() Logger {
	c.hookMu.RLock()
	defer c.hookMu.RUnlock()
	return c.logger
}

// wrapHandler adapts a MessageHandler to paho's signature, adding panic
// recovery so one bad payload cannot take down the paho router.
func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				if logger := c.getLogger(); logger != nil {
					logger.Error("message handler panicked", "topic", msg.Topic(), "panic", r)
				}
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			if logger := c.getLogger(); logger != nil {
				logger.Warn("message handler failed", "topic", msg.Topic(), "error", err)
			}
		}
	}
}

// waitToken waits for a paho token and folds timeout and failure into
// one wrapped error.
func waitToken(token pahomqtt.Token, timeout time.Duration, sentinel error) error {
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("%w: timeout after %v", sentinel, timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", sentinel, err)
	}
	return nil
}
