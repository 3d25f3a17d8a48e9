package mqtt

import "fmt"

// maxPayloadSize caps outgoing payloads. Occulog only publishes small
// JSON bodies; anything bigger is a programming error.
const maxPayloadSize = 1 << 20

// Subscribe registers a handler for a topic filter and tracks it for
// replay after reconnects. Subscribing twice to the same filter
// replaces the handler.
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	if topic == "" {
		return fmt.Errorf("%w: empty topic", ErrInvalidTopic)
	}
	if qos > maxQoS {
		return fmt.Errorf("%w: qos %d", ErrInvalidQoS, qos)
	}
	if handler == nil {
		return fmt.Errorf("%w: nil handler for %q", ErrSubscribeFailed, topic)
	}
	if !c.IsConnected() {
		return fmt.Errorf("subscribe %q: %w", topic, ErrNotConnected)
	}

	// Track before subscribing so a reconnect racing this call still
	// restores the handler; roll back if the broker refuses it.
	c.subMu.Lock()
	c.subs[topic] = subscription{qos: qos, handler: handler}
	c.subMu.Unlock()

	token := c.conn.Subscribe(topic, qos, c.wrapHandler(handler))
	if err := waitToken(token, ackTimeout, ErrSubscribeFailed); err != nil {
		c.subMu.Lock()
		delete(c.subs, topic)
		c.subMu.Unlock()
		return fmt.Errorf("subscribe %q: %w", topic, err)
	}
	return nil
}

// Unsubscribe removes a subscription. Unsubscribing from an untracked
// topic is not an error.
func (c *Client) Unsubscribe(topic string) error {
	c.subMu.Lock()
	_, tracked := c.subs[topic]
	delete(c.subs, topic)
	c.subMu.Unlock()

	if !tracked || !c.IsConnected() {
		return nil
	}

	if err := waitToken(c.conn.Unsubscribe(topic), ackTimeout, ErrUnsubscribeFailed); err != nil {
		return fmt.Errorf("unsubscribe %q: %w", topic, err)
	}
	return nil
}

// Publish sends a payload and waits for the broker's acknowledgment at
// the given QoS.
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if topic == "" {
		return fmt.Errorf("%w: empty topic", ErrInvalidTopic)
	}
	if qos > maxQoS {
		return fmt.Errorf("%w: qos %d", ErrInvalidQoS, qos)
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload %d bytes exceeds %d", ErrPublishFailed, len(payload), maxPayloadSize)
	}
	if !c.IsConnected() {
		return fmt.Errorf("publish %q: %w", topic, ErrNotConnected)
	}

	token := c.conn.Publish(topic, qos, retained, payload)
	if err := waitToken(token, ackTimeout, ErrPublishFailed); err != nil {
		return fmt.Errorf("publish %q: %w", topic, err)
	}
	return nil
}

// PublishString publishes a string payload.
func (c *Client) PublishString(topic, payload string, qos byte, retained bool) error {
	return c.Publish(topic, []byte(payload), qos, retained)
}

// PublishRetained publishes a payload with the retained flag set.
func (c *Client) PublishRetained(topic string, payload []byte, qos byte) error {
	return c.Publish(topic, payload, qos, true)
}

// SubscriptionCount returns the number of tracked subscriptions.
func (c *Client) SubscriptionCount() int {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	return len(c.subs)
}

// HasSubscription reports whether a topic filter is tracked.
func (c *Client) HasSubscription(topic string) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	_, ok := c.subs[topic]
	return ok
}
