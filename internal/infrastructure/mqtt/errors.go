package mqtt

import "errors"

var (
	// ErrNotConnected is returned when an operation needs a live broker
	// link and there is none.
	ErrNotConnected = errors.New("mqtt: not connected")

	// ErrConnectionFailed is returned when the initial handshake with
	// the broker fails or times out.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrSubscribeFailed is returned when the broker refuses a
	// subscription or the acknowledgment times out.
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")

	// ErrUnsubscribeFailed is returned when an unsubscribe is not
	// acknowledged in time.
	ErrUnsubscribeFailed = errors.New("mqtt: unsubscribe failed")

	// ErrPublishFailed is returned when a publish is rejected or not
	// acknowledged in time.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrInvalidQoS is returned for QoS levels outside 0..2.
	ErrInvalidQoS = errors.New("mqtt: invalid qos")

	// ErrInvalidTopic is returned for empty or malformed topics.
	ErrInvalidTopic = errors.New("mqtt: invalid topic")
)
