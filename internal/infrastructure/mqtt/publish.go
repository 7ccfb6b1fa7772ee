package mqtt

import (
	"encoding/json"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// maxPayloadSize caps a single event so a runaway execution record cannot
// exceed typical broker limits.
const maxPayloadSize = 1 << 20

// PublishJSON marshals v and publishes it, not retained, at the configured
// QoS. It waits for the broker to acknowledge.
func (c *Client) PublishJSON(topic string, v any) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: marshalling payload: %w", ErrPublishFailed, err)
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	return wait(c.paho.Publish(topic, byte(c.cfg.QoS), false, payload), defaultPublishTimeout, ErrPublishFailed)
}

// wait blocks on token and wraps a timeout or failure in sentinel.
func wait(token pahomqtt.Token, timeout time.Duration, sentinel error) error {
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("%w: timeout after %v", sentinel, timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", sentinel, err)
	}
	return nil
}
