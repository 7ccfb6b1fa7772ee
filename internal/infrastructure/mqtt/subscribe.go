package mqtt

import (
	"fmt"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// MessageHandler handles one received message. A returned error is logged;
// it does not affect acknowledgement.
type MessageHandler func(topic string, payload []byte) error

type subscription struct {
	topic   string
	qos     byte
	handler MessageHandler
}

// Subscribe routes messages on topic to handler and keeps the subscription
// across reconnects. Subscribing to the same topic again replaces the handler.
//
// Handlers run on paho's delivery goroutine; long work belongs in a
// goroutine of its own.
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	switch {
	case topic == "":
		return ErrInvalidTopic
	case qos > maxQoS:
		return ErrInvalidQoS
	case handler == nil:
		return fmt.Errorf("%w: handler cannot be nil", ErrSubscribeFailed)
	case !c.IsConnected():
		return ErrNotConnected
	}

	if err := wait(c.paho.Subscribe(topic, qos, c.deliver(handler)), defaultPublishTimeout, ErrSubscribeFailed); err != nil {
		return err
	}

	s := subscription{topic: topic, qos: qos, handler: handler}
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.subs {
		if c.subs[i].topic == topic {
			c.subs[i] = s
			return nil
		}
	}
	c.subs = append(c.subs, s)
	return nil
}

// deliver adapts handler to paho, logging its errors and recovering panics
// so one bad message cannot stop delivery.
func (c *Client) deliver(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		log := c.log()
		defer func() {
			if r := recover(); r != nil && log != nil {
				log.Error("MQTT handler panic recovered", "topic", msg.Topic(), "panic", r)
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil && log != nil {
			log.Warn("MQTT handler returned error", "topic", msg.Topic(), "error", err)
		}
	}
}
