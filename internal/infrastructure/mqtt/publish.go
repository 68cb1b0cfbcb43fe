package mqtt

import (
	"fmt"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// maxPayloadSize caps outbound payloads at 1 MiB, below common broker limits.
const maxPayloadSize = 1 << 20

// Publish sends payload to topic and waits, within the operation timeout,
// for PUBACK/PUBCOMP at QoS 1/2 or for the local write at QoS 0.
// Wildcard topics are rejected.
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if err := ValidatePublishTopic(topic); err != nil {
		return err
	}
	switch {
	case qos > maxQoS:
		return ErrInvalidQoS
	case len(payload) > maxPayloadSize:
		return fmt.Errorf("%w: %d byte payload exceeds %d", ErrPublishFailed, len(payload), maxPayloadSize)
	case !c.IsConnected():
		return ErrNotConnected
	}

	return c.await(c.paho.Publish(topic, qos, retained, payload), ErrPublishFailed)
}

// await waits for token within the operation timeout and wraps any
// failure in sentinel.
func (c *Client) await(token pahomqtt.Token, sentinel error) error {
	timeout := c.opTimeout()
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("%w: no ack within %v", sentinel, timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", sentinel, err)
	}
	return nil
}
