package mqtt

import (
	"fmt"
	"strings"
)

// ThingsBoard device API topics used by the provisioner.
const (
	// TopicProvisionRequest receives device provisioning requests.
	TopicProvisionRequest = "/provision/request"

	// TopicProvisionResponse carries the broker's provisioning answers.
	// It has no per-request suffix, so responses cannot be told apart
	// by topic.
	TopicProvisionResponse = "/provision/response"

	// TopicDeviceTelemetry is the telemetry topic of the authenticated device.
	TopicDeviceTelemetry = "v1/devices/me/telemetry"
)

// HasWildcard reports whether topic contains an MQTT wildcard (+ or #).
func HasWildcard(topic string) bool {
	return strings.ContainsAny(topic, "+#")
}

// ValidatePublishTopic rejects empty topics and topics with wildcards,
// which brokers refuse on PUBLISH.
func ValidatePublishTopic(topic string) error {
	if topic == "" {
		return fmt.Errorf("%w: topic cannot be empty", ErrInvalidTopic)
	}
	if HasWildcard(topic) {
		return fmt.Errorf("%w: wildcards not allowed when publishing to %q", ErrInvalidTopic, topic)
	}
	return nil
}
