// Package mqtt provides MQTT client connectivity for the provisioner.
//
// This package manages:
//   - Connection to a ThingsBoard-compatible broker with a bounded CONNACK wait
//   - Message publishing with QoS guarantees and bounded acknowledgement waits
//   - Topic subscriptions, restored after a reconnect
//   - Per-session credentials, so one process can hold the shared
//     provisioning session and short-lived device sessions side by side
//
// # Sessions
//
// The provisioning phase uses one long-lived session with auto-reconnect:
//
//	client, err := mqtt.Connect(cfg.MQTT)
//
// The activation phase opens one session per device, authenticated with
// the device's access token, and never reconnects it:
//
//	dev, err := mqtt.Connect(cfg.MQTT,
//	    mqtt.WithClientID(name+"-"+suffix),
//	    mqtt.WithCredentials(token, ""),
//	    mqtt.WithoutReconnect(),
//	)
//
// # Message delivery
//
// Handlers registered with Subscribe run on paho's delivery goroutine.
// A handler panic is recovered and logged; a returned error is logged
// as a warning and otherwise ignored.
//
// # Security Considerations
//
//   - Use TLS (mqtt.broker.tls=true) outside a lab network
//   - Device tokens are passed as MQTT usernames and must not be logged
package mqtt
