package activation

import (
	"context"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-provisioner/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-provisioner/internal/infrastructure/mqtt"
)

// MQTTDialer returns a SessionDialer that connects as the device: the
// token is the username, the password is empty, and each session gets a
// fresh client ID so parallel sessions do not take each other over.
func MQTTDialer(cfg config.MQTTConfig, logger mqtt.Logger) SessionDialer {
	return func(_ context.Context, token string) (Session, error) {
		client, err := mqtt.Connect(cfg,
			mqtt.WithClientID(sessionClientID(cfg.Broker.ClientID)),
			mqtt.WithCredentials(token, ""),
			mqtt.WithoutReconnect(),
		)
		if err != nil {
			return nil, err
		}
		if logger != nil {
			client.SetLogger(logger)
		}
		return client, nil
	}
}

func sessionClientID(base string) string {
	if base == "" {
		base = "glprovision"
	}
	return base + "-device-" + uuid.NewString()
}
