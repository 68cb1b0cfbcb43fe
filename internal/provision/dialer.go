package provision

import (
	"context"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-provisioner/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-provisioner/internal/infrastructure/mqtt"
)

// SessionLogger receives connection events of the shared session.
// *logging.Logger satisfies it.
type SessionLogger interface {
	mqtt.Logger
	Info(msg string, args ...any)
}

// MQTTDialer returns a DialFunc that opens the shared provisioning
// session with the configured credentials. The client ID gets a random
// suffix so two runs against one broker do not disconnect each other.
func MQTTDialer(cfg config.MQTTConfig, logger SessionLogger) DialFunc {
	return func(_ context.Context) (Transport, error) {
		client, err := mqtt.Connect(cfg, mqtt.WithClientID(batchClientID(cfg.Broker.ClientID)))
		if err != nil {
			return nil, err
		}
		if logger != nil {
			client.SetLogger(logger)
			client.SetOnDisconnect(func(err error) {
				logger.Warn("provisioning session lost", "error", err)
			})
			client.SetOnConnect(func() {
				logger.Info("provisioning session reconnected", "client_id", client.ClientID())
			})
		}
		return client, nil
	}
}

func batchClientID(base string) string {
	if base == "" {
		base = "glprovision"
	}
	return base + "-" + uuid.NewString()[:8]
}
