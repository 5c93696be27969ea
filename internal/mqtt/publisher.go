package mqtt

import (
	"context"
	"fmt"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/phonelog/internal/config"
	"git.mci.dev/mse/sre/phoenix/golang/phonelog/internal/logging"
	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

const (
	connectTimeout       = 10 * time.Second
	maxReconnectInterval = 60 * time.Second
	disconnectQuiesceMs  = 1000
)

// Publisher wraps a Paho MQTT client.
type Publisher struct {
	client pahomqtt.Client
	qos    byte
}

type Options struct {
	Broker   string
	ClientID string
	QoS      byte
}

// OptionsFromConfig reads the broker settings from config.Conf.
func OptionsFromConfig() Options {
	return Options{
		Broker:   config.Conf.MQTTBroker,
		ClientID: config.Conf.MQTTClientID,
		QoS:      config.Conf.MQTTQoS,
	}
}

// NewPublisher connects to the broker and fails if it is not reachable within
// the connect timeout. Later connection losses are retried in the background.
func NewPublisher(opts Options) (*Publisher, error) {
	clientOpts := pahomqtt.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetConnectTimeout(connectTimeout).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(maxReconnectInterval).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
			logging.Logger.Warn("MQTT connection lost",
				zap.String("broker", opts.Broker),
				zap.String("error", err.Error()),
			)
		}).
		SetOnConnectHandler(func(pahomqtt.Client) {
			logging.Logger.Info("Connected to MQTT broker", zap.String("broker", opts.Broker))
		})

	client := pahomqtt.NewClient(clientOpts)

	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("connecting to MQTT broker %s: timeout", opts.Broker)
	}

	err := token.Error()
	if err != nil {
		logging.Logger.Error("Failed to connect to MQTT broker",
			zap.String("broker", opts.Broker),
			zap.String("error", err.Error()),
		)

		return nil, fmt.Errorf("connecting to MQTT broker %s: %w", opts.Broker, err)
	}

	return &Publisher{
		client: client,
		qos:    opts.QoS,
	}, nil
}

// Publish sends payload to topic. MQTT has no partition key so key is unused.
func (p *Publisher) Publish(ctx context.Context, topic string, _, payload []byte) error {
	token := p.client.Publish(topic, p.qos, false, payload)

	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Publisher) Close() error {
	p.client.Disconnect(disconnectQuiesceMs)
	logging.Logger.Info("MQTT publisher closed")

	return nil
}
