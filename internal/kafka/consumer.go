package kafka

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"git.mci.dev/mse/sre/phoenix/golang/phonelog/internal/config"
	"git.mci.dev/mse/sre/phoenix/golang/phonelog/internal/event"
	"git.mci.dev/mse/sre/phoenix/golang/phonelog/internal/logging"
	"github.com/IBM/sarama"
	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

var ErrEmptyMessage = errors.New("empty kafka message")

// EventHandler receives the decoded callback parameters of one message.
type EventHandler func(ctx context.Context, params event.Params, raw string)

type Consumer struct {
	Client sarama.ConsumerGroup
}

// NewConsumer joins the raw event consumer group.
func NewConsumer() (*Consumer, error) {
	client, err := createConsumerGroup(config.Conf.KafkaEventGroupID)
	if err != nil {
		return nil, err
	}

	return &Consumer{
		Client: client,
	}, nil
}

// Consume blocks until ctx is canceled, handing every decodable message to
// eventHandler.
func (c *Consumer) Consume(ctx context.Context, topic string, eventHandler EventHandler) error {
	handler := &consumerGroupHandler{
		eventHandler: eventHandler,
	}

	runConsumerLoop(ctx, c.Client, topic, handler)

	return nil
}

func (c *Consumer) Close() error {
	err := c.Client.Close()
	if err != nil {
		logging.Logger.Error("Failed to close Kafka consumer", zap.String("error", err.Error()))
		return err
	}

	logging.Logger.Info("Kafka consumer closed successfully")

	return nil
}

// DecodeParams accepts either a JSON object whose values are strings or
// string lists, or a URL query string.
func DecodeParams(value []byte) (event.Params, error) {
	raw := strings.TrimSpace(string(value))
	if raw == "" {
		return nil, ErrEmptyMessage
	}

	if !strings.HasPrefix(raw, "{") {
		values, err := url.ParseQuery(strings.TrimPrefix(raw, "?"))
		if err != nil {
			return nil, err
		}

		return event.FromQuery(values), nil
	}

	var fields map[string]json.RawMessage

	err := json.Unmarshal(value, &fields)
	if err != nil {
		return nil, err
	}

	params := make(event.Params, len(fields))

	for key, field := range fields {
		var list []string

		err = json.Unmarshal(field, &list)
		if err == nil {
			params[key] = list
			continue
		}

		var single string

		err = json.Unmarshal(field, &single)
		if err != nil {
			return nil, err
		}

		params[key] = []string{single}
	}

	return params, nil
}

type consumerGroupHandler struct {
	eventHandler EventHandler
}

func (h *consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error {
	return nil
}

func (h *consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

func (h *consumerGroupHandler) ConsumeClaim(
	session sarama.ConsumerGroupSession,
	claim sarama.ConsumerGroupClaim,
) error {
	for {
		select {
		case message := <-claim.Messages():
			if message == nil {
				return nil
			}

			h.handle(session.Context(), message)

			session.MarkMessage(message, "")

		case <-session.Context().Done():
			return nil
		}
	}
}

func (h *consumerGroupHandler) handle(ctx context.Context, message *sarama.ConsumerMessage) {
	params, err := DecodeParams(message.Value)
	if err != nil {
		logging.Logger.Warn("Dropping undecodable event message",
			zap.String("topic", message.Topic),
			zap.Int32("partition", message.Partition),
			zap.Int64("offset", message.Offset),
			zap.String("error", err.Error()),
		)

		return
	}

	h.eventHandler(ctx, params, string(message.Value))
}
