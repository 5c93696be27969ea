package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/phonelog/internal/call"
	"git.mci.dev/mse/sre/phoenix/golang/phonelog/internal/event"
	"git.mci.dev/mse/sre/phoenix/golang/phonelog/internal/logging"
	phonelogPrometheus "git.mci.dev/mse/sre/phoenix/golang/phonelog/internal/prometheus"
	"github.com/goccy/go-json"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

const (
	TargetKafka = "kafka"
	TargetMQTT  = "mqtt"

	publishTimeout = 10 * time.Second
)

var ErrNoRecord = errors.New("state change has no record")

// StateChange is published whenever a call record is created or updated.
type StateChange struct {
	CallID         string    `json:"call_id"`
	Kind           string    `json:"kind"`
	Event          string    `json:"event"`
	Status         string    `json:"status"`
	PreviousStatus string    `json:"previous_status,omitempty"`
	Direction      string    `json:"direction"`
	FromNumber     string    `json:"from_number"`
	ToNumber       string    `json:"to_number"`
	PhoneMAC       string    `json:"phone_mac"`
	TotalDuration  *int      `json:"total_duration"`
	Transfers      []string  `json:"transfers"`
	OccurredAt     time.Time `json:"occurred_at"`
}

func NewStateChange(evt event.Event, result call.Result) (StateChange, error) {
	record := result.Record
	if record == nil {
		return StateChange{}, ErrNoRecord
	}

	transfers := []string(record.Transfers)
	if transfers == nil {
		transfers = []string{}
	}

	return StateChange{
		CallID:         record.CallID,
		Kind:           evt.Kind.String(),
		Event:          evt.Name,
		Status:         record.Status,
		PreviousStatus: result.PreviousStatus,
		Direction:      record.Direction,
		FromNumber:     record.FromNumber,
		ToNumber:       record.ToNumber,
		PhoneMAC:       record.PhoneMAC,
		TotalDuration:  record.TotalDuration,
		Transfers:      transfers,
		OccurredAt:     evt.ReceivedAt,
	}, nil
}

// Target is one destination for state changes.
type Target struct {
	Name      string
	Publisher Publisher
	Topic     func(change StateChange) string
}

// KafkaTarget publishes every change to one topic keyed by call id.
func KafkaTarget(publisher Publisher, topic string) Target {
	return Target{
		Name:      TargetKafka,
		Publisher: publisher,
		Topic: func(StateChange) string {
			return topic
		},
	}
}

// MQTTTarget publishes to {prefix}/call/{call_id}/{status}.
func MQTTTarget(publisher Publisher, prefix string) Target {
	prefix = strings.TrimSuffix(prefix, "/")

	return Target{
		Name:      TargetMQTT,
		Publisher: publisher,
		Topic: func(change StateChange) string {
			return prefix + "/call/" + change.CallID + "/" + change.Status
		},
	}
}

// Notifier fans state changes out to its targets on a worker pool.
type Notifier struct {
	WorkerPool *ants.Pool
	Targets    []Target
	pending    sync.WaitGroup
}

func NewNotifier(poolSize int, targets ...Target) (*Notifier, error) {
	workerPool, err := ants.NewPool(poolSize, ants.WithPreAlloc(true))
	if err != nil {
		return nil, err
	}

	return &Notifier{
		WorkerPool: workerPool,
		Targets:    targets,
	}, nil
}

// Notify schedules change for every target and returns without waiting.
// Publishing outlives ctx cancellation but not its values.
func (n *Notifier) Notify(ctx context.Context, change StateChange) {
	if len(n.Targets) == 0 {
		return
	}

	payload, err := json.Marshal(change)
	if err != nil {
		logging.Logger.Error("[Notify] Failed to marshal state change",
			zap.String("call_id", change.CallID),
			zap.String("error", err.Error()),
		)

		return
	}

	publishCtx := context.WithoutCancel(ctx)

	for _, target := range n.Targets {
		n.pending.Add(1)

		err = n.WorkerPool.Submit(func() {
			defer n.pending.Done()

			n.publish(publishCtx, target, change, payload)
		})
		if err != nil {
			n.pending.Done()
			phonelogPrometheus.NotificationsTotal.WithLabelValues(target.Name, "dropped").Inc()
			logging.Logger.Error("[Notify] Failed to submit to worker pool",
				zap.String("target", target.Name),
				zap.String("call_id", change.CallID),
				zap.String("error", err.Error()),
			)
		}
	}
}

func (n *Notifier) publish(ctx context.Context, target Target, change StateChange, payload []byte) {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	topic := target.Topic(change)

	err := target.Publisher.Publish(ctx, topic, []byte(change.CallID), payload)
	if err != nil {
		phonelogPrometheus.NotificationsTotal.WithLabelValues(target.Name, "error").Inc()
		logging.Logger.Warn("[Notify] Failed to publish state change",
			zap.String("target", target.Name),
			zap.String("topic", topic),
			zap.String("call_id", change.CallID),
			zap.String("error", err.Error()),
		)

		return
	}

	phonelogPrometheus.NotificationsTotal.WithLabelValues(target.Name, "success").Inc()
}

// Wait blocks until every scheduled publish has finished.
func (n *Notifier) Wait() {
	n.pending.Wait()
}

// Close waits for pending publishes and releases the pool.
func (n *Notifier) Close() {
	n.Wait()
	n.WorkerPool.Release()
}
