package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/phonelog/internal/call"
	"git.mci.dev/mse/sre/phoenix/golang/phonelog/internal/event"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func sampleChange(t *testing.T) StateChange {
	t.Helper()

	duration := 12
	change, err := NewStateChange(
		event.Event{Kind: event.KindEnd, Name: "call-end", ReceivedAt: time.Date(2024, 3, 9, 14, 0, 0, 0, time.UTC)},
		call.Result{
			Outcome:        call.OutcomeUpdated,
			PreviousStatus: call.StatusAnswered,
			Record: &call.Record{
				CallID:        "C1",
				FromNumber:    "555",
				ToNumber:      "AA:BB",
				PhoneMAC:      "AA:BB",
				Direction:     call.DirectionIncoming,
				Status:        call.StatusSuccessful,
				TotalDuration: &duration,
				Transfers:     datatypes.JSONSlice[string]{"200"},
			},
		},
	)
	require.NoError(t, err)

	return change
}

func TestNewStateChange(t *testing.T) {
	change := sampleChange(t)

	assert.Equal(t, "C1", change.CallID)
	assert.Equal(t, "end", change.Kind)
	assert.Equal(t, call.StatusAnswered, change.PreviousStatus)
	assert.Equal(t, []string{"200"}, change.Transfers)

	_, err := NewStateChange(event.Event{}, call.Result{Outcome: call.OutcomeOrphan})
	require.ErrorIs(t, err, ErrNoRecord)
}

func TestNotifierFansOut(t *testing.T) {
	kafkaPublisher := NewMockPublisher()
	mqttPublisher := NewMockPublisher()

	notifier, err := NewNotifier(2,
		KafkaTarget(kafkaPublisher, "phonelog.call-state"),
		MQTTTarget(mqttPublisher, "phonelog/"),
	)
	require.NoError(t, err)

	defer notifier.Close()

	notifier.Notify(context.Background(), sampleChange(t))
	notifier.Wait()

	kafkaMessages := kafkaPublisher.Messages()
	require.Len(t, kafkaMessages, 1)
	assert.Equal(t, "phonelog.call-state", kafkaMessages[0].Topic)
	assert.Equal(t, []byte("C1"), kafkaMessages[0].Key)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(kafkaMessages[0].Payload, &decoded))
	assert.Equal(t, "successful", decoded["status"])
	assert.InDelta(t, 12, decoded["total_duration"], 0)

	mqttMessages := mqttPublisher.Messages()
	require.Len(t, mqttMessages, 1)
	assert.Equal(t, "phonelog/call/C1/successful", mqttMessages[0].Topic)
}

func TestNotifierSurvivesPublishErrors(t *testing.T) {
	failing := NewMockPublisher()
	failing.SetError(errors.New("broker down"))

	working := NewMockPublisher()

	notifier, err := NewNotifier(1, KafkaTarget(failing, "t"), KafkaTarget(working, "t"))
	require.NoError(t, err)

	defer notifier.Close()

	notifier.Notify(context.Background(), sampleChange(t))
	notifier.Wait()

	assert.Empty(t, failing.Messages())
	assert.Len(t, working.Messages(), 1)
}

func TestNotifierOutlivesCanceledContext(t *testing.T) {
	publisher := NewMockPublisher()

	notifier, err := NewNotifier(1, KafkaTarget(publisher, "t"))
	require.NoError(t, err)

	defer notifier.Close()

	ctx, cancel := context.WithCancel(context.Background())
	notifier.Notify(ctx, sampleChange(t))
	cancel()
	notifier.Wait()

	assert.Len(t, publisher.Messages(), 1)
}

func TestNotifierWithoutTargets(t *testing.T) {
	notifier, err := NewNotifier(1)
	require.NoError(t, err)

	notifier.Notify(context.Background(), sampleChange(t))
	notifier.Close()
}
