package mqtt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPublisherUnreachableBroker(t *testing.T) {
	_, err := NewPublisher(Options{Broker: "tcp://127.0.0.1:1", ClientID: "phonelog-test", QoS: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tcp://127.0.0.1:1")
}

func TestOptionsFromConfig(t *testing.T) {
	opts := OptionsFromConfig()

	assert.Equal(t, "phonelog", opts.ClientID)
	assert.Equal(t, byte(1), opts.QoS)
}
