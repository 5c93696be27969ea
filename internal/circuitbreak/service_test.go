package circuitbreak

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTriggerErrorBeforeInitDoesNotBlock(t *testing.T) {
	CircuitBreakChan = nil

	TriggerError(DBService)
}

func TestTriggerErrorKeepsFirstReport(t *testing.T) {
	Init()

	TriggerError(DBService)
	TriggerError(RedisService)

	require.Equal(t, DBService, <-CircuitBreakChan)
	require.Empty(t, CircuitBreakChan)
}
