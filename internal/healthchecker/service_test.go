package healthchecker

import (
	"context"
	"errors"
	"testing"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/phonelog/internal/circuitbreak"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitorCancelsOnCircuitBreak(t *testing.T) {
	circuitbreak.Init()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	checker := NewService(cancel)

	done := make(chan struct{})

	go func() {
		checker.Monitor(context.Background())
		close(done)
	}()

	circuitbreak.TriggerError(circuitbreak.DBService)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("monitor did not return")
	}

	require.ErrorIs(t, ctx.Err(), context.Canceled)
	assert.Equal(t, circuitbreak.DBService, checker.ErrorService)
}

func TestMonitorStopsWithContext(t *testing.T) {
	circuitbreak.Init()

	ctx, cancel := context.WithCancel(context.Background())
	checker := NewService(func() {})

	cancel()
	checker.Monitor(ctx)

	assert.Empty(t, checker.ErrorService)
}

func TestCheckWaitsForRecovery(t *testing.T) {
	attempts := 0

	checker := &Healthchecker{
		ErrorService: "flaky",
		Interval:     5 * time.Millisecond,
		Checks: map[string]CheckFunc{
			"flaky": func(context.Context) error {
				attempts++
				if attempts < 3 {
					return errors.New("still down")
				}

				return nil
			},
		},
	}

	require.True(t, checker.Check(context.Background()))
	assert.Equal(t, 3, attempts)
	assert.Empty(t, checker.ErrorService)
}

func TestCheckUnknownServiceStopsWithContext(t *testing.T) {
	checker := &Healthchecker{ErrorService: "nope", Interval: 5 * time.Millisecond}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	assert.False(t, checker.Check(ctx))
}

func TestCheckWithoutError(t *testing.T) {
	checker := &Healthchecker{Interval: time.Millisecond}

	assert.False(t, checker.Check(context.Background()))
}
