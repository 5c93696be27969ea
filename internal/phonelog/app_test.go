package phonelog

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/phonelog/internal/call"
	"git.mci.dev/mse/sre/phoenix/golang/phonelog/internal/config"
	"git.mci.dev/mse/sre/phoenix/golang/phonelog/internal/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestApp(t *testing.T, cancel context.CancelFunc) *App {
	t.Helper()

	previous := config.Conf

	t.Cleanup(func() {
		config.Conf = previous
	})

	config.Conf.DBDriver = config.DriverSQLite
	config.Conf.DBURL = filepath.Join(t.TempDir(), "phonelog.db")
	config.Conf.DBAutoMigrate = true
	config.Conf.Host = "127.0.0.1"
	config.Conf.Port = "0"
	config.Conf.KafkaBootstrapServer = ""
	config.Conf.MQTTBroker = ""
	config.Conf.RedisAddr = ""

	app, err := NewApp(cancel)
	require.NoError(t, err)

	return app
}

func TestAppProcessesAndShutsDown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app := newTestApp(t, cancel)

	result, err := app.Pipeline.Handle(ctx, event.Params{
		"event": {"incoming-call"}, "phone": {"AA:BB"}, "callid": {"C1"}, "number": {"555"},
	}, "http://phonelog.local/log?event=incoming-call&phone=AA:BB&callid=C1&number=555")
	require.NoError(t, err)
	assert.Equal(t, call.OutcomeCreated, result.Outcome)

	app.processEvent(ctx, event.Params{
		"event": {"call-end"}, "phone": {"AA:BB"}, "callid": {"C1"}, "duration": {"12"},
	}, "event=call-end")

	record, err := call.NewRepository(app.DBConn).FindByCallID(ctx, "C1")
	require.NoError(t, err)
	assert.Equal(t, call.StatusSuccessful, record.Status)

	done := make(chan error, 1)

	go func() {
		done <- app.Run(ctx)
	}()

	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("app did not shut down")
	}

	assert.Empty(t, app.HealthCheckerService.ErrorService)
}

func TestProcessEventRecoversPanic(t *testing.T) {
	app := &App{}

	assert.NotPanics(t, func() {
		app.processEvent(context.Background(), event.Params{}, "boom")
	})
}
