package phonelog

import (
	"context"

	"git.mci.dev/mse/sre/phoenix/golang/phonelog/internal/event"
	"git.mci.dev/mse/sre/phoenix/golang/phonelog/internal/logging"
	"go.uber.org/zap"
)

// EventHandler processes a raw event received from Kafka on the worker pool.
func (app *App) EventHandler(ctx context.Context, params event.Params, raw string) {
	err := app.WorkerPool.Submit(func() {
		app.processEvent(ctx, params, raw)
	})
	if err != nil {
		logging.Logger.Error("failed to submit job to ants pool", zap.String("error", err.Error()))
	}
}

func (app *App) processEvent(ctx context.Context, params event.Params, raw string) {
	defer app.handlePanic(raw)

	_, err := app.Pipeline.Handle(ctx, params, "")
	if err != nil {
		logging.Logger.Error("failed to process event message",
			zap.String("msg_value", raw),
			zap.String("error", err.Error()),
		)
	}
}

func (app *App) handlePanic(raw string) {
	if r := recover(); r != nil {
		logging.Logger.Error("panic in event worker",
			zap.String("msg_value", raw),
			zap.Any("recover", r),
		)
	}
}
