package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"git.mci.dev/mse/sre/phoenix/golang/phonelog/internal/logging"
	"git.mci.dev/mse/sre/phoenix/golang/phonelog/internal/phonelog"
	"git.mci.dev/mse/sre/phoenix/golang/phonelog/internal/prometheus"
	"go.uber.org/zap"
)

func main() {
	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go prometheus.Run(rootCtx)

	for {
		ctx, cancel := context.WithCancel(rootCtx)

		app, err := phonelog.NewApp(cancel)
		if err != nil {
			cancel()
			logging.Logger.Fatal("failed to create phonelog app", zap.String("error", err.Error()))
		}

		err = app.Run(ctx)

		cancel()

		if err != nil {
			logging.Logger.Fatal("phonelog app stopped with error", zap.String("error", err.Error()))
		}

		if rootCtx.Err() != nil {
			logging.Logger.Info("received shutdown signal, exiting")
			return
		}

		recovered := app.HealthCheckerService.Check(rootCtx)
		if !recovered {
			return
		}

		logging.Logger.Info("restarting phonelog app")
	}
}
