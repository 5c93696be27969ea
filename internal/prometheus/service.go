package prometheus

import (
	"context"
	"errors"
	"net/http"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/phonelog/internal/config"
	"git.mci.dev/mse/sre/phoenix/golang/phonelog/internal/logging"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const shutdownTimeout = 5 * time.Second

// NewServer returns the metrics server listening on PROMETHEUS_PORT.
func NewServer() *http.Server {
	timeout := time.Duration(config.Conf.PrometheusTimeout) * time.Second

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	return &http.Server{
		Addr:              ":" + config.Conf.PrometheusPort,
		Handler:           mux,
		ReadTimeout:       timeout,
		ReadHeaderTimeout: timeout,
		WriteTimeout:      timeout,
		IdleTimeout:       timeout,
	}
}

// Run serves metrics until ctx is done. It outlives app restarts, so it is
// bound to the process context rather than the app one.
func Run(ctx context.Context) {
	server := NewServer()

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		err := server.Shutdown(shutdownCtx)
		if err != nil {
			logging.Logger.Warn("[prometheus.Run] Failed to shut down metrics server",
				zap.String("error", err.Error()),
			)
		}
	}()

	logging.Logger.Info("Starting prometheus server", zap.String("addr", server.Addr))

	err := server.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		logging.Logger.Error("[prometheus.Run] Metrics server stopped",
			zap.String("error", err.Error()),
		)
	}
}
