package healthchecker

import (
	"context"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/phonelog/internal/circuitbreak"
	"git.mci.dev/mse/sre/phoenix/golang/phonelog/internal/config"
	"git.mci.dev/mse/sre/phoenix/golang/phonelog/internal/logging"
	"go.uber.org/zap"
)

const checkTimeout = 10 * time.Second

type CheckFunc func(ctx context.Context) error

// Healthchecker stops the app when a circuit breaker opens and then polls the
// failed dependency until it recovers.
type Healthchecker struct {
	CtxCancelFunc context.CancelFunc
	ErrorService  string
	Checks        map[string]CheckFunc
	Interval      time.Duration
}

func NewService(ctxCancelFunc context.CancelFunc) *Healthchecker {
	return &Healthchecker{
		CtxCancelFunc: ctxCancelFunc,
		Checks: map[string]CheckFunc{
			circuitbreak.DBService:    CheckDB,
			circuitbreak.RedisService: CheckRedis,
		},
		Interval: time.Duration(config.Conf.HealthCheckerMonitorInterval) * time.Second,
	}
}

func (h *Healthchecker) TriggerError(service string) {
	logging.Logger.Error("service error happened", zap.String("service", service))
	h.ErrorService = service
	h.CtxCancelFunc()
}

// Monitor waits for the first tripped breaker or for ctx to end.
func (h *Healthchecker) Monitor(ctx context.Context) {
	logging.Logger.Info("health checker monitor start successfully")

	select {
	case serviceName := <-circuitbreak.CircuitBreakChan:
		logging.Logger.Info("circuit break happened", zap.String("service", serviceName))
		h.TriggerError(serviceName)
	case <-ctx.Done():
	}
}

// Check blocks until the failed service is healthy again or ctx ends. It
// reports whether the service recovered.
func (h *Healthchecker) Check(ctx context.Context) bool {
	if h.ErrorService == "" {
		logging.Logger.Error("healthchecker error service is empty")
		return false
	}

	ticker := time.NewTicker(h.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}

		if h.checkErrorService(ctx) {
			h.ErrorService = ""
			return true
		}
	}
}

func (h *Healthchecker) checkErrorService(ctx context.Context) bool {
	check, ok := h.Checks[h.ErrorService]
	if !ok {
		logging.Logger.Warn("Unknown service in checkErrorService", zap.String("service", h.ErrorService))
		return false
	}

	checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	err := check(checkCtx)
	if err != nil {
		logging.Logger.Warn("service still unhealthy",
			zap.String("service", h.ErrorService),
			zap.String("error", err.Error()),
		)

		return false
	}

	logging.Logger.Info(h.ErrorService + " service back healthy")

	return true
}
