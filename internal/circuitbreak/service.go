package circuitbreak

import (
	"git.mci.dev/mse/sre/phoenix/golang/phonelog/internal/logging"
	"go.uber.org/zap"
)

var CircuitBreakChan chan string

// Services whose breakers stop the app until they recover.
const (
	DBService    = "database"
	RedisService = "redis"
)

func Init() {
	CircuitBreakChan = make(chan string, 1)
}

// TriggerError reports a tripped breaker. Only the first report is kept until
// the health checker drains the channel.
func TriggerError(service string) {
	if CircuitBreakChan == nil {
		logging.Logger.Warn("circuit break reported before app start", zap.String("service", service))
		return
	}

	select {
	case CircuitBreakChan <- service:
	default:
		logging.Logger.Warn("circuit break already pending", zap.String("service", service))
	}
}
