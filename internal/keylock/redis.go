package keylock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/phonelog/internal/circuitbreak"
	"git.mci.dev/mse/sre/phoenix/golang/phonelog/internal/config"
	"git.mci.dev/mse/sre/phoenix/golang/phonelog/internal/logging"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

const (
	defaultKeyPrefix     = "phonelog:call-lock:"
	defaultRetryInterval = 25 * time.Millisecond
	releaseTimeout       = 2 * time.Second
	pingTimeout          = 2 * time.Second

	breakerInterval            = 30 * time.Second
	breakerConsecutiveFailures = 5
)

var ErrLockTimeout = errors.New("timed out waiting for call lock")

var releaseScript = redis.NewScript(`
-- KEYS[1] = lock key
-- ARGV[1] = owner token
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

// RedisLocker is a Locker shared by every replica that talks to the same
// Redis. Leases expire after ttl so a crashed holder cannot block a call.
type RedisLocker struct {
	Client        *redis.Client
	TTL           time.Duration
	Wait          time.Duration
	RetryInterval time.Duration
	KeyPrefix     string

	// CircuitBreaker is optional; when set it guards lock acquisition.
	CircuitBreaker *gobreaker.CircuitBreaker[bool]
}

// NewRedisClient connects to addr and validates it with PING.
func NewRedisClient(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	err := client.Ping(pingCtx).Err()
	if err != nil {
		_ = client.Close()

		logging.Logger.Error("Failed to connect to Redis",
			zap.String("addr", addr),
			zap.String("error", err.Error()),
		)

		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	logging.Logger.Info("Successfully connected to Redis", zap.String("addr", addr))

	return client, nil
}

func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{
		Client:         client,
		TTL:            time.Duration(config.Conf.RedisLockTTL) * time.Second,
		Wait:           time.Duration(config.Conf.RedisLockWait) * time.Second,
		RetryInterval:  defaultRetryInterval,
		KeyPrefix:      defaultKeyPrefix,
		CircuitBreaker: newRedisCircuitBreaker(),
	}
}

func newRedisCircuitBreaker() *gobreaker.CircuitBreaker[bool] {
	settings := gobreaker.Settings{
		Name:     circuitbreak.RedisService,
		Interval: breakerInterval,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerConsecutiveFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
		OnStateChange: func(name string, fromState, toState gobreaker.State) {
			logging.Logger.Warn("Circuit state changed",
				zap.String("service", name),
				zap.String("from", fromState.String()),
				zap.String("to", toState.String()),
			)

			if toState == gobreaker.StateOpen {
				circuitbreak.TriggerError(circuitbreak.RedisService)
			}
		},
	}

	return gobreaker.NewCircuitBreaker[bool](settings)
}

func (r *RedisLocker) tryAcquire(ctx context.Context, lockKey, token string) (bool, error) {
	if r.CircuitBreaker == nil {
		return r.Client.SetNX(ctx, lockKey, token, r.TTL).Result()
	}

	return r.CircuitBreaker.Execute(func() (bool, error) {
		return r.Client.SetNX(ctx, lockKey, token, r.TTL).Result()
	})
}

func (r *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	lockKey := r.KeyPrefix + key
	token := uuid.NewString()

	waitCtx, cancel := context.WithTimeout(ctx, r.Wait)
	defer cancel()

	ticker := time.NewTicker(r.RetryInterval)
	defer ticker.Stop()

	for {
		acquired, err := r.tryAcquire(waitCtx, lockKey, token)
		if err != nil {
			if waitCtx.Err() != nil && ctx.Err() == nil {
				return nil, fmt.Errorf("%w: %s", ErrLockTimeout, key)
			}

			logging.Logger.Error("[RedisLocker.Lock] Failed to acquire lock",
				zap.String("call_id", key),
				zap.String("error", err.Error()),
			)

			return nil, err
		}

		if acquired {
			return func() { r.release(lockKey, token) }, nil
		}

		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}

			return nil, fmt.Errorf("%w: %s", ErrLockTimeout, key)
		case <-ticker.C:
		}
	}
}

func (r *RedisLocker) release(lockKey, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()

	err := releaseScript.Run(ctx, r.Client, []string{lockKey}, token).Err()
	if err != nil {
		logging.Logger.Warn("[RedisLocker.release] Failed to release lock, it will expire",
			zap.String("key", lockKey),
			zap.String("error", err.Error()),
		)
	}
}
