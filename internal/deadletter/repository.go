package deadletter

import (
	"context"
	"errors"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/phonelog/internal/config"
	"git.mci.dev/mse/sre/phoenix/golang/phonelog/internal/database"
	"git.mci.dev/mse/sre/phoenix/golang/phonelog/internal/logging"
	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrInvalidEventResult      = errors.New("invalid result type, it should be pointer to Event")
	ErrInvalidEventSliceResult = errors.New("invalid result type, it should be slice of Event")
	ErrAlreadyClaimed          = errors.New("dead letter event is not pending")
)

type DeadLetterRepository struct {
	DBConn         *gorm.DB
	CircuitBreaker *gobreaker.CircuitBreaker[any]
	now            func() time.Time
}

func NewRepository(dbConn *gorm.DB) *DeadLetterRepository {
	cbSettings := database.GetCircuitBreakerSettings(ErrAlreadyClaimed)

	return &DeadLetterRepository{
		DBConn:         dbConn,
		CircuitBreaker: gobreaker.NewCircuitBreaker[any](cbSettings),
		now:            time.Now,
	}
}

// dbConnFor drops a finished ctx so that a failure is still recorded while
// shutting down.
func (dlRepository *DeadLetterRepository) dbConnFor(ctx context.Context) *gorm.DB {
	select {
	case <-ctx.Done():
		return dlRepository.DBConn
	default:
		return dlRepository.DBConn.WithContext(ctx)
	}
}

func (dlRepository *DeadLetterRepository) CreateEvent(
	ctx context.Context,
	callID string,
	params []byte,
	receivedAt time.Time,
	errMsg string,
) (*Event, error) {
	result, err := dlRepository.CircuitBreaker.Execute(func() (any, error) {
		now := dlRepository.now()
		dlEvent := Event{
			ID:          uuid.New(),
			CallID:      callID,
			Params:      params,
			ReceivedAt:  receivedAt,
			Error:       errMsg,
			Status:      StatusPending,
			LastRetryAt: &now,
		}

		err := dlRepository.dbConnFor(ctx).Create(&dlEvent).Error
		if err != nil {
			logging.Logger.Error("[CreateEvent] Failed to create dead letter event",
				zap.String("call_id", callID),
				zap.String("error", err.Error()),
			)

			return nil, err
		}

		return &dlEvent, nil
	})
	if err != nil {
		return nil, err
	}

	dlEvent, ok := result.(*Event)
	if !ok {
		return nil, ErrInvalidEventResult
	}

	return dlEvent, nil
}

// GetPendingEvents returns pending events whose last attempt is older than
// the retry delay, oldest callback first.
func (dlRepository *DeadLetterRepository) GetPendingEvents(ctx context.Context) ([]Event, error) {
	result, err := dlRepository.CircuitBreaker.Execute(func() (any, error) {
		var records []Event

		retryBefore := dlRepository.now().Add(-time.Duration(config.Conf.DeadLetterEventRetryDelay) * time.Minute)

		err := dlRepository.DBConn.WithContext(ctx).
			Where(
				"status = ? AND last_retry_at <= ? AND retry_count < ?",
				StatusPending,
				retryBefore,
				config.Conf.DeadLetterEventMaxRetries,
			).
			Order("received_at ASC").
			Order("created_at ASC").
			Limit(config.Conf.DeadLetterEventLimit).
			Find(&records).Error
		if err != nil {
			logging.Logger.Error("[GetPendingEvents] Failed to fetch dead letter events",
				zap.String("error", err.Error()),
			)

			return nil, err
		}

		return records, nil
	})
	if err != nil {
		return nil, err
	}

	records, ok := result.([]Event)
	if !ok {
		return nil, ErrInvalidEventSliceResult
	}

	return records, nil
}

// Claim moves a pending event to in_progress. It returns ErrAlreadyClaimed
// when another worker got there first.
func (dlRepository *DeadLetterRepository) Claim(ctx context.Context, dlEvent *Event) error {
	_, err := dlRepository.CircuitBreaker.Execute(func() (any, error) {
		now := dlRepository.now()

		result := dlRepository.DBConn.WithContext(ctx).
			Model(&Event{}).
			Where("id = ? AND status = ?", dlEvent.ID, StatusPending).
			Updates(map[string]any{
				"status":        StatusInProgress,
				"last_retry_at": now,
			})
		if result.Error != nil {
			return nil, result.Error
		}

		if result.RowsAffected == 0 {
			return nil, ErrAlreadyClaimed
		}

		dlEvent.Status = StatusInProgress
		dlEvent.LastRetryAt = &now

		return dlEvent, nil
	})

	return err
}

// ReleaseStaleClaims returns events claimed longer than the retry delay ago
// to pending, so a replay interrupted by a crash is picked up again.
func (dlRepository *DeadLetterRepository) ReleaseStaleClaims(ctx context.Context) error {
	_, err := dlRepository.CircuitBreaker.Execute(func() (any, error) {
		staleBefore := dlRepository.now().Add(-time.Duration(config.Conf.DeadLetterEventRetryDelay) * time.Minute)

		result := dlRepository.DBConn.WithContext(ctx).
			Model(&Event{}).
			Where("status = ? AND last_retry_at <= ?", StatusInProgress, staleBefore).
			Update("status", StatusPending)
		if result.Error != nil {
			logging.Logger.Error("[ReleaseStaleClaims] Failed to release stale dead letter claims",
				zap.String("error", result.Error.Error()),
			)

			return nil, result.Error
		}

		if result.RowsAffected > 0 {
			logging.Logger.Warn("[ReleaseStaleClaims] Released stale dead letter claims",
				zap.Int64("count", result.RowsAffected),
			)
		}

		return nil, nil
	})

	return err
}

func (dlRepository *DeadLetterRepository) IncreaseRetryCount(ctx context.Context, dlEvent *Event, errMsg string) error {
	_, err := dlRepository.CircuitBreaker.Execute(func() (any, error) {
		updates := map[string]any{
			"retry_count":   gorm.Expr("retry_count + 1"),
			"last_retry_at": dlRepository.now(),
			"status":        StatusPending,
			"error":         errMsg,
		}

		err := dlRepository.dbConnFor(ctx).
			Model(&Event{}).
			Where("id = ?", dlEvent.ID).
			Updates(updates).Error
		if err != nil {
			logging.Logger.Error("[IncreaseRetryCount] Failed to increase dead letter retry count",
				zap.String("call_id", dlEvent.CallID),
				zap.String("error", err.Error()),
			)

			return nil, err
		}

		return dlEvent, nil
	})

	return err
}

func (dlRepository *DeadLetterRepository) Delete(ctx context.Context, dlEvent *Event) error {
	_, err := dlRepository.CircuitBreaker.Execute(func() (any, error) {
		err := dlRepository.dbConnFor(ctx).
			Where("id = ?", dlEvent.ID).
			Delete(&Event{}).
			Error

		return nil, err
	})

	return err
}
