package actionlog

import (
	"context"
	"errors"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/phonelog/internal/database"
	"git.mci.dev/mse/sre/phoenix/golang/phonelog/internal/logging"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrInvalidEntryResult      = errors.New("invalid result type, it should be pointer to Entry struct")
	ErrInvalidEntrySliceResult = errors.New("invalid result type, it should be slice of Entry")
)

type Repository struct {
	DBConn         *gorm.DB
	CircuitBreaker *gobreaker.CircuitBreaker[any]
	now            func() time.Time
}

func NewRepository(dbConn *gorm.DB) *Repository {
	cbSettings := database.GetCircuitBreakerSettings()

	return &Repository{
		DBConn:         dbConn,
		CircuitBreaker: gobreaker.NewCircuitBreaker[any](cbSettings),
		now:            time.Now,
	}
}

// Create stores rawURL with the current time.
func (repository *Repository) Create(ctx context.Context, rawURL string) (*Entry, error) {
	result, err := repository.CircuitBreaker.Execute(func() (any, error) {
		entry := Entry{
			Received: repository.now(),
			URL:      rawURL,
		}

		err := repository.DBConn.WithContext(ctx).Create(&entry).Error
		if err != nil {
			logging.Logger.Error("[Create] Failed to store action log entry - may cause circuit breaker trip",
				zap.String("url", rawURL),
				zap.String("error", err.Error()),
				zap.Bool("is_context_error", ctx.Err() != nil),
			)

			return nil, err
		}

		return &entry, nil
	})
	if err != nil {
		return nil, err
	}

	entry, ok := result.(*Entry)
	if !ok {
		return nil, ErrInvalidEntryResult
	}

	return entry, nil
}

// Latest returns up to limit entries, newest first.
func (repository *Repository) Latest(ctx context.Context, limit int) ([]Entry, error) {
	result, err := repository.CircuitBreaker.Execute(func() (any, error) {
		var entries []Entry

		err := repository.DBConn.WithContext(ctx).
			Order("received DESC").
			Order("id DESC").
			Limit(limit).
			Find(&entries).Error
		if err != nil {
			logging.Logger.Error("[Latest] Failed to fetch action log entries",
				zap.String("error", err.Error()),
			)

			return nil, err
		}

		return entries, nil
	})
	if err != nil {
		return nil, err
	}

	entries, ok := result.([]Entry)
	if !ok {
		return nil, ErrInvalidEntrySliceResult
	}

	return entries, nil
}
