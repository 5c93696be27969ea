package call

import (
	"context"
	"errors"
	"fmt"

	"git.mci.dev/mse/sre/phoenix/golang/phonelog/internal/database"
	"git.mci.dev/mse/sre/phoenix/golang/phonelog/internal/logging"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrInvalidRecordResult = errors.New("invalid result type, it should be pointer to Record struct")

// Repository is the gorm Store.
type Repository struct {
	DBConn         *gorm.DB
	CircuitBreaker *gobreaker.CircuitBreaker[any]
}

func NewRepository(dbConn *gorm.DB) *Repository {
	cbSettings := database.GetCircuitBreakerSettings(ErrNotFound, ErrAlreadyExists, ErrVersionConflict)

	return &Repository{
		DBConn:         dbConn,
		CircuitBreaker: gobreaker.NewCircuitBreaker[any](cbSettings),
	}
}

// FindByCallID retrieves a Record by its callID.
func (repository *Repository) FindByCallID(ctx context.Context, callID string) (*Record, error) {
	result, err := repository.CircuitBreaker.Execute(func() (any, error) {
		var record Record

		err := repository.DBConn.WithContext(ctx).
			Where("call_id = ?", callID).
			First(&record).Error

		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, callID)
		}

		if err != nil {
			logging.Logger.Error("[FindByCallID] Failed to fetch call record - may cause circuit breaker trip",
				zap.String("call_id", callID),
				zap.String("error", err.Error()),
				zap.Bool("is_context_error", ctx.Err() != nil),
			)

			return nil, err
		}

		return &record, nil
	})
	if err != nil {
		return nil, err
	}

	record, ok := result.(*Record)
	if !ok {
		return nil, ErrInvalidRecordResult
	}

	if record.Transfers == nil {
		record.Transfers = datatypes.JSONSlice[string]{}
	}

	return record, nil
}

// Create inserts record, reporting ErrAlreadyExists when the call_id is taken.
func (repository *Repository) Create(ctx context.Context, record *Record) error {
	_, err := repository.CircuitBreaker.Execute(func() (any, error) {
		if record.Transfers == nil {
			record.Transfers = datatypes.JSONSlice[string]{}
		}

		result := repository.DBConn.WithContext(ctx).
			Clauses(clause.OnConflict{DoNothing: true}).
			Create(record)
		if result.Error != nil {
			logging.Logger.Error("[Create] Failed to create call record - may cause circuit breaker trip",
				zap.String("call_id", record.CallID),
				zap.String("error", result.Error.Error()),
				zap.Bool("is_context_error", ctx.Err() != nil),
			)

			return nil, result.Error
		}

		if result.RowsAffected == 0 {
			return nil, fmt.Errorf("%w: %s", ErrAlreadyExists, record.CallID)
		}

		return record, nil
	})

	return err
}

// Update writes the mutable fields of record guarded by its version.
func (repository *Repository) Update(ctx context.Context, record *Record) error {
	_, err := repository.CircuitBreaker.Execute(func() (any, error) {
		updates := buildRecordUpdates(record)

		result := repository.DBConn.WithContext(ctx).
			Model(&Record{}).
			Where("call_id = ? AND version = ?", record.CallID, record.Version).
			Updates(updates)
		if result.Error != nil {
			logging.Logger.Error("[Update] Failed to update call record - may cause circuit breaker trip",
				zap.String("call_id", record.CallID),
				zap.String("status", record.Status),
				zap.String("error", result.Error.Error()),
				zap.Bool("is_context_error", ctx.Err() != nil),
			)

			return nil, result.Error
		}

		if result.RowsAffected == 0 {
			logging.Logger.Debug("[Update] Version conflict on call record",
				zap.String("call_id", record.CallID),
				zap.Int("version", record.Version),
			)

			return nil, fmt.Errorf("%w: %s", ErrVersionConflict, record.CallID)
		}

		record.Version++

		return record, nil
	})

	return err
}

func buildRecordUpdates(record *Record) map[string]any {
	transfers := record.Transfers
	if transfers == nil {
		transfers = datatypes.JSONSlice[string]{}
	}

	return map[string]any{
		"status":         record.Status,
		"finished":       record.Finished,
		"total_duration": record.TotalDuration,
		"transfers":      transfers,
		"version":        record.Version + 1,
	}
}
