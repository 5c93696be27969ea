package report

import (
	"context"
	"errors"

	"git.mci.dev/mse/sre/phoenix/golang/phonelog/internal/call"
	"git.mci.dev/mse/sre/phoenix/golang/phonelog/internal/database"
	"git.mci.dev/mse/sre/phoenix/golang/phonelog/internal/logging"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

var (
	ErrInvalidRecordSliceResult = errors.New("invalid result type, it should be slice of call.Record")
	ErrInvalidStatsResult       = errors.New("invalid result type, it should be pointer to Stats struct")
)

type DirectionStats struct {
	Direction     string  `json:"direction"`
	Count         int64   `json:"count"`
	AvgDuration   float64 `json:"avg_duration"`
	TotalDuration int64   `json:"total_duration"`
}

type StatusStats struct {
	Status string `json:"status"`
	Count  int64  `json:"count"`
}

type PhoneStats struct {
	PhoneMAC string `json:"phone_mac"`
	Count    int64  `json:"count"`
}

type Stats struct {
	ByDirection []DirectionStats `json:"by_direction"`
	ByStatus    []StatusStats    `json:"by_status"`
	ByPhone     []PhoneStats     `json:"by_phone"`
}

// Repository runs read-only queries over call records.
type Repository struct {
	DBConn         *gorm.DB
	CircuitBreaker *gobreaker.CircuitBreaker[any]
}

func NewRepository(dbConn *gorm.DB) *Repository {
	cbSettings := database.GetCircuitBreakerSettings()

	return &Repository{
		DBConn:         dbConn,
		CircuitBreaker: gobreaker.NewCircuitBreaker[any](cbSettings),
	}
}

// ClampLimit maps a requested page size onto [1, MaxLimit], using
// DefaultLimit for non-positive values.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}

// RecentCalls returns the latest calls by start time.
func (repository *Repository) RecentCalls(ctx context.Context, limit int) ([]call.Record, error) {
	result, err := repository.CircuitBreaker.Execute(func() (any, error) {
		records := []call.Record{}

		err := repository.DBConn.WithContext(ctx).
			Order("started DESC").
			Limit(ClampLimit(limit)).
			Find(&records).Error
		if err != nil {
			logging.Logger.Error("[RecentCalls] Failed to fetch calls",
				zap.String("error", err.Error()),
				zap.Bool("is_context_error", ctx.Err() != nil),
			)

			return nil, err
		}

		return records, nil
	})
	if err != nil {
		return nil, err
	}

	records, ok := result.([]call.Record)
	if !ok {
		return nil, ErrInvalidRecordSliceResult
	}

	return records, nil
}

// Stats aggregates calls by direction, status and phone.
func (repository *Repository) Stats(ctx context.Context) (*Stats, error) {
	result, err := repository.CircuitBreaker.Execute(func() (any, error) {
		stats := Stats{
			ByDirection: []DirectionStats{},
			ByStatus:    []StatusStats{},
			ByPhone:     []PhoneStats{},
		}

		dbConn := repository.DBConn.WithContext(ctx)

		err := dbConn.Model(&call.Record{}).
			Select("direction, COUNT(*) AS count, " +
				"COALESCE(AVG(total_duration), 0) AS avg_duration, " +
				"COALESCE(SUM(total_duration), 0) AS total_duration").
			Group("direction").
			Order("direction").
			Scan(&stats.ByDirection).Error
		if err != nil {
			return nil, logStatsError(ctx, "direction", err)
		}

		err = dbConn.Model(&call.Record{}).
			Select("status, COUNT(*) AS count").
			Group("status").
			Order("status").
			Scan(&stats.ByStatus).Error
		if err != nil {
			return nil, logStatsError(ctx, "status", err)
		}

		err = dbConn.Model(&call.Record{}).
			Select("phone_mac, COUNT(*) AS count").
			Group("phone_mac").
			Order("count DESC").
			Order("phone_mac").
			Scan(&stats.ByPhone).Error
		if err != nil {
			return nil, logStatsError(ctx, "phone_mac", err)
		}

		return &stats, nil
	})
	if err != nil {
		return nil, err
	}

	stats, ok := result.(*Stats)
	if !ok {
		return nil, ErrInvalidStatsResult
	}

	return stats, nil
}

func logStatsError(ctx context.Context, group string, err error) error {
	logging.Logger.Error("[Stats] Failed to aggregate calls",
		zap.String("group", group),
		zap.String("error", err.Error()),
		zap.Bool("is_context_error", ctx.Err() != nil),
	)

	return err
}
