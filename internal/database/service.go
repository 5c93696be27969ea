package database

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/phonelog/internal/circuitbreak"
	"git.mci.dev/mse/sre/phoenix/golang/phonelog/internal/config"
	"git.mci.dev/mse/sre/phoenix/golang/phonelog/internal/logging"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

const defaultSQLitePath = "data/phone_calls.db"

func NewDatabase() (*gorm.DB, error) {
	var (
		database *gorm.DB
		err      error
	)

	switch config.Conf.DBDriver {
	case config.DriverPostgres:
		database, err = OpenPostgres(GetDSN())
	default:
		database, err = OpenSQLite(GetSQLitePath())
	}

	if err != nil {
		logging.Logger.Error("Failed to connect to database",
			zap.String("driver", config.Conf.DBDriver),
			zap.String("error", err.Error()),
		)

		return nil, err
	}

	err = Ping(context.Background(), database)
	if err != nil {
		logging.Logger.Error("Failed to ping database",
			zap.String("driver", config.Conf.DBDriver),
			zap.String("error", err.Error()),
		)

		return nil, err
	}

	logging.Logger.Info("Successfully connected to database", zap.String("driver", config.Conf.DBDriver))

	return database, nil
}

func OpenPostgres(dsn string) (*gorm.DB, error) {
	return gorm.Open(postgres.Open(dsn), newGormConfig())
}

// OpenSQLite opens the sqlite database at path, creating its directory when
// needed. A single connection is kept open since sqlite serializes writers.
func OpenSQLite(path string) (*gorm.DB, error) {
	if !strings.HasPrefix(path, "file:") && path != ":memory:" {
		err := os.MkdirAll(filepath.Dir(path), 0o755)
		if err != nil {
			return nil, fmt.Errorf("create sqlite directory: %w", err)
		}
	}

	database, err := gorm.Open(sqlite.Open(withBusyTimeout(path)), newGormConfig())
	if err != nil {
		return nil, err
	}

	sqlDB, err := database.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxOpenConns(1)

	return database, nil
}

func Ping(ctx context.Context, database *gorm.DB) error {
	sqlDB, err := database.DB()
	if err != nil {
		return err
	}

	return sqlDB.PingContext(ctx)
}

func Close(database *gorm.DB) error {
	sqlDB, err := database.DB()
	if err != nil {
		return err
	}

	return sqlDB.Close()
}

func newGormConfig() *gorm.Config {
	level := gormLogger.Silent
	if config.Conf.Debug {
		level = gormLogger.Info
	}

	return &gorm.Config{
		Logger: gormLogger.Default.LogMode(level),
	}
}

func withBusyTimeout(path string) string {
	if strings.Contains(path, "_busy_timeout") {
		return path
	}

	separator := "?"
	if strings.Contains(path, "?") {
		separator = "&"
	}

	return path + separator + "_busy_timeout=5000"
}

func GetSQLitePath() string {
	if config.Conf.DBURL != "" {
		return strings.TrimPrefix(config.Conf.DBURL, "sqlite://")
	}

	return defaultSQLitePath
}

func GetDSN() string {
	if config.Conf.DBURL != "" {
		return config.Conf.DBURL
	}

	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s",
		config.Conf.PostgresHost,
		config.Conf.PostgresUsername,
		config.Conf.PostgresPassword,
		config.Conf.PostgresDatabase,
		config.Conf.PostgresPort,
	)
}

func GetURL() string {
	if config.Conf.DBURL != "" {
		return config.Conf.DBURL
	}

	dbUrl := &url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(config.Conf.PostgresUsername, config.Conf.PostgresPassword),
		Host:   fmt.Sprintf("%s:%s", config.Conf.PostgresHost, config.Conf.PostgresPort),
		Path:   config.Conf.PostgresDatabase,
	}
	queries := url.Values{}
	queries.Add("sslmode", "disable")
	dbUrl.RawQuery = queries.Encode()

	return dbUrl.String()
}

// GetCircuitBreakerSettings returns the shared database breaker settings.
// Errors listed in neutral, together with missing rows and canceled contexts,
// are not counted as failures.
func GetCircuitBreakerSettings(neutral ...error) gobreaker.Settings {
	return gobreaker.Settings{
		Name:     circuitbreak.DBService,
		Interval: time.Duration(config.Conf.DBIntervalCB) * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			willTrip := counts.ConsecutiveFailures >= config.Conf.DBConsecutiveFailuresCB

			if willTrip {
				logging.Logger.Error("Database circuit breaker about to trip",
					zap.String("service", circuitbreak.DBService),
					zap.Uint32("total_requests", counts.Requests),
					zap.Uint32("total_failures", counts.TotalFailures),
					zap.Uint32("consecutive_failures", counts.ConsecutiveFailures),
					zap.Uint32("threshold", config.Conf.DBConsecutiveFailuresCB),
				)
			}

			return willTrip
		},
		IsSuccessful: func(err error) bool {
			return isBreakerNeutral(err, neutral)
		},
		OnStateChange: func(name string, fromState, toState gobreaker.State) {
			logging.Logger.Error("Database circuit breaker state changed",
				zap.String("service", name),
				zap.String("from", fromState.String()),
				zap.String("to", toState.String()),
			)

			if toState == gobreaker.StateOpen {
				circuitbreak.TriggerError(circuitbreak.DBService)
			}
		},
	}
}

func isBreakerNeutral(err error, neutral []error) bool {
	if err == nil ||
		errors.Is(err, gorm.ErrRecordNotFound) ||
		errors.Is(err, context.Canceled) {
		return true
	}

	for _, target := range neutral {
		if errors.Is(err, target) {
			return true
		}
	}

	return false
}
