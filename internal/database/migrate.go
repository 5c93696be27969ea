package database

import (
	"embed"
	"errors"
	"fmt"

	"git.mci.dev/mse/sre/phoenix/golang/phonelog/internal/logging"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	DirectionUp   = "up"
	DirectionDown = "down"
)

var ErrUnknownDirection = errors.New("direction must be up or down")

//go:embed migrations/*.sql
var MigrationFS embed.FS

// Migrate applies the embedded postgres migrations against dbURL. Down rolls
// back a single step.
func Migrate(dbURL, direction string) error {
	if direction != DirectionUp && direction != DirectionDown {
		return fmt.Errorf("%w: %q", ErrUnknownDirection, direction)
	}

	sourceDriver, err := iofs.New(MigrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("migrate source: %w", err)
	}

	migrator, err := migrate.NewWithSourceInstance("iofs", sourceDriver, dbURL)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	defer func() { _, _ = migrator.Close() }()

	switch direction {
	case DirectionUp:
		err = migrator.Up()
	case DirectionDown:
		err = migrator.Steps(-1)
	}

	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}

	version, dirty, _ := migrator.Version()
	logging.Logger.Info("migration complete",
		zap.String("direction", direction),
		zap.Uint("version", version),
		zap.Bool("dirty", dirty),
	)

	return nil
}

// AutoMigrate creates the tables for models through gorm. It backs the sqlite
// driver, which the embedded postgres migrations do not target.
func AutoMigrate(database *gorm.DB, models ...any) error {
	err := database.AutoMigrate(models...)
	if err != nil {
		logging.Logger.Error("[AutoMigrate] Failed to migrate models", zap.String("error", err.Error()))
		return err
	}

	return nil
}
