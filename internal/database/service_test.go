package database

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"git.mci.dev/mse/sre/phoenix/golang/phonelog/internal/config"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func withConfig(t *testing.T, mutate func(*config.Config)) {
	t.Helper()

	saved := config.Conf
	mutate(&config.Conf)

	t.Cleanup(func() { config.Conf = saved })
}

func TestWithBusyTimeout(t *testing.T) {
	require.Equal(t, "calls.db?_busy_timeout=5000", withBusyTimeout("calls.db"))
	require.Equal(t, "file:x?mode=memory&_busy_timeout=5000", withBusyTimeout("file:x?mode=memory"))
	require.Equal(t, "calls.db?_busy_timeout=10", withBusyTimeout("calls.db?_busy_timeout=10"))
}

func TestGetURLFromParts(t *testing.T) {
	withConfig(t, func(cfg *config.Config) {
		cfg.DBURL = ""
		cfg.PostgresHost = "db"
		cfg.PostgresPort = "5432"
		cfg.PostgresUsername = "phonelog"
		cfg.PostgresPassword = "secret"
		cfg.PostgresDatabase = "calls"
	})

	require.Equal(t, "postgres://phonelog:secret@db:5432/calls?sslmode=disable", GetURL())
	require.Equal(t, "host=db user=phonelog password=secret dbname=calls port=5432", GetDSN())
}

func TestDBURLOverridesParts(t *testing.T) {
	withConfig(t, func(cfg *config.Config) {
		cfg.DBURL = "postgres://u:p@elsewhere:5433/x"
		cfg.PostgresHost = "db"
	})

	require.Equal(t, "postgres://u:p@elsewhere:5433/x", GetURL())
	require.Equal(t, "postgres://u:p@elsewhere:5433/x", GetDSN())
}

func TestGetSQLitePath(t *testing.T) {
	withConfig(t, func(cfg *config.Config) { cfg.DBURL = "" })
	require.Equal(t, defaultSQLitePath, GetSQLitePath())

	config.Conf.DBURL = "sqlite:///var/lib/phonelog/calls.db"
	require.Equal(t, "/var/lib/phonelog/calls.db", GetSQLitePath())
}

func TestBreakerNeutralErrors(t *testing.T) {
	errConflict := errors.New("conflict")

	require.True(t, isBreakerNeutral(nil, nil))
	require.True(t, isBreakerNeutral(gorm.ErrRecordNotFound, nil))
	require.True(t, isBreakerNeutral(context.Canceled, nil))
	require.True(t, isBreakerNeutral(fmt.Errorf("update: %w", errConflict), []error{errConflict}))
	require.False(t, isBreakerNeutral(errors.New("connection refused"), []error{errConflict}))
}

func TestOpenSQLiteCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "calls.db")

	db, err := OpenSQLite(path)
	require.NoError(t, err)

	t.Cleanup(func() { _ = Close(db) })

	require.NoError(t, Ping(context.Background(), db))
	require.FileExists(t, path)
}

func TestMigrateRejectsUnknownDirection(t *testing.T) {
	err := Migrate("postgres://localhost/none", "sideways")
	require.ErrorIs(t, err, ErrUnknownDirection)
}
