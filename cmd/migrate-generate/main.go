package main

import (
	"os"
	"os/exec"
	"path/filepath"

	"ariga.io/atlas-provider-gorm/gormschema"
	"git.mci.dev/mse/sre/phoenix/golang/phonelog/internal/actionlog"
	"git.mci.dev/mse/sre/phoenix/golang/phonelog/internal/call"
	"git.mci.dev/mse/sre/phoenix/golang/phonelog/internal/deadletter"
	"git.mci.dev/mse/sre/phoenix/golang/phonelog/internal/logging"
	"go.uber.org/zap"
)

const (
	minArgs       = 2
	migrationsDir = "file://internal/database/migrations?format=golang-migrate"
	defaultDevURL = "docker+postgres://docker.mci.dev/postgres:16-alpine/dev?search_path=public"
)

// models lists every table the service owns.
var models = []any{
	&call.Record{},
	&actionlog.Entry{},
	&deadletter.Event{},
}

func main() {
	if len(os.Args) < minArgs {
		logging.Logger.Fatal("Usage: migrate-generate <name>")
	}

	name := filepath.Base(os.Args[1])

	schemaPath, err := writeSchema()
	if err != nil {
		logging.Logger.Fatal("Failed to render gorm schema", zap.String("error", err.Error()))
	}

	defer func() {
		err := os.Remove(schemaPath)
		if err != nil {
			logging.Logger.Warn("Failed to remove schema file",
				zap.String("path", schemaPath),
				zap.String("error", err.Error()),
			)
		}
	}()

	devURL := os.Getenv("ATLAS_DEV_URL")
	if devURL == "" {
		devURL = defaultDevURL
	}

	cmd := exec.Command(
		"atlas",
		"migrate", "diff", name,
		"--to", "file://"+schemaPath,
		"--dev-url", devURL,
		"--dir", migrationsDir,
	)

	out, err := cmd.CombinedOutput()
	if err != nil {
		logging.Logger.Fatal("atlas migrate diff failed",
			zap.String("error", err.Error()),
			zap.ByteString("output", out),
		)
	}

	logging.Logger.Info("Migration generated", zap.String("name", name), zap.ByteString("output", out))
}

// writeSchema renders the postgres DDL of models into a temp file and
// returns its absolute path.
func writeSchema() (string, error) {
	schema, err := gormschema.New("postgres").Load(models...)
	if err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp("", "phonelog-schema-*.sql")
	if err != nil {
		return "", err
	}

	_, err = tmp.WriteString(schema)
	if err != nil {
		_ = tmp.Close()
		return "", err
	}

	err = tmp.Close()
	if err != nil {
		return "", err
	}

	return filepath.Abs(tmp.Name())
}
