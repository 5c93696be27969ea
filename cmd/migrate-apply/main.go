package main

import (
	"os"

	"git.mci.dev/mse/sre/phoenix/golang/phonelog/internal/database"
	"git.mci.dev/mse/sre/phoenix/golang/phonelog/internal/logging"
	"go.uber.org/zap"
)

const validArgsLen = 2

func main() {
	if len(os.Args) < validArgsLen {
		logging.Logger.Fatal("Usage: migrate-apply up|down")
	}

	direction := os.Args[1]

	err := database.Migrate(database.GetURL(), direction)
	if err != nil {
		logging.Logger.Fatal("Migration failed",
			zap.String("direction", direction),
			zap.String("error", err.Error()),
		)
	}

	logging.Logger.Info("Migration applied", zap.String("direction", direction))
}
