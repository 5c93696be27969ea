package healthchecker

import (
	"context"

	"git.mci.dev/mse/sre/phoenix/golang/phonelog/internal/database"
)

// CheckDB opens a fresh connection and pings it.
func CheckDB(ctx context.Context) error {
	dbConn, err := database.NewDatabase()
	if err != nil {
		return err
	}

	defer func() {
		_ = database.Close(dbConn)
	}()

	return database.Ping(ctx, dbConn)
}
