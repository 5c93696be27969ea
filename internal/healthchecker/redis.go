package healthchecker

import (
	"context"

	"git.mci.dev/mse/sre/phoenix/golang/phonelog/internal/config"
	"git.mci.dev/mse/sre/phoenix/golang/phonelog/internal/keylock"
)

func CheckRedis(ctx context.Context) error {
	client, err := keylock.NewRedisClient(ctx, config.Conf.RedisAddr)
	if err != nil {
		return err
	}

	return client.Close()
}
