//go:build integration

package call

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/phonelog/internal/database"
	"git.mci.dev/mse/sre/phoenix/golang/phonelog/internal/event"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const postgresMaxWait = 90 * time.Second

type noLock struct{}

func (noLock) Lock(context.Context, string) (func(), error) {
	return func() {}, nil
}

func startPostgres(t *testing.T) *gorm.DB {
	t.Helper()

	pool, err := dockertest.NewPool("")
	require.NoError(t, err)

	pool.MaxWait = postgresMaxWait

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "postgres",
		Tag:        "16-alpine",
		Env: []string{
			"POSTGRES_USER=phonelog",
			"POSTGRES_PASSWORD=phonelog",
			"POSTGRES_DB=phonelog",
		},
	}, func(hostConfig *docker.HostConfig) {
		hostConfig.AutoRemove = true
		hostConfig.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = pool.Purge(resource)
	})

	dbURL := fmt.Sprintf("postgres://phonelog:phonelog@%s/phonelog?sslmode=disable", resource.GetHostPort("5432/tcp"))

	var dbConn *gorm.DB

	err = pool.Retry(func() error {
		conn, err := database.OpenPostgres(dbURL)
		if err != nil {
			return err
		}

		err = database.Ping(context.Background(), conn)
		if err != nil {
			_ = database.Close(conn)
			return err
		}

		dbConn = conn

		return nil
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = database.Close(dbConn)
	})

	require.NoError(t, database.Migrate(dbURL, database.DirectionUp))

	return dbConn
}

func TestPostgresRepository(t *testing.T) {
	repository := NewRepository(startPostgres(t))
	ctx := context.Background()

	t.Run("lifecycle", func(t *testing.T) {
		processor := NewProcessor(repository)

		for _, params := range []event.Params{
			{"event": {"incoming-call"}, "phone": {"AA:BB"}, "callid": {"PG1"}, "number": {"555"}},
			{"event": {"call-established"}, "phone": {"AA:BB"}, "callid": {"PG1"}},
			{"event": {"transfer"}, "phone": {"AA:BB"}, "callid": {"PG1"}, "transfer_to": {"200"}},
			{"event": {"call-end"}, "phone": {"AA:BB"}, "callid": {"PG1"}, "duration": {"12"}},
		} {
			evt, err := event.Normalize(params, time.Now())
			require.NoError(t, err)

			_, err = processor.Process(ctx, evt)
			require.NoError(t, err)
		}

		record, err := repository.FindByCallID(ctx, "PG1")
		require.NoError(t, err)
		assert.Equal(t, StatusSuccessful, record.Status)
		assert.Equal(t, []string{"200"}, []string(record.Transfers))
		assert.Equal(t, 12, *record.TotalDuration)
		assert.Equal(t, 3, record.Version)
	})

	t.Run("replicas without shared lock lose no transfer", func(t *testing.T) {
		replicas := []*Processor{
			NewProcessor(repository, WithLocker(noLock{}), WithMaxAttempts(50)),
			NewProcessor(repository, WithLocker(noLock{}), WithMaxAttempts(50)),
		}

		start, err := event.Normalize(event.Params{"event": {"call-start"}, "mac": {"M"}, "callid": {"PG2"}}, time.Now())
		require.NoError(t, err)

		_, err = replicas[0].Process(ctx, start)
		require.NoError(t, err)

		const transfers = 20

		var wg sync.WaitGroup

		for i := range transfers {
			wg.Add(1)

			go func() {
				defer wg.Done()

				evt, err := event.Normalize(event.Params{
					"event": {"transfer"}, "mac": {"M"}, "callid": {"PG2"}, "transfer": {fmt.Sprint(i)},
				}, time.Now())
				if err != nil {
					t.Error(err)
					return
				}

				_, err = replicas[i%len(replicas)].Process(ctx, evt)
				if err != nil {
					t.Error(err)
				}
			}()
		}

		wg.Wait()

		record, err := repository.FindByCallID(ctx, "PG2")
		require.NoError(t, err)
		assert.Len(t, record.Transfers, transfers)
	})

	t.Run("both calls persisted", func(t *testing.T) {
		var count int64
		require.NoError(t, repository.DBConn.Model(&Record{}).Count(&count).Error)
		assert.Equal(t, int64(2), count)
	})
}
