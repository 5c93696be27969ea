//go:build integration

package keylock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startRedis(t *testing.T) *redis.Client {
	t.Helper()

	pool, err := dockertest.NewPool("")
	require.NoError(t, err)

	pool.MaxWait = 60 * time.Second

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "redis",
		Tag:        "7-alpine",
	}, func(hostConfig *docker.HostConfig) {
		hostConfig.AutoRemove = true
		hostConfig.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = pool.Purge(resource)
	})

	var client *redis.Client

	err = pool.Retry(func() error {
		var err error

		client, err = NewRedisClient(context.Background(), resource.GetHostPort("6379/tcp"))

		return err
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = client.Close()
	})

	return client
}

func TestRedisLockerAcrossReplicas(t *testing.T) {
	client := startRedis(t)

	replicas := []*RedisLocker{NewRedisLocker(client), NewRedisLocker(client)}

	var (
		mu      sync.Mutex
		holders int
		maxSeen int
		wg      sync.WaitGroup
	)

	for i := range 10 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			unlock, err := replicas[i%2].Lock(context.Background(), "C1")
			if err != nil {
				t.Error(err)
				return
			}

			mu.Lock()
			holders++
			maxSeen = max(maxSeen, holders)
			mu.Unlock()

			time.Sleep(5 * time.Millisecond)

			mu.Lock()
			holders--
			mu.Unlock()

			unlock()
		}()
	}

	wg.Wait()

	assert.Equal(t, 1, maxSeen)
}

func TestRedisLockerTimesOut(t *testing.T) {
	client := startRedis(t)

	holder := NewRedisLocker(client)

	unlock, err := holder.Lock(context.Background(), "C2")
	require.NoError(t, err)

	defer unlock()

	waiter := NewRedisLocker(client)
	waiter.Wait = 100 * time.Millisecond

	_, err = waiter.Lock(context.Background(), "C2")
	require.ErrorIs(t, err, ErrLockTimeout)
}

func TestRedisLeaseExpires(t *testing.T) {
	client := startRedis(t)

	crashed := NewRedisLocker(client)
	crashed.TTL = 200 * time.Millisecond

	_, err := crashed.Lock(context.Background(), "C3")
	require.NoError(t, err)

	unlock, err := NewRedisLocker(client).Lock(context.Background(), "C3")
	require.NoError(t, err)
	unlock()
}
