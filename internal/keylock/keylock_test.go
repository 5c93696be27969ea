package keylock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	locker := NewKeyedMutex()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		active  int
		maxSeen int
	)

	for range 20 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			unlock, err := locker.Lock(context.Background(), "C1")
			if err != nil {
				t.Error(err)
				return
			}

			mu.Lock()
			active++
			maxSeen = max(maxSeen, active)
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()

			unlock()
		}()
	}

	wg.Wait()

	require.Equal(t, 1, maxSeen)
	require.Zero(t, locker.Len())
}

func TestKeyedMutexIndependentKeys(t *testing.T) {
	locker := NewKeyedMutex()

	unlockA, err := locker.Lock(context.Background(), "A")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	unlockB, err := locker.Lock(ctx, "B")
	require.NoError(t, err)
	require.Equal(t, 2, locker.Len())

	unlockA()
	unlockB()
	require.Zero(t, locker.Len())
}

func TestKeyedMutexHonoursContext(t *testing.T) {
	locker := NewKeyedMutex()

	unlock, err := locker.Lock(context.Background(), "C1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = locker.Lock(ctx, "C1")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock()
	require.Zero(t, locker.Len())
}

type failingLocker struct{ err error }

func (f failingLocker) Lock(context.Context, string) (func(), error) {
	return nil, f.err
}

func TestChainReleasesOnFailure(t *testing.T) {
	local := NewKeyedMutex()
	errRemote := errors.New("remote down")

	_, err := Chain{local, failingLocker{err: errRemote}}.Lock(context.Background(), "C1")
	require.ErrorIs(t, err, errRemote)
	require.Zero(t, local.Len())

	unlock, err := Chain{local}.Lock(context.Background(), "C1")
	require.NoError(t, err)
	require.Equal(t, 1, local.Len())

	unlock()
	require.Zero(t, local.Len())
}

func TestReleaseScriptIsDefined(t *testing.T) {
	require.NotNil(t, releaseScript)
}

func TestRedisLockerUnreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	locker := &RedisLocker{
		Client:        client,
		TTL:           time.Second,
		Wait:          time.Second,
		RetryInterval: 10 * time.Millisecond,
		KeyPrefix:     defaultKeyPrefix,
	}

	_, err := locker.Lock(context.Background(), "C1")
	require.Error(t, err)
}

func TestNewRedisLockerUsesConfig(t *testing.T) {
	locker := NewRedisLocker(nil)

	require.Equal(t, 5*time.Second, locker.TTL)
	require.Equal(t, 10*time.Second, locker.Wait)
	require.NotNil(t, locker.CircuitBreaker)
}
