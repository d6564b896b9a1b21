package store

import (
	"context"
	"sync"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

// newRedisStore starts a throwaway Redis container.
func newRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping redis container tests")
	}
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err, "failed to start redis container")
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	url, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	s, err := OpenRedisStore(ctx, url, WithKeyPrefix("test:"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRedisStore_TxnAndView(t *testing.T) {
	s := newRedisStore(t)
	ctx := context.Background()

	require.NoError(t, s.Txn(ctx, func(tx Tx) error {
		return tx.Put(Companies, "a", []byte("1"))
	}))

	require.NoError(t, s.View(ctx, func(tx Tx) error {
		v, found, err := tx.Get(Companies, "a")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, []byte("1"), v)
		return nil
	}))

	raw, err := s.client.Get(ctx, "test:companies:a").Result()
	require.NoError(t, err)
	assert.Equal(t, "1", raw)
}

func TestRedisStore_ConcurrentIncrement(t *testing.T) {
	s := newRedisStore(t)
	ctx := context.Background()

	const n = 10
	var (
		mu   sync.Mutex
		seen = make(map[uint64]bool)
		wg   sync.WaitGroup
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var v uint64
			err := s.Txn(ctx, func(tx Tx) error {
				var err error
				v, err = Increment(tx, "seq")
				return err
			})
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			seen[v] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Len(t, seen, n)
}

func TestRedisStore_RollbackOnError(t *testing.T) {
	s := newRedisStore(t)
	ctx := context.Background()

	err := s.Txn(ctx, func(tx Tx) error {
		_ = tx.Put(Proofs, "x", []byte("1"))
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)

	_, err = s.client.Get(ctx, "test:proofs:x").Result()
	assert.ErrorIs(t, err, redis.Nil)
}
