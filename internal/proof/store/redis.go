package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/cenkalti/backoff/v4"
	e "github.com/gartstein/proofly/internal/proof/errors"
	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "proofly:"

// RedisStore is a Redis-backed Store. Transactions use WATCH/MULTI and are
// retried with backoff when a watched key changes underneath them.
type RedisStore struct {
	client     *redis.Client
	prefix     string
	maxRetries uint64
}

// RedisStoreOption configures a RedisStore instance.
type RedisStoreOption func(*RedisStore)

// WithKeyPrefix namespaces every key written by the store.
func WithKeyPrefix(prefix string) RedisStoreOption {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

// WithMaxRetries bounds optimistic transaction retries.
func WithMaxRetries(n uint64) RedisStoreOption {
	return func(s *RedisStore) {
		s.maxRetries = n
	}
}

// NewRedisStore wraps an existing client. The client lifecycle is owned by
// the store from here on.
func NewRedisStore(client *redis.Client, opts ...RedisStoreOption) *RedisStore {
	s := &RedisStore{
		client:     client,
		prefix:     defaultRedisPrefix,
		maxRetries: 10,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// OpenRedisStore parses url, pings the server and returns a ready store.
func OpenRedisStore(ctx context.Context, url string, opts ...RedisStoreOption) (*RedisStore, error) {
	redisOpts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	client := redis.NewClient(redisOpts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %v: %w", err, e.ErrStoreUnavailable)
	}
	return NewRedisStore(client, opts...), nil
}

func (s *RedisStore) key(p Partition, key string) string {
	return s.prefix + string(p) + ":" + key
}

// Txn runs fn inside a WATCH block. Every key read through the Tx is watched
// before it is read, and buffered writes are applied in a single MULTI/EXEC.
func (s *RedisStore) Txn(ctx context.Context, fn func(tx Tx) error) error {
	var fnErr error
	op := func() error {
		fnErr = nil
		err := s.client.Watch(ctx, func(rtx *redis.Tx) error {
			tx := &redisTx{ctx: ctx, store: s, rtx: rtx, writes: make(map[string]redisWrite)}
			if err := fn(tx); err != nil {
				fnErr = err
				return err
			}
			if len(tx.order) == 0 {
				return nil
			}
			_, err := rtx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				for _, k := range tx.order {
					w := tx.writes[k]
					if w.deleted {
						pipe.Del(ctx, k)
					} else {
						pipe.Set(ctx, k, w.value, 0)
					}
				}
				return nil
			})
			return err
		})
		switch {
		case fnErr != nil:
			return backoff.Permanent(fnErr)
		case errors.Is(err, redis.TxFailedErr):
			return err
		case err != nil:
			return backoff.Permanent(fmt.Errorf("redis transaction: %v: %w", err, e.ErrStoreUnavailable))
		}
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), s.maxRetries), ctx)
	err := backoff.Retry(op, policy)
	if errors.Is(err, redis.TxFailedErr) {
		return fmt.Errorf("redis transaction contention: %w", e.ErrStoreUnavailable)
	}
	return err
}

// View reads directly without watching keys.
func (s *RedisStore) View(ctx context.Context, fn func(tx Tx) error) error {
	return fn(&redisTx{ctx: ctx, store: s, readOnly: true})
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

type redisWrite struct {
	value   []byte
	deleted bool
}

type redisTx struct {
	ctx      context.Context
	store    *RedisStore
	rtx      *redis.Tx
	writes   map[string]redisWrite
	order    []string
	readOnly bool
}

func (t *redisTx) Get(p Partition, key string) ([]byte, bool, error) {
	k := t.store.key(p, key)
	if w, ok := t.writes[k]; ok {
		if w.deleted {
			return nil, false, nil
		}
		return clone(w.value), true, nil
	}

	var cmd *redis.StringCmd
	if t.readOnly {
		cmd = t.store.client.Get(t.ctx, k)
	} else {
		if err := t.rtx.Watch(t.ctx, k).Err(); err != nil {
			return nil, false, fmt.Errorf("redis watch %s: %v: %w", k, err, e.ErrStoreUnavailable)
		}
		cmd = t.rtx.Get(t.ctx, k)
	}
	v, err := cmd.Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %v: %w", k, err, e.ErrStoreUnavailable)
	}
	return v, true, nil
}

func (t *redisTx) Put(p Partition, key string, value []byte) error {
	return t.stage(p, key, redisWrite{value: clone(value)})
}

func (t *redisTx) Delete(p Partition, key string) error {
	return t.stage(p, key, redisWrite{deleted: true})
}

func (t *redisTx) stage(p Partition, key string, w redisWrite) error {
	if t.readOnly {
		return errReadOnly
	}
	k := t.store.key(p, key)
	if _, seen := t.writes[k]; !seen {
		t.order = append(t.order, k)
	}
	t.writes[k] = w
	return nil
}
