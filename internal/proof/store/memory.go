package store

import (
	"context"
	"sync"
)

// MemoryStore keeps every partition in process memory behind one mutex.
// It is intended for tests and single-instance development.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[Partition]map[string][]byte
}

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[Partition]map[string][]byte),
	}
}

// Txn runs fn under the write lock. Writes are staged and applied only when
// fn succeeds.
func (s *MemoryStore) Txn(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memoryTx{store: s, staged: make(map[stagedKey]stagedWrite)}
	if err := fn(tx); err != nil {
		return err
	}
	for k, w := range tx.staged {
		part := s.data[k.partition]
		if w.deleted {
			delete(part, k.key)
			continue
		}
		if part == nil {
			part = make(map[string][]byte)
			s.data[k.partition] = part
		}
		part[k.key] = w.value
	}
	return nil
}

// View runs fn under the read lock.
func (s *MemoryStore) View(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&memoryTx{store: s, readOnly: true})
}

// Close is a no-op for MemoryStore.
func (s *MemoryStore) Close() error {
	return nil
}

type stagedKey struct {
	partition Partition
	key       string
}

type stagedWrite struct {
	value   []byte
	deleted bool
}

type memoryTx struct {
	store    *MemoryStore
	staged   map[stagedKey]stagedWrite
	readOnly bool
}

func (t *memoryTx) Get(p Partition, key string) ([]byte, bool, error) {
	if w, ok := t.staged[stagedKey{p, key}]; ok {
		if w.deleted {
			return nil, false, nil
		}
		return clone(w.value), true, nil
	}
	v, ok := t.store.data[p][key]
	if !ok {
		return nil, false, nil
	}
	return clone(v), true, nil
}

func (t *memoryTx) Put(p Partition, key string, value []byte) error {
	if t.readOnly {
		return errReadOnly
	}
	t.staged[stagedKey{p, key}] = stagedWrite{value: clone(value)}
	return nil
}

func (t *memoryTx) Delete(p Partition, key string) error {
	if t.readOnly {
		return errReadOnly
	}
	t.staged[stagedKey{p, key}] = stagedWrite{deleted: true}
	return nil
}

func clone(b []byte) []byte {
	return append([]byte(nil), b...)
}
