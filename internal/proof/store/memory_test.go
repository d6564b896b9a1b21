package store

import (
	"context"
	"errors"
	"sync"
	"testing"

	e "github.com/gartstein/proofly/internal/proof/errors"
	"github.com/gartstein/proofly/internal/proof/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_TxnCommitsWrites(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	err := s.Txn(ctx, func(tx Tx) error {
		return tx.Put(Companies, "a", []byte("1"))
	})
	require.NoError(t, err)

	err = s.View(ctx, func(tx Tx) error {
		v, found, err := tx.Get(Companies, "a")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, []byte("1"), v)
		return nil
	})
	require.NoError(t, err)
}

func TestMemoryStore_TxnRollsBackOnError(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.Txn(ctx, func(tx Tx) error {
		require.NoError(t, tx.Put(Companies, "a", []byte("1")))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_ = s.View(ctx, func(tx Tx) error {
		_, found, err := tx.Get(Companies, "a")
		assert.NoError(t, err)
		assert.False(t, found, "write should be discarded")
		return nil
	})
}

func TestMemoryStore_ReadYourWritesAndDelete(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Txn(ctx, func(tx Tx) error {
		return tx.Put(Proofs, "code", []byte("x"))
	}))

	require.NoError(t, s.Txn(ctx, func(tx Tx) error {
		require.NoError(t, tx.Delete(Proofs, "code"))
		_, found, err := tx.Get(Proofs, "code")
		require.NoError(t, err)
		assert.False(t, found)

		require.NoError(t, tx.Put(Proofs, "other", []byte("y")))
		v, found, err := tx.Get(Proofs, "other")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, []byte("y"), v)
		return nil
	}))
}

func TestMemoryStore_ViewIsReadOnly(t *testing.T) {
	s := NewMemoryStore()
	err := s.View(context.Background(), func(tx Tx) error {
		return tx.Put(Companies, "a", []byte("1"))
	})
	assert.ErrorIs(t, err, e.ErrInvalidInput)
}

func TestMemoryStore_CancelledContext(t *testing.T) {
	s := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := s.Txn(ctx, func(tx Tx) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestIncrement_ConcurrentCallersGetDistinctValues(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	const n = 50
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
			assert.NoError(t, err)
			mu.Lock()
			seen[v] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, seen, n)
	for i := uint64(1); i <= n; i++ {
		assert.True(t, seen[i], "missing counter value %d", i)
	}
}

func TestIDList_AppendAndRemove(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Txn(ctx, func(tx Tx) error {
		changed, err := AppendID(tx, CompanyEmployees, IDKey(1), 7)
		require.NoError(t, err)
		assert.True(t, changed)

		changed, err = AppendID(tx, CompanyEmployees, IDKey(1), 7)
		require.NoError(t, err)
		assert.False(t, changed, "duplicate append is a no-op")

		_, err = AppendID(tx, CompanyEmployees, IDKey(1), 3)
		require.NoError(t, err)

		ids, err := GetIDList(tx, CompanyEmployees, IDKey(1))
		require.NoError(t, err)
		assert.Equal(t, []uint64{7, 3}, ids, "insertion order is kept")

		changed, err = RemoveID(tx, CompanyEmployees, IDKey(1), 7)
		require.NoError(t, err)
		assert.True(t, changed)

		changed, err = RemoveID(tx, CompanyEmployees, IDKey(1), 7)
		require.NoError(t, err)
		assert.False(t, changed)
		return nil
	}))
}

func TestRecords_RoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	company := &models.Company{ID: 4, Name: "Acme", AdminID: 2, IsActive: true}
	require.NoError(t, s.Txn(ctx, func(tx Tx) error {
		return PutCompany(tx, company)
	}))

	_ = s.View(ctx, func(tx Tx) error {
		got, err := GetCompany(tx, 4)
		require.NoError(t, err)
		assert.Equal(t, company, got)

		_, err = GetCompany(tx, 5)
		assert.ErrorIs(t, err, e.ErrNotFound)

		_, err = GetEmployee(tx, 1)
		assert.ErrorIs(t, err, e.ErrNotFound)

		_, err = GetProof(tx, "missing")
		assert.ErrorIs(t, err, e.ErrNotFound)
		return nil
	})
}

func TestGetJSON_CorruptValue(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Txn(ctx, func(tx Tx) error {
		return tx.Put(Companies, IDKey(1), []byte("{not json"))
	}))

	_ = s.View(ctx, func(tx Tx) error {
		_, err := GetCompany(tx, 1)
		assert.ErrorIs(t, err, e.ErrStoreUnavailable)
		return nil
	})
}

func TestIDKey_SortsNumerically(t *testing.T) {
	assert.Less(t, IDKey(9), IDKey(10))
	assert.Len(t, IDKey(1), 20)
}
