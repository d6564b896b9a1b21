package registry

import (
	"context"
	"errors"
	"testing"
	"time"

	e "github.com/gartstein/proofly/internal/proof/errors"
	"github.com/gartstein/proofly/internal/proof/idgen"
	"github.com/gartstein/proofly/internal/proof/membership"
	"github.com/gartstein/proofly/internal/proof/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var fixedNow = time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

// failingIDs simulates an allocator whose backing counter is unreachable.
type failingIDs struct{}

func (failingIDs) NextIDTx(store.Tx) (uint64, error) {
	return 0, e.ErrStoreUnavailable
}

func newRegistry(t *testing.T) (*Registry, store.Store) {
	st := store.NewMemoryStore()
	logger := zaptest.NewLogger(t)
	gen := idgen.NewGenerator(st, nil, 0, logger)
	return NewRegistry(st, gen, logger, WithClock(func() time.Time { return fixedNow })), st
}

func TestRegistry_CreateEmployee(t *testing.T) {
	r, _ := newRegistry(t)
	ctx := context.Background()

	tests := []struct {
		name          string
		principal     string
		expectedError error
	}{
		{name: "new principal", principal: "alice"},
		{name: "second principal", principal: "bob"},
		{name: "duplicate principal", principal: "alice", expectedError: e.ErrAlreadyExists},
		{name: "padded principal", principal: "  bob ", expectedError: e.ErrInvalidInput},
		{name: "empty principal", principal: "   ", expectedError: e.ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			emp, err := r.CreateEmployee(ctx, tt.principal, "Full Name")
			if tt.expectedError != nil {
				assert.ErrorIs(t, err, tt.expectedError)
				assert.Nil(t, emp)
				return
			}
			require.NoError(t, err)
			assert.NotZero(t, emp.ID)
			assert.Equal(t, fixedNow, emp.AddedAt)

			got, err := r.GetEmployee(ctx, emp.ID)
			require.NoError(t, err)
			assert.Equal(t, emp, got)
		})
	}
}

func TestRegistry_CreateCompanyGrantsAdmin(t *testing.T) {
	r, st := newRegistry(t)
	ctx := context.Background()

	admin, err := r.CreateEmployee(ctx, "alice", "Alice")
	require.NoError(t, err)

	company, err := r.CreateCompany(ctx, "Acme", admin.ID)
	require.NoError(t, err)
	assert.True(t, company.IsActive)
	assert.Equal(t, admin.ID, company.AdminID)
	assert.NotEqual(t, admin.ID, company.ID, "companies and employees share one id space")

	idx := membership.NewIndex(st, zaptest.NewLogger(t))
	isAdmin, err := idx.IsAdmin(ctx, company.ID, admin.ID)
	require.NoError(t, err)
	assert.True(t, isAdmin)

	isMember, err := idx.IsMember(ctx, company.ID, admin.ID)
	require.NoError(t, err)
	assert.False(t, isMember, "creating a company does not add the admin as a member")
}

func TestRegistry_CreateCompanyValidation(t *testing.T) {
	r, _ := newRegistry(t)
	ctx := context.Background()

	_, err := r.CreateCompany(ctx, "Acme", 404)
	assert.ErrorIs(t, err, e.ErrNotFound)

	admin, err := r.CreateEmployee(ctx, "alice", "Alice")
	require.NoError(t, err)
	_, err = r.CreateCompany(ctx, "", admin.ID)
	assert.ErrorIs(t, err, e.ErrInvalidInput)
}

func TestRegistry_FailedAllocationLeavesNoRecord(t *testing.T) {
	st := store.NewMemoryStore()
	r := NewRegistry(st, failingIDs{}, zaptest.NewLogger(t))
	ctx := context.Background()

	_, err := r.CreateEmployee(ctx, "alice", "Alice")
	assert.ErrorIs(t, err, e.ErrStoreUnavailable)

	_, err = r.ResolvePrincipal(ctx, "alice")
	assert.ErrorIs(t, err, e.ErrNotFound, "principal must not be reserved by a failed create")
}

func TestRegistry_DeactivateCompany(t *testing.T) {
	r, _ := newRegistry(t)
	ctx := context.Background()

	admin, err := r.CreateEmployee(ctx, "alice", "Alice")
	require.NoError(t, err)
	company, err := r.CreateCompany(ctx, "Acme", admin.ID)
	require.NoError(t, err)

	changed, err := r.DeactivateCompany(ctx, company.ID)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = r.DeactivateCompany(ctx, company.ID)
	require.NoError(t, err)
	assert.False(t, changed, "deactivation is idempotent")

	got, err := r.GetCompany(ctx, company.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	assert.Equal(t, "Acme", got.Name, "inactive companies remain readable")

	_, err = r.DeactivateCompany(ctx, 999)
	assert.ErrorIs(t, err, e.ErrNotFound)
}

func TestRegistry_ResolvePrincipal(t *testing.T) {
	r, _ := newRegistry(t)
	ctx := context.Background()

	// Burn a few ids so the stored id has leading zeros and a non-trivial value.
	for _, p := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		_, err := r.CreateEmployee(ctx, p, "")
		require.NoError(t, err)
	}
	emp, err := r.CreateEmployee(ctx, "alice", "Alice")
	require.NoError(t, err)

	got, err := r.ResolvePrincipal(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, emp.ID, got.ID)
	assert.Equal(t, "Alice", got.FullName)

	_, err = r.ResolvePrincipal(ctx, "mallory")
	assert.True(t, errors.Is(err, e.ErrNotFound))
}

func TestRegistry_PaddedPrincipalIsNeverStored(t *testing.T) {
	r, _ := newRegistry(t)
	ctx := context.Background()

	for _, p := range []string{" alice ", "alice\t", "\nalice"} {
		_, err := r.CreateEmployee(ctx, p, "Alice")
		assert.ErrorIs(t, err, e.ErrInvalidInput, "%q", p)
		_, err = r.ResolvePrincipal(ctx, p)
		assert.ErrorIs(t, err, e.ErrNotFound, "%q", p)
	}

	// The bare principal is still free and round-trips.
	emp, err := r.CreateEmployee(ctx, "alice", "Alice")
	require.NoError(t, err)
	got, err := r.ResolvePrincipal(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, emp.ID, got.ID)
}

func TestRegistry_GetMissing(t *testing.T) {
	r, _ := newRegistry(t)
	ctx := context.Background()

	_, err := r.GetCompany(ctx, 1)
	assert.ErrorIs(t, err, e.ErrNotFound)
	_, err = r.GetEmployee(ctx, 1)
	assert.ErrorIs(t, err, e.ErrNotFound)
}
