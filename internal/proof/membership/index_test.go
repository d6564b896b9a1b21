package membership

import (
	"context"
	"fmt"
	"slices"
	"testing"
	"time"

	e "github.com/gartstein/proofly/internal/proof/errors"
	"github.com/gartstein/proofly/internal/proof/models"
	"github.com/gartstein/proofly/internal/proof/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/sync/errgroup"
)

// seed writes companies and employees directly to the store.
func seed(t *testing.T, st store.Store, companies []*models.Company, employees []*models.Employee) {
	t.Helper()
	err := st.Txn(context.Background(), func(tx store.Tx) error {
		for _, c := range companies {
			if err := store.PutCompany(tx, c); err != nil {
				return err
			}
		}
		for _, emp := range employees {
			if err := store.PutEmployee(tx, emp); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
}

func newIndex(t *testing.T) (*Index, store.Store) {
	st := store.NewMemoryStore()
	now := time.Now()
	seed(t, st,
		[]*models.Company{
			{ID: 1, Name: "Acme", AdminID: 10, CreatedAt: now, IsActive: true},
			{ID: 2, Name: "Globex", AdminID: 10, CreatedAt: now, IsActive: true},
			{ID: 3, Name: "Closed", AdminID: 10, CreatedAt: now, IsActive: false},
		},
		[]*models.Employee{
			{ID: 10, Principal: "alice", AddedAt: now},
			{ID: 11, Principal: "bob", AddedAt: now},
		},
	)
	return NewIndex(st, zaptest.NewLogger(t)), st
}

// assertSymmetric checks both directions of the relation agree for every pair.
func assertSymmetric(t *testing.T, x *Index, companies, employees []uint64) {
	t.Helper()
	ctx := context.Background()
	for _, c := range companies {
		members, err := x.ListEmployeesOf(ctx, c)
		require.NoError(t, err)
		for _, emp := range employees {
			memberOf, err := x.ListCompaniesOf(ctx, emp)
			require.NoError(t, err)
			assert.Equal(t, slices.Contains(members, emp), slices.Contains(memberOf, c),
				"relation asymmetric for company %d employee %d", c, emp)
		}
	}
}

func TestIndex_AddMembership(t *testing.T) {
	x, _ := newIndex(t)
	ctx := context.Background()

	require.NoError(t, x.AddMembership(ctx, 1, 10))
	require.NoError(t, x.AddMembership(ctx, 2, 10))
	require.NoError(t, x.AddMembership(ctx, 1, 10), "re-adding is a no-op")

	companies, err := x.ListCompaniesOf(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2}, companies)

	employees, err := x.ListEmployeesOf(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []uint64{10}, employees)

	member, err := x.IsMember(ctx, 1, 10)
	require.NoError(t, err)
	assert.True(t, member)

	member, err = x.IsMember(ctx, 1, 11)
	require.NoError(t, err)
	assert.False(t, member)

	assertSymmetric(t, x, []uint64{1, 2}, []uint64{10, 11})
}

func TestIndex_RemoveMembership(t *testing.T) {
	x, _ := newIndex(t)
	ctx := context.Background()

	require.NoError(t, x.AddMembership(ctx, 1, 10))
	require.NoError(t, x.AddMembership(ctx, 1, 11))
	require.NoError(t, x.RemoveMembership(ctx, 1, 10))
	require.NoError(t, x.RemoveMembership(ctx, 1, 10), "removing twice is a no-op")

	employees, err := x.ListEmployeesOf(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []uint64{11}, employees)

	companies, err := x.ListCompaniesOf(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, companies)
	assert.NotNil(t, companies, "empty lists are returned as empty slices")

	assertSymmetric(t, x, []uint64{1, 2}, []uint64{10, 11})
}

func TestIndex_MissingReferences(t *testing.T) {
	x, st := newIndex(t)
	ctx := context.Background()

	tests := []struct {
		name string
		op   func() error
	}{
		{"add unknown company", func() error { return x.AddMembership(ctx, 99, 10) }},
		{"add unknown employee", func() error { return x.AddMembership(ctx, 1, 99) }},
		{"remove unknown company", func() error { return x.RemoveMembership(ctx, 99, 10) }},
		{"grant admin unknown employee", func() error { return x.GrantAdmin(ctx, 1, 99) }},
		{"revoke admin unknown company", func() error { return x.RevokeAdmin(ctx, 99, 10) }},
		{"is member unknown company", func() error { _, err := x.IsMember(ctx, 99, 10); return err }},
		{"list companies unknown employee", func() error { _, err := x.ListCompaniesOf(ctx, 99); return err }},
		{"list employees unknown company", func() error { _, err := x.ListEmployeesOf(ctx, 99); return err }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.op(), e.ErrNotFound)
		})
	}

	// No records were created as a side effect.
	_ = st.View(ctx, func(tx store.Tx) error {
		_, err := store.GetCompany(tx, 99)
		assert.ErrorIs(t, err, e.ErrNotFound)
		_, err = store.GetEmployee(tx, 99)
		assert.ErrorIs(t, err, e.ErrNotFound)
		return nil
	})
}

func TestIndex_InactiveCompanyRejectsNewMembers(t *testing.T) {
	x, _ := newIndex(t)
	err := x.AddMembership(context.Background(), 3, 10)
	assert.ErrorIs(t, err, e.ErrCompanyInactive)
}

func TestIndex_AdminIsIndependentOfMembership(t *testing.T) {
	x, _ := newIndex(t)
	ctx := context.Background()

	require.NoError(t, x.GrantAdmin(ctx, 1, 11))
	require.NoError(t, x.GrantAdmin(ctx, 1, 11))

	admin, err := x.IsAdmin(ctx, 1, 11)
	require.NoError(t, err)
	assert.True(t, admin)

	member, err := x.IsMember(ctx, 1, 11)
	require.NoError(t, err)
	assert.False(t, member, "admin does not imply membership")

	administered, err := x.ListAdministeredBy(ctx, 11)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1}, administered)

	require.NoError(t, x.RevokeAdmin(ctx, 1, 11))
	admin, err = x.IsAdmin(ctx, 1, 11)
	require.NoError(t, err)
	assert.False(t, admin)
}

func TestIndex_ConcurrentDisjointPairsStaySymmetric(t *testing.T) {
	st := store.NewMemoryStore()
	now := time.Now()

	var (
		companies   []*models.Company
		employees   []*models.Employee
		companyIDs  []uint64
		employeeIDs []uint64
	)
	for i := uint64(1); i <= 8; i++ {
		companies = append(companies, &models.Company{ID: i, Name: fmt.Sprintf("c%d", i), CreatedAt: now, IsActive: true})
		companyIDs = append(companyIDs, i)
	}
	for i := uint64(100); i < 116; i++ {
		employees = append(employees, &models.Employee{ID: i, Principal: fmt.Sprintf("p%d", i), AddedAt: now})
		employeeIDs = append(employeeIDs, i)
	}
	seed(t, st, companies, employees)
	x := NewIndex(st, zaptest.NewLogger(t))
	ctx := context.Background()

	var g errgroup.Group
	for _, c := range companyIDs {
		for _, emp := range employeeIDs {
			c, emp := c, emp
			g.Go(func() error {
				if err := x.AddMembership(ctx, c, emp); err != nil {
					return err
				}
				if (c+emp)%3 == 0 {
					return x.RemoveMembership(ctx, c, emp)
				}
				return nil
			})
		}
	}
	require.NoError(t, g.Wait())

	assertSymmetric(t, x, companyIDs, employeeIDs)

	for _, c := range companyIDs {
		for _, emp := range employeeIDs {
			member, err := x.IsMember(ctx, c, emp)
			require.NoError(t, err)
			assert.Equal(t, (c+emp)%3 != 0, member)
		}
	}
}
