// Package membership maintains the bidirectional company/employee relation
// and the separate "administers" relation.
//
// Every edge is stored twice (company -> employees and employee -> companies)
// and both sides are written in the same store transaction, so readers never
// observe a half-applied edge.
package membership

import (
	"context"
	"fmt"
	"slices"

	e "github.com/gartstein/proofly/internal/proof/errors"
	"github.com/gartstein/proofly/internal/proof/store"
	"go.uber.org/zap"
)

// Index is the membership index.
type Index struct {
	store  store.Store
	logger *zap.Logger
}

// NewIndex constructs an Index over st.
func NewIndex(st store.Store, logger *zap.Logger) *Index {
	return &Index{
		store:  st,
		logger: logger.Named("membership"),
	}
}

// AddMembership links the employee to the company. Adding an existing edge
// is a no-op. Inactive companies reject new members.
func (x *Index) AddMembership(ctx context.Context, companyID, employeeID uint64) error {
	var added bool
	err := x.store.Txn(ctx, func(tx store.Tx) error {
		company, err := store.GetCompany(tx, companyID)
		if err != nil {
			return err
		}
		if !company.IsActive {
			return fmt.Errorf("company %d: %w", companyID, e.ErrCompanyInactive)
		}
		if _, err := store.GetEmployee(tx, employeeID); err != nil {
			return err
		}
		added, err = AddMembershipTx(tx, companyID, employeeID)
		return err
	})
	if err != nil {
		return fmt.Errorf("add membership: %w", err)
	}
	if added {
		x.logger.Info("Membership added",
			zap.Uint64("company_id", companyID),
			zap.Uint64("employee_id", employeeID),
		)
	}
	return nil
}

// RemoveMembership unlinks the employee from the company. Removing a missing
// edge is a no-op. Proofs already issued for the pair stay valid until they
// expire.
func (x *Index) RemoveMembership(ctx context.Context, companyID, employeeID uint64) error {
	var removed bool
	err := x.store.Txn(ctx, func(tx store.Tx) error {
		if err := requireBoth(tx, companyID, employeeID); err != nil {
			return err
		}
		var err error
		removed, err = RemoveMembershipTx(tx, companyID, employeeID)
		return err
	})
	if err != nil {
		return fmt.Errorf("remove membership: %w", err)
	}
	if removed {
		x.logger.Info("Membership removed",
			zap.Uint64("company_id", companyID),
			zap.Uint64("employee_id", employeeID),
		)
	}
	return nil
}

// GrantAdmin records that the employee administers the company. It does not
// imply membership.
func (x *Index) GrantAdmin(ctx context.Context, companyID, employeeID uint64) error {
	err := x.store.Txn(ctx, func(tx store.Tx) error {
		if err := requireBoth(tx, companyID, employeeID); err != nil {
			return err
		}
		_, err := GrantAdminTx(tx, companyID, employeeID)
		return err
	})
	if err != nil {
		return fmt.Errorf("grant admin: %w", err)
	}
	return nil
}

// RevokeAdmin removes the administers edge, if present.
func (x *Index) RevokeAdmin(ctx context.Context, companyID, employeeID uint64) error {
	err := x.store.Txn(ctx, func(tx store.Tx) error {
		if err := requireBoth(tx, companyID, employeeID); err != nil {
			return err
		}
		_, err := store.RemoveID(tx, store.EmployeeAdminCompanies, store.IDKey(employeeID), companyID)
		return err
	})
	if err != nil {
		return fmt.Errorf("revoke admin: %w", err)
	}
	return nil
}

// IsMember reports whether the employee belongs to the company.
func (x *Index) IsMember(ctx context.Context, companyID, employeeID uint64) (bool, error) {
	var member bool
	err := x.store.View(ctx, func(tx store.Tx) error {
		if err := requireBoth(tx, companyID, employeeID); err != nil {
			return err
		}
		var err error
		member, err = IsMemberTx(tx, companyID, employeeID)
		return err
	})
	return member, err
}

// IsAdmin reports whether the employee administers the company.
func (x *Index) IsAdmin(ctx context.Context, companyID, employeeID uint64) (bool, error) {
	var admin bool
	err := x.store.View(ctx, func(tx store.Tx) error {
		if err := requireBoth(tx, companyID, employeeID); err != nil {
			return err
		}
		ids, err := store.GetIDList(tx, store.EmployeeAdminCompanies, store.IDKey(employeeID))
		admin = slices.Contains(ids, companyID)
		return err
	})
	return admin, err
}

// ListCompaniesOf returns the employee's companies in the order they were
// joined.
func (x *Index) ListCompaniesOf(ctx context.Context, employeeID uint64) ([]uint64, error) {
	return x.list(ctx, store.EmployeeCompanies, employeeID, func(tx store.Tx) error {
		_, err := store.GetEmployee(tx, employeeID)
		return err
	})
}

// ListEmployeesOf returns the company's members in the order they joined.
func (x *Index) ListEmployeesOf(ctx context.Context, companyID uint64) ([]uint64, error) {
	return x.list(ctx, store.CompanyEmployees, companyID, func(tx store.Tx) error {
		_, err := store.GetCompany(tx, companyID)
		return err
	})
}

// ListAdministeredBy returns the companies the employee administers.
func (x *Index) ListAdministeredBy(ctx context.Context, employeeID uint64) ([]uint64, error) {
	return x.list(ctx, store.EmployeeAdminCompanies, employeeID, func(tx store.Tx) error {
		_, err := store.GetEmployee(tx, employeeID)
		return err
	})
}

func (x *Index) list(ctx context.Context, p store.Partition, id uint64, exists func(store.Tx) error) ([]uint64, error) {
	var ids []uint64
	err := x.store.View(ctx, func(tx store.Tx) error {
		if err := exists(tx); err != nil {
			return err
		}
		var err error
		ids, err = store.GetIDList(tx, p, store.IDKey(id))
		return err
	})
	if err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []uint64{}
	}
	return ids, nil
}

// AddMembershipTx writes both sides of the edge inside tx without existence
// checks. It reports whether the edge was new.
func AddMembershipTx(tx store.Tx, companyID, employeeID uint64) (bool, error) {
	addedEmployee, err := store.AppendID(tx, store.CompanyEmployees, store.IDKey(companyID), employeeID)
	if err != nil {
		return false, err
	}
	addedCompany, err := store.AppendID(tx, store.EmployeeCompanies, store.IDKey(employeeID), companyID)
	if err != nil {
		return false, err
	}
	return addedEmployee || addedCompany, nil
}

// RemoveMembershipTx deletes both sides of the edge inside tx.
func RemoveMembershipTx(tx store.Tx, companyID, employeeID uint64) (bool, error) {
	removedEmployee, err := store.RemoveID(tx, store.CompanyEmployees, store.IDKey(companyID), employeeID)
	if err != nil {
		return false, err
	}
	removedCompany, err := store.RemoveID(tx, store.EmployeeCompanies, store.IDKey(employeeID), companyID)
	if err != nil {
		return false, err
	}
	return removedEmployee || removedCompany, nil
}

// GrantAdminTx writes the administers edge inside tx.
func GrantAdminTx(tx store.Tx, companyID, employeeID uint64) (bool, error) {
	return store.AppendID(tx, store.EmployeeAdminCompanies, store.IDKey(employeeID), companyID)
}

// IsMemberTx reads membership inside tx.
func IsMemberTx(tx store.Tx, companyID, employeeID uint64) (bool, error) {
	ids, err := store.GetIDList(tx, store.EmployeeCompanies, store.IDKey(employeeID))
	if err != nil {
		return false, err
	}
	return slices.Contains(ids, companyID), nil
}

func requireBoth(tx store.Tx, companyID, employeeID uint64) error {
	if _, err := store.GetCompany(tx, companyID); err != nil {
		return err
	}
	_, err := store.GetEmployee(tx, employeeID)
	return err
}
