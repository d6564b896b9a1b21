// Package registry owns company and employee records.
package registry

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	e "github.com/gartstein/proofly/internal/proof/errors"
	"github.com/gartstein/proofly/internal/proof/membership"
	"github.com/gartstein/proofly/internal/proof/models"
	"github.com/gartstein/proofly/internal/proof/store"
	"go.uber.org/zap"
)

// IDAllocator hands out entity identifiers inside a store transaction.
type IDAllocator interface {
	NextIDTx(tx store.Tx) (uint64, error)
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock overrides the clock used for created_at/added_at.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// Registry creates and reads companies and employees.
type Registry struct {
	store  store.Store
	ids    IDAllocator
	now    func() time.Time
	logger *zap.Logger
}

// NewRegistry constructs a Registry.
func NewRegistry(st store.Store, ids IDAllocator, logger *zap.Logger, opts ...Option) *Registry {
	r := &Registry{
		store:  st,
		ids:    ids,
		now:    time.Now,
		logger: logger.Named("registry"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CreateEmployee registers a new employee for principal. Principals are
// unique and stored exactly as given, so a padded principal is rejected
// rather than normalized.
func (r *Registry) CreateEmployee(ctx context.Context, principal, fullName string) (*models.Employee, error) {
	if strings.TrimSpace(principal) == "" {
		return nil, fmt.Errorf("%w: empty principal", e.ErrInvalidInput)
	}
	if strings.TrimSpace(principal) != principal {
		return nil, fmt.Errorf("%w: principal %q has surrounding whitespace", e.ErrInvalidInput, principal)
	}

	var emp *models.Employee
	err := r.store.Txn(ctx, func(tx store.Tx) error {
		_, taken, err := tx.Get(store.Principals, principal)
		if err != nil {
			return err
		}
		if taken {
			return fmt.Errorf("principal %q: %w", principal, e.ErrAlreadyExists)
		}

		id, err := r.ids.NextIDTx(tx)
		if err != nil {
			return err
		}
		emp = &models.Employee{
			ID:        id,
			Principal: principal,
			FullName:  fullName,
			AddedAt:   r.now().UTC(),
		}
		if err := store.PutEmployee(tx, emp); err != nil {
			return err
		}
		return tx.Put(store.Principals, principal, []byte(store.IDKey(id)))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create employee: %w", err)
	}

	r.logger.Info("Employee registered", zap.Uint64("employee_id", emp.ID))
	return emp, nil
}

// CreateCompany registers a company administered by adminID. The admin edge
// is written in the same transaction as the company record.
func (r *Registry) CreateCompany(ctx context.Context, name string, adminID uint64) (*models.Company, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: empty company name", e.ErrInvalidInput)
	}

	var company *models.Company
	err := r.store.Txn(ctx, func(tx store.Tx) error {
		if _, err := store.GetEmployee(tx, adminID); err != nil {
			return err
		}
		id, err := r.ids.NextIDTx(tx)
		if err != nil {
			return err
		}
		company = &models.Company{
			ID:        id,
			Name:      name,
			AdminID:   adminID,
			CreatedAt: r.now().UTC(),
			IsActive:  true,
		}
		if err := store.PutCompany(tx, company); err != nil {
			return err
		}
		_, err = membership.GrantAdminTx(tx, id, adminID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create company: %w", err)
	}

	r.logger.Info("Company created",
		zap.Uint64("company_id", company.ID),
		zap.Uint64("admin_id", adminID),
	)
	return company, nil
}

// GetCompany returns the company or ErrNotFound.
func (r *Registry) GetCompany(ctx context.Context, id uint64) (*models.Company, error) {
	var company *models.Company
	err := r.store.View(ctx, func(tx store.Tx) error {
		var err error
		company, err = store.GetCompany(tx, id)
		return err
	})
	return company, err
}

// GetEmployee returns the employee or ErrNotFound.
func (r *Registry) GetEmployee(ctx context.Context, id uint64) (*models.Employee, error) {
	var emp *models.Employee
	err := r.store.View(ctx, func(tx store.Tx) error {
		var err error
		emp, err = store.GetEmployee(tx, id)
		return err
	})
	return emp, err
}

// DeactivateCompany marks the company inactive. Deactivating twice is a
// no-op. It reports whether the company changed state.
func (r *Registry) DeactivateCompany(ctx context.Context, id uint64) (bool, error) {
	var changed bool
	err := r.store.Txn(ctx, func(tx store.Tx) error {
		changed = false
		company, err := store.GetCompany(tx, id)
		if err != nil {
			return err
		}
		if !company.IsActive {
			return nil
		}
		company.IsActive = false
		changed = true
		return store.PutCompany(tx, company)
	})
	if err != nil {
		return false, fmt.Errorf("failed to deactivate company: %w", err)
	}
	if changed {
		r.logger.Info("Company deactivated", zap.Uint64("company_id", id))
	}
	return changed, nil
}

// ResolvePrincipal maps an authenticated principal to its employee record.
func (r *Registry) ResolvePrincipal(ctx context.Context, principal string) (*models.Employee, error) {
	var emp *models.Employee
	err := r.store.View(ctx, func(tx store.Tx) error {
		raw, found, err := tx.Get(store.Principals, principal)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("principal %q: %w", principal, e.ErrNotFound)
		}
		id, err := strconv.ParseUint(string(raw), 10, 64)
		if err != nil {
			return fmt.Errorf("decode principal %q: %v: %w", principal, err, e.ErrStoreUnavailable)
		}
		emp, err = store.GetEmployee(tx, id)
		return err
	})
	return emp, err
}
