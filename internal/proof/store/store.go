// Package store defines the durable keyed store every proof component is
// built on, plus the in-memory and Redis backends. The gorm backend lives in
// package db.
//
// Error contract:
//   - Tx.Get reports absence with found=false, never with an error.
//   - Infrastructure failures are wrapped with errors.ErrStoreUnavailable.
//   - Errors returned by a transaction callback are passed through unchanged
//     and roll the transaction back.
package store

import (
	"context"
	"fmt"

	e "github.com/gartstein/proofly/internal/proof/errors"
)

// Partition is a named logical key space.
type Partition string

const (
	CompanyEmployees       Partition = "company_employees"
	EmployeeCompanies      Partition = "employee_companies"
	EmployeeAdminCompanies Partition = "employee_admin_companies"
	Companies              Partition = "companies"
	Employees              Partition = "employees"
	Proofs                 Partition = "proofs"
	Principals             Partition = "principals"
	Counters               Partition = "counters"
)

// Tx is a view of the store inside a transaction.
type Tx interface {
	Get(p Partition, key string) ([]byte, bool, error)
	Put(p Partition, key string, value []byte) error
	Delete(p Partition, key string) error
}

// Store is a partitioned key-value map with atomic multi-key transactions.
type Store interface {
	// Txn runs fn as one indivisible read-modify-write unit. Backends that
	// use optimistic concurrency may run fn more than once.
	Txn(ctx context.Context, fn func(tx Tx) error) error
	// View runs fn against a read-only snapshot. Writes fail.
	View(ctx context.Context, fn func(tx Tx) error) error
	Close() error
}

// errReadOnly is returned by writes attempted inside View.
var errReadOnly = fmt.Errorf("write in read-only view: %w", e.ErrInvalidInput)
