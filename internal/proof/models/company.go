// Package models defines the core domain models persisted by the proof
// service: companies, employees, proofs and verification outcomes.
package models

import (
	"time"
)

// Company is an organization employees can belong to.
type Company struct {
	// ID is the unique identifier for the company.
	ID uint64 `json:"id"`
	// Name is the company's display name.
	Name string `json:"name"`
	// AdminID is the employee who registered the company.
	AdminID uint64 `json:"admin_id"`
	// CreatedAt records when the company was registered.
	CreatedAt time.Time `json:"created_at"`
	// IsActive is false once the company is deactivated. Deactivation is
	// one-way; inactive companies stay readable for historical proofs.
	IsActive bool `json:"is_active"`
}

// Employee is a person identified by an externally authenticated principal.
type Employee struct {
	// ID is the unique identifier for the employee.
	ID uint64 `json:"id"`
	// Principal is the caller identity the employee authenticates as.
	Principal string `json:"principal"`
	// FullName is the employee's display name.
	FullName string `json:"full_name"`
	// AddedAt records when the employee was registered.
	AddedAt time.Time `json:"added_at"`
}
