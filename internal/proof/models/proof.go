package models

import (
	"time"

	e "github.com/gartstein/proofly/internal/proof/errors"
)

// ProofState is the observable lifecycle state of a proof.
type ProofState string

const (
	ProofIssued   ProofState = "ISSUED"
	ProofConsumed ProofState = "CONSUMED"
	ProofExpired  ProofState = "EXPIRED"
)

// Proof is a single-use, time-boxed code asserting that an employee belongs
// to a company.
type Proof struct {
	Code       string    `json:"code"`
	CompanyID  uint64    `json:"company_id"`
	EmployeeID uint64    `json:"employee_id"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	IsUsed     bool      `json:"is_used"`
}

// IsExpired reports whether now is past the proof's expiry.
func (p *Proof) IsExpired(now time.Time) bool {
	return now.After(p.ExpiresAt)
}

// State derives the proof state at now. Expiry wins over consumption.
func (p *Proof) State(now time.Time) ProofState {
	switch {
	case p.IsExpired(now):
		return ProofExpired
	case p.IsUsed:
		return ProofConsumed
	default:
		return ProofIssued
	}
}

// InvalidReason explains why a verification was rejected.
type InvalidReason string

const (
	ReasonNone        InvalidReason = ""
	ReasonNotFound    InvalidReason = "NOT_FOUND"
	ReasonExpired     InvalidReason = "EXPIRED"
	ReasonAlreadyUsed InvalidReason = "ALREADY_USED"
)

// VerifyResult is the outcome of presenting a proof code.
type VerifyResult struct {
	Valid      bool          `json:"valid"`
	Reason     InvalidReason `json:"reason,omitempty"`
	CompanyID  uint64        `json:"company_id,omitempty"`
	EmployeeID uint64        `json:"employee_id,omitempty"`
}

// Valid builds a successful verification result.
func Valid(companyID, employeeID uint64) VerifyResult {
	return VerifyResult{Valid: true, CompanyID: companyID, EmployeeID: employeeID}
}

// Invalid builds a rejected verification result.
func Invalid(reason InvalidReason) VerifyResult {
	return VerifyResult{Reason: reason}
}

// Err returns the sentinel error matching the rejection reason, or nil for
// a valid result.
func (r VerifyResult) Err() error {
	switch r.Reason {
	case ReasonNone:
		return nil
	case ReasonNotFound:
		return e.ErrNotFound
	case ReasonExpired:
		return e.ErrExpired
	case ReasonAlreadyUsed:
		return e.ErrAlreadyUsed
	default:
		return e.ErrInvalidInput
	}
}

// Outcome is a short label for metrics and logs.
func (r VerifyResult) Outcome() string {
	if r.Valid {
		return "valid"
	}
	return string(r.Reason)
}
