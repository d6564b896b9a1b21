// Package events publishes domain events for proof and membership changes.
package events

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	CompanyCreated     EventType = "company_created"
	CompanyDeactivated EventType = "company_deactivated"
	EmployeeRegistered EventType = "employee_registered"
	MembershipAdded    EventType = "membership_added"
	MembershipRemoved  EventType = "membership_removed"
	ProofIssued        EventType = "proof_issued"
	ProofConsumed      EventType = "proof_consumed"
	ProofRejected      EventType = "proof_rejected"
)

// Event is the payload written to the event topic. Proof codes are never
// included.
type Event struct {
	ID         uuid.UUID `json:"id"`
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	CompanyID  uint64    `json:"company_id,omitempty"`
	EmployeeID uint64    `json:"employee_id,omitempty"`
	Reason     string    `json:"reason,omitempty"`
}

// NewEvent stamps a fresh event id.
func NewEvent(eventType EventType, at time.Time, companyID, employeeID uint64) Event {
	return Event{
		ID:         uuid.New(),
		Type:       eventType,
		OccurredAt: at.UTC(),
		CompanyID:  companyID,
		EmployeeID: employeeID,
	}
}

// WithReason attaches a rejection reason.
func (ev Event) WithReason(reason string) Event {
	ev.Reason = reason
	return ev
}
