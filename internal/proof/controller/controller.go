// Package controller implements the proof service layer: it resolves the
// caller, authorizes against the membership index, delegates to the ledger
// and registry, and emits domain events.
package controller

import (
	"context"
	"errors"
	"fmt"
	"time"

	e "github.com/gartstein/proofly/internal/proof/errors"
	"github.com/gartstein/proofly/internal/proof/events"
	"github.com/gartstein/proofly/internal/proof/metrics"
	"github.com/gartstein/proofly/internal/proof/models"
	"go.uber.org/zap"
)

type EventProducer interface {
	Produce(event events.Event)
}

// Registry resolves callers and owns company/employee records.
type Registry interface {
	CreateEmployee(ctx context.Context, principal, fullName string) (*models.Employee, error)
	CreateCompany(ctx context.Context, name string, adminID uint64) (*models.Company, error)
	DeactivateCompany(ctx context.Context, id uint64) (bool, error)
	ResolvePrincipal(ctx context.Context, principal string) (*models.Employee, error)
}

// Membership is the subset of the membership index the service uses.
type Membership interface {
	AddMembership(ctx context.Context, companyID, employeeID uint64) error
	RemoveMembership(ctx context.Context, companyID, employeeID uint64) error
	IsAdmin(ctx context.Context, companyID, employeeID uint64) (bool, error)
	ListCompaniesOf(ctx context.Context, employeeID uint64) ([]uint64, error)
}

// Ledger issues and consumes proofs.
type Ledger interface {
	Issue(ctx context.Context, companyID, employeeID uint64, now time.Time) (*models.Proof, error)
	VerifyAndConsume(ctx context.Context, code string, now time.Time) (models.VerifyResult, error)
	Peek(ctx context.Context, code string) (*models.Proof, error)
}

// Option configures a ProofService.
type Option func(*ProofService)

// WithClock overrides the service clock.
func WithClock(now func() time.Time) Option {
	return func(s *ProofService) {
		s.now = now
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(r metrics.Recorder) Option {
	return func(s *ProofService) {
		s.metrics = r
	}
}

// ProofService is the facade exposed to transports.
type ProofService struct {
	registry Registry
	index    Membership
	ledger   Ledger
	producer EventProducer
	metrics  metrics.Recorder
	now      func() time.Time
	logger   *zap.Logger
}

// NewProofService constructs a ProofService.
func NewProofService(reg Registry, idx Membership, ldg Ledger, producer EventProducer, logger *zap.Logger, opts ...Option) *ProofService {
	s := &ProofService{
		registry: reg,
		index:    idx,
		ledger:   ldg,
		producer: producer,
		metrics:  metrics.Nop{},
		now:      time.Now,
		logger:   logger.Named("proof_service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RequestProof issues a proof for the companyIndex-th company in the
// caller's membership list.
func (s *ProofService) RequestProof(ctx context.Context, principal string, companyIndex int) (*models.Proof, error) {
	proof, err := s.requestProof(ctx, principal, companyIndex)
	if err != nil {
		s.metrics.RecordIssueFailure(failureReason(err))
		return nil, err
	}
	s.metrics.RecordIssued()
	s.emit(events.NewEvent(events.ProofIssued, proof.CreatedAt, proof.CompanyID, proof.EmployeeID))
	return proof, nil
}

func (s *ProofService) requestProof(ctx context.Context, principal string, companyIndex int) (*models.Proof, error) {
	caller, err := s.caller(ctx, principal)
	if err != nil {
		return nil, err
	}
	companies, err := s.index.ListCompaniesOf(ctx, caller.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list companies: %w", err)
	}
	if companyIndex < 0 || companyIndex >= len(companies) {
		return nil, fmt.Errorf("%w: index %d, member of %d companies", e.ErrIndexOutOfRange, companyIndex, len(companies))
	}
	return s.ledger.Issue(ctx, companies[companyIndex], caller.ID, s.now())
}

// ListMyCompanies returns the caller's companies in join order.
func (s *ProofService) ListMyCompanies(ctx context.Context, principal string) ([]uint64, error) {
	caller, err := s.caller(ctx, principal)
	if err != nil {
		return nil, err
	}
	return s.index.ListCompaniesOf(ctx, caller.ID)
}

// VerifyProof consumes the code and reports only whether it was valid. The
// rejection reason is logged.
func (s *ProofService) VerifyProof(ctx context.Context, code string) (bool, error) {
	res, err := s.VerifyProofDetailed(ctx, code)
	if err != nil {
		return false, err
	}
	if !res.Valid {
		s.logger.Info("Proof rejected", zap.String("reason", string(res.Reason)))
	}
	return res.Valid, nil
}

// VerifyProofDetailed consumes the code and returns the full outcome.
func (s *ProofService) VerifyProofDetailed(ctx context.Context, code string) (models.VerifyResult, error) {
	start := time.Now()
	now := s.now()
	res, err := s.ledger.VerifyAndConsume(ctx, code, now)
	s.metrics.RecordVerifyLatency(time.Since(start))
	if err != nil {
		s.metrics.RecordVerification("error")
		return models.VerifyResult{}, err
	}

	s.metrics.RecordVerification(res.Outcome())
	if res.Valid {
		s.emit(events.NewEvent(events.ProofConsumed, now, res.CompanyID, res.EmployeeID))
	} else {
		s.emit(events.NewEvent(events.ProofRejected, now, 0, 0).WithReason(string(res.Reason)))
	}
	return res, nil
}

// PeekProof returns a proof without consuming it. Only the proof's employee
// or an admin of its company may look.
func (s *ProofService) PeekProof(ctx context.Context, principal, code string) (*models.Proof, error) {
	caller, err := s.caller(ctx, principal)
	if err != nil {
		return nil, err
	}
	proof, err := s.ledger.Peek(ctx, code)
	if err != nil {
		return nil, err
	}
	if proof.EmployeeID == caller.ID {
		return proof, nil
	}
	admin, err := s.index.IsAdmin(ctx, proof.CompanyID, caller.ID)
	if err != nil {
		return nil, err
	}
	if !admin {
		return nil, fmt.Errorf("%w: proof belongs to another employee", e.ErrUnauthorized)
	}
	return proof, nil
}

// RegisterEmployee registers the caller's own principal.
func (s *ProofService) RegisterEmployee(ctx context.Context, principal, fullName string) (*models.Employee, error) {
	emp, err := s.registry.CreateEmployee(ctx, principal, fullName)
	if err != nil {
		return nil, err
	}
	s.emit(events.NewEvent(events.EmployeeRegistered, emp.AddedAt, 0, emp.ID))
	return emp, nil
}

// CreateCompany creates a company administered by the caller.
func (s *ProofService) CreateCompany(ctx context.Context, principal, name string) (*models.Company, error) {
	caller, err := s.caller(ctx, principal)
	if err != nil {
		return nil, err
	}
	company, err := s.registry.CreateCompany(ctx, name, caller.ID)
	if err != nil {
		return nil, err
	}
	s.emit(events.NewEvent(events.CompanyCreated, company.CreatedAt, company.ID, caller.ID))
	return company, nil
}

// AddMember adds an employee to a company the caller administers.
func (s *ProofService) AddMember(ctx context.Context, principal string, companyID, employeeID uint64) error {
	if err := s.requireAdmin(ctx, principal, companyID); err != nil {
		return err
	}
	if err := s.index.AddMembership(ctx, companyID, employeeID); err != nil {
		return err
	}
	s.emit(events.NewEvent(events.MembershipAdded, s.now(), companyID, employeeID))
	return nil
}

// RemoveMember removes an employee from a company the caller administers.
// Proofs already issued stay valid until they expire.
func (s *ProofService) RemoveMember(ctx context.Context, principal string, companyID, employeeID uint64) error {
	if err := s.requireAdmin(ctx, principal, companyID); err != nil {
		return err
	}
	if err := s.index.RemoveMembership(ctx, companyID, employeeID); err != nil {
		return err
	}
	s.emit(events.NewEvent(events.MembershipRemoved, s.now(), companyID, employeeID))
	return nil
}

// DeactivateCompany deactivates a company the caller administers.
func (s *ProofService) DeactivateCompany(ctx context.Context, principal string, companyID uint64) error {
	if err := s.requireAdmin(ctx, principal, companyID); err != nil {
		return err
	}
	changed, err := s.registry.DeactivateCompany(ctx, companyID)
	if err != nil {
		return err
	}
	if changed {
		s.emit(events.NewEvent(events.CompanyDeactivated, s.now(), companyID, 0))
	}
	return nil
}

func (s *ProofService) caller(ctx context.Context, principal string) (*models.Employee, error) {
	if principal == "" {
		return nil, fmt.Errorf("%w: no caller identity", e.ErrUnauthorized)
	}
	emp, err := s.registry.ResolvePrincipal(ctx, principal)
	if err != nil {
		if errors.Is(err, e.ErrNotFound) {
			return nil, fmt.Errorf("%w: caller is not a registered employee", e.ErrUnauthorized)
		}
		return nil, fmt.Errorf("failed to resolve caller: %w", err)
	}
	return emp, nil
}

func (s *ProofService) requireAdmin(ctx context.Context, principal string, companyID uint64) error {
	caller, err := s.caller(ctx, principal)
	if err != nil {
		return err
	}
	admin, err := s.index.IsAdmin(ctx, companyID, caller.ID)
	if err != nil {
		return err
	}
	if !admin {
		return fmt.Errorf("%w: caller does not administer company %d", e.ErrUnauthorized, companyID)
	}
	return nil
}

func (s *ProofService) emit(event events.Event) {
	go func() {
		s.producer.Produce(event)
	}()
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, e.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, e.ErrIndexOutOfRange):
		return "index_out_of_range"
	case errors.Is(err, e.ErrCompanyInactive):
		return "company_inactive"
	case errors.Is(err, e.ErrNotFound):
		return "not_found"
	case errors.Is(err, e.ErrGenerationExhausted):
		return "generation_exhausted"
	case errors.Is(err, e.ErrStoreUnavailable):
		return "store_unavailable"
	default:
		return "internal"
	}
}
