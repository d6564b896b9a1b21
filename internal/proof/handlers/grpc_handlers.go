package handlers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gartstein/proofly/internal/proof/auth"
	e "github.com/gartstein/proofly/internal/proof/errors"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ProofHandler implements ProofServer on top of a ProofController.
type ProofHandler struct {
	service ProofController
	now     func() time.Time
	logger  *zap.Logger
}

// NewProofHandler constructs a new ProofHandler with the given service and logger.
func NewProofHandler(service ProofController, logger *zap.Logger) *ProofHandler {
	return &ProofHandler{
		service: service,
		now:     time.Now,
		logger:  logger.Named("grpc_handler"),
	}
}

// RequestProof issues a proof for the caller's company at the given index.
func (h *ProofHandler) RequestProof(ctx context.Context, req *RequestProofRequest) (*RequestProofResponse, error) {
	principal, err := callerOf(ctx)
	if err != nil {
		return nil, err
	}
	proof, err := h.service.RequestProof(ctx, principal, req.CompanyIndex)
	if err != nil {
		return nil, h.mapServiceError(err)
	}
	return &RequestProofResponse{
		Code:      proof.Code,
		CompanyID: proof.CompanyID,
		ExpiresAt: proof.ExpiresAt,
	}, nil
}

// ListMyCompanies lists the caller's companies in join order.
func (h *ProofHandler) ListMyCompanies(ctx context.Context, _ *ListMyCompaniesRequest) (*ListMyCompaniesResponse, error) {
	principal, err := callerOf(ctx)
	if err != nil {
		return nil, err
	}
	ids, err := h.service.ListMyCompanies(ctx, principal)
	if err != nil {
		return nil, h.mapServiceError(err)
	}
	return &ListMyCompaniesResponse{CompanyIDs: ids}, nil
}

// VerifyProof is the public check: a bare valid/invalid answer.
func (h *ProofHandler) VerifyProof(ctx context.Context, req *VerifyProofRequest) (*VerifyProofResponse, error) {
	code := strings.TrimSpace(req.Code)
	if code == "" {
		return nil, status.Error(codes.InvalidArgument, "code required")
	}
	valid, err := h.service.VerifyProof(ctx, code)
	if err != nil {
		return nil, h.mapServiceError(err)
	}
	return &VerifyProofResponse{Valid: valid}, nil
}

// VerifyProofDetailed returns the rejection reason as well.
func (h *ProofHandler) VerifyProofDetailed(ctx context.Context, req *VerifyProofRequest) (*VerifyProofDetailedResponse, error) {
	code := strings.TrimSpace(req.Code)
	if code == "" {
		return nil, status.Error(codes.InvalidArgument, "code required")
	}
	res, err := h.service.VerifyProofDetailed(ctx, code)
	if err != nil {
		return nil, h.mapServiceError(err)
	}
	return &VerifyProofDetailedResponse{
		Valid:      res.Valid,
		Reason:     string(res.Reason),
		CompanyID:  res.CompanyID,
		EmployeeID: res.EmployeeID,
	}, nil
}

// PeekProof returns a proof and its current state without consuming it.
func (h *ProofHandler) PeekProof(ctx context.Context, req *PeekProofRequest) (*PeekProofResponse, error) {
	principal, err := callerOf(ctx)
	if err != nil {
		return nil, err
	}
	proof, err := h.service.PeekProof(ctx, principal, req.Code)
	if err != nil {
		return nil, h.mapServiceError(err)
	}
	return &PeekProofResponse{Proof: proof, State: proof.State(h.now())}, nil
}

// RegisterEmployee registers the caller.
func (h *ProofHandler) RegisterEmployee(ctx context.Context, req *RegisterEmployeeRequest) (*RegisterEmployeeResponse, error) {
	principal, err := callerOf(ctx)
	if err != nil {
		return nil, err
	}
	emp, err := h.service.RegisterEmployee(ctx, principal, req.FullName)
	if err != nil {
		return nil, h.mapServiceError(err)
	}
	return &RegisterEmployeeResponse{Employee: emp}, nil
}

// CreateCompany creates a company administered by the caller.
func (h *ProofHandler) CreateCompany(ctx context.Context, req *CreateCompanyRequest) (*CreateCompanyResponse, error) {
	principal, err := callerOf(ctx)
	if err != nil {
		return nil, err
	}
	company, err := h.service.CreateCompany(ctx, principal, req.Name)
	if err != nil {
		return nil, h.mapServiceError(err)
	}
	return &CreateCompanyResponse{Company: company}, nil
}

func (h *ProofHandler) AddMember(ctx context.Context, req *MemberRequest) (*Empty, error) {
	principal, err := callerOf(ctx)
	if err != nil {
		return nil, err
	}
	if err := h.service.AddMember(ctx, principal, req.CompanyID, req.EmployeeID); err != nil {
		return nil, h.mapServiceError(err)
	}
	return &Empty{}, nil
}

func (h *ProofHandler) RemoveMember(ctx context.Context, req *MemberRequest) (*Empty, error) {
	principal, err := callerOf(ctx)
	if err != nil {
		return nil, err
	}
	if err := h.service.RemoveMember(ctx, principal, req.CompanyID, req.EmployeeID); err != nil {
		return nil, h.mapServiceError(err)
	}
	return &Empty{}, nil
}

func (h *ProofHandler) DeactivateCompany(ctx context.Context, req *DeactivateCompanyRequest) (*Empty, error) {
	principal, err := callerOf(ctx)
	if err != nil {
		return nil, err
	}
	if err := h.service.DeactivateCompany(ctx, principal, req.CompanyID); err != nil {
		return nil, h.mapServiceError(err)
	}
	return &Empty{}, nil
}

func callerOf(ctx context.Context) (string, error) {
	principal, ok := auth.PrincipalFromContext(ctx)
	if !ok {
		return "", status.Error(codes.Unauthenticated, "caller identity required")
	}
	return principal, nil
}

// mapServiceError maps domain or store errors to gRPC status codes.
func (h *ProofHandler) mapServiceError(err error) error {
	switch {
	case errors.Is(err, e.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, e.ErrAlreadyExists):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, e.ErrUnauthorized):
		return status.Error(codes.PermissionDenied, err.Error())
	case errors.Is(err, e.ErrIndexOutOfRange):
		return status.Error(codes.OutOfRange, err.Error())
	case errors.Is(err, e.ErrCompanyInactive),
		errors.Is(err, e.ErrExpired),
		errors.Is(err, e.ErrAlreadyUsed):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, e.ErrGenerationExhausted):
		h.logger.Error("Proof code generation exhausted", zap.Error(err))
		return status.Error(codes.ResourceExhausted, "could not generate a proof code, retry later")
	case errors.Is(err, e.ErrStoreUnavailable):
		h.logger.Error("Store unavailable", zap.Error(err))
		return status.Error(codes.Unavailable, "store unavailable, retry later")
	case errors.Is(err, e.ErrInvalidInput):
		return status.Error(codes.InvalidArgument, err.Error())
	default:
		h.logger.Error("Internal server error", zap.Error(err))
		return status.Error(codes.Internal, "internal server error")
	}
}
