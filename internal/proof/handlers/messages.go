package handlers

import (
	"time"

	"github.com/gartstein/proofly/internal/proof/models"
)

// Wire messages for proof.v1.ProofService. They travel as JSON over both
// gRPC and HTTP.

type RequestProofRequest struct {
	CompanyIndex int `json:"company_index"`
}

type RequestProofResponse struct {
	Code      string    `json:"code"`
	CompanyID uint64    `json:"company_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

type ListMyCompaniesRequest struct{}

type ListMyCompaniesResponse struct {
	CompanyIDs []uint64 `json:"company_ids"`
}

type VerifyProofRequest struct {
	Code string `json:"code"`
}

type VerifyProofResponse struct {
	Valid bool `json:"valid"`
}

type VerifyProofDetailedResponse struct {
	Valid      bool   `json:"valid"`
	Reason     string `json:"reason,omitempty"`
	CompanyID  uint64 `json:"company_id,omitempty"`
	EmployeeID uint64 `json:"employee_id,omitempty"`
}

type PeekProofRequest struct {
	Code string `json:"code"`
}

type PeekProofResponse struct {
	Proof *models.Proof     `json:"proof"`
	State models.ProofState `json:"state"`
}

type RegisterEmployeeRequest struct {
	FullName string `json:"full_name"`
}

type RegisterEmployeeResponse struct {
	Employee *models.Employee `json:"employee"`
}

type CreateCompanyRequest struct {
	Name string `json:"name"`
}

type CreateCompanyResponse struct {
	Company *models.Company `json:"company"`
}

type MemberRequest struct {
	CompanyID  uint64 `json:"company_id"`
	EmployeeID uint64 `json:"employee_id"`
}

type DeactivateCompanyRequest struct {
	CompanyID uint64 `json:"company_id"`
}

type Empty struct{}
