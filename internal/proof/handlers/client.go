package handlers

import (
	"context"

	"github.com/gartstein/proofly/internal/proof/auth"
	"google.golang.org/grpc"
)

// ProofClient calls proof.v1.ProofService using the JSON codec.
type ProofClient struct {
	cc grpc.ClientConnInterface
}

func NewProofClient(cc grpc.ClientConnInterface) *ProofClient {
	return &ProofClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts ...grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(codecName)}, opts...)
	if err := cc.Invoke(ctx, auth.ServicePrefix+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ProofClient) RequestProof(ctx context.Context, in *RequestProofRequest, opts ...grpc.CallOption) (*RequestProofResponse, error) {
	return invoke[RequestProofResponse](ctx, c.cc, "RequestProof", in, opts...)
}

func (c *ProofClient) ListMyCompanies(ctx context.Context, in *ListMyCompaniesRequest, opts ...grpc.CallOption) (*ListMyCompaniesResponse, error) {
	return invoke[ListMyCompaniesResponse](ctx, c.cc, "ListMyCompanies", in, opts...)
}

func (c *ProofClient) VerifyProof(ctx context.Context, in *VerifyProofRequest, opts ...grpc.CallOption) (*VerifyProofResponse, error) {
	return invoke[VerifyProofResponse](ctx, c.cc, "VerifyProof", in, opts...)
}

func (c *ProofClient) VerifyProofDetailed(ctx context.Context, in *VerifyProofRequest, opts ...grpc.CallOption) (*VerifyProofDetailedResponse, error) {
	return invoke[VerifyProofDetailedResponse](ctx, c.cc, "VerifyProofDetailed", in, opts...)
}

func (c *ProofClient) PeekProof(ctx context.Context, in *PeekProofRequest, opts ...grpc.CallOption) (*PeekProofResponse, error) {
	return invoke[PeekProofResponse](ctx, c.cc, "PeekProof", in, opts...)
}

func (c *ProofClient) RegisterEmployee(ctx context.Context, in *RegisterEmployeeRequest, opts ...grpc.CallOption) (*RegisterEmployeeResponse, error) {
	return invoke[RegisterEmployeeResponse](ctx, c.cc, "RegisterEmployee", in, opts...)
}

func (c *ProofClient) CreateCompany(ctx context.Context, in *CreateCompanyRequest, opts ...grpc.CallOption) (*CreateCompanyResponse, error) {
	return invoke[CreateCompanyResponse](ctx, c.cc, "CreateCompany", in, opts...)
}

func (c *ProofClient) AddMember(ctx context.Context, in *MemberRequest, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[Empty](ctx, c.cc, "AddMember", in, opts...)
}

func (c *ProofClient) RemoveMember(ctx context.Context, in *MemberRequest, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[Empty](ctx, c.cc, "RemoveMember", in, opts...)
}

func (c *ProofClient) DeactivateCompany(ctx context.Context, in *DeactivateCompanyRequest, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[Empty](ctx, c.cc, "DeactivateCompany", in, opts...)
}
