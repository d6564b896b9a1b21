package handlers

import (
	"context"

	"github.com/gartstein/proofly/internal/proof/auth"
	"google.golang.org/grpc"
)

// ProofServer is the server API of proof.v1.ProofService.
type ProofServer interface {
	RequestProof(context.Context, *RequestProofRequest) (*RequestProofResponse, error)
	ListMyCompanies(context.Context, *ListMyCompaniesRequest) (*ListMyCompaniesResponse, error)
	VerifyProof(context.Context, *VerifyProofRequest) (*VerifyProofResponse, error)
	VerifyProofDetailed(context.Context, *VerifyProofRequest) (*VerifyProofDetailedResponse, error)
	PeekProof(context.Context, *PeekProofRequest) (*PeekProofResponse, error)
	RegisterEmployee(context.Context, *RegisterEmployeeRequest) (*RegisterEmployeeResponse, error)
	CreateCompany(context.Context, *CreateCompanyRequest) (*CreateCompanyResponse, error)
	AddMember(context.Context, *MemberRequest) (*Empty, error)
	RemoveMember(context.Context, *MemberRequest) (*Empty, error)
	DeactivateCompany(context.Context, *DeactivateCompanyRequest) (*Empty, error)
}

// ServiceDesc describes proof.v1.ProofService for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: "proof.v1.ProofService",
	HandlerType: (*ProofServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("RequestProof", ProofServer.RequestProof),
		unary("ListMyCompanies", ProofServer.ListMyCompanies),
		unary("VerifyProof", ProofServer.VerifyProof),
		unary("VerifyProofDetailed", ProofServer.VerifyProofDetailed),
		unary("PeekProof", ProofServer.PeekProof),
		unary("RegisterEmployee", ProofServer.RegisterEmployee),
		unary("CreateCompany", ProofServer.CreateCompany),
		unary("AddMember", ProofServer.AddMember),
		unary("RemoveMember", ProofServer.RemoveMember),
		unary("DeactivateCompany", ProofServer.DeactivateCompany),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "proof/v1/proof.proto",
}

// unary adapts a typed ProofServer method to a grpc.MethodDesc, running
// the server's interceptor chain when one is installed.
func unary[Req, Resp any](name string, call func(ProofServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	fullMethod := auth.ServicePrefix + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			server := srv.(ProofServer)
			if interceptor == nil {
				return call(server, ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: fullMethod,
			}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(server, ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}
