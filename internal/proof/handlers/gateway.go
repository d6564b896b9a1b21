package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const maxBodyBytes = 1 << 16

// NewGatewayMux maps the HTTP API onto the handler methods. Calls go
// straight to the handler in process; there is no loopback gRPC hop.
func NewGatewayMux(h ProofServer) (*runtime.ServeMux, error) {
	mux := runtime.NewServeMux()

	routes := []struct {
		method  string
		pattern string
		handler runtime.HandlerFunc
	}{
		{http.MethodPost, "/v1/proofs", route(h.RequestProof, bodyInto[RequestProofRequest])},
		{http.MethodGet, "/v1/me/companies", route(h.ListMyCompanies, noBody[ListMyCompaniesRequest])},
		{http.MethodPost, "/v1/proofs/verify", route(h.VerifyProof, bodyInto[VerifyProofRequest])},
		{http.MethodPost, "/v1/proofs/verify:detailed", route(h.VerifyProofDetailed, bodyInto[VerifyProofRequest])},
		{http.MethodGet, "/v1/proofs/{code}", route(h.PeekProof, peekFromPath)},
		{http.MethodPost, "/v1/employees", route(h.RegisterEmployee, bodyInto[RegisterEmployeeRequest])},
		{http.MethodPost, "/v1/companies", route(h.CreateCompany, bodyInto[CreateCompanyRequest])},
		{http.MethodPost, "/v1/companies/{company_id}/members", route(h.AddMember, memberFromBody)},
		{http.MethodDelete, "/v1/companies/{company_id}/members/{employee_id}", route(h.RemoveMember, memberFromPath)},
		{http.MethodPost, "/v1/companies/{company_id}:deactivate", route(h.DeactivateCompany, deactivateFromPath)},
	}
	for _, r := range routes {
		if err := mux.HandlePath(r.method, r.pattern, r.handler); err != nil {
			return nil, err
		}
	}
	return mux, nil
}

type decoder[Req any] func(r *http.Request, params map[string]string) (*Req, error)

func route[Req, Resp any](call func(context.Context, *Req) (*Resp, error), decode decoder[Req]) runtime.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request, params map[string]string) {
		req, err := decode(r, params)
		if err != nil {
			writeError(w, err)
			return
		}
		resp, err := call(r.Context(), req)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func bodyInto[Req any](r *http.Request, _ map[string]string) (*Req, error) {
	req := new(Req)
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "unreadable body")
	}
	if len(body) == 0 {
		return req, nil
	}
	if err := json.Unmarshal(body, req); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "malformed JSON body: %v", err)
	}
	return req, nil
}

func noBody[Req any](*http.Request, map[string]string) (*Req, error) {
	return new(Req), nil
}

func peekFromPath(_ *http.Request, params map[string]string) (*PeekProofRequest, error) {
	return &PeekProofRequest{Code: params["code"]}, nil
}

func memberFromBody(r *http.Request, params map[string]string) (*MemberRequest, error) {
	req, err := bodyInto[MemberRequest](r, params)
	if err != nil {
		return nil, err
	}
	req.CompanyID, err = pathID(params, "company_id")
	return req, err
}

func memberFromPath(_ *http.Request, params map[string]string) (*MemberRequest, error) {
	companyID, err := pathID(params, "company_id")
	if err != nil {
		return nil, err
	}
	employeeID, err := pathID(params, "employee_id")
	if err != nil {
		return nil, err
	}
	return &MemberRequest{CompanyID: companyID, EmployeeID: employeeID}, nil
}

func deactivateFromPath(_ *http.Request, params map[string]string) (*DeactivateCompanyRequest, error) {
	id, err := pathID(params, "company_id")
	if err != nil {
		return nil, err
	}
	return &DeactivateCompanyRequest{CompanyID: id}, nil
}

func pathID(params map[string]string, name string) (uint64, error) {
	id, err := strconv.ParseUint(params[name], 10, 64)
	if err != nil {
		return 0, status.Errorf(codes.InvalidArgument, "invalid %s", name)
	}
	return id, nil
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeError renders a gRPC status as JSON with the matching HTTP status.
func writeError(w http.ResponseWriter, err error) {
	st := status.Convert(err)
	writeJSON(w, runtime.HTTPStatusFromCode(st.Code()), errorBody{
		Code:    st.Code().String(),
		Message: st.Message(),
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
