// Package handlers serves the ProofService over gRPC (JSON codec) and HTTP,
// translating between wire messages and domain models.
package handlers

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gartstein/proofly/internal/proof/auth"
	"github.com/gartstein/proofly/internal/proof/metrics"
	"github.com/gartstein/proofly/internal/proof/middleware"
	"github.com/gartstein/proofly/internal/proof/models"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

// ProofController defines the business logic interface
// that the gRPC/HTTP handlers will invoke.
type ProofController interface {
	RequestProof(ctx context.Context, principal string, companyIndex int) (*models.Proof, error)
	ListMyCompanies(ctx context.Context, principal string) ([]uint64, error)
	VerifyProof(ctx context.Context, code string) (bool, error)
	VerifyProofDetailed(ctx context.Context, code string) (models.VerifyResult, error)
	PeekProof(ctx context.Context, principal, code string) (*models.Proof, error)
	RegisterEmployee(ctx context.Context, principal, fullName string) (*models.Employee, error)
	CreateCompany(ctx context.Context, principal, name string) (*models.Company, error)
	AddMember(ctx context.Context, principal string, companyID, employeeID uint64) error
	RemoveMember(ctx context.Context, principal string, companyID, employeeID uint64) error
	DeactivateCompany(ctx context.Context, principal string, companyID uint64) error
}

// HTTPOptions configures the HTTP side of the server.
type HTTPOptions struct {
	JWTSecret string
	// VerifyLimiter rate limits public verification. Nil disables it.
	VerifyLimiter *middleware.RateLimiter
	// Gatherer backs /metrics. Nil disables it.
	Gatherer prometheus.Gatherer
	// Ready backs /healthz. Nil always reports ready.
	Ready func(ctx context.Context) error
}

// Server holds references to both a gRPC server and an HTTP server.
type Server struct {
	grpcServer   *grpc.Server
	httpServer   *http.Server
	logger       *zap.Logger
	grpcEndpoint string
	httpEndpoint string
}

// NewServer constructs a Server with separate endpoints for gRPC and HTTP.
func NewServer(
	grpcPort int,
	httpPort int,
	logger *zap.Logger,
	grpcOpts ...grpc.ServerOption,
) *Server {
	return &Server{
		grpcServer:   grpc.NewServer(grpcOpts...),
		httpServer:   &http.Server{ReadHeaderTimeout: 10 * time.Second},
		logger:       logger.Named("server"),
		grpcEndpoint: fmt.Sprintf(":%d", grpcPort),
		httpEndpoint: fmt.Sprintf(":%d", httpPort),
	}
}

// RegisterGRPCHandler registers the handler as proof.v1.ProofService.
func (s *Server) RegisterGRPCHandler(h ProofServer) {
	s.grpcServer.RegisterService(&ServiceDesc, h)
}

// RegisterHTTPGateway builds the HTTP router: the authenticated /v1 API,
// plus /metrics and /healthz.
func (s *Server) RegisterHTTPGateway(h ProofServer, opts HTTPOptions) error {
	gw, err := NewGatewayMux(h)
	if err != nil {
		return err
	}
	api := auth.HTTPMiddleware(gw, opts.JWTSecret)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if opts.Ready != nil {
			if err := opts.Ready(r.Context()); err != nil {
				s.logger.Warn("Readiness check failed", zap.Error(err))
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if opts.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(opts.Gatherer))
	}
	if opts.VerifyLimiter != nil {
		r.With(opts.VerifyLimiter.Middleware).Handle("/v1/proofs/verify", api)
	}
	r.Mount("/v1", api)

	s.httpServer.Handler = r
	s.httpServer.Addr = s.httpEndpoint
	return nil
}

// Start runs the gRPC and HTTP servers concurrently, returning on the first error.
func (s *Server) Start() error {
	var wg sync.WaitGroup
	wg.Add(2)
	errChan := make(chan error, 2)

	go func() {
		defer wg.Done()
		s.logger.Info("Starting gRPC server", zap.String("endpoint", s.grpcEndpoint))
		lis, err := net.Listen("tcp", s.grpcEndpoint)
		if err != nil {
			errChan <- fmt.Errorf("gRPC listen error: %w", err)
			return
		}
		if err := s.grpcServer.Serve(lis); err != nil {
			errChan <- fmt.Errorf("gRPC serve error: %w", err)
		}
	}()

	go func() {
		defer wg.Done()
		s.logger.Info("Starting HTTP server", zap.String("endpoint", s.httpEndpoint))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("HTTP serve error: %w", err)
		}
	}()

	go func() {
		wg.Wait()
		close(errChan)
	}()

	for err := range errChan {
		if err != nil {
			return err
		}
	}
	return nil
}

// Stop gracefully shuts down both gRPC and HTTP servers.
func (s *Server) Stop() {
	s.logger.Info("Shutting down servers...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.grpcServer.GracefulStop()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	s.logger.Info("Servers stopped")
}
