package middleware

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

func newLimited(t *testing.T, cfg RateLimiterConfig) (*RateLimiter, http.Handler) {
	rl := NewRateLimiter(cfg, zaptest.NewLogger(t))
	t.Cleanup(rl.Stop)
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return rl, rl.Middleware(ok)
}

func request(h http.Handler, remote string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/proofs/verify", nil)
	req.RemoteAddr = remote
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRateLimiter_BurstThenReject(t *testing.T) {
	_, h := newLimited(t, RateLimiterConfig{Rate: PerMinute(1), Burst: 2, CleanupInterval: time.Minute})

	assert.Equal(t, http.StatusOK, request(h, "10.0.0.1:5000").Code)
	assert.Equal(t, http.StatusOK, request(h, "10.0.0.1:5001").Code)

	rec := request(h, "10.0.0.1:5002")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"error":"rate limit exceeded"}`, rec.Body.String())
}

func TestRateLimiter_ClientsAreIndependent(t *testing.T) {
	rl, h := newLimited(t, RateLimiterConfig{Rate: PerMinute(1), Burst: 1, CleanupInterval: time.Minute})

	assert.Equal(t, http.StatusOK, request(h, "10.0.0.1:1").Code)
	assert.Equal(t, http.StatusTooManyRequests, request(h, "10.0.0.1:2").Code)
	assert.Equal(t, http.StatusOK, request(h, "10.0.0.2:1").Code)
	assert.Equal(t, 2, rl.LimiterCount())
}

func TestRateLimiter_CleanupDropsIdleClients(t *testing.T) {
	rl, h := newLimited(t, RateLimiterConfig{Rate: rate.Inf, Burst: 1, CleanupInterval: time.Minute})

	request(h, "10.0.0.1:1")
	request(h, "10.0.0.2:1")
	assert.Equal(t, 2, rl.LimiterCount())

	rl.cleanup(time.Now().Add(time.Minute))
	assert.Equal(t, 2, rl.LimiterCount(), "recently seen clients are kept")

	rl.cleanup(time.Now().Add(3 * time.Minute))
	assert.Equal(t, 0, rl.LimiterCount())
}

func TestClientKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.168.1.7:4242"
	assert.Equal(t, "192.168.1.7", clientKey(req))

	req.RemoteAddr = "pipe"
	assert.Equal(t, "pipe", clientKey(req))
}

func TestRateLimiter_StopIsIdempotent(t *testing.T) {
	rl := NewRateLimiter(DefaultRateLimiterConfig(), zaptest.NewLogger(t))
	rl.Stop()
	rl.Stop()
}

func peerContext(ip string, port int) context.Context {
	return peer.NewContext(context.Background(), &peer.Peer{
		Addr: &net.TCPAddr{IP: net.ParseIP(ip), Port: port},
	})
}

func TestRateLimiter_UnaryInterceptor(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{Rate: PerMinute(1), Burst: 1, CleanupInterval: time.Minute}, zaptest.NewLogger(t))
	t.Cleanup(rl.Stop)
	intercept := rl.UnaryInterceptor("/proof.v1.ProofService/VerifyProof")

	calls := 0
	handler := func(context.Context, any) (any, error) {
		calls++
		return "ok", nil
	}
	verify := &grpc.UnaryServerInfo{FullMethod: "/proof.v1.ProofService/VerifyProof"}
	other := &grpc.UnaryServerInfo{FullMethod: "/proof.v1.ProofService/RequestProof"}

	_, err := intercept(peerContext("10.0.0.1", 1000), nil, verify, handler)
	assert.NoError(t, err)

	_, err = intercept(peerContext("10.0.0.1", 1001), nil, verify, handler)
	assert.Equal(t, codes.ResourceExhausted, status.Code(err))

	_, err = intercept(peerContext("10.0.0.2", 1000), nil, verify, handler)
	assert.NoError(t, err, "other clients keep their own budget")

	for i := 0; i < 3; i++ {
		_, err = intercept(peerContext("10.0.0.1", 1002), nil, other, handler)
		assert.NoError(t, err, "unlisted methods are not limited")
	}
	assert.Equal(t, 5, calls)
}

func TestRateLimiter_SharedAcrossTransports(t *testing.T) {
	rl, h := newLimited(t, RateLimiterConfig{Rate: PerMinute(1), Burst: 1, CleanupInterval: time.Minute})
	intercept := rl.UnaryInterceptor("/proof.v1.ProofService/VerifyProof")
	handler := func(context.Context, any) (any, error) { return nil, nil }

	assert.Equal(t, http.StatusOK, request(h, "10.0.0.9:4000").Code)
	_, err := intercept(peerContext("10.0.0.9", 5000), nil,
		&grpc.UnaryServerInfo{FullMethod: "/proof.v1.ProofService/VerifyProof"}, handler)
	assert.Equal(t, codes.ResourceExhausted, status.Code(err))
}
