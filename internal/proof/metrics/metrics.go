// Package metrics exposes Prometheus counters for proof issuance and
// verification.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is what the service layer reports to.
type Recorder interface {
	RecordIssued()
	RecordIssueFailure(reason string)
	RecordVerification(outcome string)
	RecordVerifyLatency(d time.Duration)
}

// Collector is the Prometheus-backed Recorder.
type Collector struct {
	issued        prometheus.Counter
	issueFailures *prometheus.CounterVec
	verifications *prometheus.CounterVec
	verifyLatency prometheus.Histogram
}

// New registers the proof metrics on reg.
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		issued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "proofly_proofs_issued_total",
			Help: "Proofs issued.",
		}),
		issueFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "proofly_proof_issue_failures_total",
			Help: "Failed proof requests by reason.",
		}, []string{"reason"}),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "proofly_verifications_total",
			Help: "Proof verifications by outcome.",
		}, []string{"outcome"}),
		verifyLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "proofly_verify_duration_seconds",
			Help:    "Latency of verify-and-consume.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.issued,
		c.issueFailures,
		c.verifications,
		c.verifyLatency,
	)
	return c
}

// RecordIssued counts one issued proof.
func (c *Collector) RecordIssued() {
	c.issued.Inc()
}

func (c *Collector) RecordIssueFailure(reason string) {
	c.issueFailures.WithLabelValues(reason).Inc()
}

// RecordVerification counts a verification by outcome ("valid", a rejection
// reason, or "error").
func (c *Collector) RecordVerification(outcome string) {
	c.verifications.WithLabelValues(outcome).Inc()
}

func (c *Collector) RecordVerifyLatency(d time.Duration) {
	c.verifyLatency.Observe(d.Seconds())
}

// Handler serves the registry for scraping.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordIssued() {}
func (Nop) RecordIssueFailure(string) {}
func (Nop) RecordVerification(string) {}
func (Nop) RecordVerifyLatency(time.Duration) {}
