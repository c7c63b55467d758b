package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ErrMetricsUnavailable is returned when no audit store is configured.
var ErrMetricsUnavailable = errors.New("metrics summary requires an audit store")

// MetricsSummary represents aggregated verification insights.
type MetricsSummary struct {
	TotalRequests              int64   `json:"total_requests"`
	SuccessfulRequests         int64   `json:"successful_requests"`
	VerifiedRequests           int64   `json:"verified_requests"`
	SuccessRate                float64 `json:"success_rate"`
	AverageConfidence          float64 `json:"average_confidence"`
	AverageProcessingLatencyMs float64 `json:"average_processing_latency_ms"`
}

// GetMetricsSummary aggregates verification metrics from persisted logs.
func (uc *VerificationUseCase) GetMetricsSummary(ctx context.Context) (*MetricsSummary, error) {
	if uc.repo == nil {
		return nil, ErrMetricsUnavailable
	}
	aggregation, err := uc.repo.AggregateMetrics(ctx)
	if err != nil {
		return nil, err
	}

	summary := &MetricsSummary{
		TotalRequests:              aggregation.TotalCount,
		SuccessfulRequests:         aggregation.SuccessCount,
		VerifiedRequests:           aggregation.VerifiedCount,
		AverageConfidence:          aggregation.AverageConfidence,
		AverageProcessingLatencyMs: aggregation.AverageLatencyMs,
	}
	if aggregation.TotalCount > 0 {
		summary.SuccessRate = float64(aggregation.SuccessCount) / float64(aggregation.TotalCount)
	}
	return summary, nil
}

// Metrics holds the Prometheus collectors for the verification flow.
type Metrics struct {
	requests   *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	confidence *prometheus.HistogramVec
}

// NewMetrics registers the verification collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "verifai",
			Name:      "verifications_total",
			Help:      "Verification requests by backend and outcome.",
		}, []string{"backend", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "verifai",
			Name:      "verification_duration_seconds",
			Help:      "Time spent producing a verdict, including the backend call.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"backend"}),
		confidence: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "verifai",
			Name:      "verdict_confidence",
			Help:      "Confidence of returned verdicts by status.",
			Buckets:   prometheus.LinearBuckets(0, 10, 11),
		}, []string{"status"}),
	}
	reg.MustRegister(m.requests, m.latency, m.confidence)
	return m
}

func (m *Metrics) observe(backendName, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	if backendName == "" {
		backendName = "none"
	}
	m.requests.WithLabelValues(backendName, outcome).Inc()
	m.latency.WithLabelValues(backendName).Observe(elapsed.Seconds())
}

func (m *Metrics) observeVerdict(status string, confidence float64) {
	if m == nil {
		return
	}
	m.confidence.WithLabelValues(status).Observe(confidence)
}
