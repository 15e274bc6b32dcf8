// Package metrics holds the Prometheus collectors for sagas, the outbox and
// the HTTP layer. A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Saga outcome labels.
const (
	OutcomeSuccess            = "success"
	OutcomeRejected           = "rejected"
	OutcomeCompensated        = "compensated"
	OutcomeCompensationFailed = "compensation_failed"
)

// Metrics groups all collectors of one process.
type Metrics struct {
	sagaOutcomes         *prometheus.CounterVec
	compensationFailures *prometheus.CounterVec
	outboxDelivered      *prometheus.CounterVec
	outboxPurged         prometheus.Counter
	outboxTickDuration   prometheus.Histogram
	balanceMutations     *prometheus.CounterVec
	casRetries           prometheus.Counter
	httpRequests         *prometheus.CounterVec
	httpDuration         *prometheus.HistogramVec
}

// New creates the collectors and registers them on registerer.
// Passing nil uses prometheus.DefaultRegisterer.
func New(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		sagaOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "moneyflow_saga_outcomes_total",
			Help: "Saga completions by saga and outcome.",
		}, []string{"saga", "outcome"}),
		compensationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "moneyflow_compensation_failures_total",
			Help: "Compensating calls that failed and need manual reconciliation.",
		}, []string{"saga"}),
		outboxDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "moneyflow_outbox_delivered_total",
			Help: "Outbox records moved to a terminal status by sink and status.",
		}, []string{"sink", "status"}),
		outboxPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "moneyflow_outbox_purged_total",
			Help: "Terminal outbox records deleted by the janitor.",
		}),
		outboxTickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "moneyflow_outbox_publish_tick_seconds",
			Help:    "Duration of one publisher tick.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		balanceMutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "moneyflow_balance_mutations_total",
			Help: "Balance mutations by result code (ok on success).",
		}, []string{"result"}),
		casRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "moneyflow_balance_cas_retries_total",
			Help: "Compare-and-swap misses that triggered a re-read.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "moneyflow_http_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "moneyflow_http_request_duration_seconds",
			Help:    "HTTP request latency by method and route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	registerer.MustRegister(
		m.sagaOutcomes,
		m.compensationFailures,
		m.outboxDelivered,
		m.outboxPurged,
		m.outboxTickDuration,
		m.balanceMutations,
		m.casRetries,
		m.httpRequests,
		m.httpDuration,
	)
	return m
}

// SagaOutcome counts one finished saga.
func (m *Metrics) SagaOutcome(saga, outcome string) {
	if m == nil {
		return
	}
	m.sagaOutcomes.WithLabelValues(saga, outcome).Inc()
}

// CompensationFailed counts a compensation that could not restore funds.
func (m *Metrics) CompensationFailed(saga string) {
	if m == nil {
		return
	}
	m.compensationFailures.WithLabelValues(saga).Inc()
}

// OutboxDelivered counts a record marked PROCESSED or FAILED.
func (m *Metrics) OutboxDelivered(sink, status string) {
	if m == nil {
		return
	}
	m.outboxDelivered.WithLabelValues(sink, status).Inc()
}

// OutboxPurged counts records removed by the janitor.
func (m *Metrics) OutboxPurged(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.outboxPurged.Add(float64(n))
}

// ObserveOutboxTick records the duration of one publisher tick.
func (m *Metrics) ObserveOutboxTick(seconds float64) {
	if m == nil {
		return
	}
	m.outboxTickDuration.Observe(seconds)
}

// BalanceMutation counts one mutate call by result.
func (m *Metrics) BalanceMutation(result string) {
	if m == nil {
		return
	}
	m.balanceMutations.WithLabelValues(result).Inc()
}

// CASRetry counts one version mismatch.
func (m *Metrics) CASRetry() {
	if m == nil {
		return
	}
	m.casRetries.Inc()
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(method, route, status string, seconds float64) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, status).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(seconds)
}
