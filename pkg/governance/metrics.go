package governance

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains Prometheus collectors for the governance engine.
//
// Metrics:
//   - <ns>_governance_cost_usd_total: cost by provider/request type/user/success
//   - <ns>_governance_tokens_total: tokens with the same tag set
//   - <ns>_governance_requests_total: requests with the same tag set
//   - <ns>_governance_bucket_write_failures_total: failed rollup increments
//   - <ns>_governance_alerts_total: alerts raised by severity
//   - <ns>_governance_remediation_actions_total: actions executed by kind/result
//   - <ns>_governance_evaluation_duration_seconds: threshold pass latency
//   - <ns>_governance_predicted_usage / _prediction_confidence: last forecast
type Metrics struct {
	costTotal     *prometheus.CounterVec
	tokensTotal   *prometheus.CounterVec
	requestsTotal *prometheus.CounterVec

	bucketWriteFailures *prometheus.CounterVec

	alertsTotal  *prometheus.CounterVec
	actionsTotal *prometheus.CounterVec

	evaluationDuration prometheus.Histogram

	predictedUsage       *prometheus.GaugeVec
	predictionConfidence *prometheus.GaugeVec
}

// NewMetrics creates and registers governance metrics with the provided
// registerer. A nil registerer falls back to the default registry.
func NewMetrics(namespace string, registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	eventLabels := []string{"provider", "request_type", "user", "success"}

	m := &Metrics{
		costTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "governance",
				Name:      "cost_usd_total",
				Help:      "Total metered cost in USD",
			},
			eventLabels,
		),

		tokensTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "governance",
				Name:      "tokens_total",
				Help:      "Total metered tokens",
			},
			eventLabels,
		),

		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "governance",
				Name:      "requests_total",
				Help:      "Total metered requests",
			},
			eventLabels,
		),

		bucketWriteFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "governance",
				Name:      "bucket_write_failures_total",
				Help:      "Rollup bucket increments that failed and were skipped",
			},
			[]string{"scope_kind", "period"},
		),

		alertsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "governance",
				Name:      "alerts_total",
				Help:      "Threshold alerts raised by severity",
			},
			[]string{"severity"},
		),

		actionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "governance",
				Name:      "remediation_actions_total",
				Help:      "Remediation actions executed by kind and result",
			},
			[]string{"action", "result"},
		),

		evaluationDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "governance",
				Name:      "evaluation_duration_seconds",
				Help:      "Duration of full threshold evaluation passes",
				Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10), // 100µs to ~26s
			},
		),

		predictedUsage: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "governance",
				Name:      "predicted_usage",
				Help:      "Most recent predicted usage per scope and period",
			},
			[]string{"scope", "period"},
		),

		predictionConfidence: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "governance",
				Name:      "prediction_confidence",
				Help:      "Confidence of the most recent prediction per scope and period",
			},
			[]string{"scope", "period"},
		),
	}

	registerer.MustRegister(
		m.costTotal,
		m.tokensTotal,
		m.requestsTotal,
		m.bucketWriteFailures,
		m.alertsTotal,
		m.actionsTotal,
		m.evaluationDuration,
		m.predictedUsage,
		m.predictionConfidence,
	)

	return m
}

// RecordEvent emits the cost/tokens/requests triple for one cost event.
func (m *Metrics) RecordEvent(e *CostEvent) {
	if m == nil {
		return
	}
	success := strconv.FormatBool(e.Metadata.Success)
	m.costTotal.WithLabelValues(e.Provider, e.RequestType, e.UserID, success).Add(e.Cost)
	m.tokensTotal.WithLabelValues(e.Provider, e.RequestType, e.UserID, success).Add(float64(e.Tokens))
	m.requestsTotal.WithLabelValues(e.Provider, e.RequestType, e.UserID, success).Inc()
}

// RecordBucketWriteFailure counts one failed rollup increment.
func (m *Metrics) RecordBucketWriteFailure(kind ScopeKind, period Period) {
	if m == nil {
		return
	}
	m.bucketWriteFailures.WithLabelValues(string(kind), string(period)).Inc()
}

// RecordAlert counts one raised alert.
func (m *Metrics) RecordAlert(severity string) {
	if m == nil {
		return
	}
	m.alertsTotal.WithLabelValues(severity).Inc()
}

// RecordAction counts one executed remediation action.
func (m *Metrics) RecordAction(action string, ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.actionsTotal.WithLabelValues(action, result).Inc()
}

// ObserveEvaluationDuration records the latency of a threshold pass.
func (m *Metrics) ObserveEvaluationDuration(seconds float64) {
	if m == nil {
		return
	}
	m.evaluationDuration.Observe(seconds)
}

// RecordPrediction publishes the latest forecast for a scope/period.
func (m *Metrics) RecordPrediction(scope Scope, period Period, predicted, confidence float64) {
	if m == nil {
		return
	}
	m.predictedUsage.WithLabelValues(scope.Key(), string(period)).Set(predicted)
	m.predictionConfidence.WithLabelValues(scope.Key(), string(period)).Set(confidence)
}
