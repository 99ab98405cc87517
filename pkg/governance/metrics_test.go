package governance

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_RecordEvent(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics("test", registry)

	event := testEvent()
	m.RecordEvent(event)
	m.RecordEvent(event)

	cost := testutil.ToFloat64(m.costTotal.WithLabelValues("openai", "chat", "alice", "true"))
	if !almostEqual(cost, 0.20) {
		t.Errorf("cost counter = %f, want 0.20", cost)
	}
	requests := testutil.ToFloat64(m.requestsTotal.WithLabelValues("openai", "chat", "alice", "true"))
	if requests != 2 {
		t.Errorf("request counter = %f, want 2", requests)
	}
	tokens := testutil.ToFloat64(m.tokensTotal.WithLabelValues("openai", "chat", "alice", "true"))
	if tokens != 400 {
		t.Errorf("token counter = %f, want 400", tokens)
	}
}

func TestMetrics_AlertsAndActions(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics("test", registry)

	m.RecordAlert("critical")
	m.RecordAction("throttle", true)
	m.RecordAction("throttle", false)

	if got := testutil.ToFloat64(m.alertsTotal.WithLabelValues("critical")); got != 1 {
		t.Errorf("alert counter = %f, want 1", got)
	}
	if got := testutil.ToFloat64(m.actionsTotal.WithLabelValues("throttle", "ok")); got != 1 {
		t.Errorf("action ok counter = %f, want 1", got)
	}
	if got := testutil.ToFloat64(m.actionsTotal.WithLabelValues("throttle", "error")); got != 1 {
		t.Errorf("action error counter = %f, want 1", got)
	}
}

func TestMetrics_RecordPrediction(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics("test", registry)

	m.RecordPrediction(UserScope("alice"), PeriodMonthly, 123.45, 0.8)

	predicted := testutil.ToFloat64(m.predictedUsage.WithLabelValues("user:alice", "monthly"))
	if !almostEqual(predicted, 123.45) {
		t.Errorf("predicted gauge = %f, want 123.45", predicted)
	}
	confidence := testutil.ToFloat64(m.predictionConfidence.WithLabelValues("user:alice", "monthly"))
	if !almostEqual(confidence, 0.8) {
		t.Errorf("confidence gauge = %f, want 0.8", confidence)
	}
}

// A nil Metrics must be safe to call so components can run unmetered.
func TestMetrics_NilReceiver(t *testing.T) {
	var m *Metrics

	m.RecordEvent(testEvent())
	m.RecordBucketWriteFailure(ScopeUser, PeriodDaily)
	m.RecordAlert("warning")
	m.RecordAction("alert", true)
	m.ObserveEvaluationDuration(0.01)
	m.RecordPrediction(GlobalScope(), PeriodDaily, 1, 0.5)
}
