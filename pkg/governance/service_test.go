package governance

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"finops-hq/spendguard/pkg/governance/store"
)

func TestNewService_Wiring(t *testing.T) {
	backend := store.NewMemoryBackend()

	service, err := NewService(backend, ServiceConfig{
		Registerer: prometheus.NewRegistry(),
	}, nil)
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	defer service.Close()

	if service.Tracker() == nil || service.Thresholds() == nil ||
		service.Predictor() == nil || service.Scheduler() == nil {
		t.Fatal("expected all components to be wired")
	}

	// End to end through the service: record, threshold, evaluate.
	ctx := context.Background()
	if err := service.Tracker().RecordCost(ctx, testEvent()); err != nil {
		t.Fatalf("RecordCost failed: %v", err)
	}

	threshold := dailyCostThreshold(0.05, 50)
	if _, err := service.Thresholds().CreateThreshold(ctx, threshold); err != nil {
		t.Fatalf("CreateThreshold failed: %v", err)
	}

	report, err := service.Thresholds().CheckThresholds(ctx)
	if err != nil {
		t.Fatalf("CheckThresholds failed: %v", err)
	}
	if report.Alerts != 1 {
		t.Errorf("Alerts = %d, want 1", report.Alerts)
	}
}

func TestNewService_RequiresBackend(t *testing.T) {
	if _, err := NewService(nil, ServiceConfig{}, nil); err == nil {
		t.Error("Expected error for nil backend")
	}
}

func TestService_IndependentInstances(t *testing.T) {
	a, err := NewService(store.NewMemoryBackend(), ServiceConfig{Registerer: prometheus.NewRegistry()}, nil)
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	defer a.Close()

	b, err := NewService(store.NewMemoryBackend(), ServiceConfig{Registerer: prometheus.NewRegistry()}, nil)
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	defer b.Close()

	ctx := context.Background()
	if err := a.Tracker().RecordCost(ctx, testEvent()); err != nil {
		t.Fatalf("RecordCost failed: %v", err)
	}

	usage, err := b.Tracker().CurrentUsage(ctx, GlobalScope(), PeriodDaily)
	if err != nil {
		t.Fatalf("CurrentUsage failed: %v", err)
	}
	if usage.Requests != 0 {
		t.Errorf("instance b saw %d requests from instance a", usage.Requests)
	}
}
