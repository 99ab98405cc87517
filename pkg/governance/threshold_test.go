package governance

import (
	"context"
	"errors"
	"testing"
	"time"

	"finops-hq/spendguard/pkg/governance/notify"
	"finops-hq/spendguard/pkg/governance/store"
)

type thresholdFixture struct {
	backend   *store.MemoryBackend
	tracker   *Tracker
	manager   *ThresholdManager
	publisher *notify.ChannelPublisher
	now       time.Time
}

func newThresholdFixture(t *testing.T) *thresholdFixture {
	t.Helper()

	now := time.Date(2025, 3, 5, 14, 0, 0, 0, time.UTC)
	backend := store.NewMemoryBackend()
	t.Cleanup(func() { backend.Close() })

	tracker := NewTracker(backend, nil, nil)
	tracker.now = func() time.Time { return now }

	publisher := notify.NewChannelPublisher(32)
	dispatcher := NewDispatcher(publisher, nil, nil)

	manager := NewThresholdManager(backend, tracker, dispatcher, nil, nil)
	manager.now = func() time.Time { return now }

	return &thresholdFixture{
		backend:   backend,
		tracker:   tracker,
		manager:   manager,
		publisher: publisher,
		now:       now,
	}
}

func (f *thresholdFixture) record(t *testing.T, cost float64) {
	t.Helper()

	event := testEvent()
	event.Cost = cost
	event.Timestamp = f.now
	if err := f.tracker.RecordCost(context.Background(), event); err != nil {
		t.Fatalf("RecordCost failed: %v", err)
	}
}

func dailyCostThreshold(limit, warningLevel float64) *Threshold {
	return &Threshold{
		Name:         "daily budget",
		Type:         ThresholdCost,
		Scope:        GlobalScope(),
		Period:       PeriodDaily,
		Limit:        limit,
		WarningLevel: warningLevel,
		Enabled:      true,
		Actions:      Actions{&AlertAction{actionBase{Enabled: true}}},
	}
}

func TestThresholdCRUD(t *testing.T) {
	f := newThresholdFixture(t)
	ctx := context.Background()

	created, err := f.manager.CreateThreshold(ctx, dailyCostThreshold(100, 80))
	if err != nil {
		t.Fatalf("CreateThreshold failed: %v", err)
	}
	if created.ID == "" {
		t.Fatal("Expected generated id")
	}
	if created.CreatedAt.IsZero() || created.UpdatedAt.IsZero() {
		t.Error("Expected timestamps to be set")
	}

	got, err := f.manager.GetThreshold(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetThreshold failed: %v", err)
	}
	if got.Name != "daily budget" {
		t.Errorf("Name = %q", got.Name)
	}

	got.Limit = 200
	updated, err := f.manager.UpdateThreshold(ctx, got)
	if err != nil {
		t.Fatalf("UpdateThreshold failed: %v", err)
	}
	if updated.Limit != 200 {
		t.Errorf("Limit = %v, want 200", updated.Limit)
	}
	if !updated.CreatedAt.Equal(created.CreatedAt) {
		t.Error("update must preserve CreatedAt")
	}

	list, err := f.manager.ListThresholds(ctx, nil)
	if err != nil {
		t.Fatalf("ListThresholds failed: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("got %d thresholds, want 1", len(list))
	}

	if err := f.manager.DeleteThreshold(ctx, created.ID); err != nil {
		t.Fatalf("DeleteThreshold failed: %v", err)
	}
	if err := f.manager.DeleteThreshold(ctx, created.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete = %v, want ErrNotFound", err)
	}
	if _, err := f.manager.GetThreshold(ctx, created.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetThreshold after delete = %v, want ErrNotFound", err)
	}
}

func TestThresholdValidation(t *testing.T) {
	f := newThresholdFixture(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*Threshold)
	}{
		{"missing name", func(th *Threshold) { th.Name = "" }},
		{"bad type", func(th *Threshold) { th.Type = "elevation" }},
		{"zero limit", func(th *Threshold) { th.Limit = 0 }},
		{"negative limit", func(th *Threshold) { th.Limit = -5 }},
		{"warning above 100", func(th *Threshold) { th.WarningLevel = 120 }},
		{"bad period", func(th *Threshold) { th.Period = "decade" }},
	}

	for _, tt := range tests {
		threshold := dailyCostThreshold(100, 80)
		tt.mutate(threshold)
		if _, err := f.manager.CreateThreshold(ctx, threshold); !errors.Is(err, ErrValidation) {
			t.Errorf("%s: error %v is not ErrValidation", tt.name, err)
		}
	}
}

func TestCheckThresholds_NoBreach(t *testing.T) {
	f := newThresholdFixture(t)
	ctx := context.Background()

	if _, err := f.manager.CreateThreshold(ctx, dailyCostThreshold(100, 80)); err != nil {
		t.Fatalf("CreateThreshold failed: %v", err)
	}
	f.record(t, 10) // 10% of limit

	report, err := f.manager.CheckThresholds(ctx)
	if err != nil {
		t.Fatalf("CheckThresholds failed: %v", err)
	}
	if report.Evaluated != 1 {
		t.Errorf("Evaluated = %d, want 1", report.Evaluated)
	}
	if report.Alerts != 0 {
		t.Errorf("Alerts = %d, want 0", report.Alerts)
	}
	if report.Results[0].Severity != "" {
		t.Errorf("Severity = %q, want none", report.Results[0].Severity)
	}
}

func TestCheckThresholds_Warning(t *testing.T) {
	f := newThresholdFixture(t)
	ctx := context.Background()

	if _, err := f.manager.CreateThreshold(ctx, dailyCostThreshold(100, 80)); err != nil {
		t.Fatalf("CreateThreshold failed: %v", err)
	}
	f.record(t, 85) // 85% of limit

	report, err := f.manager.CheckThresholds(ctx)
	if err != nil {
		t.Fatalf("CheckThresholds failed: %v", err)
	}
	if report.Alerts != 1 {
		t.Fatalf("Alerts = %d, want 1", report.Alerts)
	}
	result := report.Results[0]
	if result.Severity != SeverityWarning {
		t.Errorf("Severity = %s, want warning", result.Severity)
	}
	if result.PercentageUsed != 85 {
		t.Errorf("PercentageUsed = %v, want 85", result.PercentageUsed)
	}
	if result.AlertID == "" {
		t.Error("Expected alert id on result")
	}
}

func TestCheckThresholds_CriticalSuppressesWarning(t *testing.T) {
	f := newThresholdFixture(t)
	ctx := context.Background()

	if _, err := f.manager.CreateThreshold(ctx, dailyCostThreshold(100, 80)); err != nil {
		t.Fatalf("CreateThreshold failed: %v", err)
	}
	f.record(t, 150) // 150% of limit: critical, never an extra warning

	report, err := f.manager.CheckThresholds(ctx)
	if err != nil {
		t.Fatalf("CheckThresholds failed: %v", err)
	}
	if report.Alerts != 1 {
		t.Fatalf("Alerts = %d, want exactly 1", report.Alerts)
	}
	if report.Results[0].Severity != SeverityCritical {
		t.Errorf("Severity = %s, want critical", report.Results[0].Severity)
	}

	alerts, err := f.manager.RecentAlerts(ctx, nil, 0)
	if err != nil {
		t.Fatalf("RecentAlerts failed: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("got %d stored alerts, want 1", len(alerts))
	}
	if alerts[0].Severity != SeverityCritical {
		t.Errorf("stored severity = %s, want critical", alerts[0].Severity)
	}
}

func TestCheckThresholds_ShutdownActionKeepsAlertCritical(t *testing.T) {
	f := newThresholdFixture(t)
	ctx := context.Background()

	threshold := dailyCostThreshold(100, 80)
	threshold.Actions = Actions{
		&AlertAction{actionBase{Enabled: true}},
		&EmergencyShutdownAction{actionBase: actionBase{Enabled: true}, Duration: time.Hour},
	}
	if _, err := f.manager.CreateThreshold(ctx, threshold); err != nil {
		t.Fatalf("CreateThreshold failed: %v", err)
	}
	f.record(t, 120)

	report, err := f.manager.CheckThresholds(ctx)
	if err != nil {
		t.Fatalf("CheckThresholds failed: %v", err)
	}

	// A limit breach is always a critical alert; the shutdown action
	// escalates only its own broadcast.
	if report.Results[0].Severity != SeverityCritical {
		t.Errorf("Severity = %s, want critical", report.Results[0].Severity)
	}

	alerts, err := f.manager.RecentAlerts(ctx, nil, 0)
	if err != nil {
		t.Fatalf("RecentAlerts failed: %v", err)
	}
	if len(alerts) != 1 || alerts[0].Severity != SeverityCritical {
		t.Fatalf("stored alerts = %+v, want one critical", alerts)
	}

	var shutdown *RemediationSignal
	for len(f.publisher.Messages()) > 0 {
		envelope := <-f.publisher.Messages()
		if envelope.Topic != notify.TopicEmergency {
			continue
		}
		signal := envelope.Message.(RemediationSignal)
		shutdown = &signal
	}
	if shutdown == nil {
		t.Fatal("no emergency broadcast published")
	}
	if shutdown.Severity != SeverityEmergency {
		t.Errorf("broadcast severity = %s, want emergency", shutdown.Severity)
	}
}

func TestCheckThresholds_DisabledSkipped(t *testing.T) {
	f := newThresholdFixture(t)
	ctx := context.Background()

	threshold := dailyCostThreshold(100, 80)
	threshold.Enabled = false
	if _, err := f.manager.CreateThreshold(ctx, threshold); err != nil {
		t.Fatalf("CreateThreshold failed: %v", err)
	}
	f.record(t, 500)

	report, err := f.manager.CheckThresholds(ctx)
	if err != nil {
		t.Fatalf("CheckThresholds failed: %v", err)
	}
	if report.Evaluated != 0 {
		t.Errorf("Evaluated = %d, want 0", report.Evaluated)
	}
}

func TestCheckThresholds_ActionsInOrder(t *testing.T) {
	f := newThresholdFixture(t)
	ctx := context.Background()

	threshold := dailyCostThreshold(100, 80)
	threshold.Actions = Actions{
		&AlertAction{actionBase{Enabled: true}},
		&ThrottleAction{actionBase: actionBase{Enabled: false}, Ratio: 0.5},
		&SwitchProviderAction{actionBase: actionBase{Enabled: true}, TargetProvider: "cheap"},
	}
	if _, err := f.manager.CreateThreshold(ctx, threshold); err != nil {
		t.Fatalf("CreateThreshold failed: %v", err)
	}
	f.record(t, 120)

	report, err := f.manager.CheckThresholds(ctx)
	if err != nil {
		t.Fatalf("CheckThresholds failed: %v", err)
	}

	actions := report.Results[0].Actions
	if len(actions) != 3 {
		t.Fatalf("got %d action results, want 3", len(actions))
	}
	wantKinds := []ActionKind{ActionAlert, ActionThrottle, ActionSwitchProvider}
	for i, kind := range wantKinds {
		if actions[i].Kind != kind {
			t.Errorf("action %d kind = %s, want %s", i, actions[i].Kind, kind)
		}
	}
	if !actions[0].Executed || actions[1].Executed || !actions[2].Executed {
		t.Errorf("unexpected execution pattern: %+v", actions)
	}
	if !actions[1].Skipped {
		t.Error("disabled action must be skipped")
	}
}

func TestCheckThresholds_PersistsCurrentUsage(t *testing.T) {
	f := newThresholdFixture(t)
	ctx := context.Background()

	created, err := f.manager.CreateThreshold(ctx, dailyCostThreshold(100, 80))
	if err != nil {
		t.Fatalf("CreateThreshold failed: %v", err)
	}
	f.record(t, 42)

	if _, err := f.manager.CheckThresholds(ctx); err != nil {
		t.Fatalf("CheckThresholds failed: %v", err)
	}

	got, err := f.manager.GetThreshold(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetThreshold failed: %v", err)
	}
	if got.CurrentUsage != 42 {
		t.Errorf("CurrentUsage = %v, want 42", got.CurrentUsage)
	}
}

func TestRecentAlerts_DefaultsToGlobal(t *testing.T) {
	f := newThresholdFixture(t)
	ctx := context.Background()

	if _, err := f.manager.CreateThreshold(ctx, dailyCostThreshold(100, 80)); err != nil {
		t.Fatalf("CreateThreshold failed: %v", err)
	}
	f.record(t, 90)
	if _, err := f.manager.CheckThresholds(ctx); err != nil {
		t.Fatalf("CheckThresholds failed: %v", err)
	}

	alerts, err := f.manager.RecentAlerts(ctx, nil, 10)
	if err != nil {
		t.Fatalf("RecentAlerts failed: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("got %d alerts, want 1", len(alerts))
	}
	if alerts[0].Scope.Key() != "global" {
		t.Errorf("alert scope = %s, want global", alerts[0].Scope.Key())
	}
	if len(alerts[0].RecommendedActions) != 1 || alerts[0].RecommendedActions[0] != ActionAlert {
		t.Errorf("unexpected recommended actions: %v", alerts[0].RecommendedActions)
	}
}

func TestAcknowledgeAlert(t *testing.T) {
	f := newThresholdFixture(t)
	ctx := context.Background()

	if _, err := f.manager.CreateThreshold(ctx, dailyCostThreshold(100, 80)); err != nil {
		t.Fatalf("CreateThreshold failed: %v", err)
	}
	f.record(t, 90)
	if _, err := f.manager.CheckThresholds(ctx); err != nil {
		t.Fatalf("CheckThresholds failed: %v", err)
	}

	alerts, err := f.manager.RecentAlerts(ctx, nil, 1)
	if err != nil {
		t.Fatalf("RecentAlerts failed: %v", err)
	}
	original := alerts[0]

	acked, err := f.manager.AcknowledgeAlert(ctx, original.ID)
	if err != nil {
		t.Fatalf("AcknowledgeAlert failed: %v", err)
	}
	if !acked.Acknowledged || acked.AcknowledgedAt == nil {
		t.Errorf("expected acknowledgement set: %+v", acked)
	}
	// Only the ack fields may change.
	if acked.Severity != original.Severity || acked.CurrentUsage != original.CurrentUsage {
		t.Error("acknowledgement must not mutate other fields")
	}

	if _, err := f.manager.AcknowledgeAlert(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("AcknowledgeAlert(missing) = %v, want ErrNotFound", err)
	}
}
