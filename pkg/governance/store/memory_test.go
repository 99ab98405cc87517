package store

import (
	"context"
	"testing"
	"time"
)

func TestMemoryBackend_AddToBucket_Accumulates(t *testing.T) {
	backend := NewMemoryBackend()
	defer backend.Close()

	ctx := context.Background()
	delta := BucketDelta{Cost: 0.5, Requests: 1, Tokens: 100, SuccessfulRequests: 1}

	for i := 0; i < 3; i++ {
		if err := backend.AddToBucket(ctx, "global", "daily", "2025-03-05", delta); err != nil {
			t.Fatalf("AddToBucket failed: %v", err)
		}
	}

	row, err := backend.GetBucket(ctx, "global", "daily", "2025-03-05")
	if err != nil {
		t.Fatalf("GetBucket failed: %v", err)
	}
	if row == nil {
		t.Fatal("Expected bucket row")
	}
	if row.TotalCost != 1.5 {
		t.Errorf("TotalCost = %v, want 1.5", row.TotalCost)
	}
	if row.TotalRequests != 3 {
		t.Errorf("TotalRequests = %d, want 3", row.TotalRequests)
	}
	if row.TotalTokens != 300 {
		t.Errorf("TotalTokens = %d, want 300", row.TotalTokens)
	}
	if row.SuccessfulRequests != 3 {
		t.Errorf("SuccessfulRequests = %d, want 3", row.SuccessfulRequests)
	}
}

func TestMemoryBackend_AddToBucket_EmptyKey(t *testing.T) {
	backend := NewMemoryBackend()
	defer backend.Close()

	if err := backend.AddToBucket(context.Background(), "", "daily", "2025-03-05", BucketDelta{}); err == nil {
		t.Error("Expected error for empty scope")
	}
}

func TestMemoryBackend_GetBucket_Missing(t *testing.T) {
	backend := NewMemoryBackend()
	defer backend.Close()

	row, err := backend.GetBucket(context.Background(), "global", "daily", "2099-01-01")
	if err != nil {
		t.Fatalf("GetBucket failed: %v", err)
	}
	if row != nil {
		t.Errorf("Expected nil for missing bucket, got %+v", row)
	}
}

func TestMemoryBackend_RangeBuckets(t *testing.T) {
	backend := NewMemoryBackend()
	defer backend.Close()

	ctx := context.Background()
	labels := []string{"2025-03-03", "2025-03-01", "2025-03-02", "2025-03-05"}
	for _, label := range labels {
		if err := backend.AddToBucket(ctx, "global", "daily", label, BucketDelta{Requests: 1}); err != nil {
			t.Fatalf("AddToBucket failed: %v", err)
		}
	}
	// Different scope must not leak into the range.
	if err := backend.AddToBucket(ctx, "user:alice", "daily", "2025-03-02", BucketDelta{Requests: 1}); err != nil {
		t.Fatalf("AddToBucket failed: %v", err)
	}

	rows, err := backend.RangeBuckets(ctx, "global", "daily", "2025-03-01", "2025-03-03")
	if err != nil {
		t.Fatalf("RangeBuckets failed: %v", err)
	}

	want := []string{"2025-03-01", "2025-03-02", "2025-03-03"}
	if len(rows) != len(want) {
		t.Fatalf("got %d rows, want %d", len(rows), len(want))
	}
	for i, label := range want {
		if rows[i].Label != label {
			t.Errorf("row %d label = %q, want %q", i, rows[i].Label, label)
		}
	}
}

func TestMemoryBackend_ListScopes(t *testing.T) {
	backend := NewMemoryBackend()
	defer backend.Close()

	ctx := context.Background()
	for _, scope := range []string{"user:alice", "user:bob", "provider:openai", "global"} {
		if err := backend.AddToBucket(ctx, scope, "daily", "2025-03-05", BucketDelta{Requests: 1}); err != nil {
			t.Fatalf("AddToBucket failed: %v", err)
		}
	}

	scopes, err := backend.ListScopes(ctx, "user:")
	if err != nil {
		t.Fatalf("ListScopes failed: %v", err)
	}
	if len(scopes) != 2 {
		t.Fatalf("got %d scopes, want 2: %v", len(scopes), scopes)
	}
	if scopes[0] != "user:alice" || scopes[1] != "user:bob" {
		t.Errorf("unexpected scopes: %v", scopes)
	}
}

func TestMemoryBackend_Thresholds(t *testing.T) {
	backend := NewMemoryBackend()
	defer backend.Close()

	ctx := context.Background()
	row := &ThresholdRow{ID: "t1", Scope: "global", Document: []byte(`{}`), UpdatedAt: time.Now()}
	if err := backend.SaveThreshold(ctx, row); err != nil {
		t.Fatalf("SaveThreshold failed: %v", err)
	}

	got, err := backend.GetThreshold(ctx, "t1")
	if err != nil {
		t.Fatalf("GetThreshold failed: %v", err)
	}
	if got == nil || got.Scope != "global" {
		t.Fatalf("unexpected row: %+v", got)
	}

	other := &ThresholdRow{ID: "t2", Scope: "user:alice", Document: []byte(`{}`)}
	if err := backend.SaveThreshold(ctx, other); err != nil {
		t.Fatalf("SaveThreshold failed: %v", err)
	}

	all, err := backend.ListThresholds(ctx, "")
	if err != nil {
		t.Fatalf("ListThresholds failed: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("got %d thresholds, want 2", len(all))
	}

	scoped, err := backend.ListThresholds(ctx, "user:alice")
	if err != nil {
		t.Fatalf("ListThresholds failed: %v", err)
	}
	if len(scoped) != 1 || scoped[0].ID != "t2" {
		t.Errorf("unexpected scoped rows: %+v", scoped)
	}

	if err := backend.DeleteThreshold(ctx, "t1"); err != nil {
		t.Fatalf("DeleteThreshold failed: %v", err)
	}
	if err := backend.DeleteThreshold(ctx, "t1"); err != ErrRowNotFound {
		t.Errorf("second delete = %v, want ErrRowNotFound", err)
	}
}

func TestMemoryBackend_ListAlerts_NewestFirst(t *testing.T) {
	backend := NewMemoryBackend()
	defer backend.Close()

	ctx := context.Background()
	base := time.Date(2025, 3, 5, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"a1", "a2", "a3"} {
		row := &AlertRow{
			ID:        id,
			Scope:     "global",
			Document:  []byte(`{}`),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := backend.SaveAlert(ctx, row); err != nil {
			t.Fatalf("SaveAlert failed: %v", err)
		}
	}

	rows, err := backend.ListAlerts(ctx, "global", 2)
	if err != nil {
		t.Fatalf("ListAlerts failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	if rows[0].ID != "a3" || rows[1].ID != "a2" {
		t.Errorf("unexpected order: %s, %s", rows[0].ID, rows[1].ID)
	}
}

func TestMemoryBackend_Cleanup(t *testing.T) {
	backend := NewMemoryBackend()
	defer backend.Close()

	ctx := context.Background()
	now := time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC)

	expired := &EventRow{
		ID: "e1", UserID: "alice", Timestamp: now.Add(-100 * 24 * time.Hour),
		Document: []byte(`{}`), RetentionUntil: now.Add(-10 * 24 * time.Hour),
	}
	fresh := &EventRow{
		ID: "e2", UserID: "alice", Timestamp: now,
		Document: []byte(`{}`), RetentionUntil: now.Add(90 * 24 * time.Hour),
	}
	for _, row := range []*EventRow{expired, fresh} {
		if err := backend.PutEvent(ctx, row); err != nil {
			t.Fatalf("PutEvent failed: %v", err)
		}
	}

	staleAlert := &AlertRow{
		ID: "a1", Scope: "global", Document: []byte(`{}`),
		CreatedAt: now.Add(-40 * 24 * time.Hour), RetentionUntil: now.Add(-10 * 24 * time.Hour),
	}
	if err := backend.SaveAlert(ctx, staleAlert); err != nil {
		t.Fatalf("SaveAlert failed: %v", err)
	}

	deleted, err := backend.Cleanup(ctx, now)
	if err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}
	if deleted != 2 {
		t.Errorf("deleted = %d, want 2", deleted)
	}
	if backend.EventCount() != 1 {
		t.Errorf("EventCount = %d, want 1", backend.EventCount())
	}

	alerts, err := backend.ListAlerts(ctx, "global", 0)
	if err != nil {
		t.Fatalf("ListAlerts failed: %v", err)
	}
	if len(alerts) != 0 {
		t.Errorf("expected expired alert purged, got %d rows", len(alerts))
	}
}
