package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryBackend implements Backend using in-memory storage.
// This is the default backend and provides fast access with no
// persistence. All data is lost when the process exits.
//
// MemoryBackend is thread-safe; every bucket add runs under the write
// lock, which gives the per-bucket linearizable increments the tracker
// depends on.
type MemoryBackend struct {
	// buckets maps composite key (scope|period|label) to bucket row.
	buckets map[string]*BucketRow

	// events holds detail rows in insertion order.
	events []*EventRow

	// thresholds and alerts are keyed by id; scope partitioning is
	// answered by filtering on the row's scope column.
	thresholds map[string]*ThresholdRow
	alerts     map[string]*AlertRow

	mu sync.RWMutex
}

// NewMemoryBackend creates a new in-memory storage backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		buckets:    make(map[string]*BucketRow),
		thresholds: make(map[string]*ThresholdRow),
		alerts:     make(map[string]*AlertRow),
	}
}

// AddToBucket atomically adds delta to the bucket's running sums.
func (m *MemoryBackend) AddToBucket(ctx context.Context, scope, period, label string, delta BucketDelta) error {
	if scope == "" || period == "" || label == "" {
		return fmt.Errorf("scope, period, and label cannot be empty")
	}

	key := bucketKey(scope, period, label)

	m.mu.Lock()
	defer m.mu.Unlock()

	row, exists := m.buckets[key]
	if !exists {
		row = &BucketRow{Scope: scope, Period: period, Label: label}
		m.buckets[key] = row
	}

	row.TotalCost += delta.Cost
	row.TotalRequests += delta.Requests
	row.TotalTokens += delta.Tokens
	row.SuccessfulRequests += delta.SuccessfulRequests
	row.LastUpdated = time.Now()

	return nil
}

// GetBucket returns the bucket row, or nil if it does not exist.
func (m *MemoryBackend) GetBucket(ctx context.Context, scope, period, label string) (*BucketRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	row, exists := m.buckets[bucketKey(scope, period, label)]
	if !exists {
		return nil, nil
	}

	copied := *row
	return &copied, nil
}

// RangeBuckets returns bucket rows in [fromLabel, toLabel], ordered by label.
func (m *MemoryBackend) RangeBuckets(ctx context.Context, scope, period, fromLabel, toLabel string) ([]*BucketRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var rows []*BucketRow
	for _, row := range m.buckets {
		if row.Scope != scope || row.Period != period {
			continue
		}
		if row.Label < fromLabel || row.Label > toLabel {
			continue
		}
		copied := *row
		rows = append(rows, &copied)
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].Label < rows[j].Label })
	return rows, nil
}

// ListScopes returns distinct scope keys with bucket rows matching keyPrefix.
func (m *MemoryBackend) ListScopes(ctx context.Context, keyPrefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, row := range m.buckets {
		if strings.HasPrefix(row.Scope, keyPrefix) {
			seen[row.Scope] = struct{}{}
		}
	}

	scopes := make([]string, 0, len(seen))
	for scope := range seen {
		scopes = append(scopes, scope)
	}
	sort.Strings(scopes)
	return scopes, nil
}

// PutEvent appends an immutable event detail row.
func (m *MemoryBackend) PutEvent(ctx context.Context, row *EventRow) error {
	if row == nil {
		return fmt.Errorf("event row cannot be nil")
	}
	if row.ID == "" || row.UserID == "" {
		return fmt.Errorf("event id and user id cannot be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	copied := *row
	m.events = append(m.events, &copied)
	return nil
}

// EventCount returns the number of stored event rows.
// This is useful for monitoring and testing.
func (m *MemoryBackend) EventCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.events)
}

// SaveThreshold inserts or replaces a threshold document by id.
func (m *MemoryBackend) SaveThreshold(ctx context.Context, row *ThresholdRow) error {
	if row == nil {
		return fmt.Errorf("threshold row cannot be nil")
	}
	if row.ID == "" || row.Scope == "" {
		return fmt.Errorf("threshold id and scope cannot be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	copied := *row
	if copied.UpdatedAt.IsZero() {
		copied.UpdatedAt = time.Now()
	}
	m.thresholds[row.ID] = &copied
	return nil
}

// GetThreshold returns the threshold row by id, or nil if absent.
func (m *MemoryBackend) GetThreshold(ctx context.Context, id string) (*ThresholdRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	row, exists := m.thresholds[id]
	if !exists {
		return nil, nil
	}
	copied := *row
	return &copied, nil
}

// ListThresholds returns threshold rows for a scope, or all when scope is empty.
func (m *MemoryBackend) ListThresholds(ctx context.Context, scope string) ([]*ThresholdRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var rows []*ThresholdRow
	for _, row := range m.thresholds {
		if scope != "" && row.Scope != scope {
			continue
		}
		copied := *row
		rows = append(rows, &copied)
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })
	return rows, nil
}

// DeleteThreshold removes a threshold row.
func (m *MemoryBackend) DeleteThreshold(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.thresholds[id]; !exists {
		return ErrRowNotFound
	}
	delete(m.thresholds, id)
	return nil
}

// SaveAlert inserts or replaces an alert document by id.
func (m *MemoryBackend) SaveAlert(ctx context.Context, row *AlertRow) error {
	if row == nil {
		return fmt.Errorf("alert row cannot be nil")
	}
	if row.ID == "" || row.Scope == "" {
		return fmt.Errorf("alert id and scope cannot be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	copied := *row
	m.alerts[row.ID] = &copied
	return nil
}

// GetAlert returns the alert row by id, or nil if absent.
func (m *MemoryBackend) GetAlert(ctx context.Context, id string) (*AlertRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	row, exists := m.alerts[id]
	if !exists {
		return nil, nil
	}
	copied := *row
	return &copied, nil
}

// ListAlerts returns up to limit alert rows for a scope, newest first.
func (m *MemoryBackend) ListAlerts(ctx context.Context, scope string, limit int) ([]*AlertRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var rows []*AlertRow
	for _, row := range m.alerts {
		if row.Scope != scope {
			continue
		}
		copied := *row
		rows = append(rows, &copied)
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].CreatedAt.After(rows[j].CreatedAt) })
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

// Cleanup purges event and alert rows past their retention deadline.
func (m *MemoryBackend) Cleanup(ctx context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	deleted := 0

	kept := m.events[:0]
	for _, row := range m.events {
		if row.RetentionUntil.Before(now) {
			deleted++
			continue
		}
		kept = append(kept, row)
	}
	m.events = kept

	for id, row := range m.alerts {
		if row.RetentionUntil.Before(now) {
			delete(m.alerts, id)
			deleted++
		}
	}

	return deleted, nil
}

// Close releases any resources held by the backend.
func (m *MemoryBackend) Close() error {
	return nil
}

// bucketKey creates a composite key from scope, period, and label.
func bucketKey(scope, period, label string) string {
	return scope + "|" + period + "|" + label
}
