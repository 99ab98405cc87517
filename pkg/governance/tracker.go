package governance

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"finops-hq/spendguard/pkg/governance/store"
)

// EventRetention is how long cost event detail rows are kept before
// the store may purge them.
const EventRetention = 90 * 24 * time.Hour

// Tracker ingests immutable cost events, fans out rollup increments,
// and answers point, range, and pattern usage queries.
//
// Every event contributes to four scopes (global, user, provider,
// request type) across three rollup periods (hourly, daily, monthly):
// twelve independent atomic increments. The increments are best-effort
// and at-least-once; a failed increment is logged and counted but never
// rolls back the others, so scopes and periods may drift apart under
// partial store failure until the affected buckets expire.
type Tracker struct {
	store   store.Backend
	metrics *Metrics
	logger  *slog.Logger

	// now is the clock, overridable in tests.
	now func() time.Time
}

// NewTracker creates a cost tracker on top of the given store backend.
// A nil logger falls back to slog.Default(); metrics may be nil.
func NewTracker(backend store.Backend, metrics *Metrics, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		store:   backend,
		metrics: metrics,
		logger:  logger.With("component", "governance.tracker"),
		now:     time.Now,
	}
}

// RecordCost validates and records one cost event: an immutable detail
// row with a 90-day retention deadline, twelve rollup increments, and
// the cost/tokens/requests metric triple.
//
// Only validation failures are returned as errors. Store write
// failures on the detail row or any single increment are logged and
// counted; ingestion still reports success overall.
func (t *Tracker) RecordCost(ctx context.Context, event *CostEvent) error {
	if err := event.Validate(); err != nil {
		return err
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = t.now()
	}

	t.writeDetailRow(ctx, event)

	delta := store.BucketDelta{
		Cost:     event.Cost,
		Requests: 1,
		Tokens:   event.Tokens,
	}
	if event.Metadata.Success {
		delta.SuccessfulRequests = 1
	}

	for _, scope := range event.Scopes() {
		for _, period := range RollupPeriods {
			label := BucketLabel(period, event.Timestamp)
			if err := t.store.AddToBucket(ctx, scope.Key(), string(period), label, delta); err != nil {
				t.metrics.RecordBucketWriteFailure(scope.Kind, period)
				t.logger.ErrorContext(ctx, "bucket increment failed",
					"scope", scope.Key(),
					"period", period,
					"label", label,
					"error", err,
				)
			}
		}
	}

	t.metrics.RecordEvent(event)
	return nil
}

// writeDetailRow persists the immutable event document.
func (t *Tracker) writeDetailRow(ctx context.Context, event *CostEvent) {
	document, err := json.Marshal(event)
	if err != nil {
		t.logger.ErrorContext(ctx, "event encode failed", "event_id", event.ID, "error", err)
		return
	}

	row := &store.EventRow{
		ID:             event.ID,
		UserID:         event.UserID,
		Timestamp:      event.Timestamp,
		Document:       document,
		RetentionUntil: event.Timestamp.Add(EventRetention),
	}
	if err := t.store.PutEvent(ctx, row); err != nil {
		t.logger.ErrorContext(ctx, "event detail write failed", "event_id", event.ID, "error", err)
	}
}

// CurrentUsage returns the running sums for the current time bucket of
// a scope and period. A bucket that does not exist yet reads as zero.
//
// Weekly usage is derived by summing the current ISO week's daily
// buckets, since the write fan-out does not maintain weekly rows.
// Store read failures degrade to zero usage rather than failing.
func (t *Tracker) CurrentUsage(ctx context.Context, scope Scope, period Period) (Usage, error) {
	if !scope.Valid() {
		return Usage{}, fmt.Errorf("%w: invalid scope", ErrValidation)
	}
	if !period.Valid() {
		return Usage{}, fmt.Errorf("%w: invalid period %q", ErrValidation, period)
	}

	now := t.now()

	if period == PeriodWeekly {
		from := BucketLabel(PeriodDaily, PeriodStart(PeriodWeekly, now))
		to := BucketLabel(PeriodDaily, now)
		rows, err := t.store.RangeBuckets(ctx, scope.Key(), string(PeriodDaily), from, to)
		if err != nil {
			t.logger.WarnContext(ctx, "weekly usage read degraded to zero",
				"scope", scope.Key(), "error", err)
			return Usage{}, nil
		}
		return sumBuckets(rows), nil
	}

	row, err := t.store.GetBucket(ctx, scope.Key(), string(period), BucketLabel(period, now))
	if err != nil {
		t.logger.WarnContext(ctx, "usage read degraded to zero",
			"scope", scope.Key(), "period", period, "error", err)
		return Usage{}, nil
	}
	if row == nil {
		return Usage{}, nil
	}
	return bucketUsage(row), nil
}

// bucketUsage converts a bucket row into a usage snapshot.
func bucketUsage(row *store.BucketRow) Usage {
	return Usage{
		Cost:               row.TotalCost,
		Requests:           row.TotalRequests,
		Tokens:             row.TotalTokens,
		SuccessfulRequests: row.SuccessfulRequests,
	}
}

// sumBuckets accumulates usage over a set of bucket rows.
func sumBuckets(rows []*store.BucketRow) Usage {
	var total Usage
	for _, row := range rows {
		total.Add(bucketUsage(row))
	}
	return total
}
