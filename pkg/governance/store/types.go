package store

import (
	"context"
	"errors"
	"time"
)

// ErrRowNotFound is returned when a delete targets a row that does not
// exist.
var ErrRowNotFound = errors.New("row not found")

// Backend defines the interface for governance state persistence.
// Implementations must be thread-safe and support concurrent access.
type Backend interface {
	// AddToBucket atomically adds delta to the bucket's running sums,
	// creating the bucket if it does not exist. At most one bucket row
	// exists per (scope, period, label); its fields never decrease.
	AddToBucket(ctx context.Context, scope string, period string, label string, delta BucketDelta) error

	// GetBucket returns the bucket row, or nil if no event has touched
	// that bucket yet. Returns error only on system failure.
	GetBucket(ctx context.Context, scope, period, label string) (*BucketRow, error)

	// RangeBuckets returns bucket rows for a scope and period with
	// fromLabel <= label <= toLabel, ordered by label ascending.
	RangeBuckets(ctx context.Context, scope, period, fromLabel, toLabel string) ([]*BucketRow, error)

	// ListScopes returns the distinct scope keys that own at least one
	// bucket row and start with keyPrefix, e.g. "provider:".
	ListScopes(ctx context.Context, keyPrefix string) ([]string, error)

	// PutEvent appends an immutable event detail row.
	PutEvent(ctx context.Context, row *EventRow) error

	// SaveThreshold inserts or replaces a threshold document by id.
	SaveThreshold(ctx context.Context, row *ThresholdRow) error

	// GetThreshold returns the threshold row by id, or nil if absent.
	GetThreshold(ctx context.Context, id string) (*ThresholdRow, error)

	// ListThresholds returns threshold rows for a scope key, or all
	// thresholds when scope is empty.
	ListThresholds(ctx context.Context, scope string) ([]*ThresholdRow, error)

	// DeleteThreshold removes a threshold row. Returns ErrRowNotFound
	// if no row has that id.
	DeleteThreshold(ctx context.Context, id string) error

	// SaveAlert inserts or replaces an alert document by id.
	SaveAlert(ctx context.Context, row *AlertRow) error

	// GetAlert returns the alert row by id, or nil if absent.
	GetAlert(ctx context.Context, id string) (*AlertRow, error)

	// ListAlerts returns up to limit alert rows for a scope key, newest
	// first. A limit <= 0 means no limit.
	ListAlerts(ctx context.Context, scope string, limit int) ([]*AlertRow, error)

	// Cleanup purges event and alert rows whose retention deadline has
	// passed. Returns the number of rows deleted.
	Cleanup(ctx context.Context, now time.Time) (int, error)

	// Close releases any resources held by the backend.
	Close() error
}

// BucketDelta is one atomic contribution to a bucket's running sums.
type BucketDelta struct {
	Cost               float64
	Requests           int64
	Tokens             int64
	SuccessfulRequests int64
}

// BucketRow is the running-sum row for one (scope, period, label).
type BucketRow struct {
	Scope  string
	Period string
	Label  string

	TotalCost          float64
	TotalRequests      int64
	TotalTokens        int64
	SuccessfulRequests int64

	LastUpdated time.Time
}

// EventRow is an immutable cost event detail row, keyed by owning user
// and timestamp with the serialized event as document payload.
type EventRow struct {
	ID             string
	UserID         string
	Timestamp      time.Time
	Document       []byte
	RetentionUntil time.Time
}

// ThresholdRow is a threshold document partitioned by its scope key.
// The id column doubles as the lookup index across scopes.
type ThresholdRow struct {
	ID        string
	Scope     string
	Document  []byte
	UpdatedAt time.Time
}

// AlertRow is an alert document partitioned by its threshold's scope
// key, retained for 30 days.
type AlertRow struct {
	ID             string
	Scope          string
	Document       []byte
	CreatedAt      time.Time
	RetentionUntil time.Time
}
