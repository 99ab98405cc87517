package governance

import (
	"fmt"
	"strings"
	"time"
)

// Period is the rollup granularity for aggregate buckets, thresholds,
// and predictions.
type Period string

const (
	// PeriodHourly buckets usage per clock hour.
	PeriodHourly Period = "hourly"

	// PeriodDaily buckets usage per calendar day.
	PeriodDaily Period = "daily"

	// PeriodWeekly buckets usage per ISO week.
	PeriodWeekly Period = "weekly"

	// PeriodMonthly buckets usage per calendar month.
	PeriodMonthly Period = "monthly"
)

// RollupPeriods are the periods every cost event is aggregated into.
// Weekly usage is derived from daily buckets at read time, so it is
// not part of the write fan-out.
var RollupPeriods = []Period{PeriodHourly, PeriodDaily, PeriodMonthly}

// Valid reports whether p is a known period.
func (p Period) Valid() bool {
	switch p {
	case PeriodHourly, PeriodDaily, PeriodWeekly, PeriodMonthly:
		return true
	}
	return false
}

// BucketLabel returns the time-bucket label for a period. Labels sort
// lexicographically in time order within a period, which the store's
// range reads rely on.
func BucketLabel(p Period, t time.Time) string {
	t = t.UTC()
	switch p {
	case PeriodHourly:
		return t.Format("2006-01-02T15")
	case PeriodDaily:
		return t.Format("2006-01-02")
	case PeriodWeekly:
		year, week := t.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", year, week)
	case PeriodMonthly:
		return t.Format("2006-01")
	default:
		return t.Format("2006-01-02")
	}
}

// PeriodStart returns the start of the bucket containing t.
func PeriodStart(p Period, t time.Time) time.Time {
	t = t.UTC()
	switch p {
	case PeriodHourly:
		return t.Truncate(time.Hour)
	case PeriodDaily:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	case PeriodWeekly:
		weekday := int(t.Weekday())
		if weekday == 0 {
			weekday = 7
		}
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		return day.AddDate(0, 0, -(weekday - 1))
	case PeriodMonthly:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	}
}

// ScopeKind is the dimension a cost is attributed to.
type ScopeKind string

const (
	// ScopeGlobal attributes cost to the whole deployment.
	ScopeGlobal ScopeKind = "global"

	// ScopeUser attributes cost to the owning user.
	ScopeUser ScopeKind = "user"

	// ScopeProvider attributes cost to the upstream AI provider.
	ScopeProvider ScopeKind = "provider"

	// ScopeRequestType attributes cost to the request type.
	ScopeRequestType ScopeKind = "request_type"
)

// Scope identifies one cost-attribution dimension, optionally narrowed
// to a target (a user id, provider id, or request type).
type Scope struct {
	Kind ScopeKind `json:"kind" yaml:"kind"`
	ID   string    `json:"id,omitempty" yaml:"id,omitempty"`
}

// GlobalScope returns the deployment-wide scope.
func GlobalScope() Scope { return Scope{Kind: ScopeGlobal} }

// UserScope returns the scope for a user id.
func UserScope(id string) Scope { return Scope{Kind: ScopeUser, ID: id} }

// ProviderScope returns the scope for a provider id.
func ProviderScope(id string) Scope { return Scope{Kind: ScopeProvider, ID: id} }

// RequestTypeScope returns the scope for a request type.
func RequestTypeScope(id string) Scope { return Scope{Kind: ScopeRequestType, ID: id} }

// Key returns the partition key form of the scope: "global",
// "user:<id>", "provider:<id>", or "request_type:<id>".
func (s Scope) Key() string {
	if s.Kind == ScopeGlobal {
		return string(ScopeGlobal)
	}
	return string(s.Kind) + ":" + s.ID
}

// Valid reports whether the scope is well-formed. Non-global scopes
// require a target id.
func (s Scope) Valid() bool {
	switch s.Kind {
	case ScopeGlobal:
		return s.ID == ""
	case ScopeUser, ScopeProvider, ScopeRequestType:
		return s.ID != ""
	}
	return false
}

// ParseScope parses a partition key produced by Scope.Key.
func ParseScope(key string) (Scope, error) {
	if key == string(ScopeGlobal) {
		return GlobalScope(), nil
	}
	kind, id, ok := strings.Cut(key, ":")
	if !ok || id == "" {
		return Scope{}, fmt.Errorf("%w: malformed scope key %q", ErrValidation, key)
	}
	s := Scope{Kind: ScopeKind(kind), ID: id}
	if !s.Valid() {
		return Scope{}, fmt.Errorf("%w: unknown scope kind %q", ErrValidation, kind)
	}
	return s, nil
}

// EventMetadata carries per-call details nested on a cost event.
type EventMetadata struct {
	Model        string        `json:"model"`
	InputTokens  int64         `json:"input_tokens"`
	OutputTokens int64         `json:"output_tokens"`
	Latency      time.Duration `json:"latency"`
	Success      bool          `json:"success"`
}

// CostEvent is one metered AI call. Events are immutable once recorded
// and are retained for 90 days.
type CostEvent struct {
	ID          string        `json:"id"`
	UserID      string        `json:"user_id"`
	Provider    string        `json:"provider"`
	RequestID   string        `json:"request_id"`
	RequestType string        `json:"request_type"`
	Tokens      int64         `json:"tokens"`
	Cost        float64       `json:"cost"`
	Timestamp   time.Time     `json:"timestamp"`
	Metadata    EventMetadata `json:"metadata"`
}

// Validate rejects malformed events before any write.
func (e *CostEvent) Validate() error {
	if e == nil {
		return fmt.Errorf("%w: nil event", ErrValidation)
	}
	if e.UserID == "" {
		return fmt.Errorf("%w: event user id is required", ErrValidation)
	}
	if e.Provider == "" {
		return fmt.Errorf("%w: event provider is required", ErrValidation)
	}
	if e.RequestType == "" {
		return fmt.Errorf("%w: event request type is required", ErrValidation)
	}
	if e.Cost < 0 {
		return fmt.Errorf("%w: event cost must be >= 0, got %v", ErrValidation, e.Cost)
	}
	if e.Tokens < 0 {
		return fmt.Errorf("%w: event tokens must be >= 0, got %d", ErrValidation, e.Tokens)
	}
	return nil
}

// Scopes returns the four scopes every event contributes to.
func (e *CostEvent) Scopes() [4]Scope {
	return [4]Scope{
		GlobalScope(),
		UserScope(e.UserID),
		ProviderScope(e.Provider),
		RequestTypeScope(e.RequestType),
	}
}

// Usage is the running-sum snapshot for one scope and period.
type Usage struct {
	Cost               float64 `json:"cost"`
	Requests           int64   `json:"requests"`
	Tokens             int64   `json:"tokens"`
	SuccessfulRequests int64   `json:"successful_requests"`
}

// Add accumulates another usage snapshot into u.
func (u *Usage) Add(other Usage) {
	u.Cost += other.Cost
	u.Requests += other.Requests
	u.Tokens += other.Tokens
	u.SuccessfulRequests += other.SuccessfulRequests
}
