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

// AlertRetention is how long alert rows are kept before the store may
// purge them.
const AlertRetention = 30 * 24 * time.Hour

// ThresholdType selects which usage field a threshold limits.
type ThresholdType string

const (
	ThresholdCost     ThresholdType = "cost"
	ThresholdRequests ThresholdType = "requests"
	ThresholdTokens   ThresholdType = "tokens"
)

// Valid reports whether t is a known threshold type.
func (t ThresholdType) Valid() bool {
	switch t {
	case ThresholdCost, ThresholdRequests, ThresholdTokens:
		return true
	}
	return false
}

// Severity grades an alert. Threshold math produces warning and
// critical only; emergency appears solely on the shutdown broadcast an
// emergency-shutdown action emits.
type Severity string

const (
	SeverityWarning   Severity = "warning"
	SeverityCritical  Severity = "critical"
	SeverityEmergency Severity = "emergency"
)

// Threshold is an operator-defined budget limit with a warning level
// and ordered remediation actions for one scope, period, and metric.
type Threshold struct {
	ID     string        `json:"id"`
	Name   string        `json:"name"`
	Type   ThresholdType `json:"type"`
	Scope  Scope         `json:"scope"`
	Period Period        `json:"period"`

	Limit float64 `json:"limit"`

	// WarningLevel is the percentage of the limit (0-100) at which a
	// warning alert is raised.
	WarningLevel float64 `json:"warning_level"`

	Actions Actions `json:"actions"`
	Enabled bool    `json:"enabled"`

	// CurrentUsage is the last observed usage value, refreshed by
	// every evaluation pass.
	CurrentUsage float64 `json:"current_usage"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate rejects malformed thresholds before any write.
func (t *Threshold) Validate() error {
	if t == nil {
		return fmt.Errorf("%w: nil threshold", ErrValidation)
	}
	if t.Name == "" {
		return fmt.Errorf("%w: threshold name is required", ErrValidation)
	}
	if !t.Type.Valid() {
		return fmt.Errorf("%w: unknown threshold type %q", ErrValidation, t.Type)
	}
	if !t.Scope.Valid() {
		return fmt.Errorf("%w: invalid threshold scope", ErrValidation)
	}
	if !t.Period.Valid() {
		return fmt.Errorf("%w: unknown threshold period %q", ErrValidation, t.Period)
	}
	if t.Limit <= 0 {
		return fmt.Errorf("%w: threshold limit must be > 0, got %v", ErrValidation, t.Limit)
	}
	if t.WarningLevel < 0 || t.WarningLevel > 100 {
		return fmt.Errorf("%w: warning level must be in [0, 100], got %v", ErrValidation, t.WarningLevel)
	}
	return nil
}

// Alert is an immutable record of a threshold breach observation. Once
// created, only the acknowledgement and resolution fields may change.
type Alert struct {
	ID          string   `json:"id"`
	ThresholdID string   `json:"threshold_id"`
	Scope       Scope    `json:"scope"`
	Severity    Severity `json:"severity"`
	Message     string   `json:"message"`

	CurrentUsage   float64 `json:"current_usage"`
	Limit          float64 `json:"limit"`
	PercentageUsed float64 `json:"percentage_used"`

	RecommendedActions []ActionKind `json:"recommended_actions"`

	Timestamp      time.Time  `json:"timestamp"`
	Acknowledged   bool       `json:"acknowledged"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
}

// ThresholdResult is the structured outcome of evaluating one
// threshold, including the per-action remediation results.
type ThresholdResult struct {
	ThresholdID    string         `json:"threshold_id"`
	Name           string         `json:"name"`
	Scope          Scope          `json:"scope"`
	UsageValue     float64        `json:"usage_value"`
	Limit          float64        `json:"limit"`
	PercentageUsed float64        `json:"percentage_used"`
	Severity       Severity       `json:"severity,omitempty"`
	AlertID        string         `json:"alert_id,omitempty"`
	Actions        []ActionResult `json:"actions,omitempty"`
}

// EvaluationReport summarizes one full threshold pass for the
// scheduler or caller.
type EvaluationReport struct {
	StartedAt time.Time         `json:"started_at"`
	Duration  time.Duration     `json:"duration"`
	Evaluated int               `json:"evaluated"`
	Alerts    int               `json:"alerts"`
	Results   []ThresholdResult `json:"results"`
}

// ThresholdManager owns threshold definitions, evaluates them against
// tracker rollups, raises alerts, and dispatches remediation actions.
type ThresholdManager struct {
	store      store.Backend
	tracker    *Tracker
	dispatcher *Dispatcher
	metrics    *Metrics
	logger     *slog.Logger

	// now is the clock, overridable in tests.
	now func() time.Time
}

// NewThresholdManager creates a threshold manager.
func NewThresholdManager(backend store.Backend, tracker *Tracker, dispatcher *Dispatcher, metrics *Metrics, logger *slog.Logger) *ThresholdManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &ThresholdManager{
		store:      backend,
		tracker:    tracker,
		dispatcher: dispatcher,
		metrics:    metrics,
		logger:     logger.With("component", "governance.thresholds"),
		now:        time.Now,
	}
}

// CreateThreshold validates and persists a new threshold, assigning
// its id and timestamps.
func (m *ThresholdManager) CreateThreshold(ctx context.Context, t *Threshold) (*Threshold, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}

	created := *t
	if created.ID == "" {
		created.ID = uuid.NewString()
	}
	now := m.now()
	created.CreatedAt = now
	created.UpdatedAt = now

	if err := m.saveThreshold(ctx, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// UpdateThreshold validates and replaces an existing threshold. The
// original creation timestamp is preserved.
func (m *ThresholdManager) UpdateThreshold(ctx context.Context, t *Threshold) (*Threshold, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if t.ID == "" {
		return nil, fmt.Errorf("%w: threshold id is required for update", ErrValidation)
	}

	existing, err := m.GetThreshold(ctx, t.ID)
	if err != nil {
		return nil, err
	}

	updated := *t
	updated.CreatedAt = existing.CreatedAt
	updated.UpdatedAt = m.now()

	if err := m.saveThreshold(ctx, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// GetThreshold returns a threshold by id.
func (m *ThresholdManager) GetThreshold(ctx context.Context, id string) (*Threshold, error) {
	row, err := m.store.GetThreshold(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreRead, err)
	}
	if row == nil {
		return nil, fmt.Errorf("%w: threshold %s", ErrNotFound, id)
	}
	return decodeThreshold(row)
}

// ListThresholds returns thresholds for a scope, or all thresholds
// when scope is nil.
func (m *ThresholdManager) ListThresholds(ctx context.Context, scope *Scope) ([]*Threshold, error) {
	key := ""
	if scope != nil {
		key = scope.Key()
	}

	rows, err := m.store.ListThresholds(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreRead, err)
	}

	thresholds := make([]*Threshold, 0, len(rows))
	for _, row := range rows {
		t, err := decodeThreshold(row)
		if err != nil {
			m.logger.WarnContext(ctx, "skipping undecodable threshold", "id", row.ID, "error", err)
			continue
		}
		thresholds = append(thresholds, t)
	}
	return thresholds, nil
}

// DeleteThreshold removes a threshold by id. Alerts referencing it are
// kept until their retention deadline.
func (m *ThresholdManager) DeleteThreshold(ctx context.Context, id string) error {
	err := m.store.DeleteThreshold(ctx, id)
	if err == store.ErrRowNotFound {
		return fmt.Errorf("%w: threshold %s", ErrNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStoreWrite, err)
	}
	return nil
}

// CheckThresholds evaluates every enabled threshold against current
// usage, raising at most one alert per threshold per pass and
// dispatching its remediation actions in configured order.
//
// Severity tie-break: usage at or above the limit raises exactly one
// critical alert and never an additional warning; otherwise crossing
// the warning level raises exactly one warning alert.
//
// One threshold's failure (usage read, alert write, action dispatch)
// never prevents the next threshold from being evaluated; the
// per-threshold and per-action outcomes are collected into the
// returned report.
func (m *ThresholdManager) CheckThresholds(ctx context.Context) (*EvaluationReport, error) {
	started := m.now()
	report := &EvaluationReport{StartedAt: started}

	thresholds, err := m.ListThresholds(ctx, nil)
	if err != nil {
		return nil, err
	}

	for _, threshold := range thresholds {
		if !threshold.Enabled {
			continue
		}
		result := m.evaluate(ctx, threshold)
		report.Evaluated++
		if result.Severity != "" {
			report.Alerts++
		}
		report.Results = append(report.Results, result)
	}

	report.Duration = time.Since(started)
	m.metrics.ObserveEvaluationDuration(report.Duration.Seconds())
	return report, nil
}

// evaluate runs one threshold's evaluation and remediation.
func (m *ThresholdManager) evaluate(ctx context.Context, threshold *Threshold) ThresholdResult {
	usage, err := m.tracker.CurrentUsage(ctx, threshold.Scope, threshold.Period)
	if err != nil {
		m.logger.WarnContext(ctx, "threshold usage lookup failed",
			"threshold_id", threshold.ID, "error", err)
	}

	value := usageValue(usage, threshold.Type)
	percentage := value / threshold.Limit * 100

	result := ThresholdResult{
		ThresholdID:    threshold.ID,
		Name:           threshold.Name,
		Scope:          threshold.Scope,
		UsageValue:     value,
		Limit:          threshold.Limit,
		PercentageUsed: percentage,
	}

	// Persist the observed usage back onto the threshold.
	threshold.CurrentUsage = value
	threshold.UpdatedAt = m.now()
	if err := m.saveThreshold(ctx, threshold); err != nil {
		m.logger.ErrorContext(ctx, "threshold usage persist failed",
			"threshold_id", threshold.ID, "error", err)
	}

	var severity Severity
	switch {
	case value >= threshold.Limit:
		severity = SeverityCritical
	case percentage >= threshold.WarningLevel:
		severity = SeverityWarning
	default:
		return result
	}

	alert := m.raiseAlert(ctx, threshold, severity, value, percentage)
	result.Severity = alert.Severity
	result.AlertID = alert.ID

	for _, action := range threshold.Actions {
		result.Actions = append(result.Actions, m.dispatcher.Execute(ctx, alert, action))
	}

	return result
}

// raiseAlert builds and persists the alert for a breach observation.
// A persist failure is logged; the alert is still dispatched.
func (m *ThresholdManager) raiseAlert(ctx context.Context, threshold *Threshold, severity Severity, value, percentage float64) *Alert {
	now := m.now()

	recommended := make([]ActionKind, 0, len(threshold.Actions))
	for _, action := range threshold.Actions {
		if action.IsEnabled() {
			recommended = append(recommended, action.Kind())
		}
	}

	alert := &Alert{
		ID:          uuid.NewString(),
		ThresholdID: threshold.ID,
		Scope:       threshold.Scope,
		Severity:    severity,
		Message: fmt.Sprintf("%s: %s usage %.2f of %.2f (%.1f%%) for %s %s",
			threshold.Name, threshold.Type, value, threshold.Limit, percentage,
			threshold.Scope.Key(), threshold.Period),
		CurrentUsage:       value,
		Limit:              threshold.Limit,
		PercentageUsed:     percentage,
		RecommendedActions: recommended,
		Timestamp:          now,
	}

	if err := m.saveAlert(ctx, alert); err != nil {
		m.logger.ErrorContext(ctx, "alert persist failed", "alert_id", alert.ID, "error", err)
	}

	m.metrics.RecordAlert(string(severity))
	m.logger.InfoContext(ctx, "alert raised",
		"alert_id", alert.ID,
		"threshold_id", threshold.ID,
		"severity", severity,
		"usage", value,
		"limit", threshold.Limit,
	)
	return alert
}

// RecentAlerts returns the most recent alerts for a scope, newest
// first. A nil scope defaults to global.
func (m *ThresholdManager) RecentAlerts(ctx context.Context, scope *Scope, limit int) ([]*Alert, error) {
	target := GlobalScope()
	if scope != nil {
		target = *scope
	}

	rows, err := m.store.ListAlerts(ctx, target.Key(), limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreRead, err)
	}

	alerts := make([]*Alert, 0, len(rows))
	for _, row := range rows {
		alert, err := decodeAlert(row)
		if err != nil {
			m.logger.WarnContext(ctx, "skipping undecodable alert", "id", row.ID, "error", err)
			continue
		}
		alerts = append(alerts, alert)
	}
	return alerts, nil
}

// AcknowledgeAlert marks an alert acknowledged. Only the
// acknowledgement fields change; every other field is immutable.
func (m *ThresholdManager) AcknowledgeAlert(ctx context.Context, id string) (*Alert, error) {
	row, err := m.store.GetAlert(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreRead, err)
	}
	if row == nil {
		return nil, fmt.Errorf("%w: alert %s", ErrNotFound, id)
	}

	alert, err := decodeAlert(row)
	if err != nil {
		return nil, err
	}

	if !alert.Acknowledged {
		now := m.now()
		alert.Acknowledged = true
		alert.AcknowledgedAt = &now
		if err := m.saveAlert(ctx, alert); err != nil {
			return nil, err
		}
	}
	return alert, nil
}

// saveThreshold encodes and persists a threshold document.
func (m *ThresholdManager) saveThreshold(ctx context.Context, t *Threshold) error {
	document, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to encode threshold: %w", err)
	}
	row := &store.ThresholdRow{
		ID:        t.ID,
		Scope:     t.Scope.Key(),
		Document:  document,
		UpdatedAt: t.UpdatedAt,
	}
	if err := m.store.SaveThreshold(ctx, row); err != nil {
		return fmt.Errorf("%w: %w", ErrStoreWrite, err)
	}
	return nil
}

// saveAlert encodes and persists an alert document with its retention
// deadline.
func (m *ThresholdManager) saveAlert(ctx context.Context, alert *Alert) error {
	document, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to encode alert: %w", err)
	}
	row := &store.AlertRow{
		ID:             alert.ID,
		Scope:          alert.Scope.Key(),
		Document:       document,
		CreatedAt:      alert.Timestamp,
		RetentionUntil: alert.Timestamp.Add(AlertRetention),
	}
	if err := m.store.SaveAlert(ctx, row); err != nil {
		return fmt.Errorf("%w: %w", ErrStoreWrite, err)
	}
	return nil
}

// decodeThreshold decodes a stored threshold document.
func decodeThreshold(row *store.ThresholdRow) (*Threshold, error) {
	var t Threshold
	if err := json.Unmarshal(row.Document, &t); err != nil {
		return nil, fmt.Errorf("failed to decode threshold %s: %w", row.ID, err)
	}
	return &t, nil
}

// decodeAlert decodes a stored alert document.
func decodeAlert(row *store.AlertRow) (*Alert, error) {
	var alert Alert
	if err := json.Unmarshal(row.Document, &alert); err != nil {
		return nil, fmt.Errorf("failed to decode alert %s: %w", row.ID, err)
	}
	return &alert, nil
}

// usageValue selects the usage field a threshold type limits.
func usageValue(u Usage, t ThresholdType) float64 {
	switch t {
	case ThresholdCost:
		return u.Cost
	case ThresholdRequests:
		return float64(u.Requests)
	case ThresholdTokens:
		return float64(u.Tokens)
	default:
		return 0
	}
}
