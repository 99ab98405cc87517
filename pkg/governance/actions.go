package governance

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"finops-hq/spendguard/pkg/governance/notify"
)

// ActionKind discriminates the remediation action variants on the wire.
type ActionKind string

const (
	ActionAlert             ActionKind = "alert"
	ActionThrottle          ActionKind = "throttle"
	ActionBlockUser         ActionKind = "block_user"
	ActionBlockProvider     ActionKind = "block_provider"
	ActionSwitchProvider    ActionKind = "switch_provider"
	ActionReduceQuality     ActionKind = "reduce_quality"
	ActionEmergencyShutdown ActionKind = "emergency_shutdown"
)

// RemediationAction is the closed set of automated responses a
// threshold can dispatch on breach. Adding a variant means adding a
// struct here and a case to Dispatcher.Execute; the dispatcher's
// default path rejects anything else.
type RemediationAction interface {
	Kind() ActionKind
	IsEnabled() bool
	isRemediationAction()
}

// actionBase carries the enabled flag every variant has.
type actionBase struct {
	Enabled bool `json:"enabled"`
}

func (b actionBase) IsEnabled() bool      { return b.Enabled }
func (b actionBase) isRemediationAction() {}

// AlertAction publishes the alert to the notification channel.
type AlertAction struct {
	actionBase
}

func (AlertAction) Kind() ActionKind { return ActionAlert }

// ThrottleAction signals a target throttle ratio for the scope.
type ThrottleAction struct {
	actionBase
	// Ratio is the fraction of normal traffic to admit, in (0, 1].
	Ratio float64 `json:"ratio"`
}

func (ThrottleAction) Kind() ActionKind { return ActionThrottle }

// BlockUserAction signals a timed block for a user.
type BlockUserAction struct {
	actionBase
	UserID   string        `json:"user_id"`
	Duration time.Duration `json:"duration"`
}

func (BlockUserAction) Kind() ActionKind { return ActionBlockUser }

// BlockProviderAction signals a timed block for a provider.
type BlockProviderAction struct {
	actionBase
	ProviderID string        `json:"provider_id"`
	Duration   time.Duration `json:"duration"`
}

func (BlockProviderAction) Kind() ActionKind { return ActionBlockProvider }

// SwitchProviderAction signals a preference change toward a provider.
type SwitchProviderAction struct {
	actionBase
	TargetProvider string `json:"target_provider"`
}

func (SwitchProviderAction) Kind() ActionKind { return ActionSwitchProvider }

// ReduceQualityAction signals a bounded reduction factor for model or
// response quality.
type ReduceQualityAction struct {
	actionBase
	// Factor is the quality fraction to retain, in (0, 1].
	Factor float64 `json:"factor"`
}

func (ReduceQualityAction) Kind() ActionKind { return ActionReduceQuality }

// EmergencyShutdownAction broadcasts a high-priority shutdown signal
// with a duration on the separate emergency channel.
type EmergencyShutdownAction struct {
	actionBase
	Duration time.Duration `json:"duration"`
}

func (EmergencyShutdownAction) Kind() ActionKind { return ActionEmergencyShutdown }

// Actions is an ordered remediation action list with a discriminated
// JSON encoding: each element carries a "type" field naming its kind.
type Actions []RemediationAction

// MarshalJSON encodes each action with its type discriminator.
func (a Actions) MarshalJSON() ([]byte, error) {
	out := make([]map[string]any, 0, len(a))
	for _, action := range a {
		body, err := json.Marshal(action)
		if err != nil {
			return nil, err
		}
		var fields map[string]any
		if err := json.Unmarshal(body, &fields); err != nil {
			return nil, err
		}
		fields["type"] = string(action.Kind())
		out = append(out, fields)
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes a discriminated action list.
func (a *Actions) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	actions := make(Actions, 0, len(raw))
	for _, element := range raw {
		var head struct {
			Type ActionKind `json:"type"`
		}
		if err := json.Unmarshal(element, &head); err != nil {
			return err
		}

		action, err := newAction(head.Type)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(element, action); err != nil {
			return err
		}
		actions = append(actions, action.(RemediationAction))
	}

	*a = actions
	return nil
}

// newAction allocates the concrete variant for a kind.
func newAction(kind ActionKind) (any, error) {
	switch kind {
	case ActionAlert:
		return &AlertAction{}, nil
	case ActionThrottle:
		return &ThrottleAction{}, nil
	case ActionBlockUser:
		return &BlockUserAction{}, nil
	case ActionBlockProvider:
		return &BlockProviderAction{}, nil
	case ActionSwitchProvider:
		return &SwitchProviderAction{}, nil
	case ActionReduceQuality:
		return &ReduceQualityAction{}, nil
	case ActionEmergencyShutdown:
		return &EmergencyShutdownAction{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown action kind %q", ErrValidation, kind)
	}
}

// RemediationSignal is the intent message published for throttle,
// block, switch, and degrade actions. Downstream enforcement actors
// consume it; the engine never observes remediation success.
type RemediationSignal struct {
	Action      ActionKind    `json:"action"`
	Scope       string        `json:"scope"`
	ThresholdID string        `json:"threshold_id"`
	AlertID     string        `json:"alert_id"`
	Severity    Severity      `json:"severity"`
	Target      string        `json:"target,omitempty"`
	Ratio       float64       `json:"ratio,omitempty"`
	Factor      float64       `json:"factor,omitempty"`
	Duration    time.Duration `json:"duration,omitempty"`
	IssuedAt    time.Time     `json:"issued_at"`
}

// ActionResult records the outcome of one dispatched action.
type ActionResult struct {
	Kind     ActionKind `json:"kind"`
	Skipped  bool       `json:"skipped,omitempty"`
	Executed bool       `json:"executed"`
	Error    string     `json:"error,omitempty"`
}

// Dispatcher executes remediation actions by publishing intent signals.
// All effects are fire-and-forget: a publish failure is recorded on the
// result and never retried.
type Dispatcher struct {
	publisher notify.Publisher
	metrics   *Metrics
	logger    *slog.Logger
	now       func() time.Time
}

// NewDispatcher creates an action dispatcher. A nil publisher falls
// back to logging every signal; a nil logger falls back to
// slog.Default().
func NewDispatcher(publisher notify.Publisher, metrics *Metrics, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if publisher == nil {
		publisher = notify.NewLogPublisher(logger)
	}
	return &Dispatcher{
		publisher: publisher,
		metrics:   metrics,
		logger:    logger.With("component", "governance.dispatcher"),
		now:       time.Now,
	}
}

// Execute dispatches one action for an alert. Disabled actions are
// skipped; unknown variants are rejected.
func (d *Dispatcher) Execute(ctx context.Context, alert *Alert, action RemediationAction) ActionResult {
	result := ActionResult{Kind: action.Kind()}

	if !action.IsEnabled() {
		result.Skipped = true
		return result
	}

	signal := RemediationSignal{
		Action:      action.Kind(),
		Scope:       alert.Scope.Key(),
		ThresholdID: alert.ThresholdID,
		AlertID:     alert.ID,
		Severity:    alert.Severity,
		IssuedAt:    d.now(),
	}

	var err error
	switch a := action.(type) {
	case *AlertAction:
		err = d.publisher.Publish(ctx, notify.TopicAlerts, alert)

	case *ThrottleAction:
		signal.Ratio = a.Ratio
		err = d.publisher.Publish(ctx, notify.TopicRemediation, signal)

	case *BlockUserAction:
		signal.Target = a.UserID
		if signal.Target == "" && alert.Scope.Kind == ScopeUser {
			signal.Target = alert.Scope.ID
		}
		signal.Duration = a.Duration
		err = d.publisher.Publish(ctx, notify.TopicRemediation, signal)

	case *BlockProviderAction:
		signal.Target = a.ProviderID
		if signal.Target == "" && alert.Scope.Kind == ScopeProvider {
			signal.Target = alert.Scope.ID
		}
		signal.Duration = a.Duration
		err = d.publisher.Publish(ctx, notify.TopicRemediation, signal)

	case *SwitchProviderAction:
		signal.Target = a.TargetProvider
		err = d.publisher.Publish(ctx, notify.TopicRemediation, signal)

	case *ReduceQualityAction:
		signal.Factor = a.Factor
		err = d.publisher.Publish(ctx, notify.TopicRemediation, signal)

	case *EmergencyShutdownAction:
		// The shutdown broadcast is the only place severity
		// escalates past the alert's own grade.
		signal.Severity = SeverityEmergency
		signal.Duration = a.Duration
		err = d.publisher.Publish(ctx, notify.TopicEmergency, signal)

	default:
		err = fmt.Errorf("%w: unknown action kind %q", ErrValidation, action.Kind())
	}

	if err != nil {
		result.Error = fmt.Errorf("%w: %w", ErrActionExecution, err).Error()
		d.logger.ErrorContext(ctx, "remediation action failed",
			"action", action.Kind(),
			"alert_id", alert.ID,
			"error", err,
		)
	} else {
		result.Executed = true
	}

	d.metrics.RecordAction(string(action.Kind()), err == nil)
	return result
}
