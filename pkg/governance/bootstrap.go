package governance

import (
	"context"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// thresholdFile is the YAML document layout for declarative threshold
// definitions.
type thresholdFile struct {
	Thresholds []thresholdSpec `yaml:"thresholds"`
}

// thresholdSpec is one declarative threshold definition.
type thresholdSpec struct {
	Name         string       `yaml:"name"`
	Type         string       `yaml:"type"`
	Scope        string       `yaml:"scope"`
	Period       string       `yaml:"period"`
	Limit        float64      `yaml:"limit"`
	WarningLevel float64      `yaml:"warning_level"`
	Enabled      *bool        `yaml:"enabled"`
	Actions      []actionSpec `yaml:"actions"`
}

// actionSpec is one declarative remediation action. Fields beyond Type
// apply only to the variants that carry them.
type actionSpec struct {
	Type           string        `yaml:"type"`
	Enabled        *bool         `yaml:"enabled"`
	Ratio          float64       `yaml:"ratio"`
	UserID         string        `yaml:"user_id"`
	ProviderID     string        `yaml:"provider_id"`
	TargetProvider string        `yaml:"target_provider"`
	Factor         float64       `yaml:"factor"`
	Duration       time.Duration `yaml:"duration"`
}

// LoadThresholdFile parses a YAML threshold definition file into
// validated thresholds. Ids are not assigned here; SyncThresholds
// matches definitions to stored rows by name.
func LoadThresholdFile(path string) ([]*Threshold, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read threshold file %q: %w", path, err)
	}

	var file thresholdFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse threshold file %q: %w", path, err)
	}

	thresholds := make([]*Threshold, 0, len(file.Thresholds))
	for i, spec := range file.Thresholds {
		threshold, err := spec.threshold()
		if err != nil {
			return nil, fmt.Errorf("threshold %d (%q): %w", i, spec.Name, err)
		}
		if err := threshold.Validate(); err != nil {
			return nil, fmt.Errorf("threshold %d (%q): %w", i, spec.Name, err)
		}
		thresholds = append(thresholds, threshold)
	}
	return thresholds, nil
}

// threshold converts a declarative spec into a threshold.
func (s thresholdSpec) threshold() (*Threshold, error) {
	scope, err := ParseScope(s.Scope)
	if err != nil {
		return nil, err
	}

	actions := make(Actions, 0, len(s.Actions))
	for _, a := range s.Actions {
		action, err := a.action()
		if err != nil {
			return nil, err
		}
		actions = append(actions, action)
	}

	return &Threshold{
		Name:         s.Name,
		Type:         ThresholdType(s.Type),
		Scope:        scope,
		Period:       Period(s.Period),
		Limit:        s.Limit,
		WarningLevel: s.WarningLevel,
		Actions:      actions,
		Enabled:      s.Enabled == nil || *s.Enabled,
	}, nil
}

// action converts a declarative action spec into its concrete variant.
// An omitted enabled flag means enabled.
func (s actionSpec) action() (RemediationAction, error) {
	base := actionBase{Enabled: s.Enabled == nil || *s.Enabled}

	switch ActionKind(s.Type) {
	case ActionAlert:
		return &AlertAction{actionBase: base}, nil
	case ActionThrottle:
		return &ThrottleAction{actionBase: base, Ratio: s.Ratio}, nil
	case ActionBlockUser:
		return &BlockUserAction{actionBase: base, UserID: s.UserID, Duration: s.Duration}, nil
	case ActionBlockProvider:
		return &BlockProviderAction{actionBase: base, ProviderID: s.ProviderID, Duration: s.Duration}, nil
	case ActionSwitchProvider:
		return &SwitchProviderAction{actionBase: base, TargetProvider: s.TargetProvider}, nil
	case ActionReduceQuality:
		return &ReduceQualityAction{actionBase: base, Factor: s.Factor}, nil
	case ActionEmergencyShutdown:
		return &EmergencyShutdownAction{actionBase: base, Duration: s.Duration}, nil
	default:
		return nil, fmt.Errorf("%w: unknown action kind %q", ErrValidation, s.Type)
	}
}

// SyncThresholds reconciles stored thresholds with a declarative set.
// Definitions are matched to existing rows by name: matches are
// updated in place, the rest are created. Stored thresholds absent
// from the set are left untouched.
func (m *ThresholdManager) SyncThresholds(ctx context.Context, thresholds []*Threshold) error {
	existing, err := m.ListThresholds(ctx, nil)
	if err != nil {
		return err
	}

	byName := make(map[string]*Threshold, len(existing))
	for _, t := range existing {
		byName[t.Name] = t
	}

	for _, threshold := range thresholds {
		if current, ok := byName[threshold.Name]; ok {
			threshold.ID = current.ID
			if _, err := m.UpdateThreshold(ctx, threshold); err != nil {
				return fmt.Errorf("failed to update threshold %q: %w", threshold.Name, err)
			}
			continue
		}
		if _, err := m.CreateThreshold(ctx, threshold); err != nil {
			return fmt.Errorf("failed to create threshold %q: %w", threshold.Name, err)
		}
	}
	return nil
}

// BootstrapThresholds loads a threshold file and reconciles it into
// the store.
func (m *ThresholdManager) BootstrapThresholds(ctx context.Context, path string) error {
	thresholds, err := LoadThresholdFile(path)
	if err != nil {
		return err
	}
	if err := m.SyncThresholds(ctx, thresholds); err != nil {
		return err
	}

	m.logger.InfoContext(ctx, "thresholds bootstrapped", "path", path, "count", len(thresholds))
	return nil
}
