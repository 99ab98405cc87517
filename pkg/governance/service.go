package governance

import (
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"finops-hq/spendguard/pkg/governance/notify"
	"finops-hq/spendguard/pkg/governance/store"
)

// ServiceConfig configures a governance service instance.
type ServiceConfig struct {
	// MetricsNamespace prefixes every exported metric. Empty means
	// "spendguard".
	MetricsNamespace string

	// Registerer receives the service's collectors. Nil means the
	// default registerer.
	Registerer prometheus.Registerer

	// Publisher carries alert and remediation signals. Nil falls back
	// to logging every signal.
	Publisher notify.Publisher

	// PredictionLookbackDays is the history window predictions are
	// built on. Zero means the predictor's default.
	PredictionLookbackDays int

	Scheduler SchedulerConfig
}

// Service is one complete governance engine instance: tracker,
// threshold manager, predictor, and scheduler sharing a store backend.
// Instances are independent; nothing is process-global.
type Service struct {
	store     store.Backend
	metrics   *Metrics
	tracker   *Tracker
	manager   *ThresholdManager
	predictor *Predictor
	scheduler *Scheduler
	logger    *slog.Logger
}

// NewService wires a governance service on top of a store backend.
// A nil logger falls back to slog.Default().
func NewService(backend store.Backend, config ServiceConfig, logger *slog.Logger) (*Service, error) {
	if backend == nil {
		return nil, fmt.Errorf("%w: store backend is required", ErrValidation)
	}
	if logger == nil {
		logger = slog.Default()
	}

	namespace := config.MetricsNamespace
	if namespace == "" {
		namespace = "spendguard"
	}
	metrics := NewMetrics(namespace, config.Registerer)

	tracker := NewTracker(backend, metrics, logger)
	dispatcher := NewDispatcher(config.Publisher, metrics, logger)
	manager := NewThresholdManager(backend, tracker, dispatcher, metrics, logger)
	predictor := NewPredictor(tracker, metrics, logger)
	if config.PredictionLookbackDays > 0 {
		predictor.lookbackDays = config.PredictionLookbackDays
	}
	scheduler := NewScheduler(config.Scheduler, manager, backend, logger)

	return &Service{
		store:     backend,
		metrics:   metrics,
		tracker:   tracker,
		manager:   manager,
		predictor: predictor,
		scheduler: scheduler,
		logger:    logger.With("component", "governance.service"),
	}, nil
}

// Tracker returns the cost tracker.
func (s *Service) Tracker() *Tracker { return s.tracker }

// Thresholds returns the threshold manager.
func (s *Service) Thresholds() *ThresholdManager { return s.manager }

// Predictor returns the spend predictor.
func (s *Service) Predictor() *Predictor { return s.predictor }

// Scheduler returns the background job scheduler.
func (s *Service) Scheduler() *Scheduler { return s.scheduler }

// Metrics returns the service's metric collectors.
func (s *Service) Metrics() *Metrics { return s.metrics }

// Close stops the scheduler and closes the store backend.
func (s *Service) Close() error {
	s.scheduler.Stop()
	if err := s.store.Close(); err != nil {
		return fmt.Errorf("failed to close store: %w", err)
	}
	return nil
}
