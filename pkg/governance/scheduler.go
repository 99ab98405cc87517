package governance

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"finops-hq/spendguard/pkg/governance/store"
)

// SchedulerConfig holds the cron expressions driving the background
// jobs. An empty expression disables that job.
//
// Common expressions:
//   - "* * * * *"    - Every minute
//   - "*/5 * * * *"  - Every 5 minutes
//   - "0 3 * * *"    - Daily at 3 AM
type SchedulerConfig struct {
	// EvaluationSchedule drives periodic threshold evaluation.
	EvaluationSchedule string `yaml:"evaluation_schedule"`

	// RetentionSchedule drives the purge of expired event and alert
	// rows.
	RetentionSchedule string `yaml:"retention_schedule"`
}

// Scheduler runs threshold evaluation and retention cleanup on cron
// schedules.
type Scheduler struct {
	config  SchedulerConfig
	manager *ThresholdManager
	store   store.Backend
	cron    *cron.Cron
	mu      sync.Mutex
	logger  *slog.Logger
	running bool

	// now is the clock, overridable in tests.
	now func() time.Time
}

// NewScheduler creates a scheduler for a threshold manager and store.
func NewScheduler(config SchedulerConfig, manager *ThresholdManager, backend store.Backend, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		config:  config,
		manager: manager,
		store:   backend,
		cron:    cron.New(),
		logger:  logger.With("component", "governance.scheduler"),
		now:     time.Now,
	}
}

// Start begins the scheduled jobs. Jobs with an empty schedule are
// skipped; the scheduler stops itself when ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.config.EvaluationSchedule == "" && s.config.RetentionSchedule == "" {
		s.logger.Info("no schedules configured, skipping scheduler")
		return nil
	}

	if s.config.EvaluationSchedule != "" {
		if _, err := cron.ParseStandard(s.config.EvaluationSchedule); err != nil {
			return fmt.Errorf("invalid evaluation schedule %q: %w",
				s.config.EvaluationSchedule, err)
		}
		if _, err := s.cron.AddFunc(s.config.EvaluationSchedule, func() {
			s.runEvaluation(ctx)
		}); err != nil {
			return fmt.Errorf("failed to schedule evaluation: %w", err)
		}
	}

	if s.config.RetentionSchedule != "" {
		if _, err := cron.ParseStandard(s.config.RetentionSchedule); err != nil {
			return fmt.Errorf("invalid retention schedule %q: %w",
				s.config.RetentionSchedule, err)
		}
		if _, err := s.cron.AddFunc(s.config.RetentionSchedule, func() {
			s.runRetention(ctx)
		}); err != nil {
			return fmt.Errorf("failed to schedule retention cleanup: %w", err)
		}
	}

	s.cron.Start()
	s.running = true

	s.logger.Info("governance scheduler started",
		"evaluation_schedule", s.config.EvaluationSchedule,
		"retention_schedule", s.config.RetentionSchedule,
	)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

// runEvaluation executes one threshold evaluation pass.
func (s *Scheduler) runEvaluation(ctx context.Context) {
	report, err := s.manager.CheckThresholds(ctx)
	if err != nil {
		s.logger.Error("scheduled threshold evaluation failed", "error", err)
		return
	}

	if report.Alerts > 0 {
		s.logger.Info("scheduled threshold evaluation completed",
			"evaluated", report.Evaluated,
			"alerts", report.Alerts,
			"duration", report.Duration,
		)
	} else {
		s.logger.Debug("scheduled threshold evaluation completed, no alerts",
			"evaluated", report.Evaluated,
			"duration", report.Duration,
		)
	}
}

// runRetention purges event and alert rows past their retention
// deadlines.
func (s *Scheduler) runRetention(ctx context.Context) {
	deleted, err := s.store.Cleanup(ctx, s.now())
	if err != nil {
		s.logger.Error("scheduled retention cleanup failed", "error", err)
		return
	}

	if deleted > 0 {
		s.logger.Info("scheduled retention cleanup completed", "deleted_count", deleted)
	} else {
		s.logger.Debug("scheduled retention cleanup completed, no rows deleted")
	}
}

// Stop stops the scheduler and waits for any running jobs to complete.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil && s.running {
		ctx := s.cron.Stop()
		<-ctx.Done()
		s.running = false
		s.logger.Info("governance scheduler stopped")
	}
}

// IsRunning returns true if the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.running
}

// NextRun returns the next scheduled job time.
func (s *Scheduler) NextRun() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron == nil {
		return nil
	}

	entries := s.cron.Entries()
	if len(entries) == 0 {
		return nil
	}

	next := entries[0].Next
	for _, entry := range entries[1:] {
		if entry.Next.Before(next) {
			next = entry.Next
		}
	}
	return &next
}
