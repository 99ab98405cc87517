package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"finops-hq/spendguard/pkg/cli"
	"finops-hq/spendguard/pkg/config"
	"finops-hq/spendguard/pkg/governance"
	"finops-hq/spendguard/pkg/governance/notify"
	"finops-hq/spendguard/pkg/governance/store"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the spendguard daemon",
	Long: `Start the spendguard daemon with the specified configuration.

The daemon evaluates spend thresholds on a schedule, purges expired
rows, and serves health and metrics endpoints on the configured
address.

Examples:
  # Start with default config
  spendguard run

  # Start with custom config
  spendguard run --config /etc/spendguard/config.yaml

  # Override listen address
  spendguard run --listen 0.0.0.0:9090

  # Validate config without starting the daemon
  spendguard run --dry-run`,
	RunE: runDaemon,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting the daemon")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return cli.NewConfigError("", fmt.Sprintf("failed to load config: %v", err))
	}

	// Apply flag overrides
	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}

	logger := newLogger(cfg.Telemetry.Logging)
	slog.SetDefault(logger)

	if runFlags.dryRun {
		fmt.Println("✓ Configuration valid")
		return nil
	}

	fmt.Printf("Spendguard v%s\n", Version)
	fmt.Printf("Loading configuration from: %s\n", cfgFile)
	fmt.Println("✓ Configuration loaded")

	// Store backend
	backend, err := newBackend(cfg.Store)
	if err != nil {
		return cli.NewCommandError("run", err)
	}

	// Signal publisher
	publisher, drain := newPublisher(cfg.Notify, logger)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	service, err := governance.NewService(backend, governance.ServiceConfig{
		MetricsNamespace:       cfg.Governance.MetricsNamespace,
		Registerer:             registry,
		Publisher:              publisher,
		PredictionLookbackDays: cfg.Governance.PredictionLookbackDays,
		Scheduler: governance.SchedulerConfig{
			EvaluationSchedule: cfg.Governance.EvaluationSchedule,
			RetentionSchedule:  cfg.Governance.RetentionSchedule,
		},
	}, logger)
	if err != nil {
		backend.Close()
		return cli.NewCommandError("run", err)
	}
	defer service.Close()

	fmt.Printf("✓ Store initialized (%s backend)\n", cfg.Store.Backend)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if drain != nil {
		go drain(ctx)
	}

	// Threshold bootstrap and optional hot reload
	if cfg.Governance.ThresholdsFile != "" {
		if err := service.Thresholds().BootstrapThresholds(ctx, cfg.Governance.ThresholdsFile); err != nil {
			return cli.NewCommandError("run", err)
		}
		fmt.Printf("✓ Thresholds loaded from %s\n", cfg.Governance.ThresholdsFile)

		if cfg.Governance.WatchThresholds {
			watcher, err := governance.NewThresholdWatcher(cfg.Governance.ThresholdsFile, service.Thresholds(), logger)
			if err != nil {
				return cli.NewCommandError("run", err)
			}
			go func() {
				if err := watcher.Watch(ctx); err != nil {
					slog.Error("threshold watcher exited", "error", err)
				}
			}()
		}
	}

	if err := service.Scheduler().Start(ctx); err != nil {
		return cli.NewCommandError("run", err)
	}

	// HTTP server for health and metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintln(w, `{"status":"ok"}`)
	})
	if cfg.Telemetry.Metrics.Enabled {
		mux.Handle(cfg.Telemetry.Metrics.Path,
			promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	srv := &http.Server{
		Addr:         cfg.Server.ListenAddress,
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errChan := make(chan error, 1)
	go func() {
		slog.Info("starting HTTP server", "address", cfg.Server.ListenAddress)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	fmt.Println()
	fmt.Printf("✓ Server listening on %s\n", cfg.Server.ListenAddress)
	fmt.Printf("✓ Health endpoint: http://%s/health\n", cfg.Server.ListenAddress)
	if cfg.Telemetry.Metrics.Enabled {
		fmt.Printf("✓ Metrics endpoint: http://%s%s\n", cfg.Server.ListenAddress, cfg.Telemetry.Metrics.Path)
	}
	fmt.Println("\nPress Ctrl+C to stop")

	sigChan := cli.WaitForShutdown()

	select {
	case err := <-errChan:
		return cli.NewCommandError("run", err)
	case sig := <-sigChan:
		fmt.Printf("\nReceived signal %s, shutting down gracefully...\n", sig)
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown failed", "error", err)
			return cli.NewCommandError("run", err)
		}

		fmt.Println("✓ Daemon stopped")
		return nil
	}
}

// newLogger builds the process logger from telemetry configuration.
func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

// newBackend builds the configured store backend.
func newBackend(cfg config.StoreConfig) (store.Backend, error) {
	switch cfg.Backend {
	case "sqlite":
		return store.NewSQLiteBackendWithConfig(store.SQLiteBackendConfig{
			DBPath:             cfg.SQLite.Path,
			BusyTimeout:        cfg.SQLite.BusyTimeout,
			CheckpointInterval: cfg.SQLite.CheckpointInterval,
		})
	case "memory":
		return store.NewMemoryBackend(), nil
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", cfg.Backend)
	}
}

// newPublisher builds the configured signal publisher. For the channel
// publisher it also returns a drain loop that logs delivered envelopes
// until the context ends.
func newPublisher(cfg config.NotifyConfig, logger *slog.Logger) (notify.Publisher, func(context.Context)) {
	if cfg.Publisher != "channel" {
		return notify.NewLogPublisher(logger), nil
	}

	publisher := notify.NewChannelPublisher(cfg.Buffer)
	drain := func(ctx context.Context) {
		for {
			select {
			case <-ctx.Done():
				return
			case envelope := <-publisher.Messages():
				logger.Info("governance signal",
					"topic", envelope.Topic,
					"message", envelope.Message,
				)
			}
		}
	}
	return publisher, drain
}
