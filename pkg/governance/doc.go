// Package governance implements the usage cost governance engine: cost
// event ingestion and rollup aggregation, threshold evaluation with
// automated remediation dispatch, and trend-based spend forecasting.
//
// The package is organized into subpackages mirroring the engine's
// three layers:
//
//   - store: the aggregate store contract (atomic bucket increments,
//     range reads, retention-stamped rows) with memory and SQLite
//     backends
//   - tracker: cost event recording and usage/analytics/pattern queries
//   - threshold: budget threshold definitions, scheduled evaluation,
//     alerting and remediation action dispatch
//   - predictor: confidence-scored spend forecasts per scope and period
//   - notify: the fire-and-forget notification channel contract
//
// The root package holds the shared record shapes (CostEvent, Scope,
// Period, Usage), sentinel errors, Prometheus metrics, the Service
// wiring struct, and the cron-driven evaluation scheduler.
//
// # Example
//
//	svc, err := governance.NewService(governance.ServiceConfig{
//	    Store: store.NewMemoryBackend(),
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer svc.Close()
//
//	err = svc.Tracker.RecordCost(ctx, event)
//	report, err := svc.Thresholds.CheckThresholds(ctx)
//	pred, err := svc.Predictor.GeneratePrediction(ctx, governance.GlobalScope(), governance.PeriodDaily, 30)
package governance
