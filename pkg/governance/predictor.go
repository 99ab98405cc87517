package governance

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Confidence bounds for any emitted prediction.
const (
	minPredictionConfidence = 0.1
	maxPredictionConfidence = 0.95
)

// defaultLookbackDays is the history window predictions are built on.
const defaultLookbackDays = 30

// Prediction is one spend forecast for a scope and period.
type Prediction struct {
	Scope  Scope  `json:"scope"`
	Period Period `json:"period"`

	// PredictedCost is the expected spend for the next period, in USD.
	PredictedCost float64 `json:"predicted_cost"`

	// Baseline is the trend extrapolation before factor adjustments.
	Baseline float64 `json:"baseline"`

	// Confidence is in [0.1, 0.95].
	Confidence float64 `json:"confidence"`

	Factors []Factor `json:"factors"`

	GeneratedAt time.Time `json:"generated_at"`
}

// Predictor forecasts spend per scope and period by extrapolating the
// tracker's usage patterns and adjusting for named factors.
type Predictor struct {
	tracker *Tracker
	metrics *Metrics
	logger  *slog.Logger

	// lookbackDays is the pattern window; zero means the default.
	lookbackDays int

	// now is the clock, overridable in tests.
	now func() time.Time
}

// NewPredictor creates a spend predictor over a tracker.
func NewPredictor(tracker *Tracker, metrics *Metrics, logger *slog.Logger) *Predictor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Predictor{
		tracker:      tracker,
		metrics:      metrics,
		logger:       logger.With("component", "governance.predictor"),
		lookbackDays: defaultLookbackDays,
		now:          time.Now,
	}
}

// PredictUsage forecasts the next period's spend for a scope. A scope
// with no history yields a zero prediction at minimum confidence
// rather than an error.
func (p *Predictor) PredictUsage(ctx context.Context, scope Scope, period Period) (*Prediction, error) {
	if !scope.Valid() {
		return nil, fmt.Errorf("%w: invalid scope", ErrValidation)
	}
	if !period.Valid() {
		return nil, fmt.Errorf("%w: invalid period %q", ErrValidation, period)
	}

	pattern, err := p.tracker.UsagePattern(ctx, scope, p.lookbackDays)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPredictionData, err)
	}

	now := p.now()
	prediction := &Prediction{
		Scope:       scope,
		Period:      period,
		GeneratedAt: now,
	}

	series, scale := baselineSeries(pattern, period)
	prediction.Baseline = extrapolateBaseline(series, scale, pattern.AverageRequestCost, period)

	prediction.Factors = predictionFactors(pattern, period, now)

	adjustment := 0.0
	for _, f := range prediction.Factors {
		adjustment += prediction.Baseline * f.Impact * f.Confidence
	}
	prediction.PredictedCost = prediction.Baseline + adjustment
	if prediction.PredictedCost < 0 {
		prediction.PredictedCost = 0
	}

	prediction.Confidence = predictionConfidence(pattern, prediction.Factors)

	p.metrics.RecordPrediction(scope, period, prediction.PredictedCost, prediction.Confidence)
	return prediction, nil
}

// GenerateBatchPredictions forecasts one period for many scopes
// concurrently. A scope whose forecast fails contributes a zero-cost
// fallback prediction at minimum confidence instead of failing the
// batch; positional order follows the input.
func (p *Predictor) GenerateBatchPredictions(ctx context.Context, scopes []Scope, period Period) ([]*Prediction, error) {
	if !period.Valid() {
		return nil, fmt.Errorf("%w: invalid period %q", ErrValidation, period)
	}

	predictions := make([]*Prediction, len(scopes))
	var wg sync.WaitGroup
	for i, scope := range scopes {
		wg.Add(1)
		go func(i int, scope Scope) {
			defer wg.Done()
			prediction, err := p.PredictUsage(ctx, scope, period)
			if err != nil {
				p.logger.WarnContext(ctx, "prediction degraded to fallback",
					"scope", scope.Key(), "period", period, "error", err)
				prediction = p.fallbackPrediction(scope, period, err)
			}
			predictions[i] = prediction
		}(i, scope)
	}
	wg.Wait()

	return predictions, nil
}

// fallbackPrediction is the zero-cost minimum-confidence stand-in for
// a scope whose forecast failed.
func (p *Predictor) fallbackPrediction(scope Scope, period Period, cause error) *Prediction {
	return &Prediction{
		Scope:      scope,
		Period:     period,
		Confidence: minPredictionConfidence,
		Factors: []Factor{{
			Name:        "fallback",
			Confidence:  minPredictionConfidence,
			Description: fmt.Sprintf("forecast unavailable: %v", cause),
		}},
		GeneratedAt: p.now(),
	}
}

// baselineSeries selects the request series and period scale the
// baseline is extrapolated from.
func baselineSeries(pattern *UsagePattern, period Period) ([]float64, float64) {
	switch period {
	case PeriodHourly:
		return pattern.HourlyDistribution[:], 1
	case PeriodDaily:
		return pattern.DailyDistribution[:], 1
	case PeriodWeekly:
		return pattern.DailyDistribution[:], 7
	case PeriodMonthly:
		series := make([]float64, len(pattern.MonthlyTrend))
		for i, point := range pattern.MonthlyTrend {
			series[i] = point.Cost
		}
		return series, 1
	}
	return nil, 0
}

// extrapolateBaseline projects the series one step ahead and converts
// it to cost. Monthly series are already in cost; the others are in
// requests and scale by the average request cost.
func extrapolateBaseline(series []float64, scale, averageRequestCost float64, period Period) float64 {
	fit, ok := fitSeries(series)
	if !ok {
		// Too little history to fit a trend.
		if period == PeriodMonthly {
			if len(series) == 1 {
				return series[0]
			}
			return 0
		}
		return averageRequestCost * scale
	}

	next := fit.extrapolate(len(series), 1)
	if next < 0 {
		next = 0
	}

	if period == PeriodMonthly {
		return next
	}
	return next * averageRequestCost * scale
}

// predictionConfidence combines history depth, monthly-series
// stability, and the factors' own confidence into one bounded score.
// Stability is always judged on the monthly trend: a scope whose
// month-to-month spend swings wildly gets a penalized forecast for
// every period, not just monthly ones.
func predictionConfidence(pattern *UsagePattern, factors []Factor) float64 {
	confidence := 0.5

	depth := 0.05 * float64(len(pattern.MonthlyTrend))
	if depth > 0.3 {
		depth = 0.3
	}
	confidence += depth

	monthly := make([]float64, len(pattern.MonthlyTrend))
	for i, point := range pattern.MonthlyTrend {
		monthly[i] = point.Cost
	}
	switch cov := coefficientOfVariation(monthly); {
	case cov < 0.5:
		confidence += 0.2
	case cov > 1.5:
		confidence -= 0.2
	}

	if len(factors) > 0 {
		var sum float64
		for _, f := range factors {
			sum += f.Confidence
		}
		confidence = (confidence + sum/float64(len(factors))) / 2
	}

	return clamp(confidence, minPredictionConfidence, maxPredictionConfidence)
}
