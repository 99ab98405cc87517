package governance

import (
	"fmt"
	"time"
)

// Factor is one named contribution to a prediction, with a relative
// impact on the baseline and a confidence weight.
type Factor struct {
	Name        string  `json:"name"`
	Impact      float64 `json:"impact"`
	Confidence  float64 `json:"confidence"`
	Description string  `json:"description"`
}

// predictionFactors derives the adjustment factors for one prediction
// from the scope's usage pattern.
func predictionFactors(pattern *UsagePattern, period Period, now time.Time) []Factor {
	var factors []Factor

	factors = append(factors, seasonalityFactors(pattern, period)...)

	if period == PeriodDaily || period == PeriodWeekly {
		if f, ok := weekendSkewFactor(pattern); ok {
			factors = append(factors, f)
		}
	}

	factors = append(factors, growthFactor(pattern.MonthlyTrend))

	if period == PeriodHourly {
		if f, ok := peakHourFactor(pattern, now); ok {
			factors = append(factors, f)
		}
	}

	factors = append(factors,
		Factor{
			Name:        "efficiency_improvements",
			Impact:      -0.02,
			Confidence:  0.6,
			Description: "expected caching and routing efficiency gains",
		},
		Factor{
			Name:        "pricing_changes",
			Impact:      -0.01,
			Confidence:  0.5,
			Description: "expected provider price erosion",
		},
	)

	return factors
}

// seasonalityFactors converts detected seasonal patterns relevant to
// the prediction period into factors.
func seasonalityFactors(pattern *UsagePattern, period Period) []Factor {
	var factors []Factor
	for _, s := range pattern.Seasonality {
		if !seasonalityRelevant(s.Granularity, period) {
			continue
		}
		factors = append(factors, Factor{
			Name:        fmt.Sprintf("seasonality_%s", s.Granularity),
			Impact:      clamp((s.Multiplier-1)*0.5, -0.5, 0.5),
			Confidence:  s.Confidence,
			Description: s.Description,
		})
	}
	return factors
}

// seasonalityRelevant reports whether a seasonal cycle is on a scale
// that affects a prediction period.
func seasonalityRelevant(g SeasonalGranularity, period Period) bool {
	switch g {
	case SeasonalDaily:
		return period == PeriodHourly
	case SeasonalWeekly:
		return period == PeriodHourly || period == PeriodDaily || period == PeriodWeekly
	case SeasonalMonthly, SeasonalYearly:
		return period == PeriodMonthly
	}
	return false
}

// weekendSkewFactor measures how weekend traffic deviates from weekday
// traffic.
func weekendSkewFactor(pattern *UsagePattern) (Factor, bool) {
	weekend := (pattern.DailyDistribution[time.Saturday] + pattern.DailyDistribution[time.Sunday]) / 2
	var weekday float64
	for d := time.Monday; d <= time.Friday; d++ {
		weekday += pattern.DailyDistribution[d]
	}
	weekday /= 5

	if weekday == 0 {
		return Factor{}, false
	}

	skew := weekend/weekday - 1
	return Factor{
		Name:        "weekend_skew",
		Impact:      clamp(skew*0.3, -0.3, 0.3),
		Confidence:  0.6,
		Description: fmt.Sprintf("weekend traffic runs %.0f%% of weekday traffic", (skew+1)*100),
	}, true
}

// growthFactor measures recent cost growth over the last three monthly
// points. With a short history the factor is near-neutral with low
// confidence rather than absent.
func growthFactor(trend []MonthlyPoint) Factor {
	if len(trend) < 3 {
		return Factor{
			Name:        "historical_growth",
			Impact:      0,
			Confidence:  0.3,
			Description: "insufficient monthly history for a growth estimate",
		}
	}

	recent := trend[len(trend)-3:]
	if recent[0].Cost <= 0 {
		return Factor{
			Name:        "historical_growth",
			Impact:      0,
			Confidence:  0.3,
			Description: "monthly history starts from zero cost",
		}
	}

	growth := (recent[2].Cost - recent[0].Cost) / recent[0].Cost / 2
	return Factor{
		Name:        "historical_growth",
		Impact:      clamp(growth, -0.3, 0.3),
		Confidence:  0.8,
		Description: fmt.Sprintf("average monthly growth of %.1f%% over the last quarter", growth*100),
	}
}

// peakHourFactor raises an hourly prediction when the current hour is a
// detected peak.
func peakHourFactor(pattern *UsagePattern, now time.Time) (Factor, bool) {
	hour := now.UTC().Hour()
	peak := false
	for _, h := range pattern.PeakHours {
		if h == hour {
			peak = true
			break
		}
	}
	if !peak || pattern.TotalRequests == 0 {
		return Factor{}, false
	}

	flat := float64(pattern.TotalRequests) / 24 / float64(pattern.LookbackDays)
	if flat == 0 {
		return Factor{}, false
	}

	ratio := pattern.HourlyDistribution[hour] / flat
	if ratio <= peakHourMultiplier {
		return Factor{}, false
	}

	impact := (ratio - 1) * 0.2
	if impact > 0.4 {
		impact = 0.4
	}
	return Factor{
		Name:        "peak_hour",
		Impact:      impact,
		Confidence:  0.9,
		Description: fmt.Sprintf("current hour %02d:00 UTC is a detected usage peak", hour),
	}, true
}
