package governance

import (
	"context"
	"fmt"
	"time"
)

// peakHourMultiplier gates peak hour detection: an hour is a peak when
// its share of requests exceeds this multiple of the flat average.
const peakHourMultiplier = 1.5

// monthlyTrendPoints caps the trailing monthly series length.
const monthlyTrendPoints = 12

// SeasonalGranularity names the cycle a detected pattern repeats on.
type SeasonalGranularity string

const (
	// SeasonalDaily is a within-day (hour-of-day) cycle.
	SeasonalDaily SeasonalGranularity = "daily"

	// SeasonalWeekly is a day-of-week cycle.
	SeasonalWeekly SeasonalGranularity = "weekly"

	// SeasonalMonthly is a month-over-month drift.
	SeasonalMonthly SeasonalGranularity = "monthly"

	// SeasonalYearly is an annual cycle; detectable only with a full
	// twelve months of history.
	SeasonalYearly SeasonalGranularity = "yearly"
)

// SeasonalPattern is one detected recurring usage cycle.
type SeasonalPattern struct {
	Granularity SeasonalGranularity `json:"granularity"`
	Multiplier  float64             `json:"multiplier"`
	Confidence  float64             `json:"confidence"`
	Description string              `json:"description"`
}

// MonthlyPoint is one point of the trailing monthly usage series.
type MonthlyPoint struct {
	Label    string  `json:"label"`
	Cost     float64 `json:"cost"`
	Requests int64   `json:"requests"`
}

// UsagePattern describes how a scope's usage distributes over hours,
// weekdays, and trailing months. An all-zero pattern is the valid
// result for a scope with no history.
type UsagePattern struct {
	Scope        Scope `json:"scope"`
	LookbackDays int   `json:"lookback_days"`

	// HourlyDistribution is average requests per hour-of-day slot.
	HourlyDistribution [24]float64 `json:"hourly_distribution"`

	// DailyDistribution is average requests per weekday (Sunday = 0).
	DailyDistribution [7]float64 `json:"daily_distribution"`

	// MonthlyTrend is the trailing monthly series, oldest first.
	MonthlyTrend []MonthlyPoint `json:"monthly_trend"`

	// PeakHours are hour-of-day slots whose request share exceeds the
	// peak multiple of the flat average.
	PeakHours []int `json:"peak_hours"`

	Seasonality []SeasonalPattern `json:"seasonality"`

	AverageRequestCost float64 `json:"average_request_cost"`
	TotalRequests      int64   `json:"total_requests"`
	TotalCost          float64 `json:"total_cost"`
}

// UsagePattern derives the hour-of-day and day-of-week distributions,
// the trailing monthly series, peak hours, and detected seasonality
// for a scope over the lookback window.
func (t *Tracker) UsagePattern(ctx context.Context, scope Scope, lookbackDays int) (*UsagePattern, error) {
	if !scope.Valid() {
		return nil, fmt.Errorf("%w: invalid scope", ErrValidation)
	}
	if lookbackDays <= 0 {
		lookbackDays = 30
	}

	now := t.now()
	pattern := &UsagePattern{Scope: scope, LookbackDays: lookbackDays}

	from := now.Add(-time.Duration(lookbackDays) * 24 * time.Hour)
	rows, err := t.store.RangeBuckets(ctx, scope.Key(), string(PeriodHourly),
		BucketLabel(PeriodHourly, from), BucketLabel(PeriodHourly, now))
	if err != nil {
		t.logger.WarnContext(ctx, "pattern read degraded to empty",
			"scope", scope.Key(), "error", err)
		rows = nil
	}

	var hourTotals [24]float64
	var dayTotals [7]float64
	for _, row := range rows {
		ts, err := time.Parse("2006-01-02T15", row.Label)
		if err != nil {
			continue
		}
		hourTotals[ts.Hour()] += float64(row.TotalRequests)
		dayTotals[int(ts.Weekday())] += float64(row.TotalRequests)
		pattern.TotalRequests += row.TotalRequests
		pattern.TotalCost += row.TotalCost
	}

	days := float64(lookbackDays)
	weeks := days / 7
	if weeks < 1 {
		weeks = 1
	}
	for h := range hourTotals {
		pattern.HourlyDistribution[h] = hourTotals[h] / days
	}
	for d := range dayTotals {
		pattern.DailyDistribution[d] = dayTotals[d] / weeks
	}
	if pattern.TotalRequests > 0 {
		pattern.AverageRequestCost = pattern.TotalCost / float64(pattern.TotalRequests)
	}

	pattern.MonthlyTrend = t.monthlyTrend(ctx, scope, now)
	pattern.PeakHours = detectPeakHours(hourTotals, pattern.TotalRequests)
	pattern.Seasonality = detectSeasonality(pattern, hourTotals, dayTotals)

	return pattern, nil
}

// monthlyTrend reads the trailing twelve monthly buckets, oldest first.
func (t *Tracker) monthlyTrend(ctx context.Context, scope Scope, now time.Time) []MonthlyPoint {
	from := PeriodStart(PeriodMonthly, now).AddDate(0, -(monthlyTrendPoints - 1), 0)
	rows, err := t.store.RangeBuckets(ctx, scope.Key(), string(PeriodMonthly),
		BucketLabel(PeriodMonthly, from), BucketLabel(PeriodMonthly, now))
	if err != nil {
		t.logger.WarnContext(ctx, "monthly trend read degraded to empty",
			"scope", scope.Key(), "error", err)
		return nil
	}

	points := make([]MonthlyPoint, 0, len(rows))
	for _, row := range rows {
		points = append(points, MonthlyPoint{
			Label:    row.Label,
			Cost:     row.TotalCost,
			Requests: row.TotalRequests,
		})
	}
	if len(points) > monthlyTrendPoints {
		points = points[len(points)-monthlyTrendPoints:]
	}
	return points
}

// detectPeakHours returns hours whose request share exceeds the peak
// multiple of the flat hourly average.
func detectPeakHours(hourTotals [24]float64, totalRequests int64) []int {
	if totalRequests == 0 {
		return nil
	}
	flat := float64(totalRequests) / 24

	var peaks []int
	for h, total := range hourTotals {
		if total > peakHourMultiplier*flat {
			peaks = append(peaks, h)
		}
	}
	return peaks
}

// detectSeasonality derives recurring cycles from the distributions
// and the monthly series. Detection is heuristic: a cycle registers
// when its peak-to-average ratio clears the granularity's gate.
func detectSeasonality(pattern *UsagePattern, hourTotals [24]float64, dayTotals [7]float64) []SeasonalPattern {
	var detected []SeasonalPattern

	if pattern.TotalRequests > 0 {
		flatHour := float64(pattern.TotalRequests) / 24
		maxHour, peakHour := 0.0, 0
		for h, total := range hourTotals {
			if total > maxHour {
				maxHour, peakHour = total, h
			}
		}
		if flatHour > 0 && maxHour/flatHour >= 2.0 {
			detected = append(detected, SeasonalPattern{
				Granularity: SeasonalDaily,
				Multiplier:  maxHour / flatHour,
				Confidence:  0.7,
				Description: fmt.Sprintf("usage concentrates around %02d:00 UTC", peakHour),
			})
		}

		flatDay := float64(pattern.TotalRequests) / 7
		maxDay, peakDay := 0.0, time.Sunday
		for d, total := range dayTotals {
			if total > maxDay {
				maxDay, peakDay = total, time.Weekday(d)
			}
		}
		if flatDay > 0 && maxDay/flatDay >= 1.5 {
			detected = append(detected, SeasonalPattern{
				Granularity: SeasonalWeekly,
				Multiplier:  maxDay / flatDay,
				Confidence:  0.7,
				Description: fmt.Sprintf("usage concentrates on %s", peakDay),
			})
		}
	}

	if ratio, ok := monthOverMonthDrift(pattern.MonthlyTrend); ok {
		detected = append(detected, SeasonalPattern{
			Granularity: SeasonalMonthly,
			Multiplier:  ratio,
			Confidence:  0.7,
			Description: fmt.Sprintf("month-over-month usage drifts by %.0f%%", (ratio-1)*100),
		})
	}

	if len(pattern.MonthlyTrend) >= monthlyTrendPoints {
		if mult, label, ok := annualPeak(pattern.MonthlyTrend); ok {
			detected = append(detected, SeasonalPattern{
				Granularity: SeasonalYearly,
				Multiplier:  mult,
				Confidence:  0.7,
				Description: fmt.Sprintf("annual usage peaks in %s", label),
			})
		}
	}

	return detected
}

// monthOverMonthDrift reports the average month-over-month cost ratio
// when the series drifts consistently by at least 10%.
func monthOverMonthDrift(trend []MonthlyPoint) (float64, bool) {
	if len(trend) < 3 {
		return 0, false
	}

	var sum float64
	var count int
	for i := 1; i < len(trend); i++ {
		if trend[i-1].Cost <= 0 {
			return 0, false
		}
		sum += trend[i].Cost / trend[i-1].Cost
		count++
	}

	avg := sum / float64(count)
	if avg >= 1.1 || avg <= 0.9 {
		return avg, true
	}
	return 0, false
}

// annualPeak reports the strongest month of a full-year series when it
// clears a 1.3x peak-to-average ratio.
func annualPeak(trend []MonthlyPoint) (float64, string, bool) {
	var total, maxCost float64
	var maxLabel string
	for _, p := range trend {
		total += p.Cost
		if p.Cost > maxCost {
			maxCost, maxLabel = p.Cost, p.Label
		}
	}
	if total == 0 {
		return 0, "", false
	}

	avg := total / float64(len(trend))
	if maxCost/avg >= 1.3 {
		return maxCost / avg, maxLabel, true
	}
	return 0, "", false
}
