package governance

import (
	"testing"
	"time"
)

func TestGrowthFactor_ShortHistory(t *testing.T) {
	f := growthFactor([]MonthlyPoint{{Label: "2025-02", Cost: 100}, {Label: "2025-03", Cost: 120}})
	if f.Impact != 0 {
		t.Errorf("Impact = %v, want 0 for short history", f.Impact)
	}
	if f.Confidence != 0.3 {
		t.Errorf("Confidence = %v, want 0.3", f.Confidence)
	}
}

func TestGrowthFactor_Growth(t *testing.T) {
	trend := []MonthlyPoint{
		{Label: "2025-01", Cost: 100},
		{Label: "2025-02", Cost: 120},
		{Label: "2025-03", Cost: 140},
	}
	f := growthFactor(trend)
	// (140-100)/100/2 = 0.2 per month
	if !almostEqual(f.Impact, 0.2) {
		t.Errorf("Impact = %v, want 0.2", f.Impact)
	}
	if f.Confidence != 0.8 {
		t.Errorf("Confidence = %v, want 0.8", f.Confidence)
	}
}

func TestGrowthFactor_ClampedAtCap(t *testing.T) {
	trend := []MonthlyPoint{
		{Label: "2025-01", Cost: 100},
		{Label: "2025-02", Cost: 300},
		{Label: "2025-03", Cost: 900},
	}
	f := growthFactor(trend)
	if f.Impact != 0.3 {
		t.Errorf("Impact = %v, want capped at 0.3", f.Impact)
	}
}

func TestWeekendSkewFactor(t *testing.T) {
	var pattern UsagePattern
	for d := time.Monday; d <= time.Friday; d++ {
		pattern.DailyDistribution[d] = 10
	}
	pattern.DailyDistribution[time.Saturday] = 2
	pattern.DailyDistribution[time.Sunday] = 2

	f, ok := weekendSkewFactor(&pattern)
	if !ok {
		t.Fatal("expected weekend skew factor")
	}
	// weekend/weekday - 1 = 0.2 - 1 = -0.8, scaled by 0.3 and clamped to -0.3.
	if f.Impact != -0.3 {
		t.Errorf("Impact = %v, want -0.3", f.Impact)
	}
	if f.Confidence != 0.6 {
		t.Errorf("Confidence = %v, want 0.6", f.Confidence)
	}
}

func TestWeekendSkewFactor_NoWeekdayTraffic(t *testing.T) {
	var pattern UsagePattern
	if _, ok := weekendSkewFactor(&pattern); ok {
		t.Error("no weekday traffic must not produce a factor")
	}
}

func TestSeasonalityRelevant(t *testing.T) {
	tests := []struct {
		granularity SeasonalGranularity
		period      Period
		want        bool
	}{
		{SeasonalDaily, PeriodHourly, true},
		{SeasonalDaily, PeriodMonthly, false},
		{SeasonalWeekly, PeriodDaily, true},
		{SeasonalWeekly, PeriodWeekly, true},
		{SeasonalMonthly, PeriodMonthly, true},
		{SeasonalMonthly, PeriodHourly, false},
		{SeasonalYearly, PeriodMonthly, true},
	}

	for _, tt := range tests {
		if got := seasonalityRelevant(tt.granularity, tt.period); got != tt.want {
			t.Errorf("seasonalityRelevant(%s, %s) = %v, want %v", tt.granularity, tt.period, got, tt.want)
		}
	}
}

func TestSeasonalityFactors_ImpactClamped(t *testing.T) {
	pattern := &UsagePattern{
		Seasonality: []SeasonalPattern{
			{Granularity: SeasonalDaily, Multiplier: 5.0, Confidence: 0.7},
		},
	}
	factors := seasonalityFactors(pattern, PeriodHourly)
	if len(factors) != 1 {
		t.Fatalf("got %d factors, want 1", len(factors))
	}
	if factors[0].Impact != 0.5 {
		t.Errorf("Impact = %v, want clamped to 0.5", factors[0].Impact)
	}
}

func TestPredictionFactors_AlwaysIncludesBaselineAdjustments(t *testing.T) {
	pattern := &UsagePattern{LookbackDays: 30}
	factors := predictionFactors(pattern, PeriodMonthly, time.Now())

	names := make(map[string]bool)
	for _, f := range factors {
		names[f.Name] = true
	}
	for _, want := range []string{"historical_growth", "efficiency_improvements", "pricing_changes"} {
		if !names[want] {
			t.Errorf("missing factor %q", want)
		}
	}
}

func TestPeakHourFactor(t *testing.T) {
	now := time.Date(2025, 3, 5, 14, 0, 0, 0, time.UTC)

	pattern := &UsagePattern{
		LookbackDays:  1,
		TotalRequests: 48,
		PeakHours:     []int{14},
	}
	// Flat average is 2 per hour; hour 14 runs at 10.
	pattern.HourlyDistribution[14] = 10

	f, ok := peakHourFactor(pattern, now)
	if !ok {
		t.Fatal("expected peak hour factor")
	}
	if f.Confidence != 0.9 {
		t.Errorf("Confidence = %v, want 0.9", f.Confidence)
	}
	if f.Impact != 0.4 {
		t.Errorf("Impact = %v, want capped at 0.4", f.Impact)
	}

	// Outside the peak hour there is no factor.
	if _, ok := peakHourFactor(pattern, now.Add(3*time.Hour)); ok {
		t.Error("non-peak hour must not produce a factor")
	}
}
