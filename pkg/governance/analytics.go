package governance

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// topDriverCount caps the cost driver ranking.
const topDriverCount = 10

// CostDriver is one ranked entry in the top-cost-drivers list.
type CostDriver struct {
	Dimension  ScopeKind `json:"dimension"`
	ID         string    `json:"id"`
	Cost       float64   `json:"cost"`
	Percentage float64   `json:"percentage"`
}

// Analytics summarizes usage across a date range for one scope, with
// breakdowns, ranked cost drivers, and trends against the immediately
// preceding equal-length window.
type Analytics struct {
	Scope  Scope     `json:"scope"`
	Period Period    `json:"period"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`

	Totals                Usage   `json:"totals"`
	AverageCostPerRequest float64 `json:"average_cost_per_request"`
	AverageCostPerToken   float64 `json:"average_cost_per_token"`

	ByProvider    map[string]float64 `json:"by_provider"`
	ByRequestType map[string]float64 `json:"by_request_type"`
	ByUser        map[string]float64 `json:"by_user"`

	TopCostDrivers []CostDriver `json:"top_cost_drivers"`

	// Trends are percentage change versus the prior window; efficiency
	// is cost per token.
	CostTrendPct       float64 `json:"cost_trend_pct"`
	RequestTrendPct    float64 `json:"request_trend_pct"`
	EfficiencyTrendPct float64 `json:"efficiency_trend_pct"`
}

// Analytics computes the cost analytics for a period granularity and
// date range. A nil scope analyzes the global scope. Breakdowns always
// cover the per-user, per-provider, and per-request-type partitions.
func (t *Tracker) Analytics(ctx context.Context, period Period, start, end time.Time, scope *Scope) (*Analytics, error) {
	if !period.Valid() {
		return nil, fmt.Errorf("%w: invalid period %q", ErrValidation, period)
	}
	if end.Before(start) {
		return nil, fmt.Errorf("%w: end %v precedes start %v", ErrValidation, end, start)
	}

	target := GlobalScope()
	if scope != nil {
		if !scope.Valid() {
			return nil, fmt.Errorf("%w: invalid scope", ErrValidation)
		}
		target = *scope
	}

	// Weekly rollups are not materialized; analyze at daily grain.
	rangePeriod := period
	if rangePeriod == PeriodWeekly {
		rangePeriod = PeriodDaily
	}

	totals := t.rangeUsage(ctx, target, rangePeriod, start, end)

	a := &Analytics{
		Scope:         target,
		Period:        period,
		Start:         start,
		End:           end,
		Totals:        totals,
		ByProvider:    t.breakdown(ctx, ScopeProvider, rangePeriod, start, end),
		ByRequestType: t.breakdown(ctx, ScopeRequestType, rangePeriod, start, end),
		ByUser:        t.breakdown(ctx, ScopeUser, rangePeriod, start, end),
	}
	if totals.Requests > 0 {
		a.AverageCostPerRequest = totals.Cost / float64(totals.Requests)
	}
	if totals.Tokens > 0 {
		a.AverageCostPerToken = totals.Cost / float64(totals.Tokens)
	}

	a.TopCostDrivers = rankCostDrivers(a, totals.Cost)

	prevTotals := t.rangeUsage(ctx, target, rangePeriod, start.Add(-end.Sub(start)).Add(-time.Second), start.Add(-time.Second))
	a.CostTrendPct = trendPct(totals.Cost, prevTotals.Cost)
	a.RequestTrendPct = trendPct(float64(totals.Requests), float64(prevTotals.Requests))
	a.EfficiencyTrendPct = trendPct(costPerToken(totals), costPerToken(prevTotals))

	return a, nil
}

// rangeUsage sums a scope's buckets over a window, degrading to zero
// on read failure.
func (t *Tracker) rangeUsage(ctx context.Context, scope Scope, period Period, start, end time.Time) Usage {
	from := BucketLabel(period, start)
	to := BucketLabel(period, end)
	rows, err := t.store.RangeBuckets(ctx, scope.Key(), string(period), from, to)
	if err != nil {
		t.logger.WarnContext(ctx, "analytics range read degraded to zero",
			"scope", scope.Key(), "period", period, "error", err)
		return Usage{}
	}
	return sumBuckets(rows)
}

// breakdown sums cost per target id for one scope kind over the window.
func (t *Tracker) breakdown(ctx context.Context, kind ScopeKind, period Period, start, end time.Time) map[string]float64 {
	result := make(map[string]float64)

	keys, err := t.store.ListScopes(ctx, string(kind)+":")
	if err != nil {
		t.logger.WarnContext(ctx, "breakdown scope listing degraded to empty",
			"kind", kind, "error", err)
		return result
	}

	for _, key := range keys {
		scope, err := ParseScope(key)
		if err != nil {
			continue
		}
		usage := t.rangeUsage(ctx, scope, period, start, end)
		if usage.Requests > 0 || usage.Cost > 0 {
			result[scope.ID] = usage.Cost
		}
	}
	return result
}

// rankCostDrivers ranks the union of all breakdown entries by cost
// descending and keeps the top ten with percentage-of-total.
func rankCostDrivers(a *Analytics, totalCost float64) []CostDriver {
	var drivers []CostDriver
	for id, cost := range a.ByProvider {
		drivers = append(drivers, CostDriver{Dimension: ScopeProvider, ID: id, Cost: cost})
	}
	for id, cost := range a.ByRequestType {
		drivers = append(drivers, CostDriver{Dimension: ScopeRequestType, ID: id, Cost: cost})
	}
	for id, cost := range a.ByUser {
		drivers = append(drivers, CostDriver{Dimension: ScopeUser, ID: id, Cost: cost})
	}

	sort.Slice(drivers, func(i, j int) bool {
		if drivers[i].Cost != drivers[j].Cost {
			return drivers[i].Cost > drivers[j].Cost
		}
		if drivers[i].Dimension != drivers[j].Dimension {
			return drivers[i].Dimension < drivers[j].Dimension
		}
		return drivers[i].ID < drivers[j].ID
	})

	if len(drivers) > topDriverCount {
		drivers = drivers[:topDriverCount]
	}
	if totalCost > 0 {
		for i := range drivers {
			drivers[i].Percentage = drivers[i].Cost / totalCost * 100
		}
	}
	return drivers
}

// trendPct returns the percentage change from previous to current.
func trendPct(current, previous float64) float64 {
	if previous == 0 {
		return 0
	}
	return (current - previous) / previous * 100
}

// costPerToken returns cost efficiency for a usage snapshot.
func costPerToken(u Usage) float64 {
	if u.Tokens == 0 {
		return 0
	}
	return u.Cost / float64(u.Tokens)
}
