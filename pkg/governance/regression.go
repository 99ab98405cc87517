package governance

import "math"

// linearFit is an ordinary least squares fit over an evenly indexed
// series (x = 0, 1, 2, ...).
type linearFit struct {
	Slope     float64
	Intercept float64
}

// fitSeries fits a least squares line to the series. It returns false
// when fewer than two points are available or the series is degenerate.
func fitSeries(values []float64) (linearFit, bool) {
	n := float64(len(values))
	if n < 2 {
		return linearFit{}, false
	}

	var sumX, sumY, sumXY, sumXX float64
	for i, y := range values {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}

	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return linearFit{}, false
	}

	slope := (n*sumXY - sumX*sumY) / denom
	return linearFit{
		Slope:     slope,
		Intercept: (sumY - slope*sumX) / n,
	}, true
}

// extrapolate evaluates the fit one or more steps past the series end.
func (f linearFit) extrapolate(seriesLen, stepsAhead int) float64 {
	return f.Intercept + f.Slope*float64(seriesLen-1+stepsAhead)
}

// coefficientOfVariation is the standard deviation over the mean. It
// returns 0 for empty or zero-mean series.
func coefficientOfVariation(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	if mean == 0 {
		return 0
	}

	var variance float64
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(values))

	return math.Sqrt(variance) / mean
}

// clamp bounds v to [lo, hi].
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
