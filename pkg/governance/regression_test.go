package governance

import "testing"

func TestFitSeries_Linear(t *testing.T) {
	fit, ok := fitSeries([]float64{1, 3, 5, 7})
	if !ok {
		t.Fatal("expected fit")
	}
	if !almostEqual(fit.Slope, 2) {
		t.Errorf("Slope = %v, want 2", fit.Slope)
	}
	if !almostEqual(fit.Intercept, 1) {
		t.Errorf("Intercept = %v, want 1", fit.Intercept)
	}

	next := fit.extrapolate(4, 1)
	if !almostEqual(next, 9) {
		t.Errorf("extrapolate = %v, want 9", next)
	}
}

func TestFitSeries_TooFewPoints(t *testing.T) {
	if _, ok := fitSeries([]float64{5}); ok {
		t.Error("one point must not fit")
	}
	if _, ok := fitSeries(nil); ok {
		t.Error("empty series must not fit")
	}
}

func TestFitSeries_Flat(t *testing.T) {
	fit, ok := fitSeries([]float64{4, 4, 4})
	if !ok {
		t.Fatal("expected fit")
	}
	if !almostEqual(fit.Slope, 0) {
		t.Errorf("Slope = %v, want 0", fit.Slope)
	}
	if !almostEqual(fit.extrapolate(3, 1), 4) {
		t.Errorf("extrapolate = %v, want 4", fit.extrapolate(3, 1))
	}
}

func TestCoefficientOfVariation(t *testing.T) {
	if cov := coefficientOfVariation([]float64{5, 5, 5}); !almostEqual(cov, 0) {
		t.Errorf("flat series CoV = %v, want 0", cov)
	}
	if cov := coefficientOfVariation(nil); cov != 0 {
		t.Errorf("empty series CoV = %v, want 0", cov)
	}
	if cov := coefficientOfVariation([]float64{0, 10}); cov <= 0.5 {
		t.Errorf("volatile series CoV = %v, want > 0.5", cov)
	}
}

func TestClamp(t *testing.T) {
	if got := clamp(0.7, -0.5, 0.5); got != 0.5 {
		t.Errorf("clamp high = %v", got)
	}
	if got := clamp(-0.7, -0.5, 0.5); got != -0.5 {
		t.Errorf("clamp low = %v", got)
	}
	if got := clamp(0.2, -0.5, 0.5); got != 0.2 {
		t.Errorf("clamp mid = %v", got)
	}
}
