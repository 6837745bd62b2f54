package analysis

import (
	"math"
	"testing"
)

func approx(t *testing.T, name string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s = %f, want %f (±%f)", name, got, want, tol)
	}
}

func TestTotalReturnPct(t *testing.T) {
	s := Compute([]float64{100_000, 105_000, 110_000}, nil, 252)
	approx(t, "total return", s.TotalReturnPct, 10.0, 1e-9)
}

func TestMaxDrawdown(t *testing.T) {
	// Peak 120, trough 90: drawdown 30 abs, 25% of peak.
	s := Compute([]float64{100, 120, 90, 110}, nil, 252)
	approx(t, "max dd abs", s.MaxDrawdownAbs, 30, 1e-9)
	approx(t, "max dd pct", s.MaxDrawdownPct, 25, 1e-9)
}

func TestFlatCurveHasNoRiskStats(t *testing.T) {
	s := Compute([]float64{100, 100, 100}, nil, 252)
	if s.SharpeRatio != 0 || s.AnnualizedVolatilityPct != 0 {
		t.Errorf("flat curve: sharpe=%f vol=%f, want 0/0", s.SharpeRatio, s.AnnualizedVolatilityPct)
	}
	if s.MaxDrawdownPct != 0 {
		t.Errorf("flat curve dd = %f, want 0", s.MaxDrawdownPct)
	}
}

func TestSharpePositiveForRisingCurve(t *testing.T) {
	balances := []float64{100, 101, 102.5, 103, 104.5, 106}
	s := Compute(balances, nil, 252)
	if s.SharpeRatio <= 0 {
		t.Errorf("sharpe = %f, want > 0 for a rising curve", s.SharpeRatio)
	}
	if s.AnnualizedReturnPct <= 0 {
		t.Errorf("annualized return = %f, want > 0", s.AnnualizedReturnPct)
	}
}

func TestSortinoIgnoresUpsideVolatility(t *testing.T) {
	// Same mean; one series has only upside swings.
	smooth := Compute([]float64{100, 102, 104, 106}, nil, 252)
	if smooth.SortinoRatio != 0 {
		// No negative returns: downside deviation is zero, ratio unset.
		t.Errorf("sortino = %f, want 0 (no downside)", smooth.SortinoRatio)
	}
	choppy := Compute([]float64{100, 104, 102, 106}, nil, 252)
	if choppy.SortinoRatio <= 0 {
		t.Errorf("sortino = %f, want > 0", choppy.SortinoRatio)
	}
}

func TestTradeStats(t *testing.T) {
	pnls := []float64{100, -50, 200, -50, 100}
	s := Compute([]float64{100, 101}, pnls, 252)

	approx(t, "win rate", s.WinRate, 0.6, 1e-9)
	// Gross win 400, gross loss 100.
	approx(t, "profit factor", s.ProfitFactor, 4.0, 1e-9)
	approx(t, "avg win", s.AvgWin, 400.0/3, 1e-9)
	approx(t, "avg loss", s.AvgLoss, -50, 1e-9)
	// 0.6*133.33 + 0.4*(-50) = 60.
	approx(t, "expectancy", s.Expectancy, 60, 1e-9)
}

func TestAllWinnersProfitFactorInfinite(t *testing.T) {
	s := Compute([]float64{100, 101}, []float64{10, 20}, 252)
	if !math.IsInf(s.ProfitFactor, 1) {
		t.Errorf("profit factor = %f, want +Inf", s.ProfitFactor)
	}
	approx(t, "win rate", s.WinRate, 1.0, 1e-9)
}

func TestEmptyInputs(t *testing.T) {
	s := Compute(nil, nil, 252)
	if s != (Summary{}) {
		t.Errorf("empty inputs should produce a zero summary, got %+v", s)
	}
}
