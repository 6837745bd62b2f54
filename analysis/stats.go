// Package analysis computes post-run performance statistics as pure
// reductions over an already-recorded balance curve and the realized
// PnLs of closed positions. This is the one layer where float64 is
// permitted: its inputs are immutable, already-settled results, never
// anything on the fill/balance path.
package analysis

import "math"

// DefaultPeriodsPerYear annualizes daily-bar curves.
const DefaultPeriodsPerYear = 252.0

// Summary holds every derived performance statistic exposed through the
// run result.
type Summary struct {
	TotalReturnPct          float64
	AnnualizedReturnPct     float64
	AnnualizedVolatilityPct float64
	SharpeRatio             float64
	SortinoRatio            float64
	CalmarRatio             float64
	MaxDrawdownPct          float64
	MaxDrawdownAbs          float64
	WinRate                 float64
	ProfitFactor            float64
	Expectancy              float64
	AvgWin                  float64
	AvgLoss                 float64
}

// Compute derives a Summary from the per-period balance curve and the
// realized PnL of each closed position. periodsPerYear scales the
// ratio/volatility annualization; pass DefaultPeriodsPerYear for daily
// bars.
func Compute(balances []float64, closedPnls []float64, periodsPerYear float64) Summary {
	if periodsPerYear <= 0 {
		periodsPerYear = DefaultPeriodsPerYear
	}
	var s Summary

	if len(balances) >= 2 && balances[0] != 0 {
		s.TotalReturnPct = (balances[len(balances)-1]/balances[0] - 1) * 100
	}

	returns := periodReturns(balances)
	if len(returns) > 0 {
		mean := meanOf(returns)
		s.AnnualizedReturnPct = mean * periodsPerYear * 100

		vol := stdOf(returns, mean)
		s.AnnualizedVolatilityPct = vol * math.Sqrt(periodsPerYear) * 100
		if vol > 0 {
			s.SharpeRatio = mean / vol * math.Sqrt(periodsPerYear)
		}
		downside := downsideStdOf(returns)
		if downside > 0 {
			s.SortinoRatio = mean / downside * math.Sqrt(periodsPerYear)
		}
	}

	s.MaxDrawdownPct, s.MaxDrawdownAbs = maxDrawdown(balances)
	if s.MaxDrawdownPct > 0 {
		s.CalmarRatio = s.AnnualizedReturnPct / s.MaxDrawdownPct
	}

	s.WinRate, s.ProfitFactor, s.Expectancy, s.AvgWin, s.AvgLoss = tradeStats(closedPnls)
	return s
}

// periodReturns converts a balance curve into simple per-period returns.
func periodReturns(balances []float64) []float64 {
	if len(balances) < 2 {
		return nil
	}
	out := make([]float64, 0, len(balances)-1)
	for i := 1; i < len(balances); i++ {
		if balances[i-1] == 0 {
			continue
		}
		out = append(out, balances[i]/balances[i-1]-1)
	}
	return out
}

func meanOf(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func stdOf(xs []float64, mean float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		d := x - mean
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(xs)-1))
}

// downsideStdOf is the root-mean-square of negative returns only,
// against a zero target.
func downsideStdOf(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		if x < 0 {
			sum += x * x
		}
	}
	return math.Sqrt(sum / float64(len(xs)))
}

// maxDrawdown walks the curve tracking the running peak; returns the
// deepest peak-to-trough fall as a percentage of the peak and in
// absolute terms.
func maxDrawdown(balances []float64) (pct, abs float64) {
	if len(balances) == 0 {
		return 0, 0
	}
	peak := balances[0]
	for _, b := range balances {
		if b > peak {
			peak = b
		}
		dd := peak - b
		if dd > abs {
			abs = dd
		}
		if peak > 0 {
			ddPct := dd / peak * 100
			if ddPct > pct {
				pct = ddPct
			}
		}
	}
	return pct, abs
}

func tradeStats(pnls []float64) (winRate, profitFactor, expectancy, avgWin, avgLoss float64) {
	if len(pnls) == 0 {
		return 0, 0, 0, 0, 0
	}
	var wins, losses int
	var grossWin, grossLoss float64
	for _, pnl := range pnls {
		if pnl > 0 {
			wins++
			grossWin += pnl
		} else if pnl < 0 {
			losses++
			grossLoss += -pnl
		}
	}
	total := float64(len(pnls))
	winRate = float64(wins) / total
	if wins > 0 {
		avgWin = grossWin / float64(wins)
	}
	if losses > 0 {
		avgLoss = -grossLoss / float64(losses)
	}
	if grossLoss > 0 {
		profitFactor = grossWin / grossLoss
	} else if grossWin > 0 {
		profitFactor = math.Inf(1)
	}
	expectancy = winRate*avgWin + (1-winRate)*avgLoss
	return winRate, profitFactor, expectancy, avgWin, avgLoss
}
