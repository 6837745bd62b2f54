package backtest

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/forgequant/backtestcore/core/id"
)

// ErrMissingResult is returned when a caller asks for results before a
// run has completed.
var ErrMissingResult = errors.New("backtest: result requested before run completed")

// EquityPoint is one sample of the recorded balance curve.
type EquityPoint struct {
	TsNs    int64
	Balance decimal.Decimal
}

// Result is the complete outcome of one run, exposed to reporting.
type Result struct {
	TraderID id.TraderID
	StartNs  int64
	EndNs    int64
	RunTimeS float64

	StartingBalance decimal.Decimal
	EndingBalance   decimal.Decimal
	TotalReturn     decimal.Decimal

	TotalOrders      int
	TotalPositions   int
	TotalFills       int
	TotalCommissions decimal.Decimal

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

	BalanceCurve []EquityPoint
}

// Summary renders a human-readable run report, the shape the telegram
// notifier posts.
func (r *Result) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Backtest %s\n", r.TraderID)
	fmt.Fprintf(&b, "period: %d → %d (%.2fs run time)\n", r.StartNs, r.EndNs, r.RunTimeS)
	fmt.Fprintf(&b, "balance: %s → %s (%.2f%%)\n", r.StartingBalance.StringFixed(2), r.EndingBalance.StringFixed(2), r.TotalReturnPct)
	fmt.Fprintf(&b, "orders: %d  positions: %d  fills: %d  commissions: %s\n", r.TotalOrders, r.TotalPositions, r.TotalFills, r.TotalCommissions.StringFixed(2))
	fmt.Fprintf(&b, "sharpe: %.2f  sortino: %.2f  calmar: %.2f\n", r.SharpeRatio, r.SortinoRatio, r.CalmarRatio)
	fmt.Fprintf(&b, "max dd: %.2f%% (%.2f)  win rate: %.1f%%  profit factor: %.2f\n", r.MaxDrawdownPct, r.MaxDrawdownAbs, r.WinRate*100, r.ProfitFactor)
	fmt.Fprintf(&b, "expectancy: %.2f  avg win: %.2f  avg loss: %.2f", r.Expectancy, r.AvgWin, r.AvgLoss)
	return b.String()
}
