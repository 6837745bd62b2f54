// Package sim implements the per-instrument matching engine and the
// pluggable fill/fee/latency models that parameterize simulated venue
// behaviour.
package sim

import (
	"math/rand"

	"github.com/shopspring/decimal"

	"github.com/forgequant/backtestcore/core/enums"
	"github.com/forgequant/backtestcore/core/money"
	"github.com/forgequant/backtestcore/model/instrument"
	"github.com/forgequant/backtestcore/model/order"
)

// FillModel controls whether a resting limit fills exactly at its limit
// price and what slippage a market fill receives. Slippage/probability
// are the one place pseudo-randomness is permitted in the simulation;
// seed it for deterministic runs.
type FillModel struct {
	ProbFillOnLimit  float64
	ProbSlippage     float64
	MaxSlippageTicks int
	rng              *rand.Rand
}

// NewFillModel constructs a FillModel seeded for reproducibility.
func NewFillModel(probFillOnLimit, probSlippage float64, maxSlippageTicks int, seed int64) *FillModel {
	return &FillModel{
		ProbFillOnLimit:  probFillOnLimit,
		ProbSlippage:     probSlippage,
		MaxSlippageTicks: maxSlippageTicks,
		rng:              rand.New(rand.NewSource(seed)),
	}
}

// DefaultFillModel never applies slippage and always fills when price
// crosses the limit.
func DefaultFillModel() *FillModel {
	return NewFillModel(1.0, 0.0, 1, 1)
}

// IsLimitFilled reports whether a limit order resting exactly at the
// touch should fill this pass.
func (m *FillModel) IsLimitFilled(isExactlyAtLimit bool) bool {
	if !isExactlyAtLimit {
		return true
	}
	return m.rng.Float64() < m.ProbFillOnLimit
}

// ApplySlippage perturbs a market fill price by whole ticks, biased
// against the trader (worse price), folding in the original's separate
// SlippageModel as the single slippage mechanism applied to fills.
func (m *FillModel) ApplySlippage(price money.Price, side enums.OrderSide, inst *instrument.Instrument) money.Price {
	if m.ProbSlippage <= 0 || m.rng.Float64() >= m.ProbSlippage {
		return price
	}
	ticks := 1
	if m.MaxSlippageTicks > 1 {
		ticks = 1 + m.rng.Intn(m.MaxSlippageTicks)
	}
	offset := inst.PriceIncrement.Value.Mul(decimal.NewFromInt(int64(ticks)))
	if side == enums.Buy {
		return money.NewPrice(price.Value.Add(offset), inst.PricePrecision)
	}
	return money.NewPrice(price.Value.Sub(offset), inst.PricePrecision)
}

// FeeModel computes the commission owed on a single fill.
type FeeModel interface {
	Calculate(ord *order.Order, fillQty money.Quantity, fillPx money.Price, inst *instrument.Instrument, liquiditySide enums.LiquiditySide) money.Money
}

// MakerTakerFeeModel charges a percentage of notional, using the
// instrument's maker or taker rate depending on liquidity side.
type MakerTakerFeeModel struct{}

func (MakerTakerFeeModel) Calculate(ord *order.Order, fillQty money.Quantity, fillPx money.Price, inst *instrument.Instrument, liquiditySide enums.LiquiditySide) money.Money {
	rate := inst.TakerFee
	if liquiditySide == enums.Maker {
		rate = inst.MakerFee
	}
	notional := inst.NotionalValue(fillQty, fillPx)
	return money.NewMoney(notional.Mul(rate), inst.QuoteCurrency)
}

// FixedFeeModel charges a flat amount per fill regardless of size.
type FixedFeeModel struct {
	FeePerTrade money.Money
}

func (m FixedFeeModel) Calculate(ord *order.Order, fillQty money.Quantity, fillPx money.Price, inst *instrument.Instrument, liquiditySide enums.LiquiditySide) money.Money {
	return m.FeePerTrade
}

// PerShareFeeModel charges a flat amount per unit filled.
type PerShareFeeModel struct {
	FeePerShare money.Money
}

func (m PerShareFeeModel) Calculate(ord *order.Order, fillQty money.Quantity, fillPx money.Price, inst *instrument.Instrument, liquiditySide enums.LiquiditySide) money.Money {
	return money.NewMoney(m.FeePerShare.Amount.Mul(fillQty.Value), m.FeePerShare.Currency)
}

// ZeroFeeModel never charges a commission.
type ZeroFeeModel struct{}

func (ZeroFeeModel) Calculate(ord *order.Order, fillQty money.Quantity, fillPx money.Price, inst *instrument.Instrument, liquiditySide enums.LiquiditySide) money.Money {
	return money.NewMoney(decimal.Zero, inst.QuoteCurrency)
}

// LatencyModel simulates order processing delay. In backtests latency
// is usually zero, but the model lets a run test sensitivity to it.
type LatencyModel struct {
	BaseLatencyNs   int64
	InsertLatencyNs int64
	UpdateLatencyNs int64
	CancelLatencyNs int64
}

func (m LatencyModel) SubmitDelay() int64 { return m.BaseLatencyNs + m.InsertLatencyNs }
func (m LatencyModel) CancelDelay() int64 { return m.BaseLatencyNs + m.CancelLatencyNs }
func (m LatencyModel) UpdateDelay() int64 { return m.BaseLatencyNs + m.UpdateLatencyNs }
