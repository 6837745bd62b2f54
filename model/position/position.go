// Package position tracks a single instrument's signed net exposure
// built up from OrderFilled events: running buy/sell quantity and cost
// for VWAP open-price computation, realized PnL on closes, and
// on-demand unrealized PnL against the latest mark price.
package position

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/forgequant/backtestcore/core/enums"
	"github.com/forgequant/backtestcore/core/event"
	"github.com/forgequant/backtestcore/core/id"
	"github.com/forgequant/backtestcore/core/money"
)

// Side classifies a position's current direction.
type Side uint8

const (
	Flat Side = iota
	Long
	Short
)

// Position aggregates fills for one instrument and one strategy: the
// single open position per (instrument, strategy) under NETTING, or one
// of possibly several under HEDGING.
type Position struct {
	InstrumentID id.InstrumentID
	ID           id.PositionID
	AccountID    id.AccountID
	TraderID     id.TraderID
	StrategyID   id.StrategyID
	Currency     money.Currency
	Multiplier   decimal.Decimal

	signedQty decimal.Decimal
	buyQty    decimal.Decimal
	sellQty   decimal.Decimal
	buyCost   decimal.Decimal
	sellCost  decimal.Decimal

	RealizedPnl   decimal.Decimal
	UnrealizedPnl decimal.Decimal
	Commissions   decimal.Decimal

	Events         []event.OrderFilled
	TradeIDs       []id.TradeID
	OpeningOrderID id.ClientOrderID
	ClosingOrderID *id.ClientOrderID
	TsOpened       int64
	TsClosed       *int64
	TsLast         int64

	qtyPrecision int32
}

// NewFromFill opens a new Position from its first fill.
func NewFromFill(instrumentID id.InstrumentID, positionID id.PositionID, accountID id.AccountID, traderID id.TraderID, strategyID id.StrategyID, opening event.OrderFilled, currency money.Currency, multiplier decimal.Decimal) *Position {
	p := &Position{
		InstrumentID:   instrumentID,
		ID:             positionID,
		AccountID:      accountID,
		TraderID:       traderID,
		StrategyID:     strategyID,
		Currency:       currency,
		Multiplier:     multiplier,
		signedQty:      decimal.Zero,
		buyQty:         decimal.Zero,
		sellQty:        decimal.Zero,
		buyCost:        decimal.Zero,
		sellCost:       decimal.Zero,
		RealizedPnl:    decimal.Zero,
		UnrealizedPnl:  decimal.Zero,
		Commissions:    decimal.Zero,
		OpeningOrderID: opening.ClientOrderID,
		TsOpened:       opening.TsEvent,
		TsLast:         opening.TsEvent,
		qtyPrecision:   opening.LastQty.Precision,
	}
	p.applyFill(opening)
	p.Events = append(p.Events, opening)
	return p
}

func (p *Position) SideOf() Side {
	switch {
	case p.signedQty.IsPositive():
		return Long
	case p.signedQty.IsNegative():
		return Short
	default:
		return Flat
	}
}

// Quantity returns the absolute net quantity currently held.
func (p *Position) Quantity() money.Quantity {
	return money.NewQuantity(p.signedQty.Abs(), p.qtyPrecision)
}

func (p *Position) SignedQty() decimal.Decimal { return p.signedQty }
func (p *Position) IsOpen() bool               { return !p.signedQty.IsZero() }
func (p *Position) IsClosed() bool             { return p.signedQty.IsZero() && len(p.Events) > 0 }
func (p *Position) IsLong() bool               { return p.signedQty.IsPositive() }
func (p *Position) IsShort() bool              { return p.signedQty.IsNegative() }
func (p *Position) NetQty() decimal.Decimal    { return p.signedQty.Abs() }

// AvgPxOpen is the volume-weighted average price of the fills that built
// the currently open leg.
func (p *Position) AvgPxOpen() decimal.Decimal {
	switch {
	case p.signedQty.IsPositive():
		if p.buyQty.IsZero() {
			return decimal.Zero
		}
		return p.buyCost.Div(p.buyQty)
	case p.signedQty.IsNegative():
		if p.sellQty.IsZero() {
			return decimal.Zero
		}
		return p.sellCost.Div(p.sellQty)
	default:
		return decimal.Zero
	}
}

// Apply records a new fill against this position.
func (p *Position) Apply(ev event.OrderFilled) {
	p.applyFill(ev)
	p.Events = append(p.Events, ev)
	p.TsLast = ev.TsEvent
}

func (p *Position) applyFill(ev event.OrderFilled) {
	qty := ev.LastQty.Value
	px := ev.LastPx.Value
	commission := ev.Commission.Amount

	p.Commissions = p.Commissions.Add(commission)
	p.TradeIDs = append(p.TradeIDs, ev.TradeID)

	wasClosed := p.IsClosed()

	if ev.Side == enums.Buy {
		if p.signedQty.IsNegative() {
			closeQty := qty
			absShort := p.signedQty.Abs()
			if absShort.LessThan(closeQty) {
				closeQty = absShort
			}
			avgOpen := p.AvgPxOpen()
			realized := closeQty.Mul(avgOpen.Sub(px)).Mul(p.Multiplier)
			p.RealizedPnl = p.RealizedPnl.Add(realized).Sub(commission)

			overflow := qty.Sub(closeQty)
			p.signedQty = p.signedQty.Add(qty)
			if overflow.IsPositive() && p.signedQty.IsPositive() {
				// Flipped through flat: reseed the VWAP from only the
				// overflow quantity that opened the new long leg.
				p.buyQty = overflow
				p.buyCost = overflow.Mul(px)
				p.sellQty = decimal.Zero
				p.sellCost = decimal.Zero
			} else {
				p.sellQty = p.sellQty.Sub(closeQty)
				p.sellCost = p.sellCost.Sub(closeQty.Mul(avgOpen))
			}
		} else {
			p.signedQty = p.signedQty.Add(qty)
			p.buyQty = p.buyQty.Add(qty)
			p.buyCost = p.buyCost.Add(qty.Mul(px))
		}
	} else {
		if p.signedQty.IsPositive() {
			closeQty := qty
			if p.signedQty.LessThan(closeQty) {
				closeQty = p.signedQty
			}
			avgOpen := p.AvgPxOpen()
			realized := closeQty.Mul(px.Sub(avgOpen)).Mul(p.Multiplier)
			p.RealizedPnl = p.RealizedPnl.Add(realized).Sub(commission)

			overflow := qty.Sub(closeQty)
			p.signedQty = p.signedQty.Sub(qty)
			if overflow.IsPositive() && p.signedQty.IsNegative() {
				// Flipped through flat: reseed the VWAP from only the
				// overflow quantity that opened the new short leg.
				p.sellQty = overflow
				p.sellCost = overflow.Mul(px)
				p.buyQty = decimal.Zero
				p.buyCost = decimal.Zero
			} else {
				p.buyQty = p.buyQty.Sub(closeQty)
				p.buyCost = p.buyCost.Sub(closeQty.Mul(avgOpen))
			}
		} else {
			p.signedQty = p.signedQty.Sub(qty)
			p.sellQty = p.sellQty.Add(qty)
			p.sellCost = p.sellCost.Add(qty.Mul(px))
		}
	}

	if p.signedQty.IsZero() && !wasClosed {
		ts := ev.TsEvent
		p.TsClosed = &ts
		cid := ev.ClientOrderID
		p.ClosingOrderID = &cid
	}
}

// UpdateUnrealizedPnl recomputes unrealized PnL against a new mark price.
func (p *Position) UpdateUnrealizedPnl(markPrice money.Price) {
	mp := markPrice.Value
	openQty := p.signedQty.Abs()
	if openQty.IsZero() {
		p.UnrealizedPnl = decimal.Zero
		return
	}
	if p.signedQty.IsPositive() {
		p.UnrealizedPnl = openQty.Mul(mp.Sub(p.AvgPxOpen())).Mul(p.Multiplier)
	} else {
		p.UnrealizedPnl = openQty.Mul(p.AvgPxOpen().Sub(mp)).Mul(p.Multiplier)
	}
}

// TotalPnl is realized plus unrealized.
func (p *Position) TotalPnl() decimal.Decimal {
	return p.RealizedPnl.Add(p.UnrealizedPnl)
}

func (p *Position) String() string {
	return fmt.Sprintf("Position(%s %s qty=%s avg_px=%s rpnl=%s)",
		p.ID, p.InstrumentID, p.signedQty.StringFixed(4), p.AvgPxOpen().StringFixed(4), p.RealizedPnl.StringFixed(2))
}
