// Package risk implements the pre-trade gate every order passes through
// before reaching a venue: trading-state enforcement, reduce-only
// validation against the portfolio's net position, and notional caps.
package risk

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/forgequant/backtestcore/core/enums"
	"github.com/forgequant/backtestcore/core/id"
	"github.com/forgequant/backtestcore/model/instrument"
	"github.com/forgequant/backtestcore/model/order"
)

// NetPositionProvider is the portfolio-side query the gate needs to
// validate reduce-only orders, kept as a narrow interface so this
// package never imports the state layer.
type NetPositionProvider interface {
	NetPosition(instrumentID id.InstrumentID, strategyID id.StrategyID) decimal.Decimal
}

// Gate is the centralized pre-trade risk approval system. Every order
// submission is checked here before it is handed to a venue.
type Gate struct {
	mu sync.RWMutex

	tradingState enums.TradingState

	maxNotionalPerOrder *decimal.Decimal
	maxPositionNotional *decimal.Decimal

	portfolio NetPositionProvider
}

// NewGate constructs a Gate in the Active trading state, wired to a
// portfolio for reduce-only net-position checks.
func NewGate(portfolio NetPositionProvider) *Gate {
	return &Gate{
		tradingState: enums.Active,
		portfolio:    portfolio,
	}
}

// SetMaxNotionalPerOrder caps the quote-currency notional of any single
// order. Pass nil to lift the cap.
func (g *Gate) SetMaxNotionalPerOrder(max *decimal.Decimal) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.maxNotionalPerOrder = max
}

// SetMaxPositionNotional caps the quote-currency notional an instrument's
// net position may reach after the order fills. Pass nil to lift the cap.
func (g *Gate) SetMaxPositionNotional(max *decimal.Decimal) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.maxPositionNotional = max
}

// SetTradingState switches the gate between Active, Halted and Reducing.
func (g *Gate) SetTradingState(state enums.TradingState) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.tradingState = state
	log.Info().Str("state", tradingStateName(state)).Msg("risk: trading state changed")
}

func (g *Gate) TradingState() enums.TradingState {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.tradingState
}

// CheckOrder runs every pre-trade check against o, returning (true, "")
// if it may proceed to the venue or (false, reason) if it must be
// denied. inst supplies the notional-value formula for the check.
func (g *Gate) CheckOrder(o *order.Order, inst *instrument.Instrument) (bool, string) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	reject := func(reason string) (bool, string) {
		log.Debug().
			Str("client_order_id", string(o.ClientOrderID)).
			Str("reason", reason).
			Msg("risk: order denied")
		return false, reason
	}

	if g.tradingState == enums.Halted {
		return reject("trading is halted")
	}
	if g.tradingState == enums.Reducing && !o.ReduceOnly {
		return reject("trading state is REDUCING — only reduce-only orders allowed")
	}

	if o.ReduceOnly {
		netQty := decimal.Zero
		if g.portfolio != nil {
			netQty = g.portfolio.NetPosition(o.InstrumentID, o.StrategyID)
		}
		if netQty.IsZero() {
			return reject("reduce-only order rejected: no open position to reduce")
		}
		if o.IsBuy() && netQty.Sign() >= 0 {
			return reject("reduce-only BUY rejected: position is not short")
		}
		if o.IsSell() && netQty.Sign() <= 0 {
			return reject("reduce-only SELL rejected: position is not long")
		}
	}

	if g.maxNotionalPerOrder != nil && o.Price != nil && inst != nil {
		notional := inst.NotionalValue(o.Quantity, *o.Price)
		if notional.GreaterThan(*g.maxNotionalPerOrder) {
			return reject(fmt.Sprintf("order notional %s exceeds max %s", notional.StringFixed(2), g.maxNotionalPerOrder.StringFixed(2)))
		}
	}

	if g.maxPositionNotional != nil && o.Price != nil && inst != nil && g.portfolio != nil {
		netQty := g.portfolio.NetPosition(o.InstrumentID, o.StrategyID)
		signedDelta := o.Quantity.Value
		if o.IsSell() {
			signedDelta = signedDelta.Neg()
		}
		projected := netQty.Add(signedDelta).Abs()
		projectedNotional := projected.Mul(o.Price.Value).Mul(inst.Multiplier.Value)
		if projectedNotional.GreaterThan(*g.maxPositionNotional) {
			return reject(fmt.Sprintf("resulting position notional %s exceeds max %s", projectedNotional.StringFixed(2), g.maxPositionNotional.StringFixed(2)))
		}
	}

	return true, ""
}

func tradingStateName(s enums.TradingState) string {
	switch s {
	case enums.Active:
		return "ACTIVE"
	case enums.Halted:
		return "HALTED"
	case enums.Reducing:
		return "REDUCING"
	default:
		return "UNKNOWN"
	}
}
