// Package portfolio aggregates the cache's positions and accounts into
// the net-position and PnL queries the risk gate and strategies consult.
package portfolio

import (
	"github.com/shopspring/decimal"

	"github.com/forgequant/backtestcore/core/id"
	"github.com/forgequant/backtestcore/core/money"
	"github.com/forgequant/backtestcore/model/position"
	"github.com/forgequant/backtestcore/state/cache"
)

// Portfolio is a read-side view over the Cache. It owns no state of its
// own beyond the cache reference.
type Portfolio struct {
	cache *cache.Cache
}

// New constructs a Portfolio over c.
func New(c *cache.Cache) *Portfolio {
	return &Portfolio{cache: c}
}

// NetPosition sums signed quantity across every open position for the
// instrument, scoped to strategyID when non-empty. This is the quantity
// the risk gate's reduce-only check consults.
func (p *Portfolio) NetPosition(instrumentID id.InstrumentID, strategyID id.StrategyID) decimal.Decimal {
	var sid *id.StrategyID
	if strategyID != "" {
		sid = &strategyID
	}
	net := decimal.Zero
	for _, pos := range p.cache.PositionsOpen(&instrumentID, sid) {
		net = net.Add(pos.SignedQty())
	}
	return net
}

func (p *Portfolio) IsFlat(instrumentID id.InstrumentID, strategyID id.StrategyID) bool {
	return p.NetPosition(instrumentID, strategyID).IsZero()
}

func (p *Portfolio) IsNetLong(instrumentID id.InstrumentID, strategyID id.StrategyID) bool {
	return p.NetPosition(instrumentID, strategyID).IsPositive()
}

func (p *Portfolio) IsNetShort(instrumentID id.InstrumentID, strategyID id.StrategyID) bool {
	return p.NetPosition(instrumentID, strategyID).IsNegative()
}

// UnrealizedPnl refreshes each open position's mark against the cache's
// last known price, then sums. Positions whose instrument has no mark
// yet keep their previous unrealized value.
func (p *Portfolio) UnrealizedPnl() decimal.Decimal {
	total := decimal.Zero
	for _, pos := range p.cache.PositionsOpen(nil, nil) {
		if mark, ok := p.cache.Price(pos.InstrumentID); ok {
			inst, found := p.cache.Instrument(pos.InstrumentID)
			precision := int32(8)
			if found {
				precision = inst.PricePrecision
			}
			pos.UpdateUnrealizedPnl(money.NewPrice(mark, precision))
		}
		total = total.Add(pos.UnrealizedPnl)
	}
	return total
}

// RealizedPnl sums realized PnL across every position, open or closed.
func (p *Portfolio) RealizedPnl() decimal.Decimal {
	total := decimal.Zero
	for _, pos := range p.cache.Positions(nil, nil) {
		total = total.Add(pos.RealizedPnl)
	}
	return total
}

// TotalPnl is realized plus refreshed unrealized.
func (p *Portfolio) TotalPnl() decimal.Decimal {
	return p.RealizedPnl().Add(p.UnrealizedPnl())
}

// ClosedPositions returns every position whose quantity returned to zero.
func (p *Portfolio) ClosedPositions() []*position.Position {
	return p.cache.PositionsClosed(nil, nil)
}

// Commissions sums commissions paid across every position.
func (p *Portfolio) Commissions() decimal.Decimal {
	total := decimal.Zero
	for _, pos := range p.cache.Positions(nil, nil) {
		total = total.Add(pos.Commissions)
	}
	return total
}

// TotalCash sums the total balance held in each account's base currency.
// A venue filter narrows it to one account.
func (p *Portfolio) TotalCash(venue *id.Venue) decimal.Decimal {
	total := decimal.Zero
	if venue != nil {
		if acct, ok := p.cache.AccountForVenue(*venue); ok {
			if bal, found := acct.BalanceTotal(nil); found {
				total = total.Add(bal.Amount)
			}
		}
		return total
	}
	for _, acct := range p.cache.Accounts() {
		if bal, found := acct.BalanceTotal(nil); found {
			total = total.Add(bal.Amount)
		}
	}
	return total
}

// AccountValue is cash plus unrealized PnL on open positions.
func (p *Portfolio) AccountValue(venue *id.Venue) decimal.Decimal {
	return p.TotalCash(venue).Add(p.UnrealizedPnl())
}
