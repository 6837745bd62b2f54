// Package cache is the authoritative in-memory store for a run:
// instruments, orders, positions, accounts, and the last known market
// data per instrument. Secondary indices by instrument and by strategy
// keep the filtered views O(1) per lookup instead of full scans.
package cache

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/forgequant/backtestcore/core/id"
	"github.com/forgequant/backtestcore/model/data"
	"github.com/forgequant/backtestcore/model/instrument"
	"github.com/forgequant/backtestcore/model/order"
	"github.com/forgequant/backtestcore/model/position"
	"github.com/forgequant/backtestcore/venue/account"
)

// barHistoryCap bounds the rolling per-bar-type history kept for
// strategies asking for recent bars.
const barHistoryCap = 2048

// Cache owns every order/position/account object for the run. It is
// mutated only from the event-loop thread; see the engine's concurrency
// contract.
type Cache struct {
	instruments map[id.InstrumentID]*instrument.Instrument

	orders             map[id.ClientOrderID]*order.Order
	ordersByInstrument map[id.InstrumentID][]id.ClientOrderID
	ordersByStrategy   map[id.StrategyID][]id.ClientOrderID

	positions             map[id.PositionID]*position.Position
	positionsByInstrument map[id.InstrumentID][]id.PositionID
	positionsByStrategy   map[id.StrategyID][]id.PositionID

	accounts       map[id.AccountID]*account.Account
	accountByVenue map[id.Venue]id.AccountID

	quotes map[id.InstrumentID]data.QuoteTick
	trades map[id.InstrumentID]data.TradeTick
	bars   map[data.BarType][]data.Bar
}

// New constructs an empty Cache.
func New() *Cache {
	c := &Cache{}
	c.clear(true)
	return c
}

func (c *Cache) clear(includeInstruments bool) {
	if includeInstruments || c.instruments == nil {
		c.instruments = make(map[id.InstrumentID]*instrument.Instrument)
	}
	c.orders = make(map[id.ClientOrderID]*order.Order)
	c.ordersByInstrument = make(map[id.InstrumentID][]id.ClientOrderID)
	c.ordersByStrategy = make(map[id.StrategyID][]id.ClientOrderID)
	c.positions = make(map[id.PositionID]*position.Position)
	c.positionsByInstrument = make(map[id.InstrumentID][]id.PositionID)
	c.positionsByStrategy = make(map[id.StrategyID][]id.PositionID)
	c.accounts = make(map[id.AccountID]*account.Account)
	c.accountByVenue = make(map[id.Venue]id.AccountID)
	c.quotes = make(map[id.InstrumentID]data.QuoteTick)
	c.trades = make(map[id.InstrumentID]data.TradeTick)
	c.bars = make(map[data.BarType][]data.Bar)
}

// Reset clears all mutable run state. Instruments are venue-fixed and
// survive a reset.
func (c *Cache) Reset() { c.clear(false) }

// ── Instruments ──────────────────────────────────────────────────────────

func (c *Cache) AddInstrument(inst *instrument.Instrument) {
	c.instruments[inst.ID] = inst
}

func (c *Cache) Instrument(instrumentID id.InstrumentID) (*instrument.Instrument, bool) {
	inst, ok := c.instruments[instrumentID]
	return inst, ok
}

// Instruments returns all instruments, optionally filtered by venue,
// sorted by id for deterministic iteration.
func (c *Cache) Instruments(venue *id.Venue) []*instrument.Instrument {
	var out []*instrument.Instrument
	for _, inst := range c.instruments {
		if venue != nil && inst.Venue() != *venue {
			continue
		}
		out = append(out, inst)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out
}

// ── Orders ───────────────────────────────────────────────────────────────

func (c *Cache) AddOrder(o *order.Order) {
	if _, exists := c.orders[o.ClientOrderID]; exists {
		return
	}
	c.orders[o.ClientOrderID] = o
	c.ordersByInstrument[o.InstrumentID] = append(c.ordersByInstrument[o.InstrumentID], o.ClientOrderID)
	c.ordersByStrategy[o.StrategyID] = append(c.ordersByStrategy[o.StrategyID], o.ClientOrderID)
}

func (c *Cache) Order(clientOrderID id.ClientOrderID) (*order.Order, bool) {
	o, ok := c.orders[clientOrderID]
	return o, ok
}

// orderIDsFor resolves the index set matching the optional filters. With
// neither filter it returns every known id.
func (c *Cache) orderIDsFor(instrumentID *id.InstrumentID, strategyID *id.StrategyID) []id.ClientOrderID {
	switch {
	case instrumentID != nil:
		return c.ordersByInstrument[*instrumentID]
	case strategyID != nil:
		return c.ordersByStrategy[*strategyID]
	default:
		out := make([]id.ClientOrderID, 0, len(c.orders))
		for oid := range c.orders {
			out = append(out, oid)
		}
		sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
		return out
	}
}

func (c *Cache) selectOrders(instrumentID *id.InstrumentID, strategyID *id.StrategyID, keep func(*order.Order) bool) []*order.Order {
	var out []*order.Order
	for _, oid := range c.orderIDsFor(instrumentID, strategyID) {
		o := c.orders[oid]
		if o == nil {
			continue
		}
		if instrumentID != nil && o.InstrumentID != *instrumentID {
			continue
		}
		if strategyID != nil && o.StrategyID != *strategyID {
			continue
		}
		if keep != nil && !keep(o) {
			continue
		}
		out = append(out, o)
	}
	return out
}

// Orders returns every order matching the optional instrument/strategy filters.
func (c *Cache) Orders(instrumentID *id.InstrumentID, strategyID *id.StrategyID) []*order.Order {
	return c.selectOrders(instrumentID, strategyID, nil)
}

// OrdersOpen returns matching orders in a non-terminal working status.
func (c *Cache) OrdersOpen(instrumentID *id.InstrumentID, strategyID *id.StrategyID) []*order.Order {
	return c.selectOrders(instrumentID, strategyID, func(o *order.Order) bool { return o.IsOpen() })
}

// OrdersClosed returns matching orders in a terminal status.
func (c *Cache) OrdersClosed(instrumentID *id.InstrumentID, strategyID *id.StrategyID) []*order.Order {
	return c.selectOrders(instrumentID, strategyID, func(o *order.Order) bool { return o.IsClosed() })
}

// OrdersFilled returns matching orders that fully filled.
func (c *Cache) OrdersFilled(instrumentID *id.InstrumentID, strategyID *id.StrategyID) []*order.Order {
	return c.selectOrders(instrumentID, strategyID, func(o *order.Order) bool { return o.IsFilled() })
}

func (c *Cache) OrderCount() int { return len(c.orders) }

// ── Positions ────────────────────────────────────────────────────────────

func (c *Cache) AddPosition(p *position.Position) {
	if _, exists := c.positions[p.ID]; exists {
		return
	}
	c.positions[p.ID] = p
	c.positionsByInstrument[p.InstrumentID] = append(c.positionsByInstrument[p.InstrumentID], p.ID)
	c.positionsByStrategy[p.StrategyID] = append(c.positionsByStrategy[p.StrategyID], p.ID)
}

func (c *Cache) Position(positionID id.PositionID) (*position.Position, bool) {
	p, ok := c.positions[positionID]
	return p, ok
}

func (c *Cache) positionIDsFor(instrumentID *id.InstrumentID, strategyID *id.StrategyID) []id.PositionID {
	switch {
	case instrumentID != nil:
		return c.positionsByInstrument[*instrumentID]
	case strategyID != nil:
		return c.positionsByStrategy[*strategyID]
	default:
		out := make([]id.PositionID, 0, len(c.positions))
		for pid := range c.positions {
			out = append(out, pid)
		}
		sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
		return out
	}
}

func (c *Cache) selectPositions(instrumentID *id.InstrumentID, strategyID *id.StrategyID, keep func(*position.Position) bool) []*position.Position {
	var out []*position.Position
	for _, pid := range c.positionIDsFor(instrumentID, strategyID) {
		p := c.positions[pid]
		if p == nil {
			continue
		}
		if instrumentID != nil && p.InstrumentID != *instrumentID {
			continue
		}
		if strategyID != nil && p.StrategyID != *strategyID {
			continue
		}
		if keep != nil && !keep(p) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Positions returns every position matching the optional filters.
func (c *Cache) Positions(instrumentID *id.InstrumentID, strategyID *id.StrategyID) []*position.Position {
	return c.selectPositions(instrumentID, strategyID, nil)
}

// PositionsOpen returns matching positions with non-zero signed quantity.
func (c *Cache) PositionsOpen(instrumentID *id.InstrumentID, strategyID *id.StrategyID) []*position.Position {
	return c.selectPositions(instrumentID, strategyID, func(p *position.Position) bool { return p.IsOpen() })
}

// PositionsClosed returns matching positions whose quantity returned to zero.
func (c *Cache) PositionsClosed(instrumentID *id.InstrumentID, strategyID *id.StrategyID) []*position.Position {
	return c.selectPositions(instrumentID, strategyID, func(p *position.Position) bool { return p.IsClosed() })
}

func (c *Cache) PositionCount() int { return len(c.positions) }

// ── Accounts ─────────────────────────────────────────────────────────────

func (c *Cache) AddAccount(venue id.Venue, acct *account.Account) {
	c.accounts[acct.ID] = acct
	c.accountByVenue[venue] = acct.ID
}

func (c *Cache) Account(accountID id.AccountID) (*account.Account, bool) {
	a, ok := c.accounts[accountID]
	return a, ok
}

func (c *Cache) AccountForVenue(venue id.Venue) (*account.Account, bool) {
	aid, ok := c.accountByVenue[venue]
	if !ok {
		return nil, false
	}
	return c.accounts[aid], true
}

// Accounts returns every tracked account, sorted by id for deterministic
// iteration.
func (c *Cache) Accounts() []*account.Account {
	out := make([]*account.Account, 0, len(c.accounts))
	for _, a := range c.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ── Market data ──────────────────────────────────────────────────────────

func (c *Cache) UpdateQuoteTick(q data.QuoteTick) { c.quotes[q.InstrumentID] = q }
func (c *Cache) UpdateTradeTick(t data.TradeTick) { c.trades[t.InstrumentID] = t }

func (c *Cache) UpdateBar(bar data.Bar) {
	hist := append(c.bars[bar.BarType], bar)
	if len(hist) > barHistoryCap {
		hist = hist[len(hist)-barHistoryCap:]
	}
	c.bars[bar.BarType] = hist
}

func (c *Cache) QuoteTick(instrumentID id.InstrumentID) (data.QuoteTick, bool) {
	q, ok := c.quotes[instrumentID]
	return q, ok
}

func (c *Cache) TradeTick(instrumentID id.InstrumentID) (data.TradeTick, bool) {
	t, ok := c.trades[instrumentID]
	return t, ok
}

// Bar returns the most recent bar of barType.
func (c *Cache) Bar(barType data.BarType) (data.Bar, bool) {
	hist := c.bars[barType]
	if len(hist) == 0 {
		return data.Bar{}, false
	}
	return hist[len(hist)-1], true
}

// Bars returns up to count most recent bars of barType, oldest first.
// count <= 0 returns the full retained history.
func (c *Cache) Bars(barType data.BarType, count int) []data.Bar {
	hist := c.bars[barType]
	if count <= 0 || count > len(hist) {
		count = len(hist)
	}
	out := make([]data.Bar, count)
	copy(out, hist[len(hist)-count:])
	return out
}

// Price returns the best available mark price for an instrument: the mid
// of the last quote, falling back to the last trade, falling back to the
// last bar close of any bar type for the instrument.
func (c *Cache) Price(instrumentID id.InstrumentID) (decimal.Decimal, bool) {
	if q, ok := c.quotes[instrumentID]; ok {
		return q.MidPrice(), true
	}
	if t, ok := c.trades[instrumentID]; ok {
		return t.Price.Value, true
	}
	// Last bar close, picking the most recent across bar types. Bar
	// types are visited in sorted order so ties resolve deterministically.
	types := make([]data.BarType, 0, len(c.bars))
	for bt := range c.bars {
		if bt.InstrumentID == instrumentID && len(c.bars[bt]) > 0 {
			types = append(types, bt)
		}
	}
	sort.Slice(types, func(i, j int) bool { return types[i].String() < types[j].String() })
	var (
		found  bool
		bestTs int64
		px     decimal.Decimal
	)
	for _, bt := range types {
		hist := c.bars[bt]
		last := hist[len(hist)-1]
		if !found || last.TsEvent > bestTs {
			found = true
			bestTs = last.TsEvent
			px = last.Close.Value
		}
	}
	return px, found
}
