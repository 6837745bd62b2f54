package sim

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/forgequant/backtestcore/core/enums"
	"github.com/forgequant/backtestcore/core/event"
	"github.com/forgequant/backtestcore/core/id"
	"github.com/forgequant/backtestcore/core/money"
	"github.com/forgequant/backtestcore/model/data"
	"github.com/forgequant/backtestcore/model/instrument"
	"github.com/forgequant/backtestcore/model/order"
)

// Callbacks groups the venue's outbound event hooks. Every callback
// must be non-nil; pass a no-op func for any event the caller doesn't
// care about. OnAccept and OnReject are fired by the Exchange's
// admission path rather than the matching engine itself.
type Callbacks struct {
	OnAccept  func(event.OrderAccepted)
	OnReject  func(event.OrderRejected)
	OnFill    func(event.OrderFilled)
	OnCancel  func(event.OrderCanceled)
	OnExpire  func(event.OrderExpired)
	OnTrigger func(event.OrderTriggered)
}

// MatchingEngine is the per-instrument L2 matching core: it owns the
// book, resting/stop/trailing order queues, and every trigger/fill rule
// in the bar-traversal and tick-processing paths. Queues preserve
// insertion order, which is the tie-break contract for same-price
// processing.
type MatchingEngine struct {
	Instrument *instrument.Instrument
	FillModel  *FillModel
	FeeModel   FeeModel
	AccountID  id.AccountID
	callbacks  Callbacks

	bookSpreadPct decimal.Decimal
	book          *data.OrderBook

	resting       *orderQueue
	stops         *orderQueue
	trailingStops *orderQueue

	tradeCount      int64
	venueOrderCount int64

	lastPrice *money.Price

	contingencyGroups map[string][]id.ClientOrderID
}

// New constructs a MatchingEngine for inst, wired to callbacks.
func New(inst *instrument.Instrument, fillModel *FillModel, feeModel FeeModel, accountID id.AccountID, callbacks Callbacks) *MatchingEngine {
	return &MatchingEngine{
		Instrument:        inst,
		FillModel:         fillModel,
		FeeModel:          feeModel,
		AccountID:         accountID,
		callbacks:         callbacks,
		bookSpreadPct:     decimal.New(1, -4),
		book:              data.NewOrderBook(inst.ID, data.BookL2MBP),
		resting:           newOrderQueue(),
		stops:             newOrderQueue(),
		trailingStops:     newOrderQueue(),
		contingencyGroups: make(map[string][]id.ClientOrderID),
	}
}

// Book exposes the engine's current order book for read-only inspection.
func (m *MatchingEngine) Book() *data.OrderBook { return m.book }

// SetBookSpreadPct configures the synthetic spread used when the book is
// rebuilt from a bar's close.
func (m *MatchingEngine) SetBookSpreadPct(spreadPct decimal.Decimal) {
	m.bookSpreadPct = spreadPct
	m.book.BarSpreadPct = spreadPct
}

// OpenOrderCount is the number of orders currently resting, parked as
// stops, or tracked as trailing.
func (m *MatchingEngine) OpenOrderCount() int {
	return m.resting.len() + m.stops.len() + m.trailingStops.len()
}

// ── Book updates ─────────────────────────────────────────────────────────

func (m *MatchingEngine) ProcessBookDelta(d data.OrderBookDelta) {
	m.book.ApplyDelta(d)
	m.checkRestingOrders(d.TsEvent)
}

func (m *MatchingEngine) ProcessBookDeltas(ds data.OrderBookDeltas) {
	m.book.ApplyDeltas(ds)
	m.checkRestingOrders(ds.TsEvent)
}

func (m *MatchingEngine) ProcessQuoteTick(q data.QuoteTick) {
	mid := money.NewPrice(q.BidPrice.Value.Add(q.AskPrice.Value).Div(decimal.NewFromInt(2)), q.BidPrice.Precision)
	m.lastPrice = &mid
	m.book.UpdateFromQuote(q)
	m.updateTrailingStops(mid, q.TsEvent)
	m.checkRestingOrders(q.TsEvent)
}

func (m *MatchingEngine) ProcessTradeTick(t data.TradeTick) {
	m.lastPrice = &t.Price
	m.updateTrailingStops(t.Price, t.TsEvent)
	m.checkRestingOrders(t.TsEvent)
}

// ProcessBar drives the engine through a bar's 4 fixed price-visit
// steps (open, high, low, close), synthesizing the book at the close
// and visiting the four prices in that fixed order regardless of the
// tape's actual high/low sequence.
func (m *MatchingEngine) ProcessBar(bar data.Bar) {
	ts := bar.TsEvent
	m.book.UpdateFromBar(bar)

	m.processAtPrice(bar.Open, ts, stepOpen)
	m.processAtPrice(bar.High, ts, stepHigh)
	m.processAtPrice(bar.Low, ts, stepLow)

	m.lastPrice = &bar.Close
	m.updateTrailingStops(bar.Close, ts)
	m.expireDayOrders(ts)
}

// ── Order lifecycle ──────────────────────────────────────────────────────

// ProcessOrder routes an order into the matching/resting state
// appropriate to its type. The caller (the exchange) must have already
// transitioned o to Accepted — fireFill refuses to touch an order that
// isn't open.
func (m *MatchingEngine) ProcessOrder(o *order.Order, ts int64) {
	m.registerContingency(o)

	switch o.Type {
	case enums.Market:
		m.matchMarket(o, ts)
	case enums.Limit:
		m.matchLimitOrRest(o, ts)
	case enums.StopMarket:
		if m.isStopTriggered(o, m.lastPrice) {
			m.matchMarket(o, ts)
		} else {
			m.stops.add(o)
		}
	case enums.StopLimit:
		if m.isStopTriggered(o, m.lastPrice) {
			m.convertStopLimit(o, ts)
		} else {
			m.stops.add(o)
		}
	case enums.TrailingStopMarket, enums.TrailingStopLimit:
		m.trailingStops.add(o)
	case enums.MarketIfTouched:
		if m.isMitTriggered(o, m.lastPrice) {
			m.matchMarket(o, ts)
		} else {
			m.stops.add(o)
		}
	case enums.LimitIfTouched:
		if m.isMitTriggered(o, m.lastPrice) {
			m.convertStopLimit(o, ts)
		} else {
			m.stops.add(o)
		}
	}
}

// CancelOrder removes an order from every queue and fires its
// OrderCanceled event.
func (m *MatchingEngine) CancelOrder(o *order.Order, ts int64) {
	m.resting.remove(o.ClientOrderID)
	m.stops.remove(o.ClientOrderID)
	m.trailingStops.remove(o.ClientOrderID)
	m.fireCancel(o, ts)
}

// ModifyOrder applies an OrderUpdated to o (via the PendingUpdate
// bridge state, which the FSM requires), re-checking for an immediate
// fill if the order is currently resting.
func (m *MatchingEngine) ModifyOrder(o *order.Order, quantity *money.Quantity, price, triggerPrice *money.Price, ts int64) {
	o.Apply(event.OrderPendingUpdate{
		Base:          event.Base{TsEvent: ts, TsInit: ts},
		TraderID:      o.TraderID,
		StrategyID:    o.StrategyID,
		InstrumentID:  o.InstrumentID,
		ClientOrderID: o.ClientOrderID,
		VenueOrderID:  o.VenueOrderID,
		AccountID:     m.AccountID,
	})
	upd := event.OrderUpdated{
		Base:          event.Base{TsEvent: ts, TsInit: ts},
		TraderID:      o.TraderID,
		StrategyID:    o.StrategyID,
		InstrumentID:  o.InstrumentID,
		ClientOrderID: o.ClientOrderID,
		VenueOrderID:  o.VenueOrderID,
		AccountID:     m.AccountID,
		Quantity:      quantity,
		Price:         price,
		TriggerPrice:  triggerPrice,
	}
	o.Apply(upd)
	if m.resting.contains(o.ClientOrderID) {
		m.checkSingleOrder(o, ts)
	}
}

// ── Internal matching logic ──────────────────────────────────────────────

func (m *MatchingEngine) matchMarket(o *order.Order, ts int64) {
	fills := m.book.SimulateMarketFill(o.Side, o.LeavesQty.Value)

	if o.TimeInForce == enums.FOK {
		total := decimal.Zero
		for _, f := range fills {
			total = total.Add(f.Qty)
		}
		if total.LessThan(o.LeavesQty.Value) {
			m.fireCancel(o, ts)
			return
		}
	}

	for _, f := range fills {
		if o.LeavesQty.IsZero() {
			break
		}
		fillQty := f.Qty
		if o.LeavesQty.Value.LessThan(fillQty) {
			fillQty = o.LeavesQty.Value
		}
		px := money.NewPrice(f.Price, m.Instrument.PricePrecision)
		px = m.FillModel.ApplySlippage(px, o.Side, m.Instrument)
		m.fireFill(o, px, fillQty, enums.Taker, ts)
	}

	if o.LeavesQty.IsZero() || o.IsClosed() {
		return
	}
	switch o.TimeInForce {
	case enums.IOC, enums.FOK:
		m.fireCancel(o, ts)
	default:
		// No liquidity left to sweep: hold the remainder and fill it at
		// the next bar's open visit.
		m.resting.add(o)
	}
}

func (m *MatchingEngine) matchLimitOrRest(o *order.Order, ts int64) {
	if o.PostOnly && m.wouldFillImmediately(o) {
		m.fireCancel(o, ts)
		return
	}

	m.fillLimit(o, ts, enums.Taker)

	if !o.LeavesQty.IsZero() && !o.IsClosed() {
		switch o.TimeInForce {
		case enums.IOC, enums.FOK:
			m.fireCancel(o, ts)
		default:
			m.resting.add(o)
		}
	}
}

// fillLimit sweeps the book against a resting/incoming limit order.
// The trader never fills worse than the limit: buys take
// min(level, limit), sells take max(level, limit). Returns true if any
// fill occurred.
func (m *MatchingEngine) fillLimit(o *order.Order, ts int64, liquiditySide enums.LiquiditySide) bool {
	if o.Price == nil {
		return false
	}

	anyFill := false
	if o.IsBuy() {
		for _, lv := range m.book.Asks(0) {
			if lv.Price.GreaterThan(o.Price.Value) {
				break
			}
			if o.LeavesQty.IsZero() {
				break
			}
			if !m.FillModel.IsLimitFilled(lv.Price.Equal(o.Price.Value)) {
				break
			}
			fillQty := lv.Size
			if o.LeavesQty.Value.LessThan(fillQty) {
				fillQty = o.LeavesQty.Value
			}
			fillPx := decimal.Min(lv.Price, o.Price.Value)
			m.fireFill(o, money.NewPrice(fillPx, m.Instrument.PricePrecision), fillQty, liquiditySide, ts)
			anyFill = true
		}
	} else {
		for _, lv := range m.book.Bids(0) {
			if lv.Price.LessThan(o.Price.Value) {
				break
			}
			if o.LeavesQty.IsZero() {
				break
			}
			if !m.FillModel.IsLimitFilled(lv.Price.Equal(o.Price.Value)) {
				break
			}
			fillQty := lv.Size
			if o.LeavesQty.Value.LessThan(fillQty) {
				fillQty = o.LeavesQty.Value
			}
			fillPx := decimal.Max(lv.Price, o.Price.Value)
			m.fireFill(o, money.NewPrice(fillPx, m.Instrument.PricePrecision), fillQty, liquiditySide, ts)
			anyFill = true
		}
	}
	return anyFill
}

// convertStopLimit handles a triggered stop-limit/LIT: emit Triggered,
// then rest it as a limit at its price.
func (m *MatchingEngine) convertStopLimit(o *order.Order, ts int64) {
	o.IsTriggered = true
	m.fireTriggered(o, ts)
	m.resting.add(o)
}

func (m *MatchingEngine) checkRestingOrders(ts int64) {
	if m.resting.len() == 0 {
		return
	}
	for _, o := range m.resting.snapshot() {
		if o == nil || !o.IsOpen() {
			m.resting.remove(o.ClientOrderID)
			continue
		}
		m.checkSingleOrder(o, ts)
	}
}

func (m *MatchingEngine) checkSingleOrder(o *order.Order, ts int64) {
	if o.Price == nil {
		return
	}
	if o.LeavesQty.IsZero() || o.IsClosed() {
		m.resting.remove(o.ClientOrderID)
		return
	}
	m.fillLimit(o, ts, enums.Maker)
	if o.IsFilled() || o.IsClosed() {
		m.resting.remove(o.ClientOrderID)
	}
}

// barStep tags which of a bar's four price visits is being processed.
type barStep uint8

const (
	stepOpen barStep = iota
	stepHigh
	stepLow
)

// processAtPrice applies the rules for a single bar price-visit step:
// fill queued market orders at the open, fire stop/MIT triggers whose
// level the visited price reaches, and fill resting limits whose side
// matches the step's extreme.
func (m *MatchingEngine) processAtPrice(price money.Price, ts int64, step barStep) {
	m.lastPrice = &price

	if step == stepOpen {
		for _, o := range m.resting.snapshot() {
			if o.Type == enums.Market && o.IsOpen() {
				m.fireFill(o, price, o.LeavesQty.Value, enums.Taker, ts)
				m.resting.remove(o.ClientOrderID)
			}
		}
	}

	var triggered []*order.Order
	for _, o := range m.stops.snapshot() {
		if !o.IsOpen() {
			m.stops.remove(o.ClientOrderID)
			continue
		}
		var hit bool
		switch o.Type {
		case enums.StopMarket, enums.StopLimit:
			hit = m.isStopTriggered(o, &price)
		case enums.MarketIfTouched, enums.LimitIfTouched:
			hit = m.isMitTriggered(o, &price)
		}
		if hit {
			triggered = append(triggered, o)
			m.stops.remove(o.ClientOrderID)
		}
	}

	for _, o := range triggered {
		switch o.Type {
		case enums.StopMarket, enums.MarketIfTouched:
			m.fireTriggered(o, ts)
			// Conservative fill price: the worse of trigger level and
			// visited price, so a gap through the level never fills
			// favourably.
			var fillPxVal decimal.Decimal
			if o.IsBuy() {
				fillPxVal = decimal.Max(o.TriggerPrice.Value, price.Value)
			} else {
				fillPxVal = decimal.Min(o.TriggerPrice.Value, price.Value)
			}
			fillPx := money.NewPrice(fillPxVal, m.Instrument.PricePrecision)
			m.fireFill(o, fillPx, o.LeavesQty.Value, enums.Taker, ts)
		case enums.StopLimit, enums.LimitIfTouched:
			m.convertStopLimit(o, ts)
		}
	}

	for _, o := range m.resting.snapshot() {
		if o == nil || !o.IsOpen() {
			m.resting.remove(o.ClientOrderID)
			continue
		}
		if o.Price == nil {
			continue
		}
		shouldFill := (step == stepHigh && o.IsSell() && price.Value.GreaterThanOrEqual(o.Price.Value)) ||
			(step == stepLow && o.IsBuy() && price.Value.LessThanOrEqual(o.Price.Value)) ||
			(step == stepOpen && ((o.IsBuy() && price.Value.LessThanOrEqual(o.Price.Value)) ||
				(o.IsSell() && price.Value.GreaterThanOrEqual(o.Price.Value))))
		if !shouldFill {
			continue
		}
		if !m.FillModel.IsLimitFilled(price.Value.Equal(o.Price.Value)) {
			continue
		}
		var fillPxVal decimal.Decimal
		if step == stepOpen {
			// The open is a real traded price; the order executes there
			// when it is better than the limit.
			if o.IsBuy() {
				fillPxVal = decimal.Min(o.Price.Value, price.Value)
			} else {
				fillPxVal = decimal.Max(o.Price.Value, price.Value)
			}
		} else {
			// A high/low visit means the tape traded through the
			// order's level; it executes at its own price.
			fillPxVal = o.Price.Value
		}
		fillPx := money.NewPrice(fillPxVal, m.Instrument.PricePrecision)
		m.fireFill(o, fillPx, o.LeavesQty.Value, enums.Maker, ts)
		if o.IsFilled() || o.IsClosed() {
			m.resting.remove(o.ClientOrderID)
		}
	}
}

func (m *MatchingEngine) updateTrailingStops(marketPrice money.Price, ts int64) {
	for _, o := range m.trailingStops.snapshot() {
		if o == nil || !o.IsOpen() {
			m.trailingStops.remove(o.ClientOrderID)
			continue
		}
		triggered := o.UpdateTrailingTrigger(marketPrice.Value, m.Instrument.PricePrecision, m.Instrument.PriceIncrement.Value)
		if !triggered {
			continue
		}
		m.trailingStops.remove(o.ClientOrderID)
		m.fireTriggered(o, ts)
		if o.Type == enums.TrailingStopLimit {
			if lp, ok := o.TrailingLimitPrice(m.Instrument.PricePrecision); ok {
				p := money.NewPrice(lp, m.Instrument.PricePrecision)
				o.Price = &p
			}
			m.resting.add(o)
		} else {
			fillPx := marketPrice
			if o.TriggerPrice != nil {
				fillPx = *o.TriggerPrice
			}
			m.fireFill(o, fillPx, o.LeavesQty.Value, enums.Taker, ts)
		}
	}
}

func (m *MatchingEngine) expireDayOrders(ts int64) {
	m.expireWhere(ts, func(o *order.Order) bool { return o.TimeInForce == enums.DAY })
}

// ExpireGTD expires every good-till-date order whose expiry has passed.
// The exchange calls this on every clock advance.
func (m *MatchingEngine) ExpireGTD(ts int64) {
	m.expireWhere(ts, func(o *order.Order) bool {
		return o.TimeInForce == enums.GTD && o.ExpireTimeNs != nil && ts >= *o.ExpireTimeNs
	})
}

func (m *MatchingEngine) expireWhere(ts int64, match func(*order.Order) bool) {
	var candidates []*order.Order
	candidates = append(candidates, m.resting.snapshot()...)
	candidates = append(candidates, m.stops.snapshot()...)
	candidates = append(candidates, m.trailingStops.snapshot()...)

	for _, o := range candidates {
		if o == nil || !match(o) {
			continue
		}
		m.resting.remove(o.ClientOrderID)
		m.stops.remove(o.ClientOrderID)
		m.trailingStops.remove(o.ClientOrderID)
		if !o.IsOpen() {
			continue
		}
		ev := event.OrderExpired{
			Base:          event.Base{TsEvent: ts, TsInit: ts},
			TraderID:      o.TraderID,
			StrategyID:    o.StrategyID,
			InstrumentID:  o.InstrumentID,
			ClientOrderID: o.ClientOrderID,
			VenueOrderID:  o.VenueOrderID,
			AccountID:     m.AccountID,
		}
		o.Apply(ev)
		m.callbacks.OnExpire(ev)
	}
}

// ── Contingency management ───────────────────────────────────────────────

func (m *MatchingEngine) registerContingency(o *order.Order) {
	if o.ContingencyType == enums.NoContingency || o.OrderListID == nil {
		return
	}
	gid := string(*o.OrderListID)
	group := m.contingencyGroups[gid]
	for _, existing := range group {
		if existing == o.ClientOrderID {
			return
		}
	}
	m.contingencyGroups[gid] = append(group, o.ClientOrderID)
}

// handleContingencyFill cancels every open OCO sibling of a fully
// filled order. Partial fills never cancel siblings.
func (m *MatchingEngine) handleContingencyFill(o *order.Order, ts int64) {
	if o.ContingencyType != enums.OCO || o.OrderListID == nil {
		return
	}
	gid := string(*o.OrderListID)
	for _, sid := range m.contingencyGroups[gid] {
		if sid == o.ClientOrderID {
			continue
		}
		sibling, ok := m.resting.get(sid)
		if !ok {
			sibling, ok = m.stops.get(sid)
		}
		if !ok {
			sibling, ok = m.trailingStops.get(sid)
		}
		if !ok || sibling == nil {
			continue
		}
		m.resting.remove(sid)
		m.stops.remove(sid)
		m.trailingStops.remove(sid)
		if sibling.IsOpen() {
			m.fireCancel(sibling, ts)
		}
	}
}

// ── Event firing ──────────────────────────────────────────────────────────

func (m *MatchingEngine) fireFill(o *order.Order, fillPx money.Price, fillQtyVal decimal.Decimal, liquiditySide enums.LiquiditySide, ts int64) {
	if o.IsClosed() || !o.IsOpen() {
		return
	}
	qtyVal := fillQtyVal
	if o.LeavesQty.Value.LessThan(qtyVal) {
		qtyVal = o.LeavesQty.Value
	}
	fillQty := money.NewQuantity(qtyVal, o.Quantity.Precision)
	if fillQty.IsZero() {
		return
	}
	m.tradeCount++

	var venueOrderID id.VenueOrderID
	if o.VenueOrderID != nil {
		venueOrderID = *o.VenueOrderID
	} else {
		m.venueOrderCount++
		venueOrderID = id.VenueOrderID(fmt.Sprintf("V-%s-%d", m.Instrument.Venue(), m.venueOrderCount))
	}
	tradeID := id.TradeID(fmt.Sprintf("T-%s-%d", m.Instrument.Venue(), m.tradeCount))

	commission := m.FeeModel.Calculate(o, fillQty, fillPx, m.Instrument, liquiditySide)

	ev := event.OrderFilled{
		Base:          event.Base{TsEvent: ts, TsInit: ts},
		TraderID:      o.TraderID,
		StrategyID:    o.StrategyID,
		InstrumentID:  o.InstrumentID,
		ClientOrderID: o.ClientOrderID,
		VenueOrderID:  venueOrderID,
		AccountID:     m.AccountID,
		TradeID:       tradeID,
		Side:          o.Side,
		Type:          o.Type,
		LastQty:       fillQty,
		LastPx:        fillPx,
		Currency:      m.Instrument.QuoteCurrency,
		Commission:    commission,
		LiquiditySide: liquiditySide,
		PositionID:    o.PositionID,
	}
	o.Apply(ev)
	m.callbacks.OnFill(ev)

	if o.IsFilled() {
		m.handleContingencyFill(o, ts)
	}
}

func (m *MatchingEngine) fireCancel(o *order.Order, ts int64) {
	ev := event.OrderCanceled{
		Base:          event.Base{TsEvent: ts, TsInit: ts},
		TraderID:      o.TraderID,
		StrategyID:    o.StrategyID,
		InstrumentID:  o.InstrumentID,
		ClientOrderID: o.ClientOrderID,
		VenueOrderID:  o.VenueOrderID,
		AccountID:     m.AccountID,
	}
	o.Apply(ev)
	m.callbacks.OnCancel(ev)
}

func (m *MatchingEngine) fireTriggered(o *order.Order, ts int64) {
	ev := event.OrderTriggered{
		Base:          event.Base{TsEvent: ts, TsInit: ts},
		TraderID:      o.TraderID,
		StrategyID:    o.StrategyID,
		InstrumentID:  o.InstrumentID,
		ClientOrderID: o.ClientOrderID,
		VenueOrderID:  o.VenueOrderID,
		AccountID:     m.AccountID,
	}
	o.Apply(ev)
	m.callbacks.OnTrigger(ev)
}

// ── Trigger predicates ────────────────────────────────────────────────────

func (m *MatchingEngine) isStopTriggered(o *order.Order, price *money.Price) bool {
	if price == nil || o.TriggerPrice == nil {
		return false
	}
	if o.IsBuy() {
		return price.Value.GreaterThanOrEqual(o.TriggerPrice.Value)
	}
	return price.Value.LessThanOrEqual(o.TriggerPrice.Value)
}

func (m *MatchingEngine) isMitTriggered(o *order.Order, price *money.Price) bool {
	if price == nil || o.TriggerPrice == nil {
		return false
	}
	if o.IsBuy() {
		return price.Value.LessThanOrEqual(o.TriggerPrice.Value)
	}
	return price.Value.GreaterThanOrEqual(o.TriggerPrice.Value)
}

func (m *MatchingEngine) wouldFillImmediately(o *order.Order) bool {
	if o.Price == nil {
		return false
	}
	if o.IsBuy() {
		ask, ok := m.book.BestAskPrice()
		return ok && o.Price.Value.GreaterThanOrEqual(ask)
	}
	bid, ok := m.book.BestBidPrice()
	return ok && o.Price.Value.LessThanOrEqual(bid)
}

// Reset clears all book and order state, used between independent runs
// sharing one engine instance.
func (m *MatchingEngine) Reset() {
	m.resting.clear()
	m.stops.clear()
	m.trailingStops.clear()
	m.contingencyGroups = make(map[string][]id.ClientOrderID)
	m.book.Clear()
	m.lastPrice = nil
	m.tradeCount = 0
	m.venueOrderCount = 0
}
