// Package execution glues the risk gate, venues, cache, positions and
// accounts together: it admits order commands, reconciles fills into
// positions and balances, and publishes every resulting event on the
// message bus.
package execution

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/forgequant/backtestcore/core/clock"
	"github.com/forgequant/backtestcore/core/enums"
	"github.com/forgequant/backtestcore/core/event"
	"github.com/forgequant/backtestcore/core/id"
	"github.com/forgequant/backtestcore/core/money"
	"github.com/forgequant/backtestcore/core/msgbus"
	"github.com/forgequant/backtestcore/model/instrument"
	"github.com/forgequant/backtestcore/model/order"
	"github.com/forgequant/backtestcore/model/position"
	"github.com/forgequant/backtestcore/risk"
	"github.com/forgequant/backtestcore/state/cache"
	"github.com/forgequant/backtestcore/venue/sim"
)

// maxOrdersPerTick bounds the order-submission cascade a single market
// event may trigger through synchronous strategy callbacks. The bus
// delivers synchronously, so a strategy resubmitting from its own fill
// callback recurses; this cap keeps a runaway cascade from looping
// forever within one tick.
const maxOrdersPerTick = 512

// Engine is the execution engine: the single component through which
// every order command and every venue event flows.
type Engine struct {
	TraderID id.TraderID

	clock *clock.TestClock
	bus   *msgbus.Bus
	cache *cache.Cache
	gate  *risk.Gate

	exchanges map[id.Venue]*sim.Exchange

	positionSeq    map[string]int
	ordersThisTick int
}

// New constructs an execution Engine over the shared clock, bus, cache
// and risk gate.
func New(traderID id.TraderID, clk *clock.TestClock, bus *msgbus.Bus, c *cache.Cache, gate *risk.Gate) *Engine {
	return &Engine{
		TraderID:    traderID,
		clock:       clk,
		bus:         bus,
		cache:       c,
		gate:        gate,
		exchanges:   make(map[id.Venue]*sim.Exchange),
		positionSeq: make(map[string]int),
	}
}

// RegisterExchange wires a venue in. The exchange's callbacks must
// already point at this engine's Handle* methods (see Callbacks).
func (e *Engine) RegisterExchange(ex *sim.Exchange) {
	e.exchanges[ex.Venue] = ex
}

// Callbacks returns the venue callback set routing every venue event
// back through this engine.
func (e *Engine) Callbacks() sim.Callbacks {
	return sim.Callbacks{
		OnAccept:  e.HandleAccepted,
		OnReject:  e.HandleRejected,
		OnFill:    e.HandleFill,
		OnCancel:  e.HandleCanceled,
		OnExpire:  e.HandleExpired,
		OnTrigger: e.HandleTriggered,
	}
}

// BeginTick resets the per-tick order cascade counter. The event loop
// calls it once per market event.
func (e *Engine) BeginTick() { e.ordersThisTick = 0 }

// ── Order commands ───────────────────────────────────────────────────────

// SubmitOrder runs the pre-trade risk gate and either denies the order
// or inserts it into the cache, emits OrderSubmitted, and routes it to
// the owning venue.
func (e *Engine) SubmitOrder(o *order.Order) {
	ts := e.clock.TimestampNs()

	e.ordersThisTick++
	if e.ordersThisTick > maxOrdersPerTick {
		e.deny(o, ts, fmt.Sprintf("order cascade exceeded %d orders in one tick", maxOrdersPerTick))
		return
	}

	inst, _ := e.cache.Instrument(o.InstrumentID)
	if ok, reason := e.gate.CheckOrder(o, inst); !ok {
		e.deny(o, ts, reason)
		return
	}

	ex, ok := e.exchanges[o.InstrumentID.Venue]
	if !ok {
		e.deny(o, ts, fmt.Sprintf("no venue registered for %s", o.InstrumentID.Venue))
		return
	}

	e.cache.AddOrder(o)
	sub := event.OrderSubmitted{
		Base:          event.Base{TsEvent: ts, TsInit: ts},
		TraderID:      o.TraderID,
		StrategyID:    o.StrategyID,
		InstrumentID:  o.InstrumentID,
		ClientOrderID: o.ClientOrderID,
		AccountID:     ex.Account.ID,
	}
	if !e.safeApply(o, sub) {
		return
	}
	e.publishOrderEvent(o.StrategyID, sub)

	ex.SubmitOrder(o, ts)
}

// CancelOrder passes a cancel through to the owning venue.
func (e *Engine) CancelOrder(o *order.Order) {
	ex, ok := e.exchanges[o.InstrumentID.Venue]
	if !ok || !o.IsOpen() {
		return
	}
	ex.CancelOrder(o, e.clock.TimestampNs())
}

// ModifyOrder passes a qty/price/trigger update through to the owning venue.
func (e *Engine) ModifyOrder(o *order.Order, quantity *money.Quantity, price, triggerPrice *money.Price) {
	ex, ok := e.exchanges[o.InstrumentID.Venue]
	if !ok || !o.IsOpen() {
		return
	}
	ex.ModifyOrder(o, quantity, price, triggerPrice, e.clock.TimestampNs())
}

// CancelAllOrders cancels every open order on an instrument, optionally
// narrowed to one strategy.
func (e *Engine) CancelAllOrders(instrumentID id.InstrumentID, strategyID *id.StrategyID) {
	for _, o := range e.cache.OrdersOpen(&instrumentID, strategyID) {
		e.CancelOrder(o)
	}
}

func (e *Engine) deny(o *order.Order, ts int64, reason string) {
	ev := event.OrderDenied{
		Base:          event.Base{TsEvent: ts, TsInit: ts},
		TraderID:      o.TraderID,
		StrategyID:    o.StrategyID,
		InstrumentID:  o.InstrumentID,
		ClientOrderID: o.ClientOrderID,
		Reason:        reason,
	}
	if !e.safeApply(o, ev) {
		return
	}
	log.Info().
		Str("client_order_id", string(o.ClientOrderID)).
		Str("reason", reason).
		Msg("execution: order denied")
	e.publishOrderEvent(o.StrategyID, ev)
}

// ── Venue event handlers ─────────────────────────────────────────────────

// The simulated venue applies venue-originated events to the shared
// order object before invoking these handlers, so their job here is
// reconciliation (positions, balances) and publication.

func (e *Engine) HandleAccepted(ev event.OrderAccepted) {
	e.publishOrderEvent(ev.StrategyID, ev)
}

func (e *Engine) HandleRejected(ev event.OrderRejected) {
	log.Info().
		Str("client_order_id", string(ev.ClientOrderID)).
		Str("reason", ev.Reason).
		Msg("execution: order rejected by venue")
	e.publishOrderEvent(ev.StrategyID, ev)
}

func (e *Engine) HandleCanceled(ev event.OrderCanceled) {
	e.publishOrderEvent(ev.StrategyID, ev)
}

func (e *Engine) HandleExpired(ev event.OrderExpired) {
	e.publishOrderEvent(ev.StrategyID, ev)
}

func (e *Engine) HandleTriggered(ev event.OrderTriggered) {
	e.publishOrderEvent(ev.StrategyID, ev)
}

// HandleFill reconciles a fill into the account and position state, then
// publishes the fill and any position event it produced.
func (e *Engine) HandleFill(ev event.OrderFilled) {
	o, ok := e.cache.Order(ev.ClientOrderID)
	if !ok {
		log.Error().
			Str("client_order_id", string(ev.ClientOrderID)).
			Msg("execution: fill for unknown order dropped")
		return
	}
	inst, ok := e.cache.Instrument(ev.InstrumentID)
	if !ok {
		log.Error().
			Str("instrument_id", ev.InstrumentID.String()).
			Msg("execution: fill for unknown instrument dropped")
		return
	}

	e.applyFillToAccount(ev, inst)
	posEvent := e.reconcilePosition(o, ev, inst)

	e.publishOrderEvent(ev.StrategyID, ev)
	if posEvent != nil {
		e.publishPositionEvent(ev.StrategyID, posEvent)
	}
}

// ── Position reconciliation ──────────────────────────────────────────────

func (e *Engine) reconcilePosition(o *order.Order, ev event.OrderFilled, inst *instrument.Instrument) any {
	omsType := enums.Netting
	if ex, ok := e.exchanges[ev.InstrumentID.Venue]; ok {
		omsType = ex.OmsType
	}

	var pos *position.Position
	if omsType == enums.Hedging {
		if o.PositionID != nil {
			if p, found := e.cache.Position(*o.PositionID); found {
				pos = p
			}
		}
	} else {
		// NETTING: the single open position for (instrument, strategy).
		open := e.cache.PositionsOpen(&ev.InstrumentID, &ev.StrategyID)
		if len(open) > 0 {
			pos = open[0]
		}
	}

	if pos == nil {
		return e.openPosition(o, ev, inst)
	}

	pos.Apply(ev)
	o.PositionID = &pos.ID
	ts := e.clock.TimestampNs()
	if pos.IsClosed() {
		return event.PositionClosed{
			Base:           event.Base{TsEvent: ts, TsInit: ts},
			TraderID:       ev.TraderID,
			StrategyID:     ev.StrategyID,
			InstrumentID:   ev.InstrumentID,
			PositionID:     pos.ID,
			AccountID:      ev.AccountID,
			ClosingOrderID: ev.ClientOrderID,
			RealizedPnl:    money.NewMoney(pos.RealizedPnl, pos.Currency),
			Currency:       pos.Currency,
		}
	}
	return event.PositionChanged{
		Base:          event.Base{TsEvent: ts, TsInit: ts},
		TraderID:      ev.TraderID,
		StrategyID:    ev.StrategyID,
		InstrumentID:  ev.InstrumentID,
		PositionID:    pos.ID,
		AccountID:     ev.AccountID,
		Quantity:      pos.Quantity(),
		RealizedPnl:   money.NewMoney(pos.RealizedPnl, pos.Currency),
		UnrealizedPnl: money.NewMoney(pos.UnrealizedPnl, pos.Currency),
	}
}

func (e *Engine) openPosition(o *order.Order, ev event.OrderFilled, inst *instrument.Instrument) any {
	pid := e.nextPositionID(ev.StrategyID, ev.InstrumentID)
	pos := position.NewFromFill(ev.InstrumentID, pid, ev.AccountID, ev.TraderID, ev.StrategyID, ev, inst.QuoteCurrency, inst.Multiplier.Value)
	e.cache.AddPosition(pos)
	o.PositionID = &pid

	ts := e.clock.TimestampNs()
	return event.PositionOpened{
		Base:           event.Base{TsEvent: ts, TsInit: ts},
		TraderID:       ev.TraderID,
		StrategyID:     ev.StrategyID,
		InstrumentID:   ev.InstrumentID,
		PositionID:     pid,
		AccountID:      ev.AccountID,
		OpeningOrderID: ev.ClientOrderID,
		EntrySide:      ev.Side,
		EntryPrice:     ev.LastPx,
		Quantity:       ev.LastQty,
		Currency:       pos.Currency,
	}
}

func (e *Engine) nextPositionID(strategyID id.StrategyID, instrumentID id.InstrumentID) id.PositionID {
	key := fmt.Sprintf("%s-%s", strategyID, instrumentID.Symbol)
	e.positionSeq[key]++
	return id.PositionID(fmt.Sprintf("P-%s-%s-%d", strategyID, instrumentID.Symbol, e.positionSeq[key]))
}

// ── Account mutation on fill ─────────────────────────────────────────────

func (e *Engine) applyFillToAccount(ev event.OrderFilled, inst *instrument.Instrument) {
	ex, ok := e.exchanges[ev.InstrumentID.Venue]
	if !ok {
		return
	}
	acct := ex.Account

	notional := inst.NotionalValue(ev.LastQty, ev.LastPx)
	commission := ev.Commission.Amount

	var delta decimal.Decimal
	if ev.Side == enums.Buy {
		delta = notional.Neg().Sub(commission)
	} else {
		delta = notional.Sub(commission)
	}
	acct.Credit(delta, ev.Currency)
	acct.UpdateCommissions(ev.Currency, commission)

	if acct.Type == enums.Margin {
		required := acct.CalculateInitialMargin(inst.MarginInit, ev.LastQty.Value, ev.LastPx.Value)
		acct.UpdateMargin(ev.InstrumentID.String(), required)
	}
}

// ── Publication ──────────────────────────────────────────────────────────

func (e *Engine) publishOrderEvent(strategyID id.StrategyID, ev any) {
	e.bus.Publish(fmt.Sprintf("events.order.%s", strategyID), ev)
}

func (e *Engine) publishPositionEvent(strategyID id.StrategyID, ev any) {
	e.bus.Publish(fmt.Sprintf("events.position.%s", strategyID), ev)
}

// safeApply applies ev to o, absorbing an illegal FSM transition so one
// bad event cannot abort the run. The offending event is dropped and the
// order keeps its prior state.
func (e *Engine) safeApply(o *order.Order, ev any) (applied bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("client_order_id", string(o.ClientOrderID)).
				Interface("panic", r).
				Msg("execution: invalid order transition dropped")
			applied = false
		}
	}()
	o.Apply(ev)
	return true
}

// Reset clears per-run counters between independent runs.
func (e *Engine) Reset() {
	e.positionSeq = make(map[string]int)
	e.ordersThisTick = 0
}
