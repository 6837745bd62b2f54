package sim

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/forgequant/backtestcore/core/enums"
	"github.com/forgequant/backtestcore/core/event"
	"github.com/forgequant/backtestcore/core/id"
	"github.com/forgequant/backtestcore/core/money"
	"github.com/forgequant/backtestcore/model/data"
	"github.com/forgequant/backtestcore/model/instrument"
	"github.com/forgequant/backtestcore/model/order"
	"github.com/forgequant/backtestcore/venue/account"
)

// ═══════════════════════════════════════════════════════════════════════════════
// SIMULATED EXCHANGE - one venue: account, per-instrument matching engines
// ═══════════════════════════════════════════════════════════════════════════════

// Exchange models a single simulated venue: it owns the venue account,
// runs venue-side admission checks (instrument known, balance
// sufficient), and routes market data and order commands to the matching
// engine for each listed instrument.
type Exchange struct {
	Venue     id.Venue
	OmsType   enums.OmsType
	Account   *account.Account
	FillModel *FillModel
	FeeModel  FeeModel
	Latency   LatencyModel

	bookSpreadPct decimal.Decimal
	callbacks     Callbacks

	instruments map[id.InstrumentID]*instrument.Instrument
	engines     map[id.InstrumentID]*MatchingEngine
	accountSeq  int
}

// NewExchange constructs an empty venue. Instruments are listed with
// AddInstrument before any data or orders flow.
func NewExchange(venue id.Venue, omsType enums.OmsType, acct *account.Account, fillModel *FillModel, feeModel FeeModel, bookSpreadPct decimal.Decimal, callbacks Callbacks) *Exchange {
	return &Exchange{
		Venue:         venue,
		OmsType:       omsType,
		Account:       acct,
		FillModel:     fillModel,
		FeeModel:      feeModel,
		bookSpreadPct: bookSpreadPct,
		callbacks:     callbacks,
		instruments:   make(map[id.InstrumentID]*instrument.Instrument),
		engines:       make(map[id.InstrumentID]*MatchingEngine),
	}
}

// AddInstrument lists an instrument on the venue, creating its matching
// engine.
func (e *Exchange) AddInstrument(inst *instrument.Instrument) {
	e.instruments[inst.ID] = inst
	eng := New(inst, e.FillModel, e.FeeModel, e.Account.ID, e.callbacks)
	if !e.bookSpreadPct.IsZero() {
		eng.SetBookSpreadPct(e.bookSpreadPct)
	}
	e.engines[inst.ID] = eng
}

// Instrument returns the listed instrument, if any.
func (e *Exchange) Instrument(instrumentID id.InstrumentID) (*instrument.Instrument, bool) {
	inst, ok := e.instruments[instrumentID]
	return inst, ok
}

// Engine exposes the matching engine for an instrument, mainly for tests.
func (e *Exchange) Engine(instrumentID id.InstrumentID) (*MatchingEngine, bool) {
	eng, ok := e.engines[instrumentID]
	return eng, ok
}

// ── Market data routing ──────────────────────────────────────────────────

func (e *Exchange) ProcessBar(bar data.Bar) {
	if eng, ok := e.engines[bar.InstrumentID()]; ok {
		eng.ProcessBar(bar)
	}
}

func (e *Exchange) ProcessQuoteTick(q data.QuoteTick) {
	if eng, ok := e.engines[q.InstrumentID]; ok {
		eng.ProcessQuoteTick(q)
	}
}

func (e *Exchange) ProcessTradeTick(t data.TradeTick) {
	if eng, ok := e.engines[t.InstrumentID]; ok {
		eng.ProcessTradeTick(t)
	}
}

func (e *Exchange) ProcessBookDelta(d data.OrderBookDelta) {
	if eng, ok := e.engines[d.InstrumentID]; ok {
		eng.ProcessBookDelta(d)
	}
}

func (e *Exchange) ProcessBookDeltas(ds data.OrderBookDeltas) {
	if eng, ok := e.engines[ds.InstrumentID]; ok {
		eng.ProcessBookDeltas(ds)
	}
}

// CheckExpirations expires any GTD order whose expiry time has passed.
// The event loop calls this on every clock advance. Instruments are
// visited in id order so same-timestamp expirations fire
// deterministically across runs.
func (e *Exchange) CheckExpirations(ts int64) {
	for _, iid := range e.instrumentsSorted() {
		e.engines[iid].ExpireGTD(ts)
	}
}

func (e *Exchange) instrumentsSorted() []id.InstrumentID {
	ids := make([]id.InstrumentID, 0, len(e.engines))
	for iid := range e.engines {
		ids = append(ids, iid)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids
}

// ── Order admission ──────────────────────────────────────────────────────

// SubmitOrder runs venue-side checks, then either fires OrderRejected or
// fires OrderAccepted and hands the order to the matching engine.
func (e *Exchange) SubmitOrder(o *order.Order, ts int64) {
	inst, ok := e.instruments[o.InstrumentID]
	if !ok {
		e.reject(o, ts, fmt.Sprintf("instrument %s not listed on venue %s", o.InstrumentID, e.Venue))
		return
	}

	if ok, reason := e.checkBalance(o, inst); !ok {
		e.reject(o, ts, reason)
		return
	}

	e.accountSeq++
	venueOrderID := id.VenueOrderID(fmt.Sprintf("V-%s-%d", e.Venue, e.accountSeq))
	acc := event.OrderAccepted{
		Base:          event.Base{TsEvent: ts, TsInit: ts},
		TraderID:      o.TraderID,
		StrategyID:    o.StrategyID,
		InstrumentID:  o.InstrumentID,
		ClientOrderID: o.ClientOrderID,
		VenueOrderID:  venueOrderID,
		AccountID:     e.Account.ID,
	}
	o.Apply(acc)
	e.callbacks.OnAccept(acc)

	eng := e.engines[o.InstrumentID]
	eng.ProcessOrder(o, ts)
}

// CancelOrder routes a cancel to the owning matching engine.
func (e *Exchange) CancelOrder(o *order.Order, ts int64) {
	if eng, ok := e.engines[o.InstrumentID]; ok {
		eng.CancelOrder(o, ts)
	}
}

// ModifyOrder routes a modify to the owning matching engine.
func (e *Exchange) ModifyOrder(o *order.Order, quantity *money.Quantity, price, triggerPrice *money.Price, ts int64) {
	if eng, ok := e.engines[o.InstrumentID]; ok {
		eng.ModifyOrder(o, quantity, price, triggerPrice, ts)
	}
}

// checkBalance is the venue-side pre-trade sufficiency check: the order
// cost (cash) or initial margin (margin) must fit in the free balance.
// The reference price is the order's limit or trigger price when it has
// one, else the best opposite book price if known; with neither, the
// check is skipped.
func (e *Exchange) checkBalance(o *order.Order, inst *instrument.Instrument) (bool, string) {
	px, ok := e.referencePrice(o)
	if !ok {
		return true, ""
	}
	marginInit := inst.MarginInit
	return e.Account.CanSubmitOrder(o.LeavesQty.Value, px, inst.QuoteCurrency, &marginInit)
}

func (e *Exchange) referencePrice(o *order.Order) (decimal.Decimal, bool) {
	if o.Price != nil {
		return o.Price.Value, true
	}
	if o.TriggerPrice != nil {
		return o.TriggerPrice.Value, true
	}
	eng, ok := e.engines[o.InstrumentID]
	if !ok {
		return decimal.Zero, false
	}
	if o.IsBuy() {
		return eng.Book().BestAskPrice()
	}
	return eng.Book().BestBidPrice()
}

func (e *Exchange) reject(o *order.Order, ts int64, reason string) {
	log.Debug().
		Str("venue", string(e.Venue)).
		Str("client_order_id", string(o.ClientOrderID)).
		Str("reason", reason).
		Msg("exchange: order rejected")
	ev := event.OrderRejected{
		Base:          event.Base{TsEvent: ts, TsInit: ts},
		TraderID:      o.TraderID,
		StrategyID:    o.StrategyID,
		InstrumentID:  o.InstrumentID,
		ClientOrderID: o.ClientOrderID,
		AccountID:     e.Account.ID,
		Reason:        reason,
	}
	o.Apply(ev)
	e.callbacks.OnReject(ev)
}

// Reset clears every matching engine's state between runs; the account
// is reconstructed by the caller.
func (e *Exchange) Reset() {
	for _, eng := range e.engines {
		eng.Reset()
	}
	e.accountSeq = 0
}
