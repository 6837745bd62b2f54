// Package backtest drives a run end to end: it owns the clock, bus,
// cache, risk gate, execution engine and simulated venues, drains the
// time-sorted market event stream through them, records the equity
// curve, and reduces everything into a Result.
package backtest

import (
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/forgequant/backtestcore/analysis"
	"github.com/forgequant/backtestcore/core/clock"
	"github.com/forgequant/backtestcore/core/enums"
	"github.com/forgequant/backtestcore/core/event"
	"github.com/forgequant/backtestcore/core/id"
	"github.com/forgequant/backtestcore/core/msgbus"
	"github.com/forgequant/backtestcore/execution"
	"github.com/forgequant/backtestcore/model/data"
	"github.com/forgequant/backtestcore/model/instrument"
	"github.com/forgequant/backtestcore/risk"
	"github.com/forgequant/backtestcore/state/cache"
	"github.com/forgequant/backtestcore/state/portfolio"
	"github.com/forgequant/backtestcore/strategy"
	"github.com/forgequant/backtestcore/venue/account"
	"github.com/forgequant/backtestcore/venue/sim"
)

// ═══════════════════════════════════════════════════════════════════════════════
// BACKTEST ENGINE - deterministic single-threaded event loop
// ═══════════════════════════════════════════════════════════════════════════════

// Engine is one isolated backtest instance. It is not safe for
// concurrent use; parallel parameter sweeps run one Engine per worker
// (see Sweep).
type Engine struct {
	cfg Config

	clock     *clock.TestClock
	bus       *msgbus.Bus
	cache     *cache.Cache
	portfolio *portfolio.Portfolio
	gate      *risk.Gate
	exec      *execution.Engine

	exchanges map[id.Venue]*sim.Exchange

	strategies []strategy.Strategy
	contexts   map[id.StrategyID]*strategy.Context
	actors     []strategy.Actor

	events []any

	equity     []EquityPoint
	totalFills int
	result     *Result
}

// NewEngine wires a full engine from cfg. Constructor/configuration
// errors abort immediately; nothing else in a run does.
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	clk := clock.New()
	bus := msgbus.New()
	c := cache.New()
	pf := portfolio.New(c)
	gate := risk.NewGate(pf)
	exec := execution.New(cfg.TraderID, clk, bus, c, gate)

	e := &Engine{
		cfg:       cfg,
		clock:     clk,
		bus:       bus,
		cache:     c,
		portfolio: pf,
		gate:      gate,
		exec:      exec,
		exchanges: make(map[id.Venue]*sim.Exchange),
		contexts:  make(map[id.StrategyID]*strategy.Context),
	}

	for _, vc := range cfg.Venues {
		acct := e.buildAccount(vc)
		fillModel := vc.FillModel
		if fillModel == nil {
			fillModel = sim.DefaultFillModel()
		}
		feeModel := vc.FeeModel
		if feeModel == nil {
			feeModel = sim.MakerTakerFeeModel{}
		}
		ex := sim.NewExchange(vc.Name, vc.OmsType, acct, fillModel, feeModel, vc.BookSpreadPct, exec.Callbacks())
		e.exchanges[vc.Name] = ex
		exec.RegisterExchange(ex)
		c.AddAccount(vc.Name, acct)
	}

	return e, nil
}

func (e *Engine) buildAccount(vc VenueConfig) *account.Account {
	base := vc.BaseCurrency
	accountID := id.AccountIDFor(vc.Name, 1)
	var acct *account.Account
	if vc.AccountType == enums.Margin {
		leverage := vc.Leverage
		if leverage.IsZero() {
			leverage = decimal.NewFromInt(1)
		}
		acct = account.NewMarginAccount(accountID, &base, leverage)
	} else {
		acct = account.NewCashAccount(accountID, &base)
	}
	acct.UpdateBalance(base, vc.StartingBalance, decimal.Zero)
	return acct
}

// Clock exposes the simulation clock, mainly for tests and actors.
func (e *Engine) Clock() *clock.TestClock { return e.clock }

// Bus exposes the message bus for out-of-band subscriptions.
func (e *Engine) Bus() *msgbus.Bus { return e.bus }

// Cache exposes the run's state store.
func (e *Engine) Cache() *cache.Cache { return e.cache }

// Portfolio exposes the aggregated position/account view.
func (e *Engine) Portfolio() *portfolio.Portfolio { return e.portfolio }

// RiskGate exposes the pre-trade gate, e.g. to halt trading mid-run.
func (e *Engine) RiskGate() *risk.Gate { return e.gate }

// Exchange returns the venue by name, mainly for tests.
func (e *Engine) Exchange(venue id.Venue) (*sim.Exchange, bool) {
	ex, ok := e.exchanges[venue]
	return ex, ok
}

// AddInstrument lists inst on its venue and the cache.
func (e *Engine) AddInstrument(inst *instrument.Instrument) error {
	ex, ok := e.exchanges[inst.Venue()]
	if !ok {
		return fmt.Errorf("backtest: no venue %s configured for instrument %s", inst.Venue(), inst.ID)
	}
	e.cache.AddInstrument(inst)
	ex.AddInstrument(inst)
	return nil
}

// AddStrategy registers a strategy for the run.
func (e *Engine) AddStrategy(s strategy.Strategy) {
	e.strategies = append(e.strategies, s)
}

// AddActor registers a non-trading lifecycle participant.
func (e *Engine) AddActor(a strategy.Actor) {
	e.actors = append(e.actors, a)
}

// AddData appends market events (bars, quote/trade ticks, book deltas)
// to the run's input stream. Events may arrive unsorted; Run sorts them
// stably by ts_event.
func (e *Engine) AddData(events ...any) {
	e.events = append(e.events, events...)
}

// ── Run ──────────────────────────────────────────────────────────────────

// Run drains the event stream. It returns an error only for
// configuration-level failures; handler errors are isolated and logged
// so a faulty strategy cannot abort the run.
func (e *Engine) Run() error {
	wallStart := time.Now()

	stream := e.filteredSortedEvents()
	if len(stream) == 0 {
		log.Warn().Msg("backtest: no events in range, producing empty result")
	}

	var startNs, endNs int64
	if len(stream) > 0 {
		startNs = tsEventOf(stream[0])
		endNs = tsEventOf(stream[len(stream)-1])
		e.clock.SetTime(startNs)
	}

	e.totalFills = 0
	fillCounter := e.bus.Subscribe("events.order.*", func(msg any) {
		if _, ok := msg.(event.OrderFilled); ok {
			e.totalFills++
		}
	})
	defer e.bus.Unsubscribe(fillCounter)

	e.start()

	for _, ev := range stream {
		ts := tsEventOf(ev)
		e.clock.AdvanceTime(ts)
		e.exec.BeginTick()
		for _, ex := range e.exchangesSorted() {
			ex.CheckExpirations(ts)
		}

		// Venue matching before the data publish, so any fills produced
		// by this event reach strategies ahead of their own data handler.
		e.routeToVenue(ev)
		e.publishData(ev)

		if bar, ok := ev.(data.Bar); ok {
			e.equity = append(e.equity, EquityPoint{
				TsNs:    bar.TsEvent,
				Balance: e.portfolio.TotalCash(nil),
			})
		}
	}

	e.stop()

	e.result = e.buildResult(startNs, endNs, time.Since(wallStart).Seconds())
	log.Info().
		Int("events", len(stream)).
		Int("orders", e.result.TotalOrders).
		Int("fills", e.result.TotalFills).
		Str("ending_balance", e.result.EndingBalance.StringFixed(2)).
		Msg("backtest: run complete")
	return nil
}

// Result returns the completed run's result, or ErrMissingResult if Run
// has not finished.
func (e *Engine) Result() (*Result, error) {
	if e.result == nil {
		return nil, ErrMissingResult
	}
	return e.result, nil
}

// Reset clears all run state so the same engine instance can execute
// another run: cache (instruments survive), venues, equity curve,
// result, and every registered strategy's OnReset.
func (e *Engine) Reset() {
	e.cache.Reset()
	e.bus.Reset()
	e.exec.Reset()
	for _, ex := range e.exchangesSorted() {
		ex.Reset()
	}
	for _, vc := range e.cfg.Venues {
		if ex, ok := e.exchanges[vc.Name]; ok {
			*ex.Account = *e.buildAccount(vc)
			e.cache.AddAccount(vc.Name, ex.Account)
		}
	}
	for _, s := range e.strategies {
		s.OnReset()
	}
	for _, a := range e.actors {
		a.OnReset()
	}
	e.events = nil
	e.equity = nil
	e.result = nil
	e.contexts = make(map[id.StrategyID]*strategy.Context)
}

// ── Lifecycle ────────────────────────────────────────────────────────────

func (e *Engine) start() {
	for _, a := range e.actors {
		a := a
		e.isolated(func() { a.OnStart() })
	}
	for _, s := range e.strategies {
		s := s
		ctx := strategy.NewContext(e.cfg.TraderID, s.StrategyID(), e.exec, e.cache, e.portfolio, e.bus, e.clock, s, e.isolateHandler)
		e.contexts[s.StrategyID()] = ctx
		e.subscribeStrategyEvents(s)
		e.isolated(func() { s.OnStart(ctx) })
	}
}

func (e *Engine) stop() {
	for _, s := range e.strategies {
		s := s
		ctx := e.contexts[s.StrategyID()]
		e.isolated(func() { s.OnStop(ctx) })
	}
	for _, a := range e.actors {
		a := a
		e.isolated(func() { a.OnStop() })
	}
}

func (e *Engine) subscribeStrategyEvents(s strategy.Strategy) {
	sid := s.StrategyID()
	e.bus.Subscribe(fmt.Sprintf("events.order.%s", sid), e.isolateHandler(func(msg any) {
		dispatchOrderEvent(s, msg)
	}))
	e.bus.Subscribe(fmt.Sprintf("events.position.%s", sid), e.isolateHandler(func(msg any) {
		dispatchPositionEvent(s, msg)
	}))
}

func dispatchOrderEvent(s strategy.Strategy, msg any) {
	switch ev := msg.(type) {
	case event.OrderSubmitted:
		s.OnOrderSubmitted(ev)
	case event.OrderAccepted:
		s.OnOrderAccepted(ev)
	case event.OrderRejected:
		s.OnOrderRejected(ev)
	case event.OrderDenied:
		s.OnOrderDenied(ev)
	case event.OrderCanceled:
		s.OnOrderCanceled(ev)
	case event.OrderExpired:
		s.OnOrderExpired(ev)
	case event.OrderFilled:
		s.OnOrderFilled(ev)
	case event.OrderTriggered:
		s.OnOrderTriggered(ev)
	}
}

func dispatchPositionEvent(s strategy.Strategy, msg any) {
	switch ev := msg.(type) {
	case event.PositionOpened:
		s.OnPositionOpened(ev)
	case event.PositionChanged:
		s.OnPositionChanged(ev)
	case event.PositionClosed:
		s.OnPositionClosed(ev)
	}
}

// ── Event routing ────────────────────────────────────────────────────────

func (e *Engine) routeToVenue(ev any) {
	switch d := ev.(type) {
	case data.Bar:
		if ex, ok := e.exchanges[d.InstrumentID().Venue]; ok {
			ex.ProcessBar(d)
		}
	case data.QuoteTick:
		if ex, ok := e.exchanges[d.InstrumentID.Venue]; ok {
			ex.ProcessQuoteTick(d)
		}
	case data.TradeTick:
		if ex, ok := e.exchanges[d.InstrumentID.Venue]; ok {
			ex.ProcessTradeTick(d)
		}
	case data.OrderBookDelta:
		if ex, ok := e.exchanges[d.InstrumentID.Venue]; ok {
			ex.ProcessBookDelta(d)
		}
	case data.OrderBookDeltas:
		if ex, ok := e.exchanges[d.InstrumentID.Venue]; ok {
			ex.ProcessBookDeltas(d)
		}
	}
}

func (e *Engine) publishData(ev any) {
	switch d := ev.(type) {
	case data.Bar:
		e.cache.UpdateBar(d)
		e.bus.Publish(fmt.Sprintf("data.bars.%s", d.BarType), d)
	case data.QuoteTick:
		e.cache.UpdateQuoteTick(d)
		e.bus.Publish(fmt.Sprintf("data.quotes.%s", d.InstrumentID), d)
	case data.TradeTick:
		e.cache.UpdateTradeTick(d)
		e.bus.Publish(fmt.Sprintf("data.trades.%s", d.InstrumentID), d)
	case data.OrderBookDelta:
		e.bus.Publish(fmt.Sprintf("data.book.%s", d.InstrumentID), d)
	case data.OrderBookDeltas:
		e.bus.Publish(fmt.Sprintf("data.book.%s", d.InstrumentID), d)
	}
}

func (e *Engine) filteredSortedEvents() []any {
	out := make([]any, 0, len(e.events))
	for _, ev := range e.events {
		ts := tsEventOf(ev)
		if e.cfg.StartNs != 0 && ts < e.cfg.StartNs {
			continue
		}
		if e.cfg.EndNs != 0 && ts > e.cfg.EndNs {
			continue
		}
		out = append(out, ev)
	}
	sort.SliceStable(out, func(i, j int) bool { return tsEventOf(out[i]) < tsEventOf(out[j]) })
	return out
}

func tsEventOf(ev any) int64 {
	switch d := ev.(type) {
	case data.Bar:
		return d.TsEvent
	case data.QuoteTick:
		return d.TsEvent
	case data.TradeTick:
		return d.TsEvent
	case data.OrderBookDelta:
		return d.TsEvent
	case data.OrderBookDeltas:
		return d.TsEvent
	default:
		return 0
	}
}

// exchangesSorted iterates venues in name order for determinism.
func (e *Engine) exchangesSorted() []*sim.Exchange {
	names := make([]string, 0, len(e.exchanges))
	for v := range e.exchanges {
		names = append(names, string(v))
	}
	sort.Strings(names)
	out := make([]*sim.Exchange, len(names))
	for i, n := range names {
		out[i] = e.exchanges[id.Venue(n)]
	}
	return out
}

// ── Handler isolation ────────────────────────────────────────────────────

// isolateHandler wraps a bus handler so a panic inside one strategy
// callback is logged and swallowed instead of aborting the run.
func (e *Engine) isolateHandler(h msgbus.Handler) msgbus.Handler {
	return func(msg any) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Msg("backtest: handler error isolated")
			}
		}()
		h(msg)
	}
}

func (e *Engine) isolated(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("backtest: lifecycle hook error isolated")
		}
	}()
	fn()
}

// ── Result assembly ──────────────────────────────────────────────────────

func (e *Engine) buildResult(startNs, endNs int64, runTimeS float64) *Result {
	starting := decimal.Zero
	for _, vc := range e.cfg.Venues {
		starting = starting.Add(vc.StartingBalance)
	}
	ending := e.portfolio.TotalCash(nil)

	balances := make([]float64, 0, len(e.equity)+1)
	balances = append(balances, starting.InexactFloat64())
	for _, pt := range e.equity {
		balances = append(balances, pt.Balance.InexactFloat64())
	}

	var closedPnls []float64
	for _, pos := range e.cache.PositionsClosed(nil, nil) {
		closedPnls = append(closedPnls, pos.RealizedPnl.InexactFloat64())
	}

	stats := analysis.Compute(balances, closedPnls, e.cfg.periodsPerYear())

	return &Result{
		TraderID:         e.cfg.TraderID,
		StartNs:          startNs,
		EndNs:            endNs,
		RunTimeS:         runTimeS,
		StartingBalance:  starting,
		EndingBalance:    ending,
		TotalReturn:      ending.Sub(starting),
		TotalOrders:      e.cache.OrderCount(),
		TotalPositions:   e.cache.PositionCount(),
		TotalFills:       e.totalFills,
		TotalCommissions: e.portfolio.Commissions(),

		TotalReturnPct:          stats.TotalReturnPct,
		AnnualizedReturnPct:     stats.AnnualizedReturnPct,
		AnnualizedVolatilityPct: stats.AnnualizedVolatilityPct,
		SharpeRatio:             stats.SharpeRatio,
		SortinoRatio:            stats.SortinoRatio,
		CalmarRatio:             stats.CalmarRatio,
		MaxDrawdownPct:          stats.MaxDrawdownPct,
		MaxDrawdownAbs:          stats.MaxDrawdownAbs,
		WinRate:                 stats.WinRate,
		ProfitFactor:            stats.ProfitFactor,
		Expectancy:              stats.Expectancy,
		AvgWin:                  stats.AvgWin,
		AvgLoss:                 stats.AvgLoss,

		BalanceCurve: append([]EquityPoint(nil), e.equity...),
	}
}
