package strategy

import (
	"fmt"

	"github.com/forgequant/backtestcore/core/clock"
	"github.com/forgequant/backtestcore/core/enums"
	"github.com/forgequant/backtestcore/core/id"
	"github.com/forgequant/backtestcore/core/money"
	"github.com/forgequant/backtestcore/core/msgbus"
	"github.com/forgequant/backtestcore/execution"
	"github.com/forgequant/backtestcore/model/data"
	"github.com/forgequant/backtestcore/model/order"
	"github.com/forgequant/backtestcore/model/position"
	"github.com/forgequant/backtestcore/state/cache"
	"github.com/forgequant/backtestcore/state/portfolio"
)

// Context is the opaque handle a strategy receives at OnStart. It is the
// only sanctioned path for a strategy to act on the engine: all
// mutations flow through SubmitOrder/CancelOrder/ModifyOrder, and data
// arrives only through subscriptions made here.
type Context struct {
	traderID   id.TraderID
	strategyID id.StrategyID

	exec      *execution.Engine
	cache     *cache.Cache
	portfolio *portfolio.Portfolio
	bus       *msgbus.Bus
	clock     *clock.TestClock
	factory   *order.Factory

	// owner is the strategy this context routes data callbacks to;
	// isolate wraps every bus handler so one panicking callback cannot
	// abort the run.
	owner   Strategy
	isolate func(msgbus.Handler) msgbus.Handler
}

// NewContext wires a Context for one strategy. isolate may be nil, in
// which case handlers are registered unwrapped.
func NewContext(traderID id.TraderID, strategyID id.StrategyID, exec *execution.Engine, c *cache.Cache, pf *portfolio.Portfolio, bus *msgbus.Bus, clk *clock.TestClock, owner Strategy, isolate func(msgbus.Handler) msgbus.Handler) *Context {
	if isolate == nil {
		isolate = func(h msgbus.Handler) msgbus.Handler { return h }
	}
	return &Context{
		traderID:   traderID,
		strategyID: strategyID,
		exec:       exec,
		cache:      c,
		portfolio:  pf,
		bus:        bus,
		clock:      clk,
		factory:    order.NewFactory(traderID, strategyID),
		owner:      owner,
		isolate:    isolate,
	}
}

func (ctx *Context) TraderID() id.TraderID           { return ctx.traderID }
func (ctx *Context) StrategyID() id.StrategyID       { return ctx.strategyID }
func (ctx *Context) TimestampNs() int64              { return ctx.clock.TimestampNs() }
func (ctx *Context) OrderFactory() *order.Factory    { return ctx.factory }
func (ctx *Context) Cache() *cache.Cache             { return ctx.cache }
func (ctx *Context) Portfolio() *portfolio.Portfolio { return ctx.portfolio }
func (ctx *Context) Clock() *clock.TestClock         { return ctx.clock }

// ── Order commands ───────────────────────────────────────────────────────

func (ctx *Context) SubmitOrder(o *order.Order) { ctx.exec.SubmitOrder(o) }
func (ctx *Context) CancelOrder(o *order.Order) { ctx.exec.CancelOrder(o) }

func (ctx *Context) ModifyOrder(o *order.Order, quantity *money.Quantity, price, triggerPrice *money.Price) {
	ctx.exec.ModifyOrder(o, quantity, price, triggerPrice)
}

// CancelAllOrders cancels every open order this strategy has on the
// instrument.
func (ctx *Context) CancelAllOrders(instrumentID id.InstrumentID) {
	sid := ctx.strategyID
	ctx.exec.CancelAllOrders(instrumentID, &sid)
}

// ClosePosition submits a reduce-only market order for the position's
// full open quantity, in the flattening direction.
func (ctx *Context) ClosePosition(pos *position.Position) {
	if pos == nil || !pos.IsOpen() {
		return
	}
	side := enums.Sell
	if pos.IsShort() {
		side = enums.Buy
	}
	o := ctx.factory.Market(pos.InstrumentID, side, pos.Quantity(), enums.GTC, ctx.clock.TimestampNs(), order.Params{
		ReduceOnly: true,
		Tags:       []string{fmt.Sprintf("close:%s", pos.ID)},
	})
	ctx.exec.SubmitOrder(o)
}

// CloseAllPositions flattens every open position this strategy holds on
// the instrument.
func (ctx *Context) CloseAllPositions(instrumentID id.InstrumentID) {
	sid := ctx.strategyID
	for _, pos := range ctx.cache.PositionsOpen(&instrumentID, &sid) {
		ctx.ClosePosition(pos)
	}
}

// ── Data subscriptions ───────────────────────────────────────────────────

// SubscribeBars routes bars of barType to the strategy's OnBar callback.
func (ctx *Context) SubscribeBars(barType data.BarType) *msgbus.Subscription {
	topic := fmt.Sprintf("data.bars.%s", barType)
	return ctx.bus.Subscribe(topic, ctx.isolate(func(msg any) {
		if bar, ok := msg.(data.Bar); ok {
			ctx.owner.OnBar(bar)
		}
	}))
}

// SubscribeQuoteTicks routes an instrument's quotes to OnQuoteTick.
func (ctx *Context) SubscribeQuoteTicks(instrumentID id.InstrumentID) *msgbus.Subscription {
	topic := fmt.Sprintf("data.quotes.%s", instrumentID)
	return ctx.bus.Subscribe(topic, ctx.isolate(func(msg any) {
		if q, ok := msg.(data.QuoteTick); ok {
			ctx.owner.OnQuoteTick(q)
		}
	}))
}

// SubscribeTradeTicks routes an instrument's trades to OnTradeTick.
func (ctx *Context) SubscribeTradeTicks(instrumentID id.InstrumentID) *msgbus.Subscription {
	topic := fmt.Sprintf("data.trades.%s", instrumentID)
	return ctx.bus.Subscribe(topic, ctx.isolate(func(msg any) {
		if t, ok := msg.(data.TradeTick); ok {
			ctx.owner.OnTradeTick(t)
		}
	}))
}

// Unsubscribe removes a subscription made through this context.
func (ctx *Context) Unsubscribe(sub *msgbus.Subscription) {
	ctx.bus.Unsubscribe(sub)
}
