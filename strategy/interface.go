// Package strategy defines the contract between the engine and external
// trading logic: the lifecycle/data/event callback surface a strategy
// implements, and the Context handle through which it issues order
// commands and data subscriptions. Concrete strategies live outside the
// core.
package strategy

import (
	"github.com/forgequant/backtestcore/core/event"
	"github.com/forgequant/backtestcore/core/id"
	"github.com/forgequant/backtestcore/model/data"
)

// ═══════════════════════════════════════════════════════════════════════════════
// STRATEGY INTERFACE - callback surface driven by the engine
// ═══════════════════════════════════════════════════════════════════════════════

// Actor is the minimal lifecycle participant: it is started before any
// data flows and stopped after the last event. Actors do not trade; a
// component needing order commands implements Strategy instead.
type Actor interface {
	ActorID() id.ActorID
	OnStart()
	OnStop()
	OnReset()
}

// Strategy receives data and order/position event callbacks and issues
// commands through the Context it was started with. All callbacks are
// invoked synchronously on the event-loop thread; a strategy must not
// retain engine objects across ticks other than by identifier.
type Strategy interface {
	StrategyID() id.StrategyID

	OnStart(ctx *Context)
	OnStop(ctx *Context)
	OnReset()

	OnBar(bar data.Bar)
	OnQuoteTick(q data.QuoteTick)
	OnTradeTick(t data.TradeTick)

	OnOrderSubmitted(ev event.OrderSubmitted)
	OnOrderAccepted(ev event.OrderAccepted)
	OnOrderRejected(ev event.OrderRejected)
	OnOrderDenied(ev event.OrderDenied)
	OnOrderCanceled(ev event.OrderCanceled)
	OnOrderExpired(ev event.OrderExpired)
	OnOrderFilled(ev event.OrderFilled)
	OnOrderTriggered(ev event.OrderTriggered)

	OnPositionOpened(ev event.PositionOpened)
	OnPositionChanged(ev event.PositionChanged)
	OnPositionClosed(ev event.PositionClosed)
}

// Base provides no-op implementations of every Strategy callback so
// concrete strategies embed it and override only what they use.
type Base struct{}

func (Base) OnStart(ctx *Context) {}
func (Base) OnStop(ctx *Context)  {}
func (Base) OnReset()             {}

func (Base) OnBar(bar data.Bar)           {}
func (Base) OnQuoteTick(q data.QuoteTick) {}
func (Base) OnTradeTick(t data.TradeTick) {}

func (Base) OnOrderSubmitted(ev event.OrderSubmitted) {}
func (Base) OnOrderAccepted(ev event.OrderAccepted)   {}
func (Base) OnOrderRejected(ev event.OrderRejected)   {}
func (Base) OnOrderDenied(ev event.OrderDenied)       {}
func (Base) OnOrderCanceled(ev event.OrderCanceled)   {}
func (Base) OnOrderExpired(ev event.OrderExpired)     {}
func (Base) OnOrderFilled(ev event.OrderFilled)       {}
func (Base) OnOrderTriggered(ev event.OrderTriggered) {}

func (Base) OnPositionOpened(ev event.PositionOpened)   {}
func (Base) OnPositionChanged(ev event.PositionChanged) {}
func (Base) OnPositionClosed(ev event.PositionClosed)   {}
