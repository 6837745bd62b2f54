// Package order implements the order FSM: a single Order type carrying
// every order-kind's fields (market/limit/stop/MIT/LIT/trailing), with
// event application driving status transitions through the table in
// core/enums.
package order

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/forgequant/backtestcore/core/enums"
	"github.com/forgequant/backtestcore/core/event"
	"github.com/forgequant/backtestcore/core/id"
	"github.com/forgequant/backtestcore/core/money"
)

// Order is a single order's full lifecycle state: identity, immutable
// spec fields, contingency links, and mutable fill/FSM tracking.
type Order struct {
	ClientOrderID id.ClientOrderID
	InstrumentID  id.InstrumentID
	TraderID      id.TraderID
	StrategyID    id.StrategyID
	VenueOrderID  *id.VenueOrderID

	Side         enums.OrderSide
	Type         enums.OrderType
	Quantity     money.Quantity
	TimeInForce  enums.TimeInForce
	PostOnly     bool
	ReduceOnly   bool
	ExpireTimeNs *int64
	DisplayQty   *money.Quantity
	Tags         []string

	// Resting / trigger prices. Which are meaningful depends on Type.
	Price        *money.Price
	TriggerPrice *money.Price

	// Trailing-order fields (Type == TrailingStopMarket/TrailingStopLimit).
	TrailingOffset     decimal.Decimal
	TrailingOffsetType enums.TrailingOffsetType
	LimitOffset        decimal.Decimal
	extremePrice       *decimal.Decimal
	IsTriggered        bool
	IsActivated        bool

	ContingencyType enums.ContingencyType
	OrderListID     *id.OrderListID
	LinkedOrderIDs  []id.ClientOrderID
	ParentOrderID   *id.ClientOrderID

	Status    enums.OrderStatus
	FilledQty money.Quantity
	LeavesQty money.Quantity
	AvgPx     decimal.Decimal
	Slippage  decimal.Decimal

	PositionID *id.PositionID

	Events []any
	TsInit int64
	TsLast int64
}

// NewFromInitialized builds an Order in the Initialized state from its
// originating event, the way every concrete order type in the original
// is constructed from an OrderInitialized.
func NewFromInitialized(init event.OrderInitialized) *Order {
	o := &Order{
		ClientOrderID:      init.ClientOrderID,
		InstrumentID:       init.InstrumentID,
		TraderID:           init.TraderID,
		StrategyID:         init.StrategyID,
		Side:               init.Side,
		Type:               init.Type,
		Quantity:           init.Quantity,
		TimeInForce:        init.TimeInForce,
		PostOnly:           init.PostOnly,
		ReduceOnly:         init.ReduceOnly,
		ExpireTimeNs:       init.ExpireTimeNs,
		DisplayQty:         init.DisplayQty,
		Tags:               append([]string(nil), init.Tags...),
		Price:              init.Price,
		TriggerPrice:       init.TriggerPrice,
		ContingencyType:    init.ContingencyType,
		OrderListID:        init.OrderListID,
		LinkedOrderIDs:     append([]id.ClientOrderID(nil), init.LinkedOrderIDs...),
		ParentOrderID:      init.ParentOrderID,
		TrailingOffsetType: init.TrailingOffsetType,
		Status:             enums.Initialized,
		FilledQty:          money.NewQuantity(decimal.Zero, init.Quantity.Precision),
		LeavesQty:          money.NewQuantity(init.Quantity.Value, init.Quantity.Precision),
		AvgPx:              decimal.Zero,
		Slippage:           decimal.Zero,
		Events:             []any{init},
		TsInit:             init.TsInit,
		TsLast:             init.TsEvent,
		IsActivated:        init.TriggerPrice == nil,
	}
	if init.TrailingOffset != nil {
		o.TrailingOffset = init.TrailingOffset.Value
	}
	if init.LimitOffset != nil {
		o.LimitOffset = init.LimitOffset.Value
	}
	return o
}

// ── State predicates ─────────────────────────────────────────────────────

func (o *Order) IsOpen() bool            { return o.Status.IsOpen() }
func (o *Order) IsClosed() bool          { return o.Status.IsClosed() }
func (o *Order) IsFilled() bool          { return o.Status == enums.Filled }
func (o *Order) IsPartiallyFilled() bool { return o.Status == enums.PartiallyFilled }
func (o *Order) IsBuy() bool             { return o.Side == enums.Buy }
func (o *Order) IsSell() bool            { return o.Side == enums.Sell }

// IsPassive reports whether the order kind is Limit or StopLimit. Market,
// StopMarket, MIT, LimitIfTouched and the trailing kinds report false.
func (o *Order) IsPassive() bool {
	return o.Type == enums.Limit || o.Type == enums.StopLimit
}

// ── Event application (FSM) ──────────────────────────────────────────────

var eventToStatus = map[string]enums.OrderStatus{
	"OrderDenied":        enums.Denied,
	"OrderSubmitted":     enums.Submitted,
	"OrderAccepted":      enums.Accepted,
	"OrderRejected":      enums.Rejected,
	"OrderCanceled":      enums.Canceled,
	"OrderExpired":       enums.Expired,
	"OrderTriggered":     enums.Triggered,
	"OrderPendingUpdate": enums.PendingUpdate,
	"OrderPendingCancel": enums.PendingCancel,
}

// Apply advances the order's FSM per ev, appending it to the event
// history. It panics on an illegal state transition — callers (the
// execution engine) are expected to only apply events that the matching
// engine itself produced from legal order actions.
func (o *Order) Apply(ev any) {
	switch e := ev.(type) {
	case event.OrderFilled:
		o.applyFilled(e)
	case event.OrderUpdated:
		o.applyUpdated(e)
	case event.OrderAccepted:
		o.transition(enums.Accepted)
		o.VenueOrderID = &e.VenueOrderID
	case event.OrderTriggered:
		o.transition(enums.Triggered)
		if e.VenueOrderID != nil {
			o.VenueOrderID = e.VenueOrderID
		}
	default:
		name := fmt.Sprintf("%T", ev)
		// Strip package qualifier to match the original's event-type keys.
		for i := len(name) - 1; i >= 0; i-- {
			if name[i] == '.' {
				name = name[i+1:]
				break
			}
		}
		status, ok := eventToStatus[name]
		if !ok {
			panic("order: unknown order event type: " + name)
		}
		o.transition(status)
	}
	o.Events = append(o.Events, ev)
	o.TsLast = tsEventOf(ev)
}

func tsEventOf(ev any) int64 {
	switch e := ev.(type) {
	case event.OrderDenied:
		return e.TsEvent
	case event.OrderSubmitted:
		return e.TsEvent
	case event.OrderAccepted:
		return e.TsEvent
	case event.OrderRejected:
		return e.TsEvent
	case event.OrderCanceled:
		return e.TsEvent
	case event.OrderExpired:
		return e.TsEvent
	case event.OrderTriggered:
		return e.TsEvent
	case event.OrderPendingUpdate:
		return e.TsEvent
	case event.OrderPendingCancel:
		return e.TsEvent
	case event.OrderUpdated:
		return e.TsEvent
	case event.OrderFilled:
		return e.TsEvent
	default:
		return 0
	}
}

func (o *Order) applyFilled(e event.OrderFilled) {
	fillQty := e.LastQty.Value
	fillPx := e.LastPx.Value
	prevFilled := o.FilledQty.Value
	newFilled := prevFilled.Add(fillQty)

	if newFilled.Sign() > 0 {
		o.AvgPx = o.AvgPx.Mul(prevFilled).Add(fillPx.Mul(fillQty)).Div(newFilled)
	}

	o.FilledQty = money.NewQuantity(newFilled, o.Quantity.Precision)
	remaining := o.Quantity.Value.Sub(newFilled)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}
	o.LeavesQty = money.NewQuantity(remaining, o.Quantity.Precision)

	vid := e.VenueOrderID
	o.VenueOrderID = &vid
	if e.PositionID != nil {
		o.PositionID = e.PositionID
	}

	if o.LeavesQty.IsZero() {
		o.transition(enums.Filled)
	} else {
		o.transition(enums.PartiallyFilled)
	}
}

func (o *Order) applyUpdated(e event.OrderUpdated) {
	if e.Quantity != nil {
		o.Quantity = *e.Quantity
		remaining := e.Quantity.Value.Sub(o.FilledQty.Value)
		if remaining.IsNegative() {
			remaining = decimal.Zero
		}
		o.LeavesQty = money.NewQuantity(remaining, e.Quantity.Precision)
	}
	if e.Price != nil {
		o.Price = e.Price
	}
	if e.TriggerPrice != nil {
		o.TriggerPrice = e.TriggerPrice
	}
	o.transition(enums.Accepted)
}

func (o *Order) transition(to enums.OrderStatus) {
	if !enums.CanTransition(o.Status, to) {
		panic(fmt.Sprintf("order: invalid state transition %s -> %s for order %s", o.Status, to, o.ClientOrderID))
	}
	o.Status = to
}

func (o *Order) String() string {
	return fmt.Sprintf("Order(id=%s, %s %s %s, tif=%s, status=%s)",
		o.ClientOrderID, o.Side, o.Quantity, o.InstrumentID, o.TimeInForce, o.Status)
}
