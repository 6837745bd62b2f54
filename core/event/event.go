// Package event defines the immutable event structs that flow through
// the message bus: order lifecycle events, position lifecycle events,
// and account state snapshots. Every event carries TsEvent/TsInit
// nanosecond timestamps. EventID is a UUID set by NewOrderInitialized;
// events built as struct literals leave it empty.
package event

import (
	"github.com/google/uuid"

	"github.com/forgequant/backtestcore/core/enums"
	"github.com/forgequant/backtestcore/core/id"
	"github.com/forgequant/backtestcore/core/money"
)

func newID() string { return uuid.NewString() }

// Base carries the timestamp pair every event shares.
type Base struct {
	TsEvent int64
	TsInit  int64
	EventID string
}

func newBase(tsEvent, tsInit int64) Base {
	return Base{TsEvent: tsEvent, TsInit: tsInit, EventID: newID()}
}

// ── Order events ────────────────────────────────────────────────────────

type OrderInitialized struct {
	Base
	TraderID           id.TraderID
	StrategyID         id.StrategyID
	InstrumentID       id.InstrumentID
	ClientOrderID      id.ClientOrderID
	Side               enums.OrderSide
	Type               enums.OrderType
	Quantity           money.Quantity
	TimeInForce        enums.TimeInForce
	PostOnly           bool
	ReduceOnly         bool
	Price              *money.Price
	TriggerPrice       *money.Price
	LimitOffset        *money.Price
	TrailingOffset     *money.Price
	TrailingOffsetType enums.TrailingOffsetType
	ExpireTimeNs       *int64
	DisplayQty         *money.Quantity
	ContingencyType    enums.ContingencyType
	OrderListID        *id.OrderListID
	LinkedOrderIDs     []id.ClientOrderID
	ParentOrderID      *id.ClientOrderID
	Tags               []string
}

func NewOrderInitialized(tsEvent, tsInit int64) OrderInitialized {
	return OrderInitialized{Base: newBase(tsEvent, tsInit)}
}

type OrderDenied struct {
	Base
	TraderID      id.TraderID
	StrategyID    id.StrategyID
	InstrumentID  id.InstrumentID
	ClientOrderID id.ClientOrderID
	Reason        string
}

type OrderSubmitted struct {
	Base
	TraderID      id.TraderID
	StrategyID    id.StrategyID
	InstrumentID  id.InstrumentID
	ClientOrderID id.ClientOrderID
	AccountID     id.AccountID
}

type OrderAccepted struct {
	Base
	TraderID      id.TraderID
	StrategyID    id.StrategyID
	InstrumentID  id.InstrumentID
	ClientOrderID id.ClientOrderID
	VenueOrderID  id.VenueOrderID
	AccountID     id.AccountID
}

type OrderRejected struct {
	Base
	TraderID      id.TraderID
	StrategyID    id.StrategyID
	InstrumentID  id.InstrumentID
	ClientOrderID id.ClientOrderID
	AccountID     id.AccountID
	Reason        string
}

type OrderCanceled struct {
	Base
	TraderID      id.TraderID
	StrategyID    id.StrategyID
	InstrumentID  id.InstrumentID
	ClientOrderID id.ClientOrderID
	VenueOrderID  *id.VenueOrderID
	AccountID     id.AccountID
}

type OrderExpired struct {
	Base
	TraderID      id.TraderID
	StrategyID    id.StrategyID
	InstrumentID  id.InstrumentID
	ClientOrderID id.ClientOrderID
	VenueOrderID  *id.VenueOrderID
	AccountID     id.AccountID
}

// OrderTriggered fires when a stop or MIT order's trigger price is hit.
type OrderTriggered struct {
	Base
	TraderID      id.TraderID
	StrategyID    id.StrategyID
	InstrumentID  id.InstrumentID
	ClientOrderID id.ClientOrderID
	VenueOrderID  *id.VenueOrderID
	AccountID     id.AccountID
}

type OrderPendingUpdate struct {
	Base
	TraderID      id.TraderID
	StrategyID    id.StrategyID
	InstrumentID  id.InstrumentID
	ClientOrderID id.ClientOrderID
	VenueOrderID  *id.VenueOrderID
	AccountID     id.AccountID
}

type OrderPendingCancel struct {
	Base
	TraderID      id.TraderID
	StrategyID    id.StrategyID
	InstrumentID  id.InstrumentID
	ClientOrderID id.ClientOrderID
	VenueOrderID  *id.VenueOrderID
	AccountID     id.AccountID
}

type OrderUpdated struct {
	Base
	TraderID      id.TraderID
	StrategyID    id.StrategyID
	InstrumentID  id.InstrumentID
	ClientOrderID id.ClientOrderID
	VenueOrderID  *id.VenueOrderID
	AccountID     id.AccountID
	Quantity      *money.Quantity
	Price         *money.Price
	TriggerPrice  *money.Price
}

type OrderFilled struct {
	Base
	TraderID      id.TraderID
	StrategyID    id.StrategyID
	InstrumentID  id.InstrumentID
	ClientOrderID id.ClientOrderID
	VenueOrderID  id.VenueOrderID
	AccountID     id.AccountID
	TradeID       id.TradeID
	Side          enums.OrderSide
	Type          enums.OrderType
	LastQty       money.Quantity
	LastPx        money.Price
	Currency      money.Currency
	Commission    money.Money
	LiquiditySide enums.LiquiditySide
	PositionID    *id.PositionID
}

// ── Position events ────────────────────────────────────────────────────

type PositionOpened struct {
	Base
	TraderID       id.TraderID
	StrategyID     id.StrategyID
	InstrumentID   id.InstrumentID
	PositionID     id.PositionID
	AccountID      id.AccountID
	OpeningOrderID id.ClientOrderID
	EntrySide      enums.OrderSide
	EntryPrice     money.Price
	Quantity       money.Quantity
	Currency       money.Currency
}

type PositionChanged struct {
	Base
	TraderID      id.TraderID
	StrategyID    id.StrategyID
	InstrumentID  id.InstrumentID
	PositionID    id.PositionID
	AccountID     id.AccountID
	Quantity      money.Quantity
	RealizedPnl   money.Money
	UnrealizedPnl money.Money
}

type PositionClosed struct {
	Base
	TraderID       id.TraderID
	StrategyID     id.StrategyID
	InstrumentID   id.InstrumentID
	PositionID     id.PositionID
	AccountID      id.AccountID
	ClosingOrderID id.ClientOrderID
	RealizedPnl    money.Money
	Currency       money.Currency
}

// ── Account events ─────────────────────────────────────────────────────

type AccountState struct {
	Base
	AccountID    id.AccountID
	AccountType  enums.AccountType
	BaseCurrency *money.Currency
	Balances     []money.AccountBalance
	Margins      []money.MarginBalance
	IsReported   bool
}
