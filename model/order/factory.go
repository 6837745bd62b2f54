package order

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/forgequant/backtestcore/core/enums"
	"github.com/forgequant/backtestcore/core/event"
	"github.com/forgequant/backtestcore/core/id"
	"github.com/forgequant/backtestcore/core/money"
)

// Factory constructs orders and assigns sequential client order IDs for
// a single trader/strategy pair, mirroring each strategy owning its own
// OrderFactory instance.
type Factory struct {
	traderID   id.TraderID
	strategyID id.StrategyID
	count      int
}

// NewFactory constructs a Factory seeded for traderID/strategyID.
func NewFactory(traderID id.TraderID, strategyID id.StrategyID) *Factory {
	return &Factory{traderID: traderID, strategyID: strategyID}
}

func (f *Factory) nextID() id.ClientOrderID {
	f.count++
	return id.ClientOrderID(fmt.Sprintf("O-%s-%s-%d", f.traderID, f.strategyID, f.count))
}

// Params bundles every optional field the underlying OrderInitialized
// event can carry; zero values mean "not set" for pointer fields.
type Params struct {
	Price              *money.Price
	TriggerPrice       *money.Price
	TrailingOffset     *decimal.Decimal
	TrailingOffsetType enums.TrailingOffsetType
	LimitOffset        *decimal.Decimal
	ExpireTimeNs       *int64
	PostOnly           bool
	ReduceOnly         bool
	DisplayQty         *money.Quantity
	ContingencyType    enums.ContingencyType
	OrderListID        *id.OrderListID
	LinkedOrderIDs     []id.ClientOrderID
	ParentOrderID      *id.ClientOrderID
	Tags               []string
	ClientOrderID      id.ClientOrderID
}

func (f *Factory) baseInit(instrumentID id.InstrumentID, side enums.OrderSide, typ enums.OrderType, qty money.Quantity, tif enums.TimeInForce, tsInit int64, p Params) event.OrderInitialized {
	cid := p.ClientOrderID
	if cid == "" {
		cid = f.nextID()
	}
	// Offsets are price-scale values; quantize at the offset's own scale
	// so construction never loses digits (the trailing ratchet rounds
	// the derived trigger at the instrument's price precision later).
	var trailingOffsetPrice, limitOffsetPrice *money.Price
	if p.TrailingOffset != nil {
		tp := money.NewPrice(*p.TrailingOffset, offsetPrecision(*p.TrailingOffset))
		trailingOffsetPrice = &tp
	}
	if p.LimitOffset != nil {
		lp := money.NewPrice(*p.LimitOffset, offsetPrecision(*p.LimitOffset))
		limitOffsetPrice = &lp
	}
	init := event.NewOrderInitialized(tsInit, tsInit)
	init.TraderID = f.traderID
	init.StrategyID = f.strategyID
	init.InstrumentID = instrumentID
	init.ClientOrderID = cid
	init.Side = side
	init.Type = typ
	init.Quantity = qty
	init.TimeInForce = tif
	init.PostOnly = p.PostOnly
	init.ReduceOnly = p.ReduceOnly
	init.Price = p.Price
	init.TriggerPrice = p.TriggerPrice
	init.TrailingOffset = trailingOffsetPrice
	init.TrailingOffsetType = p.TrailingOffsetType
	init.LimitOffset = limitOffsetPrice
	init.ExpireTimeNs = p.ExpireTimeNs
	init.DisplayQty = p.DisplayQty
	init.ContingencyType = p.ContingencyType
	init.OrderListID = p.OrderListID
	init.LinkedOrderIDs = p.LinkedOrderIDs
	init.ParentOrderID = p.ParentOrderID
	init.Tags = p.Tags
	return init
}

// offsetPrecision is the number of fractional digits an offset value
// actually carries, so quantizing at it is exact.
func offsetPrecision(d decimal.Decimal) int32 {
	if exp := d.Exponent(); exp < 0 {
		return -exp
	}
	return 0
}

// Market creates a new market order.
func (f *Factory) Market(instrumentID id.InstrumentID, side enums.OrderSide, qty money.Quantity, tif enums.TimeInForce, tsInit int64, p Params) *Order {
	init := f.baseInit(instrumentID, side, enums.Market, qty, tif, tsInit, p)
	return NewFromInitialized(init)
}

// Limit creates a new limit order.
func (f *Factory) Limit(instrumentID id.InstrumentID, side enums.OrderSide, qty money.Quantity, price money.Price, tif enums.TimeInForce, tsInit int64, p Params) *Order {
	p.Price = &price
	init := f.baseInit(instrumentID, side, enums.Limit, qty, tif, tsInit, p)
	return NewFromInitialized(init)
}

// StopMarket creates a new stop-market order.
func (f *Factory) StopMarket(instrumentID id.InstrumentID, side enums.OrderSide, qty money.Quantity, triggerPrice money.Price, tif enums.TimeInForce, tsInit int64, p Params) *Order {
	p.TriggerPrice = &triggerPrice
	init := f.baseInit(instrumentID, side, enums.StopMarket, qty, tif, tsInit, p)
	return NewFromInitialized(init)
}

// StopLimit creates a new stop-limit order.
func (f *Factory) StopLimit(instrumentID id.InstrumentID, side enums.OrderSide, qty money.Quantity, price, triggerPrice money.Price, tif enums.TimeInForce, tsInit int64, p Params) *Order {
	p.Price = &price
	p.TriggerPrice = &triggerPrice
	init := f.baseInit(instrumentID, side, enums.StopLimit, qty, tif, tsInit, p)
	return NewFromInitialized(init)
}

// MarketIfTouched creates a new market-if-touched order.
func (f *Factory) MarketIfTouched(instrumentID id.InstrumentID, side enums.OrderSide, qty money.Quantity, triggerPrice money.Price, tif enums.TimeInForce, tsInit int64, p Params) *Order {
	p.TriggerPrice = &triggerPrice
	init := f.baseInit(instrumentID, side, enums.MarketIfTouched, qty, tif, tsInit, p)
	return NewFromInitialized(init)
}

// LimitIfTouched creates a new limit-if-touched order.
func (f *Factory) LimitIfTouched(instrumentID id.InstrumentID, side enums.OrderSide, qty money.Quantity, price, triggerPrice money.Price, tif enums.TimeInForce, tsInit int64, p Params) *Order {
	p.Price = &price
	p.TriggerPrice = &triggerPrice
	init := f.baseInit(instrumentID, side, enums.LimitIfTouched, qty, tif, tsInit, p)
	return NewFromInitialized(init)
}

// TrailingStopMarket creates a new trailing-stop-market order.
func (f *Factory) TrailingStopMarket(instrumentID id.InstrumentID, side enums.OrderSide, qty money.Quantity, trailingOffset decimal.Decimal, offsetType enums.TrailingOffsetType, triggerPrice *money.Price, tif enums.TimeInForce, tsInit int64, p Params) *Order {
	p.TrailingOffset = &trailingOffset
	p.TrailingOffsetType = offsetType
	p.TriggerPrice = triggerPrice
	init := f.baseInit(instrumentID, side, enums.TrailingStopMarket, qty, tif, tsInit, p)
	return NewFromInitialized(init)
}

// TrailingStopLimit creates a new trailing-stop-limit order.
func (f *Factory) TrailingStopLimit(instrumentID id.InstrumentID, side enums.OrderSide, qty money.Quantity, trailingOffset, limitOffset decimal.Decimal, offsetType enums.TrailingOffsetType, triggerPrice, price *money.Price, tif enums.TimeInForce, tsInit int64, p Params) *Order {
	p.TrailingOffset = &trailingOffset
	p.LimitOffset = &limitOffset
	p.TrailingOffsetType = offsetType
	p.TriggerPrice = triggerPrice
	p.Price = price
	init := f.baseInit(instrumentID, side, enums.TrailingStopLimit, qty, tif, tsInit, p)
	return NewFromInitialized(init)
}

// OCO links two orders as one-cancels-other, mutating both orders'
// contingency metadata in place, and returns the linked pair.
func (f *Factory) OCO(first, second *Order) (*Order, *Order) {
	listID := id.OrderListID(fmt.Sprintf("OL-%s", uuid.NewString()[:8]))
	first.ContingencyType = enums.OCO
	first.OrderListID = &listID
	first.LinkedOrderIDs = []id.ClientOrderID{second.ClientOrderID}

	second.ContingencyType = enums.OCO
	second.OrderListID = &listID
	second.LinkedOrderIDs = []id.ClientOrderID{first.ClientOrderID}

	return first, second
}

// Reset zeroes the client-order-ID counter.
func (f *Factory) Reset() { f.count = 0 }
