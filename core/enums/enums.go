// Package enums holds every closed-set tag type the core depends on:
// order sides/types/status, time-in-force, liquidity/aggressor sides,
// contingency kinds, account/oms types, and the static order-status
// transition table.
package enums

type OrderSide uint8

const (
	Buy OrderSide = iota
	Sell
)

func (s OrderSide) String() string {
	if s == Buy {
		return "BUY"
	}
	return "SELL"
}

type OrderType uint8

const (
	Market OrderType = iota
	Limit
	StopMarket
	StopLimit
	MarketIfTouched
	LimitIfTouched
	TrailingStopMarket
	TrailingStopLimit
)

func (t OrderType) String() string {
	switch t {
	case Market:
		return "MARKET"
	case Limit:
		return "LIMIT"
	case StopMarket:
		return "STOP_MARKET"
	case StopLimit:
		return "STOP_LIMIT"
	case MarketIfTouched:
		return "MARKET_IF_TOUCHED"
	case LimitIfTouched:
		return "LIMIT_IF_TOUCHED"
	case TrailingStopMarket:
		return "TRAILING_STOP_MARKET"
	case TrailingStopLimit:
		return "TRAILING_STOP_LIMIT"
	default:
		return "UNKNOWN"
	}
}

// IsStopOrMIT reports whether an order of this type parks awaiting a
// trigger before it is eligible to match (stop-market/MIT) or becomes a
// resting limit (stop-limit/LIT).
func (t OrderType) IsStopOrMIT() bool {
	switch t {
	case StopMarket, StopLimit, MarketIfTouched, LimitIfTouched:
		return true
	default:
		return false
	}
}

func (t OrderType) IsTrailing() bool {
	return t == TrailingStopMarket || t == TrailingStopLimit
}

// HasTriggerPrice reports whether this order kind carries a trigger_price.
func (t OrderType) HasTriggerPrice() bool {
	switch t {
	case StopMarket, StopLimit, MarketIfTouched, LimitIfTouched:
		return true
	default:
		return false
	}
}

// HasLimitPrice reports whether this order kind carries a resting price.
func (t OrderType) HasLimitPrice() bool {
	switch t {
	case Limit, StopLimit, LimitIfTouched:
		return true
	default:
		return false
	}
}

type TimeInForce uint8

const (
	GTC TimeInForce = iota
	GTD
	DAY
	IOC
	FOK
)

func (tif TimeInForce) String() string {
	switch tif {
	case GTC:
		return "GTC"
	case GTD:
		return "GTD"
	case DAY:
		return "DAY"
	case IOC:
		return "IOC"
	case FOK:
		return "FOK"
	default:
		return "UNKNOWN"
	}
}

// OrderStatus is one of the twelve FSM states an Order can occupy.
type OrderStatus uint8

const (
	Initialized OrderStatus = iota
	Denied
	Submitted
	Accepted
	Rejected
	Canceled
	Expired
	Triggered
	PendingUpdate
	PendingCancel
	PartiallyFilled
	Filled
)

var statusNames = map[OrderStatus]string{
	Initialized:     "INITIALIZED",
	Denied:          "DENIED",
	Submitted:       "SUBMITTED",
	Accepted:        "ACCEPTED",
	Rejected:        "REJECTED",
	Canceled:        "CANCELED",
	Expired:         "EXPIRED",
	Triggered:       "TRIGGERED",
	PendingUpdate:   "PENDING_UPDATE",
	PendingCancel:   "PENDING_CANCEL",
	PartiallyFilled: "PARTIALLY_FILLED",
	Filled:          "FILLED",
}

func (s OrderStatus) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return "UNKNOWN"
}

// IsOpen matches spec's is_open predicate.
func (s OrderStatus) IsOpen() bool {
	switch s {
	case Accepted, Triggered, PendingUpdate, PendingCancel, PartiallyFilled:
		return true
	default:
		return false
	}
}

// IsClosed matches spec's is_closed predicate (terminal states).
func (s OrderStatus) IsClosed() bool {
	switch s {
	case Denied, Rejected, Canceled, Expired, Filled:
		return true
	default:
		return false
	}
}

// OrderStatusTransitions is the static transition table from spec §4.3,
// verified identical to original_source/nautilus_full/core/enums.py's
// ORDER_STATUS_TRANSITIONS.
var OrderStatusTransitions = map[OrderStatus]map[OrderStatus]bool{
	Initialized:     set(Denied, Submitted),
	Submitted:       set(Accepted, Rejected, Canceled),
	Accepted:        set(Canceled, Expired, Triggered, PendingUpdate, PendingCancel, PartiallyFilled, Filled),
	Triggered:       set(Canceled, Expired, PendingUpdate, PendingCancel, PartiallyFilled, Filled),
	PendingUpdate:   set(Accepted, Canceled, Expired, Triggered, PartiallyFilled, Filled),
	PendingCancel:   set(Canceled, Accepted, PartiallyFilled, Filled),
	PartiallyFilled: set(Canceled, Expired, PendingUpdate, PendingCancel, PartiallyFilled, Filled),
}

func set(statuses ...OrderStatus) map[OrderStatus]bool {
	m := make(map[OrderStatus]bool, len(statuses))
	for _, s := range statuses {
		m[s] = true
	}
	return m
}

// CanTransition reports whether from->to is a legal FSM edge.
func CanTransition(from, to OrderStatus) bool {
	return OrderStatusTransitions[from][to]
}

type ContingencyType uint8

const (
	NoContingency ContingencyType = iota
	OCO
	OTO
	OUO
)

type LiquiditySide uint8

const (
	Maker LiquiditySide = iota
	Taker
)

func (l LiquiditySide) String() string {
	if l == Maker {
		return "MAKER"
	}
	return "TAKER"
}

type AggressorSide uint8

const (
	AggressorNone AggressorSide = iota
	AggressorBuyer
	AggressorSeller
)

type BookAction uint8

const (
	BookAdd BookAction = iota
	BookUpdate
	BookDelete
	BookClear
)

type OmsType uint8

const (
	Hedging OmsType = iota
	Netting
)

type AccountType uint8

const (
	Cash AccountType = iota
	Margin
)

type TradingState uint8

const (
	Active TradingState = iota
	Halted
	Reducing
)

type AssetClass uint8

const (
	AssetEquity AssetClass = iota
	AssetCrypto
	AssetFX
	AssetCommodity
	AssetIndex
)

type InstrumentClass uint8

const (
	InstrumentSpot InstrumentClass = iota
	InstrumentPerpetual
	InstrumentFuture
	InstrumentOption
	InstrumentCFD
)

// TrailingOffsetType selects how a trailing order's offset is interpreted.
type TrailingOffsetType uint8

const (
	OffsetPrice TrailingOffsetType = iota
	OffsetBasisPoints
	OffsetTicks
)

type BarAggregation uint8

const (
	AggMinute BarAggregation = iota
	AggHour
	AggDay
	AggTick
	AggVolume
)

func (a BarAggregation) String() string {
	switch a {
	case AggMinute:
		return "MINUTE"
	case AggHour:
		return "HOUR"
	case AggDay:
		return "DAY"
	case AggTick:
		return "TICK"
	case AggVolume:
		return "VOLUME"
	default:
		return "UNKNOWN"
	}
}

type PriceType uint8

const (
	PriceLast PriceType = iota
	PriceBid
	PriceAsk
	PriceMid
)

func (p PriceType) String() string {
	switch p {
	case PriceLast:
		return "LAST"
	case PriceBid:
		return "BID"
	case PriceAsk:
		return "ASK"
	case PriceMid:
		return "MID"
	default:
		return "UNKNOWN"
	}
}
