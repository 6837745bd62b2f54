package data

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/forgequant/backtestcore/core/enums"
	"github.com/forgequant/backtestcore/core/id"
	"github.com/forgequant/backtestcore/core/money"
)

// BookType selects the depth representation a venue publishes.
type BookType uint8

const (
	BookL1MBP BookType = iota
	BookL2MBP
	BookL3MBO
)

// BookOrder is a single resting order at a price level (L3 detail; the
// aggregated OrderBook only needs its price/size/side).
type BookOrder struct {
	OrderID string
	Price   money.Price
	Size    money.Quantity
	Side    enums.OrderSide
}

func (o BookOrder) String() string {
	return fmt.Sprintf("BookOrder(%s %s@%s)", o.Side, o.Size, o.Price)
}

// OrderBookDelta is a single incremental update to a book.
type OrderBookDelta struct {
	InstrumentID id.InstrumentID
	Action       enums.BookAction
	Order        *BookOrder // nil when Action == BookClear
	Flags        int
	Sequence     int64
	TsEvent      int64
	TsInit       int64
}

func (d OrderBookDelta) String() string {
	return fmt.Sprintf("OrderBookDelta(%s %d %v)", d.InstrumentID, d.Action, d.Order)
}

// OrderBookDeltas batches deltas belonging to a single snapshot/update.
type OrderBookDeltas struct {
	InstrumentID id.InstrumentID
	Deltas       []OrderBookDelta
	TsEvent      int64
	TsInit       int64
}

// level is a single aggregated price/size pair.
type level struct {
	price decimal.Decimal
	size  decimal.Decimal
}

// OrderBook is a full L2 book aggregated by price level. Bids are kept
// descending (best first), asks ascending (best first). It serves both
// real deltas (OrderBookDelta) and synthetic updates derived from a
// QuoteTick or Bar for venues that only replay aggregated data.
type OrderBook struct {
	InstrumentID id.InstrumentID
	BookType     BookType
	Sequence     int64
	TsLast       int64

	// BarSpreadPct overrides the default synthetic spread applied when
	// rebuilding the book from a bar; zero means use the default.
	BarSpreadPct decimal.Decimal

	bids []level // descending by price
	asks []level // ascending by price
}

// NewOrderBook constructs an empty book for instrumentID.
func NewOrderBook(instrumentID id.InstrumentID, bookType BookType) *OrderBook {
	return &OrderBook{InstrumentID: instrumentID, BookType: bookType}
}

// ApplyDelta mutates the book per a single incremental update.
func (b *OrderBook) ApplyDelta(d OrderBookDelta) {
	if d.Action == enums.BookClear {
		b.Clear()
		return
	}
	if d.Order == nil {
		return
	}
	px := d.Order.Price.Value
	sz := d.Order.Size.Value
	side := d.Order.Side

	switch d.Action {
	case enums.BookAdd:
		b.updateLevel(side, px, sz, true)
	case enums.BookUpdate:
		b.updateLevel(side, px, sz, false)
	case enums.BookDelete:
		b.deleteLevel(side, px)
	}
	b.Sequence = d.Sequence
	b.TsLast = d.TsEvent
}

// ApplyDeltas applies a batch in order.
func (b *OrderBook) ApplyDeltas(ds OrderBookDeltas) {
	for _, d := range ds.Deltas {
		b.ApplyDelta(d)
	}
}

// UpdateFromQuote replaces the book with a synthetic L1 snapshot derived
// from a quote tick.
func (b *OrderBook) UpdateFromQuote(q QuoteTick) {
	b.Clear()
	b.updateLevel(enums.Buy, q.BidPrice.Value, q.BidSize.Value, false)
	b.updateLevel(enums.Sell, q.AskPrice.Value, q.AskSize.Value, false)
	b.TsLast = q.TsEvent
}

var defaultBarSpreadPct = decimal.New(1, -4) // 0.0001
var syntheticBookSize = decimal.New(1, 9)    // 1e9, never "runs out" of book

// UpdateFromBar replaces the book with a synthetic mid-price-derived
// snapshot around a bar's close.
func (b *OrderBook) UpdateFromBar(bar Bar) {
	b.Clear()
	mid := bar.Close.Value
	spreadPct := b.BarSpreadPct
	if spreadPct.IsZero() {
		spreadPct = defaultBarSpreadPct
	}
	halfSpread := mid.Mul(spreadPct).Div(decimal.NewFromInt(2))
	bidPx := mid.Sub(halfSpread)
	askPx := mid.Add(halfSpread)
	b.updateLevel(enums.Buy, bidPx, syntheticBookSize, false)
	b.updateLevel(enums.Sell, askPx, syntheticBookSize, false)
	b.TsLast = bar.TsEvent
}

// Clear empties both sides of the book.
func (b *OrderBook) Clear() {
	b.bids = nil
	b.asks = nil
}

// BestBidPrice returns the highest bid, or false if the book is empty on that side.
func (b *OrderBook) BestBidPrice() (decimal.Decimal, bool) {
	if len(b.bids) == 0 {
		return decimal.Zero, false
	}
	return b.bids[0].price, true
}

// BestAskPrice returns the lowest ask, or false if the book is empty on that side.
func (b *OrderBook) BestAskPrice() (decimal.Decimal, bool) {
	if len(b.asks) == 0 {
		return decimal.Zero, false
	}
	return b.asks[0].price, true
}

// BestBidSize returns the size resting at the best bid.
func (b *OrderBook) BestBidSize() (decimal.Decimal, bool) {
	if len(b.bids) == 0 {
		return decimal.Zero, false
	}
	return b.bids[0].size, true
}

// BestAskSize returns the size resting at the best ask.
func (b *OrderBook) BestAskSize() (decimal.Decimal, bool) {
	if len(b.asks) == 0 {
		return decimal.Zero, false
	}
	return b.asks[0].size, true
}

// Spread returns ask-bid, or false if either side is empty.
func (b *OrderBook) Spread() (decimal.Decimal, bool) {
	bp, ok1 := b.BestBidPrice()
	ap, ok2 := b.BestAskPrice()
	if !ok1 || !ok2 {
		return decimal.Zero, false
	}
	return ap.Sub(bp), true
}

// MidPrice returns (bid+ask)/2, or false if either side is empty.
func (b *OrderBook) MidPrice() (decimal.Decimal, bool) {
	bp, ok1 := b.BestBidPrice()
	ap, ok2 := b.BestAskPrice()
	if !ok1 || !ok2 {
		return decimal.Zero, false
	}
	return bp.Add(ap).Div(decimal.NewFromInt(2)), true
}

// Level is a single exported (price, size) pair handed back to callers
// walking the book; OrderBook keeps its internal representation private.
type Level struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

func exportLevels(levels []level, depth int) []Level {
	if depth <= 0 || depth > len(levels) {
		depth = len(levels)
	}
	out := make([]Level, depth)
	for i := 0; i < depth; i++ {
		out[i] = Level{Price: levels[i].price, Size: levels[i].size}
	}
	return out
}

// Bids returns the top depth bid levels, descending. depth<=0 returns all.
func (b *OrderBook) Bids(depth int) []Level {
	return exportLevels(b.bids, depth)
}

// Asks returns the top depth ask levels, ascending. depth<=0 returns all.
func (b *OrderBook) Asks(depth int) []Level {
	return exportLevels(b.asks, depth)
}

// VolumeAtPrice returns the size resting at an exact price on side.
func (b *OrderBook) VolumeAtPrice(side enums.OrderSide, price decimal.Decimal) decimal.Decimal {
	levels := b.asks
	if side == enums.Buy {
		levels = b.bids
	}
	for _, lv := range levels {
		if lv.price.Equal(price) {
			return lv.size
		}
	}
	return decimal.Zero
}

// Fill is a single (price, filled quantity) pair produced by sweeping the book.
type Fill struct {
	Price decimal.Decimal
	Qty   decimal.Decimal
}

// SimulateMarketFill walks the book opposite to side and returns the
// (price, qty) fills a market order of quantity would receive, without
// mutating book state. A buy sweeps asks ascending; a sell sweeps bids
// descending.
func (b *OrderBook) SimulateMarketFill(side enums.OrderSide, quantity decimal.Decimal) []Fill {
	var levels []level
	if side == enums.Buy {
		levels = b.asks
	} else {
		levels = b.bids
	}

	var fills []Fill
	remaining := quantity
	for _, lv := range levels {
		if remaining.Sign() <= 0 {
			break
		}
		fillQty := remaining
		if lv.size.LessThan(fillQty) {
			fillQty = lv.size
		}
		fills = append(fills, Fill{Price: lv.price, Qty: fillQty})
		remaining = remaining.Sub(fillQty)
	}
	return fills
}

func (b *OrderBook) updateLevel(side enums.OrderSide, price, size decimal.Decimal, add bool) {
	if size.Sign() <= 0 {
		b.deleteLevel(side, price)
		return
	}
	if side == enums.Buy {
		b.bids = upsertLevel(b.bids, price, size, add, true)
	} else {
		b.asks = upsertLevel(b.asks, price, size, add, false)
	}
}

// upsertLevel inserts or updates price's size in a slice kept sorted
// (descending when bidSide, ascending otherwise).
func upsertLevel(levels []level, price, size decimal.Decimal, add, bidSide bool) []level {
	less := func(i int) bool {
		if bidSide {
			return levels[i].price.LessThanOrEqual(price)
		}
		return levels[i].price.GreaterThanOrEqual(price)
	}
	idx := sort.Search(len(levels), less)
	if idx < len(levels) && levels[idx].price.Equal(price) {
		if add {
			levels[idx].size = levels[idx].size.Add(size)
		} else {
			levels[idx].size = size
		}
		return levels
	}
	newLevel := level{price: price, size: size}
	levels = append(levels, level{})
	copy(levels[idx+1:], levels[idx:])
	levels[idx] = newLevel
	return levels
}

func (b *OrderBook) deleteLevel(side enums.OrderSide, price decimal.Decimal) {
	if side == enums.Buy {
		b.bids = removeLevel(b.bids, price)
	} else {
		b.asks = removeLevel(b.asks, price)
	}
}

func removeLevel(levels []level, price decimal.Decimal) []level {
	for i, lv := range levels {
		if lv.price.Equal(price) {
			return append(levels[:i], levels[i+1:]...)
		}
	}
	return levels
}

func (b *OrderBook) String() string {
	bp, _ := b.BestBidPrice()
	ap, _ := b.BestAskPrice()
	return fmt.Sprintf("OrderBook(%s bid=%s ask=%s)", b.InstrumentID, bp, ap)
}
