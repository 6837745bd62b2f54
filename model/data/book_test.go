package data

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/forgequant/backtestcore/core/enums"
	"github.com/forgequant/backtestcore/core/id"
	"github.com/forgequant/backtestcore/core/money"
)

var bookInstrument = id.NewInstrumentID("AAPL", "SIM")

func addDelta(side enums.OrderSide, px, size string, seq int64) OrderBookDelta {
	p, _ := money.PriceFromString(px, 2)
	s, _ := money.QuantityFromString(size, 0)
	return OrderBookDelta{
		InstrumentID: bookInstrument,
		Action:       enums.BookAdd,
		Order:        &BookOrder{Price: p, Size: s, Side: side},
		Sequence:     seq,
		TsEvent:      seq,
		TsInit:       seq,
	}
}

func TestLevelsStaySorted(t *testing.T) {
	b := NewOrderBook(bookInstrument, BookL2MBP)
	b.ApplyDelta(addDelta(enums.Buy, "99", "5", 1))
	b.ApplyDelta(addDelta(enums.Buy, "100", "3", 2))
	b.ApplyDelta(addDelta(enums.Buy, "98", "7", 3))
	b.ApplyDelta(addDelta(enums.Sell, "102", "4", 4))
	b.ApplyDelta(addDelta(enums.Sell, "101", "6", 5))

	bids := b.Bids(0)
	if len(bids) != 3 || bids[0].Price.String() != "100" || bids[2].Price.String() != "98" {
		t.Errorf("bids not descending: %+v", bids)
	}
	asks := b.Asks(0)
	if len(asks) != 2 || asks[0].Price.String() != "101" {
		t.Errorf("asks not ascending: %+v", asks)
	}

	bid, _ := b.BestBidPrice()
	ask, _ := b.BestAskPrice()
	if !bid.LessThan(ask) {
		t.Errorf("crossed book: bid %s >= ask %s", bid, ask)
	}
}

func TestAddAggregatesAtSamePrice(t *testing.T) {
	b := NewOrderBook(bookInstrument, BookL2MBP)
	b.ApplyDelta(addDelta(enums.Sell, "101", "4", 1))
	b.ApplyDelta(addDelta(enums.Sell, "101", "6", 2))
	sz, ok := b.BestAskSize()
	if !ok || !sz.Equal(decimal.NewFromInt(10)) {
		t.Errorf("aggregated size = %s, want 10", sz)
	}
}

func TestDeleteAndClear(t *testing.T) {
	b := NewOrderBook(bookInstrument, BookL2MBP)
	b.ApplyDelta(addDelta(enums.Buy, "99", "5", 1))
	p, _ := money.PriceFromString("99", 2)
	s, _ := money.QuantityFromString("0", 0)
	b.ApplyDelta(OrderBookDelta{
		InstrumentID: bookInstrument,
		Action:       enums.BookDelete,
		Order:        &BookOrder{Price: p, Size: s, Side: enums.Buy},
		Sequence:     2, TsEvent: 2,
	})
	if _, ok := b.BestBidPrice(); ok {
		t.Error("bid should be deleted")
	}

	b.ApplyDelta(addDelta(enums.Buy, "99", "5", 3))
	b.ApplyDelta(OrderBookDelta{InstrumentID: bookInstrument, Action: enums.BookClear, Sequence: 4, TsEvent: 4})
	if len(b.Bids(0)) != 0 || len(b.Asks(0)) != 0 {
		t.Error("clear should empty both sides")
	}
}

func TestSimulateMarketFillWalksBestFirst(t *testing.T) {
	b := NewOrderBook(bookInstrument, BookL2MBP)
	b.ApplyDelta(addDelta(enums.Sell, "101", "5", 1))
	b.ApplyDelta(addDelta(enums.Sell, "102", "3", 2))

	fills := b.SimulateMarketFill(enums.Buy, decimal.NewFromInt(7))
	if len(fills) != 2 {
		t.Fatalf("fills = %+v, want 2 levels", fills)
	}
	if fills[0].Price.String() != "101" || !fills[0].Qty.Equal(decimal.NewFromInt(5)) {
		t.Errorf("first fill = %+v, want 5@101", fills[0])
	}
	if fills[1].Price.String() != "102" || !fills[1].Qty.Equal(decimal.NewFromInt(2)) {
		t.Errorf("second fill = %+v, want 2@102", fills[1])
	}

	// Insufficient book: partial fills only, total capped at available.
	fills = b.SimulateMarketFill(enums.Buy, decimal.NewFromInt(20))
	total := decimal.Zero
	for _, f := range fills {
		total = total.Add(f.Qty)
	}
	if !total.Equal(decimal.NewFromInt(8)) {
		t.Errorf("total = %s, want 8", total)
	}
}

func TestUpdateFromBarSyntheticSpread(t *testing.T) {
	b := NewOrderBook(bookInstrument, BookL2MBP)
	bar := Bar{
		BarType: BarType{InstrumentID: bookInstrument, Spec: BarSpec{Step: 1, Aggregation: enums.AggDay, PriceType: enums.PriceLast}},
		Open:    money.NewPrice(decimal.NewFromInt(100), 2),
		High:    money.NewPrice(decimal.NewFromInt(110), 2),
		Low:     money.NewPrice(decimal.NewFromInt(95), 2),
		Close:   money.NewPrice(decimal.NewFromInt(100), 2),
		Volume:  money.NewQuantity(decimal.NewFromInt(1000), 0),
		TsEvent: 1,
	}
	b.UpdateFromBar(bar)

	bid, ok1 := b.BestBidPrice()
	ask, ok2 := b.BestAskPrice()
	if !ok1 || !ok2 {
		t.Fatal("synthetic book missing a side")
	}
	if !bid.LessThan(ask) {
		t.Errorf("synthetic book crossed: bid %s ask %s", bid, ask)
	}
	mid, _ := b.MidPrice()
	if !mid.Equal(decimal.NewFromInt(100)) {
		t.Errorf("mid = %s, want 100", mid)
	}
	// Default spread 0.0001: bid = 100*(1-0.00005), ask = 100*(1+0.00005)
	if bid.String() != "99.995" || ask.String() != "100.005" {
		t.Errorf("bid/ask = %s/%s, want 99.995/100.005", bid, ask)
	}
}

func TestUpdateFromQuoteReplacesBook(t *testing.T) {
	b := NewOrderBook(bookInstrument, BookL2MBP)
	b.ApplyDelta(addDelta(enums.Buy, "90", "5", 1))

	q := QuoteTick{
		InstrumentID: bookInstrument,
		BidPrice:     money.NewPrice(decimal.NewFromInt(99), 2),
		AskPrice:     money.NewPrice(decimal.NewFromInt(101), 2),
		BidSize:      money.NewQuantity(decimal.NewFromInt(10), 0),
		AskSize:      money.NewQuantity(decimal.NewFromInt(12), 0),
		TsEvent:      2,
	}
	b.UpdateFromQuote(q)

	if len(b.Bids(0)) != 1 || len(b.Asks(0)) != 1 {
		t.Fatalf("quote should replace the book: %s", b)
	}
	spread, _ := b.Spread()
	if !spread.Equal(decimal.NewFromInt(2)) {
		t.Errorf("spread = %s, want 2", spread)
	}
}
