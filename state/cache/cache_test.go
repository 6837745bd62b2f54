package cache

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/forgequant/backtestcore/core/enums"
	"github.com/forgequant/backtestcore/core/event"
	"github.com/forgequant/backtestcore/core/id"
	"github.com/forgequant/backtestcore/core/money"
	"github.com/forgequant/backtestcore/model/data"
	"github.com/forgequant/backtestcore/model/instrument"
	"github.com/forgequant/backtestcore/model/order"
	"github.com/forgequant/backtestcore/model/position"
)

var (
	aapl = id.NewInstrumentID("AAPL", "SIM")
	msft = id.NewInstrumentID("MSFT", "SIM")
)

func newOrder(f *order.Factory, instrumentID id.InstrumentID) *order.Order {
	q, _ := money.QuantityFromString("10", 0)
	return f.Market(instrumentID, enums.Buy, q, enums.GTC, 1, order.Params{})
}

func openFill(instrumentID id.InstrumentID, side enums.OrderSide) event.OrderFilled {
	q, _ := money.QuantityFromString("10", 0)
	p, _ := money.PriceFromString("100", 2)
	return event.OrderFilled{
		Base:          event.Base{TsEvent: 1, TsInit: 1},
		StrategyID:    "S-001",
		InstrumentID:  instrumentID,
		ClientOrderID: "O-1",
		TradeID:       "T-1",
		Side:          side,
		LastQty:       q,
		LastPx:        p,
		Currency:      money.USD,
		Commission:    money.Zero(money.USD),
	}
}

func TestOrderIndices(t *testing.T) {
	c := New()
	f1 := order.NewFactory("TRADER-001", "S-001")
	f2 := order.NewFactory("TRADER-001", "S-002")

	o1 := newOrder(f1, aapl)
	o2 := newOrder(f1, msft)
	o3 := newOrder(f2, aapl)
	c.AddOrder(o1)
	c.AddOrder(o2)
	c.AddOrder(o3)

	if got := len(c.Orders(&aapl, nil)); got != 2 {
		t.Errorf("orders(aapl) = %d, want 2", got)
	}
	s1 := id.StrategyID("S-001")
	if got := len(c.Orders(nil, &s1)); got != 2 {
		t.Errorf("orders(S-001) = %d, want 2", got)
	}
	if got := len(c.Orders(&aapl, &s1)); got != 1 {
		t.Errorf("orders(aapl, S-001) = %d, want 1", got)
	}
	if got := len(c.Orders(nil, nil)); got != 3 {
		t.Errorf("orders() = %d, want 3", got)
	}
	if c.OrderCount() != 3 {
		t.Errorf("count = %d, want 3", c.OrderCount())
	}
}

func TestOrderFilteredViews(t *testing.T) {
	c := New()
	f := order.NewFactory("TRADER-001", "S-001")

	openOrder := newOrder(f, aapl)
	openOrder.Apply(event.OrderSubmitted{Base: event.Base{TsEvent: 1}, ClientOrderID: openOrder.ClientOrderID})
	openOrder.Apply(event.OrderAccepted{Base: event.Base{TsEvent: 1}, ClientOrderID: openOrder.ClientOrderID, VenueOrderID: "V-1"})

	deniedOrder := newOrder(f, aapl)
	deniedOrder.Apply(event.OrderDenied{Base: event.Base{TsEvent: 1}, ClientOrderID: deniedOrder.ClientOrderID})

	c.AddOrder(openOrder)
	c.AddOrder(deniedOrder)

	if got := len(c.OrdersOpen(nil, nil)); got != 1 {
		t.Errorf("open = %d, want 1", got)
	}
	if got := len(c.OrdersClosed(nil, nil)); got != 1 {
		t.Errorf("closed = %d, want 1", got)
	}
	if got := len(c.OrdersFilled(nil, nil)); got != 0 {
		t.Errorf("filled = %d, want 0", got)
	}
}

func TestPositionViews(t *testing.T) {
	c := New()
	open := position.NewFromFill(aapl, "P-1", "SIM-001", "TRADER-001", "S-001", openFill(aapl, enums.Buy), money.USD, decimal.NewFromInt(1))
	closed := position.NewFromFill(msft, "P-2", "SIM-001", "TRADER-001", "S-001", openFill(msft, enums.Buy), money.USD, decimal.NewFromInt(1))
	closing := openFill(msft, enums.Sell)
	closed.Apply(closing)

	c.AddPosition(open)
	c.AddPosition(closed)

	if got := len(c.PositionsOpen(nil, nil)); got != 1 {
		t.Errorf("open positions = %d, want 1", got)
	}
	if got := len(c.PositionsClosed(nil, nil)); got != 1 {
		t.Errorf("closed positions = %d, want 1", got)
	}
	if got := len(c.PositionsOpen(&aapl, nil)); got != 1 {
		t.Errorf("open(aapl) = %d, want 1", got)
	}
	if p, ok := c.Position("P-1"); !ok || p.ID != "P-1" {
		t.Error("position lookup by id failed")
	}
}

func TestPriceFallbackChain(t *testing.T) {
	c := New()

	if _, ok := c.Price(aapl); ok {
		t.Fatal("no data yet, price must be unknown")
	}

	barType := data.BarType{InstrumentID: aapl, Spec: data.BarSpec{Step: 1, Aggregation: enums.AggDay, PriceType: enums.PriceLast}}
	c.UpdateBar(data.Bar{
		BarType: barType,
		Open:    money.NewPrice(decimal.NewFromInt(99), 2),
		High:    money.NewPrice(decimal.NewFromInt(101), 2),
		Low:     money.NewPrice(decimal.NewFromInt(98), 2),
		Close:   money.NewPrice(decimal.NewFromInt(100), 2),
		Volume:  money.NewQuantity(decimal.NewFromInt(10), 0),
		TsEvent: 1,
	})
	px, ok := c.Price(aapl)
	if !ok || !px.Equal(decimal.NewFromInt(100)) {
		t.Errorf("bar fallback price = %s, want 100", px)
	}

	c.UpdateTradeTick(data.TradeTick{InstrumentID: aapl, Price: money.NewPrice(decimal.NewFromInt(102), 2), TsEvent: 2})
	px, _ = c.Price(aapl)
	if !px.Equal(decimal.NewFromInt(102)) {
		t.Errorf("trade price = %s, want 102", px)
	}

	c.UpdateQuoteTick(data.QuoteTick{
		InstrumentID: aapl,
		BidPrice:     money.NewPrice(decimal.NewFromInt(103), 2),
		AskPrice:     money.NewPrice(decimal.NewFromInt(105), 2),
		TsEvent:      3,
	})
	px, _ = c.Price(aapl)
	if !px.Equal(decimal.NewFromInt(104)) {
		t.Errorf("quote mid = %s, want 104", px)
	}
}

func TestBarsRollingHistory(t *testing.T) {
	c := New()
	barType := data.BarType{InstrumentID: aapl, Spec: data.BarSpec{Step: 1, Aggregation: enums.AggDay, PriceType: enums.PriceLast}}
	for i := 1; i <= 5; i++ {
		c.UpdateBar(data.Bar{BarType: barType, Close: money.NewPrice(decimal.NewFromInt(int64(100+i)), 2), TsEvent: int64(i)})
	}
	bars := c.Bars(barType, 3)
	if len(bars) != 3 || bars[0].TsEvent != 3 || bars[2].TsEvent != 5 {
		t.Errorf("Bars(3) = %+v", bars)
	}
	last, ok := c.Bar(barType)
	if !ok || last.TsEvent != 5 {
		t.Errorf("Bar() ts = %d, want 5", last.TsEvent)
	}
}

func TestResetKeepsInstruments(t *testing.T) {
	c := New()
	inst := &instrument.Instrument{ID: aapl, QuoteCurrency: money.USD, PricePrecision: 2}
	c.AddInstrument(inst)
	c.AddOrder(newOrder(order.NewFactory("TRADER-001", "S-001"), aapl))

	c.Reset()

	if _, ok := c.Instrument(aapl); !ok {
		t.Error("instruments must survive a reset")
	}
	if c.OrderCount() != 0 {
		t.Error("orders must not survive a reset")
	}
}
