package position

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/forgequant/backtestcore/core/enums"
	"github.com/forgequant/backtestcore/core/event"
	"github.com/forgequant/backtestcore/core/id"
	"github.com/forgequant/backtestcore/core/money"
)

var testInstrument = id.NewInstrumentID("AAPL", "SIM")

func fill(side enums.OrderSide, qty, px, commission string, ts int64) event.OrderFilled {
	q, _ := money.QuantityFromString(qty, 0)
	p, _ := money.PriceFromString(px, 2)
	return event.OrderFilled{
		Base:          event.Base{TsEvent: ts, TsInit: ts},
		TraderID:      "TRADER-001",
		StrategyID:    "S-001",
		InstrumentID:  testInstrument,
		ClientOrderID: "O-1",
		VenueOrderID:  "V-1",
		TradeID:       id.TradeID("T-" + qty),
		Side:          side,
		Type:          enums.Market,
		LastQty:       q,
		LastPx:        p,
		Currency:      money.USD,
		Commission:    money.NewMoney(decimal.RequireFromString(commission), money.USD),
	}
}

func newLong(qty, px string) *Position {
	opening := fill(enums.Buy, qty, px, "0", 1)
	return NewFromFill(testInstrument, "P-1", "SIM-001", "TRADER-001", "S-001", opening, money.USD, decimal.NewFromInt(1))
}

func TestOpenLong(t *testing.T) {
	p := newLong("10", "100")
	if !p.IsLong() || !p.IsOpen() {
		t.Fatalf("expected open long, got %s", p)
	}
	if !p.SignedQty().Equal(decimal.NewFromInt(10)) {
		t.Errorf("signed qty = %s, want 10", p.SignedQty())
	}
	if !p.AvgPxOpen().Equal(decimal.NewFromInt(100)) {
		t.Errorf("avg open = %s, want 100", p.AvgPxOpen())
	}
}

func TestCloseLongRealizesPnl(t *testing.T) {
	p := newLong("10", "100")
	p.Apply(fill(enums.Sell, "10", "94", "0", 2))

	if !p.IsClosed() {
		t.Fatalf("expected closed, got %s", p)
	}
	// 10 * (94 - 100) = -60
	if !p.RealizedPnl.Equal(decimal.NewFromInt(-60)) {
		t.Errorf("realized = %s, want -60", p.RealizedPnl)
	}
	if p.TsClosed == nil || *p.TsClosed != 2 {
		t.Errorf("ts_closed = %v, want 2", p.TsClosed)
	}
	if p.ClosingOrderID == nil {
		t.Error("closing order id not stamped")
	}
}

func TestVwapAveragesAdds(t *testing.T) {
	p := newLong("10", "100")
	p.Apply(fill(enums.Buy, "10", "110", "0", 2))

	// (10*100 + 10*110) / 20 = 105
	if !p.AvgPxOpen().Equal(decimal.NewFromInt(105)) {
		t.Errorf("avg open = %s, want 105", p.AvgPxOpen())
	}
	if !p.SignedQty().Equal(decimal.NewFromInt(20)) {
		t.Errorf("signed qty = %s, want 20", p.SignedQty())
	}
}

func TestPartialCloseKeepsVwap(t *testing.T) {
	p := newLong("10", "100")
	p.Apply(fill(enums.Sell, "4", "110", "0", 2))

	if !p.IsOpen() || !p.SignedQty().Equal(decimal.NewFromInt(6)) {
		t.Fatalf("signed qty = %s, want 6", p.SignedQty())
	}
	// Realized on the closed portion: 4 * (110-100) = 40
	if !p.RealizedPnl.Equal(decimal.NewFromInt(40)) {
		t.Errorf("realized = %s, want 40", p.RealizedPnl)
	}
	// The open leg's VWAP is unchanged.
	if !p.AvgPxOpen().Equal(decimal.NewFromInt(100)) {
		t.Errorf("avg open = %s, want 100", p.AvgPxOpen())
	}
}

func TestFlipReseedsVwap(t *testing.T) {
	p := newLong("10", "100")
	// Sell 15 @ 105: closes 10 (+50), opens short 5 @ 105.
	p.Apply(fill(enums.Sell, "15", "105", "0", 2))

	if !p.IsShort() {
		t.Fatalf("expected short, got %s", p)
	}
	if !p.SignedQty().Equal(decimal.NewFromInt(-5)) {
		t.Errorf("signed qty = %s, want -5", p.SignedQty())
	}
	if !p.RealizedPnl.Equal(decimal.NewFromInt(50)) {
		t.Errorf("realized = %s, want 50", p.RealizedPnl)
	}
	// VWAP reseeded from the overflow only.
	if !p.AvgPxOpen().Equal(decimal.NewFromInt(105)) {
		t.Errorf("avg open = %s, want 105 (reseeded)", p.AvgPxOpen())
	}
}

func TestShortRoundTrip(t *testing.T) {
	opening := fill(enums.Sell, "10", "200", "0", 1)
	p := NewFromFill(testInstrument, "P-1", "SIM-001", "TRADER-001", "S-001", opening, money.USD, decimal.NewFromInt(1))

	if !p.IsShort() {
		t.Fatalf("expected short, got %s", p)
	}
	p.Apply(fill(enums.Buy, "10", "190", "0", 2))
	if !p.IsClosed() {
		t.Fatalf("expected closed, got %s", p)
	}
	// 10 * (200-190) = 100
	if !p.RealizedPnl.Equal(decimal.NewFromInt(100)) {
		t.Errorf("realized = %s, want 100", p.RealizedPnl)
	}
}

func TestCommissionsReduceRealizedOnClose(t *testing.T) {
	p := newLong("10", "100")
	p.Apply(fill(enums.Sell, "10", "105", "2.50", 2))

	// 10*(105-100) - 2.50 = 47.50
	if !p.RealizedPnl.Equal(decimal.RequireFromString("47.5")) {
		t.Errorf("realized = %s, want 47.5", p.RealizedPnl)
	}
	if !p.Commissions.Equal(decimal.RequireFromString("2.5")) {
		t.Errorf("commissions = %s, want 2.5", p.Commissions)
	}
}

func TestUnrealizedPnl(t *testing.T) {
	p := newLong("10", "100")
	p.UpdateUnrealizedPnl(money.NewPrice(decimal.NewFromInt(107), 2))
	if !p.UnrealizedPnl.Equal(decimal.NewFromInt(70)) {
		t.Errorf("unrealized = %s, want 70", p.UnrealizedPnl)
	}

	short := NewFromFill(testInstrument, "P-2", "SIM-001", "TRADER-001", "S-001", fill(enums.Sell, "5", "100", "0", 1), money.USD, decimal.NewFromInt(1))
	short.UpdateUnrealizedPnl(money.NewPrice(decimal.NewFromInt(90), 2))
	if !short.UnrealizedPnl.Equal(decimal.NewFromInt(50)) {
		t.Errorf("short unrealized = %s, want 50", short.UnrealizedPnl)
	}
}

func TestSignedQtyMatchesFillSum(t *testing.T) {
	p := newLong("10", "100")
	fills := []event.OrderFilled{
		fill(enums.Buy, "5", "101", "0", 2),
		fill(enums.Sell, "8", "102", "0", 3),
		fill(enums.Sell, "3", "103", "0", 4),
		fill(enums.Buy, "6", "104", "0", 5),
	}
	for _, f := range fills {
		p.Apply(f)
	}
	// 10 + 5 - 8 - 3 + 6 = 10
	if !p.SignedQty().Equal(decimal.NewFromInt(10)) {
		t.Errorf("signed qty = %s, want 10", p.SignedQty())
	}
	if len(p.TradeIDs) != 5 {
		t.Errorf("trade ids = %d, want 5", len(p.TradeIDs))
	}
}
