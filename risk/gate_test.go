package risk

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/forgequant/backtestcore/core/enums"
	"github.com/forgequant/backtestcore/core/id"
	"github.com/forgequant/backtestcore/core/money"
	"github.com/forgequant/backtestcore/model/instrument"
	"github.com/forgequant/backtestcore/model/order"
)

type stubPortfolio struct {
	net decimal.Decimal
}

func (s stubPortfolio) NetPosition(id.InstrumentID, id.StrategyID) decimal.Decimal { return s.net }

var gateInstrument = &instrument.Instrument{
	ID:             id.NewInstrumentID("AAPL", "SIM"),
	QuoteCurrency:  money.USD,
	PricePrecision: 2,
	SizePrecision:  0,
	Multiplier:     money.NewQuantity(decimal.NewFromInt(1), 0),
}

func gateOrder(side enums.OrderSide, reduceOnly bool, limitPx string) *order.Order {
	f := order.NewFactory("TRADER-001", "S-001")
	q, _ := money.QuantityFromString("10", 0)
	if limitPx != "" {
		p, _ := money.PriceFromString(limitPx, 2)
		return f.Limit(gateInstrument.ID, side, q, p, enums.GTC, 1, order.Params{ReduceOnly: reduceOnly})
	}
	return f.Market(gateInstrument.ID, side, q, enums.GTC, 1, order.Params{ReduceOnly: reduceOnly})
}

func TestHaltedDeniesAll(t *testing.T) {
	g := NewGate(stubPortfolio{net: decimal.NewFromInt(10)})
	g.SetTradingState(enums.Halted)
	ok, reason := g.CheckOrder(gateOrder(enums.Buy, false, ""), gateInstrument)
	if ok || !strings.Contains(reason, "halted") {
		t.Errorf("halted gate passed order: ok=%v reason=%q", ok, reason)
	}
}

func TestReducingAllowsOnlyReduceOnly(t *testing.T) {
	g := NewGate(stubPortfolio{net: decimal.NewFromInt(10)})
	g.SetTradingState(enums.Reducing)

	if ok, _ := g.CheckOrder(gateOrder(enums.Buy, false, ""), gateInstrument); ok {
		t.Error("non-reduce-only order must be denied while REDUCING")
	}
	if ok, reason := g.CheckOrder(gateOrder(enums.Sell, true, ""), gateInstrument); !ok {
		t.Errorf("reduce-only sell against long 10 should pass: %s", reason)
	}
}

func TestReduceOnlyChecks(t *testing.T) {
	cases := []struct {
		name string
		net  int64
		side enums.OrderSide
		pass bool
	}{
		{"flat denies", 0, enums.Sell, false},
		{"sell against long passes", 10, enums.Sell, true},
		{"buy against long denies", 10, enums.Buy, false},
		{"buy against short passes", -10, enums.Buy, true},
		{"sell against short denies", -10, enums.Sell, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			g := NewGate(stubPortfolio{net: decimal.NewFromInt(c.net)})
			ok, reason := g.CheckOrder(gateOrder(c.side, true, ""), gateInstrument)
			if ok != c.pass {
				t.Errorf("net=%d side=%s: ok=%v reason=%q, want pass=%v", c.net, c.side, ok, reason, c.pass)
			}
		})
	}
}

func TestMaxNotionalPerOrder(t *testing.T) {
	g := NewGate(stubPortfolio{})
	limit := decimal.NewFromInt(500)
	g.SetMaxNotionalPerOrder(&limit)

	// 10 * 100 = 1000 notional > 500.
	if ok, _ := g.CheckOrder(gateOrder(enums.Buy, false, "100"), gateInstrument); ok {
		t.Error("notional 1000 must exceed cap 500")
	}
	// 10 * 40 = 400 <= 500.
	if ok, reason := g.CheckOrder(gateOrder(enums.Buy, false, "40"), gateInstrument); !ok {
		t.Errorf("notional 400 should pass cap 500: %s", reason)
	}
	g.SetMaxNotionalPerOrder(nil)
	if ok, _ := g.CheckOrder(gateOrder(enums.Buy, false, "100"), gateInstrument); !ok {
		t.Error("lifted cap should pass")
	}
}

func TestMaxPositionNotional(t *testing.T) {
	g := NewGate(stubPortfolio{net: decimal.NewFromInt(5)})
	limit := decimal.NewFromInt(1200)
	g.SetMaxPositionNotional(&limit)

	// Projected |5 + 10| * 100 = 1500 > 1200.
	if ok, _ := g.CheckOrder(gateOrder(enums.Buy, false, "100"), gateInstrument); ok {
		t.Error("projected notional 1500 must exceed cap 1200")
	}
	// Selling shrinks the position: |5 - 10| * 100 = 500 <= 1200.
	if ok, reason := g.CheckOrder(gateOrder(enums.Sell, false, "100"), gateInstrument); !ok {
		t.Errorf("projected notional 500 should pass: %s", reason)
	}
}
