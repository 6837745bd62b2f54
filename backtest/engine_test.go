package backtest

import (
	"reflect"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/forgequant/backtestcore/core/enums"
	"github.com/forgequant/backtestcore/core/event"
	"github.com/forgequant/backtestcore/core/id"
	"github.com/forgequant/backtestcore/core/money"
	"github.com/forgequant/backtestcore/model/data"
	"github.com/forgequant/backtestcore/model/instrument"
	"github.com/forgequant/backtestcore/model/order"
	"github.com/forgequant/backtestcore/strategy"
)

var aapl = id.NewInstrumentID("AAPL", "SIM")

func testConfig() Config {
	return Config{
		TraderID: "TRADER-001",
		Venues: []VenueConfig{{
			Name:            "SIM",
			OmsType:         enums.Netting,
			AccountType:     enums.Cash,
			BaseCurrency:    money.USD,
			StartingBalance: decimal.NewFromInt(100_000),
		}},
	}
}

func testEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(testConfig())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	inst := &instrument.Instrument{
		ID:             aapl,
		RawSymbol:      "AAPL",
		QuoteCurrency:  money.USD,
		PricePrecision: 2,
		SizePrecision:  0,
		PriceIncrement: money.NewPrice(decimal.New(1, -2), 2),
		SizeIncrement:  money.NewQuantity(decimal.NewFromInt(1), 0),
		Multiplier:     money.NewQuantity(decimal.NewFromInt(1), 0),
	}
	if err := e.AddInstrument(inst); err != nil {
		t.Fatalf("AddInstrument: %v", err)
	}
	return e
}

func testBar(o, h, l, c string, ts int64) data.Bar {
	mk := func(v string) money.Price {
		p, err := money.PriceFromString(v, 2)
		if err != nil {
			panic(err)
		}
		return p
	}
	return data.Bar{
		BarType: data.BarType{InstrumentID: aapl, Spec: data.BarSpec{Step: 1, Aggregation: enums.AggDay, PriceType: enums.PriceLast}},
		Open:    mk(o),
		High:    mk(h),
		Low:     mk(l),
		Close:   mk(c),
		Volume:  money.NewQuantity(decimal.NewFromInt(1000), 0),
		TsEvent: ts,
		TsInit:  ts,
	}
}

// buyAtStart buys qty at market before the first event, then optionally
// arms a stop.
type buyAtStart struct {
	strategy.Base

	qty       string
	stopAt    string
	ctx       *strategy.Context
	fills     []event.OrderFilled
	positions []any
	bars      []data.Bar
}

func (s *buyAtStart) StrategyID() id.StrategyID { return "S-001" }

func (s *buyAtStart) OnStart(ctx *strategy.Context) {
	s.ctx = ctx
	ctx.SubscribeBars(data.BarType{InstrumentID: aapl, Spec: data.BarSpec{Step: 1, Aggregation: enums.AggDay, PriceType: enums.PriceLast}})

	f := ctx.OrderFactory()
	q, _ := money.QuantityFromString(s.qty, 0)
	ctx.SubmitOrder(f.Market(aapl, enums.Buy, q, enums.GTC, ctx.TimestampNs(), order.Params{}))
	if s.stopAt != "" {
		trigger, _ := money.PriceFromString(s.stopAt, 2)
		ctx.SubmitOrder(f.StopMarket(aapl, enums.Sell, q, trigger, enums.GTC, ctx.TimestampNs(), order.Params{}))
	}
}

func (s *buyAtStart) OnBar(bar data.Bar) { s.bars = append(s.bars, bar) }

func (s *buyAtStart) OnOrderFilled(ev event.OrderFilled) { s.fills = append(s.fills, ev) }

func (s *buyAtStart) OnPositionOpened(ev event.PositionOpened) { s.positions = append(s.positions, ev) }
func (s *buyAtStart) OnPositionClosed(ev event.PositionClosed) { s.positions = append(s.positions, ev) }

// Scenario S1: a market buy queued before the first bar fills at the
// bar's open; cash and position reflect it.
func TestSingleMarketBuyAtOpen(t *testing.T) {
	e := testEngine(t)
	strat := &buyAtStart{qty: "10"}
	e.AddStrategy(strat)
	e.AddData(testBar("100", "110", "95", "105", 1))

	if err := e.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(strat.fills) != 1 {
		t.Fatalf("fills = %d, want 1", len(strat.fills))
	}
	if got := strat.fills[0].LastPx.String(); got != "100.00" {
		t.Errorf("fill px = %s, want 100.00", got)
	}

	open := e.Cache().PositionsOpen(nil, nil)
	if len(open) != 1 || !open[0].SignedQty().Equal(decimal.NewFromInt(10)) {
		t.Fatalf("expected one open long of 10, got %+v", open)
	}
	if !open[0].AvgPxOpen().Equal(decimal.NewFromInt(100)) {
		t.Errorf("avg open = %s, want 100", open[0].AvgPxOpen())
	}

	res, err := e.Result()
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	if res.EndingBalance.String() != "99000" {
		t.Errorf("ending balance = %s, want 99000", res.EndingBalance)
	}
	if res.TotalFills != 1 {
		t.Errorf("total fills = %d, want 1", res.TotalFills)
	}

	// The strategy's bar handler ran once, for the single bar.
	if len(strat.bars) != 1 {
		t.Fatalf("bars seen = %d, want 1", len(strat.bars))
	}
}

// Scenario S2 continuation: a stop-loss fires on the second bar's low
// at min(trigger, low) and the realized PnL matches.
func TestStopLossClosesPosition(t *testing.T) {
	e := testEngine(t)
	strat := &buyAtStart{qty: "10", stopAt: "96"}
	e.AddStrategy(strat)
	e.AddData(
		testBar("100", "110", "98", "105", 1),
		testBar("102", "106", "94", "98", 2),
	)

	if err := e.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}

	closed := e.Cache().PositionsClosed(nil, nil)
	if len(closed) != 1 {
		t.Fatalf("closed positions = %d, want 1", len(closed))
	}
	// Entry 100, stop fills at min(96, 94) = 94: 10*(94-100) = -60.
	if !closed[0].RealizedPnl.Equal(decimal.NewFromInt(-60)) {
		t.Errorf("realized = %s, want -60", closed[0].RealizedPnl)
	}

	res, _ := e.Result()
	// 100,000 - 1,000 + 940 = 99,940.
	if res.EndingBalance.String() != "99940" {
		t.Errorf("ending balance = %s, want 99940", res.EndingBalance)
	}
}

// The equity curve samples total cash after each bar only.
func TestEquityCurveSampledOnBars(t *testing.T) {
	e := testEngine(t)
	e.AddStrategy(&buyAtStart{qty: "10"})
	e.AddData(
		testBar("100", "110", "95", "105", 1),
		testBar("105", "108", "103", "107", 2),
	)
	if err := e.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}

	res, _ := e.Result()
	if len(res.BalanceCurve) != 2 {
		t.Fatalf("curve points = %d, want 2 (one per bar)", len(res.BalanceCurve))
	}
	if res.BalanceCurve[0].TsNs != 1 || res.BalanceCurve[1].TsNs != 2 {
		t.Errorf("curve timestamps = %+v", res.BalanceCurve)
	}
	// Cash-only sampling: the open position's mark-to-market is ignored.
	if res.BalanceCurve[1].Balance.String() != "99000" {
		t.Errorf("curve[1] = %s, want 99000", res.BalanceCurve[1].Balance)
	}
	// Final equity equals final account total.
	if !res.BalanceCurve[1].Balance.Equal(res.EndingBalance) {
		t.Error("final curve point != ending balance")
	}
}

// Property 10: identical inputs produce identical results.
func TestDeterminism(t *testing.T) {
	run := func() *Result {
		e := testEngine(t)
		e.AddStrategy(&buyAtStart{qty: "10", stopAt: "96"})
		e.AddData(
			testBar("100", "110", "98", "105", 1),
			testBar("102", "106", "94", "98", 2),
			testBar("99", "104", "97", "101", 3),
		)
		if err := e.Run(); err != nil {
			t.Fatalf("Run: %v", err)
		}
		res, err := e.Result()
		if err != nil {
			t.Fatalf("Result: %v", err)
		}
		return res
	}

	a, b := run(), run()
	// Wall-clock run time is the only field allowed to differ.
	a.RunTimeS, b.RunTimeS = 0, 0
	if !reflect.DeepEqual(a, b) {
		t.Errorf("results differ:\n%+v\n%+v", a, b)
	}
}

// Out-of-order input events are stably sorted by ts_event.
func TestEventsSortedByTime(t *testing.T) {
	e := testEngine(t)
	strat := &buyAtStart{qty: "10"}
	e.AddStrategy(strat)
	e.AddData(
		testBar("105", "108", "103", "107", 2),
		testBar("100", "110", "95", "105", 1),
	)
	if err := e.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(strat.bars) != 2 || strat.bars[0].TsEvent != 1 || strat.bars[1].TsEvent != 2 {
		t.Errorf("bars not time-ordered: %+v", strat.bars)
	}
	// The market order fills at the chronologically-first bar's open.
	if got := strat.fills[0].LastPx.String(); got != "100.00" {
		t.Errorf("fill px = %s, want 100.00", got)
	}
}

// A panicking strategy callback must not abort the run.
type panicker struct {
	strategy.Base
	barsSeen int
}

func (p *panicker) StrategyID() id.StrategyID { return "S-PANIC" }
func (p *panicker) OnStart(ctx *strategy.Context) {
	ctx.SubscribeBars(data.BarType{InstrumentID: aapl, Spec: data.BarSpec{Step: 1, Aggregation: enums.AggDay, PriceType: enums.PriceLast}})
}
func (p *panicker) OnBar(bar data.Bar) {
	p.barsSeen++
	panic("strategy bug")
}

func TestFaultyStrategyIsolated(t *testing.T) {
	e := testEngine(t)
	e.AddStrategy(&panicker{})
	healthy := &buyAtStart{qty: "10"}
	e.AddStrategy(healthy)
	e.AddData(
		testBar("100", "110", "95", "105", 1),
		testBar("105", "108", "103", "107", 2),
	)

	if err := e.Run(); err != nil {
		t.Fatalf("Run must survive a panicking handler: %v", err)
	}
	if len(healthy.bars) != 2 {
		t.Errorf("healthy strategy saw %d bars, want 2", len(healthy.bars))
	}
}

// The start/end window filter drops out-of-range events.
func TestTimeWindowFilter(t *testing.T) {
	cfg := testConfig()
	cfg.StartNs = 2
	cfg.EndNs = 3
	e, err := NewEngine(cfg)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	inst := &instrument.Instrument{
		ID: aapl, QuoteCurrency: money.USD, PricePrecision: 2, SizePrecision: 0,
		PriceIncrement: money.NewPrice(decimal.New(1, -2), 2),
		SizeIncrement:  money.NewQuantity(decimal.NewFromInt(1), 0),
		Multiplier:     money.NewQuantity(decimal.NewFromInt(1), 0),
	}
	if err := e.AddInstrument(inst); err != nil {
		t.Fatal(err)
	}
	strat := &buyAtStart{qty: "10"}
	e.AddStrategy(strat)
	e.AddData(
		testBar("90", "91", "89", "90", 1),
		testBar("100", "101", "99", "100", 2),
		testBar("100", "102", "98", "101", 3),
		testBar("110", "111", "109", "110", 4),
	)
	if err := e.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(strat.bars) != 2 {
		t.Errorf("bars = %d, want 2 (window [2,3])", len(strat.bars))
	}
	res, _ := e.Result()
	if res.StartNs != 2 || res.EndNs != 3 {
		t.Errorf("result window = [%d,%d], want [2,3]", res.StartNs, res.EndNs)
	}
}

// Result before Run is a MissingResult error.
func TestMissingResult(t *testing.T) {
	e := testEngine(t)
	if _, err := e.Result(); err != ErrMissingResult {
		t.Errorf("err = %v, want ErrMissingResult", err)
	}
}
