// Backtest runner - event-driven historical market simulation
//
// Wires the core engine from environment configuration, replays a
// synthetic demonstration bar series through a simple long strategy,
// and reports the result to stdout, the result store, and Telegram
// (when configured). Real callers replace the synthetic series with a
// DataSource feeding engine.AddData.
package main

import (
	"math/rand"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/forgequant/backtestcore/backtest"
	"github.com/forgequant/backtestcore/core/enums"
	"github.com/forgequant/backtestcore/core/event"
	"github.com/forgequant/backtestcore/core/id"
	"github.com/forgequant/backtestcore/core/money"
	"github.com/forgequant/backtestcore/internal/config"
	"github.com/forgequant/backtestcore/model/data"
	"github.com/forgequant/backtestcore/model/instrument"
	"github.com/forgequant/backtestcore/model/order"
	"github.com/forgequant/backtestcore/report"
	"github.com/forgequant/backtestcore/state/portfolio"
	"github.com/forgequant/backtestcore/storage"
	"github.com/forgequant/backtestcore/strategy"
	"github.com/forgequant/backtestcore/venue/sim"
)

const version = "1.0.0"

func main() {
	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	// Load environment
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	log.Info().
		Str("version", version).
		Str("trader_id", cfg.TraderID).
		Str("venue", cfg.Venue.Name).
		Msg("🚀 Backtest runner starting...")

	engine, inst := buildEngine(cfg)

	barType := data.BarType{
		InstrumentID: inst.ID,
		Spec:         data.BarSpec{Step: 1, Aggregation: enums.AggDay, PriceType: enums.PriceLast},
	}
	engine.AddData(syntheticBars(inst, barType, 252)...)
	engine.AddStrategy(&demoStrategy{instrumentID: inst.ID, barType: barType})

	if err := engine.Run(); err != nil {
		log.Fatal().Err(err).Msg("Run failed")
	}
	res, err := engine.Result()
	if err != nil {
		log.Fatal().Err(err).Msg("No result produced")
	}

	os.Stdout.WriteString(res.Summary() + "\n")

	persist(cfg, engine.Portfolio(), res)
	notify(cfg, res)
}

func buildEngine(cfg *config.Config) (*backtest.Engine, *instrument.Instrument) {
	base, ok := money.LookupCurrency(cfg.Venue.BaseCurrency)
	if !ok {
		log.Fatal().Str("code", cfg.Venue.BaseCurrency).Msg("Unknown base currency")
	}

	omsType := enums.Netting
	if cfg.Venue.OmsType == "HEDGING" {
		omsType = enums.Hedging
	}
	accountType := enums.Cash
	if cfg.Venue.AccountType == "MARGIN" {
		accountType = enums.Margin
	}

	engine, err := backtest.NewEngine(backtest.Config{
		TraderID:             id.TraderID(cfg.TraderID),
		StartNs:              cfg.StartNs,
		EndNs:                cfg.EndNs,
		AnnualizationPeriods: cfg.AnnualizationPeriods,
		Venues: []backtest.VenueConfig{{
			Name:            id.Venue(cfg.Venue.Name),
			OmsType:         omsType,
			AccountType:     accountType,
			BaseCurrency:    base,
			StartingBalance: cfg.Venue.StartingBalance,
			Leverage:        cfg.Venue.Leverage,
			BookSpreadPct:   cfg.Venue.BookSpreadPct,
			FillModel:       sim.NewFillModel(cfg.Fill.ProbFillOnLimit, cfg.Fill.ProbSlippage, cfg.Fill.MaxSlippageTicks, cfg.Fill.Seed),
		}},
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build engine")
	}

	if !cfg.Risk.MaxNotionalPerOrder.IsZero() {
		max := cfg.Risk.MaxNotionalPerOrder
		engine.RiskGate().SetMaxNotionalPerOrder(&max)
	}
	if !cfg.Risk.MaxPositionNotional.IsZero() {
		max := cfg.Risk.MaxPositionNotional
		engine.RiskGate().SetMaxPositionNotional(&max)
	}

	inst := &instrument.Instrument{
		ID:             id.NewInstrumentID("DEMO", id.Venue(cfg.Venue.Name)),
		RawSymbol:      "DEMO",
		AssetClass:     enums.AssetEquity,
		QuoteCurrency:  base,
		PricePrecision: 2,
		SizePrecision:  0,
		PriceIncrement: money.NewPrice(decimal.New(1, -2), 2),
		SizeIncrement:  money.NewQuantity(decimal.NewFromInt(1), 0),
		Multiplier:     money.NewQuantity(decimal.NewFromInt(1), 0),
		MarginInit:     decimal.New(5, -2),
		MarginMaint:    decimal.New(25, -3),
	}
	if err := engine.AddInstrument(inst); err != nil {
		log.Fatal().Err(err).Msg("Failed to list instrument")
	}
	return engine, inst
}

// syntheticBars produces a deterministic random-walk daily series; the
// fixed seed keeps repeated runs byte-identical.
func syntheticBars(inst *instrument.Instrument, barType data.BarType, n int) []any {
	rng := rand.New(rand.NewSource(42))
	px := 100.0
	ts := time.Date(2024, 1, 2, 21, 0, 0, 0, time.UTC).UnixNano()
	day := int64(24 * time.Hour)

	out := make([]any, 0, n)
	for i := 0; i < n; i++ {
		open := px
		drift := (rng.Float64() - 0.48) * 2.0
		close := open + drift
		high := max(open, close) + rng.Float64()*0.8
		low := min(open, close) - rng.Float64()*0.8
		px = close

		mk := func(v float64) money.Price { return inst.MakePrice(decimal.NewFromFloat(v)) }
		out = append(out, data.Bar{
			BarType: barType,
			Open:    mk(open),
			High:    mk(high),
			Low:     mk(low),
			Close:   mk(close),
			Volume:  inst.MakeQty(decimal.NewFromInt(10_000)),
			TsEvent: ts + int64(i)*day,
			TsInit:  ts + int64(i)*day,
		})
	}
	return out
}

func persist(cfg *config.Config, pf *portfolio.Portfolio, res *backtest.Result) {
	if cfg.DatabasePath == "" {
		return
	}
	db, err := storage.New(cfg.DatabasePath)
	if err != nil {
		log.Error().Err(err).Msg("Result store unavailable, skipping persistence")
		return
	}
	closed := pf.ClosedPositions()
	if _, err := db.SaveResult(res, closed); err != nil {
		log.Error().Err(err).Msg("Failed to persist result")
	}
}

func notify(cfg *config.Config, res *backtest.Result) {
	notifier, err := report.NewNotifier(cfg.TelegramToken, cfg.TelegramChatID)
	if err != nil {
		log.Error().Err(err).Msg("Telegram notifier unavailable")
		return
	}
	notifier.SendResultSummary(res)
}

// demoStrategy enters long on the first bar with an attached OCO
// take-profit/stop-loss pair, then re-arms after each close. It exists
// to exercise the full order/position path in the demo run.
type demoStrategy struct {
	strategy.Base

	instrumentID id.InstrumentID
	barType      data.BarType

	ctx     *strategy.Context
	inTrade bool
}

func (s *demoStrategy) StrategyID() id.StrategyID { return "DEMO-001" }

func (s *demoStrategy) OnStart(ctx *strategy.Context) {
	s.ctx = ctx
	ctx.SubscribeBars(s.barType)
	log.Info().Str("strategy", string(s.StrategyID())).Msg("demo strategy started")
}

func (s *demoStrategy) OnBar(bar data.Bar) {
	if s.inTrade {
		return
	}
	factory := s.ctx.OrderFactory()
	qty := money.NewQuantity(decimal.NewFromInt(100), 0)
	ts := s.ctx.TimestampNs()

	entry := factory.Market(s.instrumentID, enums.Buy, qty, enums.GTC, ts, order.Params{})

	tpPx := money.NewPrice(bar.Close.Value.Mul(decimal.New(105, -2)), 2)
	slPx := money.NewPrice(bar.Close.Value.Mul(decimal.New(97, -2)), 2)
	takeProfit := factory.Limit(s.instrumentID, enums.Sell, qty, tpPx, enums.GTC, ts, order.Params{})
	stopLoss := factory.StopMarket(s.instrumentID, enums.Sell, qty, slPx, enums.GTC, ts, order.Params{})
	factory.OCO(takeProfit, stopLoss)

	s.ctx.SubmitOrder(entry)
	s.ctx.SubmitOrder(takeProfit)
	s.ctx.SubmitOrder(stopLoss)
	s.inTrade = true
}

func (s *demoStrategy) OnPositionClosed(ev event.PositionClosed) {
	s.inTrade = false
}

func (s *demoStrategy) OnStop(ctx *strategy.Context) {
	ctx.CancelAllOrders(s.instrumentID)
	log.Info().Str("strategy", string(s.StrategyID())).Msg("demo strategy stopped")
}
