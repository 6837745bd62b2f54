// Package storage persists completed run results for later inspection
// and cross-run comparison. It is a reporting sink only — no engine
// state is ever written or restored mid-run.
package storage

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/forgequant/backtestcore/backtest"
	"github.com/forgequant/backtestcore/model/position"
)

type Database struct {
	db *gorm.DB
}

// Models

// RunRecord is one persisted backtest result.
type RunRecord struct {
	ID       uint   `gorm:"primaryKey;autoIncrement"`
	TraderID string `gorm:"index"`
	StartNs  int64
	EndNs    int64
	RunTimeS float64

	StartingBalance decimal.Decimal `gorm:"type:decimal(20,2)"`
	EndingBalance   decimal.Decimal `gorm:"type:decimal(20,2)"`
	TotalReturn     decimal.Decimal `gorm:"type:decimal(20,2)"`

	TotalOrders      int
	TotalPositions   int
	TotalFills       int
	TotalCommissions decimal.Decimal `gorm:"type:decimal(20,2)"`

	TotalReturnPct          float64
	AnnualizedReturnPct     float64
	AnnualizedVolatilityPct float64
	SharpeRatio             float64
	SortinoRatio            float64
	CalmarRatio             float64
	MaxDrawdownPct          float64
	MaxDrawdownAbs          float64
	WinRate                 float64
	ProfitFactor            float64
	Expectancy              float64
	AvgWin                  float64
	AvgLoss                 float64

	CreatedAt time.Time
}

func (RunRecord) TableName() string { return "backtest_runs" }

// PositionRecord is one closed position belonging to a persisted run.
type PositionRecord struct {
	ID           uint            `gorm:"primaryKey;autoIncrement"`
	RunID        uint            `gorm:"index"`
	PositionID   string          `gorm:"index"`
	InstrumentID string          `gorm:"index"`
	StrategyID   string          `gorm:"index"`
	Side         string          // "LONG" or "SHORT" of the opening leg
	EntryPx      decimal.Decimal `gorm:"type:decimal(20,8)"`
	RealizedPnl  decimal.Decimal `gorm:"type:decimal(20,6)"`
	Commissions  decimal.Decimal `gorm:"type:decimal(20,6)"`
	TsOpened     int64
	TsClosed     *int64
	CreatedAt    time.Time
}

func (PositionRecord) TableName() string { return "backtest_positions" }

// EquityRecord is one balance-curve sample belonging to a persisted run.
type EquityRecord struct {
	ID      uint `gorm:"primaryKey;autoIncrement"`
	RunID   uint `gorm:"index"`
	TsNs    int64
	Balance decimal.Decimal `gorm:"type:decimal(20,2)"`
}

func (EquityRecord) TableName() string { return "backtest_equity" }

// New opens the result store. A postgres:// DSN selects PostgreSQL;
// anything else is treated as a SQLite file path.
func New(dbPath string) (*Database, error) {
	var db *gorm.DB
	var err error

	if strings.HasPrefix(dbPath, "postgres://") || strings.HasPrefix(dbPath, "postgresql://") {
		db, err = gorm.Open(postgres.Open(dbPath), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return nil, err
		}
		log.Info().Msg("storage: connected (PostgreSQL)")
	} else {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
		db, err = gorm.Open(sqlite.Open(dbPath), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return nil, err
		}
		log.Info().Str("path", dbPath).Msg("storage: initialized (SQLite)")
	}

	if err := db.AutoMigrate(&RunRecord{}, &PositionRecord{}, &EquityRecord{}); err != nil {
		return nil, err
	}

	return &Database{db: db}, nil
}

// SaveResult persists a completed run with its closed positions and
// balance curve, returning the stored run id.
func (d *Database) SaveResult(res *backtest.Result, closed []*position.Position) (uint, error) {
	rec := &RunRecord{
		TraderID:         string(res.TraderID),
		StartNs:          res.StartNs,
		EndNs:            res.EndNs,
		RunTimeS:         res.RunTimeS,
		StartingBalance:  res.StartingBalance,
		EndingBalance:    res.EndingBalance,
		TotalReturn:      res.TotalReturn,
		TotalOrders:      res.TotalOrders,
		TotalPositions:   res.TotalPositions,
		TotalFills:       res.TotalFills,
		TotalCommissions: res.TotalCommissions,

		TotalReturnPct:          res.TotalReturnPct,
		AnnualizedReturnPct:     res.AnnualizedReturnPct,
		AnnualizedVolatilityPct: res.AnnualizedVolatilityPct,
		SharpeRatio:             res.SharpeRatio,
		SortinoRatio:            res.SortinoRatio,
		CalmarRatio:             res.CalmarRatio,
		MaxDrawdownPct:          res.MaxDrawdownPct,
		MaxDrawdownAbs:          res.MaxDrawdownAbs,
		WinRate:                 res.WinRate,
		ProfitFactor:            res.ProfitFactor,
		Expectancy:              res.Expectancy,
		AvgWin:                  res.AvgWin,
		AvgLoss:                 res.AvgLoss,
	}
	if err := d.db.Create(rec).Error; err != nil {
		return 0, err
	}

	for _, pos := range closed {
		side := "LONG"
		entryPx := decimal.Zero
		if len(pos.Events) > 0 {
			if pos.Events[0].Side.String() == "SELL" {
				side = "SHORT"
			}
			entryPx = pos.Events[0].LastPx.Value
		}
		pr := &PositionRecord{
			RunID:        rec.ID,
			PositionID:   string(pos.ID),
			InstrumentID: pos.InstrumentID.String(),
			StrategyID:   string(pos.StrategyID),
			Side:         side,
			EntryPx:      entryPx,
			RealizedPnl:  pos.RealizedPnl,
			Commissions:  pos.Commissions,
			TsOpened:     pos.TsOpened,
			TsClosed:     pos.TsClosed,
		}
		if err := d.db.Create(pr).Error; err != nil {
			return rec.ID, err
		}
	}

	for _, pt := range res.BalanceCurve {
		er := &EquityRecord{RunID: rec.ID, TsNs: pt.TsNs, Balance: pt.Balance}
		if err := d.db.Create(er).Error; err != nil {
			return rec.ID, err
		}
	}

	log.Info().Uint("run_id", rec.ID).Msg("storage: run result saved")
	return rec.ID, nil
}

// Runs returns the most recent count persisted runs, newest first.
func (d *Database) Runs(count int) ([]RunRecord, error) {
	var runs []RunRecord
	q := d.db.Order("id desc")
	if count > 0 {
		q = q.Limit(count)
	}
	err := q.Find(&runs).Error
	return runs, err
}

// RunPositions returns the closed positions stored for a run.
func (d *Database) RunPositions(runID uint) ([]PositionRecord, error) {
	var out []PositionRecord
	err := d.db.Where("run_id = ?", runID).Order("id asc").Find(&out).Error
	return out, err
}
