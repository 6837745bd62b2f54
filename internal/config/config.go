// Package config loads process configuration for the backtest runner
// from environment variables (optionally seeded from a .env file by the
// entrypoint).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// VenueConfig defines one simulated venue for the run.
type VenueConfig struct {
	Name            string          `json:"name"`
	OmsType         string          `json:"oms_type"`     // "NETTING" or "HEDGING"
	AccountType     string          `json:"account_type"` // "CASH" or "MARGIN"
	BaseCurrency    string          `json:"base_currency"`
	StartingBalance decimal.Decimal `json:"starting_balance"`
	Leverage        decimal.Decimal `json:"leverage"`
	BookSpreadPct   decimal.Decimal `json:"book_spread_pct"`
}

// FillConfig parameterizes the probabilistic fill model.
type FillConfig struct {
	ProbFillOnLimit  float64 `json:"prob_fill_on_limit"`
	ProbSlippage     float64 `json:"prob_slippage"`
	MaxSlippageTicks int     `json:"max_slippage_ticks"`
	Seed             int64   `json:"seed"`
}

// RiskConfig defines the pre-trade gate parameters.
type RiskConfig struct {
	MaxNotionalPerOrder decimal.Decimal `json:"max_notional_per_order"`
	MaxPositionNotional decimal.Decimal `json:"max_position_notional"`
}

type Config struct {
	// Run identity
	TraderID string
	Debug    bool

	// Optional inclusive event-time window (nanoseconds); zero = unbounded.
	StartNs int64
	EndNs   int64

	// Result statistics
	AnnualizationPeriods float64

	// Venue (single-venue runs; multi-venue callers build backtest.Config
	// directly)
	Venue VenueConfig

	// Models
	Fill FillConfig
	Risk RiskConfig

	// Result persistence: a postgres:// DSN or a sqlite file path.
	// Empty disables persistence.
	DatabasePath string

	// Telegram end-of-run summary. Empty token disables it.
	TelegramToken  string
	TelegramChatID int64
}

func Load() (*Config, error) {
	cfg := &Config{
		TraderID:             getEnv("TRADER_ID", "BACKTESTER-001"),
		Debug:                getEnvBool("DEBUG", false),
		StartNs:              getEnvInt64("BACKTEST_START_NS", 0),
		EndNs:                getEnvInt64("BACKTEST_END_NS", 0),
		AnnualizationPeriods: getEnvFloat("ANNUALIZATION_PERIODS", 252),

		Venue: VenueConfig{
			Name:            getEnv("VENUE_NAME", "SIM"),
			OmsType:         strings.ToUpper(getEnv("VENUE_OMS_TYPE", "NETTING")),
			AccountType:     strings.ToUpper(getEnv("VENUE_ACCOUNT_TYPE", "CASH")),
			BaseCurrency:    strings.ToUpper(getEnv("VENUE_BASE_CURRENCY", "USD")),
			StartingBalance: getEnvDecimal("VENUE_STARTING_BALANCE", decimal.NewFromInt(100_000)),
			Leverage:        getEnvDecimal("VENUE_LEVERAGE", decimal.NewFromInt(1)),
			BookSpreadPct:   getEnvDecimal("VENUE_BOOK_SPREAD_PCT", decimal.New(1, -4)),
		},

		Fill: FillConfig{
			ProbFillOnLimit:  getEnvFloat("FILL_PROB_ON_LIMIT", 1.0),
			ProbSlippage:     getEnvFloat("FILL_PROB_SLIPPAGE", 0.0),
			MaxSlippageTicks: getEnvInt("FILL_MAX_SLIPPAGE_TICKS", 1),
			Seed:             getEnvInt64("FILL_SEED", 1),
		},

		Risk: RiskConfig{
			MaxNotionalPerOrder: getEnvDecimal("RISK_MAX_NOTIONAL_PER_ORDER", decimal.Zero),
			MaxPositionNotional: getEnvDecimal("RISK_MAX_POSITION_NOTIONAL", decimal.Zero),
		},

		DatabasePath:  os.Getenv("DATABASE_PATH"),
		TelegramToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
	}

	if chatID := os.Getenv("TELEGRAM_CHAT_ID"); chatID != "" {
		id, err := strconv.ParseInt(chatID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_CHAT_ID: %w", err)
		}
		cfg.TelegramChatID = id
	}

	if cfg.TraderID == "" {
		return nil, fmt.Errorf("TRADER_ID must not be empty")
	}
	switch cfg.Venue.OmsType {
	case "NETTING", "HEDGING":
	default:
		return nil, fmt.Errorf("invalid VENUE_OMS_TYPE %q", cfg.Venue.OmsType)
	}
	switch cfg.Venue.AccountType {
	case "CASH", "MARGIN":
	default:
		return nil, fmt.Errorf("invalid VENUE_ACCOUNT_TYPE %q", cfg.Venue.AccountType)
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		}
	}
	return defaultValue
}
