package backtest

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/forgequant/backtestcore/analysis"
	"github.com/forgequant/backtestcore/core/enums"
	"github.com/forgequant/backtestcore/core/id"
	"github.com/forgequant/backtestcore/core/money"
	"github.com/forgequant/backtestcore/venue/sim"
)

// VenueConfig describes one simulated venue: its order-management
// scheme, account type, base currency and starting balance, plus the
// fill/fee models parameterizing its matching engines.
type VenueConfig struct {
	Name            id.Venue
	OmsType         enums.OmsType
	AccountType     enums.AccountType
	BaseCurrency    money.Currency
	StartingBalance decimal.Decimal
	Leverage        decimal.Decimal
	BookSpreadPct   decimal.Decimal

	// FillModel defaults to sim.DefaultFillModel (always fill, zero
	// slippage); FeeModel defaults to the instrument maker/taker rates.
	FillModel *sim.FillModel
	FeeModel  sim.FeeModel
}

// Config is the full run configuration.
type Config struct {
	TraderID id.TraderID

	// Optional inclusive event-time window; zero means unbounded.
	StartNs int64
	EndNs   int64

	// AnnualizationPeriods scales ratio/volatility annualization in the
	// result statistics; zero means analysis.DefaultPeriodsPerYear.
	AnnualizationPeriods float64

	Venues []VenueConfig
}

func (c *Config) validate() error {
	if c.TraderID == "" {
		return errors.New("backtest: config requires a trader id")
	}
	if len(c.Venues) == 0 {
		return errors.New("backtest: config requires at least one venue")
	}
	for _, v := range c.Venues {
		if v.Name == "" {
			return errors.New("backtest: venue config requires a name")
		}
		if v.BaseCurrency.Code == "" {
			return errors.New("backtest: venue config requires a base currency")
		}
		if v.StartingBalance.IsNegative() {
			return errors.New("backtest: venue starting balance must be non-negative")
		}
	}
	return nil
}

func (c *Config) periodsPerYear() float64 {
	if c.AnnualizationPeriods > 0 {
		return c.AnnualizationPeriods
	}
	return analysis.DefaultPeriodsPerYear
}
