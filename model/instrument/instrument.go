// Package instrument defines the tradable-instrument metadata consulted
// by the matching engine, position tracker, and risk gate: precisions,
// increments, notional limits, margin and fee rates.
package instrument

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/forgequant/backtestcore/core/enums"
	"github.com/forgequant/backtestcore/core/id"
	"github.com/forgequant/backtestcore/core/money"
)

// Instrument is the full definition of a single tradable symbol.
type Instrument struct {
	ID              id.InstrumentID
	RawSymbol       string
	AssetClass      enums.AssetClass
	InstrumentClass enums.InstrumentClass
	QuoteCurrency   money.Currency
	IsInverse       bool

	PricePrecision int32
	SizePrecision  int32
	PriceIncrement money.Price
	SizeIncrement  money.Quantity
	Multiplier     money.Quantity
	LotSize        *money.Quantity

	MaxQuantity *money.Quantity
	MinQuantity *money.Quantity
	MaxNotional *money.Money
	MinNotional *money.Money
	MaxPrice    *money.Price
	MinPrice    *money.Price

	MarginInit  decimal.Decimal
	MarginMaint decimal.Decimal
	MakerFee    decimal.Decimal
	TakerFee    decimal.Decimal

	TsEvent int64
	TsInit  int64
	Info    map[string]any
}

// Symbol is a convenience accessor mirroring the original's property.
func (i *Instrument) Symbol() string { return i.ID.Symbol }

// Venue is a convenience accessor mirroring the original's property.
func (i *Instrument) Venue() id.Venue { return i.ID.Venue }

// MakePrice quantizes value to this instrument's price precision.
func (i *Instrument) MakePrice(value decimal.Decimal) money.Price {
	return money.NewPrice(value, i.PricePrecision)
}

// MakeQty quantizes value to this instrument's size precision.
func (i *Instrument) MakeQty(value decimal.Decimal) money.Quantity {
	return money.NewQuantity(value, i.SizePrecision)
}

// NotionalValue computes contract notional: for inverse instruments
// qty/price*multiplier, otherwise qty*price*multiplier.
func (i *Instrument) NotionalValue(quantity money.Quantity, price money.Price) decimal.Decimal {
	if i.IsInverse {
		return quantity.Value.Div(price.Value).Mul(i.Multiplier.Value)
	}
	return quantity.Value.Mul(price.Value).Mul(i.Multiplier.Value)
}

func (i *Instrument) String() string {
	return fmt.Sprintf("Instrument(id=%s)", i.ID)
}

// Equal compares instruments by identity (their InstrumentID), matching
// the original's identity-based __eq__/__hash__.
func (i *Instrument) Equal(other *Instrument) bool {
	if other == nil {
		return false
	}
	return i.ID == other.ID
}
