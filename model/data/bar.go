// Package data holds the market data value types that flow through the
// engine: bars, quotes, trades, order book deltas, and the aggregated L2
// order book used both for live deltas and synthetic bar/quote-derived
// books.
package data

import (
	"fmt"

	"github.com/forgequant/backtestcore/core/enums"
	"github.com/forgequant/backtestcore/core/id"
	"github.com/forgequant/backtestcore/core/money"
)

// BarSpec is the aggregation step/kind/price-type triple identifying a
// bar series, independent of instrument.
type BarSpec struct {
	Step        int
	Aggregation enums.BarAggregation
	PriceType   enums.PriceType
}

func (s BarSpec) String() string {
	return fmt.Sprintf("%d-%s-%s", s.Step, s.Aggregation, s.PriceType)
}

// BarType fully qualifies a bar series: instrument + spec.
type BarType struct {
	InstrumentID id.InstrumentID
	Spec         BarSpec
}

func (t BarType) String() string {
	return fmt.Sprintf("%s-%s", t.InstrumentID, t.Spec)
}

// Bar is an immutable OHLCV bar.
type Bar struct {
	BarType BarType
	Open    money.Price
	High    money.Price
	Low     money.Price
	Close   money.Price
	Volume  money.Quantity
	TsEvent int64
	TsInit  int64
}

// InstrumentID is a convenience accessor matching the original's property.
func (b Bar) InstrumentID() id.InstrumentID { return b.BarType.InstrumentID }

func (b Bar) String() string {
	return fmt.Sprintf("Bar(%s O=%s H=%s L=%s C=%s V=%s)",
		b.BarType, b.Open, b.High, b.Low, b.Close, b.Volume)
}
