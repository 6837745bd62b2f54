package data

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/forgequant/backtestcore/core/enums"
	"github.com/forgequant/backtestcore/core/id"
	"github.com/forgequant/backtestcore/core/money"
)

// QuoteTick is a best bid/ask (L1) snapshot.
type QuoteTick struct {
	InstrumentID id.InstrumentID
	BidPrice     money.Price
	AskPrice     money.Price
	BidSize      money.Quantity
	AskSize      money.Quantity
	TsEvent      int64
	TsInit       int64
}

// MidPrice returns (bid+ask)/2, unrounded.
func (q QuoteTick) MidPrice() decimal.Decimal {
	return q.BidPrice.Value.Add(q.AskPrice.Value).Div(decimal.NewFromInt(2))
}

// Spread returns ask-bid.
func (q QuoteTick) Spread() decimal.Decimal {
	return q.AskPrice.Value.Sub(q.BidPrice.Value)
}

func (q QuoteTick) String() string {
	return fmt.Sprintf("QuoteTick(%s bid=%s ask=%s)", q.InstrumentID, q.BidPrice, q.AskPrice)
}

// TradeTick is a single executed trade / market print.
type TradeTick struct {
	InstrumentID  id.InstrumentID
	Price         money.Price
	Size          money.Quantity
	AggressorSide enums.AggressorSide
	TradeID       id.TradeID
	TsEvent       int64
	TsInit        int64
}

func (t TradeTick) String() string {
	return fmt.Sprintf("TradeTick(%s %d %s@%s)", t.InstrumentID, t.AggressorSide, t.Size, t.Price)
}

// InstrumentStatus is a market status update (OPEN/HALT/CLOSE/...).
type InstrumentStatus struct {
	InstrumentID id.InstrumentID
	Status       string
	TsEvent      int64
	TsInit       int64
}
