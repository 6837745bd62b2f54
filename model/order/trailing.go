package order

import (
	"github.com/shopspring/decimal"

	"github.com/forgequant/backtestcore/core/enums"
	"github.com/forgequant/backtestcore/core/money"
)

var basisPointsDivisor = decimal.NewFromInt(10000)

// UpdateTrailingTrigger recomputes a trailing order's dynamic trigger
// price from the latest market price, ratcheting it in the favourable
// direction only, and reports whether the order should now fire as if
// its trigger price were touched. priceIncrement is the instrument's
// tick size, used when TrailingOffsetType is OffsetTicks (the offset is
// interpreted as a tick count, per the spec's explicit semantics).
func (o *Order) UpdateTrailingTrigger(marketPrice decimal.Decimal, precision int32, priceIncrement decimal.Decimal) bool {
	if !o.Type.IsTrailing() {
		return false
	}

	if !o.IsActivated {
		if o.TriggerPrice != nil {
			switch {
			case o.IsSell() && marketPrice.GreaterThanOrEqual(o.TriggerPrice.Value):
				o.IsActivated = true
			case o.IsBuy() && marketPrice.LessThanOrEqual(o.TriggerPrice.Value):
				o.IsActivated = true
			}
		} else {
			o.IsActivated = true
		}
	}
	if !o.IsActivated {
		return false
	}

	offset := o.computeOffset(marketPrice, priceIncrement)

	if o.IsSell() {
		if o.extremePrice == nil || marketPrice.GreaterThan(*o.extremePrice) {
			mp := marketPrice
			o.extremePrice = &mp
			newTrigger := marketPrice.Sub(offset)
			if o.TriggerPrice == nil || newTrigger.GreaterThan(o.TriggerPrice.Value) {
				p := money.NewPrice(newTrigger, precision)
				o.TriggerPrice = &p
			}
		}
		if o.TriggerPrice != nil && marketPrice.LessThanOrEqual(o.TriggerPrice.Value) {
			o.IsTriggered = true
			return true
		}
		return false
	}

	// Buy side: ratchet down.
	if o.extremePrice == nil || marketPrice.LessThan(*o.extremePrice) {
		mp := marketPrice
		o.extremePrice = &mp
		newTrigger := marketPrice.Add(offset)
		if o.TriggerPrice == nil || newTrigger.LessThan(o.TriggerPrice.Value) {
			p := money.NewPrice(newTrigger, precision)
			o.TriggerPrice = &p
		}
	}
	if o.TriggerPrice != nil && marketPrice.GreaterThanOrEqual(o.TriggerPrice.Value) {
		o.IsTriggered = true
		return true
	}
	return false
}

func (o *Order) computeOffset(marketPrice decimal.Decimal, priceIncrement decimal.Decimal) decimal.Decimal {
	switch o.TrailingOffsetType {
	case enums.OffsetBasisPoints:
		return marketPrice.Mul(o.TrailingOffset).Div(basisPointsDivisor)
	case enums.OffsetTicks:
		return o.TrailingOffset.Mul(priceIncrement)
	default: // OffsetPrice
		return o.TrailingOffset
	}
}

// TrailingLimitPrice returns the resting limit price a triggered
// TrailingStopLimit order should rest at: trigger-limit_offset for
// sells, trigger+limit_offset for buys.
func (o *Order) TrailingLimitPrice(precision int32) (decimal.Decimal, bool) {
	if o.Price != nil {
		return o.Price.Value, true
	}
	if o.TriggerPrice == nil {
		return decimal.Zero, false
	}
	if o.IsSell() {
		return o.TriggerPrice.Value.Sub(o.LimitOffset), true
	}
	return o.TriggerPrice.Value.Add(o.LimitOffset), true
}
