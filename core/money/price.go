package money

import "github.com/shopspring/decimal"

// Price is an exact decimal quantized half-up to Precision digits after
// the point. Arithmetic between two Prices widens to the larger
// precision of the two operands, matching spec's numeric-exactness rule.
type Price struct {
	Value     decimal.Decimal
	Precision int32
}

// roundHalfUp quantizes v to precision digits using round-half-up, the
// convention spec mandates (not banker's rounding).
func roundHalfUp(v decimal.Decimal, precision int32) decimal.Decimal {
	return v.Round(precision)
}

// NewPrice constructs a Price, quantizing half-up to precision.
func NewPrice(v decimal.Decimal, precision int32) Price {
	return Price{Value: roundHalfUp(v, precision), Precision: precision}
}

// PriceFromString parses a decimal string and quantizes it, matching the
// original source's `Decimal(str(value)).quantize(q, ROUND_HALF_UP)`.
func PriceFromString(s string, precision int32) (Price, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Price{}, err
	}
	return NewPrice(d, precision), nil
}

func widenPrecision(a, b int32) int32 {
	if a > b {
		return a
	}
	return b
}

// Add returns a+b, quantized to the wider of the two precisions.
func (a Price) Add(b Price) Price {
	p := widenPrecision(a.Precision, b.Precision)
	return NewPrice(a.Value.Add(b.Value), p)
}

// Sub returns a-b, quantized to the wider of the two precisions.
func (a Price) Sub(b Price) Price {
	p := widenPrecision(a.Precision, b.Precision)
	return NewPrice(a.Value.Sub(b.Value), p)
}

func (a Price) Cmp(b Price) int          { return a.Value.Cmp(b.Value) }
func (a Price) LessThan(b Price) bool    { return a.Value.LessThan(b.Value) }
func (a Price) GreaterThan(b Price) bool { return a.Value.GreaterThan(b.Value) }
func (a Price) Equal(b Price) bool       { return a.Value.Equal(b.Value) }
func (a Price) IsZero() bool             { return a.Value.IsZero() }

func (a Price) String() string { return a.Value.StringFixed(a.Precision) }
