package money

import "github.com/shopspring/decimal"

// Quantity is a non-negative exact decimal quantized half-up to
// Precision digits after the point.
type Quantity struct {
	Value     decimal.Decimal
	Precision int32
}

// NewQuantity constructs a Quantity, quantizing half-up to precision.
// Negative values are clamped to zero — quantities are never negative;
// direction is carried separately by OrderSide / Position.signed_qty.
func NewQuantity(v decimal.Decimal, precision int32) Quantity {
	q := roundHalfUp(v, precision)
	if q.IsNegative() {
		q = decimal.Zero
	}
	return Quantity{Value: q, Precision: precision}
}

// QuantityFromString parses and quantizes a decimal string.
func QuantityFromString(s string, precision int32) (Quantity, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Quantity{}, err
	}
	return NewQuantity(d, precision), nil
}

// ZeroQuantity returns a zero-valued Quantity at the given precision.
func ZeroQuantity(precision int32) Quantity {
	return Quantity{Value: decimal.Zero, Precision: precision}
}

func (a Quantity) Add(b Quantity) Quantity {
	p := widenPrecision(a.Precision, b.Precision)
	return NewQuantity(a.Value.Add(b.Value), p)
}

// Sub returns a-b clamped to zero at the wider precision (quantities
// never go negative; callers needing signed deltas should use
// decimal.Decimal directly, e.g. for signed_qty bookkeeping).
func (a Quantity) Sub(b Quantity) Quantity {
	p := widenPrecision(a.Precision, b.Precision)
	return NewQuantity(a.Value.Sub(b.Value), p)
}

func (a Quantity) Cmp(b Quantity) int          { return a.Value.Cmp(b.Value) }
func (a Quantity) LessThan(b Quantity) bool    { return a.Value.LessThan(b.Value) }
func (a Quantity) GreaterThan(b Quantity) bool { return a.Value.GreaterThan(b.Value) }
func (a Quantity) Equal(b Quantity) bool       { return a.Value.Equal(b.Value) }
func (a Quantity) IsZero() bool                { return a.Value.IsZero() }
func (a Quantity) IsPositive() bool            { return a.Value.IsPositive() }

func (a Quantity) String() string { return a.Value.StringFixed(a.Precision) }
