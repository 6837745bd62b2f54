package money

import "github.com/shopspring/decimal"

// Money pairs an exact decimal amount with its Currency. Arithmetic
// between two Money values requires matching currencies; mismatched
// currencies return ErrCurrencyMismatch rather than silently converting.
type Money struct {
	Amount   decimal.Decimal
	Currency Currency
}

// NewMoney constructs a Money value, quantizing the amount half-up to
// the currency's declared precision.
func NewMoney(amount decimal.Decimal, cur Currency) Money {
	return Money{Amount: roundHalfUp(amount, cur.Precision), Currency: cur}
}

// Zero returns a zero-valued Money in the given currency.
func Zero(cur Currency) Money {
	return Money{Amount: decimal.Zero, Currency: cur}
}

func (a Money) sameCurrency(b Money) bool { return a.Currency.Code == b.Currency.Code }

func (a Money) Add(b Money) (Money, error) {
	if !a.sameCurrency(b) {
		return Money{}, ErrCurrencyMismatch
	}
	return NewMoney(a.Amount.Add(b.Amount), a.Currency), nil
}

func (a Money) Sub(b Money) (Money, error) {
	if !a.sameCurrency(b) {
		return Money{}, ErrCurrencyMismatch
	}
	return NewMoney(a.Amount.Sub(b.Amount), a.Currency), nil
}

// MustAdd panics on a currency mismatch; reserved for call sites that
// have already validated currency equality (e.g. both operands are known
// to be the account's base currency).
func (a Money) MustAdd(b Money) Money {
	m, err := a.Add(b)
	if err != nil {
		panic(err)
	}
	return m
}

func (a Money) IsNegative() bool { return a.Amount.IsNegative() }
func (a Money) IsZero() bool     { return a.Amount.IsZero() }
func (a Money) LessThan(b Money) bool {
	return a.Amount.LessThan(b.Amount)
}
func (a Money) GreaterThanOrEqual(b Money) bool {
	return a.Amount.GreaterThanOrEqual(b.Amount)
}

func (a Money) String() string {
	return a.Amount.StringFixed(a.Currency.Precision) + " " + a.Currency.Code
}

// AccountBalance is a per-currency (total, locked, free) triple with
// free = max(0, total-locked).
type AccountBalance struct {
	Total  Money
	Locked Money
	Free   Money
}

// NewAccountBalance derives Free from Total and Locked, clamped at zero.
func NewAccountBalance(total, locked Money) (AccountBalance, error) {
	if !total.sameCurrency(locked) {
		return AccountBalance{}, ErrCurrencyMismatch
	}
	free := total.Amount.Sub(locked.Amount)
	if free.IsNegative() {
		free = decimal.Zero
	}
	return AccountBalance{
		Total:  total,
		Locked: locked,
		Free:   NewMoney(free, total.Currency),
	}, nil
}

// MarginBalance tracks initial and maintenance margin locked against an
// instrument (or the account as a whole, when InstrumentID is empty).
type MarginBalance struct {
	Initial      Money
	Maintenance  Money
	InstrumentID string
}
