package money

import "errors"

// ErrCurrencyMismatch is returned whenever an operation mixes two Money
// values of different currencies. Corresponds to spec's CurrencyMismatch
// error kind — fatal to the caller, never silently coerced.
var ErrCurrencyMismatch = errors.New("money: currency mismatch")

// ErrInvalidConstruction is returned by constructors given an invalid
// combination of inputs (e.g. a negative Quantity).
var ErrInvalidConstruction = errors.New("money: invalid construction")
