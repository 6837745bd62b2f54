// Package account implements per-currency balance tracking for cash and
// margin accounts: free/locked/total bookkeeping, commission accrual,
// and pre-trade sufficiency checks consulted by the simulated exchange.
package account

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/forgequant/backtestcore/core/enums"
	"github.com/forgequant/backtestcore/core/id"
	"github.com/forgequant/backtestcore/core/money"
)

// Account holds per-currency balances and cumulative commissions for a
// single venue account. CashAccount and MarginAccount specialize its
// can-submit checks.
type Account struct {
	ID                 id.AccountID
	Type               enums.AccountType
	BaseCurrency       *money.Currency
	Leverage           decimal.Decimal
	DefaultMarginInit  decimal.Decimal
	DefaultMarginMaint decimal.Decimal

	balances     map[string]money.AccountBalance
	commissions  map[string]decimal.Decimal
	marginLocked map[string]decimal.Decimal
}

// NewCashAccount constructs a leverage-free account.
func NewCashAccount(accountID id.AccountID, baseCurrency *money.Currency) *Account {
	return &Account{
		ID:           accountID,
		Type:         enums.Cash,
		BaseCurrency: baseCurrency,
		Leverage:     decimal.NewFromInt(1),
		balances:     make(map[string]money.AccountBalance),
		commissions:  make(map[string]decimal.Decimal),
	}
}

// NewMarginAccount constructs a leveraged account.
func NewMarginAccount(accountID id.AccountID, baseCurrency *money.Currency, leverage decimal.Decimal) *Account {
	return &Account{
		ID:                 accountID,
		Type:               enums.Margin,
		BaseCurrency:       baseCurrency,
		Leverage:           leverage,
		DefaultMarginInit:  decimal.New(5, -2),  // 0.05
		DefaultMarginMaint: decimal.New(25, -3), // 0.025
		balances:           make(map[string]money.AccountBalance),
		commissions:        make(map[string]decimal.Decimal),
		marginLocked:       make(map[string]decimal.Decimal),
	}
}

// UpdateBalance replaces the total/locked (and derived free) balance for currency.
func (a *Account) UpdateBalance(currency money.Currency, total, locked decimal.Decimal) {
	free := total.Sub(locked)
	if free.IsNegative() {
		free = decimal.Zero
	}
	a.balances[currency.Code] = money.AccountBalance{
		Total:  money.NewMoney(total, currency),
		Locked: money.NewMoney(locked, currency),
		Free:   money.NewMoney(free, currency),
	}
}

func (a *Account) currencyOrBase(currency *money.Currency) (money.Currency, bool) {
	if currency != nil {
		return *currency, true
	}
	if a.BaseCurrency != nil {
		return *a.BaseCurrency, true
	}
	return money.Currency{}, false
}

// BalanceTotal returns the total balance for currency (or the base
// currency if nil).
func (a *Account) BalanceTotal(currency *money.Currency) (money.Money, bool) {
	c, ok := a.currencyOrBase(currency)
	if !ok {
		return money.Money{}, false
	}
	bal, ok := a.balances[c.Code]
	if !ok {
		return money.Money{}, false
	}
	return bal.Total, true
}

// BalanceFree returns the free balance for currency (or the base
// currency if nil).
func (a *Account) BalanceFree(currency *money.Currency) (money.Money, bool) {
	c, ok := a.currencyOrBase(currency)
	if !ok {
		return money.Money{}, false
	}
	bal, ok := a.balances[c.Code]
	if !ok {
		return money.Money{}, false
	}
	return bal.Free, true
}

// BalanceLocked returns the locked balance for currency (or the base
// currency if nil).
func (a *Account) BalanceLocked(currency *money.Currency) (money.Money, bool) {
	c, ok := a.currencyOrBase(currency)
	if !ok {
		return money.Money{}, false
	}
	bal, ok := a.balances[c.Code]
	if !ok {
		return money.Money{}, false
	}
	return bal.Locked, true
}

// Balances returns a copy of all tracked per-currency balances.
func (a *Account) Balances() map[string]money.AccountBalance {
	out := make(map[string]money.AccountBalance, len(a.balances))
	for k, v := range a.balances {
		out[k] = v
	}
	return out
}

// UpdateCommissions accrues a commission amount against currency.
func (a *Account) UpdateCommissions(currency money.Currency, amount decimal.Decimal) {
	a.commissions[currency.Code] = a.commissions[currency.Code].Add(amount)
}

// HasSufficientBalance reports whether the free balance in currency
// covers required.
func (a *Account) HasSufficientBalance(required decimal.Decimal, currency money.Currency) bool {
	bal, ok := a.balances[currency.Code]
	if !ok {
		return false
	}
	return bal.Free.Amount.GreaterThanOrEqual(required)
}

// Deduct moves amount from free into locked for currency.
func (a *Account) Deduct(amount decimal.Decimal, currency money.Currency) error {
	bal, ok := a.balances[currency.Code]
	if !ok {
		return fmt.Errorf("account: no balance for %s", currency.Code)
	}
	newLocked := bal.Locked.Amount.Add(amount)
	a.UpdateBalance(currency, bal.Total.Amount, newLocked)
	return nil
}

// Credit adds amount to total (and so to free) for currency.
func (a *Account) Credit(amount decimal.Decimal, currency money.Currency) {
	bal, ok := a.balances[currency.Code]
	if !ok {
		a.UpdateBalance(currency, amount, decimal.Zero)
		return
	}
	a.UpdateBalance(currency, bal.Total.Amount.Add(amount), bal.Locked.Amount)
}

// CalculateOrderCost is the cash-account notional: qty*price.
func (a *Account) CalculateOrderCost(quantity, price decimal.Decimal) decimal.Decimal {
	return quantity.Mul(price)
}

// CalculateInitialMargin is the margin-account required-margin formula:
// notional*margin_init/leverage.
func (a *Account) CalculateInitialMargin(marginInit, quantity, price decimal.Decimal) decimal.Decimal {
	notional := quantity.Mul(price)
	leverage := a.Leverage
	if leverage.IsZero() {
		leverage = decimal.NewFromInt(1)
	}
	return notional.Mul(marginInit).Div(leverage)
}

// CanSubmitOrder checks pre-trade balance sufficiency. marginInit is
// only consulted for margin accounts, where nil falls back to
// DefaultMarginInit; cash accounts ignore it and may pass nil.
func (a *Account) CanSubmitOrder(quantity, price decimal.Decimal, currency money.Currency, marginInit *decimal.Decimal) (bool, string) {
	var required decimal.Decimal
	if a.Type == enums.Cash {
		required = a.CalculateOrderCost(quantity, price)
	} else {
		rate := a.DefaultMarginInit
		if marginInit != nil {
			rate = *marginInit
		}
		required = quantity.Mul(price).Mul(rate).Div(a.Leverage)
	}
	free, ok := a.BalanceFree(&currency)
	if !ok || free.Amount.LessThan(required) {
		return false, fmt.Sprintf("insufficient balance: need %s %s, have %s", required.StringFixed(2), currency.Code, free.Amount.StringFixed(2))
	}
	return true, ""
}

// UpdateMargin records the initial margin currently locked against an instrument.
func (a *Account) UpdateMargin(instrumentID string, initial decimal.Decimal) {
	if a.marginLocked == nil {
		a.marginLocked = make(map[string]decimal.Decimal)
	}
	a.marginLocked[instrumentID] = initial
}

// TotalMarginLocked sums margin locked across all instruments.
func (a *Account) TotalMarginLocked() decimal.Decimal {
	total := decimal.Zero
	for _, v := range a.marginLocked {
		total = total.Add(v)
	}
	return total
}

func (a *Account) String() string {
	return fmt.Sprintf("Account(id=%s, type=%v)", a.ID, a.Type)
}
