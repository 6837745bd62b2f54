package account

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/forgequant/backtestcore/core/money"
)

func TestCashAccountSufficiency(t *testing.T) {
	acct := NewCashAccount("SIM-001", &money.USD)
	acct.UpdateBalance(money.USD, decimal.NewFromInt(100_000), decimal.Zero)

	ok, _ := acct.CanSubmitOrder(decimal.NewFromInt(10), decimal.NewFromInt(100), money.USD, nil)
	if !ok {
		t.Error("1,000 cost against 100,000 free should pass")
	}

	ok, reason := acct.CanSubmitOrder(decimal.NewFromInt(2000), decimal.NewFromInt(100), money.USD, nil)
	if ok {
		t.Error("200,000 cost against 100,000 free should fail")
	}
	if reason == "" {
		t.Error("failure must carry a reason")
	}
}

func TestMarginAccountUsesLeverage(t *testing.T) {
	acct := NewMarginAccount("SIM-001", &money.USD, decimal.NewFromInt(10))
	acct.UpdateBalance(money.USD, decimal.NewFromInt(10_000), decimal.Zero)

	// Notional 200,000 * margin_init 0.05 / leverage 10 = 1,000 required.
	marginInit := decimal.New(5, -2)
	ok, _ := acct.CanSubmitOrder(decimal.NewFromInt(2000), decimal.NewFromInt(100), money.USD, &marginInit)
	if !ok {
		t.Error("margin requirement 1,000 against 10,000 free should pass")
	}

	// Notional 4,000,000 -> requirement 20,000 > 10,000 free.
	ok, _ = acct.CanSubmitOrder(decimal.NewFromInt(40_000), decimal.NewFromInt(100), money.USD, &marginInit)
	if ok {
		t.Error("margin requirement 20,000 against 10,000 free should fail")
	}
}

func TestCreditAndDeduct(t *testing.T) {
	acct := NewCashAccount("SIM-001", &money.USD)
	acct.UpdateBalance(money.USD, decimal.NewFromInt(1000), decimal.Zero)

	acct.Credit(decimal.NewFromInt(-250), money.USD)
	total, _ := acct.BalanceTotal(nil)
	if total.Amount.String() != "750" {
		t.Errorf("total = %s, want 750", total.Amount)
	}

	if err := acct.Deduct(decimal.NewFromInt(100), money.USD); err != nil {
		t.Fatalf("Deduct: %v", err)
	}
	free, _ := acct.BalanceFree(nil)
	locked, _ := acct.BalanceLocked(nil)
	if free.Amount.String() != "650" || locked.Amount.String() != "100" {
		t.Errorf("free/locked = %s/%s, want 650/100", free.Amount, locked.Amount)
	}
	// free + locked = total invariant.
	if !free.Amount.Add(locked.Amount).Equal(total.Amount) {
		t.Error("free + locked != total")
	}
}

func TestCommissionAccrual(t *testing.T) {
	acct := NewCashAccount("SIM-001", &money.USD)
	acct.UpdateCommissions(money.USD, decimal.RequireFromString("1.25"))
	acct.UpdateCommissions(money.USD, decimal.RequireFromString("0.75"))
	acct.UpdateCommissions(money.EUR, decimal.NewFromInt(3))

	// Accrual is per currency.
	if got := acct.commissions["USD"]; !got.Equal(decimal.NewFromInt(2)) {
		t.Errorf("USD commissions = %s, want 2", got)
	}
	if got := acct.commissions["EUR"]; !got.Equal(decimal.NewFromInt(3)) {
		t.Errorf("EUR commissions = %s, want 3", got)
	}
}
