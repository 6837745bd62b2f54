package money

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestPriceQuantizesHalfUp(t *testing.T) {
	cases := []struct {
		in        string
		precision int32
		want      string
	}{
		{"100.005", 2, "100.01"},
		{"100.004", 2, "100.00"},
		{"99.995", 2, "100.00"},
		{"1.5", 0, "2"},
		{"0.123456789", 8, "0.12345679"},
	}
	for _, c := range cases {
		p, err := PriceFromString(c.in, c.precision)
		if err != nil {
			t.Fatalf("PriceFromString(%q): %v", c.in, err)
		}
		if got := p.String(); got != c.want {
			t.Errorf("PriceFromString(%q, %d) = %s, want %s", c.in, c.precision, got, c.want)
		}
	}
}

func TestPriceArithmeticWidensPrecision(t *testing.T) {
	a := NewPrice(dec("100.1"), 1)
	b := NewPrice(dec("0.025"), 3)
	sum := a.Add(b)
	if sum.Precision != 3 {
		t.Errorf("precision = %d, want 3", sum.Precision)
	}
	if sum.String() != "100.125" {
		t.Errorf("sum = %s, want 100.125", sum)
	}
}

func TestQuantityNeverNegative(t *testing.T) {
	q := NewQuantity(dec("-5"), 2)
	if !q.IsZero() {
		t.Errorf("negative quantity should clamp to zero, got %s", q)
	}
	a := NewQuantity(dec("3"), 0)
	b := NewQuantity(dec("5"), 0)
	if got := a.Sub(b); !got.IsZero() {
		t.Errorf("3-5 should clamp to zero, got %s", got)
	}
}

func TestMoneyCurrencyMismatch(t *testing.T) {
	usd := NewMoney(dec("10"), USD)
	eur := NewMoney(dec("10"), EUR)
	if _, err := usd.Add(eur); !errors.Is(err, ErrCurrencyMismatch) {
		t.Errorf("expected ErrCurrencyMismatch, got %v", err)
	}
	if _, err := usd.Sub(eur); !errors.Is(err, ErrCurrencyMismatch) {
		t.Errorf("expected ErrCurrencyMismatch, got %v", err)
	}
}

func TestMoneyQuantizesToCurrencyPrecision(t *testing.T) {
	m := NewMoney(dec("10.005"), USD)
	if m.String() != "10.01 USD" {
		t.Errorf("got %s, want 10.01 USD", m)
	}
	jpy := NewMoney(dec("100.4"), JPY)
	if jpy.String() != "100 JPY" {
		t.Errorf("got %s, want 100 JPY", jpy)
	}
}

func TestAccountBalanceFreeClamped(t *testing.T) {
	total := NewMoney(dec("100"), USD)
	locked := NewMoney(dec("150"), USD)
	bal, err := NewAccountBalance(total, locked)
	if err != nil {
		t.Fatalf("NewAccountBalance: %v", err)
	}
	if !bal.Free.IsZero() {
		t.Errorf("free should clamp to zero when locked > total, got %s", bal.Free)
	}

	locked2 := NewMoney(dec("30"), USD)
	bal2, _ := NewAccountBalance(total, locked2)
	if bal2.Free.String() != "70.00 USD" {
		t.Errorf("free = %s, want 70.00 USD", bal2.Free)
	}
}

func TestCurrencyRegistry(t *testing.T) {
	c, ok := LookupCurrency("USD")
	if !ok || c.Precision != 2 || c.Kind != KindFiat {
		t.Errorf("USD lookup = %+v, ok=%v", c, ok)
	}
	if _, ok := LookupCurrency("XXX"); ok {
		t.Error("unknown code should not resolve")
	}
	custom := RegisterCurrency("TST", 4, KindCrypto)
	got, ok := LookupCurrency("TST")
	if !ok || got != custom {
		t.Errorf("registered currency not interned: %+v", got)
	}
}
