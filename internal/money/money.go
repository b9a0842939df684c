package money

import (
	"encoding/json"
	"errors"
	"fmt"

	gomoney "github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// ErrCurrencyMismatch is returned when two amounts of different currencies are combined.
var ErrCurrencyMismatch = gomoney.ErrCurrencyMismatch

// ErrInvalidAmount is returned by Parse for malformed or over-precise input.
var ErrInvalidAmount = errors.New("invalid money amount")

// Money is an amount in minor units (cents) of a single currency.
// It may be negative; callers holding balances enforce their own floor.
type Money struct {
	amount   int64
	currency string
}

// New returns an amount expressed in minor units.
func New(minor int64, currency string) Money {
	return Money{amount: minor, currency: currency}
}

// Zero returns a zero amount of the given currency.
func Zero(currency string) Money {
	return Money{currency: currency}
}

// Parse reads a major-unit amount such as "245.50". More fractional digits than
// the currency carries is an error, never a silent rounding.
func Parse(major, currency string) (Money, error) {
	if !IsKnownCurrency(currency) {
		return Money{}, fmt.Errorf("%w: unknown currency %q", ErrInvalidAmount, currency)
	}
	d, err := decimal.NewFromString(major)
	if err != nil {
		return Money{}, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	minor := d.Shift(fraction(currency))
	if !minor.Equal(minor.Truncate(0)) {
		return Money{}, fmt.Errorf("%w: %s has more than %d decimals", ErrInvalidAmount, major, fraction(currency))
	}
	return Money{amount: minor.IntPart(), currency: currency}, nil
}

// MustParse is Parse for constants and tests.
func MustParse(major, currency string) Money {
	m, err := Parse(major, currency)
	if err != nil {
		panic(err)
	}
	return m
}

// FromDecimal converts a major-unit decimal, rounding half away from zero to minor units.
func FromDecimal(d decimal.Decimal, currency string) Money {
	return Money{amount: d.Shift(fraction(currency)).Round(0).IntPart(), currency: currency}
}

// IsKnownCurrency reports whether code is an ISO 4217 code known to go-money.
func IsKnownCurrency(code string) bool {
	return code != "" && gomoney.GetCurrency(code) != nil
}

func fraction(currency string) int32 {
	if c := gomoney.GetCurrency(currency); c != nil {
		return int32(c.Fraction)
	}
	return 2
}

func (m Money) gm() *gomoney.Money { return gomoney.New(m.amount, m.currency) }

func (m Money) Amount() int64      { return m.amount }
func (m Money) Currency() string   { return m.currency }
func (m Money) IsZero() bool       { return m.amount == 0 }
func (m Money) IsPositive() bool   { return m.amount > 0 }
func (m Money) IsNegative() bool   { return m.amount < 0 }
func (m Money) Neg() Money         { return Money{amount: -m.amount, currency: m.currency} }
func (m Money) Equal(n Money) bool { return m.amount == n.amount && m.currency == n.currency }

// Decimal returns the amount in major units.
func (m Money) Decimal() decimal.Decimal {
	return decimal.NewFromInt(m.amount).Shift(-fraction(m.currency))
}

func (m Money) Add(n Money) (Money, error) {
	sum, err := m.gm().Add(n.gm())
	if err != nil {
		return Money{}, err
	}
	return Money{amount: sum.Amount(), currency: m.currency}, nil
}

func (m Money) Sub(n Money) (Money, error) {
	diff, err := m.gm().Subtract(n.gm())
	if err != nil {
		return Money{}, err
	}
	return Money{amount: diff.Amount(), currency: m.currency}, nil
}

// Cmp returns -1, 0 or 1.
func (m Money) Cmp(n Money) (int, error) {
	return m.gm().Compare(n.gm())
}

// MulQuantity multiplies a unit price by a (possibly fractional) quantity.
func (m Money) MulQuantity(q decimal.Decimal) Money {
	return Money{amount: decimal.NewFromInt(m.amount).Mul(q).Round(0).IntPart(), currency: m.currency}
}

// String formats for display, e.g. R700.00.
func (m Money) String() string {
	if m.currency == "" {
		return m.Decimal().StringFixed(2)
	}
	return m.gm().Display()
}

type wire struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(wire{
		Amount:   m.Decimal().StringFixed(fraction(m.currency)),
		Currency: m.currency,
	})
}

func (m *Money) UnmarshalJSON(data []byte) error {
	var w wire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	parsed, err := Parse(w.Amount, w.Currency)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
