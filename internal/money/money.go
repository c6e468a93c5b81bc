// Package money implements the Money value object: a non-negative amount
// paired with a 3-letter currency code. This core does no cross-currency
// conversion (that belongs to the valuator port), so Add/Sub/Mul simply
// refuse to operate across mismatched currencies.
package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Money is an immutable amount-plus-currency value object. The zero value
// is not meaningful; construct with New.
type Money struct {
	amount   decimal.Decimal
	currency string
}

// New builds a Money value. currency is upper-cased; amount must be
// non-negative.
func New(amount decimal.Decimal, currency string) (Money, error) {
	if amount.IsNegative() {
		return Money{}, fmt.Errorf("money: negative amount %s", amount.String())
	}
	cur := strings.ToUpper(strings.TrimSpace(currency))
	if len(cur) != 3 {
		return Money{}, fmt.Errorf("money: currency code must be 3 letters, got %q", currency)
	}
	return Money{amount: amount, currency: cur}, nil
}

// MustNew is New but panics on error; useful for literals built from
// trusted constants (tests, defaults).
func MustNew(amount decimal.Decimal, currency string) Money {
	m, err := New(amount, currency)
	if err != nil {
		panic(err)
	}
	return m
}

// Zero returns a zero-valued Money in the given currency.
func Zero(currency string) Money {
	return MustNew(decimal.Zero, currency)
}

// Amount returns the decimal amount.
func (m Money) Amount() decimal.Decimal { return m.amount }

// Currency returns the upper-cased 3-letter currency code.
func (m Money) Currency() string { return m.currency }

// IsZero reports whether the amount is exactly zero.
func (m Money) IsZero() bool { return m.amount.IsZero() }

// Add returns m+other. Mismatched currencies are rejected.
func (m Money) Add(other Money) (Money, error) {
	if m.currency != other.currency {
		return Money{}, fmt.Errorf("money: cannot add %s to %s", other.currency, m.currency)
	}
	return Money{amount: m.amount.Add(other.amount), currency: m.currency}, nil
}

// Sub returns m-other. Mismatched currencies or an underflowing result are
// rejected.
func (m Money) Sub(other Money) (Money, error) {
	if m.currency != other.currency {
		return Money{}, fmt.Errorf("money: cannot subtract %s from %s", other.currency, m.currency)
	}
	result := m.amount.Sub(other.amount)
	if result.IsNegative() {
		return Money{}, fmt.Errorf("money: subtraction underflow: %s - %s", m.amount.String(), other.amount.String())
	}
	return Money{amount: result, currency: m.currency}, nil
}

// Mul scales the amount by a non-negative factor.
func (m Money) Mul(factor decimal.Decimal) (Money, error) {
	if factor.IsNegative() {
		return Money{}, fmt.Errorf("money: cannot multiply by negative factor %s", factor.String())
	}
	return Money{amount: m.amount.Mul(factor), currency: m.currency}, nil
}

// String renders "amount CUR".
func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.amount.String(), m.currency)
}
