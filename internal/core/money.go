// Package core holds the domain model of the finance tracker: money values,
// transaction records, category and type enumerations, and the balance
// reconciliation rules.
package core

import (
	"errors"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrInvalidAmount is returned for amounts that are not parseable, negative,
// or out of range.
var ErrInvalidAmount = errors.New("invalid amount")

// Money is a currency amount in cents (two decimal places of precision).
// Arithmetic stays in integer cents; decimal conversion happens only at the
// parsing and formatting boundaries.
type Money struct {
	Cents int64
}

var maxCents = decimal.NewFromInt(math.MaxInt64)

// ParseAmount converts a decimal string to Money with half-up rounding on the
// third decimal digit. Both dot and comma decimal separators are accepted.
// Negative amounts are rejected; zero is allowed.
func ParseAmount(s string) (Money, error) {
	d, err := decimal.NewFromString(normalizeDecimal(s))
	if err != nil {
		return Money{}, ErrInvalidAmount
	}
	if d.IsNegative() {
		return Money{}, ErrInvalidAmount
	}
	cents := d.Shift(2).Round(0)
	if cents.GreaterThan(maxCents) {
		return Money{}, ErrInvalidAmount
	}
	return Money{Cents: cents.IntPart()}, nil
}

func normalizeDecimal(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case ' ', '\t':
			// tolerate surrounding whitespace
		case ',':
			out = append(out, '.')
		default:
			out = append(out, s[i])
		}
	}
	return string(out)
}

// Decimal returns the amount as a two-decimal value for display and export.
// Calculations should stay on Cents to avoid precision loss.
func (m Money) Decimal() decimal.Decimal {
	return decimal.NewFromInt(m.Cents).Shift(-2)
}

// String formats the amount with exactly two decimal places.
func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}

// MarshalJSON encodes the amount as a two-decimal string.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.String() + `"`), nil
}

// UnmarshalJSON decodes a decimal string or number. Unlike ParseAmount this
// accepts negative values, since balances can go below zero.
func (m *Money) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	d, err := decimal.NewFromString(normalizeDecimal(s))
	if err != nil {
		return ErrInvalidAmount
	}
	cents := d.Shift(2).Round(0)
	if cents.Abs().GreaterThan(maxCents) {
		return ErrInvalidAmount
	}
	m.Cents = cents.IntPart()
	return nil
}

// Add returns m + o.
func (m Money) Add(o Money) Money {
	return Money{Cents: m.Cents + o.Cents}
}

// Sub returns m - o.
func (m Money) Sub(o Money) Money {
	return Money{Cents: m.Cents - o.Cents}
}

// Neg returns the amount with its sign flipped.
func (m Money) Neg() Money {
	return Money{Cents: -m.Cents}
}

// IsZero reports whether the amount is exactly zero.
func (m Money) IsZero() bool {
	return m.Cents == 0
}

// Validate rejects negative amounts. Transaction amounts are unsigned; the
// direction comes from the transaction type.
func (m Money) Validate() error {
	if m.Cents < 0 {
		return ErrInvalidAmount
	}
	return nil
}
