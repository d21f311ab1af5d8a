// Package money converts between decimal amounts and integer minor units.
// Balances and ticket totals are always stored and computed as int64 minor units.
package money

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

const minorDigits = 2

var (
	ErrNegativeAmount  = errors.New("amount must not be negative")
	ErrFractionalMinor = errors.New("amount has more than two decimal places")
	ErrOutOfRange      = errors.New("amount is too large")
)

// FromDecimal converts a major-unit decimal (e.g. 300.50) into minor units.
func FromDecimal(d decimal.Decimal) (int64, error) {
	if d.IsNegative() {
		return 0, ErrNegativeAmount
	}
	shifted := d.Shift(minorDigits)
	if !shifted.Equal(shifted.Truncate(0)) {
		return 0, ErrFractionalMinor
	}
	return toMinor(shifted)
}

// Parse reads a major-unit decimal string.
func Parse(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return FromDecimal(d)
}

// ParseMinor reads an amount already expressed in minor units, as payment
// gateways report it.
func ParseMinor(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse minor amount %q: %w", s, err)
	}
	if d.IsNegative() {
		return 0, ErrNegativeAmount
	}
	if !d.Equal(d.Truncate(0)) {
		return 0, ErrFractionalMinor
	}
	return toMinor(d)
}

// toMinor expects a whole number. IntPart silently wraps outside int64.
func toMinor(d decimal.Decimal) (int64, error) {
	if !d.BigInt().IsInt64() {
		return 0, ErrOutOfRange
	}
	return d.IntPart(), nil
}

func ToDecimal(minor int64) decimal.Decimal {
	return decimal.New(minor, -minorDigits)
}

func Format(minor int64) string {
	return ToDecimal(minor).StringFixed(minorDigits)
}

// Percent returns pct percent of amount, rounded toward zero. pct is expected
// within [0, 100] so the result always fits in int64.
func Percent(amount, pct int64) int64 {
	q, _ := decimal.NewFromInt(amount).Mul(decimal.NewFromInt(pct)).QuoRem(decimal.NewFromInt(100), 0)
	return q.IntPart()
}
