// Package money converts between database numerics and decimal arithmetic.
package money

import (
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// Epsilon is the settlement tolerance: one cent.
var Epsilon = decimal.New(1, -2)

// MaxAmount is the largest magnitude a NUMERIC(14,2) column holds.
var MaxAmount = decimal.RequireFromString("999999999999.99")

// InRange reports whether d, rounded to cents, fits a money column.
func InRange(d decimal.Decimal) bool {
	return d.Round(2).Abs().LessThanOrEqual(MaxAmount)
}

// FromNumeric converts a NUMERIC column to a decimal. NULL and unreadable
// values read as zero.
func FromNumeric(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid {
		return decimal.Zero
	}
	val, err := n.Value()
	if err != nil || val == nil {
		return decimal.Zero
	}
	s, ok := val.(string)
	if !ok {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// ToNumeric rounds d to cents and converts it for storage.
func ToNumeric(d decimal.Decimal) pgtype.Numeric {
	var n pgtype.Numeric
	_ = n.Scan(d.StringFixed(2))
	return n
}

// Format renders d with two decimals, the wire format for amounts.
func Format(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// Parse reads a decimal amount from its wire form.
func Parse(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(s)
}

// NonNegative clamps d at zero.
func NonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// IsSettled reports whether an outstanding amount is within one cent of zero.
func IsSettled(due decimal.Decimal) bool {
	return due.LessThanOrEqual(Epsilon)
}
