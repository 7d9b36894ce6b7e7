package money

import "github.com/shopspring/decimal"

// Amount is a monetary value with arbitrary decimal precision. Balances are
// continuous; only the ledger floor (FloorUnit) snaps them to a physical unit.
type Amount = decimal.Decimal

// unitScale is the ledger's smallest unit: two decimal places.
const unitScale = 2

// Zero returns the zero amount.
func Zero() Amount {
	return decimal.Zero
}

// Parse converts a decimal string into an Amount.
func Parse(s string) (Amount, error) {
	return decimal.NewFromString(s)
}

// MustParse converts a decimal string into an Amount and panics on malformed
// input. Test and fixture use only.
func MustParse(s string) Amount {
	return decimal.RequireFromString(s)
}

// FromInt builds an Amount from an integer count of whole units.
func FromInt(v int64) Amount {
	return decimal.NewFromInt(v)
}

// Positive reports whether a is strictly greater than zero. Every operation in
// the economy core rejects zero and negative amounts.
func Positive(a Amount) bool {
	return a.IsPositive()
}

// FloorUnit truncates a toward zero at the ledger's smallest unit. Fractional
// remainders below one unit are never deposited.
func FloorUnit(a Amount) Amount {
	return a.Truncate(unitScale)
}
