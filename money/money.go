/*
Package money provides fixed-point arithmetic for currency amounts.

PURPOSE:
  Every balance calculation in the system routes through this package.
  Amounts carry at most two fractional digits; arithmetic is performed
  on integer cents so binary floating-point drift can never appear in
  a balance (0.10 + 0.20 is exactly 0.30 here).

HOW IT WORKS:
  Operate converts both operands to integer cents (rounding half away
  from zero), applies a pluggable integer operation, and scales the
  result back down. Add and Sub are the two built-in operations; the
  Op type keeps the door open for others.

STORAGE:
  The database stores integer cents (Cents/FromCents), which keeps SQL
  arithmetic like `money = money + ?` exact as well.

USAGE:
  total := money.Operate(a, b, money.AddOp)
  total  = a.Add(b) // same thing

SEE ALSO:
  - ledger/chain.go: balance chain math built on this package
  - keypad/keypad.go: expression accumulator summing through Operate
*/
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// AMOUNT - Currency value with exact decimal semantics
// =============================================================================

// Amount is a currency value. The zero value is zero money.
type Amount struct {
	Value decimal.Decimal
}

var hundred = decimal.NewFromInt(100)

// New creates an Amount from a float64. Use for literals and UI input;
// the value is normalized to cents on every operation.
func New(value float64) Amount {
	return Amount{Value: decimal.NewFromFloat(value)}
}

// FromCents creates an Amount from integer cents (the storage representation).
func FromCents(cents int64) Amount {
	return Amount{Value: decimal.NewFromInt(cents).Div(hundred)}
}

// Parse creates an Amount from its decimal string form, e.g. "12.34".
func Parse(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return Amount{Value: d}, nil
}

// MustParse is Parse for trusted input; it panics on malformed strings.
func MustParse(s string) Amount {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

// Zero returns the zero amount.
func Zero() Amount { return Amount{} }

// =============================================================================
// OPERATE - The fixed-point primitive all balance math goes through
// =============================================================================

// Op is an integer operation over cents.
type Op func(a, b int64) int64

// AddOp adds two cent values.
func AddOp(a, b int64) int64 { return a + b }

// SubOp subtracts the second cent value from the first.
func SubOp(a, b int64) int64 { return a - b }

// Operate converts both operands to integer cents, applies op, and scales
// the result back to a currency amount. Both conversions round half away
// from zero, matching how two-decimal user input is normalized.
func Operate(a, b Amount, op Op) Amount {
	return FromCents(op(a.Cents(), b.Cents()))
}

// Cents returns the amount as integer cents, rounding half away from zero.
func (a Amount) Cents() int64 {
	return a.Value.Mul(hundred).Round(0).IntPart()
}

// =============================================================================
// CONVENIENCE METHODS
// =============================================================================

func (a Amount) Add(b Amount) Amount { return Operate(a, b, AddOp) }
func (a Amount) Sub(b Amount) Amount { return Operate(a, b, SubOp) }
func (a Amount) Neg() Amount         { return FromCents(-a.Cents()) }

func (a Amount) IsZero() bool     { return a.Cents() == 0 }
func (a Amount) IsNegative() bool { return a.Cents() < 0 }
func (a Amount) IsPositive() bool { return a.Cents() > 0 }

func (a Amount) Equal(b Amount) bool       { return a.Cents() == b.Cents() }
func (a Amount) GreaterThan(b Amount) bool { return a.Cents() > b.Cents() }
func (a Amount) LessThan(b Amount) bool    { return a.Cents() < b.Cents() }

// String renders the amount with exactly two fractional digits.
func (a Amount) String() string {
	return FromCents(a.Cents()).Value.StringFixed(2)
}
