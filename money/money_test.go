package money

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOperate_ExactDecimalAddition(t *testing.T) {
	// GIVEN amounts that are not exactly representable in binary floats
	// WHEN they are added through Operate
	// THEN the result is exact to the cent
	cases := []struct {
		a, b, want string
	}{
		{"0.10", "0.20", "0.30"},
		{"0.01", "0.02", "0.03"},
		{"1234.56", "9876.54", "11111.10"},
		{"0.00", "0.00", "0.00"},
		{"-5.25", "5.25", "0.00"},
		{"100.00", "0.01", "100.01"},
	}
	for _, tc := range cases {
		a := MustParse(tc.a)
		b := MustParse(tc.b)
		got := Operate(a, b, AddOp)
		assert.Equal(t, tc.want, got.String(), "%s + %s", tc.a, tc.b)
	}
}

func TestOperate_Subtraction(t *testing.T) {
	cases := []struct {
		a, b, want string
	}{
		{"100.00", "30.00", "70.00"},
		{"0.30", "0.10", "0.20"},
		{"1.00", "0.99", "0.01"},
		{"0.00", "12.34", "-12.34"},
	}
	for _, tc := range cases {
		got := Operate(MustParse(tc.a), MustParse(tc.b), SubOp)
		assert.Equal(t, tc.want, got.String())
	}
}

func TestOperate_RoundsOperandsToCents(t *testing.T) {
	// Operands with more than two fractional digits are rounded half
	// away from zero before the operation.
	a := New(0.005)
	b := New(0.004)
	got := Operate(a, b, AddOp)
	assert.Equal(t, "0.01", got.String())

	neg := New(-0.005)
	assert.Equal(t, int64(-1), neg.Cents())
}

func TestCentsRoundTrip(t *testing.T) {
	for _, cents := range []int64{0, 1, -1, 100, 12345, -987654} {
		a := FromCents(cents)
		assert.Equal(t, cents, a.Cents())
	}
}

func TestParse(t *testing.T) {
	a, err := Parse("42.50")
	require.NoError(t, err)
	assert.Equal(t, int64(4250), a.Cents())

	_, err = Parse("not-a-number")
	assert.Error(t, err)
}

func TestComparisons(t *testing.T) {
	a := MustParse("10.00")
	b := MustParse("20.00")

	assert.True(t, b.GreaterThan(a))
	assert.True(t, a.LessThan(b))
	assert.True(t, a.Equal(MustParse("10.00")))
	assert.False(t, a.IsZero())
	assert.True(t, Zero().IsZero())
	assert.True(t, a.Neg().IsNegative())
	assert.True(t, b.IsPositive())
}
