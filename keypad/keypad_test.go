package keypad

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func press(t *testing.T, k *Keypad, keys ...string) {
	t.Helper()
	for _, key := range keys {
		k.Press(key)
	}
}

func TestKeypad_SimpleAmount(t *testing.T) {
	k := New()
	press(t, k, "1", "2", ".", "5", "0")

	assert.Equal(t, "12.50", k.Expression())
	assert.Equal(t, "12.50", k.Total().String())
}

func TestKeypad_SumOfSignedTerms(t *testing.T) {
	// GIVEN the expression 12.50+3-0.75
	k := New()
	press(t, k, "1", "2", ".", "5", "0", "+", "3", "-", "0", ".", "7", "5")

	// THEN the total folds through cent arithmetic
	assert.Equal(t, "12.50+3-0.75", k.Expression())
	assert.Equal(t, "14.75", k.Total().String())
}

func TestKeypad_AtMostTwoFractionDigits(t *testing.T) {
	k := New()
	press(t, k, "1", ".", "2", "3")

	// WHEN a third fractional digit is typed
	ok := k.Press("4")

	// THEN it is rejected and the term is unchanged
	assert.False(t, ok)
	assert.Equal(t, "1.23", k.Expression())
}

func TestKeypad_LoneZeroGate(t *testing.T) {
	k := New()
	press(t, k, "0")

	// digits after a lone zero are rejected until a decimal point
	assert.False(t, k.Press("5"))
	assert.Equal(t, "0", k.Expression())

	press(t, k, ".", "5")
	assert.Equal(t, "0.5", k.Expression())
	assert.Equal(t, "0.50", k.Total().String())
}

func TestKeypad_SingleDecimalPointPerTerm(t *testing.T) {
	k := New()
	press(t, k, "1", ".")

	assert.False(t, k.Press("."))
	assert.Equal(t, "1.", k.Expression())
}

func TestKeypad_LeadingDecimalStartsWithZero(t *testing.T) {
	k := New()
	press(t, k, ".", "5")

	assert.Equal(t, "0.5", k.Expression())
}

func TestKeypad_OperatorOnEmptyTermReplacesSign(t *testing.T) {
	k := New()
	press(t, k, "5", "+", "-", "3")

	// the second operator replaced the pending plus
	assert.Equal(t, "5-3", k.Expression())
	assert.Equal(t, "2.00", k.Total().String())
}

func TestKeypad_LeadingMinus(t *testing.T) {
	k := New()
	press(t, k, "-", "4", ".", "2", "5")

	assert.Equal(t, "-4.25", k.Expression())
	assert.Equal(t, "-4.25", k.Total().String())
}

func TestKeypad_DeletePeelsCharThenSignThenTerm(t *testing.T) {
	k := New()
	press(t, k, "1", "2", "+", "3")

	press(t, k, "del") // drops the 3
	assert.Equal(t, "12+", k.Expression())

	press(t, k, "del") // drops the pending plus
	assert.Equal(t, "12", k.Expression())

	press(t, k, "del", "del")
	assert.True(t, k.Empty())

	// delete on empty input is a no-op
	press(t, k, "del")
	assert.True(t, k.Empty())
	assert.Equal(t, "0.00", k.Total().String())
}

func TestKeypad_DeleteDecimalReopensFraction(t *testing.T) {
	k := New()
	press(t, k, "1", ".", "del")

	// the decimal gate must reset when the point is deleted
	assert.True(t, k.Press("."))
	assert.Equal(t, "1.", k.Expression())
}

func TestKeypad_TrailingDecimalEvaluates(t *testing.T) {
	k := New()
	press(t, k, "7", ".")

	assert.Equal(t, "7.00", k.Total().String())
}

func TestKeypad_Clear(t *testing.T) {
	k := New()
	press(t, k, "9", "+", "1")
	k.Clear()

	assert.True(t, k.Empty())
	assert.Equal(t, "", k.Expression())
	assert.Equal(t, "0.00", k.Total().String())
}

func TestKeypad_UnknownKeyIgnored(t *testing.T) {
	k := New()
	assert.False(t, k.Press("x"))
	assert.True(t, k.Empty())
}
