package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tallybook/bookkeeper/money"
)

func TestBill_EffectiveAmount(t *testing.T) {
	expense := Bill{
		Type:      Expense,
		Price:     money.MustParse("30.00"),
		Promotion: money.MustParse("5.00"),
	}
	assert.Equal(t, "25.00", expense.EffectiveAmount().String())
	assert.Equal(t, "-25.00", expense.SignedDelta().String())

	income := Bill{
		Type:  Income,
		Price: money.MustParse("20.00"),
		// promotions never apply to income
		Promotion: money.MustParse("5.00"),
	}
	assert.Equal(t, "20.00", income.EffectiveAmount().String())
	assert.Equal(t, "20.00", income.SignedDelta().String())
}

func TestRecord_Delta(t *testing.T) {
	r := rec(1, at(9), "100.00", "70.00")
	assert.Equal(t, "-30.00", r.Delta().String())
}

func TestRecord_BeforeOrdersByDateThenId(t *testing.T) {
	earlier := rec(9, at(9), "0.00", "0.00")
	later := rec(1, at(10), "0.00", "0.00")
	assert.True(t, earlier.Before(later))
	assert.False(t, later.Before(earlier))

	tieLow := rec(1, at(9), "0.00", "0.00")
	tieHigh := rec(2, at(9), "0.00", "0.00")
	assert.True(t, tieLow.Before(tieHigh))
	assert.False(t, tieHigh.Before(tieLow))
}

func TestBillType(t *testing.T) {
	assert.True(t, Expense.Valid())
	assert.True(t, Income.Valid())
	assert.False(t, BillType(7).Valid())
	assert.Equal(t, "expense", Expense.String())
	assert.Equal(t, "income", Income.String())
}
