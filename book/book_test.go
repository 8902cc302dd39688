package book

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tallybook/bookkeeper/ledger"
	"github.com/tallybook/bookkeeper/money"
	"github.com/tallybook/bookkeeper/store/sqlite"
)

func at(hour int) time.Time {
	return time.Date(2026, 3, 15, hour, 0, 0, 0, time.UTC)
}

func newTestBook(t *testing.T) *Book {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	b := New(store, nil)
	// opening records land at midnight so test bills can be backdated
	b.now = func() time.Time { return at(0) }
	uid := 0
	b.newUID = func() string { uid++; return fmt.Sprintf("test-uid-%d", uid) }
	return b
}

func expense(account ledger.AccountID, price string, date time.Time) BillInput {
	return BillInput{Bill: ledger.Bill{
		Type:      ledger.Expense,
		Price:     money.MustParse(price),
		Date:      date,
		AccountID: account,
		BookID:    1,
	}}
}

func income(account ledger.AccountID, price string, date time.Time) BillInput {
	return BillInput{Bill: ledger.Bill{
		Type:      ledger.Income,
		Price:     money.MustParse(price),
		Date:      date,
		AccountID: account,
		BookID:    1,
	}}
}

func requireBalance(t *testing.T, b *Book, id ledger.AccountID, want string) {
	t.Helper()
	account, err := b.Store().GetAccount(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, want, account.Money.String())
}

// requireChain checks the adjacency invariant and that the cached
// balance mirrors the last record.
func requireChain(t *testing.T, b *Book, id ledger.AccountID) {
	t.Helper()
	ctx := context.Background()
	records, err := b.Store().AccountRecords(ctx, id)
	require.NoError(t, err)
	require.NoError(t, ledger.Verify(id, records))

	account, err := b.Store().GetAccount(ctx, id)
	require.NoError(t, err)
	require.NotEmpty(t, records)
	assert.True(t, account.Money.Equal(records[len(records)-1].BalanceAfter),
		"cached balance %s != last record %s", account.Money, records[len(records)-1].BalanceAfter)
}

func TestCreateAccount_WritesOpeningRecord(t *testing.T) {
	b := newTestBook(t)
	ctx := context.Background()

	account, err := b.CreateAccount(ctx, "cash", "wallet", money.MustParse("100.00"))
	require.NoError(t, err)
	assert.Equal(t, "100.00", account.Money.String())

	records, err := b.Store().AccountRecords(ctx, account.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, records[0].IsInit)
	assert.Equal(t, "0.00", records[0].BalanceBefore.String())
	assert.Equal(t, "100.00", records[0].BalanceAfter.String())
}

func TestSetDefaultAccount_MovesTheFlag(t *testing.T) {
	b := newTestBook(t)
	ctx := context.Background()

	cash, err := b.CreateAccount(ctx, "cash", "", money.MustParse("100.00"))
	require.NoError(t, err)
	card, err := b.CreateAccount(ctx, "card", "", money.MustParse("50.00"))
	require.NoError(t, err)

	require.NoError(t, b.SetDefaultAccount(ctx, cash.ID))
	require.NoError(t, b.SetDefaultAccount(ctx, card.ID))

	accounts, err := b.Store().ListAccounts(ctx)
	require.NoError(t, err)
	for _, a := range accounts {
		assert.Equal(t, a.ID == card.ID, a.IsDefault)
	}
}

func TestAmendBillRemark_SetsModifiedAt(t *testing.T) {
	b := newTestBook(t)
	ctx := context.Background()

	account, err := b.CreateAccount(ctx, "cash", "", money.MustParse("100.00"))
	require.NoError(t, err)
	result, err := b.InsertBill(ctx, expense(account.ID, "10.00", at(10)))
	require.NoError(t, err)

	require.NoError(t, b.AmendBillRemark(ctx, result.BillID, "groceries"))

	bill, err := b.Store().GetBill(ctx, result.BillID)
	require.NoError(t, err)
	assert.Equal(t, "groceries", bill.Remark)
	require.NotNil(t, bill.ModifiedAt)
	assert.True(t, bill.ModifiedAt.Equal(at(0)))

	assert.ErrorIs(t, b.AmendBillRemark(ctx, 404, "x"), ledger.ErrBillNotFound)
}

func TestInsertBill_Expense(t *testing.T) {
	b := newTestBook(t)
	ctx := context.Background()

	account, err := b.CreateAccount(ctx, "cash", "", money.MustParse("100.00"))
	require.NoError(t, err)

	result, err := b.InsertBill(ctx, expense(account.ID, "30.00", at(10)))
	require.NoError(t, err)
	assert.Equal(t, "70.00", result.AccountBalance.String())
	assert.Empty(t, result.PartialFailures)

	requireBalance(t, b, account.ID, "70.00")
	requireChain(t, b, account.ID)
}

func TestInsertBill_PromotionReducesExpense(t *testing.T) {
	b := newTestBook(t)
	ctx := context.Background()

	account, err := b.CreateAccount(ctx, "cash", "", money.MustParse("100.00"))
	require.NoError(t, err)

	in := expense(account.ID, "30.00", at(10))
	in.Bill.Promotion = money.MustParse("5.00")
	result, err := b.InsertBill(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, "75.00", result.AccountBalance.String())
	requireChain(t, b, account.ID)
}

func TestInsertBill_BackdatedIncomeRepairsSuffix(t *testing.T) {
	// GIVEN an account holding 100.00 that spent 30.00 at 10:00
	b := newTestBook(t)
	ctx := context.Background()

	account, err := b.CreateAccount(ctx, "cash", "", money.MustParse("100.00"))
	require.NoError(t, err)
	_, err = b.InsertBill(ctx, expense(account.ID, "30.00", at(10)))
	require.NoError(t, err)
	requireBalance(t, b, account.ID, "70.00")

	// WHEN a 20.00 income is recorded backdated to 09:00
	result, err := b.InsertBill(ctx, income(account.ID, "20.00", at(9)))
	require.NoError(t, err)

	// THEN the 09:00 record chains off the opening balance,
	// the 10:00 record shifts, and the cached balance lands on 90.00
	assert.Equal(t, int64(1), result.ShiftedRecords)
	requireBalance(t, b, account.ID, "90.00")

	records, err := b.Store().AccountRecords(ctx, account.ID)
	require.NoError(t, err)
	require.Len(t, records, 3)

	backdated := records[1]
	assert.True(t, backdated.Date.Equal(at(9)))
	assert.Equal(t, "100.00", backdated.BalanceBefore.String())
	assert.Equal(t, "120.00", backdated.BalanceAfter.String())

	shifted := records[2]
	assert.True(t, shifted.Date.Equal(at(10)))
	assert.Equal(t, "120.00", shifted.BalanceBefore.String())
	assert.Equal(t, "90.00", shifted.BalanceAfter.String())

	requireChain(t, b, account.ID)
}

func TestInsertBill_SameTimestampKeepsInsertionOrder(t *testing.T) {
	b := newTestBook(t)
	ctx := context.Background()

	account, err := b.CreateAccount(ctx, "cash", "", money.MustParse("100.00"))
	require.NoError(t, err)

	_, err = b.InsertBill(ctx, expense(account.ID, "10.00", at(9)))
	require.NoError(t, err)
	_, err = b.InsertBill(ctx, expense(account.ID, "5.00", at(9)))
	require.NoError(t, err)

	// the second bill chains after the first, and nothing shifts
	requireBalance(t, b, account.ID, "85.00")
	requireChain(t, b, account.ID)
}

func TestInsertBill_MissingHistoryRollsBackEverything(t *testing.T) {
	b := newTestBook(t)
	ctx := context.Background()

	account, err := b.CreateAccount(ctx, "cash", "", money.MustParse("100.00"))
	require.NoError(t, err)

	// dated before the account existed, so there is no anchor
	_, err = b.InsertBill(ctx, expense(account.ID, "10.00", at(0).Add(-time.Hour)))
	require.ErrorIs(t, err, ledger.ErrMissingHistory)

	// the balance adjustment from step one must have rolled back
	requireBalance(t, b, account.ID, "100.00")

	bills, err := b.Store().ListBills(ctx, 1, at(0).Add(-24*time.Hour), at(23))
	require.NoError(t, err)
	assert.Empty(t, bills)
}

func TestInsertBill_UnknownAccount(t *testing.T) {
	b := newTestBook(t)

	_, err := b.InsertBill(context.Background(), expense(404, "10.00", at(10)))
	assert.ErrorIs(t, err, ledger.ErrRowCount)
}

func TestInsertBill_Validation(t *testing.T) {
	b := newTestBook(t)
	ctx := context.Background()

	cases := []struct {
		name string
		bill ledger.Bill
	}{
		{"bad type", ledger.Bill{Type: 7, Price: money.MustParse("1.00"), Date: at(10), AccountID: 1, BookID: 1}},
		{"negative price", ledger.Bill{Type: ledger.Expense, Price: money.MustParse("-1.00"), Date: at(10), AccountID: 1, BookID: 1}},
		{"promotion on income", ledger.Bill{Type: ledger.Income, Price: money.MustParse("1.00"), Promotion: money.MustParse("0.50"), Date: at(10), AccountID: 1, BookID: 1}},
		{"zero price", ledger.Bill{Type: ledger.Expense, Price: money.MustParse("0.00"), Date: at(10), AccountID: 1, BookID: 1}},
		{"promotion swallows price", ledger.Bill{Type: ledger.Expense, Price: money.MustParse("5.00"), Promotion: money.MustParse("5.00"), Date: at(10), AccountID: 1, BookID: 1}},
		{"promotion exceeds price", ledger.Bill{Type: ledger.Expense, Price: money.MustParse("5.00"), Promotion: money.MustParse("6.00"), Date: at(10), AccountID: 1, BookID: 1}},
		{"no account", ledger.Bill{Type: ledger.Expense, Price: money.MustParse("1.00"), Date: at(10), BookID: 1}},
		{"no book", ledger.Bill{Type: ledger.Expense, Price: money.MustParse("1.00"), Date: at(10), AccountID: 1}},
		{"no date", ledger.Bill{Type: ledger.Expense, Price: money.MustParse("1.00"), AccountID: 1, BookID: 1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := b.InsertBill(ctx, BillInput{Bill: tc.bill})
			assert.ErrorIs(t, err, ledger.ErrInvalidBill)
		})
	}
}

func TestInsertBill_TagsAttached(t *testing.T) {
	b := newTestBook(t)
	ctx := context.Background()

	account, err := b.CreateAccount(ctx, "cash", "", money.MustParse("100.00"))
	require.NoError(t, err)

	in := expense(account.ID, "30.00", at(10))
	in.Tags = []string{"food", "work", "food"} // duplicate resolves to one tag
	result, err := b.InsertBill(ctx, in)
	require.NoError(t, err)

	tags, err := b.Store().BillTags(ctx, result.BillID)
	require.NoError(t, err)
	// the duplicate link fails its savepoint and is reported
	assert.Equal(t, []string{"food", "work"}, tags)
	require.Len(t, result.PartialFailures, 1)
	assert.Equal(t, "tag", result.PartialFailures[0].Kind)
	assert.Equal(t, "food", result.PartialFailures[0].Tag)

	// the bill itself still committed
	requireBalance(t, b, account.ID, "70.00")
}

func TestInsertBill_SettledShareCreditsParticipant(t *testing.T) {
	// GIVEN a payer and a friend who owes half of a 30.00 lunch
	b := newTestBook(t)
	ctx := context.Background()

	payer, err := b.CreateAccount(ctx, "cash", "", money.MustParse("100.00"))
	require.NoError(t, err)
	friend, err := b.CreateAccount(ctx, "friend", "", money.MustParse("50.00"))
	require.NoError(t, err)

	in := expense(payer.ID, "30.00", at(10))
	in.Shares = []ledger.Share{{AccountID: friend.ID, Amount: money.MustParse("15.00"), Settled: true}}

	// WHEN the bill is inserted
	result, err := b.InsertBill(ctx, in)
	require.NoError(t, err)
	assert.Empty(t, result.PartialFailures)

	// THEN the payer is down the full price and the friend is credited
	requireBalance(t, b, payer.ID, "70.00")
	requireBalance(t, b, friend.ID, "65.00")
	requireChain(t, b, payer.ID)
	requireChain(t, b, friend.ID)

	shares, err := b.Store().BillShares(ctx, result.BillID)
	require.NoError(t, err)
	require.Len(t, shares, 1)
	assert.True(t, shares[0].Settled)

	// the friend's record is caused by the share, not the bill
	records, err := b.Store().AccountRecords(ctx, friend.ID)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, shares[0].ID, records[1].ShareID)
	assert.Zero(t, records[1].BillID)
}

func TestInsertBill_UnsettledShareOnlyRecorded(t *testing.T) {
	b := newTestBook(t)
	ctx := context.Background()

	payer, err := b.CreateAccount(ctx, "cash", "", money.MustParse("100.00"))
	require.NoError(t, err)
	friend, err := b.CreateAccount(ctx, "friend", "", money.MustParse("50.00"))
	require.NoError(t, err)

	in := expense(payer.ID, "30.00", at(10))
	in.Shares = []ledger.Share{{AccountID: friend.ID, Amount: money.MustParse("15.00")}}

	result, err := b.InsertBill(ctx, in)
	require.NoError(t, err)
	assert.Empty(t, result.PartialFailures)

	// unsettled shares never move money
	requireBalance(t, b, friend.ID, "50.00")

	shares, err := b.Store().BillShares(ctx, result.BillID)
	require.NoError(t, err)
	require.Len(t, shares, 1)
	assert.False(t, shares[0].Settled)
}

func TestInsertBill_ShareFailureIsPartial(t *testing.T) {
	b := newTestBook(t)
	ctx := context.Background()

	payer, err := b.CreateAccount(ctx, "cash", "", money.MustParse("100.00"))
	require.NoError(t, err)

	in := expense(payer.ID, "30.00", at(10))
	// participant account does not exist
	in.Shares = []ledger.Share{{AccountID: 404, Amount: money.MustParse("15.00"), Settled: true}}

	result, err := b.InsertBill(ctx, in)
	require.NoError(t, err)

	// the bill committed; the share failure is reported, not fatal
	require.Len(t, result.PartialFailures, 1)
	assert.Equal(t, "share", result.PartialFailures[0].Kind)
	assert.Equal(t, ledger.AccountID(404), result.PartialFailures[0].AccountID)
	requireBalance(t, b, payer.ID, "70.00")

	// the failed share's rows rolled back with its savepoint
	shares, err := b.Store().BillShares(ctx, result.BillID)
	require.NoError(t, err)
	assert.Empty(t, shares)
}

func TestInsertBill_GeneratesUID(t *testing.T) {
	b := newTestBook(t)
	ctx := context.Background()

	account, err := b.CreateAccount(ctx, "cash", "", money.MustParse("100.00"))
	require.NoError(t, err)

	result, err := b.InsertBill(ctx, expense(account.ID, "1.00", at(10)))
	require.NoError(t, err)

	bill, err := b.Store().GetBill(ctx, result.BillID)
	require.NoError(t, err)
	assert.NotEmpty(t, bill.UID)
}
