package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tallybook/bookkeeper/money"
)

func at(hour int) time.Time {
	return time.Date(2026, 3, 15, hour, 0, 0, 0, time.UTC)
}

func rec(id RecordID, date time.Time, before, after string) Record {
	return Record{
		ID:            id,
		AccountID:     1,
		Date:          date,
		BalanceBefore: money.MustParse(before),
		BalanceAfter:  money.MustParse(after),
	}
}

func initRec(id RecordID, date time.Time, after string) Record {
	r := rec(id, date, "0.00", after)
	r.IsInit = true
	return r
}

func TestReplay_IntactChainProducesNoPatches(t *testing.T) {
	// GIVEN a chain that already satisfies the adjacency invariant
	records := []Record{
		rec(1, at(9), "100.00", "120.00"),
		rec(2, at(10), "120.00", "90.00"),
	}

	// WHEN replayed from the same seed
	patches, final := Replay(money.MustParse("100.00"), records)

	// THEN nothing needs repair
	assert.Empty(t, patches)
	assert.Equal(t, "90.00", final.String())
}

func TestReplay_BackdatedInsertRepairsSuffix(t *testing.T) {
	// GIVEN an account that held 100.00, spent 30.00 at 10:00,
	// then received a backdated 20.00 income at 09:00. The 09:00 record
	// is correct; the 10:00 record still reads from the old balance.
	records := []Record{
		rec(2, at(10), "100.00", "70.00"),
		rec(1, at(9), "100.00", "120.00"),
	}

	// WHEN the chain is replayed from the pre-09:00 balance
	patches, final := Replay(money.MustParse("100.00"), records)

	// THEN only the 10:00 record is patched, preserving its own delta
	require.Len(t, patches, 1)
	assert.Equal(t, RecordID(2), patches[0].RecordID)
	assert.Equal(t, "120.00", patches[0].BalanceBefore.String())
	assert.Equal(t, "90.00", patches[0].BalanceAfter.String())
	assert.Equal(t, "90.00", final.String())
}

func TestReplay_DeltaCarrierRecordsRebase(t *testing.T) {
	// Batch imports stage records with before=0 and after=signed delta.
	// Replay must rebase them onto the running balance like any other
	// shifted record.
	records := []Record{
		rec(1, at(9), "0.00", "-30.00"),
		rec(2, at(11), "0.00", "50.00"),
	}

	patches, final := Replay(money.MustParse("200.00"), records)

	require.Len(t, patches, 2)
	assert.Equal(t, "200.00", patches[0].BalanceBefore.String())
	assert.Equal(t, "170.00", patches[0].BalanceAfter.String())
	assert.Equal(t, "170.00", patches[1].BalanceBefore.String())
	assert.Equal(t, "220.00", patches[1].BalanceAfter.String())
	assert.Equal(t, "220.00", final.String())
}

func TestReplay_SameDateOrdersById(t *testing.T) {
	// GIVEN two records with identical timestamps
	records := []Record{
		rec(5, at(9), "0.00", "-10.00"),
		rec(4, at(9), "0.00", "-1.00"),
	}

	// WHEN replayed
	patches, final := Replay(money.MustParse("50.00"), records)

	// THEN the smaller id applies first
	require.Len(t, patches, 2)
	assert.Equal(t, RecordID(4), patches[0].RecordID)
	assert.Equal(t, "49.00", patches[0].BalanceAfter.String())
	assert.Equal(t, RecordID(5), patches[1].RecordID)
	assert.Equal(t, "39.00", patches[1].BalanceAfter.String())
	assert.Equal(t, "39.00", final.String())
}

func TestReplay_EmptyInput(t *testing.T) {
	patches, final := Replay(money.MustParse("42.00"), nil)
	assert.Empty(t, patches)
	assert.Equal(t, "42.00", final.String())
}

func TestVerify_IntactChain(t *testing.T) {
	records := []Record{
		initRec(1, at(8), "100.00"),
		rec(2, at(9), "100.00", "120.00"),
		rec(3, at(10), "120.00", "90.00"),
		rec(4, at(11), "90.00", "95.50"),
	}
	assert.NoError(t, Verify(1, records))
}

func TestVerify_BrokenChainNamesFirstBadPair(t *testing.T) {
	records := []Record{
		initRec(1, at(8), "100.00"),
		rec(2, at(9), "100.00", "120.00"),
		rec(3, at(10), "100.00", "70.00"),
	}

	err := Verify(1, records)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBrokenChain)

	var chainErr *ChainError
	require.ErrorAs(t, err, &chainErr)
	assert.Equal(t, RecordID(2), chainErr.PrevID)
	assert.Equal(t, RecordID(3), chainErr.NextID)
}

func TestVerify_EarliestRecordMustBeOpeningAnchor(t *testing.T) {
	// a chain whose balances meet but that lost its opening record
	records := []Record{
		rec(2, at(9), "100.00", "120.00"),
		rec(3, at(10), "120.00", "90.00"),
	}

	err := Verify(1, records)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBrokenChain)

	var anchorErr *AnchorError
	require.ErrorAs(t, err, &anchorErr)
	assert.Equal(t, RecordID(2), anchorErr.RecordID)
}

func TestVerify_AnchorMustOpenFromZero(t *testing.T) {
	records := []Record{
		{ID: 1, AccountID: 1, Date: at(8), IsInit: true,
			BalanceBefore: money.MustParse("100.00"), BalanceAfter: money.MustParse("100.00")},
	}

	err := Verify(1, records)
	var anchorErr *AnchorError
	require.ErrorAs(t, err, &anchorErr)
	assert.Equal(t, RecordID(1), anchorErr.RecordID)
}
