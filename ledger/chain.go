/*
chain.go - Balance chain replay and verification

PURPOSE:
  An account's records form a chain in (date, id) order where each
  record's BalanceBefore equals its predecessor's BalanceAfter. When a
  bill lands before existing records, the suffix of the chain is stale.
  Replay recomputes the suffix from an anchor and reports only the rows
  whose balances actually changed, so repairs write the minimum set.

KEY ALGORITHM:
  Replay folds forward from the anchor: each record keeps its own delta
  (after minus before) but is rebased onto the running balance. A record
  carrying before=0/after=delta (how batch imports stage rows) rebases
  the same way as a previously correct record whose predecessors shifted.

SEE ALSO:
  - book/batch.go: Uses Replay to repair each touched account
  - types.go: Record and the (date, id) ordering it defines
*/
package ledger

import (
	"sort"

	"github.com/tallybook/bookkeeper/money"
)

// =============================================================================
// PATCH - One row repair produced by replay
// =============================================================================

// Patch is a corrected balance pair for one record.
type Patch struct {
	RecordID      RecordID
	BalanceBefore money.Amount
	BalanceAfter  money.Amount
}

// =============================================================================
// REPLAY
// =============================================================================

// SortRecords orders records by (date, id), the chain's total order.
// Sorting is stable so equal keys keep their input order.
func SortRecords(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Before(records[j])
	})
}

// Replay rebases records onto seed, the balance the chain holds just
// before the first record. Records are sorted in place. The returned
// patches cover only rows whose stored balances differ from the
// recomputed ones; final is the balance after the last record.
func Replay(seed money.Amount, records []Record) (patches []Patch, final money.Amount) {
	SortRecords(records)

	running := seed
	for _, r := range records {
		before := running
		after := money.Operate(before, r.Delta(), money.AddOp)
		if !r.BalanceBefore.Equal(before) || !r.BalanceAfter.Equal(after) {
			patches = append(patches, Patch{
				RecordID:      r.ID,
				BalanceBefore: before,
				BalanceAfter:  after,
			})
		}
		running = after
	}
	return patches, running
}

// =============================================================================
// VERIFICATION
// =============================================================================

// Verify checks a full account chain: sorted by (date, id), the
// earliest record must be the opening anchor starting from zero, and
// each record's BalanceBefore must equal the previous record's
// BalanceAfter. Returns an AnchorError or a ChainError naming the first
// violation, or nil when the chain is intact.
func Verify(accountID AccountID, records []Record) error {
	SortRecords(records)

	if len(records) > 0 {
		first := records[0]
		if !first.IsInit || !first.BalanceBefore.IsZero() {
			return &AnchorError{AccountID: accountID, RecordID: first.ID}
		}
	}

	for i := 1; i < len(records); i++ {
		prev, next := records[i-1], records[i]
		if !next.BalanceBefore.Equal(prev.BalanceAfter) {
			return &ChainError{
				AccountID:  accountID,
				PrevID:     prev.ID,
				NextID:     next.ID,
				PrevAfter:  prev.BalanceAfter,
				NextBefore: next.BalanceBefore,
			}
		}
	}
	return nil
}
