/*
batch.go - Bulk bill import with per-account chain repair

PURPOSE:
  Importing hundreds of bills one at a time would shift each account's
  record suffix once per bill. The batch path instead stages every new
  record as a delta carrier (balance_before 0, balance_after the signed
  delta), then repairs each touched account's chain exactly once by
  replaying it forward from an anchor before the earliest staged date.

SEE ALSO:
  - ledger/chain.go: Replay, which produces the repair patches
  - book.go: The single-insert path and shared validation
*/
package book

import (
	"context"
	"errors"
	"time"

	"github.com/tallybook/bookkeeper/ledger"
	"github.com/tallybook/bookkeeper/money"
	"github.com/tallybook/bookkeeper/store/sqlite"
)

// AccountRepair reports the chain repair done for one account during an
// import.
type AccountRepair struct {
	AccountID      ledger.AccountID
	NetDelta       money.Amount
	RecordsPatched int
	Balance        money.Amount
}

// BatchResult describes a committed import.
type BatchResult struct {
	Bills   int
	Records int
	Repairs []AccountRepair
}

// ImportBills applies a batch of bills in one transaction. Bills and
// their delta-carrier records are bulk-inserted with pre-assigned ids,
// then each touched account's chain is replayed once from an anchor
// before its earliest staged date. Settled shares contribute to their
// participant accounts the same way.
func (b *Book) ImportBills(ctx context.Context, inputs []BillInput) (BatchResult, error) {
	if len(inputs) == 0 {
		return BatchResult{}, ledger.ErrEmptyBatch
	}
	for i := range inputs {
		if err := validateBill(inputs[i].Bill); err != nil {
			return BatchResult{}, err
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	var result BatchResult
	err := b.store.WithTx(ctx, func(tx *sqlite.Tx) error {
		maxBill, err := tx.MaxBillID(ctx)
		if err != nil {
			return err
		}
		maxRecord, err := tx.MaxRecordID(ctx)
		if err != nil {
			return err
		}
		maxShare, err := tx.MaxShareID(ctx)
		if err != nil {
			return err
		}

		var (
			bills   []ledger.Bill
			records []ledger.Record
			shares  []ledger.Share
			// net delta and earliest staged date per touched account
			moneyMap = map[ledger.AccountID]money.Amount{}
			orderMap = map[ledger.AccountID]time.Time{}
		)
		touch := func(id ledger.AccountID, delta money.Amount, date time.Time) {
			net, ok := moneyMap[id]
			if !ok {
				net = money.Zero()
			}
			moneyMap[id] = money.Operate(net, delta, money.AddOp)
			if first, ok := orderMap[id]; !ok || date.Before(first) {
				orderMap[id] = date
			}
		}

		nextRecord := maxRecord
		for i := range inputs {
			bill := inputs[i].Bill
			bill.ID = maxBill + ledger.BillID(i) + 1
			if bill.UID == "" {
				bill.UID = b.newUID()
			}
			bills = append(bills, bill)

			delta := bill.SignedDelta()
			nextRecord++
			records = append(records, ledger.Record{
				ID:           nextRecord,
				AccountID:    bill.AccountID,
				BillID:       bill.ID,
				Date:         bill.Date,
				BalanceAfter: delta,
			})
			touch(bill.AccountID, delta, bill.Date)

			for _, share := range inputs[i].Shares {
				maxShare++
				share.ID = maxShare
				share.BillID = bill.ID
				if share.Settled && share.SettledAt == nil {
					share.SettledAt = &bill.Date
				}
				shares = append(shares, share)
				if !share.Settled {
					continue
				}
				nextRecord++
				records = append(records, ledger.Record{
					ID:           nextRecord,
					AccountID:    share.AccountID,
					ShareID:      share.ID,
					Date:         bill.Date,
					BalanceAfter: share.Amount,
				})
				touch(share.AccountID, share.Amount, bill.Date)
			}
		}

		if err := tx.InsertBills(ctx, bills); err != nil {
			return err
		}
		if err := tx.InsertShares(ctx, shares); err != nil {
			return err
		}
		if err := tx.InsertRecords(ctx, records); err != nil {
			return err
		}

		for i := range inputs {
			for _, name := range inputs[i].Tags {
				tagID, err := tx.EnsureTag(ctx, name)
				if err != nil {
					return err
				}
				if err := tx.LinkBillTag(ctx, bills[i].ID, tagID); err != nil {
					return err
				}
			}
		}

		for accountID, earliest := range orderMap {
			repair, err := b.repairAccount(ctx, tx, accountID, earliest, moneyMap[accountID], maxRecord)
			if err != nil {
				return err
			}
			result.Repairs = append(result.Repairs, repair)
		}

		result.Bills = len(bills)
		result.Records = len(records)
		return nil
	})
	if err != nil {
		return BatchResult{}, err
	}

	b.log.Info("bills imported",
		"bills", result.Bills,
		"records", result.Records,
		"accounts", len(result.Repairs),
	)
	return result, nil
}

// repairAccount replays one account's chain from the last record
// strictly before earliest, rewrites only the rows whose balances
// changed, and moves the cached balance by the net delta. When earliest
// coincides with the account's first record there is no strict
// predecessor; the whole chain replays from zero, provided pre-existing
// history sits at that date (maxRecord caps the anchor read so staged
// rows cannot anchor themselves).
func (b *Book) repairAccount(ctx context.Context, tx *sqlite.Tx, accountID ledger.AccountID, earliest time.Time, netDelta money.Amount, maxRecord ledger.RecordID) (AccountRepair, error) {
	seed := money.Zero()
	anchor, err := tx.LastRecordBefore(ctx, accountID, earliest)
	switch {
	case err == nil:
		seed = anchor.BalanceAfter
	case errors.Is(err, ledger.ErrMissingHistory):
		if _, err := tx.LastRecordOnOrBeforeID(ctx, accountID, earliest, maxRecord); err != nil {
			return AccountRepair{}, err
		}
	default:
		return AccountRepair{}, err
	}

	suffix, err := tx.RecordsOnOrAfter(ctx, accountID, earliest)
	if err != nil {
		return AccountRepair{}, err
	}

	patches, final := ledger.Replay(seed, suffix)
	for _, p := range patches {
		if err := tx.UpdateRecordBalance(ctx, p); err != nil {
			return AccountRepair{}, err
		}
	}

	if err := tx.AdjustAccountBalance(ctx, accountID, netDelta); err != nil {
		return AccountRepair{}, err
	}

	return AccountRepair{
		AccountID:      accountID,
		NetDelta:       netDelta,
		RecordsPatched: len(patches),
		Balance:        final,
	}, nil
}
