/*
Package book orchestrates bill operations over the store.

PURPOSE:
  This is the write path of the system. Inserting a bill is a multi-row
  affair: the account's cached balance moves, a balance record is
  chained in at the bill's date, and every later record shifts by the
  bill's delta. The orchestrator runs each of those sequences inside
  one store transaction so a bill is either fully applied or absent.

KEY GUARANTEES:
  - Atomicity: core writes commit or roll back together
  - Strict row counts: a write touching the wrong number of rows
    aborts the transaction instead of leaving a half-applied bill
  - Best effort with receipts: tag and share attachment failures roll
    back their own savepoint and are reported in the result, never
    silently swallowed and never fatal to the bill

CONCURRENCY:
  A single mutex serializes mutating operations. Bills can touch
  several accounts (shares), and the store is single-writer anyway, so
  finer locking buys nothing here.

SEE ALSO:
  - batch.go: Bulk import with per-account chain repair
  - ledger/chain.go: The replay math batch repair uses
  - store/sqlite: The transactional primitives composed here
*/
package book

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tallybook/bookkeeper/ledger"
	"github.com/tallybook/bookkeeper/money"
	"github.com/tallybook/bookkeeper/store/sqlite"
)

// Book coordinates bill writes against one store.
type Book struct {
	store *sqlite.Store
	log   *slog.Logger

	mu sync.Mutex

	// injectable for tests
	now    func() time.Time
	newUID func() string
}

// New creates an orchestrator over the given store.
func New(store *sqlite.Store, log *slog.Logger) *Book {
	if log == nil {
		log = slog.Default()
	}
	return &Book{
		store:  store,
		log:    log,
		now:    time.Now,
		newUID: uuid.NewString,
	}
}

// Store exposes the underlying store's read paths.
func (b *Book) Store() *sqlite.Store { return b.store }

// =============================================================================
// RESULTS
// =============================================================================

// PartialFailure reports one best-effort attachment that was rolled
// back while the bill itself succeeded.
type PartialFailure struct {
	Kind      string // "tag" or "share"
	Tag       string
	AccountID ledger.AccountID
	Err       error
}

func (f PartialFailure) String() string {
	if f.Kind == "tag" {
		return fmt.Sprintf("tag %q: %v", f.Tag, f.Err)
	}
	return fmt.Sprintf("share for account %d: %v", f.AccountID, f.Err)
}

// InsertResult describes a committed bill insert.
type InsertResult struct {
	BillID          ledger.BillID
	RecordID        ledger.RecordID
	AccountBalance  money.Amount
	ShiftedRecords  int64
	PartialFailures []PartialFailure
}

// =============================================================================
// ACCOUNT CREATION
// =============================================================================

// CreateAccount creates an account holding initial money and writes its
// opening balance record. The opening record anchors the account's
// chain; every bill needs a record at or before its date to chain from.
func (b *Book) CreateAccount(ctx context.Context, name, icon string, initial money.Amount) (ledger.Account, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var account ledger.Account
	err := b.store.WithTx(ctx, func(tx *sqlite.Tx) error {
		id, err := tx.InsertAccount(ctx, name, icon, initial)
		if err != nil {
			return err
		}
		// the anchor opens from zero and lands on the starting balance
		_, err = tx.InsertRecord(ctx, ledger.Record{
			AccountID:    id,
			Date:         b.now(),
			BalanceAfter: initial,
			IsInit:       true,
		})
		if err != nil {
			return err
		}
		account = ledger.Account{ID: id, Name: name, Icon: icon, Money: initial}
		return nil
	})
	if err != nil {
		return ledger.Account{}, err
	}

	b.log.Info("account created", "account_id", account.ID, "name", name, "initial", initial.String())
	return account, nil
}

// SetDefaultAccount marks one account as the default target for new
// bills. Any previous default loses the flag.
func (b *Book) SetDefaultAccount(ctx context.Context, id ledger.AccountID) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	err := b.store.WithTx(ctx, func(tx *sqlite.Tx) error {
		return tx.SetDefaultAccount(ctx, id)
	})
	if err != nil {
		return err
	}
	b.log.Info("default account set", "account_id", id)
	return nil
}

// CreateBook adds a ledger book.
func (b *Book) CreateBook(ctx context.Context, name string) (ledger.Book, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var book ledger.Book
	err := b.store.WithTx(ctx, func(tx *sqlite.Tx) error {
		id, err := tx.InsertBook(ctx, name)
		if err != nil {
			return err
		}
		book = ledger.Book{ID: id, Name: name}
		return nil
	})
	return book, err
}

// CreateCategory adds a bill category.
func (b *Book) CreateCategory(ctx context.Context, c ledger.Category) (ledger.Category, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	err := b.store.WithTx(ctx, func(tx *sqlite.Tx) error {
		id, err := tx.InsertCategory(ctx, c)
		if err != nil {
			return err
		}
		c.ID = id
		return nil
	})
	return c, err
}

// CreateTag registers a tag name, returning the existing tag when the
// name is already taken.
func (b *Book) CreateTag(ctx context.Context, name string) (ledger.Tag, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var tag ledger.Tag
	err := b.store.WithTx(ctx, func(tx *sqlite.Tx) error {
		id, err := tx.EnsureTag(ctx, name)
		if err != nil {
			return err
		}
		tag = ledger.Tag{ID: id, Name: name}
		return nil
	})
	return tag, err
}

// =============================================================================
// SINGLE BILL INSERT
// =============================================================================

// BillInput is a bill to insert, plus its attachments.
type BillInput struct {
	Bill   ledger.Bill
	Tags   []string
	Shares []ledger.Share
}

// InsertBill applies one bill atomically: the account balance moves by
// the signed delta, a balance record is chained in at the bill's date,
// and every later record shifts. Tags and shares are attached best
// effort inside savepoints; their failures come back in the result.
func (b *Book) InsertBill(ctx context.Context, in BillInput) (InsertResult, error) {
	if err := validateBill(in.Bill); err != nil {
		return InsertResult{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	bill := in.Bill
	if bill.UID == "" {
		bill.UID = b.newUID()
	}
	delta := bill.SignedDelta()

	var result InsertResult
	err := b.store.WithTx(ctx, func(tx *sqlite.Tx) error {
		if err := tx.AdjustAccountBalance(ctx, bill.AccountID, delta); err != nil {
			return err
		}

		anchor, err := tx.LastRecordOnOrBefore(ctx, bill.AccountID, bill.Date)
		if err != nil {
			return err
		}

		record := ledger.Record{
			AccountID:     bill.AccountID,
			Date:          bill.Date,
			BalanceBefore: anchor.BalanceAfter,
			BalanceAfter:  money.Operate(anchor.BalanceAfter, delta, money.AddOp),
		}
		recordID, err := tx.InsertRecord(ctx, record)
		if err != nil {
			return err
		}

		billID, err := tx.InsertBill(ctx, bill)
		if err != nil {
			return err
		}
		if err := tx.BindRecordBill(ctx, recordID, billID); err != nil {
			return err
		}

		shifted, err := tx.ShiftRecordsAfter(ctx, bill.AccountID, bill.Date, delta)
		if err != nil {
			return err
		}

		result = InsertResult{
			BillID:         billID,
			RecordID:       recordID,
			ShiftedRecords: shifted,
		}

		result.PartialFailures = append(result.PartialFailures,
			b.attachTags(ctx, tx, billID, in.Tags)...)
		result.PartialFailures = append(result.PartialFailures,
			b.applyShares(ctx, tx, billID, bill.Date, in.Shares)...)

		// the cached balance is authoritative after the shift
		account, err := tx.GetAccount(ctx, bill.AccountID)
		if err != nil {
			return err
		}
		result.AccountBalance = account.Money
		return nil
	})
	if err != nil {
		return InsertResult{}, err
	}

	b.log.Info("bill inserted",
		"bill_id", result.BillID,
		"account_id", bill.AccountID,
		"type", bill.Type.String(),
		"delta", delta.String(),
		"shifted", result.ShiftedRecords,
		"partial_failures", len(result.PartialFailures),
	)
	return result, nil
}

// attachTags links tags inside per-tag savepoints. A failing tag rolls
// back only itself.
func (b *Book) attachTags(ctx context.Context, tx *sqlite.Tx, billID ledger.BillID, tags []string) []PartialFailure {
	var failures []PartialFailure
	for i, name := range tags {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		sp := fmt.Sprintf("sp_tag_%d", i)
		if err := tx.Savepoint(ctx, sp); err != nil {
			failures = append(failures, PartialFailure{Kind: "tag", Tag: name, Err: err})
			continue
		}
		err := func() error {
			tagID, err := tx.EnsureTag(ctx, name)
			if err != nil {
				return err
			}
			return tx.LinkBillTag(ctx, billID, tagID)
		}()
		if err != nil {
			tx.RollbackSavepoint(ctx, sp)
			b.log.Warn("tag attachment failed", "bill_id", billID, "tag", name, "err", err)
			failures = append(failures, PartialFailure{Kind: "tag", Tag: name, Err: err})
			continue
		}
		if err := tx.ReleaseSavepoint(ctx, sp); err != nil {
			failures = append(failures, PartialFailure{Kind: "tag", Tag: name, Err: err})
		}
	}
	return failures
}

// applyShares records participant shares. A settled share is income to
// the participant's account at the bill's date and gets the full chain
// treatment there. Each share runs in its own savepoint.
func (b *Book) applyShares(ctx context.Context, tx *sqlite.Tx, billID ledger.BillID, date time.Time, shares []ledger.Share) []PartialFailure {
	var failures []PartialFailure
	for i, share := range shares {
		share.BillID = billID
		sp := fmt.Sprintf("sp_share_%d", i)
		if err := tx.Savepoint(ctx, sp); err != nil {
			failures = append(failures, PartialFailure{Kind: "share", AccountID: share.AccountID, Err: err})
			continue
		}
		err := b.applyShare(ctx, tx, share, date)
		if err != nil {
			tx.RollbackSavepoint(ctx, sp)
			b.log.Warn("share attachment failed", "bill_id", billID, "account_id", share.AccountID, "err", err)
			failures = append(failures, PartialFailure{Kind: "share", AccountID: share.AccountID, Err: err})
			continue
		}
		if err := tx.ReleaseSavepoint(ctx, sp); err != nil {
			failures = append(failures, PartialFailure{Kind: "share", AccountID: share.AccountID, Err: err})
		}
	}
	return failures
}

func (b *Book) applyShare(ctx context.Context, tx *sqlite.Tx, share ledger.Share, date time.Time) error {
	if share.Settled && share.SettledAt == nil {
		share.SettledAt = &date
	}
	shareID, err := tx.LinkBillShare(ctx, share)
	if err != nil {
		return err
	}
	if !share.Settled {
		return nil
	}

	if err := tx.AdjustAccountBalance(ctx, share.AccountID, share.Amount); err != nil {
		return err
	}
	anchor, err := tx.LastRecordOnOrBefore(ctx, share.AccountID, date)
	if err != nil {
		return err
	}
	// the share, not the bill, is the record's cause
	_, err = tx.InsertRecord(ctx, ledger.Record{
		AccountID:     share.AccountID,
		ShareID:       shareID,
		Date:          date,
		BalanceBefore: anchor.BalanceAfter,
		BalanceAfter:  money.Operate(anchor.BalanceAfter, share.Amount, money.AddOp),
	})
	if err != nil {
		return err
	}
	_, err = tx.ShiftRecordsAfter(ctx, share.AccountID, date, share.Amount)
	return err
}

// AmendBillRemark updates a committed bill's remark and stamps its
// modification time. Monetary fields stay immutable; corrections go
// through a compensating bill.
func (b *Book) AmendBillRemark(ctx context.Context, id ledger.BillID, remark string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.store.WithTx(ctx, func(tx *sqlite.Tx) error {
		return tx.UpdateBillRemark(ctx, id, remark, b.now())
	})
}

// =============================================================================
// VALIDATION
// =============================================================================

func validateBill(bill ledger.Bill) error {
	if !bill.Type.Valid() {
		return &ledger.ValidationError{Field: "type", Reason: "must be expense or income"}
	}
	if bill.Price.IsNegative() {
		return &ledger.ValidationError{Field: "price", Reason: "must not be negative"}
	}
	if bill.Promotion.IsNegative() {
		return &ledger.ValidationError{Field: "promotion", Reason: "must not be negative"}
	}
	if bill.Type == ledger.Income && !bill.Promotion.IsZero() {
		return &ledger.ValidationError{Field: "promotion", Reason: "does not apply to income"}
	}
	if bill.EffectiveAmount().IsZero() {
		return &ledger.ValidationError{Field: "price", Reason: "must move a non-zero amount"}
	}
	if bill.EffectiveAmount().IsNegative() {
		return &ledger.ValidationError{Field: "promotion", Reason: "must not exceed price"}
	}
	if bill.AccountID == 0 {
		return &ledger.ValidationError{Field: "account_id", Reason: "is required"}
	}
	if bill.BookID == 0 {
		return &ledger.ValidationError{Field: "book_id", Reason: "is required"}
	}
	if bill.Date.IsZero() {
		return &ledger.ValidationError{Field: "date", Reason: "is required"}
	}
	return nil
}
