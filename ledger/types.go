/*
Package ledger defines the bookkeeping domain model and balance chain math.

PURPOSE:
  This package holds the entities the rest of the system persists and
  reconciles: accounts, bills, and the balance records that snapshot an
  account's balance before and after each bill. The chain algorithms in
  chain.go keep those snapshots consistent when bills arrive out of
  chronological order.

KEY CONCEPTS IN THIS FILE (types.go):
  - Account: A pool of money whose current balance mirrors its latest record
  - Bill: A dated expense or income with an effective amount
  - Record: A balance snapshot (before/after) with exactly one cause
  - Share: A participant's settled portion of an expense

DESIGN PRINCIPLES:
  1. Total order: Records are ordered by (date, id), never by id alone
  2. Precision: All money routes through money.Amount's cent arithmetic
  3. Redundancy on purpose: Account.Money duplicates the last record's
     BalanceAfter so reads never walk the chain

SEE ALSO:
  - chain.go: Replay and verification of the balance chain
  - errors.go: Sentinel and structured errors for chain violations
  - book/: The orchestrator that applies these rules transactionally
*/
package ledger

import (
	"time"

	"github.com/tallybook/bookkeeper/money"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type AccountID int64
type BillID int64
type RecordID int64
type ShareID int64
type CategoryID int64
type TagID int64
type BookID int64

// =============================================================================
// BILL TYPE - Expense or income
// =============================================================================

type BillType int

const (
	// Expense decreases the paying account's balance.
	Expense BillType = 0
	// Income increases the receiving account's balance.
	Income BillType = 1
)

func (t BillType) Valid() bool { return t == Expense || t == Income }

func (t BillType) String() string {
	if t == Income {
		return "income"
	}
	return "expense"
}

// =============================================================================
// CORE ENTITIES
// =============================================================================

// Account is a pool of money (cash, a card, a savings account).
// Money always equals the BalanceAfter of the account's latest record;
// the orchestrator maintains that invariant on every write. At most one
// account is the default target for new bills.
type Account struct {
	ID        AccountID
	Name      string
	Icon      string
	Money     money.Amount
	IsDefault bool
}

// Book groups bills, so separate ledgers (personal, business) can share
// one database. Every bill belongs to exactly one book.
type Book struct {
	ID   BookID
	Name string
}

// Category is the single classification of a bill (e.g. "groceries").
type Category struct {
	ID   CategoryID
	Name string
	Icon string
	Type BillType
	Sort int
}

// Tag is a free-form label; a bill may carry any number of them.
type Tag struct {
	ID   TagID
	Name string
}

// Bill is one dated expense or income entry. A committed bill is
// immutable apart from its remark; ModifiedAt records the last time the
// remark was amended.
type Bill struct {
	ID         BillID
	UID        string // stable external identifier, set on import
	Type       BillType
	Price      money.Amount
	Promotion  money.Amount // discount, expenses only
	Date       time.Time
	AccountID  AccountID
	CategoryID CategoryID
	BookID     BookID
	Remark     string
	ModifiedAt *time.Time
}

// EffectiveAmount is the amount a bill actually moves: price minus
// promotion for expenses, price unchanged for income.
func (b Bill) EffectiveAmount() money.Amount {
	if b.Type == Expense {
		return money.Operate(b.Price, b.Promotion, money.SubOp)
	}
	return b.Price
}

// SignedDelta is the effective amount with the sign the paying account
// sees: negative for expenses, positive for income.
func (b Bill) SignedDelta() money.Amount {
	eff := b.EffectiveAmount()
	if b.Type == Expense {
		return eff.Neg()
	}
	return eff
}

// Share records one participant's portion of a shared expense. Name is
// the counterpart the money is owed by. When settled, the participant's
// account is treated as having received the shared amount as income;
// SettledAt records when.
type Share struct {
	ID        ShareID
	BillID    BillID
	AccountID AccountID
	Name      string
	Amount    money.Amount
	Settled   bool
	SettledAt *time.Time
}

// =============================================================================
// RECORD - Balance snapshot per bill
// =============================================================================

// Record snapshots an account's balance around one balance change.
// Within an account, records form a chain: each record's BalanceBefore
// equals the previous record's BalanceAfter in (date, id) order. Every
// record has exactly one cause: the account's opening (IsInit), a bill
// on the account (BillID), or a settled share credited to the account
// (ShareID). The causes are mutually exclusive.
type Record struct {
	ID            RecordID
	AccountID     AccountID
	BillID        BillID
	ShareID       ShareID
	Date          time.Time
	BalanceBefore money.Amount
	BalanceAfter  money.Amount
	IsInit        bool
}

// Delta is the balance change this record carries.
func (r Record) Delta() money.Amount {
	return money.Operate(r.BalanceAfter, r.BalanceBefore, money.SubOp)
}

// Before reports whether r is strictly earlier than other in the
// (date, id) total order used throughout the chain.
func (r Record) Before(other Record) bool {
	if r.Date.Equal(other.Date) {
		return r.ID < other.ID
	}
	return r.Date.Before(other.Date)
}
