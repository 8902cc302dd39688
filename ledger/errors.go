/*
errors.go - Centralized error types for the ledger domain

PURPOSE:
  All domain error types in one place. The store and orchestrator wrap
  these with operation context; callers branch with errors.Is/As.

ERROR CATEGORIES:
  1. Sentinel errors - Missing entities, broken invariants
  2. Structured errors - Carry the ids and values needed to diagnose

SEE ALSO:
  - chain.go: Returns ChainError on adjacency violations
  - store/sqlite: Returns DecodeError on unreadable rows
  - book/: Returns InvariantError on row-count assertion failures
*/
package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/tallybook/bookkeeper/money"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrMissingHistory is returned when an account has no balance record
	// at or before a bill's date, so there is nothing to chain from.
	ErrMissingHistory = errors.New("no balance history before bill date")

	// ErrAccountNotFound is returned when a referenced account doesn't exist.
	ErrAccountNotFound = errors.New("account not found")

	// ErrBookNotFound is returned when a referenced book doesn't exist.
	ErrBookNotFound = errors.New("book not found")

	// ErrBillNotFound is returned when a referenced bill doesn't exist.
	ErrBillNotFound = errors.New("bill not found")

	// ErrRowCount is returned when a write touched an unexpected number
	// of rows. The surrounding transaction must roll back.
	ErrRowCount = errors.New("unexpected affected row count")

	// ErrBrokenChain is returned when adjacent balance records disagree.
	ErrBrokenChain = errors.New("balance chain broken")

	// ErrInvalidBill is returned when a bill fails validation before any
	// write is attempted.
	ErrInvalidBill = errors.New("invalid bill")

	// ErrEmptyBatch is returned when an import carries no bills.
	ErrEmptyBatch = errors.New("empty bill batch")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InvariantError reports a write that affected the wrong number of rows.
type InvariantError struct {
	Op       string // e.g. "adjust account balance"
	Expected int64
	Actual   int64
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("%s: expected %d affected rows, got %d", e.Op, e.Expected, e.Actual)
}

func (e *InvariantError) Unwrap() error { return ErrRowCount }

// ChainError reports two adjacent records whose balances don't meet.
type ChainError struct {
	AccountID  AccountID
	PrevID     RecordID
	NextID     RecordID
	PrevAfter  money.Amount
	NextBefore money.Amount
}

func (e *ChainError) Error() string {
	return fmt.Sprintf("account %d: record %d closes at %s but record %d opens at %s",
		e.AccountID, e.PrevID, e.PrevAfter, e.NextID, e.NextBefore)
}

func (e *ChainError) Unwrap() error { return ErrBrokenChain }

// AnchorError reports a chain whose earliest record is not an opening
// anchor starting from zero.
type AnchorError struct {
	AccountID AccountID
	RecordID  RecordID
}

func (e *AnchorError) Error() string {
	return fmt.Sprintf("account %d: earliest record %d is not an opening anchor",
		e.AccountID, e.RecordID)
}

func (e *AnchorError) Unwrap() error { return ErrBrokenChain }

// DecodeError reports a stored row that could not be read back into its
// domain type (bad timestamp text, malformed amount).
type DecodeError struct {
	Table  string
	RowID  int64
	Column string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s row %d column %s: %v", e.Table, e.RowID, e.Column, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// MissingHistoryError reports which account and date had no anchor record.
type MissingHistoryError struct {
	AccountID AccountID
	Date      time.Time
}

func (e *MissingHistoryError) Error() string {
	return fmt.Sprintf("account %d has no balance record at or before %s",
		e.AccountID, e.Date.Format(time.RFC3339))
}

func (e *MissingHistoryError) Unwrap() error { return ErrMissingHistory }

// ValidationError reports why a bill was rejected before writing.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid bill: %s %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidBill }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrBookNotFound) ||
		errors.Is(err, ErrBillNotFound)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidBill) ||
		errors.Is(err, ErrEmptyBatch) ||
		errors.Is(err, ErrMissingHistory)
}
