/*
Package sqlite provides the SQLite-backed store for accounts, bills,
and balance records.

PURPOSE:
  All persistence for the bookkeeping engine lives here. The store
  exposes transactional primitives (WithTx and the Tx methods) that the
  book orchestrator composes into atomic bill operations, plus read
  paths for the API.

KEY TABLES:
  accounts:        Money pools; money mirrors the latest record
  bills:           Dated expense/income entries
  balance_records: Per-account balance chain, ordered by (date, id)
  bill_tags, bill_shares: Bill attachments
  books, categories, tags: Classification

MONEY REPRESENTATION:
  Amounts are stored as INTEGER cents so SQL arithmetic like
  `money = money + ?` and the suffix-shift UPDATE stay exact.

TIMESTAMPS:
  Stored as RFC3339 TEXT, which sorts lexicographically in date order.

CONCURRENCY:
  sync.RWMutex plus a single pooled connection. SQLite allows one
  writer anyway; the mutex keeps Go-side sequencing explicit. WAL mode
  lets readers proceed during writes on file databases.

SAVEPOINTS:
  Tx exposes SQLite savepoints so callers can give best-effort work
  (tags, shares) its own rollback scope inside the main transaction.

USAGE:
  store, err := sqlite.New("./data/ledger.db")
  ...
  err = store.WithTx(ctx, func(tx *sqlite.Tx) error {
      if err := tx.AdjustAccountBalance(ctx, accountID, delta); err != nil {
          return err
      }
      ...
  })

SEE ALSO:
  - migrate.go: Versioned schema migrations (embedded)
  - ledger/: Domain types this store persists
  - book/: The orchestrator composing Tx methods
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/tallybook/bookkeeper/ledger"
	"github.com/tallybook/bookkeeper/money"
)

// Store is the SQLite-backed persistence layer.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New opens (or creates) the database at dbPath and applies migrations.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One pooled connection: SQLite is single-writer, and ":memory:"
	// databases exist per connection.
	db.SetMaxOpenConns(1)

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}
	return false
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// Tx wraps one database transaction. All mutating store operations hang
// off Tx so multi-row bill operations commit or roll back as a unit.
type Tx struct {
	tx *sql.Tx
}

// WithTx runs fn inside a database transaction. A non-nil error from fn
// rolls everything back, including work inside released savepoints.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&Tx{tx: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// Savepoint opens a named savepoint inside the transaction.
func (t *Tx) Savepoint(ctx context.Context, name string) error {
	_, err := t.tx.ExecContext(ctx, "SAVEPOINT "+name)
	return err
}

// ReleaseSavepoint commits the named savepoint into the transaction.
func (t *Tx) ReleaseSavepoint(ctx context.Context, name string) error {
	_, err := t.tx.ExecContext(ctx, "RELEASE SAVEPOINT "+name)
	return err
}

// RollbackSavepoint undoes work since the savepoint and discards it.
func (t *Tx) RollbackSavepoint(ctx context.Context, name string) error {
	if _, err := t.tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name); err != nil {
		return err
	}
	_, err := t.tx.ExecContext(ctx, "RELEASE SAVEPOINT "+name)
	return err
}

// =============================================================================
// ACCOUNTS
// =============================================================================

func (t *Tx) InsertAccount(ctx context.Context, name, icon string, initial money.Amount) (ledger.AccountID, error) {
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO accounts (name, icon, money, created_at) VALUES (?, ?, ?, ?)`,
		name, icon, initial.Cents(), formatTime(time.Now()),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert account: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read account id: %w", err)
	}
	return ledger.AccountID(id), nil
}

// AdjustAccountBalance applies a signed delta to an account's cached
// balance. Exactly one row must change; anything else means the account
// is missing and the transaction must abort.
func (t *Tx) AdjustAccountBalance(ctx context.Context, id ledger.AccountID, delta money.Amount) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE accounts SET money = money + ? WHERE id = ?`,
		delta.Cents(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to adjust account %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n != 1 {
		return &ledger.InvariantError{Op: fmt.Sprintf("adjust account %d balance", id), Expected: 1, Actual: n}
	}
	return nil
}

func (t *Tx) GetAccount(ctx context.Context, id ledger.AccountID) (ledger.Account, error) {
	return scanAccount(t.tx.QueryRowContext(ctx,
		`SELECT id, name, icon, money, is_default FROM accounts WHERE id = ?`, id))
}

// SetDefaultAccount makes one account the default target for new bills,
// clearing the flag everywhere else.
func (t *Tx) SetDefaultAccount(ctx context.Context, id ledger.AccountID) error {
	if _, err := t.tx.ExecContext(ctx,
		`UPDATE accounts SET is_default = 0 WHERE is_default = 1 AND id != ?`, id); err != nil {
		return fmt.Errorf("failed to clear default account: %w", err)
	}
	res, err := t.tx.ExecContext(ctx, `UPDATE accounts SET is_default = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to set default account %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n != 1 {
		return &ledger.InvariantError{Op: fmt.Sprintf("set default account %d", id), Expected: 1, Actual: n}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (ledger.Account, error) {
	var a ledger.Account
	var cents int64
	var isDefault int
	err := row.Scan(&a.ID, &a.Name, &a.Icon, &cents, &isDefault)
	if errors.Is(err, sql.ErrNoRows) {
		return a, ledger.ErrAccountNotFound
	}
	if err != nil {
		return a, fmt.Errorf("failed to scan account: %w", err)
	}
	a.Money = money.FromCents(cents)
	a.IsDefault = isDefault != 0
	return a, nil
}

// =============================================================================
// BALANCE RECORDS
// =============================================================================

func (t *Tx) InsertRecord(ctx context.Context, r ledger.Record) (ledger.RecordID, error) {
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO balance_records (account_id, bill_id, share_id, date, balance_before, balance_after, is_init)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.AccountID, nullID(int64(r.BillID)), nullID(int64(r.ShareID)), formatTime(r.Date),
		r.BalanceBefore.Cents(), r.BalanceAfter.Cents(), boolInt(r.IsInit),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert balance record: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read record id: %w", err)
	}
	return ledger.RecordID(id), nil
}

// InsertRecords bulk-inserts records with pre-assigned ids, as staged by
// batch imports.
func (t *Tx) InsertRecords(ctx context.Context, records []ledger.Record) error {
	if len(records) == 0 {
		return nil
	}
	var sb strings.Builder
	sb.WriteString(`INSERT INTO balance_records (id, account_id, bill_id, share_id, date, balance_before, balance_after, is_init) VALUES `)
	args := make([]any, 0, len(records)*8)
	for i, r := range records {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args, r.ID, r.AccountID, nullID(int64(r.BillID)), nullID(int64(r.ShareID)),
			formatTime(r.Date), r.BalanceBefore.Cents(), r.BalanceAfter.Cents(), boolInt(r.IsInit))
	}
	if _, err := t.tx.ExecContext(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("failed to bulk insert balance records: %w", err)
	}
	return nil
}

// LastRecordOnOrBefore returns the latest record at or before date in
// (date, id) order. This is the chain anchor read; a missing row means
// the account has no history to chain from.
func (t *Tx) LastRecordOnOrBefore(ctx context.Context, accountID ledger.AccountID, date time.Time) (ledger.Record, error) {
	row := t.tx.QueryRowContext(ctx,
		`SELECT id, account_id, bill_id, share_id, date, balance_before, balance_after, is_init
		 FROM balance_records
		 WHERE account_id = ? AND date <= ?
		 ORDER BY date DESC, id DESC
		 LIMIT 1`,
		accountID, formatTime(date),
	)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return r, &ledger.MissingHistoryError{AccountID: accountID, Date: date}
	}
	return r, err
}

// LastRecordOnOrBeforeID is the anchor read restricted to rows with id
// at or below maxID. Batch repair uses it so freshly staged rows cannot
// anchor their own replay.
func (t *Tx) LastRecordOnOrBeforeID(ctx context.Context, accountID ledger.AccountID, date time.Time, maxID ledger.RecordID) (ledger.Record, error) {
	row := t.tx.QueryRowContext(ctx,
		`SELECT id, account_id, bill_id, share_id, date, balance_before, balance_after, is_init
		 FROM balance_records
		 WHERE account_id = ? AND date <= ? AND id <= ?
		 ORDER BY date DESC, id DESC
		 LIMIT 1`,
		accountID, formatTime(date), maxID,
	)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return r, &ledger.MissingHistoryError{AccountID: accountID, Date: date}
	}
	return r, err
}

// LastRecordBefore is the strict variant used when the caller's own
// record already sits at the boundary date.
func (t *Tx) LastRecordBefore(ctx context.Context, accountID ledger.AccountID, date time.Time) (ledger.Record, error) {
	row := t.tx.QueryRowContext(ctx,
		`SELECT id, account_id, bill_id, share_id, date, balance_before, balance_after, is_init
		 FROM balance_records
		 WHERE account_id = ? AND date < ?
		 ORDER BY date DESC, id DESC
		 LIMIT 1`,
		accountID, formatTime(date),
	)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return r, &ledger.MissingHistoryError{AccountID: accountID, Date: date}
	}
	return r, err
}

// ShiftRecordsAfter adds delta to both balances of every record strictly
// after date. Records on the same date keep their values; the new record
// carries the largest id at that date, so ties are already correct.
func (t *Tx) ShiftRecordsAfter(ctx context.Context, accountID ledger.AccountID, date time.Time, delta money.Amount) (int64, error) {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE balance_records
		 SET balance_before = balance_before + ?, balance_after = balance_after + ?
		 WHERE account_id = ? AND date > ?`,
		delta.Cents(), delta.Cents(), accountID, formatTime(date),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to shift records for account %d: %w", accountID, err)
	}
	return res.RowsAffected()
}

// RecordsOnOrAfter returns an account's records from date onward in
// chain order.
func (t *Tx) RecordsOnOrAfter(ctx context.Context, accountID ledger.AccountID, date time.Time) ([]ledger.Record, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT id, account_id, bill_id, share_id, date, balance_before, balance_after, is_init
		 FROM balance_records
		 WHERE account_id = ? AND date >= ?
		 ORDER BY date ASC, id ASC`,
		accountID, formatTime(date),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query balance records: %w", err)
	}
	defer rows.Close()

	var records []ledger.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// UpdateRecordBalance writes one repaired balance pair.
func (t *Tx) UpdateRecordBalance(ctx context.Context, p ledger.Patch) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE balance_records SET balance_before = ?, balance_after = ? WHERE id = ?`,
		p.BalanceBefore.Cents(), p.BalanceAfter.Cents(), p.RecordID,
	)
	if err != nil {
		return fmt.Errorf("failed to update record %d: %w", p.RecordID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n != 1 {
		return &ledger.InvariantError{Op: fmt.Sprintf("update record %d balance", p.RecordID), Expected: 1, Actual: n}
	}
	return nil
}

// BindRecordBill attaches a bill to the record created for it.
func (t *Tx) BindRecordBill(ctx context.Context, recordID ledger.RecordID, billID ledger.BillID) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE balance_records SET bill_id = ? WHERE id = ?`, billID, recordID)
	if err != nil {
		return fmt.Errorf("failed to bind record %d to bill %d: %w", recordID, billID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n != 1 {
		return &ledger.InvariantError{Op: fmt.Sprintf("bind record %d to bill", recordID), Expected: 1, Actual: n}
	}
	return nil
}

// MaxRecordID returns the highest record id, for pre-assigning ids in
// bulk inserts. Safe because the store is single-writer.
func (t *Tx) MaxRecordID(ctx context.Context) (ledger.RecordID, error) {
	var id int64
	err := t.tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(id), 0) FROM balance_records`).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to read max record id: %w", err)
	}
	return ledger.RecordID(id), nil
}

func scanRecord(row rowScanner) (ledger.Record, error) {
	var (
		r        ledger.Record
		billID   sql.NullInt64
		shareID  sql.NullInt64
		dateText string
		before   int64
		after    int64
		isInit   int
	)
	err := row.Scan(&r.ID, &r.AccountID, &billID, &shareID, &dateText, &before, &after, &isInit)
	if err != nil {
		return r, err
	}
	date, perr := parseTime(dateText)
	if perr != nil {
		return r, &ledger.DecodeError{Table: "balance_records", RowID: int64(r.ID), Column: "date", Err: perr}
	}
	r.BillID = ledger.BillID(billID.Int64)
	r.ShareID = ledger.ShareID(shareID.Int64)
	r.Date = date
	r.BalanceBefore = money.FromCents(before)
	r.BalanceAfter = money.FromCents(after)
	r.IsInit = isInit != 0
	return r, nil
}

// =============================================================================
// BILLS
// =============================================================================

func (t *Tx) InsertBill(ctx context.Context, b ledger.Bill) (ledger.BillID, error) {
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO bills (uid, bill_type, price, promotion, date, account_id, category_id, book_id, remark, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.UID, b.Type, b.Price.Cents(), b.Promotion.Cents(), formatTime(b.Date),
		b.AccountID, nullID(int64(b.CategoryID)), b.BookID, b.Remark, formatTime(time.Now()),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return 0, fmt.Errorf("bill uid %s already imported: %w", b.UID, err)
		}
		return 0, fmt.Errorf("failed to insert bill: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read bill id: %w", err)
	}
	return ledger.BillID(id), nil
}

// InsertBills bulk-inserts bills with pre-assigned ids.
func (t *Tx) InsertBills(ctx context.Context, bills []ledger.Bill) error {
	if len(bills) == 0 {
		return nil
	}
	var sb strings.Builder
	sb.WriteString(`INSERT INTO bills (id, uid, bill_type, price, promotion, date, account_id, category_id, book_id, remark, created_at) VALUES `)
	now := formatTime(time.Now())
	args := make([]any, 0, len(bills)*11)
	for i, b := range bills {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args, b.ID, b.UID, b.Type, b.Price.Cents(), b.Promotion.Cents(),
			formatTime(b.Date), b.AccountID, nullID(int64(b.CategoryID)), b.BookID, b.Remark, now)
	}
	if _, err := t.tx.ExecContext(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("failed to bulk insert bills: %w", err)
	}
	return nil
}

// UpdateBillRemark amends a committed bill's remark, the one field that
// stays mutable, and stamps modified_at.
func (t *Tx) UpdateBillRemark(ctx context.Context, id ledger.BillID, remark string, modifiedAt time.Time) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE bills SET remark = ?, modified_at = ? WHERE id = ?`,
		remark, formatTime(modifiedAt), id)
	if err != nil {
		return fmt.Errorf("failed to update bill %d remark: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n != 1 {
		return ledger.ErrBillNotFound
	}
	return nil
}

// MaxBillID returns the highest bill id, for pre-assigning ids in bulk
// inserts.
func (t *Tx) MaxBillID(ctx context.Context) (ledger.BillID, error) {
	var id int64
	err := t.tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(id), 0) FROM bills`).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to read max bill id: %w", err)
	}
	return ledger.BillID(id), nil
}

// =============================================================================
// TAGS AND SHARES
// =============================================================================

// EnsureTag returns the id for a tag name, creating it if missing.
func (t *Tx) EnsureTag(ctx context.Context, name string) (ledger.TagID, error) {
	var id int64
	err := t.tx.QueryRowContext(ctx, `SELECT id FROM tags WHERE name = ?`, name).Scan(&id)
	if err == nil {
		return ledger.TagID(id), nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to look up tag %q: %w", name, err)
	}
	res, err := t.tx.ExecContext(ctx, `INSERT INTO tags (name) VALUES (?)`, name)
	if err != nil {
		return 0, fmt.Errorf("failed to insert tag %q: %w", name, err)
	}
	id, err = res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read tag id: %w", err)
	}
	return ledger.TagID(id), nil
}

// LinkBillTag attaches a tag to a bill.
func (t *Tx) LinkBillTag(ctx context.Context, billID ledger.BillID, tagID ledger.TagID) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO bill_tags (bill_id, tag_id) VALUES (?, ?)`, billID, tagID)
	if err != nil {
		return fmt.Errorf("failed to link bill %d to tag %d: %w", billID, tagID, err)
	}
	return nil
}

// LinkBillShare records a participant's portion of a shared expense and
// returns the share's id for balance records to reference.
func (t *Tx) LinkBillShare(ctx context.Context, s ledger.Share) (ledger.ShareID, error) {
	var settledAt any
	if s.SettledAt != nil {
		settledAt = formatTime(*s.SettledAt)
	}
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO bill_shares (bill_id, account_id, name, amount, settled, settled_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		s.BillID, s.AccountID, s.Name, s.Amount.Cents(), boolInt(s.Settled), settledAt)
	if err != nil {
		return 0, fmt.Errorf("failed to link share for bill %d: %w", s.BillID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read share id: %w", err)
	}
	return ledger.ShareID(id), nil
}

// InsertShares bulk-inserts shares with pre-assigned ids.
func (t *Tx) InsertShares(ctx context.Context, shares []ledger.Share) error {
	if len(shares) == 0 {
		return nil
	}
	var sb strings.Builder
	sb.WriteString(`INSERT INTO bill_shares (id, bill_id, account_id, name, amount, settled, settled_at) VALUES `)
	args := make([]any, 0, len(shares)*7)
	for i, s := range shares {
		if i > 0 {
			sb.WriteString(", ")
		}
		var settledAt any
		if s.SettledAt != nil {
			settledAt = formatTime(*s.SettledAt)
		}
		sb.WriteString("(?, ?, ?, ?, ?, ?, ?)")
		args = append(args, s.ID, s.BillID, s.AccountID, s.Name, s.Amount.Cents(), boolInt(s.Settled), settledAt)
	}
	if _, err := t.tx.ExecContext(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("failed to bulk insert shares: %w", err)
	}
	return nil
}

// MaxShareID returns the highest share id, for pre-assigning ids in bulk
// inserts.
func (t *Tx) MaxShareID(ctx context.Context) (ledger.ShareID, error) {
	var id int64
	err := t.tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(id), 0) FROM bill_shares`).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to read max share id: %w", err)
	}
	return ledger.ShareID(id), nil
}

// =============================================================================
// BOOKS AND CATEGORIES
// =============================================================================

func (t *Tx) InsertBook(ctx context.Context, name string) (ledger.BookID, error) {
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO books (name, created_at) VALUES (?, ?)`, name, formatTime(time.Now()))
	if err != nil {
		return 0, fmt.Errorf("failed to insert book: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read book id: %w", err)
	}
	return ledger.BookID(id), nil
}

func (t *Tx) BookExists(ctx context.Context, id ledger.BookID) (bool, error) {
	var count int
	err := t.tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM books WHERE id = ?`, id).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check book %d: %w", id, err)
	}
	return count > 0, nil
}

func (t *Tx) InsertCategory(ctx context.Context, c ledger.Category) (ledger.CategoryID, error) {
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO categories (name, icon, bill_type, sort) VALUES (?, ?, ?, ?)`,
		c.Name, c.Icon, c.Type, c.Sort)
	if err != nil {
		return 0, fmt.Errorf("failed to insert category: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read category id: %w", err)
	}
	return ledger.CategoryID(id), nil
}

// =============================================================================
// READ PATHS (outside transactions)
// =============================================================================

func (s *Store) GetAccount(ctx context.Context, id ledger.AccountID) (ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return scanAccount(s.db.QueryRowContext(ctx,
		`SELECT id, name, icon, money, is_default FROM accounts WHERE id = ?`, id))
}

func (s *Store) ListAccounts(ctx context.Context) ([]ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT id, name, icon, money, is_default FROM accounts ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	var accounts []ledger.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (s *Store) ListBills(ctx context.Context, bookID ledger.BookID, from, to time.Time) ([]ledger.Bill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, uid, bill_type, price, promotion, date, account_id, category_id, book_id, remark, modified_at
		 FROM bills
		 WHERE book_id = ? AND date >= ? AND date <= ?
		 ORDER BY date DESC, id DESC`,
		bookID, formatTime(from), formatTime(to),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query bills: %w", err)
	}
	defer rows.Close()

	var bills []ledger.Bill
	for rows.Next() {
		b, err := scanBill(rows)
		if err != nil {
			return nil, err
		}
		bills = append(bills, b)
	}
	return bills, rows.Err()
}

func (s *Store) GetBill(ctx context.Context, id ledger.BillID) (ledger.Bill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, err := scanBill(s.db.QueryRowContext(ctx,
		`SELECT id, uid, bill_type, price, promotion, date, account_id, category_id, book_id, remark, modified_at
		 FROM bills WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return b, ledger.ErrBillNotFound
	}
	return b, err
}

// AccountRecords returns an account's full balance chain in (date, id)
// order, for chain verification and history views.
func (s *Store) AccountRecords(ctx context.Context, accountID ledger.AccountID) ([]ledger.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, account_id, bill_id, share_id, date, balance_before, balance_after, is_init
		 FROM balance_records
		 WHERE account_id = ?
		 ORDER BY date ASC, id ASC`,
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query account records: %w", err)
	}
	defer rows.Close()

	var records []ledger.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func (s *Store) ListBooks(ctx context.Context) ([]ledger.Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM books ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query books: %w", err)
	}
	defer rows.Close()

	var books []ledger.Book
	for rows.Next() {
		var b ledger.Book
		if err := rows.Scan(&b.ID, &b.Name); err != nil {
			return nil, fmt.Errorf("failed to scan book: %w", err)
		}
		books = append(books, b)
	}
	return books, rows.Err()
}

func (s *Store) ListCategories(ctx context.Context) ([]ledger.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, icon, bill_type, sort FROM categories ORDER BY sort, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer rows.Close()

	var categories []ledger.Category
	for rows.Next() {
		var c ledger.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Icon, &c.Type, &c.Sort); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

func (s *Store) ListTags(ctx context.Context) ([]ledger.Tag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM tags ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query tags: %w", err)
	}
	defer rows.Close()

	var tags []ledger.Tag
	for rows.Next() {
		var t ledger.Tag
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			return nil, fmt.Errorf("failed to scan tag: %w", err)
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}

// BillTags returns the tag names attached to a bill.
func (s *Store) BillTags(ctx context.Context, billID ledger.BillID) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT t.name FROM tags t
		 JOIN bill_tags bt ON bt.tag_id = t.id
		 WHERE bt.bill_id = ?
		 ORDER BY t.name`,
		billID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query bill tags: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan tag: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// BillShares returns the participant shares recorded for a bill.
func (s *Store) BillShares(ctx context.Context, billID ledger.BillID) ([]ledger.Share, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, bill_id, account_id, name, amount, settled, settled_at
		 FROM bill_shares WHERE bill_id = ?`,
		billID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query bill shares: %w", err)
	}
	defer rows.Close()

	var shares []ledger.Share
	for rows.Next() {
		var (
			sh        ledger.Share
			cents     int64
			settled   int
			settledAt sql.NullString
		)
		if err := rows.Scan(&sh.ID, &sh.BillID, &sh.AccountID, &sh.Name, &cents, &settled, &settledAt); err != nil {
			return nil, fmt.Errorf("failed to scan share: %w", err)
		}
		sh.Amount = money.FromCents(cents)
		sh.Settled = settled != 0
		if settledAt.Valid {
			at, perr := parseTime(settledAt.String)
			if perr != nil {
				return nil, &ledger.DecodeError{Table: "bill_shares", RowID: int64(sh.BillID), Column: "settled_at", Err: perr}
			}
			sh.SettledAt = &at
		}
		shares = append(shares, sh)
	}
	return shares, rows.Err()
}

// =============================================================================
// SCAN HELPERS
// =============================================================================

func scanBill(row rowScanner) (ledger.Bill, error) {
	var (
		b          ledger.Bill
		price      int64
		promotion  int64
		dateText   string
		categoryID sql.NullInt64
		modified   sql.NullString
	)
	err := row.Scan(&b.ID, &b.UID, &b.Type, &price, &promotion, &dateText,
		&b.AccountID, &categoryID, &b.BookID, &b.Remark, &modified)
	if err != nil {
		return b, err
	}
	date, perr := parseTime(dateText)
	if perr != nil {
		return b, &ledger.DecodeError{Table: "bills", RowID: int64(b.ID), Column: "date", Err: perr}
	}
	b.Price = money.FromCents(price)
	b.Promotion = money.FromCents(promotion)
	b.Date = date
	b.CategoryID = ledger.CategoryID(categoryID.Int64)
	if modified.Valid {
		at, perr := parseTime(modified.String)
		if perr != nil {
			return b, &ledger.DecodeError{Table: "bills", RowID: int64(b.ID), Column: "modified_at", Err: perr}
		}
		b.ModifiedAt = &at
	}
	return b, nil
}

func nullID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
