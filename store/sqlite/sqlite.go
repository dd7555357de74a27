/*
Package sqlite provides a SQLite-backed implementation of the ledger storage interfaces.

PURPOSE:
  Implements ledger.TxStore, ledger.AccountRegistry and ledger.AuditLog using
  SQLite. In production, the same patterns apply to PostgreSQL - only minor
  SQL dialect differences.

INTERFACES IMPLEMENTED:
  ledger.TxStore:         Transactions, detail lines, periods, carry-forwards
  ledger.AccountRegistry: Minimal chart of accounts read by the ledger
  ledger.AuditLog:        Append-only audit trail

KEY TABLES:
  transactions:    Header rows (unique reference, optimistic version)
  detail_lines:    Debit/credit lines, ordered by position, cascade on delete
  fiscal_periods:  Open/closed periods (unique name, case-insensitive)
  carry_forwards:  One row per source period (double-posting guard)
  accounts:        Code, name, nature, active flag, parent link
  audit_log:       Who did what when

MONEY:
  Amounts are stored as decimal TEXT and summed in Go with shopspring/decimal.
  SQL SUM() is never used on amounts: SQLite would coerce them to REAL.

OPTIMISTIC LOCKING:
  ReplaceDetails bumps transactions.version with
    UPDATE ... SET version = version + 1 WHERE id = ? AND version = ?
  and reports ErrConcurrentModification when no row matched.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. In production with PostgreSQL,
  database-level concurrency control handles this instead. Functions passed
  to WithTx must only use the Store they receive.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/ledger.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  svc := ledger.NewService(store, store)

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - ledger/store.go: Interface definitions
  - ledger/store/memory.go: In-memory implementation for testing
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
	"github.com/shopspring/decimal"
	"github.com/warp/general-ledger/ledger"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Chart of accounts (minimal fields read by the ledger)
	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		code TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		nature TEXT NOT NULL,
		active INTEGER NOT NULL DEFAULT 1,
		parent_id TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_accounts_parent
		ON accounts(parent_id) WHERE parent_id IS NOT NULL;

	-- Fiscal periods
	CREATE TABLE IF NOT EXISTS fiscal_periods (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE COLLATE NOCASE,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		closed INTEGER NOT NULL DEFAULT 0,
		closed_at TEXT,
		closed_by TEXT,
		created_at TEXT NOT NULL
	);

	-- Transaction headers
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		reference TEXT NOT NULL UNIQUE,
		description TEXT NOT NULL,
		tx_date TEXT NOT NULL,
		tx_type TEXT NOT NULL,
		system_generated INTEGER NOT NULL DEFAULT 0,
		period_id TEXT NOT NULL REFERENCES fiscal_periods(id),
		author_id TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_period
		ON transactions(period_id);
	CREATE INDEX IF NOT EXISTS idx_transactions_date
		ON transactions(tx_date);

	-- Detail lines (amounts as decimal text)
	CREATE TABLE IF NOT EXISTS detail_lines (
		id TEXT PRIMARY KEY,
		transaction_id TEXT NOT NULL REFERENCES transactions(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		account_id TEXT NOT NULL,
		debit TEXT NOT NULL,
		credit TEXT NOT NULL,
		description TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_detail_lines_transaction
		ON detail_lines(transaction_id, position);
	-- Balance calculation (hot path)
	CREATE INDEX IF NOT EXISTS idx_detail_lines_account
		ON detail_lines(account_id);

	-- Carry-forwards: at most one per source period
	CREATE TABLE IF NOT EXISTS carry_forwards (
		source_period_id TEXT PRIMARY KEY REFERENCES fiscal_periods(id),
		destination_period_id TEXT NOT NULL REFERENCES fiscal_periods(id),
		closing_tx_id TEXT,
		opening_tx_id TEXT,
		created_by TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- Audit log (append-only)
	CREATE TABLE IF NOT EXISTS audit_log (
		id TEXT PRIMARY KEY,
		ts TEXT NOT NULL,
		actor_id TEXT NOT NULL,
		action TEXT NOT NULL,
		entity_kind TEXT NOT NULL,
		entity_id TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_audit_log_entity
		ON audit_log(entity_kind, entity_id);
	CREATE INDEX IF NOT EXISTS idx_audit_log_actor
		ON audit_log(actor_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// conn runs ledger queries against a database or an open transaction.
type conn struct {
	q queryer
}

// =============================================================================
// TRANSACTIONAL STORE (ledger.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store ledger.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.withTxLocked(ctx, fn)
}

func (s *Store) withTxLocked(ctx context.Context, fn func(store ledger.Store) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(conn{q: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// write runs a single multi-row write in its own transaction.
func (s *Store) write(ctx context.Context, fn func(c conn) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.withTxLocked(ctx, func(st ledger.Store) error { return fn(st.(conn)) })
}

func (s *Store) read() conn {
	return conn{q: s.db}
}

// =============================================================================
// TRANSACTION STORE (ledger.Store interface)
// =============================================================================

func (s *Store) InsertTransaction(ctx context.Context, tx ledger.Transaction) error {
	return s.write(ctx, func(c conn) error { return c.InsertTransaction(ctx, tx) })
}

func (s *Store) GetTransaction(ctx context.Context, id ledger.TransactionID) (*ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().GetTransaction(ctx, id)
}

func (s *Store) ReferenceExists(ctx context.Context, reference string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().ReferenceExists(ctx, reference)
}

func (s *Store) ReplaceDetails(ctx context.Context, id ledger.TransactionID, expectedVersion int64, lines []ledger.DetailLine) error {
	return s.write(ctx, func(c conn) error { return c.ReplaceDetails(ctx, id, expectedVersion, lines) })
}

func (s *Store) DeleteTransaction(ctx context.Context, id ledger.TransactionID) error {
	return s.write(ctx, func(c conn) error { return c.DeleteTransaction(ctx, id) })
}

func (s *Store) CountTransactions(ctx context.Context, periodID ledger.PeriodID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().CountTransactions(ctx, periodID)
}

func (s *Store) ListPostings(ctx context.Context, filter ledger.PostingFilter) ([]ledger.Posting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().ListPostings(ctx, filter)
}

func (s *Store) InsertPeriod(ctx context.Context, p ledger.FiscalPeriod) error {
	return s.write(ctx, func(c conn) error { return c.InsertPeriod(ctx, p) })
}

func (s *Store) UpdatePeriod(ctx context.Context, p ledger.FiscalPeriod) error {
	return s.write(ctx, func(c conn) error { return c.UpdatePeriod(ctx, p) })
}

func (s *Store) GetPeriod(ctx context.Context, id ledger.PeriodID) (*ledger.FiscalPeriod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().GetPeriod(ctx, id)
}

func (s *Store) GetPeriodByName(ctx context.Context, name string) (*ledger.FiscalPeriod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().GetPeriodByName(ctx, name)
}

func (s *Store) ListPeriods(ctx context.Context) ([]ledger.FiscalPeriod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().ListPeriods(ctx)
}

func (s *Store) DeletePeriod(ctx context.Context, id ledger.PeriodID) error {
	return s.write(ctx, func(c conn) error { return c.DeletePeriod(ctx, id) })
}

func (s *Store) InsertCarryForward(ctx context.Context, cf ledger.CarryForward) error {
	return s.write(ctx, func(c conn) error { return c.InsertCarryForward(ctx, cf) })
}

func (s *Store) GetCarryForward(ctx context.Context, source ledger.PeriodID) (*ledger.CarryForward, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().GetCarryForward(ctx, source)
}

func (s *Store) ListCarryForwards(ctx context.Context) ([]ledger.CarryForward, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().ListCarryForwards(ctx)
}

// =============================================================================
// CONN - Query implementations shared by Store and WithTx
// =============================================================================

func (c conn) InsertTransaction(ctx context.Context, tx ledger.Transaction) error {
	query := `
		INSERT INTO transactions
		(id, reference, description, tx_date, tx_type, system_generated,
		 period_id, author_id, version, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := c.q.ExecContext(ctx, query,
		tx.ID,
		tx.Reference,
		tx.Description,
		formatDate(tx.Date),
		tx.Type,
		tx.SystemGenerated,
		tx.PeriodID,
		tx.AuthorID,
		tx.Version,
		formatTime(tx.CreatedAt),
	)
	if err != nil {
		return translate(err, "failed to insert transaction")
	}
	return c.insertDetails(ctx, tx.ID, tx.Details)
}

func (c conn) insertDetails(ctx context.Context, txID ledger.TransactionID, lines []ledger.DetailLine) error {
	query := `
		INSERT INTO detail_lines (id, transaction_id, position, account_id, debit, credit, description)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	for i, l := range lines {
		_, err := c.q.ExecContext(ctx, query,
			l.ID, txID, i, l.AccountID,
			l.Debit.String(), l.Credit.String(),
			nullString(l.Description),
		)
		if err != nil {
			return translate(err, "failed to insert detail line")
		}
	}
	return nil
}

func (c conn) GetTransaction(ctx context.Context, id ledger.TransactionID) (*ledger.Transaction, error) {
	var (
		tx        ledger.Transaction
		date      string
		createdAt string
	)
	err := c.q.QueryRowContext(ctx, `
		SELECT id, reference, description, tx_date, tx_type, system_generated,
		       period_id, author_id, version, created_at
		FROM transactions WHERE id = ?`, id,
	).Scan(&tx.ID, &tx.Reference, &tx.Description, &date, &tx.Type, &tx.SystemGenerated,
		&tx.PeriodID, &tx.AuthorID, &tx.Version, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	tx.Date = parseDate(date)
	tx.CreatedAt = parseTime(createdAt)

	rows, err := c.q.QueryContext(ctx, `
		SELECT id, transaction_id, account_id, debit, credit, description
		FROM detail_lines WHERE transaction_id = ?
		ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query detail lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			l             ledger.DetailLine
			debit, credit string
			desc          sql.NullString
		)
		if err := rows.Scan(&l.ID, &l.TransactionID, &l.AccountID, &debit, &credit, &desc); err != nil {
			return nil, fmt.Errorf("failed to scan detail line: %w", err)
		}
		if l.Debit, err = decimal.NewFromString(debit); err != nil {
			return nil, fmt.Errorf("corrupt debit on line %s: %w", l.ID, err)
		}
		if l.Credit, err = decimal.NewFromString(credit); err != nil {
			return nil, fmt.Errorf("corrupt credit on line %s: %w", l.ID, err)
		}
		l.Description = desc.String
		tx.Details = append(tx.Details, l)
	}
	return &tx, rows.Err()
}

func (c conn) ReferenceExists(ctx context.Context, reference string) (bool, error) {
	var count int
	err := c.q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM transactions WHERE reference = ?",
		reference,
	).Scan(&count)
	return count > 0, err
}

func (c conn) ReplaceDetails(ctx context.Context, id ledger.TransactionID, expectedVersion int64, lines []ledger.DetailLine) error {
	res, err := c.q.ExecContext(ctx,
		"UPDATE transactions SET version = version + 1 WHERE id = ? AND version = ?",
		id, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to bump transaction version: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ledger.ErrConcurrentModification
	}

	if _, err := c.q.ExecContext(ctx, "DELETE FROM detail_lines WHERE transaction_id = ?", id); err != nil {
		return fmt.Errorf("failed to delete detail lines: %w", err)
	}
	return c.insertDetails(ctx, id, lines)
}

func (c conn) DeleteTransaction(ctx context.Context, id ledger.TransactionID) error {
	if _, err := c.q.ExecContext(ctx, "DELETE FROM detail_lines WHERE transaction_id = ?", id); err != nil {
		return fmt.Errorf("failed to delete detail lines: %w", err)
	}
	if _, err := c.q.ExecContext(ctx, "DELETE FROM transactions WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete transaction: %w", err)
	}
	return nil
}

func (c conn) CountTransactions(ctx context.Context, periodID ledger.PeriodID) (int, error) {
	var count int
	err := c.q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM transactions WHERE period_id = ?",
		periodID,
	).Scan(&count)
	return count, err
}

func (c conn) ListPostings(ctx context.Context, f ledger.PostingFilter) ([]ledger.Posting, error) {
	var (
		where []string
		args  []any
	)
	if f.TransactionID != "" {
		where = append(where, "t.id = ?")
		args = append(args, f.TransactionID)
	}
	if f.PeriodID != "" {
		where = append(where, "t.period_id = ?")
		args = append(args, f.PeriodID)
	}
	if !f.Range.From.IsZero() {
		where = append(where, "t.tx_date >= ?")
		args = append(args, formatDate(f.Range.From))
	}
	if !f.Range.To.IsZero() {
		where = append(where, "t.tx_date <= ?")
		args = append(args, formatDate(f.Range.To))
	}
	if len(f.AccountIDs) > 0 {
		where = append(where, "d.account_id IN ("+placeholders(len(f.AccountIDs))+")")
		for _, id := range f.AccountIDs {
			args = append(args, id)
		}
	}
	if len(f.ExcludeTypes) > 0 {
		where = append(where, "t.tx_type NOT IN ("+placeholders(len(f.ExcludeTypes))+")")
		for _, t := range f.ExcludeTypes {
			args = append(args, t)
		}
	}

	query := `
		SELECT d.id, d.transaction_id, d.account_id, d.debit, d.credit, d.description,
		       t.reference, t.tx_date, t.tx_type, t.system_generated, t.period_id,
		       t.author_id, t.description
		FROM detail_lines d
		JOIN transactions t ON t.id = d.transaction_id`
	if len(where) > 0 {
		query += "\n\t\tWHERE " + strings.Join(where, " AND ")
	}
	query += "\n\t\tORDER BY t.tx_date ASC, t.rowid ASC, d.position ASC"

	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query postings: %w", err)
	}
	defer rows.Close()

	var postings []ledger.Posting
	for rows.Next() {
		var (
			p             ledger.Posting
			debit, credit string
			lineDesc      sql.NullString
			date          string
		)
		err := rows.Scan(&p.ID, &p.TransactionID, &p.AccountID, &debit, &credit, &lineDesc,
			&p.Reference, &date, &p.Type, &p.SystemGenerated, &p.PeriodID,
			&p.AuthorID, &p.TransactionDescription)
		if err != nil {
			return nil, fmt.Errorf("failed to scan posting: %w", err)
		}
		if p.Debit, err = decimal.NewFromString(debit); err != nil {
			return nil, fmt.Errorf("corrupt debit on line %s: %w", p.ID, err)
		}
		if p.Credit, err = decimal.NewFromString(credit); err != nil {
			return nil, fmt.Errorf("corrupt credit on line %s: %w", p.ID, err)
		}
		p.Description = lineDesc.String
		p.Date = parseDate(date)
		postings = append(postings, p)
	}
	return postings, rows.Err()
}

// =============================================================================
// FISCAL PERIODS
// =============================================================================

const periodColumns = "id, name, start_date, end_date, closed, closed_at, closed_by, created_at"

func (c conn) InsertPeriod(ctx context.Context, p ledger.FiscalPeriod) error {
	_, err := c.q.ExecContext(ctx,
		"INSERT INTO fiscal_periods ("+periodColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		p.ID, p.Name, formatDate(p.Start), formatDate(p.End),
		p.Closed, nullTime(p.ClosedAt), nullString(string(p.ClosedBy)),
		formatTime(p.CreatedAt),
	)
	return translate(err, "failed to insert period")
}

func (c conn) UpdatePeriod(ctx context.Context, p ledger.FiscalPeriod) error {
	_, err := c.q.ExecContext(ctx, `
		UPDATE fiscal_periods
		SET name = ?, start_date = ?, end_date = ?, closed = ?, closed_at = ?, closed_by = ?
		WHERE id = ?`,
		p.Name, formatDate(p.Start), formatDate(p.End),
		p.Closed, nullTime(p.ClosedAt), nullString(string(p.ClosedBy)),
		p.ID,
	)
	return translate(err, "failed to update period")
}

func (c conn) GetPeriod(ctx context.Context, id ledger.PeriodID) (*ledger.FiscalPeriod, error) {
	return c.queryPeriod(ctx, "SELECT "+periodColumns+" FROM fiscal_periods WHERE id = ?", id)
}

func (c conn) GetPeriodByName(ctx context.Context, name string) (*ledger.FiscalPeriod, error) {
	return c.queryPeriod(ctx, "SELECT "+periodColumns+" FROM fiscal_periods WHERE name = ? COLLATE NOCASE", name)
}

func (c conn) queryPeriod(ctx context.Context, query string, arg any) (*ledger.FiscalPeriod, error) {
	rows, err := c.q.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to query period: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, rows.Err()
	}
	p, err := scanPeriod(rows)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (c conn) ListPeriods(ctx context.Context) ([]ledger.FiscalPeriod, error) {
	rows, err := c.q.QueryContext(ctx,
		"SELECT "+periodColumns+" FROM fiscal_periods ORDER BY start_date, name")
	if err != nil {
		return nil, fmt.Errorf("failed to query periods: %w", err)
	}
	defer rows.Close()

	var periods []ledger.FiscalPeriod
	for rows.Next() {
		p, err := scanPeriod(rows)
		if err != nil {
			return nil, err
		}
		periods = append(periods, p)
	}
	return periods, rows.Err()
}

func scanPeriod(rows *sql.Rows) (ledger.FiscalPeriod, error) {
	var (
		p                     ledger.FiscalPeriod
		start, end, createdAt string
		closedAt, closedBy    sql.NullString
	)
	if err := rows.Scan(&p.ID, &p.Name, &start, &end, &p.Closed, &closedAt, &closedBy, &createdAt); err != nil {
		return p, fmt.Errorf("failed to scan period: %w", err)
	}
	p.Start = parseDate(start)
	p.End = parseDate(end)
	p.CreatedAt = parseTime(createdAt)
	p.ClosedBy = ledger.UserID(closedBy.String)
	if closedAt.Valid {
		t := parseTime(closedAt.String)
		p.ClosedAt = &t
	}
	return p, nil
}

func (c conn) DeletePeriod(ctx context.Context, id ledger.PeriodID) error {
	_, err := c.q.ExecContext(ctx, "DELETE FROM fiscal_periods WHERE id = ?", id)
	return translate(err, "failed to delete period")
}

// =============================================================================
// CARRY-FORWARDS
// =============================================================================

const carryForwardColumns = "source_period_id, destination_period_id, closing_tx_id, opening_tx_id, created_by, created_at"

func (c conn) InsertCarryForward(ctx context.Context, cf ledger.CarryForward) error {
	_, err := c.q.ExecContext(ctx,
		"INSERT INTO carry_forwards ("+carryForwardColumns+") VALUES (?, ?, ?, ?, ?, ?)",
		cf.SourcePeriodID, cf.DestinationPeriodID,
		nullString(string(cf.ClosingTxID)), nullString(string(cf.OpeningTxID)),
		cf.CreatedBy, formatTime(cf.CreatedAt),
	)
	return translate(err, "failed to insert carry-forward")
}

func (c conn) GetCarryForward(ctx context.Context, source ledger.PeriodID) (*ledger.CarryForward, error) {
	cfs, err := c.queryCarryForwards(ctx,
		"SELECT "+carryForwardColumns+" FROM carry_forwards WHERE source_period_id = ?", source)
	if err != nil || len(cfs) == 0 {
		return nil, err
	}
	return &cfs[0], nil
}

func (c conn) ListCarryForwards(ctx context.Context) ([]ledger.CarryForward, error) {
	return c.queryCarryForwards(ctx,
		"SELECT "+carryForwardColumns+" FROM carry_forwards ORDER BY created_at")
}

func (c conn) queryCarryForwards(ctx context.Context, query string, args ...any) ([]ledger.CarryForward, error) {
	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query carry-forwards: %w", err)
	}
	defer rows.Close()

	var out []ledger.CarryForward
	for rows.Next() {
		var (
			cf               ledger.CarryForward
			closing, opening sql.NullString
			createdAt        string
		)
		if err := rows.Scan(&cf.SourcePeriodID, &cf.DestinationPeriodID, &closing, &opening, &cf.CreatedBy, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan carry-forward: %w", err)
		}
		cf.ClosingTxID = ledger.TransactionID(closing.String)
		cf.OpeningTxID = ledger.TransactionID(opening.String)
		cf.CreatedAt = parseTime(createdAt)
		out = append(out, cf)
	}
	return out, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func formatDate(t time.Time) string { return t.UTC().Format(ledger.DateLayout) }

func parseDate(s string) time.Time {
	t, _ := time.Parse(ledger.DateLayout, s)
	return t
}

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// translate maps constraint violations to ledger sentinels.
func translate(err error, msg string) error {
	if err == nil {
		return nil
	}
	if isUniqueConstraintError(err) {
		text := err.Error()
		switch {
		case strings.Contains(text, "transactions.reference"):
			return ledger.ErrDuplicateReference
		case strings.Contains(text, "fiscal_periods.name"):
			return ledger.ErrPeriodNameTaken
		case strings.Contains(text, "carry_forwards.source_period_id"):
			return ledger.ErrAlreadyCarriedForward
		case strings.Contains(text, "accounts.code"):
			return ledger.ErrAccountCodeTaken
		}
	}
	return fmt.Errorf("%s: %w", msg, err)
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

var (
	_ ledger.TxStore         = (*Store)(nil)
	_ ledger.AccountRegistry = (*Store)(nil)
	_ ledger.AuditLog        = (*Store)(nil)
)
