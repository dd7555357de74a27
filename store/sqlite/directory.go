package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/warp/general-ledger/ledger"
)

// =============================================================================
// ACCOUNT REGISTRY (ledger.AccountRegistry interface)
// =============================================================================

const accountColumns = "id, code, name, nature, active, parent_id"

// SaveAccount inserts or updates an account.
func (s *Store) SaveAccount(ctx context.Context, a ledger.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO accounts (id, code, name, nature, active, parent_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			code = excluded.code,
			name = excluded.name,
			nature = excluded.nature,
			active = excluded.active,
			parent_id = excluded.parent_id,
			updated_at = excluded.updated_at
	`

	now := formatTime(time.Now())
	_, err := s.db.ExecContext(ctx, query,
		a.ID, a.Code, a.Name, a.Nature, a.Active,
		nullString(string(a.ParentID)), now, now,
	)
	return translate(err, "failed to save account")
}

// GetAccount retrieves an account by ID.
func (s *Store) GetAccount(ctx context.Context, id ledger.AccountID) (*ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	accounts, err := s.queryAccounts(ctx, "SELECT "+accountColumns+" FROM accounts WHERE id = ?", id)
	if err != nil || len(accounts) == 0 {
		return nil, err
	}
	return &accounts[0], nil
}

// ListActiveAccounts returns active accounts ordered by code.
func (s *Store) ListActiveAccounts(ctx context.Context) ([]ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryAccounts(ctx, "SELECT "+accountColumns+" FROM accounts WHERE active = 1 ORDER BY code")
}

// ListAccounts returns every account ordered by code.
func (s *Store) ListAccounts(ctx context.Context) ([]ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryAccounts(ctx, "SELECT "+accountColumns+" FROM accounts ORDER BY code")
}

func (s *Store) queryAccounts(ctx context.Context, query string, args ...any) ([]ledger.Account, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	var accounts []ledger.Account
	for rows.Next() {
		var (
			a      ledger.Account
			parent sql.NullString
		)
		if err := rows.Scan(&a.ID, &a.Code, &a.Name, &a.Nature, &a.Active, &parent); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		a.ParentID = ledger.AccountID(parent.String)
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// =============================================================================
// AUDIT LOG (ledger.AuditLog interface)
// =============================================================================

// Record appends an audit entry.
func (s *Store) Record(ctx context.Context, e ledger.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, ts, actor_id, action, entity_kind, entity_id)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, formatTime(e.Timestamp), e.ActorID, e.Action, e.EntityKind, e.EntityID,
	)
	if err != nil {
		return fmt.Errorf("failed to record audit entry: %w", err)
	}
	return nil
}

// Query returns matching audit entries, newest first.
func (s *Store) Query(ctx context.Context, f ledger.AuditFilter) ([]ledger.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		where []string
		args  []any
	)
	if f.ActorID != "" {
		where = append(where, "actor_id = ?")
		args = append(args, f.ActorID)
	}
	if f.EntityKind != "" {
		where = append(where, "entity_kind = ?")
		args = append(args, f.EntityKind)
	}
	if f.EntityID != "" {
		where = append(where, "entity_id = ?")
		args = append(args, f.EntityID)
	}
	if len(f.Actions) > 0 {
		where = append(where, "action IN ("+placeholders(len(f.Actions))+")")
		for _, a := range f.Actions {
			args = append(args, a)
		}
	}

	query := "SELECT id, ts, actor_id, action, entity_kind, entity_id FROM audit_log"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY ts DESC, rowid DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var entries []ledger.AuditEntry
	for rows.Next() {
		var (
			e  ledger.AuditEntry
			ts string
		)
		if err := rows.Scan(&e.ID, &ts, &e.ActorID, &e.Action, &e.EntityKind, &e.EntityID); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		e.Timestamp = parseTime(ts)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
