/*
store.go - Persistence interfaces consumed by the engine

PURPOSE:
  Defines the interface between the ledger logic and the database.
  Different implementations can use SQLite, PostgreSQL, or in-memory storage.

KEY INTERFACES:
  Store:            Transaction, detail, period and carry-forward persistence
  TxStore:          Atomic multi-row writes (all-or-nothing)
  AccountDirectory: Read-only chart of accounts

ATOMIC UNITS:
  Every write in service.go runs inside TxStore.WithTx. A transaction header
  and all its detail lines are inserted in one unit; replacing details swaps
  the whole set in one unit; the carry-forward writes both generated entries
  and its bookkeeping record in one unit.

OPTIMISTIC LOCKING:
  ReplaceDetails takes the version the caller read. If the stored version
  differs, the store returns ErrConcurrentModification and writes nothing.
  Two concurrent detail edits of the same transaction therefore cannot both
  pass validation against a stale set.

UNIQUENESS:
  Stores must enforce:
  - transaction reference   -> ErrDuplicateReference
  - fiscal period name      -> ErrPeriodNameTaken
  - carry-forward source    -> ErrAlreadyCarriedForward

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite
  - ledger/store/memory.go: In-memory for testing

SEE ALSO:
  - service.go: Uses these interfaces
  - audit.go: Audit log interfaces
*/
package ledger

import (
	"context"
	"time"
)

// =============================================================================
// STORE - Interface for ledger persistence
// =============================================================================

// Store persists transactions, detail lines and fiscal periods.
// Getters return (nil, nil) when the row does not exist.
type Store interface {
	// InsertTransaction persists the header and every detail line.
	InsertTransaction(ctx context.Context, tx Transaction) error

	// GetTransaction returns the header with its details ordered by insertion.
	GetTransaction(ctx context.Context, id TransactionID) (*Transaction, error)

	// ReferenceExists checks whether a transaction reference is taken.
	ReferenceExists(ctx context.Context, reference string) (bool, error)

	// ReplaceDetails swaps the detail set if the stored version matches
	// expectedVersion, then increments the version.
	ReplaceDetails(ctx context.Context, id TransactionID, expectedVersion int64, lines []DetailLine) error

	// DeleteTransaction removes the details, then the header.
	DeleteTransaction(ctx context.Context, id TransactionID) error

	// CountTransactions returns the number of transactions owned by a period.
	CountTransactions(ctx context.Context, periodID PeriodID) (int, error)

	// ListPostings returns detail lines joined with their header, ordered by
	// transaction date, transaction creation, then line insertion.
	ListPostings(ctx context.Context, filter PostingFilter) ([]Posting, error)

	InsertPeriod(ctx context.Context, p FiscalPeriod) error
	UpdatePeriod(ctx context.Context, p FiscalPeriod) error
	GetPeriod(ctx context.Context, id PeriodID) (*FiscalPeriod, error)
	GetPeriodByName(ctx context.Context, name string) (*FiscalPeriod, error)
	ListPeriods(ctx context.Context) ([]FiscalPeriod, error)
	DeletePeriod(ctx context.Context, id PeriodID) error

	// InsertCarryForward records a completed carry-forward. Unique per source.
	InsertCarryForward(ctx context.Context, cf CarryForward) error
	GetCarryForward(ctx context.Context, source PeriodID) (*CarryForward, error)
	ListCarryForwards(ctx context.Context) ([]CarryForward, error)
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, every write made through the Store passed to fn
	// is rolled back. If fn returns nil, the writes are committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// PostingFilter narrows ListPostings. Zero fields do not filter.
type PostingFilter struct {
	TransactionID TransactionID
	AccountIDs    []AccountID
	PeriodID      PeriodID
	Range         DateRange
	ExcludeTypes  []TransactionType
}

// Matches applies the filter in memory. Stores that cannot push a predicate
// down to the database use this to stay consistent with SQL filtering.
func (f PostingFilter) Matches(p Posting) bool {
	if f.TransactionID != "" && p.TransactionID != f.TransactionID {
		return false
	}
	if f.PeriodID != "" && p.PeriodID != f.PeriodID {
		return false
	}
	if !f.Range.Contains(p.Date) {
		return false
	}
	if len(f.AccountIDs) > 0 {
		found := false
		for _, id := range f.AccountIDs {
			if id == p.AccountID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for _, t := range f.ExcludeTypes {
		if p.Type == t {
			return false
		}
	}
	return true
}

// CarryForward records which entries were generated when balances moved
// from Source to Destination.
type CarryForward struct {
	SourcePeriodID      PeriodID
	DestinationPeriodID PeriodID
	ClosingTxID         TransactionID // empty when no result account had a balance
	OpeningTxID         TransactionID // empty when no balance-sheet account had a balance
	CreatedBy           UserID
	CreatedAt           time.Time
}

// =============================================================================
// ACCOUNT DIRECTORY - Read-only chart of accounts
// =============================================================================

// AccountDirectory is supplied by the chart-of-accounts collaborator.
type AccountDirectory interface {
	// GetAccount returns (nil, nil) when the account does not exist.
	GetAccount(ctx context.Context, id AccountID) (*Account, error)

	// ListActiveAccounts returns active accounts ordered by code.
	ListActiveAccounts(ctx context.Context) ([]Account, error)
}
