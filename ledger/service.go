/*
service.go - Ledger write path

PURPOSE:
  The Service is the Ledger Core API. It accepts plain draft/filter structures
  and returns results or typed errors (see errors.go). Raw store errors never
  cross this boundary.

WRITE FLOW:
  CreateTransaction:
    1. Validate the draft (validate.go), outside any database transaction
    2. In one atomic unit: re-read the period, reject if closed, assign a
       unique reference and insert header + all lines
    3. After commit: record one audit entry (best-effort)

  ReplaceDetails / AddDetails / DeleteDetails:
    1. Read the transaction and its version
    2. Compute the entire resulting detail set and validate it
    3. In one atomic unit: re-check the period, swap the set if the version
       is unchanged (otherwise ErrConcurrentModification)
    4. After commit: record one audit entry

  DeleteTransaction:
    In one atomic unit: lines first, then the header.

LOCKING:
  Validation runs against the version read in step 1; the store rejects the
  swap if another writer got there first. Two concurrent detail edits of the
  same transaction can never both commit.

  Functions passed to WithTx only touch the Store they receive. The account
  directory is consulted before the unit starts.

SYSTEM ENTRIES:
  Closing/opening entries (closing.go) are written by the carry-forward
  process. Users cannot edit or delete them (ErrSystemGenerated).

SEE ALSO:
  - lifecycle.go: fiscal period operations
  - closing.go: carry-forward
  - reports.go: read projections
*/
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
)

// DefaultReferenceAttempts bounds the reference retry loop.
const DefaultReferenceAttempts = 5

// Service implements the ledger operations on top of a transactional store.
type Service struct {
	Store     TxStore
	Accounts  AccountDirectory
	Audit     AuditSink
	Trail     AuditLog // optional; backs AuditTrail queries
	Refs      *ReferenceGenerator
	Validator *Validator

	// RetainedEarningsCode is the code of the equity account that receives
	// the closing contra-posting.
	RetainedEarningsCode string

	ReferenceAttempts int
	Now               func() time.Time
}

// NewService wires a Service with defaults: no-op audit, default reference
// prefix and retry bound.
func NewService(store TxStore, accounts AccountDirectory) *Service {
	return &Service{
		Store:             store,
		Accounts:          accounts,
		Audit:             NopAuditSink{},
		Refs:              NewReferenceGenerator(DefaultReferencePrefix),
		Validator:         &Validator{Accounts: accounts},
		ReferenceAttempts: DefaultReferenceAttempts,
		Now:               time.Now,
	}
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// CreateTransaction validates and persists a user-authored transaction.
func (s *Service) CreateTransaction(ctx context.Context, draft TransactionDraft) (*Transaction, error) {
	const op = "create transaction"
	draft.SystemGenerated = false

	if err := s.Validator.Validate(ctx, draft); err != nil {
		return nil, boundary(op, err)
	}

	tx := s.newTransaction(draft)
	err := s.Store.WithTx(ctx, func(st Store) error {
		period, err := requireOpenPeriod(ctx, st, draft.PeriodID)
		if err != nil {
			return err
		}
		if !period.Range().Contains(draft.Date) {
			return invalid("date", "date is outside the fiscal period "+period.Range().String())
		}
		return s.insertWithReference(ctx, st, tx, s.Refs.Next)
	})
	if err != nil {
		return nil, boundary(op, err)
	}

	s.audit(ctx, AuditCreate, draft.AuthorID, EntityTransaction, string(tx.ID))
	return tx, nil
}

// GetTransaction returns a transaction with its detail lines.
func (s *Service) GetTransaction(ctx context.Context, id TransactionID) (*Transaction, error) {
	tx, err := s.Store.GetTransaction(ctx, id)
	if err != nil {
		return nil, boundary("get transaction", err)
	}
	if tx == nil {
		return nil, notFound(EntityTransaction, id)
	}
	return tx, nil
}

// ReplaceDetails swaps the whole detail set of a transaction. The new set is
// validated as a whole; a line whose ID matches an existing line keeps it.
func (s *Service) ReplaceDetails(ctx context.Context, id TransactionID, actor UserID, lines []LineDraft) (*Transaction, error) {
	const op = "replace details"
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	current, err := s.loadEditable(ctx, id)
	if err != nil {
		return nil, boundary(op, err)
	}
	if err := s.Validator.ValidateLines(ctx, lines); err != nil {
		return nil, boundary(op, err)
	}

	existing := make(map[DetailID]bool, len(current.Details))
	for _, d := range current.Details {
		existing[d.ID] = true
	}
	claimed := make(map[DetailID]int, len(lines))
	for i, l := range lines {
		if l.ID == "" {
			continue
		}
		if !existing[l.ID] {
			return nil, notFound(EntityDetail, l.ID)
		}
		if first, dup := claimed[l.ID]; dup {
			return nil, invalid(fmt.Sprintf("lines[%d].id", i), fmt.Sprintf("line id used twice (also on line %d)", first))
		}
		claimed[l.ID] = i
	}

	return s.commitDetails(ctx, op, current, actor, s.materialize(current.ID, lines))
}

// AddDetails appends lines to a transaction. The resulting set, existing lines
// included, must still balance.
func (s *Service) AddDetails(ctx context.Context, id TransactionID, actor UserID, lines []LineDraft) (*Transaction, error) {
	const op = "add details"
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, invalid("lines", "at least one detail line is required")
	}
	current, err := s.loadEditable(ctx, id)
	if err != nil {
		return nil, boundary(op, err)
	}

	combined := linesToDrafts(current.Details)
	for _, l := range lines {
		l.ID = ""
		combined = append(combined, l)
	}
	if err := s.Validator.ValidateLines(ctx, combined); err != nil {
		return nil, boundary(op, err)
	}

	return s.commitDetails(ctx, op, current, actor, s.materialize(current.ID, combined))
}

// DeleteDetails removes lines from a transaction. What remains must be
// non-empty and balanced, otherwise nothing is removed.
func (s *Service) DeleteDetails(ctx context.Context, id TransactionID, actor UserID, detailIDs []DetailID) (*Transaction, error) {
	const op = "delete details"
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if len(detailIDs) == 0 {
		return nil, invalid("detail_ids", "at least one detail line id is required")
	}
	current, err := s.loadEditable(ctx, id)
	if err != nil {
		return nil, boundary(op, err)
	}

	remove := make(map[DetailID]bool, len(detailIDs))
	for _, d := range detailIDs {
		remove[d] = true
	}
	var remaining []DetailLine
	for _, d := range current.Details {
		if remove[d.ID] {
			delete(remove, d.ID)
			continue
		}
		remaining = append(remaining, d)
	}
	for _, d := range detailIDs {
		if remove[d] {
			return nil, notFound(EntityDetail, d)
		}
	}
	if len(remaining) == 0 {
		return nil, invalid("detail_ids", "a transaction must keep at least one detail line; delete the transaction instead")
	}
	if err := CheckBalanced(linesToDrafts(remaining)); err != nil {
		return nil, err
	}

	return s.commitDetails(ctx, op, current, actor, remaining)
}

// DeleteTransaction removes a transaction and all its lines atomically.
func (s *Service) DeleteTransaction(ctx context.Context, id TransactionID, actor UserID) error {
	const op = "delete transaction"
	if err := requireActor(actor); err != nil {
		return err
	}
	err := s.Store.WithTx(ctx, func(st Store) error {
		tx, err := st.GetTransaction(ctx, id)
		if err != nil {
			return err
		}
		if tx == nil {
			return notFound(EntityTransaction, id)
		}
		if tx.SystemGenerated {
			return ErrSystemGenerated
		}
		if _, err := requireOpenPeriod(ctx, st, tx.PeriodID); err != nil {
			return err
		}
		return st.DeleteTransaction(ctx, id)
	})
	if err != nil {
		return boundary(op, err)
	}

	s.audit(ctx, AuditDelete, actor, EntityTransaction, string(id))
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (s *Service) newTransaction(d TransactionDraft) *Transaction {
	tx := &Transaction{
		ID:              TransactionID(uuid.NewString()),
		Description:     d.Description,
		Date:            Day(d.Date),
		Type:            d.Type,
		SystemGenerated: d.SystemGenerated,
		PeriodID:        d.PeriodID,
		AuthorID:        d.AuthorID,
		Version:         1,
		CreatedAt:       s.now(),
	}
	tx.Details = s.materialize(tx.ID, d.Lines)
	return tx
}

// materialize turns drafts into stored lines, keeping provided IDs.
func (s *Service) materialize(txID TransactionID, lines []LineDraft) []DetailLine {
	out := make([]DetailLine, len(lines))
	for i, l := range lines {
		id := l.ID
		if id == "" {
			id = DetailID(uuid.NewString())
		}
		out[i] = DetailLine{
			ID:            id,
			TransactionID: txID,
			AccountID:     l.AccountID,
			Debit:         l.Debit,
			Credit:        l.Credit,
			Description:   l.Description,
		}
	}
	return out
}

// insertWithReference assigns a reference and inserts tx, drawing a new
// reference when the store reports a collision.
func (s *Service) insertWithReference(ctx context.Context, st Store, tx *Transaction, next func() string) error {
	attempts := s.ReferenceAttempts
	if attempts <= 0 {
		attempts = DefaultReferenceAttempts
	}
	for i := 0; i < attempts; i++ {
		tx.Reference = next()
		taken, err := st.ReferenceExists(ctx, tx.Reference)
		if err != nil {
			return err
		}
		if taken {
			continue
		}
		err = st.InsertTransaction(ctx, *tx)
		if errors.Is(err, ErrDuplicateReference) {
			continue
		}
		return err
	}
	log.Printf("[Ledger] no free reference after %d attempts for transaction %s", attempts, tx.ID)
	return ErrDuplicateReference
}

// loadEditable reads a transaction that a user may modify.
func (s *Service) loadEditable(ctx context.Context, id TransactionID) (*Transaction, error) {
	tx, err := s.Store.GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	if tx == nil {
		return nil, notFound(EntityTransaction, id)
	}
	if tx.SystemGenerated {
		return nil, ErrSystemGenerated
	}
	return tx, nil
}

func (s *Service) commitDetails(ctx context.Context, op string, current *Transaction, actor UserID, details []DetailLine) (*Transaction, error) {
	err := s.Store.WithTx(ctx, func(st Store) error {
		if _, err := requireOpenPeriod(ctx, st, current.PeriodID); err != nil {
			return err
		}
		return st.ReplaceDetails(ctx, current.ID, current.Version, details)
	})
	if err != nil {
		return nil, boundary(op, err)
	}

	s.audit(ctx, AuditUpdate, actor, EntityTransaction, string(current.ID))

	updated := *current
	updated.Details = details
	updated.Version++
	return &updated, nil
}

// requireOpenPeriod reads the period inside the current unit and rejects
// closed periods.
func requireOpenPeriod(ctx context.Context, st Store, id PeriodID) (*FiscalPeriod, error) {
	p, err := st.GetPeriod(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, notFound(EntityFiscalPeriod, id)
	}
	if p.Closed {
		return nil, ErrPeriodClosed
	}
	return p, nil
}

func requireActor(actor UserID) error {
	if actor == "" {
		return invalid("actor", "acting user is required")
	}
	return nil
}

// audit records an entry after commit. Failures are logged and ignored.
func (s *Service) audit(ctx context.Context, action AuditAction, actor UserID, kind, id string) {
	if s.Audit == nil {
		return
	}
	if err := s.Audit.Record(ctx, NewAuditEntry(action, actor, kind, id)); err != nil {
		log.Printf("[Ledger] audit %s %s/%s not recorded: %v", action, kind, id, err)
	}
}

func (s *Service) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}
