// Package store provides in-memory ledger storage for tests and development.
package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/warp/general-ledger/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements ledger.Store, ledger.AccountRegistry and ledger.AuditLog.
// Use TxMemory when ledger.TxStore is needed.
type Memory struct {
	mu sync.RWMutex
	st *memState
}

type memState struct {
	seq           int64
	transactions  map[ledger.TransactionID]*txRecord
	references    map[string]ledger.TransactionID
	periods       map[ledger.PeriodID]ledger.FiscalPeriod
	carryForwards map[ledger.PeriodID]ledger.CarryForward
	accounts      map[ledger.AccountID]ledger.Account
	audit         []ledger.AuditEntry
}

type txRecord struct {
	tx  ledger.Transaction
	seq int64
}

func NewMemory() *Memory {
	return &Memory{st: newMemState()}
}

func newMemState() *memState {
	return &memState{
		transactions:  make(map[ledger.TransactionID]*txRecord),
		references:    make(map[string]ledger.TransactionID),
		periods:       make(map[ledger.PeriodID]ledger.FiscalPeriod),
		carryForwards: make(map[ledger.PeriodID]ledger.CarryForward),
		accounts:      make(map[ledger.AccountID]ledger.Account),
	}
}

func (m *Memory) read(fn func(*memState)) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	fn(m.st)
}

func (m *Memory) write(fn func(*memState) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(m.st)
}

func (m *Memory) InsertTransaction(_ context.Context, tx ledger.Transaction) error {
	return m.write(func(s *memState) error { return s.insertTransaction(tx) })
}

func (m *Memory) GetTransaction(_ context.Context, id ledger.TransactionID) (tx *ledger.Transaction, err error) {
	m.read(func(s *memState) { tx = s.getTransaction(id) })
	return tx, nil
}

func (m *Memory) ReferenceExists(_ context.Context, reference string) (ok bool, err error) {
	m.read(func(s *memState) { _, ok = s.references[reference] })
	return ok, nil
}

func (m *Memory) ReplaceDetails(_ context.Context, id ledger.TransactionID, expectedVersion int64, lines []ledger.DetailLine) error {
	return m.write(func(s *memState) error { return s.replaceDetails(id, expectedVersion, lines) })
}

func (m *Memory) DeleteTransaction(_ context.Context, id ledger.TransactionID) error {
	return m.write(func(s *memState) error { return s.deleteTransaction(id) })
}

func (m *Memory) CountTransactions(_ context.Context, periodID ledger.PeriodID) (n int, err error) {
	m.read(func(s *memState) { n = s.countTransactions(periodID) })
	return n, nil
}

func (m *Memory) ListPostings(_ context.Context, filter ledger.PostingFilter) (out []ledger.Posting, err error) {
	m.read(func(s *memState) { out = s.listPostings(filter) })
	return out, nil
}

func (m *Memory) InsertPeriod(_ context.Context, p ledger.FiscalPeriod) error {
	return m.write(func(s *memState) error { return s.insertPeriod(p) })
}

func (m *Memory) UpdatePeriod(_ context.Context, p ledger.FiscalPeriod) error {
	return m.write(func(s *memState) error { return s.updatePeriod(p) })
}

func (m *Memory) GetPeriod(_ context.Context, id ledger.PeriodID) (p *ledger.FiscalPeriod, err error) {
	m.read(func(s *memState) { p = s.getPeriod(id) })
	return p, nil
}

func (m *Memory) GetPeriodByName(_ context.Context, name string) (p *ledger.FiscalPeriod, err error) {
	m.read(func(s *memState) { p = s.getPeriodByName(name) })
	return p, nil
}

func (m *Memory) ListPeriods(_ context.Context) (out []ledger.FiscalPeriod, err error) {
	m.read(func(s *memState) { out = s.listPeriods() })
	return out, nil
}

func (m *Memory) DeletePeriod(_ context.Context, id ledger.PeriodID) error {
	return m.write(func(s *memState) error { delete(s.periods, id); return nil })
}

func (m *Memory) InsertCarryForward(_ context.Context, cf ledger.CarryForward) error {
	return m.write(func(s *memState) error { return s.insertCarryForward(cf) })
}

func (m *Memory) GetCarryForward(_ context.Context, source ledger.PeriodID) (cf *ledger.CarryForward, err error) {
	m.read(func(s *memState) { cf = s.getCarryForward(source) })
	return cf, nil
}

func (m *Memory) ListCarryForwards(_ context.Context) (out []ledger.CarryForward, err error) {
	m.read(func(s *memState) { out = s.listCarryForwards() })
	return out, nil
}

// =============================================================================
// ACCOUNT REGISTRY
// =============================================================================

func (m *Memory) SaveAccount(_ context.Context, a ledger.Account) error {
	return m.write(func(s *memState) error {
		for _, other := range s.accounts {
			if other.Code == a.Code && other.ID != a.ID {
				return ledger.ErrAccountCodeTaken
			}
		}
		s.accounts[a.ID] = a
		return nil
	})
}

func (m *Memory) GetAccount(_ context.Context, id ledger.AccountID) (*ledger.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.st.accounts[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (m *Memory) ListActiveAccounts(_ context.Context) ([]ledger.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.listAccounts(true), nil
}

func (m *Memory) ListAccounts(_ context.Context) ([]ledger.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.listAccounts(false), nil
}

// =============================================================================
// AUDIT LOG
// =============================================================================

func (m *Memory) Record(_ context.Context, e ledger.AuditEntry) error {
	return m.write(func(s *memState) error {
		s.audit = append(s.audit, e)
		return nil
	})
}

// Query returns matching entries, newest first.
func (m *Memory) Query(_ context.Context, f ledger.AuditFilter) ([]ledger.AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []ledger.AuditEntry
	for i := len(m.st.audit) - 1; i >= 0; i-- {
		e := m.st.audit[i]
		if !auditMatches(f, e) {
			continue
		}
		out = append(out, e)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

func auditMatches(f ledger.AuditFilter, e ledger.AuditEntry) bool {
	if f.ActorID != "" && e.ActorID != f.ActorID {
		return false
	}
	if f.EntityKind != "" && e.EntityKind != f.EntityKind {
		return false
	}
	if f.EntityID != "" && e.EntityID != f.EntityID {
		return false
	}
	if len(f.Actions) == 0 {
		return true
	}
	for _, a := range f.Actions {
		if e.Action == a {
			return true
		}
	}
	return false
}

// =============================================================================
// STATE OPERATIONS - Callers hold the lock
// =============================================================================

func (s *memState) insertTransaction(tx ledger.Transaction) error {
	if _, ok := s.references[tx.Reference]; ok {
		return ledger.ErrDuplicateReference
	}
	s.seq++
	tx.Details = copyLines(tx.Details)
	s.transactions[tx.ID] = &txRecord{tx: tx, seq: s.seq}
	s.references[tx.Reference] = tx.ID
	return nil
}

func (s *memState) getTransaction(id ledger.TransactionID) *ledger.Transaction {
	rec, ok := s.transactions[id]
	if !ok {
		return nil
	}
	tx := rec.tx
	tx.Details = copyLines(rec.tx.Details)
	return &tx
}

func (s *memState) replaceDetails(id ledger.TransactionID, expectedVersion int64, lines []ledger.DetailLine) error {
	rec, ok := s.transactions[id]
	if !ok || rec.tx.Version != expectedVersion {
		return ledger.ErrConcurrentModification
	}
	rec.tx.Details = copyLines(lines)
	rec.tx.Version++
	return nil
}

func (s *memState) deleteTransaction(id ledger.TransactionID) error {
	rec, ok := s.transactions[id]
	if !ok {
		return nil
	}
	delete(s.references, rec.tx.Reference)
	delete(s.transactions, id)
	return nil
}

func (s *memState) countTransactions(periodID ledger.PeriodID) int {
	n := 0
	for _, rec := range s.transactions {
		if rec.tx.PeriodID == periodID {
			n++
		}
	}
	return n
}

func (s *memState) listPostings(f ledger.PostingFilter) []ledger.Posting {
	recs := make([]*txRecord, 0, len(s.transactions))
	for _, rec := range s.transactions {
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(i, j int) bool {
		a, b := recs[i].tx, recs[j].tx
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		return recs[i].seq < recs[j].seq
	})

	var out []ledger.Posting
	for _, rec := range recs {
		tx := rec.tx
		for _, line := range tx.Details {
			p := ledger.Posting{
				DetailLine:             line,
				Reference:              tx.Reference,
				Date:                   tx.Date,
				Type:                   tx.Type,
				SystemGenerated:        tx.SystemGenerated,
				PeriodID:               tx.PeriodID,
				AuthorID:               tx.AuthorID,
				TransactionDescription: tx.Description,
			}
			if f.Matches(p) {
				out = append(out, p)
			}
		}
	}
	return out
}

func (s *memState) insertPeriod(p ledger.FiscalPeriod) error {
	if s.getPeriodByName(p.Name) != nil {
		return ledger.ErrPeriodNameTaken
	}
	s.periods[p.ID] = p
	return nil
}

func (s *memState) updatePeriod(p ledger.FiscalPeriod) error {
	if other := s.getPeriodByName(p.Name); other != nil && other.ID != p.ID {
		return ledger.ErrPeriodNameTaken
	}
	s.periods[p.ID] = p
	return nil
}

func (s *memState) getPeriod(id ledger.PeriodID) *ledger.FiscalPeriod {
	p, ok := s.periods[id]
	if !ok {
		return nil
	}
	return &p
}

func (s *memState) getPeriodByName(name string) *ledger.FiscalPeriod {
	for _, p := range s.periods {
		if strings.EqualFold(p.Name, name) {
			p := p
			return &p
		}
	}
	return nil
}

func (s *memState) listPeriods() []ledger.FiscalPeriod {
	out := make([]ledger.FiscalPeriod, 0, len(s.periods))
	for _, p := range s.periods {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func (s *memState) insertCarryForward(cf ledger.CarryForward) error {
	if _, ok := s.carryForwards[cf.SourcePeriodID]; ok {
		return ledger.ErrAlreadyCarriedForward
	}
	s.carryForwards[cf.SourcePeriodID] = cf
	return nil
}

func (s *memState) getCarryForward(source ledger.PeriodID) *ledger.CarryForward {
	cf, ok := s.carryForwards[source]
	if !ok {
		return nil
	}
	return &cf
}

func (s *memState) listCarryForwards() []ledger.CarryForward {
	out := make([]ledger.CarryForward, 0, len(s.carryForwards))
	for _, cf := range s.carryForwards {
		out = append(out, cf)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *memState) listAccounts(activeOnly bool) []ledger.Account {
	out := make([]ledger.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		if activeOnly && !a.Active {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

func copyLines(lines []ledger.DetailLine) []ledger.DetailLine {
	if lines == nil {
		return nil
	}
	return append([]ledger.DetailLine(nil), lines...)
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
// The write lock is held for the whole unit, so units are serialized.
func (tm *TxMemory) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := tm.st.clone()
	if err := fn(&txMemoryView{st: tm.st}); err != nil {
		tm.st = snapshot
		return err
	}
	return nil
}

func (s *memState) clone() *memState {
	c := newMemState()
	c.seq = s.seq
	for k, rec := range s.transactions {
		r := *rec
		r.tx.Details = copyLines(rec.tx.Details)
		c.transactions[k] = &r
	}
	for k, v := range s.references {
		c.references[k] = v
	}
	for k, v := range s.periods {
		c.periods[k] = v
	}
	for k, v := range s.carryForwards {
		c.carryForwards[k] = v
	}
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	c.audit = append([]ledger.AuditEntry(nil), s.audit...)
	return c
}

// txMemoryView operates on the locked state without taking the lock again.
type txMemoryView struct {
	st *memState
}

func (v *txMemoryView) InsertTransaction(_ context.Context, tx ledger.Transaction) error {
	return v.st.insertTransaction(tx)
}

func (v *txMemoryView) GetTransaction(_ context.Context, id ledger.TransactionID) (*ledger.Transaction, error) {
	return v.st.getTransaction(id), nil
}

func (v *txMemoryView) ReferenceExists(_ context.Context, reference string) (bool, error) {
	_, ok := v.st.references[reference]
	return ok, nil
}

func (v *txMemoryView) ReplaceDetails(_ context.Context, id ledger.TransactionID, expectedVersion int64, lines []ledger.DetailLine) error {
	return v.st.replaceDetails(id, expectedVersion, lines)
}

func (v *txMemoryView) DeleteTransaction(_ context.Context, id ledger.TransactionID) error {
	return v.st.deleteTransaction(id)
}

func (v *txMemoryView) CountTransactions(_ context.Context, periodID ledger.PeriodID) (int, error) {
	return v.st.countTransactions(periodID), nil
}

func (v *txMemoryView) ListPostings(_ context.Context, f ledger.PostingFilter) ([]ledger.Posting, error) {
	return v.st.listPostings(f), nil
}

func (v *txMemoryView) InsertPeriod(_ context.Context, p ledger.FiscalPeriod) error {
	return v.st.insertPeriod(p)
}

func (v *txMemoryView) UpdatePeriod(_ context.Context, p ledger.FiscalPeriod) error {
	return v.st.updatePeriod(p)
}

func (v *txMemoryView) GetPeriod(_ context.Context, id ledger.PeriodID) (*ledger.FiscalPeriod, error) {
	return v.st.getPeriod(id), nil
}

func (v *txMemoryView) GetPeriodByName(_ context.Context, name string) (*ledger.FiscalPeriod, error) {
	return v.st.getPeriodByName(name), nil
}

func (v *txMemoryView) ListPeriods(_ context.Context) ([]ledger.FiscalPeriod, error) {
	return v.st.listPeriods(), nil
}

func (v *txMemoryView) DeletePeriod(_ context.Context, id ledger.PeriodID) error {
	delete(v.st.periods, id)
	return nil
}

func (v *txMemoryView) InsertCarryForward(_ context.Context, cf ledger.CarryForward) error {
	return v.st.insertCarryForward(cf)
}

func (v *txMemoryView) GetCarryForward(_ context.Context, source ledger.PeriodID) (*ledger.CarryForward, error) {
	return v.st.getCarryForward(source), nil
}

func (v *txMemoryView) ListCarryForwards(_ context.Context) ([]ledger.CarryForward, error) {
	return v.st.listCarryForwards(), nil
}

var (
	_ ledger.TxStore         = (*TxMemory)(nil)
	_ ledger.AccountRegistry = (*Memory)(nil)
	_ ledger.AuditLog        = (*Memory)(nil)
)
