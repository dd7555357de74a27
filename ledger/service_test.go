package ledger_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/general-ledger/ledger"
)

// =============================================================================
// CREATE
// =============================================================================

func TestCreateTransaction_BalancedMovesBalances(t *testing.T) {
	// GIVEN: an asset and a liability account with no activity
	f := newFixture(t)
	before := f.balance(t, "cash", ledger.BalanceFilter{})

	// WHEN: debit 1000 to cash, credit 1000 to payables
	tx := f.post(t, f.fy2025, ledger.NewDate(2025, time.May, 1),
		ledger.Debit("cash", m("1000.00"), ""), ledger.Credit("payables", m("1000.00"), ""))

	// THEN: both balances rise by 1000 on their normal side
	assert.True(t, f.balance(t, "cash", ledger.BalanceFilter{}).Equal(before.Add(m("1000"))))
	assert.True(t, f.balance(t, "payables", ledger.BalanceFilter{}).Equal(m("1000")))
	assert.Regexp(t, `^GL-TXN-\d{12}-\d{4}$`, tx.Reference)
	assert.Equal(t, int64(1), tx.Version)
	assert.False(t, tx.SystemGenerated)
}

func TestCreateTransaction_UnbalancedRejected(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateTransaction(f.ctx, f.draft(f.fy2025, ledger.NewDate(2025, time.May, 1),
		ledger.Debit("cash", m("1000.00"), ""), ledger.Credit("payables", m("700.00"), "")))

	var verr *ledger.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "1000", verr.TotalDebit.String())
	assert.Equal(t, "700", verr.TotalCredit.String())

	n, err := f.mem.CountTransactions(f.ctx, f.fy2025.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCreateTransaction_ClosedPeriodConflict(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.ClosePeriod(f.ctx, f.fy2025.ID, "admin")
	require.NoError(t, err)

	_, err = f.svc.CreateTransaction(f.ctx, f.draft(f.fy2025, ledger.NewDate(2025, time.May, 1),
		ledger.Debit("cash", m("10.00"), ""), ledger.Credit("sales", m("10.00"), "")))

	assert.ErrorIs(t, err, ledger.ErrPeriodClosed)
	assert.True(t, ledger.IsConflict(err))
}

func TestCreateTransaction_UnknownPeriod(t *testing.T) {
	f := newFixture(t)
	d := f.draft(f.fy2025, ledger.NewDate(2025, time.May, 1),
		ledger.Debit("cash", m("10.00"), ""), ledger.Credit("sales", m("10.00"), ""))
	d.PeriodID = "missing"

	_, err := f.svc.CreateTransaction(f.ctx, d)

	assert.True(t, ledger.IsNotFound(err))
}

func TestCreateTransaction_DateOutsidePeriod(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateTransaction(f.ctx, f.draft(f.fy2025, ledger.NewDate(2026, time.February, 1),
		ledger.Debit("cash", m("10.00"), ""), ledger.Credit("sales", m("10.00"), "")))

	var verr *ledger.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Fields, "date")
}

func TestCreateTransaction_CannotForgeSystemEntry(t *testing.T) {
	f := newFixture(t)
	d := f.draft(f.fy2025, ledger.NewDate(2025, time.May, 1),
		ledger.Debit("cash", m("10.00"), ""), ledger.Credit("sales", m("10.00"), ""))
	d.SystemGenerated = true

	tx, err := f.svc.CreateTransaction(f.ctx, d)

	require.NoError(t, err)
	assert.False(t, tx.SystemGenerated)
}

func TestCreateTransaction_RetriesReferenceCollision(t *testing.T) {
	// GIVEN: a generator whose next candidate repeats an existing reference
	f := newFixture(t)
	f.svc.Refs = &ledger.ReferenceGenerator{
		Prefix: "REF",
		Now:    func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) },
		Rand:   func() int { return 1234 },
	}
	first := f.post(t, f.fy2025, ledger.NewDate(2025, time.May, 1),
		ledger.Debit("cash", m("1.00"), ""), ledger.Credit("sales", m("1.00"), ""))
	suffixes := []int{1234, 4321}
	f.svc.Refs.Rand = func() int {
		n := suffixes[0]
		suffixes = suffixes[1:]
		return n
	}

	// WHEN: creating another transaction
	second := f.post(t, f.fy2025, ledger.NewDate(2025, time.May, 2),
		ledger.Debit("cash", m("1.00"), ""), ledger.Credit("sales", m("1.00"), ""))

	// THEN: the colliding candidate is skipped
	assert.Equal(t, "REF-250101000000-1234", first.Reference)
	assert.Equal(t, "REF-250101000000-4321", second.Reference)
}

func TestCreateTransaction_ReferenceSpaceExhausted(t *testing.T) {
	f := newFixture(t)
	f.svc.Refs.Now = func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }
	f.svc.Refs.Rand = func() int { return 1000 }
	f.post(t, f.fy2025, ledger.NewDate(2025, time.May, 1),
		ledger.Debit("cash", m("1.00"), ""), ledger.Credit("sales", m("1.00"), ""))

	_, err := f.svc.CreateTransaction(f.ctx, f.draft(f.fy2025, ledger.NewDate(2025, time.May, 1),
		ledger.Debit("cash", m("1.00"), ""), ledger.Credit("sales", m("1.00"), "")))

	assert.ErrorIs(t, err, ledger.ErrDuplicateReference)
	assert.True(t, ledger.IsRetryable(err))
}

func TestCreateTransaction_ConcurrentWritersGetUniqueReferences(t *testing.T) {
	f := newFixture(t)
	const n = 20

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		refs = map[string]bool{}
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tx, err := f.svc.CreateTransaction(context.Background(), f.draft(f.fy2025, ledger.NewDate(2025, time.May, 1),
				ledger.Debit("cash", m("1.00"), ""), ledger.Credit("sales", m("1.00"), "")))
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			refs[tx.Reference] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, refs, n)
	assert.True(t, f.balance(t, "cash", ledger.BalanceFilter{}).Equal(m("20")))
}

// =============================================================================
// DETAIL EDITS
// =============================================================================

func TestReplaceDetails_SameSetLeavesBalancesUnchanged(t *testing.T) {
	f := newFixture(t)
	tx := f.post(t, f.fy2025, ledger.NewDate(2025, time.May, 1),
		ledger.Debit("cash", m("300.00"), ""), ledger.Credit("sales", m("300.00"), ""))
	cash := f.balance(t, "cash", ledger.BalanceFilter{})
	sales := f.balance(t, "sales", ledger.BalanceFilter{})

	updated, err := f.svc.ReplaceDetails(f.ctx, tx.ID, "bob", []ledger.LineDraft{
		{ID: tx.Details[0].ID, AccountID: "cash", Debit: m("300.00")},
		{ID: tx.Details[1].ID, AccountID: "sales", Credit: m("300.00")},
	})

	require.NoError(t, err)
	assert.Equal(t, int64(2), updated.Version)
	assert.Equal(t, tx.Details[0].ID, updated.Details[0].ID)
	assert.True(t, f.balance(t, "cash", ledger.BalanceFilter{}).Equal(cash))
	assert.True(t, f.balance(t, "sales", ledger.BalanceFilter{}).Equal(sales))
}

func TestReplaceDetails_UnbalancedSetRejectedWhole(t *testing.T) {
	f := newFixture(t)
	tx := f.post(t, f.fy2025, ledger.NewDate(2025, time.May, 1),
		ledger.Debit("cash", m("300.00"), ""), ledger.Credit("sales", m("300.00"), ""))

	_, err := f.svc.ReplaceDetails(f.ctx, tx.ID, "bob", []ledger.LineDraft{
		ledger.Debit("cash", m("300.00"), ""), ledger.Credit("sales", m("299.99"), ""),
	})

	assert.True(t, ledger.IsValidation(err))
	stored, err := f.svc.GetTransaction(f.ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, tx.Details, stored.Details)
	assert.Equal(t, int64(1), stored.Version)
}

func TestReplaceDetails_UnknownLineID(t *testing.T) {
	f := newFixture(t)
	tx := f.post(t, f.fy2025, ledger.NewDate(2025, time.May, 1),
		ledger.Debit("cash", m("1.00"), ""), ledger.Credit("sales", m("1.00"), ""))

	_, err := f.svc.ReplaceDetails(f.ctx, tx.ID, "bob", []ledger.LineDraft{
		{ID: "nope", AccountID: "cash", Debit: m("1.00")},
		ledger.Credit("sales", m("1.00"), ""),
	})

	assert.True(t, ledger.IsNotFound(err))
}

func TestReplaceDetails_LineIDUsedTwice(t *testing.T) {
	// GIVEN: a two-line transaction
	f := newFixture(t)
	tx := f.post(t, f.fy2025, ledger.NewDate(2025, time.May, 1),
		ledger.Debit("cash", m("10.00"), ""), ledger.Credit("sales", m("10.00"), ""))

	// WHEN: both new lines claim the same existing line id
	_, err := f.svc.ReplaceDetails(f.ctx, tx.ID, "bob", []ledger.LineDraft{
		{ID: tx.Details[0].ID, AccountID: "cash", Debit: m("10.00")},
		{ID: tx.Details[0].ID, AccountID: "sales", Credit: m("10.00")},
	})

	// THEN: the request is rejected and the stored lines are untouched
	require.True(t, ledger.IsValidation(err))
	var verr *ledger.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Fields, "lines[1].id")
	stored, err := f.svc.GetTransaction(f.ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, tx.Details, stored.Details)
	assert.Equal(t, int64(1), stored.Version)
}

func TestReplaceDetails_StaleVersionConflict(t *testing.T) {
	// GIVEN: a transaction read by two editors
	f := newFixture(t)
	tx := f.post(t, f.fy2025, ledger.NewDate(2025, time.May, 1),
		ledger.Debit("cash", m("1.00"), ""), ledger.Credit("sales", m("1.00"), ""))

	// WHEN: the first edit commits and the second swaps against the old version
	_, err := f.svc.AddDetails(f.ctx, tx.ID, "bob", []ledger.LineDraft{
		ledger.Debit("bank", m("1.00"), ""), ledger.Credit("capital", m("1.00"), ""),
	})
	require.NoError(t, err)
	err = f.mem.ReplaceDetails(f.ctx, tx.ID, tx.Version, tx.Details)

	// THEN: the store refuses
	assert.ErrorIs(t, err, ledger.ErrConcurrentModification)
}

func TestAddDetails_ValidatesResultingSet(t *testing.T) {
	f := newFixture(t)
	tx := f.post(t, f.fy2025, ledger.NewDate(2025, time.May, 1),
		ledger.Debit("cash", m("100.00"), ""), ledger.Credit("sales", m("100.00"), ""))

	_, unbalanced := f.svc.AddDetails(f.ctx, tx.ID, "bob", []ledger.LineDraft{ledger.Debit("bank", m("5.00"), "")})
	_, repeated := f.svc.AddDetails(f.ctx, tx.ID, "bob", []ledger.LineDraft{
		ledger.Debit("cash", m("5.00"), ""), ledger.Credit("bank", m("5.00"), ""),
	})
	updated, ok := f.svc.AddDetails(f.ctx, tx.ID, "bob", []ledger.LineDraft{
		ledger.Debit("bank", m("5.00"), ""), ledger.Credit("capital", m("5.00"), ""),
	})

	assert.True(t, ledger.IsValidation(unbalanced))
	assert.True(t, ledger.IsValidation(repeated))
	require.NoError(t, ok)
	assert.Len(t, updated.Details, 4)
}

func TestDeleteDetails_UnbalancingRemovalRejected(t *testing.T) {
	// GIVEN: a three-line balanced transaction
	f := newFixture(t)
	tx := f.post(t, f.fy2025, ledger.NewDate(2025, time.May, 1),
		ledger.Debit("cash", m("70.00"), ""),
		ledger.Debit("bank", m("30.00"), ""),
		ledger.Credit("sales", m("100.00"), ""))

	// WHEN: removing one debit line
	_, err := f.svc.DeleteDetails(f.ctx, tx.ID, "bob", []ledger.DetailID{tx.Details[0].ID})

	// THEN: rejected, nothing removed
	var verr *ledger.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.True(t, verr.TotalDebit.Equal(m("30")))
	stored, err := f.svc.GetTransaction(f.ctx, tx.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Details, 3)
}

func TestDeleteDetails_BalancedRemainder(t *testing.T) {
	f := newFixture(t)
	tx := f.post(t, f.fy2025, ledger.NewDate(2025, time.May, 1),
		ledger.Debit("cash", m("70.00"), ""),
		ledger.Credit("sales", m("70.00"), ""),
		ledger.Debit("bank", m("30.00"), ""),
		ledger.Credit("capital", m("30.00"), ""))

	updated, err := f.svc.DeleteDetails(f.ctx, tx.ID, "bob", []ledger.DetailID{tx.Details[2].ID, tx.Details[3].ID})

	require.NoError(t, err)
	assert.Len(t, updated.Details, 2)
	assert.True(t, f.balance(t, "bank", ledger.BalanceFilter{}).IsZero())
}

func TestDeleteDetails_AllLinesOrUnknownLine(t *testing.T) {
	f := newFixture(t)
	tx := f.post(t, f.fy2025, ledger.NewDate(2025, time.May, 1),
		ledger.Debit("cash", m("1.00"), ""), ledger.Credit("sales", m("1.00"), ""))

	_, all := f.svc.DeleteDetails(f.ctx, tx.ID, "bob", []ledger.DetailID{tx.Details[0].ID, tx.Details[1].ID})
	_, unknown := f.svc.DeleteDetails(f.ctx, tx.ID, "bob", []ledger.DetailID{"nope"})

	assert.True(t, ledger.IsValidation(all))
	assert.True(t, ledger.IsNotFound(unknown))
}

func TestDetailEdits_RequireActor(t *testing.T) {
	f := newFixture(t)
	tx := f.post(t, f.fy2025, ledger.NewDate(2025, time.May, 1),
		ledger.Debit("cash", m("1.00"), ""), ledger.Credit("sales", m("1.00"), ""))

	_, err := f.svc.ReplaceDetails(f.ctx, tx.ID, "", nil)

	assert.True(t, ledger.IsValidation(err))
}

// =============================================================================
// DELETE
// =============================================================================

func TestDeleteTransaction_RemovesHeaderAndLines(t *testing.T) {
	f := newFixture(t)
	tx := f.post(t, f.fy2025, ledger.NewDate(2025, time.May, 1),
		ledger.Debit("cash", m("10.00"), ""), ledger.Credit("sales", m("10.00"), ""))

	require.NoError(t, f.svc.DeleteTransaction(f.ctx, tx.ID, "bob"))

	_, err := f.svc.GetTransaction(f.ctx, tx.ID)
	assert.True(t, ledger.IsNotFound(err))
	postings, err := f.mem.ListPostings(f.ctx, ledger.PostingFilter{TransactionID: tx.ID})
	require.NoError(t, err)
	assert.Empty(t, postings)
	assert.True(t, f.balance(t, "cash", ledger.BalanceFilter{}).IsZero())
}

func TestDeleteTransaction_ClosedPeriod(t *testing.T) {
	f := newFixture(t)
	tx := f.post(t, f.fy2025, ledger.NewDate(2025, time.May, 1),
		ledger.Debit("cash", m("10.00"), ""), ledger.Credit("sales", m("10.00"), ""))
	_, err := f.svc.ClosePeriod(f.ctx, f.fy2025.ID, "admin")
	require.NoError(t, err)

	err = f.svc.DeleteTransaction(f.ctx, tx.ID, "bob")

	assert.ErrorIs(t, err, ledger.ErrPeriodClosed)
}

// =============================================================================
// AUDIT
// =============================================================================

func TestAudit_OneEntryPerMutation(t *testing.T) {
	f := newFixture(t)
	tx := f.post(t, f.fy2025, ledger.NewDate(2025, time.May, 1),
		ledger.Debit("cash", m("10.00"), ""), ledger.Credit("sales", m("10.00"), ""))
	_, err := f.svc.AddDetails(f.ctx, tx.ID, "bob", []ledger.LineDraft{
		ledger.Debit("bank", m("1.00"), ""), ledger.Credit("capital", m("1.00"), ""),
	})
	require.NoError(t, err)
	require.NoError(t, f.svc.DeleteTransaction(f.ctx, tx.ID, "carol"))

	entries, err := f.svc.AuditTrail(f.ctx, ledger.AuditFilter{EntityKind: ledger.EntityTransaction, EntityID: string(tx.ID)})

	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, ledger.AuditDelete, entries[0].Action)
	assert.Equal(t, ledger.UserID("carol"), entries[0].ActorID)
	assert.Equal(t, ledger.AuditUpdate, entries[1].Action)
	assert.Equal(t, ledger.AuditCreate, entries[2].Action)
}

type failingSink struct{}

func (failingSink) Record(context.Context, ledger.AuditEntry) error {
	return errors.New("audit backend down")
}

func TestAudit_FailureDoesNotRollBack(t *testing.T) {
	f := newFixture(t)
	f.svc.Audit = failingSink{}

	tx, err := f.svc.CreateTransaction(f.ctx, f.draft(f.fy2025, ledger.NewDate(2025, time.May, 1),
		ledger.Debit("cash", m("10.00"), ""), ledger.Credit("sales", m("10.00"), "")))

	require.NoError(t, err)
	_, err = f.svc.GetTransaction(f.ctx, tx.ID)
	assert.NoError(t, err)
}

func TestAsyncAuditSink_DrainsOnClose(t *testing.T) {
	f := newFixture(t)
	sink := ledger.NewAsyncAuditSink(f.mem, 8)

	for i := 0; i < 5; i++ {
		require.NoError(t, sink.Record(f.ctx, ledger.NewAuditEntry(ledger.AuditCreate, "async", ledger.EntityTransaction, "t")))
	}
	sink.Close()

	entries, err := f.mem.Query(f.ctx, ledger.AuditFilter{ActorID: "async"})
	require.NoError(t, err)
	assert.Len(t, entries, 5)
	assert.ErrorIs(t, sink.Record(f.ctx, ledger.AuditEntry{}), ledger.ErrAuditQueueFull)
}
