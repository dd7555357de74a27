package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/general-ledger/ledger"
)

func sampleTx(id, ref string, date time.Time, amount string) ledger.Transaction {
	amt := ledger.MustParseMoney(amount)
	return ledger.Transaction{
		ID:        ledger.TransactionID(id),
		Reference: ref,
		Date:      date,
		Type:      ledger.TxTransfer,
		PeriodID:  "p1",
		AuthorID:  "alice",
		Version:   1,
		Details: []ledger.DetailLine{
			{ID: ledger.DetailID(id + "-1"), TransactionID: ledger.TransactionID(id), AccountID: "cash", Debit: amt, Credit: ledger.Money{}},
			{ID: ledger.DetailID(id + "-2"), TransactionID: ledger.TransactionID(id), AccountID: "sales", Debit: ledger.Money{}, Credit: amt},
		},
	}
}

func TestMemory_DuplicateReference(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.InsertTransaction(ctx, sampleTx("t1", "REF-1", ledger.NewDate(2025, time.May, 1), "10")))

	err := m.InsertTransaction(ctx, sampleTx("t2", "REF-1", ledger.NewDate(2025, time.May, 1), "10"))

	assert.ErrorIs(t, err, ledger.ErrDuplicateReference)
	ok, err := m.ReferenceExists(ctx, "REF-1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemory_ReplaceDetailsVersion(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	tx := sampleTx("t1", "REF-1", ledger.NewDate(2025, time.May, 1), "10")
	require.NoError(t, m.InsertTransaction(ctx, tx))

	require.NoError(t, m.ReplaceDetails(ctx, "t1", 1, tx.Details[:1]))
	stale := m.ReplaceDetails(ctx, "t1", 1, tx.Details)

	assert.ErrorIs(t, stale, ledger.ErrConcurrentModification)
	got, err := m.GetTransaction(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Version)
	assert.Len(t, got.Details, 1)
}

func TestMemory_ListPostingsOrder(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.InsertTransaction(ctx, sampleTx("late", "R1", ledger.NewDate(2025, time.June, 1), "1")))
	require.NoError(t, m.InsertTransaction(ctx, sampleTx("early-a", "R2", ledger.NewDate(2025, time.May, 1), "2")))
	require.NoError(t, m.InsertTransaction(ctx, sampleTx("early-b", "R3", ledger.NewDate(2025, time.May, 1), "3")))

	got, err := m.ListPostings(ctx, ledger.PostingFilter{AccountIDs: []ledger.AccountID{"cash"}})

	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, ledger.TransactionID("early-a"), got[0].TransactionID)
	assert.Equal(t, ledger.TransactionID("early-b"), got[1].TransactionID)
	assert.Equal(t, ledger.TransactionID("late"), got[2].TransactionID)
	assert.Equal(t, "R2", got[0].Reference)
}

func TestMemory_PeriodNameCaseInsensitive(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.InsertPeriod(ctx, ledger.FiscalPeriod{ID: "p1", Name: "FY2025"}))

	err := m.InsertPeriod(ctx, ledger.FiscalPeriod{ID: "p2", Name: "fy2025"})

	assert.ErrorIs(t, err, ledger.ErrPeriodNameTaken)
}

func TestMemory_CarryForwardUniquePerSource(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.InsertCarryForward(ctx, ledger.CarryForward{SourcePeriodID: "p1", DestinationPeriodID: "p2"}))

	err := m.InsertCarryForward(ctx, ledger.CarryForward{SourcePeriodID: "p1", DestinationPeriodID: "p3"})

	assert.ErrorIs(t, err, ledger.ErrAlreadyCarriedForward)
}

func TestTxMemory_RollbackOnError(t *testing.T) {
	// GIVEN: a unit that writes a transaction and a period, then fails
	ctx := context.Background()
	tm := NewTxMemory()
	boom := errors.New("boom")

	// WHEN
	err := tm.WithTx(ctx, func(s ledger.Store) error {
		require.NoError(t, s.InsertTransaction(ctx, sampleTx("t1", "REF-1", ledger.NewDate(2025, time.May, 1), "10")))
		require.NoError(t, s.InsertPeriod(ctx, ledger.FiscalPeriod{ID: "p1", Name: "FY2025"}))
		return boom
	})

	// THEN: nothing from the unit is visible
	assert.ErrorIs(t, err, boom)
	tx, _ := tm.GetTransaction(ctx, "t1")
	assert.Nil(t, tx)
	p, _ := tm.GetPeriod(ctx, "p1")
	assert.Nil(t, p)
	ok, _ := tm.ReferenceExists(ctx, "REF-1")
	assert.False(t, ok)
}

func TestTxMemory_Commit(t *testing.T) {
	ctx := context.Background()
	tm := NewTxMemory()

	err := tm.WithTx(ctx, func(s ledger.Store) error {
		return s.InsertTransaction(ctx, sampleTx("t1", "REF-1", ledger.NewDate(2025, time.May, 1), "10"))
	})

	require.NoError(t, err)
	n, err := tm.CountTransactions(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMemory_AuditQueryNewestFirst(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, m.Record(ctx, ledger.AuditEntry{
			Action: ledger.AuditCreate, ActorID: "alice", EntityKind: ledger.EntityTransaction, EntityID: id,
		}))
	}
	require.NoError(t, m.Record(ctx, ledger.AuditEntry{Action: ledger.AuditDelete, ActorID: "bob", EntityKind: ledger.EntityTransaction, EntityID: "a"}))

	latest, err := m.Query(ctx, ledger.AuditFilter{ActorID: "alice", Limit: 2})
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, "c", latest[0].EntityID)
	assert.Equal(t, "b", latest[1].EntityID)

	deletes, err := m.Query(ctx, ledger.AuditFilter{Actions: []ledger.AuditAction{ledger.AuditDelete}})
	require.NoError(t, err)
	require.Len(t, deletes, 1)
	assert.Equal(t, ledger.UserID("bob"), deletes[0].ActorID)
}
