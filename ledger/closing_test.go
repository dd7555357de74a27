package ledger_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/general-ledger/ledger"
)

func acct(id string) ledger.Account {
	for _, a := range testChart {
		if string(a.ID) == id {
			return a
		}
	}
	panic("unknown test account " + id)
}

func bal(id, balance string) ledger.AccountBalance {
	return ledger.AccountBalance{Account: acct(id), Balance: m(balance)}
}

func lineFor(t *testing.T, lines []ledger.LineDraft, id ledger.AccountID) ledger.LineDraft {
	t.Helper()
	for _, l := range lines {
		if l.AccountID == id {
			return l
		}
	}
	t.Fatalf("no line for account %s", id)
	return ledger.LineDraft{}
}

// =============================================================================
// PLANNING
// =============================================================================

func TestPlan_IncomeAndAssetExample(t *testing.T) {
	// GIVEN: income at credit-balance 500 and an asset at debit-balance 500
	in := ledger.CarryForwardInput{
		Source:           ledger.FiscalPeriod{ID: "p1", Name: "P1", End: ledger.NewDate(2025, time.December, 31)},
		Destination:      ledger.FiscalPeriod{ID: "p2", Name: "P2", Start: ledger.NewDate(2026, time.January, 1)},
		Balances:         []ledger.AccountBalance{bal("cash", "500"), bal("sales", "500")},
		RetainedEarnings: acct("retained"),
		Actor:            "admin",
	}

	// WHEN
	plan, err := ledger.ClosingEngine{}.Plan(in)

	// THEN: closing debits income 500 / credits retained earnings 500
	require.NoError(t, err)
	require.NotNil(t, plan.Closing)
	assert.Equal(t, ledger.TxClosing, plan.Closing.Type)
	assert.True(t, plan.Closing.SystemGenerated)
	assert.Equal(t, in.Source.End, plan.Closing.Date)
	assert.True(t, lineFor(t, plan.Closing.Lines, "sales").Debit.Equal(m("500")))
	assert.True(t, lineFor(t, plan.Closing.Lines, "retained").Credit.Equal(m("500")))

	// AND: opening debits the asset 500 / credits retained earnings 500
	require.NotNil(t, plan.Opening)
	assert.Equal(t, ledger.TxOpening, plan.Opening.Type)
	assert.Equal(t, ledger.PeriodID("p2"), plan.Opening.PeriodID)
	assert.Equal(t, in.Destination.Start, plan.Opening.Date)
	assert.True(t, lineFor(t, plan.Opening.Lines, "cash").Debit.Equal(m("500")))
	assert.True(t, lineFor(t, plan.Opening.Lines, "retained").Credit.Equal(m("500")))
	assert.True(t, plan.NetResult.Equal(m("500")))
}

func TestPlan_LossAndNegativeBalances(t *testing.T) {
	// GIVEN: expenses exceed income; an overdrawn bank account
	in := ledger.CarryForwardInput{
		Source:      ledger.FiscalPeriod{ID: "p1", Name: "P1"},
		Destination: ledger.FiscalPeriod{ID: "p2", Name: "P2"},
		Balances: []ledger.AccountBalance{
			bal("cash", "1000"),
			bal("bank", "-300"),
			bal("capital", "1000"),
			bal("retained", "0"),
			bal("sales", "200"),
			bal("expenses", "500"),
		},
		RetainedEarnings: acct("retained"),
	}

	plan, err := ledger.ClosingEngine{}.Plan(in)

	require.NoError(t, err)
	assert.True(t, plan.NetResult.Equal(m("-300")))
	assert.True(t, lineFor(t, plan.Closing.Lines, "expenses").Credit.Equal(m("500")))
	assert.True(t, lineFor(t, plan.Closing.Lines, "retained").Debit.Equal(m("300")))
	assert.True(t, lineFor(t, plan.Opening.Lines, "bank").Credit.Equal(m("300")))
	assert.True(t, lineFor(t, plan.Opening.Lines, "retained").Debit.Equal(m("300")))
	assert.NoError(t, ledger.CheckBalanced(plan.Closing.Lines))
	assert.NoError(t, ledger.CheckBalanced(plan.Opening.Lines))
}

func TestPlan_OmitsEmptyEntries(t *testing.T) {
	plan, err := ledger.ClosingEngine{}.Plan(ledger.CarryForwardInput{
		Balances:         []ledger.AccountBalance{bal("cash", "0"), bal("sales", "0")},
		RetainedEarnings: acct("retained"),
	})

	require.NoError(t, err)
	assert.Nil(t, plan.Closing)
	assert.Nil(t, plan.Opening)
}

func TestPlan_RetainedEarningsMustBeEquity(t *testing.T) {
	_, err := ledger.ClosingEngine{}.Plan(ledger.CarryForwardInput{RetainedEarnings: acct("cash")})

	assert.True(t, ledger.IsValidation(err))
}

// =============================================================================
// EXECUTION
// =============================================================================

func TestCarryForward_ConservesBalances(t *testing.T) {
	// GIVEN: FY2025 activity, then FY2025 closed
	f := newFixture(t)
	f.postFY2025Activity(t)
	f.post(t, f.fy2025, ledger.NewDate(2025, time.May, 1),
		ledger.Debit("memo", m("750.00"), ""), ledger.Credit("memo-contra", m("750.00"), ""))
	_, err := f.svc.ClosePeriod(f.ctx, f.fy2025.ID, "admin")
	require.NoError(t, err)

	// WHEN
	res, err := f.svc.CarryForward(f.ctx, f.fy2025.ID, f.fy2026.ID, "admin")

	// THEN: closing zeroes the result accounts in FY2025
	require.NoError(t, err)
	assert.True(t, res.NetResult.Equal(m("300")))
	require.NotNil(t, res.Closing)
	assert.True(t, res.Closing.SystemGenerated)
	assert.Equal(t, f.fy2025.ID, res.Closing.PeriodID)
	fy25 := ledger.BalanceFilter{PeriodID: f.fy2025.ID}
	assert.True(t, f.balance(t, "sales", fy25).IsZero())
	assert.True(t, f.balance(t, "expenses", fy25).IsZero())
	assert.True(t, f.balance(t, "retained", fy25).Equal(m("300")))

	// AND: the opening entry reproduces every carried balance in FY2026
	require.NotNil(t, res.Opening)
	fy26 := ledger.BalanceFilter{PeriodID: f.fy2026.ID}
	assert.True(t, f.balance(t, "cash", fy26).Equal(m("500")))
	assert.True(t, f.balance(t, "bank", fy26).Equal(m("800")))
	assert.True(t, f.balance(t, "capital", fy26).Equal(m("1000")))
	assert.True(t, f.balance(t, "retained", fy26).Equal(m("300")))
	assert.True(t, f.balance(t, "memo", fy26).Equal(m("750")))
	assert.True(t, f.balance(t, "sales", fy26).IsZero())

	// AND: the audit trail records the carry-forward against the opening entry
	entries, err := f.svc.AuditTrail(f.ctx, ledger.AuditFilter{Actions: []ledger.AuditAction{ledger.AuditCarryForward}})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, string(res.Opening.ID), entries[0].EntityID)
}

func TestCarryForward_Preconditions(t *testing.T) {
	f := newFixture(t)
	f.postFY2025Activity(t)

	_, sourceOpen := f.svc.CarryForward(f.ctx, f.fy2025.ID, f.fy2026.ID, "admin")
	assert.ErrorIs(t, sourceOpen, ledger.ErrPeriodOpen)

	_, same := f.svc.CarryForward(f.ctx, f.fy2025.ID, f.fy2025.ID, "admin")
	assert.True(t, ledger.IsValidation(same))

	_, missing := f.svc.CarryForward(f.ctx, "nope", f.fy2026.ID, "admin")
	assert.True(t, ledger.IsNotFound(missing))

	_, err := f.svc.ClosePeriod(f.ctx, f.fy2025.ID, "admin")
	require.NoError(t, err)
	_, err = f.svc.ClosePeriod(f.ctx, f.fy2026.ID, "admin")
	require.NoError(t, err)
	_, destClosed := f.svc.CarryForward(f.ctx, f.fy2025.ID, f.fy2026.ID, "admin")
	assert.ErrorIs(t, destClosed, ledger.ErrPeriodClosed)
}

func TestCarryForward_OnlyOnce(t *testing.T) {
	f := newFixture(t)
	f.postFY2025Activity(t)
	_, err := f.svc.ClosePeriod(f.ctx, f.fy2025.ID, "admin")
	require.NoError(t, err)
	_, err = f.svc.CarryForward(f.ctx, f.fy2025.ID, f.fy2026.ID, "admin")
	require.NoError(t, err)

	_, again := f.svc.CarryForward(f.ctx, f.fy2025.ID, f.fy2026.ID, "admin")

	assert.ErrorIs(t, again, ledger.ErrAlreadyCarriedForward)
	n, err := f.mem.CountTransactions(f.ctx, f.fy2026.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCarryForward_MissingRetainedEarnings(t *testing.T) {
	f := newFixture(t)
	f.postFY2025Activity(t)
	_, err := f.svc.ClosePeriod(f.ctx, f.fy2025.ID, "admin")
	require.NoError(t, err)
	f.svc.RetainedEarningsCode = "3.9"

	_, err = f.svc.CarryForward(f.ctx, f.fy2025.ID, f.fy2026.ID, "admin")

	assert.True(t, ledger.IsNotFound(err))
	n, err := f.mem.CountTransactions(f.ctx, f.fy2026.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCarryForward_InactiveAccountWithBalance(t *testing.T) {
	// GIVEN: payables holds a balance in FY2025 and is then deactivated in
	// the directory
	f := newFixture(t)
	f.post(t, f.fy2025, ledger.NewDate(2025, time.February, 1),
		ledger.Debit("payables", m("100.00"), ""), ledger.Credit("bank", m("100.00"), ""))
	payables := acct("payables")
	payables.Active = false
	require.NoError(t, f.mem.SaveAccount(f.ctx, payables))
	_, err := f.svc.ClosePeriod(f.ctx, f.fy2025.ID, "admin")
	require.NoError(t, err)

	// WHEN
	_, err = f.svc.CarryForward(f.ctx, f.fy2025.ID, f.fy2026.ID, "admin")

	// THEN: the error names the inactive account and nothing is written
	require.True(t, ledger.IsValidation(err))
	var verr *ledger.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "accounts.2.1")
	assert.Nil(t, verr.TotalDebit)
	n, err := f.mem.CountTransactions(f.ctx, f.fy2025.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = f.mem.CountTransactions(f.ctx, f.fy2026.ID)
	require.NoError(t, err)
	assert.Zero(t, n)

	// AND: once reactivated, the carry-forward succeeds
	payables.Active = true
	require.NoError(t, f.mem.SaveAccount(f.ctx, payables))
	res, err := f.svc.CarryForward(f.ctx, f.fy2025.ID, f.fy2026.ID, "admin")
	require.NoError(t, err)
	assert.NotNil(t, res.Opening)
}

// openingFails hands out stores whose inserts of opening entries fail.
type openingFails struct {
	ledger.TxStore
}

func (o openingFails) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	return o.TxStore.WithTx(ctx, func(st ledger.Store) error {
		return fn(failingOpeningInsert{st})
	})
}

type failingOpeningInsert struct {
	ledger.Store
}

func (f failingOpeningInsert) InsertTransaction(ctx context.Context, tx ledger.Transaction) error {
	if tx.Type == ledger.TxOpening {
		return errors.New("disk full")
	}
	return f.Store.InsertTransaction(ctx, tx)
}

func TestCarryForward_OpeningFailureRollsBackClosing(t *testing.T) {
	// GIVEN: FY2025 activity with a result to close, and a store that fails
	// when the opening entry is inserted
	f := newFixture(t)
	f.postFY2025Activity(t)
	_, err := f.svc.ClosePeriod(f.ctx, f.fy2025.ID, "admin")
	require.NoError(t, err)
	f.svc.Store = openingFails{f.mem}

	// WHEN
	_, err = f.svc.CarryForward(f.ctx, f.fy2025.ID, f.fy2026.ID, "admin")

	// THEN: the failure is internal and the closing entry was rolled back
	require.Error(t, err)
	assert.True(t, errors.Is(err, ledger.ErrInternal))
	postings, err := f.mem.ListPostings(f.ctx, ledger.PostingFilter{PeriodID: f.fy2025.ID})
	require.NoError(t, err)
	for _, p := range postings {
		assert.NotEqual(t, ledger.TxClosing, p.Type)
	}
	assert.True(t, f.balance(t, "sales", ledger.BalanceFilter{PeriodID: f.fy2025.ID}).Equal(m("500")))
	done, err := f.mem.GetCarryForward(f.ctx, f.fy2025.ID)
	require.NoError(t, err)
	assert.Nil(t, done)

	// AND: the carry-forward can be retried once the store recovers
	f.svc.Store = f.mem
	res, err := f.svc.CarryForward(f.ctx, f.fy2025.ID, f.fy2026.ID, "admin")
	require.NoError(t, err)
	assert.NotNil(t, res.Closing)
	assert.NotNil(t, res.Opening)
}

func TestSystemEntries_CannotBeEdited(t *testing.T) {
	f := newFixture(t)
	f.postFY2025Activity(t)
	_, err := f.svc.ClosePeriod(f.ctx, f.fy2025.ID, "admin")
	require.NoError(t, err)
	res, err := f.svc.CarryForward(f.ctx, f.fy2025.ID, f.fy2026.ID, "admin")
	require.NoError(t, err)

	_, replace := f.svc.ReplaceDetails(f.ctx, res.Opening.ID, "bob", nil)
	del := f.svc.DeleteTransaction(f.ctx, res.Opening.ID, "bob")

	assert.ErrorIs(t, replace, ledger.ErrSystemGenerated)
	assert.ErrorIs(t, del, ledger.ErrSystemGenerated)
}
