package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/warp/general-ledger/ledger"
	"github.com/warp/general-ledger/ledger/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

var testChart = []ledger.Account{
	{ID: "assets", Code: "1", Name: "Assets", Nature: ledger.NatureAsset, Active: true},
	{ID: "cash", Code: "1.1", Name: "Cash", Nature: ledger.NatureAsset, Active: true, ParentID: "assets"},
	{ID: "bank", Code: "1.2", Name: "Bank", Nature: ledger.NatureAsset, Active: true, ParentID: "assets"},
	{ID: "old-box", Code: "1.9", Name: "Old petty cash", Nature: ledger.NatureAsset, Active: false, ParentID: "assets"},
	{ID: "payables", Code: "2.1", Name: "Payables", Nature: ledger.NatureLiability, Active: true},
	{ID: "capital", Code: "3.1", Name: "Capital", Nature: ledger.NatureEquity, Active: true},
	{ID: "retained", Code: "3.2", Name: "Retained earnings", Nature: ledger.NatureEquity, Active: true},
	{ID: "sales", Code: "4.1", Name: "Sales", Nature: ledger.NatureIncome, Active: true},
	{ID: "expenses", Code: "5.1", Name: "Expenses", Nature: ledger.NatureExpense, Active: true},
	{ID: "memo", Code: "9.1", Name: "Guarantees", Nature: ledger.NatureMemorandum, Active: true},
	{ID: "memo-contra", Code: "9.2", Name: "Guarantees contra", Nature: ledger.NatureMemorandum, Active: true},
}

type fixture struct {
	ctx    context.Context
	mem    *store.TxMemory
	svc    *ledger.Service
	fy2025 *ledger.FiscalPeriod
	fy2026 *ledger.FiscalPeriod
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	mem := store.NewTxMemory()
	for _, a := range testChart {
		require.NoError(t, mem.SaveAccount(ctx, a))
	}

	svc := ledger.NewService(mem, mem)
	svc.Audit = mem
	svc.Trail = mem
	svc.RetainedEarningsCode = "3.2"
	svc.Now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }

	f := &fixture{ctx: ctx, mem: mem, svc: svc}
	var err error
	f.fy2025, err = svc.CreatePeriod(ctx, ledger.PeriodDraft{
		Name:  "FY2025",
		Start: ledger.NewDate(2025, time.January, 1),
		End:   ledger.NewDate(2025, time.December, 31),
	}, "admin")
	require.NoError(t, err)
	f.fy2026, err = svc.CreatePeriod(ctx, ledger.PeriodDraft{
		Name:  "FY2026",
		Start: ledger.NewDate(2026, time.January, 1),
		End:   ledger.NewDate(2026, time.December, 31),
	}, "admin")
	require.NoError(t, err)
	return f
}

func m(s string) ledger.Money { return ledger.MustParseMoney(s) }

func (f *fixture) draft(period *ledger.FiscalPeriod, date time.Time, lines ...ledger.LineDraft) ledger.TransactionDraft {
	return ledger.TransactionDraft{
		Description: "test entry",
		Date:        date,
		Type:        ledger.TxTransfer,
		PeriodID:    period.ID,
		AuthorID:    "alice",
		Lines:       lines,
	}
}

// post creates a transaction and fails the test on error.
func (f *fixture) post(t *testing.T, period *ledger.FiscalPeriod, date time.Time, lines ...ledger.LineDraft) *ledger.Transaction {
	t.Helper()
	tx, err := f.svc.CreateTransaction(f.ctx, f.draft(period, date, lines...))
	require.NoError(t, err)
	return tx
}

func (f *fixture) balance(t *testing.T, id ledger.AccountID, filter ledger.BalanceFilter) ledger.Money {
	t.Helper()
	b, err := f.svc.AccountBalance(f.ctx, id, filter, false)
	require.NoError(t, err)
	return b.Balance
}

// postFY2025Activity books: capital 1000 into bank, cash sale 500, expense 200
// paid from bank.
func (f *fixture) postFY2025Activity(t *testing.T) {
	t.Helper()
	f.post(t, f.fy2025, ledger.NewDate(2025, time.January, 5),
		ledger.Debit("bank", m("1000.00"), ""), ledger.Credit("capital", m("1000.00"), ""))
	f.post(t, f.fy2025, ledger.NewDate(2025, time.March, 1),
		ledger.Debit("cash", m("500.00"), ""), ledger.Credit("sales", m("500.00"), ""))
	f.post(t, f.fy2025, ledger.NewDate(2025, time.April, 1),
		ledger.Debit("expenses", m("200.00"), ""), ledger.Credit("bank", m("200.00"), ""))
}
