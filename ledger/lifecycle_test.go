package ledger_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/general-ledger/ledger"
)

func TestCreatePeriod_Validation(t *testing.T) {
	f := newFixture(t)

	_, missing := f.svc.CreatePeriod(f.ctx, ledger.PeriodDraft{}, "admin")
	_, inverted := f.svc.CreatePeriod(f.ctx, ledger.PeriodDraft{
		Name:  "Q1",
		Start: ledger.NewDate(2027, time.March, 31),
		End:   ledger.NewDate(2027, time.January, 1),
	}, "admin")
	_, noActor := f.svc.CreatePeriod(f.ctx, ledger.PeriodDraft{
		Name:  "Q1",
		Start: ledger.NewDate(2027, time.January, 1),
		End:   ledger.NewDate(2027, time.March, 31),
	}, "")

	assert.True(t, ledger.IsValidation(missing))
	assert.True(t, ledger.IsValidation(inverted))
	assert.True(t, ledger.IsValidation(noActor))
}

func TestCreatePeriod_NameUnique(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreatePeriod(f.ctx, ledger.PeriodDraft{
		Name:  "fy2025",
		Start: ledger.NewDate(2025, time.January, 1),
		End:   ledger.NewDate(2025, time.December, 31),
	}, "admin")

	assert.ErrorIs(t, err, ledger.ErrPeriodNameTaken)
}

func TestCreatePeriod_OverlapIsAllowed(t *testing.T) {
	f := newFixture(t)

	p, err := f.svc.CreatePeriod(f.ctx, ledger.PeriodDraft{
		Name:  "H1-2025",
		Start: ledger.NewDate(2025, time.January, 1),
		End:   ledger.NewDate(2025, time.June, 30),
	}, "admin")

	require.NoError(t, err)
	assert.False(t, p.Closed)
}

func TestClosePeriod_OneWay(t *testing.T) {
	f := newFixture(t)

	closed, err := f.svc.ClosePeriod(f.ctx, f.fy2025.ID, "admin")
	require.NoError(t, err)
	assert.True(t, closed.Closed)
	require.NotNil(t, closed.ClosedAt)
	assert.Equal(t, ledger.UserID("admin"), closed.ClosedBy)

	_, again := f.svc.ClosePeriod(f.ctx, f.fy2025.ID, "admin")
	assert.ErrorIs(t, again, ledger.ErrPeriodClosed)

	stored, err := f.svc.GetPeriod(f.ctx, f.fy2025.ID)
	require.NoError(t, err)
	assert.True(t, stored.Closed)
}

func TestUpdatePeriod(t *testing.T) {
	f := newFixture(t)

	renamed, err := f.svc.UpdatePeriod(f.ctx, f.fy2026.ID, ledger.PeriodDraft{
		Name:  "Fiscal 2026",
		Start: f.fy2026.Start,
		End:   f.fy2026.End,
	}, "admin")
	require.NoError(t, err)
	assert.Equal(t, "Fiscal 2026", renamed.Name)

	_, clash := f.svc.UpdatePeriod(f.ctx, f.fy2026.ID, ledger.PeriodDraft{
		Name:  "FY2025",
		Start: f.fy2026.Start,
		End:   f.fy2026.End,
	}, "admin")
	assert.ErrorIs(t, clash, ledger.ErrPeriodNameTaken)

	_, err = f.svc.ClosePeriod(f.ctx, f.fy2025.ID, "admin")
	require.NoError(t, err)
	_, closed := f.svc.UpdatePeriod(f.ctx, f.fy2025.ID, ledger.PeriodDraft{
		Name:  "FY2025b",
		Start: f.fy2025.Start,
		End:   f.fy2025.End,
	}, "admin")
	assert.ErrorIs(t, closed, ledger.ErrPeriodClosed)
}

func TestDeletePeriod(t *testing.T) {
	f := newFixture(t)
	f.post(t, f.fy2025, ledger.NewDate(2025, time.May, 1),
		ledger.Debit("cash", m("1.00"), ""), ledger.Credit("sales", m("1.00"), ""))

	withTx := f.svc.DeletePeriod(f.ctx, f.fy2025.ID, "admin")
	assert.ErrorIs(t, withTx, ledger.ErrPeriodHasTransactions)

	require.NoError(t, f.svc.DeletePeriod(f.ctx, f.fy2026.ID, "admin"))
	_, err := f.svc.GetPeriod(f.ctx, f.fy2026.ID)
	assert.True(t, ledger.IsNotFound(err))

	periods, err := f.svc.ListPeriods(f.ctx)
	require.NoError(t, err)
	require.Len(t, periods, 1)
	assert.Equal(t, "FY2025", periods[0].Name)
}

func TestUpdatePeriod_RangeMustKeepTransactions(t *testing.T) {
	// GIVEN: FY2025 owns a transaction dated in March
	f := newFixture(t)
	tx := f.post(t, f.fy2025, ledger.NewDate(2025, time.March, 1),
		ledger.Debit("cash", m("50.00"), ""), ledger.Credit("sales", m("50.00"), ""))

	// WHEN: the period is re-dated to start in June
	_, err := f.svc.UpdatePeriod(f.ctx, f.fy2025.ID, ledger.PeriodDraft{
		Name:  "FY2025",
		Start: ledger.NewDate(2025, time.June, 1),
		End:   ledger.NewDate(2025, time.December, 31),
	}, "admin")

	// THEN: the update is rejected on its dates and the period is unchanged
	require.True(t, ledger.IsValidation(err))
	var verr *ledger.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields["start"], tx.Reference)
	p, err := f.svc.GetPeriod(f.ctx, f.fy2025.ID)
	require.NoError(t, err)
	assert.Equal(t, f.fy2025.Start, p.Start)

	// AND: a range that still covers March is accepted
	_, err = f.svc.UpdatePeriod(f.ctx, f.fy2025.ID, ledger.PeriodDraft{
		Name:  "FY2025",
		Start: ledger.NewDate(2025, time.February, 1),
		End:   ledger.NewDate(2025, time.December, 31),
	}, "admin")
	require.NoError(t, err)
	journal, err := f.svc.Journal(f.ctx, ledger.ReportFilter{Range: ledger.DateRange{
		From: ledger.NewDate(2025, time.February, 1),
		To:   ledger.NewDate(2025, time.December, 31),
	}})
	require.NoError(t, err)
	assert.Len(t, journal.Lines, 2)
}

func TestDeletePeriod_CarryForwardDestinationRejected(t *testing.T) {
	// GIVEN: an empty FY2025 closed and carried into FY2026, leaving FY2026
	// without transactions
	f := newFixture(t)
	_, err := f.svc.ClosePeriod(f.ctx, f.fy2025.ID, "admin")
	require.NoError(t, err)
	res, err := f.svc.CarryForward(f.ctx, f.fy2025.ID, f.fy2026.ID, "admin")
	require.NoError(t, err)
	require.Nil(t, res.Opening)

	// WHEN
	err = f.svc.DeletePeriod(f.ctx, f.fy2026.ID, "admin")

	// THEN
	assert.ErrorIs(t, err, ledger.ErrPeriodHasCarryForward)
	assert.True(t, ledger.IsConflict(err))
	_, err = f.svc.GetPeriod(f.ctx, f.fy2026.ID)
	assert.NoError(t, err)
}

func TestDeletePeriod_ClosedRejected(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.ClosePeriod(f.ctx, f.fy2026.ID, "admin")
	require.NoError(t, err)

	err = f.svc.DeletePeriod(f.ctx, f.fy2026.ID, "admin")

	assert.ErrorIs(t, err, ledger.ErrPeriodClosed)
}
