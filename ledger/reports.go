/*
reports.go - Read projections over stored detail lines

PURPOSE:
  Journal, general ledger, trial balance, balance sheet and income statement.
  Every report is a pure function of the stored postings and the account
  directory; none carries business rules of its own.

FILTERS:
  Reports over a span accept a fiscal period, a date range, or both (both
  narrow). Journal and income statement require one of the two; the balance
  sheet takes an as-of date instead.

BALANCE SHEET BASELINE:
  After a carry-forward, balance-sheet history lives in the opening entry of
  the destination period. The as-of snapshot therefore starts from the latest
  destination period starting on or before the as-of date and sums postings
  from there. Without any carry-forward it sums everything up to the date.
  Result accounts not yet closed appear as CurrentResult.

DETERMINISM:
  Same filters and no intervening writes give identical output. Rows are
  ordered by account code, lines by date then insertion.

SEE ALSO:
  - balance.go: BalanceCalculator
  - api/handlers.go: HTTP rendering
*/
package ledger

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// ReportFilter selects movements for span reports. Zero fields do not filter.
type ReportFilter struct {
	PeriodID   PeriodID
	Range      DateRange
	AccountIDs []AccountID
}

func (f ReportFilter) requireSpan() error {
	if !f.Range.Valid() {
		return invalid("to", "end date must not be before start date")
	}
	if f.PeriodID == "" && !f.Range.Bounded() {
		return invalid("period_id", "a fiscal period or a bounded date range is required")
	}
	return nil
}

func (f ReportFilter) postings(exclude ...TransactionType) PostingFilter {
	return PostingFilter{
		AccountIDs:   f.AccountIDs,
		PeriodID:     f.PeriodID,
		Range:        f.Range,
		ExcludeTypes: exclude,
	}
}

// =============================================================================
// JOURNAL (libro diario)
// =============================================================================

type JournalReport struct {
	Lines       []Posting
	TotalDebit  Money
	TotalCredit Money
}

// Journal lists detail lines chronologically with their transaction header.
func (s *Service) Journal(ctx context.Context, f ReportFilter) (*JournalReport, error) {
	if err := f.requireSpan(); err != nil {
		return nil, err
	}
	if err := s.checkPeriod(ctx, f.PeriodID); err != nil {
		return nil, err
	}
	postings, err := s.Store.ListPostings(ctx, f.postings())
	if err != nil {
		return nil, boundary("journal", err)
	}

	r := &JournalReport{Lines: postings, TotalDebit: decimal.Zero, TotalCredit: decimal.Zero}
	if r.Lines == nil {
		r.Lines = []Posting{}
	}
	for _, p := range postings {
		r.TotalDebit = r.TotalDebit.Add(p.Debit)
		r.TotalCredit = r.TotalCredit.Add(p.Credit)
	}
	return r, nil
}

// =============================================================================
// GENERAL LEDGER (libro mayor)
// =============================================================================

type LedgerLine struct {
	Posting
	RunningBalance Money
}

type AccountLedger struct {
	Account     Account
	Lines       []LedgerLine
	TotalDebit  Money
	TotalCredit Money
	Balance     Money
}

// GeneralLedger groups lines per account with a running signed balance.
// Accounts named in the filter are always listed; otherwise only accounts
// with movements appear.
func (s *Service) GeneralLedger(ctx context.Context, f ReportFilter) ([]AccountLedger, error) {
	const op = "general ledger"
	if !f.Range.Valid() {
		return nil, invalid("to", "end date must not be before start date")
	}
	if len(f.AccountIDs) == 0 && f.PeriodID == "" && f.Range.IsZero() {
		return nil, invalid("account_id", "an account, a fiscal period or a date range is required")
	}
	if err := s.checkPeriod(ctx, f.PeriodID); err != nil {
		return nil, err
	}

	var accounts []Account
	for _, id := range f.AccountIDs {
		a, err := s.Accounts.GetAccount(ctx, id)
		if err != nil {
			return nil, boundary(op, err)
		}
		if a == nil {
			return nil, notFound(EntityAccount, id)
		}
		accounts = append(accounts, *a)
	}

	postings, err := s.Store.ListPostings(ctx, f.postings())
	if err != nil {
		return nil, boundary(op, err)
	}
	byAccount := make(map[AccountID][]Posting)
	for _, p := range postings {
		byAccount[p.AccountID] = append(byAccount[p.AccountID], p)
	}
	if len(f.AccountIDs) == 0 {
		if accounts, err = s.resolveAccounts(ctx, byAccount); err != nil {
			return nil, boundary(op, err)
		}
	}

	ledgers := make([]AccountLedger, 0, len(accounts))
	for _, a := range accounts {
		l := AccountLedger{
			Account:     a,
			Lines:       []LedgerLine{},
			TotalDebit:  decimal.Zero,
			TotalCredit: decimal.Zero,
			Balance:     decimal.Zero,
		}
		for _, p := range byAccount[a.ID] {
			l.TotalDebit = l.TotalDebit.Add(p.Debit)
			l.TotalCredit = l.TotalCredit.Add(p.Credit)
			l.Balance = l.Balance.Add(SignedAmount(a.Nature, p.Debit, p.Credit))
			l.Lines = append(l.Lines, LedgerLine{Posting: p, RunningBalance: l.Balance})
		}
		ledgers = append(ledgers, l)
	}
	return ledgers, nil
}

// =============================================================================
// TRIAL BALANCE (balance de comprobación)
// =============================================================================

type TrialBalance struct {
	Rows        []AccountBalance
	TotalDebit  Money
	TotalCredit Money
	Balanced    bool
}

// TrialBalance sums debits and credits per account over a period or range.
// An unfiltered call covers the whole ledger.
func (s *Service) TrialBalance(ctx context.Context, f ReportFilter) (*TrialBalance, error) {
	const op = "trial balance"
	if !f.Range.Valid() {
		return nil, invalid("to", "end date must not be before start date")
	}
	if err := s.checkPeriod(ctx, f.PeriodID); err != nil {
		return nil, err
	}
	postings, err := s.Store.ListPostings(ctx, f.postings())
	if err != nil {
		return nil, boundary(op, err)
	}
	byAccount := make(map[AccountID][]Posting)
	for _, p := range postings {
		byAccount[p.AccountID] = append(byAccount[p.AccountID], p)
	}
	accounts, err := s.resolveAccounts(ctx, byAccount)
	if err != nil {
		return nil, boundary(op, err)
	}

	tb := &TrialBalance{Rows: make([]AccountBalance, 0, len(accounts)), TotalDebit: decimal.Zero, TotalCredit: decimal.Zero}
	for _, a := range accounts {
		row := AccountBalance{Account: a, Debit: decimal.Zero, Credit: decimal.Zero}
		for _, p := range byAccount[a.ID] {
			row.Debit = row.Debit.Add(p.Debit)
			row.Credit = row.Credit.Add(p.Credit)
		}
		row.Balance = SignedBalance(a.Nature, row.Debit, row.Credit)
		tb.Rows = append(tb.Rows, row)
		tb.TotalDebit = tb.TotalDebit.Add(row.Debit)
		tb.TotalCredit = tb.TotalCredit.Add(row.Credit)
	}
	tb.Balanced = tb.TotalDebit.Equal(tb.TotalCredit)
	return tb, nil
}

// =============================================================================
// BALANCE SHEET (balance general)
// =============================================================================

type BalanceSheet struct {
	AsOf             time.Time
	Since            time.Time // baseline; zero when no carry-forward precedes AsOf
	Assets           []AccountBalance
	Liabilities      []AccountBalance
	Equity           []AccountBalance
	TotalAssets      Money
	TotalLiabilities Money
	TotalEquity      Money

	// CurrentResult is income - expense not yet closed into equity.
	CurrentResult Money
	Balanced      bool
}

// BalanceSheet snapshots active balance-sheet accounts as of a date.
func (s *Service) BalanceSheet(ctx context.Context, asOf time.Time) (*BalanceSheet, error) {
	const op = "balance sheet"
	if asOf.IsZero() {
		return nil, invalid("as_of", "as-of date is required")
	}
	asOf = Day(asOf)

	since, err := s.baseline(ctx, asOf)
	if err != nil {
		return nil, boundary(op, err)
	}
	accounts, err := s.Accounts.ListActiveAccounts(ctx)
	if err != nil {
		return nil, boundary(op, err)
	}
	balances, err := s.calculator(s.Store).Balances(ctx, accounts, BalanceFilter{Range: DateRange{From: since, To: asOf}})
	if err != nil {
		return nil, boundary(op, err)
	}

	bs := &BalanceSheet{
		AsOf:             asOf,
		Since:            since,
		Assets:           []AccountBalance{},
		Liabilities:      []AccountBalance{},
		Equity:           []AccountBalance{},
		TotalAssets:      decimal.Zero,
		TotalLiabilities: decimal.Zero,
		TotalEquity:      decimal.Zero,
		CurrentResult:    decimal.Zero,
	}
	for _, b := range balances {
		switch b.Account.Nature {
		case NatureIncome:
			bs.CurrentResult = bs.CurrentResult.Add(b.Balance)
			continue
		case NatureExpense:
			bs.CurrentResult = bs.CurrentResult.Sub(b.Balance)
			continue
		}
		if b.Balance.IsZero() {
			continue
		}
		switch b.Account.Nature {
		case NatureAsset:
			bs.Assets = append(bs.Assets, b)
			bs.TotalAssets = bs.TotalAssets.Add(b.Balance)
		case NatureLiability:
			bs.Liabilities = append(bs.Liabilities, b)
			bs.TotalLiabilities = bs.TotalLiabilities.Add(b.Balance)
		case NatureEquity:
			bs.Equity = append(bs.Equity, b)
			bs.TotalEquity = bs.TotalEquity.Add(b.Balance)
		}
	}
	bs.Balanced = bs.TotalAssets.Equal(bs.TotalLiabilities.Add(bs.TotalEquity).Add(bs.CurrentResult))
	return bs, nil
}

// baseline returns the start of the latest carry-forward destination period
// beginning on or before asOf.
func (s *Service) baseline(ctx context.Context, asOf time.Time) (time.Time, error) {
	cfs, err := s.Store.ListCarryForwards(ctx)
	if err != nil {
		return time.Time{}, err
	}
	var since time.Time
	for _, cf := range cfs {
		dst, err := s.Store.GetPeriod(ctx, cf.DestinationPeriodID)
		if err != nil {
			return time.Time{}, err
		}
		if dst == nil || dst.Start.After(asOf) {
			continue
		}
		if dst.Start.After(since) {
			since = dst.Start
		}
	}
	return since, nil
}

// =============================================================================
// INCOME STATEMENT (estado de resultados)
// =============================================================================

type IncomeStatement struct {
	Income       []AccountBalance
	Expenses     []AccountBalance
	TotalIncome  Money
	TotalExpense Money
	NetResult    Money
}

// IncomeStatement reports income and expense balances over a span. Closing
// entries are ignored so a closed period still shows its result.
func (s *Service) IncomeStatement(ctx context.Context, f ReportFilter) (*IncomeStatement, error) {
	const op = "income statement"
	if err := f.requireSpan(); err != nil {
		return nil, err
	}
	if err := s.checkPeriod(ctx, f.PeriodID); err != nil {
		return nil, err
	}
	accounts, err := s.Accounts.ListActiveAccounts(ctx)
	if err != nil {
		return nil, boundary(op, err)
	}
	var result []Account
	for _, a := range accounts {
		if a.Nature.IsResult() {
			result = append(result, a)
		}
	}
	balances, err := s.calculator(s.Store).Balances(ctx, result, BalanceFilter{
		PeriodID:     f.PeriodID,
		Range:        f.Range,
		ExcludeTypes: []TransactionType{TxClosing},
	})
	if err != nil {
		return nil, boundary(op, err)
	}

	is := &IncomeStatement{
		Income:       []AccountBalance{},
		Expenses:     []AccountBalance{},
		TotalIncome:  decimal.Zero,
		TotalExpense: decimal.Zero,
	}
	for _, b := range balances {
		if b.Balance.IsZero() {
			continue
		}
		if b.Account.Nature == NatureIncome {
			is.Income = append(is.Income, b)
			is.TotalIncome = is.TotalIncome.Add(b.Balance)
		} else {
			is.Expenses = append(is.Expenses, b)
			is.TotalExpense = is.TotalExpense.Add(b.Balance)
		}
	}
	is.NetResult = is.TotalIncome.Sub(is.TotalExpense)
	return is, nil
}

// =============================================================================
// BALANCE COMPARISON (saldos entre periodos)
// =============================================================================

type BalanceComparison struct {
	Account  Account
	Previous Money
	Current  Money
	Total    Money
}

// CompareBalances lists, per active account, its balance in two periods and
// their sum. Accounts with no balance in either are omitted.
func (s *Service) CompareBalances(ctx context.Context, previous, current PeriodID) ([]BalanceComparison, error) {
	const op = "compare balances"
	if previous == "" || current == "" {
		return nil, invalid("period_id", "both periods are required")
	}
	for _, id := range []PeriodID{previous, current} {
		if err := s.checkPeriod(ctx, id); err != nil {
			return nil, err
		}
	}
	accounts, err := s.Accounts.ListActiveAccounts(ctx)
	if err != nil {
		return nil, boundary(op, err)
	}
	bc := s.calculator(s.Store)
	prev, err := bc.Balances(ctx, accounts, BalanceFilter{PeriodID: previous})
	if err != nil {
		return nil, boundary(op, err)
	}
	cur, err := bc.Balances(ctx, accounts, BalanceFilter{PeriodID: current})
	if err != nil {
		return nil, boundary(op, err)
	}

	rows := []BalanceComparison{}
	for i, a := range accounts {
		p, c := decimal.Zero, decimal.Zero
		if i < len(prev) {
			p = prev[i].Balance
		}
		if i < len(cur) {
			c = cur[i].Balance
		}
		if p.IsZero() && c.IsZero() {
			continue
		}
		rows = append(rows, BalanceComparison{Account: a, Previous: p, Current: c, Total: p.Add(c)})
	}
	return rows, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (s *Service) checkPeriod(ctx context.Context, id PeriodID) error {
	if id == "" {
		return nil
	}
	_, err := s.GetPeriod(ctx, id)
	return err
}

// resolveAccounts looks up every account that has postings, inactive ones
// included, ordered by code.
func (s *Service) resolveAccounts(ctx context.Context, byAccount map[AccountID][]Posting) ([]Account, error) {
	accounts := make([]Account, 0, len(byAccount))
	for id := range byAccount {
		a, err := s.Accounts.GetAccount(ctx, id)
		if err != nil {
			return nil, err
		}
		if a == nil {
			// Posted against an account the directory no longer knows.
			a = &Account{ID: id, Code: string(id), Name: string(id), Nature: NatureMemorandum}
		}
		accounts = append(accounts, *a)
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].Code < accounts[j].Code })
	return accounts, nil
}
