/*
balance.go - Balance calculation by account nature

PURPOSE:
  Reduces the detail lines posted to an account into a single signed balance.
  This is the central read calculation: the carry-forward engine and every
  report are built on it.

SIGN CONVENTION:
  Debit-normal (asset, expense, memorandum):  balance = debit - credit
  Credit-normal (liability, equity, income):  balance = credit - debit

  A positive balance is therefore always the "normal" side for the account.

FILTERS:
  Period:  only transactions owned by that fiscal period
  Range:   only transactions dated inside the inclusive day range
  Exclude: skip transaction types (e.g. closing entries for the income
           statement)

GUARANTEES:
  - Deterministic and side-effect free; nothing is cached, so a read after a
    committed write always reflects it.
  - decimal.Decimal accumulation, no floating point.
  - Rollup balances walk the account tree with a visited set, so a cyclic
    parent chain cannot loop forever.

SEE ALSO:
  - tree.go: parent/child index used by RollupBalance
  - closing.go: end-of-period balances for carry-forward
  - reports.go: trial balance, balance sheet, income statement
*/
package ledger

import (
	"context"

	"github.com/shopspring/decimal"
)

// =============================================================================
// BALANCE - Signed result for one account
// =============================================================================

// AccountBalance holds the movements and the signed balance of one account.
type AccountBalance struct {
	Account Account
	Debit   Money
	Credit  Money
	Balance Money
}

// SignedBalance applies the nature sign convention.
func SignedBalance(n Nature, debit, credit Money) Money {
	if n.DebitNormal() {
		return debit.Sub(credit)
	}
	return credit.Sub(debit)
}

// SignedAmount returns the effect of a single line on an account balance.
func SignedAmount(n Nature, debit, credit Money) Money {
	return SignedBalance(n, debit, credit)
}

// BalanceFilter selects which movements count toward a balance.
type BalanceFilter struct {
	PeriodID     PeriodID
	Range        DateRange
	ExcludeTypes []TransactionType
}

func (f BalanceFilter) postingFilter(ids []AccountID) PostingFilter {
	return PostingFilter{
		AccountIDs:   ids,
		PeriodID:     f.PeriodID,
		Range:        f.Range,
		ExcludeTypes: f.ExcludeTypes,
	}
}

// =============================================================================
// BALANCE CALCULATOR
// =============================================================================

// BalanceCalculator computes balances from stored detail lines.
type BalanceCalculator struct {
	Store    Store
	Accounts AccountDirectory
}

// Balance computes the balance of a single account.
func (bc *BalanceCalculator) Balance(ctx context.Context, id AccountID, filter BalanceFilter) (AccountBalance, error) {
	acct, err := bc.Accounts.GetAccount(ctx, id)
	if err != nil {
		return AccountBalance{}, err
	}
	if acct == nil {
		return AccountBalance{}, notFound(EntityAccount, id)
	}
	balances, err := bc.Balances(ctx, []Account{*acct}, filter)
	if err != nil {
		return AccountBalance{}, err
	}
	return balances[0], nil
}

// Balances computes balances for many accounts with a single posting scan.
// Results are returned in the order of accounts.
func (bc *BalanceCalculator) Balances(ctx context.Context, accounts []Account, filter BalanceFilter) ([]AccountBalance, error) {
	if len(accounts) == 0 {
		return nil, nil
	}
	ids := make([]AccountID, len(accounts))
	for i, a := range accounts {
		ids[i] = a.ID
	}

	postings, err := bc.Store.ListPostings(ctx, filter.postingFilter(ids))
	if err != nil {
		return nil, err
	}

	type sums struct{ debit, credit Money }
	totals := make(map[AccountID]*sums, len(accounts))
	for _, id := range ids {
		totals[id] = &sums{debit: decimal.Zero, credit: decimal.Zero}
	}
	for _, p := range postings {
		s, ok := totals[p.AccountID]
		if !ok {
			continue
		}
		s.debit = s.debit.Add(p.Debit)
		s.credit = s.credit.Add(p.Credit)
	}

	result := make([]AccountBalance, len(accounts))
	for i, a := range accounts {
		s := totals[a.ID]
		result[i] = AccountBalance{
			Account: a,
			Debit:   s.debit,
			Credit:  s.credit,
			Balance: SignedBalance(a.Nature, s.debit, s.credit),
		}
	}
	return result, nil
}

// RollupBalance computes the balance of an account plus all its active
// descendants, signed by the nature of the root account.
func (bc *BalanceCalculator) RollupBalance(ctx context.Context, id AccountID, filter BalanceFilter) (AccountBalance, error) {
	root, err := bc.Accounts.GetAccount(ctx, id)
	if err != nil {
		return AccountBalance{}, err
	}
	if root == nil {
		return AccountBalance{}, notFound(EntityAccount, id)
	}
	active, err := bc.Accounts.ListActiveAccounts(ctx)
	if err != nil {
		return AccountBalance{}, err
	}

	tree := NewAccountTree(append(active, *root))
	ids := append([]AccountID{root.ID}, tree.Descendants(root.ID)...)

	postings, err := bc.Store.ListPostings(ctx, filter.postingFilter(ids))
	if err != nil {
		return AccountBalance{}, err
	}
	debit, credit := decimal.Zero, decimal.Zero
	for _, p := range postings {
		debit = debit.Add(p.Debit)
		credit = credit.Add(p.Credit)
	}
	return AccountBalance{
		Account: *root,
		Debit:   debit,
		Credit:  credit,
		Balance: SignedBalance(root.Nature, debit, credit),
	}, nil
}
