/*
Package ledger provides the general ledger consistency and period-closing engine.

PURPOSE:
  This package records financial transactions as balanced sets of debit/credit
  lines against a chart of accounts, groups them into fiscal periods, and
  derives the standard accounting reports from those records. It guarantees
  that every persisted transaction satisfies total debits = total credits and
  that closed fiscal periods cannot be silently mutated.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money: exact fixed-point amount (2 fractional digits)
  - Nature: whether an account grows with debits or with credits
  - Account: read-only view supplied by the chart-of-accounts collaborator
  - FiscalPeriod: date range that owns transactions and can be closed
  - Transaction / DetailLine: a balanced entry and its lines
  - TransactionDraft: caller input for the write path

DESIGN PRINCIPLES:
  1. Precision: decimal.Decimal everywhere, never float64
  2. Atomicity: a transaction and all its lines commit together or not at all
  3. Type Safety: distinct ID types for accounts, periods, transactions, lines
  4. Auditability: every mutation emits an audit entry after commit

SEE ALSO:
  - validate.go: draft validation (structure + accounting equation)
  - service.go: write path (create, replace/delete details, delete)
  - balance.go: balance calculation by account nature
  - closing.go: carry-forward planning (closing + opening entries)
  - reports.go: journal, general ledger, trial balance, statements
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - Exact fixed-point amounts
// =============================================================================

// MoneyPlaces is the number of fractional digits every amount carries.
const MoneyPlaces = 2

// Money is an exact decimal amount. Zero value is zero.
type Money = decimal.Decimal

// MustParseMoney parses a decimal string, panicking on malformed input.
// Intended for tests and fixtures.
func MustParseMoney(s string) Money {
	return decimal.RequireFromString(s)
}

// HasMoneyPrecision reports whether m has at most MoneyPlaces fractional digits.
func HasMoneyPrecision(m Money) bool {
	return m.Equal(m.Truncate(MoneyPlaces))
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type AccountID string
type PeriodID string
type TransactionID string
type DetailID string
type UserID string

// =============================================================================
// ACCOUNT - Read-only view of the chart of accounts
// =============================================================================

// Nature classifies how an account balance moves.
type Nature string

const (
	NatureAsset      Nature = "asset"
	NatureLiability  Nature = "liability"
	NatureEquity     Nature = "equity"
	NatureIncome     Nature = "income"
	NatureExpense    Nature = "expense"
	NatureMemorandum Nature = "memorandum"
)

// Valid reports whether n is one of the known natures.
func (n Nature) Valid() bool {
	switch n {
	case NatureAsset, NatureLiability, NatureEquity, NatureIncome, NatureExpense, NatureMemorandum:
		return true
	}
	return false
}

// DebitNormal reports whether debits increase the balance.
// Memorandum accounts are treated as debit-normal.
func (n Nature) DebitNormal() bool {
	switch n {
	case NatureLiability, NatureEquity, NatureIncome:
		return false
	default:
		return true
	}
}

// IsResult reports whether the account is zeroed at period close.
func (n Nature) IsResult() bool { return n == NatureIncome || n == NatureExpense }

// IsBalanceSheet reports whether the balance is carried into the next period.
func (n Nature) IsBalanceSheet() bool {
	return n == NatureAsset || n == NatureLiability || n == NatureEquity
}

type Account struct {
	ID       AccountID
	Code     string
	Name     string
	Nature   Nature
	Active   bool
	ParentID AccountID // empty = top level
}

// =============================================================================
// FISCAL PERIOD
// =============================================================================

type FiscalPeriod struct {
	ID        PeriodID
	Name      string
	Start     time.Time
	End       time.Time
	Closed    bool
	ClosedAt  *time.Time
	ClosedBy  UserID
	CreatedAt time.Time
}

// Range returns the period's date range.
func (p FiscalPeriod) Range() DateRange {
	return DateRange{From: p.Start, To: p.End}
}

// =============================================================================
// TRANSACTION - A balanced set of detail lines
// =============================================================================

type TransactionType string

const (
	TxReceipt      TransactionType = "ingreso"
	TxDisbursement TransactionType = "egreso"
	TxTransfer     TransactionType = "traspaso"
	TxOpening      TransactionType = "apertura" // System: carry-forward opening entry
	TxClosing      TransactionType = "cierre"   // System: zeroes result accounts
)

// Valid reports whether t is a known transaction type.
func (t TransactionType) Valid() bool {
	switch t {
	case TxReceipt, TxDisbursement, TxTransfer, TxOpening, TxClosing:
		return true
	}
	return false
}

type Transaction struct {
	ID              TransactionID
	Reference       string
	Description     string
	Date            time.Time
	Type            TransactionType
	SystemGenerated bool
	PeriodID        PeriodID
	AuthorID        UserID
	Details         []DetailLine

	// Version increments on every detail mutation (optimistic locking).
	Version   int64
	CreatedAt time.Time
}

// Totals returns the debit and credit sums over the detail lines.
func (t Transaction) Totals() (debit, credit Money) {
	return SumLines(t.Details)
}

type DetailLine struct {
	ID            DetailID
	TransactionID TransactionID
	AccountID     AccountID
	Debit         Money
	Credit        Money
	Description   string
}

// SumLines adds debits and credits separately.
func SumLines(lines []DetailLine) (debit, credit Money) {
	debit, credit = decimal.Zero, decimal.Zero
	for _, l := range lines {
		debit = debit.Add(l.Debit)
		credit = credit.Add(l.Credit)
	}
	return debit, credit
}

// Posting is a detail line joined with its transaction header.
// This is the row shape every read projection works on.
type Posting struct {
	DetailLine
	Reference              string
	Date                   time.Time
	Type                   TransactionType
	SystemGenerated        bool
	PeriodID               PeriodID
	AuthorID               UserID
	TransactionDescription string
}

// =============================================================================
// DRAFTS - Caller input for the write path
// =============================================================================

// TransactionDraft is a proposed transaction. Reference, ID and line IDs are
// assigned by the write path.
type TransactionDraft struct {
	Description     string
	Date            time.Time
	Type            TransactionType
	PeriodID        PeriodID
	AuthorID        UserID
	SystemGenerated bool
	Lines           []LineDraft
}

// LineDraft is a proposed detail line. ID is only honored by ReplaceDetails,
// where it lets an unchanged line keep its identity.
type LineDraft struct {
	ID          DetailID
	AccountID   AccountID
	Debit       Money
	Credit      Money
	Description string
}

// Debit builds a debit line.
func Debit(account AccountID, amount Money, description string) LineDraft {
	return LineDraft{AccountID: account, Debit: amount, Description: description}
}

// Credit builds a credit line.
func Credit(account AccountID, amount Money, description string) LineDraft {
	return LineDraft{AccountID: account, Credit: amount, Description: description}
}

func linesToDrafts(lines []DetailLine) []LineDraft {
	drafts := make([]LineDraft, len(lines))
	for i, l := range lines {
		drafts[i] = LineDraft{
			ID:          l.ID,
			AccountID:   l.AccountID,
			Debit:       l.Debit,
			Credit:      l.Credit,
			Description: l.Description,
		}
	}
	return drafts
}
