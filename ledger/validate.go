/*
validate.go - Transaction draft validation

PURPOSE:
  Enforces the structural and accounting-equation invariants on a proposed
  transaction before any mutation is attempted. Never mutates state.

CHECK ORDER:
  1. Header: description, date, type, period, author, at least one line.
     All missing fields are reported together.
  2. Lines, in order, stopping at the first failing line:
     - has an account reference
     - exactly one of debit/credit is non-zero, and it is positive
     - amount has at most 2 fractional digits
     - account not repeated within the draft
     - account exists (NotFound) and is active
  3. Global: sum(debit) == sum(credit), exact decimal comparison. The error
     carries both totals.

REPEATED ACCOUNTS:
  A transaction may reference each account at most once. The rule applies to
  every write path, including the closing/opening entries generated by the
  carry-forward engine.

SEE ALSO:
  - errors.go: ValidationError, UnbalancedError
  - service.go: runs Validate before every commit
*/
package ledger

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// Validator checks drafts against the account directory.
type Validator struct {
	Accounts AccountDirectory
}

// Validate runs header, line and balance checks in order.
func (v *Validator) Validate(ctx context.Context, draft TransactionDraft) error {
	if verr := validateHeader(draft); verr != nil {
		return verr
	}
	return v.ValidateLines(ctx, draft.Lines)
}

// ValidateLines checks a complete detail set. Used directly when the set of
// an existing transaction is replaced, extended or reduced.
func (v *Validator) ValidateLines(ctx context.Context, lines []LineDraft) error {
	if len(lines) == 0 {
		return invalid("lines", "at least one detail line is required")
	}

	seen := make(map[AccountID]int, len(lines))
	for i, line := range lines {
		if fields := lineFieldErrors(i, line, seen); len(fields) > 0 {
			return &ValidationError{
				Message: fmt.Sprintf("detail line %d is invalid", i+1),
				Fields:  fields,
			}
		}
		seen[line.AccountID] = i

		if err := v.checkAccount(ctx, i, line.AccountID); err != nil {
			return err
		}
	}

	return CheckBalanced(lines)
}

// CheckBalanced compares debit and credit totals exactly.
func CheckBalanced(lines []LineDraft) error {
	debit, credit := decimal.Zero, decimal.Zero
	for _, l := range lines {
		debit = debit.Add(l.Debit)
		credit = credit.Add(l.Credit)
	}
	if !debit.Equal(credit) {
		return UnbalancedError(debit, credit)
	}
	return nil
}

func validateHeader(d TransactionDraft) *ValidationError {
	fields := make(map[string]string)
	if d.Description == "" {
		fields["description"] = "description is required"
	}
	if d.Date.IsZero() {
		fields["date"] = "date is required"
	}
	if d.Type == "" {
		fields["type"] = "transaction type is required"
	} else if !d.Type.Valid() {
		fields["type"] = fmt.Sprintf("unknown transaction type %q", d.Type)
	}
	if d.PeriodID == "" {
		fields["period_id"] = "fiscal period is required"
	}
	if d.AuthorID == "" {
		fields["author_id"] = "author is required"
	}
	if len(d.Lines) == 0 {
		fields["lines"] = "at least one detail line is required"
	}
	if len(fields) == 0 {
		return nil
	}
	return &ValidationError{Message: "validation failed", Fields: fields}
}

func lineFieldErrors(i int, line LineDraft, seen map[AccountID]int) map[string]string {
	fields := make(map[string]string)
	key := func(name string) string { return fmt.Sprintf("lines[%d].%s", i, name) }

	if line.AccountID == "" {
		fields[key("account_id")] = "account is required"
	}

	hasDebit, hasCredit := !line.Debit.IsZero(), !line.Credit.IsZero()
	switch {
	case line.Debit.IsNegative() || line.Credit.IsNegative():
		fields[key("amount")] = "amounts must be positive"
	case hasDebit && hasCredit:
		fields[key("amount")] = "a line cannot have both debit and credit"
	case !hasDebit && !hasCredit:
		fields[key("amount")] = "a line must have a debit or a credit"
	case !HasMoneyPrecision(line.Debit) || !HasMoneyPrecision(line.Credit):
		fields[key("amount")] = fmt.Sprintf("amounts allow at most %d decimal places", MoneyPlaces)
	}

	if line.AccountID != "" {
		if prev, dup := seen[line.AccountID]; dup {
			fields[key("account_id")] = fmt.Sprintf("account already used in line %d", prev+1)
		}
	}
	return fields
}

func (v *Validator) checkAccount(ctx context.Context, i int, id AccountID) error {
	if v.Accounts == nil {
		return nil
	}
	acct, err := v.Accounts.GetAccount(ctx, id)
	if err != nil {
		return err
	}
	if acct == nil {
		return notFound(EntityAccount, id)
	}
	if !acct.Active {
		return invalid(fmt.Sprintf("lines[%d].account_id", i), "account is inactive")
	}
	return nil
}
