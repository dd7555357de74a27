/*
closing.go - Period-closing / carry-forward engine

PURPOSE:
  Moves balances from a closed fiscal period into the next one by generating
  two system entries:

    Closing entry (source period, dated on its last day, type "cierre"):
      zeroes every income/expense account and posts the net result against
      the retained-earnings account.

    Opening entry (destination period, dated on its first day, type "apertura"):
      re-establishes every balance-sheet account, retained earnings included
      with the result just closed into it.

EXAMPLE:
  Source balances: Sales (income) 500 credit, Cash (asset) 500 debit

  Closing:  Dr Sales 500            Opening:  Dr Cash 500
            Cr Retained earnings 500          Cr Retained earnings 500

PLANNING VS. WRITING:
  ClosingEngine.Plan is pure: balances in, drafts out. Service.CarryForward
  reads the balances and writes the drafts plus a carry-forward record in one
  atomic unit, so either everything is visible afterwards or nothing is.

LINE SIDES:
  A line posting amount x "to" an account raises its signed balance by x:
    debit-normal account:   x > 0 -> debit x,  x < 0 -> credit |x|
    credit-normal account:  x > 0 -> credit x, x < 0 -> debit |x|
  The closing line for balance b posts -b; the opening line posts b.

MEMORANDUM ACCOUNTS:
  Neither result nor balance sheet. They are never closed and are carried
  forward like balance-sheet accounts so the opening entry still balances.

CONCURRENCY:
  The carry-forward record is unique per source period. A second concurrent
  run fails on that constraint inside its unit and rolls back entirely.

SEE ALSO:
  - balance.go: end-of-period balances
  - service.go: insertWithReference, audit
*/
package ledger

import (
	"context"
	"fmt"
	"log"

	"github.com/shopspring/decimal"
)

// =============================================================================
// PLANNING
// =============================================================================

type CarryForwardInput struct {
	Source           FiscalPeriod
	Destination      FiscalPeriod
	Balances         []AccountBalance // end-of-source balances, active accounts
	RetainedEarnings Account
	Actor            UserID
}

type CarryForwardPlan struct {
	Closing   *TransactionDraft // nil when every result account is zero
	Opening   *TransactionDraft // nil when every carried account is zero
	NetResult Money             // income - expense
}

// ClosingEngine builds closing/opening drafts. Stateless.
type ClosingEngine struct{}

func (ClosingEngine) Plan(input CarryForwardInput) (*CarryForwardPlan, error) {
	re := input.RetainedEarnings
	if re.Nature != NatureEquity {
		return nil, invalid("retained_earnings", fmt.Sprintf("account %s must be an equity account", re.Code))
	}

	plan := &CarryForwardPlan{NetResult: decimal.Zero}

	// Closing: zero result accounts, contra to retained earnings.
	var closing []LineDraft
	for _, b := range input.Balances {
		if !b.Account.Nature.IsResult() || b.Balance.IsZero() {
			continue
		}
		closing = append(closing, post(b.Account, b.Balance.Neg(), "closing "+b.Account.Code))
		if b.Account.Nature == NatureIncome {
			plan.NetResult = plan.NetResult.Add(b.Balance)
		} else {
			plan.NetResult = plan.NetResult.Sub(b.Balance)
		}
	}
	if len(closing) > 0 {
		if !plan.NetResult.IsZero() {
			closing = append(closing, post(re, plan.NetResult, "net result "+input.Source.Name))
		}
		plan.Closing = &TransactionDraft{
			Description:     "Closing entry for period " + input.Source.Name,
			Date:            input.Source.End,
			Type:            TxClosing,
			PeriodID:        input.Source.ID,
			AuthorID:        input.Actor,
			SystemGenerated: true,
			Lines:           closing,
		}
	}

	// Opening: carried balances, retained earnings including the net result.
	reSeen := false
	var opening []LineDraft
	for _, b := range input.Balances {
		if b.Account.Nature.IsResult() {
			continue
		}
		amount := b.Balance
		if b.Account.ID == re.ID {
			amount = amount.Add(plan.NetResult)
			reSeen = true
		}
		if amount.IsZero() {
			continue
		}
		opening = append(opening, post(b.Account, amount, "opening balance "+b.Account.Code))
	}
	if !reSeen && !plan.NetResult.IsZero() {
		opening = append(opening, post(re, plan.NetResult, "opening balance "+re.Code))
	}
	if len(opening) > 0 {
		plan.Opening = &TransactionDraft{
			Description:     "Opening balances carried forward from period " + input.Source.Name,
			Date:            input.Destination.Start,
			Type:            TxOpening,
			PeriodID:        input.Destination.ID,
			AuthorID:        input.Actor,
			SystemGenerated: true,
			Lines:           opening,
		}
	}

	for _, d := range []*TransactionDraft{plan.Closing, plan.Opening} {
		if d == nil {
			continue
		}
		if err := CheckBalanced(d.Lines); err != nil {
			return nil, err
		}
	}
	return plan, nil
}

// post builds the line that raises a's signed balance by amount.
func post(a Account, amount Money, description string) LineDraft {
	up := amount.IsPositive()
	abs := amount.Abs()
	if a.Nature.DebitNormal() == up {
		return Debit(a.ID, abs, description)
	}
	return Credit(a.ID, abs, description)
}

// =============================================================================
// EXECUTION
// =============================================================================

// CarryForwardResult holds the generated entries. Either may be nil.
type CarryForwardResult struct {
	Closing   *Transaction
	Opening   *Transaction
	NetResult Money
}

// CarryForward closes the result accounts of a closed source period and opens
// the carried balances in an open destination period, in one atomic unit.
func (s *Service) CarryForward(ctx context.Context, source, destination PeriodID, actor UserID) (*CarryForwardResult, error) {
	const op = "carry forward"
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if source == "" || destination == "" {
		return nil, &ValidationError{Message: "validation failed", Fields: map[string]string{
			"source_period_id":      "source and destination periods are required",
			"destination_period_id": "source and destination periods are required",
		}}
	}
	if source == destination {
		return nil, invalid("destination_period_id", "destination must differ from the source period")
	}

	accounts, err := s.Accounts.ListActiveAccounts(ctx)
	if err != nil {
		return nil, boundary(op, err)
	}
	re, err := s.retainedEarnings(accounts)
	if err != nil {
		return nil, err
	}
	inactive, err := s.inactiveAccounts(ctx)
	if err != nil {
		return nil, boundary(op, err)
	}
	validator := &Validator{Accounts: staticDirectory(accounts)}

	result := &CarryForwardResult{}
	err = s.Store.WithTx(ctx, func(st Store) error {
		src, err := st.GetPeriod(ctx, source)
		if err != nil {
			return err
		}
		if src == nil {
			return notFound(EntityFiscalPeriod, source)
		}
		if !src.Closed {
			return ErrPeriodOpen
		}
		dst, err := requireOpenPeriod(ctx, st, destination)
		if err != nil {
			return err
		}
		done, err := st.GetCarryForward(ctx, source)
		if err != nil {
			return err
		}
		if done != nil {
			return ErrAlreadyCarriedForward
		}

		bc := s.calculator(st)
		if err := requireZeroBalances(ctx, bc, inactive, source); err != nil {
			return err
		}
		balances, err := bc.Balances(ctx, accounts, BalanceFilter{PeriodID: source})
		if err != nil {
			return err
		}
		plan, err := ClosingEngine{}.Plan(CarryForwardInput{
			Source:           *src,
			Destination:      *dst,
			Balances:         balances,
			RetainedEarnings: re,
			Actor:            actor,
		})
		if err != nil {
			return err
		}
		result.NetResult = plan.NetResult

		if result.Closing, err = s.writeSystemEntry(ctx, st, validator, plan.Closing, *src); err != nil {
			return err
		}
		if result.Opening, err = s.writeSystemEntry(ctx, st, validator, plan.Opening, *dst); err != nil {
			return err
		}

		cf := CarryForward{
			SourcePeriodID:      source,
			DestinationPeriodID: destination,
			CreatedBy:           actor,
			CreatedAt:           s.now(),
		}
		if result.Closing != nil {
			cf.ClosingTxID = result.Closing.ID
		}
		if result.Opening != nil {
			cf.OpeningTxID = result.Opening.ID
		}
		return st.InsertCarryForward(ctx, cf)
	})
	if err != nil {
		return nil, boundary(op, err)
	}

	if result.Closing != nil {
		s.audit(ctx, AuditCreate, actor, EntityTransaction, string(result.Closing.ID))
	}
	openingID := ""
	if result.Opening != nil {
		openingID = string(result.Opening.ID)
		s.audit(ctx, AuditCreate, actor, EntityTransaction, openingID)
	}
	s.audit(ctx, AuditCarryForward, actor, EntityTransaction, openingID)
	log.Printf("[Ledger] carried forward %s -> %s by %s (net result %s)", source, destination, actor, result.NetResult.StringFixed(MoneyPlaces))
	return result, nil
}

// writeSystemEntry validates and inserts a generated draft. The period open
// check is skipped: the closing entry lands in the closed source period.
func (s *Service) writeSystemEntry(ctx context.Context, st Store, v *Validator, draft *TransactionDraft, period FiscalPeriod) (*Transaction, error) {
	if draft == nil {
		return nil, nil
	}
	if err := v.Validate(ctx, *draft); err != nil {
		return nil, err
	}
	tx := s.newTransaction(*draft)
	next := func() string { return s.Refs.systemReference(draft.Type, period) }
	if err := s.insertWithReference(ctx, st, tx, next); err != nil {
		return nil, err
	}
	return tx, nil
}

// inactiveAccounts lists deactivated accounts when the directory can list
// them. A read-only directory only exposes active accounts.
func (s *Service) inactiveAccounts(ctx context.Context) ([]Account, error) {
	reg, ok := s.Accounts.(AccountRegistry)
	if !ok {
		return nil, nil
	}
	all, err := reg.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}
	var out []Account
	for _, a := range all {
		if !a.Active {
			out = append(out, a)
		}
	}
	return out, nil
}

// requireZeroBalances rejects the carry-forward when an inactive account still
// holds a balance in the source period. Its balance would be left out of the
// opening entry.
func requireZeroBalances(ctx context.Context, bc *BalanceCalculator, inactive []Account, source PeriodID) error {
	balances, err := bc.Balances(ctx, inactive, BalanceFilter{PeriodID: source})
	if err != nil {
		return err
	}
	fields := make(map[string]string)
	for _, b := range balances {
		if !b.Balance.IsZero() {
			fields["accounts."+b.Account.Code] = fmt.Sprintf("inactive account %s holds a balance of %s; reactivate it before carrying forward",
				b.Account.Name, b.Balance.StringFixed(MoneyPlaces))
		}
	}
	if len(fields) > 0 {
		return &ValidationError{Message: "inactive accounts hold balances in the source period", Fields: fields}
	}
	return nil
}

func (s *Service) retainedEarnings(active []Account) (Account, error) {
	if s.RetainedEarningsCode == "" {
		return Account{}, invalid("retained_earnings", "retained earnings account code is not configured")
	}
	for _, a := range active {
		if a.Code == s.RetainedEarningsCode {
			if a.Nature != NatureEquity {
				return Account{}, invalid("retained_earnings", fmt.Sprintf("account %s must be an equity account", a.Code))
			}
			return a, nil
		}
	}
	return Account{}, &NotFoundError{Entity: EntityAccount, ID: "code " + s.RetainedEarningsCode}
}

// staticDirectory serves a fixed account list. Used where the live directory
// must not be consulted, such as inside a store unit.
type staticDirectory []Account

func (d staticDirectory) GetAccount(_ context.Context, id AccountID) (*Account, error) {
	for _, a := range d {
		if a.ID == id {
			a := a
			return &a, nil
		}
	}
	return nil, nil
}

func (d staticDirectory) ListActiveAccounts(context.Context) ([]Account, error) {
	out := make([]Account, 0, len(d))
	for _, a := range d {
		if a.Active {
			out = append(out, a)
		}
	}
	return out, nil
}
