/*
errors.go - Centralized error types for the ledger engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers classify failures with errors.Is against the four categories;
  specific sentinels unwrap to their category.

ERROR CATEGORIES:
  1. NotFound   - referenced account/period/transaction/detail absent
  2. Validation - structural or accounting-equation violation
  3. Conflict   - closed period, duplicate reference, dependent rows,
                  concurrent modification, repeated carry-forward
  4. Internal   - persistence failure (never retried by the engine)

USAGE:
  _, err := svc.CreateTransaction(ctx, draft)
  switch {
  case errors.Is(err, ledger.ErrPeriodClosed):   // specific
  case ledger.IsConflict(err):                   // category
  }

  var verr *ledger.ValidationError
  if errors.As(err, &verr) {
      // verr.Fields, verr.TotalDebit, verr.TotalCredit
  }

SEE ALSO:
  - service.go: converts store errors at the API boundary
  - api/handlers.go: maps categories to HTTP status codes
*/
package ledger

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// =============================================================================
// CATEGORY SENTINELS - Use with errors.Is()
// =============================================================================

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation failed")
	ErrConflict   = errors.New("conflict")
	ErrInternal   = errors.New("internal error")
)

// categorized is a specific sentinel that also matches its category.
type categorized struct {
	msg      string
	category error
}

func (e *categorized) Error() string { return e.msg }
func (e *categorized) Unwrap() error { return e.category }

func conflict(msg string) error { return &categorized{msg: msg, category: ErrConflict} }

// =============================================================================
// SPECIFIC SENTINELS
// =============================================================================

var (
	// ErrPeriodClosed is returned when writing into a closed fiscal period.
	ErrPeriodClosed = conflict("fiscal period is closed")

	// ErrPeriodOpen is returned when carrying balances forward from a period
	// that has not been closed yet.
	ErrPeriodOpen = conflict("fiscal period is still open")

	// ErrDuplicateReference is returned by stores when a transaction
	// reference already exists. The write path retries with a new reference.
	ErrDuplicateReference = conflict("duplicate transaction reference")

	// ErrPeriodHasTransactions is returned when deleting a period that owns transactions.
	ErrPeriodHasTransactions = conflict("fiscal period has transactions")

	// ErrPeriodNameTaken is returned when a period name is already in use.
	ErrPeriodNameTaken = conflict("fiscal period name already exists")

	// ErrAlreadyCarriedForward is returned when the source period already
	// produced its closing/opening entries.
	ErrAlreadyCarriedForward = conflict("balances already carried forward from this period")

	// ErrConcurrentModification is returned when optimistic locking detects
	// that a transaction's detail set changed underneath the caller.
	ErrConcurrentModification = conflict("concurrent modification detected")

	// ErrSystemGenerated is returned when a user tries to edit or delete a
	// closing/opening entry produced by the carry-forward engine.
	ErrSystemGenerated = conflict("system-generated transaction cannot be modified")

	// ErrAccountCodeTaken is returned when saving an account whose code
	// belongs to another account.
	ErrAccountCodeTaken = conflict("account code already exists")

	// ErrAccountHasBalance is returned when deactivating an account whose
	// balance is not zero.
	ErrAccountHasBalance = conflict("account still holds a balance")

	// ErrPeriodHasCarryForward is returned when deleting a period that a
	// carry-forward record points at.
	ErrPeriodHasCarryForward = conflict("fiscal period is part of a carry-forward")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// NotFoundError names the missing entity.
type NotFoundError struct {
	Entity string // "account", "fiscal_period", "transaction", "detail"
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

func notFound(entity string, id any) error {
	return &NotFoundError{Entity: entity, ID: fmt.Sprint(id)}
}

// ValidationError reports every failing field so a form can be re-rendered.
// For accounting-equation failures TotalDebit/TotalCredit carry the computed sums.
type ValidationError struct {
	Message     string
	Fields      map[string]string
	TotalDebit  *Money
	TotalCredit *Money
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ": " + e.Fields[k]
	}
	return e.Message + " (" + strings.Join(parts, "; ") + ")"
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(field, reason string) *ValidationError {
	return &ValidationError{Message: "validation failed", Fields: map[string]string{field: reason}}
}

// UnbalancedError builds the accounting-equation failure.
func UnbalancedError(debit, credit Money) *ValidationError {
	return &ValidationError{
		Message:     "sum of debits does not equal sum of credits",
		TotalDebit:  &debit,
		TotalCredit: &credit,
	}
}

// InternalError wraps a persistence or transport failure.
type InternalError struct {
	Op  string
	Err error
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *InternalError) Unwrap() []error { return []error{ErrInternal, e.Err} }

// boundary converts untyped errors into *InternalError so raw store
// failures never cross the public API.
func boundary(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrConflict) || errors.Is(err, ErrInternal) {
		return err
	}
	return &InternalError{Op: op, Err: err}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing entity.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsValidation returns true if the caller can fix the input and retry.
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

// IsConflict returns true if the write conflicts with current ledger state.
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }

// IsRetryable returns true if the error might succeed on retry unchanged.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification) || errors.Is(err, ErrDuplicateReference)
}
