package ledger

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
)

var errReadOnlyDirectory = errors.New("account directory is read-only")

// AccountRegistry is an AccountDirectory that can also be written to. The
// ledger only writes the minimal fields it reads; full chart-of-accounts
// management lives elsewhere.
type AccountRegistry interface {
	AccountDirectory

	// SaveAccount inserts or updates by ID. Codes are unique (ErrAccountCodeTaken).
	SaveAccount(ctx context.Context, a Account) error

	// ListAccounts returns every account, active or not, ordered by code.
	ListAccounts(ctx context.Context) ([]Account, error)
}

// SaveAccount upserts an account in the directory. The parent link must point
// to an existing account and must not close a cycle. An account can only be
// deactivated once its balance is zero.
func (s *Service) SaveAccount(ctx context.Context, a Account, actor UserID) (*Account, error) {
	const op = "save account"
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	reg, ok := s.Accounts.(AccountRegistry)
	if !ok {
		return nil, &InternalError{Op: op, Err: errReadOnlyDirectory}
	}

	a.Code = strings.TrimSpace(a.Code)
	a.Name = strings.TrimSpace(a.Name)
	fields := make(map[string]string)
	if a.Code == "" {
		fields["code"] = "code is required"
	}
	if a.Name == "" {
		fields["name"] = "name is required"
	}
	if !a.Nature.Valid() {
		fields["nature"] = "unknown account nature " + string(a.Nature)
	}
	if len(fields) > 0 {
		return nil, &ValidationError{Message: "validation failed", Fields: fields}
	}

	if !a.Active && a.ID != "" {
		balances, err := s.calculator(s.Store).Balances(ctx, []Account{a}, BalanceFilter{})
		if err != nil {
			return nil, boundary(op, err)
		}
		if !balances[0].Balance.IsZero() {
			return nil, ErrAccountHasBalance
		}
	}

	action := AuditUpdate
	if a.ID == "" {
		a.ID = AccountID(uuid.NewString())
		action = AuditCreate
	}

	if a.ParentID != "" {
		all, err := reg.ListAccounts(ctx)
		if err != nil {
			return nil, boundary(op, err)
		}
		tree := NewAccountTree(append(all, a))
		if _, ok := tree.byID[a.ParentID]; !ok {
			return nil, notFound(EntityAccount, a.ParentID)
		}
		if tree.WouldCycle(a.ID, a.ParentID) {
			return nil, invalid("parent_id", "parent would create a cycle in the account tree")
		}
	}

	if err := reg.SaveAccount(ctx, a); err != nil {
		return nil, boundary(op, err)
	}
	s.audit(ctx, action, actor, EntityAccount, string(a.ID))
	return &a, nil
}

// ListAccounts returns the whole directory when it is writable, otherwise
// only the active accounts.
func (s *Service) ListAccounts(ctx context.Context) ([]Account, error) {
	if reg, ok := s.Accounts.(AccountRegistry); ok {
		all, err := reg.ListAccounts(ctx)
		return all, boundary("list accounts", err)
	}
	active, err := s.Accounts.ListActiveAccounts(ctx)
	return active, boundary("list accounts", err)
}

// AccountBalance returns the balance of one account. With rollup set, the
// balances of all active descendants are included.
func (s *Service) AccountBalance(ctx context.Context, id AccountID, filter BalanceFilter, rollup bool) (AccountBalance, error) {
	bc := s.calculator(s.Store)
	var (
		b   AccountBalance
		err error
	)
	if rollup {
		b, err = bc.RollupBalance(ctx, id, filter)
	} else {
		b, err = bc.Balance(ctx, id, filter)
	}
	return b, boundary("account balance", err)
}

func (s *Service) calculator(st Store) *BalanceCalculator {
	return &BalanceCalculator{Store: st, Accounts: s.Accounts}
}
