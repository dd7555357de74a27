/*
Package cache provides a TTL-cached account directory.

PURPOSE:
  The validator looks up every account referenced by a draft and the reports
  list the active accounts on every call. The chart of accounts changes
  rarely, so lookups are served from memory and expire after a TTL.

CONSISTENCY:
  Writes through SaveAccount invalidate the cache immediately. Writes made to
  the underlying registry by other processes become visible after the TTL.
  Missing accounts are not cached, so a newly created account is usable at
  once.

USAGE:
  accounts := cache.NewAccountDirectory(store, 5*time.Minute)
  svc := ledger.NewService(store, accounts)
*/
package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/warp/general-ledger/ledger"
)

const activeKey = "active"

// AccountDirectory caches a ledger.AccountRegistry.
type AccountDirectory struct {
	next  ledger.AccountRegistry
	cache *gocache.Cache
}

// NewAccountDirectory wraps next. A non-positive ttl disables expiry.
func NewAccountDirectory(next ledger.AccountRegistry, ttl time.Duration) *AccountDirectory {
	cleanup := 2 * ttl
	if ttl <= 0 {
		ttl, cleanup = gocache.NoExpiration, 0
	}
	return &AccountDirectory{next: next, cache: gocache.New(ttl, cleanup)}
}

func accountKey(id ledger.AccountID) string { return "account:" + string(id) }

func (d *AccountDirectory) GetAccount(ctx context.Context, id ledger.AccountID) (*ledger.Account, error) {
	if v, ok := d.cache.Get(accountKey(id)); ok {
		a := v.(ledger.Account)
		return &a, nil
	}
	a, err := d.next.GetAccount(ctx, id)
	if err != nil || a == nil {
		return a, err
	}
	d.cache.Set(accountKey(id), *a, gocache.DefaultExpiration)
	return a, nil
}

func (d *AccountDirectory) ListActiveAccounts(ctx context.Context) ([]ledger.Account, error) {
	if v, ok := d.cache.Get(activeKey); ok {
		return append([]ledger.Account(nil), v.([]ledger.Account)...), nil
	}
	accounts, err := d.next.ListActiveAccounts(ctx)
	if err != nil {
		return nil, err
	}
	d.cache.Set(activeKey, append([]ledger.Account(nil), accounts...), gocache.DefaultExpiration)
	return accounts, nil
}

// ListAccounts is not cached; it backs administrative listings only.
func (d *AccountDirectory) ListAccounts(ctx context.Context) ([]ledger.Account, error) {
	return d.next.ListAccounts(ctx)
}

// SaveAccount writes through and drops every cached entry.
func (d *AccountDirectory) SaveAccount(ctx context.Context, a ledger.Account) error {
	if err := d.next.SaveAccount(ctx, a); err != nil {
		return err
	}
	d.Invalidate()
	return nil
}

// Invalidate empties the cache.
func (d *AccountDirectory) Invalidate() {
	d.cache.Flush()
}

var _ ledger.AccountRegistry = (*AccountDirectory)(nil)
