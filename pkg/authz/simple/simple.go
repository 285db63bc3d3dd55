// Package simple implements an in-memory authz.Backend, grounded on the
// teacher's dev/test-mode auth helpers (pkg/auth/local.go,
// pkg/auth/anonymous.go) which likewise short-circuit real account
// storage for local development and tests.
package simple

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Account is one statically-configured user record.
type Account struct {
	Passwd string
	Group  string
	Home   string
}

// Backend is a map-backed authz.Backend. Safe for concurrent use.
type Backend struct {
	mu       sync.RWMutex
	accounts map[string]Account
	tokens   map[string]tokenEntry
}

type tokenEntry struct {
	user    string
	expires time.Time // zero means never
}

// New creates a Backend seeded with the given accounts.
func New(accounts map[string]Account) *Backend {
	cp := make(map[string]Account, len(accounts))
	for k, v := range accounts {
		cp[k] = v
	}
	return &Backend{accounts: cp, tokens: make(map[string]tokenEntry)}
}

// Passwd implements authz.Backend.
func (b *Backend) Passwd(_ context.Context, user string) (string, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	a, ok := b.accounts[user]
	return a.Passwd, ok, nil
}

// Group implements authz.Backend.
func (b *Backend) Group(_ context.Context, user string) (string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.accounts[user].Group, nil
}

// Home implements authz.Backend.
func (b *Backend) Home(_ context.Context, user string) (string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.accounts[user].Home, nil
}

// Close implements authz.Backend.
func (*Backend) Close() error { return nil }

// Join implements authz.TokenJoiner.
func (b *Backend) Join(_ context.Context, user, token string, expire time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var exp time.Time
	if expire > 0 {
		exp = time.Now().Add(expire)
	}
	b.tokens[token] = tokenEntry{user: user, expires: exp}
	return nil
}

// Check implements authz.TokenChecker.
func (b *Backend) Check(_ context.Context, token string) (string, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.tokens[token]
	if !ok {
		return "", false, nil
	}
	if !e.expires.IsZero() && time.Now().After(e.expires) {
		delete(b.tokens, token)
		return "", false, nil
	}
	return e.user, true, nil
}

// SetAccount adds or replaces an account at runtime.
func (b *Backend) SetAccount(user string, a Account) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.accounts[user] = a
}

// ErrNoSuchUser is returned by helpers that need an explicit not-found
// error rather than the (string, bool) idiom used by the Backend methods.
var ErrNoSuchUser = fmt.Errorf("simple: no such user")
