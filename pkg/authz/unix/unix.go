// Package unix implements an authz.Backend over the host's /etc/passwd and
// /etc/group via the standard os/user package, grounded on the teacher's
// own fallback to os/user.Current() when no OIDC validator is configured
// (pkg/auth/middleware/auth.go, pkg/auth/utils.go
// GetAuthenticationMiddleware).
//
// This backend never stores a comparable secret: OS account databases do
// not expose password hashes through os/user, so Passwd always reports
// the account as present with an empty secret. It is intended to pair
// with authn schemes that don't need a password (Bearer/OAuth2 token
// verification) or with UnixEnabled impersonation of an already-trusted
// caller.
package unix

import (
	"context"
	"errors"
	"fmt"
	"os/user"
)

// Backend resolves group/home from the OS account database.
type Backend struct{}

// New returns a Unix-backed Backend.
func New() *Backend { return &Backend{} }

// Passwd implements authz.Backend. It reports whether the OS user exists;
// the secret is always empty since os/user exposes no password hash.
func (*Backend) Passwd(_ context.Context, username string) (string, bool, error) {
	_, err := user.Lookup(username)
	if err != nil {
		var unknown user.UnknownUserError
		if errors.As(err, &unknown) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("unix authz: lookup %s: %w", username, err)
	}
	return "", true, nil
}

// Group implements authz.Backend.
func (*Backend) Group(_ context.Context, username string) (string, error) {
	u, err := user.Lookup(username)
	if err != nil {
		return "", fmt.Errorf("unix authz: lookup %s: %w", username, err)
	}
	g, err := user.LookupGroupId(u.Gid)
	if err != nil {
		return "", fmt.Errorf("unix authz: lookup group %s: %w", u.Gid, err)
	}
	return g.Name, nil
}

// Home implements authz.Backend.
func (*Backend) Home(_ context.Context, username string) (string, error) {
	u, err := user.Lookup(username)
	if err != nil {
		return "", fmt.Errorf("unix authz: lookup %s: %w", username, err)
	}
	return u.HomeDir, nil
}

// Close implements authz.Backend.
func (*Backend) Close() error { return nil }

// UIDGID resolves the numeric uid/gid pair for UnixEnabled impersonation.
func (*Backend) UIDGID(username string) (uid, gid string, err error) {
	u, err := user.Lookup(username)
	if err != nil {
		return "", "", fmt.Errorf("unix authz: lookup %s: %w", username, err)
	}
	return u.Uid, u.Gid, nil
}
