// Package authz defines the capability set backend drivers implement
// (spec component C2). Backends declare which optional capabilities they
// support by implementing (or not implementing) the corresponding small
// interface; the core checks with a type assertion before calling,
// mirroring the teacher's TokenIntrospector registry pattern
// (pkg/auth/token.go in the reference corpus) where providers are probed
// via CanHandle rather than through a monolithic interface.
package authz

import (
	"context"
	"time"

	"github.com/authguard/authguard/pkg/session"
)

// Backend resolves account data for a verified or claimed user name. Only
// Passwd is mandatory; Group/Home/Close should be implemented by every
// real backend but may be no-ops.
type Backend interface {
	// Passwd returns the stored secret a scheme driver matches
	// credentials against. ok is false if the user does not exist.
	Passwd(ctx context.Context, user string) (secret string, ok bool, err error)
	// Group returns the user's group, or "" if unknown.
	Group(ctx context.Context, user string) (string, error)
	// Home returns the user's home directory, or "" if unknown.
	Home(ctx context.Context, user string) (string, error)
	// Close releases any resources held by the backend (database
	// handles, file watchers, etc).
	Close() error
}

// TokenJoiner is implemented by backends that can associate a minted
// session token with a user and an expiry (spec §4.2 "join"). Its absence
// combined with no JWT driver in play causes TokenEnabled to be cleared
// at module construction (invariant I3).
type TokenJoiner interface {
	Join(ctx context.Context, user, token string, expire time.Duration) error
}

// TokenChecker is implemented by backends that can resolve a user from a
// previously joined token (spec §4.2 "check", the token input channel).
type TokenChecker interface {
	Check(ctx context.Context, token string) (user string, ok bool, err error)
}

// SessionSetter is implemented by backends (principally the JWT backend)
// that can populate a full session.Session directly from a stored token,
// bypassing the Passwd/Group/Home round trip.
type SessionSetter interface {
	SetSession(ctx context.Context, token string) (*session.Session, error)
}

// TokenGenerator is implemented by backends that mint their own tokens
// instead of using the default 24-byte random generator — the JWT backend
// produces signed claims blobs instead (spec §4.4 "JWT path").
type TokenGenerator interface {
	GenerateToken(ctx context.Context, user string, expire time.Duration) (string, error)
}

// Config is the subset of middleware.Config a backend constructor needs.
// It is duplicated here (rather than importing pkg/middleware, which
// would create an import cycle) the way the teacher keeps driver configs
// declared beside the driver rather than in the core package.
type Config struct {
	// DSN/path/addr meaning depends on the backend: file path for File,
	// connection string for SQLite, issuer/JWKS URL for JWT, unused for
	// Simple/Unix.
	Source string
	// Expire is the default token TTL backends should apply when Join is
	// called without an explicit override.
	Expire time.Duration
}
