// Package middleware implements the authn/authz HTTP middleware core
// (spec components C4-C6): module construction, the request connector
// state machine, and the optional home-directory redirect, grounded on
// the teacher's Middleware/CreateMiddleware/Handler() shape
// (pkg/auth/middleware.go, pkg/auth/middleware/auth.go).
package middleware

import (
	"time"

	"github.com/authguard/authguard/pkg/authn"
	"github.com/authguard/authguard/pkg/authz"
)

// Config wires a Module. Unlike the original C core's string-tagged driver
// tables, Backend and Scheme are already-constructed interface values —
// the Go idiom is explicit dependency injection rather than a runtime
// lookup table; pkg/config's YAML loader is where a type string gets
// resolved to a concrete backend/scheme constructor (the same place the
// teacher's own config layer resolves driver selection).
type Config struct {
	Backend authz.Backend
	Scheme  authn.Scheme

	// TokenEnabled issues a session token (X-Auth-Token) on successful
	// verification. Cleared at New() if the backend supports neither
	// TokenJoiner nor TokenGenerator (invariant I3).
	TokenEnabled bool
	// HeaderEnabled propagates identity via X-Remote-* response headers.
	HeaderEnabled bool
	// CookieEnabled sends and reads the session token as the X-Auth-Token
	// cookie. X-Remote-* identity values are not sent as cookies.
	CookieEnabled bool
	// HomeEnabled enforces the home-directory redirect connector (§4.6.1).
	HomeEnabled bool
	// UnixEnabled impersonates the authenticated OS user. Requires
	// AllowUnixImpersonation since it mutates process-wide uid/gid state
	// (spec §5, §9 "Process-wide uid/gid state").
	UnixEnabled bool

	// Protect is a glob matched against the URL-decoded path; matching
	// paths require authentication. Defaults to "*" if empty.
	Protect string
	// Unprotect is a glob that overrides Protect when it also matches.
	Unprotect string
	// Redirect, when set, sends 302 to this URL instead of 401 on
	// authentication failure; the redirect target itself is always
	// admitted (spec §4.6.2 S6).
	Redirect string
	// Expire is the session token TTL; 0 means no expiry.
	Expire time.Duration

	// AllowRedirectHEADSubstitution resolves Open Question #1 (§9): when
	// true and Redirect is set, authn.Scheme.Check is called with method
	// "HEAD" instead of the real verb, matching historical behavior at
	// the documented cost of weakening per-resource credential binding.
	// Defaults to false (the safer, non-legacy behavior).
	AllowRedirectHEADSubstitution bool
	// EnableLogoutHeader resolves Open Question #2 (§9): when true, a
	// request carrying a WWW-Authenticate header is treated as a
	// client-initiated logout (S1) ending the pipeline with SUCCESS.
	// Defaults to false.
	EnableLogoutHeader bool
	// AllowUnixImpersonation must be set for UnixEnabled to take effect;
	// operationalizes §9's "gate behind an exclusive-server check" note.
	AllowUnixImpersonation bool

	// AnonymousUser names the user attached to admitted-but-unauthenticated
	// requests (URI outside Protect, or inside Unprotect). Empty values
	// leave the session slot unset for those requests.
	AnonymousUser string
}
