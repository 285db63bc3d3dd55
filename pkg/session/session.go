// Package session defines the per-authenticated-client record attached to
// requests once a credential has been verified.
package session

// MaxUserLength is the typical cap applied to the User field when a backend
// enforces bounded identifiers (mirrors historical C implementations that
// stored the user name in a fixed-size buffer).
const MaxUserLength = 32

// Status enumerates the outcome recorded against a Session.
type Status int

// Session statuses.
const (
	StatusUnknown Status = iota
	StatusAuthenticated
	StatusTokenIssued
)

// Session is the Go name for the specification's authsession: the
// per-authenticated-client record created lazily on first successful
// verification and destroyed with its owning connection.
type Session struct {
	// User is the authenticated principal's name.
	User string
	// Group is the principal's primary group, resolved from the authz
	// backend.
	Group string
	// Home is the principal's home directory, resolved from the authz
	// backend. Used by the home-redirect connector.
	Home string
	// Type is the authn scheme name that produced this session (e.g.
	// "Basic", "Digest", "Bearer").
	Type string
	// Token is the opaque bearer token minted for this session, if token
	// issuance is enabled. Empty when unset.
	Token string
	// Status records how this session came to exist.
	Status Status
}

// Truncated returns the User field capped to MaxUserLength, matching the
// historical fixed-size buffer semantics some backends assume.
func (s *Session) Truncated() string {
	if s == nil || len(s.User) <= MaxUserLength {
		if s == nil {
			return ""
		}
		return s.User
	}
	return s.User[:MaxUserLength]
}
