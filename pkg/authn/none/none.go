// Package none implements the no-op authn.Scheme used when a connector
// should admit every request without credentials (spec §4.3 "None").
package none

import (
	"context"
	"net/http"

	"github.com/authguard/authguard/pkg/authn"
)

// Scheme admits every request as the configured anonymous user, grounded
// on the teacher's anonymous.go identity fallback
// (pkg/auth/anonymous.go AnonymousMiddleware).
type Scheme struct {
	// User is the identity attached to every request. Defaults to
	// "anonymous" when empty.
	User string
}

// New returns a Scheme that admits requests as user (or "anonymous" if
// user is empty).
func New(user string) *Scheme {
	if user == "" {
		user = "anonymous"
	}
	return &Scheme{User: user}
}

// Setup implements authn.Scheme.
func (*Scheme) Setup(context.Context, string) error { return nil }

// Challenge implements authn.Scheme. None never challenges.
func (*Scheme) Challenge(http.ResponseWriter, *http.Request) authn.ChallengeResult {
	return authn.ChallengeResult{}
}

// Check implements authn.Scheme, always succeeding.
func (s *Scheme) Check(context.Context, string, string, string) (string, error) {
	return s.User, nil
}

// Name implements authn.Scheme.
func (*Scheme) Name() string { return "none" }
