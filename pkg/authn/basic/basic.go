// Package basic implements HTTP Basic authentication (RFC 7617) as an
// authn.Scheme, grounded on the teacher's "Authorization header, strip
// scheme prefix" pattern (pkg/auth/jwt.go, pkg/auth/token.go
// authHeader := r.Header.Get("Authorization") / strings.HasPrefix(...,
// "Bearer ")), generalized here to the "Basic " prefix.
package basic

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/authguard/authguard/pkg/authn"
	"github.com/authguard/authguard/pkg/authz"
)

// ErrMalformedCredentials is returned when the decoded Basic payload is
// not "user:password".
var ErrMalformedCredentials = errors.New("basic: malformed credentials")

// ErrBadCredentials is returned when the password does not match the
// backend's stored secret.
var ErrBadCredentials = errors.New("basic: bad credentials")

// Scheme implements RFC 7617 Basic authentication against an authz.Backend.
type Scheme struct {
	Realm   string
	Backend authz.Backend
}

// New returns a Basic Scheme verifying against backend within realm.
func New(realm string, backend authz.Backend) *Scheme {
	return &Scheme{Realm: realm, Backend: backend}
}

// Setup implements authn.Scheme.
func (*Scheme) Setup(context.Context, string) error { return nil }

// Challenge implements authn.Scheme, writing a WWW-Authenticate: Basic
// header; the connector sends the 401 status itself.
func (s *Scheme) Challenge(w http.ResponseWriter, _ *http.Request) authn.ChallengeResult {
	w.Header().Set("WWW-Authenticate", fmt.Sprintf(`Basic realm=%q`, s.Realm))
	return authn.ChallengeResult{}
}

// Check implements authn.Scheme. blob is the full Authorization header
// value, "Basic <base64>".
func (s *Scheme) Check(ctx context.Context, _ string, _ string, blob string) (string, error) {
	const prefix = "Basic "
	if !strings.HasPrefix(blob, prefix) {
		return "", ErrMalformedCredentials
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(blob, prefix))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedCredentials, err)
	}
	user, pass, ok := strings.Cut(string(decoded), ":")
	if !ok {
		return "", ErrMalformedCredentials
	}

	secret, exists, err := s.Backend.Passwd(ctx, user)
	if err != nil {
		return "", fmt.Errorf("basic: passwd lookup: %w", err)
	}
	if !exists {
		return "", ErrBadCredentials
	}
	if !verifySecret(secret, pass) {
		return "", ErrBadCredentials
	}
	return user, nil
}

// verifySecret compares pass against secret as a bcrypt hash when secret
// looks like one (the file backend's format), falling back to a
// constant-time plain comparison for backends (Simple) that store the
// secret verbatim.
func verifySecret(secret, pass string) bool {
	if strings.HasPrefix(secret, "$2a$") || strings.HasPrefix(secret, "$2b$") || strings.HasPrefix(secret, "$2y$") {
		return bcrypt.CompareHashAndPassword([]byte(secret), []byte(pass)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(secret), []byte(pass)) == 1
}

// Name implements authn.Scheme.
func (*Scheme) Name() string { return "Basic" }
