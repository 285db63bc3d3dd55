// Package jwtauthz implements an authz.Backend that uses signed JWTs as the
// session store itself instead of a server-side table: GenerateToken mints a
// claim-carrying JWT and SetSession verifies it back into a session.Session,
// grounded on the teacher's github.com/golang-jwt/jwt/v5 usage in
// pkg/auth/token/validator.go and the claims shape in pkg/auth/token/claims.go.
package jwtauthz

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/authguard/authguard/pkg/authz"
	"github.com/authguard/authguard/pkg/session"
)

// claims is the JWT payload used to carry session state without server-side
// storage.
type claims struct {
	Group string `json:"grp,omitempty"`
	Home  string `json:"home,omitempty"`
	jwt.RegisteredClaims
}

// Backend wraps an underlying authz.Backend for Passwd/Group/Home lookups
// (account provisioning still needs a source of truth) while issuing and
// validating tokens as self-contained signed JWTs.
type Backend struct {
	authz.Backend
	secret []byte
	issuer string
}

// New wraps inner with JWT-backed session issuance, signing tokens with
// HMAC-SHA256 under secret.
func New(inner authz.Backend, secret []byte, issuer string) *Backend {
	return &Backend{Backend: inner, secret: secret, issuer: issuer}
}

var (
	// ErrInvalidToken is returned when a presented token fails signature or
	// claim validation.
	ErrInvalidToken = errors.New("jwtauthz: invalid token")
)

// GenerateToken implements authz.TokenGenerator. The resulting JWT encodes
// the user's group and home so SetSession can restore a full session.Session
// without a round trip to the backing store.
func (b *Backend) GenerateToken(ctx context.Context, user string, expire time.Duration) (string, error) {
	group, err := b.Backend.Group(ctx, user)
	if err != nil {
		return "", fmt.Errorf("jwtauthz: resolve group: %w", err)
	}
	home, err := b.Backend.Home(ctx, user)
	if err != nil {
		return "", fmt.Errorf("jwtauthz: resolve home: %w", err)
	}

	now := time.Now()
	c := claims{
		Group: group,
		Home:  home,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  user,
			Issuer:   b.issuer,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if expire != 0 {
		c.ExpiresAt = jwt.NewNumericDate(now.Add(expire))
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := tok.SignedString(b.secret)
	if err != nil {
		return "", fmt.Errorf("jwtauthz: sign token: %w", err)
	}
	return signed, nil
}

// SetSession implements authz.SessionSetter, reconstructing a session.Session
// purely from the token's claims — no backend lookup is required on the
// verification path.
func (b *Backend) SetSession(_ context.Context, token string) (*session.Session, error) {
	parsed, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("jwtauthz: unexpected signing method %v", t.Header["alg"])
		}
		return b.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	c, ok := parsed.Claims.(*claims)
	if !ok {
		return nil, ErrInvalidToken
	}

	return &session.Session{
		User:   c.Subject,
		Group:  c.Group,
		Home:   c.Home,
		Token:  token,
		Status: session.StatusTokenIssued,
	}, nil
}
