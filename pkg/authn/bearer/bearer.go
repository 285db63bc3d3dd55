// Package bearer implements RFC 6750 Bearer token authentication as an
// authn.Scheme, validating JWTs against a JWKS endpoint with
// github.com/golang-jwt/jwt/v5 and github.com/lestrrat-go/jwx/v3/jwk,
// grounded directly on the teacher's Validator
// (pkg/auth/token/validator.go: NewValidator/ValidateToken/
// ensureJWKSRegistered/getKeyFromJWKS), simplified to a single JWKS source
// plus an opaque-token fallback through the authz.Backend's optional
// TokenChecker instead of the teacher's pluggable introspector registry.
package bearer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/httprc/v3"
	"github.com/lestrrat-go/jwx/v3/jwk"

	"github.com/authguard/authguard/pkg/authn"
	"github.com/authguard/authguard/pkg/authz"
)

// Errors returned by Check.
var (
	ErrNoBearerToken = errors.New("bearer: missing or malformed Authorization header")
	ErrInvalidToken  = errors.New("bearer: invalid token")
	ErrInvalidIssuer = errors.New("bearer: invalid issuer")
)

// Config configures a Bearer Scheme.
type Config struct {
	Realm    string
	Issuer   string
	Audience string
	JWKSURL  string
	// ResourceURL is advertised via RFC 9728 protected-resource metadata.
	ResourceURL string
}

// Scheme validates Bearer tokens as JWTs verified against a JWKS cache,
// falling back to the backend's TokenChecker for opaque tokens when the
// backend implements authz.TokenChecker.
type Scheme struct {
	cfg     Config
	backend authz.Backend

	jwksMu       sync.Mutex
	jwksRegistry bool
	jwksCache    *jwk.Cache
}

// New returns a Bearer Scheme. The JWKS cache is created lazily on first
// use (Setup or the first Check) so construction never makes network
// calls.
func New(cfg Config, backend authz.Backend) *Scheme {
	return &Scheme{cfg: cfg, backend: backend}
}

// Setup implements authn.Scheme, pre-warming the JWKS cache registration.
func (s *Scheme) Setup(ctx context.Context, _ string) error {
	if s.cfg.JWKSURL == "" {
		return nil
	}
	return s.ensureJWKS(ctx)
}

func (s *Scheme) ensureJWKS(ctx context.Context) error {
	s.jwksMu.Lock()
	defer s.jwksMu.Unlock()
	if s.jwksRegistry {
		return nil
	}

	client := httprc.NewClient()
	cache, err := jwk.NewCache(ctx, client)
	if err != nil {
		return fmt.Errorf("bearer: create jwks cache: %w", err)
	}
	registerCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := cache.Register(registerCtx, s.cfg.JWKSURL); err != nil {
		return fmt.Errorf("bearer: register jwks url: %w", err)
	}

	s.jwksCache = cache
	s.jwksRegistry = true
	return nil
}

// Challenge implements authn.Scheme, writing a Bearer WWW-Authenticate
// header plus the RFC 9728 resource_metadata pointer when configured.
func (s *Scheme) Challenge(w http.ResponseWriter, _ *http.Request) authn.ChallengeResult {
	value := fmt.Sprintf(`Bearer realm=%q`, s.cfg.Realm)
	if s.cfg.ResourceURL != "" {
		value += fmt.Sprintf(`, resource_metadata=%q`, s.cfg.ResourceURL+"/.well-known/oauth-protected-resource")
	}
	w.Header().Set("WWW-Authenticate", value)
	return authn.ChallengeResult{WWWAuthenticate: value}
}

// Check implements authn.Scheme. blob is the full Authorization header
// value, "Bearer <token>".
func (s *Scheme) Check(ctx context.Context, _, _, blob string) (string, error) {
	const prefix = "Bearer "
	if !strings.HasPrefix(blob, prefix) {
		return "", ErrNoBearerToken
	}
	tokenString := strings.TrimSpace(strings.TrimPrefix(blob, prefix))
	if tokenString == "" {
		return "", ErrNoBearerToken
	}

	if s.cfg.JWKSURL != "" {
		user, err := s.checkJWT(ctx, tokenString)
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, jwt.ErrTokenMalformed) {
			if checker, ok := s.backend.(authz.TokenChecker); ok {
				if user, ok2, cerr := checker.Check(ctx, tokenString); cerr == nil && ok2 {
					return user, nil
				}
			}
			return "", err
		}
	}

	checker, ok := s.backend.(authz.TokenChecker)
	if !ok {
		return "", ErrInvalidToken
	}
	user, ok, err := checker.Check(ctx, tokenString)
	if err != nil {
		return "", fmt.Errorf("bearer: opaque token check: %w", err)
	}
	if !ok {
		return "", ErrInvalidToken
	}
	return user, nil
}

func (s *Scheme) checkJWT(ctx context.Context, tokenString string) (string, error) {
	if err := s.ensureJWKS(ctx); err != nil {
		return "", err
	}

	parsed, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("bearer: unexpected signing method %v", t.Header["alg"])
		}
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, fmt.Errorf("bearer: token missing kid")
		}
		keySet, err := s.jwksCache.Lookup(ctx, s.cfg.JWKSURL)
		if err != nil {
			return nil, fmt.Errorf("bearer: jwks lookup: %w", err)
		}
		key, found := keySet.LookupKeyID(kid)
		if !found {
			return nil, fmt.Errorf("bearer: key id %s not found", kid)
		}
		var raw interface{}
		if err := jwk.Export(key, &raw); err != nil {
			return nil, fmt.Errorf("bearer: export key: %w", err)
		}
		return raw, nil
	})
	if err != nil {
		return "", err
	}
	if !parsed.Valid {
		return "", ErrInvalidToken
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}

	if s.cfg.Issuer != "" {
		iss, _ := claims.GetIssuer()
		if iss != s.cfg.Issuer {
			return "", ErrInvalidIssuer
		}
	}
	if s.cfg.Audience != "" {
		auds, _ := claims.GetAudience()
		found := false
		for _, a := range auds {
			if a == s.cfg.Audience {
				found = true
				break
			}
		}
		if !found {
			return "", ErrInvalidIssuer
		}
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return "", ErrInvalidToken
	}
	return sub, nil
}

// Name implements authn.Scheme.
func (*Scheme) Name() string { return "Bearer" }

// ProtectedResourceMetadata returns the RFC 9728 discovery document body
// for mounting at /.well-known/oauth-protected-resource.
func (s *Scheme) ProtectedResourceMetadata() map[string]any {
	return map[string]any{
		"resource":               s.cfg.ResourceURL,
		"authorization_servers":  []string{s.cfg.Issuer},
		"bearer_methods_supported": []string{"header"},
	}
}
