// Package oauth2 implements the browser-redirect OAuth2 authorization-code
// flow as an authn.Scheme, grounded on the teacher's pkg/auth/oauth
// package (Config shape in config.go/manual.go, PKCE in pkce.go) and on
// other_examples/0a4552ef_kagent-dev-kagent__...oauth2.go.go's JWKS/OIDC
// caching style, built on golang.org/x/oauth2 (a direct teacher
// dependency via pkg/auth/remote) instead of hand-rolled token exchange.
// ID-token verification uses github.com/coreos/go-oidc/v3, the same
// relying-party verification library the teacher's go.mod carries — its
// Provider/IDTokenVerifier pair replaces a hand-rolled unverified JWT
// parse with real signature, issuer, and audience checking.
package oauth2

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/authguard/authguard/pkg/authn"
	"github.com/authguard/authguard/pkg/authz"
	"github.com/authguard/authguard/pkg/token"
)

// Errors returned by the scheme.
var (
	ErrMissingState   = errors.New("oauth2: missing or mismatched state")
	ErrSessionExpired = errors.New("oauth2: login session expired")
	ErrNoSession      = errors.New("oauth2: no established session for this token")
)

// Config configures a browser-redirect OAuth2 Scheme.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	AuthURL      string
	TokenURL     string
	Scopes       []string
	// UsePKCE enables RFC 7636 PKCE, recommended even for confidential
	// clients, matching the teacher's Config.UsePKCE default guidance.
	UsePKCE bool
	// CallbackPath records where CallbackHandler is mounted. The scheme does
	// not read it: RedirectURL is not derived from it, and requests are not
	// matched against it.
	CallbackPath string
	// LoginExpire bounds how long a pending login (state/PKCE verifier) is
	// retained before it is treated as expired.
	LoginExpire time.Duration
	// Issuer is the OIDC issuer URL used for discovery and id_token
	// verification. Required for providers that return an id_token.
	Issuer string
	// Audience overrides the expected id_token audience; defaults to
	// ClientID when unset, per the OIDC spec's usual client_id==aud case.
	Audience string
}

type pendingLogin struct {
	verifier  string
	returnTo  string
	createdAt time.Time
}

// Scheme drives the browser OAuth2 authorization-code flow. It needs an
// authz.Backend implementing TokenJoiner/TokenChecker to bind the issued
// session token to the authenticated user once the callback completes.
type Scheme struct {
	cfg     Config
	oauth   oauth2.Config
	backend authz.Backend

	mu      sync.Mutex
	pending map[string]*pendingLogin // keyed by state

	verifierMu sync.Mutex
	provider   *oidc.Provider
	verifier   *oidc.IDTokenVerifier
}

// New returns an OAuth2 Scheme.
func New(cfg Config, backend authz.Backend) *Scheme {
	if cfg.LoginExpire == 0 {
		cfg.LoginExpire = 10 * time.Minute
	}
	return &Scheme{
		cfg: cfg,
		oauth: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthURL,
				TokenURL: cfg.TokenURL,
			},
		},
		backend: backend,
		pending: make(map[string]*pendingLogin),
	}
}

// Setup implements authn.Scheme, pre-warming OIDC discovery the same way
// bearer.Scheme.Setup pre-warms its JWKS cache. A no-op when Issuer is
// unset (manual-endpoint providers with no id_token to verify).
func (s *Scheme) Setup(ctx context.Context, _ string) error {
	if s.cfg.Issuer == "" {
		return nil
	}
	return s.ensureVerifier(ctx)
}

func (s *Scheme) ensureVerifier(ctx context.Context) error {
	s.verifierMu.Lock()
	defer s.verifierMu.Unlock()
	if s.verifier != nil {
		return nil
	}

	provider, err := oidc.NewProvider(ctx, s.cfg.Issuer)
	if err != nil {
		return fmt.Errorf("oauth2: oidc discovery: %w", err)
	}
	audience := s.cfg.Audience
	if audience == "" {
		audience = s.cfg.ClientID
	}
	s.provider = provider
	s.verifier = provider.Verifier(&oidc.Config{ClientID: audience})
	return nil
}

// Challenge implements authn.Scheme by redirecting the browser to the
// authorization endpoint with a fresh state and (if enabled) a PKCE
// challenge, grounded on pkg/auth/oauth/pkce.go's GeneratePKCEParams/
// GenerateState.
func (s *Scheme) Challenge(w http.ResponseWriter, r *http.Request) authn.ChallengeResult {
	state, err := randomURLSafe(16)
	if err != nil {
		http.Error(w, "oauth2: failed to start login", http.StatusInternalServerError)
		return authn.ChallengeResult{Handled: true}
	}

	var opts []oauth2.AuthCodeOption
	verifier := ""
	if s.cfg.UsePKCE {
		verifier, err = randomURLSafe(32)
		if err != nil {
			http.Error(w, "oauth2: failed to start login", http.StatusInternalServerError)
			return authn.ChallengeResult{Handled: true}
		}
		sum := sha256.Sum256([]byte(verifier))
		challenge := base64.RawURLEncoding.EncodeToString(sum[:])
		opts = append(opts,
			oauth2.SetAuthURLParam("code_challenge", challenge),
			oauth2.SetAuthURLParam("code_challenge_method", "S256"))
	}

	s.mu.Lock()
	s.pending[state] = &pendingLogin{verifier: verifier, returnTo: r.URL.String(), createdAt: time.Now()}
	s.mu.Unlock()

	http.Redirect(w, r, s.oauth.AuthCodeURL(state, opts...), http.StatusFound)
	return authn.ChallengeResult{Handled: true}
}

// Check implements authn.Scheme, treating blob as a bare session token and
// resolving it through the backend's TokenChecker. The middleware connector
// hands Check only Authorization header/cookie values whose scheme word is
// "oauth2", prefix included; session tokens on the X-Auth-Token channel are
// resolved by the connector against the backend without calling Check.
func (s *Scheme) Check(ctx context.Context, _, _, blob string) (string, error) {
	if blob == "" {
		return "", ErrNoSession
	}
	checker, ok := s.backend.(authz.TokenChecker)
	if !ok {
		return "", ErrNoSession
	}
	user, ok, err := checker.Check(ctx, blob)
	if err != nil {
		return "", fmt.Errorf("oauth2: session check: %w", err)
	}
	if !ok {
		return "", ErrNoSession
	}
	return user, nil
}

// Name implements authn.Scheme.
func (*Scheme) Name() string { return "oauth2" }

// CallbackHandler exchanges the authorization code for a token, mints a
// session token via authz.TokenJoiner, and redirects back to the page
// that triggered the login. Mount it at cfg.CallbackPath.
func (s *Scheme) CallbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state := r.URL.Query().Get("state")
		code := r.URL.Query().Get("code")

		s.mu.Lock()
		login, ok := s.pending[state]
		if ok {
			delete(s.pending, state)
		}
		s.mu.Unlock()

		if !ok {
			http.Error(w, ErrMissingState.Error(), http.StatusBadRequest)
			return
		}
		if time.Since(login.createdAt) > s.cfg.LoginExpire {
			http.Error(w, ErrSessionExpired.Error(), http.StatusBadRequest)
			return
		}
		if code == "" {
			http.Error(w, "oauth2: missing code", http.StatusBadRequest)
			return
		}

		var opts []oauth2.AuthCodeOption
		if login.verifier != "" {
			opts = append(opts, oauth2.SetAuthURLParam("code_verifier", login.verifier))
		}

		tok, err := s.oauth.Exchange(r.Context(), code, opts...)
		if err != nil {
			http.Error(w, fmt.Sprintf("oauth2: token exchange failed: %v", err), http.StatusBadGateway)
			return
		}

		user, err := s.resolveUser(r.Context(), tok)
		if err != nil {
			http.Error(w, fmt.Sprintf("oauth2: %v", err), http.StatusUnauthorized)
			return
		}

		joiner, ok := s.backend.(authz.TokenJoiner)
		if !ok {
			http.Error(w, "oauth2: backend does not support session binding", http.StatusInternalServerError)
			return
		}
		sessionToken, err := token.Default.Generate()
		if err != nil {
			http.Error(w, "oauth2: failed to mint session token", http.StatusInternalServerError)
			return
		}
		expire := time.Until(tok.Expiry)
		if expire <= 0 {
			expire = time.Hour
		}
		if err := joiner.Join(r.Context(), user, sessionToken, expire); err != nil {
			http.Error(w, fmt.Sprintf("oauth2: failed to join session: %v", err), http.StatusInternalServerError)
			return
		}

		token.Attach(w, sessionToken, true, true)
		http.Redirect(w, r, login.returnTo, http.StatusFound)
	}
}

// resolveUser extracts a user identifier from the exchanged token. When the
// provider returns an OIDC id_token, it is verified with the provider's
// published keys (signature, issuer, and audience, via
// oidc.IDTokenVerifier.Verify) before its "sub" claim is trusted as the
// user name — an unverified id_token could be forged or replayed from a
// different audience. Providers that never issue an id_token fall back to
// the opaque access token as the identity pointer.
func (s *Scheme) resolveUser(ctx context.Context, tok *oauth2.Token) (string, error) {
	if idToken, ok := tok.Extra("id_token").(string); ok && idToken != "" {
		if err := s.ensureVerifier(ctx); err != nil {
			return "", fmt.Errorf("oauth2: id_token verification unavailable: %w", err)
		}
		verified, err := s.verifier.Verify(ctx, idToken)
		if err != nil {
			return "", fmt.Errorf("oauth2: id_token verification failed: %w", err)
		}
		var claims struct {
			Subject string `json:"sub"`
		}
		if err := verified.Claims(&claims); err != nil || claims.Subject == "" {
			return "", errors.New("oauth2: id_token missing sub claim")
		}
		return claims.Subject, nil
	}
	if tok.AccessToken == "" {
		return "", errors.New("oauth2: token response missing access_token")
	}
	return tok.AccessToken, nil
}

func randomURLSafe(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("oauth2: generate random value: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
