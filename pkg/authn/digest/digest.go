// Package digest implements HTTP Digest authentication (RFC 2617/7616) as
// an authn.Scheme, grounded directly on
// other_examples/78a5af15_mutineer-go-http-auth__digest.go.go: a
// nonce-keyed client table guarded by a mutex, qop=auth only, and the
// same HA1/HA2/response digest chain, adapted to use pkg/hash's registry
// instead of a fixed two-algorithm map so Digest can ride any of the
// hash.Registry entries (spec §4.1's C1 hash abstraction).
package digest

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/authguard/authguard/pkg/authn"
	"github.com/authguard/authguard/pkg/authz"
	"github.com/authguard/authguard/pkg/hash"
	"github.com/authguard/authguard/pkg/logger"
)

// Errors returned by Check.
var (
	ErrNoAuthHeader     = errors.New("digest: missing Authorization header")
	ErrUnknownNonce     = errors.New("digest: unknown or expired nonce")
	ErrStaleNonceCount  = errors.New("digest: stale nonce count")
	ErrResponseMismatch = errors.New("digest: response mismatch")
	ErrUnsupportedAlgo  = errors.New("digest: unsupported algorithm")
)

type clientState struct {
	nc       uint64
	lastSeen int64
}

// Scheme implements RFC 2617 Digest authentication.
type Scheme struct {
	Realm   string
	Algo    string
	Backend authz.Backend

	opaque string

	mu      sync.Mutex
	clients map[string]*clientState
}

// New returns a Digest Scheme. algo selects the hash from pkg/hash's
// registry (falling back to its default, per §4.1's resolution policy).
func New(realm, algo string, backend authz.Backend) *Scheme {
	if _, known := hash.Lookup(algo); algo != "" && !known {
		logger.Warnf("digest: unknown algorithm %q, falling back to %s (available: %s)",
			algo, hash.DefaultName, strings.Join(hash.Names(), ", "))
	}
	entry, ok := hash.Resolve(algo)
	if !ok {
		entry, _ = hash.Resolve(hash.DefaultName)
	}
	return &Scheme{
		Realm:   realm,
		Algo:    entry.Name,
		Backend: backend,
		opaque:  randomNonce(),
		clients: make(map[string]*clientState),
	}
}

func randomNonce() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand.Read on a correctly sized buffer does not fail in
		// practice; panicking here would be worse than a predictable
		// nonce collision, so fall back to a timestamp-derived value.
		return fmt.Sprintf("%x", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf)
}

// Setup implements authn.Scheme.
func (*Scheme) Setup(context.Context, string) error { return nil }

// Challenge implements authn.Scheme, issuing a fresh nonce.
func (s *Scheme) Challenge(w http.ResponseWriter, _ *http.Request) authn.ChallengeResult {
	nonce := randomNonce()
	s.mu.Lock()
	s.clients[nonce] = &clientState{lastSeen: time.Now().UnixNano()}
	s.mu.Unlock()

	w.Header().Set("WWW-Authenticate", fmt.Sprintf(
		`Digest realm=%q, nonce=%q, opaque=%q, algorithm=%s, qop="auth"`,
		s.Realm, nonce, s.opaque, s.Algo))
	return authn.ChallengeResult{}
}

// Check implements authn.Scheme. blob is the full Authorization header
// value, "Digest <param list>".
func (s *Scheme) Check(ctx context.Context, method, uri, blob string) (string, error) {
	params := parseParams(blob)
	if params == nil {
		return "", ErrNoAuthHeader
	}
	if params["opaque"] != s.opaque || params["qop"] != "auth" {
		return "", ErrNoAuthHeader
	}

	entry, ok := hash.Lookup(strings.ToLower(params["algorithm"]))
	if !ok {
		entry, ok = hash.Resolve(s.Algo)
		if !ok {
			return "", ErrUnsupportedAlgo
		}
	}
	sum := func(data string) string {
		h := entry.New()
		h.Write([]byte(data))
		return hex.EncodeToString(h.Sum(nil))
	}

	requestURI := params["uri"]
	if requestURI == "" {
		return "", ErrResponseMismatch
	}
	if u := uri; u != requestURI {
		parsed, err := url.Parse(requestURI)
		if err != nil || !strings.HasPrefix(u, parsed.Path) {
			return "", ErrResponseMismatch
		}
	}

	user := params["username"]
	secret, exists, err := s.Backend.Passwd(ctx, user)
	if err != nil {
		return "", fmt.Errorf("digest: passwd lookup: %w", err)
	}
	if !exists {
		return "", ErrResponseMismatch
	}

	ha1 := secret
	ha2 := sum(method + ":" + requestURI)
	expected := sum(strings.Join([]string{ha1, params["nonce"], params["nc"], params["cnonce"], params["qop"], ha2}, ":"))

	if subtle.ConstantTimeCompare([]byte(expected), []byte(params["response"])) != 1 {
		return "", ErrResponseMismatch
	}

	nc, err := strconv.ParseUint(params["nc"], 16, 64)
	if err != nil {
		return "", ErrStaleNonceCount
	}

	s.mu.Lock()
	client, ok := s.clients[params["nonce"]]
	if !ok {
		s.mu.Unlock()
		return "", ErrUnknownNonce
	}
	if client.nc != 0 && client.nc >= nc {
		s.mu.Unlock()
		return "", ErrStaleNonceCount
	}
	client.nc = nc
	client.lastSeen = time.Now().UnixNano()
	s.mu.Unlock()

	return user, nil
}

// Name implements authn.Scheme.
func (*Scheme) Name() string { return "Digest" }

// parseParams parses a "Digest k1=\"v1\", k2=v2" Authorization value into
// a key/value map, or nil if it isn't a Digest header.
func parseParams(blob string) map[string]string {
	const prefix = "Digest "
	if !strings.HasPrefix(blob, prefix) {
		return nil
	}
	rest := strings.TrimPrefix(blob, prefix)

	out := make(map[string]string)
	for _, part := range strings.Split(rest, ",") {
		part = strings.TrimSpace(part)
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		out[strings.TrimSpace(k)] = strings.Trim(strings.TrimSpace(v), `"`)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
