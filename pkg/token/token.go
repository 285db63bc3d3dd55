// Package token implements the opaque session-token lifecycle of spec
// component C4: generation, and attachment to the response on the
// configured channel (header or cookie).
package token

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/http"
)

// ByteLength is the width of the random token payload (192 bits of
// entropy, per spec invariant I4).
const ByteLength = 24

// HeaderName is the header used both to read an incoming token and to
// attach a freshly minted one.
const HeaderName = "X-Auth-Token"

// CookieName is the cookie used for the same purpose when the cookie
// channel is enabled.
const CookieName = "X-Auth-Token"

// Generator mints opaque session tokens. The default implementation uses
// a CSPRNG; a JWT-backed authz driver mints signed claims blobs through
// authz.TokenGenerator instead (spec §4.4 "JWT path").
type Generator interface {
	Generate() (string, error)
}

// randGenerator is the default token.Generator: 24 random bytes encoded as
// URL-safe base64 with no padding, matching invariant I4 exactly.
type randGenerator struct{}

// Default is the process-wide default Generator. It is stateless and safe
// for concurrent use — crypto/rand requires no seeding, unlike the
// seeded-PRNG approach the spec's design notes explicitly warn against.
var Default Generator = randGenerator{}

// Generate implements Generator.
func (randGenerator) Generate() (string, error) {
	buf := make([]byte, ByteLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Attach places tok on the response using the requested channels. At least
// one of header/cookie should be true; if both are set, both the header
// and the cookie are written so either can be read back later.
func Attach(w http.ResponseWriter, tok string, header, cookie bool) {
	if header {
		w.Header().Set(HeaderName, tok)
	}
	if cookie {
		http.SetCookie(w, &http.Cookie{
			Name:     CookieName,
			Value:    tok,
			Path:     "/",
			HttpOnly: true,
			Secure:   true,
			SameSite: http.SameSiteLaxMode,
		})
	}
}

// Extract reads a token from the request on the configured channel(s),
// header taking precedence over cookie when both are enabled (spec §4.4
// "Input channels").
func Extract(r *http.Request, header, cookie bool) string {
	if header {
		if v := r.Header.Get(HeaderName); v != "" {
			return v
		}
	}
	if cookie {
		if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
			return c.Value
		}
	}
	return ""
}
