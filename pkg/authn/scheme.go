// Package authn defines the pluggable authentication scheme interface
// (spec component C3) implemented by none/basic/digest/bearer/oauth2.
package authn

import (
	"context"
	"net/http"
)

// ChallengeResult reports what a Scheme's Challenge wrote to the response
// and whether the connector should stop processing the request itself
// (e.g. a redirect or a completed OAuth2 callback exchange already sent a
// response body).
type ChallengeResult struct {
	// Handled is true when Challenge fully wrote the response itself and
	// the connector must not write anything further.
	Handled bool
	// WWWAuthenticate, when non-empty, is attached by the connector to a
	// 401 response the scheme did not write itself.
	WWWAuthenticate string
}

// Scheme is an authentication scheme driver (spec §4.3). Setup is called
// once per accepted client connection when a scheme needs to initialize
// per-peer state (none of the five built-in schemes currently require
// this, but digest's nonce table is keyed globally rather than per-peer so
// the hook exists for future per-connection schemes); most schemes accept
// peerAddr and return nil.
type Scheme interface {
	// Setup prepares per-client state. Most schemes no-op.
	Setup(ctx context.Context, peerAddr string) error
	// Challenge writes whatever response headers/body are needed to prompt
	// the client for credentials (a WWW-Authenticate header, or a redirect
	// to an identity provider for OAuth2).
	Challenge(w http.ResponseWriter, r *http.Request) ChallengeResult
	// Check validates a credential blob extracted from the request
	// (the raw Authorization header value, or a bearer token string) and
	// returns the authenticated user name.
	Check(ctx context.Context, method, uri, blob string) (user string, err error)
	// Name identifies the scheme for logging and for the WWW-Authenticate
	// scheme token.
	Name() string
}
