package middleware

import (
	"context"
	"net"
	"sync"

	"github.com/authguard/authguard/pkg/logger"
	"github.com/authguard/authguard/pkg/session"
)

// ClientState is the per-connection connector state the spec calls
// ClientCtx: a lazily-allocated authsession plus its guarding mutex. It is
// attached once per TCP connection via Module.ConnContext (wired into
// http.Server.ConnContext) so that invariant I1 — "subsequent requests on
// an already-authenticated connection are admitted without reverifying" —
// holds across the connection's keep-alive lifetime, matching the
// teacher's general practice of connection-scoped state
// (pkg/auth/context.go's per-request context values, extended here to
// per-connection since net/http has no native per-connection request
// value store of its own).
type ClientState struct {
	mu      sync.Mutex
	Session *session.Session
}

// Get returns the attached session, if any, and whether one is set.
func (c *ClientState) Get() (*session.Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Session, c.Session != nil
}

// Set attaches a session to the connection, implementing I1.
func (c *ClientState) Set(s *session.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Session = s
}

type clientStateKey struct{}

// ConnContext should be assigned to http.Server.ConnContext so each
// accepted connection gets its own ClientState, mirroring the spec's
// per-client attach step (§4.5 "Per-client attach"). It does not invoke
// authn.Scheme.Setup; use Module.ConnContext for a fully wired server.
func ConnContext(ctx context.Context, _ net.Conn) context.Context {
	return context.WithValue(ctx, clientStateKey{}, &ClientState{})
}

// ConnContext is the method a real server should assign to
// http.Server.ConnContext: it allocates the connection's ClientState and
// then calls authn.Scheme.Setup (§4.5 "Per-client attach… after connector
// registration, before the first request"), so the bearer scheme's JWKS
// pre-warm, the oauth2 scheme's OIDC discovery, etc. run once per
// connection rather than lazily inside the first request. Setup failures
// are logged and non-fatal; bearer retries on its next Check, oauth2 on
// its next callback exchange.
func (m *Module) ConnContext(ctx context.Context, c net.Conn) context.Context {
	ctx = ConnContext(ctx, c)
	if err := m.cfg.Scheme.Setup(ctx, c.RemoteAddr().String()); err != nil {
		logger.Warnf("middleware: scheme setup failed for %s: %v", c.RemoteAddr(), err)
	}
	return ctx
}

// clientStateFromContext returns the connection's ClientState, falling
// back to a throwaway per-request instance when the server wasn't wired
// with ConnContext (e.g. in unit tests using httptest directly against
// the handler) — in that degraded mode I1 only holds within the single
// request, which is documented here rather than silently assumed.
func clientStateFromContext(ctx context.Context) *ClientState {
	if cs, ok := ctx.Value(clientStateKey{}).(*ClientState); ok {
		return cs
	}
	return &ClientState{}
}
