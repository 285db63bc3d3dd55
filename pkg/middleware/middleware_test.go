package middleware_test

import (
	"context"
	"encoding/base64"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authguard/authguard/pkg/authn/basic"
	"github.com/authguard/authguard/pkg/authz"
	"github.com/authguard/authguard/pkg/authz/simple"
	"github.com/authguard/authguard/pkg/middleware"
	"github.com/authguard/authguard/pkg/session"
)

func basicAuthHeader(user, pass string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+pass))
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func withConn(req *http.Request) *http.Request {
	ctx := middleware.ConnContext(req.Context(), nil)
	return req.WithContext(ctx)
}

// Scenario 1: Basic, no token.
func TestScenario1_BasicNoToken(t *testing.T) {
	t.Parallel()
	backend := simple.New(map[string]simple.Account{"alice": {Passwd: "secret"}})
	scheme := basic.New("test", backend)
	m, err := middleware.New(middleware.Config{
		Backend: backend, Scheme: scheme, HeaderEnabled: true, Protect: "*",
	})
	require.NoError(t, err)

	req := withConn(httptest.NewRequest(http.MethodGet, "/x", nil))
	req.Header.Set("Authorization", basicAuthHeader("alice", "secret"))
	rec := httptest.NewRecorder()
	m.Handler()(okHandler()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice", rec.Header().Get("X-Remote-User"))
}

// Scenario 2: Challenge.
func TestScenario2_Challenge(t *testing.T) {
	t.Parallel()
	backend := simple.New(map[string]simple.Account{"alice": {Passwd: "secret"}})
	scheme := basic.New("test", backend)
	m, err := middleware.New(middleware.Config{Backend: backend, Scheme: scheme, Protect: "*"})
	require.NoError(t, err)

	req := withConn(httptest.NewRequest(http.MethodGet, "/x", nil))
	rec := httptest.NewRecorder()
	m.Handler()(okHandler()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Basic")
}

// Scenario 3: XHR.
func TestScenario3_XHRForbidden(t *testing.T) {
	t.Parallel()
	backend := simple.New(map[string]simple.Account{"alice": {Passwd: "secret"}})
	scheme := basic.New("test", backend)
	m, err := middleware.New(middleware.Config{Backend: backend, Scheme: scheme, Protect: "*"})
	require.NoError(t, err)

	req := withConn(httptest.NewRequest(http.MethodGet, "/x", nil))
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	rec := httptest.NewRecorder()
	m.Handler()(okHandler()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

// Scenario 4: Login redirect.
func TestScenario4_LoginRedirect(t *testing.T) {
	t.Parallel()
	backend := simple.New(map[string]simple.Account{"alice": {Passwd: "secret"}})
	scheme := basic.New("test", backend)
	m, err := middleware.New(middleware.Config{
		Backend: backend, Scheme: scheme, Protect: "*", Redirect: "/login",
	})
	require.NoError(t, err)

	req := withConn(httptest.NewRequest(http.MethodGet, "/x", nil))
	rec := httptest.NewRecorder()
	m.Handler()(okHandler()).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))

	loginReq := withConn(httptest.NewRequest(http.MethodGet, "/login", nil))
	loginRec := httptest.NewRecorder()
	m.Handler()(okHandler()).ServeHTTP(loginRec, loginReq)
	assert.Equal(t, http.StatusOK, loginRec.Code)
}

// Scenario 5: Token reuse across a new connection.
func TestScenario5_TokenReuse(t *testing.T) {
	t.Parallel()
	backend := simple.New(map[string]simple.Account{"alice": {Passwd: "secret"}})
	scheme := basic.New("test", backend)
	m, err := middleware.New(middleware.Config{
		Backend: backend, Scheme: scheme, Protect: "*",
		TokenEnabled: true, HeaderEnabled: true,
	})
	require.NoError(t, err)

	first := withConn(httptest.NewRequest(http.MethodGet, "/x", nil))
	first.Header.Set("Authorization", basicAuthHeader("alice", "secret"))
	firstRec := httptest.NewRecorder()
	m.Handler()(okHandler()).ServeHTTP(firstRec, first)
	require.Equal(t, http.StatusOK, firstRec.Code)
	tok := firstRec.Header().Get("X-Auth-Token")
	require.NotEmpty(t, tok)

	second := withConn(httptest.NewRequest(http.MethodGet, "/x", nil))
	second.Header.Set("X-Auth-Token", tok)
	secondRec := httptest.NewRecorder()
	m.Handler()(okHandler()).ServeHTTP(secondRec, second)
	assert.Equal(t, http.StatusOK, secondRec.Code)
	assert.Equal(t, "alice", secondRec.Header().Get("X-Remote-User"))
}

// Scenario 6: Home redirect.
func TestScenario6_HomeRedirect(t *testing.T) {
	t.Parallel()
	backend := simple.New(map[string]simple.Account{"alice": {Passwd: "secret", Home: "/u/alice"}})
	scheme := basic.New("test", backend)
	m, err := middleware.New(middleware.Config{
		Backend: backend, Scheme: scheme, Protect: "*", HomeEnabled: true, HeaderEnabled: true,
	})
	require.NoError(t, err)

	connCtx := middleware.ConnContext(context.Background(), nil)

	first := httptest.NewRequest(http.MethodGet, "/x", nil).WithContext(connCtx)
	first.Header.Set("Authorization", basicAuthHeader("alice", "secret"))
	firstRec := httptest.NewRecorder()
	h := m.Handler()(okHandler())
	h.ServeHTTP(firstRec, first)
	require.Equal(t, http.StatusOK, firstRec.Code)

	second := httptest.NewRequest(http.MethodGet, "/", nil).WithContext(connCtx)
	secondRec := httptest.NewRecorder()
	h.ServeHTTP(secondRec, second)
	assert.Equal(t, http.StatusMovedPermanently, secondRec.Code)
	assert.Equal(t, "/u/alice/", secondRec.Header().Get("Location"))

	third := httptest.NewRequest(http.MethodGet, "/u/alice/index", nil).WithContext(connCtx)
	thirdRec := httptest.NewRecorder()
	h.ServeHTTP(thirdRec, third)
	assert.Equal(t, http.StatusOK, thirdRec.Code)
}

// P1: once authenticated on a connection, subsequent requests skip
// reverification entirely.
func TestP1_AdmittedWithoutReverification(t *testing.T) {
	t.Parallel()
	backend := simple.New(map[string]simple.Account{"alice": {Passwd: "secret"}})
	scheme := basic.New("test", backend)
	m, err := middleware.New(middleware.Config{Backend: backend, Scheme: scheme, Protect: "*", HeaderEnabled: true})
	require.NoError(t, err)

	connCtx := middleware.ConnContext(context.Background(), nil)
	h := m.Handler()(okHandler())

	first := httptest.NewRequest(http.MethodGet, "/x", nil).WithContext(connCtx)
	first.Header.Set("Authorization", basicAuthHeader("alice", "secret"))
	h.ServeHTTP(httptest.NewRecorder(), first)

	second := httptest.NewRequest(http.MethodGet, "/y", nil).WithContext(connCtx)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, second)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice", rec.Header().Get("X-Remote-User"))
}

// P2: unprotected paths admit anonymously.
func TestP2_UnprotectedPathAdmitted(t *testing.T) {
	t.Parallel()
	backend := simple.New(nil)
	scheme := basic.New("test", backend)
	m, err := middleware.New(middleware.Config{
		Backend: backend, Scheme: scheme, Protect: "/private/*", Unprotect: "",
	})
	require.NoError(t, err)

	req := withConn(httptest.NewRequest(http.MethodGet, "/public", nil))
	rec := httptest.NewRecorder()
	m.Handler()(okHandler()).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestP2_UnprotectOverridesProtect(t *testing.T) {
	t.Parallel()
	backend := simple.New(nil)
	scheme := basic.New("test", backend)
	m, err := middleware.New(middleware.Config{
		Backend: backend, Scheme: scheme, Protect: "*", Unprotect: "/health",
	})
	require.NoError(t, err)

	req := withConn(httptest.NewRequest(http.MethodGet, "/health", nil))
	rec := httptest.NewRecorder()
	m.Handler()(okHandler()).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

// P3: TokenEnabled implies every admitted response carries the token.
func TestP3_TokenAlwaysAttached(t *testing.T) {
	t.Parallel()
	backend := simple.New(map[string]simple.Account{"alice": {Passwd: "secret"}})
	scheme := basic.New("test", backend)
	m, err := middleware.New(middleware.Config{
		Backend: backend, Scheme: scheme, Protect: "*", TokenEnabled: true, HeaderEnabled: true,
	})
	require.NoError(t, err)

	req := withConn(httptest.NewRequest(http.MethodGet, "/x", nil))
	req.Header.Set("Authorization", basicAuthHeader("alice", "secret"))
	rec := httptest.NewRecorder()
	m.Handler()(okHandler()).ServeHTTP(rec, req)
	assert.NotEmpty(t, rec.Header().Get("X-Auth-Token"))
}

// I3: TOKEN_E is cleared when the backend supports neither join nor
// generatetoken.
func TestI3_TokenDisabledWithoutCapableBackend(t *testing.T) {
	t.Parallel()
	// Embedding only the authz.Backend interface hides simple.Backend's
	// Join/Check, so this backend implements neither TokenJoiner nor
	// TokenGenerator.
	inner := simple.New(map[string]simple.Account{"alice": {Passwd: "secret"}})
	backend := struct{ authz.Backend }{inner}
	scheme := basic.New("test", backend)
	m, err := middleware.New(middleware.Config{
		Backend: backend, Scheme: scheme, Protect: "*", TokenEnabled: true, HeaderEnabled: true,
	})
	require.NoError(t, err)

	req := withConn(httptest.NewRequest(http.MethodGet, "/x", nil))
	req.Header.Set("Authorization", basicAuthHeader("alice", "secret"))
	rec := httptest.NewRecorder()
	m.Handler()(okHandler()).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("X-Auth-Token"))
}

// P5: XHR requests never receive a redirect.
func TestP5_XHRNeverRedirects(t *testing.T) {
	t.Parallel()
	backend := simple.New(nil)
	scheme := basic.New("test", backend)
	m, err := middleware.New(middleware.Config{
		Backend: backend, Scheme: scheme, Protect: "*", Redirect: "/login",
	})
	require.NoError(t, err)

	req := withConn(httptest.NewRequest(http.MethodGet, "/x", nil))
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	rec := httptest.NewRecorder()
	m.Handler()(okHandler()).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

// P7: home connector never redirects WebSocket upgrades.
func TestP7_HomeSkipsWebSocketUpgrade(t *testing.T) {
	t.Parallel()
	backend := simple.New(map[string]simple.Account{"alice": {Passwd: "secret", Home: "/u/alice"}})
	scheme := basic.New("test", backend)
	m, err := middleware.New(middleware.Config{
		Backend: backend, Scheme: scheme, Protect: "*", HomeEnabled: true,
	})
	require.NoError(t, err)

	connCtx := middleware.ConnContext(context.Background(), nil)
	h := m.Handler()(okHandler())

	first := httptest.NewRequest(http.MethodGet, "/x", nil).WithContext(connCtx)
	first.Header.Set("Authorization", basicAuthHeader("alice", "secret"))
	h.ServeHTTP(httptest.NewRecorder(), first)

	ws := httptest.NewRequest(http.MethodGet, "/anywhere", nil).WithContext(connCtx)
	ws.Header.Set("Sec-WebSocket-Version", "13")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, ws)
	assert.Equal(t, http.StatusOK, rec.Code)
}

// setupRecordingScheme wraps a real authn.Scheme and records whether Setup
// was invoked, so Module.ConnContext's wiring can be asserted directly.
type setupRecordingScheme struct {
	*basic.Scheme
	setupCalled bool
}

func (s *setupRecordingScheme) Setup(ctx context.Context, peerAddr string) error {
	s.setupCalled = true
	return s.Scheme.Setup(ctx, peerAddr)
}

// C5: Module.ConnContext invokes authn.Scheme.Setup once per accepted
// connection (spec §4.5 "per-client attach").
func TestModuleConnContext_InvokesSchemeSetup(t *testing.T) {
	t.Parallel()
	backend := simple.New(map[string]simple.Account{"alice": {Passwd: "secret"}})
	scheme := &setupRecordingScheme{Scheme: basic.New("test", backend)}
	m, err := middleware.New(middleware.Config{
		Backend: backend, Scheme: scheme, Protect: "*",
	})
	require.NoError(t, err)

	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	m.ConnContext(context.Background(), server)
	assert.True(t, scheme.setupCalled)
}

// §4.6.2 S4: admitted-but-unauthenticated requests attach
// Config.AnonymousUser to the session slot instead of leaving it unset.
func TestAdmitAnonymously_AttachesConfiguredUser(t *testing.T) {
	t.Parallel()
	backend := simple.New(nil)
	scheme := basic.New("test", backend)
	m, err := middleware.New(middleware.Config{
		Backend: backend, Scheme: scheme, Protect: "/secret/*", AnonymousUser: "guest",
	})
	require.NoError(t, err)

	var gotUser string
	h := m.Handler()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if sess, ok := session.FromContext(r.Context()); ok {
			gotUser = sess.User
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := withConn(httptest.NewRequest(http.MethodGet, "/public", nil))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "guest", gotUser)
}
