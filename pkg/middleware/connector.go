package middleware

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/authguard/authguard/pkg/authz"
	"github.com/authguard/authguard/pkg/logger"
	"github.com/authguard/authguard/pkg/session"
	"github.com/authguard/authguard/pkg/token"
)

// authnConnector implements the §4.6.2 request connector state machine
// (S0-S5) as a chainable http.Handler wrapper, grounded on the teacher's
// auth middleware shape (pkg/auth/middleware/auth.go) generalized from a
// single JWT check to the full scheme/backend driver pair.
func (m *Module) authnConnector(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cs := clientStateFromContext(r.Context())

		// S0 Entry: invariant I1 — already authenticated on this
		// connection, skip reverification entirely.
		if sess, ok := cs.Get(); ok {
			m.attachIdentity(w, sess)
			r = r.WithContext(session.WithSession(r.Context(), sess))
			next.ServeHTTP(w, r)
			return
		}

		// S1 Logout check (Open Question #2, gated by EnableLogoutHeader).
		if m.cfg.EnableLogoutHeader && r.Header.Get("WWW-Authenticate") != "" {
			cs.Set(nil)
			w.WriteHeader(http.StatusOK)
			return
		}

		decodedPath, err := url.PathUnescape(r.URL.Path)
		if err != nil {
			decodedPath = r.URL.Path
		}

		// S2 Extract credential.
		blob, channel := m.extractCredential(r)

		// S3 Verify. The token channel (X-Auth-Token header/cookie, §4.4) is
		// never re-run through the scheme driver: a bare token carries none
		// of a scheme's expected prefix ("Basic ", "Digest ", "Bearer ") and
		// Scheme.Check would always reject it. It is resolved directly
		// against the backend's TokenChecker/SessionSetter instead.
		if blob != "" {
			var sess *session.Session
			var err error
			if channel == "token" {
				sess, err = m.verifyToken(r, blob)
			} else {
				method := r.Method
				if m.cfg.AllowRedirectHEADSubstitution && m.cfg.Redirect != "" {
					method = http.MethodHead
				}
				var user string
				user, err = m.cfg.Scheme.Check(r.Context(), method, r.URL.RequestURI(), blob)
				if err == nil && user != "" {
					sess, err = m.buildSession(r, user)
				}
			}

			if err != nil {
				logger.Debugf("middleware: authn check failed: %v", err)
			} else if sess != nil {
				cs.Set(sess)
				m.attachIdentity(w, sess)
				if m.cfg.UnixEnabled {
					impersonate(sess.User)
				}
				r = r.WithContext(session.WithSession(r.Context(), sess))
				next.ServeHTTP(w, r)
				return
			}
		}

		// S4 Protection check. Admitted-but-unauthenticated requests still
		// get an (anonymous) session slot per §4.6.2's "On authentication
		// success (or unprotected), the connector stores info in the
		// request's session slot."
		if !m.protect.Match(decodedPath) {
			m.admitAnonymously(w, r, next)
			return
		}
		if m.unprotect != nil && m.unprotect.Match(decodedPath) {
			m.admitAnonymously(w, r, next)
			return
		}

		// S5 Challenge.
		m.challenge(w, r, next)
	})
}

// admitAnonymously continues the chain, attaching Config.AnonymousUser (if
// set) to the request's session slot so downstream handlers can still read
// an identity for admitted-but-unauthenticated requests.
func (m *Module) admitAnonymously(w http.ResponseWriter, r *http.Request, next http.Handler) {
	if m.cfg.AnonymousUser != "" {
		sess := &session.Session{User: m.cfg.AnonymousUser, Type: "anonymous"}
		r = r.WithContext(session.WithSession(r.Context(), sess))
	}
	next.ServeHTTP(w, r)
}

// verifyToken resolves the token channel's credential directly against the
// backend (spec §4.4), bypassing the scheme driver entirely: a
// SessionSetter-capable backend (the JWT backend) reconstructs the full
// session from the token's own claims, otherwise a TokenChecker-capable
// backend resolves the user and the session is built the normal way.
func (m *Module) verifyToken(r *http.Request, tok string) (*session.Session, error) {
	if setter, ok := m.cfg.Backend.(authz.SessionSetter); ok {
		sess, err := setter.SetSession(r.Context(), tok)
		if err == nil {
			return sess, nil
		}
		logger.Debugf("middleware: setsession failed, falling back to tokenchecker: %v", err)
	}

	checker, ok := m.cfg.Backend.(authz.TokenChecker)
	if !ok {
		return nil, errors.New("middleware: backend does not support token verification")
	}
	user, ok, err := checker.Check(r.Context(), tok)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.New("middleware: unknown or expired token")
	}

	group, err := m.cfg.Backend.Group(r.Context(), user)
	if err != nil {
		logger.Warnf("middleware: group lookup failed for %s: %v", user, err)
	}
	home, err := m.cfg.Backend.Home(r.Context(), user)
	if err != nil {
		logger.Warnf("middleware: home lookup failed for %s: %v", user, err)
	}

	return &session.Session{
		User:   user,
		Group:  group,
		Home:   home,
		Type:   m.cfg.Scheme.Name(),
		Token:  tok,
		Status: session.StatusTokenIssued,
	}, nil
}

// extractCredential implements S2's preference order: Authorization
// header matching the scheme name, then Authorization cookie, then (if
// TokenEnabled) the X-Auth-Token channel.
func (m *Module) extractCredential(r *http.Request) (blob, channel string) {
	schemeName := m.cfg.Scheme.Name()

	if header := r.Header.Get("Authorization"); header != "" {
		if schemeMatches(header, schemeName) {
			return header, "authorization-header"
		}
		logger.Debugf("middleware: Authorization header scheme mismatch, expected %s", schemeName)
	}

	if c, err := r.Cookie("Authorization"); err == nil && c.Value != "" {
		if schemeMatches(c.Value, schemeName) {
			return c.Value, "authorization-cookie"
		}
		logger.Debugf("middleware: Authorization cookie scheme mismatch, expected %s", schemeName)
	}

	if m.cfg.TokenEnabled {
		if tok := token.Extract(r, m.cfg.HeaderEnabled, m.cfg.CookieEnabled); tok != "" {
			return tok, "token"
		}
	}

	return "", ""
}

func schemeMatches(authHeader, schemeName string) bool {
	first, _, _ := strings.Cut(authHeader, " ")
	return strings.EqualFold(first, schemeName)
}

// buildSession lazily constructs the authsession on first successful
// verification via the header/cookie channels, resolving group/home from
// the backend and minting a session token when TokenEnabled. The token
// channel never reaches this function; it is resolved by verifyToken
// instead.
func (m *Module) buildSession(r *http.Request, user string) (*session.Session, error) {
	group, err := m.cfg.Backend.Group(r.Context(), user)
	if err != nil {
		logger.Warnf("middleware: group lookup failed for %s: %v", user, err)
	}
	home, err := m.cfg.Backend.Home(r.Context(), user)
	if err != nil {
		logger.Warnf("middleware: home lookup failed for %s: %v", user, err)
	}

	sess := &session.Session{
		User:   user,
		Group:  group,
		Home:   home,
		Type:   m.cfg.Scheme.Name(),
		Status: session.StatusAuthenticated,
	}

	if m.cfg.TokenEnabled {
		tok, err := m.mintToken(r, user)
		if err != nil {
			logger.Warnf("middleware: token mint failed for %s: %v", user, err)
		} else {
			sess.Token = tok
			sess.Status = session.StatusTokenIssued
		}
	}

	return sess, nil
}

// mintToken implements §4.4: the JWT backend's own GenerateToken when
// available, else the default 24-byte generator joined via TokenJoiner.
func (m *Module) mintToken(r *http.Request, user string) (string, error) {
	if gen, ok := m.cfg.Backend.(authz.TokenGenerator); ok {
		return gen.GenerateToken(r.Context(), user, m.cfg.Expire)
	}

	tok, err := token.Default.Generate()
	if err != nil {
		return "", err
	}
	if joiner, ok := m.cfg.Backend.(authz.TokenJoiner); ok {
		if err := joiner.Join(r.Context(), user, tok, m.cfg.Expire); err != nil {
			return "", err
		}
	}
	return tok, nil
}

// attachIdentity writes X-Remote-User/Group/Home as response headers when
// HeaderEnabled is set; identity is never written as cookies. The session
// token, if any, is attached as the X-Auth-Token header (HeaderEnabled)
// and/or the X-Auth-Token cookie (CookieEnabled), both when both are set.
func (m *Module) attachIdentity(w http.ResponseWriter, sess *session.Session) {
	if sess == nil {
		return
	}
	if m.cfg.HeaderEnabled {
		w.Header().Set("X-Remote-User", sess.Truncated())
		if sess.Group != "" {
			w.Header().Set("X-Remote-Group", sess.Group)
		}
		if sess.Home != "" {
			w.Header().Set("X-Remote-Home", sess.Home)
		}
	}
	if sess.Token != "" {
		token.Attach(w, sess.Token, m.cfg.HeaderEnabled, m.cfg.CookieEnabled)
	}
}

// challenge implements S5: XHR never redirects, the login page itself is
// always admitted, otherwise 302 (if Redirect is set) or 401.
func (m *Module) challenge(w http.ResponseWriter, r *http.Request, next http.Handler) {
	if r.Header.Get("X-Requested-With") == "XMLHttpRequest" {
		w.WriteHeader(http.StatusForbidden)
		return
	}

	if m.cfg.Redirect != "" {
		if isRedirectTarget(r.URL, m.cfg.Redirect) {
			next.ServeHTTP(w, r)
			return
		}
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Location", m.cfg.Redirect)
		w.WriteHeader(http.StatusFound)
		return
	}

	result := m.cfg.Scheme.Challenge(w, r)
	if result.Handled {
		return
	}
	if result.WWWAuthenticate != "" {
		w.Header().Set("WWW-Authenticate", result.WWWAuthenticate)
	}
	w.WriteHeader(http.StatusUnauthorized)
}

// isRedirectTarget reports whether reqURL matches the tail of the
// redirect target (after scheme://host/), per §4.6.2 S5's login-page
// admission rule.
func isRedirectTarget(reqURL *url.URL, redirect string) bool {
	target, err := url.Parse(redirect)
	if err != nil {
		return reqURL.Path == redirect
	}
	if target.Path == "" {
		return false
	}
	return reqURL.Path == target.Path
}

// impersonate performs the §4.6.2 UNIX_E uid/gid switch sequence
// (seteuid(real_uid) -> setegid(pw.gid) -> seteuid(pw.uid)). Each failure
// is logged and non-fatal (ErrorKind ImpersonationDenied, §7); the actual
// syscalls live in impersonate_unix.go / impersonate_other.go since
// seteuid/setegid are POSIX-only.
func impersonate(user string) {
	if err := impersonateOS(user); err != nil {
		logger.Warnf("middleware: impersonation denied for %s: %v", user, err)
	}
}
