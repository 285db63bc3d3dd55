package middleware

import (
	"net/http"
	"net/url"
	"strings"
)

// homeConnector implements §4.6.1. It runs ahead of the authn connector
// (the spec's stated ordering: "home connector (if enabled) -> authn
// connector -> downstream handlers") and looks at the *already attached*
// per-connection session (set by a previous request on this connection
// via invariant I1) rather than one the authn connector might attach
// during this same request — exactly the "fires only when a prior authn
// connector has attached an authsession" wording in §4.6.1.
func (m *Module) homeConnector(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cs := clientStateFromContext(r.Context())
		sess, ok := cs.Get()
		if !ok || sess == nil || sess.Home == "" {
			next.ServeHTTP(w, r)
			return
		}

		if r.Header.Get("Sec-WebSocket-Version") != "" {
			next.ServeHTTP(w, r)
			return
		}

		decodedPath, err := url.PathUnescape(r.URL.Path)
		if err != nil {
			decodedPath = r.URL.Path
		}
		homePrefix := strings.TrimSuffix(sess.Home, "/") + "/"
		if strings.HasPrefix(decodedPath, homePrefix) {
			// Idempotent: already inside home, no further redirect (P8).
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("Location", homePrefix)
		w.WriteHeader(http.StatusMovedPermanently)
	})
}
