package token_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authguard/authguard/pkg/token"
)

func TestGenerate_LengthAndNoPadding(t *testing.T) {
	t.Parallel()

	for i := 0; i < 20; i++ {
		tok, err := token.Default.Generate()
		require.NoError(t, err)
		assert.NotContains(t, tok, "=")
		assert.GreaterOrEqual(t, len(tok), 32)
		assert.LessOrEqual(t, len(tok), 36)
	}
}

func TestGenerate_Unique(t *testing.T) {
	t.Parallel()

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		tok, err := token.Default.Generate()
		require.NoError(t, err)
		assert.False(t, seen[tok])
		seen[tok] = true
	}
}

func TestAttach_HeaderAndCookie(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	token.Attach(w, "abc123", true, true)

	assert.Equal(t, "abc123", w.Header().Get(token.HeaderName))
	resp := w.Result()
	defer resp.Body.Close()
	var found bool
	for _, c := range resp.Cookies() {
		if c.Name == token.CookieName {
			found = true
			assert.Equal(t, "abc123", c.Value)
		}
	}
	assert.True(t, found)
}

func TestExtract_HeaderPrecedesCookie(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(token.HeaderName, "from-header")
	r.AddCookie(&http.Cookie{Name: token.CookieName, Value: "from-cookie"})

	got := token.Extract(r, true, true)
	assert.Equal(t, "from-header", got)
}

func TestExtract_CookieOnly(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: token.CookieName, Value: "from-cookie"})

	got := token.Extract(r, false, true)
	assert.Equal(t, "from-cookie", got)
}
