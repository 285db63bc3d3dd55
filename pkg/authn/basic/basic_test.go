package basic_test

import (
	"context"
	"encoding/base64"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authguard/authguard/pkg/authn/basic"
	"github.com/authguard/authguard/pkg/authz/file"
	"github.com/authguard/authguard/pkg/authz/simple"
)

func encode(user, pass string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+pass))
}

func TestCheck_SimpleBackendPlaintext(t *testing.T) {
	t.Parallel()
	backend := simple.New(map[string]simple.Account{"alice": {Passwd: "secret"}})
	s := basic.New("test", backend)

	user, err := s.Check(context.Background(), "GET", "/", encode("alice", "secret"))
	require.NoError(t, err)
	assert.Equal(t, "alice", user)
}

func TestCheck_FileBackendBcrypt(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	hash, err := file.HashPassword("hunter2")
	require.NoError(t, err)
	path := dir + "/passwd"
	require.NoError(t, writeAccounts(path, "bob:"+hash))

	s := basic.New("test", file.New(path))
	user, err := s.Check(context.Background(), "GET", "/", encode("bob", "hunter2"))
	require.NoError(t, err)
	assert.Equal(t, "bob", user)
}

func TestCheck_BadPassword(t *testing.T) {
	t.Parallel()
	backend := simple.New(map[string]simple.Account{"alice": {Passwd: "secret"}})
	s := basic.New("test", backend)

	_, err := s.Check(context.Background(), "GET", "/", encode("alice", "wrong"))
	assert.ErrorIs(t, err, basic.ErrBadCredentials)
}

func TestCheck_MalformedHeader(t *testing.T) {
	t.Parallel()
	s := basic.New("test", simple.New(nil))
	_, err := s.Check(context.Background(), "GET", "/", "Bearer abc")
	assert.ErrorIs(t, err, basic.ErrMalformedCredentials)
}

func TestChallenge_SetsWWWAuthenticate(t *testing.T) {
	t.Parallel()
	s := basic.New("myrealm", simple.New(nil))
	rec := httptest.NewRecorder()
	s.Challenge(rec, httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, `Basic realm="myrealm"`, rec.Header().Get("WWW-Authenticate"))
}

func writeAccounts(path, line string) error {
	return os.WriteFile(path, []byte(line+"\n"), 0o600)
}
