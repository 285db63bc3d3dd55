package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authguard/authguard/pkg/authz/sqlite"
)

func openTestBackend(t *testing.T) *sqlite.Backend {
	t.Helper()
	path := filepath.Join(t.TempDir(), "authguard.db")
	b, err := sqlite.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestSeedAndPasswdGroupHome(t *testing.T) {
	t.Parallel()
	b := openTestBackend(t)
	ctx := context.Background()

	require.NoError(t, b.Seed(ctx, "alice", "bcrypt-hash", "staff", "/u/alice"))

	hash, ok, err := b.Passwd(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "bcrypt-hash", hash)

	group, err := b.Group(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "staff", group)

	home, err := b.Home(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "/u/alice", home)
}

func TestPasswd_UnknownUser(t *testing.T) {
	t.Parallel()
	b := openTestBackend(t)
	_, ok, err := b.Passwd(context.Background(), "nobody")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestJoinAndCheck(t *testing.T) {
	t.Parallel()
	b := openTestBackend(t)
	ctx := context.Background()

	require.NoError(t, b.Seed(ctx, "alice", "h", "", ""))
	require.NoError(t, b.Join(ctx, "alice", "tok-123", time.Hour))

	user, ok, err := b.Check(ctx, "tok-123")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "alice", user)
}

func TestCheck_Expired(t *testing.T) {
	t.Parallel()
	b := openTestBackend(t)
	ctx := context.Background()

	require.NoError(t, b.Seed(ctx, "alice", "h", "", ""))
	require.NoError(t, b.Join(ctx, "alice", "tok-expired", -time.Hour))

	_, ok, err := b.Check(ctx, "tok-expired")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCheck_UnknownToken(t *testing.T) {
	t.Parallel()
	b := openTestBackend(t)
	_, ok, err := b.Check(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, ok)
}
