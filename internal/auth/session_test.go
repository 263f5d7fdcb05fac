package auth

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragchat/internal/credstore"
	"ragchat/internal/events"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func newStore(t *testing.T) *credstore.Store {
	t.Helper()
	s, err := credstore.Open(context.Background(), filepath.Join(t.TempDir(), "c.db"), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSession_BeginPersistsAndRestores(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	s := NewSession(SessionConfig{Server: "http://srv", Store: store, Logger: testLogger()})
	assert.False(t, s.Authenticated())
	require.NoError(t, s.Begin(ctx, "alice", "tok"))
	assert.Equal(t, "tok", s.Token())

	again := NewSession(SessionConfig{Server: "http://srv", Store: store, Logger: testLogger()})
	ok, err := again.Restore(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "tok", again.Token())
	assert.Equal(t, "alice", again.Username())

	other := NewSession(SessionConfig{Server: "http://elsewhere", Store: store, Logger: testLogger()})
	ok, err = other.Restore(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSession_ExpireClearsTokenRunsHooksOnce(t *testing.T) {
	store := newStore(t)
	bus := events.New(testLogger())
	ctx := context.Background()

	s := NewSession(SessionConfig{Server: "http://srv", Store: store, Events: bus, Logger: testLogger()})
	require.NoError(t, s.Begin(ctx, "alice", "tok"))

	var reasons []LogoutReason
	s.OnLogout(func(r LogoutReason) { reasons = append(reasons, r) })

	s.Expire(ctx)
	s.Expire(ctx)

	assert.Empty(t, s.Token())
	assert.Equal(t, []LogoutReason{LogoutExpired}, reasons)
	assert.Len(t, bus.Replay(events.AuthExpired, time.Time{}), 1)

	cred, err := store.Load(ctx, "http://srv")
	require.NoError(t, err)
	assert.Nil(t, cred, "expired token must not survive a restart")
}

func TestSession_ExpireWithCancelledContextDeletesToken(t *testing.T) {
	store := newStore(t)
	s := NewSession(SessionConfig{Server: "http://srv", Store: store, Logger: testLogger()})
	require.NoError(t, s.Begin(context.Background(), "alice", "tok"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.Expire(ctx)

	assert.False(t, s.Authenticated())
	cred, err := store.Load(context.Background(), "http://srv")
	require.NoError(t, err)
	assert.Nil(t, cred)

	restored := NewSession(SessionConfig{Server: "http://srv", Store: store, Logger: testLogger()})
	ok, err := restored.Restore(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSession_ExplicitLogout(t *testing.T) {
	ctx := context.Background()
	s := NewSession(SessionConfig{Server: "http://srv", Logger: testLogger()})
	require.NoError(t, s.Begin(ctx, "bob", "tok"))

	var got LogoutReason
	s.OnLogout(func(r LogoutReason) { got = r })
	require.NoError(t, s.Logout(ctx))

	assert.Equal(t, LogoutExplicit, got)
	assert.False(t, s.Authenticated())
}

func TestSession_BeginRejectsEmptyToken(t *testing.T) {
	s := NewSession(SessionConfig{Logger: testLogger()})
	assert.Error(t, s.Begin(context.Background(), "x", ""))
}

func TestSession_AdoptDoesNotPersist(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	s := NewSession(SessionConfig{Server: "http://srv", Store: store, Logger: testLogger()})
	s.Adopt("", "configured-token")
	assert.True(t, s.Authenticated())

	cred, err := store.Load(ctx, "http://srv")
	require.NoError(t, err)
	assert.Nil(t, cred)
}
