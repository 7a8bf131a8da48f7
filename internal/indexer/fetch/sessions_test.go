package fetch

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamsieve/streamsieve/internal/database"
	"github.com/streamsieve/streamsieve/internal/indexer/types"
)

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.NewMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate())
	return db
}

func TestSessionTTL(t *testing.T) {
	now := time.Now()

	// No clearance cookie: the default cap applies.
	assert.Equal(t, defaultSessionTTL, SessionTTL(nil, now))
	assert.Equal(t, defaultSessionTTL, SessionTTL([]types.Cookie{
		{Name: "other", Expires: now.Add(time.Minute)},
	}, now))

	// Clearance expiring soon shortens the TTL by the safety margin.
	ttl := SessionTTL([]types.Cookie{
		{Name: clearanceCookie, Expires: now.Add(10 * time.Minute)},
	}, now)
	assert.Equal(t, 9*time.Minute, ttl)

	// A long-lived clearance cookie is still capped at the default.
	ttl = SessionTTL([]types.Cookie{
		{Name: clearanceCookie, Expires: now.Add(2 * time.Hour)},
	}, now)
	assert.Equal(t, defaultSessionTTL, ttl)

	// Clearance inside the margin clamps to zero, never negative.
	ttl = SessionTTL([]types.Cookie{
		{Name: clearanceCookie, Expires: now.Add(30 * time.Second)},
	}, now)
	assert.Equal(t, time.Duration(0), ttl)

	// A clearance cookie without an expiry is ignored.
	ttl = SessionTTL([]types.Cookie{
		{Name: clearanceCookie},
	}, now)
	assert.Equal(t, defaultSessionTTL, ttl)
}

func TestSessionStoreRoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	store := NewSessionStore(db.Conn(), zerolog.Nop())

	assert.Nil(t, store.Get(ctx, "example.com"))

	sess := &types.Session{
		Host:      "example.com",
		Cookies:   []types.Cookie{{Name: clearanceCookie, Value: "tok", Domain: ".example.com", Path: "/"}},
		UserAgent: "Mozilla/5.0 test",
		ExpiresAt: time.Now().Add(time.Hour),
	}
	require.NoError(t, store.Put(ctx, sess))

	got := store.Get(ctx, "example.com")
	require.NotNil(t, got)
	assert.Equal(t, "Mozilla/5.0 test", got.UserAgent)
	require.Len(t, got.Cookies, 1)
	assert.Equal(t, "tok", got.Cookies[0].Value)

	// A fresh store over the same database loads it from disk.
	store2 := NewSessionStore(db.Conn(), zerolog.Nop())
	got = store2.Get(ctx, "example.com")
	require.NotNil(t, got)
	assert.Equal(t, "tok", got.Cookies[0].Value)

	store.Delete(ctx, "example.com")
	assert.Nil(t, store.Get(ctx, "example.com"))

	store3 := NewSessionStore(db.Conn(), zerolog.Nop())
	assert.Nil(t, store3.Get(ctx, "example.com"))
}

func TestSessionStoreSkipsEmptySessions(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	store := NewSessionStore(db.Conn(), zerolog.Nop())

	require.NoError(t, store.Put(ctx, &types.Session{
		Host:      "empty.example",
		ExpiresAt: time.Now().Add(time.Hour),
	}))
	assert.Nil(t, store.Get(ctx, "empty.example"))
}

func TestSessionStoreExpiry(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	store := NewSessionStore(db.Conn(), zerolog.Nop())

	require.NoError(t, store.Put(ctx, &types.Session{
		Host:      "stale.example",
		Cookies:   []types.Cookie{{Name: clearanceCookie, Value: "old"}},
		ExpiresAt: time.Now().Add(-time.Minute),
	}))

	assert.Nil(t, store.Get(ctx, "stale.example"))
}

func TestSessionStorePruneExpired(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	store := NewSessionStore(db.Conn(), zerolog.Nop())

	require.NoError(t, store.Put(ctx, &types.Session{
		Host:      "stale.example",
		Cookies:   []types.Cookie{{Name: clearanceCookie, Value: "old"}},
		ExpiresAt: time.Now().Add(-time.Minute),
	}))
	require.NoError(t, store.Put(ctx, &types.Session{
		Host:      "fresh.example",
		Cookies:   []types.Cookie{{Name: clearanceCookie, Value: "new"}},
		ExpiresAt: time.Now().Add(time.Hour),
	}))

	require.NoError(t, store.PruneExpired(ctx))

	var count int
	require.NoError(t, db.Conn().QueryRow(`SELECT COUNT(*) FROM cf_sessions`).Scan(&count))
	assert.Equal(t, 1, count)
}
