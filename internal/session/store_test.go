package session

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xaviermatuz/formdesk/internal/apiclient"
)

type backend struct {
	name string
	open func(t *testing.T) Store
}

func backends() []backend {
	return []backend{
		{"memory", func(t *testing.T) Store { return NewMemoryStore(time.Hour) }},
		{"redis", func(t *testing.T) Store {
			mr := miniredis.RunT(t)
			client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { _ = client.Close() })
			return NewRedisStore(client, time.Hour)
		}},
		{"sqlite", func(t *testing.T) Store {
			s, err := OpenSQLite(filepath.Join(t.TempDir(), "sessions.db"), time.Hour)
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			return s
		}},
	}
}

// --- Store contract ---

func TestStore_contract(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t)
			ctx := context.Background()

			_, found, err := s.Get(ctx, "s1", KeyAccessToken)
			require.NoError(t, err)
			assert.False(t, found)

			require.NoError(t, s.Set(ctx, "s1", KeyAccessToken, "a1"))
			require.NoError(t, s.Set(ctx, "s1", KeyRefreshToken, "r1"))
			require.NoError(t, s.Set(ctx, "s2", KeyAccessToken, "a2"))
			require.NoError(t, s.Set(ctx, "s1", KeyAccessToken, "a1b"))

			v, found, err := s.Get(ctx, "s1", KeyAccessToken)
			require.NoError(t, err)
			assert.True(t, found)
			assert.Equal(t, "a1b", v)

			require.NoError(t, s.Remove(ctx, "s1", KeyRefreshToken, "missing"))
			_, found, _ = s.Get(ctx, "s1", KeyRefreshToken)
			assert.False(t, found)

			require.NoError(t, s.Clear(ctx, "s1"))
			_, found, _ = s.Get(ctx, "s1", KeyAccessToken)
			assert.False(t, found)

			v, found, _ = s.Get(ctx, "s2", KeyAccessToken)
			assert.True(t, found, "clearing one session must not affect another")
			assert.Equal(t, "a2", v)

			assert.NoError(t, s.HealthCheck(ctx))
		})
	}
}

func TestCredentials_roundTrip(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t)
			ctx := context.Background()

			_, err := LoadCredentials(ctx, s, "s1")
			require.ErrorIs(t, err, ErrNoSession)

			require.NoError(t, SaveCredentials(ctx, s, "s1", apiclient.Credentials{Access: "a", Refresh: "r"}))

			var store apiclient.CredentialStore = CredentialsFor(s, "s1")
			creds, err := store.Credentials(ctx)
			require.NoError(t, err)
			assert.Equal(t, apiclient.Credentials{Access: "a", Refresh: "r"}, creds)

			require.NoError(t, store.SaveAccess(ctx, "a2"))
			creds, err = store.Credentials(ctx)
			require.NoError(t, err)
			assert.Equal(t, "a2", creds.Access)
			assert.Equal(t, "r", creds.Refresh)
		})
	}
}

func TestCredentials_missingSessionIsEmpty(t *testing.T) {
	creds, err := CredentialsFor(NewMemoryStore(0), "nobody").Credentials(context.Background())
	require.NoError(t, err)
	assert.Empty(t, creds.Refresh)
}

// --- Filter state ---

func TestFilters(t *testing.T) {
	s := NewMemoryStore(0)
	ctx := context.Background()

	state, err := LoadFilters(ctx, s, "s1")
	require.NoError(t, err)
	assert.Empty(t, state)

	require.NoError(t, SaveFilter(ctx, s, "s1", "forms", "state", "deleted"))
	require.NoError(t, SaveFilter(ctx, s, "s1", "users", "state", "active"))

	state, err = LoadFilters(ctx, s, "s1")
	require.NoError(t, err)
	assert.Equal(t, FilterState{
		"forms": {"state": "deleted"},
		"users": {"state": "active"},
	}, state)

	require.NoError(t, SaveFilter(ctx, s, "s1", "forms", "state", ""))
	state, _ = LoadFilters(ctx, s, "s1")
	assert.Equal(t, FilterState{"users": {"state": "active"}}, state)
}

func TestFilters_corruptValueIsEmpty(t *testing.T) {
	s := NewMemoryStore(0)
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "s1", KeyFilterState, "{not json"))

	state, err := LoadFilters(ctx, s, "s1")
	require.NoError(t, err)
	assert.Empty(t, state)
}

// --- Expiry ---

func TestMemoryStore_expiry(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	now := time.Unix(1_700_000_000, 0)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "s1", KeyAccessToken, "a"))
	now = now.Add(50 * time.Second)
	require.NoError(t, s.Set(ctx, "s1", KeyRefreshToken, "r"))

	now = now.Add(50 * time.Second)
	_, found, _ := s.Get(ctx, "s1", KeyAccessToken)
	assert.True(t, found, "writes extend the session")

	now = now.Add(time.Minute)
	_, found, _ = s.Get(ctx, "s1", KeyAccessToken)
	assert.False(t, found)
	assert.Equal(t, 0, s.Len())
}

func TestRedisStore_expiry(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	s := NewRedisStore(client, time.Minute)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "s1", KeyAccessToken, "a"))
	assert.True(t, mr.Exists("formdesk:session:s1"))

	mr.FastForward(2 * time.Minute)
	_, found, err := s.Get(ctx, "s1", KeyAccessToken)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSQLiteStore_expiryAndPurge(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "nested", "sessions.db"), time.Minute)
	require.NoError(t, err)
	defer s.Close()

	now := time.Unix(1_700_000_000, 0)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "s1", KeyAccessToken, "a"))
	require.NoError(t, s.Set(ctx, "s2", KeyAccessToken, "b"))
	now = now.Add(2 * time.Minute)

	_, found, err := s.Get(ctx, "s1", KeyAccessToken)
	require.NoError(t, err)
	assert.False(t, found)

	n, err := s.Purge(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "s1 was already dropped by Get")
}

func TestSQLiteStore_persistsAcrossOpens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.db")
	ctx := context.Background()

	s, err := OpenSQLite(path, 0)
	require.NoError(t, err)
	require.NoError(t, SaveCredentials(ctx, s, "cli", apiclient.Credentials{Access: "a", Refresh: "r"}))
	require.NoError(t, s.Close())

	s, err = OpenSQLite(path, 0)
	require.NoError(t, err)
	defer s.Close()
	creds, err := LoadCredentials(ctx, s, "cli")
	require.NoError(t, err)
	assert.Equal(t, "r", creds.Refresh)
}
