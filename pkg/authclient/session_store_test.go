package authclient

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T, options ...RedisSessionStoreOption) (*RedisSessionStore, *miniredis.Miniredis) {
	t.Helper()
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
	})
	return NewRedisSessionStore(client, options...), server
}

func TestSessionStoresShareContract(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name  string
		store func(t *testing.T) SessionStore
	}{
		{name: "memory", store: func(t *testing.T) SessionStore { return NewMemorySessionStore() }},
		{name: "file", store: func(t *testing.T) SessionStore {
			store, err := NewFileSessionStore(filepath.Join(t.TempDir(), "sessions"))
			require.NoError(t, err)
			return store
		}},
		{name: "redis", store: func(t *testing.T) SessionStore {
			store, _ := newTestRedisStore(t)
			return store
		}},
	}

	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			store := testCase.store(t)

			_, err := store.Get(ctx, DefaultStorageKey)
			require.ErrorIs(t, err, ErrSessionNotFound)

			require.NoError(t, saveSession(ctx, store, DefaultStorageKey, Session{AccessToken: "a1", RefreshToken: "r1"}))
			require.NoError(t, saveSession(ctx, store, DefaultStorageKey, Session{AccessToken: "a2", RefreshToken: "r2"}))
			session, err := loadSession(ctx, store, DefaultStorageKey)
			require.NoError(t, err)
			require.Equal(t, Session{AccessToken: "a2", RefreshToken: "r2"}, session)

			raw, err := store.Get(ctx, DefaultStorageKey)
			require.NoError(t, err)
			require.JSONEq(t, `{"accessToken":"a2","refreshToken":"r2"}`, string(raw))

			require.NoError(t, store.Remove(ctx, DefaultStorageKey))
			require.NoError(t, store.Remove(ctx, DefaultStorageKey))
			_, err = store.Get(ctx, DefaultStorageKey)
			require.ErrorIs(t, err, ErrSessionNotFound)
		})
	}
}

func TestFileSessionStoreWritesPrivateFile(t *testing.T) {
	t.Parallel()
	directory := t.TempDir()
	store, err := NewFileSessionStore(directory)
	require.NoError(t, err)
	require.NoError(t, store.Set(context.Background(), DefaultStorageKey, []byte(`{}`)))

	info, err := os.Stat(filepath.Join(directory, DefaultStorageKey+".json"))
	require.NoError(t, err)
	require.Equal(t, os.FileMode(sessionFileMode), info.Mode().Perm())

	entries, err := os.ReadDir(directory)
	require.NoError(t, err)
	require.Len(t, entries, 1, "temporary files must not be left behind")

	_, err = NewFileSessionStore(" ")
	require.ErrorIs(t, err, errEmptySessionDirectory)
}

func TestRedisSessionStoreAppliesPrefixAndTTL(t *testing.T) {
	t.Parallel()
	store, server := newTestRedisStore(t, WithRedisKeyPrefix("test:"), WithRedisTTL(time.Minute))
	require.NoError(t, store.Set(context.Background(), DefaultStorageKey, []byte(`{}`)))

	require.True(t, server.Exists("test:"+DefaultStorageKey))
	require.Equal(t, time.Minute, server.TTL("test:"+DefaultStorageKey))

	server.FastForward(2 * time.Minute)
	_, err := store.Get(context.Background(), DefaultStorageKey)
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestLoadSessionRejectsCorruptBlob(t *testing.T) {
	t.Parallel()
	store := NewMemorySessionStore()
	require.NoError(t, store.Set(context.Background(), DefaultStorageKey, []byte("{broken")))
	_, err := loadSession(context.Background(), store, DefaultStorageKey)
	require.ErrorIs(t, err, errCorruptSession)
}

func TestLoadSessionRejectsSingleTokenBlob(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	for _, blob := range []string{
		`{"accessToken":"","refreshToken":"r-only"}`,
		`{"accessToken":"a-only","refreshToken":""}`,
		`{}`,
	} {
		store := NewMemorySessionStore()
		require.NoError(t, store.Set(ctx, DefaultStorageKey, []byte(blob)))
		_, err := loadSession(ctx, store, DefaultStorageKey)
		require.ErrorIs(t, err, errCorruptSession, blob)
	}
}
