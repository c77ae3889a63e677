package authkit

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func newSQLiteStore(t *testing.T) *DatabaseStore {
	t.Helper()
	store, err := NewDatabaseStore(context.Background(), "sqlite://"+filepath.Join(t.TempDir(), "auth.db"))
	if err != nil {
		t.Fatalf("failed to create sqlite store: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

func TestRefreshTokenStoresShareSentinelErrors(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name  string
		store func(t *testing.T) RefreshTokenStore
	}{
		{
			name: "memory",
			store: func(t *testing.T) RefreshTokenStore {
				t.Helper()
				return NewMemoryRefreshTokenStore()
			},
		},
		{
			name: "sqlite",
			store: func(t *testing.T) RefreshTokenStore {
				t.Helper()
				return newSQLiteStore(t)
			},
		},
	}

	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			store := testCase.store(t)

			if _, err := store.FindUserByToken(ctx, "missing"); !errors.Is(err, ErrRefreshTokenNotFound) {
				t.Fatalf("expected ErrRefreshTokenNotFound, got %v", err)
			}
			if _, err := store.FindUserByToken(ctx, "  "); !errors.Is(err, ErrRefreshTokenEmptyOpaque) {
				t.Fatalf("expected ErrRefreshTokenEmptyOpaque, got %v", err)
			}
			if err := store.Upsert(ctx, "user", ""); !errors.Is(err, ErrRefreshTokenEmptyOpaque) {
				t.Fatalf("expected ErrRefreshTokenEmptyOpaque on upsert, got %v", err)
			}

			if err := store.Upsert(ctx, "user", "first"); err != nil {
				t.Fatalf("upsert failed: %v", err)
			}
			if owner, err := store.FindUserByToken(ctx, "first"); err != nil || owner != "user" {
				t.Fatalf("expected owner user, got %q, %v", owner, err)
			}

			// A second upsert overwrites the single record for the user.
			if err := store.Upsert(ctx, "user", "second"); err != nil {
				t.Fatalf("second upsert failed: %v", err)
			}
			if _, err := store.FindUserByToken(ctx, "first"); !errors.Is(err, ErrRefreshTokenNotFound) {
				t.Fatalf("expected overwritten token to be gone, got %v", err)
			}

			if err := store.Rotate(ctx, "user", "first", "third"); !errors.Is(err, ErrRefreshTokenNotFound) {
				t.Fatalf("expected stale rotation to fail, got %v", err)
			}
			if err := store.Rotate(ctx, "user", "second", "third"); err != nil {
				t.Fatalf("rotation failed: %v", err)
			}
			if _, err := store.FindUserByToken(ctx, "second"); !errors.Is(err, ErrRefreshTokenNotFound) {
				t.Fatalf("expected rotated token to be gone, got %v", err)
			}
			if owner, err := store.FindUserByToken(ctx, "third"); err != nil || owner != "user" {
				t.Fatalf("expected rotated token to resolve, got %q, %v", owner, err)
			}
			if err := store.Rotate(ctx, "user", "second", "fourth"); !errors.Is(err, ErrRefreshTokenNotFound) {
				t.Fatalf("expected replayed rotation to fail, got %v", err)
			}

			if err := store.Delete(ctx, "user"); err != nil {
				t.Fatalf("delete failed: %v", err)
			}
			if err := store.Delete(ctx, "user"); !errors.Is(err, ErrRefreshTokenNotFound) {
				t.Fatalf("expected ErrRefreshTokenNotFound on second delete, got %v", err)
			}
			if _, err := store.FindUserByToken(ctx, "third"); !errors.Is(err, ErrRefreshTokenNotFound) {
				t.Fatalf("expected deleted token to be gone, got %v", err)
			}
		})
	}
}
