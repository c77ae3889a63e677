package authkit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

func TestMemoryRefreshTokenStoreKeepsOneRecordPerUser(t *testing.T) {
	store := NewMemoryRefreshTokenStore()
	ctx := context.Background()

	for _, opaque := range []string{"one", "two", "three"} {
		if err := store.Upsert(ctx, "user", opaque); err != nil {
			t.Fatalf("upsert error: %v", err)
		}
	}
	if err := store.Upsert(ctx, "other", "four"); err != nil {
		t.Fatalf("upsert error: %v", err)
	}
	if store.Count() != 2 {
		t.Fatalf("expected one record per user, got %d", store.Count())
	}

	store.mutex.Lock()
	delete(store.byUser, "user")
	store.mutex.Unlock()
	if _, err := store.FindUserByToken(ctx, "three"); !errors.Is(err, ErrRefreshTokenNotFound) {
		t.Fatalf("expected error when backing record missing, got %v", err)
	}
}

func TestMemoryRefreshTokenStoreRotationIsExclusive(t *testing.T) {
	store := NewMemoryRefreshTokenStore()
	ctx := context.Background()
	if err := store.Upsert(ctx, "user", "current"); err != nil {
		t.Fatalf("upsert error: %v", err)
	}

	const contenders = 16
	var winners atomic.Int32
	var group sync.WaitGroup
	for index := 0; index < contenders; index++ {
		group.Add(1)
		go func(index int) {
			defer group.Done()
			next := "next-" + string(rune('a'+index))
			if err := store.Rotate(ctx, "user", "current", next); err == nil {
				winners.Add(1)
			} else if !errors.Is(err, ErrRefreshTokenNotFound) {
				t.Errorf("unexpected rotate error: %v", err)
			}
		}(index)
	}
	group.Wait()

	if winners.Load() != 1 {
		t.Fatalf("expected exactly one rotation to win, got %d", winners.Load())
	}
}
