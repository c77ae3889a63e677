package authkit

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryRefreshTokenStore is an in-memory store intended for tests and dev.
type MemoryRefreshTokenStore struct {
	mutex  sync.Mutex
	byUser map[string]*memoryRecord
	byHash map[string]string
}

type memoryRecord struct {
	UserID        string
	Hash          string
	UpdatedAtUnix int64
}

// NewMemoryRefreshTokenStore creates a new in-memory token store.
func NewMemoryRefreshTokenStore() *MemoryRefreshTokenStore {
	return &MemoryRefreshTokenStore{
		byUser: make(map[string]*memoryRecord),
		byHash: make(map[string]string),
	}
}

// Upsert overwrites the user's record in place or inserts a new one.
func (store *MemoryRefreshTokenStore) Upsert(ctx context.Context, applicationUserID string, tokenOpaque string) error {
	if strings.TrimSpace(tokenOpaque) == "" {
		return ErrRefreshTokenEmptyOpaque
	}
	store.mutex.Lock()
	defer store.mutex.Unlock()

	store.replaceLocked(applicationUserID, HashRefreshToken(tokenOpaque))
	return nil
}

// FindUserByToken resolves the owner of an opaque token.
func (store *MemoryRefreshTokenStore) FindUserByToken(ctx context.Context, tokenOpaque string) (string, error) {
	if strings.TrimSpace(tokenOpaque) == "" {
		return "", ErrRefreshTokenEmptyOpaque
	}
	store.mutex.Lock()
	defer store.mutex.Unlock()

	applicationUserID, ok := store.byHash[HashRefreshToken(tokenOpaque)]
	if !ok {
		return "", ErrRefreshTokenNotFound
	}
	if store.byUser[applicationUserID] == nil {
		return "", ErrRefreshTokenNotFound
	}
	return applicationUserID, nil
}

// Rotate swaps the user's token when previousOpaque is still the current one.
func (store *MemoryRefreshTokenStore) Rotate(ctx context.Context, applicationUserID string, previousOpaque string, nextOpaque string) error {
	if strings.TrimSpace(previousOpaque) == "" || strings.TrimSpace(nextOpaque) == "" {
		return ErrRefreshTokenEmptyOpaque
	}
	store.mutex.Lock()
	defer store.mutex.Unlock()

	record := store.byUser[applicationUserID]
	if record == nil || record.Hash != HashRefreshToken(previousOpaque) {
		return ErrRefreshTokenNotFound
	}
	store.replaceLocked(applicationUserID, HashRefreshToken(nextOpaque))
	return nil
}

// Delete removes the user's record.
func (store *MemoryRefreshTokenStore) Delete(ctx context.Context, applicationUserID string) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	record := store.byUser[applicationUserID]
	if record == nil {
		return ErrRefreshTokenNotFound
	}
	delete(store.byHash, record.Hash)
	delete(store.byUser, applicationUserID)
	return nil
}

// Count reports how many records are held.
func (store *MemoryRefreshTokenStore) Count() int {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	return len(store.byUser)
}

func (store *MemoryRefreshTokenStore) replaceLocked(applicationUserID string, hashValue string) {
	record := store.byUser[applicationUserID]
	if record == nil {
		record = &memoryRecord{UserID: applicationUserID}
		store.byUser[applicationUserID] = record
	} else {
		delete(store.byHash, record.Hash)
	}
	record.Hash = hashValue
	record.UpdatedAtUnix = time.Now().UTC().Unix()
	store.byHash[hashValue] = applicationUserID
}
