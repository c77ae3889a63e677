package authclient

import (
	"context"
	"sync"
)

// MemorySessionStore keeps sessions in process memory.
type MemorySessionStore struct {
	mutex  sync.RWMutex
	values map[string][]byte
}

// NewMemorySessionStore constructs an empty store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{values: make(map[string][]byte)}
}

// Get returns a copy of the stored blob or ErrSessionNotFound.
func (store *MemorySessionStore) Get(ctx context.Context, key string) ([]byte, error) {
	store.mutex.RLock()
	defer store.mutex.RUnlock()

	value, ok := store.values[key]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return append([]byte(nil), value...), nil
}

// Set stores a copy of value.
func (store *MemorySessionStore) Set(ctx context.Context, key string, value []byte) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	store.values[key] = append([]byte(nil), value...)
	return nil
}

// Remove deletes the key; a missing key is not an error.
func (store *MemorySessionStore) Remove(ctx context.Context, key string) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	delete(store.values, key)
	return nil
}
