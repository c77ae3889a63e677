package authkit

import "sync"

type userLockEntry struct {
	mutex   sync.Mutex
	holders int
}

// userLocks serializes work per user id; entries are dropped once no goroutine holds or waits on them.
type userLocks struct {
	mutex   sync.Mutex
	entries map[string]*userLockEntry
}

func newUserLocks() *userLocks {
	return &userLocks{entries: make(map[string]*userLockEntry)}
}

func (locks *userLocks) lock(applicationUserID string) func() {
	locks.mutex.Lock()
	entry, ok := locks.entries[applicationUserID]
	if !ok {
		entry = &userLockEntry{}
		locks.entries[applicationUserID] = entry
	}
	entry.holders++
	locks.mutex.Unlock()

	entry.mutex.Lock()
	return func() {
		entry.mutex.Unlock()
		locks.mutex.Lock()
		entry.holders--
		if entry.holders == 0 {
			delete(locks.entries, applicationUserID)
		}
		locks.mutex.Unlock()
	}
}
