package authkit

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// MemoryUserStore is a user store used for demo and local runs.
type MemoryUserStore struct {
	mutex   sync.RWMutex
	byID    map[string]StoredUser
	byEmail map[string]string
	roles   map[string]string
	// systemRoles records every role ever created; deleting its holder does not remove it.
	systemRoles map[string]struct{}
}

// NewMemoryUserStore constructs an empty store.
func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{
		byID:        make(map[string]StoredUser),
		byEmail:     make(map[string]string),
		roles:       make(map[string]string),
		systemRoles: make(map[string]struct{}),
	}
}

// CreateUser inserts an account and assigns its role.
func (store *MemoryUserStore) CreateUser(ctx context.Context, registration UserRegistration) (StoredUser, string, error) {
	normalizedEmail := normalizeEmail(registration.Email)
	store.mutex.Lock()
	defer store.mutex.Unlock()

	if _, exists := store.byEmail[normalizedEmail]; exists {
		return StoredUser{}, "", ErrUserAlreadyRegistered
	}
	user := StoredUser{
		ID:           uuid.NewString(),
		Fullname:     registration.Fullname,
		Email:        registration.Email,
		PasswordHash: registration.PasswordHash,
	}
	roleName := registration.DefaultRole
	if _, adminExists := store.systemRoles[registration.AdminRole]; !adminExists {
		roleName = registration.AdminRole
	}
	store.systemRoles[roleName] = struct{}{}
	store.byID[user.ID] = user
	store.byEmail[normalizedEmail] = user.ID
	store.roles[user.ID] = roleName
	return user, roleName, nil
}

// FindUserByEmail matches email case-insensitively.
func (store *MemoryUserStore) FindUserByEmail(ctx context.Context, email string) (StoredUser, error) {
	store.mutex.RLock()
	defer store.mutex.RUnlock()

	applicationUserID, ok := store.byEmail[normalizeEmail(email)]
	if !ok {
		return StoredUser{}, ErrUserNotFound
	}
	user, ok := store.byID[applicationUserID]
	if !ok {
		return StoredUser{}, ErrUserNotFound
	}
	return user, nil
}

// FindUserByID returns the account with the given id.
func (store *MemoryUserStore) FindUserByID(ctx context.Context, applicationUserID string) (StoredUser, error) {
	store.mutex.RLock()
	defer store.mutex.RUnlock()

	user, ok := store.byID[applicationUserID]
	if !ok {
		return StoredUser{}, ErrUserNotFound
	}
	return user, nil
}

// FindUserRole returns the role assigned to the account.
func (store *MemoryUserStore) FindUserRole(ctx context.Context, applicationUserID string) (string, error) {
	store.mutex.RLock()
	defer store.mutex.RUnlock()

	roleName, ok := store.roles[applicationUserID]
	if !ok || roleName == "" {
		return "", ErrRoleNotFound
	}
	return roleName, nil
}

// DeleteUser removes the account together with its role assignment.
func (store *MemoryUserStore) DeleteUser(ctx context.Context, applicationUserID string) {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	user, ok := store.byID[applicationUserID]
	if !ok {
		return
	}
	delete(store.byEmail, normalizeEmail(user.Email))
	delete(store.byID, applicationUserID)
	delete(store.roles, applicationUserID)
}

// UnassignRole drops the account's role assignment.
func (store *MemoryUserStore) UnassignRole(ctx context.Context, applicationUserID string) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	delete(store.roles, applicationUserID)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
