package authclient

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// AuthStateProvider owns the client's current identity and notifies subscribers when it changes.
// UpdateState is the only way to change it.
type AuthStateProvider struct {
	store      SessionStore
	storageKey string
	logger     *zap.Logger

	// updateMutex serializes writers so persistence and broadcast happen in order.
	updateMutex sync.Mutex

	stateMutex       sync.RWMutex
	identity         Identity
	subscribers      map[uint64]func(Identity)
	nextSubscriberID uint64
}

// StateProviderOption customizes an AuthStateProvider.
type StateProviderOption func(*AuthStateProvider)

// WithStateLogger sets the logger used for degraded reads.
func WithStateLogger(logger *zap.Logger) StateProviderOption {
	return func(provider *AuthStateProvider) {
		if logger != nil {
			provider.logger = logger
		}
	}
}

// WithStorageKey overrides DefaultStorageKey.
func WithStorageKey(key string) StateProviderOption {
	return func(provider *AuthStateProvider) {
		if key != "" {
			provider.storageKey = key
		}
	}
}

// NewAuthStateProvider starts anonymous until the first UpdateState.
func NewAuthStateProvider(store SessionStore, options ...StateProviderOption) *AuthStateProvider {
	provider := &AuthStateProvider{
		store:       store,
		storageKey:  DefaultStorageKey,
		logger:      zap.NewNop(),
		identity:    AnonymousIdentity(),
		subscribers: make(map[uint64]func(Identity)),
	}
	for _, option := range options {
		option(provider)
	}
	return provider
}

// CurrentState resolves the identity from the stored session without changing the
// broadcast identity. Unreadable or undecodable sessions resolve to the anonymous identity.
func (provider *AuthStateProvider) CurrentState(ctx context.Context) Identity {
	session, ok := provider.StoredSession(ctx)
	if !ok {
		return AnonymousIdentity()
	}
	claims, err := DecodeClaims(session.AccessToken)
	if err != nil {
		provider.logger.Warn("stored access token undecodable",
			zap.String("code", "authclient.state.decode"),
			zap.Error(err))
		return AnonymousIdentity()
	}
	return BuildIdentity(claims)
}

// Identity returns the last identity broadcast by UpdateState.
func (provider *AuthStateProvider) Identity() Identity {
	provider.stateMutex.RLock()
	defer provider.stateMutex.RUnlock()
	return provider.identity
}

// StoredSession returns the persisted session; false when absent or unreadable.
func (provider *AuthStateProvider) StoredSession(ctx context.Context) (Session, bool) {
	session, err := loadSession(ctx, provider.store, provider.storageKey)
	if err != nil {
		if !errors.Is(err, ErrSessionNotFound) {
			provider.logger.Warn("stored session unreadable",
				zap.String("code", "authclient.state.load"),
				zap.Error(err))
		}
		return Session{}, false
	}
	return session, true
}

// UpdateState persists a session that carries both tokens and broadcasts its identity.
// Any other session, including one with a single token, clears storage and broadcasts
// the anonymous identity.
// Subscribers have all been called when UpdateState returns; they must not call UpdateState.
func (provider *AuthStateProvider) UpdateState(ctx context.Context, session Session) error {
	provider.updateMutex.Lock()
	defer provider.updateMutex.Unlock()
	return provider.updateLocked(ctx, session)
}

// clearIfCurrent drops the session only while refreshToken is still the stored one,
// so a denied stale refresh cannot wipe a newer login.
func (provider *AuthStateProvider) clearIfCurrent(ctx context.Context, refreshToken string) error {
	provider.updateMutex.Lock()
	defer provider.updateMutex.Unlock()

	if stored, ok := provider.StoredSession(ctx); ok && stored.RefreshToken != refreshToken {
		return nil
	}
	return provider.updateLocked(ctx, Session{})
}

func (provider *AuthStateProvider) updateLocked(ctx context.Context, session Session) error {
	identity := AnonymousIdentity()
	if session.IsComplete() {
		claims, err := DecodeClaims(session.AccessToken)
		if err != nil {
			return err
		}
		if err := saveSession(ctx, provider.store, provider.storageKey, session); err != nil {
			return fmt.Errorf("authclient.state.save: %w", err)
		}
		identity = BuildIdentity(claims)
	} else if err := provider.store.Remove(ctx, provider.storageKey); err != nil {
		return fmt.Errorf("authclient.state.remove: %w", err)
	}
	provider.broadcast(identity)
	return nil
}

func (provider *AuthStateProvider) broadcast(identity Identity) {
	provider.stateMutex.Lock()
	provider.identity = identity
	listeners := make([]func(Identity), 0, len(provider.subscribers))
	for _, listener := range provider.subscribers {
		listeners = append(listeners, listener)
	}
	provider.stateMutex.Unlock()

	for _, listener := range listeners {
		listener(identity)
	}
}

// Subscribe registers listener for identity changes and returns its cancel function.
func (provider *AuthStateProvider) Subscribe(listener func(Identity)) func() {
	provider.stateMutex.Lock()
	subscriberID := provider.nextSubscriberID
	provider.nextSubscriberID++
	provider.subscribers[subscriberID] = listener
	provider.stateMutex.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			provider.stateMutex.Lock()
			delete(provider.subscribers, subscriberID)
			provider.stateMutex.Unlock()
		})
	}
}
