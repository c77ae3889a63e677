package authclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// DefaultStorageKey is the key under which the session blob is stored.
const DefaultStorageKey = "authentication"

var (
	// ErrSessionNotFound is returned by a SessionStore when the key holds nothing.
	ErrSessionNotFound = errors.New("authclient.session.not_found")

	errCorruptSession = errors.New("authclient.session.corrupt")
)

// Session is the client-held token pair. Both fields are always written and removed together.
type Session struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// HasRefreshToken reports whether the session can be refreshed.
func (session Session) HasRefreshToken() bool {
	return strings.TrimSpace(session.RefreshToken) != ""
}

// IsComplete reports whether the session holds both tokens. Only complete sessions are stored.
func (session Session) IsComplete() bool {
	return strings.TrimSpace(session.AccessToken) != "" && session.HasRefreshToken()
}

// SessionStore persists the serialized session blob under a key.
// Set must replace the whole value atomically.
type SessionStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
}

func loadSession(ctx context.Context, store SessionStore, key string) (Session, error) {
	raw, err := store.Get(ctx, key)
	if err != nil {
		return Session{}, err
	}
	var session Session
	if decodeErr := json.Unmarshal(raw, &session); decodeErr != nil {
		return Session{}, fmt.Errorf("%w: %v", errCorruptSession, decodeErr)
	}
	if !session.IsComplete() {
		return Session{}, fmt.Errorf("%w: missing token", errCorruptSession)
	}
	return session, nil
}

func saveSession(ctx context.Context, store SessionStore, key string, session Session) error {
	raw, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("authclient.session.encode: %w", err)
	}
	return store.Set(ctx, key, raw)
}
