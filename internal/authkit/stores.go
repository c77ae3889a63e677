package authkit

import "context"

// StoredUser is a registered account.
type StoredUser struct {
	ID           string
	Fullname     string
	Email        string
	PasswordHash string
}

// UserRegistration carries the data needed to create an account and pick its role.
type UserRegistration struct {
	Fullname     string
	Email        string
	PasswordHash string
	AdminRole    string
	DefaultRole  string
}

// UserStore persists accounts and their role assignments.
type UserStore interface {
	// CreateUser inserts the account and assigns AdminRole when no account holds it yet,
	// DefaultRole otherwise. Returns ErrUserAlreadyRegistered on a case-insensitive email clash.
	CreateUser(ctx context.Context, registration UserRegistration) (user StoredUser, roleName string, err error)
	FindUserByEmail(ctx context.Context, email string) (StoredUser, error)
	FindUserByID(ctx context.Context, userID string) (StoredUser, error)
	FindUserRole(ctx context.Context, userID string) (string, error)
}

// RefreshTokenStore keeps exactly one active refresh token per user.
type RefreshTokenStore interface {
	// Upsert overwrites the user's record, inserting it when absent.
	Upsert(ctx context.Context, applicationUserID string, tokenOpaque string) error
	// FindUserByToken resolves the owner of an opaque token.
	FindUserByToken(ctx context.Context, tokenOpaque string) (string, error)
	// Rotate replaces previousOpaque with nextOpaque only while previousOpaque is still current.
	Rotate(ctx context.Context, applicationUserID string, previousOpaque string, nextOpaque string) error
	// Delete removes the user's record.
	Delete(ctx context.Context, applicationUserID string) error
}
