package authkit

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// CredentialVerifier checks submitted email/password pairs against stored hashes.
type CredentialVerifier struct {
	users UserStore
}

// NewCredentialVerifier constructs a verifier reading from the given user store.
func NewCredentialVerifier(users UserStore) *CredentialVerifier {
	return &CredentialVerifier{users: users}
}

// Verify resolves the user owning email and checks the password.
// Fails with ErrUserNotFound or ErrInvalidCredentials.
func (verifier *CredentialVerifier) Verify(ctx context.Context, email string, password string) (StoredUser, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return StoredUser{}, ErrInvalidInput
	}
	user, findErr := verifier.users.FindUserByEmail(ctx, email)
	if findErr != nil {
		if errors.Is(findErr, ErrUserNotFound) {
			return StoredUser{}, ErrUserNotFound
		}
		return StoredUser{}, persistenceFailure("find_user_by_email", findErr)
	}
	if compareErr := ComparePassword(password, user.PasswordHash); compareErr != nil {
		if errors.Is(compareErr, ErrInvalidCredentials) {
			return StoredUser{}, ErrInvalidCredentials
		}
		return StoredUser{}, fmt.Errorf("credentials.verify: %w", compareErr)
	}
	return user, nil
}
