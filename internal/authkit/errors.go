package authkit

import (
	"errors"
	"fmt"
)

// Business failures. They are reported to callers as unsuccessful responses, never as transport errors.
var (
	ErrInvalidInput          = errors.New("auth.invalid_input")
	ErrUserNotFound          = errors.New("auth.user_not_found")
	ErrUserAlreadyRegistered = errors.New("auth.user_already_registered")
	ErrInvalidCredentials    = errors.New("auth.invalid_credentials")
	ErrRoleNotFound          = errors.New("auth.role_not_found")
	ErrTokenNotFound         = errors.New("auth.token_not_found")
)

// PersistenceError reports a storage failure. It is fatal to the request and must not be
// mistaken for a denied login.
type PersistenceError struct {
	Operation string
	Err       error
}

func (persistenceErr *PersistenceError) Error() string {
	return fmt.Sprintf("auth.persistence.%s: %v", persistenceErr.Operation, persistenceErr.Err)
}

func (persistenceErr *PersistenceError) Unwrap() error {
	return persistenceErr.Err
}

func persistenceFailure(operation string, err error) error {
	return &PersistenceError{Operation: operation, Err: err}
}

// IsBusinessFailure reports whether err is one of the typed business failures.
func IsBusinessFailure(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrUserNotFound),
		errors.Is(err, ErrUserAlreadyRegistered),
		errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrRoleNotFound),
		errors.Is(err, ErrTokenNotFound):
		return true
	default:
		return false
	}
}
