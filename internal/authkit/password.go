package authkit

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

var errEmptyPassword = errors.New("password.empty")

// HashPassword derives a salted bcrypt hash with the given cost.
func HashPassword(plainTextPassword string, cost int) (string, error) {
	if plainTextPassword == "" {
		return "", fmt.Errorf("password.hash: %w", errEmptyPassword)
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(plainTextPassword), cost)
	if err != nil {
		return "", fmt.Errorf("password.hash: %w", err)
	}
	return string(hashedBytes), nil
}

// ComparePassword returns ErrInvalidCredentials when the password does not match the hash.
func ComparePassword(plainTextPassword string, passwordHash string) error {
	err := bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(plainTextPassword))
	if err == nil {
		return nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrInvalidCredentials
	}
	return fmt.Errorf("password.compare: %w", err)
}
