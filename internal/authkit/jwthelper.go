package authkit

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/tyemirov/pwauth/pkg/sessionvalidator"
)

// AccessClaims are embedded in the access token.
type AccessClaims = sessionvalidator.Claims

var errEmptySubject = errors.New("subject must be non-empty")

// AccessTokenSubject is the identity encoded into an access token.
type AccessTokenSubject struct {
	UserID   string
	Fullname string
	Email    string
	Role     string
}

// MintAccessToken creates a signed HS256 access token expiring ttl after clock.Now().
func MintAccessToken(clock Clock, subject AccessTokenSubject, issuer string, audience string, signingKey []byte, ttl time.Duration) (string, time.Time, error) {
	if strings.TrimSpace(subject.UserID) == "" {
		return "", time.Time{}, fmt.Errorf("jwt.mint.failure: %w", errEmptySubject)
	}
	if clock == nil {
		clock = NewSystemClock()
	}
	issuedAt := clock.Now().UTC()
	expiresAt := issuedAt.Add(ttl)
	registered := jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   subject.UserID,
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		NotBefore: jwt.NewNumericDate(issuedAt.Add(-30 * time.Second)),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	if audience != "" {
		registered.Audience = jwt.ClaimStrings{audience}
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, AccessClaims{
		Name:             subject.Fullname,
		Email:            subject.Email,
		Role:             subject.Role,
		RegisteredClaims: registered,
	})
	signed, err := token.SignedString(signingKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("jwt.mint.sign: %w", err)
	}
	return signed, expiresAt, nil
}
