package authclient

import (
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// AuthenticationType tags identities built from an access token.
const AuthenticationType = "JwtAuth"

// UserClaims are the identity fields carried by an access token.
type UserClaims struct {
	ID    string
	Name  string
	Email string
	Role  string
}

type accessTokenClaims struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// DecodeClaims reads the claim payload without checking the signature.
// The result is for display only; the server verifies every token it receives.
func DecodeClaims(accessToken string) (UserClaims, error) {
	if strings.TrimSpace(accessToken) == "" {
		return UserClaims{}, nil
	}
	var claims accessTokenClaims
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, &claims); err != nil {
		return UserClaims{}, fmt.Errorf("authclient.decode_claims: %w", err)
	}
	return UserClaims{
		ID:    claims.Subject,
		Name:  claims.Name,
		Email: claims.Email,
		Role:  claims.Role,
	}, nil
}

// Identity is the principal derived from the stored session.
type Identity struct {
	Claims             UserClaims
	AuthenticationType string
}

// IsAuthenticated reports whether the identity carries an email claim.
func (identity Identity) IsAuthenticated() bool {
	return identity.AuthenticationType != "" && identity.Claims.Email != ""
}

// AnonymousIdentity has no claims.
func AnonymousIdentity() Identity {
	return Identity{}
}

// BuildIdentity returns the anonymous identity when the email claim is empty.
func BuildIdentity(claims UserClaims) Identity {
	if claims.Email == "" {
		return AnonymousIdentity()
	}
	return Identity{Claims: claims, AuthenticationType: AuthenticationType}
}
