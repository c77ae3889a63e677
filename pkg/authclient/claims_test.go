package authclient

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func signTestToken(t *testing.T, claims jwt.Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("client-test-key"))
	require.NoError(t, err)
	return token
}

func newTestAccessToken(t *testing.T, email string) string {
	t.Helper()
	return signTestToken(t, accessTokenClaims{
		Name:  "Ada",
		Email: email,
		Role:  "Admin",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	})
}

func TestDecodeClaims(t *testing.T) {
	t.Parallel()

	claims, err := DecodeClaims("")
	require.NoError(t, err)
	require.Equal(t, UserClaims{}, claims)

	claims, err = DecodeClaims(newTestAccessToken(t, "a@x.com"))
	require.NoError(t, err)
	require.Equal(t, UserClaims{ID: "user-1", Name: "Ada", Email: "a@x.com", Role: "Admin"}, claims)

	// Expired and foreign-key tokens still decode; the client never verifies.
	expired := signTestToken(t, accessTokenClaims{
		Email:            "old@x.com",
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour))},
	})
	claims, err = DecodeClaims(expired)
	require.NoError(t, err)
	require.Equal(t, "old@x.com", claims.Email)

	partial := signTestToken(t, jwt.MapClaims{"role": "User"})
	claims, err = DecodeClaims(partial)
	require.NoError(t, err)
	require.Equal(t, UserClaims{Role: "User"}, claims)

	_, err = DecodeClaims("not-a-token")
	require.Error(t, err)
}

func TestBuildIdentity(t *testing.T) {
	t.Parallel()

	anonymous := BuildIdentity(UserClaims{ID: "user-1", Name: "Ada", Role: "Admin"})
	require.False(t, anonymous.IsAuthenticated())
	require.Equal(t, AnonymousIdentity(), anonymous)

	identity := BuildIdentity(UserClaims{ID: "user-1", Email: "a@x.com"})
	require.True(t, identity.IsAuthenticated())
	require.Equal(t, AuthenticationType, identity.AuthenticationType)
	require.Equal(t, "user-1", identity.Claims.ID)
}
