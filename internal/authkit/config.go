package authkit

import "time"

const (
	// AdminRoleName is granted to the first account registered on a fresh deployment.
	AdminRoleName = "Admin"
	// UserRoleName is granted to every subsequent account.
	UserRoleName = "User"

	// DefaultRefreshTokenBytes is the entropy of an opaque refresh token before encoding.
	DefaultRefreshTokenBytes = 64
)

// ServerConfig configures token signing, lifetimes, and password hashing.
type ServerConfig struct {
	AccessTokenSigningKey []byte
	AccessTokenIssuer     string
	AccessTokenAudience   string
	AccessTokenTTL        time.Duration
	PasswordHashCost      int
	RefreshTokenBytes     int
}

func (configuration ServerConfig) refreshTokenBytes() int {
	if configuration.RefreshTokenBytes < DefaultRefreshTokenBytes {
		return DefaultRefreshTokenBytes
	}
	return configuration.RefreshTokenBytes
}
