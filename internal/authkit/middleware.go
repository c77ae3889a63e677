package authkit

import (
	"github.com/gin-gonic/gin"
	"github.com/tyemirov/pwauth/pkg/sessionvalidator"
)

// ClaimsContextKey is where RequireBearer stores the verified access claims.
const ClaimsContextKey = sessionvalidator.DefaultContextKey

// NewAccessTokenValidator builds the server-side verifier for tokens minted with configuration.
func NewAccessTokenValidator(configuration ServerConfig, clock Clock) (*sessionvalidator.Validator, error) {
	return sessionvalidator.New(sessionvalidator.Config{
		SigningKey: configuration.AccessTokenSigningKey,
		Issuer:     configuration.AccessTokenIssuer,
		Audience:   configuration.AccessTokenAudience,
		Clock:      clock,
	})
}

// RequireBearer rejects requests without a valid access token and injects its claims.
// Every protected request is verified here independently of any client-side decoding.
func RequireBearer(validator *sessionvalidator.Validator) gin.HandlerFunc {
	return validator.GinMiddleware(ClaimsContextKey)
}

// ClaimsFromContext returns the claims stored by RequireBearer.
func ClaimsFromContext(contextGin *gin.Context) (*AccessClaims, bool) {
	claimsValue, found := contextGin.Get(ClaimsContextKey)
	if !found {
		return nil, false
	}
	claims, ok := claimsValue.(*AccessClaims)
	if !ok || claims == nil || claims.Subject == "" {
		return nil, false
	}
	return claims, true
}
