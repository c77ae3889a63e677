package web

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tyemirov/pwauth/internal/authkit"
	"go.uber.org/zap"
)

// HandleWhoAmI resolves the authenticated user's profile payload.
// The identity comes from the verified bearer token; the profile is re-read from the store.
func HandleWhoAmI(logger *zap.Logger, users authkit.UserStore) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	if users == nil {
		panic("user store is required")
	}

	return func(contextGin *gin.Context) {
		claims, ok := authkit.ClaimsFromContext(contextGin)
		if !ok {
			logger.Warn("missing auth claims on context",
				zap.String("code", "api.me.missing_claims"))
			contextGin.AbortWithStatus(http.StatusUnauthorized)
			return
		}

		user, profileErr := users.FindUserByID(contextGin.Request.Context(), claims.Subject)
		if profileErr != nil {
			if errors.Is(profileErr, authkit.ErrUserNotFound) {
				logger.Warn("user profile missing",
					zap.String("code", "api.me.profile_missing"),
					zap.String("user_id", claims.Subject))
				contextGin.AbortWithStatus(http.StatusUnauthorized)
				return
			}
			logger.Error("user profile lookup error",
				zap.String("code", "api.me.profile_error"),
				zap.String("user_id", claims.Subject),
				zap.Error(profileErr))
			contextGin.AbortWithStatus(http.StatusInternalServerError)
			return
		}

		expiresAt := time.Time{}
		if claims.ExpiresAt != nil {
			expiresAt = claims.ExpiresAt.Time
		}

		contextGin.JSON(http.StatusOK, gin.H{
			"id":      user.ID,
			"name":    user.Fullname,
			"email":   user.Email,
			"role":    claims.Role,
			"expires": expiresAt,
		})
	}
}
