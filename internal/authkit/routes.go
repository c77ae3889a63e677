package authkit

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tyemirov/pwauth/pkg/sessionvalidator"
	"go.uber.org/zap"
)

// Route paths mounted by MountAuthRoutes, relative to the router they are mounted on.
const (
	AuthenticationGroupPath = "/api/authentication"
	RegisterPath            = "/register"
	LoginPath               = "/login"
	RefreshTokenPath        = "/refresh-token"
	LogoutPath              = "/logout"
)

const messageInternalError = "Internal server error"

// MountAuthRoutes registers register, login, refresh-token, and logout under /api/authentication.
func MountAuthRoutes(router gin.IRouter, service *AccountService, validator *sessionvalidator.Validator, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	group := router.Group(AuthenticationGroupPath)

	group.POST(RegisterPath, func(contextGin *gin.Context) {
		var inbound RegisterRequest
		if err := contextGin.ShouldBindJSON(&inbound); err != nil {
			contextGin.AbortWithStatusJSON(http.StatusBadRequest, GeneralResponse{Success: false, Message: messageModelEmpty})
			return
		}
		response, err := service.Register(contextGin.Request.Context(), &inbound)
		if err != nil {
			abortInternal(contextGin, logger, "auth.http.register", err)
			return
		}
		contextGin.JSON(http.StatusOK, response)
	})

	group.POST(LoginPath, func(contextGin *gin.Context) {
		var inbound LoginRequest
		if err := contextGin.ShouldBindJSON(&inbound); err != nil {
			contextGin.AbortWithStatusJSON(http.StatusBadRequest, LoginResponse{Success: false, Message: messageModelEmpty})
			return
		}
		response, err := service.Login(contextGin.Request.Context(), &inbound)
		if err != nil {
			abortInternal(contextGin, logger, "auth.http.login", err)
			return
		}
		contextGin.JSON(http.StatusOK, response)
	})

	group.POST(RefreshTokenPath, func(contextGin *gin.Context) {
		var inbound RefreshTokenRequest
		if err := contextGin.ShouldBindJSON(&inbound); err != nil {
			contextGin.AbortWithStatusJSON(http.StatusBadRequest, LoginResponse{Success: false, Message: messageTokenEmpty})
			return
		}
		response, err := service.RefreshToken(contextGin.Request.Context(), &inbound)
		if err != nil {
			abortInternal(contextGin, logger, "auth.http.refresh", err)
			return
		}
		contextGin.JSON(http.StatusOK, response)
	})

	group.POST(LogoutPath, RequireBearer(validator), func(contextGin *gin.Context) {
		claims, ok := ClaimsFromContext(contextGin)
		if !ok {
			contextGin.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		response, err := service.Logout(contextGin.Request.Context(), claims.Subject)
		if err != nil {
			abortInternal(contextGin, logger, "auth.http.logout", err)
			return
		}
		contextGin.JSON(http.StatusOK, response)
	})
}

func abortInternal(contextGin *gin.Context, logger *zap.Logger, code string, err error) {
	logger.Error("auth request failed",
		zap.String("code", code),
		zap.Error(err))
	contextGin.AbortWithStatusJSON(http.StatusInternalServerError, GeneralResponse{Success: false, Message: messageInternalError})
}
