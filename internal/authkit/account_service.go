package authkit

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
)

// Response messages returned to clients.
const (
	messageModelEmpty         = "Model is empty"
	messageUserNotFound       = "User not found"
	messageInvalidCredentials = "Email/Password not valid"
	messageRoleNotFound       = "User role not found"
	messageTokenEmpty         = "Token is empty"
	messageTokenNotFound      = "Token not found"
	messageUserRegistered     = "User registered already"
	messageAccountCreated     = "Account created!"
	messageLoginSuccessful    = "Login successful"
	messageTokenRefreshed     = "Token refreshed successfully"
	messageLoggedOut          = "Logged out"
	messagePasswordTooLong    = "Password is too long"
)

// bcrypt ignores input past this many bytes.
const maxPasswordBytes = 72

const (
	metricAuthLoginSuccess    = "auth.login.success"
	metricAuthLoginFailure    = "auth.login.failure"
	metricAuthRefreshSuccess  = "auth.refresh.success"
	metricAuthRefreshFailure  = "auth.refresh.failure"
	metricAuthRegisterSuccess = "auth.register.success"
	metricAuthRegisterFailure = "auth.register.failure"
	metricAuthLogoutSuccess   = "auth.logout.success"
)

// RegisterRequest is the registration payload.
type RegisterRequest struct {
	Fullname string `json:"fullname"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest is the credential payload.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RefreshTokenRequest carries the opaque refresh token.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// GeneralResponse reports the outcome of an operation that issues no tokens.
type GeneralResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// LoginResponse reports the outcome of a login or refresh.
type LoginResponse struct {
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	AccessToken  string `json:"accessToken,omitempty"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

// AccountService implements register, login, refresh, and logout.
// Business failures come back as unsuccessful responses with a nil error;
// a non-nil error always means an infrastructure failure.
type AccountService struct {
	configuration ServerConfig
	users         UserStore
	verifier      *CredentialVerifier
	issuer        *TokenIssuer
	logger        *zap.Logger
	metrics       MetricsRecorder
}

// AccountServiceOption customizes an AccountService.
type AccountServiceOption func(*AccountService)

// WithLogger sets the logger used for auth events.
func WithLogger(logger *zap.Logger) AccountServiceOption {
	return func(service *AccountService) {
		if logger != nil {
			service.logger = logger
		}
	}
}

// WithMetrics sets the recorder for auth event counters.
func WithMetrics(metrics MetricsRecorder) AccountServiceOption {
	return func(service *AccountService) {
		if metrics != nil {
			service.metrics = metrics
		}
	}
}

// WithClock sets the clock used to stamp access tokens.
func WithClock(clock Clock) AccountServiceOption {
	return func(service *AccountService) {
		if clock != nil {
			service.issuer.clock = clock
		}
	}
}

// NewAccountService wires the credential verifier and token issuer over the given stores.
func NewAccountService(configuration ServerConfig, users UserStore, refreshTokens RefreshTokenStore, options ...AccountServiceOption) *AccountService {
	service := &AccountService{
		configuration: configuration,
		users:         users,
		verifier:      NewCredentialVerifier(users),
		issuer:        NewTokenIssuer(configuration, users, refreshTokens, nil),
		logger:        zap.NewNop(),
		metrics:       noopMetrics{},
	}
	for _, option := range options {
		option(service)
	}
	return service
}

// Issuer exposes the token issuer.
func (service *AccountService) Issuer() *TokenIssuer {
	return service.issuer
}

// Register creates an account. The first account of a deployment becomes an administrator.
func (service *AccountService) Register(ctx context.Context, request *RegisterRequest) (GeneralResponse, error) {
	if request == nil || strings.TrimSpace(request.Email) == "" || request.Password == "" {
		service.metrics.Increment(metricAuthRegisterFailure)
		return GeneralResponse{Success: false, Message: messageModelEmpty}, nil
	}
	if len(request.Password) > maxPasswordBytes {
		service.metrics.Increment(metricAuthRegisterFailure)
		return GeneralResponse{Success: false, Message: messagePasswordTooLong}, nil
	}
	passwordHash, hashErr := HashPassword(request.Password, service.configuration.PasswordHashCost)
	if hashErr != nil {
		return GeneralResponse{}, hashErr
	}
	user, roleName, createErr := service.users.CreateUser(ctx, UserRegistration{
		Fullname:     strings.TrimSpace(request.Fullname),
		Email:        strings.TrimSpace(request.Email),
		PasswordHash: passwordHash,
		AdminRole:    AdminRoleName,
		DefaultRole:  UserRoleName,
	})
	if createErr != nil {
		if errors.Is(createErr, ErrUserAlreadyRegistered) {
			service.metrics.Increment(metricAuthRegisterFailure)
			service.logger.Info("registration denied",
				zap.String("code", "auth.register.duplicate"))
			return GeneralResponse{Success: false, Message: messageUserRegistered}, nil
		}
		service.logger.Error("registration failed",
			zap.String("code", "auth.register.persistence"),
			zap.Error(createErr))
		return GeneralResponse{}, persistenceFailure("user.create", createErr)
	}
	service.metrics.Increment(metricAuthRegisterSuccess)
	service.logger.Info("account registered",
		zap.String("code", "auth.register.success"),
		zap.String("user_id", user.ID),
		zap.String("role", roleName))
	return GeneralResponse{Success: true, Message: messageAccountCreated}, nil
}

// Login verifies credentials and issues a fresh token pair, replacing any earlier session.
func (service *AccountService) Login(ctx context.Context, request *LoginRequest) (LoginResponse, error) {
	if request == nil || strings.TrimSpace(request.Email) == "" || request.Password == "" {
		service.metrics.Increment(metricAuthLoginFailure)
		return LoginResponse{Success: false, Message: messageModelEmpty}, nil
	}
	user, verifyErr := service.verifier.Verify(ctx, request.Email, request.Password)
	if verifyErr != nil {
		return service.denyLogin(verifyErr)
	}
	roleName, roleErr := service.users.FindUserRole(ctx, user.ID)
	if roleErr != nil {
		if !errors.Is(roleErr, ErrRoleNotFound) {
			roleErr = persistenceFailure("user_role.find", roleErr)
		}
		return service.denyLogin(roleErr)
	}
	pair, issueErr := service.issuer.IssueTokens(ctx, user, roleName)
	if issueErr != nil {
		return service.denyLogin(issueErr)
	}
	service.metrics.Increment(metricAuthLoginSuccess)
	service.logger.Info("login succeeded",
		zap.String("code", "auth.login.success"),
		zap.String("user_id", user.ID))
	return LoginResponse{
		Success:      true,
		Message:      messageLoginSuccessful,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	}, nil
}

// RefreshToken rotates the presented refresh token into a new pair.
func (service *AccountService) RefreshToken(ctx context.Context, request *RefreshTokenRequest) (LoginResponse, error) {
	if request == nil || strings.TrimSpace(request.RefreshToken) == "" {
		service.metrics.Increment(metricAuthRefreshFailure)
		return LoginResponse{Success: false, Message: messageTokenEmpty}, nil
	}
	pair, refreshErr := service.issuer.Refresh(ctx, request.RefreshToken)
	if refreshErr != nil {
		if !IsBusinessFailure(refreshErr) {
			service.logger.Error("refresh failed",
				zap.String("code", "auth.refresh.persistence"),
				zap.Error(refreshErr))
			return LoginResponse{}, refreshErr
		}
		service.metrics.Increment(metricAuthRefreshFailure)
		service.logger.Info("refresh denied",
			zap.String("code", "auth.refresh.denied"),
			zap.String("reason", refreshErr.Error()))
		return LoginResponse{Success: false, Message: messageForFailure(refreshErr)}, nil
	}
	service.metrics.Increment(metricAuthRefreshSuccess)
	return LoginResponse{
		Success:      true,
		Message:      messageTokenRefreshed,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	}, nil
}

// Logout revokes the user's refresh token.
func (service *AccountService) Logout(ctx context.Context, applicationUserID string) (GeneralResponse, error) {
	if strings.TrimSpace(applicationUserID) == "" {
		return GeneralResponse{Success: false, Message: messageModelEmpty}, nil
	}
	if revokeErr := service.issuer.Revoke(ctx, applicationUserID); revokeErr != nil {
		return GeneralResponse{}, revokeErr
	}
	service.metrics.Increment(metricAuthLogoutSuccess)
	return GeneralResponse{Success: true, Message: messageLoggedOut}, nil
}

func (service *AccountService) denyLogin(err error) (LoginResponse, error) {
	if !IsBusinessFailure(err) {
		service.logger.Error("login failed",
			zap.String("code", "auth.login.persistence"),
			zap.Error(err))
		return LoginResponse{}, err
	}
	service.metrics.Increment(metricAuthLoginFailure)
	service.logger.Info("login denied",
		zap.String("code", "auth.login.denied"),
		zap.String("reason", err.Error()))
	return LoginResponse{Success: false, Message: messageForFailure(err)}, nil
}

func messageForFailure(err error) string {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return messageModelEmpty
	case errors.Is(err, ErrUserNotFound):
		return messageUserNotFound
	case errors.Is(err, ErrInvalidCredentials):
		return messageInvalidCredentials
	case errors.Is(err, ErrRoleNotFound):
		return messageRoleNotFound
	case errors.Is(err, ErrTokenNotFound):
		return messageTokenNotFound
	case errors.Is(err, ErrUserAlreadyRegistered):
		return messageUserRegistered
	default:
		return err.Error()
	}
}
