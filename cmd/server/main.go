package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tyemirov/pwauth/internal/authkit"
	"github.com/tyemirov/pwauth/internal/authkitpg"
	"github.com/tyemirov/pwauth/internal/web"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var serveHTTP = func(server *http.Server) error {
	return server.ListenAndServe()
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "pwauth",
		Short:   "Auth service with email/password login, JWT access tokens, and rotating refresh tokens",
		PreRunE: prepareServerConfig,
		RunE:    runServer,
	}

	rootCmd.Flags().String("listen_addr", ":8080", "HTTP listen address")
	rootCmd.Flags().String("jwt_signing_key", "", "HS256 signing secret for access JWT")
	rootCmd.Flags().String("jwt_issuer", "pwauth", "Issuer claim of access JWT")
	rootCmd.Flags().String("jwt_audience", "", "Audience claim of access JWT; empty to omit")
	rootCmd.Flags().Duration("access_ttl", 15*time.Minute, "Access token TTL")
	rootCmd.Flags().Int("password_hash_cost", bcrypt.DefaultCost, "bcrypt cost for password hashes")
	rootCmd.Flags().Int("refresh_token_bytes", authkit.DefaultRefreshTokenBytes, "Random bytes per refresh token")
	rootCmd.Flags().String("refresh_store", refreshStoreMemory, "Store for accounts and refresh tokens: memory, database, or pgx")
	rootCmd.Flags().String("database_url", "", "Database URL (postgres:// or sqlite://) for the database and pgx stores")
	rootCmd.Flags().Bool("enable_cors", false, "Enable CORS for cross-origin clients")
	rootCmd.Flags().StringSlice("cors_allowed_origins", []string{}, "Allowed origins when CORS is enabled (required if enable_cors is true)")
	rootCmd.Flags().Int("auth_rate_limit", 20, "Authentication requests per minute per client address; 0 disables limiting")
	rootCmd.Flags().Int("auth_rate_burst", 0, "Burst size of the authentication rate limit; 0 uses auth_rate_limit")

	for _, flagName := range []string{
		"listen_addr",
		"jwt_signing_key",
		"jwt_issuer",
		"jwt_audience",
		"access_ttl",
		"password_hash_cost",
		"refresh_token_bytes",
		"refresh_store",
		"database_url",
		"enable_cors",
		"cors_allowed_origins",
		"auth_rate_limit",
		"auth_rate_burst",
	} {
		_ = viper.BindPFlag(flagName, rootCmd.Flags().Lookup(flagName))
	}

	viper.SetEnvPrefix("APP")
	viper.AutomaticEnv()

	return rootCmd
}

const (
	refreshStoreMemory   = "memory"
	refreshStoreDatabase = "database"
	refreshStorePgx      = "pgx"

	configCodeMissingJWTSigningKey    = "config.missing_jwt_signing_key"
	configCodeMissingJWTIssuer        = "config.missing_jwt_issuer"
	configCodeInvalidAccessTTL        = "config.invalid_access_ttl"
	configCodeInvalidHashCost         = "config.invalid_password_hash_cost"
	configCodeInvalidRefreshBytes     = "config.invalid_refresh_token_bytes"
	configCodeInvalidRefreshStore     = "config.invalid_refresh_store"
	configCodeMissingDatabaseURL      = "config.missing_database_url"
	configCodeUninitializedServerConf = "config.uninitialized_server_config"
)

type contextKey string

const serverConfigContextKey contextKey = "serverConfig"

func prepareServerConfig(command *cobra.Command, arguments []string) error {
	serverConfig, loadErr := LoadServerConfig()
	if loadErr != nil {
		return loadErr
	}
	if storeErr := validateStoreSelection(viper.GetString("refresh_store"), viper.GetString("database_url")); storeErr != nil {
		return storeErr
	}
	existingContext := command.Context()
	if existingContext == nil {
		existingContext = context.Background()
	}
	command.SetContext(context.WithValue(existingContext, serverConfigContextKey, serverConfig))
	return nil
}

func configError(code, message string) error {
	return fmt.Errorf("%s: %s", code, message)
}

// LoadServerConfig reads and validates the token and hashing settings from viper.
func LoadServerConfig() (authkit.ServerConfig, error) {
	jwtSigningKey := viper.GetString("jwt_signing_key")
	if jwtSigningKey == "" {
		return authkit.ServerConfig{}, configError(configCodeMissingJWTSigningKey, "jwt_signing_key must be provided")
	}

	jwtIssuer := strings.TrimSpace(viper.GetString("jwt_issuer"))
	if jwtIssuer == "" {
		return authkit.ServerConfig{}, configError(configCodeMissingJWTIssuer, "jwt_issuer must be provided")
	}

	accessTTL := viper.GetDuration("access_ttl")
	if accessTTL <= 0 {
		return authkit.ServerConfig{}, configError(configCodeInvalidAccessTTL, "access_ttl must be greater than zero")
	}

	passwordHashCost := viper.GetInt("password_hash_cost")
	if passwordHashCost < bcrypt.MinCost || passwordHashCost > bcrypt.MaxCost {
		return authkit.ServerConfig{}, configError(configCodeInvalidHashCost, fmt.Sprintf("password_hash_cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost))
	}

	refreshTokenBytes := viper.GetInt("refresh_token_bytes")
	if refreshTokenBytes < authkit.DefaultRefreshTokenBytes {
		return authkit.ServerConfig{}, configError(configCodeInvalidRefreshBytes, fmt.Sprintf("refresh_token_bytes must be at least %d", authkit.DefaultRefreshTokenBytes))
	}

	return authkit.ServerConfig{
		AccessTokenSigningKey: []byte(jwtSigningKey),
		AccessTokenIssuer:     jwtIssuer,
		AccessTokenAudience:   strings.TrimSpace(viper.GetString("jwt_audience")),
		AccessTokenTTL:        accessTTL,
		PasswordHashCost:      passwordHashCost,
		RefreshTokenBytes:     refreshTokenBytes,
	}, nil
}

func validateStoreSelection(storeKind string, databaseURL string) error {
	switch storeKind {
	case refreshStoreMemory:
		return nil
	case refreshStoreDatabase, refreshStorePgx:
		if strings.TrimSpace(databaseURL) == "" {
			return configError(configCodeMissingDatabaseURL, fmt.Sprintf("database_url must be provided for refresh_store=%s", storeKind))
		}
		if storeKind == refreshStorePgx && !isPostgresURL(databaseURL) {
			return configError(configCodeInvalidRefreshStore, "refresh_store=pgx requires a postgres:// database_url")
		}
		return nil
	default:
		return configError(configCodeInvalidRefreshStore, fmt.Sprintf("refresh_store must be one of memory, database, pgx; got %q", storeKind))
	}
}

func isPostgresURL(databaseURL string) bool {
	lowered := strings.ToLower(strings.TrimSpace(databaseURL))
	return strings.HasPrefix(lowered, "postgres://") || strings.HasPrefix(lowered, "postgresql://")
}

// serverStores holds the account and refresh token stores selected by configuration.
type serverStores struct {
	users         authkit.UserStore
	refreshTokens authkit.RefreshTokenStore
	closers       []func()
}

func (stores serverStores) Close() {
	for index := len(stores.closers) - 1; index >= 0; index-- {
		stores.closers[index]()
	}
}

func openStores(ctx context.Context, logger *zap.Logger, storeKind string, databaseURL string) (serverStores, error) {
	if storeKind == refreshStoreMemory {
		logger.Info("using in-memory stores")
		return serverStores{
			users:         authkit.NewMemoryUserStore(),
			refreshTokens: authkit.NewMemoryRefreshTokenStore(),
		}, nil
	}

	databaseStore, storeErr := authkit.NewDatabaseStore(ctx, databaseURL)
	if storeErr != nil {
		return serverStores{}, storeErr
	}
	stores := serverStores{
		users:         databaseStore,
		refreshTokens: databaseStore,
		closers:       []func(){func() { _ = databaseStore.Close() }},
	}
	if storeKind == refreshStoreDatabase {
		logger.Info("using persistent stores", zap.String("driver", databaseStore.Driver()))
		return stores, nil
	}

	pool, poolErr := authkitpg.BuildPool(ctx, databaseURL)
	if poolErr != nil {
		stores.Close()
		return serverStores{}, poolErr
	}
	stores.refreshTokens = authkitpg.NewPostgresRefreshTokenStore(pool)
	stores.closers = append(stores.closers, pool.Close)
	logger.Info("using pgx refresh token store", zap.String("driver", databaseStore.Driver()))
	return stores, nil
}

// routerMiddleware holds optional middleware; nil entries are skipped.
type routerMiddleware struct {
	cors      gin.HandlerFunc
	authLimit gin.HandlerFunc
}

func buildRouter(logger *zap.Logger, serverConfig authkit.ServerConfig, stores serverStores, clock authkit.Clock, metricsRecorder authkit.MetricsRecorder, middleware routerMiddleware) (*gin.Engine, error) {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(zapLoggerMiddleware(logger))
	if middleware.cors != nil {
		router.Use(middleware.cors)
	}

	validator, validatorErr := authkit.NewAccessTokenValidator(serverConfig, clock)
	if validatorErr != nil {
		return nil, validatorErr
	}
	service := authkit.NewAccountService(serverConfig, stores.users, stores.refreshTokens,
		authkit.WithLogger(logger),
		authkit.WithMetrics(metricsRecorder),
		authkit.WithClock(clock))

	authRouter := router.Group("")
	if middleware.authLimit != nil {
		authRouter.Use(middleware.authLimit)
	}
	authkit.MountAuthRoutes(authRouter, service, validator, logger)

	protected := router.Group("/api")
	protected.Use(authkit.RequireBearer(validator))
	protected.GET("/me", web.HandleWhoAmI(logger, stores.users))

	return router, nil
}

func runServer(command *cobra.Command, arguments []string) error {
	logger, loggerErr := zap.NewProduction()
	if loggerErr != nil {
		return loggerErr
	}
	defer func() { _ = logger.Sync() }()

	commandContext := command.Context()
	var contextValue any
	if commandContext != nil {
		contextValue = commandContext.Value(serverConfigContextKey)
	}
	serverConfig, ok := contextValue.(authkit.ServerConfig)
	if !ok {
		return configError(configCodeUninitializedServerConf, "server configuration not prepared; PreRunE must execute before RunE")
	}

	listenAddr := viper.GetString("listen_addr")
	storeKind := viper.GetString("refresh_store")
	databaseURL := viper.GetString("database_url")
	enableCORS := viper.GetBool("enable_cors")
	corsAllowedOrigins := viper.GetStringSlice("cors_allowed_origins")

	var middleware routerMiddleware
	if enableCORS {
		configured, corsErr := web.ConfigureCORS(logger, corsAllowedOrigins)
		if corsErr != nil {
			return corsErr
		}
		middleware.cors = configured
	}
	if authRateLimit := viper.GetInt("auth_rate_limit"); authRateLimit > 0 {
		limiter, limitErr := web.RateLimitByClient(logger, web.RateLimitConfig{
			RequestsPerWindow: authRateLimit,
			Window:            time.Minute,
			Burst:             viper.GetInt("auth_rate_burst"),
		})
		if limitErr != nil {
			return limitErr
		}
		middleware.authLimit = limiter
	}

	stores, storesErr := openStores(command.Context(), logger, storeKind, databaseURL)
	if storesErr != nil {
		return storesErr
	}
	defer stores.Close()

	gin.SetMode(gin.ReleaseMode)
	router, routerErr := buildRouter(logger, serverConfig, stores, authkit.NewSystemClock(), authkit.NewCounterMetrics(), middleware)
	if routerErr != nil {
		return routerErr
	}

	server := &http.Server{
		Addr:              listenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())
	defer shutdownCancel()

	go func() {
		stopSignals := make(chan os.Signal, 1)
		signal.Notify(stopSignals, syscall.SIGINT, syscall.SIGTERM)
		<-stopSignals
		graceCtx, graceCancel := context.WithTimeout(shutdownCtx, 10*time.Second)
		defer graceCancel()
		if err := server.Shutdown(graceCtx); err != nil {
			logger.Error("server shutdown error", zap.Error(err))
		}
	}()

	logger.Info("listening", zap.String("addr", listenAddr))
	if err := serveHTTP(server); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen error: %w", err)
	}
	return nil
}

func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		startTime := time.Now()
		contextGin.Next()
		duration := time.Since(startTime)
		logger.Info("http",
			zap.String("method", contextGin.Request.Method),
			zap.String("path", contextGin.Request.URL.Path),
			zap.Int("status", contextGin.Writer.Status()),
			zap.String("ip", contextGin.ClientIP()),
			zap.Duration("elapsed", duration),
		)
	}
}
