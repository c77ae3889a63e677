package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tyemirov/pwauth/pkg/authclient"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const profilePath = "/api/me"

var errNotAuthenticated = errors.New("authctl.not_authenticated")

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "authctl",
		Short:        "Command-line client for the pwauth server",
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().String("base_url", "http://localhost:8080", "Base URL of the pwauth server")
	rootCmd.PersistentFlags().String("session_dir", defaultSessionDirectory(), "Directory holding the stored session")
	rootCmd.PersistentFlags().String("redis_url", "", "Store the session in Redis instead of a file (redis://host:port/db)")
	rootCmd.PersistentFlags().Duration("redis_ttl", 0, "Expiry of the Redis session key; zero keeps it until logout")
	rootCmd.PersistentFlags().String("storage_key", authclient.DefaultStorageKey, "Key the session is stored under")
	rootCmd.PersistentFlags().String("log_level", "warn", "Log level (debug, info, warn, error)")

	for _, flagName := range []string{"base_url", "session_dir", "redis_url", "redis_ttl", "storage_key", "log_level"} {
		_ = viper.BindPFlag(flagName, rootCmd.PersistentFlags().Lookup(flagName))
	}

	viper.SetEnvPrefix("AUTHCTL")
	viper.AutomaticEnv()

	rootCmd.AddCommand(newRegisterCommand(), newLoginCommand(), newStatusCommand(), newWhoAmICommand(), newLogoutCommand())
	return rootCmd
}

func defaultSessionDirectory() string {
	configDirectory, err := os.UserConfigDir()
	if err != nil {
		return ".authctl"
	}
	return filepath.Join(configDirectory, "authctl")
}

// clientEnvironment carries the collaborators shared by every subcommand.
type clientEnvironment struct {
	logger   *zap.Logger
	accounts *authclient.AccountClient
	state    *authclient.AuthStateProvider
	private  *http.Client
	baseURL  string
	closers  []func()
}

func (environment *clientEnvironment) Close() {
	for index := len(environment.closers) - 1; index >= 0; index-- {
		environment.closers[index]()
	}
}

func openEnvironment() (*clientEnvironment, error) {
	logger, err := buildLogger(viper.GetString("log_level"))
	if err != nil {
		return nil, err
	}
	environment := &clientEnvironment{
		logger:  logger,
		baseURL: strings.TrimSuffix(strings.TrimSpace(viper.GetString("base_url")), "/"),
		closers: []func(){func() { _ = logger.Sync() }},
	}
	if environment.baseURL == "" {
		environment.Close()
		return nil, fmt.Errorf("config.missing_base_url: base_url must be provided")
	}

	store, closeStore, err := openSessionStore(viper.GetString("redis_url"), viper.GetDuration("redis_ttl"), viper.GetString("session_dir"))
	if err != nil {
		environment.Close()
		return nil, err
	}
	environment.closers = append(environment.closers, closeStore)

	environment.accounts = authclient.NewAccountClient(environment.baseURL, nil)
	environment.state = authclient.NewAuthStateProvider(store,
		authclient.WithStateLogger(logger),
		authclient.WithStorageKey(viper.GetString("storage_key")))
	environment.private = authclient.NewPrivateHTTPClient(environment.state, environment.accounts,
		authclient.WithTransportLogger(logger))
	return environment, nil
}

func buildLogger(levelName string) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(levelName)
	if err != nil {
		return nil, fmt.Errorf("config.invalid_log_level: %w", err)
	}
	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(level)
	return config.Build()
}

// openSessionStore prefers Redis when redisURL is set and falls back to a session file.
func openSessionStore(redisURL string, redisTTL time.Duration, sessionDirectory string) (authclient.SessionStore, func(), error) {
	if strings.TrimSpace(redisURL) != "" {
		options, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("config.invalid_redis_url: %w", err)
		}
		client := redis.NewClient(options)
		store := authclient.NewRedisSessionStore(client, authclient.WithRedisTTL(redisTTL))
		return store, func() { _ = client.Close() }, nil
	}
	store, err := authclient.NewFileSessionStore(sessionDirectory)
	if err != nil {
		return nil, nil, err
	}
	return store, func() {}, nil
}

func withEnvironment(run func(command *cobra.Command, environment *clientEnvironment, arguments []string) error) func(*cobra.Command, []string) error {
	return func(command *cobra.Command, arguments []string) error {
		environment, err := openEnvironment()
		if err != nil {
			return err
		}
		defer environment.Close()
		return run(command, environment, arguments)
	}
}

func newRegisterCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		Args:  cobra.NoArgs,
	}
	command.Flags().String("fullname", "", "Full name")
	command.Flags().String("email", "", "Email address")
	command.Flags().String("password", "", "Password")
	command.RunE = withEnvironment(func(command *cobra.Command, environment *clientEnvironment, arguments []string) error {
		fullname, _ := command.Flags().GetString("fullname")
		email, _ := command.Flags().GetString("email")
		password, _ := command.Flags().GetString("password")
		response, err := environment.accounts.Register(command.Context(), authclient.RegisterRequest{
			Fullname: fullname,
			Email:    email,
			Password: password,
		})
		if err != nil {
			return err
		}
		return reportOutcome(command.OutOrStdout(), response.Success, response.Message)
	})
	return command
}

func newLoginCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session",
		Args:  cobra.NoArgs,
	}
	command.Flags().String("email", "", "Email address")
	command.Flags().String("password", "", "Password")
	command.RunE = withEnvironment(func(command *cobra.Command, environment *clientEnvironment, arguments []string) error {
		email, _ := command.Flags().GetString("email")
		password, _ := command.Flags().GetString("password")
		response, err := environment.accounts.Login(command.Context(), authclient.LoginRequest{Email: email, Password: password})
		if err != nil {
			return err
		}
		if !response.Success {
			return reportOutcome(command.OutOrStdout(), false, response.Message)
		}
		if err := environment.state.UpdateState(command.Context(), response.Session()); err != nil {
			return err
		}
		identity := environment.state.Identity()
		fmt.Fprintf(command.OutOrStdout(), "%s\nsigned in as %s (%s)\n", response.Message, identity.Claims.Email, identity.Claims.Role)
		return nil
	})
	return command
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the identity held in the stored session",
		Args:  cobra.NoArgs,
		RunE: withEnvironment(func(command *cobra.Command, environment *clientEnvironment, arguments []string) error {
			identity := environment.state.CurrentState(command.Context())
			if !identity.IsAuthenticated() {
				fmt.Fprintln(command.OutOrStdout(), "anonymous")
				return nil
			}
			fmt.Fprintf(command.OutOrStdout(), "authenticated as %s (%s) via %s\n",
				identity.Claims.Email, identity.Claims.Role, identity.AuthenticationType)
			return nil
		}),
	}
}

func newWhoAmICommand() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Fetch the signed-in profile from the server",
		Args:  cobra.NoArgs,
		RunE: withEnvironment(func(command *cobra.Command, environment *clientEnvironment, arguments []string) error {
			request, err := http.NewRequestWithContext(command.Context(), http.MethodGet, environment.baseURL+profilePath, nil)
			if err != nil {
				return err
			}
			response, err := environment.private.Do(request)
			if err != nil {
				return err
			}
			defer response.Body.Close()
			if response.StatusCode == http.StatusUnauthorized {
				return errNotAuthenticated
			}
			if response.StatusCode != http.StatusOK {
				return &authclient.StatusError{Path: profilePath, StatusCode: response.StatusCode}
			}
			var profile map[string]any
			if err := json.NewDecoder(response.Body).Decode(&profile); err != nil {
				return fmt.Errorf("authctl.whoami.decode: %w", err)
			}
			encoder := json.NewEncoder(command.OutOrStdout())
			encoder.SetIndent("", "  ")
			return encoder.Encode(profile)
		}),
	}
}

func newLogoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Revoke the refresh token and clear the stored session",
		Args:  cobra.NoArgs,
		RunE: withEnvironment(func(command *cobra.Command, environment *clientEnvironment, arguments []string) error {
			if _, ok := environment.state.StoredSession(command.Context()); !ok {
				fmt.Fprintln(command.OutOrStdout(), "not signed in")
				return nil
			}
			privateAccounts := authclient.NewAccountClient(environment.baseURL, environment.private)
			if _, err := privateAccounts.Logout(command.Context()); err != nil {
				environment.logger.Warn("server logout failed",
					zap.String("code", "authctl.logout.server"),
					zap.Error(err))
			}
			if err := environment.state.UpdateState(command.Context(), authclient.Session{}); err != nil {
				return err
			}
			fmt.Fprintln(command.OutOrStdout(), "signed out")
			return nil
		}),
	}
}

func reportOutcome(output io.Writer, success bool, message string) error {
	if !success {
		return fmt.Errorf("authctl.denied: %s", message)
	}
	fmt.Fprintln(output, message)
	return nil
}
