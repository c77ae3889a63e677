package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Server paths of the authentication endpoints.
const (
	RegisterPath     = "/api/authentication/register"
	LoginPath        = "/api/authentication/login"
	RefreshTokenPath = "/api/authentication/refresh-token"
	LogoutPath       = "/api/authentication/logout"
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

type refreshTokenRequest struct {
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

// Session returns the token pair carried by a successful response.
func (response LoginResponse) Session() Session {
	return Session{AccessToken: response.AccessToken, RefreshToken: response.RefreshToken}
}

// StatusError reports a response the server did not answer with a success/message body.
type StatusError struct {
	Path       string
	StatusCode int
}

func (statusErr *StatusError) Error() string {
	return fmt.Sprintf("authclient.http.%s: unexpected status %d", strings.Trim(statusErr.Path, "/"), statusErr.StatusCode)
}

// AccountClient calls the authentication endpoints.
// Denied operations come back as responses with Success false and a nil error.
type AccountClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewAccountClient uses NewPublicHTTPClient when httpClient is nil.
func NewAccountClient(baseURL string, httpClient *http.Client) *AccountClient {
	if httpClient == nil {
		httpClient = NewPublicHTTPClient()
	}
	return &AccountClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
	}
}

// Register creates an account.
func (client *AccountClient) Register(ctx context.Context, request RegisterRequest) (GeneralResponse, error) {
	var response GeneralResponse
	err := client.postJSON(ctx, RegisterPath, request, &response)
	return response, err
}

// Login exchanges credentials for a token pair.
func (client *AccountClient) Login(ctx context.Context, request LoginRequest) (LoginResponse, error) {
	var response LoginResponse
	err := client.postJSON(ctx, LoginPath, request, &response)
	return response, err
}

// RefreshToken exchanges a refresh token for a rotated pair.
func (client *AccountClient) RefreshToken(ctx context.Context, refreshToken string) (LoginResponse, error) {
	var response LoginResponse
	err := client.postJSON(ctx, RefreshTokenPath, refreshTokenRequest{RefreshToken: refreshToken}, &response)
	return response, err
}

// Logout revokes the server-side refresh token. The client must carry a bearer token,
// so build this AccountClient over NewPrivateHTTPClient.
func (client *AccountClient) Logout(ctx context.Context) (GeneralResponse, error) {
	var response GeneralResponse
	err := client.postJSON(ctx, LogoutPath, struct{}{}, &response)
	return response, err
}

func (client *AccountClient) postJSON(ctx context.Context, path string, payload any, target any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("authclient.http.encode: %w", err)
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, client.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("authclient.http.request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := client.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("authclient.http.do: %w", err)
	}
	defer response.Body.Close()

	// 400 carries the same success/message body as business failures.
	if response.StatusCode != http.StatusOK && response.StatusCode != http.StatusBadRequest {
		_, _ = io.Copy(io.Discard, response.Body)
		return &StatusError{Path: path, StatusCode: response.StatusCode}
	}
	if err := json.NewDecoder(response.Body).Decode(target); err != nil {
		return fmt.Errorf("authclient.http.decode: %w", err)
	}
	return nil
}
