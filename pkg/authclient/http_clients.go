package authclient

import (
	"net/http"
	"time"
)

const defaultHTTPTimeout = 30 * time.Second

// NewPublicHTTPClient returns a client without token handling, for the authentication endpoints.
func NewPublicHTTPClient() *http.Client {
	return &http.Client{Timeout: defaultHTTPTimeout}
}

// NewPrivateHTTPClient returns a client whose requests carry the stored access token and
// recover from expiry through a silent refresh.
func NewPrivateHTTPClient(state *AuthStateProvider, refresher TokenRefresher, options ...TransportOption) *http.Client {
	return &http.Client{
		Timeout:   defaultHTTPTimeout,
		Transport: NewRefreshingTransport(state, refresher, options...),
	}
}
