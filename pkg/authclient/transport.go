package authclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const defaultRefreshTimeout = 15 * time.Second

var (
	// ErrRefreshDenied is returned when the server rejects the stored refresh token.
	ErrRefreshDenied = errors.New("authclient.refresh.denied")
	// ErrRefreshEmpty is returned when a successful refresh carries no tokens.
	ErrRefreshEmpty = errors.New("authclient.refresh.empty")

	errSessionCleared = errors.New("authclient.refresh.session_cleared")
)

// TokenRefresher exchanges a refresh token for a new pair.
type TokenRefresher interface {
	RefreshToken(ctx context.Context, refreshToken string) (LoginResponse, error)
}

// RefreshingTransport attaches the stored access token to outgoing requests. On a 401 it
// refreshes the session and resends the request once.
type RefreshingTransport struct {
	base           http.RoundTripper
	state          *AuthStateProvider
	refresher      TokenRefresher
	logger         *zap.Logger
	refreshTimeout time.Duration
	bypassSuffixes []string

	refreshGroup singleflight.Group
}

// TransportOption customizes a RefreshingTransport.
type TransportOption func(*RefreshingTransport)

// WithBaseTransport sets the transport that performs the actual round trips.
func WithBaseTransport(base http.RoundTripper) TransportOption {
	return func(transport *RefreshingTransport) {
		if base != nil {
			transport.base = base
		}
	}
}

// WithTransportLogger sets the logger for refresh outcomes.
func WithTransportLogger(logger *zap.Logger) TransportOption {
	return func(transport *RefreshingTransport) {
		if logger != nil {
			transport.logger = logger
		}
	}
}

// WithRefreshTimeout bounds a refresh call, which outlives the request that started it.
func WithRefreshTimeout(timeout time.Duration) TransportOption {
	return func(transport *RefreshingTransport) {
		if timeout > 0 {
			transport.refreshTimeout = timeout
		}
	}
}

// NewRefreshingTransport wraps http.DefaultTransport unless WithBaseTransport is given.
func NewRefreshingTransport(state *AuthStateProvider, refresher TokenRefresher, options ...TransportOption) *RefreshingTransport {
	transport := &RefreshingTransport{
		base:           http.DefaultTransport,
		state:          state,
		refresher:      refresher,
		logger:         zap.NewNop(),
		refreshTimeout: defaultRefreshTimeout,
		bypassSuffixes: []string{"/login", "/register", "/refresh-token"},
	}
	for _, option := range options {
		option(transport)
	}
	return transport
}

// RoundTrip implements http.RoundTripper.
func (transport *RefreshingTransport) RoundTrip(request *http.Request) (*http.Response, error) {
	if transport.bypasses(request) {
		return transport.base.RoundTrip(request)
	}
	body, err := bufferBody(request)
	if err != nil {
		return nil, err
	}
	ctx := request.Context()

	sentToken := ""
	if session, ok := transport.state.StoredSession(ctx); ok {
		sentToken = session.AccessToken
	}
	response, err := transport.send(request, body, sentToken)
	if err != nil || response.StatusCode != http.StatusUnauthorized {
		return response, err
	}

	current, ok := transport.state.StoredSession(ctx)
	if !ok {
		return response, nil
	}
	// Sent without a token, or another request already refreshed: resend with what is stored now.
	if current.AccessToken != sentToken {
		return transport.resend(request, body, response, current.AccessToken)
	}

	refreshed, refreshErr := transport.refresh(ctx, current.RefreshToken)
	if refreshErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			discard(response)
			return nil, ctxErr
		}
		transport.logger.Info("silent refresh failed",
			zap.String("code", "authclient.refresh.failed"),
			zap.Error(refreshErr))
		return response, nil
	}
	return transport.resend(request, body, response, refreshed.AccessToken)
}

// resend is the single retry allowed per request. A cancelled request is not resent.
func (transport *RefreshingTransport) resend(request *http.Request, body []byte, rejected *http.Response, accessToken string) (*http.Response, error) {
	discard(rejected)
	if err := request.Context().Err(); err != nil {
		return nil, err
	}
	return transport.send(request, body, accessToken)
}

func (transport *RefreshingTransport) send(request *http.Request, body []byte, accessToken string) (*http.Response, error) {
	attempt := request.Clone(request.Context())
	if body != nil {
		attempt.Body = io.NopCloser(bytes.NewReader(body))
		attempt.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(body)), nil
		}
		attempt.ContentLength = int64(len(body))
	}
	if accessToken != "" {
		attempt.Header.Set("Authorization", "Bearer "+accessToken)
	}
	return transport.base.RoundTrip(attempt)
}

// refresh runs at most one refresh per refresh token at a time. Concurrent callers share
// the result. The refresh is detached from the caller's cancellation because other
// waiters and the stored session depend on it finishing.
func (transport *RefreshingTransport) refresh(ctx context.Context, refreshToken string) (Session, error) {
	resultChannel := transport.refreshGroup.DoChan(refreshToken, func() (any, error) {
		refreshCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), transport.refreshTimeout)
		defer cancel()

		// A caller that read the session before an earlier flight rotated it reuses that result.
		stored, ok := transport.state.StoredSession(refreshCtx)
		if !ok {
			return Session{}, errSessionCleared
		}
		if stored.RefreshToken != refreshToken {
			return stored, nil
		}

		response, err := transport.refresher.RefreshToken(refreshCtx, refreshToken)
		if err != nil {
			return Session{}, fmt.Errorf("authclient.refresh: %w", err)
		}
		if !response.Success {
			if clearErr := transport.state.clearIfCurrent(refreshCtx, refreshToken); clearErr != nil {
				transport.logger.Warn("clearing denied session failed",
					zap.String("code", "authclient.refresh.clear"),
					zap.Error(clearErr))
			}
			return Session{}, fmt.Errorf("%w: %s", ErrRefreshDenied, response.Message)
		}
		session := response.Session()
		if !session.IsComplete() {
			return Session{}, ErrRefreshEmpty
		}
		if err := transport.state.UpdateState(refreshCtx, session); err != nil {
			return Session{}, fmt.Errorf("authclient.refresh.store: %w", err)
		}
		transport.logger.Debug("session refreshed",
			zap.String("code", "authclient.refresh.success"))
		return session, nil
	})

	select {
	case <-ctx.Done():
		return Session{}, ctx.Err()
	case result := <-resultChannel:
		if result.Err != nil {
			return Session{}, result.Err
		}
		return result.Val.(Session), nil
	}
}

func (transport *RefreshingTransport) bypasses(request *http.Request) bool {
	if request.URL == nil {
		return false
	}
	path := strings.TrimSuffix(strings.ToLower(request.URL.Path), "/")
	for _, suffix := range transport.bypassSuffixes {
		if strings.HasSuffix(path, suffix) {
			return true
		}
	}
	return false
}

// bufferBody reads the request body so it can be replayed, and closes the original.
func bufferBody(request *http.Request) ([]byte, error) {
	if request.Body == nil || request.Body == http.NoBody {
		return nil, nil
	}
	defer request.Body.Close()
	body, err := io.ReadAll(request.Body)
	if err != nil {
		return nil, fmt.Errorf("authclient.transport.read_body: %w", err)
	}
	return body, nil
}

func discard(response *http.Response) {
	if response == nil || response.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, response.Body)
	_ = response.Body.Close()
}
