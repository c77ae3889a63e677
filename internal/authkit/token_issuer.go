package authkit

import (
	"context"
	"errors"
	"strings"
	"time"
)

// TokenPair is the result of a successful login or refresh.
type TokenPair struct {
	AccessToken          string
	RefreshToken         string
	AccessTokenExpiresAt time.Time
}

// TokenIssuer mints access/refresh token pairs and rotates the persisted refresh token.
// Every issuance replaces the user's previous refresh token, so a user holds a single
// active session at a time.
type TokenIssuer struct {
	configuration ServerConfig
	users         UserStore
	refreshTokens RefreshTokenStore
	clock         Clock
	locks         *userLocks
}

// NewTokenIssuer wires the issuer to its stores.
func NewTokenIssuer(configuration ServerConfig, users UserStore, refreshTokens RefreshTokenStore, clock Clock) *TokenIssuer {
	if clock == nil {
		clock = NewSystemClock()
	}
	return &TokenIssuer{
		configuration: configuration,
		users:         users,
		refreshTokens: refreshTokens,
		clock:         clock,
		locks:         newUserLocks(),
	}
}

// IssueTokens mints a pair for user and upserts the user's refresh token record.
func (issuer *TokenIssuer) IssueTokens(ctx context.Context, user StoredUser, roleName string) (TokenPair, error) {
	unlock := issuer.locks.lock(user.ID)
	defer unlock()

	pair, mintErr := issuer.mint(user, roleName)
	if mintErr != nil {
		return TokenPair{}, mintErr
	}
	if upsertErr := issuer.refreshTokens.Upsert(ctx, user.ID, pair.RefreshToken); upsertErr != nil {
		return TokenPair{}, persistenceFailure("refresh_token.upsert", upsertErr)
	}
	return pair, nil
}

// Refresh exchanges a current refresh token for a new pair. The presented token stops
// being valid as soon as this returns successfully.
func (issuer *TokenIssuer) Refresh(ctx context.Context, tokenOpaque string) (TokenPair, error) {
	if strings.TrimSpace(tokenOpaque) == "" {
		return TokenPair{}, ErrInvalidInput
	}
	applicationUserID, findErr := issuer.refreshTokens.FindUserByToken(ctx, tokenOpaque)
	if findErr != nil {
		if errors.Is(findErr, ErrRefreshTokenNotFound) || errors.Is(findErr, ErrRefreshTokenEmptyOpaque) {
			return TokenPair{}, ErrTokenNotFound
		}
		return TokenPair{}, persistenceFailure("refresh_token.find", findErr)
	}

	unlock := issuer.locks.lock(applicationUserID)
	defer unlock()

	user, userErr := issuer.users.FindUserByID(ctx, applicationUserID)
	if userErr != nil {
		if errors.Is(userErr, ErrUserNotFound) {
			return TokenPair{}, ErrUserNotFound
		}
		return TokenPair{}, persistenceFailure("user.find", userErr)
	}
	roleName, roleErr := issuer.users.FindUserRole(ctx, applicationUserID)
	if roleErr != nil {
		if errors.Is(roleErr, ErrRoleNotFound) {
			return TokenPair{}, ErrRoleNotFound
		}
		return TokenPair{}, persistenceFailure("user_role.find", roleErr)
	}

	pair, mintErr := issuer.mint(user, roleName)
	if mintErr != nil {
		return TokenPair{}, mintErr
	}
	if rotateErr := issuer.refreshTokens.Rotate(ctx, applicationUserID, tokenOpaque, pair.RefreshToken); rotateErr != nil {
		if errors.Is(rotateErr, ErrRefreshTokenNotFound) {
			return TokenPair{}, ErrTokenNotFound
		}
		return TokenPair{}, persistenceFailure("refresh_token.rotate", rotateErr)
	}
	return pair, nil
}

// Revoke drops the user's refresh token so the next refresh attempt fails.
func (issuer *TokenIssuer) Revoke(ctx context.Context, applicationUserID string) error {
	unlock := issuer.locks.lock(applicationUserID)
	defer unlock()

	if deleteErr := issuer.refreshTokens.Delete(ctx, applicationUserID); deleteErr != nil && !errors.Is(deleteErr, ErrRefreshTokenNotFound) {
		return persistenceFailure("refresh_token.delete", deleteErr)
	}
	return nil
}

func (issuer *TokenIssuer) mint(user StoredUser, roleName string) (TokenPair, error) {
	accessToken, expiresAt, mintErr := MintAccessToken(issuer.clock, AccessTokenSubject{
		UserID:   user.ID,
		Fullname: user.Fullname,
		Email:    user.Email,
		Role:     roleName,
	}, issuer.configuration.AccessTokenIssuer, issuer.configuration.AccessTokenAudience, issuer.configuration.AccessTokenSigningKey, issuer.configuration.AccessTokenTTL)
	if mintErr != nil {
		return TokenPair{}, mintErr
	}
	refreshOpaque, randomErr := generateRefreshOpaque(issuer.configuration.refreshTokenBytes())
	if randomErr != nil {
		return TokenPair{}, randomErr
	}
	return TokenPair{
		AccessToken:          accessToken,
		RefreshToken:         refreshOpaque,
		AccessTokenExpiresAt: expiresAt,
	}, nil
}
