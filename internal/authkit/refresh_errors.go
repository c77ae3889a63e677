package authkit

import "errors"

var (
	// ErrRefreshTokenNotFound indicates no refresh token record matched the provided opaque value.
	ErrRefreshTokenNotFound = errors.New("refresh_store.not_found")
	// ErrRefreshTokenEmptyOpaque indicates that the provided opaque token text is empty.
	ErrRefreshTokenEmptyOpaque = errors.New("refresh_store.empty_token")
)
