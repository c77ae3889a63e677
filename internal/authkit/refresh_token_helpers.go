package authkit

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
)

var refreshTokenRandomSource io.Reader = rand.Reader

func generateRefreshOpaque(byteLength int) (string, error) {
	randomBytes := make([]byte, byteLength)
	if _, err := io.ReadFull(refreshTokenRandomSource, randomBytes); err != nil {
		return "", fmt.Errorf("refresh_token.random: %w", err)
	}
	return base64.StdEncoding.EncodeToString(randomBytes), nil
}

// HashRefreshToken returns the fingerprint under which an opaque refresh token is stored.
func HashRefreshToken(opaque string) string {
	sum := sha256.Sum256([]byte(opaque))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
