package authkitpg

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tyemirov/pwauth/internal/authkit"
)

// PostgresRefreshTokenStore keeps one refresh token row per user in PostgreSQL.
type PostgresRefreshTokenStore struct {
	pool *pgxpool.Pool
}

// NewPostgresRefreshTokenStore constructs a Postgres store.
func NewPostgresRefreshTokenStore(pool *pgxpool.Pool) *PostgresRefreshTokenStore {
	return &PostgresRefreshTokenStore{pool: pool}
}

// Upsert inserts the user's row or overwrites its token in place.
func (store *PostgresRefreshTokenStore) Upsert(ctx context.Context, applicationUserID string, tokenOpaque string) error {
	if strings.TrimSpace(tokenOpaque) == "" {
		return fmt.Errorf("refresh_store.upsert.pgx: %w", authkit.ErrRefreshTokenEmptyOpaque)
	}
	_, execErr := store.pool.Exec(ctx, `
INSERT INTO refresh_token_infos (user_id, token_hash, updated_at_unix)
VALUES ($1, $2, $3)
ON CONFLICT (user_id) DO UPDATE SET token_hash = EXCLUDED.token_hash, updated_at_unix = EXCLUDED.updated_at_unix
`, applicationUserID, authkit.HashRefreshToken(tokenOpaque), time.Now().UTC().Unix())
	if execErr != nil {
		return fmt.Errorf("refresh_store.upsert.pgx: %w", execErr)
	}
	return nil
}

// FindUserByToken returns the owner of the opaque token.
func (store *PostgresRefreshTokenStore) FindUserByToken(ctx context.Context, tokenOpaque string) (string, error) {
	if strings.TrimSpace(tokenOpaque) == "" {
		return "", fmt.Errorf("refresh_store.find.pgx: %w", authkit.ErrRefreshTokenEmptyOpaque)
	}
	var applicationUserID string
	row := store.pool.QueryRow(ctx, `
SELECT user_id
FROM refresh_token_infos
WHERE token_hash = $1
`, authkit.HashRefreshToken(tokenOpaque))
	if scanErr := row.Scan(&applicationUserID); scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return "", fmt.Errorf("refresh_store.find.pgx: %w", authkit.ErrRefreshTokenNotFound)
		}
		return "", fmt.Errorf("refresh_store.find.pgx: %w", scanErr)
	}
	return applicationUserID, nil
}

// Rotate locks the user's row, checks that previousOpaque is still current, and replaces it.
func (store *PostgresRefreshTokenStore) Rotate(ctx context.Context, applicationUserID string, previousOpaque string, nextOpaque string) (err error) {
	if strings.TrimSpace(previousOpaque) == "" || strings.TrimSpace(nextOpaque) == "" {
		return fmt.Errorf("refresh_store.rotate.pgx: %w", authkit.ErrRefreshTokenEmptyOpaque)
	}
	tx, beginErr := store.pool.Begin(ctx)
	if beginErr != nil {
		return fmt.Errorf("refresh_store.rotate.pgx: %w", beginErr)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var currentHash string
	row := tx.QueryRow(ctx, `
SELECT token_hash
FROM refresh_token_infos
WHERE user_id = $1
FOR UPDATE
`, applicationUserID)
	if scanErr := row.Scan(&currentHash); scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return fmt.Errorf("refresh_store.rotate.pgx: %w", authkit.ErrRefreshTokenNotFound)
		}
		return fmt.Errorf("refresh_store.rotate.pgx: %w", scanErr)
	}
	if currentHash != authkit.HashRefreshToken(previousOpaque) {
		return fmt.Errorf("refresh_store.rotate.pgx: %w", authkit.ErrRefreshTokenNotFound)
	}
	if _, execErr := tx.Exec(ctx, `
UPDATE refresh_token_infos
SET token_hash = $1, updated_at_unix = $2
WHERE user_id = $3
`, authkit.HashRefreshToken(nextOpaque), time.Now().UTC().Unix(), applicationUserID); execErr != nil {
		return fmt.Errorf("refresh_store.rotate.pgx: %w", execErr)
	}
	if commitErr := tx.Commit(ctx); commitErr != nil {
		return fmt.Errorf("refresh_store.rotate.pgx: %w", commitErr)
	}
	return nil
}

// Delete removes the user's row.
func (store *PostgresRefreshTokenStore) Delete(ctx context.Context, applicationUserID string) error {
	tag, err := store.pool.Exec(ctx, `
DELETE FROM refresh_token_infos
WHERE user_id = $1
`, applicationUserID)
	if err != nil {
		return fmt.Errorf("refresh_store.delete.pgx: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("refresh_store.delete.pgx: %w", authkit.ErrRefreshTokenNotFound)
	}
	return nil
}
