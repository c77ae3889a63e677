package authkitpg

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tyemirov/pwauth/internal/authkit"
)

var _ authkit.RefreshTokenStore = (*PostgresRefreshTokenStore)(nil)

// BuildPool creates a pgx pool, verifies connectivity, and ensures the refresh token schema.
func BuildPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("authkitpg.parse_config: %w", err)
	}
	config.MinConns = 1
	config.MaxConns = 8
	config.MaxConnLifetime = 30 * time.Minute
	config.HealthCheckPeriod = 30 * time.Second
	pool, poolErr := pgxpool.NewWithConfig(ctx, config)
	if poolErr != nil {
		return nil, fmt.Errorf("authkitpg.pool: %w", poolErr)
	}
	if pingErr := pool.Ping(ctx); pingErr != nil {
		pool.Close()
		return nil, fmt.Errorf("authkitpg.ping: %w", pingErr)
	}
	if schemaErr := EnsureSchema(ctx, pool); schemaErr != nil {
		pool.Close()
		return nil, fmt.Errorf("authkitpg.schema: %w", schemaErr)
	}
	return pool, nil
}
