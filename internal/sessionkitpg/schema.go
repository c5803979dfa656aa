package sessionkitpg

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EnsureSchema creates the refresh credential table if it does not exist.
// The hash carries a uniqueness constraint; principal and expiry are indexed
// for revoke-all and cleanup sweeps.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS refresh_credentials (
    token_id TEXT PRIMARY KEY,
    principal_id TEXT NOT NULL,
    token_hash TEXT NOT NULL UNIQUE,
    expires_unix BIGINT NOT NULL,
    revoked_at_unix BIGINT NOT NULL DEFAULT 0,
    issued_at_unix BIGINT NOT NULL,
    user_agent TEXT NOT NULL DEFAULT '',
    source_ip TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_refresh_credentials_principal ON refresh_credentials (principal_id);
CREATE INDEX IF NOT EXISTS idx_refresh_credentials_expires ON refresh_credentials (expires_unix);
`)
	return err
}
