package sessionkitpg

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tyemirov/sessiond/internal/sessionkit"
)

// PostgresRefreshTokenStore persists refresh credentials in PostgreSQL
// through a pgx pool, for deployments that bypass GORM.
type PostgresRefreshTokenStore struct {
	pool *pgxpool.Pool
}

// NewPostgresRefreshTokenStore constructs a Postgres store.
func NewPostgresRefreshTokenStore(pool *pgxpool.Pool) *PostgresRefreshTokenStore {
	return &PostgresRefreshTokenStore{pool: pool}
}

// Create inserts a new refresh credential row.
func (store *PostgresRefreshTokenStore) Create(ctx context.Context, record sessionkit.RefreshRecord) error {
	if strings.TrimSpace(record.TokenHash) == "" {
		return fmt.Errorf("refresh_store.create.pg: %w", sessionkit.ErrRefreshRecordEmptyHash)
	}
	_, execErr := store.pool.Exec(ctx, `
INSERT INTO refresh_credentials (token_id, principal_id, token_hash, expires_unix, revoked_at_unix, issued_at_unix, user_agent, source_ip)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`, record.TokenID, record.PrincipalID, record.TokenHash, record.ExpiresUnix, record.RevokedAtUnix, record.IssuedAtUnix, record.UserAgent, record.SourceIP)
	if execErr != nil {
		return fmt.Errorf("refresh_store.create.pg: %w", execErr)
	}
	return nil
}

// Consume atomically claims the live row matching the hash via a guarded
// UPDATE ... RETURNING; a raced, revoked, expired, or missing row reports
// sessionkit.ErrRefreshRecordNotFound.
func (store *PostgresRefreshTokenStore) Consume(ctx context.Context, tokenHash string, now time.Time) (sessionkit.RefreshRecord, error) {
	if strings.TrimSpace(tokenHash) == "" {
		return sessionkit.RefreshRecord{}, fmt.Errorf("refresh_store.consume.pg: %w", sessionkit.ErrRefreshRecordEmptyHash)
	}
	var record sessionkit.RefreshRecord
	row := store.pool.QueryRow(ctx, `
UPDATE refresh_credentials
SET revoked_at_unix = $1
WHERE token_hash = $2 AND revoked_at_unix = 0 AND expires_unix > $1
RETURNING token_id, principal_id, token_hash, expires_unix, revoked_at_unix, issued_at_unix, user_agent, source_ip
`, now.Unix(), tokenHash)
	scanErr := row.Scan(&record.TokenID, &record.PrincipalID, &record.TokenHash, &record.ExpiresUnix, &record.RevokedAtUnix, &record.IssuedAtUnix, &record.UserAgent, &record.SourceIP)
	if scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return sessionkit.RefreshRecord{}, fmt.Errorf("refresh_store.consume.pg: %w", sessionkit.ErrRefreshRecordNotFound)
		}
		return sessionkit.RefreshRecord{}, fmt.Errorf("refresh_store.consume.pg: %w", scanErr)
	}
	return record, nil
}

// Revoke marks the row matching the hash revoked; zero affected rows is a
// no-op success.
func (store *PostgresRefreshTokenStore) Revoke(ctx context.Context, tokenHash string, now time.Time) error {
	_, execErr := store.pool.Exec(ctx, `
UPDATE refresh_credentials
SET revoked_at_unix = $1
WHERE token_hash = $2 AND revoked_at_unix = 0
`, now.Unix(), tokenHash)
	if execErr != nil {
		return fmt.Errorf("refresh_store.revoke.pg: %w", execErr)
	}
	return nil
}

// RevokeAllForPrincipal marks every live row owned by the principal revoked.
func (store *PostgresRefreshTokenStore) RevokeAllForPrincipal(ctx context.Context, principalID string, now time.Time) error {
	_, execErr := store.pool.Exec(ctx, `
UPDATE refresh_credentials
SET revoked_at_unix = $1
WHERE principal_id = $2 AND revoked_at_unix = 0
`, now.Unix(), principalID)
	if execErr != nil {
		return fmt.Errorf("refresh_store.revoke_all.pg: %w", execErr)
	}
	return nil
}

// DeleteExpired purges expired or revoked rows and returns the count removed.
func (store *PostgresRefreshTokenStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, execErr := store.pool.Exec(ctx, `
DELETE FROM refresh_credentials
WHERE expires_unix <= $1 OR revoked_at_unix <> 0
`, now.Unix())
	if execErr != nil {
		return 0, fmt.Errorf("refresh_store.cleanup.pg: %w", execErr)
	}
	return tag.RowsAffected(), nil
}
