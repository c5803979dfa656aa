package sessionkit

import (
	"context"
	"time"
)

// Principal is the authenticated identity a token pair represents. It is
// owned by the external identity store; the manager only reads it.
type Principal struct {
	ID          string
	LoginKey    string
	DisplayName string
	Role        Role
	Active      bool
}

// PrincipalStore reads principals from the identity store.
type PrincipalStore interface {
	FindPrincipalByID(ctx context.Context, principalID string) (Principal, error)
	FindPrincipalByLoginKey(ctx context.Context, loginKey string) (Principal, error)
}

// SessionMetadata carries optional client attribution for a refresh record.
type SessionMetadata struct {
	UserAgent string
	SourceIP  string
}

// RefreshRecord is the persisted form of a refresh credential. Only the hash
// of the opaque token value is ever stored.
type RefreshRecord struct {
	TokenID       string
	PrincipalID   string
	TokenHash     string
	ExpiresUnix   int64
	RevokedAtUnix int64
	IssuedAtUnix  int64
	UserAgent     string
	SourceIP      string
}

// RefreshTokenStore persists refresh credentials keyed by token hash.
//
// Consume is the rotation primitive: it atomically revokes the live record
// matching the hash and returns it. A record that is missing, already
// revoked, or expired (expiry at or before now) reports
// ErrRefreshRecordNotFound, so of two concurrent rotations at most one
// observes the record.
type RefreshTokenStore interface {
	Create(ctx context.Context, record RefreshRecord) error
	Consume(ctx context.Context, tokenHash string, now time.Time) (RefreshRecord, error)
	// Revoke marks the record matching the hash revoked. Missing or
	// already-revoked records are a no-op success.
	Revoke(ctx context.Context, tokenHash string, now time.Time) error
	// RevokeAllForPrincipal marks every live record owned by the principal
	// revoked. Idempotent and set-based.
	RevokeAllForPrincipal(ctx context.Context, principalID string, now time.Time) error
	// DeleteExpired removes records whose expiry has passed or which are
	// revoked, returning the number removed.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
