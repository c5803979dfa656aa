package sessionkit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TokenPair is the issued credential pair. Both token values are raw; only
// the refresh token's hash survives server-side.
type TokenPair struct {
	PrincipalID      string
	Role             Role
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// Manager issues, verifies, rotates, and revokes access/refresh credential
// pairs. All collaborators are injected; the manager holds no global state.
type Manager struct {
	config        Config
	principals    PrincipalStore
	refreshTokens RefreshTokenStore
	denylist      Denylist
	clock         Clock
	logger        *zap.Logger
	metrics       MetricsRecorder
}

// NewManager constructs a Manager. Logger and metrics may be nil; stores and
// clock are required.
func NewManager(configuration Config, principals PrincipalStore, refreshTokens RefreshTokenStore, denylist Denylist, clock Clock, logger *zap.Logger, metrics MetricsRecorder) (*Manager, error) {
	if len(configuration.AccessSigningKey) == 0 {
		return nil, errors.New("session.manager.new: access signing key must be non-empty")
	}
	if strings.TrimSpace(configuration.Issuer) == "" {
		return nil, errors.New("session.manager.new: issuer must be non-empty")
	}
	if configuration.AccessTTL <= 0 || configuration.RefreshTTL <= 0 {
		return nil, errors.New("session.manager.new: token lifetimes must be positive")
	}
	if principals == nil || refreshTokens == nil || clock == nil {
		return nil, errors.New("session.manager.new: principal store, refresh store, and clock are required")
	}
	if denylist == nil {
		denylist = NewNoopDenylist()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = NewCounterMetrics()
	}
	return &Manager{
		config:        configuration,
		principals:    principals,
		refreshTokens: refreshTokens,
		denylist:      denylist,
		clock:         clock,
		logger:        logger,
		metrics:       metrics,
	}, nil
}

// IssueTokenPair mints an access token and persists a new refresh credential
// for an already-authenticated principal. No prior state is mutated.
func (manager *Manager) IssueTokenPair(ctx context.Context, principal Principal, metadata SessionMetadata) (TokenPair, error) {
	pair, err := manager.mintPair(ctx, principal, metadata)
	if err != nil {
		manager.metrics.Increment("issue.failure")
		return TokenPair{}, err
	}
	manager.metrics.Increment("issue.success")
	return pair, nil
}

// VerifyAccess checks the denylist, then signature and expiry, and returns
// the embedded claims. The denylist lookup is the only stateful step.
func (manager *Manager) VerifyAccess(ctx context.Context, rawAccessToken string) (*AccessClaims, error) {
	if manager.denylist.SupportsImmediateRevocation() {
		denied, denylistErr := manager.denylist.Contains(ctx, HashToken(rawAccessToken))
		if denylistErr != nil {
			manager.metrics.Increment("verify.infrastructure_failure")
			return nil, fmt.Errorf("session.verify.denylist: %w", denylistErr)
		}
		if denied {
			manager.metrics.Increment("verify.revoked")
			return nil, fmt.Errorf("session.verify: %w", ErrAccessTokenRevoked)
		}
	}
	claims, parseErr := ParseAccessToken(manager.clock, rawAccessToken, manager.config.Issuer, manager.config.AccessSigningKey)
	if parseErr != nil {
		if errors.Is(parseErr, ErrAccessTokenExpired) {
			manager.metrics.Increment("verify.expired")
		} else {
			manager.metrics.Increment("verify.invalid")
		}
		return nil, parseErr
	}
	manager.metrics.Increment("verify.success")
	return claims, nil
}

// Rotate exchanges a valid refresh token for a fresh pair. The presented
// token is consumed (revoked) before the successor is persisted, so a replay
// or a concurrent rotation of the same token observes it as already gone.
func (manager *Manager) Rotate(ctx context.Context, rawRefreshToken string, metadata SessionMetadata) (TokenPair, error) {
	if strings.TrimSpace(rawRefreshToken) == "" {
		manager.metrics.Increment("rotate.rejected")
		return TokenPair{}, fmt.Errorf("session.rotate: %w", ErrRefreshTokenInvalidOrExpired)
	}
	now := manager.clock.Now().UTC()
	record, consumeErr := manager.refreshTokens.Consume(ctx, HashToken(rawRefreshToken), now)
	if consumeErr != nil {
		if errors.Is(consumeErr, ErrRefreshRecordNotFound) || errors.Is(consumeErr, ErrRefreshRecordEmptyHash) {
			manager.metrics.Increment("rotate.rejected")
			return TokenPair{}, fmt.Errorf("session.rotate: %w", ErrRefreshTokenInvalidOrExpired)
		}
		manager.metrics.Increment("rotate.infrastructure_failure")
		return TokenPair{}, fmt.Errorf("session.rotate.consume: %w", consumeErr)
	}

	principal, principalErr := manager.principals.FindPrincipalByID(ctx, record.PrincipalID)
	if principalErr != nil {
		if errors.Is(principalErr, ErrPrincipalNotFound) {
			manager.metrics.Increment("rotate.principal_inactive")
			return TokenPair{}, fmt.Errorf("session.rotate: %w", ErrPrincipalInactive)
		}
		manager.metrics.Increment("rotate.infrastructure_failure")
		return TokenPair{}, fmt.Errorf("session.rotate.principal: %w", principalErr)
	}
	if !principal.Active {
		manager.metrics.Increment("rotate.principal_inactive")
		return TokenPair{}, fmt.Errorf("session.rotate: %w", ErrPrincipalInactive)
	}

	pair, mintErr := manager.mintPair(ctx, principal, metadata)
	if mintErr != nil {
		manager.metrics.Increment("rotate.infrastructure_failure")
		return TokenPair{}, mintErr
	}
	manager.metrics.Increment("rotate.success")
	return pair, nil
}

// RevokeSession retires one session: the refresh credential is revoked and
// the access token denylisted for its remaining lifetime. Revoking a session
// that is already gone is a success, because the caller's desired end state
// already holds. Only infrastructure failures are reported.
func (manager *Manager) RevokeSession(ctx context.Context, rawRefreshToken string, rawAccessToken string) error {
	now := manager.clock.Now().UTC()
	if strings.TrimSpace(rawRefreshToken) != "" {
		if err := manager.refreshTokens.Revoke(ctx, HashToken(rawRefreshToken), now); err != nil {
			manager.metrics.Increment("revoke.infrastructure_failure")
			return fmt.Errorf("session.revoke: %w", err)
		}
	}
	if manager.denylist.SupportsImmediateRevocation() && strings.TrimSpace(rawAccessToken) != "" {
		expiresAt, expiryErr := ParseAccessTokenExpiry(rawAccessToken, manager.config.Issuer, manager.config.AccessSigningKey)
		if expiryErr == nil {
			if remaining := expiresAt.Sub(now); remaining > 0 {
				if addErr := manager.denylist.Add(ctx, HashToken(rawAccessToken), remaining); addErr != nil {
					manager.logger.Warn("denylist add failed; access token remains valid until natural expiry",
						zap.String("code", "session.revoke.denylist_unavailable"),
						zap.Error(addErr))
				}
			}
		}
	}
	manager.metrics.Increment("revoke.success")
	return nil
}

// RevokeAllSessions revokes every refresh credential owned by the principal.
// Already-issued access tokens of other sessions stay valid until their own
// short expiry; the denylist cannot name tokens it has never seen.
func (manager *Manager) RevokeAllSessions(ctx context.Context, principalID string) error {
	if strings.TrimSpace(principalID) == "" {
		return errors.New("session.revoke_all: principal id must be non-empty")
	}
	now := manager.clock.Now().UTC()
	if err := manager.refreshTokens.RevokeAllForPrincipal(ctx, principalID, now); err != nil {
		manager.metrics.Increment("revoke_all.infrastructure_failure")
		return fmt.Errorf("session.revoke_all: %w", err)
	}
	manager.metrics.Increment("revoke_all.success")
	return nil
}

// CleanupExpired purges refresh records past expiry or already revoked.
// Housekeeping only; revocation takes effect before physical deletion.
func (manager *Manager) CleanupExpired(ctx context.Context) (int64, error) {
	removed, err := manager.refreshTokens.DeleteExpired(ctx, manager.clock.Now().UTC())
	if err != nil {
		manager.metrics.Increment("cleanup.infrastructure_failure")
		return 0, fmt.Errorf("session.cleanup: %w", err)
	}
	manager.metrics.Increment("cleanup.success")
	return removed, nil
}

// Config exposes the manager configuration for transport wiring.
func (manager *Manager) Config() Config {
	return manager.config
}

func (manager *Manager) mintPair(ctx context.Context, principal Principal, metadata SessionMetadata) (TokenPair, error) {
	now := manager.clock.Now().UTC()
	accessToken, accessExpiresAt, mintErr := MintAccessToken(manager.clock, principal, manager.config.Issuer, manager.config.AccessSigningKey, manager.config.AccessTTL)
	if mintErr != nil {
		return TokenPair{}, fmt.Errorf("session.issue.mint: %w", mintErr)
	}
	refreshOpaque, refreshHash, randomErr := generateRefreshOpaque()
	if randomErr != nil {
		return TokenPair{}, fmt.Errorf("session.issue: %w", randomErr)
	}
	refreshExpiresAt := now.Add(manager.config.RefreshTTL)
	record := RefreshRecord{
		TokenID:       uuid.NewString(),
		PrincipalID:   principal.ID,
		TokenHash:     refreshHash,
		ExpiresUnix:   refreshExpiresAt.Unix(),
		RevokedAtUnix: 0,
		IssuedAtUnix:  now.Unix(),
		UserAgent:     metadata.UserAgent,
		SourceIP:      metadata.SourceIP,
	}
	if createErr := manager.refreshTokens.Create(ctx, record); createErr != nil {
		return TokenPair{}, fmt.Errorf("session.issue.persist: %w", createErr)
	}
	return TokenPair{
		PrincipalID:      principal.ID,
		Role:             principal.Role,
		AccessToken:      accessToken,
		AccessExpiresAt:  accessExpiresAt,
		RefreshToken:     refreshOpaque,
		RefreshExpiresAt: refreshExpiresAt,
	}, nil
}
