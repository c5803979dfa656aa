package sessionkit

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// MemoryRefreshTokenStore is an in-memory store intended for tests and dev.
type MemoryRefreshTokenStore struct {
	mutex  sync.Mutex
	byHash map[string]*RefreshRecord
}

// NewMemoryRefreshTokenStore creates a new in-memory refresh store.
func NewMemoryRefreshTokenStore() *MemoryRefreshTokenStore {
	return &MemoryRefreshTokenStore{byHash: make(map[string]*RefreshRecord)}
}

// Create inserts a new refresh record.
func (store *MemoryRefreshTokenStore) Create(ctx context.Context, record RefreshRecord) error {
	if strings.TrimSpace(record.TokenHash) == "" {
		return fmt.Errorf("refresh_store.create: %w", ErrRefreshRecordEmptyHash)
	}
	store.mutex.Lock()
	defer store.mutex.Unlock()
	if _, exists := store.byHash[record.TokenHash]; exists {
		return fmt.Errorf("refresh_store.create: duplicate token hash")
	}
	clone := record
	store.byHash[record.TokenHash] = &clone
	return nil
}

// Consume atomically revokes the live record matching the hash and returns it.
func (store *MemoryRefreshTokenStore) Consume(ctx context.Context, tokenHash string, now time.Time) (RefreshRecord, error) {
	if strings.TrimSpace(tokenHash) == "" {
		return RefreshRecord{}, fmt.Errorf("refresh_store.consume: %w", ErrRefreshRecordEmptyHash)
	}
	store.mutex.Lock()
	defer store.mutex.Unlock()
	record, ok := store.byHash[tokenHash]
	if !ok || record.RevokedAtUnix != 0 || record.ExpiresUnix <= now.Unix() {
		return RefreshRecord{}, fmt.Errorf("refresh_store.consume: %w", ErrRefreshRecordNotFound)
	}
	record.RevokedAtUnix = now.Unix()
	return *record, nil
}

// Revoke marks the record revoked; missing or revoked records are a no-op.
func (store *MemoryRefreshTokenStore) Revoke(ctx context.Context, tokenHash string, now time.Time) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	record, ok := store.byHash[tokenHash]
	if !ok || record.RevokedAtUnix != 0 {
		return nil
	}
	record.RevokedAtUnix = now.Unix()
	return nil
}

// RevokeAllForPrincipal marks every live record owned by the principal revoked.
func (store *MemoryRefreshTokenStore) RevokeAllForPrincipal(ctx context.Context, principalID string, now time.Time) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	for _, record := range store.byHash {
		if record.PrincipalID == principalID && record.RevokedAtUnix == 0 {
			record.RevokedAtUnix = now.Unix()
		}
	}
	return nil
}

// DeleteExpired removes expired or revoked records and returns the count.
func (store *MemoryRefreshTokenStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	var removed int64
	for tokenHash, record := range store.byHash {
		if record.ExpiresUnix <= now.Unix() || record.RevokedAtUnix != 0 {
			delete(store.byHash, tokenHash)
			removed++
		}
	}
	return removed, nil
}

// Len reports the number of stored records, for tests.
func (store *MemoryRefreshTokenStore) Len() int {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	return len(store.byHash)
}
