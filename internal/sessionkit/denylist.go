package sessionkit

import (
	"context"
	"sync"
	"time"
)

// Denylist rejects access tokens ahead of their natural expiry. Entries are
// keyed by token hash and disappear once their TTL elapses.
//
// SupportsImmediateRevocation makes the degraded mode explicit: when false,
// Add and Contains are no-ops and single-session access revocation is
// unavailable, while refresh revocation and rotation continue to function.
type Denylist interface {
	SupportsImmediateRevocation() bool
	Add(ctx context.Context, tokenHash string, ttl time.Duration) error
	Contains(ctx context.Context, tokenHash string) (bool, error)
}

// NoopDenylist is the degraded implementation used when no ephemeral store
// is reachable.
type NoopDenylist struct{}

// NewNoopDenylist constructs the degraded denylist.
func NewNoopDenylist() NoopDenylist {
	return NoopDenylist{}
}

// SupportsImmediateRevocation always reports false.
func (NoopDenylist) SupportsImmediateRevocation() bool { return false }

// Add is a no-op.
func (NoopDenylist) Add(ctx context.Context, tokenHash string, ttl time.Duration) error {
	return nil
}

// Contains always reports absent.
func (NoopDenylist) Contains(ctx context.Context, tokenHash string) (bool, error) {
	return false, nil
}

// MemoryDenylist is an in-process TTL map for tests and single-node runs.
type MemoryDenylist struct {
	mutex   sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

// NewMemoryDenylist constructs an in-memory denylist on the system clock.
func NewMemoryDenylist() *MemoryDenylist {
	return &MemoryDenylist{
		entries: make(map[string]time.Time),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// NewMemoryDenylistWithClock constructs an in-memory denylist on the
// provided clock.
func NewMemoryDenylistWithClock(clock Clock) *MemoryDenylist {
	denylist := NewMemoryDenylist()
	denylist.now = clock.Now
	return denylist
}

// SupportsImmediateRevocation always reports true.
func (denylist *MemoryDenylist) SupportsImmediateRevocation() bool { return true }

// Add records the hash until its TTL elapses. Non-positive TTLs are ignored.
func (denylist *MemoryDenylist) Add(ctx context.Context, tokenHash string, ttl time.Duration) error {
	if tokenHash == "" || ttl <= 0 {
		return nil
	}
	denylist.mutex.Lock()
	defer denylist.mutex.Unlock()
	denylist.purgeExpiredLocked()
	denylist.entries[tokenHash] = denylist.now().Add(ttl)
	return nil
}

// Contains reports whether the hash is present and unexpired.
func (denylist *MemoryDenylist) Contains(ctx context.Context, tokenHash string) (bool, error) {
	denylist.mutex.Lock()
	defer denylist.mutex.Unlock()
	expiry, ok := denylist.entries[tokenHash]
	if !ok {
		return false, nil
	}
	if denylist.now().After(expiry) {
		delete(denylist.entries, tokenHash)
		return false, nil
	}
	return true, nil
}

func (denylist *MemoryDenylist) purgeExpiredLocked() {
	if len(denylist.entries) == 0 {
		return
	}
	now := denylist.now()
	for tokenHash, expiry := range denylist.entries {
		if now.After(expiry) {
			delete(denylist.entries, tokenHash)
		}
	}
}
