package sessionkit

import (
	"context"
	"testing"
	"time"
)

func TestMemoryDenylistHonorsTTL(t *testing.T) {
	clock := newAdjustableClock(time.Unix(1700000000, 0))
	denylist := NewMemoryDenylistWithClock(clock)

	if !denylist.SupportsImmediateRevocation() {
		t.Fatalf("memory denylist must support immediate revocation")
	}

	if err := denylist.Add(context.Background(), "hash-1", time.Minute); err != nil {
		t.Fatalf("add error: %v", err)
	}

	present, containsErr := denylist.Contains(context.Background(), "hash-1")
	if containsErr != nil {
		t.Fatalf("contains error: %v", containsErr)
	}
	if !present {
		t.Fatalf("expected entry immediately after add")
	}

	clock.Advance(time.Minute)
	present, _ = denylist.Contains(context.Background(), "hash-1")
	if !present {
		t.Fatalf("expected entry at exact TTL boundary")
	}

	clock.Advance(time.Second)
	present, _ = denylist.Contains(context.Background(), "hash-1")
	if present {
		t.Fatalf("expected entry gone after TTL lapse")
	}
}

func TestMemoryDenylistIgnoresNonPositiveTTL(t *testing.T) {
	clock := newAdjustableClock(time.Unix(1700000000, 0))
	denylist := NewMemoryDenylistWithClock(clock)

	if err := denylist.Add(context.Background(), "hash-1", 0); err != nil {
		t.Fatalf("add error: %v", err)
	}
	if err := denylist.Add(context.Background(), "", time.Minute); err != nil {
		t.Fatalf("add error: %v", err)
	}
	present, _ := denylist.Contains(context.Background(), "hash-1")
	if present {
		t.Fatalf("expected no entry for non-positive TTL")
	}
}

func TestNoopDenylistReportsDegradedCapability(t *testing.T) {
	denylist := NewNoopDenylist()
	if denylist.SupportsImmediateRevocation() {
		t.Fatalf("noop denylist must report immediate revocation unsupported")
	}
	if err := denylist.Add(context.Background(), "hash-1", time.Minute); err != nil {
		t.Fatalf("add error: %v", err)
	}
	present, containsErr := denylist.Contains(context.Background(), "hash-1")
	if containsErr != nil {
		t.Fatalf("contains error: %v", containsErr)
	}
	if present {
		t.Fatalf("noop denylist must never report entries")
	}
}
