package sessionkit

import (
	"bytes"
	"errors"
	"testing"
)

type failingRandomSource struct{}

func (f failingRandomSource) Read(p []byte) (int, error) {
	return 0, errors.New("forced failure")
}

func TestGenerateRefreshOpaqueError(t *testing.T) {
	original := refreshTokenRandomSource
	refreshTokenRandomSource = failingRandomSource{}
	defer func() { refreshTokenRandomSource = original }()

	_, _, err := generateRefreshOpaque()
	if err == nil {
		t.Fatalf("expected error when random source fails")
	}
}

func TestGenerateRefreshOpaqueDeterministicSource(t *testing.T) {
	original := refreshTokenRandomSource
	refreshTokenRandomSource = bytes.NewReader(bytes.Repeat([]byte{1}, refreshOpaqueByteLength))
	defer func() { refreshTokenRandomSource = original }()

	opaque, hashValue, err := generateRefreshOpaque()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opaque == "" || hashValue == "" {
		t.Fatalf("expected non-empty opaque and hash")
	}
	if opaque == hashValue {
		t.Fatalf("expected the stored hash to differ from the raw token")
	}
	if HashToken(opaque) != hashValue {
		t.Fatalf("expected hash of the opaque token to match the stored hash")
	}
}

func TestHashTokenIsDeterministic(t *testing.T) {
	first := HashToken("some-token")
	second := HashToken("some-token")
	if first != second {
		t.Fatalf("expected stable hashes, got %s and %s", first, second)
	}
	if HashToken("other-token") == first {
		t.Fatalf("expected distinct tokens to hash differently")
	}
}
