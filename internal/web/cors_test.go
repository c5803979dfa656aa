package web

import (
	"errors"
	"reflect"
	"testing"

	"go.uber.org/zap"
)

func TestSanitizeOriginsNormalizesAndDedupes(t *testing.T) {
	sanitized, err := sanitizeOrigins(zap.NewNop(), []string{
		" https://app.example.com/path ",
		"https://app.example.com",
		"http://localhost:3000",
		"",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := []string{"http://localhost:3000", "https://app.example.com"}
	if !reflect.DeepEqual(sanitized, expected) {
		t.Fatalf("expected %v, got %v", expected, sanitized)
	}
}

func TestSanitizeOriginsRejectsWildcardAndMalformed(t *testing.T) {
	logger := zap.NewNop()
	if _, err := sanitizeOrigins(logger, []string{"*"}); !errors.Is(err, errWildcardOrigin) {
		t.Fatalf("expected wildcard rejection, got %v", err)
	}
	if _, err := sanitizeOrigins(logger, []string{"not-a-url"}); !errors.Is(err, errInvalidOrigin) {
		t.Fatalf("expected invalid origin rejection, got %v", err)
	}
	if _, err := sanitizeOrigins(logger, nil); !errors.Is(err, errEmptyAllowedOrigins) {
		t.Fatalf("expected empty origins rejection, got %v", err)
	}
	if _, err := sanitizeOrigins(logger, []string{"  ", ""}); !errors.Is(err, errEmptyAllowedOrigins) {
		t.Fatalf("expected blank origins rejection, got %v", err)
	}
}

func TestConfigureCORSReturnsHandler(t *testing.T) {
	handler, err := ConfigureCORS(nil, []string{"https://app.example.com"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if handler == nil {
		t.Fatalf("expected a middleware handler")
	}
}
