package tokenvalidator

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

type fixedClock struct {
	timestamp time.Time
}

func (clock fixedClock) Now() time.Time {
	return clock.timestamp
}

var testReference = time.Unix(1700000000, 0).UTC()

func mintTestToken(t *testing.T, signingKey []byte, issuer string, issuedAt time.Time, ttl time.Duration) string {
	t.Helper()
	claims := Claims{
		PrincipalID: "principal-1",
		LoginKey:    "user@example.com",
		Role:        "user",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   "principal-1",
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(ttl)),
		},
	}
	signed, signErr := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(signingKey)
	if signErr != nil {
		t.Fatalf("failed to sign test token: %v", signErr)
	}
	return signed
}

func newTestValidator(t *testing.T) *Validator {
	t.Helper()
	validator, err := New(Config{
		SigningKey: []byte("test-signing-key"),
		Issuer:     "sessiond-test",
		Clock:      fixedClock{timestamp: testReference},
	})
	if err != nil {
		t.Fatalf("validator construction error: %v", err)
	}
	return validator
}

func TestNewValidatesConfiguration(t *testing.T) {
	if _, err := New(Config{Issuer: "sessiond-test"}); !errors.Is(err, ErrMissingSigningKey) {
		t.Fatalf("expected missing signing key error, got %v", err)
	}
	if _, err := New(Config{SigningKey: []byte("key"), Issuer: "  "}); !errors.Is(err, ErrMissingIssuer) {
		t.Fatalf("expected missing issuer error, got %v", err)
	}

	validator, err := New(Config{SigningKey: []byte("key"), Issuer: "sessiond-test"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if validator.cookieName != DefaultCookieName {
		t.Fatalf("expected default cookie name, got %s", validator.cookieName)
	}
}

func TestValidateTokenAcceptsFreshToken(t *testing.T) {
	validator := newTestValidator(t)
	token := mintTestToken(t, []byte("test-signing-key"), "sessiond-test", testReference, 15*time.Minute)

	claims, validateErr := validator.ValidateToken(token)
	if validateErr != nil {
		t.Fatalf("validate error: %v", validateErr)
	}
	if claims.GetPrincipalID() != "principal-1" || claims.GetRole() != "user" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if claims.GetExpiresAt().IsZero() {
		t.Fatalf("expected an expiry timestamp")
	}
}

func TestValidateTokenRejections(t *testing.T) {
	validator := newTestValidator(t)
	signingKey := []byte("test-signing-key")

	if _, err := validator.ValidateToken(""); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("expected missing token error, got %v", err)
	}
	if _, err := validator.ValidateToken("garbage"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token error, got %v", err)
	}

	expired := mintTestToken(t, signingKey, "sessiond-test", testReference.Add(-time.Hour), time.Minute)
	if _, err := validator.ValidateToken(expired); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected expired token error, got %v", err)
	}

	foreignIssuer := mintTestToken(t, signingKey, "some-other-service", testReference, time.Minute)
	if _, err := validator.ValidateToken(foreignIssuer); !errors.Is(err, ErrInvalidIssuer) {
		t.Fatalf("expected invalid issuer error, got %v", err)
	}

	forged := mintTestToken(t, []byte("wrong-key"), "sessiond-test", testReference, time.Minute)
	if _, err := validator.ValidateToken(forged); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token error for bad signature, got %v", err)
	}
}

func TestValidateRequestReadsHeaderAndCookie(t *testing.T) {
	validator := newTestValidator(t)
	token := mintTestToken(t, []byte("test-signing-key"), "sessiond-test", testReference, time.Minute)

	withHeader := httptest.NewRequest(http.MethodGet, "/resource", nil)
	withHeader.Header.Set("Authorization", "Bearer "+token)
	if _, err := validator.ValidateRequest(withHeader); err != nil {
		t.Fatalf("expected header token accepted, got %v", err)
	}

	withCookie := httptest.NewRequest(http.MethodGet, "/resource", nil)
	withCookie.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: token})
	if _, err := validator.ValidateRequest(withCookie); err != nil {
		t.Fatalf("expected cookie token accepted, got %v", err)
	}

	bare := httptest.NewRequest(http.MethodGet, "/resource", nil)
	if _, err := validator.ValidateRequest(bare); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("expected missing token error, got %v", err)
	}
	if _, err := validator.ValidateRequest(nil); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("expected missing token error for nil request, got %v", err)
	}
}

func TestGinMiddlewareInjectsClaims(t *testing.T) {
	gin.SetMode(gin.TestMode)
	validator := newTestValidator(t)
	token := mintTestToken(t, []byte("test-signing-key"), "sessiond-test", testReference, time.Minute)

	router := gin.New()
	router.Use(validator.GinMiddleware(""))
	router.GET("/resource", func(contextGin *gin.Context) {
		value, found := contextGin.Get(DefaultContextKey)
		if !found {
			contextGin.Status(http.StatusInternalServerError)
			return
		}
		claims, ok := value.(*Claims)
		if !ok || claims.GetPrincipalID() != "principal-1" {
			contextGin.Status(http.StatusInternalServerError)
			return
		}
		contextGin.Status(http.StatusOK)
	})

	authorized := httptest.NewRequest(http.MethodGet, "/resource", nil)
	authorized.Header.Set("Authorization", "Bearer "+token)
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, authorized)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}

	anonymous := httptest.NewRequest(http.MethodGet, "/resource", nil)
	recorder = httptest.NewRecorder()
	router.ServeHTTP(recorder, anonymous)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", recorder.Code)
	}
}
