package sessionkit

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AccessClaims are embedded in the signed access token.
type AccessClaims struct {
	PrincipalID string `json:"principal_id"`
	LoginKey    string `json:"login_key"`
	Role        Role   `json:"role"`
	jwt.RegisteredClaims
}

// MintAccessToken creates a signed HS256 access token for the principal.
func MintAccessToken(clock Clock, principal Principal, issuer string, signingKey []byte, ttl time.Duration) (string, time.Time, error) {
	if strings.TrimSpace(principal.ID) == "" {
		return "", time.Time{}, errors.New("jwt.mint.failure: subject must be non-empty")
	}
	issuedAt := clock.Now().UTC()
	expiresAt := issuedAt.Add(ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, AccessClaims{
		PrincipalID: principal.ID,
		LoginKey:    principal.LoginKey,
		Role:        principal.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   principal.ID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt.Add(-30 * time.Second)),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})
	signed, err := token.SignedString(signingKey)
	return signed, expiresAt, err
}

// ParseAccessToken validates signature, expiry, and issuer, discriminating
// expired from otherwise invalid tokens so callers can attempt a silent
// refresh on expiry.
func ParseAccessToken(clock Clock, rawToken string, issuer string, signingKey []byte) (*AccessClaims, error) {
	if strings.TrimSpace(rawToken) == "" {
		return nil, fmt.Errorf("jwt.parse: %w", ErrAccessTokenInvalid)
	}
	parsedToken, parseErr := jwt.ParseWithClaims(rawToken, &AccessClaims{}, func(parsed *jwt.Token) (interface{}, error) {
		return signingKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(func() time.Time {
		return clock.Now()
	}))
	if parseErr != nil {
		if errors.Is(parseErr, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("jwt.parse: %w", ErrAccessTokenExpired)
		}
		return nil, fmt.Errorf("jwt.parse: %w", ErrAccessTokenInvalid)
	}
	if parsedToken == nil || !parsedToken.Valid {
		return nil, fmt.Errorf("jwt.parse: %w", ErrAccessTokenInvalid)
	}
	claims, ok := parsedToken.Claims.(*AccessClaims)
	if !ok || claims.PrincipalID == "" {
		return nil, fmt.Errorf("jwt.parse: %w", ErrAccessTokenInvalid)
	}
	if claims.Issuer != issuer {
		return nil, fmt.Errorf("jwt.parse.issuer: %w", ErrAccessTokenInvalid)
	}
	return claims, nil
}

// ParseAccessTokenExpiry extracts the expiry from a token without validating
// its lifetime window, for computing the remaining denylist TTL at logout.
// Signature and issuer are still enforced.
func ParseAccessTokenExpiry(rawToken string, issuer string, signingKey []byte) (time.Time, error) {
	if strings.TrimSpace(rawToken) == "" {
		return time.Time{}, fmt.Errorf("jwt.parse_expiry: %w", ErrAccessTokenInvalid)
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	parsedToken, parseErr := parser.ParseWithClaims(rawToken, &AccessClaims{}, func(parsed *jwt.Token) (interface{}, error) {
		return signingKey, nil
	})
	if parseErr != nil || parsedToken == nil {
		return time.Time{}, fmt.Errorf("jwt.parse_expiry: %w", ErrAccessTokenInvalid)
	}
	claims, ok := parsedToken.Claims.(*AccessClaims)
	if !ok || claims.Issuer != issuer || claims.ExpiresAt == nil {
		return time.Time{}, fmt.Errorf("jwt.parse_expiry: %w", ErrAccessTokenInvalid)
	}
	return claims.ExpiresAt.Time, nil
}
