package sessionkit

import (
	"net/http"
	"time"
)

// Config configures token signing, lifetimes, and cookies.
type Config struct {
	Issuer            string
	AccessSigningKey  []byte
	AccessTTL         time.Duration
	RefreshTTL        time.Duration
	CookieDomain      string
	AccessCookieName  string
	RefreshCookieName string
	SameSiteMode      http.SameSite
	AllowInsecureHTTP bool
}
