package sessionkit

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// CredentialAuthenticator verifies a login key and password against the
// external identity store and returns the matching active principal.
type CredentialAuthenticator interface {
	Authenticate(ctx context.Context, loginKey string, password string) (Principal, error)
}

// ErrBadCredentials is returned by authenticators for unknown principals and
// wrong passwords alike.
var ErrBadCredentials = errors.New("identity.bad_credentials")

// MountSessionRoutes registers /auth/login, /auth/refresh, /auth/logout,
// /auth/logout_all, and /me.
func MountSessionRoutes(router gin.IRouter, manager *Manager, authenticator CredentialAuthenticator) {
	configuration := manager.Config()

	router.POST("/auth/login", func(contextGin *gin.Context) {
		var inbound struct {
			LoginKey string `json:"login_key"`
			Password string `json:"password"`
		}
		if err := contextGin.BindJSON(&inbound); err != nil || strings.TrimSpace(inbound.LoginKey) == "" || inbound.Password == "" {
			contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_json"})
			return
		}
		if !configuration.AllowInsecureHTTP && !isHTTPS(contextGin.Request) {
			contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "https_required"})
			return
		}

		principal, authErr := authenticator.Authenticate(contextGin, inbound.LoginKey, inbound.Password)
		if authErr != nil {
			if errors.Is(authErr, ErrBadCredentials) || errors.Is(authErr, ErrPrincipalInactive) {
				contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "bad_credentials"})
				return
			}
			contextGin.AbortWithStatus(http.StatusInternalServerError)
			return
		}

		pair, issueErr := manager.IssueTokenPair(contextGin, principal, requestMetadata(contextGin))
		if issueErr != nil {
			contextGin.AbortWithStatus(http.StatusInternalServerError)
			return
		}

		writeTokenCookies(contextGin, configuration, pair)
		contextGin.JSON(http.StatusOK, gin.H{
			"principal_id": pair.PrincipalID,
			"login_key":    principal.LoginKey,
			"display":      principal.DisplayName,
			"role":         pair.Role,
			"expires":      pair.AccessExpiresAt,
		})
	})

	router.POST("/auth/refresh", func(contextGin *gin.Context) {
		rawRefreshToken := extractRefreshToken(contextGin, configuration.RefreshCookieName)
		if rawRefreshToken == "" {
			contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		pair, rotateErr := manager.Rotate(contextGin, rawRefreshToken, requestMetadata(contextGin))
		if rotateErr != nil {
			if IsRejection(rotateErr) {
				contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
				return
			}
			contextGin.AbortWithStatus(http.StatusInternalServerError)
			return
		}

		writeTokenCookies(contextGin, configuration, pair)
		contextGin.Status(http.StatusNoContent)
	})

	router.POST("/auth/logout", func(contextGin *gin.Context) {
		rawRefreshToken := extractRefreshToken(contextGin, configuration.RefreshCookieName)
		rawAccessToken := ExtractAccessToken(contextGin.Request, configuration.AccessCookieName)
		if err := manager.RevokeSession(contextGin, rawRefreshToken, rawAccessToken); err != nil {
			contextGin.AbortWithStatus(http.StatusInternalServerError)
			return
		}
		clearCookie(contextGin, configuration.AccessCookieName, configuration.CookieDomain, configuration.SameSiteMode)
		clearCookie(contextGin, configuration.RefreshCookieName, configuration.CookieDomain, configuration.SameSiteMode)
		contextGin.Status(http.StatusNoContent)
	})

	authenticated := router.Group("")
	authenticated.Use(RequireAccess(manager))

	authenticated.POST("/auth/logout_all", func(contextGin *gin.Context) {
		claims, ok := ClaimsFromContext(contextGin)
		if !ok {
			contextGin.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		if err := manager.RevokeAllSessions(contextGin, claims.PrincipalID); err != nil {
			contextGin.AbortWithStatus(http.StatusInternalServerError)
			return
		}
		clearCookie(contextGin, configuration.AccessCookieName, configuration.CookieDomain, configuration.SameSiteMode)
		clearCookie(contextGin, configuration.RefreshCookieName, configuration.CookieDomain, configuration.SameSiteMode)
		contextGin.Status(http.StatusNoContent)
	})

	authenticated.GET("/me", func(contextGin *gin.Context) {
		claims, ok := ClaimsFromContext(contextGin)
		if !ok {
			contextGin.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		expiresAt := time.Time{}
		if claims.ExpiresAt != nil {
			expiresAt = claims.ExpiresAt.Time
		}
		contextGin.JSON(http.StatusOK, gin.H{
			"principal_id": claims.PrincipalID,
			"login_key":    claims.LoginKey,
			"role":         claims.Role,
			"expires":      expiresAt,
		})
	})
}

func requestMetadata(contextGin *gin.Context) SessionMetadata {
	return SessionMetadata{
		UserAgent: contextGin.Request.UserAgent(),
		SourceIP:  contextGin.ClientIP(),
	}
}

func extractRefreshToken(contextGin *gin.Context, cookieName string) string {
	cookie, cookieErr := contextGin.Request.Cookie(cookieName)
	if cookieErr == nil && cookie != nil && strings.TrimSpace(cookie.Value) != "" {
		return strings.TrimSpace(cookie.Value)
	}
	var inbound struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := contextGin.ShouldBindJSON(&inbound); err == nil {
		return strings.TrimSpace(inbound.RefreshToken)
	}
	return ""
}

func writeTokenCookies(contextGin *gin.Context, configuration Config, pair TokenPair) {
	http.SetCookie(contextGin.Writer, &http.Cookie{
		Name:     configuration.AccessCookieName,
		Value:    pair.AccessToken,
		Path:     "/",
		Domain:   configuration.CookieDomain,
		Expires:  pair.AccessExpiresAt,
		Secure:   !configuration.AllowInsecureHTTP,
		HttpOnly: true,
		SameSite: configuration.SameSiteMode,
	})
	http.SetCookie(contextGin.Writer, &http.Cookie{
		Name:     configuration.RefreshCookieName,
		Value:    pair.RefreshToken,
		Path:     "/auth",
		Domain:   configuration.CookieDomain,
		Expires:  pair.RefreshExpiresAt,
		Secure:   !configuration.AllowInsecureHTTP,
		HttpOnly: true,
		SameSite: configuration.SameSiteMode,
	})
}

func clearCookie(contextGin *gin.Context, name string, domain string, sameSite http.SameSite) {
	http.SetCookie(contextGin.Writer, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Domain:   domain,
		MaxAge:   -1,
		Secure:   true,
		HttpOnly: true,
		SameSite: sameSite,
	})
}

func isHTTPS(request *http.Request) bool {
	if request.TLS != nil {
		return true
	}
	scheme := request.Header.Get("X-Forwarded-Proto")
	if strings.EqualFold(scheme, "https") {
		return true
	}
	forwarded := request.Header.Get("Forwarded")
	if forwarded != "" && strings.Contains(strings.ToLower(forwarded), "proto=https") {
		return true
	}
	host, _, splitErr := net.SplitHostPort(request.Host)
	if splitErr == nil && host == "localhost" {
		return true
	}
	return false
}
