package sessionkit

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// ClaimsContextKey is where RequireAccess stores the verified claims.
const ClaimsContextKey = "session_claims"

// RequireAccess verifies the access token from the Authorization header or
// the access cookie and injects claims into the request context. An expired
// token is signalled distinctly so clients attempt a silent refresh instead
// of forcing re-login; infrastructure failures surface as 500, never as 401.
func RequireAccess(manager *Manager) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		rawToken := ExtractAccessToken(contextGin.Request, manager.Config().AccessCookieName)
		claims, verifyErr := manager.VerifyAccess(contextGin, rawToken)
		if verifyErr != nil {
			switch {
			case errors.Is(verifyErr, ErrAccessTokenExpired):
				contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token_expired"})
			case IsRejection(verifyErr):
				contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			default:
				contextGin.AbortWithStatus(http.StatusInternalServerError)
			}
			return
		}
		contextGin.Set(ClaimsContextKey, claims)
		contextGin.Next()
	}
}

// RequireRole rejects authenticated requests whose role lacks the required
// capability. Must run after RequireAccess.
func RequireRole(required ...Role) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		claims, ok := ClaimsFromContext(contextGin)
		if !ok {
			contextGin.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		if !HasCapability(claims.Role, required) {
			contextGin.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		contextGin.Next()
	}
}

// ClaimsFromContext retrieves claims stored by RequireAccess.
func ClaimsFromContext(contextGin *gin.Context) (*AccessClaims, bool) {
	value, found := contextGin.Get(ClaimsContextKey)
	if !found {
		return nil, false
	}
	claims, ok := value.(*AccessClaims)
	if !ok || claims == nil {
		return nil, false
	}
	return claims, true
}

// ExtractAccessToken reads the raw access token from a Bearer Authorization
// header, falling back to the named cookie.
func ExtractAccessToken(request *http.Request, cookieName string) string {
	if request == nil {
		return ""
	}
	authorization := request.Header.Get("Authorization")
	if authorization != "" {
		scheme, token, found := strings.Cut(authorization, " ")
		if found && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}
	if cookieName != "" {
		cookie, cookieErr := request.Cookie(cookieName)
		if cookieErr == nil && cookie != nil {
			return strings.TrimSpace(cookie.Value)
		}
	}
	return ""
}
