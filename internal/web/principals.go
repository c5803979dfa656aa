package web

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/tyemirov/sessiond/internal/sessionkit"
)

// InMemoryPrincipals is a simple identity store used for demo and local runs.
// It satisfies both the manager's PrincipalStore contract and the login
// route's CredentialAuthenticator.
type InMemoryPrincipals struct {
	mutex      sync.Mutex
	byID       map[string]*principalRecord
	byLoginKey map[string]string
	bcryptCost int
}

type principalRecord struct {
	sessionkit.Principal
	passwordHash []byte
}

// NewInMemoryPrincipals constructs an empty store.
func NewInMemoryPrincipals() *InMemoryPrincipals {
	return &InMemoryPrincipals{
		byID:       make(map[string]*principalRecord),
		byLoginKey: make(map[string]string),
		bcryptCost: bcrypt.DefaultCost,
	}
}

// Register creates a principal with a hashed password and the given role.
func (store *InMemoryPrincipals) Register(ctx context.Context, loginKey string, password string, displayName string, role sessionkit.Role) (sessionkit.Principal, error) {
	loginKey = strings.ToLower(strings.TrimSpace(loginKey))
	if loginKey == "" || password == "" {
		return sessionkit.Principal{}, fmt.Errorf("identity.register: login key and password must be non-empty")
	}
	if !role.Valid() {
		return sessionkit.Principal{}, fmt.Errorf("identity.register: %w", sessionkit.ErrUnknownRole)
	}
	passwordHash, hashErr := bcrypt.GenerateFromPassword([]byte(password), store.bcryptCost)
	if hashErr != nil {
		return sessionkit.Principal{}, fmt.Errorf("identity.register.hash: %w", hashErr)
	}
	store.mutex.Lock()
	defer store.mutex.Unlock()
	if _, exists := store.byLoginKey[loginKey]; exists {
		return sessionkit.Principal{}, fmt.Errorf("identity.register: login key already taken")
	}
	record := &principalRecord{
		Principal: sessionkit.Principal{
			ID:          uuid.NewString(),
			LoginKey:    loginKey,
			DisplayName: displayName,
			Role:        role,
			Active:      true,
		},
		passwordHash: passwordHash,
	}
	store.byID[record.ID] = record
	store.byLoginKey[loginKey] = record.ID
	return record.Principal, nil
}

// FindPrincipalByID returns the principal with the given identifier.
func (store *InMemoryPrincipals) FindPrincipalByID(ctx context.Context, principalID string) (sessionkit.Principal, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	record, ok := store.byID[principalID]
	if !ok {
		return sessionkit.Principal{}, fmt.Errorf("identity.find_by_id: %w", sessionkit.ErrPrincipalNotFound)
	}
	return record.Principal, nil
}

// FindPrincipalByLoginKey returns the principal with the given login key.
func (store *InMemoryPrincipals) FindPrincipalByLoginKey(ctx context.Context, loginKey string) (sessionkit.Principal, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	principalID, ok := store.byLoginKey[strings.ToLower(strings.TrimSpace(loginKey))]
	if !ok {
		return sessionkit.Principal{}, fmt.Errorf("identity.find_by_login_key: %w", sessionkit.ErrPrincipalNotFound)
	}
	return store.byID[principalID].Principal, nil
}

// Authenticate verifies the password for the login key. Unknown principals
// and wrong passwords report the same ErrBadCredentials.
func (store *InMemoryPrincipals) Authenticate(ctx context.Context, loginKey string, password string) (sessionkit.Principal, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	principalID, ok := store.byLoginKey[strings.ToLower(strings.TrimSpace(loginKey))]
	if !ok {
		return sessionkit.Principal{}, fmt.Errorf("identity.authenticate: %w", sessionkit.ErrBadCredentials)
	}
	record := store.byID[principalID]
	if compareErr := bcrypt.CompareHashAndPassword(record.passwordHash, []byte(password)); compareErr != nil {
		return sessionkit.Principal{}, fmt.Errorf("identity.authenticate: %w", sessionkit.ErrBadCredentials)
	}
	if !record.Active {
		return sessionkit.Principal{}, fmt.Errorf("identity.authenticate: %w", sessionkit.ErrPrincipalInactive)
	}
	return record.Principal, nil
}

// Deactivate clears the active flag; subsequent rotations for the principal
// fail with the inactive rejection.
func (store *InMemoryPrincipals) Deactivate(ctx context.Context, principalID string) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	record, ok := store.byID[principalID]
	if !ok {
		return fmt.Errorf("identity.deactivate: %w", sessionkit.ErrPrincipalNotFound)
	}
	record.Active = false
	return nil
}

// HandleRegister creates a principal and issues its first token pair, the
// same postcondition a fresh login would reach.
func HandleRegister(logger *zap.Logger, store *InMemoryPrincipals, manager *sessionkit.Manager) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(contextGin *gin.Context) {
		var inbound struct {
			LoginKey    string `json:"login_key"`
			Password    string `json:"password"`
			DisplayName string `json:"display_name"`
		}
		if err := contextGin.BindJSON(&inbound); err != nil || strings.TrimSpace(inbound.LoginKey) == "" || inbound.Password == "" {
			contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_json"})
			return
		}
		principal, registerErr := store.Register(contextGin, inbound.LoginKey, inbound.Password, inbound.DisplayName, sessionkit.RoleUser)
		if registerErr != nil {
			logger.Warn("registration rejected",
				zap.String("code", "identity.register.rejected"),
				zap.Error(registerErr))
			contextGin.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "registration_rejected"})
			return
		}
		pair, issueErr := manager.IssueTokenPair(contextGin, principal, sessionkit.SessionMetadata{
			UserAgent: contextGin.Request.UserAgent(),
			SourceIP:  contextGin.ClientIP(),
		})
		if issueErr != nil {
			logger.Error("token issuance failed after registration",
				zap.String("code", "identity.register.issue_failed"),
				zap.Error(issueErr))
			contextGin.AbortWithStatus(http.StatusInternalServerError)
			return
		}
		contextGin.JSON(http.StatusCreated, gin.H{
			"principal_id":  pair.PrincipalID,
			"login_key":     principal.LoginKey,
			"role":          pair.Role,
			"access_token":  pair.AccessToken,
			"refresh_token": pair.RefreshToken,
		})
	}
}

// HandleDeactivate deactivates a principal and revokes all its sessions.
// Mounted behind the admin role.
func HandleDeactivate(logger *zap.Logger, store *InMemoryPrincipals, manager *sessionkit.Manager) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(contextGin *gin.Context) {
		principalID := strings.TrimSpace(contextGin.Param("id"))
		if principalID == "" {
			contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "missing_principal_id"})
			return
		}
		if err := store.Deactivate(contextGin, principalID); err != nil {
			contextGin.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "principal_not_found"})
			return
		}
		if err := manager.RevokeAllSessions(contextGin, principalID); err != nil {
			logger.Error("mass revocation failed after deactivation",
				zap.String("code", "identity.deactivate.revoke_failed"),
				zap.String("principal_id", principalID),
				zap.Error(err))
			contextGin.AbortWithStatus(http.StatusInternalServerError)
			return
		}
		contextGin.Status(http.StatusNoContent)
	}
}
