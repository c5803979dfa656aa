package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tyemirov/sessiond/internal/sessionkit"
)

func TestRegisterAndAuthenticate(t *testing.T) {
	store := NewInMemoryPrincipals()

	principal, registerErr := store.Register(context.Background(), "  User@Example.com ", "secret", "Test User", sessionkit.RoleUser)
	if registerErr != nil {
		t.Fatalf("register error: %v", registerErr)
	}
	if principal.LoginKey != "user@example.com" {
		t.Fatalf("expected normalized login key, got %q", principal.LoginKey)
	}
	if principal.ID == "" || !principal.Active {
		t.Fatalf("unexpected principal: %+v", principal)
	}

	authenticated, authErr := store.Authenticate(context.Background(), "user@example.com", "secret")
	if authErr != nil {
		t.Fatalf("authenticate error: %v", authErr)
	}
	if authenticated.ID != principal.ID {
		t.Fatalf("expected same principal, got %s and %s", authenticated.ID, principal.ID)
	}

	if _, err := store.Authenticate(context.Background(), "user@example.com", "wrong"); !errors.Is(err, sessionkit.ErrBadCredentials) {
		t.Fatalf("expected bad credentials for wrong password, got %v", err)
	}
	if _, err := store.Authenticate(context.Background(), "nobody@example.com", "secret"); !errors.Is(err, sessionkit.ErrBadCredentials) {
		t.Fatalf("expected bad credentials for unknown login key, got %v", err)
	}
}

func TestRegisterRejectsDuplicatesAndBadInput(t *testing.T) {
	store := NewInMemoryPrincipals()

	if _, err := store.Register(context.Background(), "user@example.com", "secret", "", sessionkit.RoleUser); err != nil {
		t.Fatalf("register error: %v", err)
	}
	if _, err := store.Register(context.Background(), "USER@example.com", "other", "", sessionkit.RoleUser); err == nil {
		t.Fatalf("expected duplicate login key rejection")
	}
	if _, err := store.Register(context.Background(), "", "secret", "", sessionkit.RoleUser); err == nil {
		t.Fatalf("expected empty login key rejection")
	}
	if _, err := store.Register(context.Background(), "other@example.com", "", "", sessionkit.RoleUser); err == nil {
		t.Fatalf("expected empty password rejection")
	}
	if _, err := store.Register(context.Background(), "other@example.com", "secret", "", sessionkit.Role("superuser")); !errors.Is(err, sessionkit.ErrUnknownRole) {
		t.Fatalf("expected unknown role rejection, got %v", err)
	}
}

func TestDeactivateBlocksAuthentication(t *testing.T) {
	store := NewInMemoryPrincipals()

	principal, registerErr := store.Register(context.Background(), "user@example.com", "secret", "", sessionkit.RoleUser)
	if registerErr != nil {
		t.Fatalf("register error: %v", registerErr)
	}
	if err := store.Deactivate(context.Background(), principal.ID); err != nil {
		t.Fatalf("deactivate error: %v", err)
	}
	if _, err := store.Authenticate(context.Background(), "user@example.com", "secret"); !errors.Is(err, sessionkit.ErrPrincipalInactive) {
		t.Fatalf("expected inactive rejection, got %v", err)
	}
	if err := store.Deactivate(context.Background(), "missing"); !errors.Is(err, sessionkit.ErrPrincipalNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func newWebFixture(t *testing.T) (*InMemoryPrincipals, *sessionkit.Manager) {
	t.Helper()
	store := NewInMemoryPrincipals()
	manager, managerErr := sessionkit.NewManager(sessionkit.Config{
		Issuer:            "sessiond-test",
		AccessSigningKey:  []byte("test-signing-key"),
		AccessTTL:         15 * time.Minute,
		RefreshTTL:        7 * 24 * time.Hour,
		AccessCookieName:  "app_access",
		RefreshCookieName: "app_refresh",
		AllowInsecureHTTP: true,
	}, store, sessionkit.NewMemoryRefreshTokenStore(), nil, sessionkit.NewSystemClock(), nil, nil)
	if managerErr != nil {
		t.Fatalf("manager construction error: %v", managerErr)
	}
	return store, manager
}

func TestHandleRegisterIssuesFirstTokenPair(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store, manager := newWebFixture(t)

	router := gin.New()
	router.POST("/auth/register", HandleRegister(nil, store, manager))

	request := httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader(`{"login_key":"user@example.com","password":"secret","display_name":"Test User"}`))
	request.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)
	if recorder.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", recorder.Code, recorder.Body.String())
	}

	var body struct {
		PrincipalID  string `json:"principal_id"`
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &body); err != nil {
		t.Fatalf("unexpected body: %v", err)
	}
	if body.PrincipalID == "" || body.AccessToken == "" || body.RefreshToken == "" {
		t.Fatalf("expected identifiers and tokens in body: %+v", body)
	}

	if _, err := manager.VerifyAccess(context.Background(), body.AccessToken); err != nil {
		t.Fatalf("expected usable access token, got %v", err)
	}

	duplicate := httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader(`{"login_key":"user@example.com","password":"other"}`))
	duplicate.Header.Set("Content-Type", "application/json")
	recorder = httptest.NewRecorder()
	router.ServeHTTP(recorder, duplicate)
	if recorder.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate registration, got %d", recorder.Code)
	}
}

func TestHandleDeactivateRevokesSessions(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store, manager := newWebFixture(t)

	principal, registerErr := store.Register(context.Background(), "user@example.com", "secret", "", sessionkit.RoleUser)
	if registerErr != nil {
		t.Fatalf("register error: %v", registerErr)
	}
	pair, issueErr := manager.IssueTokenPair(context.Background(), principal, sessionkit.SessionMetadata{})
	if issueErr != nil {
		t.Fatalf("issue error: %v", issueErr)
	}

	router := gin.New()
	router.POST("/admin/principals/:id/deactivate", HandleDeactivate(nil, store, manager))

	request := httptest.NewRequest(http.MethodPost, "/admin/principals/"+principal.ID+"/deactivate", nil)
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)
	if recorder.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", recorder.Code)
	}

	if _, err := manager.Rotate(context.Background(), pair.RefreshToken, sessionkit.SessionMetadata{}); !sessionkit.IsRejection(err) {
		t.Fatalf("expected rotation rejected after deactivation, got %v", err)
	}

	missing := httptest.NewRequest(http.MethodPost, "/admin/principals/missing/deactivate", nil)
	recorder = httptest.NewRecorder()
	router.ServeHTTP(recorder, missing)
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown principal, got %d", recorder.Code)
	}
}
