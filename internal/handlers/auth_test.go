package handlers

import (
	"net/http"
	"testing"

	"github.com/getdatasurge/escalation-engine/internal/middleware"
	"github.com/getdatasurge/escalation-engine/internal/testhelpers"
)

func newAuthFixture(t *testing.T) (http.Handler, *middleware.JWTAuthMiddleware) {
	t.Helper()
	hash, err := middleware.HashPassword("s3cret!")
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}
	jwtAuth := middleware.NewJWTAuthMiddleware(&middleware.JWTAuthConfig{
		Enabled:           true,
		AdminUsername:     "admin",
		AdminPasswordHash: hash,
		JWTSecret:         "test-signing-secret",
		JWTExpiryHours:    12,
		SkipPaths:         []string{"/auth/login"},
	})

	mux := http.NewServeMux()
	NewAuthHandler(jwtAuth).SetupRoutes(mux)
	return jwtAuth.Wrap(mux), jwtAuth
}

func TestLoginIssuesToken(t *testing.T) {
	handler, _ := newAuthFixture(t)

	var resp LoginResponse
	testhelpers.NewHTTPTestContext(t, http.MethodPost, "/auth/login", nil).
		WithJSONBody(map[string]string{"username": "admin", "password": "s3cret!"}).
		Execute(handler).AssertStatus(200).DecodeJSON(&resp)

	if resp.Token == "" {
		t.Fatal("expected a token")
	}
	if resp.ExpiresIn != 12*60*60 {
		t.Errorf("expires_in = %d, want the configured 12h", resp.ExpiresIn)
	}
}

func TestLoginRejectsBadPassword(t *testing.T) {
	handler, _ := newAuthFixture(t)
	testhelpers.NewHTTPTestContext(t, http.MethodPost, "/auth/login", nil).
		WithJSONBody(map[string]string{"username": "admin", "password": "nope"}).
		Execute(handler).AssertStatus(401)
}

func TestLoginValidation(t *testing.T) {
	handler, _ := newAuthFixture(t)
	testhelpers.NewHTTPTestContext(t, http.MethodPost, "/auth/login", nil).
		WithJSONBody(map[string]string{"username": "admin"}).
		Execute(handler).AssertStatus(422).AssertBodyContains("password")
}

func TestVerifyRequiresToken(t *testing.T) {
	handler, jwtAuth := newAuthFixture(t)

	testhelpers.NewHTTPTestContext(t, http.MethodGet, "/auth/verify", nil).
		Execute(handler).AssertStatus(401)

	token, err := jwtAuth.GenerateToken("admin")
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}
	testhelpers.NewHTTPTestContext(t, http.MethodGet, "/auth/verify", nil).
		WithBearerToken(token).
		Execute(handler).AssertStatus(200).AssertBodyContains("admin")
}
