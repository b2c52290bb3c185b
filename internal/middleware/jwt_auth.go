package middleware

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/getdatasurge/escalation-engine/internal/api"
)

// UserClaims is the token payload for an authenticated operator.
type UserClaims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// JWTAuthConfig is the middleware's startup configuration. It is fixed
// for the process lifetime.
type JWTAuthConfig struct {
	// Enabled turns enforcement on. When false every request passes.
	Enabled bool

	// AdminUsername and AdminPasswordHash (bcrypt) are the single
	// operator account.
	AdminUsername     string
	AdminPasswordHash string

	// JWTSecret signs tokens; JWTExpiryHours bounds their lifetime.
	JWTSecret      string
	JWTExpiryHours int

	// SkipPaths bypass authentication: health checks, webhook ingest
	// (secured by per-source secrets) and the login endpoint itself.
	// A trailing * matches by prefix.
	SkipPaths []string
}

// JWTAuthMiddleware gates the operator API behind bearer tokens.
type JWTAuthMiddleware struct {
	config       *JWTAuthConfig
	skipExact    map[string]bool
	skipPrefixes []string
}

// ContextKey is a type for context keys
type ContextKey string

// UserContextKey is the context key for the authenticated username.
const UserContextKey ContextKey = "user"

// NewJWTAuthMiddleware creates a new JWTAuthMiddleware
func NewJWTAuthMiddleware(config *JWTAuthConfig) *JWTAuthMiddleware {
	m := &JWTAuthMiddleware{
		config:    config,
		skipExact: make(map[string]bool),
	}
	for _, path := range config.SkipPaths {
		if prefix, ok := strings.CutSuffix(path, "*"); ok {
			m.skipPrefixes = append(m.skipPrefixes, prefix)
			continue
		}
		m.skipExact[path] = true
	}
	return m
}

// HashPassword hashes a password using bcrypt
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

// TokenTTL returns the configured token lifetime.
func (m *JWTAuthMiddleware) TokenTTL() time.Duration {
	return time.Duration(m.config.JWTExpiryHours) * time.Hour
}

// GenerateToken issues a signed token for an authenticated operator.
func (m *JWTAuthMiddleware) GenerateToken(username string) (string, error) {
	now := time.Now()
	claims := UserClaims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(m.TokenTTL())),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "escalation-engine",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(m.config.JWTSecret))
}

// ValidateCredentials checks the operator username and password.
// Username comparison is constant-time; the password check rides
// bcrypt's own timing properties.
func (m *JWTAuthMiddleware) ValidateCredentials(username, password string) bool {
	if subtle.ConstantTimeCompare([]byte(username), []byte(m.config.AdminUsername)) != 1 {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(m.config.AdminPasswordHash), []byte(password)) == nil
}

// validateToken parses and verifies a bearer token, pinning the signing
// method so a token signed "none" or with an asymmetric header is
// rejected outright.
func (m *JWTAuthMiddleware) validateToken(tokenString string) (*UserClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &UserClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return []byte(m.config.JWTSecret), nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*UserClaims)
	if !ok || !token.Valid {
		return nil, jwt.ErrSignatureInvalid
	}
	return claims, nil
}

// Wrap enforces authentication around next.
func (m *JWTAuthMiddleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.config.Enabled || m.skipAuth(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		tokenString := extractToken(r)
		if tokenString == "" {
			m.unauthorized(w, "Missing authentication token")
			return
		}

		claims, err := m.validateToken(tokenString)
		if err != nil {
			log.Printf("JWTAuthMiddleware: rejected token from %s: %v", r.RemoteAddr, err)
			m.unauthorized(w, "Invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), UserContextKey, claims.Username)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *JWTAuthMiddleware) skipAuth(path string) bool {
	if m.skipExact[path] {
		return true
	}
	for _, prefix := range m.skipPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// extractToken pulls the bearer token from the Authorization header,
// falling back to a token query parameter for the event stream:
// browser WebSocket clients cannot set request headers.
func extractToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

func (m *JWTAuthMiddleware) unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="API"`)
	api.RespondError(w, http.StatusUnauthorized, message)
}

// GetUserFromContext returns the authenticated username, or "".
func GetUserFromContext(ctx context.Context) string {
	if user, ok := ctx.Value(UserContextKey).(string); ok {
		return user
	}
	return ""
}
