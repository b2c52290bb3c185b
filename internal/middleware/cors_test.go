package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func corsFixture(origins ...string) http.Handler {
	return NewCORSMiddleware(origins...).Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func TestCORSPreflight(t *testing.T) {
	req := httptest.NewRequest(http.MethodOptions, "/api/alerts", nil)
	req.Header.Set("Origin", "http://dashboard.local")
	w := httptest.NewRecorder()
	corsFixture().ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://dashboard.local" {
		t.Errorf("allow origin = %q", got)
	}
	allowed := w.Header().Get("Access-Control-Allow-Headers")
	if !strings.Contains(allowed, "X-Webhook-Secret") {
		t.Errorf("allow headers %q must include the webhook secret header", allowed)
	}
}

func TestCORSOriginFilter(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/alerts", nil)
	req.Header.Set("Origin", "http://evil.example")
	w := httptest.NewRecorder()
	corsFixture("http://dashboard.local").ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("unexpected allow origin %q for a foreign origin", got)
	}
	if w.Code != http.StatusOK {
		t.Errorf("request itself must still be served, got %d", w.Code)
	}
}

func TestCORSSameOriginUntouched(t *testing.T) {
	w := httptest.NewRecorder()
	corsFixture().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/alerts", nil))

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("no Origin header should mean no CORS headers, got %q", got)
	}
}
