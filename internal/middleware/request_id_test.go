package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
)

func TestRequestIDGenerated(t *testing.T) {
	var seen string
	handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/alerts", nil))

	id := w.Header().Get(RequestIDHeader)
	if id == "" {
		t.Fatal("expected a generated request ID header")
	}
	if _, err := uuid.Parse(id); err != nil {
		t.Errorf("generated ID %q is not a UUID: %v", id, err)
	}
	if seen != id {
		t.Errorf("context ID %q != header ID %q", seen, id)
	}
}

func TestRequestIDReusesClientID(t *testing.T) {
	var seen string
	handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/alerts", nil)
	req.Header.Set(RequestIDHeader, "evaluator-run-42")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if got := w.Header().Get(RequestIDHeader); got != "evaluator-run-42" {
		t.Errorf("header ID = %q, want the client's own", got)
	}
	if seen != "evaluator-run-42" {
		t.Errorf("context ID = %q, want the client's own", seen)
	}
}

func TestRequestIDOutsideMiddleware(t *testing.T) {
	if id := GetRequestID(context.Background()); id != "" {
		t.Errorf("expected empty ID, got %q", id)
	}
}
