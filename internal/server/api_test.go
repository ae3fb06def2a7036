package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/techy/revo/pkg/models"
)

func TestAdminAuthMiddlewareRejectsWhenUnconfigured(t *testing.T) {
	s := &Server{config: &models.Config{}}
	called := false
	handler := s.adminAuthMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/anything", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("got status %d", rec.Code)
	}
	if called {
		t.Fatal("expected the wrapped handler not to run")
	}
}

func TestAdminAuthMiddlewareAcceptsCustomHeader(t *testing.T) {
	s := &Server{config: &models.Config{AdminAPIKey: "secret-key"}}
	called := false
	handler := s.adminAuthMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/anything", nil)
	req.Header.Set("X-Admin-API-Key", "secret-key")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d", rec.Code)
	}
	if !called {
		t.Fatal("expected the wrapped handler to run")
	}
}

func TestAdminAuthMiddlewareAcceptsBearerToken(t *testing.T) {
	s := &Server{config: &models.Config{AdminAPIKey: "secret-key"}}
	handler := s.adminAuthMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/anything", nil)
	req.Header.Set("Authorization", "Bearer secret-key")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d", rec.Code)
	}
}

func TestAdminAuthMiddlewareRejectsWrongKey(t *testing.T) {
	s := &Server{config: &models.Config{AdminAPIKey: "secret-key"}}
	handler := s.adminAuthMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/anything", nil)
	req.Header.Set("X-Admin-API-Key", "wrong-key")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("got status %d", rec.Code)
	}
}

func TestRandomHexProducesDistinctValuesOfRequestedLength(t *testing.T) {
	a, err := randomHex(16)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(a) != 32 {
		t.Fatalf("expected 32 hex chars for 16 bytes, got %d", len(a))
	}

	b, err := randomHex(16)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a == b {
		t.Fatal("expected two independent calls to produce different values")
	}
}
