package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAdminAuth_WithValidToken(t *testing.T) {
	auth := NewAdminAuth("test-secret")
	token := auth.IssueToken("admin")

	nextCalled := false
	var gotAdmin string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nextCalled = true
		gotAdmin, _ = GetAdminFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	handler := auth.Middleware(next)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/orders", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if !nextCalled {
		t.Fatal("next handler was not called with valid token")
	}
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	if gotAdmin != "admin" {
		t.Fatalf("admin from context = %q, want %q", gotAdmin, "admin")
	}
}

func TestAdminAuth_WithoutToken(t *testing.T) {
	auth := NewAdminAuth("test-secret")

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("next handler must not be called without token")
	})

	handler := auth.Middleware(next)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/orders", nil)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestAdminAuth_WithTamperedToken(t *testing.T) {
	auth := NewAdminAuth("test-secret")
	token := auth.IssueToken("admin")

	// Подмена имени при сохранении чужой подписи.
	tampered := "root" + token[len("admin"):]

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("next handler must not be called with tampered token")
	})

	handler := auth.Middleware(next)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/orders", nil)
	req.Header.Set("Authorization", "Bearer "+tampered)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestAdminAuth_TokenFromDifferentSecret(t *testing.T) {
	token := NewAdminAuth("other-secret").IssueToken("admin")
	auth := NewAdminAuth("test-secret")

	handler := auth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("next handler must not be called with foreign token")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/admin/orders", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}
