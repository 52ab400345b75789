package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/komodo-run/core/internal/domain/user"
	"github.com/komodo-run/core/internal/middleware"
)

func injectUser(u *user.User) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), middleware.AuthUserCtxKeyForTest(), u)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func TestRequireAdmin_AdminAllowed(t *testing.T) {
	// Auth disabled injects the bootstrap super_admin.
	inner := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	handler := middleware.Auth(nil, false)(middleware.RequireAdmin()(inner))

	req := httptest.NewRequest(http.MethodGet, "/user", http.NoBody)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestRequireAdmin_NoUser_Returns401(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	// No auth middleware, so no user in context.
	handler := middleware.RequireAdmin()(inner)

	req := httptest.NewRequest(http.MethodGet, "/user", http.NoBody)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestRequireAdmin_NonAdmin_Returns403(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	plainUser := &user.User{ID: "u-1", Username: "plain", Enabled: true}
	handler := injectUser(plainUser)(middleware.RequireAdmin()(inner))

	req := httptest.NewRequest(http.MethodGet, "/user", http.NoBody)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}

func TestRequireAdmin_PlainAdminAllowed(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	adminUser := &user.User{ID: "u-2", Username: "admin-only", Admin: true, Enabled: true}
	handler := injectUser(adminUser)(middleware.RequireAdmin()(inner))

	req := httptest.NewRequest(http.MethodGet, "/user", http.NoBody)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestRequireSuperAdmin_AdminOnly_Returns403(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	adminOnly := &user.User{ID: "u-3", Username: "admin-only", Admin: true, Enabled: true}
	handler := injectUser(adminOnly)(middleware.RequireSuperAdmin()(inner))

	req := httptest.NewRequest(http.MethodGet, "/user", http.NoBody)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}

func TestRequireSuperAdmin_SuperAdminAllowed(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	superAdmin := &user.User{ID: "u-4", Username: "super", Admin: true, SuperAdmin: true, Enabled: true}
	handler := injectUser(superAdmin)(middleware.RequireSuperAdmin()(inner))

	req := httptest.NewRequest(http.MethodGet, "/user", http.NoBody)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}
