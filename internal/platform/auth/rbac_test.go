package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func runWithPrincipal(t *testing.T, mw echo.MiddlewareFunc, p *Principal) (*httptest.ResponseRecorder, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if p != nil {
		req = req.WithContext(ContextWithPrincipal(context.Background(), *p))
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	handler := func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	}
	err := mw(handler)(c)
	return rec, err
}

func TestRequireAdmin(t *testing.T) {
	tests := []struct {
		name      string
		principal *Principal
		wantCode  int
	}{
		{"active admin", &Principal{UserID: "a", Role: RoleAdmin, Active: true}, http.StatusOK},
		{"inactive admin", &Principal{UserID: "a", Role: RoleAdmin, Active: false}, http.StatusForbidden},
		{"active user", &Principal{UserID: "u", Role: RoleUser, Active: true}, http.StatusForbidden},
		{"anonymous", nil, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := runWithPrincipal(t, RequireAdmin(), tt.principal)
			if tt.wantCode == http.StatusOK {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				if rec.Code != http.StatusOK {
					t.Errorf("expected 200, got %d", rec.Code)
				}
				return
			}
			httpErr, ok := err.(*echo.HTTPError)
			if !ok {
				t.Fatalf("expected echo.HTTPError, got %T", err)
			}
			if httpErr.Code != tt.wantCode {
				t.Errorf("expected %d, got %d", tt.wantCode, httpErr.Code)
			}
		})
	}
}

func TestRequireRole_AnyOf(t *testing.T) {
	_, err := runWithPrincipal(t, RequireRole(RoleAdmin, RoleUser), &Principal{Role: RoleUser, Active: true})
	if err != nil {
		t.Errorf("expected user role to pass, got %v", err)
	}
}

func TestPrincipal_IsAdmin(t *testing.T) {
	if !(Principal{Role: RoleAdmin, Active: true}).IsAdmin() {
		t.Error("active admin should be admin")
	}
	if (Principal{Role: RoleAdmin, Active: false}).IsAdmin() {
		t.Error("inactive admin must not pass the admin gate")
	}
	if (Principal{Role: RoleUser, Active: true}).IsAdmin() {
		t.Error("user must not pass the admin gate")
	}
}

func TestIsPublicPath(t *testing.T) {
	if !IsPublicPath("/health") || !IsPublicPath("/api/v1/auth/sign-in") {
		t.Error("expected health and sign-in to be public")
	}
	if IsPublicPath("/api/v1/beds") {
		t.Error("expected beds to require auth")
	}
}
