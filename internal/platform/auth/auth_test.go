package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

var testKey = []byte("test-signing-key")

func okHandler(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}

func TestIssueAndValidateToken(t *testing.T) {
	token, err := IssueToken(testKey, time.Hour, TokenUser{
		ID:       "u-1",
		Username: "operator",
		Email:    "op@example.com",
		Role:     "employee",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var gotID, gotRole string
	h := JWTMiddleware(JWTConfig{SigningKey: testKey})(func(c echo.Context) error {
		gotID = UserIDFromContext(c.Request().Context())
		gotRole = RoleFromContext(c.Request().Context())
		return c.NoContent(http.StatusOK)
	})

	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotID != "u-1" {
		t.Errorf("expected user id u-1, got %s", gotID)
	}
	if gotRole != "employee" {
		t.Errorf("expected role employee, got %s", gotRole)
	}
}

func TestJWTMiddleware_MissingHeader(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	h := JWTMiddleware(JWTConfig{SigningKey: testKey})(okHandler)
	err := h(c)
	if err == nil {
		t.Fatal("expected error for missing header")
	}
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %v", err)
	}
}

func TestJWTMiddleware_ExpiredToken(t *testing.T) {
	token, err := IssueToken(testKey, -time.Minute, TokenUser{ID: "u-1", Role: "admin"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	h := JWTMiddleware(JWTConfig{SigningKey: testKey})(okHandler)
	err = h(c)
	if err == nil {
		t.Fatal("expected error for expired token")
	}
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %v", err)
	}
}

func TestJWTMiddleware_WrongKey(t *testing.T) {
	token, err := IssueToken([]byte("other-key"), time.Hour, TokenUser{ID: "u-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	h := JWTMiddleware(JWTConfig{SigningKey: testKey})(okHandler)
	if err := h(c); err == nil {
		t.Fatal("expected error for token signed with a different key")
	}
}

func roleContext(e *echo.Echo, role string) echo.Context {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	ctx := context.WithValue(req.Context(), UserRoleKey, role)
	req = req.WithContext(ctx)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec)
}

func TestRequireRole(t *testing.T) {
	e := echo.New()
	h := RequireRole("employee")(okHandler)

	if err := h(roleContext(e, "employee")); err != nil {
		t.Errorf("expected employee to pass: %v", err)
	}
	if err := h(roleContext(e, "admin")); err != nil {
		t.Errorf("expected admin to pass implicitly: %v", err)
	}

	err := h(roleContext(e, "viewer"))
	if err == nil {
		t.Fatal("expected error for unauthorized role")
	}
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %v", err)
	}
}

func TestDevAuthMiddleware_Defaults(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var gotRole string
	h := DevAuthMiddleware()(func(c echo.Context) error {
		gotRole = RoleFromContext(c.Request().Context())
		return c.NoContent(http.StatusOK)
	})
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotRole != "admin" {
		t.Errorf("expected dev default role admin, got %s", gotRole)
	}
}
