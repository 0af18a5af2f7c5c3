package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

func signToken(t *testing.T, secret string, claims *Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestVerifier_Verify(t *testing.T) {
	v := NewVerifier("test-secret")
	tokenStr := signToken(t, "test-secret", &Claims{
		UserID:   "u-1",
		Username: "alice",
		Role:     RoleNurse,
	})

	ident, err := v.Verify(tokenStr)
	if err != nil {
		t.Fatalf("Verify() error: %v", err)
	}
	if ident.UserID != "u-1" || ident.Username != "alice" || ident.Role != RoleNurse {
		t.Errorf("unexpected identity: %+v", ident)
	}
}

func TestVerifier_RejectsWrongSecret(t *testing.T) {
	v := NewVerifier("right-secret")
	tokenStr := signToken(t, "wrong-secret", &Claims{UserID: "u-1"})

	if _, err := v.Verify(tokenStr); err == nil {
		t.Fatal("expected error for token signed with the wrong secret")
	}
}

func TestVerifier_RejectsExpired(t *testing.T) {
	v := NewVerifier("test-secret")
	tokenStr := signToken(t, "test-secret", &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
		UserID: "u-1",
	})

	if _, err := v.Verify(tokenStr); err == nil {
		t.Fatal("expected error for expired token")
	}
}

func TestVerifier_RejectsMissingUserID(t *testing.T) {
	v := NewVerifier("test-secret")
	tokenStr := signToken(t, "test-secret", &Claims{Username: "ghost"})

	if _, err := v.Verify(tokenStr); err == nil {
		t.Fatal("expected error for token without user_id")
	}
}

func TestBearerToken(t *testing.T) {
	if _, err := BearerToken(""); err == nil {
		t.Error("expected error for empty header")
	}
	if _, err := BearerToken("Basic abc"); err == nil {
		t.Error("expected error for non-bearer scheme")
	}
	token, err := BearerToken("Bearer abc123")
	if err != nil || token != "abc123" {
		t.Errorf("expected abc123, got %q (err %v)", token, err)
	}
}

func TestJWTMiddleware(t *testing.T) {
	e := echo.New()
	v := NewVerifier("test-secret")
	tokenStr := signToken(t, "test-secret", &Claims{UserID: "u-1", Username: "alice", Role: RoleNurse})

	var got *Identity
	h := JWTMiddleware(v)(func(c echo.Context) error {
		got = IdentityFromContext(c.Request().Context())
		return c.NoContent(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tokenStr)
	c := e.NewContext(req, httptest.NewRecorder())
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil || got.UserID != "u-1" {
		t.Fatalf("identity not propagated: %+v", got)
	}

	// Missing header
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	c = e.NewContext(req, httptest.NewRecorder())
	err := h(c)
	if httpErr, ok := err.(*echo.HTTPError); !ok || httpErr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %v", err)
	}
}

func TestRequireRole(t *testing.T) {
	e := echo.New()
	ok := func(c echo.Context) error { return c.NoContent(http.StatusOK) }

	run := func(ident *Identity, roles ...string) error {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if ident != nil {
			req = req.WithContext(WithIdentity(req.Context(), ident))
		}
		c := e.NewContext(req, httptest.NewRecorder())
		return RequireRole(roles...)(ok)(c)
	}

	if err := run(&Identity{UserID: "u-1", Role: RoleNurse}, RoleNurse); err != nil {
		t.Errorf("nurse should pass a nurse check: %v", err)
	}
	if err := run(&Identity{UserID: "u-2", Role: RoleAdmin}, RoleNurse); err != nil {
		t.Errorf("admin should pass any check: %v", err)
	}
	err := run(&Identity{UserID: "u-3", Role: RoleCashier}, RoleNurse)
	if httpErr, ok := err.(*echo.HTTPError); !ok || httpErr.Code != http.StatusForbidden {
		t.Errorf("expected 403 for cashier on nurse check, got %v", err)
	}
	err = run(nil, RoleNurse)
	if httpErr, ok := err.(*echo.HTTPError); !ok || httpErr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for anonymous caller, got %v", err)
	}
}
