package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func contextForRoute(path string) echo.Context {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, path, nil), httptest.NewRecorder())
	c.SetPath(path)
	return c
}

func TestAuthSkipper(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/health", true},
		{"/health/db", true},
		{"/metrics", true},
		{"/health/extra", false},
		{"/api/v1/fleet/rollup", false},
		{"/ws/alerts", false},
		{"/", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := AuthSkipper(contextForRoute(tt.path)); got != tt.want {
				t.Errorf("AuthSkipper(%s) = %v, want %v", tt.path, got, tt.want)
			}
			if got := IsPublicPath(tt.path); got != tt.want {
				t.Errorf("IsPublicPath(%s) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestJWTMiddleware_SkipsPublicPaths(t *testing.T) {
	var called bool
	h := JWTMiddleware(JWTConfig{SigningKey: testSigningKey, Skipper: AuthSkipper})(func(c echo.Context) error {
		called = true
		return nil
	})
	if err := h(contextForRoute("/health")); err != nil {
		t.Fatalf("expected no error for skipped path, got: %v", err)
	}
	if !called {
		t.Error("expected handler to be called for skipped path")
	}
}

func TestJWTMiddleware_DoesNotSkipProtectedPaths(t *testing.T) {
	h := JWTMiddleware(JWTConfig{SigningKey: testSigningKey, Skipper: AuthSkipper})(func(c echo.Context) error {
		return nil
	})
	expectStatus(t, h(contextForRoute("/api/v1/fleet/rollup")), http.StatusUnauthorized)
}

func TestJWTMiddleware_QueryParamToken(t *testing.T) {
	token := createTestToken(t, validClaims("11111111-1111-1111-1111-111111111111", RolePatient), testSigningKey)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/ws/alerts?access_token="+token, nil)
	c := e.NewContext(req, httptest.NewRecorder())

	var uid string
	h := JWTMiddleware(JWTConfig{SigningKey: testSigningKey, QueryParam: "access_token"})(func(c echo.Context) error {
		uid = UserIDFromContext(c.Request().Context())
		return nil
	})
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if uid != "11111111-1111-1111-1111-111111111111" {
		t.Errorf("expected subject from query token, got %q", uid)
	}

	// without QueryParam configured the query string is ignored
	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/ws/alerts?access_token="+token, nil), httptest.NewRecorder())
	h = JWTMiddleware(JWTConfig{SigningKey: testSigningKey})(func(c echo.Context) error { return nil })
	expectStatus(t, h(c), http.StatusUnauthorized)
}

func TestDevAuthMiddleware_SkipsPublicPaths(t *testing.T) {
	h := DevAuthMiddleware(AuthSkipper)(func(c echo.Context) error {
		if len(RolesFromContext(c.Request().Context())) != 0 {
			t.Error("expected no identity on skipped path")
		}
		return nil
	})
	if err := h(contextForRoute("/metrics")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
