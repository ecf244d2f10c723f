package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

const testUser = "5b0e7c1a-3d2f-4e6a-9b8c-7d6e5f4a3b2c"

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(mw ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(mw...)
	r.GET("/whoami", func(c *gin.Context) {
		c.String(http.StatusOK, UserID(c)+"|"+Role(c))
	})
	return r
}

func do(r http.Handler, header, value string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	if header != "" {
		req.Header.Set(header, value)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestBearerMiddleware(t *testing.T) {
	t.Parallel()

	v := NewVerifier("test-secret")
	r := newRouter(BearerMiddleware(v))

	good, err := v.Sign(testUser, RoleAdmin, time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	expired, _ := v.Sign(testUser, "", -time.Hour)
	foreign, _ := NewVerifier("other-secret").Sign(testUser, "", time.Minute)
	badSubject, _ := v.Sign("not-a-uuid", "", time.Minute)

	tests := []struct {
		name   string
		header string
		status int
		body   string
	}{
		{name: "valid", header: "Bearer " + good, status: http.StatusOK, body: testUser + "|admin"},
		{name: "lowercase scheme", header: "bearer " + good, status: http.StatusOK, body: testUser + "|admin"},
		{name: "missing", header: "", status: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic abc", status: http.StatusUnauthorized},
		{name: "expired", header: "Bearer " + expired, status: http.StatusUnauthorized},
		{name: "wrong secret", header: "Bearer " + foreign, status: http.StatusUnauthorized},
		{name: "bad subject", header: "Bearer " + badSubject, status: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(r, "Authorization", tt.header)
			if w.Code != tt.status {
				t.Fatalf("expected %d, got %d", tt.status, w.Code)
			}
			if tt.body != "" && w.Body.String() != tt.body {
				t.Errorf("expected body %q, got %q", tt.body, w.Body.String())
			}
		})
	}
}

func TestDevMiddleware(t *testing.T) {
	t.Parallel()

	r := newRouter(DevMiddleware())
	if w := do(r, "X-User-Id", testUser); w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	if w := do(r, "X-User-Id", "alice"); w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for non-uuid user, got %d", w.Code)
	}
}

func TestRequireAdmin(t *testing.T) {
	t.Parallel()

	r := gin.New()
	r.Use(DevMiddleware(), RequireAdmin())
	r.GET("/whoami", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("X-User-Id", testUser)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Errorf("expected 403 without admin role, got %d", w.Code)
	}

	req.Header.Set("X-User-Role", RoleAdmin)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Errorf("expected 204 for admin, got %d", w.Code)
	}
}
