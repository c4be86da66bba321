package middleware_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"contestjudge/internal/common/http/middleware"
	"contestjudge/pkg/utils/contextkey"

	"github.com/gin-gonic/gin"
)

const testSecret = "unit-test-secret"

type identityResponse struct {
	UserID    string `json:"user_id"`
	Role      string `json:"role"`
	CtxUserID string `json:"ctx_user_id"`
	TraceID   string `json:"trace_id"`
}

func newRouter(verifier *middleware.TokenVerifier, roles ...string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(middleware.TraceContextMiddleware())
	router.GET("/who", middleware.AuthMiddleware(verifier, roles...), func(c *gin.Context) {
		ctxUser, _ := c.Request.Context().Value(contextkey.UserID).(string)
		traceID, _ := c.Request.Context().Value(contextkey.TraceID).(string)
		c.JSON(http.StatusOK, identityResponse{
			UserID:    middleware.UserID(c),
			Role:      middleware.UserRole(c),
			CtxUserID: ctxUser,
			TraceID:   traceID,
		})
	})
	return router
}

func mustToken(t *testing.T, userID, role string, ttl time.Duration) string {
	t.Helper()
	token, err := middleware.IssueToken(testSecret, "contestjudge", userID, role, ttl)
	if err != nil {
		t.Fatalf("issue token failed: %v", err)
	}
	return token
}

func TestAuthMiddlewareJWT(t *testing.T) {
	verifier, err := middleware.NewTokenVerifier(middleware.AuthConfig{JWTSecret: testSecret, JWTIssuer: "contestjudge"})
	if err != nil {
		t.Fatalf("new verifier failed: %v", err)
	}

	cases := []struct {
		name       string
		header     string
		roles      []string
		wantStatus int
		wantUser   string
		wantRole   string
	}{
		{
			name:       "valid participant token",
			header:     "Bearer " + mustToken(t, "alice", "", time.Minute),
			wantStatus: http.StatusOK,
			wantUser:   "alice",
			wantRole:   middleware.RoleParticipant,
		},
		{
			name:       "missing header",
			header:     "",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "expired token",
			header:     "Bearer " + mustToken(t, "alice", "", -time.Minute),
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "participant on admin route",
			header:     "Bearer " + mustToken(t, "alice", middleware.RoleParticipant, time.Minute),
			roles:      []string{middleware.RoleAdmin},
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "admin on admin route",
			header:     "Bearer " + mustToken(t, "root", middleware.RoleAdmin, time.Minute),
			roles:      []string{middleware.RoleAdmin},
			wantStatus: http.StatusOK,
			wantUser:   "root",
			wantRole:   middleware.RoleAdmin,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			router := newRouter(verifier, tc.roles...)
			req := httptest.NewRequest(http.MethodGet, "/who", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d, body=%s", rec.Code, tc.wantStatus, rec.Body.String())
			}
			if tc.wantStatus != http.StatusOK {
				return
			}
			var resp identityResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode response failed: %v", err)
			}
			if resp.UserID != tc.wantUser || resp.CtxUserID != tc.wantUser {
				t.Fatalf("user = %q/%q, want %q", resp.UserID, resp.CtxUserID, tc.wantUser)
			}
			if resp.Role != tc.wantRole {
				t.Fatalf("role = %q, want %q", resp.Role, tc.wantRole)
			}
			if resp.TraceID == "" || rec.Header().Get("X-Trace-Id") != resp.TraceID {
				t.Fatalf("trace id not propagated")
			}
		})
	}
}

func TestAuthMiddlewareHeaderMode(t *testing.T) {
	router := newRouter(nil)

	req := httptest.NewRequest(http.MethodGet, "/who", nil)
	req.Header.Set("X-User-Id", "bob")
	req.Header.Set("X-Trace-Id", "trace-1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp identityResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response failed: %v", err)
	}
	if resp.UserID != "bob" || resp.TraceID != "trace-1" {
		t.Fatalf("unexpected identity: %+v", resp)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/who", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestNewTokenVerifierRequiresSecret(t *testing.T) {
	if _, err := middleware.NewTokenVerifier(middleware.AuthConfig{}); err == nil {
		t.Fatalf("expected error for empty secret")
	}
}

func TestCORSMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(middleware.CORSMiddleware(middleware.CORSConfig{
		AllowedOrigins: []string{"https://board.example.com"},
		MaxAge:         10 * time.Minute,
	}))
	router.GET("/standings", func(c *gin.Context) { c.Status(http.StatusOK) })

	cases := []struct {
		name   string
		method string
		origin string
		status int
		allow  string
	}{
		{"preflight allowed", http.MethodOptions, "https://board.example.com", http.StatusNoContent, "https://board.example.com"},
		{"preflight rejected", http.MethodOptions, "https://evil.example.com", http.StatusForbidden, ""},
		{"simple allowed", http.MethodGet, "https://board.example.com", http.StatusOK, "https://board.example.com"},
		{"simple foreign", http.MethodGet, "https://evil.example.com", http.StatusOK, ""},
		{"no origin", http.MethodGet, "", http.StatusOK, ""},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(tc.method, "/standings", nil)
		if tc.origin != "" {
			req.Header.Set("Origin", tc.origin)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code != tc.status {
			t.Fatalf("%s: status = %d, want %d", tc.name, w.Code, tc.status)
		}
		if got := w.Header().Get("Access-Control-Allow-Origin"); got != tc.allow {
			t.Fatalf("%s: allow origin = %q, want %q", tc.name, got, tc.allow)
		}
	}
	req := httptest.NewRequest(http.MethodOptions, "/standings", nil)
	req.Header.Set("Origin", "https://board.example.com")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Max-Age"); got != "600" {
		t.Fatalf("max age = %q", got)
	}
}
