package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsOriginAllowed(t *testing.T) {
	allowed := []string{"app.agg.example", "localhost:3000", "[::1]"}
	tests := []struct {
		origin string
		want   bool
	}{
		{"https://app.agg.example", true},
		{"https://APP.agg.example:8443", true},
		{"http://localhost:3000", true},
		{"http://localhost:5173", true},
		{"http://[::1]:8080", true},
		{"https://evil.example", false},
		{"https://app.agg.example.evil.example", false},
		{"app.agg.example", false},
		{"://broken", false},
	}
	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			assert.Equal(t, tt.want, isOriginAllowed(tt.origin, allowed))
		})
	}
}

func corsHandler(allowed []string) (http.Handler, *bool) {
	called := false
	return CORS(allowed)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})), &called
}

func TestCORS_AllowedOrigin(t *testing.T) {
	handler, called := corsHandler([]string{"app.agg.example"})
	req := httptest.NewRequest(http.MethodGet, "/api/accounts", nil)
	req.Header.Set("Origin", "https://app.agg.example")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, *called)
	assert.Equal(t, "https://app.agg.example", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rr.Header().Get("Access-Control-Allow-Credentials"))
	assert.Equal(t, "Origin", rr.Header().Get("Vary"))

	allowHeaders := rr.Header().Get("Access-Control-Allow-Headers")
	assert.Contains(t, allowHeaders, "X-User-ID")
	assert.Contains(t, allowHeaders, "X-User-Tier")
	assert.Contains(t, allowHeaders, "X-Request-ID")
}

func TestCORS_DisallowedOriginForbidden(t *testing.T) {
	handler, called := corsHandler([]string{"app.agg.example"})
	req := httptest.NewRequest(http.MethodGet, "/api/accounts", nil)
	req.Header.Set("Origin", "https://evil.example")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.False(t, *called)
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_NoOriginPassesThrough(t *testing.T) {
	handler, called := corsHandler([]string{"app.agg.example"})
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, *called)
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_EmptyAllowListAcceptsAnyOrigin(t *testing.T) {
	handler, called := corsHandler(nil)
	req := httptest.NewRequest(http.MethodGet, "/api/accounts", nil)
	req.Header.Set("Origin", "https://anywhere.example")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, *called)
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Credentials"))
}

func TestCORS_Preflight(t *testing.T) {
	handler, called := corsHandler([]string{"app.agg.example"})
	req := httptest.NewRequest(http.MethodOptions, "/api/accounts/la-1/rename", nil)
	req.Header.Set("Origin", "https://app.agg.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPut)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.False(t, *called, "preflight never reaches the handler")
	assert.Contains(t, rr.Header().Get("Access-Control-Allow-Methods"), http.MethodPut)
	assert.Equal(t, "3600", rr.Header().Get("Access-Control-Max-Age"))
}
