// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// CORS Tests
// =============================================================================

func corsRouter(origins []string) *gin.Engine {
	router := gin.New()
	router.Use(CORS(origins))
	router.POST("/generate-ui", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"code": "x"})
	})
	return router
}

func TestCORS(t *testing.T) {
	tests := []struct {
		name       string
		origins    []string
		method     string
		origin     string
		wantStatus int
		wantAllow  string
	}{
		{
			name:       "allowed origin simple request",
			origins:    DefaultCORSOrigins,
			method:     http.MethodPost,
			origin:     "http://localhost:5173",
			wantStatus: http.StatusOK,
			wantAllow:  "http://localhost:5173",
		},
		{
			name:       "allowed origin preflight",
			origins:    DefaultCORSOrigins,
			method:     http.MethodOptions,
			origin:     "https://ui-copilot-2.onrender.com",
			wantStatus: http.StatusNoContent,
			wantAllow:  "https://ui-copilot-2.onrender.com",
		},
		{
			name:       "unknown origin simple request passes without headers",
			origins:    DefaultCORSOrigins,
			method:     http.MethodPost,
			origin:     "https://evil.example",
			wantStatus: http.StatusOK,
		},
		{
			name:       "unknown origin preflight forbidden",
			origins:    DefaultCORSOrigins,
			method:     http.MethodOptions,
			origin:     "https://evil.example",
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "wildcard echoes origin",
			origins:    []string{"*"},
			method:     http.MethodPost,
			origin:     "https://anything.example",
			wantStatus: http.StatusOK,
			wantAllow:  "https://anything.example",
		},
		{
			name:       "trailing slash in config is ignored",
			origins:    []string{"http://localhost:4173/"},
			method:     http.MethodPost,
			origin:     "http://localhost:4173",
			wantStatus: http.StatusOK,
			wantAllow:  "http://localhost:4173",
		},
		{
			name:       "no origin header",
			origins:    DefaultCORSOrigins,
			method:     http.MethodPost,
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(tt.method, "/generate-ui", strings.NewReader("{}"))
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			corsRouter(tt.origins).ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantAllow, w.Header().Get("Access-Control-Allow-Origin"))
			if tt.wantAllow != "" {
				assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
			}
			if tt.method == http.MethodOptions && tt.wantAllow != "" {
				assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "PUT")
			}
		})
	}
}

// =============================================================================
// Request ID Tests
// =============================================================================

func TestRequestID(t *testing.T) {
	router := gin.New()
	router.Use(RequestID())
	router.GET("/id", func(c *gin.Context) {
		c.String(http.StatusOK, GetRequestID(c))
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/id", nil))
	generated := w.Body.String()
	assert.Len(t, generated, 36)
	assert.Equal(t, generated, w.Header().Get("X-Request-ID"))

	w = httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/id", nil)
	req.Header.Set("X-Request-ID", "caller-id")
	router.ServeHTTP(w, req)
	assert.Equal(t, "caller-id", w.Body.String())

	w = httptest.NewRecorder()
	req = httptest.NewRequest("GET", "/id", nil)
	req.Header.Set("X-Request-ID", strings.Repeat("x", 200))
	router.ServeHTTP(w, req)
	assert.Len(t, w.Body.String(), 36)
}

// =============================================================================
// Rate Limit Tests
// =============================================================================

func TestRateLimiter_Allow(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(RateLimitConfig{RPS: 1, Burst: 2, IdleTTL: time.Minute})
	rl.now = func() time.Time { return now }

	ok, _ := rl.Allow("a")
	assert.True(t, ok)
	ok, _ = rl.Allow("a")
	assert.True(t, ok)
	ok, wait := rl.Allow("a")
	assert.False(t, ok)
	assert.Equal(t, time.Second, wait)

	ok, _ = rl.Allow("b")
	assert.True(t, ok, "buckets are per client")

	now = now.Add(time.Second)
	ok, _ = rl.Allow("a")
	assert.True(t, ok, "token refills after one second")

	now = now.Add(2 * time.Minute)
	_, _ = rl.Allow("c")
	assert.Equal(t, 1, rl.Len(), "idle buckets are pruned")
}

func TestRateLimiter_Disabled(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{RPS: 0})
	for i := 0; i < 100; i++ {
		ok, _ := rl.Allow("a")
		require.True(t, ok)
	}
	assert.Equal(t, 0, rl.Len())
}

func TestRateLimiter_Middleware(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{RPS: 0.1, Burst: 1})
	router := gin.New()
	router.Use(rl.Middleware())
	router.POST("/generate-ui", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("POST", "/generate-ui", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("POST", "/generate-ui", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.JSONEq(t, `{"error":"rate limit exceeded","code":"RATE_LIMITED"}`, w.Body.String())
	assert.Equal(t, "10", w.Header().Get("Retry-After"))
}

// =============================================================================
// Access Log Tests
// =============================================================================

type recordedRequest struct {
	route  string
	status int
}

type requestRecorder struct {
	requests []recordedRequest
}

func (r *requestRecorder) RecordRequest(route string, status int) {
	r.requests = append(r.requests, recordedRequest{route, status})
}

func TestAccessLog_RecordsRoutePattern(t *testing.T) {
	rec := &requestRecorder{}
	router := gin.New()
	router.Use(AccessLog(rec, nil))
	router.GET("/v1/sessions/:id/history", func(c *gin.Context) {
		c.Status(http.StatusNotFound)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/v1/sessions/abc/history", nil))

	require.Len(t, rec.requests, 1)
	assert.Equal(t, recordedRequest{"/v1/sessions/:id/history", http.StatusNotFound}, rec.requests[0])
}
