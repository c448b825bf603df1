// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/AleutianAI/LivePreview/services/orchestrator/datatypes"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	t.Setenv("OPENAI_API_KEY", "")
	return Config{
		GinMode: gin.TestMode,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func newTestService(t *testing.T, cfg Config) *service {
	t.Helper()
	svc, err := New(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	return svc.(*service)
}

func call(t *testing.T, router http.Handler, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestApplyConfigDefaults(t *testing.T) {
	cfg := applyConfigDefaults(Config{})

	assert.Equal(t, 8000, cfg.Port)
	assert.NotEmpty(t, cfg.CORSOrigins)
	assert.Equal(t, "standard", cfg.NormalizeProfile)
	assert.Equal(t, 30*time.Minute, cfg.SessionIdleTTL)
	assert.Equal(t, time.Minute, cfg.SessionSweepInterval)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Greater(t, cfg.RateLimit.RPS, 0.0)
	assert.NotNil(t, cfg.Logger)
	assert.NotNil(t, cfg.Registry)

	kept := applyConfigDefaults(Config{Port: 9000, NormalizeProfile: "legacy"})
	assert.Equal(t, 9000, kept.Port)
	assert.Equal(t, "legacy", kept.NormalizeProfile)
}

func TestNew_Defaults(t *testing.T) {
	svc := newTestService(t, testConfig(t))

	w := call(t, svc.Router(), http.MethodGet, "/health", "", "")
	require.Equal(t, http.StatusOK, w.Code)

	var health datatypes.HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, "ok", health.Status)
	assert.True(t, health.Fallback)

	w = call(t, svc.Router(), http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")

	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestNew_EndToEndSession(t *testing.T) {
	svc := newTestService(t, testConfig(t))
	router := svc.Router()

	w := call(t, router, http.MethodPost, "/v1/sessions", `{"theme_dark":true}`, "")
	require.Equal(t, http.StatusCreated, w.Code)
	var info struct {
		SessionID string `json:"session_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	require.NotEmpty(t, info.SessionID)

	code := `{"code":"const App = () => <div>Hello</div>;"}`
	w = call(t, router, http.MethodPost, "/v1/sessions/"+info.SessionID+"/submit", code, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "render(")

	w = call(t, router, http.MethodPost, "/v1/sessions/"+info.SessionID+"/submit",
		`{"code":"const App = () => { eval('1'); return <div/>; };"}`, "")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "eval")

	w = call(t, router, http.MethodGet, "/v1/sessions/"+info.SessionID+"/history", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Hello")
}

func TestNew_AuthToken(t *testing.T) {
	cfg := testConfig(t)
	cfg.AuthToken = "s3cret"
	svc := newTestService(t, cfg)

	assert.Equal(t, http.StatusUnauthorized, call(t, svc.Router(), http.MethodGet, "/v1/scope", "", "").Code)
	assert.Equal(t, http.StatusUnauthorized, call(t, svc.Router(), http.MethodGet, "/v1/scope", "", "wrong").Code)
	assert.Equal(t, http.StatusOK, call(t, svc.Router(), http.MethodGet, "/v1/scope", "", "s3cret").Code)
	assert.Equal(t, http.StatusOK, call(t, svc.Router(), http.MethodGet, "/health", "", "").Code)
}

func TestNew_InitFailures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{
			name:   "missing policy file",
			mutate: func(c *Config) { c.PolicyFile = filepath.Join(t.TempDir(), "missing.yaml") },
			errMsg: "failed to load policy",
		},
		{
			name:   "unknown normalize profile",
			mutate: func(c *Config) { c.NormalizeProfile = "bogus" },
			errMsg: "normalization profile",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			tt.mutate(&cfg)
			_, err := New(cfg, nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestNew_PolicyFileAndWatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`version: "test"
dialect: jsx
forbidden_identifiers:
  - alert
allowed_modules:
  - react
`), 0o600))

	cfg := testConfig(t)
	cfg.PolicyFile = path
	cfg.PolicyWatch = true
	svc := newTestService(t, cfg)
	require.NotNil(t, svc.stopWatch)

	w := call(t, svc.Router(), http.MethodPost, "/v1/validate", `{"code":"alert(1);"}`, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"safe":false`)

	w = call(t, svc.Router(), http.MethodPost, "/v1/validate", `{"code":"eval('1');"}`, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"safe":true`)
}

func TestNew_PersistentPrefs(t *testing.T) {
	cfg := testConfig(t)
	cfg.PrefsPath = t.TempDir()
	svc := newTestService(t, cfg)
	router := svc.Router()

	w := call(t, router, http.MethodPost, "/v1/sessions", `{"client_key":"browser-1","theme_dark":true}`, "")
	require.Equal(t, http.StatusCreated, w.Code)

	w = call(t, router, http.MethodPost, "/v1/sessions", `{"client_key":"browser-1"}`, "")
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), `"theme_dark":true`)

	require.NoError(t, svc.Close())
	require.NoError(t, svc.Close())
}

func TestNew_GenerationEndpoint(t *testing.T) {
	cfg := testConfig(t)
	cfg.GenerationEndpoint = "http://127.0.0.1:1"
	svc := newTestService(t, cfg)

	w := call(t, svc.Router(), http.MethodPost, "/v1/sessions", "", "")
	require.Equal(t, http.StatusCreated, w.Code)
	var info struct {
		SessionID string `json:"session_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))

	w = call(t, svc.Router(), http.MethodPost, "/v1/sessions/"+info.SessionID+"/generate",
		`{"prompt":"a pricing card"}`, "")
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), "UPSTREAM_UNAVAILABLE")
}

func TestServe_GracefulShutdown(t *testing.T) {
	svc := newTestService(t, testConfig(t))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.serve(ctx, ln) }()

	url := "http://" + ln.Addr().String() + "/health"
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
