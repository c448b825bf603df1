// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/LivePreview/pkg/extensions"
	"github.com/AleutianAI/LivePreview/services/orchestrator/middleware"
	"github.com/AleutianAI/LivePreview/services/orchestrator/observability"
	"github.com/AleutianAI/LivePreview/services/policy_engine"
	"github.com/AleutianAI/LivePreview/services/preview/normalize"
	"github.com/AleutianAI/LivePreview/services/preview/policy"
	"github.com/AleutianAI/LivePreview/services/preview/submission"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubUI struct{}

func (stubUI) GenerateUI(context.Context, string) (string, string, error) {
	return "function A() { return <p>A</p> }", "", nil
}

func (stubUI) GenerateVision(context.Context, []byte, string) (string, error) {
	return "function B() { return <p>B</p> }", nil
}

func newDeps(t *testing.T) (Dependencies, *prometheus.Registry) {
	t.Helper()
	v, err := policy.NewValidator(policy.DefaultPolicy(), nil)
	require.NoError(t, err)
	o, err := submission.New(submission.Config{
		Validator: v,
		Pipeline:  normalize.NewDefault(),
		Store:     submission.NewStore(0),
	})
	require.NoError(t, err)
	engine, err := policy_engine.NewPolicyEngine()
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	return Dependencies{
		Orchestrator: o,
		UI:           stubUI{},
		Screener:     engine,
		Metrics:      observability.NewPreviewMetrics(reg),
		Gatherer:     reg,
		Options:      extensions.DefaultOptions(),
		RateLimit:    middleware.RateLimitConfig{RPS: 0},
	}, reg
}

func TestSetupRoutes_RegistersEndpoints(t *testing.T) {
	deps, _ := newDeps(t)
	router := gin.New()
	SetupRoutes(router, deps)

	registered := map[string]bool{}
	for _, r := range router.Routes() {
		registered[r.Method+" "+r.Path] = true
	}

	for _, want := range []string{
		"GET /health",
		"GET /metrics",
		"POST /generate-ui",
		"POST /vision-ui",
		"POST /v1/validate",
		"POST /v1/normalize",
		"GET /v1/scope",
		"POST /v1/sessions",
		"DELETE /v1/sessions/:id",
		"POST /v1/sessions/:id/submit",
		"POST /v1/sessions/:id/commit",
		"POST /v1/sessions/:id/undo",
		"POST /v1/sessions/:id/redo",
		"GET /v1/sessions/:id/history",
		"PUT /v1/sessions/:id/theme",
		"POST /v1/sessions/:id/generate",
		"POST /v1/sessions/:id/sandbox-error",
		"GET /v1/sessions/:id/live",
	} {
		assert.True(t, registered[want], "missing route %s", want)
	}
}

func TestSetupRoutes_NoUIWithoutGenerator(t *testing.T) {
	deps, _ := newDeps(t)
	deps.UI = nil
	router := gin.New()
	SetupRoutes(router, deps)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("POST", "/generate-ui", strings.NewReader(`{"prompt":"x"}`)))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSetupRoutes_MetricsEndpoint(t *testing.T) {
	deps, _ := newDeps(t)
	router := gin.New()
	SetupRoutes(router, deps)

	deps.Metrics.RecordPromptBlocked("secret")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "livepreview_preview_prompts_blocked_total")
}

func TestSetupRoutes_AuthGuardsV1Only(t *testing.T) {
	deps, _ := newDeps(t)
	deps.Options = deps.Options.WithAuth(extensions.NewStaticTokenProvider("s3cret"))
	router := gin.New()
	SetupRoutes(router, deps)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/v1/scope", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/v1/scope", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSetupRoutes_GenerationRateLimited(t *testing.T) {
	deps, _ := newDeps(t)
	deps.RateLimit = middleware.RateLimitConfig{RPS: 0.01, Burst: 1}
	router := gin.New()
	SetupRoutes(router, deps)

	post := func() int {
		w := httptest.NewRecorder()
		req := httptest.NewRequest("POST", "/generate-ui", strings.NewReader(`{"prompt":"a card"}`))
		req.Header.Set("Content-Type", "application/json")
		router.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, post())
	assert.Equal(t, http.StatusTooManyRequests, post())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/v1/scope", nil))
	assert.Equal(t, http.StatusOK, w.Code, "non-generation routes are not limited")
}
