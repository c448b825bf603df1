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
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/LivePreview/pkg/extensions"
	"github.com/AleutianAI/LivePreview/services/orchestrator/handlers"
	"github.com/AleutianAI/LivePreview/services/orchestrator/middleware"
	"github.com/AleutianAI/LivePreview/services/orchestrator/observability"
	"github.com/AleutianAI/LivePreview/services/policy_engine"
	"github.com/AleutianAI/LivePreview/services/preview/submission"
)

// Dependencies are the collaborators the routes are wired to.
type Dependencies struct {
	// Orchestrator serves /v1. Required.
	Orchestrator *submission.Orchestrator

	// UI serves /generate-ui and /vision-ui. Those routes are not
	// registered when nil.
	UI handlers.UIGenerator

	// Model is reported by /health. Optional.
	Model handlers.ModelInfo

	// Screener checks prompts before generation. Optional.
	Screener *policy_engine.PolicyEngine

	// Metrics counts blocked prompts and live connections. Optional.
	Metrics *observability.PreviewMetrics

	// Gatherer backs /metrics. Nil uses the default registry.
	Gatherer prometheus.Gatherer

	// Options carries auth and audit extensions.
	Options extensions.ServiceOptions

	// CORSOrigins are the browser origins allowed on the live channel.
	CORSOrigins []string

	// RateLimit throttles generation routes per client.
	RateLimit middleware.RateLimitConfig
}

// SetupRoutes registers every endpoint on router.
//
// /health and /metrics are open. Everything else passes the auth
// middleware; generation routes are also rate limited per client.
func SetupRoutes(router *gin.Engine, deps Dependencies) {
	opts := deps.Options.Normalize()

	var (
		blocks handlers.BlockRecorder
		gauge  handlers.LiveGauge
	)
	if deps.Metrics != nil {
		blocks = deps.Metrics
		gauge = deps.Metrics
	}
	screen := handlers.PromptScreen{Engine: deps.Screener, Audit: opts.AuditLogger, Metrics: blocks}

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	router.GET("/health", handlers.HealthCheck(deps.Model))
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	auth := middleware.AuthMiddleware(opts.AuthProvider, opts.AuditLogger)
	limit := middleware.NewRateLimiter(deps.RateLimit).Middleware()

	if deps.UI != nil {
		generate := router.Group("", auth, limit)
		{
			generate.POST("/generate-ui", handlers.HandleGenerateUI(deps.UI, screen))
			generate.POST("/vision-ui", handlers.HandleVisionUI(deps.UI))
		}
	}

	o := deps.Orchestrator
	v1 := router.Group("/v1", auth)
	{
		v1.POST("/validate", handlers.HandleValidate(o))
		v1.POST("/normalize", handlers.HandleNormalize(o))
		v1.GET("/scope", handlers.HandleScope(o))

		h := handlers.NewSessionHandlers(o, screen, opts.AuditLogger)
		sessions := v1.Group("/sessions")
		{
			sessions.POST("", h.Create)
			sessions.DELETE("/:id", h.Delete)
			sessions.POST("/:id/submit", h.Submit)
			sessions.POST("/:id/commit", h.Commit)
			sessions.POST("/:id/undo", h.Undo)
			sessions.POST("/:id/redo", h.Redo)
			sessions.GET("/:id/history", h.History)
			sessions.PUT("/:id/theme", h.SetTheme)
			sessions.POST("/:id/generate", limit, h.Generate)
			sessions.POST("/:id/sandbox-error", h.SandboxError)
			sessions.GET("/:id/live", handlers.HandleLive(o, deps.CORSOrigins, gauge))
		}
	}
}
