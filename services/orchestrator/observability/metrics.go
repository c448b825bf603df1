// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the preview service.
//
// # Description
//
// Metrics include:
//   - Validation outcomes and violations by kind
//   - Normalizations by theme and finalization shape
//   - History operations by op and result
//   - Generation outcomes and latency by source
//   - HTTP requests by route and status, blocked prompts
//   - Active sessions and live connections
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/AleutianAI/LivePreview/services/preview/generation"
	"github.com/AleutianAI/LivePreview/services/preview/normalize"
	"github.com/AleutianAI/LivePreview/services/preview/policy"
)

// =============================================================================
// Metric Definitions
// =============================================================================

// Namespace for all metrics
const metricsNamespace = "livepreview"

// Subsystem for preview pipeline metrics
const previewSubsystem = "preview"

// Subsystem for HTTP metrics
const httpSubsystem = "http"

// PreviewMetrics holds every collector the service exports.
//
// # Description
//
// Implements submission.Metrics so the orchestrator can report pipeline
// events without importing Prometheus. Create one per registry via
// NewPreviewMetrics.
//
// # Thread Safety
//
// All operations are thread-safe.
type PreviewMetrics struct {
	// ValidationsTotal counts validations.
	// Labels: outcome (safe, unsafe, parse_error)
	ValidationsTotal *prometheus.CounterVec

	// ViolationsTotal counts individual violations.
	// Labels: kind (ForbiddenIdentifier, ForbiddenMember, ForbiddenImport)
	ViolationsTotal *prometheus.CounterVec

	// NormalizationsTotal counts normalizations.
	// Labels: theme (dark, light), finalization
	NormalizationsTotal *prometheus.CounterVec

	// HistoryOpsTotal counts history operations.
	// Labels: op (submit, commit, generate, undo, redo), result (ok, rejected, noop)
	HistoryOpsTotal *prometheus.CounterVec

	// GenerationsTotal counts generation round trips.
	// Labels: source (text, vision), outcome
	GenerationsTotal *prometheus.CounterVec

	// GenerationDurationSeconds measures generation latency.
	// Labels: source
	GenerationDurationSeconds *prometheus.HistogramVec

	// ActiveSessions tracks live preview sessions.
	ActiveSessions prometheus.Gauge

	// LiveConnections tracks open websocket connections.
	LiveConnections prometheus.Gauge

	// RequestsTotal counts HTTP requests.
	// Labels: route, status
	RequestsTotal *prometheus.CounterVec

	// PromptsBlockedTotal counts prompts stopped by screening.
	// Labels: classification
	PromptsBlockedTotal *prometheus.CounterVec
}

// NewPreviewMetrics creates and registers all collectors with reg.
//
// # Inputs
//
//   - reg: Registry to register with. Nil uses the default registerer.
//
// # Limitations
//
//   - Panics on duplicate registration with the same registry.
func NewPreviewMetrics(reg prometheus.Registerer) *PreviewMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &PreviewMetrics{
		ValidationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: previewSubsystem,
				Name:      "validations_total",
				Help:      "Total validations by outcome",
			},
			[]string{"outcome"},
		),

		ViolationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: previewSubsystem,
				Name:      "violations_total",
				Help:      "Total policy violations by kind",
			},
			[]string{"kind"},
		),

		NormalizationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: previewSubsystem,
				Name:      "normalizations_total",
				Help:      "Total normalizations by theme and finalization",
			},
			[]string{"theme", "finalization"},
		),

		HistoryOpsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: previewSubsystem,
				Name:      "history_operations_total",
				Help:      "Total history operations by op and result",
			},
			[]string{"op", "result"},
		),

		GenerationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: previewSubsystem,
				Name:      "generations_total",
				Help:      "Total generation requests by source and outcome",
			},
			[]string{"source", "outcome"},
		),

		GenerationDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: previewSubsystem,
				Name:      "generation_duration_seconds",
				Help:      "Generation round trip duration in seconds",
				Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"source"},
		),

		ActiveSessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: previewSubsystem,
				Name:      "active_sessions",
				Help:      "Number of live preview sessions",
			},
		),

		LiveConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: previewSubsystem,
				Name:      "live_connections",
				Help:      "Number of open live websocket connections",
			},
		),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: httpSubsystem,
				Name:      "requests_total",
				Help:      "Total HTTP requests by route and status",
			},
			[]string{"route", "status"},
		),

		PromptsBlockedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: previewSubsystem,
				Name:      "prompts_blocked_total",
				Help:      "Total prompts blocked by screening, by classification",
			},
			[]string{"classification"},
		),
	}
}

// =============================================================================
// Helper Methods
// =============================================================================

// RecordValidation records one validation and its violations.
func (m *PreviewMetrics) RecordValidation(outcome string, violations []policy.Violation) {
	m.ValidationsTotal.WithLabelValues(outcome).Inc()
	for _, v := range violations {
		m.ViolationsTotal.WithLabelValues(string(v.Kind)).Inc()
	}
}

// RecordNormalization records one normalization.
func (m *PreviewMetrics) RecordNormalization(themeDark bool, finalization normalize.Finalization) {
	m.NormalizationsTotal.WithLabelValues(themeLabel(themeDark), string(finalization)).Inc()
}

// RecordHistory records one history operation.
func (m *PreviewMetrics) RecordHistory(op, result string) {
	m.HistoryOpsTotal.WithLabelValues(op, result).Inc()
}

// RecordGeneration records a generation round trip.
func (m *PreviewMetrics) RecordGeneration(source generation.Source, outcome string, elapsed time.Duration) {
	m.GenerationsTotal.WithLabelValues(string(source), outcome).Inc()
	m.GenerationDurationSeconds.WithLabelValues(string(source)).Observe(elapsed.Seconds())
}

// SetActiveSessions sets the session gauge.
func (m *PreviewMetrics) SetActiveSessions(n int) {
	m.ActiveSessions.Set(float64(n))
}

// LiveConnected increments the live connection gauge.
func (m *PreviewMetrics) LiveConnected() {
	m.LiveConnections.Inc()
}

// LiveDisconnected decrements the live connection gauge.
func (m *PreviewMetrics) LiveDisconnected() {
	m.LiveConnections.Dec()
}

// RecordRequest records a completed HTTP request.
func (m *PreviewMetrics) RecordRequest(route string, status int) {
	if route == "" {
		route = "unmatched"
	}
	m.RequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
}

// RecordPromptBlocked records a prompt stopped by screening.
func (m *PreviewMetrics) RecordPromptBlocked(classification string) {
	m.PromptsBlockedTotal.WithLabelValues(classification).Inc()
}

func themeLabel(dark bool) string {
	if dark {
		return "dark"
	}
	return "light"
}
