// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/AleutianAI/LivePreview/services/preview/generation"
	"github.com/AleutianAI/LivePreview/services/preview/normalize"
	"github.com/AleutianAI/LivePreview/services/preview/policy"
)

// newTestMetrics registers against a private registry so tests can run in
// parallel without colliding on the default registry.
func newTestMetrics(t *testing.T) *PreviewMetrics {
	t.Helper()
	return NewPreviewMetrics(prometheus.NewRegistry())
}

func TestRecordValidation(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordValidation("safe", nil)
	m.RecordValidation("unsafe", []policy.Violation{
		{Kind: policy.ForbiddenIdentifier, Detail: "eval"},
		{Kind: policy.ForbiddenIdentifier, Detail: "Function"},
		{Kind: policy.ForbiddenImport, Detail: "fs"},
	})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ValidationsTotal.WithLabelValues("safe")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ValidationsTotal.WithLabelValues("unsafe")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ViolationsTotal.WithLabelValues(string(policy.ForbiddenIdentifier))))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ViolationsTotal.WithLabelValues(string(policy.ForbiddenImport))))
}

func TestRecordNormalizationAndHistory(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordNormalization(true, normalize.FinalRendered)
	m.RecordNormalization(false, normalize.FinalWrapped)
	m.RecordHistory("undo", "noop")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.NormalizationsTotal.WithLabelValues("dark", "rendered")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NormalizationsTotal.WithLabelValues("light", "wrapped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HistoryOpsTotal.WithLabelValues("undo", "noop")))
}

func TestRecordGeneration(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordGeneration(generation.SourceText, "ok", 1500*time.Millisecond)
	m.RecordGeneration(generation.SourceText, "stale", time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.GenerationsTotal.WithLabelValues("text", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GenerationsTotal.WithLabelValues("text", "stale")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.GenerationDurationSeconds))
}

func TestGauges(t *testing.T) {
	m := newTestMetrics(t)

	m.SetActiveSessions(3)
	m.LiveConnected()
	m.LiveConnected()
	m.LiveDisconnected()

	assert.Equal(t, 3.0, testutil.ToFloat64(m.ActiveSessions))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LiveConnections))
}

func TestRecordRequest(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordRequest("/v1/validate", 200)
	m.RecordRequest("", 404)
	m.RecordPromptBlocked("secret")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("/v1/validate", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("unmatched", "404")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PromptsBlockedTotal.WithLabelValues("secret")))
}

func TestNewPreviewMetrics_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewPreviewMetrics(reg)
	assert.Panics(t, func() { NewPreviewMetrics(reg) })
}
