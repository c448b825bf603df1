// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package submission

import (
	"time"

	"github.com/AleutianAI/LivePreview/services/preview/generation"
	"github.com/AleutianAI/LivePreview/services/preview/normalize"
	"github.com/AleutianAI/LivePreview/services/preview/policy"
)

// Validation outcomes reported to Metrics.
const (
	OutcomeSafe       = "safe"
	OutcomeUnsafe     = "unsafe"
	OutcomeParseError = "parse_error"
)

// Metrics receives counters from the orchestrator. The HTTP service wires
// its Prometheus collectors here.
type Metrics interface {
	RecordValidation(outcome string, violations []policy.Violation)
	RecordNormalization(themeDark bool, finalization normalize.Finalization)
	RecordHistory(op, result string)
	RecordGeneration(source generation.Source, outcome string, elapsed time.Duration)
	SetActiveSessions(n int)
}

type noopMetrics struct{}

func (noopMetrics) RecordValidation(string, []policy.Violation) {}
func (noopMetrics) RecordNormalization(bool, normalize.Finalization) {}
func (noopMetrics) RecordHistory(string, string) {}
func (noopMetrics) RecordGeneration(generation.Source, string, time.Duration) {}
func (noopMetrics) SetActiveSessions(int) {}
