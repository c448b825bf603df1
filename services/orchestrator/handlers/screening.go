// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/LivePreview/pkg/extensions"
	"github.com/AleutianAI/LivePreview/services/orchestrator/datatypes"
	"github.com/AleutianAI/LivePreview/services/orchestrator/middleware"
	"github.com/AleutianAI/LivePreview/services/policy_engine"
)

// BlockRecorder counts prompts stopped by screening.
type BlockRecorder interface {
	RecordPromptBlocked(classification string)
}

// PromptScreen checks prompts before they leave the process.
//
// A nil Engine passes prompts through unchanged. Audit and Metrics are
// optional.
type PromptScreen struct {
	Engine  *policy_engine.PolicyEngine
	Audit   extensions.AuditLogger
	Metrics BlockRecorder
}

// check sanitizes the prompt and scans it. When a blocking finding is
// present it answers 403 PROMPT_BLOCKED with the redacted findings and
// returns ok=false.
func (p PromptScreen) check(c *gin.Context, action, resourceID, prompt string) (string, bool) {
	if p.Engine == nil {
		return prompt, true
	}

	screening := p.Engine.Screen(prompt)
	if !screening.Blocked {
		if len(screening.Findings) > 0 {
			slog.Info("prompt findings reported",
				"request_id", middleware.GetRequestID(c),
				"findings", len(screening.Findings),
			)
		}
		return screening.Prompt, true
	}

	classes := map[string]bool{}
	for _, f := range screening.Findings {
		if f.Blocking && !classes[f.ClassificationName] {
			classes[f.ClassificationName] = true
			if p.Metrics != nil {
				p.Metrics.RecordPromptBlocked(f.ClassificationName)
			}
		}
	}

	if p.Audit != nil {
		userID := ""
		if info := middleware.GetAuthInfo(c); info != nil {
			userID = info.UserID
		}
		patterns := make([]string, 0, len(screening.Findings))
		for _, f := range screening.Findings {
			patterns = append(patterns, f.PatternId)
		}
		if err := p.Audit.Log(c.Request.Context(), extensions.AuditEvent{
			EventType:    extensions.EventPromptBlocked,
			UserID:       userID,
			Action:       action,
			ResourceType: "prompt",
			ResourceID:   resourceID,
			Outcome:      "blocked",
			Metadata:     map[string]any{"patterns": patterns},
		}); err != nil {
			slog.Warn("audit log failed", "error", err)
		}
	}

	c.AbortWithStatusJSON(http.StatusForbidden, datatypes.ErrorResponse{
		Error:    "prompt contains sensitive data and was not sent",
		Code:     CodePromptBlocked,
		Findings: screening.Findings,
	})
	return "", false
}
