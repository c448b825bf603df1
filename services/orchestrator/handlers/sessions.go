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
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/LivePreview/pkg/extensions"
	"github.com/AleutianAI/LivePreview/services/orchestrator/datatypes"
	"github.com/AleutianAI/LivePreview/services/orchestrator/middleware"
	"github.com/AleutianAI/LivePreview/services/preview/generation"
	"github.com/AleutianAI/LivePreview/services/preview/submission"
)

// SessionHandlers serves the /v1/sessions routes.
//
// # Thread Safety
//
// Safe for concurrent use; per-session serialization happens in the
// orchestrator.
type SessionHandlers struct {
	orchestrator *submission.Orchestrator
	screen       PromptScreen
	audit        extensions.AuditLogger
}

// NewSessionHandlers creates the handlers. A nil audit logger discards
// events.
func NewSessionHandlers(o *submission.Orchestrator, screen PromptScreen, audit extensions.AuditLogger) *SessionHandlers {
	if audit == nil {
		audit = &extensions.NopAuditLogger{}
	}
	return &SessionHandlers{orchestrator: o, screen: screen, audit: audit}
}

// Create serves POST /v1/sessions. An empty body is allowed.
func (h *SessionHandlers) Create(c *gin.Context) {
	var req datatypes.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		respondInvalid(c, err)
		return
	}
	if err := req.Validate(); err != nil {
		respondInvalid(c, err)
		return
	}

	info, err := h.orchestrator.CreateSession(c.Request.Context(), submission.CreateOptions{
		ThemeDark: req.ThemeDark,
		ClientKey: req.ClientKey,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, info)
}

// Delete serves DELETE /v1/sessions/:id.
func (h *SessionHandlers) Delete(c *gin.Context) {
	if err := h.orchestrator.DeleteSession(c.Request.Context(), c.Param("id")); err != nil {
		respondServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Submit serves POST /v1/sessions/:id/submit.
func (h *SessionHandlers) Submit(c *gin.Context) {
	h.gate(c, submission.OpSubmit, h.orchestrator.Submit)
}

// Commit serves POST /v1/sessions/:id/commit.
func (h *SessionHandlers) Commit(c *gin.Context) {
	h.gate(c, submission.OpCommit, h.orchestrator.Commit)
}

func (h *SessionHandlers) gate(c *gin.Context, op string, run func(ctx context.Context, id, code string) (*submission.Outcome, error)) {
	var req datatypes.CodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalid(c, err)
		return
	}
	if err := req.Validate(); err != nil {
		respondInvalid(c, err)
		return
	}

	out, err := run(c.Request.Context(), c.Param("id"), req.Code)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	h.respondOutcome(c, op, out)
}

// Undo serves POST /v1/sessions/:id/undo.
func (h *SessionHandlers) Undo(c *gin.Context) {
	out, err := h.orchestrator.Undo(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	h.respondOutcome(c, submission.OpUndo, out)
}

// Redo serves POST /v1/sessions/:id/redo.
func (h *SessionHandlers) Redo(c *gin.Context) {
	out, err := h.orchestrator.Redo(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	h.respondOutcome(c, submission.OpRedo, out)
}

// History serves GET /v1/sessions/:id/history.
func (h *SessionHandlers) History(c *gin.Context) {
	view, err := h.orchestrator.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// SetTheme serves PUT /v1/sessions/:id/theme. With an empty history the
// body carries only the new flag.
func (h *SessionHandlers) SetTheme(c *gin.Context) {
	var req datatypes.ThemeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalid(c, err)
		return
	}
	if err := req.Validate(); err != nil {
		respondInvalid(c, err)
		return
	}

	id := c.Param("id")
	out, err := h.orchestrator.SetTheme(c.Request.Context(), id, *req.ThemeDark)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	if out == nil {
		c.JSON(http.StatusOK, gin.H{"session_id": id, "theme_dark": *req.ThemeDark})
		return
	}
	h.respondOutcome(c, submission.OpTheme, out)
}

// Generate serves POST /v1/sessions/:id/generate.
//
// The prompt is screened, sent to the generator, and the answer goes
// through the same gate as a submission. When a newer generate call for the
// session was issued meanwhile, this call answers 409 STALE_RESPONSE and
// history is untouched.
func (h *SessionHandlers) Generate(c *gin.Context) {
	var req datatypes.GenerateUIRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalid(c, err)
		return
	}
	if err := req.Validate(); err != nil {
		respondInvalid(c, err)
		return
	}

	id := c.Param("id")
	prompt, ok := h.screen.check(c, submission.OpGenerate, id, req.Prompt)
	if !ok {
		return
	}

	out, err := h.orchestrator.Generate(c.Request.Context(), id, generation.Request{Prompt: prompt})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	h.respondOutcome(c, submission.OpGenerate, out)
}

// SandboxError serves POST /v1/sessions/:id/sandbox-error. The message is
// recorded and echoed verbatim.
func (h *SessionHandlers) SandboxError(c *gin.Context) {
	var req datatypes.SandboxErrorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalid(c, err)
		return
	}
	if err := req.Validate(); err != nil {
		respondInvalid(c, err)
		return
	}

	id := c.Param("id")
	execErr, err := h.orchestrator.ReportSandboxError(c.Request.Context(), id, req.Message)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	h.auditEvent(c, extensions.EventSandboxError, "sandbox_error", id, "error", nil)
	c.JSON(http.StatusOK, datatypes.SandboxErrorResponse{SessionID: id, Message: execErr.Message})
}

// respondOutcome writes an accepted outcome, or a 422 with the reasons when
// the code was rejected.
func (h *SessionHandlers) respondOutcome(c *gin.Context, op string, out *submission.Outcome) {
	if out.Accepted {
		c.JSON(http.StatusOK, out)
		return
	}
	h.auditEvent(c, extensions.EventPolicyRejected, op, c.Param("id"), "rejected", map[string]any{
		"violations": len(out.Verdict.Violations),
	})
	respondRejected(c, out.Verdict)
}

func (h *SessionHandlers) auditEvent(c *gin.Context, eventType, action, id, outcome string, meta map[string]any) {
	userID := ""
	if info := middleware.GetAuthInfo(c); info != nil {
		userID = info.UserID
	}
	err := h.audit.Log(c.Request.Context(), extensions.AuditEvent{
		EventType:    eventType,
		UserID:       userID,
		Action:       action,
		ResourceType: "session",
		ResourceID:   id,
		Outcome:      outcome,
		Metadata:     meta,
	})
	if err != nil {
		slog.Warn("audit log failed", "request_id", middleware.GetRequestID(c), "error", err)
	}
}
