// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package extensions

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"
)

// Audit event types emitted by the preview service.
const (
	EventPolicyRejected = "policy.rejected"
	EventPromptBlocked  = "prompt.blocked"
	EventSandboxError   = "sandbox.error"
	EventAuthFailed     = "auth.failed"
)

// AuditEvent is one security-relevant occurrence.
type AuditEvent struct {
	// EventType categorizes the event, formatted "category.action".
	EventType string

	// Timestamp is when the event occurred, UTC. Zero means now.
	Timestamp time.Time

	// UserID identifies who triggered the event. "anonymous" if unknown.
	UserID string

	// Action is the attempted operation, e.g. "submit" or "generate".
	Action string

	// ResourceType and ResourceID name what was acted on.
	ResourceType string
	ResourceID   string

	// Outcome is one of "blocked", "rejected", "failure", "error".
	Outcome string

	// Metadata holds event-specific details. Values must not contain
	// prompt text or secrets.
	Metadata map[string]any
}

// ErrInvalidEvent is returned when an event lacks its type.
var ErrInvalidEvent = errors.New("audit event type is required")

// AuditLogger records security-relevant events.
type AuditLogger interface {
	// Log records an event. Implementations set Timestamp when zero and
	// must return quickly.
	Log(ctx context.Context, event AuditEvent) error

	// Flush ensures all buffered events are persisted. Called on shutdown.
	Flush(ctx context.Context) error
}

// NopAuditLogger discards all events.
type NopAuditLogger struct{}

func (l *NopAuditLogger) Log(ctx context.Context, event AuditEvent) error {
	return nil
}

func (l *NopAuditLogger) Flush(ctx context.Context) error {
	return nil
}

// SlogAuditLogger writes each event as one structured log record at Info
// level under the "audit" group.
type SlogAuditLogger struct {
	logger *slog.Logger
	now    func() time.Time
}

// NewSlogAuditLogger creates an audit logger over logger. Nil uses
// slog.Default().
func NewSlogAuditLogger(logger *slog.Logger) *SlogAuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogAuditLogger{logger: logger, now: time.Now}
}

// Log implements AuditLogger.
func (l *SlogAuditLogger) Log(ctx context.Context, event AuditEvent) error {
	if event.EventType == "" {
		return ErrInvalidEvent
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = l.now().UTC()
	}
	if event.UserID == "" {
		event.UserID = "anonymous"
	}

	attrs := []any{
		slog.String("type", event.EventType),
		slog.Time("timestamp", event.Timestamp),
		slog.String("user_id", event.UserID),
		slog.String("action", event.Action),
		slog.String("resource_type", event.ResourceType),
		slog.String("resource_id", event.ResourceID),
		slog.String("outcome", event.Outcome),
	}
	if len(event.Metadata) > 0 {
		keys := make([]string, 0, len(event.Metadata))
		for k := range event.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		meta := make([]any, 0, len(keys))
		for _, k := range keys {
			meta = append(meta, slog.Any(k, event.Metadata[k]))
		}
		attrs = append(attrs, slog.Group("metadata", meta...))
	}

	l.logger.InfoContext(ctx, "audit event", slog.Group("audit", attrs...))
	return nil
}

// Flush implements AuditLogger. Records are written synchronously.
func (l *SlogAuditLogger) Flush(ctx context.Context) error {
	return nil
}

var (
	_ AuditLogger = (*NopAuditLogger)(nil)
	_ AuditLogger = (*SlogAuditLogger)(nil)
)
