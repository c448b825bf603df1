// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package extensions

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"
)

// ============================================================================
// ServiceOptions Tests
// ============================================================================

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()

	if _, ok := opts.AuthProvider.(*NopAuthProvider); !ok {
		t.Error("DefaultOptions().AuthProvider should be *NopAuthProvider")
	}
	if _, ok := opts.AuditLogger.(*NopAuditLogger); !ok {
		t.Error("DefaultOptions().AuditLogger should be *NopAuditLogger")
	}
}

func TestServiceOptions_WithAuth(t *testing.T) {
	original := DefaultOptions()
	custom := NewStaticTokenProvider("secret")

	newOpts := original.WithAuth(custom)

	if newOpts.AuthProvider != custom {
		t.Error("WithAuth should set the custom AuthProvider")
	}
	if _, ok := original.AuthProvider.(*NopAuthProvider); !ok {
		t.Error("Original options should be unchanged after WithAuth")
	}
	if newOpts.AuditLogger == nil {
		t.Error("WithAuth should preserve AuditLogger")
	}
}

func TestServiceOptions_Normalize(t *testing.T) {
	opts := ServiceOptions{}.Normalize()

	if opts.AuthProvider == nil || opts.AuditLogger == nil {
		t.Fatal("Normalize should fill nil fields")
	}

	audit := NewSlogAuditLogger(nil)
	kept := ServiceOptions{AuditLogger: audit}.Normalize()
	if kept.AuditLogger != audit {
		t.Error("Normalize should keep non-nil fields")
	}
}

// ============================================================================
// Auth Tests
// ============================================================================

func TestNopAuthProvider(t *testing.T) {
	info, err := (&NopAuthProvider{}).Validate(context.Background(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.UserID != "local-user" {
		t.Errorf("UserID = %q, want local-user", info.UserID)
	}
	if !info.HasRole("admin") {
		t.Error("local user should have admin role")
	}
	if info.HasRole("viewer") {
		t.Error("local user should not have viewer role")
	}
}

func TestStaticTokenProvider(t *testing.T) {
	tests := []struct {
		name       string
		configured string
		token      string
		wantErr    bool
	}{
		{name: "matching token", configured: "s3cret", token: "s3cret"},
		{name: "wrong token", configured: "s3cret", token: "guess", wantErr: true},
		{name: "prefix of token", configured: "s3cret", token: "s3c", wantErr: true},
		{name: "empty token", configured: "s3cret", token: "", wantErr: true},
		{name: "no configured token", configured: "", token: "anything", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := NewStaticTokenProvider(tt.configured).Validate(context.Background(), tt.token)
			if tt.wantErr {
				if !errors.Is(err, ErrUnauthorized) {
					t.Fatalf("err = %v, want ErrUnauthorized", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if info.UserID != "token-user" {
				t.Errorf("UserID = %q, want token-user", info.UserID)
			}
		})
	}
}

func TestStaticTokenProvider_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewStaticTokenProvider("s3cret").Validate(ctx, "s3cret")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

// ============================================================================
// Audit Tests
// ============================================================================

func TestNopAuditLogger(t *testing.T) {
	l := &NopAuditLogger{}
	if err := l.Log(context.Background(), AuditEvent{}); err != nil {
		t.Errorf("Log: %v", err)
	}
	if err := l.Flush(context.Background()); err != nil {
		t.Errorf("Flush: %v", err)
	}
}

func TestSlogAuditLogger_Log(t *testing.T) {
	var buf bytes.Buffer
	l := NewSlogAuditLogger(slog.New(slog.NewJSONHandler(&buf, nil)))
	l.now = func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) }

	err := l.Log(context.Background(), AuditEvent{
		EventType:    EventPolicyRejected,
		Action:       "submit",
		ResourceType: "session",
		ResourceID:   "sess-1",
		Outcome:      "rejected",
		Metadata:     map[string]any{"violations": 2},
	})
	if err != nil {
		t.Fatalf("Log: %v", err)
	}

	var record struct {
		Msg   string `json:"msg"`
		Audit struct {
			Type      string         `json:"type"`
			Timestamp time.Time      `json:"timestamp"`
			UserID    string         `json:"user_id"`
			Outcome   string         `json:"outcome"`
			Metadata  map[string]any `json:"metadata"`
		} `json:"audit"`
	}
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("decode record %q: %v", buf.String(), err)
	}
	if record.Audit.Type != EventPolicyRejected {
		t.Errorf("type = %q", record.Audit.Type)
	}
	if record.Audit.UserID != "anonymous" {
		t.Errorf("user_id = %q, want anonymous", record.Audit.UserID)
	}
	if record.Audit.Timestamp.Year() != 2025 {
		t.Errorf("timestamp = %v", record.Audit.Timestamp)
	}
	if record.Audit.Metadata["violations"] != float64(2) {
		t.Errorf("metadata = %v", record.Audit.Metadata)
	}
}

func TestSlogAuditLogger_RequiresType(t *testing.T) {
	l := NewSlogAuditLogger(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
	if err := l.Log(context.Background(), AuditEvent{}); !errors.Is(err, ErrInvalidEvent) {
		t.Errorf("err = %v, want ErrInvalidEvent", err)
	}
}
