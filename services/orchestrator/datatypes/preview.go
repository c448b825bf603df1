// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes provides request and response bodies for the preview
// service.
package datatypes

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/AleutianAI/LivePreview/services/policy_engine"
	"github.com/AleutianAI/LivePreview/services/preview/policy"
	"github.com/AleutianAI/LivePreview/services/preview/sandbox"
)

// =============================================================================
// Size Limits
// =============================================================================

const (
	// MaxPromptBytes bounds a text prompt.
	MaxPromptBytes = 16 * 1024

	// MaxCodeBytes bounds submitted component source.
	MaxCodeBytes = 256 * 1024

	// MaxSandboxMessageBytes bounds a sandbox error report.
	MaxSandboxMessageBytes = 64 * 1024

	// MaxImageBytes bounds an uploaded screenshot.
	MaxImageBytes = 10 * 1024 * 1024
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

// previewValidate is the validator instance for preview datatypes.
// Initialized in init() with custom validators.
var previewValidate *validator.Validate

func init() {
	previewValidate = validator.New()
	_ = previewValidate.RegisterValidation("maxbytes", validateMaxBytes)
	_ = previewValidate.RegisterValidation("notblank", validateNotBlank)
}

// validateMaxBytes checks a string's byte length (not rune count) against
// the tag parameter, e.g. `validate:"maxbytes=16384"`.
func validateMaxBytes(fl validator.FieldLevel) bool {
	limit, err := strconv.Atoi(fl.Param())
	if err != nil || limit < 0 {
		return false
	}
	return len(fl.Field().String()) <= limit
}

func validateNotBlank(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

// ValidationMessage renders validator errors as one line naming each
// failed field and rule. Other errors are returned as-is.
func ValidationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		parts = append(parts, fmt.Sprintf("%s failed %s", jsonName(fe.Field()), rule))
	}
	return strings.Join(parts, "; ")
}

func jsonName(field string) string {
	var b strings.Builder
	for i, r := range field {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

// =============================================================================
// Generation Endpoints
// =============================================================================

// GenerateUIRequest is the body of POST /generate-ui and of a session
// generate call.
type GenerateUIRequest struct {
	Prompt string `json:"prompt" validate:"notblank,maxbytes=16384"`
}

// Validate checks the request fields.
func (r *GenerateUIRequest) Validate() error {
	return previewValidate.Struct(r)
}

// GenerateUIResponse is the body returned by POST /generate-ui. Error is
// null unless the code is fallback output.
type GenerateUIResponse struct {
	Code  string  `json:"code"`
	Error *string `json:"error"`
}

// VisionUIResponse is the body returned by POST /vision-ui.
type VisionUIResponse struct {
	Code string `json:"code"`
}

// DetailResponse is the error body of the generation endpoints.
type DetailResponse struct {
	Detail string `json:"detail"`
}

// =============================================================================
// Stateless Endpoints
// =============================================================================

// ValidateRequest is the body of POST /v1/validate.
type ValidateRequest struct {
	Code string `json:"code" validate:"notblank,maxbytes=262144"`
}

// Validate checks the request fields.
func (r *ValidateRequest) Validate() error {
	return previewValidate.Struct(r)
}

// ValidateResponse reports a verdict.
type ValidateResponse struct {
	Safe       bool               `json:"safe"`
	Reasons    []string           `json:"reasons"`
	Violations []policy.Violation `json:"violations"`
}

// NewValidateResponse converts a verdict.
func NewValidateResponse(v *policy.Verdict) ValidateResponse {
	violations := v.Violations
	if violations == nil {
		violations = []policy.Violation{}
	}
	return ValidateResponse{Safe: v.Safe, Reasons: v.Reasons(), Violations: violations}
}

// NormalizeRequest is the body of POST /v1/normalize.
type NormalizeRequest struct {
	Code      string `json:"code" validate:"notblank,maxbytes=262144"`
	ThemeDark bool   `json:"theme_dark"`
}

// Validate checks the request fields.
func (r *NormalizeRequest) Validate() error {
	return previewValidate.Struct(r)
}

// ScopeResponse lists the capabilities visible to generated code.
type ScopeResponse struct {
	Capabilities []sandbox.Capability `json:"capabilities"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status   string `json:"status"`
	Model    string `json:"model,omitempty"`
	Fallback bool   `json:"fallback"`
}

// =============================================================================
// Session Endpoints
// =============================================================================

// CreateSessionRequest is the body of POST /v1/sessions. Both fields are
// optional; a missing theme falls back to the client's stored preference.
type CreateSessionRequest struct {
	ThemeDark *bool  `json:"theme_dark"`
	ClientKey string `json:"client_key" validate:"omitempty,max=128,printascii"`
}

// Validate checks the request fields.
func (r *CreateSessionRequest) Validate() error {
	return previewValidate.Struct(r)
}

// CodeRequest is the body of submit and commit.
type CodeRequest struct {
	Code string `json:"code" validate:"notblank,maxbytes=262144"`
}

// Validate checks the request fields.
func (r *CodeRequest) Validate() error {
	return previewValidate.Struct(r)
}

// ThemeRequest is the body of PUT /v1/sessions/:id/theme.
type ThemeRequest struct {
	ThemeDark *bool `json:"theme_dark" validate:"required"`
}

// Validate checks the request fields.
func (r *ThemeRequest) Validate() error {
	return previewValidate.Struct(r)
}

// SandboxErrorRequest is the body of POST /v1/sessions/:id/sandbox-error.
type SandboxErrorRequest struct {
	Message string `json:"message" validate:"notblank,maxbytes=65536"`
}

// Validate checks the request fields.
func (r *SandboxErrorRequest) Validate() error {
	return previewValidate.Struct(r)
}

// SandboxErrorResponse echoes the recorded message verbatim.
type SandboxErrorResponse struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// =============================================================================
// Live Channel
// =============================================================================

// LiveMessage is a frame sent by a live sandbox client.
type LiveMessage struct {
	Type    string `json:"type" validate:"required,oneof=sandbox_error ping"`
	Message string `json:"message" validate:"required_if=Type sandbox_error,maxbytes=65536"`
}

// Validate checks the frame fields.
func (r *LiveMessage) Validate() error {
	return previewValidate.Struct(r)
}

// =============================================================================
// Errors
// =============================================================================

// ErrorResponse is the body of every /v1 error.
type ErrorResponse struct {
	Error      string                  `json:"error"`
	Code       string                  `json:"code"`
	Reasons    []string                `json:"reasons,omitempty"`
	Violations []policy.Violation      `json:"violations,omitempty"`
	Findings   []policy_engine.Finding `json:"findings,omitempty"`
	Line       int                     `json:"line,omitempty"`
	Column     int                     `json:"column,omitempty"`
}
