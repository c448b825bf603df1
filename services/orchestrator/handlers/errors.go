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
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/LivePreview/services/orchestrator/datatypes"
	"github.com/AleutianAI/LivePreview/services/orchestrator/middleware"
	"github.com/AleutianAI/LivePreview/services/preview/generation"
	"github.com/AleutianAI/LivePreview/services/preview/policy"
	"github.com/AleutianAI/LivePreview/services/preview/submission"
)

// Stable error codes returned in the "code" field of /v1 error bodies.
const (
	CodeInvalidRequest    = "INVALID_REQUEST"
	CodeSessionNotFound   = "SESSION_NOT_FOUND"
	CodeParseError        = "PARSE_ERROR"
	CodePolicyRejected    = "POLICY_REJECTED"
	CodeStaleResponse     = "STALE_RESPONSE"
	CodeGenerationFailed  = "GENERATION_FAILED"
	CodeUpstreamFailed    = "UPSTREAM_UNAVAILABLE"
	CodePromptBlocked     = "PROMPT_BLOCKED"
	CodeNothingToUndo     = "NOTHING_TO_UNDO"
	CodeNothingToRedo     = "NOTHING_TO_REDO"
	CodeRequestCanceled   = "REQUEST_CANCELED"
	CodeRequestTimeout    = "TIMEOUT"
	CodeInternal          = "INTERNAL"
	CodeRateLimited       = middleware.CodeRateLimited
	CodeUnauthorized      = middleware.CodeUnauthorized
	statusClientCancelled = 499
)

// respondError writes a {error, code} body and aborts the chain.
func respondError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, datatypes.ErrorResponse{Error: message, Code: code})
}

// respondInvalid reports a bind or validation failure.
func respondInvalid(c *gin.Context, err error) {
	respondError(c, http.StatusBadRequest, CodeInvalidRequest, datatypes.ValidationMessage(err))
}

// respondRejected reports a policy rejection with its reasons.
func respondRejected(c *gin.Context, verdict *policy.Verdict) {
	c.AbortWithStatusJSON(http.StatusUnprocessableEntity, datatypes.ErrorResponse{
		Error:      "code rejected by policy",
		Code:       CodePolicyRejected,
		Reasons:    verdict.Reasons(),
		Violations: verdict.Violations,
	})
}

// respondServiceError maps errors from the preview services to HTTP.
//
// # Description
//
// This is the single place where the error taxonomy meets status codes:
//
//	ErrSessionNotFound          404 SESSION_NOT_FOUND
//	*policy.ParseError          422 PARSE_ERROR (line, column)
//	ErrNothingToUndo/Redo       409 NOTHING_TO_UNDO / NOTHING_TO_REDO
//	ErrStaleResponse            409 STALE_RESPONSE
//	*generation.TransportError  502 UPSTREAM_UNAVAILABLE
//	*generation.GenerationError 502 GENERATION_FAILED (reasons)
//	ErrNoGenerator              503 GENERATION_FAILED
//	ErrEmptySource              400 INVALID_REQUEST
//	context.DeadlineExceeded    504 TIMEOUT
//	context.Canceled            499 REQUEST_CANCELED
//	anything else               500 INTERNAL
//
// Internal error text is logged, never returned.
func respondServiceError(c *gin.Context, err error) {
	var (
		parseErr *policy.ParseError
		transErr *generation.TransportError
		genErr   *generation.GenerationError
	)

	switch {
	case errors.Is(err, submission.ErrSessionNotFound):
		respondError(c, http.StatusNotFound, CodeSessionNotFound, "session not found")
	case errors.As(err, &parseErr):
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, datatypes.ErrorResponse{
			Error:  parseErr.Error(),
			Code:   CodeParseError,
			Line:   parseErr.Line,
			Column: parseErr.Column,
		})
	case errors.Is(err, submission.ErrNothingToUndo):
		respondError(c, http.StatusConflict, CodeNothingToUndo, err.Error())
	case errors.Is(err, submission.ErrNothingToRedo):
		respondError(c, http.StatusConflict, CodeNothingToRedo, err.Error())
	case errors.Is(err, submission.ErrStaleResponse):
		respondError(c, http.StatusConflict, CodeStaleResponse, err.Error())
	case errors.As(err, &transErr):
		slog.Warn("generation transport failure", "op", transErr.Op, "status", transErr.StatusCode, "error", transErr.Err)
		respondError(c, http.StatusBadGateway, CodeUpstreamFailed, "generation service unavailable")
	case errors.As(err, &genErr):
		c.AbortWithStatusJSON(http.StatusBadGateway, datatypes.ErrorResponse{
			Error:   genErr.Error(),
			Code:    CodeGenerationFailed,
			Reasons: genErr.Reasons,
		})
	case errors.Is(err, submission.ErrNoGenerator):
		respondError(c, http.StatusServiceUnavailable, CodeGenerationFailed, err.Error())
	case errors.Is(err, submission.ErrEmptySource):
		respondError(c, http.StatusBadRequest, CodeInvalidRequest, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		respondError(c, http.StatusGatewayTimeout, CodeRequestTimeout, "request timed out")
	case errors.Is(err, context.Canceled):
		respondError(c, statusClientCancelled, CodeRequestCanceled, "request canceled")
	default:
		slog.Error("unhandled service error", "path", c.FullPath(), "error", err)
		respondError(c, http.StatusInternalServerError, CodeInternal, "internal error")
	}
}
