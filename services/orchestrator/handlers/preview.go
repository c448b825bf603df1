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
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/LivePreview/services/orchestrator/datatypes"
	"github.com/AleutianAI/LivePreview/services/preview/submission"
)

// HandleValidate serves POST /v1/validate.
//
// An unsafe verdict is a successful answer (200, safe=false). Only code
// that cannot be parsed is an error (422 PARSE_ERROR).
func HandleValidate(o *submission.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.ValidateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondInvalid(c, err)
			return
		}
		if err := req.Validate(); err != nil {
			respondInvalid(c, err)
			return
		}

		verdict, err := o.Validate(c.Request.Context(), req.Code)
		if err != nil {
			respondServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, datatypes.NewValidateResponse(verdict))
	}
}

// HandleNormalize serves POST /v1/normalize. Normalization never fails;
// it does not run the policy check.
func HandleNormalize(o *submission.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.NormalizeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondInvalid(c, err)
			return
		}
		if err := req.Validate(); err != nil {
			respondInvalid(c, err)
			return
		}
		c.JSON(http.StatusOK, o.Normalize(c.Request.Context(), req.Code, req.ThemeDark))
	}
}

// HandleScope serves GET /v1/scope.
func HandleScope(o *submission.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, datatypes.ScopeResponse{Capabilities: o.Scope().Capabilities()})
	}
}
