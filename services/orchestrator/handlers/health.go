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
)

// ModelInfo describes the generation backend for health reporting.
type ModelInfo interface {
	Model() string
	HasKey() bool
}

// HealthCheck serves GET /health. Fallback is true when generation serves
// fallback code because no key is configured. A nil info reports only
// the status.
func HealthCheck(info ModelInfo) gin.HandlerFunc {
	return func(c *gin.Context) {
		resp := datatypes.HealthResponse{Status: "ok"}
		if info != nil {
			resp.Model = info.Model()
			resp.Fallback = !info.HasKey()
		}
		c.JSON(http.StatusOK, resp)
	}
}
