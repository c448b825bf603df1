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

	"github.com/AleutianAI/LivePreview/services/llm"
	"github.com/AleutianAI/LivePreview/services/orchestrator/datatypes"
	"github.com/AleutianAI/LivePreview/services/orchestrator/middleware"
)

// UIGenerator is the backend behind the front-end generation endpoints.
type UIGenerator interface {
	GenerateUI(ctx context.Context, prompt string) (code, notice string, err error)
	GenerateVision(ctx context.Context, image []byte, mimeType string) (string, error)
}

// HandleGenerateUI serves POST /generate-ui.
//
// # Description
//
// Keeps the front-end contract: the body is {code, error}. Error is null
// for model output and carries a notice alongside fallback code (no key
// configured, upstream quota exhausted). Any other failure is a 500 with
// {detail}. Prompts carrying secrets are stopped with 403 before they are
// sent.
func HandleGenerateUI(gen UIGenerator, screen PromptScreen) gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := slog.With("request_id", middleware.GetRequestID(c), "handler", "generate_ui")

		var req datatypes.GenerateUIRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.AbortWithStatusJSON(http.StatusUnprocessableEntity, datatypes.DetailResponse{Detail: err.Error()})
			return
		}
		if err := req.Validate(); err != nil {
			c.AbortWithStatusJSON(http.StatusUnprocessableEntity, datatypes.DetailResponse{Detail: datatypes.ValidationMessage(err)})
			return
		}

		prompt, ok := screen.check(c, "generate_ui", "", req.Prompt)
		if !ok {
			logger.Warn("prompt blocked")
			return
		}

		code, notice, err := gen.GenerateUI(c.Request.Context(), prompt)
		if err != nil {
			logger.Error("generation failed", "error", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, datatypes.DetailResponse{Detail: err.Error()})
			return
		}

		resp := datatypes.GenerateUIResponse{Code: code}
		if notice != "" {
			resp.Error = &notice
			logger.Info("serving fallback code", "notice", notice)
		}
		c.JSON(http.StatusOK, resp)
	}
}

// HandleVisionUI serves POST /vision-ui with a multipart "file" part.
//
// With no API key the endpoint fails with 500 and the fixed detail text the
// front-end shows; it never serves fallback code.
func HandleVisionUI(gen UIGenerator) gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := slog.With("request_id", middleware.GetRequestID(c), "handler", "vision_ui")

		header, err := c.FormFile("file")
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnprocessableEntity, datatypes.DetailResponse{Detail: "file is required"})
			return
		}
		if header.Size > datatypes.MaxImageBytes {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, datatypes.DetailResponse{Detail: "file too large"})
			return
		}
		f, err := header.Open()
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, datatypes.DetailResponse{Detail: err.Error()})
			return
		}
		defer f.Close()

		image, err := io.ReadAll(io.LimitReader(f, datatypes.MaxImageBytes+1))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, datatypes.DetailResponse{Detail: err.Error()})
			return
		}
		if len(image) > datatypes.MaxImageBytes {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, datatypes.DetailResponse{Detail: "file too large"})
			return
		}

		mimeType := header.Header.Get("Content-Type")
		if mimeType == "" || mimeType == "application/octet-stream" {
			mimeType = http.DetectContentType(image)
		}

		code, err := gen.GenerateVision(c.Request.Context(), image, mimeType)
		if errors.Is(err, llm.ErrNoAPIKey) {
			c.AbortWithStatusJSON(http.StatusInternalServerError, datatypes.DetailResponse{Detail: llm.DetailVisionNoKey})
			return
		}
		if err != nil {
			logger.Error("vision generation failed", "error", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, datatypes.DetailResponse{Detail: err.Error()})
			return
		}
		c.JSON(http.StatusOK, datatypes.VisionUIResponse{Code: code})
	}
}
