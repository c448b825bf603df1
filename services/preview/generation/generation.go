// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package generation defines the contract between the preview and whatever
// produces candidate component source: a remote generation service or the
// in-process model backend.
package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Source names where a result came from.
type Source string

const (
	SourceText   Source = "text"
	SourceVision Source = "vision"
)

// Request asks for component source. Exactly one of Prompt or Image is set.
type Request struct {
	Prompt    string
	Image     []byte
	ImageName string
	ImageMIME string
}

// Source reports which endpoint the request targets.
func (r Request) Source() Source {
	if len(r.Image) > 0 {
		return SourceVision
	}
	return SourceText
}

// Validate checks the request shape.
func (r Request) Validate() error {
	hasPrompt := strings.TrimSpace(r.Prompt) != ""
	hasImage := len(r.Image) > 0
	switch {
	case hasPrompt && hasImage:
		return errors.New("generation request must carry a prompt or an image, not both")
	case !hasPrompt && !hasImage:
		return errors.New("generation request needs a prompt or an image")
	}
	return nil
}

// Result is generated source. Notice carries a non-fatal message from the
// backend, such as a fallback explanation.
type Result struct {
	Code   string
	Notice string
	Source Source
}

// Generator produces component source.
type Generator interface {
	Generate(ctx context.Context, req Request) (*Result, error)
}

// TransportError means the generation service could not be reached or
// answered with something other than a JSON body.
type TransportError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("generation transport failure (%s): status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("generation transport failure (%s): %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// GenerationError means the service answered but produced no usable code.
type GenerationError struct {
	Message string
	Reasons []string
}

func (e *GenerationError) Error() string {
	if len(e.Reasons) == 0 {
		return "generation failed: " + e.Message
	}
	return fmt.Sprintf("generation failed: %s (%s)", e.Message, strings.Join(e.Reasons, "; "))
}

// IsTransport reports whether err is a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsGeneration reports whether err is a GenerationError.
func IsGeneration(err error) bool {
	var ge *GenerationError
	return errors.As(err, &ge)
}
