// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package genclient calls a remote generation service over HTTP.
package genclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/LivePreview/services/preview/generation"
)

var tracer = otel.Tracer("livepreview.preview.genclient")

const (
	// DefaultTimeout bounds one generation round trip.
	DefaultTimeout = 90 * time.Second

	// maxResponseBytes caps how much of a response body is read.
	maxResponseBytes = 4 << 20

	textPath   = "/generate-ui"
	visionPath = "/vision-ui"
)

// ErrNoBaseURL is returned by New when the base URL is empty.
var ErrNoBaseURL = errors.New("generation service base URL is required")

// Client talks to a generation service.
//
// # Description
//
// Client posts prompts to {base}/generate-ui and images to {base}/vision-ui
// and classifies every failure as either a transport failure or a
// generation failure. It never retries; the caller decides.
//
// # Thread Safety
//
// Client is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client for baseURL. The endpoint is always explicit.
//
// # Example
//
//	client, err := genclient.New("http://localhost:8000")
//	result, err := client.Generate(ctx, generation.Request{Prompt: "a pricing card"})
func New(baseURL string) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, ErrNoBaseURL
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}, nil
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// BaseURL returns the service root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

type textRequest struct {
	Prompt string `json:"prompt"`
}

// response is the body both endpoints answer with. A fallback answer may
// carry both code and error; a refusal may list reasons.
type response struct {
	Code    *string  `json:"code"`
	Error   *string  `json:"error"`
	Detail  *string  `json:"detail"`
	Reasons []string `json:"reasons"`
}

// Generate implements generation.Generator.
//
// # Outputs
//
//   - *generation.Result: Code is never empty on success.
//   - error: *generation.TransportError or *generation.GenerationError.
func (c *Client) Generate(ctx context.Context, req generation.Request) (*generation.Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "genclient.Generate",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("generation.source", string(req.Source()))),
	)
	defer span.End()

	result, err := c.generate(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		var te *generation.TransportError
		if errors.As(err, &te) && te.StatusCode != 0 {
			span.SetAttributes(attribute.Int("http.status_code", te.StatusCode))
		}
		return nil, err
	}
	span.SetAttributes(attribute.Bool("generation.notice", result.Notice != ""))
	return result, nil
}

func (c *Client) generate(ctx context.Context, req generation.Request) (*generation.Result, error) {
	var (
		httpReq *http.Request
		err     error
	)
	source := req.Source()
	if source == generation.SourceVision {
		httpReq, err = c.visionRequest(ctx, req)
	} else {
		httpReq, err = c.textRequest(ctx, req.Prompt)
	}
	if err != nil {
		return nil, err
	}

	op := string(source)
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &generation.TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &generation.TransportError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &generation.TransportError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status: %s", snippet(body)),
		}
	}

	mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		return nil, &generation.TransportError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("non-JSON response %q", resp.Header.Get("Content-Type")),
		}
	}

	var decoded response
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, &generation.TransportError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode body: %w", err)}
	}

	return classify(decoded, source)
}

// classify turns a decoded body into a result. Code wins over an error
// field; the error then becomes the notice.
func classify(decoded response, source generation.Source) (*generation.Result, error) {
	message := ""
	if decoded.Error != nil {
		message = *decoded.Error
	} else if decoded.Detail != nil {
		message = *decoded.Detail
	}

	if decoded.Code == nil {
		if message == "" {
			message = "response carried neither code nor error"
		}
		return nil, &generation.GenerationError{Message: message, Reasons: decoded.Reasons}
	}
	if strings.TrimSpace(*decoded.Code) == "" {
		ge := &generation.GenerationError{Message: "empty code"}
		if message != "" {
			ge.Reasons = []string{message}
		}
		ge.Reasons = append(ge.Reasons, decoded.Reasons...)
		return nil, ge
	}

	return &generation.Result{
		Code:   *decoded.Code,
		Notice: message,
		Source: source,
	}, nil
}

func (c *Client) textRequest(ctx context.Context, prompt string) (*http.Request, error) {
	payload, err := json.Marshal(textRequest{Prompt: prompt})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+textPath, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) visionRequest(ctx context.Context, gr generation.Request) (*http.Request, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	name := gr.ImageName
	if name == "" {
		name = "upload"
	}
	contentType := gr.ImageMIME
	if contentType == "" {
		contentType = http.DetectContentType(gr.Image)
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, name))
	header.Set("Content-Type", contentType)
	part, err := w.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("create form part: %w", err)
	}
	if _, err := part.Write(gr.Image); err != nil {
		return nil, fmt.Errorf("write form part: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+visionPath, &buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func snippet(body []byte) string {
	const limit = 200
	s := strings.TrimSpace(string(body))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
