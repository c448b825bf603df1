// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package genclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/LivePreview/services/preview/generation"
)

func TestNew(t *testing.T) {
	_, err := New("  ")
	assert.ErrorIs(t, err, ErrNoBaseURL)

	c, err := New("http://example.test/")
	require.NoError(t, err)
	assert.Equal(t, "http://example.test", c.BaseURL())
}

func TestGenerate_Text(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		contentType string
		body        string
		wantCode    string
		wantNotice  string
		wantErr     string // "transport" or "generation"
		wantReasons []string
	}{
		{
			name:        "code only",
			status:      http.StatusOK,
			contentType: "application/json",
			body:        `{"code":"function App() {}","error":null}`,
			wantCode:    "function App() {}",
		},
		{
			name:        "fallback keeps code and notice",
			status:      http.StatusOK,
			contentType: "application/json; charset=utf-8",
			body:        `{"code":"function App() {}","error":"OpenAI quota/rate limit exceeded; showing fallback UI instead."}`,
			wantCode:    "function App() {}",
			wantNotice:  "OpenAI quota/rate limit exceeded; showing fallback UI instead.",
		},
		{
			name:        "error without code",
			status:      http.StatusOK,
			contentType: "application/json",
			body:        `{"error":"model refused"}`,
			wantErr:     "generation",
		},
		{
			name:        "error with reasons",
			status:      http.StatusOK,
			contentType: "application/json",
			body:        `{"error":"blocked","reasons":["uses eval"]}`,
			wantErr:     "generation",
			wantReasons: []string{"uses eval"},
		},
		{
			name:        "empty code",
			status:      http.StatusOK,
			contentType: "application/json",
			body:        `{"code":"  "}`,
			wantErr:     "generation",
		},
		{
			name:        "server error",
			status:      http.StatusInternalServerError,
			contentType: "application/json",
			body:        `{"detail":"boom"}`,
			wantErr:     "transport",
		},
		{
			name:        "html body",
			status:      http.StatusOK,
			contentType: "text/html",
			body:        `<html></html>`,
			wantErr:     "transport",
		},
		{
			name:        "malformed json",
			status:      http.StatusOK,
			contentType: "application/json",
			body:        `{"code":`,
			wantErr:     "transport",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/generate-ui", r.URL.Path)
				var req textRequest
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
				assert.Equal(t, "a pricing card", req.Prompt)

				w.Header().Set("Content-Type", tt.contentType)
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			c, err := New(srv.URL)
			require.NoError(t, err)

			res, err := c.Generate(context.Background(), generation.Request{Prompt: "a pricing card"})
			switch tt.wantErr {
			case "transport":
				assert.True(t, generation.IsTransport(err), "got %v", err)
				assert.Nil(t, res)
			case "generation":
				var ge *generation.GenerationError
				require.True(t, errors.As(err, &ge), "got %v", err)
				assert.Nil(t, res)
				if tt.wantReasons != nil {
					assert.Equal(t, tt.wantReasons, ge.Reasons)
					assert.Equal(t, "blocked", ge.Message)
				}
			default:
				require.NoError(t, err)
				assert.Equal(t, tt.wantCode, res.Code)
				assert.Equal(t, tt.wantNotice, res.Notice)
				assert.Equal(t, generation.SourceText, res.Source)
			}
		})
	}
}

func TestGenerate_StatusCodeRecorded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c, _ := New(srv.URL)
	_, err := c.Generate(context.Background(), generation.Request{Prompt: "x"})

	var te *generation.TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, http.StatusBadGateway, te.StatusCode)
	assert.Equal(t, "text", te.Op)
}

func TestGenerate_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	c, _ := New(url)
	_, err := c.Generate(context.Background(), generation.Request{Prompt: "x"})
	assert.True(t, generation.IsTransport(err))
}

func TestGenerate_Vision(t *testing.T) {
	image := []byte("\x89PNG\r\n\x1a\nfake")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/vision-ui", r.URL.Path)
		file, header, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer file.Close()
		got, _ := io.ReadAll(file)
		assert.Equal(t, image, got)
		assert.Equal(t, "mock.png", header.Filename)
		assert.Equal(t, "image/png", header.Header.Get("Content-Type"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"code":"function App() { return <div/>; }"}`)
	}))
	defer srv.Close()

	c, _ := New(srv.URL)
	res, err := c.Generate(context.Background(), generation.Request{
		Image:     image,
		ImageName: "mock.png",
		ImageMIME: "image/png",
	})
	require.NoError(t, err)
	assert.Equal(t, generation.SourceVision, res.Source)
	assert.Contains(t, res.Code, "function App")
}

func TestGenerate_InvalidRequest(t *testing.T) {
	c, _ := New("http://example.test")
	_, err := c.Generate(context.Background(), generation.Request{})
	assert.Error(t, err)
	assert.False(t, generation.IsTransport(err))

	_, err = c.Generate(context.Background(), generation.Request{Prompt: "x", Image: []byte{1}})
	assert.Error(t, err)
}
