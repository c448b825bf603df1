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
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/LivePreview/services/preview/submission"
)

func dialLive(t *testing.T, srv *httptest.Server, id string, header http.Header) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/sessions/" + id + "/live"
	return websocket.DefaultDialer.Dial(url, header)
}

func readEvent(t *testing.T, ws *websocket.Conn) submission.Event {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	var ev submission.Event
	require.NoError(t, ws.ReadJSON(&ev))
	return ev
}

func TestHandleLive_PushesSnippets(t *testing.T) {
	s := newTestServer(t, nil)
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	id := s.createSession(t)
	_, err := s.orch.Submit(context.Background(), id, safeCode)
	require.NoError(t, err)

	ws, _, err := dialLive(t, srv, id, nil)
	require.NoError(t, err)
	defer ws.Close()

	first := readEvent(t, ws)
	assert.Equal(t, submission.EventSnippet, first.Type)
	assert.Equal(t, 0, first.Index)
	assert.Contains(t, first.Snippet, "render(<GeneratedComponent />);")

	_, err = s.orch.Submit(context.Background(), id, "function Card() { return <p>B</p> }")
	require.NoError(t, err)

	next := readEvent(t, ws)
	assert.Equal(t, submission.EventSnippet, next.Type)
	assert.Equal(t, 1, next.Index)
	assert.Contains(t, next.Snippet, "render(<Card />);")
}

func TestHandleLive_ClientFrames(t *testing.T) {
	s := newTestServer(t, nil)
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	id := s.createSession(t)
	ws, _, err := dialLive(t, srv, id, nil)
	require.NoError(t, err)
	defer ws.Close()

	require.NoError(t, ws.WriteJSON(map[string]string{"type": "ping"}))
	var pong liveReply
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	require.NoError(t, ws.ReadJSON(&pong))
	assert.Equal(t, "pong", pong.Type)

	require.NoError(t, ws.WriteJSON(map[string]string{"type": "bogus"}))
	var bad liveReply
	require.NoError(t, ws.ReadJSON(&bad))
	assert.Equal(t, "error", bad.Type)
	assert.Equal(t, CodeInvalidRequest, bad.Code)

	msg := "TypeError: x is undefined"
	require.NoError(t, ws.WriteJSON(map[string]string{"type": "sandbox_error", "message": msg}))
	ev := readEvent(t, ws)
	assert.Equal(t, submission.EventSandboxError, ev.Type)
	assert.Equal(t, msg, ev.Message)

	recorded, err := s.orch.LastSandboxError(id)
	require.NoError(t, err)
	require.NotNil(t, recorded)
	assert.Equal(t, msg, recorded.Message)
}

func TestHandleLive_SessionDeleteCloses(t *testing.T) {
	s := newTestServer(t, nil)
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	id := s.createSession(t)
	ws, _, err := dialLive(t, srv, id, nil)
	require.NoError(t, err)
	defer ws.Close()

	require.NoError(t, s.orch.DeleteSession(context.Background(), id))

	ev := readEvent(t, ws)
	assert.Equal(t, submission.EventClosed, ev.Type)

	_, _, err = ws.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestHandleLive_UnknownSession(t *testing.T) {
	s := newTestServer(t, nil)
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	_, resp, err := dialLive(t, srv, "missing", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestNewUpgrader_CheckOrigin(t *testing.T) {
	up := newUpgrader([]string{"http://localhost:5173"})

	req := httptest.NewRequest("GET", "/", nil)
	assert.True(t, up.CheckOrigin(req), "no origin header")

	req.Header.Set("Origin", "http://localhost:5173")
	assert.True(t, up.CheckOrigin(req))

	req.Header.Set("Origin", "https://evil.example")
	assert.False(t, up.CheckOrigin(req))
}
