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
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/AleutianAI/LivePreview/services/orchestrator/datatypes"
	"github.com/AleutianAI/LivePreview/services/orchestrator/middleware"
	"github.com/AleutianAI/LivePreview/services/preview/submission"
)

const (
	// liveWriteWait is the time allowed to write one frame.
	liveWriteWait = 10 * time.Second

	// livePongWait is the time allowed between pongs from the client.
	livePongWait = 60 * time.Second

	// livePingPeriod must be less than livePongWait.
	livePingPeriod = (livePongWait * 9) / 10

	// liveReadLimit bounds one client frame.
	liveReadLimit = datatypes.MaxSandboxMessageBytes + 1024
)

// LiveGauge tracks open live connections.
type LiveGauge interface {
	LiveConnected()
	LiveDisconnected()
}

// liveReply is a server frame answering a client frame.
type liveReply struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
	Code    string `json:"code,omitempty"`
}

// newUpgrader builds a websocket upgrader that accepts the configured
// browser origins. Requests without an Origin header (non-browser clients)
// are accepted.
func newUpgrader(origins []string) websocket.Upgrader {
	allowed := make(map[string]bool, len(origins))
	allowAny := false
	for _, o := range origins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o == "*" {
			allowAny = true
		}
		allowed[o] = true
	}
	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || allowAny || allowed[origin]
		},
		ReadBufferSize:  4 * 1024,
		WriteBufferSize: 64 * 1024,
	}
}

func sendJSON(ws *websocket.Conn, v interface{}) error {
	_ = ws.SetWriteDeadline(time.Now().Add(liveWriteWait))
	err := ws.WriteJSON(v)
	if err != nil {
		slog.Warn("Failed to write WebSocket JSON", "error", err)
	}
	return err
}

// HandleLive serves GET /v1/sessions/:id/live.
//
// # Description
//
// Upgrades to a websocket and pushes every snippet the session accepts,
// starting with the current one. The sandbox client may send
// {"type":"sandbox_error","message":...} frames, which are recorded
// verbatim, and {"type":"ping"} frames, answered with {"type":"pong"}.
// The connection closes when the client leaves or the session ends.
//
// # Thread Safety
//
// One goroutine owns all writes to the connection; the read loop hands
// replies to it over a channel.
func HandleLive(o *submission.Orchestrator, origins []string, gauge LiveGauge) gin.HandlerFunc {
	upgrader := newUpgrader(origins)

	return func(c *gin.Context) {
		id := c.Param("id")
		logger := slog.With("request_id", middleware.GetRequestID(c), "handler", "live", "session_id", id)

		ctx, stop := context.WithCancel(context.Background())
		defer stop()

		events, cancel, err := o.Subscribe(ctx, id)
		if err != nil {
			respondServiceError(c, err)
			return
		}
		defer cancel()

		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("failed to upgrade the websocket", "error", err)
			return
		}
		defer ws.Close()
		if gauge != nil {
			gauge.LiveConnected()
			defer gauge.LiveDisconnected()
		}
		logger.Info("live client connected")

		replies := make(chan liveReply, 4)
		writerDone := make(chan struct{})
		go func() {
			defer close(writerDone)
			defer stop()
			// Closing the connection unblocks the read loop when the
			// session ends first.
			defer ws.Close()
			writeLive(ws, events, replies, ctx.Done(), logger)
		}()

		readLive(ctx, ws, o, id, replies, logger)
		stop()
		<-writerDone
		logger.Info("live client disconnected")
	}
}

// writeLive forwards events and replies until the session closes, the
// reader stops, or a write fails.
func writeLive(ws *websocket.Conn, events <-chan submission.Event, replies <-chan liveReply, done <-chan struct{}, logger *slog.Logger) {
	ticker := time.NewTicker(livePingPeriod)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				_ = ws.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"),
					time.Now().Add(liveWriteWait))
				return
			}
			if err := sendJSON(ws, ev); err != nil {
				return
			}
			if ev.Type == submission.EventClosed {
				logger.Info("session closed while live")
			}
		case r := <-replies:
			if err := sendJSON(ws, r); err != nil {
				return
			}
		case <-ticker.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(liveWriteWait)); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// readLive handles client frames until the connection fails or ctx ends.
func readLive(ctx context.Context, ws *websocket.Conn, o *submission.Orchestrator, id string, replies chan<- liveReply, logger *slog.Logger) {
	ws.SetReadLimit(liveReadLimit)
	_ = ws.SetReadDeadline(time.Now().Add(livePongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(livePongWait))
	})

	reply := func(r liveReply) bool {
		select {
		case replies <- r:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for {
		var msg datatypes.LiveMessage
		if err := ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Info("live read ended", "error", err)
			}
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(livePongWait))

		if err := msg.Validate(); err != nil {
			if !reply(liveReply{Type: "error", Code: CodeInvalidRequest, Message: datatypes.ValidationMessage(err)}) {
				return
			}
			continue
		}

		switch msg.Type {
		case "ping":
			if !reply(liveReply{Type: "pong"}) {
				return
			}
		case "sandbox_error":
			if _, err := o.ReportSandboxError(ctx, id, msg.Message); err != nil {
				reply(liveReply{Type: "error", Code: CodeSessionNotFound, Message: "session not found"})
				return
			}
		}
	}
}
