// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package submission

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/LivePreview/services/preview/history"
)

// EventType names a live event.
type EventType string

const (
	EventSnippet      EventType = "snippet"
	EventSandboxError EventType = "sandbox_error"
	EventClosed       EventType = "closed"
)

// Event is pushed to live subscribers of a session.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`
	Op        string    `json:"op,omitempty"`
	Index     int       `json:"index"`
	Snippet   string    `json:"snippet,omitempty"`
	ThemeDark bool      `json:"theme_dark"`
	Message   string    `json:"message,omitempty"`
}

const subscriberBuffer = 16

// Session is the mutable state of one preview: its history, theme, and the
// generation ticket used to discard stale responses.
//
// Thread Safety: every field except lastUsed is guarded by mu. Operations
// on one session are serialized; different sessions never contend.
type Session struct {
	ID        string
	ClientKey string
	CreatedAt time.Time

	mu           sync.Mutex
	history      *history.Log
	themeDark    bool
	ticket       uint64
	sandboxError string
	subscribers  map[int]chan Event
	nextSub      int
	closed       bool

	lastUsed atomic.Int64
}

// ThemeDark returns the session theme.
func (s *Session) ThemeDark() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.themeDark
}

// LastUsed returns when the session was last touched.
func (s *Session) LastUsed() time.Time {
	return time.Unix(0, s.lastUsed.Load())
}

func (s *Session) touch(now time.Time) {
	s.lastUsed.Store(now.UnixNano())
}

// publishLocked fans ev out without blocking. A subscriber whose buffer is
// full misses the event. Caller holds mu.
func (s *Session) publishLocked(ev Event) int {
	dropped := 0
	for _, ch := range s.subscribers {
		select {
		case ch <- ev:
		default:
			dropped++
		}
	}
	return dropped
}

// closeLocked ends every subscription. Caller holds mu.
func (s *Session) closeLocked() {
	if s.closed {
		return
	}
	s.closed = true
	for id, ch := range s.subscribers {
		select {
		case ch <- Event{Type: EventClosed, SessionID: s.ID}:
		default:
		}
		close(ch)
		delete(s.subscribers, id)
	}
}

// Store holds live sessions in memory. Sessions are never persisted.
//
// Thread Safety: Safe for concurrent use.
type Store struct {
	mu         sync.RWMutex
	sessions   map[string]*Session
	maxHistory int
}

// NewStore creates a store whose sessions bound history to maxHistory
// snapshots; zero means unbounded.
func NewStore(maxHistory int) *Store {
	return &Store{
		sessions:   make(map[string]*Session),
		maxHistory: maxHistory,
	}
}

// Create registers a new session.
func (st *Store) Create(themeDark bool, clientKey string, now time.Time) *Session {
	s := &Session{
		ID:          uuid.NewString(),
		ClientKey:   clientKey,
		CreatedAt:   now,
		history:     history.New(history.WithMaxEntries(st.maxHistory)),
		themeDark:   themeDark,
		subscribers: make(map[int]chan Event),
	}
	s.touch(now)

	st.mu.Lock()
	st.sessions[s.ID] = s
	st.mu.Unlock()
	return s
}

// Get returns the session or ErrSessionNotFound.
func (st *Store) Get(id string) (*Session, error) {
	st.mu.RLock()
	s, ok := st.sessions[id]
	st.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Delete removes the session and closes its subscriptions.
func (st *Store) Delete(id string) bool {
	st.mu.Lock()
	s, ok := st.sessions[id]
	delete(st.sessions, id)
	st.mu.Unlock()
	if !ok {
		return false
	}
	s.mu.Lock()
	s.closeLocked()
	s.mu.Unlock()
	return true
}

// Sweep evicts sessions untouched for longer than idle and returns their
// IDs, sorted.
func (st *Store) Sweep(idle time.Duration, now time.Time) []string {
	cutoff := now.Add(-idle).UnixNano()

	st.mu.Lock()
	var evicted []*Session
	for id, s := range st.sessions {
		if s.lastUsed.Load() < cutoff {
			evicted = append(evicted, s)
			delete(st.sessions, id)
		}
	}
	st.mu.Unlock()

	ids := make([]string, 0, len(evicted))
	for _, s := range evicted {
		s.mu.Lock()
		s.closeLocked()
		s.mu.Unlock()
		ids = append(ids, s.ID)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of live sessions.
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}
