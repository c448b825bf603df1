// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package prefs persists per-client preview preferences such as the theme
// flag. Snapshot history is deliberately not stored here.
package prefs

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// ErrEmptyKey is returned when a client key is blank.
var ErrEmptyKey = errors.New("client key must not be empty")

// Store is an explicit key-value capability for client preferences.
type Store interface {
	// Theme returns the stored theme flag; found is false when the client
	// has never stored one.
	Theme(ctx context.Context, clientKey string) (dark bool, found bool, err error)

	// SetTheme stores the theme flag for the client.
	SetTheme(ctx context.Context, clientKey string, dark bool) error

	Close() error
}

func checkKey(clientKey string) error {
	if strings.TrimSpace(clientKey) == "" {
		return ErrEmptyKey
	}
	return nil
}

// Memory is a Store held in process memory.
type Memory struct {
	mu     sync.RWMutex
	themes map[string]bool
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{themes: make(map[string]bool)}
}

// Theme implements Store.
func (m *Memory) Theme(_ context.Context, clientKey string) (bool, bool, error) {
	if err := checkKey(clientKey); err != nil {
		return false, false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	dark, ok := m.themes[clientKey]
	return dark, ok, nil
}

// SetTheme implements Store.
func (m *Memory) SetTheme(_ context.Context, clientKey string, dark bool) error {
	if err := checkKey(clientKey); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.themes[clientKey] = dark
	return nil
}

// Close implements Store.
func (m *Memory) Close() error {
	return nil
}
