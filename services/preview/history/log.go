// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package history keeps the accepted code snapshots of one preview session
// with linear undo and redo.
package history

// Log is a cursor-addressable list of snapshots.
//
// # Description
//
// Push and Commit append after the cursor, discarding any redo entries
// beyond it first; redo branches are never merged. Undo and Redo move the
// cursor one step and return the snapshot under it.
//
// # Invariants
//
// -1 <= cursor < len(entries); cursor is -1 only when the log is empty.
//
// # Thread Safety
//
// NOT safe for concurrent use; the owning session serializes access.
type Log struct {
	entries    []string
	cursor     int
	maxEntries int
}

// Option configures a Log.
type Option func(*Log)

// WithMaxEntries bounds the log to n snapshots. When a push exceeds the
// bound the oldest snapshot is dropped. n <= 0 means unbounded.
func WithMaxEntries(n int) Option {
	return func(l *Log) {
		if n > 0 {
			l.maxEntries = n
		}
	}
}

// New creates an empty log.
func New(opts ...Option) *Log {
	l := &Log{cursor: -1}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Push appends snapshot as the new current entry.
//
// # Outputs
//
//   - int: Index of the new entry, which is also the new cursor.
func (l *Log) Push(snapshot string) int {
	if l.cursor < len(l.entries)-1 {
		clear(l.entries[l.cursor+1:])
		l.entries = l.entries[:l.cursor+1]
	}
	l.entries = append(l.entries, snapshot)

	if l.maxEntries > 0 && len(l.entries) > l.maxEntries {
		n := copy(l.entries, l.entries[len(l.entries)-l.maxEntries:])
		clear(l.entries[n:])
		l.entries = l.entries[:n]
	}

	l.cursor = len(l.entries) - 1
	return l.cursor
}

// Commit snapshots manually edited text. It behaves exactly like Push.
func (l *Log) Commit(current string) int {
	return l.Push(current)
}

// Undo moves back one entry.
//
// # Outputs
//
//   - string: The snapshot now at the cursor.
//   - bool: False, with no change, when the cursor is at or before the
//     first entry.
func (l *Log) Undo() (string, bool) {
	if l.cursor <= 0 {
		return "", false
	}
	l.cursor--
	return l.entries[l.cursor], true
}

// Redo moves forward one entry.
//
// # Outputs
//
//   - string: The snapshot now at the cursor.
//   - bool: False, with no change, when the cursor is at the last entry
//     or the log is empty.
func (l *Log) Redo() (string, bool) {
	if l.cursor < 0 || l.cursor >= len(l.entries)-1 {
		return "", false
	}
	l.cursor++
	return l.entries[l.cursor], true
}

// Current returns the snapshot at the cursor.
func (l *Log) Current() (string, bool) {
	if l.cursor < 0 {
		return "", false
	}
	return l.entries[l.cursor], true
}

// Cursor returns the cursor, -1 when empty.
func (l *Log) Cursor() int {
	return l.cursor
}

// Len returns the number of snapshots.
func (l *Log) Len() int {
	return len(l.entries)
}

// CanUndo reports whether Undo would move the cursor.
func (l *Log) CanUndo() bool {
	return l.cursor > 0
}

// CanRedo reports whether Redo would move the cursor.
func (l *Log) CanRedo() bool {
	return l.cursor >= 0 && l.cursor < len(l.entries)-1
}

// Entries returns a copy of every snapshot, oldest first.
func (l *Log) Entries() []string {
	out := make([]string, len(l.entries))
	copy(out, l.entries)
	return out
}
