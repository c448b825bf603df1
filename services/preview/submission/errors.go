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

import "errors"

var (
	// ErrSessionNotFound is returned for unknown or evicted session IDs.
	ErrSessionNotFound = errors.New("session not found")

	// ErrNothingToUndo is returned when the history cursor is at the first
	// entry or the history is empty.
	ErrNothingToUndo = errors.New("nothing to undo")

	// ErrNothingToRedo is returned when the history cursor is at the tail.
	ErrNothingToRedo = errors.New("nothing to redo")

	// ErrStaleResponse is returned when a generation response arrives after
	// a newer generation request was issued for the same session. The
	// response is discarded.
	ErrStaleResponse = errors.New("generation response superseded by a newer request")

	// ErrNoGenerator is returned by Generate when no generator is wired.
	ErrNoGenerator = errors.New("no generator configured")

	// ErrEmptySource is returned when submitted code is blank.
	ErrEmptySource = errors.New("source must not be empty")
)
