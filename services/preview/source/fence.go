// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package source holds the helpers shared by the policy validator and the
// normalization pipeline: fenced-block extraction and tree-sitter parsing
// of component source text.
package source

import "strings"

// FenceMarker opens and closes a fenced code block.
const FenceMarker = "```"

// ExtractFence returns the body of the first fenced code block in text.
//
// # Description
//
// A fence starts at the first triple-backtick marker. When the rest of the
// opening line is a language tag (or empty) the body starts on the next
// line; otherwise the body starts right after the marker. The body ends at
// the next marker. An opening marker with no closing marker yields
// everything after the opening line.
//
// # Outputs
//
//   - string: The fenced body, or the whole text when no fence is present.
//   - bool: True when a fence was found.
func ExtractFence(text string) (string, bool) {
	start := strings.Index(text, FenceMarker)
	if start < 0 {
		return text, false
	}

	rest := text[start+len(FenceMarker):]
	rest = skipOpeningLine(rest)

	end := strings.Index(rest, FenceMarker)
	if end < 0 {
		return rest, true
	}
	return rest[:end], true
}

// skipOpeningLine drops a language tag and the line break that follows it.
func skipOpeningLine(rest string) string {
	i := 0
	for i < len(rest) && isTagByte(rest[i]) {
		i++
	}
	j := i
	for j < len(rest) && (rest[j] == ' ' || rest[j] == '\t') {
		j++
	}
	switch {
	case j == len(rest):
		return ""
	case rest[j] == '\n':
		return rest[j+1:]
	case rest[j] == '\r' && j+1 < len(rest) && rest[j+1] == '\n':
		return rest[j+2:]
	default:
		// Code on the opening line: there was no tag.
		return rest
	}
}

func isTagByte(b byte) bool {
	switch {
	case b >= 'a' && b <= 'z', b >= 'A' && b <= 'Z', b >= '0' && b <= '9':
		return true
	case b == '_' || b == '-' || b == '+' || b == '.':
		return true
	}
	return false
}
