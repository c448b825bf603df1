// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package normalize

import "strings"

// substituteTheme applies every substitution configured for the theme.
func substituteTheme(text string, subs []Substitution, themeIsDark bool) string {
	theme := ThemeLight
	if themeIsDark {
		theme = ThemeDark
	}
	for _, sub := range subs {
		if sub.Theme != theme {
			continue
		}
		text = replaceClassToken(text, sub.From, sub.To)
	}
	return text
}

// replaceClassToken replaces whole class tokens only. A variant prefix such
// as `hover:` or an opacity suffix such as `/50` still counts as a boundary,
// so `hover:text-black/50` is rewritten but `text-blackish` is not.
func replaceClassToken(text, from, to string) string {
	if from == "" || !strings.Contains(text, from) {
		return text
	}

	var b strings.Builder
	b.Grow(len(text))
	i := 0
	for {
		j := strings.Index(text[i:], from)
		if j < 0 {
			b.WriteString(text[i:])
			return b.String()
		}
		start := i + j
		end := start + len(from)
		if isLeftBoundary(text, start) && isRightBoundary(text, end) {
			b.WriteString(text[i:start])
			b.WriteString(to)
		} else {
			b.WriteString(text[i:end])
		}
		i = end
	}
}

func isLeftBoundary(text string, at int) bool {
	if at == 0 {
		return true
	}
	switch text[at-1] {
	case ' ', '\t', '\n', '\r', '"', '\'', '`', '{', '(', ',', ':', '!':
		return true
	}
	return false
}

func isRightBoundary(text string, at int) bool {
	if at == len(text) {
		return true
	}
	switch text[at] {
	case ' ', '\t', '\n', '\r', '"', '\'', '`', '}', ')', ',', '/':
		return true
	}
	return false
}
