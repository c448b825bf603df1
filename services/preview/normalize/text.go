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

import (
	"regexp"
	"strings"

	"github.com/AleutianAI/LivePreview/services/preview/source"
)

// maxCanonicalPasses bounds the export fixpoint loop.
const maxCanonicalPasses = 8

var (
	exportDefaultRe      = regexp.MustCompile(`export\s+default\b\s*`)
	exportDefaultNameRe  = regexp.MustCompile(`(?m)^[ \t]*export\s+default\s+([A-Za-z_$][\w$]*)[ \t]*;?[ \t]*$`)
	exportAnonFunctionRe = regexp.MustCompile(`export\s+default\s+(async\s+)?function\s*(\*?)\s*\(`)
	exportArrowRe        = regexp.MustCompile(`export\s+default\s+((?:async\s*)?(?:\([^()]*\)|[A-Za-z_$][\w$]*)\s*=>)`)
	exportNamedRe        = regexp.MustCompile(`(?m)^([ \t]*)export\s+((?:async\s+)?function|const|let|var|class)\b`)
)

// isImportLine reports whether a trimmed line starts an import statement.
func isImportLine(trimmed string) bool {
	if !strings.HasPrefix(trimmed, "import") {
		return false
	}
	return len(trimmed) == len("import") || !isIdentByte(trimmed[len("import")])
}

// stripImportLines removes import lines and stray fence markers. An import
// that opens a brace on its first line is removed through the line that
// closes it.
func stripImportLines(text string) string {
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	inImport := false

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if inImport {
			if strings.Contains(trimmed, "}") {
				inImport = false
			}
			continue
		}
		if strings.HasPrefix(trimmed, source.FenceMarker) {
			continue
		}
		if isImportLine(trimmed) {
			if strings.Contains(trimmed, "{") && !strings.Contains(trimmed, "}") {
				inImport = true
			}
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

// canonicalizeExports rewrites default exports into plain declarations.
//
// The canonical component keeps its name; a trailing `export default Name;`
// names the component and is removed; anonymous default functions and
// arrows are bound to componentName; any other default-export prefix is
// dropped. Named export keywords are dropped too, since the sandbox runs
// the snippet as a script. Returns the rewritten text and the name from an
// `export default Name;` statement, if one was seen.
func canonicalizeExports(text, componentName string) (string, string) {
	exported := ""
	canonical := regexp.MustCompile(`export\s+default\s+((?:async\s+)?function\s+` + regexp.QuoteMeta(componentName) + `\b)`)

	for pass := 0; pass < maxCanonicalPasses; pass++ {
		before := text

		text = canonical.ReplaceAllString(text, "$1")
		if m := exportDefaultNameRe.FindStringSubmatch(text); m != nil && exported == "" {
			exported = m[1]
		}
		text = exportDefaultNameRe.ReplaceAllString(text, "")
		text = exportAnonFunctionRe.ReplaceAllString(text, "${1}function$2 "+componentName+"(")
		text = exportArrowRe.ReplaceAllString(text, "const "+componentName+" = $1")
		text = exportDefaultRe.ReplaceAllString(text, "")
		text = exportNamedRe.ReplaceAllString(text, "$1$2")

		if text == before {
			break
		}
	}
	return text, exported
}

// scrub removes import lines and default-export tokens until none remain.
// Both operations only delete text, so the loop terminates.
func scrub(text string) string {
	for {
		next := stripImportLines(exportDefaultRe.ReplaceAllString(text, ""))
		if next == text {
			return text
		}
		text = next
	}
}
