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
	"sort"
	"strings"

	"github.com/AleutianAI/LivePreview/services/preview/source"
	sitter "github.com/smacker/go-tree-sitter"
)

// bindingParents are node types whose `name` field declares a binding.
var bindingParents = map[string]bool{
	"variable_declarator":            true,
	"function_declaration":           true,
	"generator_function_declaration": true,
	"function_expression":            true,
	"function":                       true,
	"class_declaration":              true,
	"method_definition":              true,
}

// patternParents are node types whose identifier children are bindings.
var patternParents = map[string]bool{
	"formal_parameters":        true,
	"required_parameter":       true,
	"optional_parameter":       true,
	"array_pattern":            true,
	"object_pattern":           true,
	"pair_pattern":             true,
	"rest_pattern":             true,
	"import_specifier":         true,
	"import_clause":            true,
	"namespace_import":         true,
	"export_specifier":         true,
	"catch_clause":             true,
	"labeled_statement":        true,
	"jsx_opening_element":      true,
	"jsx_closing_element":      true,
	"jsx_self_closing_element": true,
}

// qualifyHooks prefixes bare hook references with scope and returns the
// rewritten text with the number of references qualified.
//
// # Description
//
// Works on the tree rather than the text, so a hook name inside a string,
// a template, a comment, a property name, or an already qualified member
// expression is never touched. Declaration sites are skipped, and a hook
// name the source declares itself is left alone everywhere so local
// definitions keep working.
func qualifyHooks(root *sitter.Node, src []byte, scope string, hooks map[string]bool) (string, int) {
	declared := map[string]bool{}
	var refs []*sitter.Node

	source.Walk(root, func(n *sitter.Node) bool {
		if n.Type() != "identifier" {
			return true
		}
		name := n.Content(src)
		if !hooks[name] {
			return true
		}
		if isBinding(n) {
			declared[name] = true
			return true
		}
		refs = append(refs, n)
		return true
	})

	edits := make([]uint32, 0, len(refs))
	for _, n := range refs {
		if declared[n.Content(src)] {
			continue
		}
		edits = append(edits, n.StartByte())
	}
	if len(edits) == 0 {
		return string(src), 0
	}

	sort.Slice(edits, func(i, j int) bool { return edits[i] < edits[j] })

	var b strings.Builder
	b.Grow(len(src) + len(edits)*(len(scope)+1))
	prev := uint32(0)
	for _, at := range edits {
		b.Write(src[prev:at])
		b.WriteString(scope)
		b.WriteByte('.')
		prev = at
	}
	b.Write(src[prev:])
	return b.String(), len(edits)
}

// isBinding reports whether an identifier is a declaration site or
// otherwise not a value reference.
func isBinding(n *sitter.Node) bool {
	parent := n.Parent()
	if parent == nil {
		return false
	}
	pt := parent.Type()

	if bindingParents[pt] {
		return source.SameNode(parent.ChildByFieldName("name"), n)
	}
	if patternParents[pt] {
		return true
	}
	switch pt {
	case "assignment_pattern", "assignment_expression":
		return source.SameNode(parent.ChildByFieldName("left"), n)
	case "arrow_function":
		return source.SameNode(parent.ChildByFieldName("parameter"), n)
	}
	return false
}
