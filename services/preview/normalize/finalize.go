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
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// shape describes the top level of a snippet for finalization.
type shape struct {
	components []string
	hasRender  bool
	markup     bool
	wrapped    *wrappedComponent
}

// wrappedComponent is a top-level statement such as
// `React.memo(function Card() {...})` whose component is never bound to a
// name. A named function expression is only visible inside its own body.
type wrappedComponent struct {
	start, end uint32
	call       string
	name       string
}

func (s shape) declares(name string) bool {
	for _, c := range s.components {
		if c == name {
			return true
		}
	}
	return false
}

// analyzeShape inspects the program's top-level statements.
func analyzeShape(root *sitter.Node, src []byte, renderFunc string) shape {
	var s shape
	statements := 0

	for i := uint32(0); i < root.NamedChildCount(); i++ {
		stmt := root.NamedChild(int(i))
		switch stmt.Type() {
		case "comment":
			continue

		case "function_declaration", "class_declaration":
			if name := stmt.ChildByFieldName("name"); name != nil {
				s.addComponent(name.Content(src))
			}

		case "lexical_declaration", "variable_declaration":
			for j := uint32(0); j < stmt.NamedChildCount(); j++ {
				decl := stmt.NamedChild(int(j))
				if decl.Type() != "variable_declarator" {
					continue
				}
				name, value := decl.ChildByFieldName("name"), decl.ChildByFieldName("value")
				if name == nil || value == nil || name.Type() != "identifier" {
					continue
				}
				switch value.Type() {
				case "arrow_function", "function_expression", "function", "call_expression", "class":
					s.addComponent(name.Content(src))
				}
			}

		case "expression_statement":
			expr := stmt.NamedChild(0)
			if expr == nil {
				break
			}
			if isRenderCall(expr, src, renderFunc) {
				s.hasRender = true
			}
			if isMarkup(expr) {
				s.markup = true
			}
			if s.wrapped == nil {
				s.wrapped = wrappedCall(stmt, expr, src)
			}
		}
		statements++
	}

	// Markup only counts as bare when it is the whole program.
	if statements != 1 {
		s.markup = false
	}
	return s
}

func (s *shape) addComponent(name string) {
	if !isComponentName(name) {
		return
	}
	s.components = append(s.components, name)
}

func isRenderCall(expr *sitter.Node, src []byte, renderFunc string) bool {
	if expr.Type() != "call_expression" {
		return false
	}
	fn := expr.ChildByFieldName("function")
	return fn != nil && fn.Type() == "identifier" && fn.Content(src) == renderFunc
}

// wrappedCall recognizes a call whose first argument is a function: a
// component passed through memo, forwardRef and the like. The name is the
// function expression's own name when it has one.
func wrappedCall(stmt, expr *sitter.Node, src []byte) *wrappedComponent {
	if expr.Type() != "call_expression" {
		return nil
	}
	args := expr.ChildByFieldName("arguments")
	if args == nil || args.NamedChildCount() == 0 {
		return nil
	}
	fn := args.NamedChild(0)
	switch fn.Type() {
	case "function", "function_expression", "arrow_function":
	default:
		return nil
	}
	w := &wrappedComponent{
		start: stmt.StartByte(),
		end:   stmt.EndByte(),
		call:  expr.Content(src),
	}
	if name := fn.ChildByFieldName("name"); name != nil {
		w.name = name.Content(src)
	}
	if !componentWrappers[calleeName(expr, src)] && !isComponentName(w.name) {
		return nil
	}
	return w
}

var componentWrappers = map[string]bool{"memo": true, "forwardRef": true}

// calleeName returns the called function's name, or its last property for
// a member call such as React.memo.
func calleeName(call *sitter.Node, src []byte) string {
	fn := call.ChildByFieldName("function")
	if fn == nil {
		return ""
	}
	switch fn.Type() {
	case "identifier":
		return fn.Content(src)
	case "member_expression":
		if prop := fn.ChildByFieldName("property"); prop != nil {
			return prop.Content(src)
		}
	}
	return ""
}

func isComponentName(name string) bool {
	return name != "" && name[0] >= 'A' && name[0] <= 'Z'
}

// bindWrapped replaces the wrapped statement with a const binding so the
// component can be mounted by name.
func bindWrapped(text string, w *wrappedComponent, name string) string {
	return text[:w.start] + "const " + name + " = " + w.call + ";" + text[w.end:]
}

func isMarkup(expr *sitter.Node) bool {
	for expr != nil && expr.Type() == "parenthesized_expression" {
		expr = expr.NamedChild(0)
	}
	if expr == nil {
		return false
	}
	switch expr.Type() {
	case "jsx_element", "jsx_self_closing_element", "jsx_fragment":
		return true
	}
	return false
}

// chooseComponent picks the component to mount: the canonical name, then
// the name from `export default Name;`, then the last declared component.
func chooseComponent(s shape, canonical, exported string) string {
	if s.declares(canonical) {
		return canonical
	}
	if exported != "" && s.declares(exported) {
		return exported
	}
	if len(s.components) > 0 {
		return s.components[len(s.components)-1]
	}
	return ""
}

// wrapMarkup turns bare markup into a zero-argument function returning it.
func wrapMarkup(text string) string {
	body := strings.TrimSpace(text)
	body = strings.TrimRight(body, ";")
	body = strings.TrimSpace(body)
	return "() => (\n" + body + "\n)"
}

// appendRender mounts the component.
func appendRender(text, renderFunc, component string) string {
	return strings.TrimSpace(text) + "\n\n" + renderFunc + "(<" + component + " />);"
}
