// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package source

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
)

// Dialect selects the grammar used to parse component source.
type Dialect string

const (
	// DialectJSX parses JavaScript with JSX markup.
	DialectJSX Dialect = "jsx"

	// DialectTSX parses TypeScript with JSX markup.
	DialectTSX Dialect = "tsx"
)

// ErrInvalidUTF8 is returned when source text is not valid UTF-8.
var ErrInvalidUTF8 = errors.New("source is not valid UTF-8")

// ErrUnknownDialect is returned for a dialect with no grammar.
var ErrUnknownDialect = errors.New("unknown source dialect")

// Valid reports whether the dialect has a grammar.
func (d Dialect) Valid() bool {
	return d == DialectJSX || d == DialectTSX
}

// Language returns the tree-sitter grammar for a dialect. An empty dialect
// means DialectJSX.
func Language(d Dialect) (*sitter.Language, error) {
	switch d {
	case DialectJSX, "":
		return javascript.GetLanguage(), nil
	case DialectTSX:
		return tsx.GetLanguage(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDialect, d)
	}
}

// Parse parses src as a module in the given dialect.
//
// # Description
//
// A parser is created per call; tree-sitter parsers must not be shared
// between goroutines. The caller owns the returned tree and must Close it.
// Syntax errors do not fail the parse: tree-sitter recovers and marks the
// tree, so callers check RootNode().HasError().
func Parse(ctx context.Context, d Dialect, src []byte) (*sitter.Tree, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !utf8.Valid(src) {
		return nil, ErrInvalidUTF8
	}

	lang, err := Language(d)
	if err != nil {
		return nil, err
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(lang)

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", d, err)
	}
	return tree, nil
}

// FirstError finds the first ERROR or MISSING node in pre-order.
func FirstError(node *sitter.Node) *sitter.Node {
	if node == nil {
		return nil
	}
	if node.IsError() || node.IsMissing() {
		return node
	}
	for i := uint32(0); i < node.ChildCount(); i++ {
		if found := FirstError(node.Child(int(i))); found != nil {
			return found
		}
	}
	return nil
}

// Walk visits node and its descendants in pre-order. Returning false from
// visit skips the node's children.
func Walk(node *sitter.Node, visit func(*sitter.Node) bool) {
	if node == nil {
		return
	}
	if !visit(node) {
		return
	}
	for i := uint32(0); i < node.ChildCount(); i++ {
		Walk(node.Child(int(i)), visit)
	}
}

// SameNode reports whether a and b cover the same range with the same type.
func SameNode(a, b *sitter.Node) bool {
	if a == nil || b == nil {
		return false
	}
	return a.StartByte() == b.StartByte() &&
		a.EndByte() == b.EndByte() &&
		a.Type() == b.Type()
}

// StringContent returns the text between the quotes of a string node.
func StringContent(node *sitter.Node, src []byte) (string, bool) {
	if node == nil || node.Type() != "string" {
		return "", false
	}
	text := node.Content(src)
	if len(text) < 2 {
		return "", false
	}
	return text[1 : len(text)-1], true
}
