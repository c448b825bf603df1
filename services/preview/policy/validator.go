// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package policy implements the allow/deny gate applied to generated
// component source before it may reach the sandbox.
//
// The validator is syntactic: it parses the source with tree-sitter and
// walks the tree once, reporting forbidden identifiers, forbidden member
// accesses, and imports outside the allowlist. It does not track data flow.
package policy

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/AleutianAI/LivePreview/services/preview/source"
	sitter "github.com/smacker/go-tree-sitter"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("livepreview.preview.policy")

// Validator checks source text against a Policy.
//
// Thread Safety: Validate is safe for concurrent use. The policy is held
// behind an atomic pointer so SetPolicy may run while validations are in
// flight; each validation sees exactly one policy.
type Validator struct {
	rules  atomic.Pointer[ruleset]
	logger *slog.Logger
}

// NewValidator creates a validator for p. A nil logger uses slog.Default().
func NewValidator(p Policy, logger *slog.Logger) (*Validator, error) {
	rules, err := compile(p)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	v := &Validator{logger: logger.With("component", "policy")}
	v.rules.Store(rules)
	return v, nil
}

// Policy returns the policy currently enforced.
func (v *Validator) Policy() Policy {
	return v.rules.Load().policy
}

// SetPolicy replaces the enforced policy.
func (v *Validator) SetPolicy(p Policy) error {
	rules, err := compile(p)
	if err != nil {
		return err
	}
	v.rules.Store(rules)
	v.logger.Info("policy updated",
		"version", p.Version,
		"forbidden_identifiers", len(p.ForbiddenIdentifiers),
		"forbidden_members", len(p.ForbiddenMembers),
		"allowed_modules", len(p.AllowedModules),
	)
	return nil
}

// Validate decides whether src may be executed.
//
// # Description
//
// When src carries a fenced block only the first block is parsed. A syntax
// error yields a *ParseError and no verdict. Otherwise the tree is walked
// in pre-order and every violation is recorded in discovery order, so
// identical input always produces an identical verdict.
//
// # Outputs
//
//   - *Verdict: Non-nil when the source parsed.
//   - error: *ParseError for unparseable source, or the context error.
func (v *Validator) Validate(ctx context.Context, src string) (*Verdict, error) {
	ctx, span := tracer.Start(ctx, "policy.Validate",
		trace.WithAttributes(attribute.Int("source.bytes", len(src))))
	defer span.End()

	code, fenced := source.ExtractFence(src)
	span.SetAttributes(attribute.Bool("source.fenced", fenced))
	return v.validate(ctx, span, code)
}

// ValidateSnippet checks text exactly as it will be executed, without
// fence extraction. Use it on normalizer output: normalization deletes
// whole lines, and a deleted line can open or close a comment.
func (v *Validator) ValidateSnippet(ctx context.Context, snippet string) (*Verdict, error) {
	ctx, span := tracer.Start(ctx, "policy.ValidateSnippet",
		trace.WithAttributes(attribute.Int("source.bytes", len(snippet))))
	defer span.End()

	return v.validate(ctx, span, snippet)
}

func (v *Validator) validate(ctx context.Context, span trace.Span, code string) (*Verdict, error) {
	rules := v.rules.Load()
	span.SetAttributes(attribute.String("policy.version", rules.policy.Version))

	content := []byte(code)
	tree, err := source.Parse(ctx, rules.policy.Dialect, content)
	if err != nil {
		if errors.Is(err, source.ErrInvalidUTF8) {
			span.SetAttributes(attribute.Bool("policy.parse_error", true))
			return nil, &ParseError{Err: err}
		}
		return nil, err
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		span.SetAttributes(attribute.Bool("policy.parse_error", true))
		return nil, newParseError(root, content)
	}

	w := walker{rules: rules, src: content}
	source.Walk(root, w.visit)

	verdict := &Verdict{
		Safe:       len(w.violations) == 0,
		Violations: w.violations,
	}
	if verdict.Violations == nil {
		verdict.Violations = []Violation{}
	}

	span.SetAttributes(
		attribute.Bool("policy.safe", verdict.Safe),
		attribute.Int("policy.violations", len(verdict.Violations)),
	)
	if !verdict.Safe {
		v.logger.Debug("source rejected", "violations", len(verdict.Violations))
	}
	return verdict, nil
}

func newParseError(root *sitter.Node, src []byte) *ParseError {
	pe := &ParseError{Line: 1, Column: 1}
	node := source.FirstError(root)
	if node == nil {
		return pe
	}
	pt := node.StartPoint()
	pe.Line = int(pt.Row) + 1
	pe.Column = int(pt.Column) + 1
	near := node.Content(src)
	if i := strings.IndexByte(near, '\n'); i >= 0 {
		near = near[:i]
	}
	if len(near) > 40 {
		near = near[:40]
	}
	pe.Near = near
	return pe
}

// walker accumulates violations during one traversal.
type walker struct {
	rules      *ruleset
	src        []byte
	violations []Violation
}

func (w *walker) visit(node *sitter.Node) bool {
	switch node.Type() {
	case "identifier", "shorthand_property_identifier",
		"shorthand_property_identifier_pattern", "property_identifier":
		w.checkName(node, node.Content(w.src))

	case "subscript_expression":
		if name, ok := literalKey(node.ChildByFieldName("index"), w.src); ok {
			w.checkName(node, name)
		}

	case "import_statement", "export_statement":
		if spec := node.ChildByFieldName("source"); spec != nil {
			w.checkModule(node, spec)
		}

	case "call_expression":
		fn := node.ChildByFieldName("function")
		if fn == nil {
			break
		}
		if fn.Type() == "import" || (fn.Type() == "identifier" && fn.Content(w.src) == "require") {
			w.checkModule(node, firstArgument(node))
		}
	}
	return true
}

func (w *walker) checkName(node *sitter.Node, name string) {
	if kind, ok := w.rules.classify(name); ok {
		w.record(node, kind, name)
	}
}

// checkModule records a ForbiddenImport unless spec is an allowed string
// literal. A computed specifier is never allowed.
func (w *walker) checkModule(node, spec *sitter.Node) {
	if spec == nil {
		w.record(node, ForbiddenImport, node.Content(w.src))
		return
	}
	name, ok := literalKey(spec, w.src)
	if !ok {
		w.record(node, ForbiddenImport, spec.Content(w.src))
		return
	}
	if !w.rules.moduleAllowed(name) {
		w.record(spec, ForbiddenImport, name)
	}
}

func (w *walker) record(node *sitter.Node, kind ViolationKind, detail string) {
	pt := node.StartPoint()
	w.violations = append(w.violations, Violation{
		Kind:   kind,
		Detail: detail,
		Line:   int(pt.Row) + 1,
		Column: int(pt.Column) + 1,
	})
}

// literalKey returns the value of a plain string or substitution-free
// template literal.
func literalKey(node *sitter.Node, src []byte) (string, bool) {
	if node == nil {
		return "", false
	}
	switch node.Type() {
	case "string":
		return source.StringContent(node, src)
	case "template_string":
		text := node.Content(src)
		if len(text) < 2 || strings.Contains(text, "${") {
			return "", false
		}
		return text[1 : len(text)-1], true
	}
	return "", false
}

func firstArgument(call *sitter.Node) *sitter.Node {
	args := call.ChildByFieldName("arguments")
	if args == nil || args.NamedChildCount() == 0 {
		return nil
	}
	return args.NamedChild(0)
}
