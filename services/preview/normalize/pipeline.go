// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package normalize rewrites generated component source into a snippet the
// sandbox can evaluate directly.
//
// The pipeline runs six ordered steps: fence extraction, import and fence
// residue stripping, export canonicalization, hook qualification, theme
// literal substitution, and finalization. Steps that need structure work on
// a tree-sitter parse; when parsing fails they fall back to leaving the text
// as is. Normalize never fails.
package normalize

import (
	"context"
	"strings"

	"github.com/AleutianAI/LivePreview/services/preview/source"
	sitter "github.com/smacker/go-tree-sitter"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("livepreview.preview.normalize")

// Finalization describes what the last step did to the snippet.
type Finalization string

const (
	// FinalRendered means a render call for Component was appended.
	FinalRendered Finalization = "rendered"

	// FinalExisting means the source already mounted itself.
	FinalExisting Finalization = "existing_render"

	// FinalWrapped means bare markup was wrapped in a function.
	FinalWrapped Finalization = "wrapped"

	// FinalUnchanged means no component or markup was recognised.
	FinalUnchanged Finalization = "unchanged"
)

// Result is a normalized snippet with details of the rewrite.
type Result struct {
	Snippet        string       `json:"snippet"`
	Component      string       `json:"component,omitempty"`
	Finalization   Finalization `json:"finalization"`
	Fenced         bool         `json:"fenced"`
	HooksQualified int          `json:"hooks_qualified"`
}

// Pipeline normalizes source text under a fixed rule table.
//
// Thread Safety: Safe for concurrent use; the pipeline holds only
// read-only configuration.
type Pipeline struct {
	rules Rules
	hooks map[string]bool
}

// New creates a pipeline for rules.
func New(rules Rules) (*Pipeline, error) {
	if err := rules.Validate(); err != nil {
		return nil, err
	}
	hooks := make(map[string]bool, len(rules.HookNames))
	for _, name := range rules.HookNames {
		hooks[name] = true
	}
	return &Pipeline{rules: rules, hooks: hooks}, nil
}

// NewDefault creates a pipeline for the standard profile.
func NewDefault() *Pipeline {
	p, err := New(DefaultRules())
	if err != nil {
		panic(err)
	}
	return p
}

// Rules returns the pipeline's rule table.
func (p *Pipeline) Rules() Rules {
	return p.rules
}

// Normalize returns the sandbox-ready snippet for src under the theme.
func (p *Pipeline) Normalize(src string, themeIsDark bool) string {
	return p.NormalizeDetailed(context.Background(), src, themeIsDark).Snippet
}

// NormalizeDetailed runs the pipeline and reports what each structural
// step did. Output depends only on src, themeIsDark, and the rules.
func (p *Pipeline) NormalizeDetailed(ctx context.Context, src string, themeIsDark bool) Result {
	ctx, span := tracer.Start(ctx, "normalize.Normalize",
		trace.WithAttributes(
			attribute.Int("source.bytes", len(src)),
			attribute.Bool("theme.dark", themeIsDark),
		),
	)
	defer span.End()

	var res Result

	// 1. Fence extraction.
	text, fenced := source.ExtractFence(src)
	res.Fenced = fenced

	// 2. Import and fence residue.
	text = stripImportLines(text)

	// 3. Export canonicalization.
	text, exported := canonicalizeExports(text, p.rules.ComponentName)
	text = stripImportLines(text)

	// 4. Hook qualification.
	if p.rules.HookScope != "" && len(p.hooks) > 0 {
		text, res.HooksQualified = p.qualify(ctx, text)
	}

	// 5. Theme literals.
	text = substituteTheme(text, p.rules.Substitutions, themeIsDark)

	// 6. Finalization.
	text, res.Finalization, res.Component = p.finalize(ctx, text, exported)

	res.Snippet = scrub(text)

	span.SetAttributes(
		attribute.Bool("source.fenced", fenced),
		attribute.String("normalize.finalization", string(res.Finalization)),
		attribute.Int("normalize.hooks_qualified", res.HooksQualified),
	)
	return res
}

func (p *Pipeline) qualify(ctx context.Context, text string) (string, int) {
	src := []byte(text)
	tree, err := source.Parse(ctx, p.rules.Dialect, src)
	if err != nil {
		return text, 0
	}
	defer tree.Close()

	// Edits against a tree with errors could land inside misparsed text.
	if tree.RootNode().HasError() {
		return text, 0
	}
	return qualifyHooks(tree.RootNode(), src, p.rules.HookScope, p.hooks)
}

func (p *Pipeline) finalize(ctx context.Context, text, exported string) (string, Finalization, string) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return trimmed, FinalUnchanged, ""
	}

	src := []byte(trimmed)
	tree, err := source.Parse(ctx, p.rules.Dialect, src)
	if err != nil {
		return p.finalizeText(trimmed)
	}
	defer tree.Close()

	root := tree.RootNode()
	s := analyzeShape(root, src, p.rules.RenderFunc)
	return p.finalizeShape(trimmed, s, exported, root)
}

func (p *Pipeline) finalizeShape(text string, s shape, exported string, root *sitter.Node) (string, Finalization, string) {
	if s.hasRender {
		return text, FinalExisting, ""
	}
	if w := s.wrapped; w != nil && !s.declares(p.rules.ComponentName) {
		name := w.name
		if !isComponentName(name) || s.declares(name) {
			name = p.rules.ComponentName
		}
		return appendRender(bindWrapped(text, w, name), p.rules.RenderFunc, name), FinalRendered, name
	}
	if name := chooseComponent(s, p.rules.ComponentName, exported); name != "" {
		return appendRender(text, p.rules.RenderFunc, name), FinalRendered, name
	}
	if s.markup || (root.HasError() && strings.HasPrefix(text, "<")) {
		return wrapMarkup(text), FinalWrapped, ""
	}
	return text, FinalUnchanged, ""
}

// finalizeText is the fallback when the text cannot be parsed at all.
func (p *Pipeline) finalizeText(text string) (string, Finalization, string) {
	if strings.HasPrefix(text, "<") {
		return wrapMarkup(text), FinalWrapped, ""
	}
	return text, FinalUnchanged, ""
}
