// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package sandbox describes the boundary to the external evaluator that
// renders normalized snippets: the capabilities exposed to generated code
// and the errors the evaluator reports back.
package sandbox

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"sync"
)

// CapabilityKind groups capabilities by what they provide.
type CapabilityKind string

const (
	KindNamespace CapabilityKind = "namespace"
	KindRender    CapabilityKind = "render"
	KindHook      CapabilityKind = "hook"
)

// Capability is one name generated code may resolve at evaluation time.
type Capability struct {
	Name        string         `json:"name"`
	Kind        CapabilityKind `json:"kind"`
	Description string         `json:"description"`
}

// Scope is the read-only mapping from name to capability passed to the
// evaluator alongside a snippet. Dotted names are members reachable from a
// namespace capability, e.g. React.useState.
type Scope struct {
	caps map[string]Capability
}

// NewScope builds a scope. Later duplicates replace earlier ones.
func NewScope(caps ...Capability) *Scope {
	s := &Scope{caps: make(map[string]Capability, len(caps))}
	for _, c := range caps {
		s.caps[c.Name] = c
	}
	return s
}

var (
	defaultScope     *Scope
	defaultScopeOnce sync.Once
)

// DefaultHooks are the hooks the default scope exposes under React.
var DefaultHooks = []string{
	"useState", "useEffect", "useMemo", "useCallback",
	"useRef", "useContext", "useReducer", "useLayoutEffect",
}

// DefaultScope returns the process-wide scope, built once.
func DefaultScope() *Scope {
	defaultScopeOnce.Do(func() {
		defaultScope = PreviewScope("React", "render", DefaultHooks)
	})
	return defaultScope
}

// PreviewScope builds the scope for a namespace object, a render function,
// and the hooks reachable through the namespace. An empty namespace exposes
// the hooks as bare names.
func PreviewScope(namespace, renderFunc string, hooks []string) *Scope {
	caps := []Capability{
		{Name: renderFunc, Kind: KindRender, Description: "mounts a component into the preview"},
	}
	prefix := ""
	if namespace != "" {
		caps = append(caps, Capability{Name: namespace, Kind: KindNamespace, Description: "UI framework namespace"})
		prefix = namespace + "."
	}
	for _, hook := range hooks {
		caps = append(caps, Capability{
			Name:        prefix + hook,
			Kind:        KindHook,
			Description: "framework hook " + hook,
		})
	}
	return NewScope(caps...)
}

// Lookup returns the capability registered under name.
func (s *Scope) Lookup(name string) (Capability, bool) {
	c, ok := s.caps[name]
	return c, ok
}

// Has reports whether name resolves in the scope.
func (s *Scope) Has(name string) bool {
	_, ok := s.caps[name]
	return ok
}

// Names returns every capability name, sorted.
func (s *Scope) Names() []string {
	names := make([]string, 0, len(s.caps))
	for name := range s.caps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Capabilities returns every capability, sorted by name.
func (s *Scope) Capabilities() []Capability {
	names := s.Names()
	out := make([]Capability, 0, len(names))
	for _, name := range names {
		out = append(out, s.caps[name])
	}
	return out
}

// Missing returns the names in want that do not resolve in the scope.
func (s *Scope) Missing(want ...string) []string {
	var missing []string
	for _, name := range want {
		if !s.Has(name) {
			missing = append(missing, name)
		}
	}
	return missing
}

var qualifiedRe = regexp.MustCompile(`\b([A-Za-z_$][\w$]*)\.(use[A-Z][\w$]*)\b`)

// UnresolvedHooks lists qualified hook references in snippet whose name is
// not in the scope, in first-seen order.
func (s *Scope) UnresolvedHooks(snippet, namespace string) []string {
	seen := map[string]bool{}
	var out []string
	for _, m := range qualifiedRe.FindAllStringSubmatch(snippet, -1) {
		if m[1] != namespace {
			continue
		}
		name := m[1] + "." + m[2]
		if seen[name] || s.Has(name) {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

// Evaluator executes a snippet against a scope. It is implemented by the
// external sandbox runtime; an error reports an execution-time failure.
type Evaluator interface {
	Evaluate(ctx context.Context, snippet string, scope *Scope) error
}

// ExecutionError is an evaluation failure reported by the sandbox. The
// message is surfaced verbatim and never retried.
type ExecutionError struct {
	Message string
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("sandbox execution error: %s", e.Message)
}

// NewExecutionError wraps a sandbox message verbatim.
func NewExecutionError(message string) *ExecutionError {
	return &ExecutionError{Message: message}
}
