// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package policy

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/AleutianAI/LivePreview/services/preview/source"
	"gopkg.in/yaml.v3"
)

//go:embed default_policy.yaml
var defaultPolicyYAML []byte

// ErrInvalidPolicy is returned when a policy document fails validation.
var ErrInvalidPolicy = errors.New("invalid policy")

// Policy is the configurable rule set the validator enforces.
type Policy struct {
	Version              string         `yaml:"version" json:"version"`
	Dialect              source.Dialect `yaml:"dialect" json:"dialect"`
	ForbiddenIdentifiers []string       `yaml:"forbidden_identifiers" json:"forbidden_identifiers"`
	ForbiddenMembers     []string       `yaml:"forbidden_members" json:"forbidden_members"`
	AllowedModules       []string       `yaml:"allowed_modules" json:"allowed_modules"`
}

// DefaultPolicy returns the embedded default policy.
func DefaultPolicy() Policy {
	p, err := ParsePolicy(defaultPolicyYAML)
	if err != nil {
		// The embedded document is covered by tests.
		panic(fmt.Sprintf("embedded default policy: %v", err))
	}
	return p
}

// ParsePolicy decodes and checks a YAML policy document.
func ParsePolicy(data []byte) (Policy, error) {
	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Policy{}, fmt.Errorf("%w: %v", ErrInvalidPolicy, err)
	}
	if err := p.Validate(); err != nil {
		return Policy{}, err
	}
	return p, nil
}

// LoadPolicy reads a policy document from disk.
func LoadPolicy(path string) (Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("reading policy %s: %w", path, err)
	}
	p, err := ParsePolicy(data)
	if err != nil {
		return Policy{}, fmt.Errorf("policy %s: %w", path, err)
	}
	return p, nil
}

// Validate checks that every list entry is a usable name.
func (p Policy) Validate() error {
	if p.Dialect != "" && !p.Dialect.Valid() {
		return fmt.Errorf("%w: unknown dialect %q", ErrInvalidPolicy, p.Dialect)
	}
	lists := map[string][]string{
		"forbidden_identifiers": p.ForbiddenIdentifiers,
		"forbidden_members":     p.ForbiddenMembers,
		"allowed_modules":       p.AllowedModules,
	}
	for field, names := range lists {
		for i, name := range names {
			if strings.TrimSpace(name) == "" {
				return fmt.Errorf("%w: %s[%d] is empty", ErrInvalidPolicy, field, i)
			}
		}
	}
	return nil
}

// Marshal renders the policy as YAML.
func (p Policy) Marshal() ([]byte, error) {
	return yaml.Marshal(p)
}

// ruleset is the compiled, read-only form of a Policy.
type ruleset struct {
	policy      Policy
	identifiers map[string]struct{}
	members     map[string]struct{}
	modules     map[string]struct{}
}

func compile(p Policy) (*ruleset, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if p.Dialect == "" {
		p.Dialect = source.DialectJSX
	}
	return &ruleset{
		policy:      p,
		identifiers: toSet(p.ForbiddenIdentifiers),
		members:     toSet(p.ForbiddenMembers),
		modules:     toSet(p.AllowedModules),
	}, nil
}

func toSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, name := range names {
		set[strings.TrimSpace(name)] = struct{}{}
	}
	return set
}

// classify returns the violation kind for a referenced name, if any.
// The identifier set wins when a name appears in both.
func (r *ruleset) classify(name string) (ViolationKind, bool) {
	if _, ok := r.identifiers[name]; ok {
		return ForbiddenIdentifier, true
	}
	if _, ok := r.members[name]; ok {
		return ForbiddenMember, true
	}
	return "", false
}

func (r *ruleset) moduleAllowed(spec string) bool {
	_, ok := r.modules[spec]
	return ok
}
