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
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/AleutianAI/LivePreview/services/preview/source"
	"gopkg.in/yaml.v3"
)

//go:embed profiles.yaml
var profilesYAML []byte

// DefaultProfile is the profile used when none is configured.
const DefaultProfile = "standard"

// Theme values accepted in a Substitution.
const (
	ThemeDark  = "dark"
	ThemeLight = "light"
)

// ErrInvalidRules is returned for an unusable rule table.
var ErrInvalidRules = errors.New("invalid normalization rules")

// ErrUnknownProfile is returned by Profile for an undefined name.
var ErrUnknownProfile = errors.New("unknown normalization profile")

// Substitution replaces one utility-class literal under one theme.
type Substitution struct {
	Theme string `yaml:"theme" json:"theme"`
	From  string `yaml:"from" json:"from"`
	To    string `yaml:"to" json:"to"`
}

// Rules is the configuration table driving the pipeline.
type Rules struct {
	Dialect       source.Dialect `yaml:"dialect" json:"dialect"`
	ComponentName string         `yaml:"component_name" json:"component_name"`
	RenderFunc    string         `yaml:"render_func" json:"render_func"`

	// HookScope is the runtime-scope object hooks are qualified with.
	// Empty disables hook qualification.
	HookScope string   `yaml:"hook_scope" json:"hook_scope"`
	HookNames []string `yaml:"hook_names" json:"hook_names"`

	Substitutions []Substitution `yaml:"substitutions" json:"substitutions"`
}

type profileDocument struct {
	Profiles map[string]Rules `yaml:"profiles"`
}

// Profile returns the named built-in rule table.
func Profile(name string) (Rules, error) {
	var doc profileDocument
	if err := yaml.Unmarshal(profilesYAML, &doc); err != nil {
		return Rules{}, fmt.Errorf("decoding embedded profiles: %w", err)
	}
	rules, ok := doc.Profiles[name]
	if !ok {
		return Rules{}, fmt.Errorf("%w: %q", ErrUnknownProfile, name)
	}
	return rules, rules.Validate()
}

// ProfileNames lists the built-in profiles in sorted order.
func ProfileNames() []string {
	var doc profileDocument
	if err := yaml.Unmarshal(profilesYAML, &doc); err != nil {
		return nil
	}
	names := make([]string, 0, len(doc.Profiles))
	for name := range doc.Profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRules returns the standard profile.
func DefaultRules() Rules {
	rules, err := Profile(DefaultProfile)
	if err != nil {
		panic(fmt.Sprintf("embedded profile %s: %v", DefaultProfile, err))
	}
	return rules
}

// ParseRules decodes a single rule table from YAML.
func ParseRules(data []byte) (Rules, error) {
	var rules Rules
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return Rules{}, fmt.Errorf("%w: %v", ErrInvalidRules, err)
	}
	return rules, rules.Validate()
}

// Validate checks the rule table.
func (r Rules) Validate() error {
	if r.Dialect != "" && !r.Dialect.Valid() {
		return fmt.Errorf("%w: unknown dialect %q", ErrInvalidRules, r.Dialect)
	}
	if !isIdentifier(r.ComponentName) {
		return fmt.Errorf("%w: component_name %q is not an identifier", ErrInvalidRules, r.ComponentName)
	}
	if !isIdentifier(r.RenderFunc) {
		return fmt.Errorf("%w: render_func %q is not an identifier", ErrInvalidRules, r.RenderFunc)
	}
	if r.HookScope != "" && !isIdentifier(r.HookScope) {
		return fmt.Errorf("%w: hook_scope %q is not an identifier", ErrInvalidRules, r.HookScope)
	}
	for _, name := range r.HookNames {
		if !isIdentifier(name) {
			return fmt.Errorf("%w: hook name %q is not an identifier", ErrInvalidRules, name)
		}
	}
	for i, sub := range r.Substitutions {
		if sub.Theme != ThemeDark && sub.Theme != ThemeLight {
			return fmt.Errorf("%w: substitutions[%d] theme %q", ErrInvalidRules, i, sub.Theme)
		}
		if sub.From == "" || strings.ContainsAny(sub.From, " \t\n") {
			return fmt.Errorf("%w: substitutions[%d] from %q", ErrInvalidRules, i, sub.From)
		}
	}
	return nil
}

// QualifiedHooks returns every hook name in its qualified form.
func (r Rules) QualifiedHooks() []string {
	if r.HookScope == "" {
		return nil
	}
	out := make([]string, 0, len(r.HookNames))
	for _, name := range r.HookNames {
		out = append(out, r.HookScope+"."+name)
	}
	return out
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isIdentByte(s[i]) || (i == 0 && s[i] >= '0' && s[i] <= '9') {
			return false
		}
	}
	return true
}

func isIdentByte(b byte) bool {
	return b == '_' || b == '$' ||
		(b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}
