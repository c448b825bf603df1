// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package policy_engine screens generation prompts before they are sent to
// a model: markup is stripped and the text is scanned for credentials and
// personal data.
package policy_engine

import (
	"fmt"
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/LivePreview/services/policy_engine/enforcement"
)

// PolicyEngine holds the compiled screening rules.
//
// Thread Safety: Safe for concurrent use after construction.
type PolicyEngine struct {
	Classifiers []Classification
	sanitizer   *bluemonday.Policy
}

// NewPolicyEngine loads the embedded screening patterns.
//
// It performs the following operations:
// 1. Unmarshals the embedded YAML data.
// 2. Compiles all regex patterns.
// 3. Sorts classifications by priority.
//
// Returns an error if the embedded YAML is malformed or contains invalid regex.
func NewPolicyEngine() (*PolicyEngine, error) {
	return NewPolicyEngineFromYAML(enforcement.PromptScreeningPatterns)
}

// NewPolicyEngineFromYAML builds an engine from a pattern file.
func NewPolicyEngineFromYAML(data []byte) (*PolicyEngine, error) {
	var file PatternFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to unmarshal the screening patterns: %w", err)
	}
	if err := file.compile(); err != nil {
		return nil, fmt.Errorf("failed to compile a regex %w", err)
	}
	file.sortByPriority()

	return &PolicyEngine{
		Classifiers: file.Classifications,
		sanitizer:   bluemonday.StrictPolicy(),
	}, nil
}

// ClassifyData returns the name of the highest-priority classification
// matching data, or "public".
func (e *PolicyEngine) ClassifyData(data []byte) string {
	for _, classifier := range e.Classifiers {
		for _, pattern := range classifier.Patterns {
			if pattern.compiled.Match(data) {
				return classifier.Name
			}
		}
	}
	return "public"
}

// ScanPrompt reports every pattern match in text, line by line, in
// classification priority order within a line.
func (e *PolicyEngine) ScanPrompt(text string) []Finding {
	var findings []Finding
	for lineNum, line := range strings.Split(text, "\n") {
		for _, classifier := range e.Classifiers {
			for _, pattern := range classifier.Patterns {
				match := pattern.compiled.FindString(line)
				if match == "" {
					continue
				}
				findings = append(findings, Finding{
					LineNumber:         lineNum + 1,
					Redacted:           redact(strings.TrimSpace(match)),
					ClassificationName: classifier.Name,
					PatternId:          pattern.Id,
					PatternDescription: pattern.Description,
					Confidence:         pattern.Confidence,
					Blocking:           classifier.Block,
				})
			}
		}
	}
	return findings
}

// Sanitize removes markup from a prompt. Entities are decoded again so
// quotes and ampersands in plain prose survive.
func (e *PolicyEngine) Sanitize(prompt string) string {
	return strings.TrimSpace(html.UnescapeString(e.sanitizer.Sanitize(prompt)))
}

// Screen sanitizes and scans a prompt. Blocked is true when any finding
// belongs to a blocking classification.
func (e *PolicyEngine) Screen(prompt string) Screening {
	clean := e.Sanitize(prompt)
	findings := e.ScanPrompt(clean)
	s := Screening{Prompt: clean, Findings: findings}
	if s.Findings == nil {
		s.Findings = []Finding{}
	}
	for _, f := range findings {
		if f.Blocking {
			s.Blocked = true
			break
		}
	}
	return s
}

// redact keeps the first four characters of a match.
func redact(match string) string {
	const keep = 4
	if len(match) <= keep {
		return strings.Repeat("*", len(match))
	}
	return match[:keep] + strings.Repeat("*", len(match)-keep)
}
