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
	"fmt"
	"strconv"
)

// ViolationKind classifies a policy violation.
type ViolationKind string

const (
	// ForbiddenIdentifier is a reference to a forbidden global such as eval.
	ForbiddenIdentifier ViolationKind = "ForbiddenIdentifier"

	// ForbiddenMember is an access to a forbidden property or global handle.
	ForbiddenMember ViolationKind = "ForbiddenMember"

	// ForbiddenImport is an import of a module outside the allowlist.
	ForbiddenImport ViolationKind = "ForbiddenImport"
)

// Violation is one breach of the policy found during the AST walk.
//
// Line and Column are 1-based and relative to the code that was parsed,
// which is the first fenced block when the input carries one.
type Violation struct {
	Kind   ViolationKind `json:"kind"`
	Detail string        `json:"detail"`
	Line   int           `json:"line"`
	Column int           `json:"column"`
}

// Reason renders the violation for the {safe, reasons} surface.
func (v Violation) Reason() string {
	var label string
	switch v.Kind {
	case ForbiddenIdentifier:
		label = "Forbidden identifier"
	case ForbiddenMember:
		label = "Forbidden member access"
	case ForbiddenImport:
		label = "Forbidden import"
	default:
		label = string(v.Kind)
	}
	return fmt.Sprintf("%s %s at line %d, column %d", label, strconv.Quote(v.Detail), v.Line, v.Column)
}

// Verdict is the outcome of validating one source text.
//
// Safe is true iff Violations is empty. Violations are in pre-order
// discovery order.
type Verdict struct {
	Safe       bool        `json:"safe"`
	Violations []Violation `json:"violations"`
}

// Reasons returns the human-readable reason for each violation, in order.
func (v *Verdict) Reasons() []string {
	reasons := make([]string, 0, len(v.Violations))
	for _, violation := range v.Violations {
		reasons = append(reasons, violation.Reason())
	}
	return reasons
}

// Has reports whether the verdict contains a violation of kind naming detail.
func (v *Verdict) Has(kind ViolationKind, detail string) bool {
	for _, violation := range v.Violations {
		if violation.Kind == kind && violation.Detail == detail {
			return true
		}
	}
	return false
}

// ParseError reports source text that could not be parsed. It is never a
// verdict: unparseable code is neither safe nor unsafe.
type ParseError struct {
	Line   int
	Column int
	Near   string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse error: %v", e.Err)
	}
	if e.Near != "" {
		return fmt.Sprintf("parse error at line %d, column %d near %q", e.Line, e.Column, e.Near)
	}
	return fmt.Sprintf("parse error at line %d, column %d", e.Line, e.Column)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
