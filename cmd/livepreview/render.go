// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"strconv"

	"github.com/AleutianAI/LivePreview/services/orchestrator/datatypes"
	"github.com/AleutianAI/LivePreview/services/orchestrator/handlers"
	"github.com/AleutianAI/LivePreview/services/policy_engine"
	"github.com/AleutianAI/LivePreview/services/preview/policy"
)

// Output formats for commands that report a verdict.
const (
	formatJSON  = "json"
	formatText  = "text"
	formatTable = "table"
)

func checkFormat(format string) error {
	switch format {
	case formatJSON, formatText, formatTable:
		return nil
	default:
		return fmt.Errorf("unknown format %q (want json, text or table)", format)
	}
}

// renderVerdict prints a verdict and returns the exit error for an unsafe
// one.
func (a *app) renderVerdict(format string, verdict *policy.Verdict) error {
	switch format {
	case formatJSON:
		if err := a.writeJSON(datatypes.NewValidateResponse(verdict)); err != nil {
			return err
		}
	case formatTable:
		if verdict.Safe {
			a.printer.Success("safe")
			break
		}
		a.printer.Error(fmt.Sprintf("rejected: %d violation(s)", len(verdict.Violations)))
		rows := make([][]string, 0, len(verdict.Violations))
		for _, v := range verdict.Violations {
			rows = append(rows, []string{string(v.Kind), v.Detail, strconv.Itoa(v.Line), strconv.Itoa(v.Column)})
		}
		a.printer.Table([]string{"Kind", "Detail", "Line", "Column"}, rows)
	default:
		if verdict.Safe {
			a.printer.Success("safe")
			break
		}
		a.printer.Error("rejected")
		a.printer.Bullets(verdict.Reasons())
	}

	if !verdict.Safe {
		return &ExitError{Code: ExitUnsafe, Reported: true}
	}
	return nil
}

// renderParseError prints a parse failure and returns its exit error.
func (a *app) renderParseError(format string, perr *policy.ParseError) error {
	if format == formatJSON {
		if err := a.writeJSON(datatypes.ErrorResponse{
			Error:  perr.Error(),
			Code:   handlers.CodeParseError,
			Line:   perr.Line,
			Column: perr.Column,
		}); err != nil {
			return err
		}
	} else {
		a.printer.Error(perr.Error())
	}
	return &ExitError{Code: ExitParseError, Err: perr, Reported: true}
}

// renderBlocked prints the screening findings that stopped a prompt.
func (a *app) renderBlocked(format string, screening policy_engine.Screening) error {
	if format == formatJSON {
		if err := a.writeJSON(datatypes.ErrorResponse{
			Error:    "prompt contains sensitive data",
			Code:     handlers.CodePromptBlocked,
			Findings: screening.Findings,
		}); err != nil {
			return err
		}
	} else {
		a.printer.Error("prompt contains sensitive data")
		rows := make([][]string, 0, len(screening.Findings))
		for _, f := range screening.Findings {
			if !f.Blocking {
				continue
			}
			rows = append(rows, []string{f.ClassificationName, f.PatternId, strconv.Itoa(f.LineNumber), f.Redacted})
		}
		a.printer.Table([]string{"Classification", "Pattern", "Line", "Match"}, rows)
	}
	return &ExitError{Code: ExitFailure, Reported: true}
}
