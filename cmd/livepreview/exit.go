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
)

// Process exit codes.
const (
	ExitOK         = 0
	ExitUnsafe     = 1
	ExitParseError = 2
	ExitFailure    = 3
)

// ExitError carries a process exit code out of a command.
//
// # Description
//
// Commands return ExitError when the outcome needs a specific exit code.
// Reported means the command already printed the outcome, so execute
// must not print Err again.
//
// # Example
//
//	return &ExitError{Code: ExitUnsafe, Reported: true}
type ExitError struct {
	// Code is the process exit code.
	Code int

	// Err is the underlying error, if any.
	Err error

	// Reported is true when the outcome was already written.
	Reported bool
}

// Error returns a formatted error message.
func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("exit %d: %v", e.Code, e.Err)
	}
	return fmt.Sprintf("exit %d", e.Code)
}

// Unwrap returns the underlying error.
func (e *ExitError) Unwrap() error {
	return e.Err
}
