// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command livepreview gates and normalizes generated JSX components.
//
// # Usage
//
//	# Run the HTTP service
//	livepreview serve --port 8000
//
//	# Check a snippet (exit 1 when unsafe, 2 when it does not parse)
//	livepreview validate component.jsx --format table
//
//	# Produce the executable snippet
//	cat component.jsx | livepreview normalize --dark
//
// Configuration is read from livepreview.yaml in the working directory or
// ~/.livepreview, then LIVEPREVIEW_* environment variables, then flags.
package main

import (
	"os"
)

func main() {
	os.Exit(execute(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}
