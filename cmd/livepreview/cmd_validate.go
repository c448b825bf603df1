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
	"errors"
	"fmt"
	"strings"

	"github.com/AleutianAI/LivePreview/services/preview/policy"
	"github.com/AleutianAI/LivePreview/services/preview/sandbox"
	"github.com/spf13/cobra"
)

func (a *app) validateCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "validate [file|-]",
		Short: "Check source against the policy",
		Long: `Check source against the policy and print the verdict.

Exit codes: 0 safe, 1 unsafe, 2 the source does not parse.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}
			src, err := readSource(args, a.stdin)
			if err != nil {
				return err
			}
			validator, err := a.validator()
			if err != nil {
				return err
			}

			verdict, err := validator.Validate(cmd.Context(), src)
			var perr *policy.ParseError
			if errors.As(err, &perr) {
				return a.renderParseError(format, perr)
			}
			if err != nil {
				return err
			}
			return a.renderVerdict(format, verdict)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", formatJSON, "output format: json, text or table")
	return cmd
}

func (a *app) normalizeCmd() *cobra.Command {
	var (
		dark   bool
		format string
	)

	cmd := &cobra.Command{
		Use:   "normalize [file|-]",
		Short: "Rewrite source into an executable preview snippet",
		Long: `Rewrite source into a snippet that renders itself in the preview sandbox.

Normalization does not check the policy; run validate first for untrusted
source.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != formatJSON && format != formatText {
				return fmt.Errorf("unknown format %q (want json or text)", format)
			}
			src, err := readSource(args, a.stdin)
			if err != nil {
				return err
			}
			if strings.TrimSpace(src) == "" {
				return errors.New("source is empty")
			}
			pipeline, err := a.pipeline()
			if err != nil {
				return err
			}

			result := pipeline.NormalizeDetailed(cmd.Context(), src, dark)
			rules := pipeline.Rules()
			if rules.HookScope != "" {
				scope := sandbox.PreviewScope(rules.HookScope, rules.RenderFunc, sandbox.DefaultHooks)
				for _, hook := range scope.UnresolvedHooks(result.Snippet, rules.HookScope) {
					a.logger.Warn("hook is not exposed by the preview scope", "hook", hook)
				}
			}

			if format == formatJSON {
				return a.writeJSON(result)
			}
			_, err = fmt.Fprintln(a.stdout, strings.TrimRight(result.Snippet, "\n"))
			return err
		},
	}
	cmd.Flags().BoolVar(&dark, "dark", false, "apply the dark theme substitutions")
	cmd.Flags().StringVarP(&format, "format", "f", formatText, "output format: text or json")
	cmd.Flags().String("profile", "", "normalization profile (default: standard)")
	bindFlag(a.v, cmd.Flags(), "profile", keyNormalizeProfile)
	return cmd
}

func (a *app) policyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "policy",
		Short: "Print the effective policy as YAML",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			validator, err := a.validator()
			if err != nil {
				return err
			}
			data, err := validator.Policy().Marshal()
			if err != nil {
				return err
			}
			_, err = a.stdout.Write(data)
			return err
		},
	}
}
