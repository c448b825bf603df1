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
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/AleutianAI/LivePreview/services/llm"
	"github.com/AleutianAI/LivePreview/services/policy_engine"
	"github.com/AleutianAI/LivePreview/services/preview/generation"
	"github.com/AleutianAI/LivePreview/services/preview/genclient"
	"github.com/AleutianAI/LivePreview/services/preview/normalize"
	"github.com/AleutianAI/LivePreview/services/preview/policy"
	"github.com/spf13/cobra"
)

// generateOutput is the JSON shape printed by generate.
type generateOutput struct {
	Source  generation.Source `json:"source"`
	Notice  string            `json:"notice,omitempty"`
	Code    string            `json:"code"`
	Safe    bool              `json:"safe"`
	Reasons []string          `json:"reasons"`
	Result  *normalize.Result `json:"result,omitempty"`
}

func (a *app) generateCmd() *cobra.Command {
	var (
		prompt    string
		imagePath string
		dark      bool
		format    string
		timeout   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a component, then validate and normalize it",
		Long: `Generate a component from a prompt or a screenshot, then run it through
the same gate as a submission.

With --endpoint (or generation.endpoint) the remote generation service is
called; otherwise the in-process generator is used. Prompts carrying
secrets are refused before anything is sent.

Exit codes: 0 accepted, 1 the generated code is unsafe, 2 it does not
parse, 3 generation failed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if format != formatJSON && format != formatText {
				return fmt.Errorf("unknown format %q (want json or text)", format)
			}
			req, err := buildRequest(prompt, imagePath)
			if err != nil {
				return err
			}

			if req.Prompt != "" {
				engine, err := policy_engine.NewPolicyEngine()
				if err != nil {
					return err
				}
				screening := engine.Screen(req.Prompt)
				if screening.Blocked {
					return a.renderBlocked(format, screening)
				}
				req.Prompt = screening.Prompt
			}

			gen, err := a.generator()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			result, err := gen.Generate(ctx, req)
			if err != nil {
				return &ExitError{Code: ExitFailure, Err: describeGenerationError(err)}
			}
			if result.Notice != "" {
				a.printer.Warning(result.Notice)
			}
			return a.gateGenerated(cmd.Context(), format, dark, result)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&prompt, "prompt", "p", "", "describe the component to generate")
	flags.StringVar(&imagePath, "image", "", "generate from a screenshot instead of a prompt")
	flags.BoolVar(&dark, "dark", false, "apply the dark theme substitutions")
	flags.StringVarP(&format, "format", "f", formatText, "output format: text or json")
	flags.DurationVar(&timeout, "timeout", genclient.DefaultTimeout, "bound on the generation round trip")
	flags.String("endpoint", "", "remote generation service base URL")
	bindFlag(a.v, flags, "endpoint", keyGenerationEndpoint)
	return cmd
}

func buildRequest(prompt, imagePath string) (generation.Request, error) {
	if imagePath == "" {
		return generation.Request{Prompt: prompt}, generation.Request{Prompt: prompt}.Validate()
	}
	if strings.TrimSpace(prompt) != "" {
		return generation.Request{}, errors.New("use either --prompt or --image, not both")
	}
	data, err := os.ReadFile(imagePath)
	if err != nil {
		return generation.Request{}, fmt.Errorf("reading image: %w", err)
	}
	req := generation.Request{Image: data, ImageName: filepath.Base(imagePath)}
	return req, req.Validate()
}

// generator returns the remote client when an endpoint is configured,
// otherwise the in-process generator.
func (a *app) generator() (generation.Generator, error) {
	if endpoint := a.v.GetString(keyGenerationEndpoint); endpoint != "" {
		return genclient.New(endpoint)
	}
	return llm.NewGenerator(llm.Config{
		Model:  a.v.GetString(keyLLMModel),
		Logger: a.logger.Slog(),
	}), nil
}

// gateGenerated validates generated code, normalizes it, and checks the
// normalized snippet again.
func (a *app) gateGenerated(ctx context.Context, format string, dark bool, result *generation.Result) error {
	validator, err := a.validator()
	if err != nil {
		return err
	}
	verdict, err := validator.Validate(ctx, result.Code)
	var perr *policy.ParseError
	if errors.As(err, &perr) {
		return a.renderParseError(format, perr)
	}
	if err != nil {
		return err
	}

	out := generateOutput{
		Source:  result.Source,
		Notice:  result.Notice,
		Code:    result.Code,
		Safe:    verdict.Safe,
		Reasons: verdict.Reasons(),
	}
	if !verdict.Safe {
		if format == formatJSON {
			if err := a.writeJSON(out); err != nil {
				return err
			}
			return &ExitError{Code: ExitUnsafe, Reported: true}
		}
		return a.renderVerdict(formatText, verdict)
	}

	pipeline, err := a.pipeline()
	if err != nil {
		return err
	}
	normalized := pipeline.NormalizeDetailed(ctx, result.Code, dark)
	snippetVerdict, err := validator.ValidateSnippet(ctx, normalized.Snippet)
	if errors.As(err, &perr) {
		return a.renderParseError(format, perr)
	}
	if err != nil {
		return err
	}
	if !snippetVerdict.Safe {
		if format == formatJSON {
			out.Safe = false
			out.Reasons = snippetVerdict.Reasons()
			if err := a.writeJSON(out); err != nil {
				return err
			}
			return &ExitError{Code: ExitUnsafe, Reported: true}
		}
		return a.renderVerdict(formatText, snippetVerdict)
	}
	if format == formatJSON {
		out.Result = &normalized
		return a.writeJSON(out)
	}
	a.printer.Box("Snippet", normalized.Snippet)
	return nil
}

// describeGenerationError adds the failure class to the message.
func describeGenerationError(err error) error {
	var transport *generation.TransportError
	var genErr *generation.GenerationError
	switch {
	case errors.As(err, &transport):
		return fmt.Errorf("generation service unavailable: %w", err)
	case errors.As(err, &genErr):
		return fmt.Errorf("generation failed: %w", err)
	default:
		return err
	}
}
