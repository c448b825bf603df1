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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/AleutianAI/LivePreview/pkg/logging"
	"github.com/AleutianAI/LivePreview/pkg/ux"
	"github.com/AleutianAI/LivePreview/services/preview/normalize"
	"github.com/AleutianAI/LivePreview/services/preview/policy"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// app holds what every command shares: configuration, streams, the logger
// and the printer. It is built fresh per execution so tests stay isolated.
type app struct {
	v       *viper.Viper
	stdin   io.Reader
	stdout  io.Writer
	stderr  io.Writer
	logger  *logging.Logger
	printer *ux.Printer
}

const rootLong = `livepreview gates and normalizes generated JSX components.

Source is checked against a policy of forbidden identifiers, members and
imports. Accepted source is rewritten into a snippet that renders itself in
a preview sandbox. The serve command exposes the same gate over HTTP with
per-session snapshot history.`

// execute runs the CLI and returns the process exit code.
func execute(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	a := &app{v: newViper(), stdin: stdin, stdout: stdout, stderr: stderr}
	root := a.rootCmd()
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.Execute()
	if a.logger != nil {
		_ = a.logger.Close()
	}
	if err == nil {
		return ExitOK
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		if !exitErr.Reported && exitErr.Err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", exitErr.Err)
		}
		return exitErr.Code
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return ExitFailure
}

func (a *app) rootCmd() *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:           "livepreview",
		Short:         "Gate and normalize generated JSX components",
		Long:          rootLong,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return a.setup(configFile)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "config file (default: ./livepreview.yaml or ~/.livepreview/livepreview.yaml)")
	flags.String("log-level", "info", "log level: debug, info, warn, error")
	flags.String("log-file", "", "also write JSON logs to this rotating file")
	flags.Bool("log-json", false, "write stderr logs as JSON")
	flags.String("personality", "", "output style: standard, minimal, machine (default: detect terminal)")
	flags.String("policy", "", "policy YAML file (default: built-in policy)")
	bindFlag(a.v, flags, "log-level", keyLogLevel)
	bindFlag(a.v, flags, "log-file", keyLogFile)
	bindFlag(a.v, flags, "log-json", keyLogJSON)
	bindFlag(a.v, flags, "personality", keyPersonality)
	bindFlag(a.v, flags, "policy", keyPolicyFile)

	root.AddCommand(
		a.serveCmd(),
		a.validateCmd(),
		a.normalizeCmd(),
		a.generateCmd(),
		a.policyCmd(),
	)
	return root
}

// setup reads configuration and builds the logger and printer.
func (a *app) setup(configFile string) error {
	if err := readConfig(a.v, configFile); err != nil {
		return err
	}

	level, err := logging.ParseLevel(a.v.GetString(keyLogLevel))
	if err != nil {
		return err
	}
	a.logger = logging.New(logging.Config{
		Level:      level,
		Service:    "livepreview",
		JSON:       a.v.GetBool(keyLogJSON),
		File:       a.v.GetString(keyLogFile),
		MaxSizeMB:  a.v.GetInt(keyLogMaxSize),
		MaxBackups: a.v.GetInt(keyLogMaxBackups),
		MaxAgeDays: a.v.GetInt(keyLogMaxAge),
		Compress:   a.v.GetBool(keyLogCompress),
		Stderr:     a.stderr,
	})
	slog.SetDefault(a.logger.Slog())

	personality := ux.PersonalityMachine
	if p := a.v.GetString(keyPersonality); p != "" {
		personality = ux.ParsePersonalityLevel(p)
	} else if f, ok := a.stdout.(*os.File); ok {
		personality = ux.DetectPersonality(f)
	}
	a.printer = ux.NewPrinter(a.stdout, a.stderr, personality)
	return nil
}

// validator builds a validator from the configured policy.
func (a *app) validator() (*policy.Validator, error) {
	p := policy.DefaultPolicy()
	if path := a.v.GetString(keyPolicyFile); path != "" {
		loaded, err := policy.LoadPolicy(path)
		if err != nil {
			return nil, err
		}
		p = loaded
	}
	return policy.NewValidator(p, a.logger.Slog())
}

// pipeline builds the normalization pipeline for the configured profile.
func (a *app) pipeline() (*normalize.Pipeline, error) {
	rules, err := normalize.Profile(a.v.GetString(keyNormalizeProfile))
	if err != nil {
		return nil, err
	}
	return normalize.New(rules)
}

// writeJSON prints v as indented JSON on stdout.
func (a *app) writeJSON(v any) error {
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// readSource reads the file named by args[0], or stdin when there is no
// argument or it is "-".
func readSource(args []string, stdin io.Reader) (string, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", args[0], err)
	}
	return string(data), nil
}
