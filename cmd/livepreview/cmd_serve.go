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
	"os"
	"os/signal"
	"syscall"

	"github.com/AleutianAI/LivePreview/services/orchestrator"
	"github.com/spf13/cobra"
)

func (a *app) serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the LivePreview HTTP service",
		Long: `Run the LivePreview HTTP service until interrupted.

Every server setting can come from livepreview.yaml or a LIVEPREVIEW_*
environment variable, for example LIVEPREVIEW_SERVER_PORT or
LIVEPREVIEW_PREFS_PATH.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := serviceConfig(a.v)
			cfg.Logger = a.logger.Slog()

			a.logger.Info("Starting LivePreview",
				"port", cfg.Port,
				"policy_file", cfg.PolicyFile,
				"normalize_profile", cfg.NormalizeProfile,
				"prefs_persistent", cfg.PrefsPath != "",
				"generation_endpoint", cfg.GenerationEndpoint,
				"auth", cfg.AuthToken != "",
			)

			svc, err := orchestrator.New(cfg, nil)
			if err != nil {
				return fmt.Errorf("failed to create service: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return svc.Run(ctx)
		},
	}

	flags := cmd.Flags()
	flags.Int("port", 8000, "HTTP port")
	flags.String("prefs-path", "", "persist client preferences in this directory")
	flags.Bool("watch-policy", false, "reload the policy file when it changes")
	flags.String("otlp-endpoint", "", "OpenTelemetry collector gRPC endpoint")
	bindFlag(a.v, flags, "port", keyServerPort)
	bindFlag(a.v, flags, "prefs-path", keyPrefsPath)
	bindFlag(a.v, flags, "watch-policy", keyPolicyWatch)
	bindFlag(a.v, flags, "otlp-endpoint", keyOTelEndpoint)
	return cmd
}
