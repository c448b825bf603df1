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
	"path/filepath"
	"strings"
	"time"

	"github.com/AleutianAI/LivePreview/services/orchestrator"
	"github.com/AleutianAI/LivePreview/services/orchestrator/middleware"
	"github.com/AleutianAI/LivePreview/services/preview/normalize"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	configBaseName = "livepreview"
	envPrefix      = "LIVEPREVIEW"

	keyServerPort      = "server.port"
	keyCORSOrigins     = "server.cors_origins"
	keyAuthToken       = "server.auth_token"
	keyRateLimitRPS    = "server.rate_limit.rps"
	keyRateLimitBurst  = "server.rate_limit.burst"
	keyGinMode         = "server.gin_mode"
	keyShutdownTimeout = "server.shutdown_timeout"

	keyPolicyFile  = "policy.file"
	keyPolicyWatch = "policy.watch"

	keyNormalizeProfile = "normalize.profile"

	keyPrefsPath = "prefs.path"

	keySessionIdleTTL       = "session.idle_ttl"
	keySessionSweepInterval = "session.sweep_interval"
	keySessionMaxHistory    = "session.max_history"

	keyLLMModel           = "llm.model"
	keyGenerationEndpoint = "generation.endpoint"

	keyOTelEndpoint    = "telemetry.otlp_endpoint"
	keyTelemetryStdout = "telemetry.stdout"

	keyLogLevel      = "log.level"
	keyLogFile       = "log.file"
	keyLogJSON       = "log.json"
	keyLogMaxSize    = "log.max_size"
	keyLogMaxBackups = "log.max_backups"
	keyLogMaxAge     = "log.max_age"
	keyLogCompress   = "log.compress"

	keyPersonality = "output.personality"
)

// newViper returns a viper instance with every default set and the
// environment bound. It does not read a config file.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	rate := middleware.DefaultRateLimitConfig()

	v.SetDefault(keyServerPort, 8000)
	v.SetDefault(keyCORSOrigins, middleware.DefaultCORSOrigins)
	v.SetDefault(keyAuthToken, "")
	v.SetDefault(keyRateLimitRPS, rate.RPS)
	v.SetDefault(keyRateLimitBurst, rate.Burst)
	v.SetDefault(keyGinMode, "release")
	v.SetDefault(keyShutdownTimeout, 10*time.Second)

	v.SetDefault(keyPolicyFile, "")
	v.SetDefault(keyPolicyWatch, false)
	v.SetDefault(keyNormalizeProfile, normalize.DefaultProfile)
	v.SetDefault(keyPrefsPath, "")

	v.SetDefault(keySessionIdleTTL, 30*time.Minute)
	v.SetDefault(keySessionSweepInterval, time.Minute)
	v.SetDefault(keySessionMaxHistory, 0)

	v.SetDefault(keyLLMModel, "")
	v.SetDefault(keyGenerationEndpoint, "")

	v.SetDefault(keyOTelEndpoint, "")
	v.SetDefault(keyTelemetryStdout, false)

	v.SetDefault(keyLogLevel, "info")
	v.SetDefault(keyLogFile, "")
	v.SetDefault(keyLogJSON, false)
	v.SetDefault(keyLogMaxSize, 10)
	v.SetDefault(keyLogMaxBackups, 3)
	v.SetDefault(keyLogMaxAge, 28)
	v.SetDefault(keyLogCompress, true)

	v.SetDefault(keyPersonality, "")
	return v
}

// readConfig loads an explicit file, or searches . and ~/.livepreview for
// livepreview.yaml. A missing searched file is not an error.
func readConfig(v *viper.Viper, explicit string) error {
	if explicit != "" {
		v.SetConfigFile(explicit)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config %s: %w", explicit, err)
		}
		return nil
	}

	v.SetConfigName(configBaseName)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath(filepath.Join("$HOME", "."+configBaseName))
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("reading config: %w", err)
	}
	return nil
}

// bindFlag wires a cobra flag to a viper key so config and env values feed
// the flag's default and an explicit flag wins.
func bindFlag(v *viper.Viper, flags *pflag.FlagSet, name, key string) {
	flag := flags.Lookup(name)
	if flag == nil {
		cobra.CheckErr(fmt.Errorf("flag for config key %q not found", key))
		return
	}
	cobra.CheckErr(v.BindPFlag(key, flag))
}

// serviceConfig maps viper keys onto the service configuration.
func serviceConfig(v *viper.Viper) orchestrator.Config {
	return orchestrator.Config{
		Port:        v.GetInt(keyServerPort),
		CORSOrigins: v.GetStringSlice(keyCORSOrigins),
		AuthToken:   v.GetString(keyAuthToken),
		RateLimit: middleware.RateLimitConfig{
			RPS:     v.GetFloat64(keyRateLimitRPS),
			Burst:   v.GetInt(keyRateLimitBurst),
			IdleTTL: middleware.DefaultRateLimitConfig().IdleTTL,
		},
		PolicyFile:           v.GetString(keyPolicyFile),
		PolicyWatch:          v.GetBool(keyPolicyWatch),
		NormalizeProfile:     v.GetString(keyNormalizeProfile),
		PrefsPath:            v.GetString(keyPrefsPath),
		SessionIdleTTL:       v.GetDuration(keySessionIdleTTL),
		SessionSweepInterval: v.GetDuration(keySessionSweepInterval),
		SessionMaxHistory:    v.GetInt(keySessionMaxHistory),
		LLMModel:             v.GetString(keyLLMModel),
		GenerationEndpoint:   v.GetString(keyGenerationEndpoint),
		OTelEndpoint:         v.GetString(keyOTelEndpoint),
		TelemetryStdout:      v.GetBool(keyTelemetryStdout),
		GinMode:              v.GetString(keyGinMode),
		ShutdownTimeout:      v.GetDuration(keyShutdownTimeout),
	}
}
