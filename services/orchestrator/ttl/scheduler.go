// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ttl evicts preview sessions that have been idle for too long.
package ttl

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// =============================================================================
// Interfaces
// =============================================================================

// SessionSweeper evicts idle sessions.
//
// The submission orchestrator implements this; the scheduler only decides
// when to call it.
type SessionSweeper interface {
	// SweepIdle evicts sessions untouched for longer than idle and returns
	// their IDs.
	SweepIdle(idle time.Duration) []string
}

// Scheduler runs periodic sweeps in the background.
//
// # Thread Safety
//
// All methods are safe for concurrent use.
type Scheduler interface {
	// Start begins sweeping. Returns an error if already running.
	Start(ctx context.Context) error

	// Stop ends sweeping. Safe to call multiple times.
	Stop() error

	// RunNow performs one sweep immediately.
	RunNow() CleanupResult
}

// CleanupResult summarizes one sweep.
type CleanupResult struct {
	StartTime time.Time
	Duration  time.Duration
	Evicted   []string
}

// =============================================================================
// Scheduler Implementation
// =============================================================================

// SchedulerConfig holds configuration for the idle-session scheduler.
//
// # Fields
//
//   - Interval: How often to sweep. Default: 1 minute.
//   - IdleTTL: How long a session may sit untouched. Default: 30 minutes.
type SchedulerConfig struct {
	Interval time.Duration
	IdleTTL  time.Duration
}

// DefaultSchedulerConfig returns the production defaults.
//
// # Examples
//
//	config := DefaultSchedulerConfig()
//	config.IdleTTL = 10 * time.Minute
//	scheduler := NewScheduler(orchestrator, config, logger)
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Interval: 1 * time.Minute,
		IdleTTL:  30 * time.Minute,
	}
}

// sessionScheduler implements Scheduler with the ticker + done channel
// pattern.
type sessionScheduler struct {
	sweeper SessionSweeper
	config  SchedulerConfig
	logger  *slog.Logger

	mu      sync.Mutex
	done    chan struct{}
	stopped chan struct{}
	running bool
}

// NewScheduler creates a scheduler. Zero config fields take defaults.
func NewScheduler(sweeper SessionSweeper, config SchedulerConfig, logger *slog.Logger) Scheduler {
	defaults := DefaultSchedulerConfig()
	if config.Interval <= 0 {
		config.Interval = defaults.Interval
	}
	if config.IdleTTL <= 0 {
		config.IdleTTL = defaults.IdleTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &sessionScheduler{
		sweeper: sweeper,
		config:  config,
		logger:  logger.With("component", "ttl"),
	}
}

// Start begins the background sweep loop.
//
// # Inputs
//
//   - ctx: When cancelled, the loop stops.
//
// # Outputs
//
//   - error: Non-nil if the scheduler is already running.
func (s *sessionScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("scheduler is already running")
	}
	s.running = true
	s.done = make(chan struct{})
	s.stopped = make(chan struct{})

	s.logger.Info("session TTL scheduler starting",
		"interval", s.config.Interval.String(),
		"idle_ttl", s.config.IdleTTL.String(),
	)
	go s.runLoop(ctx, s.done, s.stopped)
	return nil
}

// Stop signals the loop and waits for the current sweep to finish.
func (s *sessionScheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.done)
	stopped := s.stopped
	s.mu.Unlock()

	<-stopped
	s.logger.Info("session TTL scheduler stopped")
	return nil
}

// RunNow performs one sweep without affecting the schedule.
func (s *sessionScheduler) RunNow() CleanupResult {
	result := CleanupResult{StartTime: time.Now()}
	result.Evicted = s.sweeper.SweepIdle(s.config.IdleTTL)
	result.Duration = time.Since(result.StartTime)
	return result
}

// =============================================================================
// Internal Methods
// =============================================================================

func (s *sessionScheduler) runLoop(ctx context.Context, done <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("session TTL scheduler stopped (context cancelled)")
			return
		case <-done:
			return
		case <-ticker.C:
			s.executeCleanup()
		}
	}
}

func (s *sessionScheduler) executeCleanup() {
	result := s.RunNow()
	if len(result.Evicted) > 0 {
		s.logger.Info("idle sessions evicted",
			"count", len(result.Evicted),
			"duration_ms", result.Duration.Milliseconds(),
		)
		return
	}
	s.logger.Debug("session sweep completed (no idle sessions)")
}
