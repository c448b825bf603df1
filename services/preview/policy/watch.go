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
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce collapses the burst of events editors emit on save.
const reloadDebounce = 200 * time.Millisecond

// WatchPolicyFile reloads the policy from path whenever it changes.
//
// # Description
//
// Watches the file's directory rather than the file itself so that
// editors which save by rename are still observed. A file that fails to
// parse is logged and the previous policy stays in force. The watch runs
// until ctx is cancelled.
//
// # Outputs
//
//   - error: Non-nil if the watcher could not be started.
func (v *Validator) WatchPolicyFile(ctx context.Context, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolving policy path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating policy watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return fmt.Errorf("watching %s: %w", filepath.Dir(abs), err)
	}

	go v.watchLoop(ctx, watcher, abs)
	return nil
}

func (v *Validator) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, path string) {
	defer watcher.Close()

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(reloadDebounce)
			} else {
				timer.Reset(reloadDebounce)
			}
			timerC = timer.C

		case <-timerC:
			timerC = nil
			v.reload(path)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			v.logger.Warn("policy watcher error", "error", err)
		}
	}
}

func (v *Validator) reload(path string) {
	p, err := LoadPolicy(path)
	if err != nil {
		v.logger.Error("policy reload failed, keeping previous policy", "path", path, "error", err)
		return
	}
	if err := v.SetPolicy(p); err != nil {
		v.logger.Error("policy reload rejected", "path", path, "error", err)
	}
}
