// Copyright (c) 2026 Khaled Abbas
//
// This source code is licensed under the Business Source License 1.1.
//
// Change Date: 4 years after the first public release of this version.
// Change License: MIT
//
// On the Change Date, this version of the code automatically converts
// to the MIT License. Prior to that date, use is subject to the
// Additional Use Grant. See the LICENSE file for details.

// Package device manages the lifecycle of the cloud device around task
// execution: waking it up, keeping it alive while the worker runs, and
// cancelling anything still running at shutdown.
package device

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"nimbusworker/src/logging"
	"nimbusworker/src/platform"
)

const (
	DefaultReadyPollInterval = 5 * time.Second
	DefaultReadyTimeout      = 300 * time.Second
)

// StartAndWaitReady starts a cloud device via keep-alive and polls until it
// reports Ready. An Error state or the timeout aborts the wait.
func StartAndWaitReady(ctx context.Context, client *platform.Client, deviceID string, pollInterval, timeout time.Duration) (platform.DeviceInfo, error) {
	if pollInterval <= 0 {
		pollInterval = DefaultReadyPollInterval
	}
	if timeout <= 0 {
		timeout = DefaultReadyTimeout
	}

	logging.Log(fmt.Sprintf("Starting cloud device '%s'", deviceID), slog.LevelInfo)
	start := time.Now()

	for {
		if time.Since(start) > timeout {
			return platform.DeviceInfo{}, fmt.Errorf("timeout waiting for device to be ready after %s", timeout)
		}

		// Keep-alive is what actually wakes a stopped device.
		if err := client.KeepAlive(ctx, deviceID); err != nil {
			return platform.DeviceInfo{}, err
		}
		info, err := client.GetDevice(ctx, deviceID)
		if err != nil {
			return platform.DeviceInfo{}, err
		}

		logging.Log(fmt.Sprintf("Device '%s' status: %s - %s", deviceID, info.State, info.Message), slog.LevelInfo)

		if info.State == platform.DeviceReady {
			logging.Log(fmt.Sprintf("Device '%s' is ready", deviceID), slog.LevelInfo)
			return info, nil
		}
		if info.State == platform.DeviceError {
			return platform.DeviceInfo{}, fmt.Errorf("device entered error state: %s", info.Message)
		}

		select {
		case <-ctx.Done():
			return platform.DeviceInfo{}, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// RunKeepAlive pings the device on a fixed interval so the platform does
// not reclaim it as idle while the worker is up. Blocks until ctx is done;
// run it in its own goroutine.
func RunKeepAlive(ctx context.Context, client *platform.Client, deviceID string, interval time.Duration) {
	if interval <= 0 {
		interval = 1 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			callCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if err := client.KeepAlive(callCtx, deviceID); err != nil {
				logging.Log(fmt.Sprintf("Keep-alive failed for device '%s': %v", deviceID, err), slog.LevelWarn)
			}
			cancel()
		}
	}
}

// CancelOutstanding cancels any task runs still active on the device. Used
// at worker shutdown so the remote side is not left running an orphaned
// task.
func CancelOutstanding(ctx context.Context, client *platform.Client, deviceID string) {
	logging.Log(fmt.Sprintf("Cancelling outstanding task runs on device '%s'...", deviceID), slog.LevelInfo)
	if err := client.CancelTaskRuns(ctx, deviceID); err != nil {
		logging.Log(fmt.Sprintf("Failed to cancel outstanding task runs: %v", err), slog.LevelWarn)
	}
}
