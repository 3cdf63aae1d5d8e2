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

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"nimbusworker/src/config"
	"nimbusworker/src/coordinator"
	"nimbusworker/src/device"
	"nimbusworker/src/logging"
	"nimbusworker/src/model"
	"nimbusworker/src/platform"
	"nimbusworker/src/poller"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	// Generate Unique ID
	workerID := uuid.New().String()
	fmt.Printf("Starting worker with UUID: %s\n", workerID)

	// Setup Graceful Shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Setup OpenTelemetry
	otelShutdown, err := logging.SetupOTelSDK(context.Background())
	if err != nil {
		panic(fmt.Sprintf("failed to setup OTel SDK: %v", err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			fmt.Fprintf(os.Stderr, "OTel shutdown error: %v\n", err)
		}
	}()

	// Setup Worker OpenTelemetry Metrics
	logging.InitializeFloatCounter("worker_tasks_total", "Total number of tasks submitted to the worker", "Task")
	logging.InitializeFloatCounter("worker_tasks_succeeded", "Number of succeeded tasks", "Task")
	logging.InitializeFloatCounter("worker_tasks_failed", "Number of failed tasks", "Task")
	logging.InitializeFloatCounter("worker_tasks_cancelled", "Number of cancelled tasks", "Task")
	logging.InitializeFloatCounter("worker_tasks_stalled", "Number of tasks cancelled for inactivity", "Task")

	// Initialize Platform Client
	client := platform.NewClient(cfg.PlatformBaseURL, cfg.PlatformAPIKey, nil)

	// Resolve the device and wait until it is ready to take tasks
	deviceID, err := client.ResolveDevice(ctx, cfg.DeviceID)
	if err != nil {
		panic(fmt.Sprintf("failed to resolve device: %v", err))
	}
	if _, err := device.StartAndWaitReady(ctx, client, deviceID, device.DefaultReadyPollInterval, device.DefaultReadyTimeout); err != nil {
		panic(fmt.Sprintf("device did not become ready: %v", err))
	}

	// Keep the device alive while the worker runs
	go device.RunKeepAlive(ctx, client, deviceID, cfg.KeepAliveInterval)

	callbacks := poller.Callbacks{
		OnStatusUpdate: func(status model.TaskStatus, message string) {
			logging.Log(fmt.Sprintf("Task status update: [%s] %s", status, message), slog.LevelInfo)
		},
		OnLog: func(line string) {
			logging.Log(line, slog.LevelInfo)
		},
	}
	runner := poller.New(client, deviceID, cfg.PollInterval, cfg.StallTimeout, callbacks)
	coord := coordinator.New(runner)

	// Initialize Stats and Start API Server
	workerstats := NewWorkerStats(workerID, deviceID)
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- StartAPIServer(ctx, cfg.APIPort, coord, workerstats)
	}()

	logging.Log("Worker started. Waiting for tasks (HTTP API + optional task file)...", slog.LevelInfo)

	// One-shot task from file, if configured
	if cfg.TaskFile != "" {
		req, err := config.LoadTaskFile(cfg.TaskFile)
		if err != nil {
			panic(fmt.Sprintf("failed to load task file: %v", err))
		}
		workerstats.UpdateStats(1, 0, 0, 0)
		outcome, err := coord.Submit(ctx, req)
		if err != nil {
			logging.Log(fmt.Sprintf("Task file execution failed: %v", err), slog.LevelError)
		} else {
			switch outcome.Status {
			case model.TaskCompleted:
				workerstats.UpdateStats(0, 1, 0, 0)
				logging.Log(fmt.Sprintf("Task completed successfully. Output: %v", outcome.Output), slog.LevelInfo)
			case model.TaskFailed:
				workerstats.UpdateStats(0, 0, 1, 0)
				logging.Log(fmt.Sprintf("Task failed: %s", outcome.Message), slog.LevelError)
			case model.TaskCancelled:
				workerstats.UpdateStats(0, 0, 0, 1)
				logging.Log(fmt.Sprintf("Task cancelled: %s", outcome.Message), slog.LevelError)
			}
		}
	}

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil {
			panic(fmt.Sprintf("API server failed: %v", err))
		}
	}

	logging.Log("Shutting down worker gracefully...", slog.LevelInfo)
	coord.Stop()
	device.CancelOutstanding(context.Background(), client, deviceID)
}
