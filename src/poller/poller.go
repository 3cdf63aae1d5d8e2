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

// Package poller drives one remote task execution to completion: it
// triggers the run on the platform, then polls status and the two event
// timelines until a terminal status, a stall, or local cancellation.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"nimbusworker/src/logging"
	"nimbusworker/src/model"
	"nimbusworker/src/platform"
	"nimbusworker/src/timeline"
)

const (
	DefaultPollInterval = 2 * time.Second
	DefaultStallTimeout = 300 * time.Second

	cancelTimeout = 30 * time.Second
)

// Callbacks are invoked synchronously from inside the poll loop. They must
// not block for long; a panicking callback is recovered and logged and
// never aborts the loop.
type Callbacks struct {
	OnStatusUpdate func(status model.TaskStatus, message string)
	OnLog          func(line string)
}

type Poller struct {
	client       *platform.Client
	deviceID     string
	interval     time.Duration
	stallTimeout time.Duration
	callbacks    Callbacks
}

func New(client *platform.Client, deviceID string, interval, stallTimeout time.Duration, callbacks Callbacks) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if stallTimeout <= 0 {
		stallTimeout = DefaultStallTimeout
	}
	return &Poller{
		client:       client,
		deviceID:     deviceID,
		interval:     interval,
		stallTimeout: stallTimeout,
		callbacks:    callbacks,
	}
}

// Run triggers the task on the platform and polls until a terminal outcome.
// Trigger and poll failures are fatal and propagate without retry. When ctx
// is cancelled after the trigger succeeded, one best-effort remote cancel is
// issued so the run is not orphaned, and the cancellation error still
// propagates to the caller.
func (p *Poller) Run(ctx context.Context, req model.TaskRequest) (model.Outcome, error) {
	ctx, span := logging.Tracer().Start(ctx, "task-run")
	defer span.End()

	logging.Log(fmt.Sprintf("Starting task on device '%s'", p.deviceID), slog.LevelInfo)

	taskRunID, err := p.client.TriggerTaskRun(ctx, p.deviceID, req)
	if err != nil {
		return model.Outcome{}, err
	}
	span.SetAttributes(attribute.String("task_run_id", taskRunID))
	logging.Log(fmt.Sprintf("Task run started: %s", taskRunID), slog.LevelInfo)

	outcome, err := p.poll(ctx, taskRunID)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			logging.Log("Task cancelled locally, propagating to the platform", slog.LevelInfo)
			p.cancelRemote()
		}
		return model.Outcome{}, err
	}
	return outcome, nil
}

func (p *Poller) poll(ctx context.Context, taskRunID string) (model.Outcome, error) {
	var lastPoll *time.Time
	lastActivity := time.Now()
	var notified model.TaskStatus
	hasNotified := false

	for {
		now := time.Now()
		if now.Sub(lastActivity) > p.stallTimeout {
			msg := fmt.Sprintf("Task stalled: no activity for %.0f seconds", p.stallTimeout.Seconds())
			logging.Log(fmt.Sprintf("%s (task_run_id: %s)", msg, taskRunID), slog.LevelError)
			logging.AddCounter("worker_tasks_stalled", 1)
			p.cancelRemote()
			return model.Outcome{Status: model.TaskCancelled, Message: msg}, nil
		}

		run, err := p.client.GetTaskRun(ctx, taskRunID)
		if err != nil {
			return model.Outcome{}, err
		}

		if !hasNotified || run.Status != notified {
			notified = run.Status
			hasNotified = true
			lastActivity = now
			p.notifyStatus(run.Status, run.StatusMessage)
		}

		planItems, err := p.client.PlanTimeline(ctx, taskRunID, lastPoll)
		if err != nil {
			return model.Outcome{}, err
		}
		thoughtItems, err := p.client.ThoughtTimeline(ctx, taskRunID, lastPoll)
		if err != nil {
			return model.Outcome{}, err
		}

		updates := timeline.Merge(planItems, thoughtItems)
		if len(updates) > 0 {
			lastActivity = now
			for _, update := range updates {
				p.notifyLog(fmt.Sprintf("[%s] %s", update.Timestamp.Format(time.RFC3339), update.Content))
			}
		}

		if run.Status.IsTerminal() {
			logging.Log(fmt.Sprintf("Task '%s' reached terminal state: %s", taskRunID, run.Status), slog.LevelInfo)
			outcome := model.Outcome{Status: run.Status, Output: run.Output}
			if run.Status == model.TaskFailed || run.Status == model.TaskCancelled {
				if run.StatusMessage != nil {
					outcome.Message = *run.StatusMessage
				}
			}
			return outcome, nil
		}

		pollTime := now
		lastPoll = &pollTime

		select {
		case <-ctx.Done():
			return model.Outcome{}, ctx.Err()
		case <-time.After(p.interval):
		}
	}
}

// cancelRemote asks the platform to cancel the device's task runs. The
// caller is already on a terminal path, so failures are only logged.
func (p *Poller) cancelRemote() {
	ctx, cancel := context.WithTimeout(context.Background(), cancelTimeout)
	defer cancel()
	if err := p.client.CancelTaskRuns(ctx, p.deviceID); err != nil {
		logging.Log(fmt.Sprintf("Failed to propagate cancellation: %v", err), slog.LevelWarn)
	}
}

func (p *Poller) notifyStatus(status model.TaskStatus, message *string) {
	if p.callbacks.OnStatusUpdate == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logging.Log(fmt.Sprintf("Status update callback failed: %v", r), slog.LevelWarn)
		}
	}()
	msg := ""
	if message != nil {
		msg = *message
	}
	p.callbacks.OnStatusUpdate(status, msg)
}

func (p *Poller) notifyLog(line string) {
	if p.callbacks.OnLog == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logging.Log(fmt.Sprintf("Log callback failed: %v", r), slog.LevelWarn)
		}
	}()
	p.callbacks.OnLog(line)
}
