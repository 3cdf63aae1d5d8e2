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

// Package coordinator owns "what is currently running". It guarantees at
// most one in-flight execution per coordinator: submitting while a task is
// active cancels the active one and waits for its teardown before the new
// execution starts.
package coordinator

import (
	"context"
	"log/slog"
	"sync"

	"nimbusworker/src/logging"
	"nimbusworker/src/model"
)

// Runner executes one task to its terminal outcome. The poller is the only
// production implementation.
type Runner interface {
	Run(ctx context.Context, req model.TaskRequest) (model.Outcome, error)
}

// execution is the handle for one running task. done is closed by the run
// goroutine after outcome/err are set; the goroutine never takes the
// coordinator lock, so waiting on done under the lock cannot deadlock.
type execution struct {
	req     model.TaskRequest
	cancel  context.CancelFunc
	done    chan struct{}
	outcome model.Outcome
	err     error
}

type Coordinator struct {
	runner Runner

	mu      sync.Mutex
	current *execution
}

func New(runner Runner) *Coordinator {
	return &Coordinator{runner: runner}
}

// Submit runs a task to completion and returns its terminal outcome. If
// another execution is active it is cancelled first and its teardown is
// awaited before the new one triggers; the preempted Submit caller receives
// the cancellation error, which is an expected outcome and not surfaced to
// the new caller. The lock covers only the preempt-and-install decision,
// never the run itself.
func (c *Coordinator) Submit(ctx context.Context, req model.TaskRequest) (model.Outcome, error) {
	c.mu.Lock()
	if prev := c.current; prev != nil {
		logging.Log("Another task is running; cancelling it before starting a new one", slog.LevelWarn)
		prev.cancel()
		<-prev.done
	}

	runCtx, cancel := context.WithCancel(ctx)
	exec := &execution{req: req, cancel: cancel, done: make(chan struct{})}
	c.current = exec
	c.mu.Unlock()

	go func() {
		defer close(exec.done)
		defer cancel()
		exec.outcome, exec.err = c.runner.Run(runCtx, req)
	}()

	<-exec.done

	c.mu.Lock()
	if c.current == exec {
		c.current = nil
	}
	c.mu.Unlock()

	return exec.outcome, exec.err
}

// Stop requests cooperative cancellation of the active execution, if any.
// It only requests: the Submit call that owns the handle performs the wait.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil {
		c.current.cancel()
	}
}

// Current returns a copy of the active task request, or nil when idle.
func (c *Coordinator) Current() *model.TaskRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return nil
	}
	req := c.current.req
	return &req
}
