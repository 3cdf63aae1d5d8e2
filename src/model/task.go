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

package model

import (
	"fmt"
	"time"
)

type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskCancelled TaskStatus = "cancelled"
)

// ParseStatus validates a status value received from the platform.
// The platform reports statuses as free-form strings; anything outside the
// known set is rejected so the terminal check stays an exhaustive match.
func ParseStatus(s string) (TaskStatus, error) {
	switch TaskStatus(s) {
	case TaskPending, TaskRunning, TaskCompleted, TaskFailed, TaskCancelled:
		return TaskStatus(s), nil
	}
	return "", fmt.Errorf("unknown task status %q", s)
}

// IsTerminal reports whether no further status transitions are possible.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskCancelled
}

// TaskRun is one remote execution attempt. The ID is assigned by the
// platform at trigger time and never changes; Output is only set once the
// run is terminal.
type TaskRun struct {
	ID            string
	Status        TaskStatus
	StatusMessage *string
	Output        any
}

// TimelineItem is a single observed event, either a plan-step transition or
// an agent thought. Timestamp is the platform's clock, not ours.
type TimelineItem struct {
	Timestamp time.Time
	Content   string
}

// TaskRequest describes the task handed to the platform.
type TaskRequest struct {
	Profile          string `json:"profile,omitempty" yaml:"profile"`
	Task             string `json:"task" yaml:"task"`
	ExecutionOrigin  string `json:"executionOrigin,omitempty" yaml:"execution_origin"`
	LockedAppPackage string `json:"lockedAppPackage,omitempty" yaml:"locked_app_package"`
	MaxSteps         int    `json:"maxSteps,omitempty" yaml:"max_steps"`
}

// Outcome is the terminal result of one execution: the final status, an
// error message when the run failed or was cancelled, and the opaque output
// payload when the platform produced one.
type Outcome struct {
	Status  TaskStatus `json:"status"`
	Message string     `json:"message,omitempty"`
	Output  any        `json:"output,omitempty"`
}
