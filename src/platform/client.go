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

// Package platform is the HTTP client for the remote execution service. It
// covers the task-run surface (trigger, status, timelines, cancel) and the
// device surface (info, keep-alive, screenshot).
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"nimbusworker/src/model"
)

const timelinePageSize = 50

type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewClient builds a platform client. A nil httpClient gets a default with
// an OTel-instrumented transport so every platform call shows up as a span.
func NewClient(baseURL, apiKey string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout:   120 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    httpClient,
	}
}

// do sends a JSON request and returns the response body. Any non-2xx status
// becomes an error carrying the status code and a body excerpt.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, payload any) ([]byte, error) {
	u := c.baseURL + "/api/" + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		excerpt := string(data)
		if len(excerpt) > 256 {
			excerpt = excerpt[:256]
		}
		return nil, fmt.Errorf("platform returned %d for %s %s: %s", resp.StatusCode, method, path, excerpt)
	}
	return data, nil
}

// TriggerTaskRun starts a task on a cloud device and returns the platform's
// task run ID. The platform accepts only one task per device at a time.
func (c *Client) TriggerTaskRun(ctx context.Context, deviceID string, req model.TaskRequest) (string, error) {
	payload := map[string]any{"taskRequest": req}
	data, err := c.do(ctx, http.MethodPost, "daas/devices/"+deviceID+"/run-task", nil, payload)
	if err != nil {
		return "", fmt.Errorf("trigger task run: %w", err)
	}

	var resp struct {
		TaskRunID string `json:"taskRunId"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", fmt.Errorf("decode trigger response: %w", err)
	}
	if resp.TaskRunID == "" {
		return "", fmt.Errorf("trigger response missing task run id")
	}
	return resp.TaskRunID, nil
}

// GetTaskRun fetches the current state of a task run. The output field
// arrives as a JSON-encoded string; it is decoded when possible and kept
// verbatim otherwise.
func (c *Client) GetTaskRun(ctx context.Context, taskRunID string) (model.TaskRun, error) {
	data, err := c.do(ctx, http.MethodGet, "v1/task-runs/"+taskRunID, nil, nil)
	if err != nil {
		return model.TaskRun{}, fmt.Errorf("get task run status: %w", err)
	}

	var resp struct {
		ID            string  `json:"id"`
		Status        string  `json:"status"`
		StatusMessage *string `json:"statusMessage"`
		Output        *string `json:"output"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return model.TaskRun{}, fmt.Errorf("decode task run: %w", err)
	}

	status, err := model.ParseStatus(resp.Status)
	if err != nil {
		return model.TaskRun{}, fmt.Errorf("task run %s: %w", taskRunID, err)
	}

	run := model.TaskRun{
		ID:            resp.ID,
		Status:        status,
		StatusMessage: resp.StatusMessage,
	}
	if resp.Output != nil {
		var decoded any
		if err := json.Unmarshal([]byte(*resp.Output), &decoded); err == nil {
			run.Output = decoded
		} else {
			run.Output = *resp.Output
		}
	}
	return run, nil
}

func timelineQuery(after *time.Time) url.Values {
	q := url.Values{}
	q.Set("page", "1")
	q.Set("pageSize", fmt.Sprintf("%d", timelinePageSize))
	if after != nil {
		q.Set("after", after.Format(time.RFC3339Nano))
	}
	return q
}

// PlanTimeline returns plan-step transitions after the cursor as timeline
// items, sorted by timestamp. Each step yields a START item at its start
// time and an END item at its end time. A step that started before the
// cursor but ended after it would otherwise re-deliver its START event, so
// items are filtered against the cursor here rather than trusting the
// server-side filter alone.
func (c *Client) PlanTimeline(ctx context.Context, taskRunID string, after *time.Time) ([]model.TimelineItem, error) {
	data, err := c.do(ctx, http.MethodGet, "v1/task-runs/"+taskRunID+"/plan/timeline", timelineQuery(after), nil)
	if err != nil {
		return nil, fmt.Errorf("get plan timeline: %w", err)
	}

	var resp struct {
		Steps []struct {
			Name      string     `json:"name"`
			State     string     `json:"state"`
			StartedAt *time.Time `json:"startedAt"`
			EndedAt   *time.Time `json:"endedAt"`
		} `json:"steps"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode plan timeline: %w", err)
	}

	var items []model.TimelineItem
	for _, step := range resp.Steps {
		if step.StartedAt != nil && (after == nil || step.StartedAt.After(*after)) {
			items = append(items, model.TimelineItem{
				Timestamp: *step.StartedAt,
				Content:   fmt.Sprintf("[START][%s] %s", step.Name, step.State),
			})
		}
		if step.EndedAt != nil && (after == nil || step.EndedAt.After(*after)) {
			items = append(items, model.TimelineItem{
				Timestamp: *step.EndedAt,
				Content:   fmt.Sprintf("[END][%s] %s", step.Name, step.State),
			})
		}
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Timestamp.Before(items[j].Timestamp)
	})
	return items, nil
}

// ThoughtTimeline returns agent thoughts after the cursor as timeline items.
// The platform already returns them in timestamp order.
func (c *Client) ThoughtTimeline(ctx context.Context, taskRunID string, after *time.Time) ([]model.TimelineItem, error) {
	data, err := c.do(ctx, http.MethodGet, "v1/task-runs/"+taskRunID+"/thoughts/timeline", timelineQuery(after), nil)
	if err != nil {
		return nil, fmt.Errorf("get thought timeline: %w", err)
	}

	var resp struct {
		Thoughts []struct {
			Agent     string    `json:"agent"`
			Content   string    `json:"content"`
			Timestamp time.Time `json:"timestamp"`
		} `json:"thoughts"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode thought timeline: %w", err)
	}

	var items []model.TimelineItem
	for _, thought := range resp.Thoughts {
		items = append(items, model.TimelineItem{
			Timestamp: thought.Timestamp,
			Content:   fmt.Sprintf("[%s] %s", thought.Agent, thought.Content),
		})
	}
	return items, nil
}

// CancelTaskRuns cancels all task runs on a device. Only one task runs on a
// device at a time, so this cancels the active run.
func (c *Client) CancelTaskRuns(ctx context.Context, deviceID string) error {
	_, err := c.do(ctx, http.MethodPost, "v1/task-runs/device/"+deviceID+"/cancel", nil, nil)
	if err != nil {
		return fmt.Errorf("cancel task runs: %w", err)
	}
	return nil
}
