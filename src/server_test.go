package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"nimbusworker/src/coordinator"
	"nimbusworker/src/model"
)

type instantRunner struct {
	outcome model.Outcome
	err     error
}

func (r instantRunner) Run(ctx context.Context, req model.TaskRequest) (model.Outcome, error) {
	return r.outcome, r.err
}

func newTestServer(runner coordinator.Runner) (*APIServer, *WorkerStats) {
	stats := NewWorkerStats("worker-1", "dev-1")
	return &APIServer{coord: coordinator.New(runner), stats: stats}, stats
}

func TestRunHandlerReturnsOutcome(t *testing.T) {
	srv, stats := newTestServer(instantRunner{
		outcome: model.Outcome{Status: model.TaskCompleted, Output: map[string]any{"result": float64(42)}},
	})

	body := strings.NewReader(`{"task":"open the settings app"}`)
	req := httptest.NewRequest(http.MethodPost, "/run", body)
	rec := httptest.NewRecorder()
	srv.runHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status code: %d (%s)", rec.Code, rec.Body.String())
	}
	var outcome model.Outcome
	if err := json.NewDecoder(rec.Body).Decode(&outcome); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if outcome.Status != model.TaskCompleted {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}

	resp := stats.GetStats(nil)
	if resp.TasksSubmitted != 1 || resp.TasksCompleted != 1 {
		t.Fatalf("stats not updated: %+v", resp)
	}
}

func TestRunHandlerRejectsEmptyTask(t *testing.T) {
	srv, _ := newTestServer(instantRunner{})

	req := httptest.NewRequest(http.MethodPost, "/run", strings.NewReader(`{"task":""}`))
	rec := httptest.NewRecorder()
	srv.runHandler(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestRunHandlerRejectsGet(t *testing.T) {
	srv, _ := newTestServer(instantRunner{})

	req := httptest.NewRequest(http.MethodGet, "/run", nil)
	rec := httptest.NewRecorder()
	srv.runHandler(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestRunHandlerMapsCancellationToConflict(t *testing.T) {
	srv, _ := newTestServer(instantRunner{err: context.Canceled})

	req := httptest.NewRequest(http.MethodPost, "/run", strings.NewReader(`{"task":"x"}`))
	rec := httptest.NewRecorder()
	srv.runHandler(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for cancelled task, got %d", rec.Code)
	}
}

func TestStatusHandler(t *testing.T) {
	srv, stats := newTestServer(instantRunner{})
	stats.UpdateStats(3, 1, 1, 1)

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	srv.statusHandler(rec, req)

	var resp StatusResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if resp.ID != "worker-1" || resp.DeviceID != "dev-1" {
		t.Fatalf("unexpected identity fields: %+v", resp)
	}
	if resp.TasksSubmitted != 3 || resp.TasksCompleted != 1 || resp.TasksFailed != 1 || resp.TasksCancelled != 1 {
		t.Fatalf("unexpected counters: %+v", resp)
	}
	if resp.CurrentTask != nil {
		t.Fatalf("no task should be active: %+v", resp.CurrentTask)
	}
}

func TestStopHandler(t *testing.T) {
	srv, _ := newTestServer(instantRunner{})

	req := httptest.NewRequest(http.MethodPost, "/stop", nil)
	rec := httptest.NewRecorder()
	srv.stopHandler(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
}
