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
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"nimbusworker/src/coordinator"
	"nimbusworker/src/logging"
	"nimbusworker/src/model"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// StatusResponse for JSON output
type StatusResponse struct {
	ID             string             `json:"id"`
	DeviceID       string             `json:"device_id"`
	StartTime      time.Time          `json:"start_time"`
	Uptime         string             `json:"uptime"`
	TasksSubmitted uint64             `json:"tasks_submitted"`
	TasksCompleted uint64             `json:"tasks_completed"`
	TasksFailed    uint64             `json:"tasks_failed"`
	TasksCancelled uint64             `json:"tasks_cancelled"`
	CurrentTask    *model.TaskRequest `json:"current_task,omitempty"`
}

// WorkerStats tracks the internal state of the worker
type WorkerStats struct {
	mu             sync.RWMutex
	statusResponse StatusResponse
}

func NewWorkerStats(workerID, deviceID string) *WorkerStats {
	return &WorkerStats{
		statusResponse: StatusResponse{
			ID:        workerID,
			DeviceID:  deviceID,
			StartTime: time.Now(),
		},
	}
}

// UpdateStats updates the worker statistics
func (s *WorkerStats) UpdateStats(submitted, completed, failed, cancelled uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statusResponse.TasksSubmitted += submitted
	s.statusResponse.TasksCompleted += completed
	s.statusResponse.TasksFailed += failed
	s.statusResponse.TasksCancelled += cancelled

	logging.AddCounter("worker_tasks_total", float64(submitted))
	logging.AddCounter("worker_tasks_succeeded", float64(completed))
	logging.AddCounter("worker_tasks_failed", float64(failed))
	logging.AddCounter("worker_tasks_cancelled", float64(cancelled))
}

// GetStats returns the current statistics as a response struct
func (s *WorkerStats) GetStats(current *model.TaskRequest) StatusResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()

	resp := s.statusResponse
	resp.Uptime = time.Since(s.statusResponse.StartTime).Truncate(time.Second).String()
	resp.CurrentTask = current
	return resp
}

// APIServer holds dependencies for the HTTP handlers
type APIServer struct {
	coord *coordinator.Coordinator
	stats *WorkerStats
}

// StartAPIServer starts the HTTP server with graceful shutdown and OTel.
// Task intake happens here: POST /run submits through the coordinator, and
// a second submission preempts the active run.
func StartAPIServer(ctx context.Context, port string, coord *coordinator.Coordinator, workerStats *WorkerStats) error {
	srv := &APIServer{
		coord: coord,
		stats: workerStats,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/run", srv.runHandler)
	mux.HandleFunc("/stop", srv.stopHandler)
	mux.HandleFunc("/status", srv.statusHandler)

	// CRITICAL: We must use the returned handler from otelhttp.NewHandler
	otelHandler := otelhttp.NewHandler(mux, "worker-api-server")

	httpServer := &http.Server{
		Addr:    ":" + port,
		Handler: otelHandler,
	}

	serverErr := make(chan error, 1)
	go func() {
		fmt.Printf("API Server starting on :%s\n", port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("server startup failed: %w", err)
	case <-ctx.Done():
		fmt.Println("\nShutdown signal received, closing server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		fmt.Println("Server exited cleanly")
	}

	return nil
}

func (s *APIServer) runHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req model.TaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid task request: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Task == "" {
		http.Error(w, "task must not be empty", http.StatusBadRequest)
		return
	}

	s.stats.UpdateStats(1, 0, 0, 0)

	outcome, err := s.coord.Submit(r.Context(), req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			// Preempted by a newer submission or stopped by the caller.
			http.Error(w, "task cancelled before completion", http.StatusConflict)
			return
		}
		http.Error(w, "task execution failed: "+err.Error(), http.StatusBadGateway)
		return
	}

	switch outcome.Status {
	case model.TaskCompleted:
		s.stats.UpdateStats(0, 1, 0, 0)
	case model.TaskFailed:
		s.stats.UpdateStats(0, 0, 1, 0)
	case model.TaskCancelled:
		s.stats.UpdateStats(0, 0, 0, 1)
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(outcome)
}

func (s *APIServer) stopHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.coord.Stop()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]bool{"stop_requested": true})
}

func (s *APIServer) statusHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.stats.GetStats(s.coord.Current()))
}
