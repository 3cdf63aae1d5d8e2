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
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// StatusResponse matches the structure from server.go
type StatusResponse struct {
	ID             string `json:"id"`
	DeviceID       string `json:"device_id"`
	Uptime         string `json:"uptime"`
	TasksSubmitted uint64 `json:"tasks_submitted"`
	TasksCompleted uint64 `json:"tasks_completed"`
	TasksFailed    uint64 `json:"tasks_failed"`
	TasksCancelled uint64 `json:"tasks_cancelled"`
}

type taskRequest struct {
	Profile string `json:"profile,omitempty"`
	Task    string `json:"task"`
}

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
	colorBold   = "\033[1m"
)

func main() {
	apiHost := flag.String("api_host", "localhost", "Worker API host")
	apiPort := flag.String("api_port", "8080", "Worker API port")
	tasks := flag.Int("tasks", 5, "Number of tasks to submit sequentially")
	goal := flag.String("goal", "Open the settings app and read the build number", "Task goal to submit")
	profile := flag.String("profile", "", "Agent profile to use")
	flag.Parse()

	_ = godotenv.Load("../../.env")
	if *tasks <= 0 {
		fmt.Printf("%sPlease specify a positive --tasks count%s\n", colorRed, colorReset)
		os.Exit(1)
	}

	base := fmt.Sprintf("http://%s:%s", *apiHost, *apiPort)

	initialStats, err := getStats(base)
	if err != nil {
		fmt.Printf("%s[WARN]%s Could not get initial stats: %v. Metrics might be absolute.\n", colorYellow, colorReset, err)
	}

	fmt.Printf("\n%s%s %s NIMBUS SOAK %s %s%s\n", colorCyan, colorBold, ">>", fmt.Sprintf("TASKS: %d", *tasks), "<<", colorReset)

	// Submit tasks sequentially in the background; each /run call blocks
	// until the task reaches a terminal outcome.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < *tasks; i++ {
			if err := submitTask(base, taskRequest{Profile: *profile, Task: *goal}); err != nil {
				fmt.Printf("\n%s[ERR]%s Task %d failed: %v\n", colorRed, colorReset, i+1, err)
			}
		}
	}()

	startTime := time.Now()
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	fmt.Printf("%s%-10s %-12s %-10s %-12s %-10s%s\n", colorGray+colorBold, "ELAPSED", "COMPLETED", "FAILED", "CANCELLED", "SUBMITTED", colorReset)
	fmt.Println(colorGray + "------------------------------------------------------------" + colorReset)

	submissionsDone := false
	for {
		select {
		case <-done:
			submissionsDone = true
		case <-ticker.C:
		}

		stats, err := getStats(base)
		elapsed := time.Since(startTime).Round(time.Second).String()

		if err != nil {
			fmt.Printf("\r%-10s %s%-42s%s",
				elapsed,
				colorRed, "Error: Connection Refused (Retrying...)", colorReset,
			)
			continue
		}

		deltaCompleted := stats.TasksCompleted - initialStats.TasksCompleted
		deltaFailed := stats.TasksFailed - initialStats.TasksFailed
		deltaCancelled := stats.TasksCancelled - initialStats.TasksCancelled

		statusColor := colorGreen
		if deltaFailed > 0 {
			statusColor = colorRed
		}

		fmt.Printf("\r%-10s %s%-12d%s %s%-10d%s %s%-12d%s %-10d",
			elapsed,
			colorGreen, deltaCompleted, colorReset,
			statusColor, deltaFailed, colorReset,
			colorYellow, deltaCancelled, colorReset,
			stats.TasksSubmitted-initialStats.TasksSubmitted,
		)

		if submissionsDone {
			fmt.Printf("\n%s------------------------------------------------------------%s\n", colorGray, colorReset)
			printReport(stats, initialStats, time.Since(startTime))
			return
		}
	}
}

func submitTask(base string, req taskRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}
	resp, err := http.Post(base+"/run", "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("worker returned status %d", resp.StatusCode)
	}
	return nil
}

func getStats(base string) (StatusResponse, error) {
	resp, err := http.Get(base + "/status")
	if err != nil {
		return StatusResponse{}, err
	}
	defer resp.Body.Close()

	var stats StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return StatusResponse{}, err
	}
	return stats, nil
}

func printReport(final, initial StatusResponse, duration time.Duration) {
	completed := final.TasksCompleted - initial.TasksCompleted
	failed := final.TasksFailed - initial.TasksFailed
	cancelled := final.TasksCancelled - initial.TasksCancelled
	totalProcessed := completed + failed + cancelled

	successRate := 100.0
	if totalProcessed > 0 {
		successRate = (float64(completed) / float64(totalProcessed)) * 100
	}

	fmt.Println("\n" + colorCyan + colorBold + "┏━━━━━━━━━━━━━━━━━━━━━━ REPORT ━━━━━━━━━━━━━━━━━━━━━━┓" + colorReset)

	lineFmt := colorCyan + "┃" + colorReset + "  %-22s " + colorBold + "%-25s" + colorCyan + "┃" + colorReset

	fmt.Printf(lineFmt+"\n", "Duration:", duration.Truncate(time.Millisecond).String())
	fmt.Printf(lineFmt+"\n", "Total Tasks:", fmt.Sprintf("%d", totalProcessed))

	fmt.Printf(colorCyan+"┃"+"  %-22s "+colorGreen+colorBold+"%-25s"+colorCyan+"┃"+colorReset+"\n", "  - Completed:", fmt.Sprintf("%d", completed))

	failedColor := colorGreen
	if failed > 0 {
		failedColor = colorRed
	}
	fmt.Printf(colorCyan+"┃"+"  %-22s "+failedColor+colorBold+"%-25s"+colorCyan+"┃"+colorReset+"\n", "  - Failed:", fmt.Sprintf("%d", failed))
	fmt.Printf(colorCyan+"┃"+"  %-22s "+colorYellow+colorBold+"%-25s"+colorCyan+"┃"+colorReset+"\n", "  - Cancelled:", fmt.Sprintf("%d", cancelled))

	fmt.Printf(lineFmt+"\n", "Success Rate:", fmt.Sprintf("%.2f%%", successRate))
	if duration.Seconds() > 0 {
		fmt.Printf(lineFmt+"\n", "Throughput (TPS):", fmt.Sprintf("%.2f tasks/sec", float64(totalProcessed)/duration.Seconds()))
	}

	fmt.Println(colorCyan + colorBold + "┗━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━┛" + colorReset)
}
