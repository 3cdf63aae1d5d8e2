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

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"nimbusworker/src/model"
)

type Config struct {
	PlatformBaseURL   string
	PlatformAPIKey    string
	DeviceID          string
	PollInterval      time.Duration
	StallTimeout      time.Duration
	KeepAliveInterval time.Duration
	APIPort           string
	TaskFile          string
}

// Load reads worker configuration from the environment, with a .env file as
// the usual source in development. Missing .env is fine in production where
// the environment is set by the orchestrator.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		PlatformBaseURL:   getenv("PLATFORM_BASE_URL", "https://platform.nimbus.dev"),
		PlatformAPIKey:    os.Getenv("PLATFORM_API_KEY"),
		DeviceID:          os.Getenv("DEVICE_ID"),
		PollInterval:      secondsEnv("POLL_INTERVAL", 2),
		StallTimeout:      secondsEnv("STALL_TIMEOUT", 300),
		KeepAliveInterval: durationEnv("KEEP_ALIVE_INTERVAL", time.Minute),
		APIPort:           getenv("API_PORT", "8080"),
		TaskFile:          os.Getenv("TASK_FILE"),
	}

	if cfg.PlatformAPIKey == "" {
		return Config{}, fmt.Errorf("PLATFORM_API_KEY must be set")
	}
	if cfg.DeviceID == "" {
		return Config{}, fmt.Errorf("DEVICE_ID must be set")
	}
	return cfg, nil
}

// LoadTaskFile reads a task request from a YAML file.
func LoadTaskFile(path string) (model.TaskRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.TaskRequest{}, fmt.Errorf("read task file: %w", err)
	}
	var req model.TaskRequest
	if err := yaml.Unmarshal(data, &req); err != nil {
		return model.TaskRequest{}, fmt.Errorf("parse task file %s: %w", path, err)
	}
	if req.Task == "" {
		return model.TaskRequest{}, fmt.Errorf("task file %s: 'task' must not be empty", path)
	}
	return req, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func secondsEnv(key string, fallback int) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return time.Duration(fallback) * time.Second
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		fmt.Printf("Warning: invalid %s '%s', defaulting to %ds\n", key, v, fallback)
		return time.Duration(fallback) * time.Second
	}
	return time.Duration(n) * time.Second
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		fmt.Printf("Warning: invalid %s '%s', defaulting to %s\n", key, v, fallback)
		return fallback
	}
	return d
}
