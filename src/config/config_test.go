package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadTaskFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "task.yaml")
	content := `
profile: default
task: Open the settings app and read the build number
max_steps: 25
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write task file: %v", err)
	}

	req, err := LoadTaskFile(path)
	if err != nil {
		t.Fatalf("load task file: %v", err)
	}
	if req.Profile != "default" || req.MaxSteps != 25 {
		t.Fatalf("unexpected request: %+v", req)
	}
	if req.Task != "Open the settings app and read the build number" {
		t.Fatalf("unexpected task: %q", req.Task)
	}
}

func TestLoadTaskFileRejectsEmptyTask(t *testing.T) {
	path := filepath.Join(t.TempDir(), "task.yaml")
	if err := os.WriteFile(path, []byte("profile: default\n"), 0o644); err != nil {
		t.Fatalf("write task file: %v", err)
	}
	if _, err := LoadTaskFile(path); err == nil {
		t.Fatal("expected empty task to be rejected")
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("PLATFORM_API_KEY", "key-1")
	t.Setenv("DEVICE_ID", "dev-1")
	t.Setenv("POLL_INTERVAL", "7")
	t.Setenv("STALL_TIMEOUT", "bogus")
	t.Setenv("KEEP_ALIVE_INTERVAL", "90s")
	t.Setenv("API_PORT", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.PollInterval != 7*time.Second {
		t.Fatalf("unexpected poll interval: %s", cfg.PollInterval)
	}
	if cfg.StallTimeout != 300*time.Second {
		t.Fatalf("invalid stall timeout should fall back to default, got %s", cfg.StallTimeout)
	}
	if cfg.KeepAliveInterval != 90*time.Second {
		t.Fatalf("unexpected keep-alive interval: %s", cfg.KeepAliveInterval)
	}
	if cfg.APIPort != "8080" {
		t.Fatalf("unexpected api port: %q", cfg.APIPort)
	}
}

func TestLoadRequiresAPIKeyAndDevice(t *testing.T) {
	t.Setenv("PLATFORM_API_KEY", "")
	t.Setenv("DEVICE_ID", "dev-1")
	if _, err := Load(); err == nil {
		t.Fatal("expected missing api key to fail")
	}

	t.Setenv("PLATFORM_API_KEY", "key-1")
	t.Setenv("DEVICE_ID", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected missing device id to fail")
	}
}
