package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "stackup.toml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const minimalTOML = `
[[services]]
name = "articles"
command = "make run"
workdir = "articles-api"
port = 8000
probe = "http://127.0.0.1:8000/api/v1/articles/"

[services.prepare]
seed = "make seed"

[[services]]
name = "frontend"
command = "npm start"
workdir = "frontend"
port = 3000
probe = "http://127.0.0.1:3000/"

[services.env_file]
path = ".env"
defaults = ["REACT_APP_ARTICLES_URL=http://127.0.0.1:8000/api/v1"]
`

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, minimalTOML)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Probe.MaxAttempts != DefaultProbeAttempts {
		t.Fatalf("MaxAttempts = %d, want %d", cfg.Probe.MaxAttempts, DefaultProbeAttempts)
	}
	if cfg.Probe.Interval != DefaultProbeInterval {
		t.Fatalf("Interval = %v, want %v", cfg.Probe.Interval, DefaultProbeInterval)
	}
	if cfg.GraceDelay != DefaultGraceDelay || cfg.StopWait != DefaultStopWait {
		t.Fatalf("delays not defaulted: grace=%v stop=%v", cfg.GraceDelay, cfg.StopWait)
	}
	if len(cfg.Services) != 2 {
		t.Fatalf("expected 2 services, got %d", len(cfg.Services))
	}
}

func TestLoadResolvesRelativePaths(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, minimalTOML)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	articles := cfg.Services[0]
	wantWD := filepath.Join(dir, "articles-api")
	if articles.WorkDir != wantWD {
		t.Fatalf("workdir = %q, want %q", articles.WorkDir, wantWD)
	}
	// Pidfile defaults into the workdir.
	if articles.PIDFile != filepath.Join(wantWD, "articles.pid") {
		t.Fatalf("pidfile = %q", articles.PIDFile)
	}
	// Seed sentinel defaults and resolves into the workdir.
	if articles.Prepare.SeedSentinel != filepath.Join(wantWD, ".seeded") {
		t.Fatalf("sentinel = %q", articles.Prepare.SeedSentinel)
	}
	frontend := cfg.Services[1]
	if frontend.EnvFile.Path != filepath.Join(dir, "frontend", ".env") {
		t.Fatalf("env file path = %q", frontend.EnvFile.Path)
	}
}

func TestLoadOverrides(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
grace_delay = "500ms"
stop_wait = "1s"

[probe]
max_attempts = 5
interval = "100ms"
timeout = "1s"
`+minimalTOML)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.GraceDelay != 500*time.Millisecond {
		t.Fatalf("grace = %v", cfg.GraceDelay)
	}
	if cfg.Probe.MaxAttempts != 5 || cfg.Probe.Interval != 100*time.Millisecond {
		t.Fatalf("probe = %+v", cfg.Probe)
	}
}

func TestLoadRejectsDuplicateNames(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
[[services]]
name = "svc"
command = "a"
port = 8000
probe = "http://127.0.0.1:8000/"
pidfile = "/tmp/a.pid"

[[services]]
name = "svc"
command = "b"
port = 8001
probe = "http://127.0.0.1:8001/"
pidfile = "/tmp/b.pid"
`)
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "duplicate service name") {
		t.Fatalf("expected duplicate-name error, got %v", err)
	}
}

func TestLoadRejectsDuplicatePorts(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
[[services]]
name = "a"
command = "a"
port = 8000
probe = "http://127.0.0.1:8000/"
pidfile = "/tmp/a.pid"

[[services]]
name = "b"
command = "b"
port = 8000
probe = "http://127.0.0.1:8000/x"
pidfile = "/tmp/b.pid"
`)
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "both declare port") {
		t.Fatalf("expected duplicate-port error, got %v", err)
	}
}

func TestLoadRejectsEmptyServices(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `grace_delay = "1s"`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for config without services")
	}
}
