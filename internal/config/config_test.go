package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s err=%v", name, err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := validate(cfg); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Monitoring.Interval != 30*time.Second || cfg.Monitoring.Timeout != 5*time.Second {
		t.Fatalf("unexpected monitoring defaults: %+v", cfg.Monitoring)
	}
	if cfg.Database.Type != "boltdb" || cfg.Database.Path == "" {
		t.Fatalf("unexpected database defaults: %+v", cfg.Database)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
server:
  enabled: true
  port: ":9090"
database:
  type: json
monitoring:
  interval: 60s
  timeout: 2s
  prober: icmp
devices:
  - name: Router
    address: 192.168.1.1
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load err=%v", err)
	}
	if cfg.Server.Port != ":9090" {
		t.Fatalf("port=%s", cfg.Server.Port)
	}
	if cfg.Database.Path != "devices.json" {
		t.Fatalf("json store should default to devices.json, got %s", cfg.Database.Path)
	}
	if cfg.Monitoring.Interval != time.Minute || cfg.Monitoring.Timeout != 2*time.Second {
		t.Fatalf("monitoring=%+v", cfg.Monitoring)
	}
	if len(cfg.Devices) != 1 || cfg.Devices[0].Address != "192.168.1.1" {
		t.Fatalf("devices=%+v", cfg.Devices)
	}
}

func TestLoadRejects(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{"interval too short", "monitoring:\n  interval: 5s\n", "monitoring.interval"},
		{"interval too long", "monitoring:\n  interval: 10m\n", "monitoring.interval"},
		{"fractional interval", "monitoring:\n  interval: 30500ms\n", "whole number"},
		{"timeout not below interval", "monitoring:\n  interval: 10s\n  timeout: 10s\n", "monitoring.timeout"},
		{"unknown prober", "monitoring:\n  prober: smoke-signal\n", "monitoring.prober"},
		{"unknown database", "database:\n  type: sqlite\n", "database.type"},
		{"postgres without dsn", "database:\n  type: postgres\n", "database.dsn"},
		{"bad log format", "logging:\n  format: xml\n", "logging.format"},
		{"device without address", "devices:\n  - name: x\n", "address"},
		{"bad include pattern", "include:\n  enabled: true\n  directory: conf.d\n  pattern: a/b\n", "include"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			os.Mkdir(filepath.Join(dir, "conf.d"), 0o755)
			path := writeFile(t, dir, "config.yaml", tc.yaml)

			_, err := Load(path)
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestLoadIncludes(t *testing.T) {
	dir := t.TempDir()
	confDir := filepath.Join(dir, "conf.d")
	if err := os.Mkdir(confDir, 0o755); err != nil {
		t.Fatalf("mkdir err=%v", err)
	}

	path := writeFile(t, dir, "config.yaml", `
include:
  enabled: true
  directory: conf.d
devices:
  - name: Main
    address: 10.0.0.1
`)
	writeFile(t, confDir, "20-lab.yml", `
devices:
  - name: Lab
    address: 10.0.1.1
`)
	writeFile(t, confDir, "10-office.yaml", `
monitoring:
  interval: 45s
logging:
  level: debug
devices:
  - name: Office
    address: 10.0.2.1
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load err=%v", err)
	}

	var names []string
	for _, d := range cfg.Devices {
		names = append(names, d.Name)
	}
	if got := strings.Join(names, ","); got != "Main,Office,Lab" {
		t.Fatalf("device order=%s", got)
	}
	if cfg.Monitoring.Interval != 45*time.Second {
		t.Fatalf("interval not merged: %s", cfg.Monitoring.Interval)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("logging level not merged: %s", cfg.Logging.Level)
	}
}

func TestLoadMissingIncludeDirectory(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", "include:\n  enabled: true\n  directory: missing\n")

	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for missing include directory")
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}
