package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoader_Defaults(t *testing.T) {
	// Run from an empty directory so no project config is picked up.
	chdirTemp(t)

	cfg, err := NewLoader().Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Log.Level != "info" {
		t.Fatalf("expected default log level info, got %s", cfg.Log.Level)
	}
	if cfg.Ledger.Path != ".runward/ledger.db" {
		t.Fatalf("unexpected default ledger path: %s", cfg.Ledger.Path)
	}
	if cfg.Probe.Timeout != "10s" {
		t.Fatalf("unexpected default probe timeout: %s", cfg.Probe.Timeout)
	}
	if cfg.Reconcile.Parallelism != 4 {
		t.Fatalf("unexpected default parallelism: %d", cfg.Reconcile.Parallelism)
	}
}

func TestLoader_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
log:
  level: debug
reconcile:
  stale_after: 90s
  parallelism: 8
runtime:
  command: /opt/workflow/bin/engine run
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := NewLoader().WithConfigFile(path).Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("expected debug level, got %s", cfg.Log.Level)
	}
	if cfg.Reconcile.StaleAfter != "90s" {
		t.Fatalf("expected 90s stale_after, got %s", cfg.Reconcile.StaleAfter)
	}
	if cfg.Reconcile.Parallelism != 8 {
		t.Fatalf("expected parallelism 8, got %d", cfg.Reconcile.Parallelism)
	}
	if cfg.Runtime.Command != "/opt/workflow/bin/engine run" {
		t.Fatalf("unexpected runtime command: %s", cfg.Runtime.Command)
	}
}

func TestLoader_EnvOverride(t *testing.T) {
	chdirTemp(t)
	t.Setenv("RUNWARD_LOG_LEVEL", "error")

	cfg, err := NewLoader().Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Log.Level != "error" {
		t.Fatalf("expected env override to error, got %s", cfg.Log.Level)
	}
}

func TestValidator(t *testing.T) {
	chdirTemp(t)
	cfg, err := NewLoader().Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := NewValidator().Validate(cfg); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}

	cfg.Log.Level = "loud"
	cfg.Reconcile.Parallelism = 0
	cfg.Probe.Timeout = "5m"
	err = NewValidator().Validate(cfg)
	if err == nil {
		t.Fatalf("expected validation errors")
	}
	verrs, ok := err.(ValidationErrors)
	if !ok || len(verrs) != 3 {
		t.Fatalf("expected 3 validation errors, got %v", err)
	}
}

func TestParseDurations(t *testing.T) {
	cfg := &Config{
		Probe:     ProbeConfig{Timeout: "5s"},
		Reconcile: ReconcileConfig{StaleAfter: "", Interval: "bad"},
	}
	d := ParseDurations(cfg)
	if d.ProbeTimeout != 5*time.Second {
		t.Fatalf("expected 5s probe timeout, got %s", d.ProbeTimeout)
	}
	if d.StaleAfter != 120*time.Second {
		t.Fatalf("expected default stale_after, got %s", d.StaleAfter)
	}
	if d.ReconcileInterval != 60*time.Second {
		t.Fatalf("expected default interval for unparsable value, got %s", d.ReconcileInterval)
	}
}

func chdirTemp(t *testing.T) {
	t.Helper()
	orig, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(orig) })
}
