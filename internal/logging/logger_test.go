package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestNew_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "info", Format: "json", Output: &buf})
	log.Info("probe complete", "run_id", "r1")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON output, got %q: %v", buf.String(), err)
	}
	if entry["msg"] != "probe complete" {
		t.Fatalf("unexpected message: %v", entry["msg"])
	}
	if entry["run_id"] != "r1" {
		t.Fatalf("expected run_id attribute, got %v", entry["run_id"])
	}
}

func TestNew_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "warn", Format: "text", Output: &buf})

	log.Debug("ignored")
	log.Info("ignored")
	log.Warn("kept")

	out := buf.String()
	if strings.Contains(out, "ignored") {
		t.Fatalf("expected sub-warn records to be dropped: %q", out)
	}
	if !strings.Contains(out, "kept") {
		t.Fatalf("expected warn record to be written: %q", out)
	}
}

func TestNew_AutoFallsBackToJSON(t *testing.T) {
	// A bytes.Buffer is not a terminal, so auto selects JSON.
	var buf bytes.Buffer
	log := New(Config{Level: "info", Format: "auto", Output: &buf})
	log.Info("hello")

	if !json.Valid(buf.Bytes()) {
		t.Fatalf("expected JSON output for non-TTY writer, got %q", buf.String())
	}
}

func TestWithRun(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "info", Format: "json", Output: &buf})
	log.WithRun("r42").Info("reconciled")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshaling log entry: %v", err)
	}
	if entry["run_id"] != "r42" {
		t.Fatalf("expected run_id r42, got %v", entry["run_id"])
	}
}

func TestPrettyHandler_Attrs(t *testing.T) {
	var buf bytes.Buffer
	h := NewPrettyHandler(&buf, slog.LevelInfo)
	log := slog.New(h.WithAttrs([]slog.Attr{slog.String("host", "vm-7")}))

	log.Info("launched", "pid", 4242)

	out := buf.String()
	if !strings.Contains(out, "launched") || !strings.Contains(out, "host") || !strings.Contains(out, "4242") {
		t.Fatalf("unexpected pretty output: %q", out)
	}
}
