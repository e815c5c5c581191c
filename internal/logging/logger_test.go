package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"Warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"trace", slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewHandler_Fallback(t *testing.T) {
	tests := []struct {
		format   string
		fallback string
		wantJSON bool
	}{
		{"json", "text", true},
		{"JSON", "text", true},
		{"text", "json", false},
		{"", "json", true},
		{"logfmt", "json", true},
		{"", "text", false},
		{"logfmt", "text", false},
	}

	for _, tt := range tests {
		t.Run(tt.format+"/"+tt.fallback, func(t *testing.T) {
			h := newHandler(&bytes.Buffer{}, tt.format, &slog.HandlerOptions{}, tt.fallback)
			_, isJSON := h.(*slog.JSONHandler)
			if isJSON != tt.wantJSON {
				t.Errorf("newHandler(%q, fallback %q) = %T, want JSON %v", tt.format, tt.fallback, h, tt.wantJSON)
			}
		})
	}
}

func TestNewLogger_DefaultsToJSON(t *testing.T) {
	logger := NewLogger("", "info", false)
	if _, ok := logger.Handler().(*slog.JSONHandler); !ok {
		t.Errorf("handler = %T, want *slog.JSONHandler", logger.Handler())
	}
}

func TestNewLogger_Verbose(t *testing.T) {
	ctx := context.Background()

	quiet := NewLogger("text", "error", false)
	if quiet.Enabled(ctx, slog.LevelWarn) {
		t.Error("error-level logger should drop warnings")
	}

	verbose := NewLogger("text", "error", true)
	if !verbose.Enabled(ctx, slog.LevelDebug) {
		t.Error("verbose should enable debug regardless of level")
	}
}

func TestNewLoggerWithWriter_EventAttributes(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf, "json", "info")

	logger.Info("worker_started", "run_id", "r-1", "pid", 4242)

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
	}
	if rec["msg"] != "worker_started" {
		t.Errorf("msg = %v, want worker_started", rec["msg"])
	}
	if rec["run_id"] != "r-1" {
		t.Errorf("run_id = %v, want r-1", rec["run_id"])
	}
	if rec["pid"] != float64(4242) {
		t.Errorf("pid = %v, want 4242", rec["pid"])
	}
}

func TestNewLoggerWithWriter_TextAndLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf, "unknown", "warn")

	logger.Info("sink_connected")
	logger.Warn("orphan_sweep_failed", "name", "seed-cli")

	out := buf.String()
	if strings.Contains(out, "sink_connected") {
		t.Error("info event should be filtered at warn level")
	}
	if !strings.Contains(out, "msg=orphan_sweep_failed") || !strings.Contains(out, "name=seed-cli") {
		t.Errorf("want text output with attributes, got %q", out)
	}
}

func TestNewLoggerWithWriter_NilWriter(t *testing.T) {
	logger := NewLoggerWithWriter(nil, "json", "debug")
	if !logger.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("level should still apply with a nil writer")
	}
	logger.Info("dropped")
}

func TestDiscard(t *testing.T) {
	logger := Discard()
	if logger.Enabled(context.Background(), slog.LevelWarn) {
		t.Error("Discard logger should only be enabled for errors")
	}
	logger.Error("dropped")
}

func TestSetDefault(t *testing.T) {
	original := slog.Default()
	defer slog.SetDefault(original)

	var buf bytes.Buffer
	SetDefault(NewLoggerWithWriter(&buf, "text", "info"))

	slog.Info("search_finished", "outcome", "complete")
	if !strings.Contains(buf.String(), "outcome=complete") {
		t.Errorf("default logger not replaced, got %q", buf.String())
	}
}
