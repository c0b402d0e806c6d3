package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/felixgeelhaar/storyboard/internal/errors"
)

func newBufferLogger(level Level, format Format) (*Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	logger := New(Config{
		Level:  level,
		Format: format,
		Output: NewOutput(buf),
	})
	return logger, buf
}

func TestLogger_JSONOutput(t *testing.T) {
	logger, buf := newBufferLogger(LevelInfo, FormatJSON)

	logger.Info("step dispatched", "step_id", 3, "capability", "writer")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if entry["msg"] != "step dispatched" {
		t.Errorf("msg = %v, want %q", entry["msg"], "step dispatched")
	}
	if entry["capability"] != "writer" {
		t.Errorf("capability = %v, want writer", entry["capability"])
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	logger, buf := newBufferLogger(LevelWarn, FormatText)

	logger.Debug("should be filtered")
	logger.Info("should also be filtered")
	logger.Warn("should appear")

	out := buf.String()
	if strings.Contains(out, "filtered") {
		t.Errorf("low-level messages leaked: %q", out)
	}
	if !strings.Contains(out, "should appear") {
		t.Errorf("warn message missing: %q", out)
	}
}

func TestLogger_WithError(t *testing.T) {
	logger, buf := newBufferLogger(LevelInfo, FormatJSON)

	sbErr := errors.New(errors.ErrCodeStepNoWorker, "no worker registered for capability: composer").
		WithSuggestion("Use one of: writer, visualizer, researcher, data_analyst")
	logger.WithError(sbErr).Error("dispatch failed")

	out := buf.String()
	if !strings.Contains(out, "STEP-001") {
		t.Errorf("error_code missing from output: %q", out)
	}
	if !strings.Contains(out, "no worker registered") {
		t.Errorf("error message missing from output: %q", out)
	}
}

func TestLogger_With(t *testing.T) {
	logger, buf := newBufferLogger(LevelInfo, FormatJSON)

	logger.With("session_id", "abc").Info("tick")

	if !strings.Contains(buf.String(), "abc") {
		t.Errorf("attribute missing: %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", LevelDebug},
		{"INFO", LevelInfo},
		{"warning", LevelWarn},
		{"ERROR", LevelError},
		{"bogus", LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
