package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	cfg := DefaultConfig()
	l := New(cfg)

	if l == nil {
		t.Fatal("New() returned nil")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Level != InfoLevel {
		t.Errorf("Level = %v, want InfoLevel", cfg.Level)
	}
	if !cfg.Pretty {
		t.Error("Pretty should be true by default")
	}
	if cfg.Output == nil {
		t.Error("Output should not be nil")
	}
}

func TestLogger_WithComponent(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{
		Level:  InfoLevel,
		Pretty: false,
		Output: &buf,
	})

	l = l.WithComponent("minimize")
	l.Info("test message")

	output := buf.String()
	if !strings.Contains(output, "minimize") {
		t.Errorf("Output should contain component: %s", output)
	}
}

func TestLogger_WithStage(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{
		Level:  InfoLevel,
		Pretty: false,
		Output: &buf,
	})

	l = l.WithStage("score")
	l.Info("test message")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Output is not valid JSON: %v", err)
	}
	if entry["stage"] != "score" {
		t.Errorf("stage = %v, want score", entry["stage"])
	}
}

func TestLogger_WithBatch(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{
		Level:  InfoLevel,
		Pretty: false,
		Output: &buf,
	})

	l = l.WithBatch(3)
	l.Info("test message")

	output := buf.String()
	if !strings.Contains(output, `"batch":3`) {
		t.Errorf("Output should contain batch index: %s", output)
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{
		Level:  WarnLevel,
		Pretty: false,
		Output: &buf,
	})

	l.Debug("debug message")
	l.Info("info message")
	l.Warn("warn message")

	output := buf.String()
	if strings.Contains(output, "debug message") {
		t.Error("Debug message should be filtered out")
	}
	if strings.Contains(output, "info message") {
		t.Error("Info message should be filtered out")
	}
	if !strings.Contains(output, "warn message") {
		t.Error("Warn message should be present")
	}
}

func TestLogger_StageEvent(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{
		Level:  InfoLevel,
		Pretty: false,
		Output: &buf,
	})

	l.StageEvent("filter", true, 42*time.Millisecond)

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Output is not valid JSON: %v", err)
	}
	if entry["stage"] != "filter" {
		t.Errorf("stage = %v, want filter", entry["stage"])
	}
	if entry["success"] != true {
		t.Errorf("success = %v, want true", entry["success"])
	}
}

func TestLogger_JudgeEvent(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{
		Level:  InfoLevel,
		Pretty: false,
		Output: &buf,
	})

	l.JudgeEvent(1, 5, 3, 100*time.Millisecond)

	output := buf.String()
	if !strings.Contains(output, `"scored":3`) {
		t.Errorf("Output should contain scored count: %s", output)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  Level
	}{
		{"debug", DebugLevel},
		{"info", InfoLevel},
		{"warn", WarnLevel},
		{"error", ErrorLevel},
	}

	for _, tt := range tests {
		got, err := ParseLevel(tt.input)
		if err != nil {
			t.Errorf("ParseLevel(%q) error: %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestGlobal(t *testing.T) {
	orig := Global()
	defer SetGlobal(orig)

	var buf bytes.Buffer
	SetGlobal(New(Config{Level: InfoLevel, Pretty: false, Output: &buf}))

	Info("global message")

	if !strings.Contains(buf.String(), "global message") {
		t.Error("Global logger should write to the configured output")
	}
}
