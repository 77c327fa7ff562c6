package logger

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	jsoniter "github.com/json-iterator/go"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
	if ValidLevel("verbose") || !ValidLevel("warn") {
		t.Errorf("ValidLevel disagrees with ParseLevel")
	}
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "warn", "json")
	log.Info("dropped")
	log.Warn("kept", "dm", 56.8)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one record above the level, got %d: %q", len(lines), buf.String())
	}
	var rec map[string]any
	if err := jsoniter.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("record is not JSON: %v", err)
	}
	if rec["msg"] != "kept" || rec["dm"] != 56.8 {
		t.Fatalf("unexpected record %v", rec)
	}
}

func TestNewText(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, "debug", "text").Debug("row searched", "dm", 40)
	if !strings.Contains(buf.String(), "msg=\"row searched\"") || !strings.Contains(buf.String(), "dm=40") {
		t.Fatalf("unexpected text record %q", buf.String())
	}
}
