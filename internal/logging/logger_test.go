package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriterLoggerEmitsJSONWithAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger(&buf, "debug").WithComponent("ledger").With("key", "progress")

	logger.Info("session recorded", "minutes", 25)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v (%q)", err, buf.String())
	}
	if entry["msg"] != "session recorded" {
		t.Errorf("msg: got %v", entry["msg"])
	}
	if entry["component"] != "ledger" {
		t.Errorf("component: got %v", entry["component"])
	}
	if entry["key"] != "progress" {
		t.Errorf("key: got %v", entry["key"])
	}
	if entry["minutes"] != float64(25) {
		t.Errorf("minutes: got %v", entry["minutes"])
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger(&buf, "WARN")

	logger.Debug("hidden")
	logger.Info("hidden")
	logger.Warn("shown")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d: %q", len(lines), buf.String())
	}
	if !strings.Contains(lines[0], "shown") {
		t.Errorf("unexpected line: %s", lines[0])
	}
}

func TestNewLoggerWritesFile(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewLogger(dir, "INFO")
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	logger.WithSession("abc").Info("hello")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), `"session_id":"abc"`) {
		t.Errorf("expected session_id in log, got %q", data)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"Warn":  slog.LevelWarn,
		"ERROR": slog.LevelError,
		"":      slog.LevelInfo,
		"loud":  slog.LevelInfo,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
	for _, lvl := range ValidLevels() {
		if parseLevel(lvl).String() != lvl {
			t.Errorf("ValidLevels entry %q does not round-trip", lvl)
		}
	}
}
