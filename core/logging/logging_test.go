package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		" INFO ":  zapcore.InfoLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"":        zapcore.WarnLevel,
		"verbose": zapcore.WarnLevel,
	}
	for raw, want := range cases {
		if got := ParseLevel(raw); got != want {
			t.Fatalf("ParseLevel(%q)=%s want %s", raw, got, want)
		}
	}
}

func TestNewJSONWritesStructuredWarning(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "warn", FormatJSON)
	logger.Info("dropped below level")
	logger.Warn("registration missing", zap.String("source", "logs_AB12C"))
	_ = logger.Sync()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one log line, got %d: %q", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if entry["msg"] != "registration missing" || entry["source"] != "logs_AB12C" {
		t.Fatalf("unexpected entry: %v", entry)
	}
	if _, ok := entry["timestamp"]; !ok {
		t.Fatalf("expected timestamp key: %v", entry)
	}
}

func TestNewConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "debug", FormatConsole)
	logger.Debug("loaded", zap.Int("records", 83))
	_ = logger.Sync()
	if !strings.Contains(buf.String(), "DEBUG") || !strings.Contains(buf.String(), "loaded") {
		t.Fatalf("unexpected console output: %q", buf.String())
	}
}

func TestOrNop(t *testing.T) {
	if OrNop(nil) == nil {
		t.Fatalf("expected no-op logger")
	}
	logger := zap.NewExample()
	if OrNop(logger) != logger {
		t.Fatalf("expected passthrough logger")
	}
}
