package utils

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNewLoggerWithWriterJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("warn", true, &buf)
	logger.Info("dropped")
	logger.Warn("kept", "channel", "teams")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line, got %q", buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if entry["msg"] != "kept" || entry["channel"] != "teams" {
		t.Fatalf("unexpected entry: %v", entry)
	}
}

func TestLogWriterFileUsesRotation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "errordecode.log")
	w := logWriter(LogOptions{Output: "file", FilePath: path, MaxSizeMB: 1})
	if fmt.Sprintf("%T", w) != "*lumberjack.Logger" {
		t.Fatalf("expected lumberjack writer, got %T", w)
	}
}

func TestAppErrorOp(t *testing.T) {
	base := errors.New("disk full")
	err := fmt.Errorf("append: %w", NewAppError("sink.file", "write row", base))
	if OpOf(err) != "sink.file" {
		t.Fatalf("unexpected op %q", OpOf(err))
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped base error")
	}
	if OpOf(base) != "" {
		t.Fatalf("expected empty op for plain error")
	}
}

func TestParseRFC3339(t *testing.T) {
	got, err := ParseRFC3339("2024-05-01T10:11:12.5Z")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got.Nanosecond() != 500_000_000 {
		t.Fatalf("fraction lost: %v", got)
	}
	if _, err := ParseRFC3339(""); err == nil {
		t.Fatalf("expected error for empty value")
	}
	ts := ISOTimestamp(time.Date(2024, 5, 1, 10, 11, 12, 123456000, time.UTC))
	if ts != "2024-05-01T10:11:12.123456" {
		t.Fatalf("unexpected iso timestamp %s", ts)
	}
}
