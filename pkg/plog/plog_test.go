package plog

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLevelFromString(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"notice", LevelNotice},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"  WARN  ", slog.LevelWarn},
		{"bogus", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := LevelFromString(tt.in); got != tt.want {
			t.Errorf("LevelFromString(%q) = %v; want %v", tt.in, got, tt.want)
		}
	}
}

func TestNoticeSitsBetweenInfoAndWarn(t *testing.T) {
	if LevelNotice <= slog.LevelInfo || LevelNotice >= slog.LevelWarn {
		t.Errorf("LevelNotice = %v; want strictly between INFO and WARN", LevelNotice)
	}
}

func TestSetOutputCapturesRecords(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(CloseRunLog)

	Info("hello", "key", "value")
	Notice("action", "path", "a/b.txt")
	Warn("careful")

	out := buf.String()
	for _, want := range []string{"hello", "key=value", "action", "path=a/b.txt", "careful"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestOpenRunLogCreatesTimestampedFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	start := time.Date(2026, 8, 29, 10, 20, 30, 0, time.Local)

	path, err := OpenRunLog(dir, start)
	if err != nil {
		t.Fatalf("OpenRunLog returned error: %v", err)
	}
	t.Cleanup(CloseRunLog)

	if filepath.Base(path) != "dupsync_20260829_102030.log" {
		t.Errorf("log name = %s", filepath.Base(path))
	}

	Notice("COPY", "path", "söme/ünicode.txt")
	CloseRunLog()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("run log not readable: %v", err)
	}
	content := string(data)
	if !strings.Contains(content, "COPY") {
		t.Error("run log missing the NOTICE record")
	}
	// UTF-8 path names land in the log verbatim.
	if !strings.Contains(content, "ünicode") {
		t.Errorf("run log mangled non-ASCII path:\n%s", content)
	}
	if !strings.Contains(content, "NOTICE") {
		t.Error("custom level not rendered by name")
	}
}
