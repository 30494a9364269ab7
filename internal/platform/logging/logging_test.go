package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestFormatLog(t *testing.T) {
	tests := []struct {
		tag, msg, want string
	}{
		{"ASR", "done", "[ASR] done"},
		{"", "plain", "plain"},
		{"ASR", "[Grader] kept", "[Grader] kept"},
	}
	for _, tt := range tests {
		if got := FormatLog(tt.tag, tt.msg); got != tt.want {
			t.Errorf("FormatLog(%q, %q) = %q, want %q", tt.tag, tt.msg, got, tt.want)
		}
	}
}

func TestLogger_TagAndLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriter(&buf, "info")

	logger.DebugTag("Pipeline", "hidden %d", 1)
	logger.InfoTag("Pipeline", "question %d done", 2)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug line should be filtered: %q", out)
	}
	if !strings.Contains(out, "[Pipeline] question 2 done") {
		t.Fatalf("missing tagged line: %q", out)
	}
}

func TestLogger_NilSafe(t *testing.T) {
	var logger *Logger
	logger.InfoTag("Session", "no panic")
	if err := logger.Close(); err != nil {
		t.Fatalf("close on nil logger: %v", err)
	}
}

func TestParseLevel(t *testing.T) {
	if ParseLevel("DEBUG") != slog.LevelDebug {
		t.Error("expected debug")
	}
	if ParseLevel("bogus") != slog.LevelInfo {
		t.Error("expected info default")
	}
}

func TestNew_WithFileSink(t *testing.T) {
	logger, err := New(Config{Level: "debug", Dir: t.TempDir(), Filename: "test.log"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Info("hello %s", "file")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
