package logging

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestBufferSplitsAndCaps(t *testing.T) {
	b := NewBuffer(3)
	fmt.Fprint(b, "one\ntwo\nthr")
	if got := b.Lines(0); len(got) != 2 {
		t.Fatalf("lines = %q, want 2 complete lines", got)
	}
	fmt.Fprint(b, "ee\nfour\nfive\n")

	got := b.Lines(0)
	want := []string{"three", "four", "five"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("lines = %q, want %q", got, want)
	}
	if last := b.Lines(1); len(last) != 1 || last[0] != "five" {
		t.Fatalf("Lines(1) = %q", last)
	}
}

func TestOpenWritesFileAndBuffer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "poseframe.log")
	buf := NewBuffer(10)

	logger, closer, err := Open(path, "debug", buf)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	logger.Debug("camera acquired", "device", "0")
	if err := closer.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "camera acquired") || !strings.Contains(string(data), "device=0") {
		t.Fatalf("log file = %q", data)
	}
	lines := buf.Lines(0)
	if len(lines) != 1 || !strings.Contains(lines[0], "camera acquired") {
		t.Fatalf("buffer = %q", lines)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"":        slog.LevelInfo,
		"DEBUG":   slog.LevelDebug,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Errorf("ParseLevel(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatal("expected error for unknown level")
	}
}
