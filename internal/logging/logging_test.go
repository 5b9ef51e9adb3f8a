package logging

import (
	log "log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]log.Level{
		"debug":  log.LevelDebug,
		" INFO ": log.LevelInfo,
		"warn":   log.LevelWarn,
		"error":  log.LevelError,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Errorf("ParseLevel(%q) = %v, %v", in, got, err)
		}
	}

	if _, err := ParseLevel("loud"); err == nil {
		t.Error("unknown level accepted")
	}
}

func TestFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rivoo.log")

	logger, closer := New(log.LevelInfo, path)
	logger.Debug("hidden")
	logger.Info("Booting up", "mode", "auto")
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	out := string(data)

	if !strings.Contains(out, "Booting up") || !strings.Contains(out, "mode=auto") {
		t.Fatalf("log file = %q", out)
	}
	if strings.Contains(out, "hidden") {
		t.Fatal("debug line written at info level")
	}
	if strings.Contains(out, "\x1b[") {
		t.Fatal("color codes in log file")
	}
}
