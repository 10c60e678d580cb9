package logging

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestEvery(t *testing.T) {
	t.Parallel()

	var last atomic.Int64
	if !Every(&last, time.Hour) {
		t.Fatal("first call should log")
	}
	if Every(&last, time.Hour) {
		t.Fatal("second call inside period should not log")
	}
	if !Every(nil, time.Hour) {
		t.Fatal("nil counter should always log")
	}
}

func TestSetup_DebugFile(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	path := filepath.Join(t.TempDir(), "debug.log")
	t.Setenv(debugEnv, "1")
	t.Setenv(debugFileEnv, path)

	var stderr bytes.Buffer
	logger, closer := Setup(&stderr, false)
	logger.Debug("frame skipped", "reason", "nil_image")
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read debug file: %v", err)
	}
	if !strings.Contains(string(data), "reason=nil_image") {
		t.Errorf("debug file missing record: %q", data)
	}
	if stderr.Len() != 0 {
		t.Errorf("stderr should be unused when debug file is set, got %q", stderr.String())
	}
}
