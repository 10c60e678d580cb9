package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"time"
)

const (
	debugEnv     = "SCREENREC_DEBUG"
	debugFileEnv = "SCREENREC_DEBUG_FILE"
)

// DebugEnabled reports whether SCREENREC_DEBUG=1 is set.
func DebugEnabled() bool {
	return strings.TrimSpace(os.Getenv(debugEnv)) == "1"
}

// Setup installs the process-wide slog logger. Output goes to w unless
// SCREENREC_DEBUG_FILE names a file, in which case records are appended there.
// The returned closer releases that file, if any.
func Setup(w io.Writer, verbose bool) (*slog.Logger, io.Closer) {
	if w == nil {
		w = os.Stderr
	}

	var closer io.Closer = nopCloser{}
	if p := strings.TrimSpace(os.Getenv(debugFileEnv)); p != "" {
		f, err := os.OpenFile(p, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "screenrec debug log open failed: %v\n", err)
		} else {
			w = f
			closer = f
		}
	}

	level := slog.LevelInfo
	if verbose || DebugEnabled() {
		level = slog.LevelDebug
	}

	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger, closer
}

// Every reports whether at least period has passed since the last time it
// returned true for the same counter. Safe for concurrent use; used to keep
// hot-path warnings from flooding the log.
func Every(last *atomic.Int64, period time.Duration) bool {
	if last == nil || period <= 0 {
		return true
	}

	now := time.Now().UnixNano()
	for {
		prev := last.Load()
		if prev != 0 && time.Duration(now-prev) < period {
			return false
		}
		if last.CompareAndSwap(prev, now) {
			return true
		}
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
