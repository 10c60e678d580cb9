package finalize

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
)

// Runner executes an external tool to completion. stdin may be nil.
type Runner interface {
	Run(ctx context.Context, name string, args []string, stdin io.Reader) error
}

// ExecRunner runs commands with os/exec, keeping stderr for error reports.
type ExecRunner struct {
	// LogOutput, when set, also receives the tool's stderr.
	LogOutput io.Writer
}

func (r ExecRunner) Run(ctx context.Context, name string, args []string, stdin io.Reader) error {
	tool := filepath.Base(name)
	slog.Debug("exec", "tool", tool, "args", strings.Join(args, " "))

	stderr := &lockedBuffer{}
	var w io.Writer = stderr
	if r.LogOutput != nil {
		w = io.MultiWriter(r.LogOutput, stderr)
	}

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = stdin
	cmd.Stderr = w
	hideWindow(cmd)

	err := cmd.Run()
	if ctx.Err() != nil {
		return fmt.Errorf("%s: %w", tool, ctx.Err())
	}
	if err != nil {
		return fmt.Errorf("%s: %w: %s", tool, err, stderr.Tail(300))
	}
	return nil
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) Tail(n int) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return tailString(strings.TrimSpace(b.buf.String()), n)
}

func tailString(input string, max int) string {
	if input == "" {
		return "no ffmpeg stderr output"
	}
	if max <= 0 || len(input) <= max {
		return input
	}
	return input[len(input)-max:]
}
