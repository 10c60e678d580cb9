package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"go2tv.app/screenrec/internal/config"
	"go2tv.app/screenrec/recorder"
)

type recordFlags struct {
	duration time.Duration
	output   string
	fps      int
	backend  string
	noAudio  bool
	noInput  bool
}

func newRecordCmd(a *app) *cobra.Command {
	var f recordFlags

	cmd := &cobra.Command{
		Use:     "record",
		Aliases: []string{"rec", "r"},
		Short:   "Record until Ctrl+C (or --duration) and save the video and interaction log",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := *a.cfg
			if err := applyRecordFlags(cmd, &cfg, f); err != nil {
				return err
			}
			return runRecord(cmd, &cfg, f.duration)
		},
	}

	cmd.Flags().DurationVarP(&f.duration, "duration", "d", 0, "Stop automatically after this long (for example 30s, 5m)")
	cmd.Flags().StringVarP(&f.output, "output", "o", "", "Directory for recordings (overrides config)")
	cmd.Flags().IntVar(&f.fps, "fps", 0, "Target frames per second (1-60)")
	cmd.Flags().StringVar(&f.backend, "backend", "", "Capture backend: auto|display|portal|screenshot")
	cmd.Flags().BoolVar(&f.noAudio, "no-audio", false, "Do not record the microphone")
	cmd.Flags().BoolVar(&f.noInput, "no-input", false, "Do not record mouse and keyboard activity")
	return cmd
}

func applyRecordFlags(cmd *cobra.Command, cfg *config.Config, f recordFlags) error {
	if f.duration < 0 {
		return errors.New("--duration cannot be negative")
	}
	if cmd.Flags().Changed("output") {
		cfg.OutputDir = f.output
	}
	if cmd.Flags().Changed("fps") {
		cfg.Video.FPS = f.fps
	}
	if cmd.Flags().Changed("backend") {
		cfg.Video.Backend = strings.ToLower(strings.TrimSpace(f.backend))
	}
	if f.noAudio {
		cfg.Audio.Mode = config.AudioOff
	}
	if f.noInput {
		cfg.Input.Enabled = false
	}
	return cfg.Normalize()
}

func runRecord(cmd *cobra.Command, cfg *config.Config, duration time.Duration) error {
	out := cmd.OutOrStdout()
	rec := newRecorder(cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rec.Start(ctx); err != nil {
		if reason, ok := recorder.ReasonOf(err); ok && reason == recorder.ReasonCaptureUnavailable {
			printHint(out, "Run `screenrec doctor` to check displays and permissions.")
		}
		return fmt.Errorf("start recording: %w", err)
	}

	sess := rec.Session()
	printOK(out, "Recording session %s into %s", sess.ID, sess.OutputDir)
	for _, r := range sess.Degraded {
		printWarn(out, "%s", describeReason(r))
	}

	var deadline <-chan time.Time
	if duration > 0 {
		t := time.NewTimer(duration)
		defer t.Stop()
		deadline = t.C
		printHint(out, "Stopping automatically after %s, or press Ctrl+C.", duration)
	} else {
		printHint(out, "Press Ctrl+C to stop.")
	}

	select {
	case <-ctx.Done():
	case <-deadline:
	case err := <-rec.Fatal():
		printError(out, "Screen capture failed: %v", err)
	}
	// A second Ctrl+C during finalization should terminate.
	stop()

	fmt.Fprintln(out, "Finalizing...")
	art, err := rec.Stop(context.WithoutCancel(cmd.Context()))
	printArtifacts(out, art)
	for _, r := range rec.Session().Degraded {
		if r == recorder.ReasonFrameBudget {
			printWarn(out, "%s", describeReason(r))
		}
	}
	if err != nil {
		return fmt.Errorf("save recording: %w", err)
	}
	return nil
}
