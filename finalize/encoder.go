package finalize

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"go2tv.app/screenrec/capture"
)

const encoderTrialTimeout = 5 * time.Second

// VideoEncoder turns a frame sequence into a video file at path.
type VideoEncoder interface {
	Encode(ctx context.Context, path string, frames []capture.Frame, fps float64) error
}

type encoderPlan struct {
	label       string
	codec       string
	hardware    bool
	globalArgs  []string
	videoFilter string
	codecArgs   []string
}

// FFmpegEncoder pipes raw BGR24 frames into ffmpeg. With Hardware set the
// first hardware encoder that survives a trial encode is used, falling back to
// libx264; the choice is made once per encoder.
type FFmpegEncoder struct {
	Path     string
	Hardware bool
	Runner   Runner

	planOnce sync.Once
	plan     encoderPlan
}

func (e *FFmpegEncoder) Encode(ctx context.Context, path string, frames []capture.Frame, fps float64) error {
	if len(frames) == 0 {
		return fmt.Errorf("no frames to encode")
	}
	first := frames[0].Image
	for i, f := range frames {
		if f.Image.Width != first.Width || f.Image.Height != first.Height {
			return fmt.Errorf("frame %d is %dx%d, expected %dx%d", i, f.Image.Width, f.Image.Height, first.Width, first.Height)
		}
	}

	runner := e.Runner
	if runner == nil {
		runner = ExecRunner{}
	}
	plan := e.resolvePlan(ctx, runner)
	args := encodeArgs(plan, first.Width, first.Height, fps, path)
	return runner.Run(ctx, e.Path, args, frameReader(frames))
}

func encodeArgs(plan encoderPlan, width, height int, fps float64, out string) []string {
	args := []string{"-y", "-v", "error", "-nostdin"}
	args = append(args, plan.globalArgs...)
	args = append(args,
		"-f", "rawvideo",
		"-pix_fmt", "bgr24",
		"-s", fmt.Sprintf("%dx%d", width, height),
		"-r", strconv.FormatFloat(fps, 'f', -1, 64),
		"-i", "pipe:0",
		"-an",
	)
	if strings.TrimSpace(plan.videoFilter) != "" {
		args = append(args, "-vf", plan.videoFilter)
	}
	args = append(args, plan.codecArgs...)
	args = append(args, "-movflags", "+faststart", out)
	return args
}

func frameReader(frames []capture.Frame) io.Reader {
	readers := make([]io.Reader, 0, len(frames))
	for _, f := range frames {
		readers = append(readers, bytes.NewReader(f.Image.Pix))
	}
	return io.MultiReader(readers...)
}

func (e *FFmpegEncoder) resolvePlan(ctx context.Context, runner Runner) encoderPlan {
	e.planOnce.Do(func() {
		e.plan = softwareEncoderPlan()
		if !e.Hardware {
			return
		}
		candidates := hardwareEncoderCandidates(runtime.GOOS)
		if len(candidates) == 0 {
			reportEncoderSelection(e.plan, "no_hardware_candidates")
			return
		}
		if _, err := exec.LookPath(e.Path); err != nil {
			reportEncoderSelection(e.plan, "ffmpeg_not_found")
			return
		}
		available, err := ffmpegEncoderSet(ctx, e.Path)
		if err != nil {
			slog.Debug("ffmpeg encoder list unavailable", "err", err)
		}
		e.plan = choosePlan(ctx, runner, e.Path, candidates, available)
	})
	return e.plan
}

// choosePlan returns the first candidate that ffmpeg lists (when the list is
// known) and that encodes a short synthetic clip, or libx264.
func choosePlan(ctx context.Context, runner Runner, ffmpegPath string, candidates []encoderPlan, available map[string]struct{}) encoderPlan {
	for _, candidate := range candidates {
		if len(available) > 0 {
			if _, ok := available[candidate.codec]; !ok {
				slog.Debug("encoder trial skipped", "encoder", candidate.label, "reason", "not_listed")
				continue
			}
		}
		trialCtx, cancel := context.WithTimeout(ctx, encoderTrialTimeout)
		err := runner.Run(trialCtx, ffmpegPath, trialArgs(candidate), nil)
		cancel()
		if err != nil {
			slog.Debug("encoder trial failed", "encoder", candidate.label, "err", err)
			continue
		}
		reportEncoderSelection(candidate, "")
		return candidate
	}

	software := softwareEncoderPlan()
	reportEncoderSelection(software, "all_hardware_trials_failed")
	return software
}

func ffmpegEncoderSet(ctx context.Context, ffmpegPath string) (map[string]struct{}, error) {
	ctx, cancel := context.WithTimeout(ctx, encoderTrialTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, ffmpegPath, "-hide_banner", "-encoders")
	hideWindow(cmd)
	out, err := cmd.Output()
	if ctx.Err() != nil {
		return nil, fmt.Errorf("ffmpeg -encoders timeout after %s", encoderTrialTimeout)
	}
	if err != nil {
		return nil, fmt.Errorf("ffmpeg -encoders failed: %w", err)
	}
	return parseEncoderList(string(out)), nil
}

// parseEncoderList reads `ffmpeg -encoders` output, whose rows look like
// " V....D h264_nvenc  NVIDIA NVENC H.264 encoder".
func parseEncoderList(out string) map[string]struct{} {
	encoders := make(map[string]struct{})
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(strings.TrimSpace(line))
		if len(fields) < 2 {
			continue
		}
		if strings.HasPrefix(fields[0], "V") && strings.Trim(fields[0], "VASFXBD.") == "" {
			encoders[fields[1]] = struct{}{}
		}
	}
	return encoders
}

func reportEncoderSelection(plan encoderPlan, reason string) {
	mode := "software"
	if plan.hardware {
		mode = "hardware"
	}
	if reason == "" {
		slog.Info("video encoder selected", "encoder", plan.label, "mode", mode)
		return
	}
	slog.Info("video encoder selected", "encoder", plan.label, "mode", mode, "reason", reason)
}

// trialArgs encodes half a second of black 720p to the null muxer.
func trialArgs(plan encoderPlan) []string {
	args := []string{"-v", "error", "-nostdin"}
	args = append(args, plan.globalArgs...)
	args = append(args,
		"-f", "lavfi",
		"-i", "color=c=black:s=1280x720:r=30:d=0.5",
		"-an",
		"-frames:v", "8",
	)
	if strings.TrimSpace(plan.videoFilter) != "" {
		args = append(args, "-vf", plan.videoFilter)
	}
	args = append(args, plan.codecArgs...)
	return append(args, "-f", "null", "-")
}

func hardwareEncoderCandidates(goos string) []encoderPlan {
	switch goos {
	case "darwin":
		return []encoderPlan{
			hardwareEncoderPlan("h264_videotoolbox", "h264_videotoolbox", nil, "format=yuv420p"),
		}
	case "windows":
		return []encoderPlan{
			hardwareEncoderPlan("h264_nvenc", "h264_nvenc", nil, "format=yuv420p"),
			hardwareEncoderPlan("h264_amf", "h264_amf", nil, "format=yuv420p"),
			hardwareEncoderPlan("h264_qsv", "h264_qsv", nil, "format=nv12"),
		}
	case "linux":
		candidates := []encoderPlan{
			hardwareEncoderPlan("h264_nvenc", "h264_nvenc", nil, "format=yuv420p"),
		}
		devices, err := filepath.Glob("/dev/dri/renderD*")
		if err == nil {
			for _, dev := range devices {
				label := fmt.Sprintf("h264_vaapi (%s)", dev)
				candidates = append(candidates, hardwareEncoderPlan("h264_vaapi", label, []string{"-vaapi_device", dev}, "format=nv12,hwupload"))
			}
		}
		return append(candidates, hardwareEncoderPlan("h264_qsv", "h264_qsv", nil, "format=nv12"))
	default:
		return nil
	}
}

func hardwareEncoderPlan(codec, label string, globalArgs []string, filter string) encoderPlan {
	return encoderPlan{
		label:       label,
		codec:       codec,
		hardware:    true,
		globalArgs:  append([]string(nil), globalArgs...),
		videoFilter: filter,
		codecArgs: []string{
			"-c:v", codec,
			"-b:v", "6000k",
			"-maxrate", "8000k",
			"-bufsize", "12000k",
		},
	}
}

func softwareEncoderPlan() encoderPlan {
	return encoderPlan{
		label: "libx264",
		codec: "libx264",
		codecArgs: []string{
			"-c:v", "libx264",
			"-preset", "veryfast",
			"-crf", "23",
			"-pix_fmt", "yuv420p",
		},
	}
}
