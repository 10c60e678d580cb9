// Package finalize turns the buffers of a stopped session into a video file
// and an interaction log.
package finalize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"go2tv.app/screenrec/audio"
	"go2tv.app/screenrec/capture"
	"go2tv.app/screenrec/interaction"
)

var (
	ErrEncode = errors.New("video encode failed")
	ErrMux    = errors.New("audio mux failed")
)

const (
	defaultFFmpeg        = "ffmpeg"
	defaultEncodeTimeout = 10 * time.Minute
	defaultMuxTimeout    = 2 * time.Minute
)

type Options struct {
	OutputDir  string
	FFmpegPath string
	// Platform is written into the interaction log; defaults to
	// PlatformName(runtime.GOOS).
	Platform      string
	Runner        Runner
	Encoder       VideoEncoder
	EncodeTimeout time.Duration
	MuxTimeout    time.Duration
}

// Input is everything a session hands over once its producers have stopped.
type Input struct {
	SessionID string
	StartedAt time.Time
	Frames    []capture.Frame
	TargetFPS float64

	AudioEnabled bool
	Audio        []audio.Block
	SampleRate   int
	Channels     int

	Callback []interaction.Event
	Polled   []interaction.Event
}

// Artifacts are the final output paths. An empty path means the artifact
// was not produced.
type Artifacts struct {
	VideoPath        string
	InteractionsPath string
}

type Finalizer struct {
	opts Options
}

func New(opts Options) *Finalizer {
	if opts.FFmpegPath == "" {
		opts.FFmpegPath = defaultFFmpeg
	}
	if opts.Platform == "" {
		opts.Platform = PlatformName(runtime.GOOS)
	}
	if opts.Runner == nil {
		opts.Runner = ExecRunner{}
	}
	if opts.Encoder == nil {
		opts.Encoder = &FFmpegEncoder{Path: opts.FFmpegPath, Runner: opts.Runner}
	}
	if opts.EncodeTimeout <= 0 {
		opts.EncodeTimeout = defaultEncodeTimeout
	}
	if opts.MuxTimeout <= 0 {
		opts.MuxTimeout = defaultMuxTimeout
	}
	return &Finalizer{opts: opts}
}

// PlatformName maps a GOOS value to the OS name the interaction log
// carries, such as "Linux", "Windows" or "Darwin".
func PlatformName(goos string) string {
	switch goos {
	case "linux":
		return "Linux"
	case "windows":
		return "Windows"
	case "darwin":
		return "Darwin"
	case "freebsd":
		return "FreeBSD"
	case "openbsd":
		return "OpenBSD"
	case "netbsd":
		return "NetBSD"
	case "dragonfly":
		return "DragonFly"
	case "solaris":
		return "SunOS"
	case "":
		return ""
	}
	return strings.ToUpper(goos[:1]) + goos[1:]
}

// AchievedFPS derives the real capture rate from the first and last frame
// offsets, falling back to target when fewer than two frames span a
// positive interval.
func AchievedFPS(frames []capture.Frame, target float64) float64 {
	if len(frames) < 2 {
		return target
	}
	span := frames[len(frames)-1].Elapsed - frames[0].Elapsed
	if span <= 0 {
		return target
	}
	return float64(len(frames)-1) / span.Seconds()
}

// Finalize writes the session's artifacts. No frames means nothing is
// written and the zero Artifacts is returned without error. A failed mux
// degrades to a video without audio. A failed encode still writes the
// interaction log and returns an error wrapping ErrEncode.
func (f *Finalizer) Finalize(ctx context.Context, in Input) (Artifacts, error) {
	if len(in.Frames) == 0 {
		return Artifacts{}, nil
	}
	if err := os.MkdirAll(f.opts.OutputDir, 0o755); err != nil {
		return Artifacts{}, fmt.Errorf("create output dir: %w", err)
	}

	paths := pathsFor(f.opts.OutputDir, in.StartedAt)
	defer func() {
		removeTemp(paths.tempVideo)
		removeTemp(paths.tempAudio)
	}()

	fps := AchievedFPS(in.Frames, in.TargetFPS)
	img := in.Frames[0].Image
	slog.Info("encoding video",
		"frames", len(in.Frames),
		"fps", fmt.Sprintf("%.2f", fps),
		"size", fmt.Sprintf("%dx%d", img.Width, img.Height),
		"raw", humanize.IBytes(uint64(img.Bytes())*uint64(len(in.Frames))))

	var art Artifacts
	videoErr := f.encode(ctx, paths.tempVideo, in.Frames, fps)
	if videoErr == nil {
		videoErr = f.produceVideo(ctx, paths, in)
		if videoErr == nil {
			art.VideoPath = paths.video
		}
	}

	logErr := f.writeLog(paths.interactions, in)
	if logErr == nil {
		art.InteractionsPath = paths.interactions
	}
	return art, errors.Join(videoErr, logErr)
}

func (f *Finalizer) encode(ctx context.Context, path string, frames []capture.Frame, fps float64) error {
	ctx, cancel := context.WithTimeout(ctx, f.opts.EncodeTimeout)
	defer cancel()
	if err := f.opts.Encoder.Encode(ctx, path, frames, fps); err != nil {
		return fmt.Errorf("%w: %w", ErrEncode, err)
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("%w: encoder produced no output: %w", ErrEncode, err)
	}
	return nil
}

// produceVideo muxes audio into the temp video when there is any, and
// otherwise promotes the temp video as is.
func (f *Finalizer) produceVideo(ctx context.Context, paths sessionPaths, in Input) error {
	if in.AudioEnabled && len(in.Audio) > 0 {
		err := f.mux(ctx, paths, in)
		if err == nil {
			return nil
		}
		slog.Warn("saving video without audio", "err", err)
		removeTemp(paths.video)
	}
	return promote(paths.tempVideo, paths.video)
}

func (f *Finalizer) mux(ctx context.Context, paths sessionPaths, in Input) error {
	rate, channels := blockFormat(in.Audio, in.SampleRate, in.Channels)
	if err := writeWAV(paths.tempAudio, in.Audio, rate, channels); err != nil {
		return fmt.Errorf("%w: %w", ErrMux, err)
	}

	ctx, cancel := context.WithTimeout(ctx, f.opts.MuxTimeout)
	defer cancel()
	if err := f.opts.Runner.Run(ctx, f.opts.FFmpegPath, MuxArgs(paths.tempVideo, paths.tempAudio, paths.video), nil); err != nil {
		return fmt.Errorf("%w: %w", ErrMux, err)
	}
	if _, err := os.Stat(paths.video); err != nil {
		return fmt.Errorf("%w: no output: %w", ErrMux, err)
	}
	return nil
}

// MuxArgs copies the video stream, encodes audio to AAC and resamples it to
// stay in sync with the video timeline.
func MuxArgs(video, audio, out string) []string {
	return []string{
		"-y",
		"-i", video,
		"-i", audio,
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-c:v", "copy",
		"-c:a", "aac",
		"-af", "aresample=async=1:min_hard_comp=0.100:first_pts=0",
		"-avoid_negative_ts", "make_zero",
		out,
	}
}

func (f *Finalizer) writeLog(path string, in Input) error {
	events := interaction.Merge(in.Callback, in.Polled)
	l := interaction.NewLog(events, f.opts.Platform, in.SessionID, len(in.Frames))
	return l.WriteFile(path)
}
