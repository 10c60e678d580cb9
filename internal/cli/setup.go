package cli

import (
	"os"
	"runtime"

	"go2tv.app/screenrec/audio"
	"go2tv.app/screenrec/audio/portaudio"
	"go2tv.app/screenrec/capture"
	"go2tv.app/screenrec/finalize"
	"go2tv.app/screenrec/interaction"
	"go2tv.app/screenrec/interaction/gohook"
	"go2tv.app/screenrec/internal/config"
	"go2tv.app/screenrec/internal/logging"
	"go2tv.app/screenrec/internal/sysinfo"
	"go2tv.app/screenrec/recorder"
)

func recorderOptions(cfg *config.Config, goos string, frameBudget uint64) recorder.Options {
	return recorder.Options{
		OutputDir:              cfg.OutputDir,
		FPS:                    float64(cfg.Video.FPS),
		MaxConsecutiveFailures: cfg.Video.MaxCaptureFailures,
		MaxBufferBytes:         frameBudget,
		AudioEnabled:           audio.Enabled(cfg.Audio.Mode, goos),
		AudioFormat:            audio.NewFormat(cfg.Audio.SampleRate, cfg.Audio.Channels),
		InputEnabled:           cfg.Input.Enabled,
		Input: interaction.Options{
			SampleInterval: cfg.SampleInterval(),
			PollTick:       cfg.PollTick(),
			ScrollCooldown: cfg.ScrollCooldown(),
		},
		JoinTimeout: cfg.JoinTimeout(),
	}
}

func newRecorder(cfg *config.Config) *recorder.Recorder {
	runner := finalize.ExecRunner{}
	if logging.DebugEnabled() {
		runner.LogOutput = os.Stderr
	}

	fin := finalize.New(finalize.Options{
		OutputDir:  cfg.OutputDir,
		FFmpegPath: cfg.FFmpegPath,
		Runner:     runner,
		Encoder: &finalize.FFmpegEncoder{
			Path:     cfg.FFmpegPath,
			Hardware: cfg.Video.HardwareEncoder,
			Runner:   runner,
		},
		EncodeTimeout: cfg.EncodeTimeout(),
		MuxTimeout:    cfg.MuxTimeout(),
	})

	opts := recorderOptions(cfg, runtime.GOOS, sysinfo.FrameBudget(cfg.Video.MemoryFraction))
	return recorder.New(opts, recorder.Deps{
		OpenCapture: func() (capture.Provider, error) {
			return capture.Open(&capture.Options{Backend: cfg.Video.Backend, Display: cfg.Video.Display})
		},
		AudioDevice:    portaudio.New(),
		NewInputSource: func() interaction.Source { return gohook.New() },
		Finalizer:      fin,
	})
}
