package cli

import (
	"fmt"
	"image"
	"io"
	"os"
	"os/exec"
	"runtime"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"go2tv.app/screenrec/audio"
	"go2tv.app/screenrec/audio/portaudio"
	"go2tv.app/screenrec/capture"
	"go2tv.app/screenrec/internal/config"
	"go2tv.app/screenrec/internal/sysinfo"
)

func newDoctorCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check ffmpeg, displays, audio input and memory before recording",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			cfg := a.cfg

			fmt.Fprintln(out, "screenrec doctor")
			fmt.Fprintln(out)
			fmt.Fprintf(out, "OS: %s/%s\n", runtime.GOOS, runtime.GOARCH)
			fmt.Fprintf(out, "Config file: %s\n", configSource(a.configPath))
			fmt.Fprintf(out, "Output dir: %s\n", cfg.OutputDir)

			if path, err := exec.LookPath(cfg.FFmpegPath); err != nil {
				printError(out, "ffmpeg: NOT FOUND (%s)", cfg.FFmpegPath)
				printHint(out, "Install ffmpeg or set ffmpeg_path / SCREENREC_FFMPEG.")
			} else {
				printOK(out, "ffmpeg: OK (%s)", path)
			}

			if err := ensureWritable(cfg.OutputDir); err != nil {
				printError(out, "Output dir writable: FAILED (%v)", err)
			} else {
				printOK(out, "Output dir writable: OK")
			}

			displays := capture.Displays()
			if len(displays) == 0 {
				printWarn(out, "Displays: none found by the display backend")
				if runtime.GOOS == "linux" {
					printHint(out, "On Wayland the portal backend is used instead.")
				}
			}
			for i, b := range displays {
				marker := ""
				if i == cfg.Video.Display {
					marker = " (selected)"
				}
				printOK(out, "Display %d: %dx%d at %d,%d%s", i, b.Dx(), b.Dy(), b.Min.X, b.Min.Y, marker)
			}
			if runtime.GOOS == "linux" {
				if capture.PipeWireAvailable() {
					printOK(out, "PipeWire: OK (portal backend can stream)")
				} else {
					printWarn(out, "PipeWire: libpipewire-0.3 not loadable, Wayland falls back to the screenshot portal")
				}
			}

			checkAudio(out, cfg)
			checkMemory(out, cfg, displays)

			if runtime.GOOS == "linux" && os.Getenv("DISPLAY") == "" {
				printWarn(out, "Input hooks: no X11 display, keyboard and mouse events will not be logged")
			}
			return nil
		},
	}
}

func checkAudio(out io.Writer, cfg *config.Config) {
	if !audio.Enabled(cfg.Audio.Mode, runtime.GOOS) {
		printWarn(out, "Audio: disabled (mode %s on %s)", cfg.Audio.Mode, runtime.GOOS)
		return
	}
	dev, err := portaudio.DefaultInput()
	if err != nil {
		printWarn(out, "Audio: no default input device (%v)", err)
		return
	}
	printOK(out, "Audio: %s (%d ch, %.0f Hz)", dev.Name, dev.MaxInputChannels, dev.DefaultSampleRate)
}

func checkMemory(out io.Writer, cfg *config.Config, displays []image.Rectangle) {
	avail, err := sysinfo.AvailableMemory()
	if err != nil {
		printWarn(out, "Memory: unknown (%v)", err)
		return
	}
	printOK(out, "Memory available: %s", humanize.IBytes(avail))

	budget := uint64(float64(avail) * cfg.Video.MemoryFraction)
	if budget == 0 || cfg.Video.Display >= len(displays) {
		return
	}
	b := displays[cfg.Video.Display]
	w, h := capture.EvenSize(b.Dx(), b.Dy())
	perSecond := uint64(w*h*3) * uint64(cfg.Video.FPS)
	if perSecond == 0 {
		return
	}
	seconds := budget / perSecond
	printOK(out, "Frame buffer budget: %s, about %d min at %d fps", humanize.IBytes(budget), seconds/60, cfg.Video.FPS)
}

func configSource(explicit string) string {
	if explicit != "" {
		return explicit
	}
	p := config.DefaultPath()
	if p == "" {
		return "(defaults)"
	}
	if _, err := os.Stat(p); err != nil {
		return p + " (not present, using defaults)"
	}
	return p
}

func ensureWritable(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	file, err := os.CreateTemp(dir, "doctor-write-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	path := file.Name()
	if err := file.Close(); err != nil {
		_ = os.Remove(path)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("remove temp file: %w", err)
	}
	return nil
}
