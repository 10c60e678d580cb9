package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

const (
	defaultOutputDir          = "recordings"
	defaultFFmpegPath         = "ffmpeg"
	defaultFPS                = 30
	defaultMaxCaptureFailures = 30
	defaultMemoryFraction     = 0.5
	defaultSampleRate         = 44100
	defaultChannels           = 2
	defaultSampleIntervalMS   = 50
	defaultPollTickMS         = 10
	defaultJoinTimeoutMS      = 2000
	defaultEncodeTimeoutSec   = 600
	defaultMuxTimeoutSec      = 300
)

const (
	BackendAuto       = "auto"
	BackendDisplay    = "display"
	BackendPortal     = "portal"
	BackendScreenshot = "screenshot"

	AudioAuto = "auto"
	AudioOn   = "on"
	AudioOff  = "off"
)

type Config struct {
	OutputDir  string        `toml:"output_dir" yaml:"output_dir"`
	FFmpegPath string        `toml:"ffmpeg_path" yaml:"ffmpeg_path"`
	Video      VideoConfig   `toml:"video" yaml:"video"`
	Audio      AudioConfig   `toml:"audio" yaml:"audio"`
	Input      InputConfig   `toml:"input" yaml:"input"`
	Session    SessionConfig `toml:"session" yaml:"session"`
}

type VideoConfig struct {
	FPS                int    `toml:"fps" yaml:"fps"`
	Backend            string `toml:"backend" yaml:"backend"`
	Display            int    `toml:"display" yaml:"display"`
	MaxCaptureFailures int    `toml:"max_capture_failures" yaml:"max_capture_failures"`
	// MemoryFraction is the share of currently available RAM the in-memory
	// frame buffer may occupy. Zero disables the budget.
	MemoryFraction  float64 `toml:"memory_fraction" yaml:"memory_fraction"`
	HardwareEncoder bool    `toml:"hardware_encoder" yaml:"hardware_encoder"`
}

type AudioConfig struct {
	Mode       string `toml:"mode" yaml:"mode"`
	SampleRate int    `toml:"sample_rate" yaml:"sample_rate"`
	Channels   int    `toml:"channels" yaml:"channels"`
}

type InputConfig struct {
	Enabled          bool `toml:"enabled" yaml:"enabled"`
	SampleIntervalMS int  `toml:"sample_interval_ms" yaml:"sample_interval_ms"`
	PollTickMS       int  `toml:"poll_tick_ms" yaml:"poll_tick_ms"`
	ScrollCooldownMS int  `toml:"scroll_cooldown_ms" yaml:"scroll_cooldown_ms"`
}

type SessionConfig struct {
	JoinTimeoutMS    int `toml:"join_timeout_ms" yaml:"join_timeout_ms"`
	EncodeTimeoutSec int `toml:"encode_timeout_sec" yaml:"encode_timeout_sec"`
	MuxTimeoutSec    int `toml:"mux_timeout_sec" yaml:"mux_timeout_sec"`
}

func Default() *Config {
	return &Config{
		OutputDir:  defaultOutputDir,
		FFmpegPath: defaultFFmpegPath,
		Video: VideoConfig{
			FPS:                defaultFPS,
			Backend:            BackendAuto,
			MaxCaptureFailures: defaultMaxCaptureFailures,
			MemoryFraction:     defaultMemoryFraction,
			HardwareEncoder:    true,
		},
		Audio: AudioConfig{
			Mode:       AudioAuto,
			SampleRate: defaultSampleRate,
			Channels:   defaultChannels,
		},
		Input: InputConfig{
			Enabled:          true,
			SampleIntervalMS: defaultSampleIntervalMS,
			PollTickMS:       defaultPollTickMS,
		},
		Session: SessionConfig{
			JoinTimeoutMS:    defaultJoinTimeoutMS,
			EncodeTimeoutSec: defaultEncodeTimeoutSec,
			MuxTimeoutSec:    defaultMuxTimeoutSec,
		},
	}
}

// Load builds the effective configuration: defaults, then the config file,
// then SCREENREC_* environment overrides. An empty path means the default
// per-user location, which may be absent.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := strings.TrimSpace(path) != ""
	if !explicit {
		path = DefaultPath()
	}
	if path != "" {
		data, err := os.ReadFile(expandTilde(path))
		switch {
		case err == nil:
			if err := decode(path, data, cfg); err != nil {
				return nil, err
			}
		case errors.Is(err, os.ErrNotExist) && !explicit:
		default:
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	applyEnvOverrides(cfg, os.Getenv)

	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultPath returns $XDG_CONFIG_HOME/screenrec/config.toml (or the OS
// equivalent), or "" when no config directory can be resolved.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil || dir == "" {
		return ""
	}
	return filepath.Join(dir, "screenrec", "config.toml")
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parsing config file %s: %w", path, err)
		}
	default:
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(cfg); err != nil {
			return fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	return nil
}

// Normalize clamps numeric settings into supported ranges and rejects
// unknown enumerations.
func (c *Config) Normalize() error {
	if c == nil {
		return errors.New("nil config")
	}
	c.OutputDir = expandTilde(strings.TrimSpace(c.OutputDir))
	if c.OutputDir == "" {
		c.OutputDir = defaultOutputDir
	}
	if strings.TrimSpace(c.FFmpegPath) == "" {
		c.FFmpegPath = defaultFFmpegPath
	}

	c.Video.FPS = clamp(c.Video.FPS, defaultFPS, 1, 60)
	c.Video.MaxCaptureFailures = clamp(c.Video.MaxCaptureFailures, defaultMaxCaptureFailures, 1, 1000)
	if c.Video.Display < 0 {
		c.Video.Display = 0
	}
	if c.Video.MemoryFraction < 0 {
		c.Video.MemoryFraction = 0
	}
	if c.Video.MemoryFraction > 0.9 {
		c.Video.MemoryFraction = 0.9
	}
	switch c.Video.Backend {
	case "":
		c.Video.Backend = BackendAuto
	case BackendAuto, BackendDisplay, BackendPortal, BackendScreenshot:
	default:
		return fmt.Errorf("unknown capture backend %q", c.Video.Backend)
	}

	switch c.Audio.Mode {
	case "":
		c.Audio.Mode = AudioAuto
	case AudioAuto, AudioOn, AudioOff:
	default:
		return fmt.Errorf("unknown audio mode %q", c.Audio.Mode)
	}
	c.Audio.SampleRate = clamp(c.Audio.SampleRate, defaultSampleRate, 8000, 192000)
	c.Audio.Channels = clamp(c.Audio.Channels, defaultChannels, 1, 2)

	c.Input.SampleIntervalMS = clamp(c.Input.SampleIntervalMS, defaultSampleIntervalMS, 10, 1000)
	c.Input.PollTickMS = clamp(c.Input.PollTickMS, defaultPollTickMS, 1, c.Input.SampleIntervalMS)
	if c.Input.ScrollCooldownMS < 0 {
		c.Input.ScrollCooldownMS = 0
	}

	c.Session.JoinTimeoutMS = clamp(c.Session.JoinTimeoutMS, defaultJoinTimeoutMS, 100, 30000)
	c.Session.EncodeTimeoutSec = clamp(c.Session.EncodeTimeoutSec, defaultEncodeTimeoutSec, 10, 24*3600)
	c.Session.MuxTimeoutSec = clamp(c.Session.MuxTimeoutSec, defaultMuxTimeoutSec, 5, 3600)
	return nil
}

func (c *Config) JoinTimeout() time.Duration {
	return time.Duration(c.Session.JoinTimeoutMS) * time.Millisecond
}

func (c *Config) EncodeTimeout() time.Duration {
	return time.Duration(c.Session.EncodeTimeoutSec) * time.Second
}

func (c *Config) MuxTimeout() time.Duration {
	return time.Duration(c.Session.MuxTimeoutSec) * time.Second
}

func (c *Config) SampleInterval() time.Duration {
	return time.Duration(c.Input.SampleIntervalMS) * time.Millisecond
}

func (c *Config) PollTick() time.Duration {
	return time.Duration(c.Input.PollTickMS) * time.Millisecond
}

func (c *Config) ScrollCooldown() time.Duration {
	return time.Duration(c.Input.ScrollCooldownMS) * time.Millisecond
}

// clamp replaces zero with def and bounds everything else to [lo, hi].
func clamp(v, def, lo, hi int) int {
	if v == 0 {
		v = def
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func expandTilde(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path
}
