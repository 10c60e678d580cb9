package config

import (
	"strconv"
	"strings"
)

// env resolves SCREENREC_* overrides. Load uses os.Getenv.
type env func(string) string

func (e env) str(name string) string {
	return strings.TrimSpace(e(name))
}

func (e env) boolean(name string, def bool) bool {
	switch strings.ToLower(e.str(name)) {
	case "1", "true", "on", "yes":
		return true
	case "0", "false", "off", "no":
		return false
	}
	return def
}

// intIn bounds a numeric override to [lo, hi]. Unset or unparsable values
// keep def.
func (e env) intIn(name string, def, lo, hi int) int {
	n, err := strconv.Atoi(e.str(name))
	if err != nil {
		return def
	}
	return max(lo, min(n, hi))
}

func applyEnvOverrides(cfg *Config, e env) {
	if v := e.str("SCREENREC_OUTPUT_DIR"); v != "" {
		cfg.OutputDir = v
	}
	if v := e.str("SCREENREC_FFMPEG"); v != "" {
		cfg.FFmpegPath = v
	}
	if v := e.str("SCREENREC_AUDIO"); v != "" {
		cfg.Audio.Mode = strings.ToLower(v)
	}
	if v := e.str("SCREENREC_CAPTURE_BACKEND"); v != "" {
		cfg.Video.Backend = strings.ToLower(v)
	}
	cfg.Video.FPS = e.intIn("SCREENREC_FPS", cfg.Video.FPS, 1, 60)
	cfg.Video.HardwareEncoder = e.boolean("SCREENREC_HW_ENCODER", cfg.Video.HardwareEncoder)
	cfg.Input.Enabled = e.boolean("SCREENREC_INPUT", cfg.Input.Enabled)
}
