package finalize

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// StampLayout names every file produced for one session.
const StampLayout = "20060102_150405"

const tempPrefix = "temp_"

type sessionPaths struct {
	tempVideo    string
	tempAudio    string
	video        string
	interactions string
}

func pathsFor(dir string, started time.Time) sessionPaths {
	stamp := started.Format(StampLayout)
	return sessionPaths{
		tempVideo:    filepath.Join(dir, tempPrefix+stamp+".mp4"),
		tempAudio:    filepath.Join(dir, tempPrefix+stamp+".wav"),
		video:        filepath.Join(dir, "recording_"+stamp+".mp4"),
		interactions: filepath.Join(dir, "interactions_"+stamp+".json"),
	}
}

// promote moves src to dst, copying when a rename is not possible.
func promote(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	if err := copyFile(src, dst); err != nil {
		return fmt.Errorf("promote %s: %w", filepath.Base(src), err)
	}
	removeTemp(src)
	return nil
}

func copyFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, out.Close())
	}()
	_, err = io.Copy(out, in)
	return err
}

func removeTemp(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("temp file not removed", "path", path, "err", err)
	}
}

// CleanupStaleTemps removes temp files in dir older than maxAge, left behind
// by sessions that never finalized. It returns how many were removed.
func CleanupStaleTemps(dir string, maxAge time.Duration) int {
	matches, err := filepath.Glob(filepath.Join(dir, tempPrefix+"*"))
	if err != nil {
		return 0
	}

	removed := 0
	for _, path := range matches {
		info, statErr := os.Stat(path)
		if statErr != nil || info.IsDir() {
			continue
		}
		if time.Since(info.ModTime()) < maxAge {
			continue
		}
		if os.Remove(path) == nil {
			removed++
		}
	}
	return removed
}
