package capture

import (
	"errors"
	"log/slog"

	"go2tv.app/screenrec/internal/pipewire"
)

// PipeWireAvailable reports whether the portal backend can load libpipewire.
func PipeWireAvailable() bool { return pipewire.IsAvailable() }

// openWayland tries the streaming backend and falls back to screenshots
// when it cannot start. A cancelled share dialog is the user's answer and
// is not retried.
func openWayland(stream, screenshot func() (Provider, error)) (Provider, error) {
	p, err := stream()
	if err == nil {
		return p, nil
	}
	if errors.Is(err, ErrCancelled) {
		return nil, err
	}
	slog.Warn("screencast unavailable, falling back to screenshot portal", "err", err)
	fp, ferr := screenshot()
	if ferr != nil {
		return nil, errors.Join(err, ferr)
	}
	return fp, nil
}
