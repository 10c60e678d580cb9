//go:build linux

package capture

import (
	"log/slog"
	"os"
	"strings"
)

func open(options *Options) (Provider, error) {
	switch options.Backend {
	case BackendPortal:
		return newScreencastProvider(options.Display)
	case BackendScreenshot:
		return newScreenshotProvider()
	case BackendDisplay:
		return newDisplayProvider(options.Display)
	}

	if !waylandSession() {
		return newDisplayProvider(options.Display)
	}
	slog.Debug("capture backend selected", "backend", BackendPortal, "reason", "wayland_session")
	return openWayland(
		func() (Provider, error) { return newScreencastProvider(options.Display) },
		func() (Provider, error) { return newScreenshotProvider() },
	)
}

// waylandSession reports whether X11 grabs would only see XWayland windows.
func waylandSession() bool {
	if strings.EqualFold(strings.TrimSpace(os.Getenv("XDG_SESSION_TYPE")), "wayland") {
		return true
	}
	return os.Getenv("WAYLAND_DISPLAY") != "" && os.Getenv("DISPLAY") == ""
}
