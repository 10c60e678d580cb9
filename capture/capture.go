package capture

import (
	"errors"
)

const (
	// PixelFormatBGR24 is the packed 3-channel layout every provider returns.
	PixelFormatBGR24 = "BGR24"
)

const (
	BackendAuto    = "auto"
	BackendDisplay = "display"
	// BackendPortal streams the desktop through the ScreenCast portal and
	// PipeWire.
	BackendPortal = "portal"
	// BackendScreenshot polls the Screenshot portal, one file per frame.
	BackendScreenshot = "screenshot"
)

var (
	ErrNotImplemented = errors.New("screen capture backend is not implemented on this platform")
	ErrCancelled      = errors.New("screen capture request was cancelled")
	ErrNoDisplays     = errors.New("screen capture found no active displays")
	ErrInvalidOptions = errors.New("invalid screen capture options")
	ErrCaptureFailed  = errors.New("screen capture failed repeatedly")
)

// Options configures a capture provider.
type Options struct {
	// Backend selects the implementation. Empty means auto.
	Backend string
	// Display selects the monitor for the display backend, or the granted
	// stream for the portal backend. Default is 0.
	Display int
}

// Provider supplies full-screen images on demand. CaptureFrame returns
// (nil, nil) when no image is available right now; callers skip that tick.
// Every image has the dimensions reported by Size.
type Provider interface {
	Name() string
	Size() (width, height int)
	CaptureFrame() (*Image, error)
	Close() error
}

// Open selects and initializes the screen capture backend for this OS. It is
// the only place that decides between platform implementations.
func Open(options *Options) (Provider, error) {
	opts, err := validateOpenOptions(options)
	if err != nil {
		return nil, err
	}
	return open(opts)
}
