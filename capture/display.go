//go:build linux || darwin || windows

package capture

import (
	"fmt"
	"image"
	"sync"

	"github.com/kbinani/screenshot"
)

// displayProvider grabs one monitor through the native desktop API
// (GDI on Windows, Quartz on macOS, X11 on Linux).
type displayProvider struct {
	index  int
	rect   image.Rectangle
	width  int
	height int

	mu     sync.Mutex
	closed bool
}

func newDisplayProvider(index int) (*displayProvider, error) {
	n := screenshot.NumActiveDisplays()
	if n <= 0 {
		return nil, ErrNoDisplays
	}
	if index >= n {
		return nil, fmt.Errorf("%w: Display %d out of range (displays=%d)", ErrInvalidOptions, index, n)
	}

	bounds := screenshot.GetDisplayBounds(index)
	width, height := EvenSize(bounds.Dx(), bounds.Dy())
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid display size %dx%d", bounds.Dx(), bounds.Dy())
	}

	return &displayProvider{
		index:  index,
		rect:   image.Rect(bounds.Min.X, bounds.Min.Y, bounds.Min.X+width, bounds.Min.Y+height),
		width:  width,
		height: height,
	}, nil
}

func (p *displayProvider) Name() string { return BackendDisplay }

func (p *displayProvider) Size() (int, int) { return p.width, p.height }

func (p *displayProvider) CaptureFrame() (*Image, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return nil, fmt.Errorf("display %d: provider closed", p.index)
	}

	img, err := screenshot.CaptureRect(p.rect)
	if err != nil {
		return nil, fmt.Errorf("display %d capture: %w", p.index, err)
	}
	if img == nil {
		return nil, nil
	}
	return FromImage(img, p.width, p.height)
}

func (p *displayProvider) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

// Displays returns the bounds of every active monitor, in index order.
func Displays() []image.Rectangle {
	n := screenshot.NumActiveDisplays()
	out := make([]image.Rectangle, 0, max(n, 0))
	for i := 0; i < n; i++ {
		out = append(out, screenshot.GetDisplayBounds(i))
	}
	return out
}
