//go:build linux

package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"net/url"
	"os"
	"sync"
	"time"

	"go2tv.app/screenrec/internal/xdgportal"
)

const screenshotRequestTimeout = 5 * time.Second

// screenshotProvider captures through org.freedesktop.portal.Screenshot.
// Each frame is a non-interactive screenshot the portal writes to disk, so
// it is slow; it serves compositors that refuse a ScreenCast session.
type screenshotProvider struct {
	client *xdgportal.Client
	width  int
	height int

	mu     sync.Mutex
	closed bool
}

func newScreenshotProvider() (*screenshotProvider, error) {
	client, err := xdgportal.New()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotImplemented, err)
	}
	if v, err := client.Version(); err == nil {
		slog.Debug("screenshot portal available", "version", v)
	}

	// The first grab may show a permission prompt; it also fixes the size.
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	img, err := grabPortal(ctx, client)
	if err != nil {
		if errors.Is(err, xdgportal.ErrCancelled) {
			return nil, fmt.Errorf("%w: %w", ErrCancelled, err)
		}
		return nil, err
	}

	width, height := EvenSize(img.Bounds().Dx(), img.Bounds().Dy())
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid screenshot size %dx%d", img.Bounds().Dx(), img.Bounds().Dy())
	}
	return &screenshotProvider{client: client, width: width, height: height}, nil
}

func (p *screenshotProvider) Name() string { return BackendScreenshot }

func (p *screenshotProvider) Size() (int, int) { return p.width, p.height }

func (p *screenshotProvider) CaptureFrame() (*Image, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return nil, errors.New("screenshot: provider closed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), screenshotRequestTimeout)
	defer cancel()
	img, err := grabPortal(ctx, p.client)
	if err != nil {
		return nil, err
	}

	b := img.Bounds()
	if b.Dx() < p.width || b.Dy() < p.height {
		// Monitor layout changed mid-session; skip rather than emit a
		// differently sized frame.
		return nil, nil
	}
	return FromImage(img, p.width, p.height)
}

func (p *screenshotProvider) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

func grabPortal(ctx context.Context, client *xdgportal.Client) (image.Image, error) {
	uri, err := client.Screenshot(ctx, &xdgportal.ScreenshotOptions{})
	if err != nil {
		return nil, err
	}

	u, err := url.Parse(uri)
	if err != nil || u.Scheme != "file" {
		return nil, fmt.Errorf("portal returned unsupported uri %q", uri)
	}
	defer func() {
		if err := os.Remove(u.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Debug("screenshot cleanup failed", "path", u.Path, "err", err)
		}
	}()

	f, err := os.Open(u.Path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode portal screenshot: %w", err)
	}
	return img, nil
}
