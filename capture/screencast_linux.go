//go:build linux

package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"syscall"
	"time"

	"go2tv.app/screenrec/internal/apis"
	"go2tv.app/screenrec/internal/pipewire"
	"go2tv.app/screenrec/internal/session"
	"go2tv.app/screenrec/screencast"
)

const (
	screencastPromptTimeout = time.Minute
	screencastFirstFrame    = 3 * time.Second
	screencastStreamFPS     = 60
)

var errSessionClosed = errors.New("screencast: session closed by the compositor")

// screencastProvider samples a PipeWire stream granted by the ScreenCast
// portal. The stream pushes frames into a slot and CaptureFrame converts
// the latest one.
type screencastProvider struct {
	sess   *screencast.Session
	stream *pipewire.Stream
	slot   *frameSlot

	closed  <-chan struct{}
	unwatch func()
	width   int
	height  int
}

func newScreencastProvider(index int) (*screencastProvider, error) {
	if !pipewire.IsAvailable() {
		return nil, fmt.Errorf("%w: %w", ErrNotImplemented, pipewire.ErrLibraryNotLoaded)
	}
	portal, err := apis.Connect()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotImplemented, err)
	}
	if v, err := screencast.Version(portal); err == nil {
		slog.Debug("screencast portal available", "version", v)
	}

	ctx, cancel := context.WithTimeout(context.Background(), screencastPromptTimeout)
	defer cancel()

	sess, err := screencast.CreateSession(ctx, portal)
	if err != nil {
		return nil, screencastErr(err)
	}
	p := &screencastProvider{sess: sess, slot: newFrameSlot()}
	ok := false
	defer func() {
		if !ok {
			_ = p.Close()
		}
	}()

	err = sess.SelectSources(ctx, screencast.SelectSourcesOptions{
		Types:      screencast.SourceTypeMonitor,
		CursorMode: screencast.CursorModeEmbedded,
	})
	if err != nil {
		return nil, screencastErr(err)
	}
	streams, err := sess.Start(ctx)
	if err != nil {
		return nil, screencastErr(err)
	}
	if index >= len(streams) {
		slog.Warn("requested screencast stream not granted, using the first", "display", index, "streams", len(streams))
		index = 0
	}
	st := streams[index]
	slog.Debug("screencast stream granted", "node", st.NodeID, "size", fmt.Sprintf("%dx%d", st.Size[0], st.Size[1]))

	p.closed, p.unwatch, err = session.WatchClosed(portal, sess.Path)
	if err != nil {
		return nil, err
	}

	fd, err := sess.OpenPipeWireRemote(ctx)
	if err != nil {
		return nil, err
	}
	p.stream, err = pipewire.NewStream(fd, st.NodeID, uint32(max(st.Size[0], 0)), uint32(max(st.Size[1], 0)), screencastStreamFPS, p.onFrame)
	_ = syscall.Close(fd)
	if err != nil {
		return nil, err
	}
	p.stream.Start()

	w, h := int(st.Size[0]), int(st.Size[1])
	if w <= 0 || h <= 0 {
		var arrived bool
		if w, h, arrived = p.slot.waitFirst(screencastFirstFrame); !arrived {
			return nil, errors.New("screencast: no frame arrived and the portal did not report a size")
		}
	}
	p.width, p.height = EvenSize(w, h)
	if p.width <= 0 || p.height <= 0 {
		return nil, fmt.Errorf("invalid screencast size %dx%d", w, h)
	}
	ok = true
	return p, nil
}

func screencastErr(err error) error {
	if errors.Is(err, screencast.ErrCancelled) {
		return fmt.Errorf("%w: %w", ErrCancelled, err)
	}
	return err
}

func (p *screencastProvider) onFrame(f pipewire.Frame) {
	var layout Layout
	switch f.Format {
	case pipewire.FormatBGRX:
		layout = LayoutBGRX
	case pipewire.FormatRGBX:
		layout = LayoutRGBX
	case pipewire.FormatBGR:
		layout = LayoutBGR
	case pipewire.FormatRGB:
		layout = LayoutRGB
	default:
		return
	}
	p.slot.store(f.Data, f.Width, f.Height, f.Stride, layout)
}

func (p *screencastProvider) Name() string { return BackendPortal }

func (p *screencastProvider) Size() (int, int) { return p.width, p.height }

func (p *screencastProvider) CaptureFrame() (*Image, error) {
	select {
	case <-p.closed:
		return nil, errSessionClosed
	default:
	}
	return p.slot.snapshot(p.width, p.height)
}

func (p *screencastProvider) Close() error {
	var errs []error
	if p.stream != nil {
		errs = append(errs, p.stream.Close())
	}
	if p.unwatch != nil {
		p.unwatch()
	}
	if p.sess != nil {
		errs = append(errs, p.sess.Close())
	}
	return errors.Join(errs...)
}
