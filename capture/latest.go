package capture

import (
	"sync"
	"time"
)

// frameSlot keeps the most recent frame pushed by a streaming source. A
// stream delivers frames at its own pace, so sampling repeats the last
// one when nothing new arrived.
type frameSlot struct {
	mu     sync.Mutex
	raw    []byte
	width  int
	height int
	stride int
	layout Layout
	seq    uint64

	first     chan struct{}
	firstOnce sync.Once
}

func newFrameSlot() *frameSlot {
	return &frameSlot{first: make(chan struct{})}
}

// store copies data, which the caller may reuse once store returns.
func (s *frameSlot) store(data []byte, width, height, stride int, layout Layout) {
	s.mu.Lock()
	s.raw = append(s.raw[:0], data...)
	s.width, s.height, s.stride, s.layout = width, height, stride, layout
	s.seq++
	s.mu.Unlock()
	s.firstOnce.Do(func() { close(s.first) })
}

// waitFirst reports the first frame's size, or false on timeout.
func (s *frameSlot) waitFirst(timeout time.Duration) (int, int, bool) {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-s.first:
	case <-t.C:
		return 0, 0, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.width, s.height, true
}

// snapshot converts the latest frame cropped to width x height. It returns
// (nil, nil) before the first frame or while the source is smaller than
// the target, such as during a resize.
func (s *frameSlot) snapshot(width, height int) (*Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seq == 0 || s.width < width || s.height < height {
		return nil, nil
	}
	return ConvertPacked(s.raw, width, height, s.stride, s.layout)
}
