// Package gohook feeds global mouse and keyboard events from libuiohook into
// the interaction recorder.
package gohook

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"sync/atomic"

	hook "github.com/robotn/gohook"

	"go2tv.app/screenrec/interaction"
)

var errNoPointer = errors.New("no pointer position observed yet")

// libuiohook values.
const (
	charUndefined = 0xFFFF

	buttonLeft   = 1
	buttonRight  = 2
	buttonMiddle = 3
)

// Source is an interaction.Source backed by a process-wide hook. Only one
// Source may be started per process.
type Source struct {
	mu      sync.Mutex
	events  chan hook.Event
	stopped chan struct{}
	wg      sync.WaitGroup

	stopOnce sync.Once

	openPointer func() (pointerQuery, error)
	query       pointerQuery

	// Last position seen by the hook, used when the OS query fails.
	pos    atomic.Int64
	hasPos atomic.Bool
}

func New() *Source {
	return &Source{stopped: make(chan struct{}), openPointer: openPointer}
}

func (s *Source) Start(emit func(interaction.RawEvent)) error {
	if runtime.GOOS == "linux" && os.Getenv("DISPLAY") == "" {
		return fmt.Errorf("gohook: no X11 display")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.events != nil {
		return fmt.Errorf("gohook: already started")
	}
	select {
	case <-s.stopped:
		return fmt.Errorf("gohook: source stopped")
	default:
	}

	if q, err := s.openPointer(); err != nil {
		slog.Debug("pointer query unavailable, sampling hook moves only", "err", err)
	} else {
		s.query = q
	}
	s.events = hook.Start()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.pump(s.events, emit)
	}()
	return nil
}

func (s *Source) pump(events chan hook.Event, emit func(interaction.RawEvent)) {
	for {
		select {
		case <-s.stopped:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if raw, ok := s.translate(ev); ok {
				emit(raw)
			}
		}
	}
}

func (s *Source) translate(ev hook.Event) (interaction.RawEvent, bool) {
	x, y := int(ev.X), int(ev.Y)
	raw := interaction.RawEvent{When: ev.When}

	switch ev.Kind {
	case hook.MouseMove, hook.MouseDrag:
		s.pos.Store(int64(x)<<32 | int64(uint32(y)))
		s.hasPos.Store(true)
		return raw, false
	case hook.MouseHold:
		raw.Kind = interaction.RawMouseDown
	case hook.MouseDown:
		// libuiohook reports releases as MouseDown; MouseUp is a synthesized click.
		raw.Kind = interaction.RawMouseUp
	case hook.MouseWheel:
		raw.Kind = interaction.RawScroll
		raw.Delta = float64(-ev.Rotation)
	case hook.KeyHold:
		raw.Kind = interaction.RawKeyDown
		raw.Key = keyName(ev)
		return raw, true
	case hook.KeyUp:
		raw.Kind = interaction.RawKeyUp
		raw.Key = keyName(ev)
		return raw, true
	default:
		return raw, false
	}

	raw.Button = buttonName(ev.Button)
	raw.X, raw.Y, raw.HasPosition = x, y, true
	return raw, true
}

// Stop ends the hook. It is safe to call repeatedly and before Start.
func (s *Source) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopped)
		s.mu.Lock()
		started := s.events != nil
		q := s.query
		s.query = nil
		s.mu.Unlock()
		if started {
			hook.End()
		}
		s.wg.Wait()
		if q != nil {
			q.close()
		}
	})
}

// Position asks the OS for the pointer location. If that fails it returns
// the last location the hook reported.
func (s *Source) Position() (int, int, error) {
	s.mu.Lock()
	q := s.query
	s.mu.Unlock()
	if q != nil {
		if x, y, err := q.position(); err == nil {
			return x, y, nil
		}
	}

	if !s.hasPos.Load() {
		return 0, 0, errNoPointer
	}
	v := s.pos.Load()
	return int(int32(v >> 32)), int(int32(uint32(v))), nil
}

func keyName(ev hook.Event) string {
	if name := hook.RawcodetoKeychar(ev.Rawcode); name != "" {
		return name
	}
	if ev.Keychar != charUndefined && ev.Keychar > 0 {
		return string(ev.Keychar)
	}
	return fmt.Sprintf("key_%d", ev.Rawcode)
}

func buttonName(b uint16) string {
	switch b {
	case buttonLeft:
		return interaction.ButtonLeft
	case buttonRight:
		return interaction.ButtonRight
	case buttonMiddle:
		return interaction.ButtonMiddle
	default:
		return fmt.Sprintf("%d", b)
	}
}
