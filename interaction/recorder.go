package interaction

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"go2tv.app/screenrec/internal/clock"
	"go2tv.app/screenrec/internal/logging"
	"go2tv.app/screenrec/internal/queue"
)

const (
	defaultSampleInterval = 50 * time.Millisecond
	defaultPollTick       = 10 * time.Millisecond
	defaultEventQueue     = 1024
)

type Options struct {
	// SampleInterval is the minimum spacing of recorded pointer moves.
	SampleInterval time.Duration
	PollTick       time.Duration
	// ScrollCooldown drops scroll events closer than this to the previous
	// one. Zero keeps every scroll.
	ScrollCooldown time.Duration
	QueueSize      int
	Clock          clock.Clock
}

// Recorder turns hook callbacks and pointer polling into timestamped events.
// Hook events reach it through a queue drained by one goroutine; the
// modifier map and both buffers are guarded by mu.
type Recorder struct {
	src  Source
	opts Options

	mu         sync.Mutex
	modifiers  map[string]bool
	callback   []Event
	polled     []Event
	seq        uint64
	lastMove   time.Time
	lastScroll time.Time
	handedOff  bool

	q        *queue.Queue[RawEvent]
	cancel   context.CancelFunc
	pollDone chan struct{}
	hooksOn  bool

	startOnce sync.Once
	stopOnce  sync.Once
	done      chan struct{}

	lastPosLog atomic.Int64
}

func New(src Source, opts Options) *Recorder {
	if opts.SampleInterval <= 0 {
		opts.SampleInterval = defaultSampleInterval
	}
	if opts.PollTick <= 0 {
		opts.PollTick = defaultPollTick
	}
	if opts.PollTick > opts.SampleInterval {
		opts.PollTick = opts.SampleInterval
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultEventQueue
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	return &Recorder{
		src:       src,
		opts:      opts,
		modifiers: newModifierMap(),
		done:      make(chan struct{}),
		pollDone:  make(chan struct{}),
	}
}

// Start resets modifier state, registers hooks and starts pointer sampling.
// A hook registration failure is returned wrapped in ErrHooksUnavailable
// but sampling keeps running, so the caller may continue degraded.
func (r *Recorder) Start(ctx context.Context) error {
	err := fmt.Errorf("interaction recorder already started")
	r.startOnce.Do(func() {
		err = nil

		r.mu.Lock()
		r.modifiers = newModifierMap()
		r.callback, r.polled = nil, nil
		r.lastMove, r.lastScroll = time.Time{}, time.Time{}
		r.mu.Unlock()

		if r.src == nil {
			close(r.pollDone)
			err = fmt.Errorf("%w: no input source", ErrHooksUnavailable)
			return
		}

		r.q = queue.New("input", r.opts.QueueSize, r.handle)
		if hookErr := r.src.Start(r.q.Enqueue); hookErr != nil {
			err = fmt.Errorf("%w: %w", ErrHooksUnavailable, hookErr)
		} else {
			r.hooksOn = true
		}

		ctx, cancel := context.WithCancel(ctx)
		r.cancel = cancel
		go func() {
			defer close(r.pollDone)
			r.poll(ctx)
		}()
	})
	return err
}

// Stop unregisters hooks and ends sampling without waiting; Done is closed
// when everything has shut down. Repeated calls are no-ops.
func (r *Recorder) Stop() {
	// Never started: nothing will close pollDone otherwise.
	r.startOnce.Do(func() { close(r.pollDone) })
	r.stopOnce.Do(func() {
		go func() {
			defer close(r.done)
			if r.cancel != nil {
				r.cancel()
			}
			if r.hooksOn {
				r.src.Stop()
			}
			<-r.pollDone
			if r.q == nil {
				return
			}
			r.q.Close()
			if n := r.q.Dropped(); n > 0 {
				slog.Warn("input events dropped under load", "count", n)
			}
		}()
	})
}

func (r *Recorder) Done() <-chan struct{} { return r.done }

// Events transfers ownership of the hook-sourced and polled events.
func (r *Recorder) Events() (callback, polled []Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handedOff = true
	callback, polled = r.callback, r.polled
	r.callback, r.polled = nil, nil
	return callback, polled
}

// ActiveModifiers returns the currently held modifiers.
func (r *Recorder) ActiveModifiers() map[string]bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Recorder) handle(raw RawEvent) {
	ts := raw.When
	if ts.IsZero() {
		ts = r.opts.Clock.Now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.handedOff {
		return
	}

	e := Event{Timestamp: ts}
	switch raw.Kind {
	case RawMouseDown, RawMouseUp:
		e.Type = MouseDown
		if raw.Kind == RawMouseUp {
			e.Type = MouseUp
		}
		e.Button = NormalizeButton(raw.Button)
		e.Position = positionOf(raw)
	case RawScroll:
		if r.opts.ScrollCooldown > 0 && !r.lastScroll.IsZero() && ts.Sub(r.lastScroll) < r.opts.ScrollCooldown {
			return
		}
		r.lastScroll = ts
		e.Type = Scroll
		e.Direction = ScrollUp
		if raw.Delta < 0 {
			e.Direction = ScrollDown
		}
		amount := math.Abs(raw.Delta)
		e.Amount = &amount
		e.Position = positionOf(raw)
	case RawKeyDown:
		if name, ok := ModifierName(raw.Key); ok {
			r.modifiers[name] = true
		}
		e.Type = KeyPress
		e.Key = raw.Key
	case RawKeyUp:
		if name, ok := ModifierName(raw.Key); ok {
			r.modifiers[name] = false
		}
		e.Type = KeyRelease
		e.Key = raw.Key
	default:
		return
	}

	e.Modifiers = r.snapshotLocked()
	r.seq++
	e.Seq = r.seq
	r.callback = append(r.callback, e)
}

func (r *Recorder) poll(ctx context.Context) {
	for {
		if err := r.opts.Clock.Sleep(ctx, r.opts.PollTick); err != nil {
			return
		}
		r.samplePointer()
	}
}

func (r *Recorder) samplePointer() {
	now := r.opts.Clock.Now()

	r.mu.Lock()
	due := r.lastMove.IsZero() || now.Sub(r.lastMove) >= r.opts.SampleInterval
	r.mu.Unlock()
	if !due {
		return
	}

	x, y, err := r.src.Position()
	if err != nil {
		if logging.Every(&r.lastPosLog, 5*time.Second) {
			slog.Warn("pointer position unavailable", "err", err)
		}
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.handedOff {
		return
	}
	r.lastMove = now
	r.seq++
	r.polled = append(r.polled, Event{
		Timestamp: now,
		Type:      MouseMove,
		Position:  &Position{X: x, Y: y},
		Modifiers: r.snapshotLocked(),
		Seq:       r.seq,
	})
}

func (r *Recorder) snapshotLocked() map[string]bool {
	out := make(map[string]bool)
	for name, on := range r.modifiers {
		if on {
			out[name] = true
		}
	}
	return out
}

func newModifierMap() map[string]bool {
	m := make(map[string]bool, len(Modifiers))
	for _, name := range Modifiers {
		m[name] = false
	}
	return m
}

func positionOf(raw RawEvent) *Position {
	if !raw.HasPosition {
		return nil
	}
	return &Position{X: raw.X, Y: raw.Y}
}
