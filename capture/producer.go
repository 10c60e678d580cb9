package capture

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/time/rate"

	"go2tv.app/screenrec/internal/clock"
	"go2tv.app/screenrec/internal/logging"
)

const (
	defaultTargetFPS              = 30
	defaultMaxConsecutiveFailures = 30
)

// Frame is one captured screen image and its offset from session start.
type Frame struct {
	Image   *Image
	Elapsed time.Duration
}

type ProducerOptions struct {
	FPS                    float64
	MaxConsecutiveFailures int
	// MaxBufferBytes caps the in-memory frame buffer. Zero means unbounded.
	MaxBufferBytes uint64
	Clock          clock.Clock
}

// Producer paces CaptureFrame calls against the target frame interval and
// buffers the results. Capture slots are spaced one interval apart; after
// falling more than one interval behind, the schedule restarts from the
// current time instead of bursting to catch up.
type Producer struct {
	provider Provider
	opts     ProducerOptions
	width    int
	height   int

	mu        sync.Mutex
	frames    []Frame
	bytes     uint64
	handedOff bool

	budgetHit atomic.Bool
	err       atomic.Pointer[error]
	fatal     chan error

	startOnce sync.Once
	cancel    context.CancelFunc
	cancelMu  sync.Mutex
	done      chan struct{}

	lastErrLog atomic.Int64
}

func NewProducer(provider Provider, opts ProducerOptions) *Producer {
	if opts.FPS <= 0 || math.IsNaN(opts.FPS) || math.IsInf(opts.FPS, 0) {
		opts.FPS = defaultTargetFPS
	}
	if opts.MaxConsecutiveFailures <= 0 {
		opts.MaxConsecutiveFailures = defaultMaxConsecutiveFailures
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	width, height := provider.Size()
	return &Producer{
		provider: provider,
		opts:     opts,
		width:    width,
		height:   height,
		fatal:    make(chan error, 1),
		done:     make(chan struct{}),
	}
}

func (p *Producer) Interval() time.Duration {
	return time.Duration(float64(time.Second) / p.opts.FPS)
}

func (p *Producer) TargetFPS() float64 { return p.opts.FPS }

func (p *Producer) Size() (int, int) { return p.width, p.height }

// Start runs the capture loop on its own goroutine until Stop or ctx ends.
func (p *Producer) Start(ctx context.Context, origin time.Time) {
	p.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(ctx)
		p.cancelMu.Lock()
		p.cancel = cancel
		p.cancelMu.Unlock()
		go func() {
			defer close(p.done)
			defer cancel()
			_ = p.Run(ctx, origin)
		}()
	})
}

// Stop signals the loop to finish. It does not wait; use Done.
func (p *Producer) Stop() {
	p.cancelMu.Lock()
	cancel := p.cancel
	p.cancelMu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (p *Producer) Done() <-chan struct{} { return p.done }

// Fatal delivers the error that ended capture, at most once.
func (p *Producer) Fatal() <-chan error { return p.fatal }

func (p *Producer) Err() error {
	if e := p.err.Load(); e != nil {
		return *e
	}
	return nil
}

// BudgetExceeded reports whether capture stopped early on MaxBufferBytes.
func (p *Producer) BudgetExceeded() bool { return p.budgetHit.Load() }

// Run is the capture loop. It returns nil on cancellation or when the buffer
// budget is reached, and an error wrapping ErrCaptureFailed after too many
// consecutive provider errors.
func (p *Producer) Run(ctx context.Context, origin time.Time) error {
	clk := p.opts.Clock
	limiter := rate.NewLimiter(rate.Every(p.Interval()), 1)
	failures := 0

	for {
		if ctx.Err() != nil {
			return nil
		}

		now := clk.Now()
		if d := limiter.ReserveN(now, 1).DelayFrom(now); d > 0 {
			if err := clk.Sleep(ctx, d); err != nil {
				return nil
			}
		}
		elapsed := clk.Since(origin)

		img, err := p.provider.CaptureFrame()
		if err != nil {
			failures++
			if logging.Every(&p.lastErrLog, time.Second) {
				slog.Warn("screen capture failed", "provider", p.provider.Name(), "consecutive", failures, "err", err)
			}
			if failures >= p.opts.MaxConsecutiveFailures {
				fatal := fmt.Errorf("%w: %d consecutive errors: %w", ErrCaptureFailed, failures, err)
				p.setErr(fatal)
				return fatal
			}
			continue
		}
		if img == nil {
			continue
		}
		failures = 0

		if img.Width != p.width || img.Height != p.height {
			if logging.Every(&p.lastErrLog, time.Second) {
				slog.Warn("dropping frame with unexpected size",
					"got", fmt.Sprintf("%dx%d", img.Width, img.Height),
					"want", fmt.Sprintf("%dx%d", p.width, p.height))
			}
			continue
		}

		if !p.append(Frame{Image: img, Elapsed: elapsed}) {
			return nil
		}
	}
}

// Frames transfers ownership of the buffered frames to the caller. Frames
// captured afterwards are discarded.
func (p *Producer) Frames() []Frame {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handedOff = true
	out := p.frames
	p.frames = nil
	return out
}

// Len returns the number of buffered frames.
func (p *Producer) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.frames)
}

func (p *Producer) append(f Frame) bool {
	size := uint64(f.Image.Bytes())

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.handedOff {
		return false
	}
	if limit := p.opts.MaxBufferBytes; limit > 0 && p.bytes+size > limit {
		p.budgetHit.Store(true)
		slog.Warn("frame buffer budget reached, capture stopped",
			"frames", len(p.frames),
			"buffered", humanize.IBytes(p.bytes),
			"budget", humanize.IBytes(limit))
		return false
	}
	p.frames = append(p.frames, f)
	p.bytes += size
	return true
}

func (p *Producer) setErr(err error) {
	p.err.Store(&err)
	select {
	case p.fatal <- err:
	default:
	}
}
