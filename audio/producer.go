package audio

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go2tv.app/screenrec/internal/logging"
	"go2tv.app/screenrec/internal/queue"
)

// 256 blocks of 100 ms is ~25 s of slack before the consumer falls behind.
const defaultBlockQueue = 256

// Producer accumulates blocks from a Device in arrival order. The device
// callback only copies and enqueues; a single consumer goroutine owns the
// buffer.
type Producer struct {
	device Device
	format Format

	mu        sync.Mutex
	blocks    []Block
	handedOff bool

	q      *queue.Queue[[]int16]
	stream Stream

	started   atomic.Bool
	stopOnce  sync.Once
	doneOnce  sync.Once
	done      chan struct{}
	malformed atomic.Uint64
	lastLog   atomic.Int64
}

func NewProducer(device Device, format Format) *Producer {
	if format.SampleRate <= 0 || format.Channels <= 0 {
		format = NewFormat(format.SampleRate, format.Channels)
	}
	if format.FramesPerBlock <= 0 {
		format.FramesPerBlock = format.SampleRate / 10
	}
	return &Producer{
		device: device,
		format: format,
		done:   make(chan struct{}),
	}
}

func (p *Producer) Format() Format { return p.format }

// Start opens and starts the device stream. On error the producer is
// finished and Done is already closed.
func (p *Producer) Start() error {
	if p.device == nil {
		p.finish()
		return fmt.Errorf("%w: no audio device", ErrUnavailable)
	}
	if !p.started.CompareAndSwap(false, true) {
		return fmt.Errorf("audio producer already started")
	}

	p.q = queue.New("audio", defaultBlockQueue, p.appendBlock)

	stream, err := p.device.Open(p.format, p.onBlock)
	if err != nil {
		p.q.Close()
		p.finish()
		return fmt.Errorf("%w: open: %w", ErrUnavailable, err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		p.q.Close()
		p.finish()
		return fmt.Errorf("%w: start: %w", ErrUnavailable, err)
	}
	p.stream = stream

	slog.Debug("audio capture started",
		"sample_rate", p.format.SampleRate,
		"channels", p.format.Channels,
		"frames_per_block", p.format.FramesPerBlock)
	return nil
}

// Stop closes the stream and drains queued blocks in the background. It
// never blocks; Done is closed once the stream has actually shut down.
func (p *Producer) Stop() {
	p.stopOnce.Do(func() {
		if !p.started.Load() || p.stream == nil {
			p.finish()
			return
		}
		go func() {
			defer p.finish()
			if err := p.stream.Close(); err != nil {
				slog.Warn("audio stream close failed", "err", err)
			}
			p.q.Close()
			if n := p.q.Dropped(); n > 0 {
				slog.Warn("audio blocks dropped under load", "count", n)
			}
		}()
	})
}

func (p *Producer) Done() <-chan struct{} { return p.done }

// Blocks transfers ownership of the buffered blocks to the caller.
func (p *Producer) Blocks() []Block {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handedOff = true
	out := p.blocks
	p.blocks = nil
	return out
}

// Malformed counts blocks rejected at delivery time.
func (p *Producer) Malformed() uint64 { return p.malformed.Load() }

func (p *Producer) onBlock(samples []int16) {
	if len(samples) == 0 || len(samples)%p.format.Channels != 0 {
		total := p.malformed.Add(1)
		if logging.Every(&p.lastLog, time.Second) {
			slog.Warn("dropping malformed audio block", "samples", len(samples), "channels", p.format.Channels, "total", total)
		}
		return
	}
	p.q.Enqueue(append([]int16(nil), samples...))
}

func (p *Producer) appendBlock(samples []int16) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.handedOff {
		return
	}
	p.blocks = append(p.blocks, Block{
		Samples:    samples,
		Channels:   p.format.Channels,
		SampleRate: p.format.SampleRate,
	})
}

func (p *Producer) finish() {
	p.doneOnce.Do(func() { close(p.done) })
}
