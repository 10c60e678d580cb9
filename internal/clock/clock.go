package clock

import (
	"context"
	"sync"
	"time"
)

// Clock provides time operations that can be replaced in tests.
type Clock interface {
	Now() time.Time
	Since(t time.Time) time.Duration
	// Sleep blocks for d or until ctx is done, whichever comes first.
	Sleep(ctx context.Context, d time.Duration) error
}

// Real uses the standard time package.
type Real struct{}

func (Real) Now() time.Time                  { return time.Now() }
func (Real) Since(t time.Time) time.Duration { return time.Since(t) }

func (Real) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type sleeper struct {
	until time.Time
	wake  chan struct{}
}

// Fake is a manually driven clock. Sleepers block until Advance or Set moves
// the clock past their deadline. An auto-advancing Fake instead moves itself
// forward by the requested duration on every Sleep.
type Fake struct {
	mu       sync.Mutex
	cond     *sync.Cond
	current  time.Time
	auto     bool
	sleepers []*sleeper
}

func NewFake(start time.Time) *Fake {
	f := &Fake{current: start}
	f.cond = sync.NewCond(&f.mu)
	return f
}

// NewAutoFake returns a Fake whose Sleep advances synthetic time and returns
// immediately.
func NewAutoFake(start time.Time) *Fake {
	f := NewFake(start)
	f.auto = true
	return f
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

func (f *Fake) Since(t time.Time) time.Duration { return f.Now().Sub(t) }

func (f *Fake) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	if f.auto || d <= 0 {
		if d > 0 {
			f.current = f.current.Add(d)
		}
		f.mu.Unlock()
		return ctx.Err()
	}
	s := &sleeper{until: f.current.Add(d), wake: make(chan struct{})}
	f.sleepers = append(f.sleepers, s)
	f.cond.Broadcast()
	f.mu.Unlock()

	select {
	case <-s.wake:
		return nil
	case <-ctx.Done():
		f.mu.Lock()
		f.removeLocked(s)
		f.mu.Unlock()
		return ctx.Err()
	}
}

func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = f.current.Add(d)
	f.wakeLocked()
}

func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = t
	f.wakeLocked()
}

// BlockUntil waits until at least n goroutines are sleeping on the clock.
func (f *Fake) BlockUntil(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for len(f.sleepers) < n {
		f.cond.Wait()
	}
}

func (f *Fake) wakeLocked() {
	kept := f.sleepers[:0]
	for _, s := range f.sleepers {
		if !f.current.Before(s.until) {
			close(s.wake)
			continue
		}
		kept = append(kept, s)
	}
	clear(f.sleepers[len(kept):])
	f.sleepers = kept
	f.cond.Broadcast()
}

func (f *Fake) removeLocked(s *sleeper) {
	for i, other := range f.sleepers {
		if other == s {
			f.sleepers = append(f.sleepers[:i], f.sleepers[i+1:]...)
			f.cond.Broadcast()
			return
		}
	}
}
