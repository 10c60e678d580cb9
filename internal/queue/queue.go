package queue

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go2tv.app/screenrec/internal/logging"
)

// Queue hands items from a callback context to a single consumer goroutine.
// Enqueue never blocks: when the buffer is full the oldest item is dropped.
type Queue[T any] struct {
	name string
	sink func(T)

	items chan T
	done  chan struct{}

	closeOnce sync.Once
	wg        sync.WaitGroup

	lastDropLog atomic.Int64
	dropped     atomic.Uint64
}

// New starts the consumer goroutine. sink is only ever called from that
// goroutine, so it may own state without further locking.
func New[T any](name string, size int, sink func(T)) *Queue[T] {
	if size <= 0 {
		size = 1
	}
	q := &Queue[T]{
		name:  name,
		sink:  sink,
		items: make(chan T, size),
		done:  make(chan struct{}),
	}
	q.wg.Add(1)
	go q.loop()
	return q
}

func (q *Queue[T]) Enqueue(item T) {
	if q == nil {
		return
	}

	select {
	case <-q.done:
		return
	default:
	}

	select {
	case q.items <- item:
		return
	default:
	}

	// Full: drop oldest so the producer side stays non-blocking.
	select {
	case <-q.items:
		q.noteDrop()
	default:
	}

	select {
	case q.items <- item:
	default:
		q.noteDrop()
	}
}

// Dropped returns how many items were discarded because the queue was full.
func (q *Queue[T]) Dropped() uint64 {
	if q == nil {
		return 0
	}
	return q.dropped.Load()
}

// Close stops accepting items, delivers whatever is still buffered and waits
// for the consumer to return. Safe to call more than once.
func (q *Queue[T]) Close() {
	if q == nil {
		return
	}
	q.closeOnce.Do(func() {
		close(q.done)
		q.wg.Wait()
	})
}

func (q *Queue[T]) noteDrop() {
	total := q.dropped.Add(1)
	if logging.Every(&q.lastDropLog, time.Second) {
		slog.Warn("queue full, dropped oldest item", "queue", q.name, "total", total, "len", len(q.items))
	}
}

func (q *Queue[T]) loop() {
	defer q.wg.Done()

	for {
		select {
		case <-q.done:
			for {
				select {
				case item := <-q.items:
					q.sink(item)
				default:
					return
				}
			}
		case item := <-q.items:
			q.sink(item)
		}
	}
}
