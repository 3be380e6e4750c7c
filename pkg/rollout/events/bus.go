package events

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// DefaultBufferSize is the per-subscriber channel capacity used when the
// caller passes a non-positive size.
const DefaultBufferSize = 256

// Bus is a bounded, multi-consumer broadcast channel for events of type T.
// Publish never blocks: events that do not fit a subscriber's buffer are
// dropped for that subscriber only.
type Bus[T any] struct {
	name       string
	bufferSize int
	logger     *slog.Logger

	mu     sync.RWMutex
	subs   map[int]chan T
	nextID int
	closed bool

	dropped atomic.Int64
}

// NewBus creates a bus. The name appears in log records and metrics when
// events are dropped.
func NewBus[T any](name string, bufferSize int, logger *slog.Logger) *Bus[T] {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	if logger == nil {
		logger = slog.Default().With("component", "rollout.events")
	}

	return &Bus[T]{
		name:       name,
		bufferSize: bufferSize,
		logger:     logger,
		subs:       make(map[int]chan T),
	}
}

// Subscribe registers a new receiver. The returned cancel function removes
// the subscription and closes the channel; it is safe to call more than once.
func (b *Bus[T]) Subscribe() (<-chan T, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan T, b.bufferSize)
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if sub, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub)
			}
		})
	}

	return ch, cancel
}

// Publish delivers the event to every subscriber whose buffer has room.
// It never blocks.
func (b *Bus[T]) Publish(event T) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
			n := b.dropped.Add(1)
			// Log the first drop and every 100th after that.
			if n == 1 || n%100 == 0 {
				b.logger.Warn("event dropped for slow subscriber",
					"bus", b.name,
					"dropped_total", n,
				)
			}
		}
	}
}

// Dropped returns the total number of events dropped across all subscribers.
func (b *Bus[T]) Dropped() int64 {
	return b.dropped.Load()
}

// SubscriberCount returns the number of active subscriptions.
func (b *Bus[T]) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close closes every subscriber channel and rejects further publishes.
func (b *Bus[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
