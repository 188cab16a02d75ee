package broadcast

import (
	"context"
	"sync"
)

// MemoryBroadcaster is an in-process Broadcaster. Slow subscribers never block
// a broadcast: when a subscriber's buffer is full its oldest pending message
// is replaced.
type MemoryBroadcaster[T any] struct {
	mu          sync.RWMutex
	subscribers map[*subscriber[T]]struct{}
	bufferSize  int
	replay      bool
	last        *Message[T]
	closed      bool
	onDrop      func(n int)
}

// Option configures a MemoryBroadcaster.
type Option[T any] func(*MemoryBroadcaster[T])

// WithReplayLast makes new subscribers receive the most recent message
// immediately after subscribing.
func WithReplayLast[T any]() Option[T] {
	return func(b *MemoryBroadcaster[T]) { b.replay = true }
}

// WithDropHandler registers a callback invoked when pending messages are
// discarded for a slow subscriber.
func WithDropHandler[T any](fn func(n int)) Option[T] {
	return func(b *MemoryBroadcaster[T]) { b.onDrop = fn }
}

// NewMemoryBroadcaster creates a broadcaster with per-subscriber buffers of
// bufferSize messages (at least 1).
func NewMemoryBroadcaster[T any](bufferSize int, opts ...Option[T]) *MemoryBroadcaster[T] {
	b := &MemoryBroadcaster[T]{
		subscribers: make(map[*subscriber[T]]struct{}),
		bufferSize:  max(bufferSize, 1),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *MemoryBroadcaster[T]) Subscribe(ctx context.Context) Subscriber[T] {
	sub := newSubscriber[T](b.bufferSize)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		_ = sub.Close()
		return sub
	}
	b.subscribers[sub] = struct{}{}
	sub.onDone = func() { b.remove(sub) }
	if b.replay && b.last != nil {
		sub.send(*b.last)
	}
	b.mu.Unlock()

	if done := ctx.Done(); done != nil {
		go func() {
			<-done
			_ = sub.Close()
		}()
	}
	return sub
}

func (b *MemoryBroadcaster[T]) Broadcast(_ context.Context, msg Message[T]) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}
	if b.replay {
		b.last = &msg
	}

	for sub := range b.subscribers {
		if dropped, ok := sub.send(msg); ok && dropped > 0 && b.onDrop != nil {
			b.onDrop(dropped)
		}
	}
	return nil
}

// Last returns the most recent message when replay is enabled.
func (b *MemoryBroadcaster[T]) Last() (Message[T], bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.last == nil {
		return Message[T]{}, false
	}
	return *b.last, true
}

// Len reports the number of active subscribers.
func (b *MemoryBroadcaster[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

func (b *MemoryBroadcaster[T]) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	subs := make([]*subscriber[T], 0, len(b.subscribers))
	for sub := range b.subscribers {
		subs = append(subs, sub)
	}
	clear(b.subscribers)
	b.mu.Unlock()

	for _, sub := range subs {
		_ = sub.Close()
	}
	return nil
}

func (b *MemoryBroadcaster[T]) remove(sub *subscriber[T]) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subscribers, sub)
}
