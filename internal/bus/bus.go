// Package bus is a small typed publish/subscribe fan-out. Publishing never
// blocks: a subscriber whose buffer is full misses that value.
package bus

import "sync"

// Subscription is the handle returned by Subscribe; pass it to Unsubscribe to stop delivery.
type Subscription[T any] struct {
	ch chan T
}

// C is closed when the subscription is removed or the bus is closed.
func (s *Subscription[T]) C() <-chan T { return s.ch }

type Bus[T any] struct {
	mu     sync.RWMutex
	subs   map[*Subscription[T]]struct{}
	closed bool
}

func New[T any]() *Bus[T] {
	return &Bus[T]{subs: make(map[*Subscription[T]]struct{})}
}

func (b *Bus[T]) Subscribe(buffer int) *Subscription[T] {
	if buffer < 0 {
		buffer = 0
	}
	sub := &Subscription[T]{ch: make(chan T, buffer)}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(sub.ch)
		return sub
	}
	b.subs[sub] = struct{}{}
	return sub
}

// Unsubscribe is idempotent.
func (b *Bus[T]) Unsubscribe(sub *Subscription[T]) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub]; ok {
		delete(b.subs, sub)
		close(sub.ch)
	}
}

// Publish delivers value to every subscriber with room and returns how many received it.
func (b *Bus[T]) Publish(value T) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for sub := range b.subs {
		select {
		case sub.ch <- value:
			n++
		default:
		}
	}
	return n
}

func (b *Bus[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close removes every subscriber. Later subscriptions are returned already closed.
func (b *Bus[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for sub := range b.subs {
		delete(b.subs, sub)
		close(sub.ch)
	}
}
