// Package bus provides the in-process fan-out primitives the bridge is built
// on: a lossy multi-subscriber broadcast channel and a coalescing
// latest-value watch.
package bus

import (
	"sync"
)

// DefaultCapacity is the per-subscriber buffer for broadcast channels.
const DefaultCapacity = 100

// Bus broadcasts values to any number of subscribers. Delivery is lossy: a
// subscriber that falls behind by its buffer capacity silently drops the
// overflow and must tolerate gaps. Publish never blocks.
type Bus[T any] struct {
	mu       sync.Mutex
	capacity int
	nextID   int
	subs     map[int]chan T
}

// NewBus creates a Bus with the given per-subscriber buffer capacity.
// Non-positive capacities fall back to DefaultCapacity.
func NewBus[T any](capacity int) *Bus[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Bus[T]{
		capacity: capacity,
		subs:     make(map[int]chan T),
	}
}

// Subscribe registers a new subscriber. The returned cancel func must be
// called when the subscriber is done; it closes the channel.
func (b *Bus[T]) Subscribe() (<-chan T, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan T, b.capacity)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Publish delivers v to every subscriber with room in its buffer. Full
// subscribers are skipped.
func (b *Bus[T]) Publish(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- v:
		default:
			// Slow consumer, drop for this subscriber only.
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus[T]) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
