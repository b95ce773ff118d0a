package bus

import "sync"

// Watch holds a single latest value and notifies subscribers when it
// changes. Writes coalesce: a subscriber that is slow observes only the
// most recent value, possibly skipping intermediate ones.
type Watch[T any] struct {
	mu      sync.Mutex
	current T
	nextID  int
	subs    map[int]chan T
}

// NewWatch creates a Watch seeded with the initial value.
func NewWatch[T any](initial T) *Watch[T] {
	return &Watch[T]{
		current: initial,
		subs:    make(map[int]chan T),
	}
}

// Get returns the current value.
func (w *Watch[T]) Get() T {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Set replaces the current value and notifies subscribers. A subscriber
// with an unconsumed pending value has it replaced, not queued.
func (w *Watch[T]) Set(v T) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.current = v
	for _, ch := range w.subs {
		// Drain any pending value so the send below always succeeds.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- v:
		default:
		}
	}
}

// Update applies fn to the current value under the lock and notifies
// subscribers with the result.
func (w *Watch[T]) Update(fn func(T) T) {
	w.mu.Lock()
	v := fn(w.current)
	w.current = v
	for _, ch := range w.subs {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- v:
		default:
		}
	}
	w.mu.Unlock()
}

// Subscribe registers a change listener. The channel carries each new value
// after subscription time; use Get for the value at subscription time. The
// cancel func must be called when done.
func (w *Watch[T]) Subscribe() (<-chan T, func()) {
	w.mu.Lock()
	defer w.mu.Unlock()

	id := w.nextID
	w.nextID++
	ch := make(chan T, 1)
	w.subs[id] = ch

	cancel := func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		if sub, ok := w.subs[id]; ok {
			delete(w.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}
