package broadcast

import (
	"sync"
	"time"
)

// Subscription is one consumer handle. Receive from C until Done is closed.
type Subscription[T any] struct {
	id         uint64
	AttachedAt time.Time

	ch   chan T
	done chan struct{}
	once sync.Once

	mu     sync.Mutex
	closed bool
}

func newSubscription[T any](id uint64, size int) *Subscription[T] {
	return &Subscription[T]{
		id:         id,
		AttachedAt: time.Now(),
		ch:         make(chan T, size),
		done:       make(chan struct{}),
	}
}

func (s *Subscription[T]) ID() uint64 {
	return s.id
}

// C delivers events in publish order. It is never closed; select on Done.
func (s *Subscription[T]) C() <-chan T {
	return s.ch
}

func (s *Subscription[T]) Done() <-chan struct{} {
	return s.done
}

// offer never blocks. It reports false when the subscriber is closed or its
// queue is full.
func (s *Subscription[T]) offer(v T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.ch <- v:
		return true
	default:
		return false
	}
}

func (s *Subscription[T]) close() {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		close(s.done)
	})
}

// Close marks the subscription dead, e.g. when the HTTP client went away.
// The broadcaster drops it on the next publish.
func (s *Subscription[T]) Close() {
	s.close()
}
