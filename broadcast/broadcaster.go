// Package broadcast fans events out to live stream subscribers without ever
// letting a slow subscriber hold up the producer.
package broadcast

import (
	"errors"
	"sync"

	"github.com/rs/zerolog"
	"go.uber.org/atomic"
)

const (
	DefaultHistory        = 100
	DefaultMaxSubscribers = 32
	DefaultBuffer         = 64
)

var (
	ErrTooManySubscribers = errors.New("broadcast: subscriber limit reached")
	ErrClosed             = errors.New("broadcast: closed")
)

type Options struct {
	History        int
	MaxSubscribers int
	// Buffer is the per-subscriber queue on top of the replayed history.
	Buffer int
	Logger *zerolog.Logger
}

type Broadcaster[T any] struct {
	opts Options
	log  zerolog.Logger

	mu      sync.RWMutex
	subs    map[uint64]*Subscription[T]
	history []T
	closed  bool

	nextID atomic.Uint64
}

func New[T any](opts Options) *Broadcaster[T] {
	if opts.History <= 0 {
		opts.History = DefaultHistory
	}
	if opts.MaxSubscribers <= 0 {
		opts.MaxSubscribers = DefaultMaxSubscribers
	}
	if opts.Buffer <= 0 {
		opts.Buffer = DefaultBuffer
	}
	log := zerolog.Nop()
	if opts.Logger != nil {
		log = *opts.Logger
	}
	return &Broadcaster[T]{
		opts:    opts,
		log:     log,
		subs:    make(map[uint64]*Subscription[T]),
		history: make([]T, 0, opts.History),
	}
}

// Attach registers a new subscriber and replays the history ring into it.
func (b *Broadcaster[T]) Attach() (*Subscription[T], error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}
	if len(b.subs) >= b.opts.MaxSubscribers {
		return nil, ErrTooManySubscribers
	}

	sub := newSubscription[T](b.nextID.Inc(), b.opts.History+b.opts.Buffer)
	for _, v := range b.history {
		sub.ch <- v
	}
	b.subs[sub.id] = sub

	b.log.Debug().Uint64("subscriber", sub.id).Int("replayed", len(b.history)).Msg("subscriber attached")
	return sub, nil
}

// Publish records v in the history ring and offers it to every subscriber.
// A subscriber that cannot take it right now is dropped.
func (b *Broadcaster[T]) Publish(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	if len(b.history) >= b.opts.History {
		copy(b.history, b.history[1:])
		b.history = b.history[:len(b.history)-1]
	}
	b.history = append(b.history, v)

	for id, sub := range b.subs {
		if !sub.offer(v) {
			delete(b.subs, id)
			sub.close()
			b.log.Warn().Uint64("subscriber", id).Msg("subscriber dropped: not accepting data")
		}
	}
}

// Detach is idempotent.
func (b *Broadcaster[T]) Detach(sub *Subscription[T]) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if cur, ok := b.subs[sub.id]; ok && cur == sub {
		delete(b.subs, sub.id)
		b.log.Debug().Uint64("subscriber", sub.id).Msg("subscriber detached")
	}
	sub.close()
}

func (b *Broadcaster[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *Broadcaster[T]) Has(sub *Subscription[T]) bool {
	if sub == nil {
		return false
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.subs[sub.id]
	return ok
}

// History returns a copy of the ring, oldest first.
func (b *Broadcaster[T]) History() []T {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]T, len(b.history))
	copy(out, b.history)
	return out
}

// Close detaches every subscriber. Later Publish calls are ignored.
func (b *Broadcaster[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		delete(b.subs, id)
		sub.close()
	}
}
