// Package eventbus distributes scheduler events to the components that
// consume them: stream recorders, the prompt surface, and telemetry.
//
// Publish never blocks the scheduler's timing loop. Channel subscribers get
// every event their buffer can hold (drops are counted, and trial-rate events
// against recorder-sized buffers do not drop in practice); latest-only
// subscribers always see the newest event and nothing older, which is all a
// consumer polling at its own cadence needs.
package eventbus

import (
	"errors"
	"sync"
	"sync/atomic"
)

var (
	ErrBusClosed          = errors.New("eventbus: bus is closed")
	ErrSubscriberExists   = errors.New("eventbus: subscriber already exists")
	ErrSubscriberNotFound = errors.New("eventbus: subscriber not found")
	ErrNilChannel         = errors.New("eventbus: nil channel provided")
)

// SubscriberStats tracks delivery counts for one subscriber.
type SubscriberStats struct {
	Sent    uint64
	Dropped uint64
}

// Stats is a snapshot of bus activity.
type Stats struct {
	Published   uint64
	Subscribers map[string]SubscriberStats
}

type subscriber[T any] struct {
	id    string
	ch    chan<- T          // channel subscriber
	last  *latestHolder[T]  // latest-only subscriber
	stats SubscriberStats
}

// Bus fans events out to registered subscribers. Safe for concurrent use.
type Bus[T any] struct {
	mu        sync.RWMutex
	subs      map[string]*subscriber[T]
	published uint64
	closed    bool
}

// New creates an empty bus.
func New[T any]() *Bus[T] {
	return &Bus[T]{subs: make(map[string]*subscriber[T])}
}

// Subscribe registers a channel that receives every published event its
// buffer can hold. A full buffer drops the incoming event for that subscriber
// only, counted in stats.
func (b *Bus[T]) Subscribe(id string, ch chan<- T) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBusClosed
	}
	if _, exists := b.subs[id]; exists {
		return ErrSubscriberExists
	}
	if ch == nil {
		return ErrNilChannel
	}

	b.subs[id] = &subscriber[T]{id: id, ch: ch}
	return nil
}

// SubscribeLatest registers a latest-only subscriber: publishing replaces the
// held event, and TryReceive hands out each event at most once.
func (b *Bus[T]) SubscribeLatest(id string) (*LatestReceiver[T], error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrBusClosed
	}
	if _, exists := b.subs[id]; exists {
		return nil, ErrSubscriberExists
	}

	holder := newLatestHolder[T]()
	b.subs[id] = &subscriber[T]{id: id, last: holder}
	return &LatestReceiver[T]{holder: holder}, nil
}

// Publish fans the event out to all subscribers without blocking.
func (b *Bus[T]) Publish(v T) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}
	atomic.AddUint64(&b.published, 1)

	for _, sub := range b.subs {
		switch {
		case sub.ch != nil:
			select {
			case sub.ch <- v:
				atomic.AddUint64(&sub.stats.Sent, 1)
			default:
				atomic.AddUint64(&sub.stats.Dropped, 1)
			}
		case sub.last != nil:
			sub.last.set(v)
			atomic.AddUint64(&sub.stats.Sent, 1)
		}
	}
}

// Unsubscribe removes a subscriber.
func (b *Bus[T]) Unsubscribe(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.subs[id]; !exists {
		return ErrSubscriberNotFound
	}
	delete(b.subs, id)
	return nil
}

// Stats returns a snapshot of delivery counters.
func (b *Bus[T]) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	s := Stats{
		Published:   atomic.LoadUint64(&b.published),
		Subscribers: make(map[string]SubscriberStats, len(b.subs)),
	}
	for id, sub := range b.subs {
		s.Subscribers[id] = SubscriberStats{
			Sent:    atomic.LoadUint64(&sub.stats.Sent),
			Dropped: atomic.LoadUint64(&sub.stats.Dropped),
		}
	}
	return s
}

// Close drops all subscribers. Publishing after Close is a no-op. Idempotent.
func (b *Bus[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	b.subs = make(map[string]*subscriber[T])
}

// latestHolder keeps only the most recent event.
type latestHolder[T any] struct {
	mu    sync.Mutex
	v     T
	fresh bool
}

func newLatestHolder[T any]() *latestHolder[T] {
	return &latestHolder[T]{}
}

func (h *latestHolder[T]) set(v T) {
	h.mu.Lock()
	h.v = v
	h.fresh = true
	h.mu.Unlock()
}

func (h *latestHolder[T]) take() (T, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.fresh {
		var zero T
		return zero, false
	}
	h.fresh = false
	return h.v, true
}

// LatestReceiver hands out the newest published event at most once.
type LatestReceiver[T any] struct {
	holder *latestHolder[T]
}

// TryReceive returns the newest unseen event, if any.
func (r *LatestReceiver[T]) TryReceive() (T, bool) {
	return r.holder.take()
}
