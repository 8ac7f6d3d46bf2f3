package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/stability/internal/core/domain"
)

// Publisher is what components depend on to emit operational signals.
// Publish must never block the caller.
type Publisher interface {
	Publish(event domain.Event)
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(domain.Event) {}

// Subscription receives events from a Bus.
type Subscription struct {
	id uint64
	ch chan domain.Event
}

// C returns the delivery channel. It is closed on Unsubscribe or Bus.Close.
func (s *Subscription) C() <-chan domain.Event {
	return s.ch
}

// Bus fans events out to subscribers. Slow subscribers lose events
// instead of stalling publishers.
type Bus struct {
	mu      sync.RWMutex
	subs    map[uint64]*Subscription
	nextID  uint64
	closed  bool
	dropped atomic.Uint64
	now     func() time.Time
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{
		subs: make(map[uint64]*Subscription),
		now:  time.Now,
	}
}

// Subscribe registers a subscriber with the given channel buffer.
func (b *Bus) Subscribe(buffer int) *Subscription {
	if buffer < 1 {
		buffer = 1
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription{id: b.nextID, ch: make(chan domain.Event, buffer)}
	if b.closed {
		close(sub.ch)
		return sub
	}
	b.subs[sub.id] = sub
	return sub
}

// Unsubscribe removes sub and closes its channel.
func (b *Bus) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs[sub.id]; !ok {
		return
	}
	delete(b.subs, sub.id)
	close(sub.ch)
}

// Publish stamps the event and delivers it to every subscriber that has
// buffer space.
func (b *Bus) Publish(event domain.Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = b.now()
	}
	if event.Severity == "" {
		event.Severity = domain.SeverityInfo
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs {
		select {
		case sub.ch <- event:
		default:
			b.dropped.Add(1)
		}
	}
}

// Dropped returns how many deliveries were skipped because a subscriber was full.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// Close unsubscribes everyone. Later publishes are discarded.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		delete(b.subs, id)
		close(sub.ch)
	}
}
