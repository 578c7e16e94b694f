package event

import (
	"log/slog"
	"sync"

	"github.com/Workiva/go-datastructures/queue"
)

// Bus fans events out to subscribers. Publish never blocks: each
// subscription owns an unbounded FIFO drained by its own goroutine, so a
// slow subscriber delays only itself and sees events in publish order.
type Bus struct {
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	closed bool
}

func NewBus() *Bus {
	return &Bus{subs: make(map[*Subscription]struct{})}
}

// Subscription receives events of the requested kinds (all kinds when none
// were given) on C until it is unsubscribed or the bus is closed.
type Subscription struct {
	bus   *Bus
	kinds map[Kind]bool
	q     *queue.Queue
	ch    chan Event
	done  chan struct{}
	once  sync.Once
}

// C is closed after Unsubscribe, or once the events queued before Bus.Close
// have been delivered.
func (s *Subscription) C() <-chan Event { return s.ch }

// Unsubscribe detaches the subscription and discards undelivered events.
func (s *Subscription) Unsubscribe() { s.bus.remove(s) }

func (s *Subscription) wants(k Kind) bool {
	return len(s.kinds) == 0 || s.kinds[k]
}

func (s *Subscription) pump() {
	defer close(s.ch)
	for {
		items, err := s.q.Get(64)
		if err != nil {
			return
		}
		for _, it := range items {
			e, ok := it.(Event)
			if !ok {
				s.stop()
				return
			}
			select {
			case s.ch <- e:
			case <-s.done:
				return
			}
		}
	}
}

// endOfStream is queued by Bus.Close behind the last real event.
type endOfStream struct{}

func (s *Subscription) stop() {
	s.once.Do(func() {
		close(s.done)
		s.q.Dispose()
	})
}

func (b *Bus) Subscribe(kinds ...Kind) *Subscription {
	s := &Subscription{
		bus:   b,
		kinds: make(map[Kind]bool, len(kinds)),
		q:     queue.New(16),
		ch:    make(chan Event),
		done:  make(chan struct{}),
	}
	for _, k := range kinds {
		s.kinds[k] = true
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(s.done)
		close(s.ch)
		return s
	}
	b.subs[s] = struct{}{}
	go s.pump()
	return s
}

func (b *Bus) remove(s *Subscription) {
	b.mu.Lock()
	delete(b.subs, s)
	b.mu.Unlock()
	s.stop()
}

// Publish enqueues e for every interested subscriber.
func (b *Bus) Publish(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for s := range b.subs {
		if !s.wants(e.Kind) {
			continue
		}
		if err := s.q.Put(e); err != nil {
			slog.Debug("event dropped", "kind", e.Kind.String(), "error", err)
		}
	}
}

// Close detaches all subscribers. Events published before Close are still
// delivered to subscribers that keep reading; Unsubscribe abandons them.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()
	for s := range subs {
		if err := s.q.Put(endOfStream{}); err != nil {
			s.stop()
		}
	}
}
