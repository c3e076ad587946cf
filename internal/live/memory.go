package live

import (
	"context"
	"sync"
)

const subscriberBuffer = 64

type memorySub struct {
	filter Filter
	ch     chan Event
}

// MemoryBus is an in-process Bus. Slow subscribers drop events rather than block publishers.
type MemoryBus struct {
	mu     sync.Mutex
	subs   map[*memorySub]struct{}
	closed bool
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[*memorySub]struct{})}
}

func (b *MemoryBus) Publish(_ context.Context, e Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBusClosed
	}
	for s := range b.subs {
		if !s.filter.Match(e) {
			continue
		}
		select {
		case s.ch <- e:
		default:
		}
	}
	return nil
}

func (b *MemoryBus) Subscribe(ctx context.Context, f Filter) (<-chan Event, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrBusClosed
	}
	s := &memorySub{filter: f, ch: make(chan Event, subscriberBuffer)}
	b.subs[s] = struct{}{}
	go func() {
		<-ctx.Done()
		b.remove(s)
	}()
	return s.ch, nil
}

func (b *MemoryBus) remove(s *memorySub) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[s]; ok {
		delete(b.subs, s)
		close(s.ch)
	}
}

// Close ends every subscription. Subscribers still need their contexts cancelled
// to release the watcher goroutines.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for s := range b.subs {
		delete(b.subs, s)
		close(s.ch)
	}
	return nil
}
