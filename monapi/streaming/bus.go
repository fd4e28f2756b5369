package streaming

import (
	"context"
	"sync"
)

// Bus is an in-process Publisher and Subscriber. Handlers run synchronously
// on the publishing goroutine and must not block.
type Bus struct {
	mu       sync.RWMutex
	next     int
	handlers map[string]map[int]func(Event)
	closed   bool
}

func NewBus() *Bus {
	return &Bus{handlers: make(map[string]map[int]func(Event))}
}

func (b *Bus) Publish(ctx context.Context, topic string, payload any) error {
	event, err := newEvent(topic, payload)
	if err != nil {
		return err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil
	}
	for _, h := range b.handlers[topic] {
		h(event)
	}
	for _, h := range b.handlers["*"] {
		h(event)
	}
	return nil
}

// Subscribe registers handler for topic; "*" receives every topic.
func (b *Bus) Subscribe(topic string, handler func(event Event)) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next++
	id := b.next
	if b.handlers[topic] == nil {
		b.handlers[topic] = make(map[int]func(Event))
	}
	b.handlers[topic][id] = handler
	return &subscription{bus: b, topic: topic, id: id}, nil
}

func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.handlers = make(map[string]map[int]func(Event))
	return nil
}

type subscription struct {
	bus   *Bus
	topic string
	id    int
}

func (s *subscription) Unsubscribe() error {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	delete(s.bus.handlers[s.topic], s.id)
	return nil
}

// Fanout publishes to several publishers, returning the first error.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, topic string, payload any) error {
	var first error
	for _, p := range f {
		if err := p.Publish(ctx, topic, payload); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (f Fanout) Close() error {
	var first error
	for _, p := range f {
		if err := p.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
