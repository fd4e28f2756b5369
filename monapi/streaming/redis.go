package streaming

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisBus publishes events on Redis channels named prefix+topic, so every
// monapi replica sees the edits made through any other.
type RedisBus struct {
	client *redis.Client
	prefix string
	logger *zap.Logger

	mu     sync.Mutex
	subs   map[*redisSubscription]struct{}
	closed bool
}

func NewRedisBus(client *redis.Client, prefix string, logger *zap.Logger) *RedisBus {
	return &RedisBus{
		client: client,
		prefix: prefix,
		logger: logger,
		subs:   make(map[*redisSubscription]struct{}),
	}
}

func (b *RedisBus) channel(topic string) string {
	return b.prefix + topic
}

func (b *RedisBus) Publish(ctx context.Context, topic string, payload any) error {
	event, err := newEvent(topic, payload)
	if err != nil {
		return err
	}
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, b.channel(topic), data).Err()
}

// Subscribe starts a Redis subscription for topic; "*" pattern-subscribes to
// every channel under the prefix. Handlers run on the subscription's reader
// goroutine.
func (b *RedisBus) Subscribe(topic string, handler func(event Event)) (Subscription, error) {
	ctx := context.Background()
	var ps *redis.PubSub
	if topic == "*" {
		ps = b.client.PSubscribe(ctx, b.channel("*"))
	} else {
		ps = b.client.Subscribe(ctx, b.channel(topic))
	}
	// Receive waits for the confirmation so a dead server fails here.
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, err
	}

	s := &redisSubscription{bus: b, ps: ps, done: make(chan struct{})}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		ps.Close()
		return nil, redis.ErrClosed
	}
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	go s.read(handler)
	return s, nil
}

func (b *RedisBus) Close() error {
	b.mu.Lock()
	b.closed = true
	subs := b.subs
	b.subs = make(map[*redisSubscription]struct{})
	b.mu.Unlock()

	for s := range subs {
		s.close()
	}
	return nil
}

type redisSubscription struct {
	bus  *RedisBus
	ps   *redis.PubSub
	once sync.Once
	done chan struct{}
}

func (s *redisSubscription) read(handler func(Event)) {
	defer close(s.done)
	for msg := range s.ps.Channel() {
		event, err := decodeMessage(s.bus.prefix, msg)
		if err != nil {
			s.bus.logger.Warn("drop undecodable event",
				zap.String("channel", msg.Channel),
				zap.Error(err))
			continue
		}
		handler(event)
	}
}

func (s *redisSubscription) close() error {
	var err error
	s.once.Do(func() { err = s.ps.Close() })
	return err
}

func (s *redisSubscription) Unsubscribe() error {
	s.bus.mu.Lock()
	delete(s.bus.subs, s)
	s.bus.mu.Unlock()
	return s.close()
}

// decodeMessage rebuilds the event carried by msg. A missing topic falls back
// to the channel name without the prefix.
func decodeMessage(prefix string, msg *redis.Message) (Event, error) {
	var event Event
	if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
		return Event{}, err
	}
	if event.Topic == "" {
		event.Topic = strings.TrimPrefix(msg.Channel, prefix)
	}
	return event, nil
}
