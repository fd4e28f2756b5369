package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultQueuePrefix is prepended to the channel name to form the list key.
const DefaultQueuePrefix = "monforge:notify:"

// Message is what the channel senders consume.
type Message struct {
	Tos     []string `json:"tos"`
	Subject string   `json:"subject"`
	Content string   `json:"content"`
	Type    string   `json:"type"`
}

// Queue accepts messages for one channel.
type Queue interface {
	Push(ctx context.Context, msg Message) error
}

// RedisQueue LPUSHes messages onto one list per channel.
type RedisQueue struct {
	client redis.Cmdable
	prefix string
}

// NewRedisQueue returns a queue writing to prefix+type lists.
func NewRedisQueue(client redis.Cmdable, prefix string) *RedisQueue {
	if prefix == "" {
		prefix = DefaultQueuePrefix
	}
	return &RedisQueue{client: client, prefix: prefix}
}

// Key is the list a message of the given channel goes to.
func (q *RedisQueue) Key(notifyType string) string {
	return q.prefix + notifyType
}

func (q *RedisQueue) Push(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := q.client.LPush(ctx, q.Key(msg.Type), payload).Err(); err != nil {
		return fmt.Errorf("lpush %s: %w", q.Key(msg.Type), err)
	}
	return nil
}
