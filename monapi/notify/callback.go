package notify

import (
	"context"
	"encoding/json"
	"fmt"
)

// CallbackEvent is what the callback sender consumes: the strategy's
// callback url and the alert to post to it.
type CallbackEvent struct {
	Callback string `json:"callback"`
	Event    *Event `json:"event"`
}

// CallbackQueue accepts alerts for strategies with a callback.
type CallbackQueue interface {
	PushCallback(ctx context.Context, ce CallbackEvent) error
}

// CallbackKey is the list callback events go to.
func (q *RedisQueue) CallbackKey() string {
	return q.prefix + "callback"
}

func (q *RedisQueue) PushCallback(ctx context.Context, ce CallbackEvent) error {
	payload, err := json.Marshal(ce)
	if err != nil {
		return err
	}
	if err := q.client.LPush(ctx, q.CallbackKey(), payload).Err(); err != nil {
		return fmt.Errorf("lpush %s: %w", q.CallbackKey(), err)
	}
	return nil
}
