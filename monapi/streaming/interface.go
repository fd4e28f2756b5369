// Package streaming publishes change events of the console so other
// components can follow screen edits.
package streaming

import (
	"context"
	"encoding/json"
	"time"
)

// Topics published by the screen service.
const (
	TopicSubclassCreated = "screen.subclass.created"
	TopicSubclassUpdated = "screen.subclass.updated"
	TopicSubclassMoved   = "screen.subclass.moved"
	TopicSubclassDeleted = "screen.subclass.deleted"
	TopicChartCreated    = "screen.chart.created"
	TopicChartUpdated    = "screen.chart.updated"
	TopicChartReordered  = "screen.chart.reordered"
	TopicChartDeleted    = "screen.chart.deleted"
)

// ScreenChange is the payload of every screen topic. ScreenIDs lists the
// screens whose layout the edit touched.
type ScreenChange struct {
	ScreenIDs []int64 `json:"screen_ids"`
	Data      any     `json:"data"`
}

type Event struct {
	ID        string          `json:"id"`
	Topic     string          `json:"topic"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
	Source    string          `json:"source"`
}

type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) error
	Close() error
}

type Subscriber interface {
	Subscribe(topic string, handler func(event Event)) (Subscription, error)
}

type Subscription interface {
	Unsubscribe() error
}
