package streaming

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LogPublisher writes every event to the log.
type LogPublisher struct {
	logger *zap.Logger
}

func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, topic string, payload any) error {
	event, err := newEvent(topic, payload)
	if err != nil {
		return err
	}
	p.logger.Info("publish",
		zap.String("event_id", event.ID),
		zap.String("topic", topic),
		zap.ByteString("payload", event.Payload),
	)
	return nil
}

func (p *LogPublisher) Close() error {
	p.logger.Debug("log publisher closed")
	return nil
}

func newEvent(topic string, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{
		ID:        uuid.NewString(),
		Topic:     topic,
		Payload:   data,
		Timestamp: time.Now(),
		Source:    "monapi",
	}, nil
}
