package streaming

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDecodeMessage(t *testing.T) {
	e, err := decodeMessage("monforge:events:", &redis.Message{
		Channel: "monforge:events:screen.chart.deleted",
		Payload: `{"id":"e1","payload":{"id":4}}`,
	})
	require.NoError(t, err)
	assert.Equal(t, "e1", e.ID)
	assert.Equal(t, TopicChartDeleted, e.Topic)
	assert.JSONEq(t, `{"id":4}`, string(e.Payload))

	e, err = decodeMessage("p:", &redis.Message{Channel: "p:x", Payload: `{"topic":"screen.chart.created"}`})
	require.NoError(t, err)
	assert.Equal(t, TopicChartCreated, e.Topic)

	_, err = decodeMessage("p:", &redis.Message{Channel: "p:x", Payload: "not json"})
	assert.Error(t, err)
}

// Runs against the server named by MONFORGE_TEST_REDIS.
func TestRedisBus_PublishSubscribe(t *testing.T) {
	addr := os.Getenv("MONFORGE_TEST_REDIS")
	if addr == "" {
		t.Skip("MONFORGE_TEST_REDIS not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	bus := NewRedisBus(client, "monforge:test:"+time.Now().Format("150405.000")+":", zap.NewNop())
	defer bus.Close()

	got := make(chan Event, 4)
	all := make(chan Event, 4)
	sub, err := bus.Subscribe(TopicChartDeleted, func(e Event) { got <- e })
	require.NoError(t, err)
	_, err = bus.Subscribe("*", func(e Event) { all <- e })
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, bus.Publish(ctx, TopicChartDeleted, map[string]int64{"id": 4}))
	require.NoError(t, bus.Publish(ctx, TopicChartCreated, nil))

	select {
	case e := <-got:
		assert.JSONEq(t, `{"id":4}`, string(e.Payload))
	case <-time.After(2 * time.Second):
		t.Fatal("no event on topic subscription")
	}
	topics := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case e := <-all:
			topics[e.Topic] = true
		case <-time.After(2 * time.Second):
			t.Fatal("missing event on wildcard subscription")
		}
	}
	assert.True(t, topics[TopicChartDeleted])
	assert.True(t, topics[TopicChartCreated])

	require.NoError(t, sub.Unsubscribe())
}
