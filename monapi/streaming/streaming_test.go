package streaming

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestBus_SubscribeAndUnsubscribe(t *testing.T) {
	bus := NewBus()
	var got []Event
	sub, err := bus.Subscribe(TopicChartDeleted, func(e Event) { got = append(got, e) })
	require.NoError(t, err)

	var all int
	_, err = bus.Subscribe("*", func(Event) { all++ })
	require.NoError(t, err)

	require.NoError(t, bus.Publish(context.Background(), TopicChartDeleted, map[string]int64{"id": 4}))
	require.NoError(t, bus.Publish(context.Background(), TopicChartCreated, nil))

	require.Len(t, got, 1)
	assert.JSONEq(t, `{"id":4}`, string(got[0].Payload))
	assert.NotEmpty(t, got[0].ID)
	assert.Equal(t, 2, all)

	require.NoError(t, sub.Unsubscribe())
	require.NoError(t, bus.Publish(context.Background(), TopicChartDeleted, nil))
	assert.Len(t, got, 1)
}

func TestFanout(t *testing.T) {
	bus := NewBus()
	n := 0
	_, _ = bus.Subscribe("*", func(Event) { n++ })

	f := Fanout{NewLogPublisher(zap.NewNop()), bus}
	require.NoError(t, f.Publish(context.Background(), TopicSubclassMoved, []int{1}))
	assert.Equal(t, 1, n)
	assert.Error(t, f.Publish(context.Background(), TopicSubclassMoved, make(chan int)))
	assert.NoError(t, f.Close())
}
