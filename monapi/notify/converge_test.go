package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/itskum47/monforge/monapi/strategy"
)

func TestConverger_LimitsAlertsPerWindow(t *testing.T) {
	c := NewConverger(NewMemoryConvergeStore())
	now := time.Unix(1700000000, 0)
	c.now = func() time.Time { return now }
	ctx := context.Background()
	s := &strategy.Strategy{ID: 7, Converge: strategy.Converge{3600, 2}}

	for i := 0; i < 2; i++ {
		held, err := c.Converged(ctx, event(EventAlert, 1), s)
		require.NoError(t, err)
		assert.False(t, held, "alert %d", i)
		now = now.Add(time.Minute)
	}
	held, err := c.Converged(ctx, event(EventAlert, 1), s)
	require.NoError(t, err)
	assert.True(t, held)

	// Another series has its own window.
	other := event(EventAlert, 1)
	other.Endpoint = "10.0.0.2"
	held, err = c.Converged(ctx, other, s)
	require.NoError(t, err)
	assert.False(t, held)

	now = now.Add(time.Hour)
	held, err = c.Converged(ctx, event(EventAlert, 1), s)
	require.NoError(t, err)
	assert.False(t, held)
}

func TestConverger_RecoveryRestartsWindow(t *testing.T) {
	c := NewConverger(NewMemoryConvergeStore())
	now := time.Unix(1700000000, 0)
	c.now = func() time.Time { return now }
	ctx := context.Background()
	s := &strategy.Strategy{ID: 7, Converge: strategy.Converge{3600, 1}}

	held, _ := c.Converged(ctx, event(EventAlert, 1), s)
	require.False(t, held)
	now = now.Add(time.Minute)
	held, _ = c.Converged(ctx, event(EventAlert, 1), s)
	require.True(t, held)

	now = now.Add(time.Minute)
	held, err := c.Converged(ctx, event(EventRecovery, 1), s)
	require.NoError(t, err)
	assert.False(t, held)

	now = now.Add(time.Second)
	held, _ = c.Converged(ctx, event(EventAlert, 1), s)
	assert.False(t, held)
}

func TestConverger_Off(t *testing.T) {
	c := NewConverger(NewMemoryConvergeStore())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		held, err := c.Converged(ctx, event(EventAlert, 1), &strategy.Strategy{})
		require.NoError(t, err)
		assert.False(t, held)
	}

	held, err := c.Converged(ctx, event(EventAlert, 1), &strategy.Strategy{Converge: strategy.Converge{60, 0}})
	require.NoError(t, err)
	assert.True(t, held)
}

func TestEventSeries(t *testing.T) {
	a := event(EventAlert, 1)
	b := event(EventRecovery, 2)
	assert.Equal(t, a.Series(), b.Series())

	b.Tags = map[string]string{"core": "1"}
	assert.NotEqual(t, a.Series(), b.Series())
}

type fakeCallbacks struct {
	events []CallbackEvent
	err    error
}

func (f *fakeCallbacks) PushCallback(ctx context.Context, ce CallbackEvent) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, ce)
	return nil
}

func TestDispatcher_Callback(t *testing.T) {
	cb := &fakeCallbacks{}
	d := NewDispatcher(&fakeQueue{}, directory(), nil, Links{}, zap.NewNop(), WithCallbacks(cb))
	ctx := context.Background()
	s := &strategy.Strategy{ID: 7, Callback: "http://hooks.example.com/alert"}

	queued, err := d.Callback(ctx, event(EventAlert, 1), s)
	require.NoError(t, err)
	assert.True(t, queued)
	require.Len(t, cb.events, 1)
	assert.Equal(t, "http://hooks.example.com/alert", cb.events[0].Callback)
	assert.NotEmpty(t, cb.events[0].Event.ID)

	queued, _ = d.Callback(ctx, event(EventRecovery, 1), s)
	assert.False(t, queued)
	queued, _ = d.Callback(ctx, event(EventAlert, 1), &strategy.Strategy{ID: 7})
	assert.False(t, queued)
	assert.Len(t, cb.events, 1)

	cb.err = errors.New("redis down")
	_, err = d.Callback(ctx, event(EventAlert, 1), s)
	assert.Error(t, err)
}

func TestDispatcher_ConvergedWithoutConverger(t *testing.T) {
	d := NewDispatcher(&fakeQueue{}, directory(), nil, Links{}, zap.NewNop())
	assert.False(t, d.Converged(context.Background(), event(EventAlert, 1), &strategy.Strategy{Converge: strategy.Converge{60, 0}}))
}
