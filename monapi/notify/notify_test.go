package notify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/itskum47/monforge/monapi/strategy"
)

type fakeQueue struct {
	msgs []Message
	fail map[string]bool
}

func (q *fakeQueue) Push(ctx context.Context, msg Message) error {
	if q.fail[msg.Type] {
		return errors.New("queue down")
	}
	q.msgs = append(q.msgs, msg)
	return nil
}

func (q *fakeQueue) byType() map[string]Message {
	out := make(map[string]Message)
	for _, m := range q.msgs {
		out[m.Type] = m
	}
	return out
}

func directory() *StaticDirectory {
	return NewStaticDirectory(
		[]User{
			{ID: 1, Username: "alice", Phone: "100", Email: "alice@example.com", IM: "alice"},
			{ID: 2, Username: "bob", Phone: "200", Email: "bob@example.com", IM: "bob"},
			{ID: 3, Username: "carol", Phone: "300", Email: "carol@example.com"},
		},
		[]Team{{ID: 10, Name: "ops", Members: []int64{2, 3}}},
	)
}

func event(typ string, priority int) *Event {
	return &Event{
		Sid:       7,
		Sname:     "cpu idle low",
		Priority:  priority,
		EventType: typ,
		Endpoint:  "10.0.0.1",
		Metric:    "cpu.idle",
		Tags:      map[string]string{"core": "0"},
		Value:     "3.5",
		Etime:     time.Date(2026, 10, 19, 8, 0, 0, 0, time.Local).Unix(),
		Users:     []int64{1},
	}
}

func TestDispatcher_PriorityChannels(t *testing.T) {
	q := &fakeQueue{}
	d := NewDispatcher(q, directory(), nil, Links{Strategy: "http://console/strategy/%d"}, zap.NewNop())

	n, err := d.Notify(context.Background(), false, event(EventAlert, strategy.PriorityCritical))
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	msgs := q.byType()
	assert.Equal(t, []string{"100"}, msgs[strategy.NotifyVoice].Tos)
	assert.Equal(t, "cpu idle low", msgs[strategy.NotifyVoice].Content)
	assert.Equal(t, []string{"alice@example.com"}, msgs[strategy.NotifyMail].Tos)
	assert.Contains(t, msgs[strategy.NotifyMail].Subject, "[P1 alert]cpu idle low - 10.0.0.1")
	assert.Contains(t, msgs[strategy.NotifyMail].Content, "<html>")
	assert.Contains(t, msgs[strategy.NotifySMS].Content, "Tags: core=0")
	assert.Contains(t, msgs[strategy.NotifyIM].Content, "http://console/strategy/7")
}

func TestDispatcher_RecoverySkipsVoice(t *testing.T) {
	q := &fakeQueue{}
	d := NewDispatcher(q, directory(), nil, Links{}, zap.NewNop())

	n, err := d.Notify(context.Background(), false, event(EventRecovery, strategy.PriorityCritical))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.NotContains(t, q.byType(), strategy.NotifyVoice)
}

func TestDispatcher_GroupsAndUpgrade(t *testing.T) {
	q := &fakeQueue{}
	d := NewDispatcher(q, directory(), nil, Links{}, zap.NewNop())

	e := event(EventAlert, strategy.PriorityMinor)
	e.AlertUpgrade = strategy.AlertUpgrade{Groups: []int64{10}, Duration: 60, Level: strategy.PriorityMajor}

	n, err := d.Notify(context.Background(), true, e)
	require.NoError(t, err)
	assert.Equal(t, 3, n, "level 2 uses sms, mail and im")

	msgs := q.byType()
	assert.Equal(t, []string{"100", "200", "300"}, msgs[strategy.NotifySMS].Tos)
	assert.Equal(t, []string{"alice", "bob"}, msgs[strategy.NotifyIM].Tos, "users without an im address are skipped")
	assert.True(t, strings.HasPrefix(msgs[strategy.NotifyMail].Subject, "[escalated]"))
}

func TestDispatcher_TypeOverridesAndErrors(t *testing.T) {
	q := &fakeQueue{fail: map[string]bool{strategy.NotifyIM: true}}
	types := map[int][]string{strategy.PriorityMinor: {strategy.NotifyMail, strategy.NotifyIM}}
	d := NewDispatcher(q, directory(), types, Links{}, zap.NewNop())

	n, err := d.Notify(context.Background(), false, event(EventAlert, strategy.PriorityMinor))
	assert.Error(t, err)
	assert.Equal(t, 1, n)
}

func TestDispatcher_NoReceivers(t *testing.T) {
	q := &fakeQueue{}
	d := NewDispatcher(q, directory(), nil, Links{}, zap.NewNop())

	e := event(EventAlert, strategy.PriorityMinor)
	e.Users = []int64{404}
	n, err := d.Notify(context.Background(), false, e)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, q.msgs)
}

func TestRender_Aggregated(t *testing.T) {
	a := event(EventAlert, 2)
	b := event(EventAlert, 2)
	b.Endpoint = "10.0.0.2"
	b.Tags = map[string]string{"core": "1"}
	b.Etime = a.Etime + 60

	c, err := render(false, []*Event{a, b}, Links{})
	require.NoError(t, err)
	assert.Contains(t, c.Subject, "[P2 aggregated alert]")
	assert.Contains(t, c.Subject, "10.0.0.1,10.0.0.2 (2)")
	assert.Contains(t, c.Text, "core=[0,1]")
	assert.Contains(t, c.Text, "~")
}

func TestFromStrategy(t *testing.T) {
	s := &strategy.Strategy{Name: "disk", Priority: 2, NotifyUser: []int64{1}, RecoverySilent: true}

	e := &Event{Sid: 1, EventType: EventAlert, Endpoint: "h"}
	require.True(t, FromStrategy(e, s))
	assert.Equal(t, "disk", e.Sname)
	assert.Equal(t, 2, e.Priority)
	assert.Equal(t, []int64{1}, e.Users)

	assert.False(t, FromStrategy(&Event{EventType: EventRecovery}, s))
}

func TestEventCheck(t *testing.T) {
	assert.NoError(t, event(EventAlert, 1).Check())
	assert.Error(t, (&Event{Endpoint: "h", EventType: EventAlert}).Check())
	assert.Error(t, (&Event{Sid: 1, EventType: EventAlert}).Check())
	assert.Error(t, (&Event{Sid: 1, Endpoint: "h", EventType: "flap"}).Check())
}

func TestRedisQueueKey(t *testing.T) {
	assert.Equal(t, "monforge:notify:mail", NewRedisQueue(nil, "").Key("mail"))
	assert.Equal(t, "n:sms", NewRedisQueue(nil, "n:").Key("sms"))
}
