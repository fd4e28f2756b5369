package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/itskum47/monforge/monapi/observability"
	"github.com/itskum47/monforge/monapi/strategy"
)

// Dispatcher turns events into per-channel messages.
type Dispatcher struct {
	queue     Queue
	dir       Directory
	types     map[int][]string
	links     Links
	logger    *zap.Logger
	converger *Converger
	callbacks CallbackQueue
}

// Option configures optional parts of a Dispatcher.
type Option func(*Dispatcher)

// WithConverger enables the converge rule of strategies.
func WithConverger(c *Converger) Option {
	return func(d *Dispatcher) { d.converger = c }
}

// WithCallbacks enables queueing alerts of strategies with a callback.
func WithCallbacks(q CallbackQueue) Option {
	return func(d *Dispatcher) { d.callbacks = q }
}

// NewDispatcher wires a dispatcher. types overrides the channels used per
// priority; nil keeps the defaults.
func NewDispatcher(queue Queue, dir Directory, types map[int][]string, links Links, logger *zap.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		queue:  queue,
		dir:    dir,
		types:  types,
		links:  links,
		logger: logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Converged reports whether the converge rule of s holds e back. Without a
// converger, or when the converge state cannot be read, nothing is held back.
func (d *Dispatcher) Converged(ctx context.Context, e *Event, s *strategy.Strategy) bool {
	if d.converger == nil {
		return false
	}
	held, err := d.converger.Converged(ctx, e, s)
	if err != nil {
		d.logger.Error("converge check failed", zap.Int64("sid", e.Sid), zap.Error(err))
		return false
	}
	return held
}

// Callback queues an alert of a strategy that has a callback. It reports
// whether the event was queued.
func (d *Dispatcher) Callback(ctx context.Context, e *Event, s *strategy.Strategy) (bool, error) {
	if d.callbacks == nil || s.Callback == "" || e.EventType != EventAlert {
		return false, nil
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if err := d.callbacks.PushCallback(ctx, CallbackEvent{Callback: s.Callback, Event: e}); err != nil {
		observability.NotifyPushes.WithLabelValues("callback", "error").Inc()
		return false, err
	}
	observability.NotifyPushes.WithLabelValues("callback", "ok").Inc()
	d.logger.Debug("callback event queued", zap.Int64("sid", e.Sid), zap.String("event_id", e.ID))
	return true, nil
}

// Notify sends one aggregated notification for events, which share a
// strategy. The last event decides priority and receivers. With upgrade set
// the alert-upgrade receivers are added and the upgrade level is used.
// It returns the number of messages queued.
func (d *Dispatcher) Notify(ctx context.Context, upgrade bool, events ...*Event) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}
	for _, e := range events {
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
	}
	last := events[len(events)-1]

	ids, err := d.receivers(ctx, last.Users, last.Groups)
	if err != nil {
		return 0, fmt.Errorf("resolve receivers: %w", err)
	}
	priority := last.Priority
	if upgrade {
		up, err := d.receivers(ctx, last.AlertUpgrade.Users, last.AlertUpgrade.Groups)
		if err != nil {
			d.logger.Error("resolve upgrade receivers", zap.Int64("sid", last.Sid), zap.Error(err))
		}
		ids = append(ids, up...)
		priority = last.AlertUpgrade.Level
	}

	users, err := d.dir.Users(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("load users: %w", err)
	}
	if len(users) == 0 {
		observability.NotifyDropped.WithLabelValues("no_receivers").Inc()
		d.logger.Warn("event has no receivers", zap.Int64("sid", last.Sid), zap.String("event_id", last.ID))
		return 0, nil
	}

	c, err := render(upgrade, events, d.links)
	if err != nil {
		return 0, err
	}

	var (
		sent int
		errs []error
	)
	for _, typ := range strategy.NotifyTypes(priority, d.types) {
		msg, ok := d.message(typ, users, c, events[0])
		if !ok {
			continue
		}
		if err := d.queue.Push(ctx, msg); err != nil {
			observability.NotifyPushes.WithLabelValues(typ, "error").Inc()
			d.logger.Error("queue notify message", zap.String("type", typ), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		observability.NotifyPushes.WithLabelValues(typ, "ok").Inc()
		d.logger.Debug("notify message queued",
			zap.String("type", typ),
			zap.Int64("sid", last.Sid),
			zap.String("endpoint", last.Endpoint),
			zap.Int("tos", len(msg.Tos)),
		)
		sent++
	}
	return sent, errors.Join(errs...)
}

func (d *Dispatcher) message(typ string, users []User, c content, first *Event) (Message, bool) {
	var (
		tos     []string
		subject string
		body    string
	)
	switch typ {
	case strategy.NotifyVoice:
		if first.EventType != EventAlert {
			return Message{}, false
		}
		for _, u := range users {
			tos = append(tos, u.Phone)
		}
		body = first.Sname
	case strategy.NotifySMS:
		for _, u := range users {
			tos = append(tos, u.Phone)
		}
		body = c.Text
	case strategy.NotifyMail:
		for _, u := range users {
			tos = append(tos, u.Email)
		}
		subject, body = c.Subject, c.Mail
	case strategy.NotifyIM:
		for _, u := range users {
			tos = append(tos, u.IM)
		}
		body = c.Text
	default:
		d.logger.Error("unsupported notify type", zap.String("type", typ))
		return Message{}, false
	}

	tos = unique(tos)
	if len(tos) == 0 {
		return Message{}, false
	}
	return Message{Tos: tos, Subject: subject, Content: body, Type: typ}, true
}

func (d *Dispatcher) receivers(ctx context.Context, users, groups []int64) ([]int64, error) {
	ids := append([]int64(nil), users...)
	if len(groups) == 0 {
		return ids, nil
	}
	members, err := d.dir.TeamMembers(ctx, groups)
	if err != nil {
		return nil, err
	}
	return append(ids, members...), nil
}
