package main

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/itskum47/monforge/monapi/notify"
	"github.com/itskum47/monforge/monapi/observability"
	"github.com/itskum47/monforge/monapi/strategy"
)

type eventsRequest struct {
	Upgrade bool            `json:"upgrade"`
	Events  []*notify.Event `json:"events"`
}

type eventsResponse struct {
	Sent      int `json:"sent"`
	Dropped   int `json:"dropped"`
	Callbacks int `json:"callbacks"`
}

// handleEvents fans alert events out to the notify queues. Events are
// grouped by strategy and each group becomes one aggregated notification.
// Alerts held back by the strategy's converge rule are dropped; alerts of
// strategies with a callback are also queued for the callback sender.
func (a *API) handleEvents(w http.ResponseWriter, r *http.Request) {
	var req eventsRequest
	if err := bind(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	if len(req.Events) == 0 {
		a.writeError(w, r, badRequest(errors.New("no events")))
		return
	}
	for i, e := range req.Events {
		if e == nil {
			a.writeError(w, r, badRequest(fmt.Errorf("events[%d]: missing", i)))
			return
		}
		if err := e.Check(); err != nil {
			a.writeError(w, r, badRequest(fmt.Errorf("events[%d]: %w", i, err)))
			return
		}
		if e.Etime == 0 {
			e.Etime = time.Now().Unix()
		}
	}

	var (
		resp   eventsResponse
		order  []int64
		groups = map[int64][]*notify.Event{}
		cache  = map[int64]*strategy.Strategy{}
	)
	for _, e := range req.Events {
		s, ok := cache[e.Sid]
		if !ok {
			var err error
			s, err = a.store.GetStrategy(r.Context(), e.Sid)
			if err != nil {
				a.writeError(w, r, err)
				return
			}
			cache[e.Sid] = s
		}

		switch {
		case s == nil:
			observability.NotifyDropped.WithLabelValues("unknown_strategy").Inc()
			resp.Dropped++
			continue
		case !s.ActiveAt(e.Time()):
			observability.NotifyDropped.WithLabelValues("inactive").Inc()
			resp.Dropped++
			continue
		case a.dispatcher.Converged(r.Context(), e, s):
			observability.NotifyDropped.WithLabelValues("converged").Inc()
			resp.Dropped++
			continue
		case !notify.FromStrategy(e, s):
			observability.NotifyDropped.WithLabelValues("recovery_silent").Inc()
			resp.Dropped++
			continue
		}

		queued, err := a.dispatcher.Callback(r.Context(), e, s)
		if err != nil {
			a.logger.Error("queue callback event", zap.Int64("sid", e.Sid), zap.Error(err))
		}
		if queued {
			resp.Callbacks++
		}

		if _, seen := groups[e.Sid]; !seen {
			order = append(order, e.Sid)
		}
		groups[e.Sid] = append(groups[e.Sid], e)
	}

	var errs []error
	for _, sid := range order {
		n, err := a.dispatcher.Notify(r.Context(), req.Upgrade, groups[sid]...)
		resp.Sent += n
		if err != nil {
			a.logger.Error("notify failed", zap.Int64("sid", sid), zap.Error(err))
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil && resp.Sent == 0 {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
