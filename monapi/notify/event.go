// Package notify fans alert events out to the notify channels of their
// priority. Messages are queued per channel for the senders to pick up.
package notify

import (
	"errors"
	"time"

	"github.com/itskum47/monforge/monapi/strategy"
)

// Event types.
const (
	EventAlert    = "alert"
	EventRecovery = "recovery"
)

var eventTypeNames = map[string]string{
	EventAlert:    "alert",
	EventRecovery: "recovered",
}

// Event is one alert or recovery raised by a strategy for an endpoint.
type Event struct {
	ID            string            `json:"id"`
	Sid           int64             `json:"sid"`
	Sname         string            `json:"sname"`
	Priority      int               `json:"priority"`
	EventType     string            `json:"event_type"`
	Endpoint      string            `json:"endpoint"`
	EndpointAlias string            `json:"endpoint_alias,omitempty"`
	Metric        string            `json:"metric"`
	Tags          map[string]string `json:"tags,omitempty"`
	Value         string            `json:"value"`
	Info          string            `json:"info,omitempty"`
	Etime         int64             `json:"etime"`

	Users        []int64               `json:"users,omitempty"`
	Groups       []int64               `json:"groups,omitempty"`
	AlertUpgrade strategy.AlertUpgrade `json:"alert_upgrade"`
}

// Time is the event time.
func (e *Event) Time() time.Time {
	return time.Unix(e.Etime, 0)
}

// Check reports malformed events.
func (e *Event) Check() error {
	switch {
	case e.Sid <= 0:
		return errors.New("sid is required")
	case e.Endpoint == "":
		return errors.New("endpoint is required")
	case e.EventType != EventAlert && e.EventType != EventRecovery:
		return errors.New("event_type must be alert or recovery")
	}
	return nil
}

// FromStrategy fills the receivers, name and priority of e from the strategy
// that raised it. It reports false when the event must not be sent: a
// recovery of a strategy whose recoveries are silent.
func FromStrategy(e *Event, s *strategy.Strategy) bool {
	if e.EventType == EventRecovery && s.RecoverySilent {
		return false
	}
	if e.Sname == "" {
		e.Sname = s.Name
	}
	if e.Priority == 0 {
		e.Priority = s.Priority
	}
	if len(e.Users) == 0 && len(e.Groups) == 0 {
		e.Users = s.NotifyUser
		e.Groups = s.NotifyGroup
	}
	if !e.AlertUpgrade.Enabled() {
		e.AlertUpgrade = s.AlertUpgrade
	}
	return true
}
