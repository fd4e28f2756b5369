// Package strategy models alerting rules: trigger expressions over metrics,
// tag filters, who to notify, when the rule is in force and how it escalates.
package strategy

import (
	"sort"
	"strings"
	"time"
)

// Priorities. Lower is more urgent.
const (
	PriorityCritical = 1
	PriorityMajor    = 2
	PriorityMinor    = 3
)

// Defaults applied to a new strategy.
const (
	DefaultPriority    = PriorityMinor
	DefaultAlertDur    = 180
	DefaultCategory    = 1
	DefaultEnableStime = "00:00"
	DefaultEnableEtime = "23:59"
)

// Notify channels.
const (
	NotifyVoice = "voice"
	NotifySMS   = "sms"
	NotifyMail  = "mail"
	NotifyIM    = "im"
)

// DefaultNotifyTypes maps a priority to the channels used for it.
var DefaultNotifyTypes = map[int][]string{
	PriorityCritical: {NotifyVoice, NotifySMS, NotifyMail, NotifyIM},
	PriorityMajor:    {NotifySMS, NotifyMail, NotifyIM},
	PriorityMinor:    {NotifyMail, NotifyIM},
}

// NotifyTypes returns the channels for priority, preferring overrides.
func NotifyTypes(priority int, overrides map[int][]string) []string {
	if types, ok := overrides[priority]; ok {
		return types
	}
	return DefaultNotifyTypes[priority]
}

// Strategy is one alerting rule.
type Strategy struct {
	ID       int64   `json:"id"`
	Name     string  `json:"name"`
	Category int     `json:"category"`
	Nid      int64   `json:"nid"`
	ExclNid  []int64 `json:"excl_nid"`
	Priority int     `json:"priority"`

	// AlertDur is the evaluation window in seconds.
	AlertDur int `json:"alert_dur"`
	// RecoveryDur is how long a recovered rule is watched before the
	// recovery is announced.
	RecoveryDur int `json:"recovery_dur"`
	// RecoverySilent suppresses the recovery notification.
	RecoverySilent bool `json:"recovery_silent"`

	Exprs []Expression `json:"exprs"`
	Tags  []TagFilter  `json:"tags"`

	NotifyUser  []int64 `json:"notify_user"`
	NotifyGroup []int64 `json:"notify_group"`
	Callback    string  `json:"callback"`

	EnableStime      string `json:"enable_stime"`
	EnableEtime      string `json:"enable_etime"`
	EnableDaysOfWeek []int  `json:"enable_days_of_week"`

	AlertUpgrade AlertUpgrade `json:"alert_upgrade"`

	// Converge is [seconds, max]: at most max alerts per seconds.
	Converge Converge `json:"converge"`

	Creator     string    `json:"creator"`
	Created     time.Time `json:"created"`
	LastUpdator string    `json:"last_updator"`
	LastUpdated time.Time `json:"last_updated"`
}

// Expression is one trigger condition. All expressions of a strategy must
// hold for it to fire.
type Expression struct {
	Metric    string  `json:"metric"`
	Func      string  `json:"func"`
	Eopt      string  `json:"eopt"`
	Threshold float64 `json:"threshold"`
	Params    []int   `json:"params"`
}

// TagFilter restricts the series a strategy looks at.
type TagFilter struct {
	Tkey string   `json:"tkey"`
	Topt string   `json:"topt"`
	Tval []string `json:"tval"`
}

// AlertUpgrade escalates an alert that stays unresolved for Duration seconds.
type AlertUpgrade struct {
	Users    []int64 `json:"users"`
	Groups   []int64 `json:"groups"`
	Duration int     `json:"duration"`
	Level    int     `json:"level"`
}

// Converge limits how often one series may alert. The window starts at
// Seconds ago or at the series' last recovery, whichever is later.
type Converge [2]int

// Seconds is the length of the window. Zero turns convergence off.
func (c Converge) Seconds() int { return c[0] }

// Max is the number of alerts let through per window.
func (c Converge) Max() int { return c[1] }

// Enabled reports whether convergence is configured.
func (c Converge) Enabled() bool { return c[0] > 0 }

// Enabled reports whether escalation is configured.
func (u AlertUpgrade) Enabled() bool {
	return u.Duration > 0 && (len(u.Users) > 0 || len(u.Groups) > 0)
}

// DefaultExpression seeds the editor with one condition.
func DefaultExpression() Expression {
	return Expression{Func: "all", Eopt: "=", Threshold: 0, Params: []int{}}
}

// ApplyDefaults fills unset fields with the editor defaults.
func (s *Strategy) ApplyDefaults() {
	if s.Category == 0 {
		s.Category = DefaultCategory
	}
	if s.Priority == 0 {
		s.Priority = DefaultPriority
	}
	if s.AlertDur == 0 {
		s.AlertDur = DefaultAlertDur
	}
	if len(s.Exprs) == 0 {
		s.Exprs = []Expression{DefaultExpression()}
	}
	if s.EnableStime == "" {
		s.EnableStime = DefaultEnableStime
	}
	if s.EnableEtime == "" {
		s.EnableEtime = DefaultEnableEtime
	}
	if len(s.EnableDaysOfWeek) == 0 {
		s.EnableDaysOfWeek = []int{0, 1, 2, 3, 4, 5, 6}
	}
	if s.AlertUpgrade.Level == 0 {
		s.AlertUpgrade.Level = PriorityCritical
	}
}

// Normalize cleans up a submitted strategy: trims text, drops the strategy's
// own node from the exclusions and de-duplicates id lists.
func (s *Strategy) Normalize() {
	s.Name = strings.TrimSpace(s.Name)
	s.Callback = strings.TrimSpace(s.Callback)

	excl := uniqueIDs(s.ExclNid)
	out := excl[:0]
	for _, id := range excl {
		if id != s.Nid {
			out = append(out, id)
		}
	}
	s.ExclNid = out

	s.NotifyUser = uniqueIDs(s.NotifyUser)
	s.NotifyGroup = uniqueIDs(s.NotifyGroup)
	s.AlertUpgrade.Users = uniqueIDs(s.AlertUpgrade.Users)
	s.AlertUpgrade.Groups = uniqueIDs(s.AlertUpgrade.Groups)

	days := make([]int, 0, len(s.EnableDaysOfWeek))
	seen := map[int]bool{}
	for _, d := range s.EnableDaysOfWeek {
		if !seen[d] {
			seen[d] = true
			days = append(days, d)
		}
	}
	sort.Ints(days)
	s.EnableDaysOfWeek = days

	for i := range s.Exprs {
		s.Exprs[i].Metric = strings.TrimSpace(s.Exprs[i].Metric)
	}
	for i := range s.Tags {
		s.Tags[i].Tkey = strings.TrimSpace(s.Tags[i].Tkey)
	}
}

// ActiveAt reports whether the strategy is in force at t (local clock).
// A window whose end is before its start wraps over midnight.
func (s *Strategy) ActiveAt(t time.Time) bool {
	if len(s.EnableDaysOfWeek) > 0 {
		ok := false
		for _, d := range s.EnableDaysOfWeek {
			if time.Weekday(d) == t.Weekday() {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}

	start, err1 := parseClock(s.EnableStime)
	end, err2 := parseClock(s.EnableEtime)
	if err1 != nil || err2 != nil {
		return true
	}
	now := t.Hour()*60 + t.Minute()
	if start <= end {
		return now >= start && now <= end
	}
	return now >= start || now <= end
}

func uniqueIDs(ids []int64) []int64 {
	if len(ids) == 0 {
		return []int64{}
	}
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
