package strategy

import (
	"fmt"
	"net/url"
	"time"

	"github.com/itskum47/monforge/monapi/tree"
	"github.com/itskum47/monforge/monapi/validation"
)

var exprFuncs = map[string]bool{
	"all": true, "max": true, "min": true, "avg": true, "sum": true,
	"diff": true, "pdiff": true, "happen": true, "nodata": true, "c_avg_rate_abs": true,
}

var eopts = map[string]bool{"=": true, "!=": true, ">": true, "<": true, ">=": true, "<=": true}

// Validate checks s against the editor rules. When nodes is non-nil, node
// references are checked against the service tree as well.
func Validate(s *Strategy, nodes *tree.Tree) error {
	errs := &validation.Errors{}

	if s.Name == "" {
		errs.Add("name", "strategy name is required")
	}
	if s.Nid <= 0 {
		errs.Add("nid", "node is required")
	} else if nodes != nil {
		if nodes.Get(s.Nid) == nil {
			errs.Add("nid", "unknown node")
		} else {
			for _, id := range s.ExclNid {
				if !nodes.IsDescendant(id, s.Nid) {
					errs.Add("excl_nid", fmt.Sprintf("node %d is not under node %d", id, s.Nid))
				}
			}
		}
	}

	if s.Priority < PriorityCritical || s.Priority > PriorityMinor {
		errs.Add("priority", "must be 1, 2 or 3")
	}
	if s.AlertDur < 0 {
		errs.Add("alert_dur", "must not be negative")
	}
	if s.RecoveryDur < 0 {
		errs.Add("recovery_dur", "must not be negative")
	}

	validateExprs(s.Exprs, s.AlertDur, errs)
	validateTags(s.Tags, errs)

	if s.Callback != "" {
		if u, err := url.Parse(s.Callback); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs.Add("callback", "must be an http(s) url")
		}
	}
	if len(s.NotifyUser) == 0 && len(s.NotifyGroup) == 0 && s.Callback == "" {
		errs.Add("action", "choose at least one user, team or callback")
	}

	if _, err := parseClock(s.EnableStime); err != nil {
		errs.Add("enable_stime", err.Error())
	}
	if _, err := parseClock(s.EnableEtime); err != nil {
		errs.Add("enable_etime", err.Error())
	}
	for _, d := range s.EnableDaysOfWeek {
		if d < 0 || d > 6 {
			errs.Add("enable_days_of_week", fmt.Sprintf("day %d out of range 0-6", d))
		}
	}

	validateUpgrade(s.AlertUpgrade, errs)

	if s.Converge.Seconds() < 0 || s.Converge.Max() < 0 {
		errs.Add("converge", "seconds and max must not be negative")
	}

	return errs.Err()
}

func validateExprs(exprs []Expression, alertDur int, errs *validation.Errors) {
	if len(exprs) == 0 {
		errs.Add("exprs", "at least one condition is required")
		return
	}
	for i, e := range exprs {
		field := fmt.Sprintf("exprs[%d]", i)
		if e.Metric == "" {
			errs.Add(field+".metric", "metric is required")
		}
		if !exprFuncs[e.Func] {
			errs.Add(field+".func", fmt.Sprintf("unsupported function %q", e.Func))
			continue
		}
		if !eopts[e.Eopt] {
			errs.Add(field+".eopt", fmt.Sprintf("unsupported operator %q", e.Eopt))
		}
		switch e.Func {
		case "happen":
			// happen: at least params[1] of the last params[0] points match.
			if len(e.Params) != 2 || e.Params[0] <= 0 || e.Params[1] <= 0 || e.Params[1] > e.Params[0] {
				errs.Add(field+".params", "happen needs [n, m] with 0 < m <= n")
			}
		case "c_avg_rate_abs", "pdiff", "diff":
			if len(e.Params) > 1 {
				errs.Add(field+".params", "takes at most one parameter")
			}
		}
		if e.Func == "nodata" && alertDur <= 0 {
			errs.Add(field+".func", "nodata needs a positive alert duration")
		}
	}
}

func validateTags(tags []TagFilter, errs *validation.Errors) {
	for i, t := range tags {
		field := fmt.Sprintf("tags[%d]", i)
		if t.Tkey == "" {
			errs.Add(field+".tkey", "tag key is required")
		}
		if t.Topt != "=" && t.Topt != "!=" {
			errs.Add(field+".topt", "must be = or !=")
		}
		if len(t.Tval) == 0 {
			errs.Add(field+".tval", "choose at least one value")
		}
	}
}

func validateUpgrade(u AlertUpgrade, errs *validation.Errors) {
	if u.Duration < 0 {
		errs.Add("alert_upgrade.duration", "must not be negative")
	}
	if u.Duration == 0 && len(u.Users) == 0 && len(u.Groups) == 0 {
		return
	}
	if u.Duration > 0 && len(u.Users) == 0 && len(u.Groups) == 0 {
		errs.Add("alert_upgrade", "choose at least one user or team to escalate to")
	}
	if u.Level < PriorityCritical || u.Level > PriorityMinor {
		errs.Add("alert_upgrade.level", "must be 1, 2 or 3")
	}
}

func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("time %q is not HH:MM", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// ExcludableNodes lists the nodes below nid that a strategy on nid may
// exclude.
func ExcludableNodes(nodes *tree.Tree, nid int64) []*tree.Node {
	if nodes == nil || nodes.Get(nid) == nil {
		return nil
	}
	return nodes.Descendants(nid)
}
