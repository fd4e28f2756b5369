package notify

import (
	"bytes"
	_ "embed"
	"fmt"
	"html/template"
	"sort"
	"strings"
	"time"
)

//go:embed mail.tpl
var mailTpl string

var mailTemplate = template.Must(template.New("mail").Parse(mailTpl))

const etimeLayout = "2006-01-02 15:04:05"

// Links are printf patterns taking an id, used to link back to the console.
type Links struct {
	Strategy string `yaml:"strategy"`
	Event    string `yaml:"event"`
}

// content is the rendered text of a batch of events.
type content struct {
	Subject string
	Text    string
	Mail    string
}

func render(upgrade bool, events []*Event, links Links) (content, error) {
	last := events[len(events)-1]
	status := genStatus(events)
	endpoint := genEndpoint(events)
	metric := genMetric(events)
	tags := genTags(events)
	etime := genEtime(events)

	var slink, elink string
	if links.Strategy != "" {
		slink = fmt.Sprintf(links.Strategy, last.Sid)
	}
	if links.Event != "" && last.ID != "" {
		elink = fmt.Sprintf(links.Event, last.ID)
	}

	lines := []string{
		"Status: " + status,
		"Strategy: " + last.Sname,
		"Endpoint: " + endpoint,
		"Metric: " + metric,
		"Tags: " + tags,
		"Value: " + last.Value,
		"Info: " + last.Info,
		"Time: " + etime,
	}
	if elink != "" {
		lines = append(lines, "Event: "+elink)
	}
	if slink != "" {
		lines = append(lines, "Strategy link: "+slink)
	}
	text := strings.Join(lines, "\n")
	if upgrade {
		text = "[escalated]\n" + text
	}

	var body bytes.Buffer
	err := mailTemplate.Execute(&body, map[string]any{
		"IsAlert":   events[0].EventType == EventAlert,
		"IsUpgrade": upgrade,
		"Status":    status,
		"Sname":     last.Sname,
		"Endpoint":  endpoint,
		"Metric":    metric,
		"Tags":      tags,
		"Value":     last.Value,
		"Info":      last.Info,
		"Etime":     etime,
		"Elink":     elink,
		"Slink":     slink,
	})
	if err != nil {
		return content{}, fmt.Errorf("render mail: %w", err)
	}

	return content{
		Subject: genSubject(upgrade, events, endpoint),
		Text:    text,
		Mail:    body.String(),
	}, nil
}

func genSubject(upgrade bool, events []*Event, endpoint string) string {
	last := events[len(events)-1]
	var subject string
	if upgrade {
		subject = "[escalated]"
	}
	kind := eventTypeNames[last.EventType]
	if len(events) > 1 {
		kind = "aggregated " + kind
	}
	return subject + fmt.Sprintf("[P%d %s]%s - %s", last.Priority, kind, last.Sname, endpoint)
}

func genStatus(events []*Event) string {
	last := events[len(events)-1]
	status := fmt.Sprintf("P%d %s", last.Priority, eventTypeNames[last.EventType])
	if len(events) > 1 {
		status += " (aggregated)"
	}
	return status
}

func genEndpoint(events []*Event) string {
	var list []string
	for _, e := range events {
		if e.EndpointAlias != "" {
			list = append(list, fmt.Sprintf("%s(%s)", e.Endpoint, e.EndpointAlias))
		} else {
			list = append(list, e.Endpoint)
		}
	}
	list = unique(list)
	if len(list) == 1 {
		return list[0]
	}
	return fmt.Sprintf("%s (%d)", strings.Join(list, ","), len(list))
}

func genMetric(events []*Event) string {
	var list []string
	for _, e := range events {
		list = append(list, e.Metric)
	}
	return strings.Join(unique(list), ",")
}

// genTags merges the tags of all events; a key with several values is shown
// as key=[v1,v2].
func genTags(events []*Event) string {
	values := make(map[string][]string)
	for _, e := range events {
		for k, v := range e.Tags {
			values[k] = append(values[k], v)
		}
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		vs := unique(values[k])
		v := strings.Join(vs, ",")
		if len(vs) > 1 {
			v = "[" + v + "]"
		}
		parts = append(parts, k+"="+v)
	}
	return strings.Join(parts, ",")
}

func genEtime(events []*Event) string {
	first, last := events[0].Etime, events[0].Etime
	for _, e := range events[1:] {
		if e.Etime < first {
			first = e.Etime
		}
		if e.Etime > last {
			last = e.Etime
		}
	}
	if first == last {
		return time.Unix(first, 0).Format(etimeLayout)
	}
	return time.Unix(first, 0).Format(etimeLayout) + "~" + time.Unix(last, 0).Format(etimeLayout)
}

func unique(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
