// Package collect models the collector configurations managed from the
// console: process counts, port liveness and log pattern extraction.
package collect

import (
	"strings"
	"time"
)

// Collect types.
const (
	TypeProc = "proc"
	TypePort = "port"
	TypeLog  = "log"
)

// TypeNames are the display names of each collect type.
var TypeNames = map[string]string{
	TypeLog:  "log",
	TypePort: "port",
	TypeProc: "process",
}

// Intervals are the allowed collection steps in seconds.
var Intervals = []int{10, 30, 60, 120, 300, 600, 1800, 3600}

// Proc collect methods.
const (
	MethodCmd  = "cmd"
	MethodName = "name"
)

// Metrics reported by the collector for each type. Log collects report
// under their own name.
const (
	MetricProcNum    = "proc.num"
	MetricPortListen = "proc.port.listen"
)

// Collect is one collector configuration attached to a service-tree node.
// Exactly one of Proc, Port and Log is set, matching CollectType.
type Collect struct {
	ID          int64     `json:"id"`
	Nid         int64     `json:"nid"`
	Name        string    `json:"name"`
	CollectType string    `json:"collect_type"`
	Step        int       `json:"step"`
	Tags        string    `json:"tags"`
	Service     string    `json:"service,omitempty"`
	Comment     string    `json:"comment"`
	Creator     string    `json:"creator"`
	Created     time.Time `json:"created"`
	LastUpdator string    `json:"last_updator"`
	LastUpdated time.Time `json:"last_updated"`

	Proc *Proc `json:"proc,omitempty"`
	Port *Port `json:"port,omitempty"`
	Log  *Log  `json:"log,omitempty"`
}

// Proc counts processes matching Target by name or command line.
type Proc struct {
	CollectMethod string `json:"collect_method"`
	Target        string `json:"target"`
}

// Port checks that something listens on Port.
type Port struct {
	Port     int    `json:"port"`
	Protocol string `json:"protocol"`
	Timeout  int    `json:"timeout"`
}

// Log extracts values from lines of FilePath matching Pattern.
type Log struct {
	FilePath string            `json:"file_path"`
	Func     string            `json:"func"`
	Pattern  string            `json:"pattern"`
	Tags     map[string]string `json:"tags,omitempty"`
}

// Metric is the metric name the collector reports for c.
func (c *Collect) Metric() string {
	switch c.CollectType {
	case TypeProc:
		return MetricProcNum
	case TypePort:
		return MetricPortListen
	default:
		return c.Name
	}
}

// Filter narrows a collect listing.
type Filter struct {
	Type string
	Nid  int64
}

// Match reports whether c passes f. Zero fields match everything.
func (f Filter) Match(c *Collect) bool {
	if f.Type != "" && c.CollectType != f.Type {
		return false
	}
	if f.Nid != 0 && c.Nid != f.Nid {
		return false
	}
	return true
}

// ServiceTag encodes a service name the way it is stored in Tags.
func ServiceTag(service string) string {
	return "service=" + service
}

// ServiceFromTags extracts the service name from a comma separated tag list.
func ServiceFromTags(tags string) string {
	for _, kv := range strings.Split(tags, ",") {
		kv = strings.TrimSpace(kv)
		if strings.HasPrefix(kv, "service=") {
			return strings.TrimPrefix(kv, "service=")
		}
	}
	return ""
}

// Normalize moves the service field into Tags for proc and port collects and
// fills the default step and method. It is applied before validation on
// every write.
func (c *Collect) Normalize() {
	c.Name = strings.TrimSpace(c.Name)
	if c.Step == 0 {
		c.Step = Intervals[0]
	}
	switch c.CollectType {
	case TypeProc:
		if c.Proc != nil && c.Proc.CollectMethod == "" {
			c.Proc.CollectMethod = MethodCmd
		}
		fallthrough
	case TypePort:
		if c.Service == "" {
			c.Service = ServiceFromTags(c.Tags)
		}
		if c.Service != "" {
			c.Tags = ServiceTag(c.Service)
		}
	}
	if c.Port != nil && c.Port.Timeout == 0 {
		c.Port.Timeout = 3
	}
}
