package store

import (
	"time"

	"github.com/itskum47/monforge/monapi/ordering"
)

// Screen is a dashboard attached to a service-tree node.
type Screen struct {
	ID          int64     `json:"id" db:"id"`
	NodeID      int64     `json:"node_id" db:"node_id"`
	Name        string    `json:"name" db:"name"`
	LastUpdator string    `json:"last_updator" db:"last_updator"`
	LastUpdated time.Time `json:"last_updated" db:"last_updated"`
}

// Subclass is a named, weighted group of charts within a screen.
type Subclass struct {
	ID       int64  `json:"id" db:"id"`
	ScreenID int64  `json:"screen_id" db:"screen_id"`
	Name     string `json:"name" db:"name"`
	Weight   int    `json:"weight" db:"weight"`
}

// Chart is one weighted widget. Configs is the opaque chart configuration
// as the client stored it.
type Chart struct {
	ID         int64  `json:"id" db:"id"`
	SubclassID int64  `json:"subclass_id" db:"subclass_id"`
	Configs    string `json:"configs" db:"configs"`
	Weight     int    `json:"weight" db:"weight"`
}

// ChartWeight is one entry of a batch weight update.
type ChartWeight struct {
	ID     int64 `json:"id"`
	Weight int   `json:"weight"`
}

// SubclassLoc moves a subclass to another screen.
type SubclassLoc struct {
	ID       int64 `json:"id"`
	ScreenID int64 `json:"screen_id"`
}

// SubclassEntries projects subclasses onto ordering entries.
func SubclassEntries(subs []*Subclass) []ordering.Entry {
	out := make([]ordering.Entry, len(subs))
	for i, s := range subs {
		out[i] = ordering.Entry{ID: s.ID, Weight: s.Weight}
	}
	return out
}

// ChartEntries projects charts onto ordering entries.
func ChartEntries(charts []*Chart) []ordering.Entry {
	out := make([]ordering.Entry, len(charts))
	for i, c := range charts {
		out[i] = ordering.Entry{ID: c.ID, Weight: c.Weight}
	}
	return out
}

// Weights converts ordering entries into a batch weight update.
func Weights(entries []ordering.Entry) []ChartWeight {
	out := make([]ChartWeight, len(entries))
	for i, e := range entries {
		out[i] = ChartWeight{ID: e.ID, Weight: e.Weight}
	}
	return out
}
