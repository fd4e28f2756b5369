// Package ordering maintains the persisted display order of weighted lists
// (subclasses within a screen, charts within a subclass).
//
// Every function is pure: inputs are never mutated and a fresh slice is
// returned, so callers can diff the result against what they loaded and
// persist only when the whole assignment is known.
package ordering

import (
	"errors"
	"fmt"
	"sort"
)

// ErrIndexOutOfRange is returned when a move names a position outside the list.
var ErrIndexOutOfRange = errors.New("ordering: index out of range")

// Entry is one item of a weighted list. Payloads stay with the caller and are
// matched back by ID.
type Entry struct {
	ID     int64 `json:"id"`
	Weight int   `json:"weight"`
}

// Direction is an adjacent move.
type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

// ParseDirection accepts "up" or "down".
func ParseDirection(s string) (Direction, error) {
	switch Direction(s) {
	case Up, Down:
		return Direction(s), nil
	}
	return "", fmt.Errorf("ordering: unknown direction %q", s)
}

// Reorder applies a drag-and-drop move from oldIndex to newIndex. The moved
// item takes the weight held by the item at newIndex and every item it jumped
// over shifts by one to close the gap. The result is sorted by weight.
func Reorder(items []Entry, oldIndex, newIndex int) ([]Entry, error) {
	if !inRange(items, oldIndex) || !inRange(items, newIndex) {
		return nil, fmt.Errorf("%w: move %d -> %d in list of %d", ErrIndexOutOfRange, oldIndex, newIndex, len(items))
	}

	out := make([]Entry, len(items))
	for i, item := range items {
		weight := item.Weight
		switch {
		case i == oldIndex:
			weight = items[newIndex].Weight
		case oldIndex < newIndex && i > oldIndex && i <= newIndex:
			weight--
		case oldIndex > newIndex && i >= newIndex && i < oldIndex:
			weight++
		}
		out[i] = Entry{ID: item.ID, Weight: weight}
	}

	return SortByWeight(out), nil
}

// RemoveAndRenumber drops the entry with the given id and renumbers the rest
// to 0..n-1 in their current order. The bool reports whether id was present;
// the returned list is contiguous either way.
func RemoveAndRenumber(items []Entry, id int64) ([]Entry, bool) {
	found := false
	out := make([]Entry, 0, len(items))
	for _, item := range items {
		if item.ID == id && !found {
			found = true
			continue
		}
		out = append(out, item)
	}
	return Renumber(out), found
}

// MoveAdjacent swaps the weight of the item at index with its neighbour in
// dir. Moving the first item up or the last item down is a no-op.
func MoveAdjacent(items []Entry, dir Direction, index int) ([]Entry, error) {
	if !inRange(items, index) {
		return nil, fmt.Errorf("%w: index %d in list of %d", ErrIndexOutOfRange, index, len(items))
	}

	out := make([]Entry, len(items))
	copy(out, items)

	var neighbour int
	switch dir {
	case Up:
		neighbour = index - 1
	case Down:
		neighbour = index + 1
	default:
		return nil, fmt.Errorf("ordering: unknown direction %q", dir)
	}
	if !inRange(items, neighbour) {
		return SortByWeight(out), nil
	}

	out[index].Weight, out[neighbour].Weight = items[neighbour].Weight, items[index].Weight
	return SortByWeight(out), nil
}

// Renumber assigns weights 0..n-1 following the current slice order.
func Renumber(items []Entry) []Entry {
	out := make([]Entry, len(items))
	for i, item := range items {
		out[i] = Entry{ID: item.ID, Weight: i}
	}
	return out
}

// SortByWeight returns a copy ordered by ascending weight. Ties keep their
// relative order.
func SortByWeight(items []Entry) []Entry {
	out := make([]Entry, len(items))
	copy(out, items)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Weight < out[j].Weight
	})
	return out
}

// NextWeight is the weight given to an item appended to the list.
func NextWeight(items []Entry) int {
	return len(items)
}

// Changed returns the entries of after whose weight differs from before.
// Entries absent from before count as changed.
func Changed(before, after []Entry) []Entry {
	prev := make(map[int64]int, len(before))
	for _, e := range before {
		prev[e.ID] = e.Weight
	}
	var out []Entry
	for _, e := range after {
		if w, ok := prev[e.ID]; !ok || w != e.Weight {
			out = append(out, e)
		}
	}
	return out
}

func inRange(items []Entry, i int) bool {
	return i >= 0 && i < len(items)
}
