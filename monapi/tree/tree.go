// Package tree holds the service tree that screens, collects and strategies
// are attached to.
package tree

import (
	"sort"
	"strings"
)

// Node is one service-tree node. Leaf nodes carry endpoints.
type Node struct {
	ID    int64  `json:"id"`
	PID   int64  `json:"pid"`
	Ident string `json:"ident"`
	Name  string `json:"name"`
	Path  string `json:"path"`
	Leaf  int    `json:"leaf"`
	Note  string `json:"note,omitempty"`
}

// IsLeaf reports whether the node is a leaf.
func (n *Node) IsLeaf() bool { return n.Leaf == 1 }

// Tree indexes a flat node list by id and parent.
type Tree struct {
	nodes    map[int64]*Node
	children map[int64][]int64
}

// Build indexes nodes. Children are ordered by path so traversals are stable.
func Build(nodes []*Node) *Tree {
	t := &Tree{
		nodes:    make(map[int64]*Node, len(nodes)),
		children: make(map[int64][]int64),
	}
	for _, n := range nodes {
		t.nodes[n.ID] = n
	}
	for _, n := range nodes {
		t.children[n.PID] = append(t.children[n.PID], n.ID)
	}
	for pid := range t.children {
		kids := t.children[pid]
		sort.Slice(kids, func(i, j int) bool {
			return t.nodes[kids[i]].Path < t.nodes[kids[j]].Path
		})
	}
	return t
}

// Get returns the node or nil.
func (t *Tree) Get(id int64) *Node {
	return t.nodes[id]
}

// Roots are nodes whose parent is not in the tree.
func (t *Tree) Roots() []*Node {
	var out []*Node
	for _, n := range t.nodes {
		if _, ok := t.nodes[n.PID]; !ok {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Children are the direct children of id.
func (t *Tree) Children(id int64) []*Node {
	ids := t.children[id]
	out := make([]*Node, 0, len(ids))
	for _, cid := range ids {
		out = append(out, t.nodes[cid])
	}
	return out
}

// LeafChildren are the direct children of id that are leaves.
func (t *Tree) LeafChildren(id int64) []*Node {
	var out []*Node
	for _, n := range t.Children(id) {
		if n.IsLeaf() {
			out = append(out, n)
		}
	}
	return out
}

// Descendants walks the subtree below id, excluding id itself.
func (t *Tree) Descendants(id int64) []*Node {
	var out []*Node
	stack := append([]int64(nil), t.children[id]...)
	seen := map[int64]bool{id: true}
	for len(stack) > 0 {
		cur := stack[0]
		stack = stack[1:]
		if seen[cur] {
			continue
		}
		seen[cur] = true
		out = append(out, t.nodes[cur])
		stack = append(stack, t.children[cur]...)
	}
	return out
}

// IsDescendant reports whether id sits somewhere below ancestor.
func (t *Tree) IsDescendant(id, ancestor int64) bool {
	seen := map[int64]bool{}
	for cur, ok := t.nodes[id]; ok; cur, ok = t.nodes[cur.PID] {
		if seen[cur.ID] {
			return false
		}
		seen[cur.ID] = true
		if cur.PID == ancestor {
			return true
		}
	}
	return false
}

// PathOf returns the dotted path of the node, rebuilding it from idents when
// the stored path is empty.
func (t *Tree) PathOf(id int64) string {
	n := t.nodes[id]
	if n == nil {
		return ""
	}
	if n.Path != "" {
		return n.Path
	}
	var parts []string
	seen := map[int64]bool{}
	for cur := n; cur != nil && !seen[cur.ID]; cur = t.nodes[cur.PID] {
		seen[cur.ID] = true
		parts = append([]string{cur.Ident}, parts...)
	}
	return strings.Join(parts, ".")
}
