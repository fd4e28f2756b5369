package main

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/itskum47/monforge/monapi/store"
	"github.com/itskum47/monforge/monapi/strategy"
	"github.com/itskum47/monforge/monapi/tree"
)

func (a *API) loadTree(r *http.Request) (*tree.Tree, error) {
	nodes, err := a.store.ListNodes(r.Context())
	if err != nil {
		return nil, err
	}
	return tree.Build(nodes), nil
}

// handleListNodes lists the whole tree, or with pid the direct children of
// one node. leaf=1 keeps only leaf children.
func (a *API) handleListNodes(w http.ResponseWriter, r *http.Request) {
	pid, err := queryInt64(r, "pid")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if pid == 0 {
		nodes, err := a.store.ListNodes(r.Context())
		if err != nil {
			a.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, nodes)
		return
	}

	nodes, err := a.loadTree(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if nodes.Get(pid) == nil {
		a.writeError(w, r, fmt.Errorf("node %d: %w", pid, store.ErrNotFound))
		return
	}
	out := nodes.Children(pid)
	if r.URL.Query().Get("leaf") == "1" {
		out = nodes.LeafChildren(pid)
	}
	if out == nil {
		out = []*tree.Node{}
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleUpsertNode(w http.ResponseWriter, r *http.Request) {
	var n tree.Node
	if err := bind(r, &n); err != nil {
		a.writeError(w, r, err)
		return
	}
	n.Ident = strings.TrimSpace(n.Ident)
	if n.Ident == "" {
		a.writeError(w, r, badRequest(errors.New("ident is required")))
		return
	}
	if n.Path == "" {
		n.Path = n.Ident
		if n.PID != 0 {
			nodes, err := a.loadTree(r)
			if err != nil {
				a.writeError(w, r, err)
				return
			}
			if nodes.Get(n.PID) == nil {
				a.writeError(w, r, badRequest(errors.New("unknown parent node")))
				return
			}
			n.Path = nodes.PathOf(n.PID) + "." + n.Ident
		}
	}

	if err := a.store.UpsertNode(r.Context(), &n); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

// handleExcludableNodes lists the nodes a strategy on the node may exclude.
func (a *API) handleExcludableNodes(w http.ResponseWriter, r *http.Request) {
	id, err := urlParamInt64(r, "id")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	nodes, err := a.loadTree(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if nodes.Get(id) == nil {
		a.writeError(w, r, fmt.Errorf("node %d: %w", id, store.ErrNotFound))
		return
	}
	out := strategy.ExcludableNodes(nodes, id)
	if out == nil {
		out = []*tree.Node{}
	}
	writeJSON(w, http.StatusOK, out)
}
