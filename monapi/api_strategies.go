package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/itskum47/monforge/monapi/middleware"
	"github.com/itskum47/monforge/monapi/store"
	"github.com/itskum47/monforge/monapi/strategy"
)

func (a *API) handleListStrategies(w http.ResponseWriter, r *http.Request) {
	nid, err := queryInt64(r, "nid")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	list, err := a.store.ListStrategies(r.Context(), nid)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	nodes, err := a.loadTree(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	out := make([]strategyItem, len(list))
	for i, s := range list {
		out[i] = strategyItem{Strategy: s, NodePath: nodes.PathOf(s.Nid)}
	}
	writeJSON(w, http.StatusOK, out)
}

// strategyItem is a listed strategy with the path of its node.
type strategyItem struct {
	*strategy.Strategy
	NodePath string `json:"node_path"`
}

func (a *API) handleGetStrategy(w http.ResponseWriter, r *http.Request) {
	id, err := urlParamInt64(r, "id")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	s, err := a.store.GetStrategy(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if s == nil {
		a.writeError(w, r, fmt.Errorf("strategy %d: %w", id, store.ErrNotFound))
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// decodeStrategy binds a strategy form, fills defaults and validates it
// against the current service tree.
func (a *API) decodeStrategy(r *http.Request) (*strategy.Strategy, error) {
	var s strategy.Strategy
	if err := bind(r, &s); err != nil {
		return nil, err
	}
	s.ApplyDefaults()
	s.Normalize()

	nodes, err := a.loadTree(r)
	if err != nil {
		return nil, err
	}
	if err := strategy.Validate(&s, nodes); err != nil {
		return nil, err
	}
	return &s, nil
}

func (a *API) handleCreateStrategy(w http.ResponseWriter, r *http.Request) {
	s, err := a.decodeStrategy(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	now := time.Now()
	user := middleware.Username(r.Context())
	s.Creator, s.Created = user, now
	s.LastUpdator, s.LastUpdated = user, now

	if err := a.store.CreateStrategy(r.Context(), s); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (a *API) handleUpdateStrategy(w http.ResponseWriter, r *http.Request) {
	id, err := urlParamInt64(r, "id")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	s, err := a.decodeStrategy(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	cur, err := a.store.GetStrategy(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if cur == nil {
		a.writeError(w, r, fmt.Errorf("strategy %d: %w", id, store.ErrNotFound))
		return
	}
	s.ID = id
	s.Creator, s.Created = cur.Creator, cur.Created
	s.LastUpdator, s.LastUpdated = middleware.Username(r.Context()), time.Now()

	if err := a.store.UpdateStrategy(r.Context(), s); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (a *API) handleDeleteStrategy(w http.ResponseWriter, r *http.Request) {
	id, err := urlParamInt64(r, "id")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if err := a.store.DeleteStrategy(r.Context(), id); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}
