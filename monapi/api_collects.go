package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/itskum47/monforge/monapi/collect"
	"github.com/itskum47/monforge/monapi/middleware"
	"github.com/itskum47/monforge/monapi/store"
)

func (a *API) handleListCollects(w http.ResponseWriter, r *http.Request) {
	nid, err := queryInt64(r, "nid")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	list, err := a.store.ListCollects(r.Context(), collect.Filter{
		Type: r.URL.Query().Get("type"),
		Nid:  nid,
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	for _, c := range list {
		fillService(c)
	}
	writeJSON(w, http.StatusOK, list)
}

// fillService restores the service field of proc and port collects from
// their stored tags.
func fillService(c *collect.Collect) {
	if c.Service != "" {
		return
	}
	if c.CollectType == collect.TypeProc || c.CollectType == collect.TypePort {
		c.Service = collect.ServiceFromTags(c.Tags)
	}
}

func (a *API) handleGetCollect(w http.ResponseWriter, r *http.Request) {
	id, err := urlParamInt64(r, "id")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	c, err := a.store.GetCollect(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if c == nil {
		a.writeError(w, r, fmt.Errorf("collect %d: %w", id, store.ErrNotFound))
		return
	}
	fillService(c)
	writeJSON(w, http.StatusOK, c)
}

// decodeCollect binds, normalizes and validates a collect form.
func decodeCollect(r *http.Request) (*collect.Collect, error) {
	var c collect.Collect
	if err := bind(r, &c); err != nil {
		return nil, err
	}
	c.Normalize()
	if err := collect.Validate(&c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (a *API) handleCheckCollect(w http.ResponseWriter, r *http.Request) {
	c, err := decodeCollect(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (a *API) handleCreateCollect(w http.ResponseWriter, r *http.Request) {
	c, err := decodeCollect(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	now := time.Now()
	user := middleware.Username(r.Context())
	c.Creator, c.Created = user, now
	c.LastUpdator, c.LastUpdated = user, now

	if err := a.store.CreateCollect(r.Context(), c); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (a *API) handleUpdateCollect(w http.ResponseWriter, r *http.Request) {
	id, err := urlParamInt64(r, "id")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	c, err := decodeCollect(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	cur, err := a.store.GetCollect(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if cur == nil {
		a.writeError(w, r, fmt.Errorf("collect %d: %w", id, store.ErrNotFound))
		return
	}
	c.ID = id
	c.Creator, c.Created = cur.Creator, cur.Created
	c.LastUpdator, c.LastUpdated = middleware.Username(r.Context()), time.Now()

	if err := a.store.UpdateCollect(r.Context(), c); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (a *API) handleDeleteCollect(w http.ResponseWriter, r *http.Request) {
	id, err := urlParamInt64(r, "id")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if err := a.store.DeleteCollect(r.Context(), id); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}
