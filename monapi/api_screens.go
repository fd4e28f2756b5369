package main

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/itskum47/monforge/monapi/middleware"
	"github.com/itskum47/monforge/monapi/ordering"
	"github.com/itskum47/monforge/monapi/store"
)

// -- Screens --

type screenRequest struct {
	NodeID int64  `json:"node_id"`
	Name   string `json:"name"`
}

func (a *API) handleListScreens(w http.ResponseWriter, r *http.Request) {
	nid, err := queryInt64(r, "nid")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	screens, err := a.store.ListScreens(r.Context(), nid)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, screens)
}

func (a *API) handleCreateScreen(w http.ResponseWriter, r *http.Request) {
	var req screenRequest
	if err := bind(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || req.NodeID <= 0 {
		a.writeError(w, r, badRequest(errors.New("node_id and name are required")))
		return
	}

	sc := &store.Screen{
		NodeID:      req.NodeID,
		Name:        req.Name,
		LastUpdator: middleware.Username(r.Context()),
		LastUpdated: time.Now(),
	}
	if err := a.store.CreateScreen(r.Context(), sc); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sc)
}

func (a *API) handleRenameScreen(w http.ResponseWriter, r *http.Request) {
	id, err := urlParamInt64(r, "id")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	var req screenRequest
	if err := bind(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		a.writeError(w, r, badRequest(errors.New("name is required")))
		return
	}

	sc, err := a.store.GetScreen(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if sc == nil {
		a.writeError(w, r, fmt.Errorf("screen %d: %w", id, store.ErrNotFound))
		return
	}
	sc.Name = req.Name
	if req.NodeID > 0 {
		sc.NodeID = req.NodeID
	}
	sc.LastUpdator = middleware.Username(r.Context())
	sc.LastUpdated = time.Now()
	if err := a.store.UpdateScreen(r.Context(), sc); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sc)
}

func (a *API) handleDeleteScreen(w http.ResponseWriter, r *http.Request) {
	id, err := urlParamInt64(r, "id")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if err := a.store.DeleteScreen(r.Context(), id); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

func (a *API) handleScreenDetail(w http.ResponseWriter, r *http.Request) {
	id, err := urlParamInt64(r, "id")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	detail, err := a.screens.Detail(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// -- Subclasses --

func (a *API) handleListSubclasses(w http.ResponseWriter, r *http.Request) {
	id, err := urlParamInt64(r, "id")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	subs, err := a.store.ListSubclasses(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, subs)
}

func (a *API) handleAddSubclass(w http.ResponseWriter, r *http.Request) {
	id, err := urlParamInt64(r, "id")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	var req struct {
		Name string `json:"name"`
	}
	if err := bind(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		a.writeError(w, r, badRequest(errors.New("name is required")))
		return
	}

	sub, err := a.screens.AddSubclass(r.Context(), id, req.Name)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (a *API) handleMoveSubclass(w http.ResponseWriter, r *http.Request) {
	id, err := urlParamInt64(r, "id")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	var req struct {
		Direction string `json:"direction"`
		Index     int    `json:"index"`
	}
	if err := bind(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	dir, err := ordering.ParseDirection(req.Direction)
	if err != nil {
		a.writeError(w, r, badRequest(err))
		return
	}

	subs, err := a.screens.MoveSubclass(r.Context(), id, dir, req.Index)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, subs)
}

func (a *API) handleUpdateSubclasses(w http.ResponseWriter, r *http.Request) {
	var subs []*store.Subclass
	if err := bind(r, &subs); err != nil {
		a.writeError(w, r, err)
		return
	}
	if len(subs) == 0 {
		a.writeError(w, r, badRequest(errors.New("empty batch")))
		return
	}
	for _, s := range subs {
		s.Name = strings.TrimSpace(s.Name)
		if s.Weight < 0 {
			a.writeError(w, r, badRequest(fmt.Errorf("subclass %d: weight must not be negative", s.ID)))
			return
		}
	}

	if err := a.screens.UpdateSubclasses(r.Context(), subs); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

func (a *API) handleMoveSubclasses(w http.ResponseWriter, r *http.Request) {
	var locs []store.SubclassLoc
	if err := bind(r, &locs); err != nil {
		a.writeError(w, r, err)
		return
	}
	if len(locs) == 0 {
		a.writeError(w, r, badRequest(errors.New("empty batch")))
		return
	}

	if err := a.screens.BatchMoveSubclasses(r.Context(), locs); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

func (a *API) handleDeleteSubclass(w http.ResponseWriter, r *http.Request) {
	id, err := urlParamInt64(r, "id")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if err := a.screens.DeleteSubclass(r.Context(), id); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

// -- Charts --

func (a *API) handleListCharts(w http.ResponseWriter, r *http.Request) {
	id, err := urlParamInt64(r, "id")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	charts, err := a.store.ListCharts(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, charts)
}

func (a *API) handleAddChart(w http.ResponseWriter, r *http.Request) {
	id, err := urlParamInt64(r, "id")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	// A weight in the body is ignored: new charts always go last.
	var req struct {
		Configs string `json:"configs"`
	}
	if err := bind(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}

	c, err := a.screens.AddChart(r.Context(), id, req.Configs)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c.ID)
}

func (a *API) handleReorderCharts(w http.ResponseWriter, r *http.Request) {
	id, err := urlParamInt64(r, "id")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	var req struct {
		OldIndex int `json:"old_index"`
		NewIndex int `json:"new_index"`
	}
	if err := bind(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}

	charts, err := a.screens.ReorderCharts(r.Context(), id, req.OldIndex, req.NewIndex)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, charts)
}

func (a *API) handleUpdateChart(w http.ResponseWriter, r *http.Request) {
	id, err := urlParamInt64(r, "id")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	var req struct {
		SubclassID int64  `json:"subclass_id"`
		Configs    string `json:"configs"`
	}
	if err := bind(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}

	c := &store.Chart{ID: id, SubclassID: req.SubclassID, Configs: req.Configs}
	if err := a.screens.UpdateChart(r.Context(), c); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (a *API) handleChartWeights(w http.ResponseWriter, r *http.Request) {
	var weights []store.ChartWeight
	if err := bind(r, &weights); err != nil {
		a.writeError(w, r, err)
		return
	}
	if len(weights) == 0 {
		a.writeError(w, r, badRequest(errors.New("empty batch")))
		return
	}
	for _, cw := range weights {
		if cw.Weight < 0 {
			a.writeError(w, r, badRequest(fmt.Errorf("chart %d: weight must not be negative", cw.ID)))
			return
		}
	}

	if err := a.screens.SetChartWeights(r.Context(), weights); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

func (a *API) handleDeleteChart(w http.ResponseWriter, r *http.Request) {
	id, err := urlParamInt64(r, "id")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if err := a.screens.DeleteChart(r.Context(), id); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}
