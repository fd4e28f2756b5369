package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/itskum47/monforge/monapi/observability"
	"github.com/itskum47/monforge/monapi/ordering"
	"github.com/itskum47/monforge/monapi/refresh"
	"github.com/itskum47/monforge/monapi/store"
	"github.com/itskum47/monforge/monapi/streaming"
)

// ScreenService owns the ordering of a screen's subclasses and charts. All
// weight arithmetic happens here and is persisted in one store call, so the
// stored order is the only order.
type ScreenService struct {
	store     store.Store
	publisher streaming.Publisher
	logger    *zap.Logger
	now       func() time.Time
}

func NewScreenService(s store.Store, publisher streaming.Publisher, logger *zap.Logger) *ScreenService {
	return &ScreenService{
		store:     s,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// ScreenDetail is everything the screen page renders.
type ScreenDetail struct {
	Screen     *store.Screen            `json:"screen"`
	Subclasses []*store.Subclass        `json:"subclasses"`
	Charts     map[int64][]*store.Chart `json:"charts"`
	Anchor     int64                    `json:"anchor"`
}

// Detail loads a screen with its windows anchored at the current time.
func (s *ScreenService) Detail(ctx context.Context, screenID int64) (*ScreenDetail, error) {
	sc, err := s.store.GetScreen(ctx, screenID)
	if err != nil {
		return nil, err
	}
	if sc == nil {
		return nil, fmt.Errorf("screen %d: %w", screenID, store.ErrNotFound)
	}

	anchor := s.now()
	subs, charts, err := s.Anchored(ctx, screenID, anchor)
	if err != nil {
		return nil, err
	}
	return &ScreenDetail{
		Screen:     sc,
		Subclasses: subs,
		Charts:     charts,
		Anchor:     anchor.UnixMilli(),
	}, nil
}

// Anchored returns the subclasses of a screen and their charts, each chart
// window slid to end at anchor.
func (s *ScreenService) Anchored(ctx context.Context, screenID int64, anchor time.Time) ([]*store.Subclass, map[int64][]*store.Chart, error) {
	subs, err := s.store.ListSubclasses(ctx, screenID)
	if err != nil {
		return nil, nil, err
	}
	charts := make(map[int64][]*store.Chart, len(subs))
	for _, sub := range subs {
		list, err := s.store.ListCharts(ctx, sub.ID)
		if err != nil {
			return nil, nil, err
		}
		for _, c := range list {
			c.Configs = s.rewindow(c, anchor)
		}
		charts[sub.ID] = list
	}
	return subs, charts, nil
}

func (s *ScreenService) rewindow(c *store.Chart, anchor time.Time) string {
	cfg, err := refresh.ParseChartConfig(c.Configs)
	if err != nil {
		s.logger.Debug("chart config not re-anchored", zap.Int64("chart_id", c.ID), zap.Error(err))
		return c.Configs
	}
	if !cfg.HasWindow() {
		return c.Configs
	}
	return refresh.Rewindow(cfg, anchor).String()
}

// --- Subclasses ---

// AddSubclass appends a subclass to the screen.
func (s *ScreenService) AddSubclass(ctx context.Context, screenID int64, name string) (*store.Subclass, error) {
	subs, err := s.store.ListSubclasses(ctx, screenID)
	if err != nil {
		return nil, err
	}
	sub := &store.Subclass{
		ScreenID: screenID,
		Name:     name,
		Weight:   ordering.NextWeight(store.SubclassEntries(subs)),
	}
	if err := s.store.CreateSubclass(ctx, sub); err != nil {
		return nil, err
	}
	s.publish(ctx, streaming.TopicSubclassCreated, []int64{screenID}, sub)
	return sub, nil
}

// UpdateSubclasses applies a batch of renames and weights.
func (s *ScreenService) UpdateSubclasses(ctx context.Context, subs []*store.Subclass) error {
	if err := s.store.UpdateSubclasses(ctx, subs); err != nil {
		return err
	}
	observability.WeightUpdates.WithLabelValues("subclass", "batch").Inc()
	ids := make([]int64, len(subs))
	for i, sub := range subs {
		ids[i] = sub.ID
	}
	s.publish(ctx, streaming.TopicSubclassUpdated, s.subclassScreens(ctx, ids...), subs)
	return nil
}

// MoveSubclass swaps the subclass at index with its neighbour and returns
// the new order. A move past either end changes nothing.
func (s *ScreenService) MoveSubclass(ctx context.Context, screenID int64, dir ordering.Direction, index int) ([]*store.Subclass, error) {
	subs, err := s.store.ListSubclasses(ctx, screenID)
	if err != nil {
		return nil, err
	}
	before := store.SubclassEntries(subs)
	after, err := ordering.MoveAdjacent(before, dir, index)
	if err != nil {
		return nil, err
	}

	changed := ordering.Changed(before, after)
	if len(changed) == 0 {
		return subs, nil
	}
	batch := make([]*store.Subclass, len(changed))
	for i, e := range changed {
		batch[i] = &store.Subclass{ID: e.ID, Weight: e.Weight}
	}
	if err := s.store.UpdateSubclasses(ctx, batch); err != nil {
		return nil, err
	}
	observability.WeightUpdates.WithLabelValues("subclass", "move").Inc()
	s.publish(ctx, streaming.TopicSubclassUpdated, []int64{screenID}, batch)
	return s.store.ListSubclasses(ctx, screenID)
}

// BatchMoveSubclasses moves subclasses to other screens.
func (s *ScreenService) BatchMoveSubclasses(ctx context.Context, locs []store.SubclassLoc) error {
	ids := make([]int64, len(locs))
	for i, loc := range locs {
		ids[i] = loc.ID
	}
	screens := s.subclassScreens(ctx, ids...)
	if err := s.store.MoveSubclasses(ctx, locs); err != nil {
		return err
	}
	observability.WeightUpdates.WithLabelValues("subclass", "relocate").Inc()
	for _, loc := range locs {
		screens = append(screens, loc.ScreenID)
	}
	s.publish(ctx, streaming.TopicSubclassMoved, screens, locs)
	return nil
}

// DeleteSubclass removes a subclass and its charts; the remaining
// subclasses are renumbered.
func (s *ScreenService) DeleteSubclass(ctx context.Context, id int64) error {
	screens := s.subclassScreens(ctx, id)
	if err := s.store.DeleteSubclass(ctx, id); err != nil {
		return err
	}
	observability.WeightUpdates.WithLabelValues("subclass", "delete").Inc()
	s.publish(ctx, streaming.TopicSubclassDeleted, screens, map[string]int64{"id": id})
	return nil
}

// --- Charts ---

// AddChart appends a chart to the subclass. Positions change only through
// ReorderCharts and SetChartWeights.
func (s *ScreenService) AddChart(ctx context.Context, subclassID int64, configs string) (*store.Chart, error) {
	if _, err := refresh.ParseChartConfig(configs); err != nil {
		return nil, badRequest(err)
	}
	charts, err := s.store.ListCharts(ctx, subclassID)
	if err != nil {
		return nil, err
	}
	c := &store.Chart{
		SubclassID: subclassID,
		Configs:    configs,
		Weight:     ordering.NextWeight(store.ChartEntries(charts)),
	}
	if err := s.store.CreateChart(ctx, c); err != nil {
		return nil, err
	}
	s.publish(ctx, streaming.TopicChartCreated, s.subclassScreens(ctx, subclassID), c)
	return c, nil
}

// UpdateChart replaces the configs of a chart and optionally moves it to
// another subclass.
func (s *ScreenService) UpdateChart(ctx context.Context, c *store.Chart) error {
	if _, err := refresh.ParseChartConfig(c.Configs); err != nil {
		return badRequest(err)
	}
	screens := s.chartScreens(ctx, c.ID)
	if err := s.store.UpdateChart(ctx, c); err != nil {
		return err
	}
	screens = append(screens, s.subclassScreens(ctx, c.SubclassID)...)
	s.publish(ctx, streaming.TopicChartUpdated, screens, c)
	return nil
}

// ReorderCharts moves the chart at oldIndex to newIndex and returns the
// charts in their new order.
func (s *ScreenService) ReorderCharts(ctx context.Context, subclassID int64, oldIndex, newIndex int) ([]*store.Chart, error) {
	charts, err := s.store.ListCharts(ctx, subclassID)
	if err != nil {
		return nil, err
	}
	before := store.ChartEntries(charts)
	after, err := ordering.Reorder(before, oldIndex, newIndex)
	if err != nil {
		return nil, err
	}

	changed := ordering.Changed(before, after)
	if len(changed) == 0 {
		return charts, nil
	}
	if err := s.store.UpdateChartWeights(ctx, store.Weights(changed)); err != nil {
		return nil, err
	}
	observability.WeightUpdates.WithLabelValues("chart", "reorder").Inc()
	s.publish(ctx, streaming.TopicChartReordered, s.subclassScreens(ctx, subclassID), store.Weights(changed))
	return s.store.ListCharts(ctx, subclassID)
}

// SetChartWeights persists weights computed by a client.
func (s *ScreenService) SetChartWeights(ctx context.Context, weights []store.ChartWeight) error {
	if err := s.store.UpdateChartWeights(ctx, weights); err != nil {
		return err
	}
	observability.WeightUpdates.WithLabelValues("chart", "batch").Inc()
	ids := make([]int64, len(weights))
	for i, w := range weights {
		ids[i] = w.ID
	}
	s.publish(ctx, streaming.TopicChartReordered, s.chartScreens(ctx, ids...), weights)
	return nil
}

// DeleteChart removes a chart; its siblings are renumbered.
func (s *ScreenService) DeleteChart(ctx context.Context, id int64) error {
	screens := s.chartScreens(ctx, id)
	if err := s.store.DeleteChart(ctx, id); err != nil {
		return err
	}
	observability.WeightUpdates.WithLabelValues("chart", "delete").Inc()
	s.publish(ctx, streaming.TopicChartDeleted, screens, map[string]int64{"id": id})
	return nil
}

// publish is best effort: a failed publish never fails the edit.
func (s *ScreenService) publish(ctx context.Context, topic string, screens []int64, data any) {
	if s.publisher == nil {
		return
	}
	payload := streaming.ScreenChange{ScreenIDs: uniqueIDs(screens), Data: data}
	if err := s.publisher.Publish(ctx, topic, payload); err != nil {
		observability.EventPublishFailures.WithLabelValues(topic).Inc()
		s.logger.Warn("publish failed", zap.String("topic", topic), zap.Error(err))
	}
}

// subclassScreens returns the screens holding the given subclasses. Unknown
// ids are skipped.
func (s *ScreenService) subclassScreens(ctx context.Context, ids ...int64) []int64 {
	var screens []int64
	for _, id := range ids {
		sub, err := s.store.GetSubclass(ctx, id)
		if err != nil {
			s.logger.Debug("resolve subclass screen", zap.Int64("subclass_id", id), zap.Error(err))
			continue
		}
		if sub != nil {
			screens = append(screens, sub.ScreenID)
		}
	}
	return screens
}

func (s *ScreenService) chartScreens(ctx context.Context, ids ...int64) []int64 {
	var subclasses []int64
	for _, id := range ids {
		c, err := s.store.GetChart(ctx, id)
		if err != nil {
			s.logger.Debug("resolve chart subclass", zap.Int64("chart_id", id), zap.Error(err))
			continue
		}
		if c != nil {
			subclasses = append(subclasses, c.SubclassID)
		}
	}
	return s.subclassScreens(ctx, uniqueIDs(subclasses)...)
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id == 0 || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
