package store

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/itskum47/monforge/monapi/collect"
	"github.com/itskum47/monforge/monapi/ordering"
	"github.com/itskum47/monforge/monapi/strategy"
	"github.com/itskum47/monforge/monapi/tree"
)

// MemoryStore keeps everything in process. It implements the Store
// interface and backs the handler tests and single-node deployments.
type MemoryStore struct {
	mu         sync.RWMutex
	nextID     int64
	nodes      map[int64]*tree.Node
	screens    map[int64]*Screen
	subclasses map[int64]*Subclass
	charts     map[int64]*Chart
	collects   map[int64]*collect.Collect
	strategies map[int64]*strategy.Strategy
}

// NewMemoryStore initializes an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nodes:      make(map[int64]*tree.Node),
		screens:    make(map[int64]*Screen),
		subclasses: make(map[int64]*Subclass),
		charts:     make(map[int64]*Chart),
		collects:   make(map[int64]*collect.Collect),
		strategies: make(map[int64]*strategy.Strategy),
	}
}

func (s *MemoryStore) id() int64 {
	s.nextID++
	return s.nextID
}

func notFound(kind string, id int64) error {
	return fmt.Errorf("%s %d: %w", kind, id, ErrNotFound)
}

// --- Service tree ---

func (s *MemoryStore) UpsertNode(ctx context.Context, n *tree.Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n.ID == 0 {
		n.ID = s.id()
	} else if n.ID > s.nextID {
		s.nextID = n.ID
	}
	nodeCopy := *n
	s.nodes[n.ID] = &nodeCopy
	return nil
}

func (s *MemoryStore) ListNodes(ctx context.Context) ([]*tree.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*tree.Node, 0, len(s.nodes))
	for _, n := range s.nodes {
		nodeCopy := *n
		result = append(result, &nodeCopy)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// --- Screens ---

func (s *MemoryStore) CreateScreen(ctx context.Context, sc *Screen) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc.ID = s.id()
	screenCopy := *sc
	s.screens[sc.ID] = &screenCopy
	return nil
}

func (s *MemoryStore) GetScreen(ctx context.Context, id int64) (*Screen, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sc, ok := s.screens[id]
	if !ok {
		return nil, nil
	}
	screenCopy := *sc
	return &screenCopy, nil
}

func (s *MemoryStore) ListScreens(ctx context.Context, nodeID int64) ([]*Screen, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*Screen, 0)
	for _, sc := range s.screens {
		if nodeID == 0 || sc.NodeID == nodeID {
			screenCopy := *sc
			result = append(result, &screenCopy)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *MemoryStore) UpdateScreen(ctx context.Context, sc *Screen) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.screens[sc.ID]; !ok {
		return notFound("screen", sc.ID)
	}
	screenCopy := *sc
	s.screens[sc.ID] = &screenCopy
	return nil
}

func (s *MemoryStore) DeleteScreen(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.screens[id]; !ok {
		return notFound("screen", id)
	}
	for sid, sub := range s.subclasses {
		if sub.ScreenID == id {
			s.dropSubclass(sid)
		}
	}
	delete(s.screens, id)
	return nil
}

// --- Subclasses ---

func (s *MemoryStore) CreateSubclass(ctx context.Context, sub *Subclass) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.screens[sub.ScreenID]; !ok {
		return notFound("screen", sub.ScreenID)
	}
	sub.ID = s.id()
	subCopy := *sub
	s.subclasses[sub.ID] = &subCopy
	return nil
}

func (s *MemoryStore) GetSubclass(ctx context.Context, id int64) (*Subclass, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.subclasses[id]
	if !ok {
		return nil, nil
	}
	subCopy := *sub
	return &subCopy, nil
}

func (s *MemoryStore) ListSubclasses(ctx context.Context, screenID int64) ([]*Subclass, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	subs := s.subclassesOf(screenID)
	result := make([]*Subclass, len(subs))
	for i, sub := range subs {
		subCopy := *sub
		result[i] = &subCopy
	}
	return result, nil
}

func (s *MemoryStore) UpdateSubclasses(ctx context.Context, subs []*Subclass) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sub := range subs {
		if _, ok := s.subclasses[sub.ID]; !ok {
			return notFound("subclass", sub.ID)
		}
	}
	for _, sub := range subs {
		cur := s.subclasses[sub.ID]
		if sub.Name != "" {
			cur.Name = sub.Name
		}
		cur.Weight = sub.Weight
	}
	return nil
}

func (s *MemoryStore) MoveSubclasses(ctx context.Context, locs []SubclassLoc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, loc := range locs {
		if _, ok := s.subclasses[loc.ID]; !ok {
			return notFound("subclass", loc.ID)
		}
		if _, ok := s.screens[loc.ScreenID]; !ok {
			return notFound("screen", loc.ScreenID)
		}
	}
	for _, loc := range locs {
		sub := s.subclasses[loc.ID]
		if sub.ScreenID == loc.ScreenID {
			continue
		}
		s.closeSubclassGap(sub.ScreenID, sub.ID)
		sub.Weight = ordering.NextWeight(SubclassEntries(s.subclassesOf(loc.ScreenID)))
		sub.ScreenID = loc.ScreenID
	}
	return nil
}

func (s *MemoryStore) DeleteSubclass(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subclasses[id]
	if !ok {
		return notFound("subclass", id)
	}
	s.closeSubclassGap(sub.ScreenID, id)
	s.dropSubclass(id)
	return nil
}

// subclassesOf returns the live subclasses of a screen in weight order.
// Callers hold the lock.
func (s *MemoryStore) subclassesOf(screenID int64) []*Subclass {
	var out []*Subclass
	for _, sub := range s.subclasses {
		if sub.ScreenID == screenID {
			out = append(out, sub)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Weight != out[j].Weight {
			return out[i].Weight < out[j].Weight
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// closeSubclassGap renumbers the subclasses of a screen as if id had left it.
func (s *MemoryStore) closeSubclassGap(screenID, id int64) {
	rest, _ := ordering.RemoveAndRenumber(SubclassEntries(s.subclassesOf(screenID)), id)
	for _, e := range rest {
		s.subclasses[e.ID].Weight = e.Weight
	}
}

func (s *MemoryStore) dropSubclass(id int64) {
	for cid, c := range s.charts {
		if c.SubclassID == id {
			delete(s.charts, cid)
		}
	}
	delete(s.subclasses, id)
}

// --- Charts ---

func (s *MemoryStore) CreateChart(ctx context.Context, c *Chart) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subclasses[c.SubclassID]; !ok {
		return notFound("subclass", c.SubclassID)
	}
	c.ID = s.id()
	chartCopy := *c
	s.charts[c.ID] = &chartCopy
	return nil
}

func (s *MemoryStore) GetChart(ctx context.Context, id int64) (*Chart, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.charts[id]
	if !ok {
		return nil, nil
	}
	chartCopy := *c
	return &chartCopy, nil
}

func (s *MemoryStore) ListCharts(ctx context.Context, subclassID int64) ([]*Chart, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	charts := s.chartsOf(subclassID)
	result := make([]*Chart, len(charts))
	for i, c := range charts {
		chartCopy := *c
		result[i] = &chartCopy
	}
	return result, nil
}

// UpdateChart replaces the configs of a chart. A chart moved to another
// subclass is appended there and its old siblings are renumbered.
func (s *MemoryStore) UpdateChart(ctx context.Context, c *Chart) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.charts[c.ID]
	if !ok {
		return notFound("chart", c.ID)
	}
	if c.SubclassID != 0 && c.SubclassID != cur.SubclassID {
		if _, ok := s.subclasses[c.SubclassID]; !ok {
			return notFound("subclass", c.SubclassID)
		}
		s.closeChartGap(cur.SubclassID, cur.ID)
		cur.Weight = ordering.NextWeight(ChartEntries(s.chartsOf(c.SubclassID)))
		cur.SubclassID = c.SubclassID
	}
	cur.Configs = c.Configs
	*c = *cur
	return nil
}

func (s *MemoryStore) DeleteChart(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.charts[id]
	if !ok {
		return notFound("chart", id)
	}
	s.closeChartGap(c.SubclassID, id)
	delete(s.charts, id)
	return nil
}

func (s *MemoryStore) UpdateChartWeights(ctx context.Context, weights []ChartWeight) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, w := range weights {
		if _, ok := s.charts[w.ID]; !ok {
			return notFound("chart", w.ID)
		}
	}
	for _, w := range weights {
		s.charts[w.ID].Weight = w.Weight
	}
	return nil
}

func (s *MemoryStore) chartsOf(subclassID int64) []*Chart {
	var out []*Chart
	for _, c := range s.charts {
		if c.SubclassID == subclassID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Weight != out[j].Weight {
			return out[i].Weight < out[j].Weight
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *MemoryStore) closeChartGap(subclassID, id int64) {
	rest, _ := ordering.RemoveAndRenumber(ChartEntries(s.chartsOf(subclassID)), id)
	for _, e := range rest {
		s.charts[e.ID].Weight = e.Weight
	}
}

// --- Collects ---

func (s *MemoryStore) CreateCollect(ctx context.Context, c *collect.Collect) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.ID = s.id()
	s.collects[c.ID] = cloneCollect(c)
	return nil
}

func (s *MemoryStore) GetCollect(ctx context.Context, id int64) (*collect.Collect, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collects[id]
	if !ok {
		return nil, nil
	}
	return cloneCollect(c), nil
}

func (s *MemoryStore) ListCollects(ctx context.Context, f collect.Filter) ([]*collect.Collect, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*collect.Collect, 0)
	for _, c := range s.collects {
		if f.Match(c) {
			result = append(result, cloneCollect(c))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *MemoryStore) UpdateCollect(ctx context.Context, c *collect.Collect) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collects[c.ID]; !ok {
		return notFound("collect", c.ID)
	}
	s.collects[c.ID] = cloneCollect(c)
	return nil
}

func (s *MemoryStore) DeleteCollect(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collects[id]; !ok {
		return notFound("collect", id)
	}
	delete(s.collects, id)
	return nil
}

func cloneCollect(c *collect.Collect) *collect.Collect {
	out := *c
	if c.Proc != nil {
		p := *c.Proc
		out.Proc = &p
	}
	if c.Port != nil {
		p := *c.Port
		out.Port = &p
	}
	if c.Log != nil {
		l := *c.Log
		if c.Log.Tags != nil {
			l.Tags = make(map[string]string, len(c.Log.Tags))
			for k, v := range c.Log.Tags {
				l.Tags[k] = v
			}
		}
		out.Log = &l
	}
	return &out
}

// --- Strategies ---

func (s *MemoryStore) CreateStrategy(ctx context.Context, st *strategy.Strategy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st.ID = s.id()
	s.strategies[st.ID] = cloneStrategy(st)
	return nil
}

func (s *MemoryStore) GetStrategy(ctx context.Context, id int64) (*strategy.Strategy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.strategies[id]
	if !ok {
		return nil, nil
	}
	return cloneStrategy(st), nil
}

func (s *MemoryStore) ListStrategies(ctx context.Context, nodeID int64) ([]*strategy.Strategy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*strategy.Strategy, 0)
	for _, st := range s.strategies {
		if nodeID == 0 || st.Nid == nodeID {
			result = append(result, cloneStrategy(st))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *MemoryStore) UpdateStrategy(ctx context.Context, st *strategy.Strategy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.strategies[st.ID]; !ok {
		return notFound("strategy", st.ID)
	}
	s.strategies[st.ID] = cloneStrategy(st)
	return nil
}

func (s *MemoryStore) DeleteStrategy(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.strategies[id]; !ok {
		return notFound("strategy", id)
	}
	delete(s.strategies, id)
	return nil
}

func cloneStrategy(st *strategy.Strategy) *strategy.Strategy {
	out := *st
	out.ExclNid = slices.Clone(st.ExclNid)
	out.NotifyUser = slices.Clone(st.NotifyUser)
	out.NotifyGroup = slices.Clone(st.NotifyGroup)
	out.EnableDaysOfWeek = slices.Clone(st.EnableDaysOfWeek)
	out.AlertUpgrade.Users = slices.Clone(st.AlertUpgrade.Users)
	out.AlertUpgrade.Groups = slices.Clone(st.AlertUpgrade.Groups)
	out.Exprs = make([]strategy.Expression, len(st.Exprs))
	for i, e := range st.Exprs {
		e.Params = slices.Clone(e.Params)
		out.Exprs[i] = e
	}
	out.Tags = make([]strategy.TagFilter, len(st.Tags))
	for i, t := range st.Tags {
		t.Tval = slices.Clone(t.Tval)
		out.Tags[i] = t
	}
	return &out
}
