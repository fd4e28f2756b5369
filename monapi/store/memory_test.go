package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itskum47/monforge/monapi/collect"
	"github.com/itskum47/monforge/monapi/strategy"
	"github.com/itskum47/monforge/monapi/tree"
)

func seedScreen(t *testing.T, s *MemoryStore, subclasses ...string) (*Screen, []*Subclass) {
	t.Helper()
	ctx := context.Background()
	sc := &Screen{NodeID: 1, Name: "overview"}
	require.NoError(t, s.CreateScreen(ctx, sc))

	var subs []*Subclass
	for i, name := range subclasses {
		sub := &Subclass{ScreenID: sc.ID, Name: name, Weight: i}
		require.NoError(t, s.CreateSubclass(ctx, sub))
		subs = append(subs, sub)
	}
	return sc, subs
}

func weightsOf(subs []*Subclass) map[string]int {
	out := make(map[string]int, len(subs))
	for _, s := range subs {
		out[s.Name] = s.Weight
	}
	return out
}

func TestMemoryStore_ListSubclassesInWeightOrder(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	sc, subs := seedScreen(t, s, "cpu", "mem", "disk")

	require.NoError(t, s.UpdateSubclasses(ctx, []*Subclass{
		{ID: subs[0].ID, Weight: 2},
		{ID: subs[2].ID, Name: "io", Weight: 0},
	}))

	got, err := s.ListSubclasses(ctx, sc.ID)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "io", got[0].Name)
	assert.Equal(t, "mem", got[1].Name)
	assert.Equal(t, "cpu", got[2].Name)
}

func TestMemoryStore_UpdateSubclassesIsAtomic(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	sc, subs := seedScreen(t, s, "cpu", "mem")

	err := s.UpdateSubclasses(ctx, []*Subclass{
		{ID: subs[0].ID, Weight: 1},
		{ID: 999, Weight: 0},
	})
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := s.ListSubclasses(ctx, sc.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"cpu": 0, "mem": 1}, weightsOf(got))
}

func TestMemoryStore_DeleteSubclassRenumbers(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	sc, subs := seedScreen(t, s, "a", "b", "c", "d")

	chart := &Chart{SubclassID: subs[1].ID, Configs: "{}"}
	require.NoError(t, s.CreateChart(ctx, chart))

	require.NoError(t, s.DeleteSubclass(ctx, subs[1].ID))

	got, err := s.ListSubclasses(ctx, sc.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"a": 0, "c": 1, "d": 2}, weightsOf(got))

	c, err := s.GetChart(ctx, chart.ID)
	require.NoError(t, err)
	assert.Nil(t, c, "charts go with their subclass")

	assert.ErrorIs(t, s.DeleteSubclass(ctx, subs[1].ID), ErrNotFound)
}

func TestMemoryStore_MoveSubclasses(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	src, subs := seedScreen(t, s, "a", "b", "c")
	dst, _ := seedScreen(t, s, "x")

	require.NoError(t, s.MoveSubclasses(ctx, []SubclassLoc{
		{ID: subs[0].ID, ScreenID: dst.ID},
		{ID: subs[2].ID, ScreenID: dst.ID},
	}))

	left, err := s.ListSubclasses(ctx, src.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"b": 0}, weightsOf(left))

	moved, err := s.ListSubclasses(ctx, dst.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"x": 0, "a": 1, "c": 2}, weightsOf(moved))

	err = s.MoveSubclasses(ctx, []SubclassLoc{{ID: subs[1].ID, ScreenID: 999}})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_Charts(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_, subs := seedScreen(t, s, "a", "b")

	var ids []int64
	for i := 0; i < 3; i++ {
		c := &Chart{SubclassID: subs[0].ID, Configs: `{"metrics":[]}`, Weight: i}
		require.NoError(t, s.CreateChart(ctx, c))
		ids = append(ids, c.ID)
	}

	err := s.CreateChart(ctx, &Chart{SubclassID: 999})
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.UpdateChartWeights(ctx, []ChartWeight{{ID: ids[0], Weight: 2}, {ID: ids[2], Weight: 0}}))
	got, err := s.ListCharts(ctx, subs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{ids[2], ids[1], ids[0]}, []int64{got[0].ID, got[1].ID, got[2].ID})

	moved := &Chart{ID: ids[1], SubclassID: subs[1].ID, Configs: `{"title":"moved"}`}
	require.NoError(t, s.UpdateChart(ctx, moved))
	assert.Equal(t, 0, moved.Weight)

	left, err := s.ListCharts(ctx, subs[0].ID)
	require.NoError(t, err)
	require.Len(t, left, 2)
	assert.Equal(t, 0, left[0].Weight)
	assert.Equal(t, 1, left[1].Weight)

	require.NoError(t, s.DeleteChart(ctx, left[0].ID))
	left, err = s.ListCharts(ctx, subs[0].ID)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, 0, left[0].Weight)
}

func TestMemoryStore_DeleteChartKeepsSiblingOrder(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_, subs := seedScreen(t, s, "a")

	var ids []int64
	for i := 0; i < 4; i++ {
		c := &Chart{SubclassID: subs[0].ID, Configs: "{}", Weight: i}
		require.NoError(t, s.CreateChart(ctx, c))
		ids = append(ids, c.ID)
	}

	require.NoError(t, s.DeleteChart(ctx, ids[1]))
	got, err := s.ListCharts(ctx, subs[0].ID)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []int64{ids[0], ids[2], ids[3]}, []int64{got[0].ID, got[1].ID, got[2].ID})
	assert.Equal(t, []int{0, 1, 2}, []int{got[0].Weight, got[1].Weight, got[2].Weight})

	assert.ErrorIs(t, s.DeleteChart(ctx, ids[1]), ErrNotFound)
}

func TestMemoryStore_DeleteScreenCascades(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	sc, subs := seedScreen(t, s, "a")
	c := &Chart{SubclassID: subs[0].ID}
	require.NoError(t, s.CreateChart(ctx, c))

	require.NoError(t, s.DeleteScreen(ctx, sc.ID))

	got, err := s.GetSubclass(ctx, subs[0].ID)
	require.NoError(t, err)
	assert.Nil(t, got)
	chart, err := s.GetChart(ctx, c.ID)
	require.NoError(t, err)
	assert.Nil(t, chart)
}

func TestMemoryStore_CollectsAreCopied(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	c := &collect.Collect{Nid: 3, Name: "nginx", CollectType: collect.TypeProc, Proc: &collect.Proc{Target: "nginx"}}
	require.NoError(t, s.CreateCollect(ctx, c))
	c.Proc.Target = "changed"

	got, err := s.GetCollect(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "nginx", got.Proc.Target)

	list, err := s.ListCollects(ctx, collect.Filter{Type: collect.TypeLog})
	require.NoError(t, err)
	assert.Empty(t, list)

	list, err = s.ListCollects(ctx, collect.Filter{Nid: 3})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	assert.ErrorIs(t, s.UpdateCollect(ctx, &collect.Collect{ID: 404}), ErrNotFound)
	require.NoError(t, s.DeleteCollect(ctx, c.ID))
	assert.ErrorIs(t, s.DeleteCollect(ctx, c.ID), ErrNotFound)
}

func TestMemoryStore_Strategies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	st := &strategy.Strategy{Name: "cpu", Nid: 2, NotifyUser: []int64{1}}
	require.NoError(t, s.CreateStrategy(ctx, st))
	st.NotifyUser[0] = 99

	got, err := s.GetStrategy(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, got.NotifyUser)

	list, err := s.ListStrategies(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, list, 1)
	list, err = s.ListStrategies(ctx, 3)
	require.NoError(t, err)
	assert.Empty(t, list)

	missing, err := s.GetStrategy(ctx, 404)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestMemoryStore_Nodes(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.UpsertNode(ctx, &tree.Node{ID: 5, Ident: "corp", Path: "corp"}))
	require.NoError(t, s.UpsertNode(ctx, &tree.Node{ID: 5, Ident: "corp", Path: "corp", Name: "Corp"}))

	nodes, err := s.ListNodes(ctx)
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, "Corp", nodes[0].Name)

	sc := &Screen{NodeID: 5}
	require.NoError(t, s.CreateScreen(ctx, sc))
	assert.Greater(t, sc.ID, int64(5), "generated ids never collide with explicit node ids")
}
