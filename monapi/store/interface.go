package store

import (
	"context"
	"errors"

	"github.com/itskum47/monforge/monapi/collect"
	"github.com/itskum47/monforge/monapi/strategy"
	"github.com/itskum47/monforge/monapi/tree"
)

// ErrNotFound is wrapped by every update or delete that targets a missing row.
var ErrNotFound = errors.New("not found")

// Store is the persistence boundary of the console. Get methods return nil,
// nil for a missing row. Batch weight updates and the renumbering done by
// deletes and moves are atomic: on error nothing was written.
type Store interface {
	// Service tree
	UpsertNode(ctx context.Context, n *tree.Node) error
	ListNodes(ctx context.Context) ([]*tree.Node, error)

	// Screens
	CreateScreen(ctx context.Context, s *Screen) error
	GetScreen(ctx context.Context, id int64) (*Screen, error)
	ListScreens(ctx context.Context, nodeID int64) ([]*Screen, error)
	UpdateScreen(ctx context.Context, s *Screen) error
	// DeleteScreen removes the screen with its subclasses and charts.
	DeleteScreen(ctx context.Context, id int64) error

	// Subclasses, listed in weight order
	CreateSubclass(ctx context.Context, s *Subclass) error
	GetSubclass(ctx context.Context, id int64) (*Subclass, error)
	ListSubclasses(ctx context.Context, screenID int64) ([]*Subclass, error)
	UpdateSubclasses(ctx context.Context, subs []*Subclass) error
	// MoveSubclasses appends each subclass to its destination screen and
	// closes the gap it leaves behind.
	MoveSubclasses(ctx context.Context, locs []SubclassLoc) error
	// DeleteSubclass removes the subclass and its charts and renumbers the
	// remaining subclasses of the screen.
	DeleteSubclass(ctx context.Context, id int64) error

	// Charts, listed in weight order
	CreateChart(ctx context.Context, c *Chart) error
	GetChart(ctx context.Context, id int64) (*Chart, error)
	ListCharts(ctx context.Context, subclassID int64) ([]*Chart, error)
	UpdateChart(ctx context.Context, c *Chart) error
	// DeleteChart removes the chart and renumbers its siblings.
	DeleteChart(ctx context.Context, id int64) error
	UpdateChartWeights(ctx context.Context, weights []ChartWeight) error

	// Collects
	CreateCollect(ctx context.Context, c *collect.Collect) error
	GetCollect(ctx context.Context, id int64) (*collect.Collect, error)
	ListCollects(ctx context.Context, f collect.Filter) ([]*collect.Collect, error)
	UpdateCollect(ctx context.Context, c *collect.Collect) error
	DeleteCollect(ctx context.Context, id int64) error

	// Strategies
	CreateStrategy(ctx context.Context, s *strategy.Strategy) error
	GetStrategy(ctx context.Context, id int64) (*strategy.Strategy, error)
	ListStrategies(ctx context.Context, nodeID int64) ([]*strategy.Strategy, error)
	UpdateStrategy(ctx context.Context, s *strategy.Strategy) error
	DeleteStrategy(ctx context.Context, id int64) error
}
