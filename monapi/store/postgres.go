package store

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/itskum47/monforge/monapi/collect"
	"github.com/itskum47/monforge/monapi/strategy"
	"github.com/itskum47/monforge/monapi/tree"
)

//go:embed schema.sql
var schemaSQL string

// PostgresStore implements Store using a PostgreSQL backend.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore initializes a new PostgresStore with a connection pool.
func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, err
	}

	config.MaxConns = 20
	config.MinConns = 2
	config.MaxConnLifetime = time.Hour
	config.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

// Migrate creates the tables when they do not exist yet.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// inTx runs fn in one transaction, rolling back when it fails.
func (s *PostgresStore) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func expectRow(tag interface{ RowsAffected() int64 }, kind string, id int64) error {
	if tag.RowsAffected() == 0 {
		return notFound(kind, id)
	}
	return nil
}

// --- Service tree ---

func (s *PostgresStore) UpsertNode(ctx context.Context, n *tree.Node) error {
	query := `
		INSERT INTO nodes (id, pid, ident, name, path, leaf, note)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			pid = EXCLUDED.pid,
			ident = EXCLUDED.ident,
			name = EXCLUDED.name,
			path = EXCLUDED.path,
			leaf = EXCLUDED.leaf,
			note = EXCLUDED.note
	`
	_, err := s.pool.Exec(ctx, query, n.ID, n.PID, n.Ident, n.Name, n.Path, n.Leaf, n.Note)
	return err
}

func (s *PostgresStore) ListNodes(ctx context.Context) ([]*tree.Node, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, pid, ident, name, path, leaf, note FROM nodes ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var nodes []*tree.Node
	for rows.Next() {
		var n tree.Node
		if err := rows.Scan(&n.ID, &n.PID, &n.Ident, &n.Name, &n.Path, &n.Leaf, &n.Note); err != nil {
			return nil, err
		}
		nodes = append(nodes, &n)
	}
	return nodes, rows.Err()
}

// --- Screens ---

func (s *PostgresStore) CreateScreen(ctx context.Context, sc *Screen) error {
	query := `
		INSERT INTO screens (node_id, name, last_updator, last_updated)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	return s.pool.QueryRow(ctx, query, sc.NodeID, sc.Name, sc.LastUpdator, sc.LastUpdated).Scan(&sc.ID)
}

func (s *PostgresStore) GetScreen(ctx context.Context, id int64) (*Screen, error) {
	query := `SELECT id, node_id, name, last_updator, last_updated FROM screens WHERE id = $1`
	var sc Screen
	err := s.pool.QueryRow(ctx, query, id).Scan(&sc.ID, &sc.NodeID, &sc.Name, &sc.LastUpdator, &sc.LastUpdated)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sc, nil
}

func (s *PostgresStore) ListScreens(ctx context.Context, nodeID int64) ([]*Screen, error) {
	query := `
		SELECT id, node_id, name, last_updator, last_updated
		FROM screens WHERE $1::bigint = 0 OR node_id = $1
		ORDER BY id
	`
	rows, err := s.pool.Query(ctx, query, nodeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	screens := make([]*Screen, 0)
	for rows.Next() {
		var sc Screen
		if err := rows.Scan(&sc.ID, &sc.NodeID, &sc.Name, &sc.LastUpdator, &sc.LastUpdated); err != nil {
			return nil, err
		}
		screens = append(screens, &sc)
	}
	return screens, rows.Err()
}

func (s *PostgresStore) UpdateScreen(ctx context.Context, sc *Screen) error {
	query := `UPDATE screens SET name = $2, node_id = $3, last_updator = $4, last_updated = $5 WHERE id = $1`
	tag, err := s.pool.Exec(ctx, query, sc.ID, sc.Name, sc.NodeID, sc.LastUpdator, sc.LastUpdated)
	if err != nil {
		return err
	}
	return expectRow(tag, "screen", sc.ID)
}

func (s *PostgresStore) DeleteScreen(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM screens WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return expectRow(tag, "screen", id)
}

// --- Subclasses ---

func (s *PostgresStore) CreateSubclass(ctx context.Context, sub *Subclass) error {
	query := `
		INSERT INTO screen_subclasses (screen_id, name, weight)
		SELECT $1, $2, $3 WHERE EXISTS (SELECT 1 FROM screens WHERE id = $1)
		RETURNING id
	`
	err := s.pool.QueryRow(ctx, query, sub.ScreenID, sub.Name, sub.Weight).Scan(&sub.ID)
	if errors.Is(err, pgx.ErrNoRows) {
		return notFound("screen", sub.ScreenID)
	}
	return err
}

func (s *PostgresStore) GetSubclass(ctx context.Context, id int64) (*Subclass, error) {
	query := `SELECT id, screen_id, name, weight FROM screen_subclasses WHERE id = $1`
	var sub Subclass
	err := s.pool.QueryRow(ctx, query, id).Scan(&sub.ID, &sub.ScreenID, &sub.Name, &sub.Weight)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (s *PostgresStore) ListSubclasses(ctx context.Context, screenID int64) ([]*Subclass, error) {
	query := `
		SELECT id, screen_id, name, weight
		FROM screen_subclasses WHERE screen_id = $1
		ORDER BY weight, id
	`
	rows, err := s.pool.Query(ctx, query, screenID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	subs := make([]*Subclass, 0)
	for rows.Next() {
		var sub Subclass
		if err := rows.Scan(&sub.ID, &sub.ScreenID, &sub.Name, &sub.Weight); err != nil {
			return nil, err
		}
		subs = append(subs, &sub)
	}
	return subs, rows.Err()
}

func (s *PostgresStore) UpdateSubclasses(ctx context.Context, subs []*Subclass) error {
	query := `UPDATE screen_subclasses SET name = COALESCE(NULLIF($2, ''), name), weight = $3 WHERE id = $1`
	return s.inTx(ctx, func(tx pgx.Tx) error {
		for _, sub := range subs {
			tag, err := tx.Exec(ctx, query, sub.ID, sub.Name, sub.Weight)
			if err != nil {
				return err
			}
			if err := expectRow(tag, "subclass", sub.ID); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *PostgresStore) MoveSubclasses(ctx context.Context, locs []SubclassLoc) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		for _, loc := range locs {
			var from int64
			err := tx.QueryRow(ctx, `SELECT screen_id FROM screen_subclasses WHERE id = $1 FOR UPDATE`, loc.ID).Scan(&from)
			if errors.Is(err, pgx.ErrNoRows) {
				return notFound("subclass", loc.ID)
			}
			if err != nil {
				return err
			}
			if from == loc.ScreenID {
				continue
			}

			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM screens WHERE id = $1)`, loc.ScreenID).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return notFound("screen", loc.ScreenID)
			}

			query := `
				UPDATE screen_subclasses
				SET screen_id = $2,
				    weight = (SELECT COUNT(*) FROM screen_subclasses WHERE screen_id = $2)
				WHERE id = $1
			`
			if _, err := tx.Exec(ctx, query, loc.ID, loc.ScreenID); err != nil {
				return err
			}
			if err := renumber(ctx, tx, "screen_subclasses", "screen_id", from); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *PostgresStore) DeleteSubclass(ctx context.Context, id int64) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		var screenID int64
		err := tx.QueryRow(ctx, `DELETE FROM screen_subclasses WHERE id = $1 RETURNING screen_id`, id).Scan(&screenID)
		if errors.Is(err, pgx.ErrNoRows) {
			return notFound("subclass", id)
		}
		if err != nil {
			return err
		}
		return renumber(ctx, tx, "screen_subclasses", "screen_id", screenID)
	})
}

// renumber rewrites the weights of one parent's rows to 0..n-1 in their
// current order. table and parent are never user input.
func renumber(ctx context.Context, tx pgx.Tx, table, parent string, parentID int64) error {
	query := fmt.Sprintf(`
		UPDATE %[1]s t SET weight = r.pos
		FROM (
			SELECT id, ROW_NUMBER() OVER (ORDER BY weight, id) - 1 AS pos
			FROM %[1]s WHERE %[2]s = $1
		) r
		WHERE t.id = r.id AND t.weight <> r.pos
	`, table, parent)
	_, err := tx.Exec(ctx, query, parentID)
	return err
}

// --- Charts ---

func (s *PostgresStore) CreateChart(ctx context.Context, c *Chart) error {
	query := `
		INSERT INTO screen_charts (subclass_id, configs, weight)
		SELECT $1, $2, $3 WHERE EXISTS (SELECT 1 FROM screen_subclasses WHERE id = $1)
		RETURNING id
	`
	err := s.pool.QueryRow(ctx, query, c.SubclassID, c.Configs, c.Weight).Scan(&c.ID)
	if errors.Is(err, pgx.ErrNoRows) {
		return notFound("subclass", c.SubclassID)
	}
	return err
}

func (s *PostgresStore) GetChart(ctx context.Context, id int64) (*Chart, error) {
	query := `SELECT id, subclass_id, configs, weight FROM screen_charts WHERE id = $1`
	var c Chart
	err := s.pool.QueryRow(ctx, query, id).Scan(&c.ID, &c.SubclassID, &c.Configs, &c.Weight)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *PostgresStore) ListCharts(ctx context.Context, subclassID int64) ([]*Chart, error) {
	query := `
		SELECT id, subclass_id, configs, weight
		FROM screen_charts WHERE subclass_id = $1
		ORDER BY weight, id
	`
	rows, err := s.pool.Query(ctx, query, subclassID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	charts := make([]*Chart, 0)
	for rows.Next() {
		var c Chart
		if err := rows.Scan(&c.ID, &c.SubclassID, &c.Configs, &c.Weight); err != nil {
			return nil, err
		}
		charts = append(charts, &c)
	}
	return charts, rows.Err()
}

func (s *PostgresStore) UpdateChart(ctx context.Context, c *Chart) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		var from int64
		err := tx.QueryRow(ctx, `SELECT subclass_id FROM screen_charts WHERE id = $1 FOR UPDATE`, c.ID).Scan(&from)
		if errors.Is(err, pgx.ErrNoRows) {
			return notFound("chart", c.ID)
		}
		if err != nil {
			return err
		}

		if c.SubclassID != 0 && c.SubclassID != from {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM screen_subclasses WHERE id = $1)`, c.SubclassID).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return notFound("subclass", c.SubclassID)
			}
			query := `
				UPDATE screen_charts
				SET subclass_id = $2,
				    weight = (SELECT COUNT(*) FROM screen_charts WHERE subclass_id = $2)
				WHERE id = $1
			`
			if _, err := tx.Exec(ctx, query, c.ID, c.SubclassID); err != nil {
				return err
			}
			if err := renumber(ctx, tx, "screen_charts", "subclass_id", from); err != nil {
				return err
			}
		}

		query := `UPDATE screen_charts SET configs = $2 WHERE id = $1 RETURNING subclass_id, weight`
		return tx.QueryRow(ctx, query, c.ID, c.Configs).Scan(&c.SubclassID, &c.Weight)
	})
}

func (s *PostgresStore) DeleteChart(ctx context.Context, id int64) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		var subclassID int64
		err := tx.QueryRow(ctx, `DELETE FROM screen_charts WHERE id = $1 RETURNING subclass_id`, id).Scan(&subclassID)
		if errors.Is(err, pgx.ErrNoRows) {
			return notFound("chart", id)
		}
		if err != nil {
			return err
		}
		return renumber(ctx, tx, "screen_charts", "subclass_id", subclassID)
	})
}

func (s *PostgresStore) UpdateChartWeights(ctx context.Context, weights []ChartWeight) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, w := range weights {
			batch.Queue(`UPDATE screen_charts SET weight = $2 WHERE id = $1`, w.ID, w.Weight)
		}
		results := tx.SendBatch(ctx, batch)
		for _, w := range weights {
			tag, err := results.Exec()
			if err != nil {
				results.Close()
				return err
			}
			if err := expectRow(tag, "chart", w.ID); err != nil {
				results.Close()
				return err
			}
		}
		return results.Close()
	})
}

// --- Collects ---

func (s *PostgresStore) CreateCollect(ctx context.Context, c *collect.Collect) error {
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	query := `INSERT INTO collects (nid, collect_type, name, data) VALUES ($1, $2, $3, $4) RETURNING id`
	return s.pool.QueryRow(ctx, query, c.Nid, c.CollectType, c.Name, data).Scan(&c.ID)
}

func (s *PostgresStore) GetCollect(ctx context.Context, id int64) (*collect.Collect, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM collects WHERE id = $1`, id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeCollect(id, data)
}

func (s *PostgresStore) ListCollects(ctx context.Context, f collect.Filter) ([]*collect.Collect, error) {
	query := `
		SELECT id, data FROM collects
		WHERE ($1::text = '' OR collect_type = $1) AND ($2::bigint = 0 OR nid = $2)
		ORDER BY id
	`
	rows, err := s.pool.Query(ctx, query, f.Type, f.Nid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	collects := make([]*collect.Collect, 0)
	for rows.Next() {
		var (
			id   int64
			data []byte
		)
		if err := rows.Scan(&id, &data); err != nil {
			return nil, err
		}
		c, err := decodeCollect(id, data)
		if err != nil {
			return nil, err
		}
		collects = append(collects, c)
	}
	return collects, rows.Err()
}

func (s *PostgresStore) UpdateCollect(ctx context.Context, c *collect.Collect) error {
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	query := `UPDATE collects SET nid = $2, collect_type = $3, name = $4, data = $5 WHERE id = $1`
	tag, err := s.pool.Exec(ctx, query, c.ID, c.Nid, c.CollectType, c.Name, data)
	if err != nil {
		return err
	}
	return expectRow(tag, "collect", c.ID)
}

func (s *PostgresStore) DeleteCollect(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM collects WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return expectRow(tag, "collect", id)
}

func decodeCollect(id int64, data []byte) (*collect.Collect, error) {
	var c collect.Collect
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("collect %d: %w", id, err)
	}
	c.ID = id
	return &c, nil
}

// --- Strategies ---

func (s *PostgresStore) CreateStrategy(ctx context.Context, st *strategy.Strategy) error {
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}
	query := `INSERT INTO strategies (nid, name, data) VALUES ($1, $2, $3) RETURNING id`
	return s.pool.QueryRow(ctx, query, st.Nid, st.Name, data).Scan(&st.ID)
}

func (s *PostgresStore) GetStrategy(ctx context.Context, id int64) (*strategy.Strategy, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM strategies WHERE id = $1`, id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeStrategy(id, data)
}

func (s *PostgresStore) ListStrategies(ctx context.Context, nodeID int64) ([]*strategy.Strategy, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, data FROM strategies WHERE $1::bigint = 0 OR nid = $1 ORDER BY id`, nodeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	strategies := make([]*strategy.Strategy, 0)
	for rows.Next() {
		var (
			id   int64
			data []byte
		)
		if err := rows.Scan(&id, &data); err != nil {
			return nil, err
		}
		st, err := decodeStrategy(id, data)
		if err != nil {
			return nil, err
		}
		strategies = append(strategies, st)
	}
	return strategies, rows.Err()
}

func (s *PostgresStore) UpdateStrategy(ctx context.Context, st *strategy.Strategy) error {
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `UPDATE strategies SET nid = $2, name = $3, data = $4 WHERE id = $1`, st.ID, st.Nid, st.Name, data)
	if err != nil {
		return err
	}
	return expectRow(tag, "strategy", st.ID)
}

func (s *PostgresStore) DeleteStrategy(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM strategies WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return expectRow(tag, "strategy", id)
}

func decodeStrategy(id int64, data []byte) (*strategy.Strategy, error) {
	var st strategy.Strategy
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("strategy %d: %w", id, err)
	}
	st.ID = id
	return &st, nil
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*PostgresStore)(nil)
)
