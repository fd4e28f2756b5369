package main

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/itskum47/monforge/monapi/collect"
)

// Prober answers proc and port collects on this host.
type Prober interface {
	ProcNum(ctx context.Context, method, target string) (int, error)
	PortListen(ctx context.Context, port int, protocol string) (bool, error)
}

// Agent keeps the collects of this host in sync with monapi. Proc and port
// collects are evaluated at their step; log collects each run a LogReader.
type Agent struct {
	prober Prober
	logger *zap.Logger
	now    func() time.Time

	mu       sync.Mutex
	cfg      *Config
	client   *Client
	collects map[int64]*collect.Collect
	lastRun  map[int64]time.Time
	logs     map[int64]*logTail

	resync chan struct{}
}

func NewAgent(cfg *Config, prober Prober, logger *zap.Logger) *Agent {
	return &Agent{
		prober:   prober,
		logger:   logger,
		now:      time.Now,
		cfg:      cfg,
		client:   NewClient(cfg),
		collects: make(map[int64]*collect.Collect),
		lastRun:  make(map[int64]time.Time),
		logs:     make(map[int64]*logTail),
		resync:   make(chan struct{}, 1),
	}
}

// Reload swaps in a new configuration and asks for an immediate sync.
func (a *Agent) Reload(cfg *Config) {
	a.mu.Lock()
	a.cfg = cfg
	a.client = NewClient(cfg)
	a.mu.Unlock()

	select {
	case a.resync <- struct{}{}:
	default:
	}
}

func (a *Agent) config() (*Config, *Client) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg, a.client
}

// Run syncs and evaluates until ctx ends.
func (a *Agent) Run(ctx context.Context) {
	go a.syncLoop(ctx)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			a.logger.Info("agent stopping")
			a.stopLogs()
			return
		case <-ticker.C:
			a.EvaluateDue(ctx)
		}
	}
}

// syncLoop pulls collects every sync interval. Failures back off
// exponentially up to the configured cap.
func (a *Agent) syncLoop(ctx context.Context) {
	cfg, _ := a.config()
	backoff := initialBackoff(cfg)
	for {
		cfg, _ = a.config()
		wait := cfg.SyncInterval

		if err := a.Sync(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			SyncFailures.Inc()
			a.logger.Warn("collect sync failed", zap.Error(err), zap.Duration("retry_in", backoff))
			wait = backoff
			backoff *= 2
			if backoff > cfg.MaxBackoff && cfg.MaxBackoff > 0 {
				backoff = cfg.MaxBackoff
			}
		} else {
			backoff = initialBackoff(cfg)
		}

		select {
		case <-ctx.Done():
			return
		case <-a.resync:
		case <-time.After(wait):
		}
	}
}

func initialBackoff(cfg *Config) time.Duration {
	if cfg.MaxBackoff > 0 && cfg.MaxBackoff < time.Second {
		return cfg.MaxBackoff
	}
	return time.Second
}

// Sync replaces the collect set with what monapi holds for the configured
// nodes. On error the previous set stays in place.
func (a *Agent) Sync(ctx context.Context) error {
	cfg, client := a.config()

	next := make(map[int64]*collect.Collect)
	nextLogs := make(map[int64]*collect.Collect)
	for _, nid := range cfg.NodeIDs {
		list, err := client.Collects(ctx, nid)
		if err != nil {
			return fmt.Errorf("node %d: %w", nid, err)
		}
		for _, c := range list {
			if c.CollectType == collect.TypeLog {
				nextLogs[c.ID] = c
				continue
			}
			next[c.ID] = c
		}
	}

	a.mu.Lock()
	for id, old := range a.collects {
		c, ok := next[id]
		if ok && c.Metric() == old.Metric() && c.Name == old.Name && c.Tags == old.Tags {
			if c.Step != old.Step {
				delete(a.lastRun, id)
			}
			continue
		}
		// Removed, or reported under new labels: the old series is stale.
		CollectValue.DeleteLabelValues(old.Metric(), old.Name, old.Tags)
		delete(a.lastRun, id)
	}
	a.collects = next
	a.mu.Unlock()

	a.syncLogs(nextLogs)

	active := len(next) + a.logCount()
	ActiveCollects.Set(float64(active))
	a.logger.Debug("collects synced", zap.Int("count", active), zap.Int64s("nodes", cfg.NodeIDs))
	return nil
}

type logTail struct {
	c      *collect.Collect
	cancel context.CancelFunc
	done   chan struct{}
}

func (t *logTail) stop() {
	t.cancel()
	<-t.done
}

// syncLogs restarts the reader of every log collect whose definition
// changed and stops the readers of removed ones.
func (a *Agent) syncLogs(next map[int64]*collect.Collect) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for id, t := range a.logs {
		if c, ok := next[id]; ok && sameLogCollect(t.c, c) {
			continue
		}
		t.stop()
		delete(a.logs, id)
	}

	for id, c := range next {
		if _, ok := a.logs[id]; ok {
			continue
		}
		reader, err := NewLogReader(c, a.logger)
		if err != nil {
			ProbeErrors.WithLabelValues(collect.TypeLog).Inc()
			a.logger.Warn("log collect not started", zap.Int64("collect_id", id), zap.Error(err))
			continue
		}
		ctx, cancel := context.WithCancel(context.Background())
		t := &logTail{c: c, cancel: cancel, done: make(chan struct{})}
		go func() {
			defer close(t.done)
			reader.Run(ctx)
		}()
		a.logs[id] = t
	}
}

func sameLogCollect(a, b *collect.Collect) bool {
	if b.Log == nil || a.Name != b.Name || a.Tags != b.Tags || a.Step != b.Step {
		return false
	}
	if a.Log.FilePath != b.Log.FilePath || a.Log.Func != b.Log.Func || a.Log.Pattern != b.Log.Pattern {
		return false
	}
	if len(a.Log.Tags) != len(b.Log.Tags) {
		return false
	}
	for k, v := range a.Log.Tags {
		if b.Log.Tags[k] != v {
			return false
		}
	}
	return true
}

func (a *Agent) logCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.logs)
}

// LogCollects returns the ids of the log collects being tailed.
func (a *Agent) LogCollects() []int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	ids := make([]int64, 0, len(a.logs))
	for id := range a.logs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (a *Agent) stopLogs() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for id, t := range a.logs {
		t.stop()
		delete(a.logs, id)
	}
}

// Collects returns the current set ordered by id.
func (a *Agent) Collects() []*collect.Collect {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]*collect.Collect, 0, len(a.collects))
	for _, c := range a.collects {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// EvaluateDue runs every collect whose step has elapsed.
func (a *Agent) EvaluateDue(ctx context.Context) {
	now := a.now()

	a.mu.Lock()
	var due []*collect.Collect
	for id, c := range a.collects {
		last, ok := a.lastRun[id]
		if !ok || now.Sub(last) >= time.Duration(c.Step)*time.Second {
			a.lastRun[id] = now
			due = append(due, c)
		}
	}
	a.mu.Unlock()

	cfg, _ := a.config()
	for _, c := range due {
		v, err := a.Evaluate(ctx, c)
		if err != nil {
			ProbeErrors.WithLabelValues(c.CollectType).Inc()
			a.logger.Warn("probe failed",
				zap.Int64("collect_id", c.ID),
				zap.String("collect", c.Name),
				zap.Error(err))
			continue
		}
		CollectValue.WithLabelValues(c.Metric(), c.Name, c.Tags).Set(v)
		a.logger.Info("collect value",
			zap.String("endpoint", cfg.Endpoint),
			zap.String("metric", c.Metric()),
			zap.String("tags", c.Tags),
			zap.Int("step", c.Step),
			zap.Float64("value", v))
	}
}

// Evaluate probes one collect.
func (a *Agent) Evaluate(ctx context.Context, c *collect.Collect) (float64, error) {
	switch c.CollectType {
	case collect.TypeProc:
		if c.Proc == nil {
			return 0, fmt.Errorf("collect %d: missing proc section", c.ID)
		}
		n, err := a.prober.ProcNum(ctx, c.Proc.CollectMethod, c.Proc.Target)
		return float64(n), err

	case collect.TypePort:
		if c.Port == nil {
			return 0, fmt.Errorf("collect %d: missing port section", c.ID)
		}
		timeout := time.Duration(c.Port.Timeout) * time.Second
		if timeout <= 0 {
			timeout = 3 * time.Second
		}
		pctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		ok, err := a.prober.PortListen(pctx, c.Port.Port, c.Port.Protocol)
		if err != nil {
			return 0, err
		}
		if ok {
			return 1, nil
		}
		return 0, nil
	}
	return 0, fmt.Errorf("collect %d: unsupported type %q", c.ID, c.CollectType)
}
