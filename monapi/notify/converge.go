package notify

import (
	"context"
	"fmt"
	"hash/fnv"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/itskum47/monforge/monapi/strategy"
)

// convergeTTL bounds how long alert history is kept.
const convergeTTL = 30 * 24 * time.Hour

// ConvergeStore keeps the recent alerts of each series.
type ConvergeStore interface {
	CountAlerts(ctx context.Context, series string, since int64) (int, error)
	AddAlert(ctx context.Context, series string, ts int64, id string) error
	// Reset forgets the alerts of a series. A recovery calls it, so the
	// window of the next alert starts at the recovery.
	Reset(ctx context.Context, series string) error
}

// Converger applies the converge rule of a strategy to its events.
type Converger struct {
	store ConvergeStore
	now   func() time.Time
}

func NewConverger(store ConvergeStore) *Converger {
	return &Converger{store: store, now: time.Now}
}

// Converged reports whether e must be held back. Recoveries are never held
// back here but restart the window of their series. An alert that passes is
// recorded against the window.
func (c *Converger) Converged(ctx context.Context, e *Event, s *strategy.Strategy) (bool, error) {
	series := e.Series()
	if e.EventType == EventRecovery {
		return false, c.store.Reset(ctx, series)
	}
	if !s.Converge.Enabled() {
		return false, nil
	}
	if s.Converge.Max() == 0 {
		return true, nil
	}

	now := c.now().Unix()
	n, err := c.store.CountAlerts(ctx, series, now-int64(s.Converge.Seconds()))
	if err != nil {
		return false, err
	}
	if n >= s.Converge.Max() {
		return true, nil
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return false, c.store.AddAlert(ctx, series, now, e.ID)
}

// Series identifies the alerting series of e: strategy, endpoint, metric
// and tags.
func (e *Event) Series() string {
	keys := make([]string, 0, len(e.Tags))
	for k := range e.Tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := fnv.New64a()
	fmt.Fprintf(h, "%d\x00%s\x00%s", e.Sid, e.Endpoint, e.Metric)
	for _, k := range keys {
		fmt.Fprintf(h, "\x00%s=%s", k, e.Tags[k])
	}
	return strconv.FormatUint(h.Sum64(), 16)
}

// RedisConvergeStore keeps one sorted set of alert times per series so that
// every monapi instance sees the same windows.
type RedisConvergeStore struct {
	client redis.Cmdable
	prefix string
}

func NewRedisConvergeStore(client redis.Cmdable, prefix string) *RedisConvergeStore {
	if prefix == "" {
		prefix = DefaultQueuePrefix
	}
	return &RedisConvergeStore{client: client, prefix: prefix}
}

func (s *RedisConvergeStore) key(series string) string {
	return s.prefix + "converge:" + series
}

func (s *RedisConvergeStore) CountAlerts(ctx context.Context, series string, since int64) (int, error) {
	n, err := s.client.ZCount(ctx, s.key(series), strconv.FormatInt(since, 10), "+inf").Result()
	return int(n), err
}

func (s *RedisConvergeStore) AddAlert(ctx context.Context, series string, ts int64, id string) error {
	key := s.key(series)
	pipe := s.client.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(ts), Member: id})
	pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(ts-int64(convergeTTL/time.Second), 10))
	pipe.Expire(ctx, key, convergeTTL)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisConvergeStore) Reset(ctx context.Context, series string) error {
	return s.client.Del(ctx, s.key(series)).Err()
}

// MemoryConvergeStore is the single-instance fallback.
type MemoryConvergeStore struct {
	mu     sync.Mutex
	alerts map[string][]int64
}

func NewMemoryConvergeStore() *MemoryConvergeStore {
	return &MemoryConvergeStore{alerts: make(map[string][]int64)}
}

func (s *MemoryConvergeStore) CountAlerts(ctx context.Context, series string, since int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, ts := range s.alerts[series] {
		if ts >= since {
			n++
		}
	}
	return n, nil
}

func (s *MemoryConvergeStore) AddAlert(ctx context.Context, series string, ts int64, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := ts - int64(convergeTTL/time.Second)
	kept := s.alerts[series][:0]
	for _, old := range s.alerts[series] {
		if old > cutoff {
			kept = append(kept, old)
		}
	}
	s.alerts[series] = append(kept, ts)
	return nil
}

func (s *MemoryConvergeStore) Reset(ctx context.Context, series string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.alerts, series)
	return nil
}
