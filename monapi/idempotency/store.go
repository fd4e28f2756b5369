// Package idempotency replays the stored response of a create request that
// is retried with the same X-Idempotency-Key.
package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Header carries the client-chosen key.
const Header = "X-Idempotency-Key"

type Response struct {
	StatusCode int                 `json:"status_code"`
	Body       []byte              `json:"body"`
	Headers    map[string][]string `json:"headers,omitempty"`
}

// Store keeps responses for a while.
type Store interface {
	Get(ctx context.Context, key string) (Response, bool)
	Set(ctx context.Context, key string, resp Response)
}

// MemoryStore is a process-local Store.
type MemoryStore struct {
	cache sync.Map
	ttl   time.Duration
	now   func() time.Time
}

type entry struct {
	resp      Response
	timestamp time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{ttl: ttl, now: time.Now}
}

func (s *MemoryStore) Get(ctx context.Context, key string) (Response, bool) {
	val, ok := s.cache.Load(key)
	if !ok {
		return Response{}, false
	}
	e := val.(entry)
	if s.now().Sub(e.timestamp) > s.ttl {
		s.cache.Delete(key)
		return Response{}, false
	}
	return e.resp, true
}

func (s *MemoryStore) Set(ctx context.Context, key string, resp Response) {
	s.cache.Store(key, entry{
		resp:      resp,
		timestamp: s.now(),
	})
}

// Sweep drops every expired entry and returns how many were removed.
func (s *MemoryStore) Sweep() int {
	now := s.now()
	removed := 0
	s.cache.Range(func(key, val any) bool {
		if now.Sub(val.(entry).timestamp) > s.ttl {
			s.cache.Delete(key)
			removed++
		}
		return true
	})
	return removed
}

// RunSweeper sweeps every interval until ctx ends.
func (s *MemoryStore) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// RedisStore shares responses between monapi instances.
type RedisStore struct {
	client redis.Cmdable
	ttl    time.Duration
	onErr  func(error)
}

// NewRedisStore stores responses under idempotency:<key>. onErr, when set,
// receives lookup and write failures; the request proceeds either way.
func NewRedisStore(client redis.Cmdable, ttl time.Duration, onErr func(error)) *RedisStore {
	if onErr == nil {
		onErr = func(error) {}
	}
	return &RedisStore{client: client, ttl: ttl, onErr: onErr}
}

func (s *RedisStore) Get(ctx context.Context, key string) (Response, bool) {
	data, err := s.client.Get(ctx, "idempotency:"+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Response{}, false
	}
	if err != nil {
		s.onErr(err)
		return Response{}, false
	}
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		s.onErr(err)
		return Response{}, false
	}
	return resp, true
}

func (s *RedisStore) Set(ctx context.Context, key string, resp Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.onErr(err)
		return
	}
	if err := s.client.Set(ctx, "idempotency:"+key, data, s.ttl).Err(); err != nil {
		s.onErr(err)
	}
}
