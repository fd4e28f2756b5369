package idempotency

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMiddleware_Replays(t *testing.T) {
	calls := 0
	h := Middleware(NewMemoryStore(time.Hour))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"dat":1}`))
	}))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/screens/1/subclass", strings.NewReader(`{}`))
		req.Header.Set(Header, "k1")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, `{"dat":1}`, rec.Body.String())
	}
	assert.Equal(t, 1, calls)

	req := httptest.NewRequest(http.MethodPost, "/api/screens/2/subclass", nil)
	req.Header.Set(Header, "k1")
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, 2, calls, "keys are scoped to the path")
}

func TestMiddleware_FailuresAreNotStored(t *testing.T) {
	calls := 0
	h := Middleware(NewMemoryStore(time.Hour))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "boom", http.StatusInternalServerError)
	}))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/collects", nil)
		req.Header.Set(Header, "k")
		h.ServeHTTP(httptest.NewRecorder(), req)
	}
	assert.Equal(t, 2, calls)
}

func TestMemoryStore_Expires(t *testing.T) {
	now := time.Now()
	s := NewMemoryStore(time.Minute)
	s.now = func() time.Time { return now }

	s.Set(context.Background(), "k", Response{StatusCode: 200})
	_, ok := s.Get(context.Background(), "k")
	assert.True(t, ok)

	now = now.Add(2 * time.Minute)
	_, ok = s.Get(context.Background(), "k")
	assert.False(t, ok)
}

func TestMemoryStore_Sweep(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	now := time.Unix(1700000000, 0)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	s.Set(ctx, "old", Response{StatusCode: 200})
	now = now.Add(30 * time.Second)
	s.Set(ctx, "new", Response{StatusCode: 200})

	now = now.Add(45 * time.Second)
	assert.Equal(t, 1, s.Sweep())
	_, ok := s.cache.Load("old")
	assert.False(t, ok)
	_, ok = s.Get(ctx, "new")
	assert.True(t, ok)
}

func TestMemoryStore_RunSweeperStops(t *testing.T) {
	s := NewMemoryStore(time.Nanosecond)
	s.Set(context.Background(), "k", Response{StatusCode: 200})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.RunSweeper(ctx, time.Millisecond)
		close(done)
	}()
	assert.Eventually(t, func() bool {
		_, ok := s.cache.Load("k")
		return !ok
	}, time.Second, time.Millisecond)
	cancel()
	<-done
}
