package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/itskum47/monforge/monapi/observability"
)

// ErrQueueUnavailable is returned while the breaker rejects pushes.
var ErrQueueUnavailable = errors.New("notify queue unavailable")

// BreakerState is the state of a BreakerQueue.
type BreakerState int

const (
	BreakerClosed   BreakerState = iota // pushes pass through
	BreakerHalfOpen                     // one trial push at a time
	BreakerOpen                         // pushes fail fast
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerHalfOpen:
		return "half_open"
	case BreakerOpen:
		return "open"
	default:
		return "unknown"
	}
}

// BreakerQueue stops hammering an unreachable queue. After failures
// consecutive push errors it opens and rejects pushes until cooldown has
// passed. The first push after that is a trial: success closes the
// breaker, failure opens it again.
type BreakerQueue struct {
	next     Queue
	failures int
	cooldown time.Duration
	now      func() time.Time

	mu       sync.Mutex
	state    BreakerState
	streak   int
	openedAt time.Time
	trial    bool
}

// NewBreakerQueue wraps next. failures <= 0 disables the breaker.
func NewBreakerQueue(next Queue, failures int, cooldown time.Duration) *BreakerQueue {
	return &BreakerQueue{
		next:     next,
		failures: failures,
		cooldown: cooldown,
		now:      time.Now,
	}
}

func (b *BreakerQueue) Push(ctx context.Context, msg Message) error {
	if !b.admit() {
		return ErrQueueUnavailable
	}
	err := b.next.Push(ctx, msg)
	b.record(err)
	return err
}

// State returns the current breaker state.
func (b *BreakerQueue) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *BreakerQueue) admit() bool {
	if b.failures <= 0 {
		return true
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == BreakerOpen && b.now().Sub(b.openedAt) >= b.cooldown {
		b.setState(BreakerHalfOpen)
	}
	switch b.state {
	case BreakerOpen:
		return false
	case BreakerHalfOpen:
		if b.trial {
			return false
		}
		b.trial = true
	}
	return true
}

func (b *BreakerQueue) record(err error) {
	if b.failures <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		b.streak = 0
		b.trial = false
		b.setState(BreakerClosed)
		return
	}
	b.streak++
	if b.state == BreakerHalfOpen || b.streak >= b.failures {
		b.trial = false
		b.openedAt = b.now()
		b.setState(BreakerOpen)
	}
}

func (b *BreakerQueue) setState(s BreakerState) {
	b.state = s
	observability.NotifyBreakerState.Set(float64(s))
}
