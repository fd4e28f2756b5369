package refresh

import (
	"context"
	"sync"
	"time"
)

// Loop drives a Countdown from a single goroutine. After every step the timer
// is re-armed, so there is never more than one pending callback and a slow
// onTick delays the next step instead of overlapping with it.
//
// Callbacks run on the loop goroutine and must not call Stop.
type Loop struct {
	// Step is the wait between two countdown steps. Defaults to one second.
	Step time.Duration
	// Now supplies the anchor handed to onTick. Defaults to time.Now.
	Now func() time.Time

	mu        sync.Mutex
	countdown *Countdown
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewLoop returns a stopped loop whose countdown starts at max.
func NewLoop(max int) *Loop {
	return &Loop{
		Step:      time.Second,
		Now:       time.Now,
		countdown: NewCountdown(max),
	}
}

// Start begins counting down. onTick receives the new anchor whenever the
// countdown fires; onCount, if set, receives the visible counter after every
// step. Calling Start on a running loop does nothing.
func (l *Loop) Start(ctx context.Context, onTick func(anchor time.Time), onCount func(remaining int)) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	l.cancel = cancel
	l.done = done

	go l.run(ctx, done, onTick, onCount)
}

// Stop cancels the pending step and waits for the loop goroutine to exit.
// The countdown goes back to its maximum so the next Start is a fresh cycle.
// Stop is idempotent.
func (l *Loop) Stop() {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.cancel, l.done = nil, nil
	l.countdown.Reset()
	l.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether a cycle is active.
func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cancel != nil
}

// Remaining is the current visible counter.
func (l *Loop) Remaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.countdown.Remaining()
}

func (l *Loop) run(ctx context.Context, done chan struct{}, onTick func(time.Time), onCount func(int)) {
	defer func() {
		l.mu.Lock()
		// Parent context ended without Stop.
		if l.done == done {
			l.cancel()
			l.cancel, l.done = nil, nil
			l.countdown.Reset()
		}
		l.mu.Unlock()
		close(done)
	}()

	timer := time.NewTimer(l.step())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		fire, remaining := l.tick()
		if fire && onTick != nil {
			onTick(l.now())
		}
		if onCount != nil {
			onCount(remaining)
		}

		timer.Reset(l.step())
	}
}

func (l *Loop) tick() (bool, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fire := l.countdown.Tick()
	return fire, l.countdown.Remaining()
}

func (l *Loop) step() time.Duration {
	if l.Step <= 0 {
		return time.Second
	}
	return l.Step
}

func (l *Loop) now() time.Time {
	if l.Now == nil {
		return time.Now()
	}
	return l.Now()
}
