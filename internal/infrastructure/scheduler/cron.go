// Package scheduler triggers pipeline passes on slot boundaries.
package scheduler

import (
	"context"
	"sync"
	"time"

	"NewsRelay/internal/coordinator"
	"NewsRelay/internal/ports"
)

// Option customizes a SlotScheduler.
type Option func(*SlotScheduler)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *SlotScheduler) { s.now = now }
}

// WithTimer overrides time.After.
func WithTimer(after func(time.Duration) <-chan time.Time) Option {
	return func(s *SlotScheduler) { s.after = after }
}

// WithRunOnStart fires the job once immediately after Start.
func WithRunOnStart(on bool) Option {
	return func(s *SlotScheduler) { s.runOnStart = on }
}

// SlotScheduler fires the job at every slot boundary in the operating
// timezone. Jobs run on the scheduler goroutine, so passes never overlap.
type SlotScheduler struct {
	loc           *time.Location
	intervalHours int
	runOnStart    bool
	now           func() time.Time
	after         func(time.Duration) <-chan time.Time

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

var _ ports.Scheduler = (*SlotScheduler)(nil)

// NewSlotScheduler builds a scheduler for the given slot width.
func NewSlotScheduler(loc *time.Location, intervalHours int, opts ...Option) *SlotScheduler {
	s := &SlotScheduler{
		loc:           loc,
		intervalHours: intervalHours,
		now:           time.Now,
		after:         time.After,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins the slot loop. Calling Start twice is a no-op.
func (s *SlotScheduler) Start(ctx context.Context, job func(time.Time)) error {
	if job == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		return nil
	}
	s.stop = make(chan struct{})
	s.done = make(chan struct{})

	go s.loop(ctx, job, s.stop, s.done)
	return nil
}

func (s *SlotScheduler) loop(ctx context.Context, job func(time.Time), stop, done chan struct{}) {
	defer close(done)

	if s.runOnStart {
		job(s.now())
	}
	for {
		now := s.now()
		next := coordinator.NextSlotStart(now, s.loc, s.intervalHours)
		select {
		case <-s.after(next.Sub(now)):
			job(next)
		case <-ctx.Done():
			return
		case <-stop:
			return
		}
	}
}

// Stop halts the loop and waits for an in-flight job to return, bounded by ctx.
func (s *SlotScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	stop, done := s.stop, s.done
	s.stop, s.done = nil, nil
	s.mu.Unlock()

	if stop == nil {
		return nil
	}
	close(stop)

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
