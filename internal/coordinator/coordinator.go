// Package coordinator makes each scheduled pass idempotent per slot and
// guarantees that every claimed run reaches a terminal state.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"NewsRelay/internal/domain"
	"NewsRelay/internal/ports"
)

// Work is one pipeline pass executed under a claimed run.
type Work func(ctx context.Context, run domain.RunRecord) (domain.RunReport, error)

// Option customizes a Coordinator.
type Option func(*Coordinator)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// WithFinalizeTimeout bounds the final run update.
func WithFinalizeTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.finalizeTimeout = d
		}
	}
}

// Coordinator claims slots and finalizes runs.
type Coordinator struct {
	store           ports.RunStore
	loc             *time.Location
	intervalHours   int
	now             func() time.Time
	finalizeTimeout time.Duration
	logger          *slog.Logger
}

// New builds a coordinator. intervalHours is the slot width.
func New(store ports.RunStore, loc *time.Location, intervalHours int, logger *slog.Logger, opts ...Option) *Coordinator {
	if loc == nil {
		loc = time.UTC
	}
	if intervalHours < 1 {
		intervalHours = 2
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &Coordinator{
		store:           store,
		loc:             loc,
		intervalHours:   intervalHours,
		now:             time.Now,
		finalizeTimeout: 15 * time.Second,
		logger:          logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IntervalHours is the slot width.
func (c *Coordinator) IntervalHours() int {
	return c.intervalHours
}

// Location is the operating timezone.
func (c *Coordinator) Location() *time.Location {
	return c.loc
}

// CurrentSlot is the slot containing the current time.
func (c *Coordinator) CurrentSlot() Slot {
	return SlotAt(c.now(), c.loc, c.intervalHours)
}

// Execute claims the current slot and runs work under it. A scheduled run
// whose slot is already claimed returns a report with Skipped set and no
// error. Forced runs never conflict. The run record is finalized on every
// exit path, including a panic inside work, which is converted to a failed
// run and reported as an error.
func (c *Coordinator) Execute(ctx context.Context, forced bool, work Work) (report domain.RunReport, err error) {
	started := c.now()
	slot := SlotAt(started, c.loc, c.intervalHours)
	run := domain.RunRecord{
		ID:          uuid.NewString(),
		Date:        slot.Date,
		Slot:        slot.Index,
		Forced:      forced,
		ScheduledAt: slot.Start,
		StartedAt:   started,
		Status:      domain.RunRunning,
	}
	log := c.logger.With("run_id", run.ID, "date", run.Date, "slot", run.Slot, "forced", forced)

	persisted := true
	claimed, claimErr := c.store.CreateRunIfAbsent(ctx, run)
	switch {
	case claimErr == nil:
		run = claimed
	case errors.Is(claimErr, domain.ErrSlotClaimed):
		log.Info("slot already claimed, skipping run")
		return domain.RunReport{Run: run, Skipped: true}, nil
	default:
		// Without a run record the pass still runs; its status cannot be success.
		persisted = false
		log.Warn("run record not created, continuing unrecorded", "error", claimErr)
	}
	log.Info("run started")

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("run panicked: %v", r)
			log.Error("run panicked", "panic", r)
		}
		report.Run = c.finalize(ctx, log, run, report, err, persisted)
	}()

	report, err = work(ctx, run)
	return report, err
}

func (c *Coordinator) finalize(ctx context.Context, log *slog.Logger, run domain.RunRecord, report domain.RunReport, runErr error, persisted bool) domain.RunRecord {
	finished := c.now()
	run.FinishedAt = &finished
	run.PostsSent = report.Sent
	run.SourceCounts = report.SourceCounts()
	run.Status = Status(report, runErr)
	if !persisted && run.Status == domain.RunSuccess {
		run.Status = domain.RunPartial
	}
	if runErr != nil {
		run.Error = runErr.Error()
	} else if n := report.SourceFailures(); n > 0 {
		run.Error = fmt.Sprintf("%d of %d sources failed", n, len(report.Fetches))
	}

	if persisted {
		// Finalization must survive a cancelled run context.
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.finalizeTimeout)
		defer cancel()
		if err := c.store.UpdateRun(fctx, run); err != nil {
			log.Error("run finalization failed", "status", run.Status, "error", err)
		}
	}

	log.Info("run finished",
		"status", run.Status,
		"posts_sent", run.PostsSent,
		"duration", finished.Sub(run.StartedAt).Round(time.Millisecond))
	return run
}

// Status derives the terminal state of a run:
// failed when work returned an error, no source was fetched at all, every
// source failed, or every attempted delivery failed; partial when some source
// or delivery failed or dedup ran degraded; success otherwise.
func Status(report domain.RunReport, runErr error) domain.RunStatus {
	failures := report.SourceFailures()
	switch {
	case runErr != nil:
		return domain.RunFailed
	case len(report.Fetches) == 0:
		return domain.RunFailed
	case failures == len(report.Fetches):
		return domain.RunFailed
	case report.Accepted > 0 && report.Sent == 0:
		return domain.RunFailed
	case failures > 0, report.Failed > 0, report.DedupDegraded:
		return domain.RunPartial
	default:
		return domain.RunSuccess
	}
}

// Stale returns the runs still marked running whose start is older than
// twice the slot interval. They are reported, never repaired.
func (c *Coordinator) Stale(runs []domain.RunRecord) []domain.RunRecord {
	cutoff := c.now().Add(-2 * time.Duration(c.intervalHours) * time.Hour)
	var out []domain.RunRecord
	for _, r := range runs {
		if r.Status == domain.RunRunning && r.StartedAt.Before(cutoff) {
			out = append(out, r)
		}
	}
	return out
}
