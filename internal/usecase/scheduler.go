package usecase

import (
	"context"
	"log/slog"
	"time"

	"NewsRelay/internal/ports"
)

// Scheduler wires the slot driver with the pipeline use case.
type Scheduler struct {
	driver   ports.Scheduler
	pipeline *Pipeline
	logger   *slog.Logger
}

// NewScheduler returns a helper to start/stop recurring passes.
func NewScheduler(driver ports.Scheduler, pipeline *Pipeline, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{driver: driver, pipeline: pipeline, logger: logger}
}

// Start registers the pipeline with the provided scheduler. Each trigger
// runs a scheduled (non-forced) pass; a doubled trigger for one slot is
// absorbed by the slot claim.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.pipeline == nil {
		return nil
	}

	job := func(trigger time.Time) {
		report, err := s.pipeline.Run(ctx, false)
		switch {
		case err != nil:
			s.logger.Error("scheduled run failed", "trigger", trigger, "error", err)
		case report.Skipped:
			s.logger.Info("scheduled run skipped, slot already claimed", "trigger", trigger)
		}
	}

	return s.driver.Start(ctx, job)
}

// Stop gracefully tears down the underlying scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	return s.driver.Stop(ctx)
}
