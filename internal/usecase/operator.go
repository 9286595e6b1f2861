package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"NewsRelay/internal/domain"
)

const (
	recentRunsLimit = 10
	deliveryWindow  = 7
)

// Health is the operator view of the relay.
type Health struct {
	Status           string                `json:"status"` // ok or degraded
	Sources          []domain.SourceHealth `json:"sources"`
	RecentRuns       []domain.RunRecord    `json:"recent_runs"`
	StaleRuns        []domain.RunRecord    `json:"stale_runs,omitempty"`
	FailedDeliveries int                   `json:"failed_deliveries"`
	StuckAttempted   int                   `json:"stuck_attempted"`
	StoreError       string                `json:"store_error,omitempty"`
}

// Health reports breaker states, recent runs and delivery records needing
// attention. Runs still marked running long after their slot are listed as
// stale and left untouched.
func (p *Pipeline) Health(ctx context.Context) Health {
	h := Health{Status: "ok", Sources: p.fetcher.Health()}
	for _, s := range h.Sources {
		if s.State != domain.BreakerClosed {
			h.Status = "degraded"
		}
	}

	var storeErrs []error
	runs, err := p.store.RecentRuns(ctx, recentRunsLimit)
	if err != nil {
		storeErrs = append(storeErrs, err)
	} else {
		h.RecentRuns = runs
		h.StaleRuns = p.coordinator.Stale(runs)
	}

	now := p.opts.Clock()
	dates := p.recentDates()
	failed, err := p.store.ListDeliveries(ctx, domain.DeliveryFailed, dates)
	if err != nil {
		storeErrs = append(storeErrs, err)
	}
	h.FailedDeliveries = len(failed)

	attempted, err := p.store.ListDeliveries(ctx, domain.DeliveryAttempted, dates)
	if err != nil {
		storeErrs = append(storeErrs, err)
	}
	stuckAfter := time.Duration(p.coordinator.IntervalHours()) * time.Hour
	for _, rec := range attempted {
		if now.Sub(rec.PostedAt) > stuckAfter {
			h.StuckAttempted++
		}
	}

	if len(h.StaleRuns) > 0 || h.StuckAttempted > 0 {
		h.Status = "degraded"
	}
	if len(storeErrs) > 0 {
		h.Status = "degraded"
		h.StoreError = errors.Join(storeErrs...).Error()
	}
	return h
}

// FailedDeliveries lists failed records of the last week.
func (p *Pipeline) FailedDeliveries(ctx context.Context) ([]domain.DeliveryRecord, error) {
	return p.store.ListDeliveries(ctx, domain.DeliveryFailed, p.recentDates())
}

// Requeue deletes a failed delivery record so a later run may resend the
// story. Only failed records are removed. title is normalized the way the
// dedup engine keys records.
func (p *Pipeline) Requeue(ctx context.Context, title, date string) (bool, error) {
	key := p.dedup.Normalize(title)
	if key == "" {
		return false, errors.New("requeue: empty title")
	}
	if _, err := time.Parse(domain.DateLayout, strings.TrimSpace(date)); err != nil {
		return false, fmt.Errorf("requeue: date %q: %w", date, err)
	}
	removed, err := p.store.RequeueDelivery(ctx, key, strings.TrimSpace(date))
	if err != nil {
		return false, fmt.Errorf("requeue: %w", err)
	}
	p.logger.Info("requeue", "title", key, "date", date, "removed", removed)
	return removed, nil
}

func (p *Pipeline) recentDates() domain.DateRange {
	return domain.DaysBack(p.opts.Clock().In(p.coordinator.Location()), deliveryWindow)
}
