// Package usecase orchestrates one relay pass: fetch, dedup, route, deliver, report.
package usecase

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"NewsRelay/internal/coordinator"
	"NewsRelay/internal/dedup"
	"NewsRelay/internal/domain"
	"NewsRelay/internal/fetcher"
	"NewsRelay/internal/ports"
	"NewsRelay/internal/retry"
	"NewsRelay/internal/router"
	"NewsRelay/internal/sources"
)

// PipelineDeps wires all driven adapters into the orchestration pipeline.
// Notifier, Extractor and Publisher are optional.
type PipelineDeps struct {
	Registry    *sources.Registry
	Fetcher     ports.SourceFetcher
	Dedup       *dedup.Engine
	Router      *router.Router
	Coordinator *coordinator.Coordinator
	Store       ports.Store
	Sink        ports.DeliverySink
	Notifier    ports.Notifier
	Extractor   ports.ArticleExtractor
	Publisher   ports.PagePublisher
	Logger      *slog.Logger
}

// Options tunes a pass.
type Options struct {
	FetchConcurrency    int
	FreshnessDays       int // negative disables the filter
	DeliveryConcurrency int
	DeliveryTimeout     time.Duration
	DeliveryRetries     int
	DeliveryBackoff     time.Duration
	DeliveryPause       time.Duration
	Clock               func() time.Time
	// Sleep replaces timer waits for the pause between posts and delivery backoff.
	Sleep func(ctx context.Context, d time.Duration) error
}

func (o *Options) defaults() {
	if o.FetchConcurrency <= 0 {
		o.FetchConcurrency = 16
	}
	if o.DeliveryConcurrency <= 0 {
		o.DeliveryConcurrency = 1
	}
	if o.DeliveryTimeout <= 0 {
		o.DeliveryTimeout = 20 * time.Second
	}
	if o.DeliveryRetries < 0 {
		o.DeliveryRetries = 0
	}
	if o.DeliveryBackoff <= 0 {
		o.DeliveryBackoff = 2 * time.Second
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	if o.Sleep == nil {
		o.Sleep = sleep
	}
}

// Pipeline implements the relay workflow.
type Pipeline struct {
	registry    *sources.Registry
	fetcher     ports.SourceFetcher
	dedup       *dedup.Engine
	router      *router.Router
	coordinator *coordinator.Coordinator
	store       ports.Store
	sink        ports.DeliverySink
	notifier    ports.Notifier
	extractor   ports.ArticleExtractor
	publisher   ports.PagePublisher
	policy      retry.Policy
	opts        Options
	logger      *slog.Logger
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps, opts Options) *Pipeline {
	opts.defaults()
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	policy := retry.Policy{
		MaxRetries: opts.DeliveryRetries,
		BaseDelay:  opts.DeliveryBackoff,
		MaxDelay:   30 * time.Second,
		Retryable:  domain.IsRetryableDelivery,
		Logger:     logger,
	}.WithSleep(opts.Sleep)

	return &Pipeline{
		registry:    deps.Registry,
		fetcher:     deps.Fetcher,
		dedup:       deps.Dedup,
		router:      deps.Router,
		coordinator: deps.Coordinator,
		store:       deps.Store,
		sink:        deps.Sink,
		notifier:    deps.Notifier,
		extractor:   deps.Extractor,
		publisher:   deps.Publisher,
		policy:      policy,
		opts:        opts,
		logger:      logger,
	}
}

// Run executes one pass under the coordinator. A scheduled pass whose slot
// is already claimed returns a skipped report and no error. The admin
// report is published after the run record is finalized.
func (p *Pipeline) Run(ctx context.Context, forced bool) (domain.RunReport, error) {
	report, err := p.coordinator.Execute(ctx, forced, p.pass)
	if report.Skipped {
		return report, nil
	}
	p.publishReport(ctx, report, err)
	return report, err
}

type pending struct {
	item   domain.RoutedItem
	record domain.DeliveryRecord
}

func (p *Pipeline) pass(ctx context.Context, run domain.RunRecord) (domain.RunReport, error) {
	log := p.logger.With("run_id", run.ID, "slot", run.Slot)
	report := domain.RunReport{
		Run:           run,
		PerCategory:   map[domain.Category]int{},
		RejectReasons: map[string]int{},
	}

	list := p.registry.All()
	results := fetcher.FetchAll(ctx, p.fetcher, list, p.opts.FetchConcurrency)
	for _, res := range results {
		report.Fetches = append(report.Fetches, res.Outcome)
		report.Candidates += len(res.Items)
		if !res.Outcome.OK() {
			log.Warn("source failed", "source", res.Source.Code, "skipped", res.Outcome.Skipped, "error", res.Outcome.Err)
		}
	}

	session := p.dedup.NewSession(ctx)
	cutoff := p.freshnessCutoff()

	var queue []pending
	for _, res := range results {
		for _, item := range res.Items {
			if !cutoff.IsZero() && item.PublishedOr(cutoff).Before(cutoff) {
				report.Stale++
				continue
			}
			verdict := session.Accept(ctx, item)
			if !verdict.Accepted {
				report.Rejected++
				report.RejectReasons[verdict.Reason]++
				log.Debug("item rejected", "source", item.SourceCode, "title", item.RawTitle,
					"reason", verdict.Reason, "match", verdict.Match, "score", verdict.Score)
				continue
			}

			routed := p.router.Bind(item, res.Source)
			rec, err := session.RecordAttempt(ctx, routed, run.Slot)
			if errors.Is(err, domain.ErrDuplicate) {
				report.Rejected++
				report.RejectReasons[dedup.ReasonPersisted]++
				continue
			}
			report.Accepted++
			queue = append(queue, pending{item: routed, record: rec})
		}
	}
	log.Info("dedup finished",
		"candidates", report.Candidates,
		"stale", report.Stale,
		"rejected", report.Rejected,
		"accepted", report.Accepted,
		"history", session.HistorySize())

	// Queued items are already recorded as attempted; delivery finishes them
	// regardless of ctx.
	dctx := context.WithoutCancel(ctx)
	if ctx.Err() != nil {
		log.Warn("run cancelled, delivering accepted items before stopping", "queued", len(queue))
	}
	p.deliverAll(dctx, log, session, queue, &report)

	report.DedupDegraded = session.Degraded()
	report.OpenBreakers = openBreakers(p.fetcher.Health())
	p.loadTotals(dctx, log, session.Today(), &report)
	return report, nil
}

// freshnessCutoff is midnight FreshnessDays before today in the operating timezone.
func (p *Pipeline) freshnessCutoff() time.Time {
	if p.opts.FreshnessDays < 0 {
		return time.Time{}
	}
	today := p.opts.Clock().In(p.coordinator.Location())
	day := today.AddDate(0, 0, -p.opts.FreshnessDays)
	return time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, today.Location())
}

func (p *Pipeline) deliverAll(ctx context.Context, log *slog.Logger, session *dedup.Session, queue []pending, report *domain.RunReport) {
	if len(queue) == 0 {
		return
	}

	var (
		mu   sync.Mutex
		wg   sync.WaitGroup
		jobs = make(chan pending)
	)
	workers := min(p.opts.DeliveryConcurrency, len(queue))
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			first := true
			for job := range jobs {
				if !first && p.opts.DeliveryPause > 0 {
					_ = p.opts.Sleep(ctx, p.opts.DeliveryPause)
				}
				first = false

				sent := p.deliverOne(ctx, log, session, job)
				mu.Lock()
				if sent {
					report.Sent++
					report.PerCategory[job.item.Category]++
				} else {
					report.Failed++
				}
				mu.Unlock()
			}
		}()
	}
	for _, job := range queue {
		jobs <- job
	}
	close(jobs)
	wg.Wait()
}

// deliverOne posts one item and records the outcome. ctx is detached from
// run cancellation; each sink and enrichment call is bounded by
// DeliveryTimeout instead.
func (p *Pipeline) deliverOne(ctx context.Context, log *slog.Logger, session *dedup.Session, job pending) bool {
	item := job.item
	log = log.With("source", item.Item.SourceCode, "title", item.Item.RawTitle, "category", item.Category)

	item = p.enrich(ctx, log, item)

	var result domain.DeliveryResult
	attempts, err := p.policy.Do(ctx, func(ctx context.Context) error {
		dctx, cancel := context.WithTimeout(ctx, p.opts.DeliveryTimeout)
		defer cancel()
		var derr error
		result, derr = p.sink.Deliver(dctx, item)
		return derr
	})
	if err != nil {
		session.RecordOutcome(ctx, job.record, domain.DeliveryFailed)
		log.Error("delivery failed", "attempts", attempts, "error", err)
		return false
	}

	session.RecordOutcome(ctx, job.record, domain.DeliverySent)
	p.countSent(ctx, log, job.record.PostedDate)
	log.Info("delivered", "message_id", result.MessageID, "with_image", result.WithImage, "attempts", attempts)
	return true
}

// enrich publishes the article as a page when both collaborators are set.
// Failures leave the item unchanged.
func (p *Pipeline) enrich(ctx context.Context, log *slog.Logger, item domain.RoutedItem) domain.RoutedItem {
	if p.extractor == nil || p.publisher == nil || item.Item.CanonicalURL == "" {
		return item
	}
	ectx, cancel := context.WithTimeout(ctx, p.opts.DeliveryTimeout)
	defer cancel()

	content, err := p.extractor.Extract(ectx, item.Item.CanonicalURL, item.Item.SourceCode)
	if err != nil || content.Empty() {
		log.Debug("article extraction skipped", "error", err)
		return item
	}
	pageURL, err := p.publisher.Publish(ectx, item, content)
	if err != nil {
		log.Warn("page publish failed", "error", err)
		return item
	}
	item.PageURL = pageURL
	return item
}

func (p *Pipeline) countSent(ctx context.Context, log *slog.Logger, date string) {
	if p.store == nil {
		return
	}
	for _, key := range []string{"posts:" + date, "posts:all"} {
		if _, err := p.store.IncrementCounter(ctx, key); err != nil {
			log.Warn("counter increment failed", "counter", key, "error", err)
		}
	}
}

func (p *Pipeline) loadTotals(ctx context.Context, log *slog.Logger, today string, report *domain.RunReport) {
	if p.store == nil {
		return
	}
	var err error
	if report.DailyTotal, err = p.store.Counter(ctx, "posts:"+today); err != nil {
		log.Warn("daily total unavailable", "error", err)
	}
	if report.AllTimeTotal, err = p.store.Counter(ctx, "posts:all"); err != nil {
		log.Warn("all-time total unavailable", "error", err)
	}
}

func (p *Pipeline) publishReport(ctx context.Context, report domain.RunReport, runErr error) {
	run := report.Run
	p.logger.Info("run report",
		"run_id", run.ID,
		"status", run.Status,
		"sent", report.Sent,
		"failed", report.Failed,
		"accepted", report.Accepted,
		"source_failures", report.SourceFailures(),
		"open_breakers", report.OpenBreakers,
		"dedup_degraded", report.DedupDegraded)

	if p.notifier == nil {
		return
	}
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.opts.DeliveryTimeout)
	defer cancel()
	if err := p.notifier.PublishReport(nctx, BuildReportMessage(report, runErr, p.coordinator.Location())); err != nil {
		p.logger.Warn("admin report not sent", "error", err)
	}
}

func openBreakers(health []domain.SourceHealth) []string {
	var out []string
	for _, h := range health {
		if h.State != domain.BreakerClosed {
			out = append(out, h.Source)
		}
	}
	return out
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
