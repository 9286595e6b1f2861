// Package dedup decides whether a candidate item was already delivered.
//
// A Session covers one run. Accept applies three checks in order and stops
// at the first match: the exact in-run set, a fuzzy match over the recent
// history window, and a persisted exact lookup. Accepted items are recorded
// as attempted before delivery and updated to sent or failed afterwards, so
// an item whose outcome is unknown is never sent twice.
package dedup

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"NewsRelay/internal/domain"
	"NewsRelay/internal/ports"
)

// Reject reasons reported on a Verdict.
const (
	ReasonEmptyTitle = "empty_title"
	ReasonInRun      = "in_run"
	ReasonFuzzy      = "fuzzy"
	ReasonPersisted  = "persisted"
)

// Config tunes the engine.
type Config struct {
	Threshold         float64
	HistoryDays       int
	ExactLookbackDays int
	Prefixes          []string
}

func (c *Config) defaults() {
	if c.Threshold <= 0 || c.Threshold > 1 {
		c.Threshold = 0.85
	}
	if c.HistoryDays <= 0 {
		c.HistoryDays = 7
	}
	if c.ExactLookbackDays <= 0 {
		c.ExactLookbackDays = 3
	}
}

// Option customizes an Engine.
type Option func(*Engine)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLocation sets the operating timezone used for posted dates.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		if loc != nil {
			e.loc = loc
		}
	}
}

// Engine creates per-run dedup sessions.
type Engine struct {
	store      ports.DeliveryStore
	normalizer *TitleNormalizer
	cfg        Config
	logger     *slog.Logger
	now        func() time.Time
	loc        *time.Location
}

// NewEngine builds an engine over store. A nil store runs every session degraded.
func NewEngine(store ports.DeliveryStore, cfg Config, logger *slog.Logger, opts ...Option) *Engine {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		store:      store,
		normalizer: NewTitleNormalizer(cfg.Prefixes),
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
		loc:        time.UTC,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Normalize returns the dedup key for a raw title.
func (e *Engine) Normalize(title string) string {
	return e.normalizer.Normalize(title)
}

// Verdict is the outcome of Accept.
type Verdict struct {
	Accepted bool
	Reason   string
	// Match is the history title that triggered a fuzzy rejection.
	Match string
	Score float64
}

// Session holds the dedup state of one run.
type Session struct {
	engine *Engine
	today  time.Time

	mu       sync.Mutex
	inRun    map[string]struct{}
	history  []string
	known    map[string]struct{}
	degraded bool
}

// NewSession loads the history window once. A store failure leaves the
// session degraded to the in-memory checks.
func (e *Engine) NewSession(ctx context.Context) *Session {
	s := &Session{
		engine: e,
		today:  e.now().In(e.loc),
		inRun:  map[string]struct{}{},
		known:  map[string]struct{}{},
	}
	if e.store == nil {
		s.degraded = true
		return s
	}

	window := domain.DaysBack(s.today, e.cfg.HistoryDays)
	records, err := e.store.LoadRecentTitles(ctx, window)
	if err != nil {
		s.degraded = true
		e.logger.Warn("dedup history unavailable, running degraded", "from", window.From, "to", window.To, "error", err)
		return s
	}
	for _, rec := range records {
		s.remember(rec.NormalizedTitle)
		if rec.FullTitle != "" {
			s.remember(e.normalizer.Normalize(rec.FullTitle))
		}
	}
	e.logger.Debug("dedup history loaded", "titles", len(s.history), "from", window.From, "to", window.To)
	return s
}

func (s *Session) remember(title string) {
	if title == "" {
		return
	}
	if _, ok := s.known[title]; ok {
		return
	}
	s.known[title] = struct{}{}
	s.history = append(s.history, title)
}

// Today is the posted date the session records deliveries under.
func (s *Session) Today() string {
	return s.today.Format(domain.DateLayout)
}

// Degraded reports whether any store interaction failed during the session.
func (s *Session) Degraded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.degraded
}

// HistorySize is the number of distinct titles checked by the fuzzy pass.
func (s *Session) HistorySize() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.history)
}

func (s *Session) markDegraded(op string, err error) {
	s.mu.Lock()
	first := !s.degraded
	s.degraded = true
	s.mu.Unlock()
	if first {
		s.engine.logger.Warn("dedup store unavailable, running degraded", "op", op, "error", err)
	} else {
		s.engine.logger.Debug("dedup store call failed", "op", op, "error", err)
	}
}

// Accept decides whether item should be published. item.NormalizedTitle is
// computed from RawTitle when empty. An accepted title joins the in-run set
// immediately.
func (s *Session) Accept(ctx context.Context, item domain.CandidateItem) Verdict {
	title := item.NormalizedTitle
	if title == "" {
		title = s.engine.normalizer.Normalize(item.RawTitle)
	}
	if title == "" {
		return Verdict{Reason: ReasonEmptyTitle}
	}

	s.mu.Lock()
	if _, seen := s.inRun[title]; seen {
		s.mu.Unlock()
		return Verdict{Reason: ReasonInRun, Match: title, Score: 1}
	}
	for _, prior := range s.history {
		if score := Ratio(title, prior); score >= s.engine.cfg.Threshold {
			s.mu.Unlock()
			return Verdict{Reason: ReasonFuzzy, Match: prior, Score: score}
		}
	}
	degraded := s.degraded
	s.mu.Unlock()

	if !degraded {
		window := domain.DaysBack(s.today, s.engine.cfg.ExactLookbackDays)
		exists, err := s.engine.store.ExistsExact(ctx, title, window)
		switch {
		case err != nil:
			s.markDegraded("exists_exact", err)
		case exists:
			return Verdict{Reason: ReasonPersisted, Match: title, Score: 1}
		}
	}

	s.mu.Lock()
	s.inRun[title] = struct{}{}
	s.remember(title)
	s.mu.Unlock()
	return Verdict{Accepted: true}
}

// RecordAttempt durably marks an accepted item as attempted before it is
// handed to delivery. It returns domain.ErrDuplicate when the store already
// holds the title for today; the caller must then drop the item. Any other
// store failure degrades the session and the returned record is still usable.
func (s *Session) RecordAttempt(ctx context.Context, item domain.RoutedItem, slot int) (domain.DeliveryRecord, error) {
	title := item.Item.NormalizedTitle
	if title == "" {
		title = s.engine.normalizer.Normalize(item.Item.RawTitle)
	}
	rec := domain.DeliveryRecord{
		ID:              uuid.NewString(),
		NormalizedTitle: title,
		FullTitle:       item.Item.RawTitle,
		SourceCode:      item.Item.SourceCode,
		PostedDate:      s.Today(),
		PostedAt:        s.engine.now(),
		Status:          domain.DeliveryAttempted,
		ChannelCategory: item.Category,
		ArticleURL:      item.Item.CanonicalURL,
		Slot:            slot,
	}
	if s.engine.store == nil {
		return rec, nil
	}

	err := s.engine.store.InsertDelivery(ctx, rec)
	switch {
	case err == nil:
		return rec, nil
	case errors.Is(err, domain.ErrDuplicate):
		return rec, domain.ErrDuplicate
	default:
		s.markDegraded("insert_delivery", err)
		return rec, nil
	}
}

// RecordOutcome moves an attempted record to sent or failed. Store failures
// degrade the session and are otherwise swallowed.
func (s *Session) RecordOutcome(ctx context.Context, rec domain.DeliveryRecord, status domain.DeliveryStatus) {
	if s.engine.store == nil {
		return
	}
	if err := s.engine.store.UpdateDeliveryStatus(ctx, rec.NormalizedTitle, rec.PostedDate, status); err != nil {
		s.markDegraded("update_delivery_status", err)
	}
}
