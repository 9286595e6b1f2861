package fetcher

import (
	"sort"
	"sync"
	"time"

	"NewsRelay/internal/domain"
)

// Breakers tracks per-source circuit state. It owns the SourceHealth map;
// workers share one *Breakers and every access goes through mu.
type Breakers struct {
	mu        sync.Mutex
	threshold int
	cooldown  time.Duration
	now       func() time.Time
	sources   map[string]*sourceState
}

type sourceState struct {
	health        domain.SourceHealth
	trialInFlight bool
}

// BreakerOption configures Breakers.
type BreakerOption func(*Breakers)

// WithThreshold sets the consecutive failures that open a breaker.
func WithThreshold(n int) BreakerOption {
	return func(b *Breakers) {
		if n > 0 {
			b.threshold = n
		}
	}
}

// WithCooldown sets how long a breaker stays open before allowing a trial call.
func WithCooldown(d time.Duration) BreakerOption {
	return func(b *Breakers) {
		if d > 0 {
			b.cooldown = d
		}
	}
}

// WithClock sets a custom clock function (for testing).
func WithClock(fn func() time.Time) BreakerOption {
	return func(b *Breakers) { b.now = fn }
}

// NewBreakers creates a registry with defaults of 3 failures and a 5 minute cooldown.
func NewBreakers(opts ...BreakerOption) *Breakers {
	b := &Breakers{
		threshold: 3,
		cooldown:  5 * time.Minute,
		now:       time.Now,
		sources:   map[string]*sourceState{},
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Allow reports whether a call for source may go to the network.
// In half-open exactly one caller gets true until the trial is recorded.
func (b *Breakers) Allow(source string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	st, ok := b.sources[source]
	if !ok {
		return true
	}
	b.maybeHalfOpen(st)

	switch st.health.State {
	case domain.BreakerOpen:
		return false
	case domain.BreakerHalfOpen:
		if st.trialInFlight {
			return false
		}
		st.trialInFlight = true
		return true
	default:
		return true
	}
}

// RecordSuccess closes the breaker and clears the failure streak.
func (b *Breakers) RecordSuccess(source string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	st, ok := b.sources[source]
	if !ok {
		return
	}
	st.health.State = domain.BreakerClosed
	st.health.ConsecutiveFailures = 0
	st.health.OpenedAt = time.Time{}
	st.health.LastError = ""
	st.health.LastSuccess = b.now()
	st.trialInFlight = false
}

// RecordFailure counts a final failure (after retries) for source.
func (b *Breakers) RecordFailure(source string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	st := b.state(source)
	st.health.ConsecutiveFailures++
	if err != nil {
		st.health.LastError = err.Error()
	}

	switch st.health.State {
	case domain.BreakerHalfOpen:
		st.health.State = domain.BreakerOpen
		st.health.OpenedAt = b.now()
		st.trialInFlight = false
	case domain.BreakerClosed:
		if st.health.ConsecutiveFailures >= b.threshold {
			st.health.State = domain.BreakerOpen
			st.health.OpenedAt = b.now()
		}
	}
}

// State returns the current state for source.
func (b *Breakers) State(source string) domain.BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()

	st, ok := b.sources[source]
	if !ok {
		return domain.BreakerClosed
	}
	b.maybeHalfOpen(st)
	return st.health.State
}

// Reset forces source back to closed.
func (b *Breakers) Reset(source string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.sources, source)
}

// Snapshot returns a copy of every tracked source, sorted by code.
func (b *Breakers) Snapshot() []domain.SourceHealth {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]domain.SourceHealth, 0, len(b.sources))
	for _, st := range b.sources {
		b.maybeHalfOpen(st)
		out = append(out, st.health)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Source < out[j].Source })
	return out
}

// state returns the entry for source, creating it closed. Must be called with mu held.
func (b *Breakers) state(source string) *sourceState {
	st, ok := b.sources[source]
	if !ok {
		st = &sourceState{health: domain.SourceHealth{Source: source, State: domain.BreakerClosed}}
		b.sources[source] = st
	}
	return st
}

// maybeHalfOpen moves an open breaker to half-open once the cooldown has
// elapsed since OpenedAt. Must be called with mu held.
func (b *Breakers) maybeHalfOpen(st *sourceState) {
	if st.health.State == domain.BreakerOpen && b.now().Sub(st.health.OpenedAt) >= b.cooldown {
		st.health.State = domain.BreakerHalfOpen
		st.trialInFlight = false
	}
}
