package fetcher

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"NewsRelay/internal/domain"
	"NewsRelay/internal/retry"
)

type scriptedTransport struct {
	mu     sync.Mutex
	calls  map[string]int
	errs   map[string][]error // consumed in order; nil entry means success
	panics map[string]bool
}

func newScriptedTransport() *scriptedTransport {
	return &scriptedTransport{calls: map[string]int{}, errs: map[string][]error{}, panics: map[string]bool{}}
}

func (s *scriptedTransport) Get(_ context.Context, url string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[url]++
	if s.panics[url] {
		panic("transport exploded")
	}
	if queue := s.errs[url]; len(queue) > 0 {
		err := queue[0]
		s.errs[url] = queue[1:]
		if err != nil {
			return nil, err
		}
	}
	return []byte(url), nil
}

func (s *scriptedTransport) Calls(url string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[url]
}

type echoNormalizer struct {
	failFor string
}

func (n echoNormalizer) Normalize(raw []byte, src domain.Source) ([]domain.CandidateItem, error) {
	if n.failFor != "" && src.Code == n.failFor {
		return nil, errors.New("bad xml")
	}
	return []domain.CandidateItem{{SourceCode: src.Code, RawTitle: string(raw)}}, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func instantPolicy(maxRetries int) retry.Policy {
	return retry.Policy{MaxRetries: maxRetries, BaseDelay: time.Millisecond}.
		WithSleep(func(context.Context, time.Duration) error { return nil })
}

func transient(code int) error {
	return &domain.FetchError{Transient: true, StatusCode: code}
}

func permanent(code int) error {
	return &domain.FetchError{Transient: false, StatusCode: code}
}

func TestFetcher_RetriesTransientFailures(t *testing.T) {
	t.Parallel()

	tr := newScriptedTransport()
	tr.errs["u1"] = []error{transient(503), transient(429), nil}
	f := New(tr, echoNormalizer{}, NewBreakers(), Config{}, quietLogger()).WithPolicy(instantPolicy(3))

	items, err := f.Fetch(context.Background(), domain.Source{Code: "A", FeedURL: "u1"})

	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, 3, tr.Calls("u1"))
	assert.Empty(t, f.Health(), "retries that end in success do not touch the breaker")
}

func TestFetcher_PermanentFailureNotRetried(t *testing.T) {
	t.Parallel()

	tr := newScriptedTransport()
	tr.errs["u1"] = []error{permanent(404)}
	f := New(tr, echoNormalizer{}, NewBreakers(), Config{}, quietLogger()).WithPolicy(instantPolicy(3))

	_, err := f.Fetch(context.Background(), domain.Source{Code: "A", FeedURL: "u1"})

	var fe *domain.FetchError
	require.ErrorAs(t, err, &fe)
	assert.False(t, fe.Transient)
	assert.Equal(t, "A", fe.Source)
	assert.Equal(t, 1, tr.Calls("u1"))
	require.Len(t, f.Health(), 1)
	assert.Equal(t, 1, f.Health()[0].ConsecutiveFailures)
}

func TestFetcher_BreakerTripAndRecovery(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	breakers := NewBreakers(WithThreshold(3), WithCooldown(5*time.Minute), WithClock(clock.Now))
	tr := newScriptedTransport()
	tr.errs["u1"] = []error{permanent(500), permanent(500), permanent(500)}
	f := New(tr, echoNormalizer{}, breakers, Config{}, quietLogger()).WithPolicy(instantPolicy(0))
	src := domain.Source{Code: "X", FeedURL: "u1"}

	for i := 0; i < 3; i++ {
		_, err := f.Fetch(context.Background(), src)
		require.Error(t, err)
	}
	assert.Equal(t, domain.BreakerOpen, breakers.State("X"))
	assert.Equal(t, 3, tr.Calls("u1"))

	_, err := f.Fetch(context.Background(), src)
	var open *domain.BreakerOpenError
	require.ErrorAs(t, err, &open)
	assert.Equal(t, 3, tr.Calls("u1"), "no network call while open")

	clock.Advance(5 * time.Minute)
	items, err := f.Fetch(context.Background(), src)
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, 4, tr.Calls("u1"), "exactly one trial call")
	assert.Equal(t, domain.BreakerClosed, breakers.State("X"))
}

func TestFetcher_PanicDuringTrialReopensBreaker(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	breakers := NewBreakers(WithThreshold(3), WithCooldown(5*time.Minute), WithClock(clock.Now))
	tr := newScriptedTransport()
	tr.errs["u1"] = []error{permanent(500), permanent(500), permanent(500)}
	f := New(tr, echoNormalizer{}, breakers, Config{}, quietLogger()).WithPolicy(instantPolicy(0))
	src := domain.Source{Code: "X", FeedURL: "u1"}

	for i := 0; i < 3; i++ {
		_, err := f.Fetch(context.Background(), src)
		require.Error(t, err)
	}
	require.Equal(t, domain.BreakerOpen, breakers.State("X"))

	clock.Advance(5 * time.Minute)
	tr.mu.Lock()
	tr.panics["u1"] = true
	tr.mu.Unlock()

	var items []domain.CandidateItem
	var err error
	require.NotPanics(t, func() { items, err = f.Fetch(context.Background(), src) })
	assert.Nil(t, items)
	var fe *domain.FetchError
	require.ErrorAs(t, err, &fe)
	assert.False(t, fe.Transient)
	assert.Contains(t, err.Error(), "transport exploded")
	assert.Equal(t, domain.BreakerOpen, breakers.State("X"), "failed trial reopens the breaker")
	assert.False(t, breakers.Allow("X"))

	tr.mu.Lock()
	tr.panics["u1"] = false
	tr.mu.Unlock()
	clock.Advance(5 * time.Minute)
	items, err = f.Fetch(context.Background(), src)
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, domain.BreakerClosed, breakers.State("X"))
}

func TestFetcher_UnreadableFeedIsFailure(t *testing.T) {
	t.Parallel()

	tr := newScriptedTransport()
	f := New(tr, echoNormalizer{failFor: "A"}, NewBreakers(), Config{}, quietLogger()).WithPolicy(instantPolicy(3))

	_, err := f.Fetch(context.Background(), domain.Source{Code: "A", FeedURL: "u1"})

	var fe *domain.FetchError
	require.ErrorAs(t, err, &fe)
	assert.False(t, fe.Transient)
	assert.Equal(t, 1, tr.Calls("u1"), "parse errors are not retried")
	require.Len(t, f.Health(), 1)
	assert.Equal(t, "A", f.Health()[0].Source)
}

func TestFetchAll_IsolatesFailures(t *testing.T) {
	t.Parallel()

	tr := newScriptedTransport()
	tr.errs["x"] = []error{permanent(404)}
	tr.panics["boom"] = true
	f := New(tr, echoNormalizer{}, NewBreakers(), Config{}, quietLogger()).WithPolicy(instantPolicy(0))

	sources := []domain.Source{
		{Code: "X", FeedURL: "x"},
		{Code: "Y", FeedURL: "y"},
		{Code: "P", FeedURL: "boom"},
		{Code: "Z", FeedURL: "z"},
	}
	results := FetchAll(context.Background(), f, sources, 2)

	require.Len(t, results, 4)
	assert.Equal(t, "X", results[0].Source.Code)
	assert.False(t, results[0].Outcome.OK())
	assert.True(t, results[1].Outcome.OK())
	assert.Equal(t, 1, results[1].Outcome.Items)
	assert.Contains(t, results[2].Outcome.Err, "panic")
	assert.True(t, results[3].Outcome.OK())
}

func TestFetchAll_OpenBreakerStillReported(t *testing.T) {
	t.Parallel()

	breakers := NewBreakers(WithThreshold(1))
	breakers.RecordFailure("X", errFeed)
	tr := newScriptedTransport()
	f := New(tr, echoNormalizer{}, breakers, Config{}, quietLogger())

	results := FetchAll(context.Background(), f, []domain.Source{{Code: "X", FeedURL: "x"}}, 4)

	require.Len(t, results, 1)
	assert.True(t, results[0].Outcome.Skipped)
	assert.False(t, results[0].Outcome.OK())
	assert.Equal(t, 0, tr.Calls("x"))
}
