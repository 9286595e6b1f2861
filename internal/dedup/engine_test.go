package dedup

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
)

type memStore struct {
	mu      sync.Mutex
	records map[string]domain.DeliveryRecord
	down    bool
}

func newMemStore() *memStore {
	return &memStore{records: map[string]domain.DeliveryRecord{}}
}

var errDown = errors.New("connection refused")

func key(title, date string) string { return title + "|" + date }

func inRange(date string, r domain.DateRange) bool {
	return date >= r.From && date <= r.To
}

func (m *memStore) InsertDelivery(_ context.Context, rec domain.DeliveryRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return errDown
	}
	k := key(rec.NormalizedTitle, rec.PostedDate)
	if _, ok := m.records[k]; ok {
		return domain.ErrDuplicate
	}
	m.records[k] = rec
	return nil
}

func (m *memStore) UpdateDeliveryStatus(_ context.Context, title, date string, status domain.DeliveryStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return errDown
	}
	k := key(title, date)
	rec, ok := m.records[k]
	if !ok {
		return nil
	}
	rec.Status = status
	m.records[k] = rec
	return nil
}

func (m *memStore) ExistsExact(_ context.Context, title string, dates domain.DateRange) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return false, errDown
	}
	for _, rec := range m.records {
		if rec.NormalizedTitle == title && inRange(rec.PostedDate, dates) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) LoadRecentTitles(_ context.Context, dates domain.DateRange) ([]domain.TitleRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return nil, errDown
	}
	var out []domain.TitleRecord
	for _, rec := range m.records {
		if inRange(rec.PostedDate, dates) {
			out = append(out, domain.TitleRecord{NormalizedTitle: rec.NormalizedTitle, FullTitle: rec.FullTitle})
		}
	}
	return out, nil
}

func (m *memStore) ListDeliveries(context.Context, domain.DeliveryStatus, domain.DateRange) ([]domain.DeliveryRecord, error) {
	return nil, nil
}

func (m *memStore) RequeueDelivery(context.Context, string, string) (bool, error) {
	return false, nil
}

func (m *memStore) put(title, date string) {
	m.records[key(title, date)] = domain.DeliveryRecord{NormalizedTitle: title, FullTitle: title, PostedDate: date, Status: domain.DeliverySent}
}

func (m *memStore) status(title, date string) domain.DeliveryStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[key(title, date)].Status
}

var fixedNow = time.Date(2025, time.June, 10, 9, 30, 0, 0, time.UTC)

func newTestEngine(store *memStore) *Engine {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if store == nil {
		return NewEngine(nil, Config{}, logger, WithClock(func() time.Time { return fixedNow }))
	}
	return NewEngine(store, Config{}, logger, WithClock(func() time.Time { return fixedNow }))
}

func item(src, title string) domain.CandidateItem {
	return domain.CandidateItem{SourceCode: src, RawTitle: title}
}

func TestSession_InRunExactDuplicate(t *testing.T) {
	t.Parallel()

	s := newTestEngine(newMemStore()).NewSession(context.Background())
	ctx := context.Background()

	first := s.Accept(ctx, item("BBC", "PM announces new policy"))
	second := s.Accept(ctx, item("CNN", "BREAKING: PM announces new policy."))

	assert.True(t, first.Accepted)
	assert.False(t, second.Accepted)
	assert.Equal(t, ReasonInRun, second.Reason)
}

func TestSession_FuzzyThreshold(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	store.put("pm announces new policy", "2025-06-09")
	s := newTestEngine(store).NewSession(context.Background())
	ctx := context.Background()

	near := s.Accept(ctx, item("DW", "PM announces new policy today"))
	require.False(t, near.Accepted)
	assert.Equal(t, ReasonFuzzy, near.Reason)
	assert.Equal(t, "pm announces new policy", near.Match)
	assert.GreaterOrEqual(t, near.Score, 0.85)

	far := s.Accept(ctx, item("DW", "PM announces budget cuts"))
	assert.True(t, far.Accepted)
}

func TestSession_HistoryUsesRenormalizedFullTitles(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	store.records[key("legacy key", "2025-06-08")] = domain.DeliveryRecord{
		NormalizedTitle: "legacy key",
		FullTitle:       "UPDATE: Studio confirms second season",
		PostedDate:      "2025-06-08",
	}
	s := newTestEngine(store).NewSession(context.Background())

	v := s.Accept(context.Background(), item("CR", "Studio confirms second season!"))
	assert.False(t, v.Accepted)
	assert.Equal(t, 2, s.HistorySize())
}

func TestSession_HistoryWindowExcludesOldTitles(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	store.put("ancient story", "2025-05-01")
	s := newTestEngine(store).NewSession(context.Background())

	assert.Equal(t, 0, s.HistorySize())
}

func TestSession_PersistedExactCheck(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	s := newTestEngine(store).NewSession(context.Background())
	// Written by another process after this session loaded its history.
	store.put("late arrival", "2025-06-10")

	v := s.Accept(context.Background(), item("NPR", "Late arrival"))
	assert.False(t, v.Accepted)
	assert.Equal(t, ReasonPersisted, v.Reason)
}

func TestSession_EmptyTitleRejected(t *testing.T) {
	t.Parallel()

	s := newTestEngine(newMemStore()).NewSession(context.Background())
	v := s.Accept(context.Background(), item("X", "?!"))
	assert.False(t, v.Accepted)
	assert.Equal(t, ReasonEmptyTitle, v.Reason)
}

func TestSession_TwoPhaseRecord(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	s := newTestEngine(store).NewSession(context.Background())
	ctx := context.Background()

	it := item("BBC", "Markets rally")
	require.True(t, s.Accept(ctx, it).Accepted)

	routed := domain.RoutedItem{Item: it, Category: domain.CategoryWorld}
	rec, err := s.RecordAttempt(ctx, routed, 4)
	require.NoError(t, err)
	assert.Equal(t, "markets rally", rec.NormalizedTitle)
	assert.Equal(t, "2025-06-10", rec.PostedDate)
	assert.Equal(t, 4, rec.Slot)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, domain.DeliveryAttempted, store.status("markets rally", "2025-06-10"))

	s.RecordOutcome(ctx, rec, domain.DeliverySent)
	assert.Equal(t, domain.DeliverySent, store.status("markets rally", "2025-06-10"))
	assert.False(t, s.Degraded())
}

func TestSession_RecordAttemptDuplicate(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	s := newTestEngine(store).NewSession(context.Background())
	ctx := context.Background()
	store.put("race", "2025-06-10")

	_, err := s.RecordAttempt(ctx, domain.RoutedItem{Item: item("A", "Race")}, 0)
	assert.ErrorIs(t, err, domain.ErrDuplicate)
}

func TestSession_RerunIsIdempotent(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	engine := newTestEngine(store)
	ctx := context.Background()
	snapshot := []domain.CandidateItem{
		item("BBC", "Storm hits coast"),
		item("CNN", "Election results announced"),
		item("ANI", "New anime film trailer"),
	}

	run := func() int {
		s := engine.NewSession(ctx)
		accepted := 0
		for _, it := range snapshot {
			if !s.Accept(ctx, it).Accepted {
				continue
			}
			if _, err := s.RecordAttempt(ctx, domain.RoutedItem{Item: it}, 0); err != nil {
				continue
			}
			accepted++
		}
		return accepted
	}

	assert.Equal(t, 3, run())
	assert.Equal(t, 0, run(), "attempted records dedup a replay")
}

func TestSession_DegradedWhenStoreDown(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	store.down = true
	s := newTestEngine(store).NewSession(context.Background())
	ctx := context.Background()

	require.True(t, s.Degraded())
	assert.True(t, s.Accept(ctx, item("A", "Story one")).Accepted)
	assert.False(t, s.Accept(ctx, item("B", "Story one")).Accepted, "in-run check still applies")

	rec, err := s.RecordAttempt(ctx, domain.RoutedItem{Item: item("A", "Story one")}, 0)
	require.NoError(t, err, "store outage does not block delivery")
	assert.Equal(t, "story one", rec.NormalizedTitle)
	s.RecordOutcome(ctx, rec, domain.DeliverySent)
}

func TestSession_DegradesMidRun(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	s := newTestEngine(store).NewSession(context.Background())
	require.False(t, s.Degraded())

	store.mu.Lock()
	store.down = true
	store.mu.Unlock()

	v := s.Accept(context.Background(), item("A", "Fresh story"))
	assert.True(t, v.Accepted)
	assert.True(t, s.Degraded())
}

func TestSession_NilStore(t *testing.T) {
	t.Parallel()

	s := newTestEngine(nil).NewSession(context.Background())
	assert.True(t, s.Degraded())
	assert.True(t, s.Accept(context.Background(), item("A", "Anything")).Accepted)
}
