package ports

import (
	"context"
	"time"

	"NewsRelay/internal/domain"
)

// FeedTransport downloads raw feed bytes. Failures are *domain.FetchError.
type FeedTransport interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// FeedNormalizer turns raw feed bytes into candidate items. It returns the
// entries it could decode even when the document is partially malformed.
type FeedNormalizer interface {
	Normalize(raw []byte, src domain.Source) ([]domain.CandidateItem, error)
}

// SourceFetcher fetches one source with failure isolation.
type SourceFetcher interface {
	Fetch(ctx context.Context, src domain.Source) ([]domain.CandidateItem, error)
	Health() []domain.SourceHealth
}

// DeliveryStore persists delivery records for deduplication and audit.
type DeliveryStore interface {
	InsertDelivery(ctx context.Context, rec domain.DeliveryRecord) error
	UpdateDeliveryStatus(ctx context.Context, normalizedTitle, date string, status domain.DeliveryStatus) error
	ExistsExact(ctx context.Context, normalizedTitle string, dates domain.DateRange) (bool, error)
	LoadRecentTitles(ctx context.Context, dates domain.DateRange) ([]domain.TitleRecord, error)
	ListDeliveries(ctx context.Context, status domain.DeliveryStatus, dates domain.DateRange) ([]domain.DeliveryRecord, error)
	RequeueDelivery(ctx context.Context, normalizedTitle, date string) (bool, error)
}

// RunStore persists run records; CreateRunIfAbsent is the slot idempotency guard.
type RunStore interface {
	CreateRunIfAbsent(ctx context.Context, run domain.RunRecord) (domain.RunRecord, error)
	UpdateRun(ctx context.Context, run domain.RunRecord) error
	RecentRuns(ctx context.Context, limit int) ([]domain.RunRecord, error)
}

// CounterStore holds atomic counters.
type CounterStore interface {
	IncrementCounter(ctx context.Context, key string) (int64, error)
	Counter(ctx context.Context, key string) (int64, error)
}

// Store is the full persistent store contract.
type Store interface {
	DeliveryStore
	RunStore
	CounterStore
}

// DeliverySink posts a routed item to its channel.
type DeliverySink interface {
	Deliver(ctx context.Context, item domain.RoutedItem) (domain.DeliveryResult, error)
}

// Notifier streams operator reports to an admin chat.
type Notifier interface {
	PublishReport(ctx context.Context, text string) error
}

// ArticleExtractor scrapes readable content from an article page.
type ArticleExtractor interface {
	Extract(ctx context.Context, url, sourceCode string) (domain.ArticleContent, error)
}

// PagePublisher publishes an extracted article and returns its public URL.
type PagePublisher interface {
	Publish(ctx context.Context, item domain.RoutedItem, content domain.ArticleContent) (string, error)
}

// Scheduler controls when pipelines execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
