package domain

import "time"

// CandidateItem is one feed entry after normalization.
type CandidateItem struct {
	SourceCode      string
	RawTitle        string
	NormalizedTitle string
	CanonicalURL    string
	PublishTime     *time.Time // nil means unknown, treat as now
	Summary         string
	ImageURL        string
	FeedCategory    string // category/tag advertised by the feed itself
}

// PublishedOr returns the publish time, or fallback when unknown.
func (c CandidateItem) PublishedOr(fallback time.Time) time.Time {
	if c.PublishTime == nil {
		return fallback
	}
	return *c.PublishTime
}

// RoutedItem is an accepted item bound to its destination.
type RoutedItem struct {
	Item     CandidateItem
	Source   Source
	Category Category
	ChatID   string
	// PageURL is set when the item was enriched with a published article page.
	PageURL string
}

// DeliveryResult is what a sink reports for one routed item.
type DeliveryResult struct {
	MessageID string
	WithImage bool
}
