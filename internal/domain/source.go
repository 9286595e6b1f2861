package domain

import "time"

// Category is the logical destination grouping a source is routed to.
type Category string

const (
	CategoryAnime Category = "anime"
	CategoryWorld Category = "world"
)

// Source is an immutable catalog entry describing one feed.
type Source struct {
	Code     string
	FeedURL  string
	Category Category
	Priority int
	Label    string
}

// DisplayName returns the human label, falling back to the code.
func (s Source) DisplayName() string {
	if s.Label != "" {
		return s.Label
	}
	return s.Code
}

// BreakerState enumerates circuit breaker states for a source.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half-open"
)

// SourceHealth is the in-memory failure tracking for one source.
// It lives for the process lifetime and is never persisted.
type SourceHealth struct {
	Source              string       `json:"source"`
	State               BreakerState `json:"state"`
	ConsecutiveFailures int          `json:"consecutive_failures"`
	OpenedAt            time.Time    `json:"opened_at,omitempty"`
	LastError           string       `json:"last_error,omitempty"`
	LastSuccess         time.Time    `json:"last_success,omitempty"`
}

// FetchOutcome reports what happened to one source during a run.
type FetchOutcome struct {
	Source   string        `json:"source"`
	Items    int           `json:"items"`
	Err      string        `json:"error,omitempty"`
	Skipped  bool          `json:"skipped,omitempty"` // breaker open, no network call
	Duration time.Duration `json:"duration"`
}

// OK reports whether the fetch produced a result.
func (o FetchOutcome) OK() bool {
	return o.Err == ""
}
