package domain

import "time"

// DateLayout is the calendar-day representation used for postedDate and run dates.
const DateLayout = "2006-01-02"

// DeliveryStatus tracks the two-phase write on a DeliveryRecord.
type DeliveryStatus string

const (
	DeliveryAttempted DeliveryStatus = "attempted"
	DeliverySent      DeliveryStatus = "sent"
	DeliveryFailed    DeliveryStatus = "failed"
)

// DeliveryRecord is the durable fact that an item was (or was about to be) delivered.
// (NormalizedTitle, PostedDate) is unique in the store.
type DeliveryRecord struct {
	ID              string         `json:"id"`
	NormalizedTitle string         `json:"normalized_title"`
	FullTitle       string         `json:"full_title"`
	SourceCode      string         `json:"source"`
	PostedDate      string         `json:"posted_date"`
	PostedAt        time.Time      `json:"posted_at"`
	Status          DeliveryStatus `json:"status"`
	ChannelCategory Category       `json:"channel_category"`
	ArticleURL      string         `json:"article_url"`
	Slot            int            `json:"slot"`
}

// TitleRecord is the slice of a DeliveryRecord the dedup history needs.
type TitleRecord struct {
	NormalizedTitle string
	FullTitle       string
}

// DateRange is an inclusive range of calendar days (DateLayout strings).
type DateRange struct {
	From string
	To   string
}

// DaysBack builds the inclusive range [day-n, day].
func DaysBack(day time.Time, n int) DateRange {
	if n < 0 {
		n = 0
	}
	return DateRange{
		From: day.AddDate(0, 0, -n).Format(DateLayout),
		To:   day.Format(DateLayout),
	}
}

// RunStatus is the terminal (or in-flight) state of a RunRecord.
type RunStatus string

const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunPartial RunStatus = "partial"
	RunFailed  RunStatus = "failed"
)

// RunRecord is the bookkeeping for one scheduling slot.
// Scheduled runs are unique on (Date, Slot); forced runs are not.
type RunRecord struct {
	ID           string         `json:"id"`
	Date         string         `json:"date"`
	Slot         int            `json:"slot"`
	Forced       bool           `json:"forced"`
	ScheduledAt  time.Time      `json:"scheduled_at"`
	StartedAt    time.Time      `json:"started_at"`
	FinishedAt   *time.Time     `json:"finished_at,omitempty"`
	Status       RunStatus      `json:"status"`
	PostsSent    int            `json:"posts_sent"`
	SourceCounts map[string]int `json:"source_counts"`
	Error        string         `json:"error,omitempty"`
}

// Terminal reports whether the run reached a final state.
func (r RunRecord) Terminal() bool {
	return r.Status != RunRunning && r.Status != ""
}
