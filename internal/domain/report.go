package domain

// RunReport is the per-run summary surfaced to operators.
type RunReport struct {
	Run           RunRecord        `json:"run"`
	Skipped       bool             `json:"skipped"` // slot already claimed
	Fetches       []FetchOutcome   `json:"fetches"`
	Candidates    int              `json:"candidates"`
	Stale         int              `json:"stale"`
	Rejected      int              `json:"rejected"`
	Accepted      int              `json:"accepted"`
	Sent          int              `json:"sent"`
	Failed        int              `json:"failed"`
	PerCategory   map[Category]int `json:"per_category"`
	DailyTotal    int64            `json:"daily_total"`
	AllTimeTotal  int64            `json:"all_time_total"`
	DedupDegraded bool             `json:"dedup_degraded"`
	OpenBreakers  []string         `json:"open_breakers,omitempty"`
	RejectReasons map[string]int   `json:"reject_reasons,omitempty"`
}

// SourceCounts maps each fetched source to its item count.
func (r RunReport) SourceCounts() map[string]int {
	out := make(map[string]int, len(r.Fetches))
	for _, f := range r.Fetches {
		out[f.Source] = f.Items
	}
	return out
}

// SourceFailures counts sources that did not produce a result.
func (r RunReport) SourceFailures() int {
	n := 0
	for _, f := range r.Fetches {
		if !f.OK() {
			n++
		}
	}
	return n
}
