package usecase

import (
	"fmt"
	"html"
	"sort"
	"strings"
	"time"

	"NewsRelay/internal/domain"
)

const reportErrorLimit = 200

// BuildReportMessage renders the admin summary of one run as Telegram HTML.
func BuildReportMessage(report domain.RunReport, runErr error, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	run := report.Run
	var b strings.Builder

	kind := "Scheduled"
	if run.Forced {
		kind = "Forced"
	}
	fmt.Fprintf(&b, "<b>NewsRelay report</b>\n%s | slot %d | %s run | %s\n\n",
		run.Date, run.Slot, kind, run.StartedAt.In(loc).Format("15:04 MST"))

	b.WriteString("<b>This cycle</b>\n")
	fmt.Fprintf(&b, "Status: %s\n", strings.ToUpper(string(run.Status)))
	fmt.Fprintf(&b, "Posts sent: %d", report.Sent)
	if report.Failed > 0 {
		fmt.Fprintf(&b, " (%d failed)", report.Failed)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "Candidates: %d, stale: %d, duplicates: %d\n", report.Candidates, report.Stale, report.Rejected)
	for _, cat := range sortedCategories(report.PerCategory) {
		fmt.Fprintf(&b, "%s: %d\n", html.EscapeString(string(cat)), report.PerCategory[cat])
	}

	fmt.Fprintf(&b, "\n<b>Today's total: %d</b>\n<b>All-time: %d</b>\n", report.DailyTotal, report.AllTimeTotal)

	b.WriteString("\n<b>Sources</b>\n")
	wrote := false
	for _, f := range report.Fetches {
		switch {
		case !f.OK():
			fmt.Fprintf(&b, "%s: failed\n", html.EscapeString(f.Source))
		case f.Items > 0:
			fmt.Fprintf(&b, "%s: %d\n", html.EscapeString(f.Source), f.Items)
		default:
			continue
		}
		wrote = true
	}
	if !wrote {
		b.WriteString("No new items this cycle\n")
	}

	var warnings []string
	errText := run.Error
	if runErr != nil {
		errText = runErr.Error()
	}
	if errText != "" {
		if r := []rune(errText); len(r) > reportErrorLimit {
			errText = string(r[:reportErrorLimit]) + "..."
		}
		warnings = append(warnings, "Error: "+html.EscapeString(errText))
	}
	if len(report.OpenBreakers) > 0 {
		warnings = append(warnings, "Sources down: "+html.EscapeString(strings.Join(report.OpenBreakers, ", ")))
	}
	if report.DedupDegraded {
		warnings = append(warnings, "Store degraded: dedup ran on in-memory checks only")
	}

	b.WriteString("\n<b>System health</b>\n")
	if len(warnings) == 0 {
		b.WriteString("All systems operational")
	} else {
		b.WriteString(strings.Join(warnings, "\n"))
	}
	return b.String()
}

func sortedCategories(m map[domain.Category]int) []domain.Category {
	out := make([]domain.Category, 0, len(m))
	for c := range m {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
