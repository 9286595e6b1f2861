package coordinator

import (
	"time"

	"NewsRelay/internal/domain"
)

// Slot identifies one scheduling bucket: a calendar day in the operating
// timezone and floor(hour / interval).
type Slot struct {
	Date  string
	Index int
	Start time.Time
}

// SlotAt returns the slot containing t. intervalHours below one is treated as one.
func SlotAt(t time.Time, loc *time.Location, intervalHours int) Slot {
	if loc == nil {
		loc = time.UTC
	}
	if intervalHours < 1 {
		intervalHours = 1
	}
	local := t.In(loc)
	idx := local.Hour() / intervalHours
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return Slot{
		Date:  local.Format(domain.DateLayout),
		Index: idx,
		Start: midnight.Add(time.Duration(idx*intervalHours) * time.Hour),
	}
}

// SlotsPerDay is the number of slots in a day for the interval.
func SlotsPerDay(intervalHours int) int {
	if intervalHours < 1 {
		intervalHours = 1
	}
	return (24 + intervalHours - 1) / intervalHours
}

// NextSlotStart returns the first slot boundary strictly after t.
func NextSlotStart(t time.Time, loc *time.Location, intervalHours int) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	if intervalHours < 1 {
		intervalHours = 1
	}
	cur := SlotAt(t, loc, intervalHours)
	if cur.Index+1 >= SlotsPerDay(intervalHours) {
		day := cur.Start
		return time.Date(day.Year(), day.Month(), day.Day()+1, 0, 0, 0, 0, loc)
	}
	return cur.Start.Add(time.Duration(intervalHours) * time.Hour)
}
