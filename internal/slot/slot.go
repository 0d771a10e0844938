// Package slot implements the free-slot interval arithmetic used by both
// initial placement and rescheduling. Everything here is pure computation.
package slot

import (
	"sort"
	"time"

	"github.com/planwise/studyplan/internal/model"
	"github.com/planwise/studyplan/internal/timecalc"
)

// SearchIncrement is the step used when walking a window for a free slot.
const SearchIncrement = 15 * time.Minute

// FreeSlot finds the first position within window where an interval of the
// given duration overlaps no busy interval. It walks the window in
// 15-minute increments from window.Start and returns nil if nothing fits
// before window.End. This is greedy first-fit: callers place sessions in
// descending priority order, so first-fit approximates priority-respecting
// packing.
func FreeSlot(duration time.Duration, window model.TimeSlot, busy []model.TimeSlot) *model.TimeSlot {
	if duration <= 0 {
		return nil
	}
	current := window.Start
	for current.Before(window.End) {
		proposedEnd := current.Add(duration)
		if proposedEnd.After(window.End) {
			break
		}

		occupied := false
		for _, b := range busy {
			if b.Overlaps(current, proposedEnd) {
				occupied = true
				break
			}
		}
		if !occupied {
			return &model.TimeSlot{Start: current, End: proposedEnd}
		}

		current = current.Add(SearchIncrement)
	}
	return nil
}

// Subtract removes the busy interval from each slot, splitting any
// overlapping slot into its left/right remainders (zero, one, or two output
// slots each).
func Subtract(busy model.TimeSlot, slots []model.TimeSlot) []model.TimeSlot {
	var result []model.TimeSlot
	for _, s := range slots {
		// No overlap: keep as-is.
		if busy.End.Compare(s.Start) <= 0 || busy.Start.Compare(s.End) >= 0 {
			result = append(result, s)
			continue
		}
		// Left remainder.
		if busy.Start.After(s.Start) {
			result = append(result, model.TimeSlot{Start: s.Start, End: busy.Start})
		}
		// Right remainder.
		if busy.End.Before(s.End) {
			result = append(result, model.TimeSlot{Start: busy.End, End: s.End})
		}
	}
	return result
}

// DailyFree carves the free time available across the horizon: for each of
// the given days, a whole work-day seed slot [startHour, endHour) is reduced
// by every busy interval overlapping it, applied in start-time order. The
// returned slots are sorted by start time and never empty-length.
func DailyFree(startDate time.Time, days, startHour, endHour int, busy []model.TimeSlot) []model.TimeSlot {
	sorted := make([]model.TimeSlot, len(busy))
	copy(sorted, busy)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) })

	var slots []model.TimeSlot
	for offset := 0; offset < days; offset++ {
		day := startDate.AddDate(0, 0, offset)
		windowStart := timecalc.AtHour(day, startHour)
		windowEnd := timecalc.AtHour(day, endHour)
		if !windowEnd.After(windowStart) {
			continue
		}

		daySlots := []model.TimeSlot{{Start: windowStart, End: windowEnd}}
		for _, b := range sorted {
			if b.End.Compare(windowStart) <= 0 || b.Start.Compare(windowEnd) >= 0 {
				continue
			}
			clamped := model.TimeSlot{Start: maxTime(b.Start, windowStart), End: minTime(b.End, windowEnd)}
			daySlots = Subtract(clamped, daySlots)
		}
		for _, s := range daySlots {
			if s.Duration() > 0 {
				slots = append(slots, s)
			}
		}
	}

	sort.Slice(slots, func(i, j int) bool { return slots[i].Start.Before(slots[j].Start) })
	return slots
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
