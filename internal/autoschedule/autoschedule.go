// Package autoschedule performs the initial greedy placement of tasks into
// free calendar time, subject to a per-day study cap and a minimum
// contiguous block size.
package autoschedule

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/planwise/studyplan/internal/model"
	"github.com/planwise/studyplan/internal/slot"
	"github.com/planwise/studyplan/internal/timecalc"
)

// Provenance tags sessions created by initial placement.
const Provenance = "auto-schedule"

// placementConfidence reflects that greedy placement is a heuristic the
// user is expected to adjust.
const placementConfidence = 0.6

// Options tune a placement run.
type Options struct {
	StartDate             time.Time
	Days                  int
	WorkDayStartHour      int
	WorkDayEndHour        int
	MaxStudyMinutesPerDay int
	MinBlockMinutes       int
}

// Plan places the tasks into free time around the busy intervals. Tasks
// are taken in priority order (ties broken by earlier due date); each task
// consumes free slots greedily and may end up split into several sessions
// or only partially placed when slots run out. The unplaced remainder is
// simply not scheduled.
func Plan(tasks []model.Task, busy []model.TimeSlot, opts Options) []model.ScheduledSession {
	ordered := make([]model.Task, len(tasks))
	copy(ordered, tasks)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Priority != ordered[j].Priority {
			return ordered[i].Priority > ordered[j].Priority
		}
		return ordered[i].DueDate.Before(ordered[j].DueDate)
	})

	free := slot.DailyFree(opts.StartDate, opts.Days, opts.WorkDayStartHour, opts.WorkDayEndHour, busy)
	minutesPerDay := make(map[string]int)

	var sessions []model.ScheduledSession
	for _, task := range ordered {
		remaining := task.EstimatedMinutes
		var chunks []model.ScheduledSession

		for i := range free {
			if remaining <= 0 {
				break
			}
			dayKey := timecalc.DayKey(free[i].Start)
			already := minutesPerDay[dayKey]
			if already >= opts.MaxStudyMinutesPerDay {
				continue
			}

			chunk := remaining
			if m := free[i].Minutes(); m < chunk {
				chunk = m
			}
			if capLeft := opts.MaxStudyMinutesPerDay - already; capLeft < chunk {
				chunk = capLeft
			}
			// Refuse slivers that fragment work below a useful length.
			if chunk < opts.MinBlockMinutes {
				continue
			}

			taskID := task.ID
			chunks = append(chunks, model.ScheduledSession{
				ID:               uuid.NewString(),
				AssignmentID:     &taskID,
				SessionIndex:     len(chunks),
				Title:            task.Title,
				DueDate:          task.DueDate,
				EstimatedMinutes: chunk,
				Start:            free[i].Start,
				End:              free[i].Start.Add(time.Duration(chunk) * time.Minute),
				Type:             model.TypeStudy,
				Provenance:       Provenance,
				Confidence:       placementConfidence,
			})

			free[i].Start = free[i].Start.Add(time.Duration(chunk) * time.Minute)
			minutesPerDay[dayKey] = already + chunk
			remaining -= chunk
		}

		for i := range chunks {
			chunks[i].SessionCount = len(chunks)
		}
		sessions = append(sessions, chunks...)
	}
	return sessions
}
