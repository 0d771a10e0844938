// Package priority computes the urgency/importance score that gates
// displacement decisions. Score is pure and deterministic: identical inputs
// always yield identical scores, so displacement outcomes are reproducible
// for testing and auditing.
package priority

import (
	"time"

	"github.com/planwise/studyplan/internal/model"
	"github.com/planwise/studyplan/internal/timecalc"
)

// categoryWeight is the fixed importance lookup by coursework category.
var categoryWeight = map[model.Category]float64{
	model.CategoryExam:         1.0,
	model.CategoryQuiz:         0.9,
	model.CategoryPracticeTest: 0.9,
	model.CategoryProject:      0.8,
	model.CategoryHomework:     0.7,
	model.CategoryReading:      0.6,
	model.CategoryReview:       0.5,
}

// Score returns a 0..1 priority for the session at the given instant.
// Locked or user-edited sessions always score 1.0 and are never
// displaceable. Otherwise the score is a composite of category weight (60%)
// and due-date urgency (40%).
func Score(session model.ScheduledSession, now time.Time) float64 {
	if session.IsLocked || session.IsUserEdited {
		return 1.0
	}

	weight, ok := categoryWeight[session.Category]
	if !ok {
		weight = 0.5
	}

	daysUntilDue := timecalc.DaysBetween(now, session.DueDate)
	var urgency float64
	switch {
	case daysUntilDue <= 1:
		urgency = 1.0
	case daysUntilDue <= 3:
		urgency = 0.9
	case daysUntilDue <= 7:
		urgency = 0.7
	default:
		urgency = 0.5
	}

	return 0.6*weight + 0.4*urgency
}
