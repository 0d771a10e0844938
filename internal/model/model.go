package model

import "time"

// SessionType classifies what a scheduled session represents.
type SessionType string

const (
	TypeTask  SessionType = "task"
	TypeStudy SessionType = "study"
	TypeBreak SessionType = "break"
	TypeEvent SessionType = "event"
)

// Category is the coursework category a session belongs to.
type Category string

const (
	CategoryExam         Category = "exam"
	CategoryQuiz         Category = "quiz"
	CategoryProject      Category = "project"
	CategoryHomework     Category = "homework"
	CategoryReading      Category = "reading"
	CategoryPracticeTest Category = "practiceTest"
	CategoryReview       Category = "review"
)

// ScheduledSession is a single placed unit of study/work time.
// Invariant: Start < End. EstimatedMinutes matches End-Start unless it was
// explicitly overridden when the session was created.
type ScheduledSession struct {
	ID               string      `json:"id"`
	AssignmentID     *string     `json:"assignment_id"`
	SessionIndex     int         `json:"session_index"`
	SessionCount     int         `json:"session_count"`
	Title            string      `json:"title"`
	DueDate          time.Time   `json:"due_date"`
	EstimatedMinutes int         `json:"estimated_minutes"`
	Start            time.Time   `json:"start"`
	End              time.Time   `json:"end"`
	Category         Category    `json:"category"`
	Type             SessionType `json:"type"`
	IsLocked         bool        `json:"is_locked"`
	IsUserEdited     bool        `json:"is_user_edited"`
	UserEditedAt     *time.Time  `json:"user_edited_at"`
	Provenance       string      `json:"provenance"`
	ComputedAt       *time.Time  `json:"computed_at"`
	Confidence       float64     `json:"confidence"`
}

// DurationMinutes returns the session length derived from its interval.
func (s ScheduledSession) DurationMinutes() int {
	return int(s.End.Sub(s.Start) / time.Minute)
}

// Overlaps reports whether the session overlaps the half-open
// interval [start, end).
func (s ScheduledSession) Overlaps(start, end time.Time) bool {
	return !(end.Compare(s.Start) <= 0 || start.Compare(s.End) >= 0)
}

// ToOverflow converts the session into its unplaced overflow form,
// dropping start/end and stamping the given provenance.
func (s ScheduledSession) ToOverflow(provenance string, at time.Time) OverflowSession {
	return OverflowSession{
		ID:               s.ID,
		AssignmentID:     s.AssignmentID,
		SessionIndex:     s.SessionIndex,
		SessionCount:     s.SessionCount,
		Title:            s.Title,
		DueDate:          s.DueDate,
		EstimatedMinutes: s.EstimatedMinutes,
		Category:         s.Category,
		Provenance:       provenance,
		ComputedAt:       &at,
		Confidence:       s.Confidence,
	}
}

// OverflowSession is a session that could not be placed in any time window.
// It keeps the session's identity but has no start/end.
type OverflowSession struct {
	ID               string     `json:"id"`
	AssignmentID     *string    `json:"assignment_id"`
	SessionIndex     int        `json:"session_index"`
	SessionCount     int        `json:"session_count"`
	Title            string     `json:"title"`
	DueDate          time.Time  `json:"due_date"`
	EstimatedMinutes int        `json:"estimated_minutes"`
	Category         Category   `json:"category"`
	Provenance       string     `json:"provenance"`
	ComputedAt       *time.Time `json:"computed_at"`
	Confidence       float64    `json:"confidence"`
}

// TimeSlot is an ephemeral free interval produced during a scheduling pass.
// Invariant: Start <= End.
type TimeSlot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Duration returns the slot length.
func (t TimeSlot) Duration() time.Duration {
	return t.End.Sub(t.Start)
}

// Minutes returns the slot length in whole minutes.
func (t TimeSlot) Minutes() int {
	return int(t.Duration() / time.Minute)
}

// Overlaps reports whether the slot overlaps the half-open
// interval [start, end).
func (t TimeSlot) Overlaps(start, end time.Time) bool {
	return !(end.Compare(t.Start) <= 0 || start.Compare(t.End) >= 0)
}

// Strategy identifies how a missed session was rescheduled.
type Strategy string

const (
	StrategySameDaySlot   Strategy = "sameDaySlot"
	StrategySameDayPushed Strategy = "sameDayPushed"
	StrategyNextDay       Strategy = "nextDay"
	StrategyOverflow      Strategy = "overflow"
)

// DisplayName returns the user-facing label for the strategy.
func (s Strategy) DisplayName() string {
	switch s {
	case StrategySameDaySlot:
		return "Rescheduled Today"
	case StrategySameDayPushed:
		return "Rescheduled Today (Pushed Others)"
	case StrategyNextDay:
		return "Moved to Tomorrow"
	case StrategyOverflow:
		return "Needs Manual Scheduling"
	default:
		return string(s)
	}
}

// RescheduleOperation records one executed or proposed reschedule of a
// single session. Operations are persisted append-only to history.
type RescheduleOperation struct {
	ID               string    `json:"id"`
	SessionID        string    `json:"session_id"`
	OriginalStart    time.Time `json:"original_start"`
	OriginalEnd      time.Time `json:"original_end"`
	NewStart         time.Time `json:"new_start"`
	NewEnd           time.Time `json:"new_end"`
	Strategy         Strategy  `json:"strategy"`
	PushedSessionIDs []string  `json:"pushed_session_ids"`
	Timestamp        time.Time `json:"timestamp"`
}

// Task is the external assignment input consumed by the auto-scheduler.
type Task struct {
	ID               string    `json:"id"`
	Title            string    `json:"title"`
	EstimatedMinutes int       `json:"estimated_minutes"`
	DueDate          time.Time `json:"due_date"`
	Priority         int       `json:"priority"`
}
