// Package reschedule implements the strategy cascade that recovers missed
// study sessions: same-day free slot, same-day with displacement, next day,
// and finally overflow. A missed session always resolves to exactly one
// operation; overflow is the terminal fallback and never fails.
package reschedule

import (
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/planwise/studyplan/internal/gate"
	"github.com/planwise/studyplan/internal/model"
	"github.com/planwise/studyplan/internal/notify"
	"github.com/planwise/studyplan/internal/planner"
	"github.com/planwise/studyplan/internal/priority"
	"github.com/planwise/studyplan/internal/slot"
	"github.com/planwise/studyplan/internal/storage"
	"github.com/planwise/studyplan/internal/timecalc"
)

const (
	historyFile = "reschedule-history.json"

	// pushBuffer separates a displaced session from the end of the session
	// that displaced it.
	pushBuffer = 15 * time.Minute

	// ProvenancePrefix tags sessions whose timing was last computed by this
	// engine; the detector keys its idempotency window off it.
	ProvenancePrefix = "auto-reschedule-"
)

// Settings are the engine tunables, sourced from configuration.
type Settings struct {
	PushEnabled  bool
	MaxPushCount int
	DayEndHour   int
}

// Engine reschedules missed sessions. All mutations funnel through the
// planner store's batch commit; a single in-flight flag keeps passes from
// overlapping.
type Engine struct {
	mu       sync.Mutex
	inFlight bool

	base     string
	store    *planner.Store
	gate     *gate.Gate
	sink     notify.Sink
	settings Settings
	now      func() time.Time

	history          []model.RescheduleOperation
	lastRescheduleAt *time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the clock function, for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New loads persisted history and returns a ready engine.
func New(base string, store *planner.Store, g *gate.Gate, sink notify.Sink, settings Settings, opts ...Option) (*Engine, error) {
	e := &Engine{
		base:     base,
		store:    store,
		gate:     g,
		sink:     sink,
		settings: settings,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if err := storage.LoadJSON(base, historyFile, &e.history); err != nil {
		return nil, err
	}
	return e, nil
}

// History returns a copy of the persisted reschedule operations,
// oldest first.
func (e *Engine) History() []model.RescheduleOperation {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]model.RescheduleOperation, len(e.history))
	copy(out, e.history)
	return out
}

// LastRescheduleAt returns when the engine last applied operations, or nil.
func (e *Engine) LastRescheduleAt() *time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastRescheduleAt
}

// ClearHistory empties the persisted history.
func (e *Engine) ClearHistory() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.history = nil
	return storage.SaveJSON(e.base, historyFile, []model.RescheduleOperation{})
}

// Reschedule runs one gated pass over the given missed sessions. Sessions
// are processed in input order and the resulting operations are applied to
// the store as one batch. A pass already in flight causes the new request
// to be skipped, not queued.
func (e *Engine) Reschedule(missed []model.ScheduledSession, provenance gate.Provenance) error {
	_, err := e.gate.Run(gate.ReasonRescheduleEngine, provenance, func() error {
		return e.run(missed, provenance)
	})
	return err
}

func (e *Engine) run(missed []model.ScheduledSession, provenance gate.Provenance) error {
	e.mu.Lock()
	if e.inFlight {
		e.mu.Unlock()
		fmt.Fprintln(os.Stderr, "Reschedule already in progress, skipping")
		return nil
	}
	e.inFlight = true
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.inFlight = false
		e.mu.Unlock()
	}()

	now := e.now()
	scheduled := e.store.Scheduled()

	var operations []model.RescheduleOperation
	for _, session := range missed {
		operations = append(operations, e.planSession(session, scheduled, now))
	}

	if len(operations) == 0 {
		e.gate.Record(gate.ReasonRescheduleEngine, provenance, gate.StatusExecuted, "No operations generated")
		return nil
	}

	e.applyOperations(operations, now)
	e.gate.RecordSessionsMoved(len(operations))

	e.mu.Lock()
	e.lastRescheduleAt = &now
	e.history = append(e.history, operations...)
	historyCopy := make([]model.RescheduleOperation, len(e.history))
	copy(historyCopy, e.history)
	e.mu.Unlock()

	if err := storage.SaveJSON(e.base, historyFile, historyCopy); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not save reschedule history: %v\n", err)
	} else {
		e.gate.RecordHistoryWritten(len(operations))
	}

	e.notifyUser(operations)

	counts := countByStrategy(operations)
	detail := fmt.Sprintf("Applied %d ops (sameDay=%d, pushed=%d, nextDay=%d, overflow=%d)",
		len(operations),
		counts[model.StrategySameDaySlot],
		counts[model.StrategySameDayPushed],
		counts[model.StrategyNextDay],
		counts[model.StrategyOverflow],
	)
	e.gate.Record(gate.ReasonApplyOperations, provenance, gate.StatusExecuted, detail)
	return nil
}

// planSession runs the strategy cascade for one missed session. It is
// terminal on first success and always yields exactly one operation; no
// step returns an error, infeasibility falls through to overflow.
func (e *Engine) planSession(session model.ScheduledSession, scheduled []model.ScheduledSession, now time.Time) model.RescheduleOperation {
	todayEnd := timecalc.AtHour(now, e.settings.DayEndHour)

	// Strategy 1: free slot today.
	today := model.TimeSlot{Start: now, End: todayEnd}
	if found := e.findFreeSlot(session, today, scheduled); found != nil {
		return e.operation(session, *found, model.StrategySameDaySlot, nil, now)
	}

	// Strategy 2: push lower-priority sessions today.
	if e.settings.PushEnabled {
		if found, pushed := e.findSlotWithPush(session, today, scheduled, now); found != nil {
			return e.operation(session, *found, model.StrategySameDayPushed, pushed, now)
		}
	}

	// Strategy 3: tomorrow, but never past the due date.
	tomorrowStart := timecalc.Midnight(now)
	tomorrowEnd := timecalc.AtHour(tomorrowStart, e.settings.DayEndHour)
	if !session.DueDate.Before(tomorrowStart) {
		tomorrow := model.TimeSlot{Start: tomorrowStart, End: tomorrowEnd}
		if found := e.findFreeSlot(session, tomorrow, scheduled); found != nil {
			return e.operation(session, *found, model.StrategyNextDay, nil, now)
		}
	}

	// Strategy 4: overflow, unchanged in time, flagged for manual attention.
	return e.operation(session, model.TimeSlot{Start: session.Start, End: session.End}, model.StrategyOverflow, nil, now)
}

func (e *Engine) operation(session model.ScheduledSession, slot model.TimeSlot, strategy model.Strategy, pushed []string, now time.Time) model.RescheduleOperation {
	if pushed == nil {
		pushed = []string{}
	}
	return model.RescheduleOperation{
		ID:               uuid.NewString(),
		SessionID:        session.ID,
		OriginalStart:    session.Start,
		OriginalEnd:      session.End,
		NewStart:         slot.Start,
		NewEnd:           slot.End,
		Strategy:         strategy,
		PushedSessionIDs: pushed,
		Timestamp:        now,
	}
}

// findFreeSlot searches the window for a slot of the session's duration
// that conflicts with no other scheduled session.
func (e *Engine) findFreeSlot(session model.ScheduledSession, window model.TimeSlot, scheduled []model.ScheduledSession) *model.TimeSlot {
	duration := time.Duration(session.DurationMinutes()) * time.Minute
	busy := occupiedIntervals(session.ID, window, scheduled)
	return slot.FreeSlot(duration, window, busy)
}

// findSlotWithPush searches the window allowing up to MaxPushCount
// conflicting sessions to be displaced, provided every conflict scores
// strictly lower than the missed session and none is locked or user-edited.
func (e *Engine) findSlotWithPush(session model.ScheduledSession, window model.TimeSlot, scheduled []model.ScheduledSession, now time.Time) (*model.TimeSlot, []string) {
	duration := time.Duration(session.DurationMinutes()) * time.Minute
	if duration <= 0 {
		return nil, nil
	}
	sessionPriority := priority.Score(session, now)

	inRange := make([]model.ScheduledSession, 0, len(scheduled))
	for _, other := range scheduled {
		if other.ID != session.ID && other.Overlaps(window.Start, window.End) {
			inRange = append(inRange, other)
		}
	}
	sort.Slice(inRange, func(i, j int) bool { return inRange[i].Start.Before(inRange[j].Start) })

	current := window.Start
	for current.Before(window.End) {
		proposedEnd := current.Add(duration)
		if proposedEnd.After(window.End) {
			break
		}

		var conflicts []model.ScheduledSession
		for _, other := range inRange {
			if other.Overlaps(current, proposedEnd) {
				conflicts = append(conflicts, other)
			}
		}

		if len(conflicts) <= e.settings.MaxPushCount {
			pushable := true
			for _, c := range conflicts {
				if c.IsLocked || c.IsUserEdited || priority.Score(c, now) >= sessionPriority {
					pushable = false
					break
				}
			}
			if pushable && len(conflicts) > 0 {
				ids := make([]string, len(conflicts))
				for i, c := range conflicts {
					ids[i] = c.ID
				}
				return &model.TimeSlot{Start: current, End: proposedEnd}, ids
			}
		}

		current = current.Add(slot.SearchIncrement)
	}
	return nil, nil
}

// applyOperations commits every operation to the store in one batch:
// overflow sessions leave the scheduled list, moved sessions get their new
// interval and fresh provenance, and displaced sessions are shifted behind
// the displacing session plus a fixed buffer.
func (e *Engine) applyOperations(operations []model.RescheduleOperation, now time.Time) {
	updated := e.store.Scheduled()
	var newOverflow []model.OverflowSession

	for _, op := range operations {
		if idx := indexByID(updated, op.SessionID); idx >= 0 {
			if op.Strategy == model.StrategyOverflow {
				newOverflow = append(newOverflow, updated[idx].ToOverflow(ProvenancePrefix+"overflow", now))
				updated = append(updated[:idx], updated[idx+1:]...)
			} else {
				s := &updated[idx]
				s.Start = op.NewStart
				s.End = op.NewEnd
				s.IsUserEdited = false
				s.UserEditedAt = nil
				s.Provenance = ProvenancePrefix + string(op.Strategy)
				computed := now
				s.ComputedAt = &computed
			}
		}

		for _, pushedID := range op.PushedSessionIDs {
			idx := indexByID(updated, pushedID)
			if idx < 0 {
				continue
			}
			s := &updated[idx]
			s.Start = op.NewEnd.Add(pushBuffer)
			s.End = s.Start.Add(time.Duration(s.EstimatedMinutes) * time.Minute)
			s.IsUserEdited = false
			s.UserEditedAt = nil
			s.Provenance = ProvenancePrefix + "pushed"
			computed := now
			s.ComputedAt = &computed
		}
	}

	e.store.CommitBatch("applyOperations", updated, newOverflow)
}

// notifyUser sends one summary notification for the pass. Failures are
// logged and non-fatal.
func (e *Engine) notifyUser(operations []model.RescheduleOperation) {
	counts := countByStrategy(operations)
	sameDay := counts[model.StrategySameDaySlot] + counts[model.StrategySameDayPushed]
	nextDay := counts[model.StrategyNextDay]
	overflow := counts[model.StrategyOverflow]

	msg := ""
	if sameDay > 0 {
		msg += fmt.Sprintf("Rescheduled %d task(s) for later today. ", sameDay)
	}
	if nextDay > 0 {
		msg += fmt.Sprintf("Moved %d task(s) to tomorrow. ", nextDay)
	}
	if overflow > 0 {
		msg += fmt.Sprintf("%d task(s) need manual scheduling.", overflow)
	}
	if msg == "" {
		return
	}

	if err := e.sink.Send("Schedule Updated", msg, ProvenancePrefix+uuid.NewString()); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not send notification: %v\n", err)
		return
	}
	e.gate.RecordNotificationSent()
}

func countByStrategy(operations []model.RescheduleOperation) map[model.Strategy]int {
	counts := make(map[model.Strategy]int)
	for _, op := range operations {
		counts[op.Strategy]++
	}
	return counts
}

func indexByID(sessions []model.ScheduledSession, id string) int {
	for i := range sessions {
		if sessions[i].ID == id {
			return i
		}
	}
	return -1
}

// occupiedIntervals collects the intervals of every other session
// overlapping the window, sorted by start time.
func occupiedIntervals(excludeID string, window model.TimeSlot, scheduled []model.ScheduledSession) []model.TimeSlot {
	var busy []model.TimeSlot
	for _, s := range scheduled {
		if s.ID == excludeID {
			continue
		}
		if s.Overlaps(window.Start, window.End) {
			busy = append(busy, model.TimeSlot{Start: s.Start, End: s.End})
		}
	}
	sort.Slice(busy, func(i, j int) bool { return busy[i].Start.Before(busy[j].Start) })
	return busy
}
