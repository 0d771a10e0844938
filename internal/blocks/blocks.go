// Package blocks aggregates scheduled sessions into the coarser calendar
// blocks shown on the user's external calendar, and diffs them against
// previously synced events. Aggregation is pure computation.
package blocks

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/planwise/studyplan/internal/model"
	"github.com/planwise/studyplan/internal/timecalc"
)

const (
	// Source marks calendar events owned by this planner; only events
	// carrying it in their metadata are ever deleted by a sync.
	Source = "planner"

	metadataStart = "[StudyPlan]"
	metadataEnd   = "[/StudyPlan]"

	// identityIncrement is the rounding grid for block identity, so that
	// sub-5-minute jitter between recomputations keeps the id stable.
	identityIncrement = 5 * time.Minute
)

// Block is one externally displayed calendar entry spanning one or more
// sessions. Identity is content-addressed; blocks are derived, never edited.
type Block struct {
	ID     string
	Title  string
	Start  time.Time
	End    time.Time
	Notes  string
	DayKey string
}

// Metadata is the planner-ownership marker embedded in an event's notes.
type Metadata struct {
	BlockID string
	Source  string
	DayKey  string
}

// ExistingEvent is the minimal view of an already-synced calendar event
// needed to plan a sync.
type ExistingEvent struct {
	Identifier string
	Title      string
	Start      time.Time
	End        time.Time
	Notes      string
}

// Upsert creates a new event for the block, or updates the event with
// ExistingIdentifier when it is non-empty.
type Upsert struct {
	Block              Block
	ExistingIdentifier string
}

// Plan is the set of calendar mutations that brings the external calendar
// in line with the desired blocks.
type Plan struct {
	Upserts   []Upsert
	Deletions []string
}

// BuildBlocks merges the sessions into blocks: consecutive same-day
// sessions join a block while the gap from the previous session's end is
// at most gapMinutes; a larger gap or a day boundary starts a new block.
func BuildBlocks(sessions []model.ScheduledSession, gapMinutes int) []Block {
	if len(sessions) == 0 {
		return nil
	}
	ordered := make([]model.ScheduledSession, len(sessions))
	copy(ordered, sessions)
	sort.Slice(ordered, func(i, j int) bool {
		if !ordered[i].Start.Equal(ordered[j].Start) {
			return ordered[i].Start.Before(ordered[j].Start)
		}
		return ordered[i].ID < ordered[j].ID
	})
	gapThreshold := time.Duration(gapMinutes) * time.Minute

	var blocks []Block
	var current []model.ScheduledSession
	var currentEnd time.Time

	flush := func() {
		if len(current) == 0 {
			return
		}
		blocks = append(blocks, newBlock(current, currentEnd))
		current = nil
	}

	for _, s := range ordered {
		if len(current) == 0 {
			current = []model.ScheduledSession{s}
			currentEnd = s.End
			continue
		}
		sameDay := timecalc.DayKey(s.Start) == timecalc.DayKey(current[0].Start)
		gap := s.Start.Sub(currentEnd)
		if sameDay && gap >= 0 && gap <= gapThreshold {
			if s.End.After(currentEnd) {
				currentEnd = s.End
			}
			current = append(current, s)
			continue
		}
		flush()
		current = []model.ScheduledSession{s}
		currentEnd = s.End
	}
	flush()
	return blocks
}

func newBlock(sessions []model.ScheduledSession, end time.Time) Block {
	start := sessions[0].Start
	dayKey := timecalc.DayKey(start)
	title := blockTitle(sessions)
	id := blockID(title, dayKey, start, end, sessions)
	return Block{
		ID:     id,
		Title:  title,
		Start:  start,
		End:    end,
		Notes:  buildNotes(id, title, dayKey, start, end, sessions),
		DayKey: dayKey,
	}
}

// blockTitle labels a block after its single shared category, or generically
// when categories are mixed.
func blockTitle(sessions []model.ScheduledSession) string {
	categories := make(map[model.Category]bool)
	for _, s := range sessions {
		categories[s.Category] = true
	}
	if len(categories) == 1 {
		for c := range categories {
			if label, ok := categoryLabels[c]; ok {
				return label + " Session"
			}
		}
	}
	return "Coursework Session"
}

var categoryLabels = map[model.Category]string{
	model.CategoryExam:         "Exam",
	model.CategoryQuiz:         "Quiz",
	model.CategoryProject:      "Project",
	model.CategoryHomework:     "Homework",
	model.CategoryReading:      "Reading",
	model.CategoryPracticeTest: "Practice Test",
	model.CategoryReview:       "Review",
}

// blockID hashes the block's day, kind, rounded interval, and constituent
// session identifiers. Rounding to the identity grid keeps the id stable
// across recomputation jitter; changing the session set changes it.
func blockID(kind, dayKey string, start, end time.Time, sessions []model.ScheduledSession) string {
	roundedStart := timecalc.RoundToIncrement(start, identityIncrement)
	roundedEnd := timecalc.RoundToIncrement(end, identityIncrement)
	payload := fmt.Sprintf("day=%s|kind=%s|start=%s|end=%s|items=%s",
		dayKey, kind,
		roundedStart.UTC().Format(time.RFC3339),
		roundedEnd.UTC().Format(time.RFC3339),
		itemList(sessions),
	)
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

// itemList renders the sessions as "assignmentId:sessionId" pairs in start
// order.
func itemList(sessions []model.ScheduledSession) string {
	items := make([]string, len(sessions))
	for i, s := range sessions {
		assignment := "none"
		if s.AssignmentID != nil {
			assignment = *s.AssignmentID
		}
		items[i] = assignment + ":" + s.ID
	}
	return strings.Join(items, ",")
}

// buildNotes renders the human-readable due list followed by the machine
// metadata trailer that marks the event as planner-owned.
func buildNotes(id, kind, dayKey string, start, end time.Time, sessions []model.ScheduledSession) string {
	seen := make(map[string]bool)
	lines := []string{"Due:"}
	for _, s := range sessions {
		key := s.ID
		if s.AssignmentID != nil {
			key = *s.AssignmentID
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		lines = append(lines, fmt.Sprintf("- %s (Due: %s)", s.Title, s.DueDate.Format("Jan 2, 2006 3:04 PM")))
	}

	var b strings.Builder
	b.WriteString(strings.Join(lines, "\n"))
	b.WriteString("\n\n")
	b.WriteString(metadataStart + "\n")
	fmt.Fprintf(&b, "block_id: %s\n", id)
	fmt.Fprintf(&b, "source: %s\n", Source)
	fmt.Fprintf(&b, "day_key: %s\n", dayKey)
	fmt.Fprintf(&b, "kind: %s\n", kind)
	fmt.Fprintf(&b, "start: %s\n", start.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "end: %s\n", end.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "items: %s\n", itemList(sessions))
	b.WriteString(metadataEnd)
	return b.String()
}

// ParseMetadata extracts the planner metadata trailer from event notes.
// It returns false when the notes carry no well-formed trailer.
func ParseMetadata(notes string) (Metadata, bool) {
	startIdx := strings.Index(notes, metadataStart)
	if startIdx < 0 {
		return Metadata{}, false
	}
	rest := notes[startIdx+len(metadataStart):]
	endIdx := strings.Index(rest, metadataEnd)
	if endIdx < 0 {
		return Metadata{}, false
	}

	var m Metadata
	for _, line := range strings.Split(rest[:endIdx], "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "block_id":
			m.BlockID = value
		case "source":
			m.Source = value
		case "day_key":
			m.DayKey = value
		}
	}
	if m.BlockID == "" || m.Source == "" || m.DayKey == "" {
		return Metadata{}, false
	}
	return m, true
}

// SyncPlan diffs the desired blocks against the events currently on the
// external calendar. Matched but changed blocks become updates, unmatched
// blocks become creates, and planner-owned events within the range whose
// block no longer exists, plus duplicates of a matched block, are deleted.
// Events without planner metadata are never touched.
func SyncPlan(desired []Block, existing []ExistingEvent, from, to time.Time) Plan {
	blockIDs := make(map[string]bool, len(desired))
	for _, b := range desired {
		blockIDs[b.ID] = true
	}

	type ownedEvent struct {
		event ExistingEvent
		meta  Metadata
	}
	var owned []ownedEvent
	for _, e := range existing {
		if m, ok := ParseMetadata(e.Notes); ok {
			owned = append(owned, ownedEvent{e, m})
		}
	}

	// keep holds the one event identifier matched to each desired block;
	// any further event carrying the same block id is a duplicate.
	keep := make(map[string]bool)
	var plan Plan
	for _, block := range desired {
		matched := false
		for _, oe := range owned {
			if oe.meta.BlockID != block.ID {
				continue
			}
			matched = true
			keep[oe.event.Identifier] = true
			if oe.event.Title != block.Title ||
				!oe.event.Start.Equal(block.Start) ||
				!oe.event.End.Equal(block.End) ||
				oe.event.Notes != block.Notes {
				plan.Upserts = append(plan.Upserts, Upsert{Block: block, ExistingIdentifier: oe.event.Identifier})
			}
			break
		}
		if !matched {
			plan.Upserts = append(plan.Upserts, Upsert{Block: block})
		}
	}

	inRange := func(t time.Time) bool {
		return !t.Before(from) && !t.After(to)
	}
	for _, oe := range owned {
		if oe.meta.Source != Source || oe.meta.BlockID == "" {
			continue
		}
		if !inRange(oe.event.Start) && !inRange(oe.event.End) {
			continue
		}
		if keep[oe.event.Identifier] {
			continue
		}
		plan.Deletions = append(plan.Deletions, oe.event.Identifier)
	}
	return plan
}
