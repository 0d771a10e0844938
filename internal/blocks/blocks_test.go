package blocks_test

import (
	"testing"
	"time"

	"github.com/planwise/studyplan/internal/blocks"
	"github.com/planwise/studyplan/internal/model"
)

var base = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func session(id string, category model.Category, start time.Time, minutes int) model.ScheduledSession {
	assignment := "assignment-" + id
	return model.ScheduledSession{
		ID:               id,
		AssignmentID:     &assignment,
		Title:            "Session " + id,
		DueDate:          start.AddDate(0, 0, 2),
		EstimatedMinutes: minutes,
		Start:            start,
		End:              start.Add(time.Duration(minutes) * time.Minute),
		Category:         category,
		Type:             model.TypeStudy,
	}
}

func TestMergeWithinGap(t *testing.T) {
	got := blocks.BuildBlocks([]model.ScheduledSession{
		session("a", model.CategoryExam, base, 60),
		session("b", model.CategoryExam, base.Add(70*time.Minute), 60),
	}, 10)
	if len(got) != 1 {
		t.Fatalf("blocks = %d, want 1 (10m gap merges at 10m threshold)", len(got))
	}
	b := got[0]
	if !b.Start.Equal(base) || !b.End.Equal(base.Add(130*time.Minute)) {
		t.Errorf("block = [%v, %v)", b.Start, b.End)
	}
	if b.Title != "Exam Session" {
		t.Errorf("title = %q, want single-category label", b.Title)
	}
	if b.DayKey != "2026-03-02" {
		t.Errorf("day key = %q", b.DayKey)
	}
}

func TestGapOverThresholdSplits(t *testing.T) {
	got := blocks.BuildBlocks([]model.ScheduledSession{
		session("a", model.CategoryExam, base, 60),
		session("b", model.CategoryExam, base.Add(71*time.Minute), 60),
	}, 10)
	if len(got) != 2 {
		t.Fatalf("blocks = %d, want 2 (11m gap exceeds 10m threshold)", len(got))
	}
}

func TestDayBoundarySplits(t *testing.T) {
	lateNight := time.Date(2026, 3, 2, 23, 45, 0, 0, time.UTC)
	got := blocks.BuildBlocks([]model.ScheduledSession{
		session("a", model.CategoryReading, lateNight, 15),
		session("b", model.CategoryReading, lateNight.Add(15*time.Minute), 30),
	}, 10)
	if len(got) != 2 {
		t.Fatalf("blocks = %d, want 2 (midnight starts a new block)", len(got))
	}
	if got[0].DayKey != "2026-03-02" || got[1].DayKey != "2026-03-03" {
		t.Errorf("day keys = %q, %q", got[0].DayKey, got[1].DayKey)
	}
}

func TestMixedCategoriesGenericTitle(t *testing.T) {
	got := blocks.BuildBlocks([]model.ScheduledSession{
		session("a", model.CategoryHomework, base, 30),
		session("b", model.CategoryReading, base.Add(30*time.Minute), 30),
	}, 10)
	if len(got) != 1 {
		t.Fatalf("blocks = %d, want 1", len(got))
	}
	if got[0].Title != "Coursework Session" {
		t.Errorf("title = %q, want generic label for mixed categories", got[0].Title)
	}
}

// Identity is stable across input order and sub-grid jitter, and changes
// with the session set.
func TestBlockIdentityStability(t *testing.T) {
	a := session("a", model.CategoryExam, base, 60)
	b := session("b", model.CategoryExam, base.Add(65*time.Minute), 60)

	first := blocks.BuildBlocks([]model.ScheduledSession{a, b}, 10)
	reordered := blocks.BuildBlocks([]model.ScheduledSession{b, a}, 10)
	if len(first) != 1 || len(reordered) != 1 {
		t.Fatalf("blocks = %d/%d, want 1/1", len(first), len(reordered))
	}
	if first[0].ID != reordered[0].ID {
		t.Error("reordering input changed block identity")
	}

	// Jitter below the 5-minute identity grid.
	jittered := a
	jittered.Start = a.Start.Add(time.Minute)
	jitteredBlocks := blocks.BuildBlocks([]model.ScheduledSession{jittered, b}, 10)
	if jitteredBlocks[0].ID != first[0].ID {
		t.Error("sub-grid jitter changed block identity")
	}

	// A different session set must produce a different id.
	c := session("c", model.CategoryExam, base.Add(65*time.Minute), 60)
	changed := blocks.BuildBlocks([]model.ScheduledSession{a, c}, 10)
	if changed[0].ID == first[0].ID {
		t.Error("changed session set kept the old block identity")
	}
}

func TestParseMetadataRoundTrip(t *testing.T) {
	got := blocks.BuildBlocks([]model.ScheduledSession{session("a", model.CategoryReview, base, 45)}, 10)
	m, ok := blocks.ParseMetadata(got[0].Notes)
	if !ok {
		t.Fatal("notes carry no parseable metadata")
	}
	if m.BlockID != got[0].ID {
		t.Errorf("block id = %q, want %q", m.BlockID, got[0].ID)
	}
	if m.Source != blocks.Source {
		t.Errorf("source = %q", m.Source)
	}
	if m.DayKey != got[0].DayKey {
		t.Errorf("day key = %q, want %q", m.DayKey, got[0].DayKey)
	}
}

func TestParseMetadataRejectsIncomplete(t *testing.T) {
	for _, notes := range []string{
		"No metadata at all",
		"[StudyPlan]\nblock_id: \nsource: planner\nday_key: 2026-03-02\n[/StudyPlan]",
		"[StudyPlan]\nblock_id: abc\n",
	} {
		if _, ok := blocks.ParseMetadata(notes); ok {
			t.Errorf("parsed metadata from %q", notes)
		}
	}
}

func TestSyncPlanIdempotent(t *testing.T) {
	desired := blocks.BuildBlocks([]model.ScheduledSession{session("a", model.CategoryReview, base, 45)}, 10)
	block := desired[0]
	existing := []blocks.ExistingEvent{{
		Identifier: "event-1",
		Title:      block.Title,
		Start:      block.Start,
		End:        block.End,
		Notes:      block.Notes,
	}}

	plan := blocks.SyncPlan(desired, existing, block.Start, block.End)
	if len(plan.Upserts) != 0 || len(plan.Deletions) != 0 {
		t.Errorf("plan = %+v, want empty for an already-synced calendar", plan)
	}
}

func TestSyncPlanCreatesUpdatesDeletes(t *testing.T) {
	desired := blocks.BuildBlocks([]model.ScheduledSession{
		session("a", model.CategoryReview, base, 45),
		session("b", model.CategoryHomework, base.Add(4*time.Hour), 30),
	}, 10)
	blockA, blockB := desired[0], desired[1]

	// blockA exists but drifted; blockB is new; a stale planner event and a
	// duplicate of blockA must both be deleted.
	stale := blocks.ExistingEvent{
		Identifier: "stale",
		Title:      "Old Session",
		Start:      base.Add(-2 * time.Hour),
		End:        base.Add(-time.Hour),
		Notes:      "[StudyPlan]\nblock_id: gone\nsource: planner\nday_key: 2026-03-02\n[/StudyPlan]",
	}
	drifted := blocks.ExistingEvent{
		Identifier: "drifted",
		Title:      blockA.Title,
		Start:      blockA.Start.Add(30 * time.Minute),
		End:        blockA.End.Add(30 * time.Minute),
		Notes:      blockA.Notes,
	}
	duplicate := blocks.ExistingEvent{
		Identifier: "duplicate",
		Title:      blockA.Title,
		Start:      blockA.Start,
		End:        blockA.End,
		Notes:      blockA.Notes,
	}

	plan := blocks.SyncPlan(desired, []blocks.ExistingEvent{stale, drifted, duplicate}, base.Add(-3*time.Hour), base.Add(6*time.Hour))

	if len(plan.Upserts) != 2 {
		t.Fatalf("upserts = %d, want 2", len(plan.Upserts))
	}
	if plan.Upserts[0].Block.ID != blockA.ID || plan.Upserts[0].ExistingIdentifier != "drifted" {
		t.Errorf("upsert[0] = %+v, want update of drifted event", plan.Upserts[0])
	}
	if plan.Upserts[1].Block.ID != blockB.ID || plan.Upserts[1].ExistingIdentifier != "" {
		t.Errorf("upsert[1] = %+v, want create", plan.Upserts[1])
	}

	wantDeleted := map[string]bool{"stale": true, "duplicate": true}
	if len(plan.Deletions) != 2 {
		t.Fatalf("deletions = %v, want stale and duplicate", plan.Deletions)
	}
	for _, id := range plan.Deletions {
		if !wantDeleted[id] {
			t.Errorf("unexpected deletion %q", id)
		}
	}
}

func TestSyncPlanNeverTouchesForeignEvents(t *testing.T) {
	desired := blocks.BuildBlocks([]model.ScheduledSession{session("a", model.CategoryHomework, base, 30)}, 10)
	foreign := blocks.ExistingEvent{
		Identifier: "foreign",
		Title:      "Dentist",
		Start:      base,
		End:        base.Add(30 * time.Minute),
		Notes:      "No metadata",
	}

	plan := blocks.SyncPlan(desired, []blocks.ExistingEvent{foreign}, base, base.Add(time.Hour))
	if len(plan.Deletions) != 0 {
		t.Errorf("deletions = %v, foreign events must never be deleted", plan.Deletions)
	}
}
