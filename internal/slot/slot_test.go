package slot_test

import (
	"testing"
	"time"

	"github.com/planwise/studyplan/internal/model"
	"github.com/planwise/studyplan/internal/slot"
)

func at(h, m int) time.Time {
	return time.Date(2026, 2, 27, h, m, 0, 0, time.UTC)
}

func TestFreeSlotEmptyWindow(t *testing.T) {
	window := model.TimeSlot{Start: at(9, 0), End: at(21, 0)}
	got := slot.FreeSlot(30*time.Minute, window, nil)
	if got == nil {
		t.Fatal("expected a slot in an empty window")
	}
	if !got.Start.Equal(at(9, 0)) || !got.End.Equal(at(9, 30)) {
		t.Errorf("slot = [%v, %v), want [09:00, 09:30)", got.Start, got.End)
	}
}

func TestFreeSlotSkipsBusy(t *testing.T) {
	window := model.TimeSlot{Start: at(9, 0), End: at(21, 0)}
	busy := []model.TimeSlot{
		{Start: at(9, 0), End: at(10, 0)},
		{Start: at(10, 15), End: at(11, 0)},
	}
	got := slot.FreeSlot(30*time.Minute, window, busy)
	if got == nil {
		t.Fatal("expected a slot")
	}
	// 10:00 collides with the 10:15 interval for a 30m duration, so the
	// first fit is 11:00.
	if !got.Start.Equal(at(11, 0)) {
		t.Errorf("slot start = %v, want 11:00", got.Start)
	}

	// Slot non-overlap property.
	for _, b := range busy {
		if b.Overlaps(got.Start, got.End) {
			t.Errorf("slot [%v, %v) overlaps busy [%v, %v)", got.Start, got.End, b.Start, b.End)
		}
	}
}

func TestFreeSlotNoFit(t *testing.T) {
	window := model.TimeSlot{Start: at(20, 0), End: at(21, 0)}
	got := slot.FreeSlot(2*time.Hour, window, nil)
	if got != nil {
		t.Errorf("expected nil, got [%v, %v)", got.Start, got.End)
	}
}

func TestFreeSlotSaturatedWindow(t *testing.T) {
	window := model.TimeSlot{Start: at(10, 31), End: at(21, 0)}
	busy := []model.TimeSlot{{Start: at(9, 0), End: at(21, 0)}}
	if got := slot.FreeSlot(30*time.Minute, window, busy); got != nil {
		t.Errorf("expected nil in saturated window, got [%v, %v)", got.Start, got.End)
	}
}

func TestSubtractSplits(t *testing.T) {
	slots := []model.TimeSlot{{Start: at(9, 0), End: at(17, 0)}}
	busy := model.TimeSlot{Start: at(12, 0), End: at(13, 0)}

	got := slot.Subtract(busy, slots)
	if len(got) != 2 {
		t.Fatalf("slots = %d, want 2", len(got))
	}
	if !got[0].Start.Equal(at(9, 0)) || !got[0].End.Equal(at(12, 0)) {
		t.Errorf("left = [%v, %v), want [09:00, 12:00)", got[0].Start, got[0].End)
	}
	if !got[1].Start.Equal(at(13, 0)) || !got[1].End.Equal(at(17, 0)) {
		t.Errorf("right = [%v, %v), want [13:00, 17:00)", got[1].Start, got[1].End)
	}
}

func TestSubtractEdges(t *testing.T) {
	slots := []model.TimeSlot{{Start: at(9, 0), End: at(17, 0)}}

	// Busy covers the slot head: one remainder.
	got := slot.Subtract(model.TimeSlot{Start: at(8, 0), End: at(10, 0)}, slots)
	if len(got) != 1 || !got[0].Start.Equal(at(10, 0)) {
		t.Errorf("head subtract = %v, want single [10:00, 17:00)", got)
	}

	// Busy covers the whole slot: nothing left.
	got = slot.Subtract(model.TimeSlot{Start: at(8, 0), End: at(18, 0)}, slots)
	if len(got) != 0 {
		t.Errorf("full subtract = %v, want empty", got)
	}

	// Busy touching the end boundary only: untouched.
	got = slot.Subtract(model.TimeSlot{Start: at(17, 0), End: at(18, 0)}, slots)
	if len(got) != 1 || !got[0].Start.Equal(at(9, 0)) || !got[0].End.Equal(at(17, 0)) {
		t.Errorf("boundary subtract = %v, want original slot", got)
	}
}

func TestDailyFree(t *testing.T) {
	start := time.Date(2026, 2, 27, 0, 0, 0, 0, time.UTC)
	busy := []model.TimeSlot{
		{Start: at(10, 0), End: at(11, 0)},
		// Second day is fully busy 09:00-17:00.
		{
			Start: time.Date(2026, 2, 28, 8, 0, 0, 0, time.UTC),
			End:   time.Date(2026, 2, 28, 18, 0, 0, 0, time.UTC),
		},
	}

	got := slot.DailyFree(start, 2, 9, 17, busy)
	if len(got) != 2 {
		t.Fatalf("slots = %d, want 2 (day two fully busy)", len(got))
	}
	if !got[0].Start.Equal(at(9, 0)) || !got[0].End.Equal(at(10, 0)) {
		t.Errorf("first = [%v, %v), want [09:00, 10:00)", got[0].Start, got[0].End)
	}
	if !got[1].Start.Equal(at(11, 0)) || !got[1].End.Equal(at(17, 0)) {
		t.Errorf("second = [%v, %v), want [11:00, 17:00)", got[1].Start, got[1].End)
	}

	// No produced slot overlaps any busy interval.
	for _, s := range got {
		for _, b := range busy {
			if b.Overlaps(s.Start, s.End) {
				t.Errorf("free slot [%v, %v) overlaps busy [%v, %v)", s.Start, s.End, b.Start, b.End)
			}
		}
	}
}
