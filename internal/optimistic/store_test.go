package optimistic_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/planwise/studyplan/internal/calendar"
	"github.com/planwise/studyplan/internal/optimistic"
)

var (
	t0    = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	start = time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)
)

// fakeClient serves events from a map and records removals.
type fakeClient struct {
	events   map[string]calendar.Event
	fetchErr error
}

func (f *fakeClient) Fetch(ctx context.Context, id string) (calendar.Event, error) {
	if f.fetchErr != nil {
		return calendar.Event{}, f.fetchErr
	}
	e, ok := f.events[id]
	if !ok {
		return calendar.Event{}, fmt.Errorf("fetch %s: %w", id, calendar.ErrEventNotFound)
	}
	return e, nil
}

func (f *fakeClient) Save(ctx context.Context, event calendar.Event) (calendar.Event, error) {
	f.events[event.ID] = event
	return event, nil
}

func (f *fakeClient) Remove(ctx context.Context, id string) error {
	if _, ok := f.events[id]; !ok {
		return fmt.Errorf("remove %s: %w", id, calendar.ErrEventNotFound)
	}
	delete(f.events, id)
	return nil
}

func (f *fakeClient) ListEvents(ctx context.Context, from, to time.Time) ([]calendar.Event, error) {
	var out []calendar.Event
	for _, e := range f.events {
		out = append(out, e)
	}
	return out, nil
}

func event(id string, lastModified time.Time) calendar.Event {
	return calendar.Event{
		ID:             id,
		Title:          "Study Block",
		Start:          start,
		End:            start.Add(time.Hour),
		Notes:          "notes",
		LastModifiedAt: lastModified,
	}
}

type refreshCall struct {
	from, to time.Time
	reason   string
}

func TestApplyCleanCommit(t *testing.T) {
	client := &fakeClient{events: map[string]calendar.Event{
		"e1": event("e1", t0.Add(-time.Hour)),
	}}
	var refreshes []refreshCall
	store := optimistic.New(client, func(ctx context.Context, from, to time.Time, reason string) {
		refreshes = append(refreshes, refreshCall{from, to, reason})
	}, optimistic.WithClock(func() time.Time { return t0 }))

	err := store.Apply(context.Background(), "e1", func(ctx context.Context) error {
		e := client.events["e1"]
		e.Title = "Study Block (moved)"
		client.events["e1"] = e
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	if store.HasPending("e1") {
		t.Error("edit still pending after successful reconciliation")
	}
	if _, ok := store.ConflictFor("e1"); ok {
		t.Error("conflict recorded for a clean commit")
	}
	if len(refreshes) != 1 || refreshes[0].reason != "reconciliationComplete" {
		t.Fatalf("refreshes = %v", refreshes)
	}
	// Refresh range is padded an hour around the event.
	if !refreshes[0].from.Equal(start.Add(-time.Hour)) {
		t.Errorf("refresh from = %v", refreshes[0].from)
	}
}

func TestApplyDetectsExternalModification(t *testing.T) {
	// The external copy was touched after our snapshot and its title
	// differs.
	client := &fakeClient{events: map[string]calendar.Event{
		"e1": event("e1", t0.Add(-time.Hour)),
	}}
	store := optimistic.New(client, nil, optimistic.WithClock(func() time.Time { return t0 }))

	err := store.Apply(context.Background(), "e1", func(ctx context.Context) error {
		e := client.events["e1"]
		e.Title = "Renamed Elsewhere"
		e.LastModifiedAt = t0.Add(time.Minute)
		client.events["e1"] = e
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	c, ok := store.ConflictFor("e1")
	if !ok {
		t.Fatal("no conflict recorded")
	}
	if c.Type != optimistic.ConflictModifiedExternally {
		t.Errorf("type = %q, want modifiedExternally", c.Type)
	}
	if c.Resolution != optimistic.ResolutionAcceptExternalTruth {
		t.Errorf("resolution = %q, only external truth may be auto-applied", c.Resolution)
	}
	if c.PreSave == nil || c.PostSave == nil {
		t.Error("modified conflict must carry both snapshots")
	}
	// Commit succeeded, so the edit counts as applied.
	if store.HasPending("e1") {
		t.Error("edit still pending after detected modification")
	}
}

func TestApplyTimestampOnlyChangeIsNoConflict(t *testing.T) {
	// Newer last-modified but identical fields (our own save bumped it).
	client := &fakeClient{events: map[string]calendar.Event{
		"e1": event("e1", t0.Add(-time.Hour)),
	}}
	store := optimistic.New(client, nil, optimistic.WithClock(func() time.Time { return t0 }))

	err := store.Apply(context.Background(), "e1", func(ctx context.Context) error {
		e := client.events["e1"]
		e.LastModifiedAt = t0.Add(time.Minute)
		client.events["e1"] = e
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := store.ConflictFor("e1"); ok {
		t.Error("conflict recorded although no field differs from the snapshot")
	}
}

func TestApplyDetectsExternalDeletion(t *testing.T) {
	client := &fakeClient{events: map[string]calendar.Event{
		"e1": event("e1", t0.Add(-time.Hour)),
	}}
	var refreshes []refreshCall
	store := optimistic.New(client, func(ctx context.Context, from, to time.Time, reason string) {
		refreshes = append(refreshes, refreshCall{from, to, reason})
	}, optimistic.WithClock(func() time.Time { return t0 }))

	err := store.Apply(context.Background(), "e1", func(ctx context.Context) error {
		delete(client.events, "e1")
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	c, ok := store.ConflictFor("e1")
	if !ok || c.Type != optimistic.ConflictDeletedExternally {
		t.Fatalf("conflict = %+v, want deletedExternally", c)
	}
	if store.HasPending("e1") {
		t.Error("pending state kept after external deletion")
	}
	if len(refreshes) != 1 || refreshes[0].reason != "conflictDetected:deleted" {
		t.Errorf("refreshes = %v", refreshes)
	}
}

func TestApplyCommitNotFoundTreatedAsDeleted(t *testing.T) {
	client := &fakeClient{events: map[string]calendar.Event{
		"e1": event("e1", t0.Add(-time.Hour)),
	}}
	store := optimistic.New(client, nil, optimistic.WithClock(func() time.Time { return t0 }))

	wantErr := fmt.Errorf("save: %w", calendar.ErrEventNotFound)
	err := store.Apply(context.Background(), "e1", func(ctx context.Context) error {
		return wantErr
	})
	if !errors.Is(err, calendar.ErrEventNotFound) {
		t.Fatalf("err = %v", err)
	}

	c, ok := store.ConflictFor("e1")
	if !ok || c.Type != optimistic.ConflictDeletedExternally {
		t.Fatalf("conflict = %+v, want deletedExternally", c)
	}
	if _, failed := store.FailedUpdate("e1"); failed {
		t.Error("deletion during commit must not be recorded as retryable failure")
	}
}

func TestApplyFailureIsRetryable(t *testing.T) {
	client := &fakeClient{events: map[string]calendar.Event{
		"e1": event("e1", t0.Add(-time.Hour)),
	}}
	store := optimistic.New(client, nil, optimistic.WithClock(func() time.Time { return t0 }))

	attempts := 0
	boom := errors.New("network down")
	commit := func(ctx context.Context) error {
		attempts++
		if attempts == 1 {
			return boom
		}
		return nil
	}

	if err := store.Apply(context.Background(), "e1", commit); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	if _, ok := store.FailedUpdate("e1"); !ok {
		t.Fatal("failure not recorded")
	}
	if !store.HasPending("e1") {
		t.Error("optimistic state must stay visible while failed")
	}

	if err := store.Retry(context.Background(), "e1"); err != nil {
		t.Fatalf("retry err = %v", err)
	}
	if attempts != 2 {
		t.Fatalf("attempts = %d, want 2", attempts)
	}
	if _, ok := store.FailedUpdate("e1"); ok {
		t.Error("failure kept after successful retry")
	}
	if store.HasPending("e1") {
		t.Error("pending state kept after successful retry")
	}
}

func TestRetryWithoutFailureIsNoOp(t *testing.T) {
	client := &fakeClient{events: map[string]calendar.Event{}}
	store := optimistic.New(client, nil)
	if err := store.Retry(context.Background(), "nope"); err != nil {
		t.Errorf("err = %v, want nil", err)
	}
}
