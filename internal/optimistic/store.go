// Package optimistic reconciles local calendar edits against the
// externally-owned calendar. Edits apply locally at once and commit in the
// background; after every commit the external state is re-fetched and
// conflicts with concurrent external changes are surfaced. The external
// calendar always wins for display.
package optimistic

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/planwise/studyplan/internal/calendar"
)

// refreshPadding widens the refresh range around an affected event.
const refreshPadding = time.Hour

// Resolution is how a conflict gets resolved. Only accepting external
// truth is implemented; the other values are modeled for future use and
// must never be auto-applied.
type Resolution string

const (
	ResolutionAcceptExternalTruth Resolution = "acceptExternalTruth"
	ResolutionRetryLocal          Resolution = "retryLocal"
	ResolutionUserChoice          Resolution = "userChoice"
)

// ConflictType classifies what the external party did during our edit.
type ConflictType string

const (
	ConflictDeletedExternally  ConflictType = "deletedExternally"
	ConflictModifiedExternally ConflictType = "modifiedExternally"
)

// Snapshot is the external event state captured before a save, used to
// detect concurrent external changes.
type Snapshot struct {
	Identifier     string
	Title          string
	Start          time.Time
	End            time.Time
	Location       string
	Notes          string
	LastModifiedAt time.Time
	CapturedAt     time.Time
}

// PendingUpdate is a local edit not yet confirmed by the external calendar.
type PendingUpdate struct {
	Identifier      string
	PendingSince    time.Time
	PreSaveSnapshot *Snapshot
}

// UpdateFailure is a commit that failed and may be retried.
type UpdateFailure struct {
	Identifier string
	Err        error
	Timestamp  time.Time
}

// Conflict records a concurrent external change detected around a save.
// PreSave and PostSave are set for modifiedExternally conflicts.
type Conflict struct {
	Identifier string
	Type       ConflictType
	PreSave    *Snapshot
	PostSave   *Snapshot
	DetectedAt time.Time
	Resolution Resolution
}

// UserFacingMessage describes the conflict for display.
func (c Conflict) UserFacingMessage() string {
	if c.Type == ConflictDeletedExternally {
		return "This event was deleted by another app or device."
	}
	return "This event was modified by another app or device during your edit."
}

// CommitFunc pushes one local edit to the external calendar.
type CommitFunc func(ctx context.Context) error

// RefreshFunc re-reads a date range from the external calendar so stale
// local state does not linger.
type RefreshFunc func(ctx context.Context, from, to time.Time, reason string)

// Store tracks pending, failed, and conflicted edits per event identifier.
type Store struct {
	mu        sync.Mutex
	client    calendar.Client
	refresh   RefreshFunc
	now       func() time.Time
	pending   map[string]PendingUpdate
	failed    map[string]UpdateFailure
	conflicts map[string]Conflict
	retries   map[string]CommitFunc
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the clock function, for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New returns a store over the given external client. refresh may be nil.
func New(client calendar.Client, refresh RefreshFunc, opts ...Option) *Store {
	s := &Store{
		client:    client,
		refresh:   refresh,
		now:       time.Now,
		pending:   make(map[string]PendingUpdate),
		failed:    make(map[string]UpdateFailure),
		conflicts: make(map[string]Conflict),
		retries:   make(map[string]CommitFunc),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Apply runs one optimistic edit: capture the pre-save snapshot, mark the
// edit pending, commit, then reconcile against re-fetched external state.
// The returned error reflects the commit outcome; conflict detection never
// errors.
func (s *Store) Apply(ctx context.Context, id string, commit CommitFunc) error {
	pre := s.captureSnapshot(ctx, id)

	s.mu.Lock()
	if _, ok := s.pending[id]; !ok {
		s.pending[id] = PendingUpdate{
			Identifier:      id,
			PendingSince:    s.now(),
			PreSaveSnapshot: pre,
		}
	}
	s.retries[id] = commit
	s.mu.Unlock()

	return s.commitAndReconcile(ctx, id, pre, commit)
}

// Retry re-runs the stored commit for a failed edit. It is a no-op when the
// edit is not in a failed state.
func (s *Store) Retry(ctx context.Context, id string) error {
	s.mu.Lock()
	if _, ok := s.failed[id]; !ok {
		s.mu.Unlock()
		return nil
	}
	delete(s.failed, id)
	commit := s.retries[id]
	var pre *Snapshot
	if p, ok := s.pending[id]; ok {
		pre = p.PreSaveSnapshot
	}
	s.mu.Unlock()

	if commit == nil {
		return nil
	}
	return s.commitAndReconcile(ctx, id, pre, commit)
}

func (s *Store) commitAndReconcile(ctx context.Context, id string, pre *Snapshot, commit CommitFunc) error {
	if err := commit(ctx); err != nil {
		if errors.Is(err, calendar.ErrEventNotFound) {
			// The entity vanished under the commit; same as a post-save
			// deletion.
			s.recordDeleted(ctx, id, pre)
			return err
		}
		s.mu.Lock()
		s.failed[id] = UpdateFailure{Identifier: id, Err: err, Timestamp: s.now()}
		s.mu.Unlock()
		s.triggerRefresh(ctx, pre, nil, "optimisticSaveFailed")
		fmt.Fprintf(os.Stderr, "Warning: calendar commit failed for %s: %v\n", id, err)
		return err
	}

	s.reconcileAfterSave(ctx, id, pre)
	return nil
}

// reconcileAfterSave fetches external truth after a successful commit and
// records any conflict. The local edit is considered applied either way.
func (s *Store) reconcileAfterSave(ctx context.Context, id string, pre *Snapshot) {
	post, err := s.client.Fetch(ctx, id)
	if err != nil {
		if errors.Is(err, calendar.ErrEventNotFound) {
			s.recordDeleted(ctx, id, pre)
			return
		}
		// Transient fetch failure: skip conflict detection, external truth
		// arrives with the next refresh.
		fmt.Fprintf(os.Stderr, "Warning: post-save fetch failed for %s: %v\n", id, err)
	} else if pre != nil && post.LastModifiedAt.After(pre.CapturedAt) {
		if post.Title != pre.Title ||
			!post.Start.Equal(pre.Start) ||
			!post.End.Equal(pre.End) ||
			post.Location != pre.Location ||
			post.Notes != pre.Notes {
			postSnap := s.snapshotOf(post)
			s.mu.Lock()
			s.conflicts[id] = Conflict{
				Identifier: id,
				Type:       ConflictModifiedExternally,
				PreSave:    pre,
				PostSave:   &postSnap,
				DetectedAt: s.now(),
				Resolution: ResolutionAcceptExternalTruth,
			}
			s.mu.Unlock()
		}
	}

	s.mu.Lock()
	delete(s.pending, id)
	delete(s.failed, id)
	delete(s.retries, id)
	s.mu.Unlock()

	var postSnap *Snapshot
	if err == nil {
		snap := s.snapshotOf(post)
		postSnap = &snap
	}
	s.triggerRefresh(ctx, pre, postSnap, "reconciliationComplete")
}

func (s *Store) recordDeleted(ctx context.Context, id string, pre *Snapshot) {
	s.mu.Lock()
	s.conflicts[id] = Conflict{
		Identifier: id,
		Type:       ConflictDeletedExternally,
		DetectedAt: s.now(),
		Resolution: ResolutionAcceptExternalTruth,
	}
	delete(s.pending, id)
	delete(s.failed, id)
	delete(s.retries, id)
	s.mu.Unlock()
	s.triggerRefresh(ctx, pre, nil, "conflictDetected:deleted")
}

func (s *Store) captureSnapshot(ctx context.Context, id string) *Snapshot {
	if id == "" {
		return nil
	}
	event, err := s.client.Fetch(ctx, id)
	if err != nil {
		return nil
	}
	snap := s.snapshotOf(event)
	return &snap
}

func (s *Store) snapshotOf(e calendar.Event) Snapshot {
	return Snapshot{
		Identifier:     e.ID,
		Title:          e.Title,
		Start:          e.Start,
		End:            e.End,
		Location:       e.Location,
		Notes:          e.Notes,
		LastModifiedAt: e.LastModifiedAt,
		CapturedAt:     s.now(),
	}
}

// triggerRefresh requests a re-read of the hour-padded range around the
// affected event.
func (s *Store) triggerRefresh(ctx context.Context, pre, post *Snapshot, reason string) {
	if s.refresh == nil {
		return
	}
	var start, end time.Time
	for _, snap := range []*Snapshot{pre, post} {
		if snap == nil {
			continue
		}
		if start.IsZero() || snap.Start.Before(start) {
			start = snap.Start
		}
		if end.IsZero() || snap.End.After(end) {
			end = snap.End
		}
	}
	if start.IsZero() || end.IsZero() {
		return
	}
	s.refresh(ctx, start.Add(-refreshPadding), end.Add(refreshPadding), reason)
}

// HasPending reports whether the event has an uncommitted local edit.
func (s *Store) HasPending(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[id]
	return ok
}

// FailedUpdate returns the failure for an event, if any.
func (s *Store) FailedUpdate(id string) (UpdateFailure, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.failed[id]
	return f, ok
}

// ConflictFor returns the detected conflict for an event, if any.
func (s *Store) ConflictFor(id string) (Conflict, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conflicts[id]
	return c, ok
}

// ClearFailed drops the failed and pending state for an event after the
// user acknowledged the error.
func (s *Store) ClearFailed(id string) {
	s.mu.Lock()
	delete(s.failed, id)
	delete(s.pending, id)
	delete(s.retries, id)
	s.mu.Unlock()
}

// ClearConflict drops the conflict record after the user acknowledged it.
func (s *Store) ClearConflict(id string) {
	s.mu.Lock()
	delete(s.conflicts, id)
	s.mu.Unlock()
}

// ClearAll drops all pending and failed state.
func (s *Store) ClearAll() {
	s.mu.Lock()
	s.pending = make(map[string]PendingUpdate)
	s.failed = make(map[string]UpdateFailure)
	s.retries = make(map[string]CommitFunc)
	s.mu.Unlock()
}
