// Package planner owns the scheduled-session and overflow stores. The store
// is the single shared mutable resource between the detector, the
// reschedule engine, and any presentation layer; every mutation is
// serialized through one mutex (single-writer discipline) and committed as
// a whole batch, so readers never observe a partially-applied pass.
package planner

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/planwise/studyplan/internal/model"
	"github.com/planwise/studyplan/internal/storage"

	"sync"
)

const (
	sessionsFile = "sessions.json"
	overflowFile = "overflow.json"
)

// Change describes one committed store mutation, delivered to observers
// after the mutation is durable in memory.
type Change struct {
	Reason    string
	Scheduled int
	Overflow  int
}

// Store holds scheduled and overflow sessions, persisted as JSON arrays in
// per-feature files under the base directory.
type Store struct {
	mu        sync.Mutex
	base      string
	scheduled []model.ScheduledSession
	overflow  []model.OverflowSession
	observers []func(Change)
}

// Open loads the store from disk. Missing files mean empty state; corrupt
// files are backed up and treated as empty.
func Open(base string) (*Store, error) {
	s := &Store{base: base}
	if err := storage.LoadJSON(base, sessionsFile, &s.scheduled); err != nil {
		return nil, err
	}
	if err := storage.LoadJSON(base, overflowFile, &s.overflow); err != nil {
		return nil, err
	}
	return s, nil
}

// Subscribe registers an observer invoked after every committed mutation.
// Observers are a presentation concern; they must not mutate the store
// re-entrantly.
func (s *Store) Subscribe(fn func(Change)) {
	s.mu.Lock()
	s.observers = append(s.observers, fn)
	s.mu.Unlock()
}

// Scheduled returns a copy of all scheduled sessions, sorted by start time.
func (s *Store) Scheduled() []model.ScheduledSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.ScheduledSession, len(s.scheduled))
	copy(out, s.scheduled)
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

// Overflow returns a copy of all overflow sessions.
func (s *Store) Overflow() []model.OverflowSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.OverflowSession, len(s.overflow))
	copy(out, s.overflow)
	return out
}

// Add appends new scheduled sessions. Each must satisfy start < end.
func (s *Store) Add(reason string, sessions ...model.ScheduledSession) error {
	for _, sess := range sessions {
		if !sess.Start.Before(sess.End) {
			return fmt.Errorf("session %s: start %v is not before end %v", sess.ID, sess.Start, sess.End)
		}
	}
	s.mu.Lock()
	s.scheduled = append(s.scheduled, sessions...)
	change := s.persistLocked(reason)
	s.mu.Unlock()
	s.notify(change)
	return nil
}

// CommitBatch atomically replaces the scheduled list and appends overflow
// sessions in a single serialized commit. This is the only mutation path
// the reschedule engine uses, so a pass lands all-or-nothing from the
// perspective of readers.
func (s *Store) CommitBatch(reason string, scheduled []model.ScheduledSession, newOverflow []model.OverflowSession) {
	s.mu.Lock()
	s.scheduled = make([]model.ScheduledSession, len(scheduled))
	copy(s.scheduled, scheduled)
	s.overflow = append(s.overflow, newOverflow...)
	change := s.persistLocked(reason)
	s.mu.Unlock()
	s.notify(change)
}

// RemoveOverflow deletes an overflow session by ID, for manual rescheduling.
func (s *Store) RemoveOverflow(id string) bool {
	s.mu.Lock()
	found := false
	kept := s.overflow[:0]
	for _, ov := range s.overflow {
		if ov.ID == id {
			found = true
			continue
		}
		kept = append(kept, ov)
	}
	s.overflow = kept
	var change Change
	if found {
		change = s.persistLocked("overflowRemoved")
	}
	s.mu.Unlock()
	if found {
		s.notify(change)
	}
	return found
}

// MarkUserEdited updates a session's interval as an explicit user edit,
// stamping it so automated rescheduling leaves it alone.
func (s *Store) MarkUserEdited(id string, start, end, at time.Time) error {
	if !start.Before(end) {
		return fmt.Errorf("session %s: start %v is not before end %v", id, start, end)
	}
	s.mu.Lock()
	var change Change
	for i := range s.scheduled {
		if s.scheduled[i].ID != id {
			continue
		}
		s.scheduled[i].Start = start
		s.scheduled[i].End = end
		s.scheduled[i].IsUserEdited = true
		s.scheduled[i].UserEditedAt = &at
		change = s.persistLocked("userEdit")
		s.mu.Unlock()
		s.notify(change)
		return nil
	}
	s.mu.Unlock()
	return fmt.Errorf("session %s not found", id)
}

// persistLocked writes both feature files. Persistence failure is logged
// and never aborts the in-memory mutation that triggered it.
func (s *Store) persistLocked(reason string) Change {
	if err := storage.SaveJSON(s.base, sessionsFile, s.scheduled); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not save sessions: %v\n", err)
	}
	if err := storage.SaveJSON(s.base, overflowFile, s.overflow); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not save overflow: %v\n", err)
	}
	return Change{Reason: reason, Scheduled: len(s.scheduled), Overflow: len(s.overflow)}
}

func (s *Store) notify(change Change) {
	s.mu.Lock()
	observers := make([]func(Change), len(s.observers))
	copy(observers, s.observers)
	s.mu.Unlock()
	for _, fn := range observers {
		fn(change)
	}
}
