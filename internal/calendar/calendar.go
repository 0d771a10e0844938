// Package calendar talks to the user's external calendar: a read-write
// Microsoft Graph client for planner-owned events and read-only ICS feeds
// contributing busy time. The external calendar is always the source of
// truth for display.
package calendar

import (
	"context"
	"errors"
	"time"

	"github.com/planwise/studyplan/internal/model"
)

// ErrEventNotFound reports that an event no longer exists on the external
// calendar, typically because another client deleted it.
var ErrEventNotFound = errors.New("calendar event not found")

// Event is the planner's view of an external calendar event.
type Event struct {
	ID             string
	Title          string
	Start          time.Time
	End            time.Time
	Location       string
	Notes          string
	IsAllDay       bool
	IsCancelled    bool
	ShowAs         string
	Sensitivity    string
	LastModifiedAt time.Time
}

// Client is the external calendar surface the reconciler and sync need.
// Implementations must return ErrEventNotFound (possibly wrapped) from
// Fetch and Remove when the event does not exist.
type Client interface {
	Fetch(ctx context.Context, id string) (Event, error)
	Save(ctx context.Context, event Event) (Event, error)
	Remove(ctx context.Context, id string) error
	ListEvents(ctx context.Context, from, to time.Time) ([]Event, error)
}

// BusyIntervals extracts the intervals that block scheduling from a list of
// events. Cancelled, free, and zero-length events contribute nothing;
// all-day events block their entire span.
func BusyIntervals(events []Event) []model.TimeSlot {
	var busy []model.TimeSlot
	for _, e := range events {
		if e.IsCancelled || e.ShowAs == "free" {
			continue
		}
		if !e.End.After(e.Start) {
			continue
		}
		busy = append(busy, model.TimeSlot{Start: e.Start, End: e.End})
	}
	return busy
}
