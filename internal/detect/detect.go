// Package detect finds study sessions whose scheduled time has passed
// without completion and hands them to the reschedule engine, either as a
// one-shot check or on a periodic timer.
package detect

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/planwise/studyplan/internal/gate"
	"github.com/planwise/studyplan/internal/model"
	"github.com/planwise/studyplan/internal/planner"
	"github.com/planwise/studyplan/internal/reschedule"
)

// staleCutoff bounds how far back a session still counts as missed rather
// than abandoned.
const staleCutoff = 24 * time.Hour

// Detector scans the planner store for missed sessions. The idempotency
// window keeps a freshly rescheduled session from being re-detected on the
// next tick before the user had a chance to act on it.
type Detector struct {
	store         *planner.Store
	engine        *reschedule.Engine
	gate          *gate.Gate
	checkInterval time.Duration
	now           func() time.Time
}

// Option configures a Detector.
type Option func(*Detector)

// WithClock sets the clock function, for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(d *Detector) { d.now = now }
}

// New returns a detector over the given store and engine. checkIntervalMinutes
// is the tick period and also sizes the idempotency window.
func New(store *planner.Store, engine *reschedule.Engine, g *gate.Gate, checkIntervalMinutes int, opts ...Option) *Detector {
	d := &Detector{
		store:         store,
		engine:        engine,
		gate:          g,
		checkInterval: time.Duration(checkIntervalMinutes) * time.Minute,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Missed returns the sessions considered missed at the given instant,
// ordered by end time so the earliest-ended session is rescheduled first.
func (d *Detector) Missed(now time.Time) []model.ScheduledSession {
	var missed []model.ScheduledSession
	for _, s := range d.store.Scheduled() {
		if !s.End.Before(now) {
			continue
		}
		if now.Sub(s.End) >= staleCutoff {
			continue
		}
		if s.IsLocked || s.IsUserEdited {
			continue
		}
		if s.Type != model.TypeTask && s.Type != model.TypeStudy {
			continue
		}
		if s.AssignmentID == nil {
			continue
		}
		if d.recentlyRescheduled(s, now) {
			continue
		}
		missed = append(missed, s)
	}
	sort.Slice(missed, func(i, j int) bool { return missed[i].End.Before(missed[j].End) })
	return missed
}

// recentlyRescheduled reports whether the engine already moved this session
// within the idempotency window (twice the check interval).
func (d *Detector) recentlyRescheduled(s model.ScheduledSession, now time.Time) bool {
	if !strings.Contains(s.Provenance, "auto-reschedule") || s.ComputedAt == nil {
		return false
	}
	return now.Sub(*s.ComputedAt) < 2*d.checkInterval
}

// CheckOnce runs a single detection pass under the gate and hands any
// missed sessions to the engine. The pass records its own executed entry;
// an engine run nested inside it audits separately.
func (d *Detector) CheckOnce(reason gate.Reason, provenance gate.Provenance) error {
	_, err := d.gate.Run(reason, provenance, func() error {
		now := d.now()
		d.gate.RecordSessionsAnalyzed(len(d.store.Scheduled()))
		missed := d.Missed(now)
		if len(missed) == 0 {
			return nil
		}
		return d.engine.Reschedule(missed, provenance)
	})
	return err
}

// Watch runs detection passes every check interval until the context is
// cancelled. It performs one pass immediately on start.
func (d *Detector) Watch(ctx context.Context) error {
	if !d.gate.ShouldAllow(gate.ReasonStartMonitoring, gate.ProvenanceUserTriggered) {
		return fmt.Errorf("automatic rescheduling is disabled in configuration")
	}

	if err := d.CheckOnce(gate.ReasonTimerTick, gate.ProvenanceAutomatic); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: check failed: %v\n", err)
	}

	c := cron.New()
	spec := fmt.Sprintf("@every %dm", int(d.checkInterval/time.Minute))
	if _, err := c.AddFunc(spec, func() {
		if err := d.CheckOnce(gate.ReasonTimerTick, gate.ProvenanceAutomatic); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: check failed: %v\n", err)
		}
	}); err != nil {
		return fmt.Errorf("schedule watch timer: %w", err)
	}
	c.Start()
	defer c.Stop()

	<-ctx.Done()
	return ctx.Err()
}
