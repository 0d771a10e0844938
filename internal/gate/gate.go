// Package gate implements the capability gate that every automated
// mutation path must pass through, plus the append-only audit log and the
// diagnostic activity counters.
package gate

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/planwise/studyplan/internal/storage"
)

// Reason identifies which code path asked the gate for permission.
type Reason string

const (
	ReasonStartMonitoring  Reason = "startMonitoring"
	ReasonTimerTick        Reason = "timerTick"
	ReasonManualTrigger    Reason = "manualTrigger"
	ReasonRescheduleEngine Reason = "rescheduleEngine"
	ReasonApplyOperations  Reason = "applyOperations"
	ReasonNotifyUser       Reason = "notifyUser"
	ReasonHistoryWrite     Reason = "historyWrite"
)

// Provenance records whether work was machine- or user-initiated.
type Provenance string

const (
	ProvenanceAutomatic     Provenance = "automatic"
	ProvenanceUserTriggered Provenance = "userTriggered"
)

// Status is the audited outcome of a gated request.
type Status string

const (
	StatusExecuted   Status = "executed"
	StatusSuppressed Status = "suppressed"
	StatusFailed     Status = "failed"
)

// AuditEntry is one append-only record of a gate decision or executed
// operation.
type AuditEntry struct {
	ID         string     `json:"id"`
	Timestamp  time.Time  `json:"timestamp"`
	Reason     Reason     `json:"reason"`
	Provenance Provenance `json:"provenance"`
	Status     Status     `json:"status"`
	Detail     string     `json:"detail"`
}

// Counters are cumulative activity diagnostics, persisted separately from
// the audit log so they survive across CLI invocations.
type Counters struct {
	ChecksExecuted        int        `json:"checks_executed"`
	SessionsAnalyzed      int        `json:"sessions_analyzed"`
	SessionsMoved         int        `json:"sessions_moved"`
	HistoryEntriesWritten int        `json:"history_entries_written"`
	NotificationsSent     int        `json:"notifications_sent"`
	SuppressedExecutions  int        `json:"suppressed_executions"`
	LastSuppressionReason string     `json:"last_suppression_reason,omitempty"`
	LastUpdatedAt         *time.Time `json:"last_updated_at,omitempty"`
}

const (
	auditFile       = "auto-reschedule-audit.json"
	countersFile    = "activity-counters.json"
	maxAuditEntries = 500
)

// Gate guards automated mutations behind the feature's enabled flag and
// records every allow/suppress decision.
type Gate struct {
	mu       sync.Mutex
	base     string
	enabled  func() bool
	now      func() time.Time
	entries  []AuditEntry
	counters Counters
	active   int
}

// Option configures a Gate.
type Option func(*Gate)

// WithClock sets the clock function, for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

// Open loads the persisted audit log and returns a gate whose decisions
// follow the given enabled function.
func Open(base string, enabled func() bool, opts ...Option) (*Gate, error) {
	g := &Gate{base: base, enabled: enabled, now: time.Now}
	for _, opt := range opts {
		opt(g)
	}
	if err := storage.LoadJSON(base, auditFile, &g.entries); err != nil {
		return nil, err
	}
	if err := storage.LoadJSON(base, countersFile, &g.counters); err != nil {
		return nil, err
	}
	return g, nil
}

// ShouldAllow reports whether gated work may run. A denial is itself
// recorded as a suppressed audit entry.
func (g *Gate) ShouldAllow(reason Reason, provenance Provenance) bool {
	if g.enabled() {
		return true
	}
	g.mu.Lock()
	g.counters.SuppressedExecutions++
	g.counters.LastSuppressionReason = string(reason)
	g.recordLocked(reason, provenance, StatusSuppressed, "suppressed (feature disabled)")
	g.mu.Unlock()
	return false
}

// Run executes work inside the gate. It returns false without running the
// work when the feature is disabled. The work's error, if any, is recorded
// as a failed entry and returned; success records an executed entry.
func (g *Gate) Run(reason Reason, provenance Provenance, work func() error) (bool, error) {
	if !g.ShouldAllow(reason, provenance) {
		return false, nil
	}

	g.mu.Lock()
	g.active++
	g.mu.Unlock()
	err := work()
	g.mu.Lock()
	g.active--
	if err != nil {
		g.recordLocked(reason, provenance, StatusFailed, err.Error())
	} else {
		// Only detection checks count toward ChecksExecuted; a reschedule
		// run nested inside a check must not count the check twice.
		if reason == ReasonTimerTick || reason == ReasonManualTrigger {
			g.counters.ChecksExecuted++
		}
		g.recordLocked(reason, provenance, StatusExecuted, "executed")
	}
	g.mu.Unlock()
	return true, err
}

// Active reports whether gated work is currently in flight. Tests use this
// to assert the structural invariant that no gated path runs while the
// feature is disabled; it is not consulted by production control flow.
func (g *Gate) Active() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active > 0
}

// Record appends an audit entry for an operation executed under an
// already-open gate (e.g. the per-pass summary).
func (g *Gate) Record(reason Reason, provenance Provenance, status Status, detail string) {
	g.mu.Lock()
	g.recordLocked(reason, provenance, status, detail)
	g.mu.Unlock()
}

// recordLocked appends and persists, capping the on-disk log to the most
// recent maxAuditEntries. Persistence failure is non-fatal.
func (g *Gate) recordLocked(reason Reason, provenance Provenance, status Status, detail string) {
	g.entries = append(g.entries, AuditEntry{
		ID:         uuid.NewString(),
		Timestamp:  g.now(),
		Reason:     reason,
		Provenance: provenance,
		Status:     status,
		Detail:     detail,
	})
	if len(g.entries) > maxAuditEntries {
		g.entries = g.entries[len(g.entries)-maxAuditEntries:]
	}
	now := g.now()
	g.counters.LastUpdatedAt = &now
	_ = storage.SaveJSON(g.base, auditFile, g.entries)
	_ = storage.SaveJSON(g.base, countersFile, g.counters)
}

// Entries returns a copy of the audit log, oldest first.
func (g *Gate) Entries() []AuditEntry {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]AuditEntry, len(g.entries))
	copy(out, g.entries)
	return out
}

// Snapshot returns the current counters.
func (g *Gate) Snapshot() Counters {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.counters
}

// ResetCounters zeroes the diagnostic counters, on disk too.
func (g *Gate) ResetCounters() {
	g.mu.Lock()
	g.counters = Counters{}
	_ = storage.SaveJSON(g.base, countersFile, g.counters)
	g.mu.Unlock()
}

// RecordSessionsAnalyzed adds to the analyzed-session diagnostic counter.
func (g *Gate) RecordSessionsAnalyzed(n int) { g.bump(func(c *Counters) { c.SessionsAnalyzed += n }) }

// RecordSessionsMoved adds to the moved-session diagnostic counter.
func (g *Gate) RecordSessionsMoved(n int) { g.bump(func(c *Counters) { c.SessionsMoved += n }) }

// RecordHistoryWritten adds to the history-write diagnostic counter.
func (g *Gate) RecordHistoryWritten(n int) {
	g.bump(func(c *Counters) { c.HistoryEntriesWritten += n })
}

// RecordNotificationSent bumps the notification diagnostic counter.
func (g *Gate) RecordNotificationSent() { g.bump(func(c *Counters) { c.NotificationsSent++ }) }

func (g *Gate) bump(fn func(*Counters)) {
	g.mu.Lock()
	fn(&g.counters)
	now := g.now()
	g.counters.LastUpdatedAt = &now
	_ = storage.SaveJSON(g.base, countersFile, g.counters)
	g.mu.Unlock()
}
