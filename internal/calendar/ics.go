package calendar

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	"github.com/planwise/studyplan/internal/config"
	"github.com/planwise/studyplan/internal/model"
)

// maxOccurrencesPerEvent caps recurrence expansion so a malformed feed
// cannot blow up the scheduling pass.
const maxOccurrencesPerEvent = 1000

// FetchBusy downloads every configured ICS feed and returns the busy
// intervals falling within [from, to). A feed that fails to download or
// parse is skipped with a warning; scheduling proceeds on what loaded.
func FetchBusy(ctx context.Context, sources []config.ICSSource, from, to time.Time) []model.TimeSlot {
	var busy []model.TimeSlot
	for _, src := range sources {
		body, err := fetchFeed(ctx, src.URL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: skipping ICS feed %s: %v\n", src.Name, err)
			continue
		}
		slots, err := ParseBusy(body, from, to)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: skipping ICS feed %s: %v\n", src.Name, err)
			continue
		}
		busy = append(busy, slots...)
	}
	sort.Slice(busy, func(i, j int) bool { return busy[i].Start.Before(busy[j].Start) })
	return busy
}

func fetchFeed(ctx context.Context, feedURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("downloading feed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading feed: %w", err)
	}
	return body, nil
}

// ParseBusy parses an ICS payload and returns the busy intervals of its
// events within [from, to), expanding RRULE recurrences and honoring
// EXDATE exceptions. Events marked TRANSPARENT do not block time.
func ParseBusy(body []byte, from, to time.Time) ([]model.TimeSlot, error) {
	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parsing ICS: %w", err)
	}

	var busy []model.TimeSlot
	for _, ve := range cal.Events() {
		slots, err := expandEvent(ve, from, to)
		if err != nil {
			// Skip the one event, keep the rest of the feed.
			fmt.Fprintf(os.Stderr, "Warning: skipping ICS event: %v\n", err)
			continue
		}
		busy = append(busy, slots...)
	}
	return busy, nil
}

func expandEvent(ve *ical.VEvent, from, to time.Time) ([]model.TimeSlot, error) {
	if p := ve.GetProperty(ical.ComponentPropertyTransp); p != nil && strings.EqualFold(p.Value, "TRANSPARENT") {
		return nil, nil
	}

	start, err := ve.GetStartAt()
	if err != nil {
		return nil, fmt.Errorf("event start: %w", err)
	}
	end, err := ve.GetEndAt()
	if err != nil || !end.After(start) {
		// DTEND is optional; a missing or degenerate end blocks no time.
		return nil, nil
	}
	duration := end.Sub(start)

	rruleProp := ve.GetProperty(ical.ComponentPropertyRrule)
	if rruleProp == nil {
		if start.Before(to) && end.After(from) {
			return []model.TimeSlot{{Start: start, End: end}}, nil
		}
		return nil, nil
	}

	rule, err := rrule.StrToRRule(rruleProp.Value)
	if err != nil {
		return nil, fmt.Errorf("parsing RRULE %q: %w", rruleProp.Value, err)
	}
	rule.DTStart(start)

	var set rrule.Set
	set.RRule(rule)
	for _, ex := range exDates(ve, start.Location()) {
		set.ExDate(ex)
	}

	// Widen the range start so occurrences beginning before the window but
	// overlapping it are still found.
	occurrences := set.Between(from.Add(-duration).In(start.Location()), to.In(start.Location()), true)
	if len(occurrences) > maxOccurrencesPerEvent {
		occurrences = occurrences[:maxOccurrencesPerEvent]
	}

	var slots []model.TimeSlot
	for _, occStart := range occurrences {
		occEnd := occStart.Add(duration)
		if occStart.Before(to) && occEnd.After(from) {
			slots = append(slots, model.TimeSlot{Start: occStart, End: occEnd})
		}
	}
	return slots, nil
}

// exDates collects EXDATE values, aligning them with the event's location
// so the recurrence set excludes the right instants.
func exDates(ve *ical.VEvent, loc *time.Location) []time.Time {
	var out []time.Time
	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if t, err := parseICSTime(part, loc); err == nil {
				out = append(out, t.In(loc))
			}
		}
	}
	return out
}

// parseICSTime parses the basic ICS date/date-time forms used by EXDATE.
func parseICSTime(v string, loc *time.Location) (time.Time, error) {
	if strings.HasSuffix(v, "Z") {
		return time.Parse("20060102T150405Z", v)
	}
	if strings.Contains(v, "T") {
		return time.ParseInLocation("20060102T150405", v, loc)
	}
	return time.ParseInLocation("20060102", v, loc)
}
