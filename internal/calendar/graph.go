package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"
)

const graphBaseURL = "https://graph.microsoft.com/v1.0"

// GraphClient is an authenticated Microsoft Graph calendar client.
type GraphClient struct {
	httpClient *http.Client
	timezone   string
}

var _ Client = (*GraphClient)(nil)

// NewGraphClient creates a Graph client using the provided token and
// config. timezone is an IANA name used for event reads and writes; pass ""
// for UTC.
func NewGraphClient(ctx context.Context, tok *oauth2.Token, cfg *oauth2.Config, timezone string) *GraphClient {
	ts := cfg.TokenSource(ctx, tok)
	return &GraphClient{
		httpClient: oauth2.NewClient(ctx, &savingTokenSource{ts: ts}),
		timezone:   timezone,
	}
}

// savingTokenSource wraps a TokenSource and persists refreshed tokens.
type savingTokenSource struct {
	ts oauth2.TokenSource
}

func (s *savingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.ts.Token()
	if err != nil {
		return nil, err
	}
	// Best-effort save; ignore errors.
	_ = saveToken(tok)
	return tok, nil
}

// graphEvent is the wire form of a Graph calendar event.
type graphEvent struct {
	ID                   string `json:"id,omitempty"`
	Subject              string `json:"subject"`
	IsAllDay             bool   `json:"isAllDay,omitempty"`
	IsCancelled          bool   `json:"isCancelled,omitempty"`
	Sensitivity          string `json:"sensitivity,omitempty"`
	ShowAs               string `json:"showAs,omitempty"`
	LastModifiedDateTime string `json:"lastModifiedDateTime,omitempty"`
	Body                 *struct {
		ContentType string `json:"contentType"`
		Content     string `json:"content"`
	} `json:"body,omitempty"`
	Start    graphDateTime `json:"start"`
	End      graphDateTime `json:"end"`
	Location *struct {
		DisplayName string `json:"displayName"`
	} `json:"location,omitempty"`
}

type graphDateTime struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone"`
}

// calendarViewResponse is the Graph API paged response for calendar events.
type calendarViewResponse struct {
	Value    []graphEvent `json:"value"`
	NextLink string       `json:"@odata.nextLink"`
}

// Fetch retrieves a single event by identifier.
func (c *GraphClient) Fetch(ctx context.Context, id string) (Event, error) {
	endpoint := graphBaseURL + "/me/events/" + url.PathEscape(id)
	body, status, err := c.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Event{}, err
	}
	if status == http.StatusNotFound {
		return Event{}, fmt.Errorf("fetch event %s: %w", id, ErrEventNotFound)
	}
	if status != http.StatusOK {
		return Event{}, fmt.Errorf("graph API error %d: %s", status, string(body))
	}

	var ge graphEvent
	if err := json.Unmarshal(body, &ge); err != nil {
		return Event{}, fmt.Errorf("decoding graph event: %w", err)
	}
	return c.toEvent(ge)
}

// Save creates the event when its ID is empty, otherwise updates the
// existing event. The returned event carries the server-assigned identifier
// and last-modified timestamp.
func (c *GraphClient) Save(ctx context.Context, event Event) (Event, error) {
	payload, err := json.Marshal(c.toGraphEvent(event))
	if err != nil {
		return Event{}, fmt.Errorf("encoding graph event: %w", err)
	}

	method := http.MethodPost
	endpoint := graphBaseURL + "/me/events"
	if event.ID != "" {
		method = http.MethodPatch
		endpoint = graphBaseURL + "/me/events/" + url.PathEscape(event.ID)
	}

	body, status, err := c.do(ctx, method, endpoint, payload)
	if err != nil {
		return Event{}, err
	}
	if status == http.StatusNotFound {
		return Event{}, fmt.Errorf("save event %s: %w", event.ID, ErrEventNotFound)
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return Event{}, fmt.Errorf("graph API error %d: %s", status, string(body))
	}

	var ge graphEvent
	if err := json.Unmarshal(body, &ge); err != nil {
		return Event{}, fmt.Errorf("decoding graph event: %w", err)
	}
	return c.toEvent(ge)
}

// Remove deletes an event by identifier.
func (c *GraphClient) Remove(ctx context.Context, id string) error {
	endpoint := graphBaseURL + "/me/events/" + url.PathEscape(id)
	body, status, err := c.do(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return err
	}
	if status == http.StatusNotFound {
		return fmt.Errorf("remove event %s: %w", id, ErrEventNotFound)
	}
	if status != http.StatusNoContent {
		return fmt.Errorf("graph API error %d: %s", status, string(body))
	}
	return nil
}

// ListEvents fetches events in [from, to) using the calendarView endpoint,
// following pagination.
func (c *GraphClient) ListEvents(ctx context.Context, from, to time.Time) ([]Event, error) {
	endpoint := fmt.Sprintf("%s/me/calendarView?startDateTime=%s&endDateTime=%s&$top=100",
		graphBaseURL,
		url.QueryEscape(from.UTC().Format(time.RFC3339)),
		url.QueryEscape(to.UTC().Format(time.RFC3339)),
	)

	var all []Event
	for endpoint != "" {
		body, status, err := c.do(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		if status != http.StatusOK {
			return nil, fmt.Errorf("graph API error %d: %s", status, string(body))
		}

		var page calendarViewResponse
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("decoding graph response: %w", err)
		}
		for _, ge := range page.Value {
			e, err := c.toEvent(ge)
			if err != nil {
				return nil, err
			}
			all = append(all, e)
		}
		endpoint = page.NextLink
	}
	return all, nil
}

func (c *GraphClient) do(ctx context.Context, method, endpoint string, payload []byte) ([]byte, int, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.timezone != "" {
		req.Header.Set("Prefer", fmt.Sprintf(`outlook.timezone="%s"`, c.timezone))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("graph API request failed: %w", err)
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, 0, fmt.Errorf("reading response body: %w", err)
	}
	return body, resp.StatusCode, nil
}

func (c *GraphClient) toEvent(ge graphEvent) (Event, error) {
	start, err := parseGraphTime(ge.Start.DateTime, c.timezone)
	if err != nil {
		return Event{}, fmt.Errorf("parsing start time: %w", err)
	}
	end, err := parseGraphTime(ge.End.DateTime, c.timezone)
	if err != nil {
		return Event{}, fmt.Errorf("parsing end time: %w", err)
	}

	e := Event{
		ID:          ge.ID,
		Title:       ge.Subject,
		Start:       start,
		End:         end,
		IsAllDay:    ge.IsAllDay,
		IsCancelled: ge.IsCancelled,
		ShowAs:      ge.ShowAs,
		Sensitivity: ge.Sensitivity,
	}
	if ge.Body != nil {
		e.Notes = ge.Body.Content
	}
	if ge.Location != nil {
		e.Location = ge.Location.DisplayName
	}
	if ge.LastModifiedDateTime != "" {
		if t, err := parseGraphTime(ge.LastModifiedDateTime, ""); err == nil {
			e.LastModifiedAt = t
		}
	}
	return e, nil
}

func (c *GraphClient) toGraphEvent(e Event) graphEvent {
	tz := c.timezone
	if tz == "" {
		tz = "UTC"
	}
	ge := graphEvent{
		Subject: e.Title,
		ShowAs:  "busy",
		Start:   graphDateTime{DateTime: e.Start.Format("2006-01-02T15:04:05"), TimeZone: tz},
		End:     graphDateTime{DateTime: e.End.Format("2006-01-02T15:04:05"), TimeZone: tz},
	}
	if e.Notes != "" {
		ge.Body = &struct {
			ContentType string `json:"contentType"`
			Content     string `json:"content"`
		}{ContentType: "text", Content: e.Notes}
	}
	if e.Location != "" {
		ge.Location = &struct {
			DisplayName string `json:"displayName"`
		}{DisplayName: e.Location}
	}
	return ge
}

// parseGraphTime parses a Graph API dateTime string in the given timezone.
// Graph returns times like "2026-02-27T09:00:00.0000000" without a zone
// suffix when a Prefer: outlook.timezone header is set.
func parseGraphTime(dt, tz string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, dt); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, dt); err == nil {
		return t, nil
	}

	loc := time.UTC
	if tz != "" {
		if l, err := time.LoadLocation(tz); err == nil {
			loc = l
		}
	}

	for _, layout := range []string{
		"2006-01-02T15:04:05.0000000",
		"2006-01-02T15:04:05",
	} {
		if t, err := time.ParseInLocation(layout, dt, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse graph time %q", dt)
}
