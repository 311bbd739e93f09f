package eventhubsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a minimal eventhub HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults. Runs are slow, so the timeout is generous.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v0",
		Timeout:  10 * time.Minute,
	}
}

// RunSummary is the per-source result of a run.
type RunSummary struct {
	Source   string `json:"source"`
	RunID    string `json:"run_id,omitempty"`
	Found    int    `json:"found"`
	New      int    `json:"new"`
	Updated  int    `json:"updated"`
	Inactive int    `json:"inactive"`
	Error    string `json:"error,omitempty"`
}

type RunLog struct {
	ID         string     `json:"id"`
	SourceName string     `json:"source_name"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Counts     struct {
		Found    int `json:"found"`
		New      int `json:"new"`
		Updated  int `json:"updated"`
		Inactive int `json:"inactive"`
	} `json:"counts"`
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// Event represents a catalog entry (partial).
type Event struct {
	ID               string     `json:"id"`
	Title            string     `json:"title"`
	StartTime        *time.Time `json:"start_time,omitempty"`
	EndTime          *time.Time `json:"end_time,omitempty"`
	VenueName        string     `json:"venue_name,omitempty"`
	City             string     `json:"city"`
	Category         string     `json:"category,omitempty"`
	Status           string     `json:"status"`
	SourceName       string     `json:"source_name"`
	OriginalEventURL string     `json:"original_event_url"`
	ImportedBy       string     `json:"imported_by,omitempty"`
	ImportNotes      string     `json:"import_notes,omitempty"`
}

type EventPage struct {
	Events     []Event `json:"events"`
	Total      int     `json:"total"`
	Page       int     `json:"page"`
	Limit      int     `json:"limit"`
	TotalPages int     `json:"total_pages"`
}

// EventQuery filters ListEvents. Zero values are omitted.
type EventQuery struct {
	City            string
	Search          string
	Status          string
	Category        string
	DateFrom        string
	DateTo          string
	IncludeInactive bool
	Page            int
	Limit           int
}

func (q EventQuery) values() url.Values {
	v := url.Values{}
	set := func(k, s string) {
		if s != "" {
			v.Set(k, s)
		}
	}
	set("city", q.City)
	set("search", q.Search)
	set("status", q.Status)
	set("category", q.Category)
	set("date_from", q.DateFrom)
	set("date_to", q.DateTo)
	if q.IncludeInactive {
		v.Set("include_inactive", "true")
	}
	if q.Page > 0 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	return v
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// TriggerAll runs every source on the server.
func (c *Client) TriggerAll(ctx context.Context) ([]RunSummary, error) {
	var resp struct {
		Results []RunSummary `json:"results"`
	}
	err := c.do(ctx, http.MethodPost, "scrape", map[string]any{}, &resp)
	return resp.Results, err
}

// TriggerOne runs a single source by slug or display name.
func (c *Client) TriggerOne(ctx context.Context, source string) (RunSummary, error) {
	var resp struct {
		Results []RunSummary `json:"results"`
	}
	if err := c.do(ctx, http.MethodPost, "scrape", map[string]any{"source": source}, &resp); err != nil {
		return RunSummary{}, err
	}
	if len(resp.Results) != 1 {
		return RunSummary{}, fmt.Errorf("expected one result, got %d", len(resp.Results))
	}
	return resp.Results[0], nil
}

// RecentLogs returns the latest run logs, newest first. Empty source means all.
func (c *Client) RecentLogs(ctx context.Context, source string, limit int) ([]RunLog, error) {
	v := url.Values{}
	if source != "" {
		v.Set("source", source)
	}
	if limit > 0 {
		v.Set("limit", strconv.Itoa(limit))
	}
	var resp struct {
		Logs []RunLog `json:"logs"`
	}
	err := c.do(ctx, http.MethodGet, withQuery("scrape/logs", v), nil, &resp)
	return resp.Logs, err
}

func (c *Client) ListEvents(ctx context.Context, q EventQuery) (EventPage, error) {
	var resp EventPage
	err := c.do(ctx, http.MethodGet, withQuery("events", q.values()), nil, &resp)
	return resp, err
}

func (c *Client) GetEvent(ctx context.Context, id string) (Event, error) {
	var resp Event
	err := c.do(ctx, http.MethodGet, "events/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// ImportEvent marks an event imported as the authenticated curator.
func (c *Client) ImportEvent(ctx context.Context, id, notes string) (Event, error) {
	var resp struct {
		Event Event `json:"event"`
	}
	err := c.do(ctx, http.MethodPost, "events/"+url.PathEscape(id)+"/import", map[string]any{"import_notes": notes}, &resp)
	return resp.Event, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	target := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func withQuery(endpoint string, v url.Values) string {
	if len(v) == 0 {
		return endpoint
	}
	return endpoint + "?" + v.Encode()
}

func (c *Client) base() string {
	base := strings.TrimRight(c.BaseURL, "/")
	if p := strings.Trim(c.BasePath, "/"); p != "" {
		base += "/" + p
	}
	return base
}
