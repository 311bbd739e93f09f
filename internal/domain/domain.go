package domain

import (
	"errors"
	"time"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrAlreadyImported = errors.New("event already imported")
	ErrRunFinalized    = errors.New("run log already finalized")
)

type EventStatus string

const (
	StatusNew      EventStatus = "new"
	StatusUpdated  EventStatus = "updated"
	StatusInactive EventStatus = "inactive"
	StatusImported EventStatus = "imported"
)

// Valid reports whether s is one of the known lifecycle states.
func (s EventStatus) Valid() bool {
	switch s {
	case StatusNew, StatusUpdated, StatusInactive, StatusImported:
		return true
	}
	return false
}

type RunStatus string

const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunError   RunStatus = "error"
)

// NormalizedEvent is the common record shape every source adapter produces.
type NormalizedEvent struct {
	Title            string     `json:"title"`
	StartTime        *time.Time `json:"start_time,omitempty" format:"date-time"`
	EndTime          *time.Time `json:"end_time,omitempty" format:"date-time"`
	VenueName        string     `json:"venue_name,omitempty"`
	VenueAddress     string     `json:"venue_address,omitempty"`
	City             string     `json:"city"`
	Description      string     `json:"description,omitempty"`
	Category         string     `json:"category,omitempty"`
	Tags             []string   `json:"tags,omitempty"`
	ImageURL         string     `json:"image_url,omitempty"`
	SourceName       string     `json:"source_name"`
	SourceURL        string     `json:"source_url"`
	OriginalEventURL string     `json:"original_event_url"`
}

// Reconcilable reports whether the record carries both a title and an identity key.
func (e NormalizedEvent) Reconcilable() bool {
	return e.Title != "" && e.OriginalEventURL != ""
}

// Event is a stored catalog entry.
type Event struct {
	NormalizedEvent
	ID            string      `json:"id"`
	Status        EventStatus `json:"status" enum:"new,updated,inactive,imported"`
	ContentHash   string      `json:"content_hash"`
	ImportedAt    *time.Time  `json:"imported_at,omitempty" format:"date-time"`
	ImportedBy    string      `json:"imported_by,omitempty"`
	ImportNotes   string      `json:"import_notes,omitempty"`
	LastScrapedAt time.Time   `json:"last_scraped_at" format:"date-time"`
	CreatedAt     time.Time   `json:"created_at" format:"date-time"`
	UpdatedAt     time.Time   `json:"updated_at" format:"date-time"`
}

// EventUpdate is the full-replace payload applied when a stored event is re-sighted.
// Import metadata is never part of it.
type EventUpdate struct {
	Fields        NormalizedEvent
	ContentHash   string
	Status        EventStatus
	LastScrapedAt time.Time
	UpdatedAt     time.Time
}

// ActiveRef is the projection used for retirement.
type ActiveRef struct {
	ID               string      `json:"id"`
	OriginalEventURL string      `json:"original_event_url"`
	Status           EventStatus `json:"status"`
}

type RunCounts struct {
	Found    int `json:"found"`
	New      int `json:"new"`
	Updated  int `json:"updated"`
	Inactive int `json:"inactive"`
}

type RunLog struct {
	ID           string     `json:"id"`
	SourceName   string     `json:"source_name"`
	StartedAt    time.Time  `json:"started_at" format:"date-time"`
	FinishedAt   *time.Time `json:"finished_at,omitempty" format:"date-time"`
	Counts       RunCounts  `json:"counts"`
	Status       RunStatus  `json:"status" enum:"running,success,error"`
	ErrorMessage string     `json:"error_message,omitempty"`
}

// RunFinalization moves a running log into its terminal state.
type RunFinalization struct {
	Status       RunStatus
	Counts       RunCounts
	ErrorMessage string
	FinishedAt   time.Time
}

// RunSummary is the caller-facing per-source result of a run.
type RunSummary struct {
	Source   string `json:"source"`
	RunID    string `json:"run_id,omitempty"`
	Found    int    `json:"found"`
	New      int    `json:"new"`
	Updated  int    `json:"updated"`
	Inactive int    `json:"inactive"`
	Error    string `json:"error,omitempty"`
}

// Failed reports whether the run ended on the error path.
func (s RunSummary) Failed() bool { return s.Error != "" }

// HistoryEntry records one lifecycle transition of a stored event.
type HistoryEntry struct {
	ID      string    `json:"id"`
	EventID string    `json:"event_id"`
	TS      time.Time `json:"ts" format:"date-time"`
	Type    string    `json:"type"`
	ActorID string    `json:"actor_id"`
	Payload string    `json:"payload_json,omitempty"`
}

// APIKey authenticates a curator against the HTTP API. Only the hash is stored.
type APIKey struct {
	ID        string    `json:"id"`
	ActorID   string    `json:"actor_id"`
	Name      string    `json:"name,omitempty"`
	KeyHash   string    `json:"-"`
	CreatedAt time.Time `json:"created_at" format:"date-time"`
}
