package server

import (
	"time"

	"eventhub/internal/domain"
)

type ScrapeRequest struct {
	Source string `json:"source,omitempty" doc:"Source slug or display name. Empty runs every source."`
}

type ScrapeResponse struct {
	Success bool                `json:"success"`
	Results []domain.RunSummary `json:"results"`
}

type RunLogsResponse struct {
	Logs []domain.RunLog `json:"logs"`
}

type CronResponse struct {
	Success bool                `json:"success"`
	RanAt   time.Time           `json:"ran_at" format:"date-time"`
	Summary []domain.RunSummary `json:"summary"`
}

type InitResponse struct {
	Message string             `json:"message"`
	Count   int                `json:"count,omitempty"`
	Result  *domain.RunSummary `json:"result,omitempty"`
}

type EventListResponse struct {
	Events     []domain.Event `json:"events"`
	Total      int            `json:"total"`
	Page       int            `json:"page"`
	Limit      int            `json:"limit"`
	TotalPages int            `json:"total_pages"`
}

type ImportRequest struct {
	Notes string `json:"import_notes,omitempty" maxLength:"2000"`
}

type ImportResponse struct {
	Success bool         `json:"success"`
	Event   domain.Event `json:"event"`
}

type HistoryResponse struct {
	Items []domain.HistoryEntry `json:"items"`
}

type SourceResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func nonNilSummaries(in []domain.RunSummary) []domain.RunSummary {
	if in == nil {
		return []domain.RunSummary{}
	}
	return in
}
