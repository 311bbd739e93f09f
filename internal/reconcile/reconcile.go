package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"eventhub/internal/domain"
	"eventhub/internal/fingerprint"
)

// Store is the slice of the event store gateway the reconciler needs.
type Store interface {
	FindByOriginalURL(ctx context.Context, url string) (domain.Event, error)
	InsertEvent(ctx context.Context, ev domain.Event) (domain.Event, error)
	UpdateEvent(ctx context.Context, id string, u domain.EventUpdate) (domain.Event, error)
	ListActiveBySourceURL(ctx context.Context, sourceURL string) ([]domain.ActiveRef, error)
	BulkSetInactive(ctx context.Context, ids []string, at time.Time) error
}

type Outcome string

const (
	OutcomeNew       Outcome = "new"
	OutcomeUpdated   Outcome = "updated"
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeFailed    Outcome = "failed"
)

// Result is the outcome of reconciling one record. Err is set only when the
// outcome is OutcomeFailed.
type Result struct {
	Outcome Outcome
	EventID string
	URL     string
	Err     error
}

type Reconciler struct {
	Store Store
	Now   func() time.Time
	Log   zerolog.Logger
}

func New(store Store) Reconciler {
	return Reconciler{Store: store, Now: time.Now, Log: zerolog.Nop()}
}

func (r Reconciler) now() time.Time {
	if r.Now != nil {
		return r.Now().UTC()
	}
	return time.Now().UTC()
}

// ReconcileOne merges a single normalized record into the store.
func (r Reconciler) ReconcileOne(ctx context.Context, ev domain.NormalizedEvent) Result {
	if !ev.Reconcilable() {
		return Result{Outcome: OutcomeSkipped, URL: ev.OriginalEventURL}
	}
	hash := fingerprint.Of(ev)
	now := r.now()

	existing, err := r.Store.FindByOriginalURL(ctx, ev.OriginalEventURL)
	if errors.Is(err, domain.ErrNotFound) {
		created, err := r.Store.InsertEvent(ctx, domain.Event{
			NormalizedEvent: ev,
			Status:          domain.StatusNew,
			ContentHash:     hash,
			LastScrapedAt:   now,
			CreatedAt:       now,
			UpdatedAt:       now,
		})
		if err != nil {
			return r.failed(ev, fmt.Errorf("insert %s: %w", ev.OriginalEventURL, err))
		}
		return Result{Outcome: OutcomeNew, EventID: created.ID, URL: ev.OriginalEventURL}
	}
	if err != nil {
		return r.failed(ev, fmt.Errorf("lookup %s: %w", ev.OriginalEventURL, err))
	}

	changed := existing.ContentHash != hash
	status := existing.Status
	switch {
	case existing.Status == domain.StatusImported:
	case changed:
		status = domain.StatusUpdated
	}
	if _, err := r.Store.UpdateEvent(ctx, existing.ID, domain.EventUpdate{
		Fields:        ev,
		ContentHash:   hash,
		Status:        status,
		LastScrapedAt: now,
		UpdatedAt:     now,
	}); err != nil {
		return r.failed(ev, fmt.Errorf("update %s: %w", ev.OriginalEventURL, err))
	}
	outcome := OutcomeUnchanged
	if changed {
		outcome = OutcomeUpdated
	}
	return Result{Outcome: outcome, EventID: existing.ID, URL: ev.OriginalEventURL}
}

func (r Reconciler) failed(ev domain.NormalizedEvent, err error) Result {
	r.Log.Warn().Str("source", ev.SourceName).Str("url", ev.OriginalEventURL).Err(err).Msg("store failure")
	return Result{Outcome: OutcomeFailed, URL: ev.OriginalEventURL, Err: err}
}

// RetireStale marks every non-inactive event of sourceURL whose identity is
// not in active as inactive. An empty active set retires nothing.
func (r Reconciler) RetireStale(ctx context.Context, sourceURL string, active map[string]struct{}) (int, error) {
	if len(active) == 0 || sourceURL == "" {
		return 0, nil
	}
	refs, err := r.Store.ListActiveBySourceURL(ctx, sourceURL)
	if err != nil {
		return 0, fmt.Errorf("list active for %s: %w", sourceURL, err)
	}
	var stale []string
	for _, ref := range refs {
		if _, ok := active[ref.OriginalEventURL]; !ok {
			stale = append(stale, ref.ID)
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}
	if err := r.Store.BulkSetInactive(ctx, stale, r.now()); err != nil {
		return 0, fmt.Errorf("retire %d events for %s: %w", len(stale), sourceURL, err)
	}
	return len(stale), nil
}

// Batch is the accumulated result of reconciling one source batch.
type Batch struct {
	Counts    domain.RunCounts
	Unchanged int
	Skipped   int
	Failed    int
	Active    map[string]struct{}
	SourceURL string
	Results   []Result
}

// ReconcileBatch processes records in order and collects the active identity
// set. Found counts every record, including skipped ones. A record whose store
// write failed is still treated as seen.
func (r Reconciler) ReconcileBatch(ctx context.Context, records []domain.NormalizedEvent) Batch {
	b := Batch{Active: make(map[string]struct{}, len(records))}
	b.Counts.Found = len(records)
	for _, rec := range records {
		res := r.ReconcileOne(ctx, rec)
		b.Results = append(b.Results, res)
		if res.Outcome == OutcomeSkipped {
			b.Skipped++
			continue
		}
		b.Active[rec.OriginalEventURL] = struct{}{}
		if b.SourceURL == "" {
			b.SourceURL = rec.SourceURL
		}
		switch res.Outcome {
		case OutcomeNew:
			b.Counts.New++
		case OutcomeUpdated:
			b.Counts.Updated++
		case OutcomeUnchanged:
			b.Unchanged++
		case OutcomeFailed:
			b.Failed++
		}
	}
	return b
}
