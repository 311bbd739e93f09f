package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"eventhub/internal/domain"
	"eventhub/internal/lock"
	"eventhub/internal/metrics"
	"eventhub/internal/notify"
	"eventhub/internal/reconcile"
	"eventhub/internal/sources"
)

// ErrUnknownSource is reported in the summary of a run for a name that
// matches no registered adapter.
var ErrUnknownSource = errors.New("unknown source")

// Store is the gateway surface the orchestrator drives.
type Store interface {
	reconcile.Store
	CreateRunLog(ctx context.Context, sourceName string, startedAt time.Time) (string, error)
	FinalizeRunLog(ctx context.Context, id string, fin domain.RunFinalization) error
	CountEvents(ctx context.Context) (int, error)
	MarkImported(ctx context.Context, id, actorID, notes string, at time.Time) (domain.Event, error)
}

// Archiver keeps the raw batch a source returned.
type Archiver interface {
	Put(ctx context.Context, source string, at time.Time, events []domain.NormalizedEvent) (string, error)
}

type Engine struct {
	Store      Store
	Sources    *sources.Registry
	Locker     lock.Locker
	Metrics    *metrics.Recorder
	Notifier   notify.Notifier
	Archive    Archiver
	Log        zerolog.Logger
	RunTimeout time.Duration
	Now        func() time.Time
}

func New(store Store, registry *sources.Registry) Engine {
	return Engine{
		Store:   store,
		Sources: registry,
		Locker:  lock.NewLocal(),
		Log:     zerolog.Nop(),
		Now:     time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

func (e Engine) reconciler() reconcile.Reconciler {
	r := reconcile.New(e.Store)
	r.Now = e.now
	r.Log = e.Log
	return r
}

var tracer = otel.Tracer("eventhub/engine")

// RunOne executes one source run end to end. Source-level failures are
// reported in the summary and on the run log. The returned error is set only
// when the run could not be recorded at all.
func (e Engine) RunOne(ctx context.Context, a sources.Adapter) (domain.RunSummary, error) {
	sum := domain.RunSummary{Source: a.Name()}
	log := e.Log.With().Str("source", a.Name()).Logger()

	if e.Locker != nil {
		release, err := e.Locker.TryAcquire(ctx, string(a.ID()))
		if errors.Is(err, lock.ErrLocked) {
			log.Warn().Msg("skipping run: already in progress")
			sum.Error = err.Error()
			return sum, nil
		}
		if err != nil {
			return sum, fmt.Errorf("lock %s: %w", a.ID(), err)
		}
		defer release()
	}

	ctx, span := tracer.Start(ctx, "source.run", trace.WithAttributes(attribute.String("source", a.Name())))
	defer span.End()

	started := e.now()
	runID, err := e.Store.CreateRunLog(ctx, a.Name(), started)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create run log")
		return sum, fmt.Errorf("create run log for %s: %w", a.Name(), err)
	}
	sum.RunID = runID
	span.SetAttributes(attribute.String("run_id", runID))

	counts, runErr := e.collect(ctx, a, log)
	sum.Found, sum.New, sum.Updated, sum.Inactive = counts.Found, counts.New, counts.Updated, counts.Inactive

	fin := domain.RunFinalization{Status: domain.RunSuccess, Counts: counts}
	if runErr != nil {
		sum.Error = runErr.Error()
		fin = domain.RunFinalization{Status: domain.RunError, ErrorMessage: runErr.Error()}
		span.RecordError(runErr)
		span.SetStatus(codes.Error, "run failed")
		log.Error().Err(runErr).Str("run_id", runID).Msg("run failed")
	}
	finished := e.now()
	fin.FinishedAt = finished
	// The run log is finalized even when the caller has gone away.
	if err := e.Store.FinalizeRunLog(context.WithoutCancel(ctx), runID, fin); err != nil {
		log.Error().Err(err).Str("run_id", runID).Msg("finalize run log")
		if sum.Error == "" {
			sum.Error = fmt.Sprintf("finalize run log: %v", err)
		}
	}
	span.SetAttributes(
		attribute.Int("found", sum.Found),
		attribute.Int("new", sum.New),
		attribute.Int("updated", sum.Updated),
		attribute.Int("inactive", sum.Inactive),
	)

	e.Metrics.ObserveRun(sum, finished.Sub(started), finished)
	if e.Notifier != nil {
		if err := e.Notifier.Notify(context.WithoutCancel(ctx), sum); err != nil {
			log.Warn().Err(err).Msg("notify run summary")
		}
	}
	if !sum.Failed() {
		log.Info().
			Str("run_id", runID).
			Int("found", sum.Found).
			Int("new", sum.New).
			Int("updated", sum.Updated).
			Int("inactive", sum.Inactive).
			Dur("took", finished.Sub(started)).
			Msg("run complete")
	}
	return sum, nil
}

// collect fetches, reconciles and retires for one source. Counts are only
// meaningful when the error is nil; the error path reports zero counts.
func (e Engine) collect(ctx context.Context, a sources.Adapter, log zerolog.Logger) (domain.RunCounts, error) {
	fetchCtx := ctx
	if e.RunTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, e.RunTimeout)
		defer cancel()
	}
	records, err := a.Fetch(fetchCtx)
	if err != nil {
		return domain.RunCounts{}, fmt.Errorf("fetch %s: %w", a.Name(), err)
	}
	if e.Archive != nil {
		key, err := e.Archive.Put(ctx, a.Name(), e.now(), records)
		if err != nil {
			log.Warn().Err(err).Msg("archive raw batch")
		} else {
			log.Debug().Str("key", key).Msg("archived raw batch")
		}
	}

	batch := e.reconciler().ReconcileBatch(ctx, records)
	for _, res := range batch.Results {
		e.Metrics.ObserveRecord(a.Name(), string(res.Outcome))
	}
	if batch.Failed > 0 {
		log.Warn().Int("failed", batch.Failed).Msg("some records were not stored")
	}
	if len(records) == 0 {
		return batch.Counts, nil
	}
	retired, err := e.reconciler().RetireStale(ctx, batch.SourceURL, batch.Active)
	if err != nil {
		return domain.RunCounts{}, err
	}
	batch.Counts.Inactive = retired
	return batch.Counts, nil
}

// RunAll runs every registered source in order, seed first. One source
// failing never stops the others; the error is non-nil only for
// orchestration failures, joined across sources.
func (e Engine) RunAll(ctx context.Context) ([]domain.RunSummary, error) {
	var (
		out  []domain.RunSummary
		errs []error
	)
	for _, a := range e.Sources.All() {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		sum, err := e.RunOne(ctx, a)
		if err != nil {
			if sum.Error == "" {
				sum.Error = err.Error()
			}
			errs = append(errs, err)
		}
		out = append(out, sum)
	}
	return out, errors.Join(errs...)
}

// RunSingle runs the source named by slug or display name. An unknown name
// yields an error-shaped summary and no run log.
func (e Engine) RunSingle(ctx context.Context, name string) (domain.RunSummary, error) {
	a, ok := e.Sources.Lookup(name)
	if !ok {
		return domain.RunSummary{Source: name, Error: ErrUnknownSource.Error()}, nil
	}
	return e.RunOne(ctx, a)
}

// Init bootstraps an empty catalog with the seed source. It reports false
// when the catalog already held events.
func (e Engine) Init(ctx context.Context) (domain.RunSummary, bool, error) {
	n, err := e.Store.CountEvents(ctx)
	if err != nil {
		return domain.RunSummary{}, false, fmt.Errorf("count events: %w", err)
	}
	if n > 0 {
		return domain.RunSummary{}, false, nil
	}
	a, ok := e.Sources.Get(sources.Seed)
	if !ok {
		return domain.RunSummary{}, false, fmt.Errorf("seed source is not enabled")
	}
	sum, err := e.RunOne(ctx, a)
	return sum, true, err
}

// ImportEvent marks an event as taken into the curated listing.
func (e Engine) ImportEvent(ctx context.Context, id, actorID, notes string) (domain.Event, error) {
	ev, err := e.Store.MarkImported(ctx, id, actorID, notes, e.now())
	if err != nil {
		return domain.Event{}, err
	}
	e.Log.Info().Str("event_id", id).Str("actor", actorID).Msg("event imported")
	return ev, nil
}

// RunEvery calls RunAll on every tick until ctx is done. Runs never overlap;
// a tick that fires during a run is dropped.
func (e Engine) RunEvery(ctx context.Context, every time.Duration, done func([]domain.RunSummary, error)) {
	if every <= 0 {
		return
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			sums, err := e.RunAll(ctx)
			if done != nil {
				done(sums, err)
			}
		}
	}
}
