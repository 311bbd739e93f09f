package sources_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"eventhub/internal/domain"
	"eventhub/internal/sources"
)

var aest = time.FixedZone("AEST", 10*60*60)

const eventbritePage = `<html><body>
<div data-testid="event-card">
  <a href="/e/jazz-night-123"><h3>Jazz  Night</h3></a>
  <time datetime="2024-06-01T19:30:00+10:00">Sat, Jun 1</time>
  <div data-testid="event-card-venue">Town Hall, 483 George St</div>
  <p>Live jazz</p>
  <img data-src="/img/jazz.jpg">
  <span data-testid="event-card-category">Music</span>
</div>
<div data-testid="event-card"><h3>No link here</h3></div>
<div data-testid="event-card"><a href="/d/australia--sydney/events/"><h3>Back to listing</h3></a></div>
<script type="application/ld+json">[
  {"@type":"Event","name":"Jazz Night","url":"/e/jazz-night-123"},
  {"@type":"Event","name":"Art Fair","url":"https://other.test/e/art","startDate":"2024-06-02",
   "location":{"name":"Carriageworks","address":{"streetAddress":"245 Wilson St"}},"image":["https://img.test/a.jpg"]},
  {"@type":"Event","name":"No url"}
]</script>
</body></html>`

func serve(t *testing.T, path, body string, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != path {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func byURL(events []domain.NormalizedEvent) map[string]domain.NormalizedEvent {
	m := map[string]domain.NormalizedEvent{}
	for _, ev := range events {
		m[ev.OriginalEventURL] = ev
	}
	return m
}

func TestEventbriteCardsAndJSONLD(t *testing.T) {
	srv := serve(t, "/d/australia--sydney/events/", eventbritePage, http.StatusOK)
	listing := srv.URL + "/d/australia--sydney/events/"
	a := sources.NewEventbrite(sources.Options{Location: aest, URLs: map[sources.ID]string{sources.Eventbrite: listing}})

	events, err := a.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d: %+v", len(events), events)
	}
	got := byURL(events)
	jazz, ok := got[srv.URL+"/e/jazz-night-123"]
	if !ok {
		t.Fatalf("jazz card missing: %+v", events)
	}
	if jazz.Title != "Jazz Night" || jazz.VenueName != "Town Hall" || jazz.VenueAddress != "Town Hall, 483 George St" {
		t.Fatalf("unexpected jazz fields %+v", jazz)
	}
	if jazz.StartTime == nil || !jazz.StartTime.Equal(time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC)) {
		t.Fatalf("unexpected start %v", jazz.StartTime)
	}
	if jazz.ImageURL != srv.URL+"/img/jazz.jpg" || jazz.Category != "Music" || len(jazz.Tags) != 1 {
		t.Fatalf("unexpected media/category %+v", jazz)
	}
	if jazz.SourceName != "Eventbrite" || jazz.SourceURL != listing || jazz.City != "Sydney" {
		t.Fatalf("unexpected source fields %+v", jazz)
	}

	art, ok := got["https://other.test/e/art"]
	if !ok {
		t.Fatalf("json-ld event missing")
	}
	if art.VenueName != "Carriageworks" || art.VenueAddress != "245 Wilson St" || art.ImageURL != "https://img.test/a.jpg" {
		t.Fatalf("unexpected json-ld fields %+v", art)
	}
}

func TestCouncilCardShape(t *testing.T) {
	page := `<html><body>
<article class="event-card">
  <h3>Lunar New Year Lanterns</h3>
  <a href="/events/lunar-lanterns">Details</a>
  <span class="event-date">2 February 2024</span>
  <span class="venue-name">Tumbalong Park</span>
  <p>Giant lanterns across the city.</p>
</article>
<article class="event-card"><h3>All events</h3><a href="/whats-on/events">See all</a></article>
<article class="event-card"><h3>Hi</h3><a href="/events/hi">x</a></article>
</body></html>`
	srv := serve(t, "/events", page, http.StatusOK)
	a := sources.NewCouncil(sources.Options{Location: aest, URLs: map[sources.ID]string{sources.Council: srv.URL + "/events"}})
	events, err := a.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d: %+v", len(events), events)
	}
	ev := events[0]
	if ev.VenueAddress != "Tumbalong Park, Sydney NSW" || ev.Category != "Community" {
		t.Fatalf("unexpected council fields %+v", ev)
	}
	if len(ev.Tags) != 2 || ev.Tags[1] != "Council" {
		t.Fatalf("unexpected tags %v", ev.Tags)
	}
	if ev.StartTime == nil || !ev.StartTime.Equal(time.Date(2024, 2, 1, 14, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected start %v", ev.StartTime)
	}
}

func TestTimeoutDefaultsCategory(t *testing.T) {
	page := `<html><body>
<article><h3>Comedy Gala</h3><a href="/sydney/comedy/gala">More</a><p>Laughs all night.</p><time>next week</time></article>
</body></html>`
	srv := serve(t, "/sydney/events", page, http.StatusOK)
	a := sources.NewTimeout(sources.Options{Location: aest, URLs: map[sources.ID]string{sources.Timeout: srv.URL + "/sydney/events"}})
	events, err := a.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Category != "Events" || events[0].StartTime != nil || events[0].Description != "Laughs all night." {
		t.Fatalf("unexpected event %+v", events[0])
	}
}

func TestFetchReportsBatchFailures(t *testing.T) {
	srv := serve(t, "/events", "boom", http.StatusInternalServerError)
	a := sources.NewBroadsheet(sources.Options{URLs: map[sources.ID]string{sources.Broadsheet: srv.URL + "/events"}})
	if _, err := a.Fetch(context.Background()); err == nil {
		t.Fatalf("expected error for 500 response")
	}

	ok := serve(t, "/events", "<html></html>", http.StatusOK)
	a = sources.NewBroadsheet(sources.Options{
		URLs:    map[sources.ID]string{sources.Broadsheet: ok.URL + "/events"},
		Fetcher: sources.Fetcher{Limiter: sources.NewLimiter(1, 1)},
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := a.Fetch(ctx); err == nil {
		t.Fatalf("expected error for cancelled context")
	}
}

func TestEmptyPageIsNotAnError(t *testing.T) {
	srv := serve(t, "/events", "<html><body><p>Nothing on</p></body></html>", http.StatusOK)
	a := sources.NewBroadsheet(sources.Options{URLs: map[sources.ID]string{sources.Broadsheet: srv.URL + "/events"}})
	events, err := a.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected no events, got %d", len(events))
	}
}

func TestSeedIsStableWithinAWeek(t *testing.T) {
	tuesday := time.Date(2024, 6, 4, 9, 0, 0, 0, aest)
	friday := time.Date(2024, 6, 7, 18, 0, 0, 0, aest)
	first, err := sources.NewSeed(sources.Options{Location: aest, Now: func() time.Time { return tuesday }}).Fetch(context.Background())
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	second, err := sources.NewSeed(sources.Options{Location: aest, Now: func() time.Time { return friday }}).Fetch(context.Background())
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if len(first) == 0 || len(first) != len(second) {
		t.Fatalf("unexpected seed sizes %d %d", len(first), len(second))
	}
	urls := map[string]bool{}
	for i := range first {
		if first[i].OriginalEventURL != second[i].OriginalEventURL || !first[i].StartTime.Equal(*second[i].StartTime) {
			t.Fatalf("seed record %d differs between runs", i)
		}
		if urls[first[i].OriginalEventURL] {
			t.Fatalf("duplicate seed url %s", first[i].OriginalEventURL)
		}
		urls[first[i].OriginalEventURL] = true
		if !first[i].Reconcilable() || first[i].SourceURL != sources.SeedURL || first[i].SourceName != "Sydney Events Hub" {
			t.Fatalf("unexpected seed record %+v", first[i])
		}
	}
}
