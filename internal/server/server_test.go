package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"eventhub/internal/db"
	"eventhub/internal/domain"
	"eventhub/internal/engine"
	"eventhub/internal/metrics"
	"eventhub/internal/migrate"
	"eventhub/internal/repo"
	"eventhub/internal/sources"
)

const (
	testSecret = "test-secret"
	cronSecret = "cron-secret"
)

type testServer struct {
	*httptest.Server
	Repo repo.Repo
}

func jazzBatch(context.Context) ([]domain.NormalizedEvent, error) {
	start := time.Now().Add(48 * time.Hour).UTC()
	return []domain.NormalizedEvent{
		{Title: "Jazz Night", StartTime: &start, VenueName: "Town Hall", City: "Sydney", SourceName: "Eventbrite",
			SourceURL: "https://eb.test/events", OriginalEventURL: "https://eb.test/e/jazz"},
		{Title: "Art Fair", City: "Sydney", Category: "Arts", SourceName: "Eventbrite",
			SourceURL: "https://eb.test/events", OriginalEventURL: "https://eb.test/e/art"},
	}, nil
}

func seedBatch(context.Context) ([]domain.NormalizedEvent, error) {
	return []domain.NormalizedEvent{
		{Title: "Harbour Jazz", City: "Sydney", SourceName: "Sydney Events Hub", SourceURL: sources.SeedURL, OriginalEventURL: sources.SeedURL + "/jazz"},
	}, nil
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	conn, dialect, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn, dialect); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	reg, err := sources.NewRegistry(
		sources.Func{SourceID: sources.Seed, FetchFn: seedBatch},
		sources.Func{SourceID: sources.Eventbrite, FetchFn: jazzBatch},
		sources.Func{SourceID: sources.Timeout, FetchFn: func(context.Context) ([]domain.NormalizedEvent, error) {
			return nil, errors.New("403 forbidden")
		}},
	)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	r := repo.New(conn, dialect)
	rec := metrics.New()
	e := engine.New(r, reg)
	e.Metrics = rec
	handler, err := New(Config{
		Engine:   e,
		Repo:     r,
		Metrics:  rec,
		BasePath: "/v0",
		Auth:     AuthConfig{JWTSecret: testSecret, CronSecret: cronSecret},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	srv := httptest.NewServer(handler)
	t.Cleanup(func() {
		srv.Close()
		conn.Close()
	})
	return &testServer{Server: srv, Repo: r}
}

func curatorHeaders(t *testing.T, actor string) map[string]string {
	t.Helper()
	token, err := SignToken(testSecret, actor, time.Hour, time.Now())
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return map[string]string{"Authorization": "Bearer " + token}
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader = bytes.NewReader(nil)
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func errorCode(t *testing.T, data []byte) string {
	t.Helper()
	var env struct {
		Error apiErrorBody `json:"error"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("decode error envelope: %v (%s)", err, data)
	}
	return env.Error.Code
}

func TestHealthIsPublic(t *testing.T) {
	srv := newTestServer(t)
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK || !strings.Contains(string(data), "ok") {
		t.Fatalf("health %d: %s", res.StatusCode, data)
	}
}

func TestScrapeRequiresCurator(t *testing.T) {
	srv := newTestServer(t)
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/scrape", nil, nil)
	if res.StatusCode != http.StatusUnauthorized || errorCode(t, data) != "unauthorized" {
		t.Fatalf("anonymous scrape %d: %s", res.StatusCode, data)
	}
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/scrape", nil, map[string]string{"Authorization": "Bearer nope"})
	if res.StatusCode != http.StatusUnauthorized || errorCode(t, data) != "invalid_credentials" {
		t.Fatalf("bad token scrape %d: %s", res.StatusCode, data)
	}
}

func TestScrapeAllAndSingle(t *testing.T) {
	srv := newTestServer(t)
	headers := curatorHeaders(t, "curator@example.com")

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/scrape", nil, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("scrape all %d: %s", res.StatusCode, data)
	}
	var all ScrapeResponse
	if err := json.Unmarshal(data, &all); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !all.Success || len(all.Results) != 3 {
		t.Fatalf("unexpected results %+v", all)
	}
	if all.Results[0].Source != "Sydney Events Hub" || all.Results[1].New != 2 || all.Results[2].Error == "" {
		t.Fatalf("unexpected summaries %+v", all.Results)
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/scrape", ScrapeRequest{Source: "Nope"}, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("scrape unknown %d: %s", res.StatusCode, data)
	}
	var one ScrapeResponse
	if err := json.Unmarshal(data, &one); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(one.Results) != 1 || one.Results[0].Error != engine.ErrUnknownSource.Error() {
		t.Fatalf("unexpected unknown source result %+v", one.Results)
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/scrape/logs?source=timeout", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("logs %d: %s", res.StatusCode, data)
	}
	var logs RunLogsResponse
	if err := json.Unmarshal(data, &logs); err != nil {
		t.Fatalf("decode logs: %v", err)
	}
	if len(logs.Logs) != 1 || logs.Logs[0].Status != domain.RunError || logs.Logs[0].SourceName != "Timeout Sydney" {
		t.Fatalf("unexpected logs %+v", logs.Logs)
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/metrics", nil, nil)
	if res.StatusCode != http.StatusOK || !strings.Contains(string(data), "eventhub_") {
		t.Fatalf("metrics %d", res.StatusCode)
	}
}

func TestCronSecret(t *testing.T) {
	srv := newTestServer(t)
	res, _ := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/cron", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without secret, got %d", res.StatusCode)
	}
	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/cron", nil, map[string]string{"Authorization": "Bearer wrong"})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong secret, got %d", res.StatusCode)
	}
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/cron", nil, map[string]string{"Authorization": "Bearer " + cronSecret})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("cron %d: %s", res.StatusCode, data)
	}
	var out CronResponse
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !out.Success || len(out.Summary) != 3 || out.RanAt.IsZero() {
		t.Fatalf("unexpected cron response %+v", out)
	}
}

func TestInitSeedsOnce(t *testing.T) {
	srv := newTestServer(t)
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/init", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("init %d: %s", res.StatusCode, data)
	}
	var first InitResponse
	_ = json.Unmarshal(data, &first)
	if first.Message != "Initialized" || first.Result == nil || first.Result.New != 1 {
		t.Fatalf("unexpected init %+v", first)
	}
	_, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/init", nil, nil)
	var second InitResponse
	_ = json.Unmarshal(data, &second)
	if second.Message != "Already initialized" || second.Count != 1 {
		t.Fatalf("unexpected second init %+v", second)
	}
}

func TestEventsListImportAndHistory(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()
	headers := curatorHeaders(t, "curator@example.com")
	if res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/scrape", ScrapeRequest{Source: "eventbrite"}, headers); res.StatusCode != http.StatusOK {
		t.Fatalf("scrape %d: %s", res.StatusCode, data)
	}

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/events?limit=1", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list %d: %s", res.StatusCode, data)
	}
	var list EventListResponse
	if err := json.Unmarshal(data, &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if list.Total != 2 || len(list.Events) != 1 || list.TotalPages != 2 || list.Events[0].Title != "Jazz Night" {
		t.Fatalf("unexpected list %+v", list)
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/events?date_from=yesterday", nil, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad date, got %d: %s", res.StatusCode, data)
	}

	art, err := srv.Repo.FindByOriginalURL(ctx, "https://eb.test/e/art")
	if err != nil {
		t.Fatalf("find art: %v", err)
	}
	importURL := srv.URL + "/v0/events/" + art.ID + "/import"
	res, _ = doJSON(t, srv.Client(), http.MethodPost, importURL, ImportRequest{Notes: "weekend pick"}, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("anonymous import should be rejected, got %d", res.StatusCode)
	}

	key := "ehk_test_key"
	if err := srv.Repo.InsertAPIKey(ctx, domain.APIKey{ID: "key-1", ActorID: "editor@example.com", KeyHash: repo.HashAPIKey(key)}); err != nil {
		t.Fatalf("insert api key: %v", err)
	}
	keyHeaders := map[string]string{"X-Api-Key": key}
	res, data = doJSON(t, srv.Client(), http.MethodPost, importURL, ImportRequest{Notes: "weekend pick"}, keyHeaders)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("import %d: %s", res.StatusCode, data)
	}
	var imported ImportResponse
	if err := json.Unmarshal(data, &imported); err != nil {
		t.Fatalf("decode import: %v", err)
	}
	if imported.Event.Status != domain.StatusImported || imported.Event.ImportedBy != "editor@example.com" || imported.Event.ImportNotes != "weekend pick" {
		t.Fatalf("unexpected imported event %+v", imported.Event)
	}
	res, data = doJSON(t, srv.Client(), http.MethodPost, importURL, nil, keyHeaders)
	if res.StatusCode != http.StatusConflict || errorCode(t, data) != "already_imported" {
		t.Fatalf("second import %d: %s", res.StatusCode, data)
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/events/"+art.ID+"/history", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("history %d: %s", res.StatusCode, data)
	}
	var hist HistoryResponse
	if err := json.Unmarshal(data, &hist); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(hist.Items) != 2 || hist.Items[0].Type != "event.imported" {
		t.Fatalf("unexpected history %+v", hist.Items)
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/events/missing", nil, nil)
	if res.StatusCode != http.StatusNotFound || errorCode(t, data) != "not_found" {
		t.Fatalf("missing event %d: %s", res.StatusCode, data)
	}
}
