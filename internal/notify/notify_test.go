package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"eventhub/internal/domain"
)

type recordingNotifier struct {
	got []domain.RunSummary
	err error
}

func (r *recordingNotifier) Notify(_ context.Context, s domain.RunSummary) error {
	r.got = append(r.got, s)
	return r.err
}

func TestWebhookDelivers(t *testing.T) {
	var got RunEvent
	var secret, evtHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		secret = r.Header.Get("X-Eventhub-Secret")
		evtHeader = r.Header.Get("X-Eventhub-Event")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	hook := Webhook{URL: srv.URL, Secret: "s3cret", Now: func() time.Time { return at }}
	sum := domain.RunSummary{Source: "Eventbrite", RunID: "run-1", Found: 4, New: 2}
	if err := hook.Notify(context.Background(), sum); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if secret != "s3cret" || evtHeader != TypeRunSucceeded {
		t.Fatalf("unexpected headers secret=%q event=%q", secret, evtHeader)
	}
	if got.Type != TypeRunSucceeded || got.Summary != sum || !got.TS.Equal(at) {
		t.Fatalf("unexpected body %+v", got)
	}
}

func TestWebhookFiltersAndFailures(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	onlyFailures := Webhook{URL: srv.URL, Events: []string{TypeRunFailed}}
	if err := onlyFailures.Notify(context.Background(), domain.RunSummary{Source: "x"}); err != nil {
		t.Fatalf("filtered event should be skipped: %v", err)
	}
	if calls != 0 {
		t.Fatalf("expected no delivery, got %d", calls)
	}
	err := onlyFailures.Notify(context.Background(), domain.RunSummary{Source: "x", Error: "boom"})
	if err == nil || !strings.Contains(err.Error(), "502") {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestMultiJoinsErrors(t *testing.T) {
	ok := &recordingNotifier{}
	bad := &recordingNotifier{err: errors.New("down")}
	m := Multi{ok, nil, bad}
	err := m.Notify(context.Background(), domain.RunSummary{Source: "x"})
	if err == nil || !strings.Contains(err.Error(), "down") {
		t.Fatalf("expected joined error, got %v", err)
	}
	if len(ok.got) != 1 || len(bad.got) != 1 {
		t.Fatalf("every notifier should be called")
	}
}

func TestRoutingKey(t *testing.T) {
	if got := RoutingKey(TypeRunFailed, "City of Sydney"); got != "run.failed.city_of_sydney" {
		t.Fatalf("unexpected routing key %q", got)
	}
}
