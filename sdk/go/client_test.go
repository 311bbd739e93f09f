package eventhubsdk

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestTriggerOneSendsSourceAndKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v0/scrape" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("X-Api-Key") != "k1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"results": []RunSummary{{Source: body["source"], Found: 3, New: 1}},
		})
	}))
	defer srv.Close()

	c := New(srv.URL)
	c.APIKey = "k1"
	sum, err := c.TriggerOne(context.Background(), "Eventbrite")
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if sum.Source != "Eventbrite" || sum.Found != 3 || sum.New != 1 {
		t.Fatalf("unexpected summary %+v", sum)
	}
}

func TestListEventsEncodesQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if r.URL.Path != "/v0/events" || q.Get("search") != "jazz" || q.Get("include_inactive") != "true" || q.Get("limit") != "5" || q.Has("city") {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(EventPage{Events: []Event{{ID: "e1", Title: "Jazz Night"}}, Total: 1, Page: 1, Limit: 5, TotalPages: 1})
	}))
	defer srv.Close()

	page, err := New(srv.URL).ListEvents(context.Background(), EventQuery{Search: "jazz", IncludeInactive: true, Limit: 5})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Total != 1 || len(page.Events) != 1 || page.Events[0].Title != "Jazz Night" {
		t.Fatalf("unexpected page %+v", page)
	}
}

func TestErrorsCarryStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":{"code":"already_imported","message":"event already imported"}}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL).ImportEvent(context.Background(), "e1", "")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusConflict {
		t.Fatalf("expected conflict APIError, got %v", err)
	}
}
