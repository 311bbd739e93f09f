package sources

import (
	"testing"
	"time"
)

func TestParseJSONLD(t *testing.T) {
	body := `{"@context":"https://schema.org","@graph":[
		{"@type":"Event","name":"Art Fair","url":"https://x.test/art","startDate":"2024-06-02T10:00:00+10:00",
		 "location":{"@type":"Place","name":"Carriageworks","address":{"streetAddress":"245 Wilson St"}},
		 "image":[{"url":"https://img.test/a.jpg"}]},
		{"@type":["Event","MusicEvent"],"name":"Gig","url":"https://x.test/gig","location":[{"name":"Metro","address":"624 George St"}],"image":"https://img.test/g.jpg"},
		{"@type":"Event","name":""},
		{"@type":"Organization","name":"Org"}
	]}`
	items := parseJSONLD(body)
	if len(items) != 2 {
		t.Fatalf("expected 2 events, got %d", len(items))
	}
	name, addr := items[0].venue()
	if name != "Carriageworks" || addr != "245 Wilson St" {
		t.Fatalf("unexpected venue %q %q", name, addr)
	}
	if items[0].image() != "https://img.test/a.jpg" {
		t.Fatalf("unexpected image %q", items[0].image())
	}
	name, addr = items[1].venue()
	if name != "Metro" || addr != "624 George St" {
		t.Fatalf("unexpected venue %q %q", name, addr)
	}
	if items[1].image() != "https://img.test/g.jpg" {
		t.Fatalf("unexpected image %q", items[1].image())
	}
	if got := parseJSONLD(`{not json`); got != nil {
		t.Fatalf("expected nothing from bad json, got %+v", got)
	}
}

func TestParseWhen(t *testing.T) {
	loc := time.FixedZone("AEST", 10*60*60)
	cases := []struct {
		in   string
		want time.Time
	}{
		{"2024-06-01T19:30:00+10:00", time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC)},
		{"2024-06-01T19:30", time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC)},
		{"2024-06-01", time.Date(2024, 5, 31, 14, 0, 0, 0, time.UTC)},
		{"1 June 2024", time.Date(2024, 5, 31, 14, 0, 0, 0, time.UTC)},
		{"Jun 1, 2024", time.Date(2024, 5, 31, 14, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		got := parseWhen(tc.in, loc)
		if got == nil || !got.Equal(tc.want) {
			t.Fatalf("parse %q: got %v want %v", tc.in, got, tc.want)
		}
	}
	for _, in := range []string{"", "this weekend", "Sat, Jun 1"} {
		if got := parseWhen(in, loc); got != nil {
			t.Fatalf("expected nil for %q, got %v", in, got)
		}
	}
}

func TestWeekStart(t *testing.T) {
	sunday := time.Date(2024, 6, 9, 22, 0, 0, 0, time.UTC)
	monday := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	if got := weekStart(sunday); !got.Equal(monday) {
		t.Fatalf("got %v want %v", got, monday)
	}
	if got := weekStart(monday.Add(time.Hour)); !got.Equal(monday) {
		t.Fatalf("got %v want %v", got, monday)
	}
}
